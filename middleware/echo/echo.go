// Package echo mounts the panelpay route table onto an Echo router
package echo

import (
	"github.com/labstack/echo/v4"

	"github.com/mcpanel/panelpay/pkg/api"
)

// Router is satisfied by *echo.Echo and *echo.Group
type Router interface {
	Add(method, path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) *echo.Route
}

// Mount registers every route on r. Authentication is expected to be applied
// to the table beforehand with middleware/http.Protect.
func Mount(r Router, routes []api.Route) {
	for _, route := range routes {
		r.Add(route.Method, route.Path, echo.WrapHandler(route.Handler))
	}
}

// UserID returns the user ID stored by the authentication middleware
func UserID(c echo.Context, key interface{}) string {
	userID, _ := c.Request().Context().Value(key).(string)
	return userID
}
