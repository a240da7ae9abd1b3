// Package gin mounts the panelpay route table onto a Gin router
package gin

import (
	gongin "github.com/gin-gonic/gin"

	"github.com/mcpanel/panelpay/pkg/api"
)

// Mount registers every route on r. Authentication is expected to be applied
// to the table beforehand with middleware/http.Protect.
func Mount(r gongin.IRoutes, routes []api.Route) {
	for _, route := range routes {
		r.Handle(route.Method, route.Path, gongin.WrapH(route.Handler))
	}
}

// UserID returns the user ID stored by the authentication middleware, which
// lives on the underlying request context.
func UserID(c *gongin.Context, key interface{}) string {
	userID, _ := c.Request.Context().Value(key).(string)
	return userID
}
