// Package fiber mounts the panelpay route table onto a Fiber app
package fiber

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/mcpanel/panelpay/pkg/api"
)

// Mount registers every route on r. The routes run as net/http handlers
// through the fasthttp adaptor, so authentication applied with
// middleware/http.Protect keeps working.
func Mount(r fiber.Router, routes []api.Route) {
	for _, route := range routes {
		r.Add(route.Method, route.Path, adaptor.HTTPHandler(route.Handler))
	}
}
