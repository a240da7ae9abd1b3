// Package mux mounts the panelpay route table onto a gorilla/mux router
package mux

import (
	"github.com/gorilla/mux"

	"github.com/mcpanel/panelpay/pkg/api"
)

// Mount registers every route on r, restricted to its method.
func Mount(r *mux.Router, routes []api.Route) {
	for _, route := range routes {
		r.Handle(route.Path, route.Handler).Methods(route.Method)
	}
}
