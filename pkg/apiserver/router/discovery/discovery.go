/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package discovery answers SendTargets style queries over the management API.
package discovery

import (
	"context"
	"net/http"

	"github.com/gostor/iscsitgt/pkg/api"
	"github.com/gostor/iscsitgt/pkg/apiserver/httputils"
	"github.com/gostor/iscsitgt/pkg/apiserver/router"
	"github.com/gostor/iscsitgt/pkg/util"
)

// Backend reports the target a discovery session would return.
type Backend interface {
	Running() bool
	Discover() util.KeyValue
}

type discoveryRouter struct {
	backend Backend
	routes  []router.Route
}

// NewRouter initializes a new discovery router
func NewRouter(b Backend) router.Router {
	r := &discoveryRouter{backend: b}
	r.initRoutes()
	return r
}

// Routes returns the available routes to the discovery service
func (r *discoveryRouter) Routes() []router.Route {
	return r.routes
}

// initRoutes initializes the routes in discovery router
func (r *discoveryRouter) initRoutes() {
	r.routes = []router.Route{
		// GET
		router.NewGetRoute("/discovery", r.getDiscovery),
	}
}

// getDiscovery lists nothing while the portal is down, an initiator could
// not reach the target anyway.
func (r *discoveryRouter) getDiscovery(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	records := []api.DiscoveryRecord{}
	if r.backend.Running() {
		kv := r.backend.Discover()
		records = append(records, api.DiscoveryRecord{TargetName: kv.Key, TargetAddress: kv.Value})
	}
	return httputils.WriteJSON(w, http.StatusOK, records)
}
