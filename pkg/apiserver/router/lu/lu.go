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

// Package lu serves the LUN routes of the management API.
package lu

import (
	"github.com/gostor/iscsitgt/pkg/apiserver/router"
	"github.com/gostor/iscsitgt/pkg/config"
	"github.com/gostor/iscsitgt/pkg/scsi"
)

// Backend is the LUN table the router manages.
type Backend interface {
	Add(entry config.LUN) (*scsi.Lun, error)
	RemoveLun(id uint8) bool
	List() []scsi.LunInfo
	Save(filename string) error
}

// luRouter is a router to talk with the LUN manager
type luRouter struct {
	backend    Backend
	configPath string
	routes     []router.Route
}

// NewRouter initializes a new LUN router. configPath is where ?save=1
// requests persist the configuration.
func NewRouter(b Backend, configPath string) router.Router {
	r := &luRouter{
		backend:    b,
		configPath: configPath,
	}
	r.initRoutes()
	return r
}

// Routes returns the available routes to the LUN manager
func (r *luRouter) Routes() []router.Route {
	return r.routes
}

// initRoutes initializes the routes in lu router
func (r *luRouter) initRoutes() {
	r.routes = []router.Route{
		// GET
		router.NewGetRoute("/luns", r.getLunList),
		router.NewGetRoute("/luns/{id:[0-9]+}", r.getLun),
		// POST
		router.NewPostRoute("/luns", r.postLunCreate),
		// DELETE
		router.NewDeleteRoute("/luns/{id:[0-9]+}", r.deleteLun),
	}
}
