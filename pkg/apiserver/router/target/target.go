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

// Package target serves the status and lifecycle routes of the iSCSI target.
package target

import (
	"net"

	"github.com/gostor/iscsitgt/pkg/apiserver/router"
	"github.com/gostor/iscsitgt/pkg/config"
	"github.com/gostor/iscsitgt/pkg/port/iscsit"
	"github.com/gostor/iscsitgt/pkg/scsi"
)

// Backend is the target server the router controls.
type Backend interface {
	Start() error
	Stop() error
	Running() bool
	Addr() net.Addr
	Config() *config.Config
	Sessions() []iscsit.SessionInfo
}

// LunBackend reports the LUN table and persists the shared configuration.
type LunBackend interface {
	List() []scsi.LunInfo
	Save(filename string) error
}

type targetRouter struct {
	backend    Backend
	luns       LunBackend
	configPath string
	routes     []router.Route
}

// NewRouter initializes a new target router
func NewRouter(b Backend, luns LunBackend, configPath string) router.Router {
	r := &targetRouter{
		backend:    b,
		luns:       luns,
		configPath: configPath,
	}
	r.initRoutes()
	return r
}

// Routes returns the available routes to the target server
func (r *targetRouter) Routes() []router.Route {
	return r.routes
}

// initRoutes initializes the routes in target router
func (r *targetRouter) initRoutes() {
	r.routes = []router.Route{
		// GET
		router.NewGetRoute("/target", r.getTargetStatus),
		router.NewGetRoute("/target/sessions", r.getTargetSessions),
		// POST
		router.NewPostRoute("/target/save", r.postTargetSave),
		router.NewPostRoute("/target/start", r.postTargetStart),
		router.NewPostRoute("/target/stop", r.postTargetStop),
	}
}
