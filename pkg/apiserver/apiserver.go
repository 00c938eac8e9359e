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

// Package apiserver contains the code that provides a rest.ful management API service.
package apiserver

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/gostor/iscsitgt/pkg/apiserver/httputils"
	"github.com/gostor/iscsitgt/pkg/apiserver/router"
)

// versionMatcher defines a variable matcher to be parsed by the router
// when a request is about to be served.
const versionMatcher = "/v{version:[0-9.]+}"

// metricsPath serves the Prometheus collectors of Config.Gatherer.
const metricsPath = "/metrics"

// Config provides the configuration for the API server
type Config struct {
	// Logging logs every handled request.
	Logging   bool
	Version   string
	TLSConfig *tls.Config
	Addrs     []Addr
	// Gatherer, when set, is exported on /metrics.
	Gatherer prometheus.Gatherer
}

// Addr contains string representation of address and its protocol (tcp, unix...).
type Addr struct {
	Proto string
	Addr  string
}

// Server contains instance details for the server
type Server struct {
	cfg           *Config
	servers       []*HTTPServer
	routers       []router.Router
	routerSwapper *routerSwapper
}

// New returns a new instance of the server based on the specified configuration.
// It allocates resources which will be needed for ServeAPI(ports, unix-sockets).
func New(cfg *Config) (*Server, error) {
	s := &Server{
		cfg: cfg,
	}
	for _, addr := range cfg.Addrs {
		ls, err := listen(addr.Proto, addr.Addr, cfg.TLSConfig)
		if err != nil {
			s.Close()
			return nil, err
		}
		for _, l := range ls {
			s.servers = append(s.servers, &HTTPServer{
				srv: &http.Server{
					Addr:              addr.Addr,
					ReadHeaderTimeout: 10 * time.Second,
				},
				l: l,
			})
		}
		log.Infof("Server created for HTTP on %s (%s)", addr.Proto, addr.Addr)
	}
	return s, nil
}

// Close closes servers and thus stop receiving requests
func (s *Server) Close() {
	for _, srv := range s.servers {
		if err := srv.Close(); err != nil {
			log.Error(err)
		}
	}
}

// Addrs returns the addresses the servers listen on.
func (s *Server) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(s.servers))
	for _, srv := range s.servers {
		addrs = append(addrs, srv.l.Addr())
	}
	return addrs
}

// Shutdown stops the servers gracefully, waiting at most timeout for the
// requests in flight.
func (s *Server) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, srv := range s.servers {
		if err := srv.srv.Shutdown(ctx); err != nil {
			log.Errorf("API server shutdown: %v", err)
		}
	}
}

// serveAPI loops through all initialized servers and spawns goroutine
// with Server method for each. It sets createMux() as Handler also.
func (s *Server) serveAPI() error {
	handler := s.Handler()

	var chErrors = make(chan error, len(s.servers))
	for _, srv := range s.servers {
		srv.srv.Handler = handler
		go func(srv *HTTPServer) {
			var err error
			log.Infof("API listen on %s", srv.l.Addr())
			if err = srv.Serve(); errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
				err = nil
			}
			chErrors <- err
		}(srv)
	}

	for i := 0; i < len(s.servers); i++ {
		err := <-chErrors
		if err != nil {
			return err
		}
	}

	return nil
}

// HTTPServer contains an instance of http server and the listener.
// srv *http.Server, contains configuration to create a http server and a mux router with all api end points.
// l   net.Listener, is a TCP or Socket listener that dispatches incoming request to the router.
type HTTPServer struct {
	srv *http.Server
	l   net.Listener
}

// Serve starts listening for inbound requests.
func (s *HTTPServer) Serve() error {
	return s.srv.Serve(s.l)
}

// Close closes the HTTPServer from listening for the inbound requests.
func (s *HTTPServer) Close() error {
	return s.l.Close()
}

func (s *Server) makeHTTPHandler(handler httputils.APIFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Logging {
			log.Infof("Calling %s %s", r.Method, r.URL.Path)
		}

		// The request context carries global data such as the API
		// version. Data that is specific to the immediate function
		// being called should still be passed as 'args'.
		ctx := r.Context()
		handlerFunc := s.handleWithGlobalMiddlewares(handler)

		vars := mux.Vars(r)
		if vars == nil {
			vars = make(map[string]string)
		}
		if v := vars["version"]; v != "" {
			ctx = context.WithValue(ctx, httputils.APIVersionKey, v)
		}

		if err := handlerFunc(ctx, w, r, vars); err != nil {
			log.Errorf("Handler for %s %s returned error: %v", r.Method, r.URL.Path, err)
			httputils.WriteError(w, err)
		}
	}
}

// InitRouters initializes a list of routers for the server.
func (s *Server) InitRouters(routers ...router.Router) {
	for _, r := range routers {
		s.addRouter(r)
	}
	if s.routerSwapper != nil {
		s.routerSwapper.Swap(s.createMux())
		return
	}
	s.initRouterSwapper()
}

// addRouter adds a new router to the server.
func (s *Server) addRouter(r router.Router) {
	s.routers = append(s.routers, r)
}

// createMux initializes the main router the server uses.
func (s *Server) createMux() *mux.Router {
	m := mux.NewRouter()

	log.Debugf("Registering routers")
	for _, apiRouter := range s.routers {
		for _, r := range apiRouter.Routes() {
			f := s.makeHTTPHandler(r.Handler())

			log.Debugf("Registering %s, %s", r.Method(), r.Path())
			m.Path(versionMatcher + r.Path()).Methods(r.Method()).Handler(f)
			m.Path(r.Path()).Methods(r.Method()).Handler(f)
		}
	}
	if s.cfg.Gatherer != nil {
		m.Path(metricsPath).Methods(http.MethodGet).Handler(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return m
}

// Handler is the root handler of every listener.
func (s *Server) Handler() http.Handler {
	if s.routerSwapper == nil {
		s.initRouterSwapper()
	}
	return s.routerSwapper
}

// Wait blocks the server goroutine until it exits.
// It sends an error message if there is any error during
// the API execution.
func (s *Server) Wait(waitChan chan error) {
	if err := s.serveAPI(); err != nil {
		log.Errorf("ServeAPI error: %v", err)
		waitChan <- err
		return
	}
	waitChan <- nil
}

func (s *Server) initRouterSwapper() {
	s.routerSwapper = &routerSwapper{
		handler: s.createMux(),
	}
}

func (s *Server) handleWithGlobalMiddlewares(handler httputils.APIFunc) httputils.APIFunc {
	return handler
}
