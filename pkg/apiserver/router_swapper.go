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

package apiserver

import (
	"net/http"
	"sync"
)

// routerSwapper lets InitRouters replace the routes of listeners that are
// already serving.
type routerSwapper struct {
	mu      sync.RWMutex
	handler http.Handler
}

func (rs *routerSwapper) Swap(h http.Handler) {
	rs.mu.Lock()
	rs.handler = h
	rs.mu.Unlock()
}

func (rs *routerSwapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rs.mu.RLock()
	h := rs.handler
	rs.mu.RUnlock()
	h.ServeHTTP(w, r)
}
