/*
Copyright 2017 The GoStor Authors All rights reserved.

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

package scsi

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultBackingStore is used when a LUN does not name a store type.
const DefaultBackingStore = "file"

// BackingStore is the raw byte-addressed medium behind a StorageBackend.
// Implementations need no locking of their own; StorageBackend serializes
// every call.
type BackingStore interface {
	Open(path string, readOnly bool) error
	Close() error
	// Size is the medium size in bytes, fixed once Open returns.
	Size() uint64
	Read(offset, tl int64) ([]byte, error)
	Write(wbuf []byte, offset int64) error
	DataSync() error
}

type BaseBackingStore struct {
	Name     string
	DataSize uint64
	ReadOnly bool
}

func (bs *BaseBackingStore) Size() uint64 {
	return bs.DataSize
}

type BackingStoreFunc func() (BackingStore, error)

var (
	bsLock              sync.RWMutex
	registeredBSPlugins = map[string]BackingStoreFunc{}
)

func RegisterBackingStore(name string, f BackingStoreFunc) {
	bsLock.Lock()
	defer bsLock.Unlock()
	registeredBSPlugins[name] = f
}

func NewBackingStore(name string) (BackingStore, error) {
	if name == "" {
		name = DefaultBackingStore
	}
	bsLock.RLock()
	f, ok := registeredBSPlugins[name]
	bsLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend storage %s is not found", name)
	}
	return f()
}

// BackingStores lists the registered store types.
func BackingStores() []string {
	bsLock.RLock()
	defer bsLock.RUnlock()
	names := make([]string, 0, len(registeredBSPlugins))
	for name := range registeredBSPlugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
