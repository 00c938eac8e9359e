/*
Copyright 2015 The GoStor Authors All rights reserved.

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
	"strings"
	"sync"

	"github.com/gostor/iscsitgt/pkg/config"
)

// Lun is one logical unit. Commands hold the in-flight guard for their whole
// execution, so closing a Lun waits for the running command and every later
// acquire fails.
type Lun struct {
	ID       uint8
	Name     string
	ReadOnly bool

	backend *StorageBackend
	allowed []string

	inflight sync.RWMutex
	closed   bool
}

// DefaultLunName is the name a LUN gets when none is configured.
func DefaultLunName(id uint8) string {
	return fmt.Sprintf("LUN%d", id)
}

func newLun(entry config.LUN, backend *StorageBackend) *Lun {
	name := entry.Name
	if name == "" {
		name = DefaultLunName(entry.ID)
	}
	return &Lun{
		ID:       entry.ID,
		Name:     name,
		ReadOnly: entry.ReadOnly || backend.ReadOnly(),
		backend:  backend,
		allowed:  append([]string(nil), entry.AllowedInitiators...),
	}
}

func (lun *Lun) Backend() *StorageBackend {
	return lun.backend
}

// AllowedInitiators returns a copy of the allow-list.
func (lun *Lun) AllowedInitiators() []string {
	return append([]string(nil), lun.allowed...)
}

// Allows reports whether initiator may access the LUN. An empty allow-list
// admits everyone, otherwise the IQN must match ignoring case.
func (lun *Lun) Allows(initiator string) bool {
	return initiatorInList(lun.allowed, initiator)
}

func initiatorInList(allowed []string, initiator string) bool {
	if len(allowed) == 0 {
		return true
	}
	if initiator == "" {
		return false
	}
	for _, iqn := range allowed {
		if strings.EqualFold(iqn, initiator) {
			return true
		}
	}
	return false
}

// acquire takes the in-flight guard. It returns false once the LUN is closed.
func (lun *Lun) acquire() bool {
	lun.inflight.RLock()
	if lun.closed {
		lun.inflight.RUnlock()
		return false
	}
	return true
}

func (lun *Lun) release() {
	lun.inflight.RUnlock()
}

// close waits for in-flight commands and closes the backend.
func (lun *Lun) close() error {
	lun.inflight.Lock()
	defer lun.inflight.Unlock()
	if lun.closed {
		return nil
	}
	lun.closed = true
	return lun.backend.Close()
}
