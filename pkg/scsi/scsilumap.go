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

package scsi

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/gostor/iscsitgt/pkg/config"
)

// LunInfo is a point-in-time description of a LUN.
type LunInfo struct {
	ID                uint8
	Name              string
	Path              string
	BackingStore      string
	ReadOnly          bool
	Size              uint64
	AllowedInitiators []string
	// Ready is false once the backend stops answering TEST UNIT READY.
	Ready bool
}

// LunManager owns every Lun. One mutex guards both the id map and the LUN
// entries of the shared configuration so the two never disagree.
type LunManager struct {
	mutex sync.RWMutex
	cfg   *config.Config
	luns  map[uint8]*Lun
}

func NewLunManager(cfg *config.Config) *LunManager {
	if cfg == nil {
		cfg = config.Default()
	}
	return &LunManager{
		cfg:  cfg,
		luns: make(map[uint8]*Lun),
	}
}

// AddLun opens path as a file backed LUN and records it in the configuration.
func (m *LunManager) AddLun(path string, id uint8, name string) (*Lun, error) {
	return m.Add(config.LUN{ID: id, Name: name, Path: path})
}

// Add opens the backing store described by entry and registers the LUN.
func (m *LunManager) Add(entry config.LUN) (*Lun, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.luns[entry.ID]; ok {
		return nil, fmt.Errorf("LUN %d: %w", entry.ID, ErrDuplicateLun)
	}
	if m.configIndex(entry.ID) >= 0 {
		return nil, fmt.Errorf("LUN %d: %w", entry.ID, ErrDuplicateLun)
	}
	lun, err := m.open(entry)
	if err != nil {
		return nil, err
	}
	if entry.Name == "" {
		entry.Name = lun.Name
	}
	m.luns[entry.ID] = lun
	m.cfg.LUNs = append(m.cfg.LUNs, entry)
	log.Infof("added LUN %d (%s) backed by %s", lun.ID, lun.Name, entry.Path)
	return lun, nil
}

func (m *LunManager) open(entry config.LUN) (*Lun, error) {
	backend, err := OpenStorageBackend(entry.BackingStore, entry.Path, entry.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("LUN %d: %w", entry.ID, err)
	}
	return newLun(entry, backend), nil
}

func (m *LunManager) configIndex(id uint8) int {
	for i, l := range m.cfg.LUNs {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// RemoveLun unregisters the LUN and closes its backend, waiting for a command
// that is still using it. It returns false if id is unknown.
func (m *LunManager) RemoveLun(id uint8) bool {
	m.mutex.Lock()
	lun, ok := m.luns[id]
	if ok {
		delete(m.luns, id)
	}
	if i := m.configIndex(id); i >= 0 {
		m.cfg.LUNs = append(m.cfg.LUNs[:i], m.cfg.LUNs[i+1:]...)
		ok = true
	}
	m.mutex.Unlock()

	if lun != nil {
		if err := lun.close(); err != nil {
			log.Warnf("close LUN %d: %v", id, err)
		}
		log.Infof("removed LUN %d", id)
	}
	return ok
}

// GetLun returns the LUN with id or nil.
func (m *LunManager) GetLun(id uint8) *Lun {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.luns[id]
}

// ListConfiguredIDs returns the ids of the open LUNs in ascending order.
func (m *LunManager) ListConfiguredIDs() []uint8 {
	m.mutex.RLock()
	ids := make([]uint8, 0, len(m.luns))
	for id := range m.luns {
		ids = append(ids, id)
	}
	m.mutex.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *LunManager) List() []LunInfo {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	infos := make([]LunInfo, 0, len(m.luns))
	for _, lun := range m.luns {
		infos = append(infos, LunInfo{
			ID:                lun.ID,
			Name:              lun.Name,
			Path:              lun.backend.Path(),
			BackingStore:      lun.backend.Type(),
			ReadOnly:          lun.ReadOnly,
			Size:              lun.backend.CapacityBytes(),
			AllowedInitiators: lun.AllowedInitiators(),
			Ready:             lun.backend.TestUnitReady() == nil,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// IsInitiatorAllowed consults the configured allow-list of LUN id. A LUN that
// is not configured is never allowed.
func (m *LunManager) IsInitiatorAllowed(id uint8, initiator string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	i := m.configIndex(id)
	if i < 0 {
		return false
	}
	return initiatorInList(m.cfg.LUNs[i].AllowedInitiators, initiator)
}

// LoadFromConfiguration closes every open LUN and reopens the LUNs listed in
// the configuration. Entries that fail to open are logged and skipped.
func (m *LunManager) LoadFromConfiguration() error {
	m.mutex.Lock()
	old := m.luns
	m.luns = make(map[uint8]*Lun)
	for id, lun := range old {
		if err := lun.close(); err != nil {
			log.Warnf("close LUN %d: %v", id, err)
		}
	}

	var failed int
	for _, entry := range m.cfg.LUNs {
		if _, ok := m.luns[entry.ID]; ok {
			log.Errorf("LUN %d configured twice, skipping", entry.ID)
			failed++
			continue
		}
		lun, err := m.open(entry)
		if err != nil {
			log.Errorf("load LUN %d: %v", entry.ID, err)
			failed++
			continue
		}
		m.luns[entry.ID] = lun
	}
	loaded := len(m.luns)
	m.mutex.Unlock()

	log.Infof("loaded %d LUNs from configuration", loaded)
	if failed > 0 && loaded == 0 {
		return fmt.Errorf("none of %d configured LUNs could be opened", failed)
	}
	return nil
}

// Save persists the configuration, including the current LUN list.
func (m *LunManager) Save(filename string) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.cfg.Save(filename)
}

// Close closes every LUN. The configuration is left untouched.
func (m *LunManager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var firstErr error
	for id, lun := range m.luns {
		if err := lun.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close LUN %d: %w", id, err)
		}
	}
	m.luns = make(map[uint8]*Lun)
	return firstErr
}
