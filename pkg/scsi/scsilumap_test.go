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
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/gostor/iscsitgt/pkg/config"
)

func TestAddDuplicate(t *testing.T) {
	m := newTestManager(t, config.LUN{ID: 1})
	_, err := m.Add(config.LUN{ID: 1, Path: "other", BackingStore: "mem"})
	if !errors.Is(err, ErrDuplicateLun) {
		t.Fatalf("expected ErrDuplicateLun, got %v", err)
	}
	if len(m.cfg.LUNs) != 1 {
		t.Fatalf("configuration has %d entries", len(m.cfg.LUNs))
	}
}

func TestAddDefaultsName(t *testing.T) {
	m := newTestManager(t)
	lun, err := m.Add(config.LUN{ID: 4, Path: "x", BackingStore: "mem"})
	if err != nil {
		t.Fatal(err)
	}
	if lun.Name != "LUN4" || m.cfg.LUNs[0].Name != "LUN4" {
		t.Fatalf("unexpected name %q", lun.Name)
	}
}

func TestAddOpenFailure(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Add(config.LUN{ID: 2, Path: "missing", BackingStore: "mem"}); err == nil {
		t.Fatal("expected open failure")
	}
	if m.GetLun(2) != nil || len(m.cfg.LUNs) != 0 {
		t.Fatal("failed LUN was registered")
	}
	if _, err := m.Add(config.LUN{ID: 3, Path: "x", BackingStore: "nosuch"}); err == nil {
		t.Fatal("expected unknown backing store error")
	}
}

func TestRemoveLun(t *testing.T) {
	m := newTestManager(t, config.LUN{ID: 0}, config.LUN{ID: 1})
	lun := m.GetLun(1)
	if !m.RemoveLun(1) {
		t.Fatal("first remove returned false")
	}
	if m.RemoveLun(1) {
		t.Fatal("second remove returned true")
	}
	if m.GetLun(1) != nil {
		t.Fatal("LUN still visible after removal")
	}
	if lun.acquire() {
		t.Fatal("removed LUN can still be acquired")
	}
	if !reflect.DeepEqual(m.ListConfiguredIDs(), []uint8{0}) {
		t.Fatalf("ids %v", m.ListConfiguredIDs())
	}
	if len(m.cfg.LUNs) != 1 || m.cfg.LUNs[0].ID != 0 {
		t.Fatalf("configuration not mirrored: %+v", m.cfg.LUNs)
	}
	if _, err := lun.Backend().Read(0, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRemoveWaitsForInflight(t *testing.T) {
	m := newTestManager(t, config.LUN{ID: 0})
	lun := m.GetLun(0)
	if !lun.acquire() {
		t.Fatal("acquire failed")
	}

	done := make(chan bool)
	go func() { done <- m.RemoveLun(0) }()

	select {
	case <-done:
		t.Fatal("RemoveLun returned while a command was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	// new lookups already miss
	if m.GetLun(0) != nil {
		t.Fatal("LUN visible while being removed")
	}
	if _, err := lun.Backend().Read(0, 1); err != nil {
		t.Fatalf("in-flight read failed: %v", err)
	}
	lun.release()
	if !<-done {
		t.Fatal("RemoveLun returned false")
	}
}

func TestIsInitiatorAllowed(t *testing.T) {
	m := newTestManager(t,
		config.LUN{ID: 0},
		config.LUN{ID: 1, AllowedInitiators: []string{"iqn.1991-05.com.microsoft:host"}},
	)
	cases := []struct {
		id        uint8
		initiator string
		want      bool
	}{
		{0, "anyone", true},
		{0, "", true},
		{1, "IQN.1991-05.COM.MICROSOFT:HOST", true},
		{1, "iqn.other", false},
		{1, "", false},
		{9, "anyone", false},
	}
	for _, c := range cases {
		if got := m.IsInitiatorAllowed(c.id, c.initiator); got != c.want {
			t.Errorf("IsInitiatorAllowed(%d, %q) = %v, want %v", c.id, c.initiator, got, c.want)
		}
	}
}

func TestLoadFromConfiguration(t *testing.T) {
	cfg := config.Default()
	cfg.LUNs = []config.LUN{
		{ID: 2, Path: "a", BackingStore: "mem"},
		{ID: 0, Path: "b", BackingStore: "mem", Name: "boot"},
		{ID: 5, Path: "missing", BackingStore: "mem"},
	}
	m := NewLunManager(cfg)
	defer m.Close()

	if err := m.LoadFromConfiguration(); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m.ListConfiguredIDs(), []uint8{0, 2}) {
		t.Fatalf("ids %v", m.ListConfiguredIDs())
	}
	old := m.GetLun(2)

	if err := m.LoadFromConfiguration(); err != nil {
		t.Fatal(err)
	}
	if old.acquire() {
		t.Fatal("LUN from previous load still open")
	}
	if m.GetLun(2) == old {
		t.Fatal("reload reused the old LUN")
	}
	infos := m.List()
	if len(infos) != 2 || infos[0].Name != "boot" || infos[1].Name != "LUN2" || infos[1].Size != memStoreSize {
		t.Fatalf("unexpected list %+v", infos)
	}
}

func TestLoadFromConfigurationAllFail(t *testing.T) {
	cfg := config.Default()
	cfg.LUNs = []config.LUN{{ID: 0, Path: "missing", BackingStore: "mem"}}
	m := NewLunManager(cfg)
	if err := m.LoadFromConfiguration(); err == nil {
		t.Fatal("expected error")
	}
}

func TestSaveMirrorsLuns(t *testing.T) {
	m := newTestManager(t, config.LUN{ID: 0}, config.LUN{ID: 1})
	m.RemoveLun(0)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.LUNs) != 1 || cfg.LUNs[0].ID != 1 || cfg.LUNs[0].BackingStore != "mem" {
		t.Fatalf("unexpected LUNs %+v", cfg.LUNs)
	}
}
