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
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/gostor/iscsitgt/pkg/config"
)

const memStoreSize = 1 << 20

// memStore keeps the medium in memory so these tests do not depend on the
// file store.
type memStore struct {
	BaseBackingStore
	data   []byte
	closed bool
}

func init() {
	RegisterBackingStore("mem", func() (BackingStore, error) {
		return &memStore{BaseBackingStore: BaseBackingStore{Name: "mem"}}, nil
	})
}

func (bs *memStore) Open(path string, readOnly bool) error {
	if path == "missing" {
		return fmt.Errorf("no such image")
	}
	bs.data = make([]byte, memStoreSize)
	bs.DataSize = memStoreSize
	bs.ReadOnly = readOnly
	return nil
}

func (bs *memStore) Close() error {
	bs.closed = true
	return nil
}

func (bs *memStore) Read(offset, tl int64) ([]byte, error) {
	buf := make([]byte, tl)
	copy(buf, bs.data[offset:offset+tl])
	return buf, nil
}

func (bs *memStore) Write(wbuf []byte, offset int64) error {
	copy(bs.data[offset:], wbuf)
	return nil
}

func (bs *memStore) DataSync() error {
	return nil
}

func newTestManager(t *testing.T, luns ...config.LUN) *LunManager {
	t.Helper()
	m := NewLunManager(config.Default())
	for _, l := range luns {
		if l.BackingStore == "" {
			l.BackingStore = "mem"
		}
		if l.Path == "" {
			l.Path = fmt.Sprintf("lun%d", l.ID)
		}
		if _, err := m.Add(l); err != nil {
			t.Fatalf("add LUN %d: %v", l.ID, err)
		}
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func cdb10(op SCSICommandType, lba uint32, blocks uint16) []byte {
	cdb := make([]byte, 10)
	cdb[0] = byte(op)
	binary.BigEndian.PutUint32(cdb[2:6], lba)
	binary.BigEndian.PutUint16(cdb[7:9], blocks)
	return cdb
}

func reportLunsCDB(alloc uint32) []byte {
	cdb := make([]byte, 12)
	cdb[0] = byte(REPORT_LUNS)
	binary.BigEndian.PutUint32(cdb[6:10], alloc)
	return cdb
}

func inquiryCDB(evpd bool, page byte, alloc uint16) []byte {
	cdb := make([]byte, 6)
	cdb[0] = byte(INQUIRY)
	if evpd {
		cdb[1] = 0x01
	}
	cdb[2] = page
	binary.BigEndian.PutUint16(cdb[3:5], alloc)
	return cdb
}

func expectSense(t *testing.T, res *Result, key byte, asc SCSISubError) {
	t.Helper()
	if res.Status != SAM_STAT_CHECK_CONDITION {
		t.Fatalf("expected CHECK CONDITION, got %s", res)
	}
	gotKey, gotASC, ok := ParseSenseData(res.Sense)
	if !ok || gotKey != key || gotASC != asc {
		t.Fatalf("expected sense %s %s, got %s %s", SenseKeyName(key), asc, SenseKeyName(gotKey), gotASC)
	}
}
