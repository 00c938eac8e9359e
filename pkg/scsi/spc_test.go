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

// SCSI primary command processing test
package scsi

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/gostor/iscsitgt/pkg/config"
)

// Test REPORT LUNS filtering through the authorization predicate
func TestSPCReportLuns(t *testing.T) {
	m := newTestManager(t, config.LUN{ID: 0}, config.LUN{ID: 1}, config.LUN{ID: 2})
	p := NewProcessor(m)
	allowed := func(id uint8, initiator string) bool { return id != 1 }

	res := p.Execute(&Request{LUN: 5, CDB: reportLunsCDB(4096), Initiator: "iqn.x", Authorize: allowed})
	if !res.Good() {
		t.Fatalf("expected GOOD, got %s", res)
	}
	if n := binary.BigEndian.Uint32(res.Data[0:4]); n != 16 {
		t.Fatalf("expected LUN list length 16, got %d", n)
	}
	if len(res.Data) != 24 {
		t.Fatalf("expected 24 bytes, got %d", len(res.Data))
	}
	if !bytes.Equal(res.Data[4:8], make([]byte, 4)) {
		t.Errorf("reserved bytes not zero: %x", res.Data[4:8])
	}
	for i, want := range []byte{0, 2} {
		entry := res.Data[8+8*i : 16+8*i]
		expect := make([]byte, 8)
		expect[1] = want
		if !bytes.Equal(entry, expect) {
			t.Errorf("entry %d = %x, want %x", i, entry, expect)
		}
	}

	res = p.Execute(&Request{CDB: reportLunsCDB(10), Authorize: allowed})
	expectSense(t, res, ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
}

func TestSPCReportLunsDefaultAuthorization(t *testing.T) {
	m := newTestManager(t,
		config.LUN{ID: 3},
		config.LUN{ID: 4, AllowedInitiators: []string{"iqn.a"}},
	)
	p := NewProcessor(m)
	res := p.Execute(&Request{CDB: reportLunsCDB(64), Initiator: "iqn.b"})
	if !res.Good() || binary.BigEndian.Uint32(res.Data[0:4]) != 8 || res.Data[9] != 3 {
		t.Fatalf("unexpected REPORT LUNS data %x", res.Data)
	}
}

func TestSPCInquiry(t *testing.T) {
	m := newTestManager(t, config.LUN{ID: 0})
	p := NewProcessor(m)

	cases := map[string]struct {
		cdb    []byte
		length int
		check  func(t *testing.T, data []byte)
	}{
		"standard": {
			cdb:    inquiryCDB(false, 0, 255),
			length: 36,
			check: func(t *testing.T, data []byte) {
				if data[0] != 0x00 || data[4] != 31 {
					t.Errorf("bad header %x", data[:5])
				}
				if !strings.HasPrefix(string(data[8:16]), VendorID) {
					t.Errorf("vendor %q", data[8:16])
				}
			},
		},
		"truncated by allocation length": {
			cdb:    inquiryCDB(false, 0, 8),
			length: 8,
		},
		"supported pages": {
			cdb:    inquiryCDB(true, VPD_SUPPORTED_PAGES, 255),
			length: 7,
			check: func(t *testing.T, data []byte) {
				if !bytes.Equal(data[4:], []byte{0x00, 0x80, 0x83}) {
					t.Errorf("pages %x", data[4:])
				}
			},
		},
		"unit serial": {
			cdb:    inquiryCDB(true, VPD_UNIT_SERIAL, 255),
			length: 20,
		},
		"device identification": {
			cdb:    inquiryCDB(true, VPD_DEVICE_ID, 255),
			length: 32,
			check: func(t *testing.T, data []byte) {
				if data[4] != INQ_CODE_ASCII || data[5] != DESG_T10 || data[7] != 24 {
					t.Errorf("designator header %x", data[4:8])
				}
			},
		},
	}
	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			res := p.Execute(&Request{CDB: tt.cdb})
			if !res.Good() {
				t.Fatalf("expected GOOD, got %s", res)
			}
			if len(res.Data) != tt.length {
				t.Fatalf("expected %d bytes, got %d", tt.length, len(res.Data))
			}
			if tt.check != nil {
				tt.check(t, res.Data)
			}
		})
	}

	res := p.Execute(&Request{CDB: inquiryCDB(true, 0xb0, 255)})
	expectSense(t, res, ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
}

func TestSPCTestUnit(t *testing.T) {
	m := newTestManager(t, config.LUN{ID: 0})
	p := NewProcessor(m)
	if res := p.Execute(&Request{CDB: make([]byte, 6)}); !res.Good() {
		t.Fatalf("expected GOOD, got %s", res)
	}
	res := p.Execute(&Request{LUN: 9, CDB: make([]byte, 6)})
	expectSense(t, res, ILLEGAL_REQUEST, ASC_LUN_NOT_SUPPORTED)

	// backend readiness is not rechecked once the LUN resolved
	lun := m.GetLun(0)
	lun.backend.Close()
	if res := SPCTestUnit(lun, &Request{CDB: make([]byte, 6)}); !res.Good() {
		t.Fatalf("expected GOOD, got %s", res)
	}
	if info := m.List(); len(info) != 1 || info[0].Ready {
		t.Fatalf("closed backend still listed as ready: %+v", info)
	}
}

func TestSPCModeSense(t *testing.T) {
	m := newTestManager(t, config.LUN{ID: 0}, config.LUN{ID: 1, ReadOnly: true})
	p := NewProcessor(m)
	cdb := []byte{byte(MODE_SENSE), 0, 0x3f, 0, 255, 0}

	res := p.Execute(&Request{LUN: 0, CDB: cdb})
	if !res.Good() || len(res.Data) != 24 || res.Data[2] != 0 {
		t.Fatalf("unexpected MODE SENSE data %x", res.Data)
	}
	res = p.Execute(&Request{LUN: 1, CDB: cdb})
	if !res.Good() || res.Data[2]&0x80 == 0 {
		t.Fatalf("write protect bit not set: %x", res.Data)
	}
}

func TestSPCStartStop(t *testing.T) {
	m := newTestManager(t, config.LUN{ID: 0})
	p := NewProcessor(m)
	for _, op := range []SCSICommandType{START_STOP, ALLOW_MEDIUM_REMOVAL} {
		if res := p.Execute(&Request{CDB: []byte{byte(op), 0, 0, 0, 0, 0}}); !res.Good() {
			t.Errorf("%s: expected GOOD, got %s", op, res)
		}
	}
}
