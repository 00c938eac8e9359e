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

package backingstore

import (
	"fmt"
	"strconv"

	"github.com/gostor/iscsitgt/pkg/scsi"
)

const (
	NullBackingStorage = "null"
	// NullDefaultSize is used when the path does not give a size.
	NullDefaultSize = 1 << 30
)

func init() {
	scsi.RegisterBackingStore(NullBackingStorage, newNull)
}

// NullBackingStore reads zeros and discards writes. The path, if set, is
// the size in bytes.
type NullBackingStore struct {
	scsi.BaseBackingStore
}

func newNull() (scsi.BackingStore, error) {
	return &NullBackingStore{
		BaseBackingStore: scsi.BaseBackingStore{
			Name: NullBackingStorage,
		},
	}, nil
}

func (bs *NullBackingStore) Open(path string, readOnly bool) error {
	bs.DataSize = NullDefaultSize
	if path != "" {
		size, err := strconv.ParseUint(path, 10, 64)
		if err != nil {
			return fmt.Errorf("null store size %q: %v", path, err)
		}
		bs.DataSize = size
	}
	bs.ReadOnly = readOnly
	return nil
}

func (bs *NullBackingStore) Close() error {
	return nil
}

func (bs *NullBackingStore) Read(offset, tl int64) ([]byte, error) {
	return make([]byte, tl), nil
}

func (bs *NullBackingStore) Write(wbuf []byte, offset int64) error {
	return nil
}

func (bs *NullBackingStore) DataSync() error {
	return nil
}
