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
	"strings"
	"sync"

	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gostor/iscsitgt/pkg/util"
)

const (
	inquiryLength = 36

	VendorID   = "GOSTOR"
	ProductID  = "iSCSI Target"
	ProductRev = "1.0"
)

// StorageBackend is a block device over one backing store. Capacity is
// fixed at open time and every medium access is serialized by mu.
type StorageBackend struct {
	mu       sync.Mutex
	store    BackingStore
	kind     string
	path     string
	capacity uint64
	readOnly bool
	closed   bool
	serial   string
}

// OpenStorageBackend opens path with the backing store registered as storeType.
func OpenStorageBackend(storeType, path string, readOnly bool) (*StorageBackend, error) {
	if storeType == "" {
		storeType = DefaultBackingStore
	}
	store, err := NewBackingStore(storeType)
	if err != nil {
		return nil, err
	}
	if err := store.Open(path, readOnly); err != nil {
		return nil, fmt.Errorf("open %s store %s: %w", storeType, path, err)
	}
	id := uuid.NewV5(uuid.NamespaceURL, storeType+":"+path)
	sb := &StorageBackend{
		store:    store,
		kind:     storeType,
		path:     path,
		capacity: store.Size(),
		readOnly: readOnly,
		serial:   strings.ToUpper(strings.Replace(id.String(), "-", "", -1)[:16]),
	}
	log.Debugf("opened %s backing store %s, %d bytes", storeType, path, sb.capacity)
	return sb, nil
}

func (sb *StorageBackend) Path() string {
	return sb.path
}

func (sb *StorageBackend) Type() string {
	return sb.kind
}

func (sb *StorageBackend) ReadOnly() bool {
	return sb.readOnly
}

// Serial is the unit serial number reported in VPD page 0x80.
func (sb *StorageBackend) Serial() string {
	return sb.serial
}

// CapacityBytes is the medium size in bytes.
func (sb *StorageBackend) CapacityBytes() uint64 {
	return sb.capacity
}

// Capacity returns the last addressable LBA and the block size.
func (sb *StorageBackend) Capacity() (maxLBA uint64, blockSize uint32) {
	blocks := sb.capacity >> DefaultBlockShift
	if blocks == 0 {
		return 0, DefaultBlockSize
	}
	return blocks - 1, DefaultBlockSize
}

func (sb *StorageBackend) inRange(lba, blocks uint64) bool {
	end := lba + blocks
	if end < lba || end > sb.capacity>>DefaultBlockShift {
		return false
	}
	return true
}

// Read returns blocks blocks starting at lba.
func (sb *StorageBackend) Read(lba uint64, blocks uint32) ([]byte, error) {
	if !sb.inRange(lba, uint64(blocks)) {
		return nil, ErrOutOfRange
	}
	if blocks == 0 {
		return []byte{}, nil
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		return nil, ErrClosed
	}
	return sb.store.Read(int64(lba<<DefaultBlockShift), int64(blocks)<<DefaultBlockShift)
}

// Write stores data, a whole number of blocks, starting at lba.
func (sb *StorageBackend) Write(lba uint64, data []byte) error {
	if len(data)%DefaultBlockSize != 0 {
		return ErrInvalidLength
	}
	if !sb.inRange(lba, uint64(len(data)>>DefaultBlockShift)) {
		return ErrOutOfRange
	}
	if sb.readOnly {
		return ErrReadOnly
	}
	if len(data) == 0 {
		return nil
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		return ErrClosed
	}
	return sb.store.Write(data, int64(lba<<DefaultBlockShift))
}

func (sb *StorageBackend) Sync() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		return ErrClosed
	}
	if sb.readOnly {
		return nil
	}
	return sb.store.DataSync()
}

// TestUnitReady reports whether the medium is usable.
func (sb *StorageBackend) TestUnitReady() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		return ErrClosed
	}
	return nil
}

// InquiryData returns the standard INQUIRY data for a direct access block device.
func (sb *StorageBackend) InquiryData() []byte {
	data := make([]byte, inquiryLength)
	data[0] = byte(TYPE_DISK)
	data[1] = 0x80
	// SPC-3
	data[2] = 0x05
	// response data format 2, HiSup
	data[3] = 0x12
	data[4] = inquiryLength - 5
	// CmdQue
	data[7] = 0x02
	copy(data[8:16], util.StringToByte(VendorID, 8, ' '))
	copy(data[16:32], util.StringToByte(ProductID, 16, ' '))
	copy(data[32:36], util.StringToByte(ProductRev, 4, ' '))
	return data
}

// Close releases the backing store. Later accesses fail with ErrClosed.
func (sb *StorageBackend) Close() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		return nil
	}
	sb.closed = true
	return sb.store.Close()
}
