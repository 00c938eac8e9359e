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

// Package backingstore registers the backing stores a LUN can be opened with.
package backingstore

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/gostor/iscsitgt/pkg/scsi"
)

const (
	FileBackingStorage = "file"
)

func init() {
	scsi.RegisterBackingStore(FileBackingStorage, new)
}

// FileBackingStore serves a raw image file or block device.
type FileBackingStore struct {
	scsi.BaseBackingStore
	file *os.File
}

func new() (scsi.BackingStore, error) {
	return &FileBackingStore{
		BaseBackingStore: scsi.BaseBackingStore{
			Name: FileBackingStorage,
		},
	}, nil
}

func (bs *FileBackingStore) Open(path string, readOnly bool) error {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return err
	}
	// Seek works for block devices where Stat reports a zero size.
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return err
	}
	bs.DataSize = uint64(size)
	bs.ReadOnly = readOnly
	bs.file = f
	return nil
}

func (bs *FileBackingStore) Close() error {
	if bs.file == nil {
		return nil
	}
	err := bs.file.Close()
	bs.file = nil
	return err
}

func (bs *FileBackingStore) Read(offset, tl int64) ([]byte, error) {
	if bs.file == nil {
		return nil, fmt.Errorf("Backend store is nil")
	}
	tmpbuf := make([]byte, tl)
	length, err := bs.file.ReadAt(tmpbuf, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if length != len(tmpbuf) {
		return nil, fmt.Errorf("short read at %d: %d of %d bytes", offset, length, tl)
	}
	return tmpbuf, nil
}

func (bs *FileBackingStore) Write(wbuf []byte, offset int64) error {
	if bs.file == nil {
		return fmt.Errorf("Backend store is nil")
	}
	length, err := bs.file.WriteAt(wbuf, offset)
	if err != nil {
		log.Error(err)
		return err
	}
	if length != len(wbuf) {
		return fmt.Errorf("short write at %d: %d of %d bytes", offset, length, len(wbuf))
	}
	return nil
}

func (bs *FileBackingStore) DataSync() error {
	if bs.file == nil {
		return fmt.Errorf("Backend store is nil")
	}
	return bs.file.Sync()
}
