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

package backingstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gostor/iscsitgt/pkg/scsi"
)

func newImage(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return path
}

func TestFileBackingStore(t *testing.T) {
	path := newImage(t, 64*1024)
	sb, err := scsi.OpenStorageBackend(FileBackingStorage, path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer sb.Close()

	maxLBA, blockSize := sb.Capacity()
	if maxLBA != 127 || blockSize != 512 {
		t.Fatalf("capacity = (%d, %d), want (127, 512)", maxLBA, blockSize)
	}

	data := bytes.Repeat([]byte("gostor!!"), 128)
	if err := sb.Write(126, data); err != nil {
		t.Fatal(err)
	}
	got, err := sb.Read(126, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read back mismatch")
	}
	if err := sb.Sync(); err != nil {
		t.Fatal(err)
	}

	cases := map[string]struct {
		err error
		do  func() error
	}{
		"read past end": {
			err: scsi.ErrOutOfRange,
			do:  func() error { _, err := sb.Read(127, 2); return err },
		},
		"read overflow": {
			err: scsi.ErrOutOfRange,
			do:  func() error { _, err := sb.Read(^uint64(0), 2); return err },
		},
		"write past end": {
			err: scsi.ErrOutOfRange,
			do:  func() error { return sb.Write(128, make([]byte, 512)) },
		},
		"partial block": {
			err: scsi.ErrInvalidLength,
			do:  func() error { return sb.Write(0, make([]byte, 100)) },
		},
	}
	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			if err := tt.do(); !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
		})
	}

	inq := sb.InquiryData()
	if len(inq) != 36 || inq[0] != 0x00 {
		t.Fatalf("unexpected inquiry data %x", inq)
	}
}

func TestFileBackingStoreReadOnly(t *testing.T) {
	path := newImage(t, 4096)
	sb, err := scsi.OpenStorageBackend(FileBackingStorage, path, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := sb.Write(0, make([]byte, 512)); !errors.Is(err, scsi.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if _, err := sb.Read(0, 8); err != nil {
		t.Fatal(err)
	}
	if err := sb.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := sb.Read(0, 1); !errors.Is(err, scsi.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := sb.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestFileBackingStoreMissing(t *testing.T) {
	if _, err := scsi.OpenStorageBackend(FileBackingStorage, filepath.Join(t.TempDir(), "nope"), false); err == nil {
		t.Fatal("expected error")
	}
}

// Concurrent writers of distinct patterns must never leave a mixed region.
func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	const blocks = 64
	path := newImage(t, blocks*512)
	sb, err := scsi.OpenStorageBackend(FileBackingStorage, path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer sb.Close()

	patterns := [][]byte{
		bytes.Repeat([]byte{0xaa}, blocks*512),
		bytes.Repeat([]byte{0x55}, blocks*512),
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for _, p := range patterns {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := sb.Write(0, p); err != nil {
					errs <- err
					return
				}
			}
		}(p)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			got, err := sb.Read(0, blocks)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(got, patterns[0]) && !bytes.Equal(got, patterns[1]) && !bytes.Equal(got, make([]byte, len(got))) {
				errs <- errors.New("observed interleaved write")
				return
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestNullBackingStore(t *testing.T) {
	sb, err := scsi.OpenStorageBackend(NullBackingStorage, "1048576", false)
	if err != nil {
		t.Fatal(err)
	}
	defer sb.Close()
	if maxLBA, _ := sb.Capacity(); maxLBA != 2047 {
		t.Fatalf("max LBA %d", maxLBA)
	}
	if err := sb.Write(0, bytes.Repeat([]byte{1}, 512)); err != nil {
		t.Fatal(err)
	}
	got, err := sb.Read(0, 1)
	if err != nil || !bytes.Equal(got, make([]byte, 512)) {
		t.Fatalf("null read = %x, %v", got, err)
	}
	if _, err := scsi.OpenStorageBackend(NullBackingStorage, "big", false); err == nil {
		t.Fatal("expected bad size error")
	}
}

func TestRegistered(t *testing.T) {
	names := scsi.BackingStores()
	for _, want := range []string{FileBackingStorage, NullBackingStorage, Qcow2BackingStorage} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("%s not registered in %v", want, names)
		}
	}
}
