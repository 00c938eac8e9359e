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

// SCSI block command processing
package scsi

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"github.com/gostor/iscsitgt/pkg/util"
)

func registerSBCOps(ops *[256]CommandFunc) {
	ops[READ_CAPACITY] = SBCReadCapacity
	ops[READ_10] = SBCReadWrite
	ops[WRITE_10] = SBCReadWrite
	ops[VERIFY_10] = SBCVerify
	ops[SYNCHRONIZE_CACHE] = SBCSyncCache
	ops[READ_16] = SBCReadWrite
	ops[WRITE_16] = SBCReadWrite
	ops[VERIFY_16] = SBCVerify
	ops[SYNCHRONIZE_CACHE_16] = SBCSyncCache
	ops[SERVICE_ACTION_IN] = SBCServiceAction
}

// checkTransfer validates the block range of a media access command.
func checkTransfer(lun *Lun, req *Request) (lba uint64, blocks uint32, res *Result) {
	lba, blocks, ok := blockRange(req.CDB)
	if !ok {
		return 0, 0, CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	}
	if uint64(blocks)<<DefaultBlockShift > MaxTransferLength {
		return 0, 0, CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	}
	maxLBA, _ := lun.backend.Capacity()
	if lba+uint64(blocks) < lba || (blocks > 0 && lba+uint64(blocks)-1 > maxLBA) || (blocks == 0 && lba > maxLBA) {
		return 0, 0, CheckCondition(ILLEGAL_REQUEST, ASC_LBA_OUT_OF_RANGE)
	}
	return lba, blocks, nil
}

func SBCReadWrite(lun *Lun, req *Request) *Result {
	op := req.Opcode()
	if op.IsWrite() && lun.ReadOnly {
		return CheckCondition(DATA_PROTECT, ASC_WRITE_PROTECT)
	}
	lba, blocks, res := checkTransfer(lun, req)
	if res != nil {
		return res
	}
	length := int(blocks) << DefaultBlockShift

	if op.IsRead() {
		data, err := lun.backend.Read(lba, blocks)
		if err != nil {
			return storageError(lun, op, err)
		}
		return goodResult(data)
	}

	if len(req.Data) < length {
		log.Warnf("%s on LUN %d: got %d bytes for %d blocks", op, lun.ID, len(req.Data), blocks)
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	}
	if err := lun.backend.Write(lba, req.Data[:length]); err != nil {
		return storageError(lun, op, err)
	}
	// FUA
	if req.CDB[1]&0x08 != 0 {
		if err := lun.backend.Sync(); err != nil {
			return storageError(lun, op, err)
		}
	}
	return goodResult(nil)
}

// SBCVerify only checks the range, BYTCHK is not supported.
func SBCVerify(lun *Lun, req *Request) *Result {
	if req.CDB[1]&0x02 != 0 {
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	}
	if _, _, res := checkTransfer(lun, req); res != nil {
		return res
	}
	return goodResult(nil)
}

func SBCSyncCache(lun *Lun, req *Request) *Result {
	if err := lun.backend.Sync(); err != nil {
		return storageError(lun, req.Opcode(), err)
	}
	return goodResult(nil)
}

func SBCReadCapacity(lun *Lun, req *Request) *Result {
	maxLBA, blockSize := lun.backend.Capacity()
	data := make([]byte, 8)
	if maxLBA > 0xffffffff {
		// initiator must switch to READ CAPACITY(16)
		maxLBA = 0xffffffff
	}
	binary.BigEndian.PutUint32(data[0:4], uint32(maxLBA))
	binary.BigEndian.PutUint32(data[4:8], blockSize)
	return goodResult(data)
}

func SBCReadCapacity16(lun *Lun, req *Request) *Result {
	if len(req.CDB) < 16 {
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	}
	maxLBA, blockSize := lun.backend.Capacity()
	data := make([]byte, 32)
	binary.BigEndian.PutUint64(data[0:8], maxLBA)
	binary.BigEndian.PutUint32(data[8:12], blockSize)
	return goodResult(allocationLength(data, util.GetUnalignedUint32(req.CDB[10:14])))
}

func SBCServiceAction(lun *Lun, req *Request) *Result {
	if len(req.CDB) < 2 {
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	}
	switch req.CDB[1] & 0x1f {
	case SAI_READ_CAPACITY_16:
		return SBCReadCapacity16(lun, req)
	}
	return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
}
