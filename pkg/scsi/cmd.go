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

	"github.com/gostor/iscsitgt/pkg/util"
)

// AuthorizeFunc decides whether initiator may address LUN id.
type AuthorizeFunc func(id uint8, initiator string) bool

// Request is one SCSI command addressed to a LUN.
type Request struct {
	LUN uint8
	CDB []byte
	// Data is the write data collected from the initiator.
	Data []byte
	// ExpectedLength is the expected data transfer length of the transport.
	ExpectedLength uint32
	Initiator      string
	Authorize      AuthorizeFunc
}

func (req *Request) Opcode() SCSICommandType {
	if len(req.CDB) == 0 {
		return TEST_UNIT_READY
	}
	return SCSICommandType(req.CDB[0])
}

// Result is the outcome of a command: a SAM status, the data for the
// initiator and, on CHECK CONDITION, the sense data.
type Result struct {
	Status   byte
	Data     []byte
	SenseKey byte
	ASC      SCSISubError
	Sense    []byte
}

func (r *Result) Good() bool {
	return r.Status == SAM_STAT_GOOD
}

func (r *Result) String() string {
	if r.Good() {
		return fmt.Sprintf("GOOD, %d bytes", len(r.Data))
	}
	return fmt.Sprintf("CHECK CONDITION, %s %s", SenseKeyName(r.SenseKey), r.ASC)
}

func goodResult(data []byte) *Result {
	return &Result{Status: SAM_STAT_GOOD, Data: data}
}

// CheckCondition builds a CHECK CONDITION result carrying fixed format sense.
func CheckCondition(key byte, asc SCSISubError) *Result {
	return &Result{
		Status:   SAM_STAT_CHECK_CONDITION,
		SenseKey: key,
		ASC:      asc,
		Sense:    BuildSenseData(key, asc),
	}
}

const (
	CBD_GROUPID_0 = iota
	CBD_GROUPID_1
	CBD_GROUPID_2
	CBD_GROUPID_3
	CBD_GROUPID_4
	CBD_GROUPID_5
)

// CDB lengths per group
var cdbGroupLength = [8]int{6, 10, 10, 0, 16, 12, 0, 0}

func SCSICDBGroupID(opcode byte) byte {
	return (opcode >> 5) & 0x7
}

// SCSICDBLength returns the CDB size for opcode, 0 when the group is
// reserved or vendor specific.
func SCSICDBLength(opcode byte) int {
	return cdbGroupLength[SCSICDBGroupID(opcode)]
}

// blockRange decodes the LBA and transfer length of READ/WRITE/VERIFY 10 and 16.
func blockRange(cdb []byte) (lba uint64, blocks uint32, ok bool) {
	switch SCSICDBGroupID(cdb[0]) {
	case CBD_GROUPID_1:
		if len(cdb) < 10 {
			return 0, 0, false
		}
		return uint64(util.GetUnalignedUint32(cdb[2:6])), uint32(util.GetUnalignedUint16(cdb[7:9])), true
	case CBD_GROUPID_4:
		if len(cdb) < 16 {
			return 0, 0, false
		}
		return util.GetUnalignedUint64(cdb[2:10]), util.GetUnalignedUint32(cdb[10:14]), true
	}
	return 0, 0, false
}

// allocationLength truncates data to the allocation length carried in the CDB.
func allocationLength(data []byte, alloc uint32) []byte {
	if uint32(len(data)) > alloc {
		return data[:alloc]
	}
	return data
}
