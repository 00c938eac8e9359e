/*
Copyright 2015 The GoStor Authors All rights reserved.

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

// Package scsi implements the SCSI block command set on top of LUNs backed
// by pluggable backing stores.
package scsi

import "fmt"

const (
	DefaultBlockShift = 9
	DefaultBlockSize  = 1 << DefaultBlockShift
	// MaxTransferLength bounds a single READ or WRITE.
	MaxTransferLength = 32 << 20
)

// SAM status codes
const (
	SAM_STAT_GOOD                 byte = 0x00
	SAM_STAT_CHECK_CONDITION      byte = 0x02
	SAM_STAT_BUSY                 byte = 0x08
	SAM_STAT_RESERVATION_CONFLICT byte = 0x18
	SAM_STAT_TASK_SET_FULL        byte = 0x28
	SAM_STAT_TASK_ABORTED         byte = 0x40
)

type SCSIDeviceType byte

const (
	TYPE_DISK   SCSIDeviceType = 0x00
	TYPE_NO_LUN SCSIDeviceType = 0x7f
)

type SCSICommandType byte

const (
	TEST_UNIT_READY      SCSICommandType = 0x00
	REQUEST_SENSE        SCSICommandType = 0x03
	INQUIRY              SCSICommandType = 0x12
	MODE_SENSE           SCSICommandType = 0x1a
	START_STOP           SCSICommandType = 0x1b
	ALLOW_MEDIUM_REMOVAL SCSICommandType = 0x1e
	READ_CAPACITY        SCSICommandType = 0x25
	READ_10              SCSICommandType = 0x28
	WRITE_10             SCSICommandType = 0x2a
	VERIFY_10            SCSICommandType = 0x2f
	SYNCHRONIZE_CACHE    SCSICommandType = 0x35
	READ_16              SCSICommandType = 0x88
	WRITE_16             SCSICommandType = 0x8a
	VERIFY_16            SCSICommandType = 0x8f
	SYNCHRONIZE_CACHE_16 SCSICommandType = 0x91
	SERVICE_ACTION_IN    SCSICommandType = 0x9e
	REPORT_LUNS          SCSICommandType = 0xa0

	SAI_READ_CAPACITY_16 byte = 0x10
)

var commandNames = map[SCSICommandType]string{
	TEST_UNIT_READY:      "TEST UNIT READY",
	REQUEST_SENSE:        "REQUEST SENSE",
	INQUIRY:              "INQUIRY",
	MODE_SENSE:           "MODE SENSE(6)",
	START_STOP:           "START STOP UNIT",
	ALLOW_MEDIUM_REMOVAL: "PREVENT ALLOW MEDIUM REMOVAL",
	READ_CAPACITY:        "READ CAPACITY(10)",
	READ_10:              "READ(10)",
	WRITE_10:             "WRITE(10)",
	VERIFY_10:            "VERIFY(10)",
	SYNCHRONIZE_CACHE:    "SYNCHRONIZE CACHE(10)",
	READ_16:              "READ(16)",
	WRITE_16:             "WRITE(16)",
	VERIFY_16:            "VERIFY(16)",
	SYNCHRONIZE_CACHE_16: "SYNCHRONIZE CACHE(16)",
	SERVICE_ACTION_IN:    "SERVICE ACTION IN(16)",
	REPORT_LUNS:          "REPORT LUNS",
}

func (op SCSICommandType) String() string {
	if s, ok := commandNames[op]; ok {
		return s
	}
	return fmt.Sprintf("opcode 0x%02x", byte(op))
}

// IsWrite reports whether the command carries data from the initiator.
func (op SCSICommandType) IsWrite() bool {
	return op == WRITE_10 || op == WRITE_16
}

// IsRead reports whether the command moves media data to the initiator.
func (op SCSICommandType) IsRead() bool {
	return op == READ_10 || op == READ_16
}
