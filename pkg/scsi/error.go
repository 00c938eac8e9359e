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
	"fmt"
)

var (
	// ErrDuplicateLun is returned when a LUN id is already in use.
	ErrDuplicateLun = errors.New("duplicate LUN id")
	// ErrOutOfRange is returned for accesses past the end of a backend.
	ErrOutOfRange = errors.New("access out of range")
	// ErrInvalidLength is returned for writes that are not a whole number of blocks.
	ErrInvalidLength = errors.New("length is not a multiple of the block size")
	ErrReadOnly      = errors.New("backend is read-only")
	ErrClosed        = errors.New("backend is closed")
)

// Sense keys
const (
	NO_SENSE        byte = 0x00
	RECOVERED_ERROR byte = 0x01
	NOT_READY       byte = 0x02
	MEDIUM_ERROR    byte = 0x03
	HARDWARE_ERROR  byte = 0x04
	ILLEGAL_REQUEST byte = 0x05
	UNIT_ATTENTION  byte = 0x06
	DATA_PROTECT    byte = 0x07
	ABORTED_COMMAND byte = 0x0b
)

// SCSISubError packs the additional sense code in the high byte and the
// qualifier in the low byte.
type SCSISubError uint16

const (
	NO_ADDITIONAL_SENSE SCSISubError = 0x0000

	ASC_WRITE_ERROR SCSISubError = 0x0c00
	ASC_READ_ERROR  SCSISubError = 0x1100

	ASC_MEDIUM_NOT_PRESENT SCSISubError = 0x3a00

	ASC_INTERNAL_TGT_FAILURE SCSISubError = 0x4400

	ASC_PARAMETER_LIST_LENGTH_ERR SCSISubError = 0x1a00
	ASC_INVALID_OP_CODE           SCSISubError = 0x2000
	ASC_LBA_OUT_OF_RANGE          SCSISubError = 0x2100
	ASC_INVALID_FIELD_IN_CDB      SCSISubError = 0x2400
	ASC_LUN_NOT_SUPPORTED         SCSISubError = 0x2500

	ASC_POWERON_RESET SCSISubError = 0x2900

	ASC_WRITE_PROTECT SCSISubError = 0x2700
)

func (asc SCSISubError) ASC() byte {
	return byte(asc >> 8)
}

func (asc SCSISubError) ASCQ() byte {
	return byte(asc)
}

func (asc SCSISubError) String() string {
	return fmt.Sprintf("0x%02x/0x%02x", asc.ASC(), asc.ASCQ())
}

// SenseKeyName returns a readable name for a sense key.
func SenseKeyName(key byte) string {
	switch key {
	case NO_SENSE:
		return "no sense"
	case RECOVERED_ERROR:
		return "recovered error"
	case NOT_READY:
		return "not ready"
	case MEDIUM_ERROR:
		return "medium error"
	case HARDWARE_ERROR:
		return "hardware error"
	case ILLEGAL_REQUEST:
		return "illegal request"
	case UNIT_ATTENTION:
		return "unit attention"
	case DATA_PROTECT:
		return "data protect"
	case ABORTED_COMMAND:
		return "aborted command"
	}
	return fmt.Sprintf("sense key 0x%02x", key)
}

const fixedSenseLength = 18

// BuildSenseData returns fixed format sense data, current error.
func BuildSenseData(key byte, asc SCSISubError) []byte {
	sense := make([]byte, fixedSenseLength)
	sense[0] = 0x70
	sense[2] = key & 0x0f
	// additional sense length
	sense[7] = fixedSenseLength - 8
	sense[12] = asc.ASC()
	sense[13] = asc.ASCQ()
	return sense
}

// ParseSenseData extracts the sense key and code from fixed or descriptor
// format sense data.
func ParseSenseData(sense []byte) (key byte, asc SCSISubError, ok bool) {
	if len(sense) < 4 {
		return 0, 0, false
	}
	switch sense[0] & 0x7f {
	case 0x70, 0x71:
		if len(sense) < 14 {
			return 0, 0, false
		}
		return sense[2] & 0x0f, SCSISubError(uint16(sense[12])<<8 | uint16(sense[13])), true
	case 0x72, 0x73:
		return sense[1] & 0x0f, SCSISubError(uint16(sense[2])<<8 | uint16(sense[3])), true
	}
	return 0, 0, false
}
