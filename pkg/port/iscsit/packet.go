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

// Package iscsit implements the iSCSI PDU packet format as specified in
// rfc7143 section 11, the login and full feature phase state machine of a
// session and the TCP target server.
package iscsit

import (
	"errors"
	"fmt"
	"io"

	"github.com/gostor/iscsitgt/pkg/util"
)

type OpCode int

const (
	// Defined on the initiator.
	OpNoopOut     OpCode = 0x00
	OpSCSICmd     OpCode = 0x01
	OpSCSITaskReq OpCode = 0x02
	OpLoginReq    OpCode = 0x03
	OpTextReq     OpCode = 0x04
	OpSCSIOut     OpCode = 0x05
	OpLogoutReq   OpCode = 0x06
	OpSNACKReq    OpCode = 0x10
	// Defined on the target.
	OpNoopIn       OpCode = 0x20
	OpSCSIResp     OpCode = 0x21
	OpSCSITaskResp OpCode = 0x22
	OpLoginResp    OpCode = 0x23
	OpTextResp     OpCode = 0x24
	OpSCSIIn       OpCode = 0x25
	OpLogoutResp   OpCode = 0x26
	OpReady        OpCode = 0x31
	OpAsync        OpCode = 0x32
	OpReject       OpCode = 0x3f
)

var opCodeMap = map[OpCode]string{
	OpNoopOut:      "NOP-Out",
	OpSCSICmd:      "SCSI Command",
	OpSCSITaskReq:  "SCSI Task Management FunctionRequest",
	OpLoginReq:     "Login Request",
	OpTextReq:      "Text Request",
	OpSCSIOut:      "SCSI Data-Out (write)",
	OpLogoutReq:    "Logout Request",
	OpSNACKReq:     "SNACK Request",
	OpNoopIn:       "NOP-In",
	OpSCSIResp:     "SCSI Response",
	OpSCSITaskResp: "SCSI Task Management Function Response",
	OpLoginResp:    "Login Response",
	OpTextResp:     "Text Response",
	OpSCSIIn:       "SCSI Data-In (read)",
	OpLogoutResp:   "Logout Response",
	OpReady:        "Ready To Transfer (R2T)",
	OpAsync:        "Asynchronous Message",
	OpReject:       "Reject",
}

func (c OpCode) String() string {
	s := opCodeMap[c]
	if s == "" {
		s = fmt.Sprintf("Unknown Code: %x", int(c))
	}
	return s
}

const (
	BHS_SIZE = 48
	// ReservedTag is the all ones task tag meaning "no task".
	ReservedTag uint32 = 0xffffffff

	immediateBit byte = 0x40
	finalBit     byte = 0x80
)

var (
	ErrTruncatedHeader   = errors.New("truncated basic header segment")
	ErrTruncatedData     = errors.New("truncated data segment")
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
)

// DecodeError reports a PDU that cannot be decoded. Reason is one of
// ErrTruncatedHeader, ErrTruncatedData or ErrUnsupportedOpcode.
type DecodeError struct {
	Reason error
	OpCode OpCode
	Length int
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case ErrUnsupportedOpcode:
		return fmt.Sprintf("decode PDU: %v 0x%02x", e.Reason, int(e.OpCode))
	case ErrTruncatedData:
		return fmt.Sprintf("decode %v: %v (%d bytes)", e.OpCode, e.Reason, e.Length)
	}
	return fmt.Sprintf("decode PDU: %v (%d bytes)", e.Reason, e.Length)
}

func (e *DecodeError) Unwrap() error {
	return e.Reason
}

// PDU is one iSCSI protocol data unit. Every opcode has its own struct.
type PDU interface {
	OpCode() OpCode
	// marshal fills the opcode specific fields of bhs and returns the data
	// segment.
	marshal(bhs []byte) []byte
	unmarshal(bhs, data []byte)
}

// Decode parses one PDU. buf holds the basic header, the additional header
// segments and exactly DataSegmentLength bytes of data, without padding.
func Decode(buf []byte) (PDU, error) {
	if len(buf) < BHS_SIZE {
		return nil, &DecodeError{Reason: ErrTruncatedHeader, Length: len(buf)}
	}
	op := OpCode(buf[0] & 0x3f)
	ahsLen := int(buf[4]) * 4
	dataLen := int(util.GetUint24(buf[5:8]))
	if len(buf) < BHS_SIZE+ahsLen+dataLen {
		return nil, &DecodeError{Reason: ErrTruncatedData, OpCode: op, Length: len(buf)}
	}

	var p PDU
	switch op {
	case OpNoopOut:
		p = &NopOut{}
	case OpSCSICmd:
		p = &SCSICommand{}
	case OpSCSITaskReq:
		p = &TaskMgmtRequest{}
	case OpLoginReq:
		p = &LoginRequest{}
	case OpTextReq:
		p = &TextRequest{}
	case OpSCSIOut:
		p = &DataOut{}
	case OpLogoutReq:
		p = &LogoutRequest{}
	case OpNoopIn:
		p = &NopIn{}
	case OpSCSIResp:
		p = &SCSIResponse{}
	case OpSCSITaskResp:
		p = &TaskMgmtResponse{}
	case OpLoginResp:
		p = &LoginResponse{}
	case OpTextResp:
		p = &TextResponse{}
	case OpSCSIIn:
		p = &DataIn{}
	case OpLogoutResp:
		p = &LogoutResponse{}
	case OpReady:
		p = &R2T{}
	case OpReject:
		p = &Reject{}
	default:
		return nil, &DecodeError{Reason: ErrUnsupportedOpcode, OpCode: op, Length: len(buf)}
	}

	var data []byte
	if dataLen > 0 {
		// AHS words are skipped
		data = make([]byte, dataLen)
		copy(data, buf[BHS_SIZE+ahsLen:])
	}
	p.unmarshal(buf[:BHS_SIZE], data)
	return p, nil
}

// Encode serializes p. The data segment is zero padded to a multiple of four
// bytes while the header carries its unpadded length.
func Encode(p PDU) []byte {
	bhs := make([]byte, BHS_SIZE)
	data := p.marshal(bhs)
	bhs[0] = bhs[0]&immediateBit | byte(p.OpCode())
	util.PutUint24(bhs[5:8], uint32(len(data)))
	buf := make([]byte, BHS_SIZE+util.PadLength(len(data)))
	copy(buf, bhs)
	copy(buf[BHS_SIZE:], data)
	return buf
}

// ReadPDU reads one PDU from r, consuming the padding of the data segment.
// A connection closed before or inside a PDU yields io.EOF or
// io.ErrUnexpectedEOF.
func ReadPDU(r io.Reader) (PDU, error) {
	bhs := make([]byte, BHS_SIZE)
	if _, err := io.ReadFull(r, bhs); err != nil {
		return nil, err
	}
	ahsLen := int(bhs[4]) * 4
	dataLen := int(util.GetUint24(bhs[5:8]))
	buf := make([]byte, BHS_SIZE+ahsLen+util.PadLength(dataLen))
	copy(buf, bhs)
	if _, err := io.ReadFull(r, buf[BHS_SIZE:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return Decode(buf[:BHS_SIZE+ahsLen+dataLen])
}

// lunFromBytes converts the eight byte LUN field.
func lunFromBytes(b []byte) uint64 {
	return util.GetUnalignedUint64(b)
}

func putLUN(b []byte, lun uint64) {
	copy(b, util.MarshalUint64(lun))
}

// LUNID extracts the LUN of a single level peripheral or flat space address.
func LUNID(lun uint64) uint8 {
	return uint8(lun >> 48)
}

// LUNField builds the LUN field for id with peripheral device addressing.
func LUNField(id uint8) uint64 {
	return uint64(id) << 48
}

func getUint32(b []byte) uint32 {
	return util.GetUnalignedUint32(b)
}

func putUint32(b []byte, v uint32) {
	copy(b, util.MarshalUint32(v))
}

func getUint16(b []byte) uint16 {
	return util.GetUnalignedUint16(b)
}

func putUint16(b []byte, v uint16) {
	copy(b, util.MarshalUint16(v))
}
