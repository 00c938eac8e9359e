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

package iscsit

import (
	"fmt"
)

const (
	cmdReadBit  byte = 0x40
	cmdWriteBit byte = 0x20
	cmdAttrMask byte = 0x07

	// SCSI Response and Data-In residual flags
	residualOverflowBit  byte = 0x04
	residualUnderflowBit byte = 0x02
	dataInStatusBit      byte = 0x01
	dataInAckBit         byte = 0x40

	// iSCSI response codes of the SCSI Response PDU
	ISCSI_RSP_COMPLETED      byte = 0x00
	ISCSI_RSP_TARGET_FAILURE byte = 0x01
)

type SCSICommand struct {
	Immediate bool
	Final     bool
	Read      bool
	Write     bool
	Attr      byte
	LUN       uint64
	ITT       uint32
	// ExpectedDataLength is the expected data transfer length.
	ExpectedDataLength uint32
	CmdSN              uint32
	ExpStatSN          uint32
	CDB                []byte
	Data               []byte
}

func (m *SCSICommand) OpCode() OpCode { return OpSCSICmd }

func (m *SCSICommand) String() string {
	return fmt.Sprintf("SCSI Command: LUN=%d ITT=%#x CmdSN=%d EDTL=%d R=%v W=%v CDB=%x",
		LUNID(m.LUN), m.ITT, m.CmdSN, m.ExpectedDataLength, m.Read, m.Write, m.CDB)
}

func (m *SCSICommand) marshal(bhs []byte) []byte {
	if m.Immediate {
		bhs[0] = immediateBit
	}
	b := m.Attr & cmdAttrMask
	if m.Final {
		b |= finalBit
	}
	if m.Read {
		b |= cmdReadBit
	}
	if m.Write {
		b |= cmdWriteBit
	}
	bhs[1] = b
	putLUN(bhs[8:16], m.LUN)
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[20:24], m.ExpectedDataLength)
	putUint32(bhs[24:28], m.CmdSN)
	putUint32(bhs[28:32], m.ExpStatSN)
	copy(bhs[32:48], m.CDB)
	return m.Data
}

func (m *SCSICommand) unmarshal(bhs, data []byte) {
	m.Immediate = bhs[0]&immediateBit != 0
	m.Final = bhs[1]&finalBit != 0
	m.Read = bhs[1]&cmdReadBit != 0
	m.Write = bhs[1]&cmdWriteBit != 0
	m.Attr = bhs[1] & cmdAttrMask
	m.LUN = lunFromBytes(bhs[8:16])
	m.ITT = getUint32(bhs[16:20])
	m.ExpectedDataLength = getUint32(bhs[20:24])
	m.CmdSN = getUint32(bhs[24:28])
	m.ExpStatSN = getUint32(bhs[28:32])
	m.CDB = make([]byte, 16)
	copy(m.CDB, bhs[32:48])
	m.Data = data
}

// SCSIResponse ends a command. Sense data travels in the data segment
// behind a two byte length.
type SCSIResponse struct {
	Overflow      bool
	Underflow     bool
	Response      byte
	Status        byte
	ITT           uint32
	StatSN        uint32
	ExpCmdSN      uint32
	MaxCmdSN      uint32
	ExpDataSN     uint32
	ResidualCount uint32
	SenseData     []byte
}

func (m *SCSIResponse) OpCode() OpCode { return OpSCSIResp }

func (m *SCSIResponse) marshal(bhs []byte) []byte {
	bhs[1] = finalBit | residualFlags(m.Overflow, m.Underflow)
	bhs[2] = m.Response
	bhs[3] = m.Status
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[24:28], m.StatSN)
	putUint32(bhs[28:32], m.ExpCmdSN)
	putUint32(bhs[32:36], m.MaxCmdSN)
	putUint32(bhs[36:40], m.ExpDataSN)
	putUint32(bhs[44:48], m.ResidualCount)
	if len(m.SenseData) == 0 {
		return nil
	}
	data := make([]byte, 2+len(m.SenseData))
	putUint16(data, uint16(len(m.SenseData)))
	copy(data[2:], m.SenseData)
	return data
}

func (m *SCSIResponse) unmarshal(bhs, data []byte) {
	m.Overflow = bhs[1]&residualOverflowBit != 0
	m.Underflow = bhs[1]&residualUnderflowBit != 0
	m.Response = bhs[2]
	m.Status = bhs[3]
	m.ITT = getUint32(bhs[16:20])
	m.StatSN = getUint32(bhs[24:28])
	m.ExpCmdSN = getUint32(bhs[28:32])
	m.MaxCmdSN = getUint32(bhs[32:36])
	m.ExpDataSN = getUint32(bhs[36:40])
	m.ResidualCount = getUint32(bhs[44:48])
	if len(data) >= 2 {
		n := int(getUint16(data))
		if n > len(data)-2 {
			n = len(data) - 2
		}
		if n > 0 {
			m.SenseData = data[2 : 2+n]
		}
	}
}

type DataOut struct {
	Final        bool
	LUN          uint64
	ITT          uint32
	TTT          uint32
	ExpStatSN    uint32
	DataSN       uint32
	BufferOffset uint32
	Data         []byte
}

func (m *DataOut) OpCode() OpCode { return OpSCSIOut }

func (m *DataOut) marshal(bhs []byte) []byte {
	if m.Final {
		bhs[1] = finalBit
	}
	putLUN(bhs[8:16], m.LUN)
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[20:24], m.TTT)
	putUint32(bhs[28:32], m.ExpStatSN)
	putUint32(bhs[36:40], m.DataSN)
	putUint32(bhs[40:44], m.BufferOffset)
	return m.Data
}

func (m *DataOut) unmarshal(bhs, data []byte) {
	m.Final = bhs[1]&finalBit != 0
	m.LUN = lunFromBytes(bhs[8:16])
	m.ITT = getUint32(bhs[16:20])
	m.TTT = getUint32(bhs[20:24])
	m.ExpStatSN = getUint32(bhs[28:32])
	m.DataSN = getUint32(bhs[36:40])
	m.BufferOffset = getUint32(bhs[40:44])
	m.Data = data
}

// DataIn carries read data. With HasStatus set it also ends the command and
// no SCSI Response follows.
type DataIn struct {
	Final         bool
	Acknowledge   bool
	Overflow      bool
	Underflow     bool
	HasStatus     bool
	Status        byte
	LUN           uint64
	ITT           uint32
	TTT           uint32
	StatSN        uint32
	ExpCmdSN      uint32
	MaxCmdSN      uint32
	DataSN        uint32
	BufferOffset  uint32
	ResidualCount uint32
	Data          []byte
}

func (m *DataIn) OpCode() OpCode { return OpSCSIIn }

func (m *DataIn) marshal(bhs []byte) []byte {
	b := residualFlags(m.Overflow, m.Underflow)
	if m.Final {
		b |= finalBit
	}
	if m.Acknowledge {
		b |= dataInAckBit
	}
	if m.HasStatus {
		b |= dataInStatusBit
		bhs[3] = m.Status
	}
	bhs[1] = b
	putLUN(bhs[8:16], m.LUN)
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[20:24], m.TTT)
	putUint32(bhs[24:28], m.StatSN)
	putUint32(bhs[28:32], m.ExpCmdSN)
	putUint32(bhs[32:36], m.MaxCmdSN)
	putUint32(bhs[36:40], m.DataSN)
	putUint32(bhs[40:44], m.BufferOffset)
	putUint32(bhs[44:48], m.ResidualCount)
	return m.Data
}

func (m *DataIn) unmarshal(bhs, data []byte) {
	m.Final = bhs[1]&finalBit != 0
	m.Acknowledge = bhs[1]&dataInAckBit != 0
	m.Overflow = bhs[1]&residualOverflowBit != 0
	m.Underflow = bhs[1]&residualUnderflowBit != 0
	m.HasStatus = bhs[1]&dataInStatusBit != 0
	if m.HasStatus {
		m.Status = bhs[3]
	}
	m.LUN = lunFromBytes(bhs[8:16])
	m.ITT = getUint32(bhs[16:20])
	m.TTT = getUint32(bhs[20:24])
	m.StatSN = getUint32(bhs[24:28])
	m.ExpCmdSN = getUint32(bhs[28:32])
	m.MaxCmdSN = getUint32(bhs[32:36])
	m.DataSN = getUint32(bhs[36:40])
	m.BufferOffset = getUint32(bhs[40:44])
	m.ResidualCount = getUint32(bhs[44:48])
	m.Data = data
}

// R2T solicits DesiredLength bytes of write data at BufferOffset.
type R2T struct {
	LUN           uint64
	ITT           uint32
	TTT           uint32
	StatSN        uint32
	ExpCmdSN      uint32
	MaxCmdSN      uint32
	R2TSN         uint32
	BufferOffset  uint32
	DesiredLength uint32
}

func (m *R2T) OpCode() OpCode { return OpReady }

func (m *R2T) marshal(bhs []byte) []byte {
	bhs[1] = finalBit
	putLUN(bhs[8:16], m.LUN)
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[20:24], m.TTT)
	putUint32(bhs[24:28], m.StatSN)
	putUint32(bhs[28:32], m.ExpCmdSN)
	putUint32(bhs[32:36], m.MaxCmdSN)
	putUint32(bhs[36:40], m.R2TSN)
	putUint32(bhs[40:44], m.BufferOffset)
	putUint32(bhs[44:48], m.DesiredLength)
	return nil
}

func (m *R2T) unmarshal(bhs, data []byte) {
	m.LUN = lunFromBytes(bhs[8:16])
	m.ITT = getUint32(bhs[16:20])
	m.TTT = getUint32(bhs[20:24])
	m.StatSN = getUint32(bhs[24:28])
	m.ExpCmdSN = getUint32(bhs[28:32])
	m.MaxCmdSN = getUint32(bhs[32:36])
	m.R2TSN = getUint32(bhs[36:40])
	m.BufferOffset = getUint32(bhs[40:44])
	m.DesiredLength = getUint32(bhs[44:48])
}

func residualFlags(overflow, underflow bool) byte {
	var b byte
	if overflow {
		b |= residualOverflowBit
	}
	if underflow {
		b |= residualUnderflowBit
	}
	return b
}
