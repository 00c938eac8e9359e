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

type Stage int

const (
	SecurityNegotiation         Stage = 0
	LoginOperationalNegotiation Stage = 1
	FullFeaturePhase            Stage = 3
)

func (s Stage) String() string {
	switch s {
	case SecurityNegotiation:
		return "Security Negotiation"
	case LoginOperationalNegotiation:
		return "Login Operational Negotiation"
	case FullFeaturePhase:
		return "Full Feature Phase"
	}
	return "Unknown Stage"
}

// Login status classes, rfc7143 section 11.13.5.
const (
	StatusClassSuccess     byte = 0x00
	StatusClassRedirection byte = 0x01
	StatusClassInitiator   byte = 0x02
	StatusClassTarget      byte = 0x03
)

// Status details for the initiator error class.
const (
	StatusDetailInitiatorError      byte = 0x00
	StatusDetailAuthFailure         byte = 0x01
	StatusDetailForbidden           byte = 0x02
	StatusDetailNotFound            byte = 0x03
	StatusDetailRemoved             byte = 0x04
	StatusDetailVersionUnsupported  byte = 0x05
	StatusDetailTooManyConnections  byte = 0x06
	StatusDetailMissingParameter    byte = 0x07
	StatusDetailSessionTypeNotFound byte = 0x09
	StatusDetailInvalidRequest      byte = 0x0b
)

// Status details for the target error class.
const (
	StatusDetailTargetError        byte = 0x00
	StatusDetailServiceUnavailable byte = 0x01
	StatusDetailOutOfResources     byte = 0x02
)

const (
	loginTransitBit  byte = 0x80
	loginContinueBit byte = 0x40
)

type LoginRequest struct {
	Transit    bool
	Continue   bool
	CSG        Stage
	NSG        Stage
	VersionMax byte
	VersionMin byte
	ISID       uint64
	TSIH       uint16
	ITT        uint32
	CID        uint16
	CmdSN      uint32
	ExpStatSN  uint32
	Data       []byte
}

func (m *LoginRequest) OpCode() OpCode { return OpLoginReq }

func (m *LoginRequest) String() string {
	return fmt.Sprintf("Login Request: T=%v C=%v CSG=%v NSG=%v ISID=%x TSIH=%d ITT=%#x CmdSN=%d",
		m.Transit, m.Continue, m.CSG, m.NSG, m.ISID, m.TSIH, m.ITT, m.CmdSN)
}

func (m *LoginRequest) marshal(bhs []byte) []byte {
	// login requests are always immediate
	bhs[0] = immediateBit
	bhs[1] = loginFlags(m.Transit, m.Continue, m.CSG, m.NSG)
	bhs[2] = m.VersionMax
	bhs[3] = m.VersionMin
	putISID(bhs[8:14], m.ISID)
	putUint16(bhs[14:16], m.TSIH)
	putUint32(bhs[16:20], m.ITT)
	putUint16(bhs[20:22], m.CID)
	putUint32(bhs[24:28], m.CmdSN)
	putUint32(bhs[28:32], m.ExpStatSN)
	return m.Data
}

func (m *LoginRequest) unmarshal(bhs, data []byte) {
	m.Transit, m.Continue, m.CSG, m.NSG = parseLoginFlags(bhs[1])
	m.VersionMax = bhs[2]
	m.VersionMin = bhs[3]
	m.ISID = getISID(bhs[8:14])
	m.TSIH = getUint16(bhs[14:16])
	m.ITT = getUint32(bhs[16:20])
	m.CID = getUint16(bhs[20:22])
	m.CmdSN = getUint32(bhs[24:28])
	m.ExpStatSN = getUint32(bhs[28:32])
	m.Data = data
}

type LoginResponse struct {
	Transit       bool
	Continue      bool
	CSG           Stage
	NSG           Stage
	VersionMax    byte
	VersionActive byte
	ISID          uint64
	TSIH          uint16
	ITT           uint32
	StatSN        uint32
	ExpCmdSN      uint32
	MaxCmdSN      uint32
	StatusClass   byte
	StatusDetail  byte
	Data          []byte
}

func (m *LoginResponse) OpCode() OpCode { return OpLoginResp }

func (m *LoginResponse) String() string {
	return fmt.Sprintf("Login Response: T=%v CSG=%v NSG=%v TSIH=%d StatSN=%d status=%#02x/%#02x",
		m.Transit, m.CSG, m.NSG, m.TSIH, m.StatSN, m.StatusClass, m.StatusDetail)
}

func (m *LoginResponse) marshal(bhs []byte) []byte {
	bhs[1] = loginFlags(m.Transit, m.Continue, m.CSG, m.NSG)
	bhs[2] = m.VersionMax
	bhs[3] = m.VersionActive
	putISID(bhs[8:14], m.ISID)
	putUint16(bhs[14:16], m.TSIH)
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[24:28], m.StatSN)
	putUint32(bhs[28:32], m.ExpCmdSN)
	putUint32(bhs[32:36], m.MaxCmdSN)
	bhs[36] = m.StatusClass
	bhs[37] = m.StatusDetail
	return m.Data
}

func (m *LoginResponse) unmarshal(bhs, data []byte) {
	m.Transit, m.Continue, m.CSG, m.NSG = parseLoginFlags(bhs[1])
	m.VersionMax = bhs[2]
	m.VersionActive = bhs[3]
	m.ISID = getISID(bhs[8:14])
	m.TSIH = getUint16(bhs[14:16])
	m.ITT = getUint32(bhs[16:20])
	m.StatSN = getUint32(bhs[24:28])
	m.ExpCmdSN = getUint32(bhs[28:32])
	m.MaxCmdSN = getUint32(bhs[32:36])
	m.StatusClass = bhs[36]
	m.StatusDetail = bhs[37]
	m.Data = data
}

func loginFlags(transit, cont bool, csg, nsg Stage) byte {
	var b byte
	if transit {
		b |= loginTransitBit
	}
	if cont {
		b |= loginContinueBit
	}
	b |= byte(csg&0x03) << 2
	b |= byte(nsg & 0x03)
	return b
}

func parseLoginFlags(b byte) (transit, cont bool, csg, nsg Stage) {
	transit = b&loginTransitBit == loginTransitBit
	cont = b&loginContinueBit == loginContinueBit
	csg = Stage(b>>2) & 0x03
	nsg = Stage(b) & 0x03
	return
}

// The ISID is six bytes, kept in the low bits of a uint64.
func getISID(b []byte) uint64 {
	var v uint64
	for _, c := range b[:6] {
		v = v<<8 | uint64(c)
	}
	return v
}

func putISID(b []byte, isid uint64) {
	for i := 5; i >= 0; i-- {
		b[i] = byte(isid)
		isid >>= 8
	}
}
