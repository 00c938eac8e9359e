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

// Logout reason codes.
const (
	LogoutCloseSession    byte = 0
	LogoutCloseConnection byte = 1
	LogoutRemoveRecovery  byte = 2
)

// Logout response codes.
const (
	LogoutSuccess        byte = 0
	LogoutCIDNotFound    byte = 1
	LogoutRecoveryUnsupp byte = 2
	LogoutCleanupFailed  byte = 3
)

type LogoutRequest struct {
	Immediate  bool
	ReasonCode byte
	ITT        uint32
	CID        uint16
	CmdSN      uint32
	ExpStatSN  uint32
}

func (m *LogoutRequest) OpCode() OpCode { return OpLogoutReq }

func (m *LogoutRequest) marshal(bhs []byte) []byte {
	if m.Immediate {
		bhs[0] = immediateBit
	}
	bhs[1] = finalBit | m.ReasonCode&0x7f
	putUint32(bhs[16:20], m.ITT)
	putUint16(bhs[20:22], m.CID)
	putUint32(bhs[24:28], m.CmdSN)
	putUint32(bhs[28:32], m.ExpStatSN)
	return nil
}

func (m *LogoutRequest) unmarshal(bhs, data []byte) {
	m.Immediate = bhs[0]&immediateBit != 0
	m.ReasonCode = bhs[1] & 0x7f
	m.ITT = getUint32(bhs[16:20])
	m.CID = getUint16(bhs[20:22])
	m.CmdSN = getUint32(bhs[24:28])
	m.ExpStatSN = getUint32(bhs[28:32])
}

type LogoutResponse struct {
	Response    byte
	ITT         uint32
	StatSN      uint32
	ExpCmdSN    uint32
	MaxCmdSN    uint32
	Time2Wait   uint16
	Time2Retain uint16
}

func (m *LogoutResponse) OpCode() OpCode { return OpLogoutResp }

func (m *LogoutResponse) marshal(bhs []byte) []byte {
	bhs[1] = finalBit
	bhs[2] = m.Response
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[24:28], m.StatSN)
	putUint32(bhs[28:32], m.ExpCmdSN)
	putUint32(bhs[32:36], m.MaxCmdSN)
	putUint16(bhs[40:42], m.Time2Wait)
	putUint16(bhs[42:44], m.Time2Retain)
	return nil
}

func (m *LogoutResponse) unmarshal(bhs, data []byte) {
	m.Response = bhs[2]
	m.ITT = getUint32(bhs[16:20])
	m.StatSN = getUint32(bhs[24:28])
	m.ExpCmdSN = getUint32(bhs[28:32])
	m.MaxCmdSN = getUint32(bhs[32:36])
	m.Time2Wait = getUint16(bhs[40:42])
	m.Time2Retain = getUint16(bhs[42:44])
}
