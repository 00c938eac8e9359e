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

type NopOut struct {
	Immediate bool
	LUN       uint64
	ITT       uint32
	TTT       uint32
	CmdSN     uint32
	ExpStatSN uint32
	Data      []byte
}

func (m *NopOut) OpCode() OpCode { return OpNoopOut }

func (m *NopOut) marshal(bhs []byte) []byte {
	if m.Immediate {
		bhs[0] = immediateBit
	}
	bhs[1] = finalBit
	putLUN(bhs[8:16], m.LUN)
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[20:24], m.TTT)
	putUint32(bhs[24:28], m.CmdSN)
	putUint32(bhs[28:32], m.ExpStatSN)
	return m.Data
}

func (m *NopOut) unmarshal(bhs, data []byte) {
	m.Immediate = bhs[0]&immediateBit != 0
	m.LUN = lunFromBytes(bhs[8:16])
	m.ITT = getUint32(bhs[16:20])
	m.TTT = getUint32(bhs[20:24])
	m.CmdSN = getUint32(bhs[24:28])
	m.ExpStatSN = getUint32(bhs[28:32])
	m.Data = data
}

type NopIn struct {
	LUN      uint64
	ITT      uint32
	TTT      uint32
	StatSN   uint32
	ExpCmdSN uint32
	MaxCmdSN uint32
	Data     []byte
}

func (m *NopIn) OpCode() OpCode { return OpNoopIn }

func (m *NopIn) marshal(bhs []byte) []byte {
	bhs[1] = finalBit
	putLUN(bhs[8:16], m.LUN)
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[20:24], m.TTT)
	putUint32(bhs[24:28], m.StatSN)
	putUint32(bhs[28:32], m.ExpCmdSN)
	putUint32(bhs[32:36], m.MaxCmdSN)
	return m.Data
}

func (m *NopIn) unmarshal(bhs, data []byte) {
	m.LUN = lunFromBytes(bhs[8:16])
	m.ITT = getUint32(bhs[16:20])
	m.TTT = getUint32(bhs[20:24])
	m.StatSN = getUint32(bhs[24:28])
	m.ExpCmdSN = getUint32(bhs[28:32])
	m.MaxCmdSN = getUint32(bhs[32:36])
	m.Data = data
}
