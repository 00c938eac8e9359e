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

const textContinueBit byte = 0x40

type TextRequest struct {
	Immediate bool
	Final     bool
	Continue  bool
	LUN       uint64
	ITT       uint32
	TTT       uint32
	CmdSN     uint32
	ExpStatSN uint32
	Data      []byte
}

func (m *TextRequest) OpCode() OpCode { return OpTextReq }

func (m *TextRequest) marshal(bhs []byte) []byte {
	if m.Immediate {
		bhs[0] = immediateBit
	}
	bhs[1] = textFlags(m.Final, m.Continue)
	putLUN(bhs[8:16], m.LUN)
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[20:24], m.TTT)
	putUint32(bhs[24:28], m.CmdSN)
	putUint32(bhs[28:32], m.ExpStatSN)
	return m.Data
}

func (m *TextRequest) unmarshal(bhs, data []byte) {
	m.Immediate = bhs[0]&immediateBit != 0
	m.Final = bhs[1]&finalBit != 0
	m.Continue = bhs[1]&textContinueBit != 0
	m.LUN = lunFromBytes(bhs[8:16])
	m.ITT = getUint32(bhs[16:20])
	m.TTT = getUint32(bhs[20:24])
	m.CmdSN = getUint32(bhs[24:28])
	m.ExpStatSN = getUint32(bhs[28:32])
	m.Data = data
}

type TextResponse struct {
	Final    bool
	Continue bool
	LUN      uint64
	ITT      uint32
	TTT      uint32
	StatSN   uint32
	ExpCmdSN uint32
	MaxCmdSN uint32
	Data     []byte
}

func (m *TextResponse) OpCode() OpCode { return OpTextResp }

func (m *TextResponse) marshal(bhs []byte) []byte {
	bhs[1] = textFlags(m.Final, m.Continue)
	putLUN(bhs[8:16], m.LUN)
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[20:24], m.TTT)
	putUint32(bhs[24:28], m.StatSN)
	putUint32(bhs[28:32], m.ExpCmdSN)
	putUint32(bhs[32:36], m.MaxCmdSN)
	return m.Data
}

func (m *TextResponse) unmarshal(bhs, data []byte) {
	m.Final = bhs[1]&finalBit != 0
	m.Continue = bhs[1]&textContinueBit != 0
	m.LUN = lunFromBytes(bhs[8:16])
	m.ITT = getUint32(bhs[16:20])
	m.TTT = getUint32(bhs[20:24])
	m.StatSN = getUint32(bhs[24:28])
	m.ExpCmdSN = getUint32(bhs[28:32])
	m.MaxCmdSN = getUint32(bhs[32:36])
	m.Data = data
}

func textFlags(final, cont bool) byte {
	var b byte
	if final {
		b |= finalBit
	}
	if cont {
		b |= textContinueBit
	}
	return b
}
