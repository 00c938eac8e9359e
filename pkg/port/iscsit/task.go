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

// iSCSI task management
package iscsit

const (
	ISCSI_FLAG_TM_FUNC_MASK byte = 0x7F

	// Function values
	// aborts the task identified by the Referenced Task Tag field
	ISCSI_TM_FUNC_ABORT_TASK = 1
	// aborts all Tasks issued via this session on the logical unit
	ISCSI_TM_FUNC_ABORT_TASK_SET = 2
	// clears the Auto Contingent Allegiance condition
	ISCSI_TM_FUNC_CLEAR_ACA = 3
	// aborts all Tasks in the appropriate task set as defined by the TST field in the Control mode page
	ISCSI_TM_FUNC_CLEAR_TASK_SET     = 4
	ISCSI_TM_FUNC_LOGICAL_UNIT_RESET = 5
	ISCSI_TM_FUNC_TARGET_WARM_RESET  = 6
	ISCSI_TM_FUNC_TARGET_COLD_RESET  = 7
	// reassigns connection allegiance for the task identified by the Referenced Task Tag field to this connection, thus resuming the iSCSI exchanges for the task
	ISCSI_TM_FUNC_TASK_REASSIGN = 8

	// Response values
	// Function complete
	ISCSI_TMF_RSP_COMPLETE = 0x00
	// Task does not exist
	ISCSI_TMF_RSP_NO_TASK = 0x01
	// LUN does not exist
	ISCSI_TMF_RSP_NO_LUN = 0x02
	// Task still allegiant
	ISCSI_TMF_RSP_TASK_ALLEGIANT = 0x03
	// Task allegiance reassignment not supported
	ISCSI_TMF_RSP_NO_FAILOVER = 0x04
	// Task management function not supported
	ISCSI_TMF_RSP_NOT_SUPPORTED = 0x05
	// Function authorization failed
	ISCSI_TMF_RSP_AUTH_FAILED = 0x06
	// Function rejected
	ISCSI_TMF_RSP_REJECTED = 0xff
)

// Reject reasons, rfc7143 section 11.17.1.
const (
	RejectDataDigestError    byte = 0x02
	RejectSNACKReject        byte = 0x03
	RejectProtocolError      byte = 0x04
	RejectCommandUnsupported byte = 0x05
	RejectImmediateRejected  byte = 0x06
	RejectTaskInProgress     byte = 0x07
	RejectInvalidDataAck     byte = 0x08
	RejectInvalidPDUField    byte = 0x09
	RejectOutOfResources     byte = 0x0a
	RejectWaitingForLogout   byte = 0x0c
)

type TaskMgmtRequest struct {
	Immediate         bool
	Function          byte
	LUN               uint64
	ITT               uint32
	ReferencedTaskTag uint32
	CmdSN             uint32
	ExpStatSN         uint32
	RefCmdSN          uint32
	ExpDataSN         uint32
}

func (m *TaskMgmtRequest) OpCode() OpCode { return OpSCSITaskReq }

func (m *TaskMgmtRequest) marshal(bhs []byte) []byte {
	if m.Immediate {
		bhs[0] = immediateBit
	}
	bhs[1] = finalBit | m.Function&ISCSI_FLAG_TM_FUNC_MASK
	putLUN(bhs[8:16], m.LUN)
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[20:24], m.ReferencedTaskTag)
	putUint32(bhs[24:28], m.CmdSN)
	putUint32(bhs[28:32], m.ExpStatSN)
	putUint32(bhs[32:36], m.RefCmdSN)
	putUint32(bhs[36:40], m.ExpDataSN)
	return nil
}

func (m *TaskMgmtRequest) unmarshal(bhs, data []byte) {
	m.Immediate = bhs[0]&immediateBit != 0
	m.Function = bhs[1] & ISCSI_FLAG_TM_FUNC_MASK
	m.LUN = lunFromBytes(bhs[8:16])
	m.ITT = getUint32(bhs[16:20])
	m.ReferencedTaskTag = getUint32(bhs[20:24])
	m.CmdSN = getUint32(bhs[24:28])
	m.ExpStatSN = getUint32(bhs[28:32])
	m.RefCmdSN = getUint32(bhs[32:36])
	m.ExpDataSN = getUint32(bhs[36:40])
}

type TaskMgmtResponse struct {
	Response byte
	ITT      uint32
	StatSN   uint32
	ExpCmdSN uint32
	MaxCmdSN uint32
}

func (m *TaskMgmtResponse) OpCode() OpCode { return OpSCSITaskResp }

func (m *TaskMgmtResponse) marshal(bhs []byte) []byte {
	bhs[1] = finalBit
	bhs[2] = m.Response
	putUint32(bhs[16:20], m.ITT)
	putUint32(bhs[24:28], m.StatSN)
	putUint32(bhs[28:32], m.ExpCmdSN)
	putUint32(bhs[32:36], m.MaxCmdSN)
	return nil
}

func (m *TaskMgmtResponse) unmarshal(bhs, data []byte) {
	m.Response = bhs[2]
	m.ITT = getUint32(bhs[16:20])
	m.StatSN = getUint32(bhs[24:28])
	m.ExpCmdSN = getUint32(bhs[28:32])
	m.MaxCmdSN = getUint32(bhs[32:36])
}

// Reject carries the header of the rejected PDU as its data segment.
type Reject struct {
	Reason   byte
	StatSN   uint32
	ExpCmdSN uint32
	MaxCmdSN uint32
	DataSN   uint32
	Header   []byte
}

func (m *Reject) OpCode() OpCode { return OpReject }

func (m *Reject) marshal(bhs []byte) []byte {
	bhs[1] = finalBit
	bhs[2] = m.Reason
	putUint32(bhs[16:20], ReservedTag)
	putUint32(bhs[24:28], m.StatSN)
	putUint32(bhs[28:32], m.ExpCmdSN)
	putUint32(bhs[32:36], m.MaxCmdSN)
	putUint32(bhs[36:40], m.DataSN)
	return m.Header
}

func (m *Reject) unmarshal(bhs, data []byte) {
	m.Reason = bhs[2]
	m.StatSN = getUint32(bhs[24:28])
	m.ExpCmdSN = getUint32(bhs[28:32])
	m.MaxCmdSN = getUint32(bhs[32:36])
	m.DataSN = getUint32(bhs[36:40])
	m.Header = data
}
