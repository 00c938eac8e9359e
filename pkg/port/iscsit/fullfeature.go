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
	"sort"
	"strings"
	"time"

	"github.com/gostor/iscsitgt/pkg/scsi"
	"github.com/gostor/iscsitgt/pkg/util"
)

func (s *Session) handleSCSICommand(cmd *SCSICommand) error {
	s.advanceCmdSN(cmd.CmdSN, cmd.Immediate)
	if s.sessionType == SessionDiscovery {
		s.log.Warn("SCSI command on a discovery session")
		return s.reject(cmd, RejectProtocolError)
	}
	s.log.Debug(cmd)

	start := time.Now()
	var (
		res  *scsi.Result
		data []byte
		err  error
	)
	if cmd.Write && cmd.ExpectedDataLength > 0 {
		if cmd.ExpectedDataLength > scsi.MaxTransferLength {
			res = scsi.CheckCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
		} else if data, err = s.collectWriteData(cmd); err != nil {
			return err
		}
	}
	if res == nil {
		res = s.server.processor.Execute(&scsi.Request{
			LUN:            LUNID(cmd.LUN),
			CDB:            cmd.CDB,
			Data:           data,
			ExpectedLength: cmd.ExpectedDataLength,
			Initiator:      s.initiatorName,
		})
	}

	var sent int
	if res.Good() && cmd.Read && cmd.ExpectedDataLength > 0 && len(res.Data) > 0 {
		sent, err = s.sendDataIn(cmd, res)
	} else {
		err = s.sendSCSIResponse(cmd, res)
	}
	op := scsi.SCSICommandType(cmd.CDB[0])
	s.server.metrics.RecordCommand(op.String(), statusName(res.Status), sent, len(data), time.Since(start))
	if !res.Good() {
		s.log.Debugf("%v on LUN %d: %v", op, LUNID(cmd.LUN), res)
	}
	return err
}

// collectWriteData gathers the immediate data of cmd and solicits the rest
// with one R2T per burst.
func (s *Session) collectWriteData(cmd *SCSICommand) ([]byte, error) {
	total := int(cmd.ExpectedDataLength)
	buf := make([]byte, total)
	received := copy(buf, cmd.Data)
	if len(cmd.Data) > total {
		s.log.Warnf("immediate data of %d bytes exceeds expected length %d", len(cmd.Data), total)
	}

	var r2tSN uint32
	for received < total {
		desired := total - received
		if burst := int(s.params.MaxBurstLength); desired > burst {
			desired = burst
		}
		ttt := s.targetTransferTag()
		err := s.send(&R2T{
			LUN:           cmd.LUN,
			ITT:           cmd.ITT,
			TTT:           ttt,
			StatSN:        s.statSN,
			ExpCmdSN:      s.expCmdSN,
			MaxCmdSN:      s.maxCmdSN(),
			R2TSN:         r2tSN,
			BufferOffset:  uint32(received),
			DesiredLength: uint32(desired),
		})
		if err != nil {
			return nil, err
		}
		r2tSN++
		n, err := s.receiveBurst(cmd, ttt, buf, received, desired)
		if err != nil {
			return nil, err
		}
		received += n
	}
	return buf, nil
}

// receiveBurst reads Data-Out PDUs answering one R2T until the final one.
func (s *Session) receiveBurst(cmd *SCSICommand, ttt uint32, buf []byte, offset, length int) (int, error) {
	var n int
	for {
		p, err := s.readPDU()
		if err != nil {
			return 0, err
		}
		switch d := p.(type) {
		case *DataOut:
			if d.ITT != cmd.ITT || d.TTT != ttt {
				return 0, fmt.Errorf("Data-Out for ITT %#x TTT %#x while waiting for ITT %#x TTT %#x", d.ITT, d.TTT, cmd.ITT, ttt)
			}
			off := int(d.BufferOffset)
			if off < offset || off+len(d.Data) > offset+length {
				return 0, fmt.Errorf("Data-Out at offset %d length %d outside of burst %d+%d", off, len(d.Data), offset, length)
			}
			copy(buf[off:], d.Data)
			n += len(d.Data)
			if d.Final {
				if n == 0 {
					return 0, fmt.Errorf("empty data burst for ITT %#x", cmd.ITT)
				}
				return n, nil
			}
		case *NopOut:
			if err := s.handleNopOut(d); err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("%v received while waiting for write data", p.OpCode())
		}
	}
}

// sendDataIn sends read data segmented to the initiator's receive length.
// The last PDU carries the status.
func (s *Session) sendDataIn(cmd *SCSICommand, res *scsi.Result) (int, error) {
	data := res.Data
	overflow, underflow, residual := residualCount(cmd.ExpectedDataLength, len(data))
	if overflow {
		data = data[:cmd.ExpectedDataLength]
	}
	seg := int(s.params.MaxXmitDataSegmentLength)
	var dataSN uint32
	for off := 0; off < len(data); {
		n := len(data) - off
		if n > seg {
			n = seg
		}
		pdu := &DataIn{
			ITT:          cmd.ITT,
			TTT:          ReservedTag,
			ExpCmdSN:     s.expCmdSN,
			MaxCmdSN:     s.maxCmdSN(),
			DataSN:       dataSN,
			BufferOffset: uint32(off),
			Data:         data[off : off+n],
		}
		if off+n == len(data) {
			pdu.Final = true
			pdu.HasStatus = true
			pdu.Status = res.Status
			pdu.Overflow = overflow
			pdu.Underflow = underflow
			pdu.ResidualCount = residual
			pdu.StatSN = s.nextStatSN()
		}
		if err := s.send(pdu); err != nil {
			return off, err
		}
		off += n
		dataSN++
	}
	return len(data), nil
}

func (s *Session) sendSCSIResponse(cmd *SCSICommand, res *scsi.Result) error {
	rsp := &SCSIResponse{
		Response:  ISCSI_RSP_COMPLETED,
		Status:    res.Status,
		ITT:       cmd.ITT,
		StatSN:    s.nextStatSN(),
		ExpCmdSN:  s.expCmdSN,
		MaxCmdSN:  s.maxCmdSN(),
		SenseData: res.Sense,
	}
	switch {
	case res.Good() && len(res.Data) > 0:
		// data the initiator did not ask for
		rsp.Overflow, rsp.Underflow, rsp.ResidualCount = residualCount(cmd.ExpectedDataLength, len(res.Data))
	case cmd.Read && !cmd.Write && cmd.ExpectedDataLength > 0:
		rsp.Underflow = true
		rsp.ResidualCount = cmd.ExpectedDataLength
	}
	return s.send(rsp)
}

func residualCount(expected uint32, n int) (overflow, underflow bool, residual uint32) {
	switch {
	case uint32(n) > expected:
		return true, false, uint32(n) - expected
	case uint32(n) < expected:
		return false, true, expected - uint32(n)
	}
	return false, false, 0
}

func statusName(status byte) string {
	switch status {
	case scsi.SAM_STAT_GOOD:
		return "GOOD"
	case scsi.SAM_STAT_CHECK_CONDITION:
		return "CHECK_CONDITION"
	case scsi.SAM_STAT_BUSY:
		return "BUSY"
	}
	return fmt.Sprintf("0x%02x", status)
}

// handleNopOut answers pings. A NOP-Out carrying the reserved tag in either
// ITT or TTT is a keep-alive and gets no reply.
func (s *Session) handleNopOut(req *NopOut) error {
	s.advanceCmdSN(req.CmdSN, req.Immediate)
	if req.ITT == ReservedTag || req.TTT == ReservedTag {
		return nil
	}
	data := req.Data
	if limit := int(s.params.MaxXmitDataSegmentLength); len(data) > limit {
		data = data[:limit]
	}
	return s.send(&NopIn{
		LUN:      req.LUN,
		ITT:      req.ITT,
		TTT:      req.TTT,
		StatSN:   s.nextStatSN(),
		ExpCmdSN: s.expCmdSN,
		MaxCmdSN: s.maxCmdSN(),
		Data:     data,
	})
}

func (s *Session) handleText(req *TextRequest) error {
	s.advanceCmdSN(req.CmdSN, req.Immediate)
	var result []util.KeyValue
	keys := util.ParseKVText(req.Data)
	if st, ok := keys["SendTargets"]; ok {
		if st == "All" || st == "" || strings.EqualFold(st, s.cfg.TargetIQN) {
			result = append(result,
				util.KeyValue{Key: "TargetName", Value: s.cfg.TargetIQN},
				util.KeyValue{Key: "TargetAddress", Value: fmt.Sprintf("%s,%s", s.portalAddress(), targetPortalGroupTag)},
			)
		}
		delete(keys, "SendTargets")
	}
	var unknown []string
	for key := range keys {
		unknown = append(unknown, key)
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		result = append(result, util.KeyValue{Key: key, Value: keyValueNotUnderstood})
	}
	return s.send(&TextResponse{
		Final:    true,
		LUN:      req.LUN,
		ITT:      req.ITT,
		TTT:      ReservedTag,
		StatSN:   s.nextStatSN(),
		ExpCmdSN: s.expCmdSN,
		MaxCmdSN: s.maxCmdSN(),
		Data:     util.MarshalKVText(result),
	})
}

// handleTaskMgmt answers task management requests. Commands run to
// completion before the next PDU is read, so there is never a task left to
// abort.
func (s *Session) handleTaskMgmt(req *TaskMgmtRequest) error {
	s.advanceCmdSN(req.CmdSN, req.Immediate)
	var response byte
	switch req.Function {
	case ISCSI_TM_FUNC_ABORT_TASK, ISCSI_TM_FUNC_ABORT_TASK_SET, ISCSI_TM_FUNC_CLEAR_TASK_SET,
		ISCSI_TM_FUNC_TARGET_WARM_RESET:
		response = ISCSI_TMF_RSP_COMPLETE
	case ISCSI_TM_FUNC_LOGICAL_UNIT_RESET:
		response = ISCSI_TMF_RSP_COMPLETE
		if s.server.luns.GetLun(LUNID(req.LUN)) == nil {
			response = ISCSI_TMF_RSP_NO_LUN
		}
	case ISCSI_TM_FUNC_TASK_REASSIGN:
		response = ISCSI_TMF_RSP_NO_FAILOVER
	default:
		response = ISCSI_TMF_RSP_NOT_SUPPORTED
	}
	s.log.Infof("task management function %d: response %d", req.Function, response)
	return s.send(&TaskMgmtResponse{
		Response: response,
		ITT:      req.ITT,
		StatSN:   s.nextStatSN(),
		ExpCmdSN: s.expCmdSN,
		MaxCmdSN: s.maxCmdSN(),
	})
}

// handleLogout ends the session in any phase. The response is always
// Success; the caller stops reading and closes the connection once the
// phase is LoggedOut.
func (s *Session) handleLogout(req *LogoutRequest) error {
	s.advanceCmdSN(req.CmdSN, req.Immediate)
	switch req.ReasonCode {
	case LogoutCloseConnection:
		if req.CID != s.cid {
			s.log.Warnf("logout names CID %d, connection is %d", req.CID, s.cid)
		}
	case LogoutRemoveRecovery:
		s.log.Warn("connection recovery is not supported, closing instead")
	}
	s.setPhase(PhaseLoggedOut)
	err := s.send(&LogoutResponse{
		Response: LogoutSuccess,
		ITT:      req.ITT,
		StatSN:   s.nextStatSN(),
		ExpCmdSN: s.expCmdSN,
		MaxCmdSN: s.maxCmdSN(),
	})
	if err != nil {
		return err
	}
	s.log.Info("logged out")
	return nil
}
