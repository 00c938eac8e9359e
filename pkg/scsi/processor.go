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

package scsi

import (
	"errors"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// CommandFunc executes one opcode against a LUN whose in-flight guard is held.
type CommandFunc func(lun *Lun, req *Request) *Result

// Processor dispatches SCSI commands to the LUNs of a LunManager.
type Processor struct {
	luns *LunManager
	ops  [256]CommandFunc
}

func NewProcessor(luns *LunManager) *Processor {
	p := &Processor{luns: luns}
	registerSPCOps(&p.ops)
	registerSBCOps(&p.ops)
	return p
}

// Execute runs req and always returns a result. Failures are reported as
// CHECK CONDITION, never as an error or a panic.
func (p *Processor) Execute(req *Request) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("SCSI %s on LUN %d panicked: %v\n%s", req.Opcode(), req.LUN, r, debug.Stack())
			res = CheckCondition(ABORTED_COMMAND, ASC_INTERNAL_TGT_FAILURE)
		}
	}()

	if len(req.CDB) == 0 {
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_OP_CODE)
	}
	authorize := req.Authorize
	if authorize == nil {
		authorize = p.luns.IsInitiatorAllowed
	}
	op := req.Opcode()
	if op == REPORT_LUNS {
		return p.reportLuns(req, authorize)
	}

	if !authorize(req.LUN, req.Initiator) {
		log.Debugf("initiator %q is not allowed on LUN %d", req.Initiator, req.LUN)
		return CheckCondition(ILLEGAL_REQUEST, ASC_LUN_NOT_SUPPORTED)
	}
	lun := p.luns.GetLun(req.LUN)
	if lun == nil || !lun.acquire() {
		return CheckCondition(ILLEGAL_REQUEST, ASC_LUN_NOT_SUPPORTED)
	}
	defer lun.release()

	fn := p.ops[op]
	if fn == nil {
		log.Debugf("unsupported %s on LUN %d", op, req.LUN)
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_OP_CODE)
	}
	return fn(lun, req)
}

// storageError maps a backend failure to sense data. Causes that are not a
// caller mistake are logged.
func storageError(lun *Lun, op SCSICommandType, err error) *Result {
	switch {
	case errors.Is(err, ErrOutOfRange):
		return CheckCondition(ILLEGAL_REQUEST, ASC_LBA_OUT_OF_RANGE)
	case errors.Is(err, ErrInvalidLength):
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	case errors.Is(err, ErrReadOnly):
		return CheckCondition(DATA_PROTECT, ASC_WRITE_PROTECT)
	}
	log.Errorf("%s on LUN %d failed: %v", op, lun.ID, err)
	return CheckCondition(ABORTED_COMMAND, ASC_INTERNAL_TGT_FAILURE)
}
