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

// SCSI primary command processing
package scsi

import (
	"bytes"
	"encoding/binary"

	"github.com/gostor/iscsitgt/pkg/util"
)

/*
 * Code Set
 *
 *  1 - Designator fild contains binary values
 *  2 - Designator field contains ASCII printable chars
 *  3 - Designaotor field contains UTF-8
 */
const (
	INQ_CODE_BIN   = 1
	INQ_CODE_ASCII = 2
	INQ_CODE_UTF8  = 3
)

/*
 * Designator type - SPC-4 Reference
 *
 * 0 - Vendor specific - 7.6.3.3
 * 1 - T10 vendor ID - 7.6.3.4
 * 2 - EUI-64 - 7.6.3.5
 * 3 - NAA - 7.6.3.6
 */
const (
	DESG_VENDOR = iota
	DESG_T10
	DESG_EUI64
	DESG_NAA
)

// Vital product data pages
const (
	VPD_SUPPORTED_PAGES = 0x00
	VPD_UNIT_SERIAL     = 0x80
	VPD_DEVICE_ID       = 0x83
)

func registerSPCOps(ops *[256]CommandFunc) {
	ops[TEST_UNIT_READY] = SPCTestUnit
	ops[REQUEST_SENSE] = SPCRequestSense
	ops[INQUIRY] = SPCInquiry
	ops[MODE_SENSE] = SPCModeSense
	ops[START_STOP] = SPCStartStop
	ops[ALLOW_MEDIUM_REMOVAL] = SPCPreventAllowMediaRemoval
}

// SPCTestUnit reports GOOD for every LUN the processor resolved.
func SPCTestUnit(lun *Lun, req *Request) *Result {
	return goodResult(nil)
}

func SPCRequestSense(lun *Lun, req *Request) *Result {
	sense := BuildSenseData(NO_SENSE, NO_ADDITIONAL_SENSE)
	if len(req.CDB) > 4 {
		sense = allocationLength(sense, uint32(req.CDB[4]))
	}
	return goodResult(sense)
}

func SPCStartStop(lun *Lun, req *Request) *Result {
	return goodResult(nil)
}

func SPCPreventAllowMediaRemoval(lun *Lun, req *Request) *Result {
	return goodResult(nil)
}

// SPCInquiry returns the standard inquiry data or, with EVPD set, one of the
// supported vital product data pages.
func SPCInquiry(lun *Lun, req *Request) *Result {
	cdb := req.CDB
	if len(cdb) < 6 {
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	}
	evpd := cdb[1]&0x01 != 0
	pcode := cdb[2]
	alloc := uint32(util.GetUnalignedUint16(cdb[3:5]))

	if !evpd {
		if pcode != 0 {
			return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
		}
		return goodResult(allocationLength(lun.backend.InquiryData(), alloc))
	}

	var page []byte
	switch pcode {
	case VPD_SUPPORTED_PAGES:
		page = []byte{VPD_SUPPORTED_PAGES, VPD_UNIT_SERIAL, VPD_DEVICE_ID}
	case VPD_UNIT_SERIAL:
		page = []byte(lun.backend.Serial())
	case VPD_DEVICE_ID:
		page = deviceIdentification(lun)
	default:
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	}
	buf := &bytes.Buffer{}
	buf.WriteByte(byte(TYPE_DISK))
	buf.WriteByte(pcode)
	binary.Write(buf, binary.BigEndian, uint16(len(page)))
	buf.Write(page)
	return goodResult(allocationLength(buf.Bytes(), alloc))
}

// deviceIdentification builds a single T10 vendor ID designator.
func deviceIdentification(lun *Lun) []byte {
	id := append(util.StringToByte(VendorID, 8, ' '), []byte(lun.backend.Serial())...)
	desg := make([]byte, 4, 4+len(id))
	desg[0] = INQ_CODE_ASCII
	desg[1] = DESG_T10
	desg[3] = byte(len(id))
	return append(desg, id...)
}

// SPCModeSense answers MODE SENSE(6) with a header, no block descriptor and,
// when asked for, the caching page.
func SPCModeSense(lun *Lun, req *Request) *Result {
	cdb := req.CDB
	if len(cdb) < 6 {
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	}
	pcode := cdb[2] & 0x3f
	alloc := uint32(cdb[4])

	var pages []byte
	switch pcode {
	case 0x00:
	case 0x08, 0x3f:
		// caching page, write cache enabled
		caching := make([]byte, 20)
		caching[0] = 0x08
		caching[1] = 0x12
		caching[2] = 0x04
		pages = append(pages, caching...)
	default:
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	}

	header := make([]byte, 4)
	header[0] = byte(3 + len(pages))
	if lun.ReadOnly {
		header[2] = 0x80
	}
	return goodResult(allocationLength(append(header, pages...), alloc))
}

// reportLuns lists every configured LUN the initiator may address. It needs
// no LUN of its own.
func (p *Processor) reportLuns(req *Request, authorize AuthorizeFunc) *Result {
	var alloc uint32 = 0xffffffff
	if len(req.CDB) >= 10 {
		alloc = util.GetUnalignedUint32(req.CDB[6:10])
	}
	if alloc < 16 {
		return CheckCondition(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB)
	}

	var ids []uint8
	for _, id := range p.luns.ListConfiguredIDs() {
		if authorize(id, req.Initiator) {
			ids = append(ids, id)
		}
	}
	data := make([]byte, 8+8*len(ids))
	binary.BigEndian.PutUint32(data[0:4], uint32(8*len(ids)))
	for i, id := range ids {
		data[8+8*i+1] = id
	}
	return goodResult(allocationLength(data, alloc))
}
