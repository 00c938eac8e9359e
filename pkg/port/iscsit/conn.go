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
	"net"
)

func (s *Session) readPDU() (PDU, error) {
	p, err := ReadPDU(s.conn)
	if err != nil {
		return nil, err
	}
	s.server.metrics.RecordPDU(p.OpCode().String())
	s.log.Debugf("received %v", p.OpCode())
	return p, nil
}

// send writes one PDU. A PDU is always written with a single Write so
// responses never interleave on the wire.
func (s *Session) send(p PDU) error {
	if _, err := s.conn.Write(Encode(p)); err != nil {
		return fmt.Errorf("send %v: %v", p.OpCode(), err)
	}
	s.log.Debugf("sent %v", p.OpCode())
	return nil
}

// reject answers p with a Reject PDU carrying its header.
func (s *Session) reject(p PDU, reason byte) error {
	return s.send(&Reject{
		Reason:   reason,
		StatSN:   s.nextStatSN(),
		ExpCmdSN: s.expCmdSN,
		MaxCmdSN: s.maxCmdSN(),
		Header:   Encode(p)[:BHS_SIZE],
	})
}

// portalAddress is the address the initiator reached us on, falling back to
// the configured listen address for wildcard listeners.
func (s *Session) portalAddress() string {
	if addr, ok := s.conn.LocalAddr().(*net.TCPAddr); ok && !addr.IP.IsUnspecified() {
		return addr.String()
	}
	return s.cfg.PortalAddress()
}
