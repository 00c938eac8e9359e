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
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gostor/iscsitgt/pkg/config"
)

// Phase is the login progress of a session.
type Phase int

const (
	PhaseSecurityNegotiation Phase = iota
	PhaseLoginOperationalNegotiation
	PhaseFullFeature
	PhaseLoggedOut
)

func (p Phase) String() string {
	switch p {
	case PhaseSecurityNegotiation:
		return "SecurityNegotiation"
	case PhaseLoginOperationalNegotiation:
		return "LoginOperationalNegotiation"
	case PhaseFullFeature:
		return "FullFeature"
	case PhaseLoggedOut:
		return "LoggedOut"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

type ChapState int

const (
	ChapNone ChapState = iota
	ChapChallengeSent
	ChapAuthenticated
	ChapFailed
)

func (c ChapState) String() string {
	switch c {
	case ChapNone:
		return "None"
	case ChapChallengeSent:
		return "ChallengeSent"
	case ChapAuthenticated:
		return "Authenticated"
	case ChapFailed:
		return "Failed"
	}
	return fmt.Sprintf("ChapState(%d)", int(c))
}

type SessionType int

const (
	SessionNormal SessionType = iota
	SessionDiscovery
)

func (t SessionType) String() string {
	if t == SessionDiscovery {
		return "Discovery"
	}
	return "Normal"
}

// SessionInfo is a point in time view of a session.
type SessionInfo struct {
	ID             string
	Initiator      string
	InitiatorAlias string
	ChapUser       string
	RemoteAddr     string
	Type           SessionType
	Phase          Phase
	ISID           uint64
	TSIH           uint16
	Connected      time.Time
}

// errSessionEnd stops the read loop after a terminal response was sent.
var errSessionEnd = errors.New("session ended")

// Session is one initiator connection. All protocol state is owned by the
// goroutine running Run; Info may be called from anywhere.
type Session struct {
	id     uuid.UUID
	server *TargetServer
	cfg    *config.Config
	conn   net.Conn
	log    *log.Entry

	phase         Phase
	chapState     ChapState
	chapID        byte
	chapChallenge []byte
	sessionType   SessionType
	loginStarted  bool
	tpgtSent      bool
	opened        bool

	initiatorName  string
	initiatorAlias string
	chapUser       string
	isid           uint64
	tsih           uint16
	cid            uint16
	params         SessionParams

	statSN   uint32
	expCmdSN uint32
	nextTTT  uint32

	connected time.Time

	infoLock sync.Mutex
	info     SessionInfo
}

func newSession(server *TargetServer, conn net.Conn) *Session {
	id := uuid.NewV4()
	s := &Session{
		id:        id,
		server:    server,
		cfg:       server.cfg,
		conn:      conn,
		params:    DefaultSessionParams(server.cfg),
		connected: time.Now(),
		log: log.WithFields(log.Fields{
			"session": id.String(),
			"remote":  conn.RemoteAddr().String(),
		}),
	}
	s.publish()
	return s
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.infoLock.Lock()
	defer s.infoLock.Unlock()
	return s.info
}

func (s *Session) publish() {
	s.infoLock.Lock()
	s.info = SessionInfo{
		ID:             s.id.String(),
		Initiator:      s.initiatorName,
		InitiatorAlias: s.initiatorAlias,
		ChapUser:       s.chapUser,
		RemoteAddr:     s.conn.RemoteAddr().String(),
		Type:           s.sessionType,
		Phase:          s.phase,
		ISID:           s.isid,
		TSIH:           s.tsih,
		Connected:      s.connected,
	}
	s.infoLock.Unlock()
}

func (s *Session) setPhase(p Phase) {
	s.log.Debugf("phase %v -> %v", s.phase, p)
	s.phase = p
	s.publish()
}

// Run reads and serves PDUs until the initiator logs out, the connection
// fails or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-done:
		}
	}()
	defer s.close()
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("session aborted: %v\n%s", r, debug.Stack())
		}
	}()

	s.log.Info("connection accepted")
	for {
		p, err := s.readPDU()
		if err != nil {
			s.logReadError(ctx, err)
			return
		}
		if err := s.dispatch(p); err != nil {
			if err != errSessionEnd {
				s.log.Warnf("closing session: %v", err)
			}
			return
		}
		if s.phase == PhaseLoggedOut {
			return
		}
	}
}

func (s *Session) logReadError(ctx context.Context, err error) {
	var de *DecodeError
	switch {
	case ctx.Err() != nil:
		s.log.Debug("session cancelled")
	case err == io.EOF, errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		s.log.Info("initiator closed the connection")
	case errors.As(err, &de):
		s.log.Errorf("malformed PDU: %v", err)
	default:
		s.log.Warnf("read failed: %v", err)
	}
}

func (s *Session) close() {
	s.phase = PhaseLoggedOut
	s.conn.Close()
	if s.tsih != ISCSI_UNSPEC_TSIH {
		s.server.ReleaseTSIH(s.tsih)
	}
	if s.opened {
		s.server.metrics.SessionClosed()
		s.opened = false
	}
	s.publish()
	s.log.WithField("initiator", s.initiatorName).Info("session closed")
}

func (s *Session) dispatch(p PDU) error {
	switch req := p.(type) {
	case *LoginRequest:
		return s.handleLogin(req)
	case *NopOut:
		return s.handleNopOut(req)
	case *LogoutRequest:
		return s.handleLogout(req)
	case *SCSICommand:
		if s.phase != PhaseFullFeature {
			s.log.Warnf("ignoring SCSI command in %v phase", s.phase)
			return nil
		}
		return s.handleSCSICommand(req)
	}

	if s.phase != PhaseFullFeature {
		s.log.Warnf("%v received in %v phase", p.OpCode(), s.phase)
		return s.reject(p, RejectProtocolError)
	}
	switch req := p.(type) {
	case *TextRequest:
		return s.handleText(req)
	case *TaskMgmtRequest:
		return s.handleTaskMgmt(req)
	case *DataOut:
		s.log.Warnf("unsolicited Data-Out ITT %#x TTT %#x", req.ITT, req.TTT)
		return s.reject(p, RejectProtocolError)
	}
	s.log.Warnf("unexpected %v from initiator", p.OpCode())
	return s.reject(p, RejectCommandUnsupported)
}

// nextStatSN returns the StatSN for a status carrying PDU and advances it.
func (s *Session) nextStatSN() uint32 {
	sn := s.statSN
	s.statSN++
	return sn
}

func (s *Session) maxCmdSN() uint32 {
	return s.expCmdSN + MAX_QUEUE_CMD_DEF - 1
}

// advanceCmdSN accounts a non immediate command.
func (s *Session) advanceCmdSN(cmdSN uint32, immediate bool) {
	if immediate {
		return
	}
	if int32(cmdSN-s.expCmdSN) < 0 {
		s.log.Debugf("stale CmdSN %d, expected %d", cmdSN, s.expCmdSN)
		return
	}
	if cmdSN != s.expCmdSN {
		s.log.Debugf("CmdSN %d ahead of expected %d", cmdSN, s.expCmdSN)
	}
	s.expCmdSN = cmdSN + 1
}

func (s *Session) targetTransferTag() uint32 {
	s.nextTTT++
	if s.nextTTT == ReservedTag {
		s.nextTTT = 1
	}
	return s.nextTTT
}
