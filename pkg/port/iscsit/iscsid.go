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
	"net"
	"sort"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/gostor/iscsitgt/pkg/config"
	"github.com/gostor/iscsitgt/pkg/metrics"
	"github.com/gostor/iscsitgt/pkg/scsi"
	"github.com/gostor/iscsitgt/pkg/util"
)

const (
	ISCSI_MAX_TSIH    = uint16(0xffff)
	ISCSI_UNSPEC_TSIH = uint16(0)
)

// TargetServer accepts initiator connections and runs one Session per
// connection.
type TargetServer struct {
	cfg       *config.Config
	luns      *scsi.LunManager
	processor *scsi.Processor
	metrics   *metrics.Metrics

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	running  bool
	// wg tracks the accept loop and sessions of one run; Start replaces it.
	wg       *sync.WaitGroup

	sessionsLock sync.RWMutex
	sessions     map[uuid.UUID]*Session

	TSIHPool      map[uint16]bool
	TSIHPoolMutex sync.Mutex
}

// NewTargetServer creates a stopped server. m may be nil.
func NewTargetServer(cfg *config.Config, luns *scsi.LunManager, m *metrics.Metrics) *TargetServer {
	if cfg == nil {
		cfg = config.Default()
	}
	return &TargetServer{
		cfg:       cfg,
		luns:      luns,
		processor: scsi.NewProcessor(luns),
		metrics:   m,
		sessions:  map[uuid.UUID]*Session{},
		TSIHPool:  map[uint16]bool{0: true, 65535: true},
	}
}

func (s *TargetServer) AllocTSIH() uint16 {
	var i uint16
	s.TSIHPoolMutex.Lock()
	defer s.TSIHPoolMutex.Unlock()
	for i = uint16(0); i < ISCSI_MAX_TSIH; i++ {
		if !s.TSIHPool[i] {
			s.TSIHPool[i] = true
			return i
		}
	}
	return ISCSI_UNSPEC_TSIH
}

func (s *TargetServer) ReleaseTSIH(tsih uint16) {
	s.TSIHPoolMutex.Lock()
	delete(s.TSIHPool, tsih)
	s.TSIHPoolMutex.Unlock()
}

// Start listens on the configured portal. Starting a running server is a
// no-op.
func (s *TargetServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		log.Warn("target server already running")
		return nil
	}

	l, err := net.Listen("tcp", s.cfg.PortalAddress())
	if err != nil {
		return fmt.Errorf("listen on %s: %v", s.cfg.PortalAddress(), err)
	}
	if s.cfg.MaxConnections > 0 {
		l = netutil.LimitListener(l, s.cfg.MaxConnections)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.listener = l
	s.cancel = cancel
	s.running = true
	wg := &sync.WaitGroup{}
	s.wg = wg

	wg.Add(1)
	go s.serve(ctx, l, wg)
	log.Infof("iSCSI target %s listening on %s", s.cfg.TargetIQN, l.Addr())
	return nil
}

func (s *TargetServer) serve(ctx context.Context, l net.Listener, wg *sync.WaitGroup) {
	defer wg.Done()
	var tempDelay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			// back off on transient failures such as EMFILE, the way
			// net/http does
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if maxDelay := time.Second; tempDelay > maxDelay {
				tempDelay = maxDelay
			}
			log.Errorf("accept: %v; retrying in %v", err, tempDelay)
			select {
			case <-time.After(tempDelay):
				continue
			case <-ctx.Done():
				return
			}
		}
		tempDelay = 0

		sess := newSession(s, conn)
		s.sessionsLock.Lock()
		s.sessions[sess.ID()] = sess
		s.sessionsLock.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.removeSession(sess)
			sess.Run(ctx)
		}()
	}
}

func (s *TargetServer) removeSession(sess *Session) {
	s.sessionsLock.Lock()
	delete(s.sessions, sess.ID())
	s.sessionsLock.Unlock()
}

// Stop closes the listener, cancels every session and waits for them up to
// the configured shutdown timeout. Stopping a stopped server is a no-op.
func (s *TargetServer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		log.Warn("target server not running")
		return nil
	}
	s.running = false
	s.cancel()
	err := s.listener.Close()
	s.listener = nil
	wg := s.wg
	s.mu.Unlock()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warnf("close listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	select {
	case <-done:
		log.Info("target server stopped")
		return nil
	case <-time.After(timeout):
	}

	s.sessionsLock.Lock()
	n := len(s.sessions)
	s.sessions = map[uuid.UUID]*Session{}
	s.sessionsLock.Unlock()
	return fmt.Errorf("%d sessions still running after %v", n, timeout)
}

func (s *TargetServer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr is the listening address, nil when stopped.
func (s *TargetServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *TargetServer) Config() *config.Config {
	return s.cfg
}

// Discover is the TargetName/TargetAddress pair a SendTargets=All request
// would return through the listening portal.
func (s *TargetServer) Discover() util.KeyValue {
	addr := s.cfg.PortalAddress()
	if tcp, ok := s.Addr().(*net.TCPAddr); ok && !tcp.IP.IsUnspecified() {
		addr = tcp.String()
	}
	return util.KeyValue{Key: s.cfg.TargetIQN, Value: fmt.Sprintf("%s,%s", addr, targetPortalGroupTag)}
}

// Sessions lists the connected sessions ordered by connection time.
func (s *TargetServer) Sessions() []SessionInfo {
	s.sessionsLock.RLock()
	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, sess.Info())
	}
	s.sessionsLock.RUnlock()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Connected.Before(infos[j].Connected)
	})
	return infos
}
