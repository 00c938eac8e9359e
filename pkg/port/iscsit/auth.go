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

// Login phase: security negotiation with CHAP and operational negotiation.
package iscsit

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/gostor/iscsitgt/pkg/metrics"
	"github.com/gostor/iscsitgt/pkg/util"
)

const (
	authMethodCHAP = "CHAP"
	authMethodNone = "None"

	sessionTypeNormal    = "Normal"
	sessionTypeDiscovery = "Discovery"

	// the single portal group of the target
	targetPortalGroupTag = "1"
)

func (s *Session) handleLogin(req *LoginRequest) error {
	s.log.Debug(req)
	if s.phase == PhaseFullFeature || s.phase == PhaseLoggedOut {
		s.log.Warnf("login request in %v phase", s.phase)
		return s.loginFailure(req, StatusClassInitiator, StatusDetailInitiatorError, metrics.LoginInitiatorError, false)
	}

	keys := util.ParseKVText(req.Data)
	if !s.loginStarted {
		s.loginStarted = true
		s.isid = req.ISID
		s.cid = req.CID
		s.statSN = req.ExpStatSN
		s.expCmdSN = req.CmdSN
		if detail, result, ok := s.startLogin(keys); !ok {
			return s.loginFailure(req, StatusClassInitiator, detail, result, true)
		}
	}

	if req.Transit && req.Continue {
		s.log.Warn("login request with both transit and continue set")
		return s.loginFailure(req, StatusClassInitiator, StatusDetailInitiatorError, metrics.LoginInitiatorError, false)
	}

	switch req.CSG {
	case SecurityNegotiation:
		return s.securityNegotiation(req, keys)
	case LoginOperationalNegotiation:
		return s.operationalNegotiation(req, keys)
	}
	s.log.Warnf("login request with invalid current stage %d", req.CSG)
	return s.loginFailure(req, StatusClassInitiator, StatusDetailInitiatorError, metrics.LoginInitiatorError, false)
}

// startLogin validates the declarations of the first login request.
func (s *Session) startLogin(keys map[string]string) (byte, string, bool) {
	s.initiatorName = keys["InitiatorName"]
	s.initiatorAlias = keys["InitiatorAlias"]
	s.log = s.log.WithField("initiator", s.initiatorName)
	defer s.publish()

	if s.initiatorName == "" {
		s.log.Warn("login without InitiatorName")
		return StatusDetailMissingParameter, metrics.LoginInitiatorError, false
	}
	switch keys["SessionType"] {
	case "", sessionTypeNormal:
		s.sessionType = SessionNormal
	case sessionTypeDiscovery:
		s.sessionType = SessionDiscovery
		return 0, "", true
	default:
		s.log.Warnf("unsupported session type %q", keys["SessionType"])
		return StatusDetailSessionTypeNotFound, metrics.LoginInitiatorError, false
	}

	target, ok := keys["TargetName"]
	if !ok {
		s.log.Warn("normal session login without TargetName")
		return StatusDetailMissingParameter, metrics.LoginInitiatorError, false
	}
	if !strings.EqualFold(target, s.cfg.TargetIQN) {
		s.log.Warnf("login to unknown target %q", target)
		return StatusDetailNotFound, metrics.LoginNotFound, false
	}
	return 0, "", true
}

func (s *Session) securityNegotiation(req *LoginRequest, keys map[string]string) error {
	if s.phase != PhaseSecurityNegotiation || (req.Transit && req.NSG != LoginOperationalNegotiation) {
		s.log.Warnf("invalid security stage request in %v phase: T=%v NSG=%d", s.phase, req.Transit, req.NSG)
		return s.loginFailure(req, StatusClassInitiator, StatusDetailInitiatorError, metrics.LoginInitiatorError, false)
	}
	switch s.chapState {
	case ChapNone:
		return s.selectAuthMethod(req, keys)
	case ChapChallengeSent:
		return s.verifyChapResponse(req, keys)
	case ChapAuthenticated:
		return s.finishSecurity(req, nil)
	}
	return s.authFailure(req, "authentication already failed")
}

func (s *Session) selectAuthMethod(req *LoginRequest, keys map[string]string) error {
	methods, offered := keys["AuthMethod"]
	if !s.cfg.RequiresCHAP() {
		var kv []util.KeyValue
		if offered {
			kv = append(kv, util.KeyValue{Key: "AuthMethod", Value: authMethodNone})
		}
		return s.finishSecurity(req, kv)
	}

	if !containsValue(util.SplitList(methods), authMethodCHAP) {
		return s.authFailure(req, "initiator does not offer CHAP")
	}
	if alg, ok := keys["CHAP_A"]; ok && !containsValue(util.SplitList(alg), ChapAlgorithmMD5) {
		return s.authFailure(req, "no supported CHAP algorithm in "+alg)
	}
	id, challenge, err := GenerateChallenge()
	if err != nil {
		s.log.Error(err)
		return s.loginFailure(req, StatusClassTarget, StatusDetailTargetError, metrics.LoginAuthFailure, true)
	}
	s.chapID = id
	s.chapChallenge = challenge
	s.chapState = ChapChallengeSent
	return s.sendChallenge(req)
}

func (s *Session) sendChallenge(req *LoginRequest) error {
	kv := []util.KeyValue{
		{Key: "AuthMethod", Value: authMethodCHAP},
		{Key: "CHAP_A", Value: ChapAlgorithmMD5},
		{Key: "CHAP_I", Value: strconv.Itoa(int(s.chapID))},
		{Key: "CHAP_C", Value: EncodeBinary(s.chapChallenge)},
	}
	return s.sendLogin(req, &LoginResponse{
		CSG:  SecurityNegotiation,
		NSG:  SecurityNegotiation,
		Data: util.MarshalKVText(s.withTargetKeys(kv)),
	})
}

func (s *Session) verifyChapResponse(req *LoginRequest, keys map[string]string) error {
	name, hasName := keys["CHAP_N"]
	response, hasResponse := keys["CHAP_R"]
	if !hasName || !hasResponse {
		if _, ok := keys["CHAP_A"]; ok {
			// the initiator negotiated the method first and asks for
			// the challenge now
			return s.sendChallenge(req)
		}
		return s.authFailure(req, "missing CHAP_N or CHAP_R")
	}
	mutualChallenge, mutual := keys["CHAP_C"]
	if !mutual {
		idValue, ok := keys["CHAP_I"]
		if !ok {
			return s.authFailure(req, "missing CHAP_I")
		}
		if id, err := strconv.Atoi(idValue); err != nil || id != int(s.chapID) {
			return s.authFailure(req, "CHAP identifier mismatch")
		}
	}

	cred, ok := s.cfg.InitiatorCredential(name)
	if !ok {
		return s.authFailure(req, "unknown CHAP user "+name)
	}
	resp, err := DecodeBinary(response)
	if err != nil {
		return s.authFailure(req, err.Error())
	}
	if !VerifyChap(s.chapID, s.chapChallenge, resp, []byte(cred.Secret)) {
		return s.authFailure(req, "CHAP response mismatch for "+name)
	}

	var kv []util.KeyValue
	if mutual {
		if s.cfg.MutualCHAP == nil {
			return s.authFailure(req, "mutual CHAP requested but not configured")
		}
		id, err := strconv.Atoi(keys["CHAP_I"])
		if err != nil || id < 0 || id > 255 {
			return s.authFailure(req, "invalid mutual CHAP identifier")
		}
		challenge, err := DecodeBinary(mutualChallenge)
		if err != nil {
			return s.authFailure(req, err.Error())
		}
		if bytes.Equal(challenge, s.chapChallenge) {
			return s.authFailure(req, "mutual CHAP challenge reflects ours")
		}
		kv = append(kv,
			util.KeyValue{Key: "CHAP_N", Value: s.cfg.MutualCHAP.Name},
			util.KeyValue{Key: "CHAP_R", Value: EncodeBinary(ChapResponse(byte(id), []byte(s.cfg.MutualCHAP.Secret), challenge))},
		)
	}

	s.chapUser = name
	s.chapState = ChapAuthenticated
	s.chapChallenge = nil
	s.publish()
	s.log.Infof("CHAP user %s authenticated", name)
	return s.finishSecurity(req, kv)
}

// finishSecurity answers a successful security stage request, moving to
// operational negotiation when the initiator asked to transit.
func (s *Session) finishSecurity(req *LoginRequest, kv []util.KeyValue) error {
	resp := &LoginResponse{CSG: SecurityNegotiation}
	if req.Transit {
		resp.Transit = true
		resp.NSG = LoginOperationalNegotiation
		s.setPhase(PhaseLoginOperationalNegotiation)
	}
	resp.Data = util.MarshalKVText(s.withTargetKeys(kv))
	return s.sendLogin(req, resp)
}

func (s *Session) operationalNegotiation(req *LoginRequest, keys map[string]string) error {
	if s.phase == PhaseSecurityNegotiation {
		if s.cfg.RequiresCHAP() && s.chapState != ChapAuthenticated {
			return s.authFailure(req, "operational negotiation before authentication")
		}
		s.setPhase(PhaseLoginOperationalNegotiation)
	}
	if req.Transit && req.NSG != FullFeaturePhase {
		s.log.Warnf("invalid transition from operational stage to %d", req.NSG)
		return s.loginFailure(req, StatusClassInitiator, StatusDetailInitiatorError, metrics.LoginInitiatorError, false)
	}

	kv, err := s.params.negotiate(keys)
	if err != nil {
		s.log.Warnf("negotiation failed: %v", err)
		return s.loginFailure(req, StatusClassInitiator, StatusDetailInitiatorError, metrics.LoginInitiatorError, true)
	}

	resp := &LoginResponse{
		CSG: LoginOperationalNegotiation,
		NSG: LoginOperationalNegotiation,
	}
	if req.Transit {
		tsih := s.server.AllocTSIH()
		if tsih == ISCSI_UNSPEC_TSIH {
			s.log.Error("no free TSIH")
			return s.loginFailure(req, StatusClassTarget, StatusDetailOutOfResources, metrics.LoginInitiatorError, true)
		}
		s.tsih = tsih
		resp.Transit = true
		resp.NSG = FullFeaturePhase
		s.setPhase(PhaseFullFeature)
		s.opened = true
		s.server.metrics.SessionOpened()
		s.server.metrics.RecordLogin(metrics.LoginSuccess)
		s.log.Infof("%v session established, TSIH %d, MaxXmitDataSegmentLength %d",
			s.sessionType, s.tsih, s.params.MaxXmitDataSegmentLength)
	}
	resp.Data = util.MarshalKVText(s.withTargetKeys(kv))
	return s.sendLogin(req, resp)
}

// withTargetKeys adds the keys a normal session learns from the first
// login response.
func (s *Session) withTargetKeys(kv []util.KeyValue) []util.KeyValue {
	if s.tpgtSent || s.sessionType != SessionNormal {
		return kv
	}
	s.tpgtSent = true
	kv = append(kv,
		util.KeyValue{Key: "TargetName", Value: s.cfg.TargetIQN},
		util.KeyValue{Key: "TargetPortalGroupTag", Value: targetPortalGroupTag},
	)
	if s.cfg.TargetAlias != "" {
		kv = append(kv, util.KeyValue{Key: "TargetAlias", Value: s.cfg.TargetAlias})
	}
	return kv
}

func (s *Session) authFailure(req *LoginRequest, reason string) error {
	s.log.Warnf("authentication failed: %s", reason)
	s.chapState = ChapFailed
	s.chapChallenge = nil
	return s.loginFailure(req, StatusClassInitiator, StatusDetailAuthFailure, metrics.LoginAuthFailure, true)
}

// loginFailure answers req with a failure status. Terminal failures end the
// session once the response is sent.
func (s *Session) loginFailure(req *LoginRequest, class, detail byte, result string, terminal bool) error {
	s.server.metrics.RecordLogin(result)
	err := s.sendLogin(req, &LoginResponse{
		CSG:          req.CSG,
		NSG:          req.NSG,
		StatusClass:  class,
		StatusDetail: detail,
	})
	if err != nil {
		return err
	}
	if terminal {
		return errSessionEnd
	}
	return nil
}

func (s *Session) sendLogin(req *LoginRequest, resp *LoginResponse) error {
	resp.VersionMax = req.VersionMax
	resp.VersionActive = req.VersionMin
	resp.ISID = s.isid
	resp.TSIH = s.tsih
	resp.ITT = req.ITT
	resp.StatSN = s.nextStatSN()
	resp.ExpCmdSN = s.expCmdSN
	resp.MaxCmdSN = s.maxCmdSN()
	s.log.Debug(resp)
	return s.send(resp)
}
