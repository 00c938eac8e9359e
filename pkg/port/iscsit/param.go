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
	"strconv"

	"github.com/gostor/iscsitgt/pkg/config"
	"github.com/gostor/iscsitgt/pkg/util"
)

const (
	MAX_QUEUE_CMD_DEF = 128

	keyValueYes           = "Yes"
	keyValueNo            = "No"
	keyValueNone          = "None"
	keyValueReject        = "Reject"
	keyValueIrrelevant    = "Irrelevant"
	keyValueNotUnderstood = "NotUnderstood"
)

type keyKind int

const (
	// the initiator declares what it can receive
	keyDeclarative keyKind = iota
	keyNumericMin
	keyNumericMax
	keyBooleanAnd
	keyBooleanOr
	keyDigest
)

/*
 * The defaults here are according to rfc7143 and must not be changed,
 * otherwise the initiator may make the wrong assumption.
 */
type iscsiSessionKeys struct {
	name string
	kind keyKind
	def  uint
	min  uint
	max  uint
}

var sessionKeys = []iscsiSessionKeys{
	{"MaxRecvDataSegmentLength", keyDeclarative, 8192, 512, 16777215},
	{"HeaderDigest", keyDigest, 0, 0, 0},
	{"DataDigest", keyDigest, 0, 0, 0},
	{"InitialR2T", keyBooleanOr, 1, 0, 1},
	{"MaxOutstandingR2T", keyNumericMin, 1, 1, 65535},
	{"ImmediateData", keyBooleanAnd, 1, 0, 1},
	{"FirstBurstLength", keyNumericMin, 65536, 512, 16777215},
	{"MaxBurstLength", keyNumericMin, 262144, 512, 16777215},
	{"DataPDUInOrder", keyBooleanOr, 1, 0, 1},
	{"DataSequenceInOrder", keyBooleanOr, 1, 0, 1},
	{"ErrorRecoveryLevel", keyNumericMin, 0, 0, 2},
	{"IFMarker", keyBooleanAnd, 0, 0, 1},
	{"OFMarker", keyBooleanAnd, 0, 0, 1},
	{"DefaultTime2Wait", keyNumericMax, 2, 0, 3600},
	{"DefaultTime2Retain", keyNumericMin, 20, 0, 3600},
	{"MaxConnections", keyNumericMin, 1, 1, 65535},
}

// Keys answered during login but not negotiated here.
var loginKeys = map[string]bool{
	"InitiatorName":        true,
	"InitiatorAlias":       true,
	"TargetName":           true,
	"TargetAlias":          true,
	"TargetAddress":        true,
	"TargetPortalGroupTag": true,
	"SessionType":          true,
	"AuthMethod":           true,
	"CHAP_A":               true,
	"CHAP_I":               true,
	"CHAP_C":               true,
	"CHAP_N":               true,
	"CHAP_R":               true,
}

// SessionParams holds the operational parameters of a session.
type SessionParams struct {
	// MaxRecvDataSegmentLength is the largest data segment the target accepts.
	MaxRecvDataSegmentLength uint32
	// MaxXmitDataSegmentLength bounds the data segments sent to the initiator.
	MaxXmitDataSegmentLength uint32
	MaxBurstLength           uint32
	FirstBurstLength         uint32
	MaxOutstandingR2T        uint32
	InitialR2T               bool
	ImmediateData            bool
	DataPDUInOrder           bool
	DataSequenceInOrder      bool
	IFMarker                 bool
	OFMarker                 bool
	ErrorRecoveryLevel       uint32
	DefaultTime2Wait         uint32
	DefaultTime2Retain       uint32
	MaxConnections           uint32
	HeaderDigest             string
	DataDigest               string

	declared bool
}

// DefaultSessionParams returns the values the target offers.
func DefaultSessionParams(cfg *config.Config) SessionParams {
	p := SessionParams{HeaderDigest: keyValueNone, DataDigest: keyValueNone}
	for _, k := range sessionKeys {
		if k.kind != keyDigest {
			p.set(k.name, k.def)
		}
	}
	if cfg != nil {
		if cfg.MaxRecvDataSegmentLength != 0 {
			p.MaxRecvDataSegmentLength = cfg.MaxRecvDataSegmentLength
		}
		if cfg.MaxBurstLength != 0 {
			p.MaxBurstLength = cfg.MaxBurstLength
		}
		if cfg.FirstBurstLength != 0 {
			p.FirstBurstLength = cfg.FirstBurstLength
		}
	}
	// until told otherwise the initiator takes the rfc7143 default
	p.MaxXmitDataSegmentLength = uint32(minUint(sessionKeys[0].def, uint(p.MaxRecvDataSegmentLength)))
	return p
}

func (p *SessionParams) get(name string) uint {
	switch name {
	case "MaxRecvDataSegmentLength":
		return uint(p.MaxRecvDataSegmentLength)
	case "InitialR2T":
		return boolValue(p.InitialR2T)
	case "MaxOutstandingR2T":
		return uint(p.MaxOutstandingR2T)
	case "ImmediateData":
		return boolValue(p.ImmediateData)
	case "FirstBurstLength":
		return uint(p.FirstBurstLength)
	case "MaxBurstLength":
		return uint(p.MaxBurstLength)
	case "DataPDUInOrder":
		return boolValue(p.DataPDUInOrder)
	case "DataSequenceInOrder":
		return boolValue(p.DataSequenceInOrder)
	case "ErrorRecoveryLevel":
		return uint(p.ErrorRecoveryLevel)
	case "IFMarker":
		return boolValue(p.IFMarker)
	case "OFMarker":
		return boolValue(p.OFMarker)
	case "DefaultTime2Wait":
		return uint(p.DefaultTime2Wait)
	case "DefaultTime2Retain":
		return uint(p.DefaultTime2Retain)
	case "MaxConnections":
		return uint(p.MaxConnections)
	}
	return 0
}

func (p *SessionParams) set(name string, v uint) {
	switch name {
	case "MaxRecvDataSegmentLength":
		p.MaxRecvDataSegmentLength = uint32(v)
	case "InitialR2T":
		p.InitialR2T = v != 0
	case "MaxOutstandingR2T":
		p.MaxOutstandingR2T = uint32(v)
	case "ImmediateData":
		p.ImmediateData = v != 0
	case "FirstBurstLength":
		p.FirstBurstLength = uint32(v)
	case "MaxBurstLength":
		p.MaxBurstLength = uint32(v)
	case "DataPDUInOrder":
		p.DataPDUInOrder = v != 0
	case "DataSequenceInOrder":
		p.DataSequenceInOrder = v != 0
	case "ErrorRecoveryLevel":
		p.ErrorRecoveryLevel = uint32(v)
	case "IFMarker":
		p.IFMarker = v != 0
	case "OFMarker":
		p.OFMarker = v != 0
	case "DefaultTime2Wait":
		p.DefaultTime2Wait = uint32(v)
	case "DefaultTime2Retain":
		p.DefaultTime2Retain = uint32(v)
	case "MaxConnections":
		p.MaxConnections = uint32(v)
	}
}

// negotiate answers the operational keys offered by the initiator and
// records the results. Responses follow the order of sessionKeys, unknown
// keys come last sorted by name.
func (p *SessionParams) negotiate(keys map[string]string) ([]util.KeyValue, error) {
	var resp []util.KeyValue
	for _, k := range sessionKeys {
		offer, ok := keys[k.name]
		if !ok {
			if k.kind == keyDeclarative && !p.declared {
				resp = append(resp, util.KeyValue{Key: k.name, Value: strconv.FormatUint(uint64(p.get(k.name)), 10)})
				p.declared = true
			}
			continue
		}
		switch k.kind {
		case keyDigest:
			if !containsValue(util.SplitList(offer), keyValueNone) {
				return nil, fmt.Errorf("%s: no acceptable digest in %q", k.name, offer)
			}
			resp = append(resp, util.KeyValue{Key: k.name, Value: keyValueNone})
		case keyBooleanAnd, keyBooleanOr:
			var v bool
			switch offer {
			case keyValueYes:
				v = true
			case keyValueNo:
			default:
				resp = append(resp, util.KeyValue{Key: k.name, Value: keyValueReject})
				continue
			}
			ours := p.get(k.name) != 0
			if k.kind == keyBooleanAnd {
				v = v && ours
			} else {
				v = v || ours
			}
			p.set(k.name, boolValue(v))
			resp = append(resp, util.KeyValue{Key: k.name, Value: yesNo(v)})
		default:
			n, err := strconv.ParseUint(offer, 10, 32)
			if err != nil || uint(n) < k.min || uint(n) > k.max {
				resp = append(resp, util.KeyValue{Key: k.name, Value: keyValueReject})
				continue
			}
			ours := p.get(k.name)
			v := uint(n)
			switch k.kind {
			case keyDeclarative:
				// we keep our receive limit and send no more than the
				// initiator can take
				p.MaxXmitDataSegmentLength = uint32(minUint(v, ours))
				p.declared = true
				v = ours
			case keyNumericMin:
				v = minUint(v, ours)
				p.set(k.name, v)
			case keyNumericMax:
				if ours > v {
					v = ours
				}
				p.set(k.name, v)
			}
			resp = append(resp, util.KeyValue{Key: k.name, Value: strconv.FormatUint(uint64(v), 10)})
		}
	}
	if p.FirstBurstLength > p.MaxBurstLength {
		p.FirstBurstLength = p.MaxBurstLength
	}

	var unknown []string
	for key := range keys {
		if loginKeys[key] || isSessionKey(key) {
			continue
		}
		unknown = append(unknown, key)
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		value := keyValueNotUnderstood
		if key == "OFMarkInt" || key == "IFMarkInt" {
			value = keyValueIrrelevant
		}
		resp = append(resp, util.KeyValue{Key: key, Value: value})
	}
	return resp, nil
}

func isSessionKey(name string) bool {
	for _, k := range sessionKeys {
		if k.name == name {
			return true
		}
	}
	return false
}

func containsValue(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func boolValue(b bool) uint {
	if b {
		return 1
	}
	return 0
}

func yesNo(b bool) string {
	if b {
		return keyValueYes
	}
	return keyValueNo
}

func minUint(a, b uint) uint {
	if a < b {
		return a
	}
	return b
}
