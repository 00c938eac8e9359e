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

// CHAP authentication, rfc1994 as profiled by rfc7143 section 12.1.3
package iscsit

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// CHAP_A value for MD5, the only algorithm offered.
	ChapAlgorithmMD5 = "5"

	ChapChallengeLength = 16
)

// GenerateChallenge returns a random identifier and challenge.
func GenerateChallenge() (byte, []byte, error) {
	buf := make([]byte, 1+ChapChallengeLength)
	if _, err := rand.Read(buf); err != nil {
		return 0, nil, fmt.Errorf("generate CHAP challenge: %v", err)
	}
	return buf[0], buf[1:], nil
}

// ChapResponse computes MD5(id || secret || challenge).
func ChapResponse(id byte, secret, challenge []byte) []byte {
	h := md5.New()
	h.Write([]byte{id})
	h.Write(secret)
	h.Write(challenge)
	return h.Sum(nil)
}

// VerifyChap reports whether response answers challenge for secret.
func VerifyChap(id byte, challenge, response, secret []byte) bool {
	if len(response) != md5.Size {
		return false
	}
	return subtle.ConstantTimeCompare(ChapResponse(id, secret, challenge), response) == 1
}

// EncodeBinary encodes a binary key value as 0x prefixed hex.
func EncodeBinary(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// DecodeBinary decodes a binary key value: 0x hex, 0b base64 or, as some
// initiators send it, bare base64.
func DecodeBinary(s string) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		v := s[2:]
		if len(v)%2 == 1 {
			v = "0" + v
		}
		b, err = hex.DecodeString(v)
	case strings.HasPrefix(s, "0b"), strings.HasPrefix(s, "0B"):
		b, err = base64.StdEncoding.DecodeString(s[2:])
	default:
		b, err = base64.StdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid binary value %q: %v", s, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("empty binary value %q", s)
	}
	return b, nil
}
