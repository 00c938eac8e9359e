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
	"bytes"
	"crypto/md5"
	"testing"
)

func TestChapResponse(t *testing.T) {
	secret := []byte("0123456789ab")
	challenge := []byte{0xde, 0xad, 0xbe, 0xef}
	want := md5.Sum(append(append([]byte{0x2a}, secret...), challenge...))
	if got := ChapResponse(0x2a, secret, challenge); !bytes.Equal(got, want[:]) {
		t.Fatalf("ChapResponse = %x, want %x", got, want)
	}
}

func TestVerifyChap(t *testing.T) {
	id, challenge, err := GenerateChallenge()
	if err != nil {
		t.Fatal(err)
	}
	if len(challenge) != ChapChallengeLength {
		t.Fatalf("challenge length %d", len(challenge))
	}
	secret := []byte("initiatorsecret")
	resp := ChapResponse(id, secret, challenge)
	if !VerifyChap(id, challenge, resp, secret) {
		t.Fatal("valid response rejected")
	}
	if VerifyChap(id+1, challenge, resp, secret) {
		t.Fatal("response accepted for another identifier")
	}
	if VerifyChap(id, challenge, resp, []byte("othersecret0")) {
		t.Fatal("response accepted for another secret")
	}
	if VerifyChap(id, challenge, resp[:15], secret) {
		t.Fatal("short response accepted")
	}
	for bit := 0; bit < len(resp)*8; bit++ {
		flipped := append([]byte(nil), resp...)
		flipped[bit/8] ^= 1 << uint(bit%8)
		if VerifyChap(id, challenge, flipped, secret) {
			t.Fatalf("response with bit %d flipped accepted", bit)
		}
	}
}

func TestGenerateChallengeIsRandom(t *testing.T) {
	_, a, err := GenerateChallenge()
	if err != nil {
		t.Fatal(err)
	}
	_, b, err := GenerateChallenge()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two challenges are equal")
	}
}

func TestDecodeBinary(t *testing.T) {
	cases := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "0x0a0b", want: []byte{0x0a, 0x0b}},
		{in: "0X0A0B", want: []byte{0x0a, 0x0b}},
		{in: "0xabc", want: []byte{0x0a, 0xbc}},
		{in: "0bAQID", want: []byte{1, 2, 3}},
		{in: "AQID", want: []byte{1, 2, 3}},
		{in: "0xzz", wantErr: true},
		{in: "0x", wantErr: true},
		{in: "", wantErr: true},
		{in: "not base64!", wantErr: true},
	}
	for _, tt := range cases {
		got, err := DecodeBinary(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("DecodeBinary(%q) = %x, want error", tt.in, got)
			}
			continue
		}
		if err != nil || !bytes.Equal(got, tt.want) {
			t.Errorf("DecodeBinary(%q) = %x, %v, want %x", tt.in, got, err, tt.want)
		}
	}

	b := []byte{0, 1, 0xfe, 0xff}
	if s := EncodeBinary(b); s != "0x0001feff" {
		t.Fatalf("EncodeBinary = %s", s)
	}
	if got, err := DecodeBinary(EncodeBinary(b)); err != nil || !bytes.Equal(got, b) {
		t.Fatalf("decode of encoded value = %x, %v", got, err)
	}
}
