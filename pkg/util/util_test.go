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

package util

import (
	"bytes"
	"reflect"
	"testing"
)

func TestParseKVText(t *testing.T) {
	cases := map[string]struct {
		in   []byte
		want map[string]string
	}{
		"empty": {
			in:   nil,
			want: map[string]string{},
		},
		"single": {
			in:   []byte("InitiatorName=iqn.a\x00"),
			want: map[string]string{"InitiatorName": "iqn.a"},
		},
		"multiple with padding": {
			in:   []byte("AuthMethod=CHAP,None\x00SessionType=Normal\x00\x00\x00"),
			want: map[string]string{"AuthMethod": "CHAP,None", "SessionType": "Normal"},
		},
		"value containing equals": {
			in:   []byte("CHAP_C=0b4a3==\x00"),
			want: map[string]string{"CHAP_C": "0b4a3=="},
		},
		"unterminated last pair": {
			in:   []byte("A=1\x00B=2"),
			want: map[string]string{"A": "1", "B": "2"},
		},
		"garbage ignored": {
			in:   []byte("noequals\x00=novalue\x00C=3\x00"),
			want: map[string]string{"C": "3"},
		},
	}
	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			got := ParseKVText(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseKVText(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMarshalKVText(t *testing.T) {
	kv := []KeyValue{{"TargetName", "iqn.t"}, {"AuthMethod", "None"}}
	got := MarshalKVText(kv)
	want := []byte("TargetName=iqn.t\x00AuthMethod=None\x00")
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	m := ParseKVText(got)
	if m["TargetName"] != "iqn.t" || m["AuthMethod"] != "None" {
		t.Errorf("unexpected parse result %v", m)
	}
	if _, ok := m["Missing"]; ok {
		t.Errorf("missing key reported present")
	}
}

func TestUint24(t *testing.T) {
	buf := make([]byte, 3)
	PutUint24(buf, 0x0102ff)
	if !bytes.Equal(buf, []byte{0x01, 0x02, 0xff}) {
		t.Fatalf("PutUint24 wrote %x", buf)
	}
	if v := GetUint24(buf); v != 0x0102ff {
		t.Errorf("GetUint24 = %x", v)
	}
	PutUint24(buf, 0xffffffff)
	if v := GetUint24(buf); v != 0xffffff {
		t.Errorf("24-bit truncation failed: %x", v)
	}
}

func TestPadLength(t *testing.T) {
	for in, want := range map[int]int{0: 0, 1: 4, 3: 4, 4: 4, 5: 8, 48: 48, 49: 52} {
		if got := PadLength(in); got != want {
			t.Errorf("PadLength(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestStringToByte(t *testing.T) {
	if got := StringToByte("ab", 4, ' '); string(got) != "ab  " {
		t.Errorf("got %q", got)
	}
	if got := StringToByte("abcdef", 4, ' '); string(got) != "abcd" {
		t.Errorf("got %q", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" CHAP , None,,")
	if !reflect.DeepEqual(got, []string{"CHAP", "None"}) {
		t.Errorf("got %v", got)
	}
}
