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

// Package util provides some basic util functions.
package util

import (
	"encoding/binary"
	"strings"
)

type KeyValue struct {
	Key   string
	Value string
}

func GetUnalignedUint16(u8 []uint8) uint16 {
	return binary.BigEndian.Uint16(u8)
}

func GetUnalignedUint32(u8 []uint8) uint32 {
	return binary.BigEndian.Uint32(u8)
}

func GetUnalignedUint64(u8 []uint8) uint64 {
	return binary.BigEndian.Uint64(u8)
}

// GetUint24 reads a 3-byte big-endian integer.
func GetUint24(u8 []uint8) uint32 {
	return uint32(u8[0])<<16 | uint32(u8[1])<<8 | uint32(u8[2])
}

// PutUint24 writes the low 24 bits of v big-endian into u8[0:3].
func PutUint24(u8 []uint8, v uint32) {
	u8[0] = byte(v >> 16)
	u8[1] = byte(v >> 8)
	u8[2] = byte(v)
}

// PadLength rounds n up to the next multiple of 4.
func PadLength(n int) int {
	return (n + 3) &^ 3
}

// ParseKVText parses iSCSI key value data.
//
// Pairs are NUL terminated; a trailing pair without the terminator is still
// accepted. Entries without '=' are ignored and the last value of a repeated
// key wins.
func ParseKVText(txt []byte) map[string]string {
	m := make(map[string]string)
	for _, kv := range strings.Split(string(txt), "\x00") {
		if kv == "" {
			continue
		}
		sep := strings.IndexByte(kv, '=')
		if sep <= 0 {
			continue
		}
		m[kv[:sep]] = kv[sep+1:]
	}
	return m
}

func MarshalKVText(kv []KeyValue) []byte {
	var data []byte
	for _, v := range kv {
		data = append(data, []byte(v.Key)...)
		data = append(data, '=')
		data = append(data, []byte(v.Value)...)
		data = append(data, 0)
	}
	return data
}

// SplitList splits a comma separated iSCSI list value, trimming blanks.
func SplitList(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func MarshalUint16(i uint16) []byte {
	var data [2]byte
	binary.BigEndian.PutUint16(data[:], i)
	return data[:]
}

func MarshalUint32(i uint32) []byte {
	var data [4]byte
	binary.BigEndian.PutUint32(data[:], i)
	return data[:]
}

func MarshalUint64(v uint64) []byte {
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], v)
	return data[:]
}

// StringToByte copies str into a buffer of exactly length bytes, padding
// with pad and truncating as needed.
func StringToByte(str string, length int, pad byte) []byte {
	data := make([]byte, length)
	n := copy(data, str)
	for i := n; i < length; i++ {
		data[i] = pad
	}
	return data
}
