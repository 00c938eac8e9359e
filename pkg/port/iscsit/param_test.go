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
	"reflect"
	"testing"

	"github.com/gostor/iscsitgt/pkg/config"
	"github.com/gostor/iscsitgt/pkg/util"
)

func TestNegotiate(t *testing.T) {
	p := DefaultSessionParams(config.Default())
	keys := map[string]string{
		"MaxRecvDataSegmentLength": "262144",
		"HeaderDigest":             "CRC32C,None",
		"DataDigest":               "None",
		"InitialR2T":               "No",
		"ImmediateData":            "Yes",
		"FirstBurstLength":         "1048576",
		"MaxBurstLength":           "16776192",
		"DefaultTime2Wait":         "0",
		"DefaultTime2Retain":       "0",
		"MaxConnections":           "4",
		"ErrorRecoveryLevel":       "2",
		"IFMarker":                 "No",
		"OFMarkInt":                "2048",
		"X-com.example.Key":        "1",
		"InitiatorName":            "iqn.1994-05.com.redhat:host",
	}
	got, err := p.negotiate(keys)
	if err != nil {
		t.Fatal(err)
	}
	want := []util.KeyValue{
		{Key: "MaxRecvDataSegmentLength", Value: "8192"},
		{Key: "HeaderDigest", Value: "None"},
		{Key: "DataDigest", Value: "None"},
		{Key: "InitialR2T", Value: "Yes"},
		{Key: "ImmediateData", Value: "Yes"},
		{Key: "FirstBurstLength", Value: "65536"},
		{Key: "MaxBurstLength", Value: "262144"},
		{Key: "ErrorRecoveryLevel", Value: "0"},
		{Key: "IFMarker", Value: "No"},
		{Key: "DefaultTime2Wait", Value: "2"},
		{Key: "DefaultTime2Retain", Value: "0"},
		{Key: "MaxConnections", Value: "1"},
		{Key: "OFMarkInt", Value: "Irrelevant"},
		{Key: "X-com.example.Key", Value: "NotUnderstood"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("negotiate =\n%v\nwant\n%v", got, want)
	}
	if p.MaxXmitDataSegmentLength != 8192 {
		t.Fatalf("MaxXmitDataSegmentLength %d, want 8192", p.MaxXmitDataSegmentLength)
	}
	if !p.InitialR2T || !p.ImmediateData || p.ErrorRecoveryLevel != 0 {
		t.Fatalf("unexpected params %+v", p)
	}
}

func TestNegotiateSmallInitiatorSegment(t *testing.T) {
	p := DefaultSessionParams(config.Default())
	got, err := p.negotiate(map[string]string{"MaxRecvDataSegmentLength": "4096", "ImmediateData": "No"})
	if err != nil {
		t.Fatal(err)
	}
	if p.MaxXmitDataSegmentLength != 4096 || p.MaxRecvDataSegmentLength != 8192 {
		t.Fatalf("segment lengths xmit %d recv %d", p.MaxXmitDataSegmentLength, p.MaxRecvDataSegmentLength)
	}
	if p.ImmediateData {
		t.Fatal("ImmediateData must be No when the initiator refuses it")
	}
	if got[0].Value != "8192" {
		t.Fatalf("target must declare its own receive length, got %v", got[0])
	}

	// the declaration is not repeated
	got, err = p.negotiate(map[string]string{"MaxBurstLength": "1024"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Key != "MaxBurstLength" || got[0].Value != "1024" {
		t.Fatalf("unexpected response %v", got)
	}
	if p.FirstBurstLength != 1024 {
		t.Fatalf("FirstBurstLength %d not clamped to MaxBurstLength", p.FirstBurstLength)
	}
}

func TestNegotiateRejects(t *testing.T) {
	p := DefaultSessionParams(nil)
	if _, err := p.negotiate(map[string]string{"HeaderDigest": "CRC32C"}); err == nil {
		t.Fatal("expected error without an acceptable digest")
	}
	got, err := p.negotiate(map[string]string{"MaxBurstLength": "12", "InitialR2T": "maybe"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected response %v", got)
	}
	for _, kv := range got {
		if kv.Value != keyValueReject {
			t.Errorf("%s = %s, want Reject", kv.Key, kv.Value)
		}
	}
	if p.MaxBurstLength != 262144 {
		t.Fatalf("rejected value changed MaxBurstLength to %d", p.MaxBurstLength)
	}
}

func TestDefaultSessionParamsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxRecvDataSegmentLength = 4096
	cfg.MaxBurstLength = 131072
	cfg.FirstBurstLength = 32768
	p := DefaultSessionParams(cfg)
	if p.MaxRecvDataSegmentLength != 4096 || p.MaxBurstLength != 131072 || p.FirstBurstLength != 32768 {
		t.Fatalf("config not applied: %+v", p)
	}
	if p.MaxXmitDataSegmentLength != 4096 {
		t.Fatalf("MaxXmitDataSegmentLength %d, want 4096", p.MaxXmitDataSegmentLength)
	}
}
