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

// Package api holds the types exchanged over the management API.
package api

import "time"

// LunCreateRequest asks the daemon to open a new LUN.
type LunCreateRequest struct {
	ID                uint8    `json:"id"`
	Name              string   `json:"name,omitempty"`
	Path              string   `json:"path"`
	BackingStore      string   `json:"backingStore,omitempty"`
	ReadOnly          bool     `json:"readOnly,omitempty"`
	AllowedInitiators []string `json:"allowedInitiators,omitempty"`
	// Save persists the configuration once the LUN is open.
	Save bool `json:"save,omitempty"`
}

type LunRemoveOptions struct {
	ID   uint8
	Save bool
}

// Lun describes an open LUN.
type Lun struct {
	ID                uint8    `json:"id"`
	Name              string   `json:"name"`
	Path              string   `json:"path"`
	BackingStore      string   `json:"backingStore"`
	ReadOnly          bool     `json:"readOnly"`
	Size              uint64   `json:"size"`
	AllowedInitiators []string `json:"allowedInitiators,omitempty"`
	Ready             bool     `json:"ready"`
}

// Session describes one initiator connection.
type Session struct {
	ID             string    `json:"id"`
	Initiator      string    `json:"initiator"`
	InitiatorAlias string    `json:"initiatorAlias,omitempty"`
	ChapUser       string    `json:"chapUser,omitempty"`
	RemoteAddr     string    `json:"remoteAddr"`
	Type           string    `json:"type"`
	Phase          string    `json:"phase"`
	ISID           string    `json:"isid"`
	TSIH           uint16    `json:"tsih"`
	Connected      time.Time `json:"connected"`
}

// TargetStatus is the state of the iSCSI target.
type TargetStatus struct {
	TargetIQN   string `json:"targetIQN"`
	TargetAlias string `json:"targetAlias,omitempty"`
	Portal      string `json:"portal"`
	Running     bool   `json:"running"`
	Sessions    int    `json:"sessions"`
	LUNs        int    `json:"luns"`
	CHAP        bool   `json:"chap"`
	Version     string `json:"version"`
}

// DiscoveryRecord is what a SendTargets=All text request would return.
type DiscoveryRecord struct {
	TargetName    string `json:"targetName"`
	TargetAddress string `json:"targetAddress"`
}
