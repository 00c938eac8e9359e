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

package client

import (
	"context"

	"github.com/gostor/iscsitgt/pkg/api"
)

func (cli *Client) TargetStatus(ctx context.Context) (api.TargetStatus, error) {
	var status api.TargetStatus
	resp, err := cli.get(ctx, "/target", nil)
	if err != nil {
		return status, err
	}
	err = decode(resp, &status)
	return status, err
}

// TargetSessions lists the connected initiators.
func (cli *Client) TargetSessions(ctx context.Context) ([]api.Session, error) {
	var sessions []api.Session
	resp, err := cli.get(ctx, "/target/sessions", nil)
	if err != nil {
		return nil, err
	}
	err = decode(resp, &sessions)
	return sessions, err
}

// TargetSave writes the running configuration to the daemon's config file.
func (cli *Client) TargetSave(ctx context.Context) error {
	resp, err := cli.post(ctx, "/target/save", nil, nil)
	ensureReaderClosed(resp)
	return err
}

func (cli *Client) TargetStart(ctx context.Context) (api.TargetStatus, error) {
	return cli.targetAction(ctx, "/target/start")
}

func (cli *Client) TargetStop(ctx context.Context) (api.TargetStatus, error) {
	return cli.targetAction(ctx, "/target/stop")
}

func (cli *Client) targetAction(ctx context.Context, path string) (api.TargetStatus, error) {
	var status api.TargetStatus
	resp, err := cli.post(ctx, path, nil, nil)
	if err != nil {
		return status, err
	}
	err = decode(resp, &status)
	return status, err
}

// Discover returns the targets a SendTargets request would report.
func (cli *Client) Discover(ctx context.Context) ([]api.DiscoveryRecord, error) {
	var records []api.DiscoveryRecord
	resp, err := cli.get(ctx, "/discovery", nil)
	if err != nil {
		return nil, err
	}
	err = decode(resp, &records)
	return records, err
}
