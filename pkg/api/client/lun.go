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
	"net/url"
	"strconv"

	"github.com/gostor/iscsitgt/pkg/api"
)

// LunList returns the open LUNs ordered by id.
func (cli *Client) LunList(ctx context.Context) ([]api.Lun, error) {
	var luns []api.Lun
	resp, err := cli.get(ctx, "/luns", nil)
	if err != nil {
		return nil, err
	}
	err = decode(resp, &luns)
	return luns, err
}

func (cli *Client) LunInspect(ctx context.Context, id uint8) (api.Lun, error) {
	var lun api.Lun
	resp, err := cli.get(ctx, "/luns/"+strconv.Itoa(int(id)), nil)
	if err != nil {
		return lun, err
	}
	err = decode(resp, &lun)
	return lun, err
}

// LunCreate opens a new LUN in the daemon.
func (cli *Client) LunCreate(ctx context.Context, req api.LunCreateRequest) (api.Lun, error) {
	var lun api.Lun
	resp, err := cli.post(ctx, "/luns", nil, req)
	if err != nil {
		return lun, err
	}
	err = decode(resp, &lun)
	return lun, err
}

// LunRemove closes a LUN and drops it from the configuration.
func (cli *Client) LunRemove(ctx context.Context, options api.LunRemoveOptions) error {
	query := url.Values{}
	if options.Save {
		query.Set("save", "1")
	}
	resp, err := cli.delete(ctx, "/luns/"+strconv.Itoa(int(options.ID)), query)
	ensureReaderClosed(resp)
	return err
}
