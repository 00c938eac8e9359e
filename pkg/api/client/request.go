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

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// APIError is a non-2xx answer of the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Error response from daemon (%d): %s", e.StatusCode, e.Message)
}

// IsErrNotFound reports whether err is a 404 answer.
func IsErrNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// serverResponse is a wrapper for http API responses.
type serverResponse struct {
	body       io.ReadCloser
	statusCode int
}

func (cli *Client) get(ctx context.Context, path string, query url.Values) (serverResponse, error) {
	return cli.sendRequest(ctx, http.MethodGet, path, query, nil)
}

func (cli *Client) post(ctx context.Context, path string, query url.Values, obj interface{}) (serverResponse, error) {
	return cli.sendRequest(ctx, http.MethodPost, path, query, obj)
}

func (cli *Client) delete(ctx context.Context, path string, query url.Values) (serverResponse, error) {
	return cli.sendRequest(ctx, http.MethodDelete, path, query, nil)
}

func (cli *Client) sendRequest(ctx context.Context, method, path string, query url.Values, obj interface{}) (serverResponse, error) {
	var body io.Reader
	if obj != nil {
		data, err := json.Marshal(obj)
		if err != nil {
			return serverResponse{}, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, cli.getAPIPath(path, query), body)
	if err != nil {
		return serverResponse{}, err
	}
	if obj != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cli.customHTTPHeaders {
		req.Header.Set(k, v)
	}
	// the transport dials addr itself, the host only has to be valid
	req.URL.Host = cli.addr
	if cli.proto != "tcp" {
		req.URL.Host = "iscsitgt"
	}
	req.URL.Scheme = "http"

	resp, err := cli.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return serverResponse{}, ctx.Err()
		}
		return serverResponse{}, fmt.Errorf("Cannot connect to the iscsitgt daemon at %s://%s. Is the daemon running? (%v)", cli.proto, cli.addr, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return serverResponse{statusCode: resp.StatusCode}, err
		}
		return serverResponse{statusCode: resp.StatusCode}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		}
	}
	return serverResponse{body: resp.Body, statusCode: resp.StatusCode}, nil
}

// decode reads a JSON answer into v and closes the body.
func decode(resp serverResponse, v interface{}) error {
	defer ensureReaderClosed(resp)
	return json.NewDecoder(resp.body).Decode(v)
}

func ensureReaderClosed(response serverResponse) {
	if response.body != nil {
		// Drain up to 512 bytes and close the body to let the Transport reuse the connection
		io.CopyN(io.Discard, response.body, 512)
		response.body.Close()
	}
}
