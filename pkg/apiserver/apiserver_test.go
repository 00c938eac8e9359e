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

package apiserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gostor/iscsitgt/pkg/api"
	"github.com/gostor/iscsitgt/pkg/api/client"
	"github.com/gostor/iscsitgt/pkg/apiserver/router/discovery"
	"github.com/gostor/iscsitgt/pkg/apiserver/router/lu"
	"github.com/gostor/iscsitgt/pkg/apiserver/router/target"
	"github.com/gostor/iscsitgt/pkg/config"
	"github.com/gostor/iscsitgt/pkg/metrics"
	"github.com/gostor/iscsitgt/pkg/port/iscsit"
	"github.com/gostor/iscsitgt/pkg/scsi"
	_ "github.com/gostor/iscsitgt/pkg/scsi/backingstore"
	"github.com/gostor/iscsitgt/pkg/version"
)

const testIQN = "iqn.2016-09.com.gostor:api"

type testDaemon struct {
	cfg        *config.Config
	configPath string
	luns       *scsi.LunManager
	target     *iscsit.TargetServer
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	http       *httptest.Server
}

func newDiskImage(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestDaemon(t *testing.T) *testDaemon {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.TargetIQN = testIQN
	cfg.ListenAddress = "127.0.0.1"
	cfg.Port = 0
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.LUNs = []config.LUN{{ID: 0, Name: "disk0", Path: newDiskImage(t, dir, "disk0.img", 1<<20)}}

	d := &testDaemon{
		cfg:        cfg,
		configPath: filepath.Join(dir, "config.yaml"),
		luns:       scsi.NewLunManager(cfg),
		registry:   prometheus.NewRegistry(),
	}
	if err := d.luns.LoadFromConfiguration(); err != nil {
		t.Fatal(err)
	}
	d.metrics = metrics.New(d.registry)
	d.target = iscsit.NewTargetServer(cfg, d.luns, d.metrics)

	srv, err := New(&Config{Version: version.APIVersion, Gatherer: d.registry})
	if err != nil {
		t.Fatal(err)
	}
	srv.InitRouters(
		target.NewRouter(d.target, d.luns, d.configPath),
		lu.NewRouter(d.luns, d.configPath),
		discovery.NewRouter(d.target),
	)
	d.http = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		d.http.Close()
		d.target.Stop()
		d.luns.Close()
	})
	return d
}

func (d *testDaemon) client(t *testing.T, apiVersion string) *client.Client {
	t.Helper()
	cli, err := client.NewClient("tcp://"+d.http.Listener.Addr().String(), apiVersion, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return cli
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	apiErr, ok := err.(*client.APIError)
	if !ok {
		t.Fatalf("expected API error %d, got %v", code, err)
	}
	if apiErr.StatusCode != code {
		t.Fatalf("expected status %d, got %d (%s)", code, apiErr.StatusCode, apiErr.Message)
	}
}

func TestLunRoutes(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()
	cli := d.client(t, version.APIVersion)

	luns, err := cli.LunList(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(luns) != 1 || luns[0].ID != 0 || luns[0].Name != "disk0" || luns[0].Size != 1<<20 || !luns[0].Ready {
		t.Fatalf("unexpected LUN list %+v", luns)
	}

	if _, err := cli.LunInspect(ctx, 7); !client.IsErrNotFound(err) {
		t.Fatalf("inspect of missing LUN: %v", err)
	}

	path := newDiskImage(t, t.TempDir(), "disk1.img", 4096)
	lun, err := cli.LunCreate(ctx, api.LunCreateRequest{
		ID:                1,
		Path:              path,
		ReadOnly:          true,
		AllowedInitiators: []string{"iqn.1994-05.com.redhat:client"},
		Save:              true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if lun.ID != 1 || lun.Path != path || !lun.ReadOnly || lun.Size != 4096 || lun.BackingStore != scsi.DefaultBackingStore {
		t.Fatalf("unexpected LUN %+v", lun)
	}
	saved, err := config.Load(d.configPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.LUNs) != 2 || saved.LUNs[1].Path != path || !saved.LUNs[1].ReadOnly {
		t.Fatalf("saved configuration has LUNs %+v", saved.LUNs)
	}

	got, err := cli.LunInspect(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 1 || len(got.AllowedInitiators) != 1 {
		t.Fatalf("unexpected LUN %+v", got)
	}

	_, err = cli.LunCreate(ctx, api.LunCreateRequest{ID: 1, Path: path})
	expectStatus(t, err, http.StatusConflict)
	_, err = cli.LunCreate(ctx, api.LunCreateRequest{ID: 2})
	expectStatus(t, err, http.StatusBadRequest)

	if err := cli.LunRemove(ctx, api.LunRemoveOptions{ID: 1}); err != nil {
		t.Fatal(err)
	}
	err = cli.LunRemove(ctx, api.LunRemoveOptions{ID: 1})
	expectStatus(t, err, http.StatusNotFound)

	luns, err = cli.LunList(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(luns) != 1 {
		t.Fatalf("%d LUNs after remove, want 1", len(luns))
	}
}

func TestTargetRoutes(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()
	cli := d.client(t, version.APIVersion)

	status, err := cli.TargetStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Running || status.TargetIQN != testIQN || status.LUNs != 1 || status.CHAP || status.Version != version.VERSION {
		t.Fatalf("unexpected status %+v", status)
	}
	records, err := cli.Discover(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("stopped target discovered as %+v", records)
	}

	status, err = cli.TargetStart(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Running || status.Portal != d.target.Addr().String() {
		t.Fatalf("unexpected status after start %+v", status)
	}

	records, err = cli.Discover(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := api.DiscoveryRecord{TargetName: testIQN, TargetAddress: d.target.Addr().String() + ",1"}
	if len(records) != 1 || records[0] != want {
		t.Fatalf("discovered %+v, want %+v", records, want)
	}

	sessions, err := cli.TargetSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Fatalf("unexpected sessions %+v", sessions)
	}

	if err := cli.TargetSave(ctx); err != nil {
		t.Fatal(err)
	}
	saved, err := config.Load(d.configPath)
	if err != nil {
		t.Fatal(err)
	}
	if saved.TargetIQN != testIQN || len(saved.LUNs) != 1 {
		t.Fatalf("unexpected saved configuration %+v", saved)
	}

	status, err = cli.TargetStop(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Running {
		t.Fatal("target still running after stop")
	}
}

func TestVersionedPaths(t *testing.T) {
	d := newTestDaemon(t)
	for _, v := range []string{"", version.APIVersion, "v0.9"} {
		if _, err := d.client(t, v).LunList(context.Background()); err != nil {
			t.Fatalf("version %q: %v", v, err)
		}
	}

	resp, err := http.Get(d.http.URL + "/vlatest/luns")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("malformed version answered %d", resp.StatusCode)
	}
}

func TestMetricsRoute(t *testing.T) {
	d := newTestDaemon(t)
	d.metrics.RecordLogin(metrics.LoginSuccess)

	resp, err := http.Get(d.http.URL + metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `iscsitgt_logins_total{result="success"} 1`) {
		t.Fatalf("unexpected metrics answer %d:\n%s", resp.StatusCode, body)
	}
}

func TestServe(t *testing.T) {
	for _, tc := range []struct {
		name  string
		proto string
		addr  func(t *testing.T) string
	}{
		{"tcp", "tcp", func(t *testing.T) string { return "127.0.0.1:0" }},
		{"unix", "unix", func(t *testing.T) string { return filepath.Join(t.TempDir(), "api.sock") }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, err := New(&Config{Addrs: []Addr{{Proto: tc.proto, Addr: tc.addr(t)}}})
			if err != nil {
				t.Fatal(err)
			}
			luns := scsi.NewLunManager(config.Default())
			srv.InitRouters(lu.NewRouter(luns, ""))

			waitChan := make(chan error, 1)
			go srv.Wait(waitChan)

			addrs := srv.Addrs()
			if len(addrs) != 1 {
				t.Fatalf("%d listeners, want 1", len(addrs))
			}
			cli, err := client.NewClient(tc.proto+"://"+addrs[0].String(), version.APIVersion, nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			list, err := cli.LunList(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 0 {
				t.Fatalf("unexpected LUNs %+v", list)
			}

			srv.Shutdown(time.Second)
			select {
			case err := <-waitChan:
				if err != nil {
					t.Fatal(err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Wait did not return after Shutdown")
			}
		})
	}
}

func TestNewRejectsUnknownProtocol(t *testing.T) {
	if _, err := New(&Config{Addrs: []Addr{{Proto: "udp", Addr: "127.0.0.1:0"}}}); err == nil {
		t.Fatal("expected an error for udp")
	}
}
