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

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gostor/iscsitgt/pkg/apiserver"
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

type daemonOptions struct {
	configPath string
	logLevel   string
	hosts      []string
}

func newDaemonCommand() *cobra.Command {
	opts := daemonOptions{}
	var cmd = &cobra.Command{
		Use:   "daemon",
		Short: "Run the iSCSI target daemon",
		Long: `Run the iSCSI target daemon. It exports the LUNs of the configuration
file on the iSCSI portal and serves the management API on the API hosts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return runDaemon(opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultConfigPath(), "Configuration file")
	flags.StringVar(&opts.logLevel, "log", "", "Log level (debug, info, warn, error), overrides the configuration")
	flags.StringSliceVarP(&opts.hosts, "host", "H", nil, "Management API address as PROTO://ADDR, may be repeated")
	return cmd
}

func setupLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("unknown log level: %v", level)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		DisableColors: !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()),
	})
	return nil
}

func parseAPIHosts(hosts []string) ([]apiserver.Addr, error) {
	var addrs []apiserver.Addr
	for _, protoAddr := range hosts {
		protoAddrParts := strings.SplitN(protoAddr, "://", 2)
		if len(protoAddrParts) != 2 {
			return nil, fmt.Errorf("bad format %s, expected PROTO://ADDR", protoAddr)
		}
		addrs = append(addrs, apiserver.Addr{Proto: protoAddrParts[0], Addr: protoAddrParts[1]})
	}
	return addrs, nil
}

func runDaemon(opts daemonOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	if err := setupLogging(level); err != nil {
		return err
	}
	log.Infof("iscsitgt %s starting, configuration %s", version.VERSION, opts.configPath)

	hosts := cfg.APIHosts
	if len(opts.hosts) > 0 {
		hosts = opts.hosts
	}
	addrs, err := parseAPIHosts(hosts)
	if err != nil {
		return err
	}

	luns := scsi.NewLunManager(cfg)
	if err := luns.LoadFromConfiguration(); err != nil {
		return err
	}
	defer luns.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tgt := iscsit.NewTargetServer(cfg, luns, metrics.New(registry))
	if err := tgt.Start(); err != nil {
		return err
	}
	defer func() {
		if err := tgt.Stop(); err != nil {
			log.Error(err)
		}
	}()

	s, err := apiserver.New(&apiserver.Config{
		Logging:  true,
		Version:  version.APIVersion,
		Addrs:    addrs,
		Gatherer: registry,
	})
	if err != nil {
		return err
	}
	s.InitRouters(
		target.NewRouter(tgt, luns, opts.configPath),
		lu.NewRouter(luns, opts.configPath),
		discovery.NewRouter(tgt),
	)
	// The serve API routine never exits unless an error occurs
	// We need to start it as a goroutine and wait on it so
	// daemon doesn't exit
	serveAPIWait := make(chan error, 1)
	go s.Wait(serveAPIWait)

	stopAll := make(chan os.Signal, 1)
	signal.Notify(stopAll, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stopAll)

	select {
	case errAPI := <-serveAPIWait:
		if errAPI != nil {
			log.Warnf("Shutting down due to ServeAPI error: %v", errAPI)
		}
	case sig := <-stopAll:
		log.Infof("received %v, shutting down", sig)
	}
	s.Shutdown(cfg.ShutdownTimeout)
	return nil
}
