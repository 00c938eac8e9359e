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
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"

	systemdActivation "github.com/coreos/go-systemd/activation"
	"github.com/docker/go-connections/sockets"
	log "github.com/sirupsen/logrus"
)

// listen opens the listeners of one PROTO://ADDR API host. fd:// may yield
// several systemd activated sockets.
func listen(proto, addr string, tlsConfig *tls.Config) ([]net.Listener, error) {
	switch proto {
	case "fd":
		return listenFD(addr, tlsConfig)
	case "tcp":
		if tlsConfig == nil || tlsConfig.ClientAuth != tls.RequireAndVerifyClientCert {
			if host, _, err := net.SplitHostPort(addr); err == nil && !isLoopback(host) {
				log.Warnf("API on %s is reachable from the network without TLS client verification", addr)
			}
		}
		l, err := sockets.NewTCPSocket(addr, tlsConfig)
		if err != nil {
			return nil, err
		}
		return []net.Listener{l}, nil
	case "unix":
		l, err := sockets.NewUnixSocket(addr, os.Getgid())
		if err != nil {
			return nil, fmt.Errorf("can't create unix socket %s: %v", addr, err)
		}
		return []net.Listener{l}, nil
	}
	return nil, fmt.Errorf("Invalid protocol format: %q", proto)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// listenFD returns the specified socket activated files as a slice of
// net.Listeners or all of the activated files if "*" is given.
func listenFD(addr string, tlsConfig *tls.Config) ([]net.Listener, error) {
	var (
		err       error
		listeners []net.Listener
	)
	if tlsConfig != nil {
		listeners, err = systemdActivation.TLSListeners(false, tlsConfig)
	} else {
		listeners, err = systemdActivation.Listeners(false)
	}
	if err != nil {
		return nil, err
	}
	if len(listeners) == 0 {
		return nil, fmt.Errorf("no sockets passed by systemd")
	}

	// default to all fds just like unix:// and tcp://
	if addr == "" || addr == "*" {
		return listeners, nil
	}

	fdNum, err := strconv.Atoi(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse systemd address, should be number: %v", err)
	}
	fdOffset := fdNum - 3
	if fdOffset < 0 || fdOffset >= len(listeners) {
		return nil, fmt.Errorf("fd %d was not passed by systemd, got %d sockets", fdNum, len(listeners))
	}
	if listeners[fdOffset] == nil {
		return nil, fmt.Errorf("failed to listen on systemd activated file at fd %d", fdNum)
	}
	for i, ls := range listeners {
		if i == fdOffset || ls == nil {
			continue
		}
		if err := ls.Close(); err != nil {
			log.Errorf("Failed to close systemd activated file at fd %d: %v", i+3, err)
		}
	}
	return []net.Listener{listeners[fdOffset]}, nil
}
