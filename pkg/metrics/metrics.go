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

// Package metrics exports the target counters to Prometheus. A nil *Metrics
// is a valid no-op collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "iscsitgt"

// Login results.
const (
	LoginSuccess        = "success"
	LoginAuthFailure    = "auth_failure"
	LoginInitiatorError = "initiator_error"
	LoginNotFound       = "target_not_found"
)

type Metrics struct {
	ActiveSessions  prometheus.Gauge
	LoginsTotal     *prometheus.CounterVec
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	ReadBytes       prometheus.Counter
	WrittenBytes    prometheus.Counter
	PDUsTotal       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of connected iSCSI sessions.",
		}),
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Completed and failed logins by result.",
		}, []string{"result"}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scsi_commands_total",
			Help:      "SCSI commands by operation and status.",
		}, []string{"operation", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scsi_command_duration_seconds",
			Help:      "SCSI command execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		ReadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_bytes_total",
			Help:      "Bytes sent to initiators in Data-In PDUs.",
		}),
		WrittenBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "written_bytes_total",
			Help:      "Bytes received from initiators for write commands.",
		}),
		PDUsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdus_received_total",
			Help:      "PDUs received by opcode.",
		}, []string{"opcode"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ActiveSessions,
			m.LoginsTotal,
			m.CommandsTotal,
			m.CommandDuration,
			m.ReadBytes,
			m.WrittenBytes,
			m.PDUsTotal,
		)
	}
	return m
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordPDU(opcode string) {
	if m == nil {
		return
	}
	m.PDUsTotal.WithLabelValues(opcode).Inc()
}

// RecordCommand counts one SCSI command and the data it moved.
func (m *Metrics) RecordCommand(operation, status string, read, written int, d time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(operation, status).Inc()
	m.CommandDuration.WithLabelValues(operation).Observe(d.Seconds())
	if read > 0 {
		m.ReadBytes.Add(float64(read))
	}
	if written > 0 {
		m.WrittenBytes.Add(float64(written))
	}
}
