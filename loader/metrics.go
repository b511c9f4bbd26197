/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package loader

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what a Loader sees.  A nil *Metrics counts nothing.
type Metrics struct {
	BytesFed    prometheus.Counter
	Commands    *prometheus.CounterVec
	ParseErrors prometheus.Counter
	Overflows   prometheus.Counter
	Connects    prometheus.Counter
	Disconnects prometheus.Counter
}

// NewMetrics makes unregistered metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		BytesFed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scriptwire",
				Subsystem: "loader",
				Name:      "bytes_fed_total",
				Help:      "Total number of input bytes fed to the decoder",
			},
		),

		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scriptwire",
				Subsystem: "loader",
				Name:      "commands_total",
				Help:      "Total number of commands dispatched",
			},
			[]string{"command", "result"},
		),

		ParseErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scriptwire",
				Subsystem: "loader",
				Name:      "parse_errors_total",
				Help:      "Total number of command lines rejected by the parser",
			},
		),

		Overflows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scriptwire",
				Subsystem: "loader",
				Name:      "overflows_total",
				Help:      "Total number of input overflows and framing errors",
			},
		),

		Connects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scriptwire",
				Subsystem: "port",
				Name:      "connects_total",
				Help:      "Total number of transport connections",
			},
		),

		Disconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scriptwire",
				Subsystem: "port",
				Name:      "disconnects_total",
				Help:      "Total number of transport disconnections",
			},
		),
	}
}

// Register registers all metrics.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.BytesFed,
		m.Commands,
		m.ParseErrors,
		m.Overflows,
		m.Connects,
		m.Disconnects,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) fed(n int) {
	if m != nil {
		m.BytesFed.Add(float64(n))
	}
}

func (m *Metrics) command(cmd Command, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.Commands.WithLabelValues(cmd.String(), result).Inc()
}

func (m *Metrics) parseError() {
	if m != nil {
		m.ParseErrors.Inc()
	}
}

func (m *Metrics) overflow() {
	if m != nil {
		m.Overflows.Inc()
	}
}

func (m *Metrics) connect() {
	if m != nil {
		m.Connects.Inc()
	}
}

func (m *Metrics) disconnect() {
	if m != nil {
		m.Disconnects.Inc()
	}
}
