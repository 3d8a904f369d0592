// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Login attempt outcomes used as metric labels.
const (
	outcomeSuccess            = "success"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeLocked             = "locked"
	outcomeError              = "error"
)

// Metrics holds Prometheus instruments for authentication events.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LoginAttempts *prometheus.CounterVec
	Lockouts      prometheus.Counter
}

// NewMetrics creates and registers authentication metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_lockouts_total",
			Help: "Total number of accounts locked after repeated failures",
		}),
	}

	reg.MustRegister(m.LoginAttempts)
	reg.MustRegister(m.Lockouts)

	return m
}

func (m *Metrics) attempt(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) lockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}
