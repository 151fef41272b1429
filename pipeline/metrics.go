// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess      = "success"
	outcomeError        = "error"
	outcomeTimeout      = "timeout"
	outcomeCancelled    = "cancelled"
	outcomeDisconnected = "disconnected"
	outcomeSendError    = "send_error"
)

type metrics struct {
	depth    *prometheus.GaugeVec
	outcomes *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		depth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jingle",
			Subsystem: "pipeline",
			Name:      "requests",
			Help:      "Requests currently tracked by the pipeline by list.",
		}, []string{"list"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jingle",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Requests completed by the pipeline by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *metrics) setDepth(p *Pipeline) {
	if m == nil {
		return
	}
	m.depth.WithLabelValues("pending").Set(float64(len(p.pending)))
	m.depth.WithLabelValues("in_flight").Set(float64(len(p.inFlight)))
	m.depth.WithLabelValues("zombie").Set(float64(len(p.zombies)))
}

func (m *metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}
