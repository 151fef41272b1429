// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	sessions     prometheus.Gauge
	actions      *prometheus.CounterVec
	terminations *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "jingle",
			Name:      "sessions",
			Help:      "Sessions currently known to the manager.",
		}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jingle",
			Name:      "actions_total",
			Help:      "Actions received from peers by action and result.",
		}, []string{"action", "result"}),
		terminations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jingle",
			Name:      "terminations_total",
			Help:      "Sessions ended by reason.",
		}, []string{"reason"}),
	}
}

func (m *metrics) setSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *metrics) action(a Action, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = strings.ReplaceAll(KindOf(err).String(), " ", "_")
	}
	m.actions.WithLabelValues(a.String(), result).Inc()
}

func (m *metrics) terminated(r Reason) {
	if m == nil {
		return
	}
	m.terminations.WithLabelValues(r.String()).Inc()
}
