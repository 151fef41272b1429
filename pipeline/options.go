// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option configures a pipeline.
type Option func(*Pipeline)

// Capacity sets the maximum number of requests on the wire at once.
// Values less than one are ignored.
func Capacity(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.capacity = n
		}
	}
}

// Timeout sets the default time to wait for a reply.
func Timeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Logger sets the logger used for debug output.
func Logger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// Metrics registers the pipeline's collectors with reg.
func Metrics(reg prometheus.Registerer) Option {
	return func(p *Pipeline) {
		if reg != nil {
			p.metrics = newMetrics(reg)
		}
	}
}
