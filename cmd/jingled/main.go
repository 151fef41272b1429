// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The jingled command logs in to an XMPP account and negotiates audio calls.
//
// It answers incoming calls when auto-answer is enabled and can ring a peer
// once it is logged in. Media is not sent; the command only negotiates codecs
// and candidates.
//
// For more information try running:
//
//	jingled --help
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"mellium.im/sasl"
	"mellium.im/xmpp"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/mux"
	"mellium.im/xmpp/stanza"

	"mellium.im/jingle"
	"mellium.im/jingle/eventloop"
	"mellium.im/jingle/internal/logging"
	"mellium.im/jingle/pipeline"
	"mellium.im/jingle/xmppconn"
)

func main() {
	cfg, err := parseArgs(os.Args[0], os.Args[1:], os.Getenv)
	switch {
	case errors.Is(err, pflag.ErrHelp):
		return
	case err != nil:
		fmt.Fprintf(os.Stderr, "jingled: %v\n", err)
		os.Exit(2)
	}

	logger := logging.Configure(logging.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("exiting")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger zerolog.Logger) error {
	set, err := cfg.settings()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("stopping metrics server")
			}
		}()
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	session, err := xmpp.DialClientSession(dialCtx, set.addr,
		xmpp.BindResource(),
		xmpp.StartTLS(&tls.Config{
			ServerName: set.addr.Domain().String(),
			MinVersion: tls.VersionTLS12,
		}),
		xmpp.SASL("", set.pass, sasl.ScramSha1Plus, sasl.ScramSha1, sasl.Plain),
	)
	cancel()
	if err != nil {
		return fmt.Errorf("logging in as %s: %w", set.addr, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Debug().Err(err).Msg("closing session")
		}
		if err := session.Conn().Close(); err != nil {
			logger.Debug().Err(err).Msg("closing connection")
		}
	}()
	local := session.LocalAddr()
	logger.Info().Stringer("jid", local).Msg("logged in")

	loop := eventloop.New()
	conn := xmppconn.New(session, loop, xmppconn.WithLogger(logger))
	defer conn.Close()
	requests := pipeline.New(conn, loop,
		pipeline.Capacity(cfg.PipelineCapacity),
		pipeline.Timeout(cfg.RequestTimeout),
		pipeline.Logger(logger),
		pipeline.Metrics(reg),
	)
	phone := newPhone(loop, set, cfg.AutoAnswer, logging.WithComponent(logger, "phone"))
	m := jingle.NewManager(local, conn, requests, loop,
		jingle.WithLogger(logger),
		jingle.WithTimeout(cfg.RequestTimeout),
		jingle.WithMetrics(reg),
		jingle.OnIncoming(phone.incoming),
	)

	// The loop outlives ctx so that calls can be hung up after a signal.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("event loop stopped")
		}
	}()

	err = session.Send(ctx, stanza.Presence{Type: stanza.AvailablePresence}.Wrap(nil))
	if err != nil {
		return fmt.Errorf("sending initial presence: %w", err)
	}

	if !set.call.Equal(jid.JID{}) {
		loop.Post(func() {
			phone.dial(m, set.call)
		})
	}

	serveErr := make(chan error, 1)
	go func() {
		h := conn.Handler(m)
		serveErr <- session.Serve(mux.New(stanza.NSClient, h.Options()...))
	}()

	select {
	case <-ctx.Done():
		err = nil
		if e := loop.Do(context.Background(), func() { phone.hangupAll() }); e != nil {
			logger.Debug().Err(e).Msg("hanging up")
		}
	case err = <-serveErr:
		logger.Info().Err(err).Msg("connection lost")
	}
	if e := loop.Do(context.Background(), m.Disconnected); e != nil {
		logger.Debug().Err(e).Msg("ending sessions")
	}
	stopLoop()
	<-loopDone
	return err
}

func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) *http.Server {
	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}
