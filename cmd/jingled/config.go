// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
	"mellium.im/xmpp/jid"

	"mellium.im/jingle"
	"mellium.im/jingle/transport"
)

const (
	envAddr = "JINGLED_ADDR"
	envPass = "JINGLED_PASS"
)

// Config is the configuration file of jingled.
type Config struct {
	JID              string        `yaml:"jid"`
	Password         string        `yaml:"password"`
	Dialect          string        `yaml:"dialect"`
	Transport        string        `yaml:"transport"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	PipelineCapacity int           `yaml:"pipeline_capacity"`
	AutoAnswer       bool          `yaml:"auto_answer"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	MediaAddr        string        `yaml:"media_addr"`
	Call             string        `yaml:"call"`
	Log              LogConfig     `yaml:"log"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// settings are the parsed and validated form of Config.
type settings struct {
	addr      jid.JID
	pass      string
	dialect   jingle.Dialect
	transport string
	media     transport.Candidate
	call      jid.JID
}

var transports = map[string]string{
	"ice-udp":    transport.NSICEUDP,
	"raw-udp":    transport.NSRawUDP,
	"google-p2p": transport.NSGoogleP2P,
}

func defaultConfig() Config {
	return Config{
		Dialect:          jingle.DialectV032.String(),
		Transport:        "ice-udp",
		RequestTimeout:   3 * time.Minute,
		PipelineCapacity: 10,
		MediaAddr:        "127.0.0.1:5004",
		Log:              LogConfig{Level: "info"},
	}
}

// loadConfig reads path, if any, on top of the defaults and applies the
// environment.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if v := getenv(envAddr); v != "" {
		cfg.JID = v
	}
	if v := getenv(envPass); v != "" {
		cfg.Password = v
	}
	return cfg, nil
}

// addFlags registers flags that override the configuration file.
func (c *Config) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.JID, "jid", c.JID, "the address to log in as (or $"+envAddr+")")
	flags.StringVar(&c.Dialect, "dialect", c.Dialect, "dialect of outgoing calls (jingle, jingle015, gtalk4, gtalk3)")
	flags.StringVar(&c.Transport, "transport", c.Transport, "transport of outgoing calls (ice-udp, raw-udp, google-p2p)")
	flags.DurationVar(&c.RequestTimeout, "timeout", c.RequestTimeout, "how long to wait for the peer to answer a request")
	flags.IntVar(&c.PipelineCapacity, "capacity", c.PipelineCapacity, "maximum number of requests in flight")
	flags.BoolVar(&c.AutoAnswer, "auto-answer", c.AutoAnswer, "accept incoming calls")
	flags.StringVar(&c.MetricsAddr, "metrics", c.MetricsAddr, "serve prometheus metrics on this address")
	flags.StringVar(&c.MediaAddr, "media", c.MediaAddr, "host candidate offered for audio")
	flags.StringVar(&c.Call, "call", c.Call, "call this address once logged in")
	flags.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level (debug, info, warn, error)")
	flags.BoolVar(&c.Log.Console, "console", c.Log.Console, "human readable logs")
}

// parseArgs loads the configuration file named by --config and applies the
// flags that were set on top of it.
func parseArgs(name string, args []string, getenv func(string) string) (Config, error) {
	var path string
	cli := defaultConfig()
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.StringVarP(&path, "config", "c", "", "path to a YAML configuration file")
	cli.addFlags(flags)
	if err := flags.Parse(args); err != nil {
		return cli, err
	}

	cfg, err := loadConfig(path, getenv)
	if err != nil {
		return cfg, err
	}
	over := pflag.NewFlagSet(name, pflag.ContinueOnError)
	cfg.addFlags(over)
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || err != nil {
			return
		}
		err = over.Set(f.Name, f.Value.String())
	})
	return cfg, err
}

func (c Config) settings() (settings, error) {
	var s settings
	var err error
	if c.JID == "" {
		return s, errors.New("no address configured")
	}
	s.addr, err = jid.Parse(c.JID)
	if err != nil {
		return s, fmt.Errorf("invalid address %q: %w", c.JID, err)
	}
	if c.Password == "" {
		return s, errors.New("no password configured, set " + envPass)
	}
	s.pass = c.Password
	s.dialect, err = jingle.ParseDialect(c.Dialect)
	if err != nil {
		return s, err
	}
	var ok bool
	s.transport, ok = transports[c.Transport]
	if !ok {
		return s, fmt.Errorf("unknown transport %q", c.Transport)
	}
	if s.dialect.IsGoogle() != (s.transport == transport.NSGoogleP2P) {
		return s, fmt.Errorf("transport %s cannot be used with %s", c.Transport, s.dialect)
	}
	if c.PipelineCapacity < 1 {
		return s, fmt.Errorf("invalid pipeline capacity %d", c.PipelineCapacity)
	}
	s.media, err = hostCandidate(c.MediaAddr)
	if err != nil {
		return s, err
	}
	if c.Call != "" {
		s.call, err = jid.Parse(c.Call)
		if err != nil {
			return s, fmt.Errorf("invalid call address %q: %w", c.Call, err)
		}
	}
	return s, nil
}

func hostCandidate(addr string) (transport.Candidate, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return transport.Candidate{}, fmt.Errorf("invalid media address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return transport.Candidate{}, fmt.Errorf("invalid media port %q", portStr)
	}
	return transport.Candidate{
		ID:         "host1",
		Component:  transport.ComponentRTP,
		Foundation: "1",
		Address:    host,
		Port:       port,
		Protocol:   "udp",
		Priority:   2130706431,
		Type:       transport.HostCandidate,
		Username:   "jingled",
		Password:   "jingled",
		Preference: 1,
	}, nil
}
