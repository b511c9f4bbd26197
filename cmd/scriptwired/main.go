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

// Package main is a loader daemon: it listens on a port, runs
// commands from a host with an embedded engine, and reports on
// stdout/stderr with structured logs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Comcast/scriptwire/engine/engines"
	"github.com/Comcast/scriptwire/loader"
	"github.com/Comcast/scriptwire/mux"
	"github.com/Comcast/scriptwire/port"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// parseFlags loads the configuration file named by -config and then
// applies any flags that were given.
func parseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	var (
		configFile = fs.String("config", "", "YAML configuration file")
		listen     = fs.String("listen", "", "port: stdio, PATH, tcp://ADDR, unix://PATH, ws://ADDR/PATH")
		engine     = fs.String("engine", "", fmt.Sprintf("engine kind %v", engines.Names()))
		extended   = fs.Bool("extended", false, "enable extended engine builtins")
		timeout    = fs.Duration("timeout", 0, "bound on each engine call")
		idle       = fs.Duration("idle", 0, "longest sleep between polls")
		metrics    = fs.String("metrics", "", "address to serve /metrics")
		level      = fs.String("log-level", "", "log level")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	c, err := LoadConfig(*configFile)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			c.Listen = *listen
		case "engine":
			c.Engine.Kind = *engine
		case "extended":
			c.Engine.Extended = *extended
		case "timeout":
			c.Engine.Timeout = timeout.String()
		case "idle":
			c.Idle = idle.String()
		case "metrics":
			c.Metrics = *metrics
		case "log-level":
			c.Log.Level = *level
		}
	})
	if fs.NArg() == 1 {
		c.Listen = fs.Arg(0)
	} else if 1 < fs.NArg() {
		return nil, fmt.Errorf("at most one port target, got %v", fs.Args())
	}

	return c, c.Validate()
}

func newLogger(c *Config) zerolog.Logger {
	level, _ := c.LogLevel()
	out := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", c.Name).Logger()
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log zerolog.Logger) {
	hm := http.NewServeMux()
	hm.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s := &http.Server{
		Addr:              addr,
		Handler:           hm,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server")
		}
	}()
}

func run(ctx context.Context, c *Config, log zerolog.Logger) error {
	idle, _ := c.IdleDuration()
	timeout, _ := c.EngineTimeout()

	p, err := port.Listen(c.Listen, log.With().Str("port", c.Listen).Logger())
	if err != nil {
		return err
	}
	defer p.Close()

	out := mux.NewWriter(p)
	e, err := engines.New(c.EngineName(), engines.Options{
		Out:     out,
		Timeout: timeout,
		Log:     log.With().Str("engine", c.EngineName()).Logger(),
	})
	if err != nil {
		return err
	}

	l := loader.New(p, e, out, c.NewBuffer())
	l.Name = c.Name
	l.Version = c.Version
	l.Idle = idle
	l.Log = log

	if c.Metrics != "" {
		reg := prometheus.NewRegistry()
		l.Metrics = loader.NewMetrics()
		if err := l.Metrics.Register(reg); err != nil {
			return err
		}
		serveMetrics(ctx, c.Metrics, reg, log)
	}

	log.Info().
		Str("listen", c.Listen).
		Str("engine", c.EngineName()).
		Int("buffer", c.Buffer.Size).
		Msg("loader starting")

	err = l.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func main() {
	c, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := newLogger(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, c, log); err != nil {
		log.Fatal().Err(err).Msg("loader stopped")
	}
	log.Info().Msg("loader stopped")
}
