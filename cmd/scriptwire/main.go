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

// Package main is a host tool for a loader: it sends commands and
// modules, bridges the loader to MQTT, relays for other tools, and
// offers a REPL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Comcast/scriptwire/host"
	"github.com/Comcast/scriptwire/port"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version of this tool.
var Version = "0.0.1"

type options struct {
	reset   bool
	mqtt    string
	relay   string
	repl    bool
	wait    time.Duration
	verbose bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "scriptwire [flags] TARGET [ITEM...]",
		Short: "Talk to a script loader",
		Long: `scriptwire connects to a loader at TARGET (a device file, tcp://ADDR,
unix://PATH, or ws://ADDR/PATH) and processes each ITEM in order:

  reset         reset the loader's engine
  eval:SRC      evaluate SRC and print the results
  PATH          load a module: FILE.js, NAME=FILE.js, a Loader.cmd
                manifest, or a .zip/.jsz archive holding one

With --mqtt, --relay, or --repl it keeps running afterwards.`,
		Version:       Version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0], args[1:])
		},
	}

	fs := cmd.Flags()
	fs.BoolVarP(&opts.reset, "reset", "r", false, "reset before anything else")
	fs.StringVar(&opts.mqtt, "mqtt", "", "MQTT broker HOST[:PORT] to bridge to")
	fs.StringVar(&opts.relay, "relay", "", "Unix socket to relay commands from other tools")
	fs.BoolVar(&opts.repl, "repl", false, "read-eval-print loop after the items")
	fs.DurationVar(&opts.wait, "wait", 2*time.Second, "how long to wait for the loader's version line")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	return cmd
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", "scriptwire").Logger()
}

func run(ctx context.Context, opts options, target string, items []string) error {
	log := newLogger(opts.verbose)

	conn, err := port.Dial(ctx, target)
	if err != nil {
		return err
	}
	c := host.NewClient(conn,
		host.WithLog(log),
		host.WithUnrouted(printer(os.Stdout)))
	defer c.Close()

	wctx, cancel := context.WithTimeout(ctx, opts.wait)
	v, err := c.WaitVersion(wctx)
	cancel()
	switch {
	case err == nil:
		log.Info().Str("loader", v.String(2)).Msg("connected")
	case errors.Is(err, context.DeadlineExceeded):
		// A loader that was already running won't announce itself.
		log.Debug().Msg("no version line")
	default:
		return err
	}

	if opts.mqtt != "" {
		b, err := host.NewMQTTBroker(opts.mqtt, log)
		if err != nil {
			return err
		}
		defer b.Close()
		host.NewBridge(c, b, log)
	}

	if opts.reset {
		items = append([]string{"reset"}, items...)
	}
	if err := runItems(ctx, c, items, os.Stdout, os.Stderr); err != nil {
		return err
	}

	if opts.relay != "" {
		l, err := host.ListenUnix(opts.relay)
		if err != nil {
			return err
		}
		r := host.NewRelay(c, l, log)
		go func() {
			if err := r.Serve(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("relay")
			}
		}()
	}

	switch {
	case opts.repl:
		return repl(ctx, c, os.Stdout, os.Stderr)
	case opts.mqtt != "" || opts.relay != "":
		select {
		case <-ctx.Done():
		case <-c.Done():
			return c.Err()
		}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
