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

// Package loader decodes commands from a byte stream and runs them
// against a scripting engine.
//
// Commands are lines of '|'-separated fields.  The first field is a
// token that tags every line of output the command produces, and the
// second names the command:
//
//   token|reset
//   token|eval|<source>
//   token|load|<module name>|<source>
//   token|msg|<topic>|<payload>
//
// Any field can be given as "&N", in which case the N bytes following
// the line (and a newline) are that field's content.  See package
// wire.
//
// Input is bounded by a Buffer.  Anything that doesn't fit, or that
// is misframed, is discarded up to the next newline.
package loader

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Comcast/scriptwire/engine"
	"github.com/Comcast/scriptwire/mux"
	"github.com/Comcast/scriptwire/port"

	"github.com/rs/zerolog"
)

var (
	// DefaultName and DefaultVersion are announced on every
	// connection.
	DefaultName    = "scriptwire"
	DefaultVersion = "0.0.1"

	// DefaultIdle is how long Poll suggests sleeping when nothing
	// happened.
	DefaultIdle = 50 * time.Millisecond

	// ReadSize is the chunk size for reads from the Port.
	ReadSize = 512
)

// Loader connects a Port to an Engine.
//
// Poll and Run must be called from one goroutine.  Notify can be
// called from anywhere.
type Loader struct {
	Port    port.Port
	Engine  engine.Engine
	Out     *mux.Writer
	Metrics *Metrics
	Log     zerolog.Logger

	Name    string
	Version string
	Idle    time.Duration

	dec       *Decoder
	disp      *Dispatcher
	connected bool
	chunk     []byte

	flags uint32
	wake  chan struct{}
}

// New makes a Loader.  The Engine should write to out, and out should
// write to the Port.  A nil buf gets a default growable Buffer.
func New(p port.Port, e engine.Engine, out *mux.Writer, buf *Buffer) *Loader {
	if buf == nil {
		buf = NewBuffer(DefaultSize, DefaultMaxSize)
	}
	return &Loader{
		Port:    p,
		Engine:  e,
		Out:     out,
		Log:     zerolog.Nop(),
		Name:    DefaultName,
		Version: DefaultVersion,
		Idle:    DefaultIdle,
		dec:     NewDecoder(buf),
		wake:    make(chan struct{}, 1),
	}
}

// Decoder exposes the Loader's Decoder.
func (l *Loader) Decoder() *Decoder {
	return l.dec
}

// Connected reports whether the last Poll saw a connection.
func (l *Loader) Connected() bool {
	return l.connected
}

func (l *Loader) dispatcher() *Dispatcher {
	if l.disp == nil {
		l.disp = &Dispatcher{
			Engine:  l.Engine,
			Out:     l.Out,
			Metrics: l.Metrics,
			Log:     l.Log,
		}
	}
	return l.disp
}

// Notify sets bits in the flags passed to the next Engine.Tick and
// wakes Run.
func (l *Loader) Notify(bits uint32) {
	for {
		old := atomic.LoadUint32(&l.flags)
		if atomic.CompareAndSwapUint32(&l.flags, old, old|bits) {
			break
		}
	}
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Poll handles connection changes and feeds all available input.  It
// returns how long the caller may sleep: zero when something
// happened, Idle otherwise.
//
// Every connection and every disconnection discards partial input,
// including a raw block in progress.
func (l *Loader) Poll(ctx context.Context) time.Duration {
	if !l.connected {
		if !l.Port.Connected() {
			return l.Idle
		}
		l.connected = true
		l.Metrics.connect()
		l.dec.Reset()
		l.Out.SetToken(mux.DefaultToken)
		if err := l.Out.Version(l.Name, l.Version); err != nil {
			l.Log.Warn().Err(err).Msg("write version")
		}
		l.Log.Info().Msg("connected")
		return 0
	}

	if !l.Port.Connected() {
		l.connected = false
		l.Metrics.disconnect()
		l.dec.Reset()
		l.Log.Info().Msg("disconnected")
		return l.Idle
	}

	if l.chunk == nil {
		l.chunk = make([]byte, ReadSize)
	}

	got := 0
	for ctx.Err() == nil {
		n, err := l.Port.Read(l.chunk)
		for _, c := range l.chunk[:n] {
			l.Feed(ctx, c)
		}
		got += n
		if err != nil {
			l.Log.Debug().Err(err).Msg("read")
			break
		}
		if n == 0 {
			break
		}
	}
	l.Metrics.fed(got)

	if 0 < got {
		return 0
	}
	return l.Idle
}

// Feed consumes one byte, running the command it completes, if any.
func (l *Loader) Feed(ctx context.Context, c byte) {
	f, err := l.dec.Feed(c)
	if err != nil {
		l.report(err)
	}
	if f != nil {
		l.dispatcher().Run(ctx, f)
		l.dec.Reset()
	}
}

func (l *Loader) report(err error) {
	var pe *ParseError
	if errors.As(err, &pe) {
		l.Metrics.parseError()
	} else {
		l.Metrics.overflow()
	}
	l.Log.Debug().Err(err).Str("mode", l.dec.Mode().String()).Msg("input dropped")
	l.Out.Errorf("%s", err)
}

// Run resets the engine and then loops until ctx is done: tick the
// engine, poll the port, and sleep as long as both allow or until the
// port has input or Notify is called.
func (l *Loader) Run(ctx context.Context) error {
	if err := l.Engine.Reset(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-l.Port.Ready():
		case <-l.wake:
		}

		flags := atomic.SwapUint32(&l.flags, 0)
		tick := l.Engine.Tick(ctx, flags)
		poll := l.Poll(ctx)

		sleep := tick
		if poll < sleep {
			sleep = poll
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(sleep)
	}
}
