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

package host

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/Comcast/scriptwire/mux"
	"github.com/Comcast/scriptwire/wire"

	"github.com/rs/zerolog"
)

// Relay lets other host processes share a Client's loader.
//
// Commands from a downstream connection are forwarded as is.  Output
// tagged with the token of a downstream's latest command goes back
// to that downstream.
type Relay struct {
	// Name and Version are announced to each downstream when it
	// connects.
	Name, Version string

	Log zerolog.Logger

	c *Client
	l net.Listener
}

// ListenUnix listens on a Unix socket, replacing a stale socket file.
func ListenUnix(path string) (net.Listener, error) {
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}
	return net.Listen("unix", path)
}

func NewRelay(c *Client, l net.Listener, log zerolog.Logger) *Relay {
	return &Relay{
		Name:    "relay",
		Version: "0.0.1",
		Log:     log,
		c:       c,
		l:       l,
	}
}

// Serve accepts downstream connections until ctx is done or the
// listener fails.
func (r *Relay) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		r.l.Close()
	}()

	for {
		conn, err := r.l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go r.handle(ctx, conn)
	}
}

func (r *Relay) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	log := r.Log.With().Str("downstream", conn.RemoteAddr().String()).Logger()
	log.Info().Msg("downstream connected")

	var wmu sync.Mutex
	write := func(p wire.Packet) {
		bs := wire.Append(nil, p...)
		wmu.Lock()
		defer wmu.Unlock()
		if _, err := conn.Write(bs); err != nil {
			log.Debug().Err(err).Msg("write")
		}
	}

	write(wire.Packet{
		[]byte(mux.DefaultToken),
		[]byte("version"),
		[]byte(r.Name + "," + r.Version),
	})

	last := ""
	defer func() {
		if last != "" {
			r.c.Unroute(last)
		}
	}()

	in := wire.NewReader(conn)
	for {
		p, err := in.ReadPacket()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Msg("read")
			}
			log.Info().Msg("downstream gone")
			return
		}

		if last != "" {
			r.c.Unroute(last)
			last = ""
		}
		if token := p.Token(); token != "" && token != NoRet {
			r.c.Route(token, write)
			last = token
		}

		if err := r.c.Send(p...); err != nil {
			log.Warn().Err(err).Msg("forward")
			return
		}
	}
}
