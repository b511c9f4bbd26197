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

// Package host is the other end of a loader's line: it sends
// commands, routes replies back to whoever asked, and bridges the
// loader to MQTT and to other host processes.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Comcast/scriptwire/mux"
	"github.com/Comcast/scriptwire/wire"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NoRet is the token for commands nobody waits for.
const NoRet = "noret"

// ErrClosed is returned when the connection to the loader is gone.
var ErrClosed = errors.New("connection closed")

// Reply is the outcome of one command.
type Reply struct {
	Token string

	// Lines are the packets tagged with the token before the ret
	// line.
	Lines []wire.Packet

	OK bool
}

// Errors returns the error lines.
func (r *Reply) Errors() []wire.Packet {
	var acc []wire.Packet
	for _, p := range r.Lines {
		if p.Kind() == "error" {
			acc = append(acc, p)
		}
	}
	return acc
}

// Route receives the packets for a token.  It's called from the
// Client's reader goroutine, so it shouldn't block.
type Route func(p wire.Packet)

// Client talks to a loader over conn.
type Client struct {
	Log zerolog.Logger

	conn io.ReadWriteCloser
	r    *wire.Reader
	wmu  sync.Mutex

	mu        sync.Mutex
	routes    map[string]Route
	intercept func(p wire.Packet) bool
	unrouted  Route
	versions  chan wire.Packet

	done chan struct{}
	err  error
}

// NewClient starts reading from conn.
func NewClient(conn io.ReadWriteCloser, opts ...func(*Client)) *Client {
	c := &Client{
		Log:      zerolog.Nop(),
		conn:     conn,
		r:        wire.NewReader(conn),
		routes:   make(map[string]Route),
		versions: make(chan wire.Packet, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.reader()
	return c
}

// WithLog sets the Client's logger.
func WithLog(log zerolog.Logger) func(*Client) {
	return func(c *Client) {
		c.Log = log
	}
}

// WithUnrouted sets the Client's handler for packets nobody is
// waiting for, like background output tagged "sched".
func WithUnrouted(r Route) func(*Client) {
	return func(c *Client) {
		c.unrouted = r
	}
}

// SetIntercept installs a function that sees every packet first.  If
// it returns true, the packet goes no further.
func (c *Client) SetIntercept(f func(p wire.Packet) bool) {
	c.mu.Lock()
	c.intercept = f
	c.mu.Unlock()
}

// SetUnrouted replaces the handler given by WithUnrouted.
func (c *Client) SetUnrouted(r Route) {
	c.mu.Lock()
	c.unrouted = r
	c.mu.Unlock()
}

// NewToken makes a token that is unique to this process and names
// it.
func NewToken() string {
	return fmt.Sprintf("%d/%s", os.Getpid(), uuid.NewString())
}

func (c *Client) reader() {
	defer close(c.done)
	for {
		p, err := c.r.ReadPacket()
		if err != nil {
			if err != io.EOF {
				c.Log.Warn().Err(err).Msg("read")
			}
			c.err = err
			return
		}
		c.dispatch(p)
	}
}

func (c *Client) dispatch(p wire.Packet) {
	c.Log.Debug().Str("token", p.Token()).Str("body", p.Body()).Msg("heard")

	if p.Token() == mux.DefaultToken && p.Kind() == "version" {
		select {
		case c.versions <- p:
		default:
		}
	}

	c.mu.Lock()
	intercept := c.intercept
	r, have := c.routes[p.Token()]
	unrouted := c.unrouted
	c.mu.Unlock()

	if intercept != nil && intercept(p) {
		return
	}

	switch {
	case have:
		r(p)
	case unrouted != nil:
		unrouted(p)
	default:
		c.Log.Info().Str("token", p.Token()).Msg(p.Body())
	}
}

// Route sends packets with the given token to r.
func (c *Client) Route(token string, r Route) {
	c.mu.Lock()
	c.routes[token] = r
	c.mu.Unlock()
}

func (c *Client) Unroute(token string) {
	c.mu.Lock()
	delete(c.routes, token)
	c.mu.Unlock()
}

// Send writes one packet.
func (c *Client) Send(fields ...[]byte) error {
	bs := wire.Append(nil, fields...)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write(bs)
	return err
}

// SendString is Send for strings.
func (c *Client) SendString(fields ...string) error {
	bs := wire.AppendString(nil, fields...)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write(bs)
	return err
}

// Do sends a command with a new token and waits for its ret line.
func (c *Client) Do(ctx context.Context, fields ...string) (*Reply, error) {
	token := NewToken()
	reply := &Reply{
		Token: token,
	}

	// After the ret line, reply belongs to the caller.
	var (
		mu       sync.Mutex
		over     bool
		finished = make(chan struct{})
	)
	c.Route(token, func(p wire.Packet) {
		mu.Lock()
		defer mu.Unlock()
		if over {
			return
		}
		if p.Kind() == "ret" {
			reply.OK = p.String(2) == "ok"
			over = true
			close(finished)
			return
		}
		reply.Lines = append(reply.Lines, p)
	})
	defer c.Unroute(token)

	if err := c.SendString(append([]string{token}, fields...)...); err != nil {
		return nil, err
	}

	select {
	case <-finished:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *Client) Reset(ctx context.Context) (*Reply, error) {
	return c.Do(ctx, "reset")
}

func (c *Client) Eval(ctx context.Context, src string) (*Reply, error) {
	return c.Do(ctx, "eval", src)
}

func (c *Client) Load(ctx context.Context, name, src string) (*Reply, error) {
	return c.Do(ctx, "load", name, src)
}

// Message delivers a message to the loader's handler.  Nothing comes
// back.
func (c *Client) Message(topic string, payload []byte) error {
	return c.Send([]byte(NoRet), []byte("msg"), []byte(topic), payload)
}

// WaitVersion waits for the loader to announce itself.
func (c *Client) WaitVersion(ctx context.Context) (wire.Packet, error) {
	select {
	case p := <-c.versions:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err is why the connection ended.  Only valid after Done.
func (c *Client) Err() error {
	return c.err
}

func (c *Client) Close() error {
	return c.conn.Close()
}
