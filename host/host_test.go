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
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/scriptwire/engine/goja"
	"github.com/Comcast/scriptwire/loader"
	"github.com/Comcast/scriptwire/mux"
	"github.com/Comcast/scriptwire/port"
	"github.com/Comcast/scriptwire/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	return ctx
}

// startDevice runs a loader with a real engine at the other end of a
// pipe.
func startDevice(t *testing.T, opts ...func(*Client)) *Client {
	t.Helper()
	hostEnd, devEnd := net.Pipe()

	p := port.NewStreamPort(devEnd)
	out := mux.NewWriter(p)
	e := goja.NewEngine(out)
	l := loader.New(p, e, out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()

	c := NewClient(hostEnd, opts...)
	t.Cleanup(func() {
		cancel()
		<-done
		c.Close()
		p.Close()
	})

	v, err := c.WaitVersion(testContext(t))
	require.NoError(t, err)
	require.Equal(t, "version|scriptwire,0.0.1", v.Body())

	return c
}

func TestClientCommands(t *testing.T) {
	c := startDevice(t)
	ctx := testContext(t)

	r, err := c.Reset(ctx)
	require.NoError(t, err)
	assert.True(t, r.OK)
	assert.Empty(t, r.Lines)

	r, err = c.Eval(ctx, "1 + 2")
	require.NoError(t, err)
	assert.True(t, r.OK)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, "3", r.Lines[0].Body())

	r, err = c.Eval(ctx, "function (")
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Len(t, r.Errors(), 1)

	r, err = c.Load(ctx, "mod", "return {a: 'x|y'};")
	require.NoError(t, err)
	assert.True(t, r.OK)

	r, err = c.Eval(ctx, "mod.a")
	require.NoError(t, err)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, "x|y", r.Lines[0].Body())
}

func TestClientMessage(t *testing.T) {
	c := startDevice(t)
	ctx := testContext(t)

	r, err := c.Eval(ctx, "var got = []; var MQ = {OnMessage: function(t, p) { got.push(t + '=' + p); }};")
	require.NoError(t, err)
	require.True(t, r.OK)

	require.NoError(t, c.Message("a/b", []byte("one|two\n")))

	r, err = c.Eval(ctx, "JSON.stringify(got)")
	require.NoError(t, err)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, `["a/b=one|two\n"]`, r.Lines[0].Body())
}

func TestClientUnrouted(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()

	heard := make(chan wire.Packet, 4)
	c := NewClient(hostEnd, WithUnrouted(func(p wire.Packet) {
		heard <- p
	}))
	defer c.Close()

	go devEnd.Write([]byte("sched|background\nplain text\n"))

	for _, want := range []string{"sched", "plain text"} {
		select {
		case p := <-heard:
			assert.Equal(t, want, p.Token())
		case <-time.After(waitFor):
			t.Fatal("nothing heard")
		}
	}
}

func TestClientDoCanceled(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()
	go io.Copy(io.Discard, devEnd)

	c := NewClient(hostEnd)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Eval(ctx, "1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientDoClosed(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	c := NewClient(hostEnd)
	defer c.Close()

	go func() {
		io.ReadFull(devEnd, make([]byte, 1))
		devEnd.Close()
	}()

	_, err := c.Reset(testContext(t))
	assert.Error(t, err)

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("not done")
	}
	_, err = c.WaitVersion(testContext(t))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewToken(t *testing.T) {
	a, b := NewToken(), NewToken()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.Contains(a, "/"))
	assert.True(t, wire.IsClean([]byte(a)))
}

func TestClientIgnoresAfterRet(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()

	marks := make(chan wire.Packet, 1)
	c := NewClient(hostEnd, WithUnrouted(func(p wire.Packet) {
		marks <- p
	}))
	defer c.Close()

	go func() {
		p, err := wire.NewReader(devEnd).ReadPacket()
		if err != nil {
			return
		}
		token := p.Token()
		devEnd.Write([]byte(token + "|ret|ok\n" + token + "|late\nsched|mark\n"))
	}()

	r, err := c.Eval(testContext(t), "1")
	require.NoError(t, err)

	select {
	case p := <-marks:
		assert.Equal(t, "mark", p.Kind())
	case <-time.After(waitFor):
		t.Fatal("no mark")
	}

	assert.True(t, r.OK)
	assert.Empty(t, r.Lines)
}
