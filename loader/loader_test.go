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

package loader

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/scriptwire/mux"
	. "github.com/Comcast/scriptwire/util/testutil"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader() (*Loader, *PipePort, *Engine) {
	p := NewPipePort()
	e := NewEngine()
	out := mux.NewWriter(p)
	e.Out = out
	l := New(p, e, out, nil)
	l.Metrics = NewMetrics()
	return l, p, e
}

func poll(l *Loader) time.Duration {
	return l.Poll(context.Background())
}

func TestPollIdleWhenDisconnected(t *testing.T) {
	l, p, _ := newTestLoader()

	assert.Equal(t, DefaultIdle, poll(l))
	assert.Empty(t, p.Output())
	assert.False(t, l.Connected())
}

func TestPollConnectAnnounces(t *testing.T) {
	l, p, _ := newTestLoader()
	l.Out.SetToken("stale")

	p.SetConnected(true)
	assert.Equal(t, time.Duration(0), poll(l))
	assert.Equal(t, "sched|version|scriptwire,0.0.1\n", p.Output())
	assert.True(t, l.Connected())

	assert.Equal(t, DefaultIdle, poll(l))
	assert.Empty(t, p.Output())
}

func TestPollRunsCommands(t *testing.T) {
	l, p, e := newTestLoader()
	p.SetConnected(true)
	poll(l)
	p.Output()

	p.Send("t1|reset\nt2|load|m|&3\nabc\n")
	assert.Equal(t, time.Duration(0), poll(l))
	assert.Equal(t, []string{"t1|ret|ok", "t2|ret|ok"}, Lines(p.Output()))
	assert.Equal(t, []string{"reset", "run"}, e.Ops())
	assert.Equal(t, "abc", e.Calls[1].Src)

	assert.Equal(t, 26.0, testutil.ToFloat64(l.Metrics.BytesFed))
}

func TestPollReportsBadInput(t *testing.T) {
	l, p, e := newTestLoader()
	p.SetConnected(true)
	poll(l)
	p.Output()

	p.Send("t|eval|&zz\nt|reset\n")
	poll(l)

	lines := Lines(p.Output())
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "sched|error|loader.go:"), lines[0])
	assert.True(t, strings.HasSuffix(lines[0], ",invalid raw byte count '&zz'"), lines[0])
	assert.Equal(t, "t|ret|ok", lines[1])
	assert.Equal(t, []string{"reset"}, e.Ops())
	assert.Equal(t, 1.0, testutil.ToFloat64(l.Metrics.ParseErrors))
}

func TestPollOverflowReportedOnce(t *testing.T) {
	l, p, _ := newTestLoader()
	p.SetConnected(true)
	poll(l)
	p.Output()

	p.Send(strings.Repeat("a", DefaultMaxSize+100) + "\nt|reset\n")
	poll(l)

	lines := Lines(p.Output())
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], ",input buffer overflow"), lines[0])
	assert.Equal(t, "t|ret|ok", lines[1])
	assert.Equal(t, 1.0, testutil.ToFloat64(l.Metrics.Overflows))
}

func TestDisconnectMidRawResets(t *testing.T) {
	l, p, e := newTestLoader()
	p.SetConnected(true)
	poll(l)

	p.Send("x|load|mod|&10\nhel")
	poll(l)
	require.Equal(t, RawMode, l.Decoder().Mode())

	p.SetConnected(false)
	assert.Equal(t, DefaultIdle, poll(l))
	assert.False(t, l.Connected())
	assert.Equal(t, LineMode, l.Decoder().Mode())

	p.SetConnected(true)
	poll(l)
	p.Output()

	p.Send("y|reset\n")
	poll(l)
	assert.Equal(t, []string{"y|ret|ok"}, Lines(p.Output()))
	assert.Equal(t, []string{"reset"}, e.Ops())

	assert.Equal(t, 2.0, testutil.ToFloat64(l.Metrics.Connects))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.Metrics.Disconnects))
}

func TestReconnectDropsPartialLine(t *testing.T) {
	l, p, e := newTestLoader()
	p.SetConnected(true)
	poll(l)

	p.Send("x|ev")
	poll(l)

	// A reconnect that the loader only sees as a connect.
	l.connected = false
	poll(l)
	p.Output()

	p.Send("al|1\n")
	poll(l)
	assert.Empty(t, e.Calls)
}

func TestRun(t *testing.T) {
	l, p, e := newTestLoader()
	e.TickAfter = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- l.Run(ctx)
	}()

	p.SetConnected(true)
	require.Eventually(t, func() bool {
		return strings.Contains(p.Output(), "version")
	}, time.Second, 5*time.Millisecond)

	p.Send("t|reset\n")
	var got strings.Builder
	require.Eventually(t, func() bool {
		got.WriteString(p.Output())
		return strings.Contains(got.String(), "t|ret|ok")
	}, time.Second, 5*time.Millisecond)

	l.Notify(1)
	l.Notify(4)
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))

	// One reset from Run, one from the command.
	assert.Equal(t, []string{"reset", "reset"}, e.Ops())

	var flags uint32
	for _, f := range e.Ticks {
		flags |= f
	}
	assert.Equal(t, uint32(5), flags)
}
