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
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Comcast/scriptwire/wire"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay(t *testing.T) {
	c := startDevice(t)

	sock := filepath.Join(t.TempDir(), "relay.sock")
	l, err := ListenUnix(sock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- NewRelay(c, l, zerolog.Nop()).Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-served
	})

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	down := NewClient(conn)
	defer down.Close()

	v, err := down.WaitVersion(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "version|relay,0.0.1", v.Body())

	r, err := down.Eval(testContext(t), "40 + 2")
	require.NoError(t, err)
	assert.True(t, r.OK)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, "42", r.Lines[0].Body())

	// The upstream client still works alongside.
	r, err = c.Eval(testContext(t), "'up'")
	require.NoError(t, err)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, "up", r.Lines[0].Body())
}

func TestListenUnixStale(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "stale.sock")

	l, err := ListenUnix(sock)
	require.NoError(t, err)
	// Leave the socket file behind.
	l.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, l.Close())
	_, err = os.Lstat(sock)
	require.NoError(t, err)

	l, err = ListenUnix(sock)
	require.NoError(t, err)
	l.Close()
}

func TestRelayDownstreamsGone(t *testing.T) {
	c := startDevice(t)

	sock := filepath.Join(t.TempDir(), "relay.sock")
	l, err := ListenUnix(sock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- NewRelay(c, l, zerolog.Nop()).Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-served
	})

	visit := func() {
		conn, err := net.Dial("unix", sock)
		require.NoError(t, err)
		p, err := wire.NewReader(conn).ReadPacket()
		require.NoError(t, err)
		require.Equal(t, "version", p.Kind())
		conn.Close()
	}

	// The first visit starts everything Serve runs for good.
	visit()
	time.Sleep(50 * time.Millisecond)
	before := runtime.NumGoroutine()

	for i := 0; i < 20; i++ {
		visit()
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, waitFor, 10*time.Millisecond)
}
