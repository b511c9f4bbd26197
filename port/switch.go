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

package port

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// switcher serves one peer at a time.  A new peer replaces the old
// one.
type switcher struct {
	sync.Mutex

	cur     *StreamPort
	bounced bool
	closed  bool
	ready   chan struct{}

	Log zerolog.Logger
}

func newSwitcher() *switcher {
	return &switcher{
		ready: make(chan struct{}, 1),
		Log:   zerolog.Nop(),
	}
}

// attach makes rwc the current peer.
func (s *switcher) attach(rwc io.ReadWriteCloser) error {
	s.Lock()
	if s.closed {
		s.Unlock()
		rwc.Close()
		return ErrClosed
	}
	old := s.cur
	s.cur = newStreamPort(rwc, s.ready)
	if old != nil {
		// Make sure the loader sees a disconnect between the
		// two peers.
		s.bounced = true
	}
	s.Unlock()

	if old != nil {
		s.Log.Info().Msg("replacing peer")
		old.Close()
	}
	signal(s.ready)
	return nil
}

func (s *switcher) current() *StreamPort {
	s.Lock()
	defer s.Unlock()
	return s.cur
}

func (s *switcher) Connected() bool {
	s.Lock()
	defer s.Unlock()
	if s.bounced {
		s.bounced = false
		return false
	}
	if s.cur == nil {
		return false
	}
	return s.cur.Connected()
}

func (s *switcher) Read(p []byte) (int, error) {
	if cur := s.current(); cur != nil {
		return cur.Read(p)
	}
	return 0, nil
}

func (s *switcher) Write(p []byte) (int, error) {
	cur := s.current()
	if cur == nil {
		return len(p), nil
	}
	n, err := cur.Write(p)
	if err != nil {
		// The peer is going away.
		s.Log.Debug().Err(err).Msg("write")
		return len(p), nil
	}
	return n, nil
}

func (s *switcher) Ready() <-chan struct{} {
	return s.ready
}

func (s *switcher) Close() error {
	s.Lock()
	cur := s.cur
	s.cur = nil
	s.closed = true
	s.Unlock()
	if cur != nil {
		return cur.Close()
	}
	return nil
}
