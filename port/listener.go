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
	"net"

	"github.com/rs/zerolog"
)

// ListenerPort is a Port that accepts peers from a net.Listener.
// Each accepted connection replaces the previous one.
type ListenerPort struct {
	*switcher
	l net.Listener
}

// NewListenerPort starts accepting connections.
func NewListenerPort(l net.Listener, log zerolog.Logger) *ListenerPort {
	s := newSwitcher()
	s.Log = log
	p := &ListenerPort{
		switcher: s,
		l:        l,
	}
	go p.accept()
	return p
}

func (p *ListenerPort) accept() {
	for {
		conn, err := p.l.Accept()
		if err != nil {
			p.Log.Debug().Err(err).Msg("accept")
			return
		}
		p.Log.Info().Str("remote", conn.RemoteAddr().String()).Msg("accepted")
		if err := p.attach(conn); err != nil {
			return
		}
	}
}

// Addr is the listener's address.
func (p *ListenerPort) Addr() net.Addr {
	return p.l.Addr()
}

func (p *ListenerPort) Close() error {
	err := p.l.Close()
	p.switcher.Close()
	return err
}
