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
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketPort is a Port and an http.Handler.  Each WebSocket client
// replaces the previous one.  Messages in either direction are just
// chunks of the byte stream.
type WebSocketPort struct {
	*switcher
	upgrader websocket.Upgrader
}

func NewWebSocketPort(log zerolog.Logger) *WebSocketPort {
	s := newSwitcher()
	s.Log = log
	return &WebSocketPort{
		switcher: s,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (p *WebSocketPort) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.Log.Warn().Err(err).Msg("upgrade")
		return
	}
	p.Log.Info().Str("remote", r.RemoteAddr).Msg("websocket peer")
	if err := p.attach(WebSocketStream(c)); err != nil {
		p.Log.Debug().Err(err).Msg("attach")
	}
}

type wsStream struct {
	c   *websocket.Conn
	r   io.Reader
	wmu sync.Mutex
}

// WebSocketStream presents a WebSocket connection as a byte stream.
// Writes are sent as binary messages.
func WebSocketStream(c *websocket.Conn) io.ReadWriteCloser {
	return &wsStream{c: c}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			_, r, err := s.c.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			s.r = r
		}
		n, err := s.r.Read(p)
		if err == io.EOF {
			s.r = nil
			if 0 < n {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	s.wmu.Lock()
	s.c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.wmu.Unlock()
	return s.c.Close()
}
