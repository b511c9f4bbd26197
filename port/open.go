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
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Listen opens the device side of a transport.
//
//   stdio                 standard input and output
//   file://PATH           a character device, like a serial port
//   tcp://HOST:PORT       one TCP peer at a time
//   unix://PATH           one Unix socket peer at a time
//   ws://HOST:PORT/PATH   one WebSocket peer at a time
func Listen(target string, log zerolog.Logger) (Port, error) {
	if target == "stdio" || target == "-" {
		return NewStreamPort(Stdio()), nil
	}

	scheme, addr, have := strings.Cut(target, "://")
	if !have {
		return nil, fmt.Errorf("bad listen target %q", target)
	}

	switch scheme {
	case "file":
		f, err := os.OpenFile(addr, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		return NewStreamPort(f), nil

	case "tcp", "unix":
		l, err := net.Listen(scheme, addr)
		if err != nil {
			return nil, err
		}
		return NewListenerPort(l, log), nil

	case "ws":
		host, path := addr, "/"
		if i := strings.IndexByte(addr, '/'); 0 <= i {
			host, path = addr[:i], addr[i:]
		}
		l, err := net.Listen("tcp", host)
		if err != nil {
			return nil, err
		}
		p := NewWebSocketPort(log)
		mux := http.NewServeMux()
		mux.Handle(path, p)
		go func() {
			if err := http.Serve(l, mux); err != nil {
				log.Debug().Err(err).Msg("websocket server")
			}
		}()
		return &servedPort{WebSocketPort: p, l: l}, nil

	default:
		return nil, fmt.Errorf("unknown scheme %q", scheme)
	}
}

type servedPort struct {
	*WebSocketPort
	l net.Listener
}

func (p *servedPort) Close() error {
	err := p.l.Close()
	p.WebSocketPort.Close()
	return err
}

// Dial opens the host side of a transport.  Targets are as for
// Listen, with "ws" and "wss" URLs given in full, and a bare path
// taken to be a device file.
func Dial(ctx context.Context, target string) (io.ReadWriteCloser, error) {
	scheme, addr, have := strings.Cut(target, "://")
	if !have {
		scheme, addr = "file", target
	}

	switch scheme {
	case "file":
		return os.OpenFile(addr, os.O_RDWR, 0)
	case "tcp", "unix":
		var d net.Dialer
		return d.DialContext(ctx, scheme, addr)
	case "ws", "wss":
		c, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
		if err != nil {
			return nil, err
		}
		return WebSocketStream(c), nil
	default:
		return nil, fmt.Errorf("unknown scheme %q", scheme)
	}
}

type stdio struct{}

// Stdio is standard input and output as one stream.  Closing it
// closes standard input.
func Stdio() io.ReadWriteCloser {
	return stdio{}
}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return os.Stdin.Close() }
