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
)

// StreamPort is a Port over one io.ReadWriteCloser, like stdio or a
// serial device.  It is connected until its input ends.
type StreamPort struct {
	rwc    io.ReadWriteCloser
	chunks chan []byte
	done   chan struct{}
	quit   chan struct{}
	ready  chan struct{}

	// pending is only touched by Read.
	pending []byte

	wmu    sync.Mutex
	closed sync.Once

	// Err is the error that ended input, if any other than EOF.
	// Only meaningful after Connected returns false.
	Err error
}

// NewStreamPort starts reading from rwc.
func NewStreamPort(rwc io.ReadWriteCloser) *StreamPort {
	return newStreamPort(rwc, make(chan struct{}, 1))
}

func newStreamPort(rwc io.ReadWriteCloser, ready chan struct{}) *StreamPort {
	p := &StreamPort{
		rwc:    rwc,
		chunks: make(chan []byte, 16),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
		ready:  ready,
	}
	go p.reader()
	return p
}

func (p *StreamPort) reader() {
	defer func() {
		close(p.done)
		signal(p.ready)
	}()
	buf := make([]byte, 4096)
	for {
		n, err := p.rwc.Read(buf)
		if 0 < n {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case p.chunks <- chunk:
			case <-p.quit:
				return
			}
			signal(p.ready)
		}
		if err != nil {
			if err != io.EOF {
				p.Err = err
			}
			return
		}
	}
}

// Connected is true while input is still possible or still pending.
func (p *StreamPort) Connected() bool {
	if 0 < len(p.pending) || 0 < len(p.chunks) {
		return true
	}
	select {
	case <-p.done:
		return 0 < len(p.chunks)
	default:
		return true
	}
}

func (p *StreamPort) Read(bs []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case chunk := <-p.chunks:
			p.pending = chunk
		default:
			return 0, nil
		}
	}
	n := copy(bs, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *StreamPort) Write(bs []byte) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.rwc.Write(bs)
}

func (p *StreamPort) Ready() <-chan struct{} {
	return p.ready
}

func (p *StreamPort) Close() error {
	err := ErrClosed
	p.closed.Do(func() {
		close(p.quit)
		err = p.rwc.Close()
	})
	return err
}

// Done is closed when input has ended.
func (p *StreamPort) Done() <-chan struct{} {
	return p.done
}
