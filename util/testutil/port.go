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

package testutil

import (
	"bytes"
	"sync"

	"github.com/Comcast/scriptwire/port"
)

// PipePort is an in-memory port.Port.  Tests play the peer with
// Send and Output.
type PipePort struct {
	sync.Mutex
	connected bool
	in        []byte
	out       bytes.Buffer
	ready     chan struct{}
}

var _ port.Port = (*PipePort)(nil)

func NewPipePort() *PipePort {
	return &PipePort{
		ready: make(chan struct{}, 1),
	}
}

func (p *PipePort) signal() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// SetConnected changes the connection state.  Disconnecting drops
// unread input.
func (p *PipePort) SetConnected(connected bool) {
	p.Lock()
	p.connected = connected
	if !connected {
		p.in = nil
	}
	p.Unlock()
	p.signal()
}

// Send queues input.
func (p *PipePort) Send(s string) {
	p.Lock()
	p.in = append(p.in, s...)
	p.Unlock()
	p.signal()
}

// Output returns and clears what has been written.
func (p *PipePort) Output() string {
	p.Lock()
	defer p.Unlock()
	s := p.out.String()
	p.out.Reset()
	return s
}

func (p *PipePort) Connected() bool {
	p.Lock()
	defer p.Unlock()
	return p.connected
}

func (p *PipePort) Read(bs []byte) (int, error) {
	p.Lock()
	defer p.Unlock()
	n := copy(bs, p.in)
	p.in = p.in[n:]
	return n, nil
}

func (p *PipePort) Write(bs []byte) (int, error) {
	p.Lock()
	defer p.Unlock()
	return p.out.Write(bs)
}

func (p *PipePort) Ready() <-chan struct{} {
	return p.ready
}

func (p *PipePort) Close() error {
	p.SetConnected(false)
	return nil
}
