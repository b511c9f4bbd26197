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

// Package port provides byte-stream transports for a loader.
//
// A Port looks like a serial line: it is either connected or not,
// reads never block, and a new peer is just a reconnection.
package port

import (
	"errors"
)

// ErrClosed is returned by operations on a closed Port.
var ErrClosed = errors.New("port closed")

// Port is a non-blocking byte stream.
type Port interface {
	// Connected reports whether a peer is present.  A Port that
	// switches peers reports false at least once in between.
	Connected() bool

	// Read returns whatever input is available, which may be
	// nothing.  It never blocks.
	Read(p []byte) (int, error)

	// Write sends output to the peer.  Output written while
	// nobody is connected is discarded.
	Write(p []byte) (int, error)

	// Ready receives a value when input might be available or the
	// connection state might have changed.
	Ready() <-chan struct{}

	Close() error
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}
