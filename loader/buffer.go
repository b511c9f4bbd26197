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
	"errors"
	"fmt"
)

const (
	// DefaultSize is the initial capacity of a growable Buffer.
	DefaultSize = 1024

	// DefaultMaxSize is the hard cap of a growable Buffer.
	DefaultMaxSize = 16 * 1024
)

var (
	// ErrOverflow is returned by Add when the buffer is full or the
	// overflow latch is set.
	ErrOverflow = errors.New("input buffer overflow")

	// ErrGrow is returned by Add when the buffer couldn't be
	// enlarged.
	ErrGrow = errors.New("input buffer growth failed")
)

// Buffer accumulates the bytes of one command.
//
// Once Add fails, the overflow latch stays set and every Add fails
// until Reset.
type Buffer struct {
	buf      []byte
	n        int
	max      int
	overflow bool
	growable bool

	// grow returns a buffer of the given size holding old's bytes.
	grow func(old []byte, size int) ([]byte, error)
}

// NewBuffer makes a growable Buffer that starts at size bytes and
// doubles as needed up to max bytes.
func NewBuffer(size, max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxSize
	}
	if size <= 0 {
		size = DefaultSize
	}
	if max < size {
		size = max
	}
	return &Buffer{
		buf:      make([]byte, size),
		max:      max,
		growable: true,
		grow:     grow,
	}
}

// NewFixedBuffer makes a Buffer that never grows.
func NewFixedBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{
		buf: make([]byte, size),
		max: size,
	}
}

func grow(old []byte, size int) ([]byte, error) {
	acc := make([]byte, size)
	copy(acc, old)
	return acc, nil
}

// Len is the number of bytes held.
func (b *Buffer) Len() int { return b.n }

// Size is the current capacity.
func (b *Buffer) Size() int { return len(b.buf) }

// MaxSize is the capacity the buffer will never exceed.
func (b *Buffer) MaxSize() int { return b.max }

// Overflow reports the latch.
func (b *Buffer) Overflow() bool { return b.overflow }

// Growable reports whether Add may enlarge the buffer up to MaxSize.
func (b *Buffer) Growable() bool { return b.growable }

// Add appends one byte.
func (b *Buffer) Add(c byte) error {
	if b.overflow {
		return ErrOverflow
	}
	if b.max <= b.n {
		b.overflow = true
		return ErrOverflow
	}
	if b.n == len(b.buf) && b.growable {
		size := 2 * len(b.buf)
		if b.max < size {
			size = b.max
		}
		buf, err := b.grow(b.buf[:b.n], size)
		if err != nil {
			b.overflow = true
			return fmt.Errorf("%w: %d bytes: %s", ErrGrow, size, err)
		}
		b.buf = buf
	}
	if b.n == len(b.buf) {
		b.overflow = true
		return ErrOverflow
	}
	b.buf[b.n] = c
	b.n++
	return nil
}

// Latch sets the overflow latch without adding anything.
func (b *Buffer) Latch() {
	b.overflow = true
}

// Truncate drops all but the first n bytes.
func (b *Buffer) Truncate(n int) {
	if 0 <= n && n < b.n {
		b.n = n
	}
}

// Line returns the bytes held.  The result is only valid until the
// next Add or Reset.
func (b *Buffer) Line() []byte {
	return b.buf[:b.n]
}

// Bytes returns the view for a field.
func (b *Buffer) Bytes(f Field) []byte {
	return b.buf[f.Off : f.Off+f.Len]
}

// Reset empties the buffer and clears the latch.  The capacity is
// kept.
func (b *Buffer) Reset() {
	b.n = 0
	b.overflow = false
}
