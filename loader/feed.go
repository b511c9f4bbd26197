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

	"github.com/Comcast/scriptwire/wire"
)

// ErrFraming is returned when a raw block isn't followed by a
// newline.
var ErrFraming = errors.New("expected newline after raw block")

// Mode is the state of a Decoder.
type Mode int

const (
	// LineMode collects a command line.
	LineMode Mode = iota

	// RawMode collects the payloads declared by raw markers.
	RawMode
)

func (m Mode) String() string {
	switch m {
	case LineMode:
		return "line"
	case RawMode:
		return "raw"
	default:
		return "unknown"
	}
}

// Frame is a complete command.  Its views are only valid until the
// Decoder is fed again or reset.
type Frame struct {
	buf    *Buffer
	Fields []Field
}

// Len is the number of fields.
func (f *Frame) Len() int {
	return len(f.Fields)
}

// Field returns the content of field i.
func (f *Frame) Field(i int) []byte {
	return f.buf.Bytes(f.Fields[i])
}

// Decoder turns a byte stream into Frames, one byte at a time.
type Decoder struct {
	buf    *Buffer
	fields []Field
	raws   []RawMarker
	mode   Mode

	// raw is the index of the marker being serviced.
	raw int

	// remaining counts the bytes, including the trailing newline,
	// still due for the current raw block.
	remaining int

	frame Frame
	ready bool
}

// NewDecoder makes a Decoder that accumulates into the given Buffer.
func NewDecoder(buf *Buffer) *Decoder {
	d := &Decoder{
		buf:    buf,
		fields: make([]Field, 0, MaxFields),
		raws:   make([]RawMarker, 0, MaxFields),
	}
	d.frame.buf = buf
	return d
}

// Buffer exposes the Decoder's Buffer.
func (d *Decoder) Buffer() *Buffer {
	return d.buf
}

// Mode returns the current state.
func (d *Decoder) Mode() Mode {
	return d.mode
}

// Reset drops any partial input.
func (d *Decoder) Reset() {
	d.buf.Reset()
	d.fields = d.fields[:0]
	d.raws = d.raws[:0]
	d.mode = LineMode
	d.raw = 0
	d.remaining = 0
	d.ready = false
}

// Feed consumes one byte.
//
// When the byte completes a command, Feed returns its Frame.  The
// Frame is good until the next Feed or Reset.
//
// An error means input was lost: the line didn't parse (input has
// been reset), the buffer overflowed, or a raw block was misframed.
// In the last two cases every byte is discarded until the next
// newline.  Errors are only returned once per incident.
func (d *Decoder) Feed(c byte) (*Frame, error) {
	if d.ready {
		d.Reset()
	}

	if d.buf.Overflow() {
		if c == wire.Terminator {
			d.Reset()
		}
		return nil, nil
	}

	if err := d.buf.Add(c); err != nil {
		return nil, err
	}

	switch d.mode {
	case LineMode:
		if c != wire.Terminator {
			return nil, nil
		}
		d.buf.Truncate(d.buf.Len() - 1)
		var err error
		d.fields, d.raws, err = Parse(d.buf.Line(), d.buf.MaxSize(), d.fields[:0], d.raws[:0])
		if err != nil {
			d.Reset()
			return nil, err
		}
		if len(d.raws) == 0 {
			if len(d.fields) == 0 {
				d.Reset()
				return nil, nil
			}
			return d.complete(), nil
		}
		d.mode = RawMode
		d.raw = 0
		d.remaining = d.raws[0].Bytes + 1
		return nil, nil

	case RawMode:
		d.remaining--
		if 0 < d.remaining {
			return nil, nil
		}
		if c != wire.Terminator {
			d.buf.Latch()
			return nil, ErrFraming
		}
		d.buf.Truncate(d.buf.Len() - 1)
		m := d.raws[d.raw]
		d.fields[m.Field] = Field{
			Off: d.buf.Len() - m.Bytes,
			Len: m.Bytes,
		}
		d.raw++
		if d.raw < len(d.raws) {
			d.remaining = d.raws[d.raw].Bytes + 1
			return nil, nil
		}
		return d.complete(), nil
	}

	return nil, nil
}

func (d *Decoder) complete() *Frame {
	d.ready = true
	d.frame.Fields = d.fields
	return &d.frame
}
