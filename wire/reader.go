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

package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrFraming is returned when a raw block isn't followed by a
	// newline.
	ErrFraming = errors.New("expected newline after raw block")

	// ErrRawTooLarge is returned when a raw field declares more
	// bytes than the Reader allows.
	ErrRawTooLarge = errors.New("raw field too large")
)

// Packet is one decoded line with its raw fields substituted.
type Packet [][]byte

// String returns field i as a string, or "" if there is no such
// field.
func (p Packet) String(i int) string {
	if i < 0 || len(p) <= i {
		return ""
	}
	return string(p[i])
}

// Token is the first field.
func (p Packet) Token() string {
	return p.String(0)
}

// Kind is the second field, which is usually a command name or a
// reply type ("ret", "error", "version").
func (p Packet) Kind() string {
	return p.String(1)
}

// Body renders every field but the token joined by '|'.
func (p Packet) Body() string {
	if len(p) < 2 {
		return ""
	}
	ss := make([]string, 0, len(p)-1)
	for _, f := range p[1:] {
		ss = append(ss, string(f))
	}
	return strings.Join(ss, string(Separator))
}

// Reader reads packets from a stream.
type Reader struct {
	// MaxRaw, if positive, bounds the size of a raw field.
	MaxRaw int

	r *bufio.Reader
}

// NewReader makes a Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r: bufio.NewReaderSize(r, 4096),
	}
}

// ReadPacket reads one line and any raw blocks it declares.
func (r *Reader) ReadPacket() (Packet, error) {
	line, err := r.r.ReadBytes(Terminator)
	if err != nil {
		if err == io.EOF && 0 < len(line) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	line = line[:len(line)-1]

	fields := bytes.Split(line, []byte{Separator})
	for i, f := range fields {
		if len(f) < 2 || f[0] != RawPrefix {
			continue
		}
		n, ok := ParseCount(f[1:])
		if !ok {
			continue
		}
		if 0 < r.MaxRaw && r.MaxRaw < n {
			return nil, fmt.Errorf("%w: %d bytes", ErrRawTooLarge, n)
		}
		raw := make([]byte, n+1)
		if _, err := io.ReadFull(r.r, raw); err != nil {
			return nil, err
		}
		if raw[n] != Terminator {
			return nil, ErrFraming
		}
		fields[i] = raw[:n]
	}
	return Packet(fields), nil
}
