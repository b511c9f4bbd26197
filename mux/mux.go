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

// Package mux tags output lines with a correlation token.
//
// Everything a loader or its engine writes goes through a Writer.
// Each line that starts while a token is active gets that token as
// its first field, so the host can route the line back to whoever
// sent the command.
package mux

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Comcast/scriptwire/wire"
)

// DefaultToken tags output that isn't part of any command's
// handling, like background scheduler output and the version line.
const DefaultToken = "sched"

// Writer prefixes every line with the active token.
//
// A Writer isn't safe for concurrent use.  It's meant to be driven by
// the loader's single polling goroutine.
type Writer struct {
	w       io.Writer
	token   string
	midLine bool
	buf     []byte
}

// NewWriter makes a Writer with the DefaultToken.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:     w,
		token: DefaultToken,
	}
}

// SetToken changes the token for lines that start after this call.
func (w *Writer) SetToken(token string) {
	w.token = token
}

// Token returns the active token.
func (w *Writer) Token() string {
	return w.token
}

// Write writes free-form text, prefixing the token at the start of
// each line.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = w.buf[:0]
	for rest := p; 0 < len(rest); {
		if !w.midLine {
			w.buf = append(w.buf, w.token...)
			w.buf = append(w.buf, wire.Separator)
		}
		i := 0
		for i < len(rest) && rest[i] != wire.Terminator {
			i++
		}
		if i < len(rest) {
			w.buf = append(w.buf, rest[:i+1]...)
			rest = rest[i+1:]
			w.midLine = false
		} else {
			w.buf = append(w.buf, rest...)
			rest = nil
			w.midLine = true
		}
	}
	if _, err := w.w.Write(w.buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Packet writes one protocol packet led by the token.  Fields that
// can't go inline are sent as raw blocks.
func (w *Writer) Packet(fields ...string) error {
	w.buf = w.buf[:0]
	if w.midLine {
		w.buf = append(w.buf, wire.Terminator)
		w.midLine = false
	}
	w.buf = wire.AppendString(w.buf, append([]string{w.token}, fields...)...)
	_, err := w.w.Write(w.buf)
	return err
}

// Ret writes the terminal result of a command.
func (w *Writer) Ret(ok bool) error {
	if ok {
		return w.Packet("ret", "ok")
	}
	return w.Packet("ret", "fail")
}

// Version announces the loader after a connection.
func (w *Writer) Version(name, version string) error {
	return w.Packet("version", name+","+version)
}

// Errorf writes an error line naming the Go source location of its
// caller.
func (w *Writer) Errorf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	msg = strings.ReplaceAll(msg, "\n", " ")
	return w.Packet("error", Caller(2)+","+msg)
}

// Caller renders "file.go:line" for the given stack depth, as
// runtime.Caller counts it.
func Caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "?:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
