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

// Package wire implements the line protocol spoken between a host
// tool and a script loader.
//
// A packet is a variable number of fields separated by '|' and
// terminated with a newline:
//
//   field1|field2|field3\n
//
// A field that contains control characters, newlines, '|', or starts
// with '&' cannot be sent inline.  Such a field is encoded as "&NNN",
// where NNN is its size in bytes, and the raw bytes follow the line,
// each raw field followed by its own newline.
//
// Example, encoding the fields "Hello World!", "123", "bad\tchar",
// and "embedded\n123":
//
//   Hello World!|123|&8|&12\nbad\tchar\nembedded\n123\n
package wire

import (
	"strconv"
)

const (
	// Separator separates fields on a line.
	Separator = '|'

	// Terminator ends a line and every raw block.
	Terminator = '\n'

	// RawPrefix introduces a raw placeholder field.
	RawPrefix = '&'
)

// IsClean reports whether the field can be sent inline.
func IsClean(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	if b[0] == RawPrefix {
		return false
	}
	for _, c := range b {
		if c < 32 || c > 126 || c == Separator {
			return false
		}
	}
	return true
}

// Append encodes the fields as one packet and appends it to dst.
func Append(dst []byte, fields ...[]byte) []byte {
	var raws [][]byte
	for i, f := range fields {
		if 0 < i {
			dst = append(dst, Separator)
		}
		if IsClean(f) {
			dst = append(dst, f...)
			continue
		}
		dst = append(dst, RawPrefix)
		dst = strconv.AppendInt(dst, int64(len(f)), 10)
		raws = append(raws, f)
	}
	dst = append(dst, Terminator)
	for _, raw := range raws {
		dst = append(dst, raw...)
		dst = append(dst, Terminator)
	}
	return dst
}

// AppendString is Append for string fields.
func AppendString(dst []byte, fields ...string) []byte {
	bss := make([][]byte, len(fields))
	for i, f := range fields {
		bss[i] = []byte(f)
	}
	return Append(dst, bss...)
}

// ParseCount parses the digits following a RawPrefix.  The second
// result is false unless b is a non-empty run of decimal digits whose
// value fits in an int.
func ParseCount(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || '9' < c {
			return 0, false
		}
		d := int(c - '0')
		if n > (maxInt-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	return n, true
}

const maxInt = int(^uint(0) >> 1)
