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
	"bytes"
	"fmt"

	"github.com/Comcast/scriptwire/wire"
)

// MaxFields is the most fields a command line may have.
const MaxFields = 6

// Field is a view into a Buffer.
type Field struct {
	Off, Len int
}

// RawMarker asks for Bytes bytes of payload to become the content of
// field number Field.
type RawMarker struct {
	Field int
	Bytes int
}

// ParseError reports a line that can't be a command.
type ParseError struct {
	Reason string

	// Field is the offending field, if any.
	Field string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s '%s'", e.Reason, e.Field)
}

// Parse splits a line into fields and finds raw markers.
//
// The fields and markers are appended to the given slices, which are
// returned.  A trailing separator doesn't make an empty last field.
// A field that is "&" followed by digits is a raw marker, and its
// count must be less than maxSize.
func Parse(line []byte, maxSize int, fields []Field, raws []RawMarker) ([]Field, []RawMarker, error) {
	for p := 0; p < len(line); {
		if len(fields) >= MaxFields {
			return fields, raws, &ParseError{
				Reason: fmt.Sprintf("too many args, limit %d", MaxFields),
			}
		}
		f := Field{Off: p}
		if i := bytes.IndexByte(line[p:], wire.Separator); 0 <= i {
			f.Len = i
			p += i + 1
		} else {
			f.Len = len(line) - p
			p = len(line)
		}

		s := line[f.Off : f.Off+f.Len]
		if 2 <= len(s) && s[0] == wire.RawPrefix {
			n, ok := wire.ParseCount(s[1:])
			if !ok || maxSize <= n {
				return fields, raws, &ParseError{
					Reason: "invalid raw byte count",
					Field:  string(s),
				}
			}
			raws = append(raws, RawMarker{
				Field: len(fields),
				Bytes: n,
			})
		}
		fields = append(fields, f)
	}
	return fields, raws, nil
}
