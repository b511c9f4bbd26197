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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line   string
		fields []string
		raws   []RawMarker
		err    string
	}{
		{line: "", fields: nil},
		{line: "t|reset", fields: []string{"t", "reset"}},
		{line: "t|reset|", fields: []string{"t", "reset"}},
		{line: "a||b", fields: []string{"a", "", "b"}},
		{line: "|", fields: []string{""}},
		{line: "1|2|3|4|5|6", fields: []string{"1", "2", "3", "4", "5", "6"}},
		{line: "1|2|3|4|5|6|7", err: "too many args, limit 6"},
		{
			line:   "x|load|mod|&5",
			fields: []string{"x", "load", "mod", "&5"},
			raws:   []RawMarker{{Field: 3, Bytes: 5}},
		},
		{
			line:   "t|msg|&12|&0",
			fields: []string{"t", "msg", "&12", "&0"},
			raws:   []RawMarker{{Field: 2, Bytes: 12}, {Field: 3, Bytes: 0}},
		},
		{line: "t|eval|&", fields: []string{"t", "eval", "&"}},
		{line: "t|eval|&x", err: "invalid raw byte count '&x'"},
		{line: "t|eval|&12x", err: "invalid raw byte count '&12x'"},
		{line: "t|eval|&-1", err: "invalid raw byte count '&-1'"},
		{line: "t|eval|&100", err: "invalid raw byte count '&100'"},
		{
			line:   "t|eval|&99",
			fields: []string{"t", "eval", "&99"},
			raws:   []RawMarker{{Field: 2, Bytes: 99}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			line := []byte(tt.line)
			fields, raws, err := Parse(line, 100, nil, nil)
			if tt.err != "" {
				require.Error(t, err)
				assert.Equal(t, tt.err, err.Error())
				_, is := err.(*ParseError)
				assert.True(t, is)
				return
			}
			require.NoError(t, err)

			var got []string
			for _, f := range fields {
				got = append(got, string(line[f.Off:f.Off+f.Len]))
			}
			assert.Equal(t, tt.fields, got)
			assert.Equal(t, tt.raws, raws)
		})
	}
}

func TestParseReusesSlices(t *testing.T) {
	fields := make([]Field, 0, MaxFields)
	fields, _, err := Parse([]byte("a|b"), 100, fields, nil)
	require.NoError(t, err)
	fields, _, err = Parse([]byte("c"), 100, fields[:0], nil)
	require.NoError(t, err)
	assert.Equal(t, []Field{{Off: 0, Len: 1}}, fields)
}
