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

package goja

import (
	"unicode/utf8"

	"github.com/dop251/goja"
)

// byteString makes a string whose code units are the given bytes,
// 0x00 through 0xFF, one per byte.  Topics and payloads are opaque,
// so they are never decoded as UTF-8.
func byteString(rt *goja.Runtime, bs []byte) goja.Value {
	rs := make([]rune, len(bs))
	for i, b := range bs {
		rs[i] = rune(b)
	}
	return rt.ToValue(string(rs))
}

// stringBytes undoes byteString.  A character above 0xFF can't be a
// single byte, so it is written as UTF-8.
func stringBytes(s string) []byte {
	acc := make([]byte, 0, len(s))
	for _, r := range s {
		if r <= 0xFF {
			acc = append(acc, byte(r))
			continue
		}
		acc = utf8.AppendRune(acc, r)
	}
	return acc
}
