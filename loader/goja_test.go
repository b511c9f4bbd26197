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
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Comcast/scriptwire/engine/goja"
	"github.com/Comcast/scriptwire/mux"
	. "github.com/Comcast/scriptwire/util/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gojaSession is a connected loader with a real engine.
type gojaSession struct {
	l *Loader
	p *PipePort
}

func newGojaSession(t *testing.T) *gojaSession {
	t.Helper()
	p := NewPipePort()
	out := mux.NewWriter(p)
	e := goja.NewEngine(out)
	require.NoError(t, e.Reset(context.Background()))

	l := New(p, e, out, nil)
	p.SetConnected(true)
	l.Poll(context.Background())
	require.Equal(t, "sched|version|scriptwire,0.0.1\n", p.Output())

	return &gojaSession{l: l, p: p}
}

func (s *gojaSession) send(in string) []string {
	s.p.Send(in)
	s.l.Poll(context.Background())
	return Lines(s.p.Output())
}

func TestGojaReset(t *testing.T) {
	s := newGojaSession(t)

	assert.Equal(t, []string{"t1|ret|ok"}, s.send("t1|reset\n"))

	s.send("a|eval|var x = 1\n")
	assert.Equal(t, []string{"t2|ret|ok"}, s.send("t2|reset\n"))
	assert.Equal(t, []string{"t3|ret|ok"}, s.send("t3|reset\n"))
	assert.Equal(t, []string{"b|undefined", "b|ret|ok"}, s.send("b|eval|typeof x\n"))
}

func TestGojaEvalMalformed(t *testing.T) {
	s := newGojaSession(t)

	lines := s.send("x|eval|function (\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "x|error|"), lines[0])
	assert.Contains(t, lines[0], ",syntax,")
	assert.Equal(t, "x|ret|fail", lines[1])
}

func TestGojaEvalPrints(t *testing.T) {
	s := newGojaSession(t)

	assert.Equal(t, []string{"e|3", "e|ret|ok"}, s.send("e|eval|1 + 2\n"))
	assert.Equal(t, []string{"e|a\tb", "e|ret|ok"}, s.send("e|eval|print('a', 'b')\n"))
}

func TestGojaLoadRaw(t *testing.T) {
	s := newGojaSession(t)

	// "hello" is source text, and not a good one.
	lines := s.send("x|load|mod|&5\nhello\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "hello")
	assert.Equal(t, "x|ret|fail", lines[1])

	src := "return {a: 1, greet: function(w) { return 'hi ' + w; }};"
	assert.Equal(t, []string{"x|ret|ok"}, s.send(fmt.Sprintf("x|load|mod|&%d\n%s\n", len(src), src)))
	assert.Equal(t, []string{"y|hi there", "y|ret|ok"}, s.send("y|eval|mod.greet('there')\n"))
}

func TestGojaLoadNothing(t *testing.T) {
	s := newGojaSession(t)

	assert.Equal(t, []string{"x|ret|ok"}, s.send("x|load|util|var z = 1;\n"))
	assert.Equal(t, []string{"y|undefined", "y|ret|ok"}, s.send("y|eval|typeof util\n"))
}

func TestGojaMsg(t *testing.T) {
	s := newGojaSession(t)

	assert.Empty(t, s.send("x|msg|topic|payload\n"))

	s.send("x|eval|var MQ = {OnMessage: function(t, p) { print(t, p.length); }}\n")
	assert.Equal(t, []string{"m|a/b\t7"}, s.send("m|msg|a/b|&7\n1|2\n3|4\n"))

	s.send("x|eval|MQ.OnMessage = function() { throw new Error('bad') }\n")
	lines := s.send("m|msg|a/b|c\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "m|error|"), lines[0])
}

func TestGojaPublishEscapes(t *testing.T) {
	s := newGojaSession(t)

	lines := s.send("p|eval|broker.publish('t', 'a\\nb')\n")
	assert.Equal(t, []string{"p|pub|t|&3", "a", "b", "p|ret|ok"}, lines)
}

func TestGojaOverflowRecovers(t *testing.T) {
	s := newGojaSession(t)

	lines := s.send("x|eval|" + strings.Repeat("1", DefaultMaxSize) + "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "overflow")

	assert.Equal(t, []string{"t|ret|ok"}, s.send("t|reset\n"))
}

func TestGojaMsgBinary(t *testing.T) {
	s := newGojaSession(t)

	handler := "var MQ = {OnMessage: function(t, p) { var cs = []; for (var i = 0; i < p.length; i++) { cs.push(p.charCodeAt(i)); } print(t, cs.join(',')); broker.publish('echo', p); }}"
	assert.Equal(t, []string{"x|ret|ok"}, s.send("x|eval|"+handler+"\n"))

	s.p.Send("t|msg|topic|&4\n\x00\x80\xff\xc3\n")
	s.l.Poll(context.Background())
	assert.Equal(t, "t|topic\t0,128,255,195\nt|pub|echo|&4\n\x00\x80\xff\xc3\n", s.p.Output())
}
