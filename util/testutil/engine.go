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

package testutil

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Comcast/scriptwire/engine"
)

// Call records one Engine call.
type Call struct {
	Op      string
	Name    string
	Src     string
	Mode    engine.Mode
	Topic   string
	Payload string
}

// Engine is an engine.Engine that records calls and answers as told.
type Engine struct {
	Calls []Call

	// Globals are what SetGlobal bound.  Reset clears them.
	Globals map[string]engine.Value

	// Results is returned by every successful Run.
	Results []engine.Value

	// RunErr, PrintErr, and MessageErr are returned by those
	// methods.
	RunErr     error
	PrintErr   error
	MessageErr error

	// Out, if not nil, receives printed values, one line per
	// Print.
	Out io.Writer

	// TickAfter is what Tick returns.  Zero means
	// engine.DefaultTick.
	TickAfter time.Duration
	Ticks     []uint32
}

func NewEngine() *Engine {
	return &Engine{
		Globals: map[string]engine.Value{},
	}
}

func (e *Engine) Reset(ctx context.Context) error {
	e.Calls = append(e.Calls, Call{Op: "reset"})
	e.Globals = map[string]engine.Value{}
	return nil
}

func (e *Engine) Run(ctx context.Context, name string, src []byte, mode engine.Mode) ([]engine.Value, error) {
	e.Calls = append(e.Calls, Call{
		Op:   "run",
		Name: name,
		Src:  string(src),
		Mode: mode,
	})
	if e.RunErr != nil {
		return nil, e.RunErr
	}
	return e.Results, nil
}

func (e *Engine) Print(ctx context.Context, vs []engine.Value) error {
	e.Calls = append(e.Calls, Call{Op: "print"})
	if e.PrintErr != nil {
		return e.PrintErr
	}
	if e.Out != nil {
		args := make([]any, len(vs))
		for i, v := range vs {
			args[i] = v
		}
		fmt.Fprintln(e.Out, args...)
	}
	return nil
}

func (e *Engine) SetGlobal(name string, v engine.Value) error {
	e.Calls = append(e.Calls, Call{Op: "set", Name: name})
	e.Globals[name] = v
	return nil
}

func (e *Engine) Message(ctx context.Context, topic, payload []byte) error {
	e.Calls = append(e.Calls, Call{
		Op:      "msg",
		Topic:   string(topic),
		Payload: string(payload),
	})
	return e.MessageErr
}

func (e *Engine) Tick(ctx context.Context, flags uint32) time.Duration {
	e.Ticks = append(e.Ticks, flags)
	if e.TickAfter == 0 {
		return engine.DefaultTick
	}
	return e.TickAfter
}

// Ops lists the recorded operations.
func (e *Engine) Ops() []string {
	acc := make([]string, len(e.Calls))
	for i, c := range e.Calls {
		acc[i] = c.Op
	}
	return acc
}
