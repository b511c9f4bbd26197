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

// Package engine defines what a loader needs from a scripting
// runtime.
//
// A loader only ever compiles and runs a unit of source, binds a
// global, invokes the message handler, and resets the whole runtime.
// Everything else about the runtime is its own business.
package engine

import (
	"context"
	"errors"
	"time"
)

// Value is an opaque runtime value.  Only the Engine that produced a
// Value can make sense of it.
type Value interface{}

// Mode says how Run should treat its source.
type Mode int

const (
	// Chunk is an anonymous unit.  Its completion values are its
	// results.
	Chunk Mode = iota

	// Module is a named unit whose single returned value, if any,
	// is the module.
	Module
)

func (m Mode) String() string {
	switch m {
	case Chunk:
		return "chunk"
	case Module:
		return "module"
	default:
		return "unknown"
	}
}

// DefaultTick is the sleep hint returned by Tick when no scheduler
// asked for anything sooner.
const DefaultTick = 5 * time.Second

// HandlerObject and HandlerMethod name the global message handler:
// MQ.OnMessage(topic, payload).
const (
	HandlerObject = "MQ"
	HandlerMethod = "OnMessage"
)

// Engine is a scripting runtime driven by a loader.
type Engine interface {
	// Reset tears down the runtime and builds a fresh one,
	// running any peripheral-reset and setup hooks.
	Reset(ctx context.Context) error

	// Run compiles src as a unit called name and executes it.
	//
	// For a Chunk the results are whatever the unit produced
	// (possibly none).  For a Module the results are empty when
	// the unit produced nothing (nil, null, undefined), and hold
	// the module value otherwise.
	Run(ctx context.Context, name string, src []byte, mode Mode) ([]Value, error)

	// Print hands the values to the runtime's own print facility.
	Print(ctx context.Context, vs []Value) error

	// SetGlobal binds v to a global variable.
	SetGlobal(name string, v Value) error

	// Message invokes MQ.OnMessage(topic, payload) if the runtime
	// has such a handler.  No handler is not an error.
	Message(ctx context.Context, topic, payload []byte) error

	// Tick gives background scripts a chance to run.  It returns
	// how long the caller may sleep before the next Tick.
	Tick(ctx context.Context, flags uint32) time.Duration
}

// Kind classifies engine errors.
type Kind int

const (
	// KindSyntax is a compilation failure.
	KindSyntax Kind = iota

	// KindRuntime is an exception during execution.
	KindRuntime

	// KindInterrupted means execution was cut short by the
	// context.
	KindInterrupted
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindRuntime:
		return "runtime"
	case KindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Error is a failure reported by an Engine.
type Error struct {
	Kind Kind

	// Name is the unit that failed.
	Name string

	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf finds the Kind of an error, defaulting to KindRuntime for
// errors that didn't come from an Engine.
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindRuntime
}
