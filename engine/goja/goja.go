/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

// Package goja provides an ECMAScript engine for a loader.
package goja

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Comcast/scriptwire/engine"
	"github.com/Comcast/scriptwire/mux"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is wrapped by errors from executions that were
	// interrupted.
	Interrupted = errors.New(InterruptedMessage)
)

// Hooks run on every Reset, after the new runtime exists.
type Hooks struct {
	// ResetPeripherals puts whatever the scripts drive back into
	// its initial state.
	ResetPeripherals func()

	// Setup registers additional functions in the runtime.
	Setup func(rt *goja.Runtime) error
}

// Engine implements engine.Engine using Goja, which is a Go
// implementation of ECMAScript 5.1+.
//
// See https://github.com/dop251/goja.
type Engine struct {
	// Out receives print() output and protocol lines written by
	// scripts.
	Out *mux.Writer

	Hooks Hooks

	// Extended adds some additional properties (cron, randstr).
	Extended bool

	// Timeout, if positive, bounds every call into the runtime.
	Timeout time.Duration

	// Now is the clock behind time.millis() and friends.
	Now func() time.Time

	Log zerolog.Logger

	rt    *goja.Runtime
	start time.Time
}

// NewEngine makes a new Engine.  Call Reset before use.
func NewEngine(out *mux.Writer) *Engine {
	return &Engine{
		Out: out,
		Now: time.Now,
		Log: zerolog.Nop(),
	}
}

// Reset drops the current runtime and builds a new one.
func (e *Engine) Reset(ctx context.Context) error {
	e.rt = goja.New()
	e.start = e.Now()

	if e.Hooks.ResetPeripherals != nil {
		e.Hooks.ResetPeripherals()
	}

	e.install(e.rt)

	if e.Hooks.Setup != nil {
		if err := e.Hooks.Setup(e.rt); err != nil {
			return fmt.Errorf("setup hook: %w", err)
		}
	}

	e.Log.Debug().Msg("engine reset")

	return nil
}

// runtime returns the current runtime, making one if needed.
func (e *Engine) runtime() *goja.Runtime {
	if e.rt == nil {
		if err := e.Reset(context.Background()); err != nil {
			e.Log.Error().Err(err).Msg("implicit reset")
		}
	}
	return e.rt
}

// Runtime exposes the current runtime for tests and hooks.
func (e *Engine) Runtime() *goja.Runtime {
	return e.runtime()
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// Compile compiles source the way Run will.  A Module is wrapped in a
// function so it can use "return" to produce its value.
func Compile(name string, src []byte, mode engine.Mode) (*goja.Program, error) {
	code := string(src)
	if mode == engine.Module {
		code = wrapSrc(code)
	}
	p, err := goja.Compile(name, code, false)
	if err != nil {
		return nil, &engine.Error{
			Kind: engine.KindSyntax,
			Name: name,
			Err:  err,
		}
	}
	return p, nil
}

// Run implements the engine.Engine method of the same name.
func (e *Engine) Run(ctx context.Context, name string, src []byte, mode engine.Mode) ([]engine.Value, error) {
	p, err := Compile(name, src, mode)
	if err != nil {
		return nil, err
	}

	rt := e.runtime()
	v, err := e.exec(ctx, rt, name, func() (goja.Value, error) {
		return rt.RunProgram(p)
	})
	if err != nil {
		return nil, err
	}

	if v == nil || goja.IsUndefined(v) {
		return nil, nil
	}
	if mode == engine.Module && goja.IsNull(v) {
		return nil, nil
	}
	return []engine.Value{v}, nil
}

// Print calls the global print function with the given values.
func (e *Engine) Print(ctx context.Context, vs []engine.Value) error {
	rt := e.runtime()
	printFn, is := goja.AssertFunction(rt.Get("print"))
	if !is {
		return errors.New("print is not a function")
	}
	args, err := values(vs)
	if err != nil {
		return err
	}
	_, err = e.exec(ctx, rt, "print", func() (goja.Value, error) {
		return printFn(goja.Undefined(), args...)
	})
	return err
}

// SetGlobal implements the engine.Engine method of the same name.
func (e *Engine) SetGlobal(name string, v engine.Value) error {
	args, err := values([]engine.Value{v})
	if err != nil {
		return err
	}
	return e.runtime().Set(name, args[0])
}

// Message calls MQ.OnMessage(topic, payload) if it exists.  Both
// arguments are byte strings: each character is one byte.
func (e *Engine) Message(ctx context.Context, topic, payload []byte) error {
	rt := e.runtime()
	obj, fn, have := method(rt, engine.HandlerObject, engine.HandlerMethod)
	if !have {
		return nil
	}
	_, err := e.exec(ctx, rt, engine.HandlerObject+"."+engine.HandlerMethod, func() (goja.Value, error) {
		return fn(obj, byteString(rt, topic), byteString(rt, payload))
	})
	return err
}

// Tick calls scheduler.loop(flags) if it exists.  The function
// should return the number of milliseconds until it wants to run
// again.
func (e *Engine) Tick(ctx context.Context, flags uint32) time.Duration {
	if e.rt == nil {
		return engine.DefaultTick
	}
	rt := e.rt

	e.Out.SetToken(mux.DefaultToken)

	obj, fn, have := method(rt, "scheduler", "loop")
	if !have {
		return engine.DefaultTick
	}
	v, err := e.exec(ctx, rt, "scheduler.loop", func() (goja.Value, error) {
		return fn(obj, rt.ToValue(flags))
	})
	if err != nil {
		e.Out.Errorf("%s,%s", engine.KindOf(err), err)
		return engine.DefaultTick
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return engine.DefaultTick
	}
	ms := v.ToInteger()
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// method finds a function property of a global object.
func method(rt *goja.Runtime, object, name string) (*goja.Object, goja.Callable, bool) {
	v := rt.Get(object)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil, false
	}
	obj, is := v.(*goja.Object)
	if !is {
		return nil, nil, false
	}
	fn, is := goja.AssertFunction(obj.Get(name))
	if !is {
		return nil, nil, false
	}
	return obj, fn, true
}

func values(vs []engine.Value) ([]goja.Value, error) {
	acc := make([]goja.Value, 0, len(vs))
	for _, v := range vs {
		gv, is := v.(goja.Value)
		if !is {
			return nil, fmt.Errorf("%T isn't a Goja value", v)
		}
		acc = append(acc, gv)
	}
	return acc, nil
}

// exec runs f, interrupting the runtime if ctx is done first.
func (e *Engine) exec(ctx context.Context, rt *goja.Runtime, name string, f func() (goja.Value, error)) (v goja.Value, err error) {
	if 0 < e.Timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ictx.Done()
		if ctx.Err() != nil {
			rt.Interrupt(InterruptedMessage)
		}
	}()

	v, err = call(f)
	cancel()
	<-done

	// The runtime outlives this call, so a late interrupt mustn't
	// leak into the next one.
	rt.ClearInterrupt()

	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, &engine.Error{
				Kind: engine.KindInterrupted,
				Name: name,
				Err:  fmt.Errorf("%w: %s", Interrupted, name),
			}
		}
		return nil, &engine.Error{
			Kind: engine.KindRuntime,
			Name: name,
			Err:  err,
		}
	}
	return v, nil
}

func call(f func() (goja.Value, error)) (v goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s", r)
		}
	}()
	return f()
}
