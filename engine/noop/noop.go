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

package noop

import (
	"context"
	"time"

	"github.com/Comcast/scriptwire/engine"

	"github.com/rs/zerolog"
)

// Engine is an engine.Engine which accepts everything and runs
// nothing.
type Engine struct {
	// Silent, if true, will suppress warning log messages.
	Silent bool

	Log zerolog.Logger
}

func NewEngine() *Engine {
	return &Engine{
		Log: zerolog.Nop(),
	}
}

func (e *Engine) warn(what string) {
	if !e.Silent {
		e.Log.Warn().Str("op", what).Msg("using noop engine")
	}
}

func (e *Engine) Reset(ctx context.Context) error {
	e.warn("reset")
	return nil
}

func (e *Engine) Run(ctx context.Context, name string, src []byte, mode engine.Mode) ([]engine.Value, error) {
	e.warn("run")
	return nil, nil
}

func (e *Engine) Print(ctx context.Context, vs []engine.Value) error {
	return nil
}

func (e *Engine) SetGlobal(name string, v engine.Value) error {
	return nil
}

func (e *Engine) Message(ctx context.Context, topic, payload []byte) error {
	e.warn("message")
	return nil
}

func (e *Engine) Tick(ctx context.Context, flags uint32) time.Duration {
	return engine.DefaultTick
}
