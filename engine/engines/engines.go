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

// Package engines maps engine names to constructors.
package engines

import (
	"fmt"
	"sort"
	"time"

	"github.com/Comcast/scriptwire/engine"
	"github.com/Comcast/scriptwire/engine/goja"
	"github.com/Comcast/scriptwire/engine/noop"
	"github.com/Comcast/scriptwire/mux"

	"github.com/rs/zerolog"
)

// Options are shared by all constructors.  Each engine ignores what
// doesn't apply to it.
type Options struct {
	Out     *mux.Writer
	Timeout time.Duration
	Log     zerolog.Logger
}

// Constructor makes an engine.
type Constructor func(opts Options) engine.Engine

// Standard returns the known engines.
func Standard() map[string]Constructor {
	es := func(extended bool) Constructor {
		return func(opts Options) engine.Engine {
			e := goja.NewEngine(opts.Out)
			e.Extended = extended
			e.Timeout = opts.Timeout
			e.Log = opts.Log
			return e
		}
	}

	return map[string]Constructor{
		"goja":     es(false),
		"goja-ext": es(true),
		"noop": func(opts Options) engine.Engine {
			e := noop.NewEngine()
			e.Log = opts.Log
			return e
		},
	}
}

// New makes the named engine.
func New(name string, opts Options) (engine.Engine, error) {
	ctors := Standard()
	ctor, have := ctors[name]
	if !have {
		return nil, fmt.Errorf("unknown engine %q (have %v)", name, Names())
	}
	return ctor(opts), nil
}

// Names lists the known engine names in order.
func Names() []string {
	ctors := Standard()
	acc := make([]string, 0, len(ctors))
	for name := range ctors {
		acc = append(acc, name)
	}
	sort.Strings(acc)
	return acc
}
