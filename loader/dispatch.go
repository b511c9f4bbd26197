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

	"github.com/Comcast/scriptwire/engine"
	"github.com/Comcast/scriptwire/mux"

	"github.com/rs/zerolog"
)

// Command is one of the commands a loader understands.
type Command int

const (
	CmdUnknown Command = iota
	CmdReset
	CmdEval
	CmdLoad
	CmdMsg
)

// ParseCommand decodes a command name.
func ParseCommand(name []byte) Command {
	switch string(name) {
	case "reset":
		return CmdReset
	case "eval":
		return CmdEval
	case "load":
		return CmdLoad
	case "msg":
		return CmdMsg
	default:
		return CmdUnknown
	}
}

func (c Command) String() string {
	switch c {
	case CmdReset:
		return "reset"
	case CmdEval:
		return "eval"
	case CmdLoad:
		return "load"
	case CmdMsg:
		return "msg"
	default:
		return "unknown"
	}
}

// Arity is the number of fields, token and command included, that
// the command requires.  Zero means any number.
func (c Command) Arity() int {
	switch c {
	case CmdEval:
		return 3
	case CmdLoad, CmdMsg:
		return 4
	default:
		return 0
	}
}

// Dispatcher runs Frames against an Engine.
type Dispatcher struct {
	Engine  engine.Engine
	Out     *mux.Writer
	Metrics *Metrics
	Log     zerolog.Logger
}

// Run executes the command in the frame.  Everything the command
// writes is tagged with the frame's first field.
//
// A frame with fewer than two fields is ignored.
func (d *Dispatcher) Run(ctx context.Context, f *Frame) {
	if f.Len() < 2 {
		return
	}

	d.Out.SetToken(string(f.Field(0)))

	name := f.Field(1)
	cmd := ParseCommand(name)

	d.Log.Debug().
		Str("token", d.Out.Token()).
		Str("command", cmd.String()).
		Int("fields", f.Len()).
		Msg("dispatch")

	if cmd == CmdUnknown {
		d.Out.Errorf("bad command,%s", name)
		d.ret(cmd, false)
		return
	}

	if n := cmd.Arity(); 0 < n && f.Len() != n {
		d.Out.Errorf("%s requires %d args, %d given.", cmd, n, f.Len())
		d.ret(cmd, false)
		return
	}

	switch cmd {
	case CmdReset:
		d.reset(ctx)
	case CmdEval:
		d.eval(ctx, f.Field(2))
	case CmdLoad:
		d.load(ctx, string(f.Field(2)), f.Field(3))
	case CmdMsg:
		d.msg(ctx, f.Field(2), f.Field(3))
	}
}

func (d *Dispatcher) ret(cmd Command, ok bool) {
	d.Metrics.command(cmd, ok)
	if err := d.Out.Ret(ok); err != nil {
		d.Log.Error().Err(err).Msg("write ret")
	}
}

// fail reports an engine error.
func (d *Dispatcher) fail(err error) {
	d.Log.Debug().Err(err).Msg("engine error")
	d.Out.Errorf("%s,%s", engine.KindOf(err), err)
}

func (d *Dispatcher) reset(ctx context.Context) {
	if err := d.Engine.Reset(ctx); err != nil {
		d.fail(err)
	}
	d.ret(CmdReset, true)
}

func (d *Dispatcher) eval(ctx context.Context, src []byte) {
	vs, err := d.Engine.Run(ctx, "eval", src, engine.Chunk)
	if err != nil {
		d.fail(err)
		d.ret(CmdEval, false)
		return
	}
	if 0 < len(vs) {
		if err := d.Engine.Print(ctx, vs); err != nil {
			d.Log.Debug().Err(err).Msg("print results")
		}
	}
	d.ret(CmdEval, true)
}

func (d *Dispatcher) load(ctx context.Context, name string, src []byte) {
	vs, err := d.Engine.Run(ctx, name, src, engine.Module)
	if err != nil {
		d.fail(err)
		d.ret(CmdLoad, false)
		return
	}
	if 0 < len(vs) && vs[0] != nil {
		if err := d.Engine.SetGlobal(name, vs[0]); err != nil {
			d.fail(err)
			d.ret(CmdLoad, false)
			return
		}
	}
	d.ret(CmdLoad, true)
}

// msg never writes a ret line.
func (d *Dispatcher) msg(ctx context.Context, topic, payload []byte) {
	if err := d.Engine.Message(ctx, topic, payload); err != nil {
		d.fail(err)
		d.Metrics.command(CmdMsg, false)
		return
	}
	d.Metrics.command(CmdMsg, true)
}
