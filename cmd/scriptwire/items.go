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

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Comcast/scriptwire/host"
	"github.com/Comcast/scriptwire/wire"
)

// printer writes packets nobody asked for, tagged with their token.
func printer(w io.Writer) host.Route {
	return func(p wire.Packet) {
		if len(p) < 2 {
			fmt.Fprintln(w, p.Token())
			return
		}
		fmt.Fprintf(w, "%s: %s\n", p.Token(), p.Body())
	}
}

// printReply writes a reply's lines: output to out and errors to
// errw.
func printReply(out, errw io.Writer, what string, r *host.Reply) {
	for _, p := range r.Lines {
		if p.Kind() == "error" {
			fmt.Fprintf(errw, "%s: %s\n", what, strings.TrimPrefix(p.Body(), "error|"))
			continue
		}
		fmt.Fprintln(out, p.Body())
	}
	if !r.OK {
		fmt.Fprintf(errw, "%s: failed\n", what)
	}
}

// runItem does one command-line item.  A failed command isn't an
// error; losing the loader is.
func runItem(ctx context.Context, c *host.Client, item string, out, errw io.Writer) error {
	switch {
	case item == "reset":
		r, err := c.Reset(ctx)
		if err != nil {
			return err
		}
		printReply(out, errw, item, r)

	case strings.HasPrefix(item, "eval:"):
		r, err := c.Eval(ctx, strings.TrimPrefix(item, "eval:"))
		if err != nil {
			return err
		}
		printReply(out, errw, "eval", r)

	default:
		ms, err := host.Modules(item)
		if err != nil {
			return err
		}
		for _, m := range ms {
			r, err := c.Load(ctx, m.Name, string(m.Src))
			if err != nil {
				return err
			}
			printReply(out, errw, "load "+m.Name, r)
		}
	}
	return nil
}

func runItems(ctx context.Context, c *host.Client, items []string, out, errw io.Writer) error {
	for _, item := range items {
		if err := runItem(ctx, c, item, out, errw); err != nil {
			return fmt.Errorf("%s: %w", item, err)
		}
	}
	return nil
}
