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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Comcast/scriptwire/host"

	"github.com/chzyer/readline"
)

const prompt = "> "

// replLine handles one line of REPL input.  It returns io.EOF when
// the user wants to leave.
func replLine(ctx context.Context, c *host.Client, line string, out, errw io.Writer) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == "!exit" || line == "!quit":
		return io.EOF
	case line == "!reset":
		return runItem(ctx, c, "reset", out, errw)
	case strings.HasPrefix(line, "!load"):
		paths := strings.Fields(strings.TrimPrefix(line, "!load"))
		if len(paths) == 0 {
			fmt.Fprintln(errw, "usage: !load PATH...")
			return nil
		}
		for _, p := range paths {
			if err := runItem(ctx, c, p, out, errw); err != nil {
				if !errors.Is(err, host.ErrClosed) {
					fmt.Fprintln(errw, err)
					continue
				}
				return err
			}
		}
		return nil
	case strings.HasPrefix(line, "!"):
		fmt.Fprintf(errw, "unknown command %q (have !reset, !load, !exit)\n", line)
		return nil
	}
	return runItem(ctx, c, "eval:"+line, out, errw)
}

func historyFile() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, ".scriptwire_history")
}

// repl evaluates lines until EOF, !exit, or a lost loader.
func repl(ctx context.Context, c *host.Client, out, errw io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "!exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("!reset"),
			readline.PcItem("!load"),
			readline.PcItem("!exit"),
		),
		Stdout: out,
		Stderr: errw,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := replLine(ctx, c, line, rl.Stdout(), rl.Stderr()); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
