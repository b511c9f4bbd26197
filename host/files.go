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

package host

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Manifest is the name of a file listing modules to load, one per
// line, in order.  A line is either a path or NAME=PATH.
const Manifest = "Loader.cmd"

// MaxSource bounds a single module's source.
const MaxSource = 100 * 1024

var (
	// ErrNoManifest is returned for archives without a Manifest.
	ErrNoManifest = errors.New(Manifest + " not found")

	// ErrManyManifests is returned for archives with more than one
	// Manifest in subdirectories.
	ErrManyManifests = errors.New("archive has multiple " + Manifest + " files")
)

// Module is named source to load.
type Module struct {
	Name string
	Src  []byte
}

// SplitName splits "NAME=PATH".  Without a NAME, the name is the
// file's base name without its extension.
func SplitName(s string) (name, file string) {
	if left, right, have := strings.Cut(s, "="); have && left != "" && !strings.Contains(left, "/") {
		return left, right
	}
	base := filepath.Base(s)
	return strings.TrimSuffix(base, filepath.Ext(base)), s
}

// Modules finds the modules named by a command-line argument: a
// source file, a Manifest (any file ending in ".cmd"), or a zip
// archive (".zip" or ".jsz") holding a Manifest.
func Modules(arg string) ([]Module, error) {
	switch filepath.Ext(arg) {
	case ".zip", ".jsz":
		return archiveModules(arg)
	case ".cmd":
		return manifestModules(arg)
	}
	name, file := SplitName(arg)
	src, err := readSource(file)
	if err != nil {
		return nil, err
	}
	return []Module{{Name: name, Src: src}}, nil
}

func readSource(file string) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, MaxSource))
}

// manifestLines returns the non-empty lines.
func manifestLines(bs []byte) []string {
	var acc []string
	s := bufio.NewScanner(bytes.NewReader(bs))
	for s.Scan() {
		if line := strings.TrimSpace(s.Text()); line != "" {
			acc = append(acc, line)
		}
	}
	return acc
}

func manifestModules(file string) ([]Module, error) {
	bs, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(file)
	var acc []Module
	for _, line := range manifestLines(bs) {
		name, src := SplitName(line)
		bs, err := readSource(filepath.Join(dir, src))
		if err != nil {
			return nil, err
		}
		acc = append(acc, Module{Name: name, Src: bs})
	}
	return acc, nil
}

// findManifest prefers a Manifest at the root and otherwise accepts
// exactly one a single directory down.
func findManifest(z *zip.Reader) (*zip.File, error) {
	var sub *zip.File
	for _, f := range z.File {
		if f.Name == Manifest {
			return f, nil
		}
		dir, base := path.Split(f.Name)
		if base != Manifest {
			continue
		}
		if strings.Contains(strings.TrimSuffix(dir, "/"), "/") {
			continue
		}
		if sub != nil {
			return nil, ErrManyManifests
		}
		sub = f
	}
	if sub == nil {
		return nil, ErrNoManifest
	}
	return sub, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, MaxSource))
}

func archiveModules(file string) ([]Module, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return zipModules(&zr.Reader)
}

func zipModules(z *zip.Reader) ([]Module, error) {
	m, err := findManifest(z)
	if err != nil {
		return nil, err
	}
	bs, err := readZipFile(m)
	if err != nil {
		return nil, err
	}

	files := make(map[string]*zip.File, len(z.File))
	for _, f := range z.File {
		files[f.Name] = f
	}

	dir := path.Dir(m.Name)
	var acc []Module
	for _, line := range manifestLines(bs) {
		name, src := SplitName(line)
		f, have := files[path.Join(dir, src)]
		if !have {
			return nil, fmt.Errorf("%s: %s not in archive", m.Name, src)
		}
		bs, err := readZipFile(f)
		if err != nil {
			return nil, err
		}
		acc = append(acc, Module{Name: name, Src: bs})
	}
	return acc, nil
}

// LoadPath loads every module named by arg, in order.  A module that
// fails to load doesn't stop the rest.
func (c *Client) LoadPath(ctx context.Context, arg string) ([]*Reply, error) {
	ms, err := Modules(arg)
	if err != nil {
		return nil, err
	}
	acc := make([]*Reply, 0, len(ms))
	for _, m := range ms {
		reply, err := c.Load(ctx, m.Name, string(m.Src))
		if err != nil {
			return acc, err
		}
		if !reply.OK {
			c.Log.Warn().Str("module", m.Name).Msg("load failed")
		}
		acc = append(acc, reply)
	}
	return acc, nil
}
