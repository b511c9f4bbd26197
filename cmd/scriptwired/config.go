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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Comcast/scriptwire/loader"

	"github.com/jsccast/yaml"
	"github.com/rs/zerolog"
)

// Config is the daemon's configuration.  Durations are strings like
// "50ms".
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Listen is a port target: "stdio", a device file, tcp://,
	// unix:// or ws://.
	Listen string `yaml:"listen"`

	Buffer struct {
		Size  int  `yaml:"size"`
		Max   int  `yaml:"max"`
		Fixed bool `yaml:"fixed"`
	} `yaml:"buffer"`

	Idle string `yaml:"idle"`

	Engine struct {
		Kind     string `yaml:"kind"`
		Extended bool   `yaml:"extended"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"engine"`

	// Metrics, if not empty, is the address for /metrics.
	Metrics string `yaml:"metrics"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	c := &Config{
		Name:    loader.DefaultName,
		Version: loader.DefaultVersion,
		Listen:  "stdio",
		Idle:    loader.DefaultIdle.String(),
	}
	c.Buffer.Size = loader.DefaultSize
	c.Buffer.Max = loader.DefaultMaxSize
	c.Engine.Kind = "goja"
	c.Log.Level = "info"
	return c
}

// LoadConfig reads YAML from filename over the defaults.  An empty
// filename just gives the defaults.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig()
	if filename == "" {
		return c, nil
	}
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(bs, c); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}

func parseDuration(what, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", what, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative %s %q", what, s)
	}
	return d, nil
}

// IdleDuration is Idle parsed, defaulting to loader.DefaultIdle.
func (c *Config) IdleDuration() (time.Duration, error) {
	d, err := parseDuration("idle", c.Idle)
	if err != nil || d == 0 {
		return loader.DefaultIdle, err
	}
	return d, nil
}

// EngineTimeout is Engine.Timeout parsed.  Zero means no timeout.
func (c *Config) EngineTimeout() (time.Duration, error) {
	return parseDuration("engine timeout", c.Engine.Timeout)
}

// EngineName is the name to give engines.New.
func (c *Config) EngineName() string {
	if c.Engine.Extended && c.Engine.Kind != "noop" {
		return c.Engine.Kind + "-ext"
	}
	return c.Engine.Kind
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (zerolog.Level, error) {
	if c.Log.Level == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(c.Log.Level))
}

// NewBuffer makes the input buffer the configuration asks for.
func (c *Config) NewBuffer() *loader.Buffer {
	if c.Buffer.Fixed {
		return loader.NewFixedBuffer(c.Buffer.Size)
	}
	return loader.NewBuffer(c.Buffer.Size, c.Buffer.Max)
}

// Validate checks everything that can be checked without side
// effects.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("no listen target")
	}
	if c.Buffer.Size <= 0 {
		return fmt.Errorf("buffer size %d", c.Buffer.Size)
	}
	if !c.Buffer.Fixed && c.Buffer.Max < c.Buffer.Size {
		return fmt.Errorf("buffer max %d < size %d", c.Buffer.Max, c.Buffer.Size)
	}
	if _, err := c.IdleDuration(); err != nil {
		return err
	}
	if _, err := c.EngineTimeout(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}
