// Package config loads the renderer settings from a TOML file, with
// environment overrides on top.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"teapot/internal/hal"
	"teapot/internal/logging"
)

// DefaultFile is read when no -config flag is given. A missing default file
// is not an error.
const DefaultFile = "teapot.toml"

// Environment variables that override the file.
const (
	EnvValidation  = "VK_VALIDATION"
	EnvPresentMode = "TEAPOT_PRESENT_MODE"
	EnvLogLevel    = "TEAPOT_LOG_LEVEL"
	EnvShaderDir   = "TEAPOT_SHADER_DIR"
)

type Config struct {
	Window   Window   `toml:"window"`
	Renderer Renderer `toml:"renderer"`
	Shaders  Shaders  `toml:"shaders"`
	Log      Log      `toml:"log"`
	Scene    Scene    `toml:"scene"`
}

type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type Renderer struct {
	// PresentMode is the preferred mode: immediate, mailbox, fifo or
	// fifo_relaxed. FIFO is used when the surface lacks it.
	PresentMode  string   `toml:"present_mode"`
	Validation   bool     `toml:"validation"`
	FenceTimeout Duration `toml:"fence_timeout"`
	MaxTextures  uint32   `toml:"max_textures"`
}

type Shaders struct {
	// Dir holds simple_shader.{vert,frag}.spv or simple.wgsl. Empty uses the
	// built-in shader.
	Dir      string   `toml:"dir"`
	Watch    bool     `toml:"watch"`
	Debounce Duration `toml:"debounce"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Scene struct {
	// Workers sizes the update pool. Zero picks from the CPU count.
	Workers int `toml:"workers"`
}

// Duration is a time.Duration written as a string such as "250ms". Zero
// means no timeout where a timeout is expected.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func Default() Config {
	return Config{
		Window: Window{Title: "Teapot", Width: 800, Height: 600},
		Renderer: Renderer{
			PresentMode: hal.PresentModeMailbox.String(),
			MaxTextures: 64,
		},
		Shaders: Shaders{Watch: true, Debounce: Duration(100 * time.Millisecond)},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads path over Default and applies the environment. When path is
// DefaultFile and does not exist the defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := Decode(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", path)
		}
	case os.IsNotExist(err) && path == DefaultFile:
		logging.Logger().Debug("no config file, using defaults", "path", path)
	default:
		return Config{}, errors.Wrap(err, "read config")
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Decode parses TOML into cfg. Keys cfg does not know are rejected.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Encode writes cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

// ApplyEnv overrides fields from the environment, read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvValidation); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "%s=%q", EnvValidation, v)
		}
		c.Renderer.Validation = b
	}
	if v, ok := lookup(EnvPresentMode); ok && v != "" {
		c.Renderer.PresentMode = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvShaderDir); ok {
		c.Shaders.Dir = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if _, err := hal.ParsePresentMode(c.Renderer.PresentMode); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Renderer.FenceTimeout < 0 {
		return fmt.Errorf("negative fence timeout %s", time.Duration(c.Renderer.FenceTimeout))
	}
	if c.Shaders.Debounce < 0 {
		return fmt.Errorf("negative shader debounce %s", time.Duration(c.Shaders.Debounce))
	}
	if c.Scene.Workers < 0 {
		return fmt.Errorf("negative worker count %d", c.Scene.Workers)
	}
	return nil
}

// PresentMode returns the parsed preferred present mode.
func (c *Config) PresentMode() hal.PresentMode {
	m, _ := hal.ParsePresentMode(c.Renderer.PresentMode)
	return m
}

// FenceTimeout returns the timeout in nanoseconds, hal.NoTimeout when unset.
func (c *Config) FenceTimeout() uint64 {
	if c.Renderer.FenceTimeout <= 0 {
		return hal.NoTimeout
	}
	return uint64(c.Renderer.FenceTimeout)
}
