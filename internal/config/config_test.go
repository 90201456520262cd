package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teapot/internal/hal"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, hal.PresentModeMailbox, cfg.PresentMode())
	assert.Equal(t, uint64(hal.NoTimeout), cfg.FenceTimeout())
}

func TestDecode(t *testing.T) {
	cfg := Default()
	err := Decode([]byte(`
[window]
width = 1280
height = 720

[renderer]
present_mode = "fifo"
fence_timeout = "2s"

[shaders]
dir = "shaders"
debounce = "50ms"
`), &cfg)
	require.NoError(t, err)
	assert.Equal(t, 1280, cfg.Window.Width)
	assert.Equal(t, "Teapot", cfg.Window.Title, "unset keys keep defaults")
	assert.Equal(t, hal.PresentModeFifo, cfg.PresentMode())
	assert.Equal(t, uint64(2*time.Second), cfg.FenceTimeout())
	assert.Equal(t, Duration(50*time.Millisecond), cfg.Shaders.Debounce)

	err = Decode([]byte("[window]\ndepth = 3\n"), &cfg)
	assert.Error(t, err, "unknown keys are rejected")

	err = Decode([]byte("[renderer]\nfence_timeout = \"soon\"\n"), &cfg)
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Renderer.FenceTimeout = Duration(time.Second)
	data, err := Encode(cfg)
	require.NoError(t, err)
	assert.Regexp(t, `fence_timeout = ["']1s["']`, string(data))

	var back Config
	require.NoError(t, Decode(data, &back))
	assert.Equal(t, cfg, back)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		EnvValidation:  "1",
		EnvPresentMode: "immediate",
		EnvLogLevel:    "debug",
		EnvShaderDir:   "/tmp/shaders",
	})))
	assert.True(t, cfg.Renderer.Validation)
	assert.Equal(t, hal.PresentModeImmediate, cfg.PresentMode())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/shaders", cfg.Shaders.Dir)

	assert.Error(t, cfg.ApplyEnv(env(map[string]string{EnvValidation: "maybe"})))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero width", func(c *Config) { c.Window.Width = 0 }, "must be positive"},
		{"present mode", func(c *Config) { c.Renderer.PresentMode = "vsync" }, "unknown present mode"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "unknown log format"},
		{"fence timeout", func(c *Config) { c.Renderer.FenceTimeout = -1 }, "negative fence timeout"},
		{"workers", func(c *Config) { c.Scene.Workers = -2 }, "negative worker count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[window]\nwidth = 640\nheight = 480\n"), 0o644))
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Window.Width)
	assert.Equal(t, "warn", cfg.Log.Level)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorContains(t, err, "read config")

	require.NoError(t, os.WriteFile(path, []byte("[window]\nwidth = -1\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "must be positive")
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(DefaultFile)
	require.NoError(t, err)
	assert.Equal(t, Default().Window, cfg.Window)
}
