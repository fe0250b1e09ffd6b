package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, SourceOpenCV, cfg.GetSource())
	assert.Equal(t, 30, cfg.GetAbsenceSeconds())
	assert.Equal(t, time.Second/30, cfg.FrameInterval())
}

func TestLoadConfigFile(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.toml"))
		require.NoError(t, err)
		assert.Equal(t, NewDefaultConfig().AbsenceSeconds, cfg.AbsenceSeconds)
	})

	t.Run("partial file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "objwatch.toml")
		data := []byte(`
active_source = "Local"
absence_seconds = 45

[local]
path = "/tmp/clip.mp4"

[detector]
backend = "ollama"
model = "llava:7b"
`)
		require.NoError(t, os.WriteFile(path, data, 0o644))

		cfg, err := LoadConfigFile(path)
		require.NoError(t, err)
		assert.Equal(t, SourceLocal, cfg.ActiveSource)
		assert.Equal(t, 45, cfg.AbsenceSeconds)
		assert.Equal(t, "/tmp/clip.mp4", cfg.Local.Path)
		assert.Equal(t, BackendOllama, cfg.Detector.Backend)
		assert.Equal(t, "llava:7b", cfg.Detector.Model)
		assert.Equal(t, 85, cfg.Detector.JPEGQuality)
		require.NoError(t, cfg.Validate())
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("absence_seconds = = 3"), 0o644))

		cfg, err := LoadConfigFile(path)
		require.Error(t, err)
		assert.NotNil(t, cfg)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "objwatch.toml")

	cfg := NewDefaultConfig()
	cfg.SetSource(SourceWebcam)
	cfg.SetFPS(15)
	cfg.SetAbsenceSeconds(120)
	cfg.Detector.ReconnectDelay = 5 * time.Second

	require.NoError(t, cfg.Save(path))

	got, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, SourceWebcam, got.GetSource())
	assert.Equal(t, uint(15), got.GetFPS())
	assert.Equal(t, 120, got.GetAbsenceSeconds())
	assert.Equal(t, 5*time.Second, got.Detector.ReconnectDelay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.ActiveSource = "YouTube" }},
		{"zero fps", func(c *Config) { c.TargetFPS = 0 }},
		{"negative size", func(c *Config) { c.ScaledWidth = -1 }},
		{"threshold too low", func(c *Config) { c.AbsenceSeconds = 4 }},
		{"threshold too high", func(c *Config) { c.AbsenceSeconds = 301 }},
		{"unknown backend", func(c *Config) { c.Detector.Backend = "grpc" }},
		{"missing url", func(c *Config) { c.Detector.URL = "" }},
		{"ollama without model", func(c *Config) {
			c.Detector.Backend = BackendOllama
			c.Detector.Model = ""
		}},
		{"bad quality", func(c *Config) { c.Detector.JPEGQuality = 0 }},
		{"bad confidence", func(c *Config) { c.Detector.MinConfidence = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
