package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"objwatch/internal/tracker"
)

type SourceType string

const (
	SourceLocal  SourceType = "Local"
	SourceWebcam SourceType = "Web-Camera"
	SourceOpenCV SourceType = "OpenCV"

	DefaultConfigPath string = "objwatch.toml"
)

var SourcesList = [...]string{
	string(SourceOpenCV),
	string(SourceWebcam),
	string(SourceLocal),
}

type DetectorBackend string

const (
	BackendWebsocket DetectorBackend = "websocket"
	BackendOllama    DetectorBackend = "ollama"
)

type LocalConfig struct {
	Path string `toml:"path"`
}

type WebcamConfig struct {
	DeviceID string `toml:"device_id"`
}

type OpenCVConfig struct {
	DeviceIndex int `toml:"device_index"`
	// Fallback is how many following device indexes are tried when the
	// configured one cannot be opened.
	Fallback int `toml:"fallback"`
}

type DetectorConfig struct {
	Backend        DetectorBackend `toml:"backend"`
	URL            string          `toml:"url"`
	Model          string          `toml:"model"`
	MaxSide        int             `toml:"max_side"`
	JPEGQuality    int             `toml:"jpeg_quality"`
	MinConfidence  float32         `toml:"min_confidence"`
	Timeout        time.Duration   `toml:"timeout"`
	ReconnectDelay time.Duration   `toml:"reconnect_delay"`
}

type Config struct {
	mu sync.RWMutex

	ActiveSource SourceType `toml:"active_source"`
	TargetFPS    uint       `toml:"target_fps"`
	ScaledWidth  int        `toml:"scaled_width"`
	ScaledHeight int        `toml:"scaled_height"`

	// AbsenceSeconds is the threshold the tracker starts with.
	AbsenceSeconds int    `toml:"absence_seconds"`
	LogLevel       string `toml:"log_level"`

	Local    LocalConfig    `toml:"local"`
	Webcam   WebcamConfig   `toml:"webcam"`
	OpenCV   OpenCVConfig   `toml:"opencv"`
	Detector DetectorConfig `toml:"detector"`
}

func (c *Config) GetSource() SourceType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ActiveSource
}

func (c *Config) SetSource(s SourceType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ActiveSource = s
}

func (c *Config) GetFPS() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TargetFPS
}

func (c *Config) SetFPS(fps uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TargetFPS = fps
}

func (c *Config) GetWidth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledWidth
}

func (c *Config) SetWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledWidth = width
}

func (c *Config) GetHeight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledHeight
}

func (c *Config) SetHeight(height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledHeight = height
}

func (c *Config) GetAbsenceSeconds() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AbsenceSeconds
}

func (c *Config) SetAbsenceSeconds(s int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AbsenceSeconds = s
}

// FrameInterval is the tick period derived from TargetFPS.
func (c *Config) FrameInterval() time.Duration {
	fps := c.GetFPS()
	if fps == 0 {
		fps = defaultFPS
	}
	return time.Second / time.Duration(fps)
}

// Validate checks the values a session cannot run without.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error

	switch c.ActiveSource {
	case SourceLocal, SourceWebcam, SourceOpenCV:
	default:
		errs = append(errs, fmt.Errorf("active_source: unknown source %q", c.ActiveSource))
	}

	if c.TargetFPS == 0 || c.TargetFPS > 120 {
		errs = append(errs, fmt.Errorf("target_fps must be between 1 and 120, got %d", c.TargetFPS))
	}

	if c.ScaledWidth <= 0 || c.ScaledHeight <= 0 {
		errs = append(errs, fmt.Errorf("scaled size must be positive, got %dx%d", c.ScaledWidth, c.ScaledHeight))
	}

	if c.AbsenceSeconds < tracker.MinThreshold || c.AbsenceSeconds > tracker.MaxThreshold {
		errs = append(errs, fmt.Errorf("absence_seconds must be between %d and %d, got %d",
			tracker.MinThreshold, tracker.MaxThreshold, c.AbsenceSeconds))
	}

	switch c.Detector.Backend {
	case BackendWebsocket, BackendOllama:
	default:
		errs = append(errs, fmt.Errorf("detector.backend: unknown backend %q", c.Detector.Backend))
	}

	if c.Detector.URL == "" {
		errs = append(errs, errors.New("detector.url is required"))
	}

	if c.Detector.Backend == BackendOllama && c.Detector.Model == "" {
		errs = append(errs, errors.New("detector.model is required for the ollama backend"))
	}

	if c.Detector.JPEGQuality < 1 || c.Detector.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("detector.jpeg_quality must be between 1 and 100, got %d", c.Detector.JPEGQuality))
	}

	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("detector.min_confidence must be between 0 and 1, got %v", c.Detector.MinConfidence))
	}

	return errors.Join(errs...)
}

// Save writes the configuration as TOML, creating the parent directory.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadConfigFile reads path over the defaults. A missing file is not an
// error; the defaults are returned as is.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return NewDefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

const defaultFPS = 30

func NewDefaultConfig() *Config {
	return &Config{
		ActiveSource:   SourceOpenCV,
		TargetFPS:      defaultFPS,
		ScaledWidth:    640,
		ScaledHeight:   480,
		AbsenceSeconds: tracker.DefaultThreshold,
		LogLevel:       "info",
		Local:          LocalConfig{Path: ""},
		Webcam:         WebcamConfig{DeviceID: "/dev/video0"},
		OpenCV:         OpenCVConfig{DeviceIndex: 0, Fallback: 1},
		Detector: DetectorConfig{
			Backend:        BackendWebsocket,
			URL:            "localhost:8080",
			Model:          "qwen2.5vl:7b",
			MaxSide:        640,
			JPEGQuality:    85,
			MinConfidence:  0.25,
			Timeout:        10 * time.Second,
			ReconnectDelay: 2 * time.Second,
		},
	}
}
