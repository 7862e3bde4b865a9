// Package config loads the TOML configuration for the helix viewer.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Window  WindowConfig  `toml:"window"`
	Render  RenderConfig  `toml:"render"`
	Camera  CameraConfig  `toml:"camera"`
	Bloom   BloomConfig   `toml:"bloom"`
	Engine  EngineConfig  `toml:"engine"`
	Logging LoggingConfig `toml:"logging"`
}

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type RenderConfig struct {
	Backend     string     `toml:"backend"`      // "wgpu" or "software"
	PresentMode string     `toml:"present_mode"` // "fifo", "immediate" or "mailbox"
	MSAA        int        `toml:"msaa"`         // 1 or 4
	ClearColor  [4]float32 `toml:"clear_color"`
	Workers     int        `toml:"workers"` // software post-process workers, 0 = GOMAXPROCS
}

type CameraConfig struct {
	FOV      float32    `toml:"fov"` // degrees
	Position [3]float32 `toml:"position"`
	Target   [3]float32 `toml:"target"`
	Up       [3]float32 `toml:"up"`
	Near     float32    `toml:"near"`
	Far      float32    `toml:"far"`
}

type BloomConfig struct {
	Enabled    bool    `toml:"enabled"`
	Threshold  float32 `toml:"threshold"`
	Intensity  float32 `toml:"intensity"`
	Radius     float32 `toml:"radius"`
	Downsample int     `toml:"downsample"`
}

type EngineConfig struct {
	MaxFrameFailures int `toml:"max_frame_failures"` // 0 = never stop on failures
	FrameLimit       int `toml:"frame_limit"`        // 0 = run until the window closes
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load reads the TOML file at path on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Helix",
			Width:  1280,
			Height: 720,
		},
		Render: RenderConfig{
			Backend:     "wgpu",
			PresentMode: "fifo",
			MSAA:        1,
			ClearColor:  [4]float32{0.4, 0.4, 0.4, 1.0},
		},
		Camera: CameraConfig{
			FOV:      60,
			Position: [3]float32{0, -30, 30},
			Target:   [3]float32{0, 0, 0},
			Up:       [3]float32{0, 0, 1},
			Near:     0.01,
			Far:      300,
		},
		Bloom: BloomConfig{
			Enabled:    false,
			Threshold:  0.8,
			Intensity:  1.0,
			Radius:     4.0,
			Downsample: 2,
		},
		Engine: EngineConfig{
			MaxFrameFailures: 0,
			FrameLimit:       0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	switch strings.ToLower(c.Render.Backend) {
	case "wgpu", "software":
	default:
		return fmt.Errorf("unknown render backend %q", c.Render.Backend)
	}
	switch strings.ToLower(c.Render.PresentMode) {
	case "fifo", "immediate", "mailbox":
	default:
		return fmt.Errorf("unknown present mode %q", c.Render.PresentMode)
	}
	if c.Render.MSAA != 1 && c.Render.MSAA != 4 {
		return fmt.Errorf("msaa must be 1 or 4, got %d", c.Render.MSAA)
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		return fmt.Errorf("camera planes invalid: near=%v far=%v", c.Camera.Near, c.Camera.Far)
	}
	if c.Camera.FOV <= 0 || c.Camera.FOV >= 180 {
		return fmt.Errorf("camera fov must be in (0, 180), got %v", c.Camera.FOV)
	}
	if c.Bloom.Downsample < 1 {
		return fmt.Errorf("bloom downsample must be >= 1, got %d", c.Bloom.Downsample)
	}
	if c.Bloom.Radius < 0 {
		return fmt.Errorf("bloom radius must not be negative, got %v", c.Bloom.Radius)
	}
	if c.Engine.MaxFrameFailures < 0 || c.Engine.FrameLimit < 0 {
		return fmt.Errorf("engine limits must not be negative")
	}
	return nil
}
