package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helix.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Bloom.Enabled {
		t.Error("bloom should be disabled by default")
	}
	if cfg.Render.ClearColor != [4]float32{0.4, 0.4, 0.4, 1.0} {
		t.Errorf("clear color = %v", cfg.Render.ClearColor)
	}
	if cfg.Camera.Position != [3]float32{0, -30, 30} {
		t.Errorf("camera position = %v", cfg.Camera.Position)
	}
	if cfg.Camera.FOV != 60 || cfg.Camera.Near != 0.01 || cfg.Camera.Far != 300 {
		t.Errorf("camera lens = fov %v near %v far %v", cfg.Camera.FOV, cfg.Camera.Near, cfg.Camera.Far)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[window]
width = 640

[render]
backend = "software"

[bloom]
enabled = true
radius = 2.5

[logging]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Window.Width != 640 {
		t.Errorf("width = %d, want 640", cfg.Window.Width)
	}
	if cfg.Window.Height != 720 {
		t.Errorf("height = %d, want default 720", cfg.Window.Height)
	}
	if cfg.Render.Backend != "software" {
		t.Errorf("backend = %q", cfg.Render.Backend)
	}
	if !cfg.Bloom.Enabled || cfg.Bloom.Radius != 2.5 {
		t.Errorf("bloom = %+v", cfg.Bloom)
	}
	if cfg.Bloom.Threshold != 0.8 {
		t.Errorf("threshold = %v, want default 0.8", cfg.Bloom.Threshold)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "malformed", body: "[window\nwidth = 1", wantErr: "parse config"},
		{name: "bad backend", body: "[render]\nbackend = \"vulkan\"", wantErr: "unknown render backend"},
		{name: "bad msaa", body: "[render]\nmsaa = 2", wantErr: "msaa"},
		{name: "bad planes", body: "[camera]\nnear = 10.0\nfar = 5.0", wantErr: "camera planes"},
		{name: "bad size", body: "[window]\nheight = 0", wantErr: "window size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("err = %v, want read config error", err)
	}
}
