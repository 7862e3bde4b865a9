package main

import (
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/helix-go/engine/camera"
	"github.com/Carmen-Shannon/helix-go/engine/component"
	"github.com/Carmen-Shannon/helix-go/engine/renderer"
	"github.com/Carmen-Shannon/helix-go/engine/system"
	"github.com/Carmen-Shannon/helix-go/engine/world"
	"go.uber.org/zap"
)

const smallConfig = `
[window]
width = 64
height = 48

[bloom]
enabled = true

[logging]
level = "error"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helix.toml")
	if err := os.WriteFile(path, []byte(smallConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "defaults", args: nil},
		{name: "headless", args: []string{"-headless", "-frames", "3", "-out", "f.png"}},
		{name: "zero frames", args: []string{"-headless", "-frames", "0"}, wantErr: true},
		{name: "out without headless", args: []string{"-out", "f.png"}, wantErr: true},
		{name: "unknown flag", args: []string{"-nope"}, wantErr: true},
		{name: "cpu profile", args: []string{"-pprof", "cpu", "-pprof-dir", "prof"}},
		{name: "unknown profile", args: []string{"-pprof", "gpu"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHeadlessRunWritesPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "frame.png")
	if err := run([]string{"-config", writeConfig(t), "-headless", "-frames", "2", "-out", out}, io.Discard); err != nil {
		t.Fatalf("run: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("image = %dx%d, want 64x48", b.Dx(), b.Dy())
	}
}

func TestCheckShaders(t *testing.T) {
	if err := run([]string{"-check-shaders"}, io.Discard); err != nil {
		t.Fatalf("embedded shaders invalid: %v", err)
	}
}

func TestMissingConfig(t *testing.T) {
	if err := run([]string{"-config", filepath.Join(t.TempDir(), "absent.toml")}, io.Discard); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestNameMappings(t *testing.T) {
	modes := map[string]renderer.PresentMode{
		"fifo":      renderer.PresentModeVSync,
		"IMMEDIATE": renderer.PresentModeUncapped,
		"mailbox":   renderer.PresentModeMailbox,
		"":          renderer.PresentModeVSync,
	}
	for name, want := range modes {
		if got := presentMode(name); got != want {
			t.Errorf("presentMode(%q) = %v, want %v", name, got, want)
		}
	}
	backends := map[string]renderer.RendererBackendType{
		"software": renderer.BackendTypeSoftware,
		"Software": renderer.BackendTypeSoftware,
		"wgpu":     renderer.BackendTypeWGPU,
	}
	for name, want := range backends {
		if got := backendType(name); got != want {
			t.Errorf("backendType(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestDemoSceneInput(t *testing.T) {
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, nil, renderer.WithSurfaceSize(32, 32), renderer.WithWorkers(2))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()

	w := world.NewWorld()
	stores := component.NewStores(w)
	sys := system.NewRenderingSystem(w, stores, r, camera.NewCamera())
	w.AddSystem(sys)
	demo := newDemoScene(zap.NewNop(), w, stores, nil)

	tick := func() {
		t.Helper()
		if err := w.Process(1.0 / 60); err != nil {
			t.Fatal(err)
		}
	}
	tick()
	if got, want := sys.Cache().Len(), demo.visibleCount(); got != want {
		t.Fatalf("cache = %d entries, want %d", got, want)
	}
	hiddenID, _ := w.Identities().Identity(demo.hidden)
	if sys.Cache().Has(hiddenID) {
		t.Fatal("entity without Visibility was cached")
	}

	toggledID, _ := w.Identities().Identity(demo.toggled)
	demo.toggleVisibility()
	tick()
	if sys.Cache().Has(toggledID) || sys.Cache().Len() != demo.visibleCount() {
		t.Fatal("hidden box still cached")
	}
	demo.toggleVisibility()
	tick()
	if !sys.Cache().Has(toggledID) {
		t.Fatal("shown box not cached")
	}

	before, _ := sys.Cache().Get(toggledID)
	demo.repopulate()
	tick()
	after, _ := sys.Cache().Get(toggledID)
	if after == nil || after == before {
		t.Fatal("re-populated node not picked up")
	}
	if after.Position() != before.Position() {
		t.Fatalf("re-populated box moved from %v to %v", before.Position(), after.Position())
	}
}

func TestCheckerTexture(t *testing.T) {
	tex := checkerTexture(16, 4)
	if !tex.Valid() {
		t.Fatal("invalid texture")
	}
	if a, b := tex.At(0, 0), tex.At(0.3, 0); a == b {
		t.Fatalf("neighbouring cells share color %v", a)
	}
}
