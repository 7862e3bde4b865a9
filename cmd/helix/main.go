// Command helix opens the helix viewer: a world whose visible entities are drawn every
// frame, with an axis indicator and optional bloom.
//
//	helix -config helix.toml
//	helix -headless -frames 10 -out frame.png
//	helix -check-shaders
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/png"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/Carmen-Shannon/helix-go/common"
	"github.com/Carmen-Shannon/helix-go/config"
	"github.com/Carmen-Shannon/helix-go/engine"
	"github.com/Carmen-Shannon/helix-go/engine/camera"
	"github.com/Carmen-Shannon/helix-go/engine/component"
	"github.com/Carmen-Shannon/helix-go/engine/logging"
	"github.com/Carmen-Shannon/helix-go/engine/postprocess"
	"github.com/Carmen-Shannon/helix-go/engine/renderer"
	"github.com/Carmen-Shannon/helix-go/engine/renderer/shader"
	"github.com/Carmen-Shannon/helix-go/engine/system"
	"github.com/Carmen-Shannon/helix-go/engine/window"
	"github.com/Carmen-Shannon/helix-go/engine/world"
	"github.com/pkg/profile"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type options struct {
	configPath   string
	headless     bool
	frames       int
	out          string
	texture      string
	checkShaders bool
	profile      bool
	pprof        string
	pprofDir     string
}

// GLFW and the WGPU surface must stay on the main thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "helix:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("helix", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "TOML configuration file")
	fs.BoolVar(&o.headless, "headless", false, "render with the software backend without a window")
	fs.IntVar(&o.frames, "frames", 1, "frames to render in headless mode")
	fs.StringVar(&o.out, "out", "", "write the last headless frame to this PNG file")
	fs.StringVar(&o.texture, "texture", "", "PNG or JPEG image for the ground tile")
	fs.BoolVar(&o.checkShaders, "check-shaders", false, "validate the embedded shaders and exit")
	fs.BoolVar(&o.profile, "profile", false, "log frame statistics every second")
	fs.StringVar(&o.pprof, "pprof", "", "write a pprof profile of the run: cpu, mem or trace")
	fs.StringVar(&o.pprofDir, "pprof-dir", ".", "directory the pprof profile is written to")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.frames < 1 {
		return o, fmt.Errorf("-frames must be at least 1, got %d", o.frames)
	}
	if o.out != "" && !o.headless {
		return o, errors.New("-out requires -headless")
	}
	if _, err := profileMode(o.pprof); err != nil {
		return o, err
	}
	return o, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}

func run(args []string, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	log, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if opts.checkShaders {
		return checkShaders(log)
	}
	if opts.headless {
		cfg.Render.Backend = renderer.BackendTypeSoftware.String()
	}
	if mode, _ := profileMode(opts.pprof); mode != nil {
		defer profile.Start(mode, profile.ProfilePath(opts.pprofDir), profile.NoShutdownHook, profile.Quiet).Stop()
		log.Info("pprof enabled", zap.String("mode", opts.pprof), zap.String("dir", opts.pprofDir))
	}
	return view(log, cfg, opts)
}

// profileMode maps the -pprof flag to a pkg/profile mode; "" disables profiling.
func profileMode(name string) (func(*profile.Profile), error) {
	switch name {
	case "":
		return nil, nil
	case "cpu":
		return profile.CPUProfile, nil
	case "mem":
		return profile.MemProfile, nil
	case "trace":
		return profile.TraceProfile, nil
	default:
		return nil, fmt.Errorf("unknown -pprof mode %q", name)
	}
}

// checkShaders compiles every embedded shader and reports all failures together.
func checkShaders(log *zap.Logger) error {
	var errs error
	for _, s := range shader.All() {
		if err := s.Validate(); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		log.Info("shader ok", zap.String("key", s.Key()), zap.Stringer("type", s.ShaderType()))
	}
	return errs
}

// view builds the pipeline from cfg and runs it, windowed or headless.
func view(log *zap.Logger, cfg *config.Config, opts options) (err error) {
	backend := backendType(cfg.Render.Backend)

	var win window.Window
	var surface renderer.SurfaceSource
	if backend == renderer.BackendTypeWGPU {
		win, err = window.NewWindow(
			window.WithTitle(cfg.Window.Title),
			window.WithSize(cfg.Window.Width, cfg.Window.Height),
			window.WithLogger(log),
		)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, win.Close()) }()
		surface = win
	}

	rendererOpts := []renderer.RendererBuilderOption{
		renderer.WithPresentMode(presentMode(cfg.Render.PresentMode)),
		renderer.WithMSAA(renderer.MSAASampleCount(cfg.Render.MSAA)),
		renderer.WithWorkers(cfg.Render.Workers),
		renderer.WithLogger(log),
	}
	if surface == nil {
		// The window reports its framebuffer size, which may differ from the config on high-DPI displays.
		rendererOpts = append(rendererOpts, renderer.WithSurfaceSize(cfg.Window.Width, cfg.Window.Height))
	}
	r, err := renderer.NewRenderer(backend, surface, rendererOpts...)
	if err != nil {
		return err
	}
	defer r.Release()

	bloom, err := postprocess.NewBloom(r,
		postprocess.WithEnabled(cfg.Bloom.Enabled),
		postprocess.WithThreshold(cfg.Bloom.Threshold),
		postprocess.WithIntensity(cfg.Bloom.Intensity),
		postprocess.WithRadius(cfg.Bloom.Radius),
		postprocess.WithDownsample(cfg.Bloom.Downsample),
		postprocess.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer bloom.Release()

	width, height := r.Size()
	cam := camera.NewCamera(
		camera.WithFov(common.Radians(cfg.Camera.FOV)),
		camera.WithAspect(float32(width)/float32(height)),
		camera.WithPlanes(cfg.Camera.Near, cfg.Camera.Far),
		camera.WithUp(cfg.Camera.Up[0], cfg.Camera.Up[1], cfg.Camera.Up[2]),
		camera.WithController(camera.OrbitFromPosition(cfg.Camera.Position, cfg.Camera.Target)),
	)

	w := world.NewWorld(world.WithLogger(log))
	stores := component.NewStores(w)
	sys := system.NewRenderingSystem(w, stores, r, cam,
		system.WithBloom(bloom),
		system.WithClearColor(common.Color{
			R: cfg.Render.ClearColor[0],
			G: cfg.Render.ClearColor[1],
			B: cfg.Render.ClearColor[2],
			A: cfg.Render.ClearColor[3],
		}),
		system.WithLogger(log),
	)

	eng, err := engine.NewEngine(
		engine.WithWorld(w),
		engine.WithRenderingSystem(sys),
		engine.WithRenderer(r),
		engine.WithCamera(cam),
		engine.WithWindow(win),
		engine.WithMaxFrameFailures(cfg.Engine.MaxFrameFailures),
		engine.WithFrameLimit(cfg.Engine.FrameLimit),
		engine.WithProfiling(opts.profile),
		engine.WithLogger(log),
	)
	if err != nil {
		return err
	}

	var groundTexture *common.TextureStagingData
	if opts.texture != "" {
		if groundTexture, err = common.LoadTexture(opts.texture); err != nil {
			return err
		}
	}
	demo := newDemoScene(log, w, stores, groundTexture)

	log.Info("starting",
		zap.Stringer("backend", backend),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Bool("bloom", sys.BloomEnabled()),
	)

	if win == nil {
		if err := eng.RunFrames(opts.frames); err != nil {
			return err
		}
		log.Info("headless run finished", zap.Int("frames", eng.Frames()), zap.Int("cached", sys.Cache().Len()))
		if opts.out != "" {
			return writeSnapshot(r, opts.out)
		}
		return nil
	}

	bindInput(log, eng, cam, demo)
	return eng.Run()
}

// bindInput wires the viewer keys: B toggles bloom, V toggles the first box's
// visibility, R re-populates its node, WASD pans, Q/E orbit. Scroll zooms and a
// middle-mouse drag orbits.
func bindInput(log *zap.Logger, eng engine.Engine, cam camera.Camera, demo *demoScene) {
	held := make(map[uint32]bool)
	sys := eng.RenderingSystem()
	ctrl := cam.Controller()

	eng.Window().SetKeyCallback(func(key uint32, action window.KeyAction) {
		held[key] = action != window.KeyReleased
		if action != window.KeyPressed {
			return
		}
		switch key {
		case common.KeyB:
			sys.SetBloomEnabled(!sys.BloomEnabled())
			log.Info("bloom toggled", zap.Bool("enabled", sys.BloomEnabled()))
		case common.KeyV:
			demo.toggleVisibility()
		case common.KeyR:
			demo.repopulate()
		}
	})
	eng.Window().SetScrollCallback(func(delta float32) {
		ctrl.Zoom(delta)
	})
	eng.Window().SetDragCallback(func(dx, dy float32) {
		ctrl.Orbit(-dx*0.005, dy*0.005)
	})

	eng.SetTickCallback(func(float32) {
		var right, forward float32
		if held[common.KeyW] {
			forward++
		}
		if held[common.KeyS] {
			forward--
		}
		if held[common.KeyD] {
			right++
		}
		if held[common.KeyA] {
			right--
		}
		if right != 0 || forward != 0 {
			ctrl.Pan(right*0.2, forward*0.2)
		}
		if held[common.KeyQ] {
			ctrl.Orbit(ctrl.OrbitSpeed(), 0)
		}
		if held[common.KeyE] {
			ctrl.Orbit(-ctrl.OrbitSpeed(), 0)
		}
	})
}

func writeSnapshot(r renderer.Renderer, path string) error {
	img, err := r.Snapshot()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func backendType(name string) renderer.RendererBackendType {
	if strings.EqualFold(name, renderer.BackendTypeSoftware.String()) {
		return renderer.BackendTypeSoftware
	}
	return renderer.BackendTypeWGPU
}

func presentMode(name string) renderer.PresentMode {
	switch strings.ToLower(name) {
	case "immediate":
		return renderer.PresentModeUncapped
	case "mailbox":
		return renderer.PresentModeMailbox
	default:
		return renderer.PresentModeVSync
	}
}
