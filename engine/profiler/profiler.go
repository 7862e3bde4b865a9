package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/helix-go/engine/renderer"
	"go.uber.org/zap"
)

// Profiler tracks frame rate, draw counts and memory statistics.
// Outputs stats to its logger at a configurable interval.
type Profiler struct {
	log            *zap.Logger
	frameCount     int
	draws          int
	skipped        int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// ProfilerOption is a functional option for configuring a Profiler.
type ProfilerOption func(*Profiler)

// WithInterval sets how often statistics are logged. Values <= 0 log on every tick.
func WithInterval(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		p.updateInterval = max(d, 0)
	}
}

// NewProfiler creates a new Profiler logging through log.
// Update interval defaults to 1 second.
//
// Parameters:
//   - log: the logger statistics are written to; nil discards them
//   - options: variadic list of ProfilerOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(log *zap.Logger, options ...ProfilerOption) *Profiler {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Profiler{
		log:            log.Named("profiler"),
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Tick should be called once per frame with the stats of the frame just presented.
// Logs performance statistics when the update interval has elapsed: FPS, draws and
// skipped draws per frame, heap usage, allocation rate and GC pauses.
//
// Parameters:
//   - stats: the renderer's counters for the last frame
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(stats renderer.FrameStats) bool {
	p.frameCount++
	p.draws += stats.Draws
	p.skipped += stats.SkippedDraws

	now := time.Now()
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	seconds := max(elapsed.Seconds(), 1e-9)
	runtime.ReadMemStats(&p.memStats)

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	gcCount := p.memStats.NumGC
	var lastPause, maxPause time.Duration
	if gcCount > 0 {
		// PauseNs is a ring of the last 256 pauses.
		lastPause = time.Duration(p.memStats.PauseNs[(gcCount-1)%256])
		start := p.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			maxPause = max(maxPause, time.Duration(p.memStats.PauseNs[i%256]))
		}
	}

	p.log.Info("frame stats",
		zap.Float64("fps", float64(p.frameCount)/seconds),
		zap.Float64("draws_per_frame", float64(p.draws)/float64(p.frameCount)),
		zap.Int("skipped_draws", p.skipped),
		zap.Float64("heap_mb", float64(p.memStats.Alloc)/1024/1024),
		zap.Float64("alloc_mb_per_s", float64(allocDelta)/1024/1024/seconds),
		zap.Uint32("gc", gcCount),
		zap.Duration("gc_last_pause", lastPause),
		zap.Duration("gc_max_pause", maxPause),
		zap.Float64("sys_mb", float64(p.memStats.Sys)/1024/1024),
	)

	p.frameCount = 0
	p.draws = 0
	p.skipped = 0
	p.lastTime = now
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
