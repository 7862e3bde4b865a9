package system

import (
	"github.com/Carmen-Shannon/helix-go/common"
	"github.com/Carmen-Shannon/helix-go/engine/postprocess"
	"github.com/Carmen-Shannon/helix-go/engine/spatial"
	"go.uber.org/zap"
)

// RenderingSystemBuilderOption is a functional option applied to a RenderingSystem during construction.
type RenderingSystemBuilderOption func(*renderingSystem)

// WithBloom wraps every frame with a bloom stage. Its enabled flag decides whether a
// frame is captured.
//
// Parameters:
//   - b: the bloom stage, created over the same renderer
//
// Returns:
//   - RenderingSystemBuilderOption: a function that installs the bloom stage
func WithBloom(b postprocess.Bloom) RenderingSystemBuilderOption {
	return func(s *renderingSystem) {
		s.bloom = b
	}
}

// WithClearColor overrides DefaultClearColor.
func WithClearColor(c common.Color) RenderingSystemBuilderOption {
	return func(s *renderingSystem) {
		s.clearColor = c
	}
}

// WithAxes replaces the axis indicator drawn before the cached nodes.
func WithAxes(n spatial.Node) RenderingSystemBuilderOption {
	return func(s *renderingSystem) {
		s.axes = n
	}
}

// WithLogger sets the logger of the rendering system.
func WithLogger(log *zap.Logger) RenderingSystemBuilderOption {
	return func(s *renderingSystem) {
		if log != nil {
			s.log = log.Named("rendering")
		}
	}
}
