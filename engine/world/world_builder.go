package world

import "go.uber.org/zap"

// WorldBuilderOption is a functional option for configuring a World.
type WorldBuilderOption func(*World)

// WithLogger sets the logger used for diagnostics. A nil logger is ignored.
func WithLogger(log *zap.Logger) WorldBuilderOption {
	return func(w *World) {
		if log != nil {
			w.log = log.Named("world")
		}
	}
}
