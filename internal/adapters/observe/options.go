package observe

import (
	"github.com/pacelog/pacelog/pkg/clock"
	"github.com/pacelog/pacelog/pkg/logger"
)

// Option applies a configuration option to the Sink.
type Option func(*Sink)

// WithQueueSize sets the signal buffer capacity.
func WithQueueSize(size int) Option {
	return func(s *Sink) {
		if size > 0 {
			s.capacity = size
		}
	}
}

// WithDrainWorkers sets the number of drain goroutines.
func WithDrainWorkers(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithHandler appends a handler for drained signals.
func WithHandler(h Handler) Option {
	return func(s *Sink) {
		if h != nil {
			s.handlers = append(s.handlers, h)
		}
	}
}

// WithClock sets the time source used for signal timestamps.
func WithClock(clk clock.Clock) Option {
	return func(s *Sink) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// WithLogger sets the logger instance.
func WithLogger(log logger.Logger) Option {
	return func(s *Sink) {
		if log != nil {
			s.log = log
		}
	}
}
