// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"log/slog"
	"time"
)

type (
	// Option represents a single hub or server option.
	Option interface{ relay(*Options) }

	// Options are the resolved hub and server options.
	Options struct {
		// QueueSize bounds each client's outbound queue.
		QueueSize int

		// WriteTimeout bounds a single WebSocket write.
		WriteTimeout time.Duration

		// PingInterval is the keepalive interval; reads time out after
		// twice this interval without a pong.
		PingInterval time.Duration

		Metrics *Metrics
		Logger  *slog.Logger
	}

	// WithQueueSize bounds each client's outbound queue.
	WithQueueSize int

	// WithWriteTimeout bounds a single WebSocket write.
	WithWriteTimeout time.Duration

	// WithPingInterval sets the WebSocket keepalive interval.
	WithPingInterval time.Duration

	// WithMetrics records hub activity in the given instruments.
	WithMetrics struct{ *Metrics }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

const (
	DefaultQueueSize    = 64
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o WithQueueSize) relay(opt *Options) {
	opt.QueueSize = int(o)
}

func (o WithWriteTimeout) relay(opt *Options) {
	opt.WriteTimeout = time.Duration(o)
}

func (o WithPingInterval) relay(opt *Options) {
	opt.PingInterval = time.Duration(o)
}

func (o WithMetrics) relay(opt *Options) {
	opt.Metrics = o.Metrics
}

func (o withLogger) relay(opt *Options) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options and fills in defaults.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for _, set := range [][]Option{opts, rest} {
		for _, opt := range set {
			if opt != nil {
				opt.relay(o)
			}
		}
	}

	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
}

func (o *Options) relay(opt *Options) {
	if o != nil {
		*opt = *o
	}
}
