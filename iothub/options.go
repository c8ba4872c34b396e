// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package iothub

import "log/slog"

type (
	// ResolverOption represents a single endpoint resolver option.
	ResolverOption interface{ resolver(*ResolverOptions) }

	// ResolverOptions are the resolved endpoint resolver options.
	ResolverOptions struct {
		Prober Prober
		Logger *slog.Logger
	}

	// WithProber replaces the AMQP discovery probe.
	WithProber struct{ Prober }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return withLogger{logger}
}

func (o withLogger) resolver(opt *ResolverOptions) {
	opt.Logger = o.Logger
}

func (o WithProber) resolver(opt *ResolverOptions) {
	opt.Prober = o.Prober
}

// Apply resolves the provided list of options.
func (o *ResolverOptions) Apply(
	opts []ResolverOption,
	rest ...ResolverOption,
) {
	for _, opt := range opts {
		if opt != nil {
			opt.resolver(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.resolver(o)
		}
	}
}

func (o *ResolverOptions) resolver(opt *ResolverOptions) {
	if o != nil {
		*opt = *o
	}
}
