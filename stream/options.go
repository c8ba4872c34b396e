// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package stream

import (
	"log/slog"
	"time"
)

type (
	// Option represents a single ingestor option.
	Option interface{ ingestor(*Options) }

	// Options are the resolved ingestor options.
	Options struct {
		// BatchSize bounds the number of events requested per receive.
		BatchSize int

		// ReceiveWait bounds how long a single receive waits for a batch.
		ReceiveWait time.Duration

		// ErrorPause is how long a partition loop waits after an error.
		ErrorPause time.Duration

		// ClientID identifies the relay to message brokers.
		ClientID string

		Username string
		Password string `log:"redact"`

		Logger *slog.Logger
	}

	// WithBatchSize bounds the number of events requested per receive.
	WithBatchSize int

	// WithReceiveWait bounds how long a single receive waits for a batch.
	WithReceiveWait time.Duration

	// WithErrorPause sets how long a partition waits after a receive error.
	WithErrorPause time.Duration

	// WithClientID sets the client identifier presented to message brokers.
	WithClientID string

	// WithUsernamePassword sets the credentials presented to MQTT brokers.
	WithUsernamePassword struct {
		Username string
		Password string
	}

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

const (
	defaultBatchSize   = 100
	defaultReceiveWait = time.Second
	defaultErrorPause  = 5 * time.Second
)

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o WithBatchSize) ingestor(opt *Options) {
	opt.BatchSize = int(o)
}

func (o WithReceiveWait) ingestor(opt *Options) {
	opt.ReceiveWait = time.Duration(o)
}

func (o WithErrorPause) ingestor(opt *Options) {
	opt.ErrorPause = time.Duration(o)
}

func (o WithClientID) ingestor(opt *Options) {
	opt.ClientID = string(o)
}

func (o WithUsernamePassword) ingestor(opt *Options) {
	opt.Username = o.Username
	opt.Password = o.Password
}

func (o withLogger) ingestor(opt *Options) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options and fills in defaults.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for _, set := range [][]Option{opts, rest} {
		for _, opt := range set {
			if opt != nil {
				opt.ingestor(o)
			}
		}
	}

	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.ReceiveWait <= 0 {
		o.ReceiveWait = defaultReceiveWait
	}
	if o.ErrorPause <= 0 {
		o.ErrorPause = defaultErrorPause
	}
}

func (o *Options) ingestor(opt *Options) {
	if o != nil {
		*opt = *o
	}
}
