// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Azure/iot-telemetry-relay/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) waiting(
	ctx context.Context,
	task string,
	attempt uint64,
	wait time.Duration,
	err error,
) {
	l.Debug(ctx, "attempt failed",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
		slog.Duration("wait", wait),
		slog.String("error", err.Error()),
	)
}

func (l *logger) gaveUp(
	ctx context.Context,
	task string,
	attempt uint64,
	err error,
) {
	l.Info(ctx, "giving up",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

func (l *logger) succeeded(ctx context.Context, task string, attempt uint64) {
	if attempt > 1 {
		l.Info(ctx, "attempt succeeded",
			slog.String("task", task),
			slog.Uint64("attempt", attempt),
		)
	}
}
