// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	e "errors"
	"log/slog"

	"github.com/Azure/iot-telemetry-relay/internal/log"
	"github.com/Azure/iot-telemetry-relay/internal/wallclock"
)

// Do calls fn until it succeeds, fails permanently, exhausts the policy, or
// the context is done, and returns the value of the successful call.
func Do[T any](
	ctx context.Context,
	policy Policy,
	lg *slog.Logger,
	name string,
	fn func(context.Context) (T, error),
) (T, error) {
	l := logger{log.Wrap(lg)}
	var zero T

	for attempt := uint64(1); ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			l.succeeded(ctx, name, attempt)
			return val, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		var p *permanentError
		if e.As(err, &p) {
			l.gaveUp(ctx, name, attempt, err)
			return zero, p.error
		}

		wait, ok := policy.Next(attempt)
		if !ok {
			l.gaveUp(ctx, name, attempt, err)
			return zero, err
		}

		l.waiting(ctx, name, attempt, wait, err)
		select {
		case <-wallclock.Instance.After(wait):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
