// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"context"

	"github.com/Azure/iot-telemetry-relay/stream"
)

// EventHandler returns a stream handler that wraps each event in an Envelope
// and broadcasts it.
func (h *Hub) EventHandler() stream.Handler {
	return func(ctx context.Context, ev *stream.Event) {
		h.options.Metrics.EventIngested()

		env, err := NewEnvelope(ev)
		if err == nil {
			var msg []byte
			if msg, err = env.Marshal(); err == nil {
				h.Broadcast(ctx, msg)
				return
			}
		}
		h.log.Err(ctx, err)
	}
}

// ErrorHandler returns a stream error handler that logs and counts errors.
func (h *Hub) ErrorHandler() stream.ErrorHandler {
	return func(ctx context.Context, err error) {
		h.options.Metrics.SubscriptionError()
		h.log.Err(ctx, err)
	}
}
