// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package stream consumes device telemetry from an IoT Hub's event stream.
package stream

import (
	"context"
	"time"
)

type (
	// Event is a single device-to-cloud telemetry message.
	Event struct {
		// DeviceID is the originating device, or empty if the backend does
		// not report one.
		DeviceID string

		// EnqueuedTime is when the hub accepted the message. It is the zero
		// time if the backend does not report it.
		EnqueuedTime time.Time

		// Body is the raw message payload.
		Body []byte

		// Partition identifies the stream partition the event was read from.
		Partition string
	}

	// Handler is invoked once per event, in order within a partition.
	// Handlers for different partitions may run concurrently.
	Handler func(context.Context, *Event)

	// ErrorHandler is invoked for errors raised after a successful start.
	// These errors never stop the ingestor.
	ErrorHandler func(context.Context, error)

	// Ingestor delivers telemetry events from a stream backend.
	Ingestor interface {
		// Start begins delivery and returns once every receive loop is
		// running. A startup failure is returned and nothing is delivered.
		Start(ctx context.Context, handler Handler, onError ErrorHandler) error

		// Close stops delivery and releases the backend's resources.
		Close(ctx context.Context) error
	}
)

// DeviceIDProperty is the system property carrying the originating device.
const DeviceIDProperty = "iothub-connection-device-id"
