// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"encoding/json"
	"time"

	"github.com/Azure/iot-telemetry-relay/internal/wallclock"
	"github.com/Azure/iot-telemetry-relay/stream"
)

// Envelope is the message sent to dashboards for each telemetry event.
type Envelope struct {
	// IotMessage is the event body. Bodies that are not JSON are carried as
	// a JSON string.
	IotMessage json.RawMessage

	// Timestamp is the enqueued time in RFC 3339 form.
	Timestamp string

	DeviceID string
}

// NewEnvelope wraps the event. A missing enqueued time is replaced by the
// current time.
func NewEnvelope(ev *stream.Event) (*Envelope, error) {
	body := json.RawMessage(ev.Body)
	if !json.Valid(ev.Body) {
		var err error
		if body, err = json.Marshal(string(ev.Body)); err != nil {
			return nil, err
		}
	}

	ts := ev.EnqueuedTime
	if ts.IsZero() {
		ts = wallclock.Instance.Now()
	}

	return &Envelope{
		IotMessage: body,
		Timestamp:  ts.UTC().Format(time.RFC3339Nano),
		DeviceID:   ev.DeviceID,
	}, nil
}

// Marshal encodes the envelope as sent on the wire.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
