// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"encoding/json"
	"time"

	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/Azure/iot-telemetry-relay/internal/iso"
)

type (
	// Telemetry is one parsed device reading.
	Telemetry struct {
		DeviceID    string
		MessageDate time.Time
		Temperature *float64
		Humidity    *float64
	}

	telemetryJSON struct {
		DeviceID    string `json:"DeviceId"`
		MessageDate string
		IotData     *struct {
			Temperature *float64 `json:"temperature"`
			Humidity    *float64 `json:"humidity"`
		}
	}

	envelopeJSON struct {
		IotMessage json.RawMessage
		DeviceID   string
	}
)

// ParseTelemetry decodes a device reading, either bare or wrapped in the
// relay envelope. The envelope supplies the device ID when the reading has
// none; the envelope timestamp is never used as the reading date. Readings
// without a date, without a device, with an unparsable date, or with neither
// temperature nor humidity are malformed.
func ParseTelemetry(raw []byte) (*Telemetry, error) {
	var env envelopeJSON
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformed("message is not a JSON object", err)
	}

	payload := raw
	if len(env.IotMessage) > 0 {
		payload = env.IotMessage

		// Bodies the relay could not carry as JSON arrive as strings.
		var text string
		if json.Unmarshal(payload, &text) == nil {
			payload = []byte(text)
		}
	}

	var msg telemetryJSON
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, malformed("telemetry is not a JSON object", err)
	}
	if msg.DeviceID == "" {
		msg.DeviceID = env.DeviceID
	}

	switch {
	case msg.MessageDate == "":
		return nil, malformed("telemetry has no MessageDate", nil)
	case msg.DeviceID == "":
		return nil, malformed("telemetry has no DeviceId", nil)
	case msg.IotData == nil ||
		(msg.IotData.Temperature == nil && msg.IotData.Humidity == nil):
		return nil, malformed("telemetry has no readings", nil)
	}

	date, err := iso.ParseDateTime(msg.MessageDate)
	if err != nil {
		return nil, malformed("telemetry MessageDate is not ISO 8601", err)
	}

	return &Telemetry{
		DeviceID:    msg.DeviceID,
		MessageDate: date,
		Temperature: msg.IotData.Temperature,
		Humidity:    msg.IotData.Humidity,
	}, nil
}

func malformed(msg string, err error) error {
	return &errors.Error{
		Message:     msg,
		Kind:        errors.MalformedTelemetry,
		NestedError: err,
	}
}
