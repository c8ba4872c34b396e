// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"sync"
	"time"
)

// SeriesLength is the number of samples retained per device.
const SeriesLength = 50

type (
	// Series is the rolling window of samples for one device. The three
	// sequences always have equal length, at most SeriesLength.
	Series struct {
		deviceID string

		mu          sync.RWMutex
		times       []time.Time
		temperature []*float64
		humidity    []*float64
	}

	// Snapshot is a consistent copy of a series.
	Snapshot struct {
		DeviceID    string
		Times       []time.Time
		Temperature []*float64
		Humidity    []*float64
	}
)

// NewSeries creates an empty series for the device.
func NewSeries(deviceID string) *Series {
	return &Series{deviceID: deviceID}
}

// DeviceID returns the device the series belongs to.
func (s *Series) DeviceID() string {
	return s.deviceID
}

// Append adds a sample, evicting the oldest sample once the window is full.
// Absent readings are stored as nil to keep the sequences aligned.
func (s *Series) Append(t time.Time, temperature, humidity *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.times = append(s.times, t)
	s.temperature = append(s.temperature, temperature)
	s.humidity = append(s.humidity, humidity)

	if len(s.times) > SeriesLength {
		s.times = s.times[1:]
		s.temperature = s.temperature[1:]
		s.humidity = s.humidity[1:]
	}
}

// Len returns the number of samples held.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.times)
}

// Snapshot copies all three sequences under one lock.
func (s *Series) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		DeviceID:    s.deviceID,
		Times:       append([]time.Time(nil), s.times...),
		Temperature: append([]*float64(nil), s.temperature...),
		Humidity:    append([]*float64(nil), s.humidity...),
	}
}

// Latest returns the most recent non-nil value of a sequence.
func Latest(values []*float64) (float64, bool) {
	for i := len(values) - 1; i >= 0; i-- {
		if values[i] != nil {
			return *values[i], true
		}
	}
	return 0, false
}
