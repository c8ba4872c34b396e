// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package dashboard keeps the per-device telemetry series shown by a
// dashboard session.
package dashboard

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Azure/iot-telemetry-relay/internal/log"
)

type (
	// Renderer draws a view of the session.
	Renderer interface {
		Render(View)
	}

	// RendererFunc adapts a function to a Renderer.
	RendererFunc func(View)

	// View is what a renderer draws.
	View struct {
		// Devices lists device IDs in first-seen order.
		Devices []string

		// Selected is the selected device's series, or nil before any
		// device has reported.
		Selected *Snapshot

		// Discarded counts malformed messages dropped so far.
		Discarded int64
	}

	// Session is the state owned by one dashboard: its registry, the current
	// selection, and the renderer that draws it.
	Session struct {
		registry  *Registry
		renderer  Renderer
		log       log.Logger
		discarded atomic.Int64

		mu       sync.RWMutex
		selected string
	}
)

// Render calls f.
func (f RendererFunc) Render(v View) {
	f(v)
}

// NewSession creates an empty session drawing through the renderer. The first
// device to report is selected automatically.
func NewSession(renderer Renderer, logger *slog.Logger) *Session {
	s := &Session{renderer: renderer, log: log.Wrap(logger)}
	s.registry = NewRegistry(func(first *Series) {
		s.mu.Lock()
		s.selected = first.DeviceID()
		s.mu.Unlock()
	})
	return s
}

// Registry returns the session's device registry.
func (s *Session) Registry() *Registry {
	return s.registry
}

// Discarded returns the number of malformed messages dropped.
func (s *Session) Discarded() int64 {
	return s.discarded.Load()
}

// Selected returns the selected device ID, or "" if none.
func (s *Session) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// HandleMessage records one relay message and reports whether the view
// changed. Malformed messages are counted and dropped.
func (s *Session) HandleMessage(ctx context.Context, raw []byte) bool {
	t, err := ParseTelemetry(raw)
	if err != nil {
		s.discarded.Add(1)
		s.log.Debug(ctx, "discarding message",
			slog.String("error", err.Error()),
			slog.String("message", string(raw)),
		)
		return false
	}

	series, created := s.registry.FindOrCreate(t.DeviceID)
	series.Append(t.MessageDate, t.Temperature, t.Humidity)
	if created {
		s.log.Info(ctx, "tracking new device",
			slog.String("device_id", t.DeviceID),
			slog.Int("devices", s.registry.Len()),
		)
	}
	return true
}

// Select changes the selected device and redraws. Unknown devices are
// ignored.
func (s *Session) Select(deviceID string) bool {
	if _, ok := s.registry.Find(deviceID); !ok {
		return false
	}

	s.mu.Lock()
	s.selected = deviceID
	s.mu.Unlock()

	s.Redraw()
	return true
}

// SelectNext moves the selection by delta positions in first-seen order,
// wrapping at either end.
func (s *Session) SelectNext(delta int) bool {
	devices := s.registry.Devices()
	if len(devices) == 0 {
		return false
	}

	i := slices.Index(devices, s.Selected())
	n := len(devices)
	next := ((i+delta)%n + n) % n
	return s.Select(devices[next])
}

// View captures the current state for rendering.
func (s *Session) View() View {
	v := View{
		Devices:   s.registry.Devices(),
		Discarded: s.discarded.Load(),
	}
	if series, ok := s.registry.Find(s.Selected()); ok {
		snap := series.Snapshot()
		v.Selected = &snap
	}
	return v
}

// Redraw renders the current view.
func (s *Session) Redraw() {
	if s.renderer != nil {
		s.renderer.Render(s.View())
	}
}

// Run dispatches messages until the channel closes or the context ends. All
// immediately available messages are handled before a single redraw.
func (s *Session) Run(ctx context.Context, messages <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			redraw := s.HandleMessage(ctx, raw)
			open := true

		batch:
			for open {
				select {
				case raw, ok := <-messages:
					if !ok {
						open = false
						break batch
					}
					redraw = s.HandleMessage(ctx, raw) || redraw
				default:
					break batch
				}
			}

			if redraw {
				s.Redraw()
			}
			if !open {
				return nil
			}
		}
	}
}
