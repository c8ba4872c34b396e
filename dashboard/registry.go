// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import "sync"

// Registry holds one series per device in first-seen order. Devices are
// never removed.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	series   map[string]*Series
	selected bool
	onFirst  func(*Series)
}

// NewRegistry creates an empty registry. onFirst, if set, is called once with
// the first series ever created.
func NewRegistry(onFirst func(*Series)) *Registry {
	return &Registry{
		series:  make(map[string]*Series),
		onFirst: onFirst,
	}
}

// FindOrCreate returns the device's series, creating and registering it if
// the device is new.
func (r *Registry) FindOrCreate(deviceID string) (s *Series, created bool) {
	r.mu.Lock()
	if s, ok := r.series[deviceID]; ok {
		r.mu.Unlock()
		return s, false
	}

	s = NewSeries(deviceID)
	r.series[deviceID] = s
	r.order = append(r.order, deviceID)

	first := !r.selected
	r.selected = true
	r.mu.Unlock()

	if first && r.onFirst != nil {
		r.onFirst(s)
	}
	return s, true
}

// Find returns the device's series, if registered.
func (r *Registry) Find(deviceID string) (*Series, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.series[deviceID]
	return s, ok
}

// Devices lists device IDs in first-seen order.
func (r *Registry) Devices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
