// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Azure/iot-telemetry-relay/dashboard"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	views []dashboard.View
}

func (r *recorder) Render(v dashboard.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func reading(device string, temperature float64) []byte {
	return []byte(fmt.Sprintf(
		`{"DeviceId":%q,"MessageDate":"2024-03-01T10:00:00Z","IotData":{"temperature":%v}}`,
		device, temperature,
	))
}

func TestSessionAutoSelectsFirstDevice(t *testing.T) {
	ctx := context.Background()
	s := dashboard.NewSession(nil, nil)

	require.True(t, s.HandleMessage(ctx, reading("a", 20)))
	require.Equal(t, "a", s.Selected())

	require.True(t, s.HandleMessage(ctx, reading("b", 21)))
	require.Equal(t, "a", s.Selected())
	require.Equal(t, []string{"a", "b"}, s.Registry().Devices())

	v := s.View()
	require.Equal(t, "a", v.Selected.DeviceID)
	require.Len(t, v.Selected.Times, 1)
}

func TestSessionDiscardsMalformed(t *testing.T) {
	ctx := context.Background()
	s := dashboard.NewSession(nil, nil)

	for _, raw := range []string{
		`{"DeviceId":"a","MessageDate":"2024-03-01T10:00:00Z","IotData":{}}`,
		`{"DeviceId":"a","IotData":{}}`,
		`{"IotMessage":{"DeviceId":"a","IotData":{"temperature":21}},` +
			`"Timestamp":"2024-03-01T10:00:00Z","DeviceID":"a"}`,
	} {
		require.False(t, s.HandleMessage(ctx, []byte(raw)), raw)
	}
	require.Equal(t, int64(3), s.Discarded())
	require.Equal(t, 0, s.Registry().Len())
	require.Empty(t, s.Selected())
	require.Nil(t, s.View().Selected)
}

func TestSessionSelect(t *testing.T) {
	ctx := context.Background()
	r := &recorder{}
	s := dashboard.NewSession(r, nil)

	for _, d := range []string{"a", "b", "c"} {
		s.HandleMessage(ctx, reading(d, 1))
	}

	require.False(t, s.Select("missing"))
	require.Equal(t, 0, r.count())

	require.True(t, s.Select("b"))
	require.Equal(t, 1, r.count())
	require.Equal(t, "b", r.views[0].Selected.DeviceID)

	require.True(t, s.SelectNext(1))
	require.Equal(t, "c", s.Selected())
	require.True(t, s.SelectNext(1))
	require.Equal(t, "a", s.Selected())
	require.True(t, s.SelectNext(-1))
	require.Equal(t, "c", s.Selected())
}

func TestSessionRunRedrawsOncePerBatch(t *testing.T) {
	r := &recorder{}
	s := dashboard.NewSession(r, nil)

	messages := make(chan []byte, 8)
	messages <- reading("a", 1)
	messages <- reading("a", 2)
	messages <- []byte(`not json`)
	messages <- reading("b", 3)
	close(messages)

	require.NoError(t, s.Run(context.Background(), messages))
	require.Equal(t, 1, r.count())

	v := r.views[0]
	require.Equal(t, []string{"a", "b"}, v.Devices)
	require.Equal(t, int64(1), v.Discarded)
	require.Equal(t, "a", v.Selected.DeviceID)
	require.Len(t, v.Selected.Times, 2)
}

func TestSessionRunSkipsRedrawForMalformedBatch(t *testing.T) {
	r := &recorder{}
	s := dashboard.NewSession(r, nil)

	messages := make(chan []byte, 1)
	messages <- []byte(`{}`)
	close(messages)

	require.NoError(t, s.Run(context.Background(), messages))
	require.Equal(t, 0, r.count())
}

func TestSessionRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := dashboard.NewSession(nil, nil)
	require.ErrorIs(t, s.Run(ctx, make(chan []byte)), context.Canceled)
}
