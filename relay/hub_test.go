// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/Azure/iot-telemetry-relay/stream"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func metricValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		metric := f.GetMetric()[0]
		switch f.GetType() {
		case dto.MetricType_COUNTER:
			return metric.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			return metric.GetGauge().GetValue()
		}
	}
	require.FailNow(t, "metric not found", name)
	return 0
}

func drain(q *queue[[]byte]) [][]byte {
	var out [][]byte
	for {
		select {
		case msg, ok := <-q.recv():
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestBroadcastIsolatesClosedClient(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	metrics := NewMetrics()
	h := NewHub(
		WithMetrics{Metrics: metrics},
		WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
	)

	a, b, c := h.newClient(nil), h.newClient(nil), h.newClient(nil)
	for _, cl := range []*Client{a, b, c} {
		h.Register(ctx, cl)
	}
	require.Equal(t, 3, h.Len())
	require.Equal(t, float64(3), metricValue(t, metrics, "relay_connected_clients"))

	// The closed client is still registered; its send must fail in
	// isolation.
	b.out.close()

	h.Broadcast(ctx, []byte("m1"))
	h.Broadcast(ctx, []byte("m2"))

	require.Equal(t, [][]byte{[]byte("m1"), []byte("m2")}, drain(a.out))
	require.Equal(t, [][]byte{[]byte("m1"), []byte("m2")}, drain(c.out))
	require.Equal(t, float64(2),
		metricValue(t, metrics, "relay_broadcast_failures_total"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(
		bytes.SplitN(logs.Bytes(), []byte("\n"), 5)[3],
		&rec,
	))
	require.Equal(t, "broadcast send error", rec["kind"])
	require.Equal(t, b.ID, rec["client_id"])
}

func TestBroadcastFullQueue(t *testing.T) {
	ctx := context.Background()
	h := NewHub(WithQueueSize(2))

	slow, fast := h.newClient(nil), h.newClient(nil)
	h.Register(ctx, slow)
	h.Register(ctx, fast)

	for _, m := range []string{"1", "2"} {
		h.Broadcast(ctx, []byte(m))
	}
	require.Len(t, drain(fast.out), 2)

	// The slow client never drains; the third message is dropped for it
	// only and Broadcast returns immediately.
	done := make(chan struct{})
	go func() {
		h.Broadcast(ctx, []byte("3"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "broadcast blocked on a full queue")
	}

	require.Equal(t, [][]byte{[]byte("3")}, drain(fast.out))
	require.Equal(t, [][]byte{[]byte("1"), []byte("2")}, drain(slow.out))
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	metrics := NewMetrics()
	h := NewHub(WithMetrics{Metrics: metrics})

	a := h.newClient(nil)
	h.Register(ctx, a)
	h.Unregister(ctx, a)
	h.Unregister(ctx, a)

	require.Equal(t, 0, h.Len())
	require.Equal(t, float64(0), metricValue(t, metrics, "relay_connected_clients"))

	// Departed clients are not retried.
	h.Broadcast(ctx, []byte("m"))
	require.Empty(t, drain(a.out))
	require.Equal(t, float64(0),
		metricValue(t, metrics, "relay_broadcast_failures_total"))
}

func TestEventHandler(t *testing.T) {
	ctx := context.Background()
	metrics := NewMetrics()
	h := NewHub(WithMetrics{Metrics: metrics})

	a := h.newClient(nil)
	h.Register(ctx, a)

	h.EventHandler()(ctx, &stream.Event{
		DeviceID:     "dev-1",
		EnqueuedTime: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Body:         []byte(`{"temperature":21}`),
	})

	msgs := drain(a.out)
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{
		"IotMessage": {"temperature":21},
		"Timestamp": "2024-03-01T10:00:00Z",
		"DeviceID": "dev-1"
	}`, string(msgs[0]))
	require.Equal(t, float64(1),
		metricValue(t, metrics, "relay_events_ingested_total"))

	h.ErrorHandler()(ctx, context.Canceled)
	require.Equal(t, float64(1),
		metricValue(t, metrics, "relay_subscription_errors_total"))
}
