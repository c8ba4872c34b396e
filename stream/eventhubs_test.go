// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package stream

import (
	"context"
	e "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs"
	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/stretchr/testify/require"
)

type (
	fakeConsumer struct {
		ids        []string
		idsErr     error
		partitions map[string]*fakePartition
		closed     atomic.Bool
	}

	fakePartition struct {
		results chan fakeResult
		closed  atomic.Bool
	}

	fakeResult struct {
		events []*azeventhubs.ReceivedEventData
		err    error
	}
)

func (c *fakeConsumer) PartitionIDs(context.Context) ([]string, error) {
	return c.ids, c.idsErr
}

func (c *fakeConsumer) NewPartition(id string) (partition, error) {
	return c.partitions[id], nil
}

func (c *fakeConsumer) Close(context.Context) error {
	c.closed.Store(true)
	return nil
}

func (p *fakePartition) ReceiveEvents(
	ctx context.Context,
	_ int,
	_ *azeventhubs.ReceiveEventsOptions,
) ([]*azeventhubs.ReceivedEventData, error) {
	select {
	case r := <-p.results:
		return r.events, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *fakePartition) Close(context.Context) error {
	p.closed.Store(true)
	return nil
}

func newFakePartition() *fakePartition {
	return &fakePartition{results: make(chan fakeResult, 8)}
}

func received(device, body string, at time.Time) *azeventhubs.ReceivedEventData {
	return &azeventhubs.ReceivedEventData{
		EventData:        azeventhubs.EventData{Body: []byte(body)},
		EnqueuedTime:     &at,
		SystemProperties: map[string]any{DeviceIDProperty: device},
	}
}

func collect(t *testing.T, events <-chan *Event, n int) []*Event {
	out := make([]*Event, 0, n)
	for range n {
		select {
		case ev := <-events:
			out = append(out, ev)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "timed out waiting for events")
		}
	}
	return out
}

func TestEventHubsDelivery(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	p0, p1 := newFakePartition(), newFakePartition()
	client := &fakeConsumer{
		ids:        []string{"0", "1"},
		partitions: map[string]*fakePartition{"0": p0, "1": p1},
	}

	eh := newEventHubs(
		func() (consumer, error) { return client, nil },
		WithReceiveWait(10*time.Millisecond),
		WithErrorPause(time.Millisecond),
	)

	events := make(chan *Event, 16)
	errs := make(chan error, 4)
	require.NoError(t, eh.Start(ctx,
		func(_ context.Context, ev *Event) { events <- ev },
		func(_ context.Context, err error) { errs <- err },
	))

	p0.results <- fakeResult{err: e.New("link detached")}
	p1.results <- fakeResult{events: []*azeventhubs.ReceivedEventData{
		received("dev-a", "1", at),
		received("dev-a", "2", at),
	}}

	select {
	case err := <-errs:
		require.True(t, errors.IsKind(err, errors.SubscriptionError))
		var re *errors.Error
		require.True(t, e.As(err, &re))
		require.Equal(t, "0", re.Partition)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for error")
	}

	got := collect(t, events, 2)
	require.Equal(t, []*Event{
		{DeviceID: "dev-a", EnqueuedTime: at, Body: []byte("1"), Partition: "1"},
		{DeviceID: "dev-a", EnqueuedTime: at, Body: []byte("2"), Partition: "1"},
	}, got)

	// The failed partition keeps receiving.
	p0.results <- fakeResult{events: []*azeventhubs.ReceivedEventData{
		received("dev-b", "3", at),
	}}
	got = collect(t, events, 1)
	require.Equal(t, "dev-b", got[0].DeviceID)
	require.Equal(t, "0", got[0].Partition)

	require.NoError(t, eh.Close(ctx))
	require.True(t, p0.closed.Load())
	require.True(t, p1.closed.Load())
	require.True(t, client.closed.Load())
}

func TestEventHubsStartFailure(t *testing.T) {
	ctx := context.Background()

	eh := newEventHubs(func() (consumer, error) {
		return nil, e.New("bad connection string")
	})
	err := eh.Start(ctx, func(context.Context, *Event) {}, nil)
	require.True(t, errors.IsKind(err, errors.SubscriptionError))

	client := &fakeConsumer{idsErr: e.New("unauthorized")}
	eh = newEventHubs(func() (consumer, error) { return client, nil })
	err = eh.Start(ctx, func(context.Context, *Event) {}, nil)
	require.True(t, errors.IsKind(err, errors.SubscriptionError))
	require.True(t, client.closed.Load())

	// Close after a failed start is a no-op.
	require.NoError(t, eh.Close(ctx))
}

func TestEventFromEventHubs(t *testing.T) {
	ev := eventFromEventHubs("2", &azeventhubs.ReceivedEventData{
		EventData: azeventhubs.EventData{Body: []byte(`{}`)},
	})
	require.Equal(t, &Event{Body: []byte(`{}`), Partition: "2"}, ev)
}
