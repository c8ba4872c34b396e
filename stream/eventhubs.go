// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package stream

import (
	"context"
	e "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs"
	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/Azure/iot-telemetry-relay/internal/log"
	"github.com/Azure/iot-telemetry-relay/internal/wallclock"
	"github.com/Azure/iot-telemetry-relay/iothub"
)

type (
	// EventHubs reads every partition of an Event Hubs-compatible endpoint
	// from the latest position.
	EventHubs struct {
		connect func() (consumer, error)
		options Options
		log     log.Logger

		mu         sync.Mutex
		client     consumer
		cancel     context.CancelFunc
		loops      sync.WaitGroup
		partitions []partition
	}

	consumer interface {
		PartitionIDs(ctx context.Context) ([]string, error)
		NewPartition(id string) (partition, error)
		Close(ctx context.Context) error
	}

	partition interface {
		ReceiveEvents(
			ctx context.Context,
			count int,
			options *azeventhubs.ReceiveEventsOptions,
		) ([]*azeventhubs.ReceivedEventData, error)
		Close(ctx context.Context) error
	}

	consumerClient struct {
		*azeventhubs.ConsumerClient
	}
)

// NewEventHubs creates an ingestor for the endpoint using the given consumer
// group. No connection is made until Start.
func NewEventHubs(
	endpoint *iothub.Endpoint,
	consumerGroup string,
	opt ...Option,
) *EventHubs {
	connect := func() (consumer, error) {
		client, err := azeventhubs.NewConsumerClientFromConnectionString(
			endpoint.ConnectionString(),
			"",
			consumerGroup,
			nil,
		)
		if err != nil {
			return nil, err
		}
		return consumerClient{client}, nil
	}
	return newEventHubs(connect, opt...)
}

func newEventHubs(connect func() (consumer, error), opt ...Option) *EventHubs {
	eh := &EventHubs{connect: connect}
	eh.options.Apply(opt)
	eh.log = log.Wrap(eh.options.Logger)
	return eh
}

// Start opens the consumer and one receive loop per partition. The context
// bounds startup only; delivery continues until Close.
func (eh *EventHubs) Start(
	ctx context.Context,
	handler Handler,
	onError ErrorHandler,
) error {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	if eh.client != nil {
		return &errors.Error{
			Message: "ingestor already started",
			Kind:    errors.ArgumentInvalid,
		}
	}

	client, err := eh.connect()
	if err != nil {
		return startFailed("could not create Event Hubs consumer", err)
	}

	ids, err := client.PartitionIDs(ctx)
	if err != nil {
		eh.closeClient(ctx, client)
		return startFailed("could not list Event Hubs partitions", err)
	}
	eh.log.Info(ctx, "consumer created",
		slog.Any("partition_ids", ids),
	)

	parts := make([]partition, 0, len(ids))
	for _, id := range ids {
		p, err := client.NewPartition(id)
		if err != nil {
			for _, p := range parts {
				eh.closePartition(ctx, p)
			}
			eh.closeClient(ctx, client)
			return startFailed(
				fmt.Sprintf("could not open partition %s", id),
				err,
			)
		}
		parts = append(parts, p)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	eh.client = client
	eh.cancel = cancel
	eh.partitions = parts

	for i, p := range parts {
		eh.loops.Add(1)
		go func() {
			defer eh.loops.Done()
			eh.receive(loopCtx, ids[i], p, handler, onError)
		}()
	}
	return nil
}

func (eh *EventHubs) receive(
	ctx context.Context,
	id string,
	p partition,
	handler Handler,
	onError ErrorHandler,
) {
	for ctx.Err() == nil {
		rctx, cancel := context.WithTimeout(ctx, eh.options.ReceiveWait)
		events, err := p.ReceiveEvents(rctx, eh.options.BatchSize, nil)
		cancel()

		for _, ev := range events {
			handler(ctx, eventFromEventHubs(id, ev))
		}

		if err == nil || e.Is(err, context.DeadlineExceeded) ||
			ctx.Err() != nil {
			continue
		}

		if onError != nil {
			onError(ctx, &errors.Error{
				Message:     fmt.Sprintf("partition %s: %v", id, err),
				Kind:        errors.SubscriptionError,
				NestedError: err,
				Partition:   id,
			})
		}

		select {
		case <-wallclock.Instance.After(eh.options.ErrorPause):
		case <-ctx.Done():
		}
	}
}

// Close stops every receive loop and closes the consumer. Close errors are
// logged and not returned.
func (eh *EventHubs) Close(ctx context.Context) error {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	if eh.client == nil {
		return nil
	}

	eh.cancel()
	eh.loops.Wait()

	for _, p := range eh.partitions {
		eh.closePartition(ctx, p)
	}
	eh.closeClient(ctx, eh.client)
	eh.log.Info(ctx, "consumer closed")

	eh.client = nil
	eh.partitions = nil
	return nil
}

func (eh *EventHubs) closePartition(ctx context.Context, p partition) {
	if err := p.Close(ctx); err != nil {
		eh.log.Warn(ctx, err)
	}
}

func (eh *EventHubs) closeClient(ctx context.Context, c consumer) {
	if err := c.Close(ctx); err != nil {
		eh.log.Warn(ctx, err)
	}
}

func eventFromEventHubs(
	id string,
	ev *azeventhubs.ReceivedEventData,
) *Event {
	out := &Event{
		Body:      ev.Body,
		Partition: id,
	}
	if ev.EnqueuedTime != nil {
		out.EnqueuedTime = *ev.EnqueuedTime
	}
	if id, ok := ev.SystemProperties[DeviceIDProperty].(string); ok {
		out.DeviceID = id
	}
	return out
}

func (c consumerClient) PartitionIDs(ctx context.Context) ([]string, error) {
	props, err := c.GetEventHubProperties(ctx, nil)
	if err != nil {
		return nil, err
	}
	return props.PartitionIDs, nil
}

func (c consumerClient) NewPartition(id string) (partition, error) {
	latest := true
	return c.NewPartitionClient(id, &azeventhubs.PartitionClientOptions{
		StartPosition: azeventhubs.StartPosition{Latest: &latest},
	})
}

func startFailed(msg string, err error) error {
	return &errors.Error{
		Message:     fmt.Sprintf("%s: %v", msg, err),
		Kind:        errors.SubscriptionError,
		NestedError: err,
	}
}
