// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/Azure/iot-telemetry-relay/internal/log"
	"github.com/Azure/iot-telemetry-relay/internal/wallclock"
	"github.com/Azure/iot-telemetry-relay/iothub"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

type (
	// KafkaConfig describes a Kafka consumer for the Event Hubs Kafka
	// surface.
	KafkaConfig struct {
		Brokers []string
		Topic   string
		GroupID string

		// ConnectionString is the Event Hubs connection string used as the
		// SASL PLAIN password.
		ConnectionString string `log:"redact"`

		// TLS configures the broker connection; nil uses the zero config.
		TLS *tls.Config `log:"-"`
	}

	// Kafka reads telemetry through a Kafka consumer group.
	Kafka struct {
		config  KafkaConfig
		options Options
		log     log.Logger
		open    func(KafkaConfig) messageReader

		mu     sync.Mutex
		reader messageReader
		cancel context.CancelFunc
		done   chan struct{}
	}

	messageReader interface {
		ReadMessage(ctx context.Context) (kafka.Message, error)
		Close() error
	}
)

// EventHubsKafkaPort is the port of the Event Hubs Kafka endpoint.
const EventHubsKafkaPort = 9093

const kafkaDialTimeout = 10 * time.Second

// KafkaConfigFromEndpoint builds a consumer configuration for the Kafka
// surface of a resolved endpoint. Without brokers the endpoint host is used.
func KafkaConfigFromEndpoint(
	ep *iothub.Endpoint,
	consumerGroup string,
	brokers ...string,
) KafkaConfig {
	if len(brokers) == 0 {
		brokers = []string{fmt.Sprintf("%s:%d", ep.Host(), EventHubsKafkaPort)}
	}
	return KafkaConfig{
		Brokers:          brokers,
		Topic:            ep.EntityPath,
		GroupID:          consumerGroup,
		ConnectionString: ep.ConnectionString(),
	}
}

// NewKafka creates an ingestor for the configuration. No connection is made
// until Start.
func NewKafka(config KafkaConfig, opt ...Option) *Kafka {
	k := &Kafka{config: config, open: openKafkaReader}
	k.options.Apply(opt)
	k.log = log.Wrap(k.options.Logger)
	return k
}

func openKafkaReader(config KafkaConfig) messageReader {
	tlsConfig := config.TLS
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		GroupID:     config.GroupID,
		StartOffset: kafka.LastOffset,
		Dialer: &kafka.Dialer{
			Timeout:   kafkaDialTimeout,
			DualStack: true,
			TLS:       tlsConfig,
			SASLMechanism: plain.Mechanism{
				Username: "$ConnectionString",
				Password: config.ConnectionString,
			},
		},
	})
}

// Start opens the consumer group reader and begins delivery. Delivery
// continues until Close.
func (k *Kafka) Start(
	ctx context.Context,
	handler Handler,
	onError ErrorHandler,
) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.reader != nil {
		return &errors.Error{
			Message: "ingestor already started",
			Kind:    errors.ArgumentInvalid,
		}
	}

	switch {
	case len(k.config.Brokers) == 0:
		return &errors.Error{
			Message:      "at least one Kafka broker is required",
			Kind:         errors.ArgumentInvalid,
			PropertyName: "Brokers",
		}
	case k.config.Topic == "":
		return &errors.Error{
			Message:      "Kafka topic is required",
			Kind:         errors.ArgumentInvalid,
			PropertyName: "Topic",
		}
	}

	k.reader = k.open(k.config)
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	k.cancel = cancel
	k.done = make(chan struct{})

	k.log.Struct(ctx, slog.LevelInfo, "reading Kafka telemetry", k.config)

	go k.receive(loopCtx, k.reader, handler, onError)
	return nil
}

func (k *Kafka) receive(
	ctx context.Context,
	reader messageReader,
	handler Handler,
	onError ErrorHandler,
) {
	defer close(k.done)

	for {
		msg, err := reader.ReadMessage(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if onError != nil {
				onError(ctx, &errors.Error{
					Message:     fmt.Sprintf("Kafka fetch failed: %v", err),
					Kind:        errors.SubscriptionError,
					NestedError: err,
				})
			}
			select {
			case <-wallclock.Instance.After(k.options.ErrorPause):
			case <-ctx.Done():
				return
			}
			continue
		}
		handler(ctx, eventFromKafka(&msg))
	}
}

// Close stops delivery and closes the reader, committing nothing further.
func (k *Kafka) Close(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.reader == nil {
		return nil
	}

	k.cancel()
	if err := k.reader.Close(); err != nil {
		k.log.Warn(ctx, err)
	}
	<-k.done
	k.log.Info(ctx, "Kafka reader closed")

	k.reader = nil
	return nil
}

func eventFromKafka(msg *kafka.Message) *Event {
	ev := &Event{
		EnqueuedTime: msg.Time,
		Body:         msg.Value,
		Partition:    strconv.Itoa(msg.Partition),
	}
	for _, h := range msg.Headers {
		if h.Key == DeviceIDProperty {
			ev.DeviceID = string(h.Value)
		}
	}
	return ev
}
