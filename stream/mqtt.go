// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/Azure/iot-telemetry-relay/internal/log"
	"github.com/Azure/iot-telemetry-relay/internal/wallclock"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

// MQTT receives device telemetry published to an MQTT broker.
type MQTT struct {
	conn    ConnectionProvider
	topic   string
	options Options
	log     log.Logger

	mu     sync.Mutex
	client *paho.Client
	remove func()
}

// DefaultMQTTTopic is the IoT Hub device-to-cloud topic filter.
const DefaultMQTTTopic = "devices/+/messages/events/#"

const mqttKeepAlive = 30

// NewMQTT creates an ingestor subscribed to the topic filter. An empty topic
// uses DefaultMQTTTopic.
func NewMQTT(
	conn ConnectionProvider,
	topic string,
	opt ...Option,
) *MQTT {
	if topic == "" {
		topic = DefaultMQTTTopic
	}

	m := &MQTT{conn: conn, topic: topic}
	m.options.Apply(opt)
	if m.options.ClientID == "" {
		m.options.ClientID = "relay-" + uuid.NewString()
	}
	m.log = log.Wrap(m.options.Logger)
	return m
}

// Start connects to the broker and subscribes to the topic filter with QoS 1.
// Delivery continues until Close.
func (m *MQTT) Start(
	ctx context.Context,
	handler Handler,
	onError ErrorHandler,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return &errors.Error{
			Message: "ingestor already started",
			Kind:    errors.ArgumentInvalid,
		}
	}

	conn, err := m.conn(ctx)
	if err != nil {
		return err
	}

	deliverCtx := context.WithoutCancel(ctx)
	report := func(err error) {
		if onError != nil {
			onError(deliverCtx, &errors.Error{
				Message:     fmt.Sprintf("MQTT client error: %v", err),
				Kind:        errors.SubscriptionError,
				NestedError: err,
			})
		}
	}

	client := paho.NewClient(paho.ClientConfig{
		Conn:          conn,
		ClientID:      m.options.ClientID,
		OnClientError: report,
		OnServerDisconnect: func(d *paho.Disconnect) {
			report(fmt.Errorf(
				"server disconnected with reason code %d",
				d.ReasonCode,
			))
		},
	})
	remove := client.AddOnPublishReceived(
		func(pr paho.PublishReceived) (bool, error) {
			handler(deliverCtx, eventFromPublish(pr.Packet))
			return true, nil
		},
	)

	connect := &paho.Connect{
		ClientID:   m.options.ClientID,
		CleanStart: true,
		KeepAlive:  mqttKeepAlive,
	}
	if m.options.Username != "" {
		connect.Username = m.options.Username
		connect.UsernameFlag = true
	}
	if m.options.Password != "" {
		connect.Password = []byte(m.options.Password)
		connect.PasswordFlag = true
	}

	if _, err := client.Connect(ctx, connect); err != nil {
		remove()
		_ = conn.Close()
		return connectionError("could not connect to MQTT broker", err)
	}

	suback, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: m.topic, QoS: 1}},
	})
	if err == nil && len(suback.Reasons) > 0 && suback.Reasons[0] >= 0x80 {
		err = fmt.Errorf("subscription rejected with reason code %d",
			suback.Reasons[0])
	}
	if err != nil {
		remove()
		_ = client.Disconnect(&paho.Disconnect{})
		return connectionError("could not subscribe to "+m.topic, err)
	}

	m.log.Info(ctx, "subscribed to MQTT telemetry",
		slog.String("topic", m.topic),
		slog.String("client_id", m.options.ClientID),
	)

	m.client = client
	m.remove = remove
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}

	m.remove()
	if err := m.client.Disconnect(&paho.Disconnect{}); err != nil {
		m.log.Warn(ctx, err)
	}
	m.log.Info(ctx, "disconnected from MQTT broker")

	m.client = nil
	m.remove = nil
	return nil
}

func eventFromPublish(pub *paho.Publish) *Event {
	ev := &Event{
		EnqueuedTime: wallclock.Instance.Now(),
		Body:         pub.Payload,
	}

	if pub.Properties != nil {
		ev.DeviceID = pub.Properties.User.Get(DeviceIDProperty)
	}
	if ev.DeviceID == "" {
		levels := strings.Split(pub.Topic, "/")
		if len(levels) > 1 && levels[0] == "devices" {
			ev.DeviceID = levels[1]
		}
	}
	return ev
}
