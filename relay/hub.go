// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package relay fans telemetry out to connected WebSocket dashboards.
package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/Azure/iot-telemetry-relay/internal/log"
)

// Hub tracks connected dashboard clients and broadcasts messages to them.
type Hub struct {
	options Options
	log     log.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub(opt ...Option) *Hub {
	h := &Hub{clients: make(map[string]*Client)}
	h.options.Apply(opt)
	h.log = log.Wrap(h.options.Logger)
	return h
}

// Register adds the client to the broadcast set.
func (h *Hub) Register(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.options.Metrics.setConnected(n)
	h.log.Info(ctx, "client connected",
		slog.String("client_id", c.ID),
		slog.Int("clients", n),
	)
}

// Unregister removes the client from the broadcast set and closes its
// outbound queue. Unregistering a departed client is a no-op.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	cur, ok := h.clients[c.ID]
	if ok && cur == c {
		delete(h.clients, c.ID)
	}
	n := len(h.clients)
	h.mu.Unlock()

	c.out.close()
	if !ok || cur != c {
		return
	}

	h.options.Metrics.setConnected(n)
	h.log.Info(ctx, "client disconnected",
		slog.String("client_id", c.ID),
		slog.Int("clients", n),
	)
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues the message for every registered client. A client whose
// queue is full or closed misses the message; Broadcast never blocks on a
// client.
func (h *Hub) Broadcast(ctx context.Context, message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	h.log.Debug(ctx, "broadcasting message",
		slog.Int("clients", len(clients)),
		slog.Int("bytes", len(message)),
	)

	for _, c := range clients {
		if c.out.send(message) {
			continue
		}
		h.options.Metrics.broadcastFailure()
		h.log.Warn(ctx, &errors.Error{
			Message:  "could not queue message for client",
			Kind:     errors.BroadcastSendError,
			ClientID: c.ID,
		})
	}
}
