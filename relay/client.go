// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/Azure/iot-telemetry-relay/internal/wallclock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is a single connected dashboard.
type Client struct {
	ID string

	conn *websocket.Conn
	out  *queue[[]byte]
	once sync.Once
}

// Dashboards never send meaningful frames; anything larger is a protocol
// violation.
const maxInboundFrame = 4096

func (h *Hub) newClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		conn: conn,
		out:  newQueue[[]byte](h.options.QueueSize),
	}
}

// Serve registers the connection with the hub and relays broadcasts to it
// until either side closes. The connection is closed when Serve returns.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn) {
	c := h.newClient(conn)
	h.Register(ctx, c)

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.write(ctx, c)
	}()

	h.read(ctx, c)
	h.Unregister(ctx, c)
	<-written
	c.close()
}

// read discards inbound frames until the connection fails or closes.
func (h *Hub) read(ctx context.Context, c *Client) {
	timeout := 2 * h.options.PingInterval

	c.conn.SetReadLimit(maxInboundFrame)
	_ = c.conn.SetReadDeadline(wallclock.Instance.Now().Add(timeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(wallclock.Instance.Now().Add(timeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				h.log.Debug(ctx, "client read failed",
					slog.String("client_id", c.ID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// write drains the client's queue in order and sends keepalive pings. A write
// failure closes the connection, which ends the read loop.
func (h *Hub) write(ctx context.Context, c *Client) {
	ping := wallclock.Instance.NewTicker(h.options.PingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-c.out.recv():
			if !ok {
				_ = c.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					h.deadline(),
				)
				return
			}
			_ = c.conn.SetWriteDeadline(h.deadline())
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.writeFailed(ctx, c, err)
				return
			}

		case <-ping.C():
			err := c.conn.WriteControl(websocket.PingMessage, nil, h.deadline())
			if err != nil {
				h.writeFailed(ctx, c, err)
				return
			}
		}
	}
}

func (h *Hub) writeFailed(ctx context.Context, c *Client, err error) {
	h.options.Metrics.broadcastFailure()
	h.log.Warn(ctx, &errors.Error{
		Message:     "write to client failed: " + err.Error(),
		Kind:        errors.BroadcastSendError,
		NestedError: err,
		ClientID:    c.ID,
	})
	c.close()
}

func (h *Hub) deadline() time.Time {
	return wallclock.Instance.Now().Add(h.options.WriteTimeout)
}

func (c *Client) close() {
	c.once.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
