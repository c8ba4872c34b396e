// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"context"
	e "errors"
	"log/slog"
	"time"

	"github.com/Azure/iot-telemetry-relay/internal/log"
	"github.com/Azure/iot-telemetry-relay/internal/retry"
	"github.com/Azure/iot-telemetry-relay/internal/wallclock"
	"github.com/gorilla/websocket"
)

// Client receives relay messages over a WebSocket, reconnecting with backoff
// whenever the connection drops.
type Client struct {
	URL string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Retry governs reconnection; it defaults to unlimited exponential
	// backoff. A handshake rejected by the server is not retried. Dropped
	// connections count against the same policy until a connection proves
	// healthy.
	Retry retry.Policy

	// MinUptime is how long a connection that delivers no frames must stay
	// up to reset the backoff. Defaults to DefaultMinUptime.
	MinUptime time.Duration

	Logger *slog.Logger
}

// DefaultMinUptime is the default Client.MinUptime.
const DefaultMinUptime = 10 * time.Second

// Run delivers every received frame to out until the context ends.
func (c *Client) Run(ctx context.Context, out chan<- []byte) error {
	l := log.Wrap(c.Logger)

	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	policy := c.Retry
	if policy == nil {
		policy = &retry.ExponentialBackoff{}
	}
	minUptime := c.MinUptime
	if minUptime <= 0 {
		minUptime = DefaultMinUptime
	}

	var drops uint64
	for {
		conn, err := retry.Do(ctx, policy, c.Logger, "relay connect",
			func(ctx context.Context) (*websocket.Conn, error) {
				conn, _, err := dialer.DialContext(ctx, c.URL, nil)
				if e.Is(err, websocket.ErrBadHandshake) {
					return nil, retry.Permanent(err)
				}
				return conn, err
			},
		)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return ctx.Err()
		}
		if err != nil {
			return err
		}

		l.Info(ctx, "connected to relay", slog.String("url", c.URL))
		start := wallclock.Instance.Now()
		frames, err := c.read(ctx, conn, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if frames > 0 || wallclock.Instance.Now().Sub(start) >= minUptime {
			drops = 0
		}
		drops++

		wait, ok := policy.Next(drops)
		if !ok {
			return err
		}
		l.Info(ctx, "relay connection lost",
			slog.String("error", err.Error()),
			slog.Duration("wait", wait),
		)
		select {
		case <-wallclock.Instance.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// read forwards frames until the connection fails and returns how many it
// delivered.
func (c *Client) read(
	ctx context.Context,
	conn *websocket.Conn,
	out chan<- []byte,
) (int, error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	var frames int
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return frames, err
		}
		select {
		case out <- msg:
			frames++
		case <-ctx.Done():
			return frames, ctx.Err()
		}
	}
}
