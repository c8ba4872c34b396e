// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/eclipse/paho.golang/packets"
)

// ConnectionProvider is a function that returns a net.Conn connected to an
// MQTT server that is ready to read to and write from. Note that the returned
// net.Conn must be thread-safe (i.e., concurrent Write calls must not
// interleave).
type ConnectionProvider func(context.Context) (net.Conn, error)

// TCPConnection is a ConnectionProvider that connects to an MQTT server over
// TCP.
func TCPConnection(hostname string, port int) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", address(hostname, port))
		if err != nil {
			return nil, connectionError("error opening TCP connection", err)
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// TLSConnection is a ConnectionProvider that connects to an MQTT server with
// TLS over TCP. A nil config uses the zero configuration.
func TLSConnection(
	hostname string,
	port int,
	config *tls.Config,
) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		d := tls.Dialer{Config: config}
		conn, err := d.DialContext(ctx, "tcp", address(hostname, port))
		if err != nil {
			return nil, connectionError("error opening TLS connection", err)
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

func address(hostname string, port int) string {
	return net.JoinHostPort(hostname, fmt.Sprint(port))
}

func connectionError(msg string, err error) error {
	return &errors.Error{
		Message:     fmt.Sprintf("%s: %v", msg, err),
		Kind:        errors.SubscriptionError,
		NestedError: err,
	}
}
