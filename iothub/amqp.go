// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package iothub

import (
	"context"
	e "errors"
	"fmt"
	"log/slog"

	"github.com/Azure/go-amqp"
	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/Azure/iot-telemetry-relay/internal/log"
)

// AMQPProber performs discovery by attaching a receiver to the hub's
// management address over AMQP and capturing the link redirect.
type AMQPProber struct {
	Logger *slog.Logger
}

const (
	amqpsPort = 5671

	redirectCondition amqp.ErrCond = "amqp:link:redirect"
)

// Probe dials the hub once, without reconnecting. The connection is closed
// before Probe returns.
func (p *AMQPProber) Probe(
	ctx context.Context,
	req *ProbeRequest,
) (*Redirect, error) {
	l := log.Wrap(p.Logger)

	conn, err := amqp.Dial(
		ctx,
		fmt.Sprintf("amqps://%s:%d", req.HostName, amqpsPort),
		&amqp.ConnOptions{
			HostName: req.HostName,
			SASLType: amqp.SASLTypePlain(req.Username, req.Password),
		},
	)
	if err != nil {
		return nil, resolutionFailed("could not connect to IoT Hub", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			l.Debug(ctx, "error closing discovery connection",
				slog.String("error", err.Error()),
			)
		}
	}()

	session, err := conn.NewSession(ctx, nil)
	if err != nil {
		return nil, resolutionFailed("could not open AMQP session", err)
	}

	recv, err := session.NewReceiver(ctx, req.Address, nil)
	if err == nil {
		// Some brokers accept the attach and detach with the redirect
		// immediately after.
		_, err = recv.Receive(ctx, nil)
	}

	if redirect, ok := redirectFromError(err); ok {
		return redirect, nil
	}
	if err == nil {
		err = e.New("receiver attached without a redirect")
	}
	return nil, resolutionFailed("IoT Hub did not redirect the receiver", err)
}

// redirectFromError extracts the redirect carried by a link redirect error.
func redirectFromError(err error) (*Redirect, bool) {
	var remote *amqp.Error

	var linkErr *amqp.LinkError
	switch {
	case err == nil:
		return nil, false
	case e.As(err, &linkErr) && linkErr.RemoteErr != nil:
		remote = linkErr.RemoteErr
	case !e.As(err, &remote):
		return nil, false
	}

	if remote.Condition != redirectCondition {
		return nil, false
	}

	redirect := &Redirect{Info: remote.Info}
	redirect.Hostname, _ = remote.Info["hostname"].(string)
	redirect.Address, _ = remote.Info["address"].(string)
	return redirect, true
}

func resolutionFailed(msg string, err error) error {
	return &errors.Error{
		Message:     fmt.Sprintf("%s: %v", msg, err),
		Kind:        errors.ResolutionFailed,
		NestedError: err,
	}
}
