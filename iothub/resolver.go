// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package iothub discovers the Event Hubs-compatible endpoint behind an IoT
// Hub's built-in telemetry stream.
package iothub

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/Azure/iot-telemetry-relay/internal/log"
	"github.com/Azure/iot-telemetry-relay/sas"
)

type (
	// Prober performs the single discovery handshake against the hub and
	// returns the redirect it answered with.
	Prober interface {
		Probe(ctx context.Context, req *ProbeRequest) (*Redirect, error)
	}

	// ProbeRequest describes the discovery handshake.
	ProbeRequest struct {
		// HostName is the IoT Hub host, dialed on the secure AMQP port.
		HostName string

		// Username and Password are the SASL PLAIN credentials.
		Username string
		Password string `log:"redact"`

		// Address is the source address of the receiving link.
		Address string
	}

	// Redirect is the information carried by a link redirect error.
	Redirect struct {
		Hostname string
		Address  string

		// Info is the raw info map of the redirect error.
		Info map[string]any
	}

	// Resolver converts IoT Hub credentials into an Event Hubs endpoint.
	Resolver struct {
		prober Prober
		log    log.Logger
	}
)

// TokenExpiry is the lifetime of the credential used for discovery.
const TokenExpiry = 5 * time.Minute

var entityPattern = regexp.MustCompile(`(?i)5671/(.+)/\$management`)

// NewResolver creates an endpoint resolver. Without WithProber it discovers
// the endpoint over AMQP.
func NewResolver(opt ...ResolverOption) *Resolver {
	var opts ResolverOptions
	opts.Apply(opt)

	r := &Resolver{prober: opts.Prober, log: log.Wrap(opts.Logger)}
	if r.prober == nil {
		r.prober = &AMQPProber{Logger: opts.Logger}
	}
	return r
}

// Resolve performs discovery once for the connection string. The result is
// not cached and nothing is retried.
func (r *Resolver) Resolve(
	ctx context.Context,
	connStr string,
) (*Endpoint, error) {
	cs, err := ParseConnectionString(connStr)
	if err != nil {
		return nil, err
	}

	hub := cs.HubName()
	if hub == "" {
		return nil, &errors.Error{
			Message:       "unable to extract the IoT Hub name from the host name",
			Kind:          errors.InvalidConnectionString,
			PropertyName:  "HostName",
			PropertyValue: cs.HostName,
		}
	}

	token, err := sas.Sign(
		cs.HostName+"/messages/events",
		cs.SharedAccessKey,
		cs.SharedAccessKeyName,
		TokenExpiry,
	)
	if err != nil {
		return nil, &errors.Error{
			Message:      "invalid IoT Hub connection string",
			Kind:         errors.InvalidConnectionString,
			NestedError:  err,
			PropertyName: "SharedAccessKey",
		}
	}

	req := &ProbeRequest{
		HostName: cs.HostName,
		Username: fmt.Sprintf("%s@sas.root.%s", cs.SharedAccessKeyName, hub),
		Password: token.String(),
		Address: fmt.Sprintf(
			"amqps://%s/messages/events/$management",
			cs.HostName,
		),
	}
	r.log.Debug(ctx, "probing IoT Hub for stream endpoint",
		slog.String("host", req.HostName),
		slog.String("username", req.Username),
	)

	redirect, err := r.prober.Probe(ctx, req)
	if err != nil {
		return nil, err
	}

	ep, err := endpointFromRedirect(cs, redirect)
	if err != nil {
		return nil, err
	}

	r.log.Info(ctx, "resolved stream endpoint",
		slog.String("endpoint", ep.URI),
		slog.String("entity_path", ep.EntityPath),
	)
	return ep, nil
}

func endpointFromRedirect(
	cs *ConnectionString,
	redirect *Redirect,
) (*Endpoint, error) {
	if redirect == nil || redirect.Hostname == "" {
		return nil, &errors.Error{
			Message: "redirect did not carry a host name",
			Kind:    errors.RedirectMissingHost,
		}
	}

	m := entityPattern.FindStringSubmatch(redirect.Address)
	if m == nil {
		return nil, &errors.Error{
			Message: fmt.Sprintf(
				"cannot parse the Event Hub name from the address %q in redirect info %v",
				redirect.Address,
				redirect.Info,
			),
			Kind:          errors.RedirectUnparsable,
			PropertyValue: redirect.Address,
		}
	}

	return &Endpoint{
		URI:                 fmt.Sprintf("sb://%s/", redirect.Hostname),
		EntityPath:          m[1],
		SharedAccessKeyName: cs.SharedAccessKeyName,
		SharedAccessKey:     cs.SharedAccessKey,
	}, nil
}
