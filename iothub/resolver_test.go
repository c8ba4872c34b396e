// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package iothub_test

import (
	"context"
	e "errors"
	"testing"
	"time"

	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/Azure/iot-telemetry-relay/internal/wallclock"
	"github.com/Azure/iot-telemetry-relay/iothub"
	"github.com/Azure/iot-telemetry-relay/sas"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(
	ctx context.Context,
	req *iothub.ProbeRequest,
) (*iothub.Redirect, error) {
	args := m.Called(ctx, req)
	redirect, _ := args.Get(0).(*iothub.Redirect)
	return redirect, args.Error(1)
}

const (
	testKey     = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	testConnStr = "HostName=myhub.azure-devices.net;" +
		"SharedAccessKeyName=service;SharedAccessKey=" + testKey
)

func TestResolve(t *testing.T) {
	defer wallclock.Freeze(time.Unix(1700000000, 0))()
	ctx := context.Background()

	token, err := sas.Sign(
		"myhub.azure-devices.net/messages/events",
		testKey,
		"service",
		5*time.Minute,
	)
	require.NoError(t, err)

	prober := &mockProber{}
	prober.On("Probe", mock.Anything, &iothub.ProbeRequest{
		HostName: "myhub.azure-devices.net",
		Username: "service@sas.root.myhub",
		Password: token.String(),
		Address:  "amqps://myhub.azure-devices.net/messages/events/$management",
	}).Return(&iothub.Redirect{
		Hostname: "h",
		Address:  "amqps://h:5671/my-entity/$management",
	}, nil).Once()

	ep, err := iothub.NewResolver(iothub.WithProber{Prober: prober}).
		Resolve(ctx, testConnStr)
	require.NoError(t, err)
	require.Equal(t, &iothub.Endpoint{
		URI:                 "sb://h/",
		EntityPath:          "my-entity",
		SharedAccessKeyName: "service",
		SharedAccessKey:     testKey,
	}, ep)
	require.Equal(t,
		"Endpoint=sb://h/;EntityPath=my-entity;"+
			"SharedAccessKeyName=service;SharedAccessKey="+testKey,
		ep.ConnectionString(),
	)

	prober.AssertExpectations(t)
}

func TestResolveCaseInsensitiveAddress(t *testing.T) {
	prober := &mockProber{}
	prober.On("Probe", mock.Anything, mock.Anything).Return(&iothub.Redirect{
		Hostname: "h",
		Address:  "amqps://h:5671/Entity/$MANAGEMENT",
	}, nil)

	ep, err := iothub.NewResolver(iothub.WithProber{Prober: prober}).
		Resolve(context.Background(), testConnStr)
	require.NoError(t, err)
	require.Equal(t, "Entity", ep.EntityPath)
}

func TestResolveInvalidConnectionString(t *testing.T) {
	prober := &mockProber{}
	r := iothub.NewResolver(iothub.WithProber{Prober: prober})

	for _, connStr := range []string{
		"HostName=myhub.azure-devices.net;SharedAccessKeyName=service",
		"HostName=.azure-devices.net;SharedAccessKeyName=service;" +
			"SharedAccessKey=" + testKey,
	} {
		_, err := r.Resolve(context.Background(), connStr)
		require.True(t, errors.IsKind(err, errors.InvalidConnectionString))
	}

	prober.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
}

func TestResolveRedirectFailures(t *testing.T) {
	for name, tc := range map[string]struct {
		redirect *iothub.Redirect
		kind     errors.Kind
	}{
		"missing host": {
			redirect: &iothub.Redirect{
				Address: "amqps://h:5671/my-entity/$management",
			},
			kind: errors.RedirectMissingHost,
		},
		"unparsable address": {
			redirect: &iothub.Redirect{
				Hostname: "h",
				Address:  "amqps://h/garbage",
			},
			kind: errors.RedirectUnparsable,
		},
	} {
		t.Run(name, func(t *testing.T) {
			prober := &mockProber{}
			prober.On("Probe", mock.Anything, mock.Anything).
				Return(tc.redirect, nil)

			_, err := iothub.NewResolver(iothub.WithProber{Prober: prober}).
				Resolve(context.Background(), testConnStr)
			require.True(t, errors.IsKind(err, tc.kind))
		})
	}
}

func TestResolveUnparsableMessage(t *testing.T) {
	prober := &mockProber{}
	prober.On("Probe", mock.Anything, mock.Anything).Return(&iothub.Redirect{
		Hostname: "h",
		Address:  "amqps://h/garbage",
		Info:     map[string]any{"hostname": "h", "address": "amqps://h/garbage"},
	}, nil)

	_, err := iothub.NewResolver(iothub.WithProber{Prober: prober}).
		Resolve(context.Background(), testConnStr)
	require.ErrorContains(t, err, "amqps://h/garbage")
	require.ErrorContains(t, err, "hostname:h")
}

func TestResolveProbeFailure(t *testing.T) {
	cause := &errors.Error{
		Message:     "IoT Hub did not redirect the receiver",
		Kind:        errors.ResolutionFailed,
		NestedError: e.New("amqp: unauthorized"),
	}

	prober := &mockProber{}
	prober.On("Probe", mock.Anything, mock.Anything).Return(nil, cause)

	_, err := iothub.NewResolver(iothub.WithProber{Prober: prober}).
		Resolve(context.Background(), testConnStr)
	require.True(t, errors.IsKind(err, errors.ResolutionFailed))
	require.ErrorIs(t, err, cause)
}
