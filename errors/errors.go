// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import "errors"

type (
	// Error represents a structured relay error.
	Error struct {
		Message string
		Kind    Kind

		NestedError error

		PropertyName  string
		PropertyValue any

		// Partition is set on subscription errors raised by a single stream
		// partition.
		Partition string

		// ClientID is set on broadcast errors for a single dashboard client.
		ClientID string
	}

	// Kind defines the type of error being thrown.
	Kind int
)

// The following are the defined error kinds.
const (
	UnknownError Kind = iota
	ConfigurationInvalid
	ArgumentInvalid
	InvalidConnectionString
	RedirectMissingHost
	RedirectUnparsable
	ResolutionFailed
	SubscriptionError
	BroadcastSendError
	MalformedTelemetry
)

var kindNames = map[Kind]string{
	UnknownError:            "unknown error",
	ConfigurationInvalid:    "configuration invalid",
	ArgumentInvalid:         "argument invalid",
	InvalidConnectionString: "invalid connection string",
	RedirectMissingHost:     "redirect missing host",
	RedirectUnparsable:      "redirect unparsable",
	ResolutionFailed:        "resolution failed",
	SubscriptionError:       "subscription error",
	BroadcastSendError:      "broadcast send error",
	MalformedTelemetry:      "malformed telemetry",
}

// String returns the name of the error kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[UnknownError]
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the nested error, if any.
func (e *Error) Unwrap() error {
	return e.NestedError
}

// IsKind reports whether any error in err's chain is a relay error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.NestedError
	}
	return false
}
