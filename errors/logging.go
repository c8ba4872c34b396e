// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import "log/slog"

// Attrs returns additional error attributes for slog.
func (e *Error) Attrs() []slog.Attr {
	a := make([]slog.Attr, 0, 6)

	a = append(a, slog.String("kind", e.Kind.String()))

	if e.NestedError != nil {
		a = append(a, slog.Any("nested_error", e.NestedError))
	}

	switch e.Kind {
	case ConfigurationInvalid, ArgumentInvalid, InvalidConnectionString:
		a = append(a, slog.String("property_name", e.PropertyName))
	case RedirectUnparsable:
		a = append(a, slog.Any("address", e.PropertyValue))
	case SubscriptionError:
		if e.Partition != "" {
			a = append(a, slog.String("partition", e.Partition))
		}
	case BroadcastSendError:
		a = append(a, slog.String("client_id", e.ClientID))
	}

	return a
}
