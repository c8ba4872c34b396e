// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package iothub

import (
	"fmt"
	"strings"

	"github.com/Azure/iot-telemetry-relay/errors"
)

type (
	// ConnectionString holds the fields of an IoT Hub service credential
	// string of the form
	// HostName=<host>;SharedAccessKeyName=<name>;SharedAccessKey=<key>.
	ConnectionString struct {
		HostName            string
		SharedAccessKeyName string
		SharedAccessKey     string `log:"redact"`
	}

	// Endpoint is the Event Hubs-compatible endpoint an IoT Hub redirects
	// its built-in telemetry stream to.
	Endpoint struct {
		// URI is the namespace endpoint in the form sb://<host>/.
		URI                 string
		EntityPath          string
		SharedAccessKeyName string
		SharedAccessKey     string `log:"redact"`
	}
)

// ParseConnectionString parses an IoT Hub credential string. Keys are matched
// case-insensitively and all three fields are required.
func ParseConnectionString(connStr string) (*ConnectionString, error) {
	settings := parseSettings(connStr, ";")

	cs := &ConnectionString{
		HostName:            settings["hostname"],
		SharedAccessKeyName: settings["sharedaccesskeyname"],
		SharedAccessKey:     settings["sharedaccesskey"],
	}

	for _, field := range [...]struct{ name, value string }{
		{"HostName", cs.HostName},
		{"SharedAccessKeyName", cs.SharedAccessKeyName},
		{"SharedAccessKey", cs.SharedAccessKey},
	} {
		if field.value == "" {
			return nil, &errors.Error{
				Message:      "invalid IoT Hub connection string",
				Kind:         errors.InvalidConnectionString,
				PropertyName: field.name,
			}
		}
	}

	return cs, nil
}

// HubName returns the first dot-delimited label of the host name.
func (cs *ConnectionString) HubName() string {
	name, _, _ := strings.Cut(cs.HostName, ".")
	return name
}

// ConnectionString renders the endpoint as an Event Hubs connection string.
func (ep *Endpoint) ConnectionString() string {
	return fmt.Sprintf(
		"Endpoint=%s;EntityPath=%s;SharedAccessKeyName=%s;SharedAccessKey=%s",
		ep.URI,
		ep.EntityPath,
		ep.SharedAccessKeyName,
		ep.SharedAccessKey,
	)
}

// Host returns the namespace host name of the endpoint.
func (ep *Endpoint) Host() string {
	host := strings.TrimPrefix(ep.URI, "sb://")
	return strings.TrimSuffix(host, "/")
}

func parseSettings(input, delimiter string) map[string]string {
	settings := make(map[string]string)

	input = strings.TrimSuffix(strings.TrimSpace(input), delimiter)
	for _, param := range strings.Split(input, delimiter) {
		kv := strings.SplitN(param, "=", 2)
		if len(kv) == 2 {
			k := strings.ToLower(strings.TrimSpace(kv[0]))
			settings[k] = strings.TrimSpace(kv[1])
		}
	}

	return settings
}
