// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package sas produces shared access signature credentials for IoT Hub and
// Event Hubs resources.
package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/Azure/iot-telemetry-relay/internal/wallclock"
)

// Credential is a signed, time-limited authorization for a single resource.
type Credential struct {
	// ResourceURI is the URI-encoded resource the credential authorizes.
	ResourceURI string

	// Expiry is the expiry instant in whole seconds since the Unix epoch.
	Expiry int64

	// Signature is the URI-encoded base64 HMAC-SHA256 signature.
	Signature string

	PolicyName string
}

// Sign creates a credential for the resource, signed with the base64-encoded
// key and valid for expiresIn from the current wall clock time.
func Sign(
	resourceURI string,
	signingKeyBase64 string,
	policyName string,
	expiresIn time.Duration,
) (*Credential, error) {
	if expiresIn <= 0 {
		return nil, &errors.Error{
			Message:       "credential expiry must be positive",
			Kind:          errors.ArgumentInvalid,
			PropertyName:  "expiresIn",
			PropertyValue: expiresIn,
		}
	}

	key, err := base64.StdEncoding.DecodeString(signingKeyBase64)
	if err != nil {
		return nil, &errors.Error{
			Message:      "signing key is not valid base64",
			Kind:         errors.ArgumentInvalid,
			NestedError:  err,
			PropertyName: "signingKey",
		}
	}

	now := wallclock.Instance.Now()
	// Whole seconds plus the rounded-up sum of the sub-second parts.
	frac := time.Duration(now.Nanosecond()) + expiresIn%time.Second
	expiry := now.Unix() + int64(expiresIn/time.Second) +
		int64((frac+time.Second-1)/time.Second)

	encoded := EncodeURIComponent(resourceURI)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(encoded + "\n" + strconv.FormatInt(expiry, 10)))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return &Credential{
		ResourceURI: encoded,
		Expiry:      expiry,
		Signature:   EncodeURIComponent(sig),
		PolicyName:  policyName,
	}, nil
}

// String renders the credential as a SharedAccessSignature authorization.
func (c *Credential) String() string {
	return fmt.Sprintf(
		"SharedAccessSignature sr=%s&sig=%s&se=%d&skn=%s",
		c.ResourceURI,
		c.Signature,
		c.Expiry,
		c.PolicyName,
	)
}

// EncodeURIComponent percent-encodes every byte of s outside the unreserved
// set A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xf])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
