// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	e "errors"
	"time"
)

type (
	// Policy schedules attempts. Next returns the wait before attempt+1, or
	// false once no further attempt should be made.
	Policy interface {
		Next(attempt uint64) (time.Duration, bool)
	}

	permanentError struct{ error }
)

// Permanent marks an error that another attempt cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err}
}

// IsPermanent reports whether the error chain contains an error marked with
// Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return e.As(err, &p)
}

func (p *permanentError) Unwrap() error {
	return p.error
}
