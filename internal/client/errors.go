package client

import (
	"errors"
	"fmt"
)

// ErrSessionExpired is returned by any gated request answered with 401. By
// the time a caller sees it, navigation to the login screen has been issued.
var ErrSessionExpired = errors.New("session expired, please log in again")

// NetworkError is a request-level failure that is not a session expiry.
type NetworkError struct {
	Method string
	Target string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Target, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SubmissionError is a non-2xx answer to a write or load.
type SubmissionError struct {
	Status int
	Detail string
}

func (e *SubmissionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("request failed (%d)", e.Status)
	}
	return fmt.Sprintf("request failed (%d): %s", e.Status, e.Detail)
}
