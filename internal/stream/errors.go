package stream

import "fmt"

// TransportError is a failure of the push connection itself: an open that
// did not succeed or a read that broke mid-stream. Both are recovered the
// same way, by reconnecting.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError is an error event pushed by the server. It is reported
// to the consumer and never closes the connection.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	return "server error: " + e.Message
}
