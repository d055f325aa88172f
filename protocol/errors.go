package protocol

import (
	"errors"
	"fmt"
)

// ErrUnexpectedEOF is returned when a byte source runs out of data before
// the size it reported at the start of the transfer is reached. This means
// the source shrank while the upload was in progress.
var ErrUnexpectedEOF = errors.New("byte source returned unexpected EOF")

// TransportError represents a communication failure: a connection-level
// error or an HTTP error status. Transport errors are the only errors worth
// retrying.
type TransportError struct {
	// StatusCode is the HTTP status code, or 0 if no response was received.
	StatusCode int
	// Err is the underlying connection error, if any.
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %s", e.Err)
	}
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolViolationError represents a well-formed HTTP response that breaks
// the tus protocol, such as a missing or malformed required header. Retrying
// cannot fix a malformed response, so these are never retried.
type ProtocolViolationError struct {
	// Header is the name of the offending header, if the violation concerns
	// one.
	Header string
	// Value is the observed header value, if any.
	Value string
	// Reason describes the violation.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *ProtocolViolationError) Error() string {
	msg := "protocol violation"
	if e.Header != "" {
		msg += fmt.Sprintf(" (%q header)", e.Header)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolViolationError) Unwrap() error {
	return e.Err
}
