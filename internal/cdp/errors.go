package cdp

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionError means the target could not be reached or the socket dropped.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("connection error: %v", e.Err)
	}
	return fmt.Sprintf("connection error (%s): %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError carries the remote error envelope verbatim.
type ProtocolError struct {
	Method  string
	Code    int
	Message string
	Data    string
}

func (e *ProtocolError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("%s: %s (%d): %s", e.Method, e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Method, e.Message, e.Code)
}

// TimeoutError means no matching response or window-ending activity arrived in time.
type TimeoutError struct {
	Method string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Method, e.After)
}

// EvaluationError is a script that ran in the target and threw.
type EvaluationError struct {
	Message string
	Stack   string
}

func (e *EvaluationError) Error() string {
	return e.Message
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is (or wraps) a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsConnection reports whether err is (or wraps) a ConnectionError.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// ErrSessionClosed is wrapped by ConnectionError once a session has been torn down.
var ErrSessionClosed = errors.New("session closed")
