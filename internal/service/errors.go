package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrPhoneRequired = fmt.Errorf("%w: phone number is required", ErrInvalidInput)
	ErrInvalidPhone  = fmt.Errorf("%w: phone number is not in international format", ErrInvalidInput)

	// ErrConnectionTimeout is the failure recorded when connect+send outlives
	// the dispatch timeout.
	ErrConnectionTimeout = errors.New("Connection timeout") //nolint:staticcheck
)

// ConnectError is returned when a session with the messaging platform could
// not be established.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("adapter connect failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// SendError is returned when the platform rejected the code request. The
// wrapped error carries the platform-specific message.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("adapter send code failed: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
