package stomp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported by the engine.
type ErrorKind int

const (
	InvalidStateError ErrorKind = iota

	MissingHeaderError

	ProtocolViolationError

	HeartbeatTimeoutError

	TransportError

	UnsupportedVersionError

	UnknownError
)

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrInvalidState       = &Error{Kind: InvalidStateError}
	ErrMissingHeader      = &Error{Kind: MissingHeaderError}
	ErrProtocolViolation  = &Error{Kind: ProtocolViolationError}
	ErrHeartbeatTimeout   = &Error{Kind: HeartbeatTimeoutError}
	ErrTransport          = &Error{Kind: TransportError}
	ErrUnsupportedVersion = &Error{Kind: UnsupportedVersionError}
)

func (kind ErrorKind) String() string {
	switch kind {
	case InvalidStateError:
		return "InvalidStateError"
	case MissingHeaderError:
		return "MissingHeaderError"
	case ProtocolViolationError:
		return "ProtocolViolationError"
	case HeartbeatTimeoutError:
		return "HeartbeatTimeoutError"
	case TransportError:
		return "TransportError"
	case UnsupportedVersionError:
		return "UnsupportedVersionError"
	default:
		return "UnknownError"
	}
}

// Error is the error type returned by every session operation and by Run.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (err *Error) Error() string {
	switch {
	case err.Message != "" && err.Err != nil:
		return fmt.Sprintf("%s: %s: %v", err.Kind, err.Message, err.Err)
	case err.Message != "":
		return fmt.Sprintf("%s: %s", err.Kind, err.Message)
	case err.Err != nil:
		return fmt.Sprintf("%s: %v", err.Kind, err.Err)
	}
	return err.Kind.String()
}

func (err *Error) Unwrap() error { return err.Err }

// Cause lets github.com/pkg/errors.Cause reach the platform error.
func (err *Error) Cause() error { return err.Err }

// Is reports kind equality so the package sentinels match wrapped errors.
func (err *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == err.Kind && other.Message == "" && other.Err == nil
}

// NewError builds an *Error. The optional message may be a string, an error
// (kept as the wrapped cause) or any value formatted with %v.
func NewError(kind ErrorKind, message ...interface{}) error {
	result := &Error{Kind: kind}
	if len(message) == 0 {
		return result
	}

	switch value := message[0].(type) {
	case string:
		result.Message = value
	case error:
		result.Err = value
	default:
		result.Message = fmt.Sprint(value)
	}
	if len(message) > 1 {
		if cause, ok := message[1].(error); ok {
			result.Err = cause
		}
	}
	return result
}

// KindOf extracts the kind of err, or UnknownError for foreign errors.
func KindOf(err error) ErrorKind {
	var stompErr *Error
	if errors.As(err, &stompErr) {
		return stompErr.Kind
	}
	return UnknownError
}
