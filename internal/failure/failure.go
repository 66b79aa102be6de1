// Package failure defines the error taxonomy surfaced to the user as notifications.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a user-facing failure.
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindValidation     Kind = "validation"
	KindDevice         Kind = "device"
	KindPermission     Kind = "permission"
	KindNetwork        Kind = "network"
	KindServer         Kind = "server"
	KindServerReported Kind = "server_reported"
	KindEmptyResult    Kind = "empty_result"
	KindUnknown        Kind = "unknown"
)

// ErrStale marks a classification response superseded by a newer request.
// It is never shown to the user.
var ErrStale = errors.New("classification superseded by a newer request")

// Error is a classified failure. Status is the HTTP status for KindServer.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s error (status %d): %s: %v", e.Kind, e.Status, e.Message, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Title is the short headline used for the notification.
func (e *Error) Title() string {
	return Title(e.Kind)
}

// New builds a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Server builds a KindServer error for a non-2xx status.
func Server(status int) *Error {
	return &Error{Kind: KindServer, Status: status, Message: fmt.Sprintf("inference server responded with HTTP %d", status)}
}

// KindOf reports the kind of err, or KindUnknown when err carries no classification.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err was classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Title maps a kind to a notification headline.
func Title(kind Kind) string {
	switch kind {
	case KindConfiguration:
		return "Endpoint not configured"
	case KindValidation:
		return "Unsupported file"
	case KindPermission:
		return "Camera permission denied"
	case KindDevice:
		return "Camera unavailable"
	case KindNetwork:
		return "Network error"
	case KindServer:
		return "Server error"
	case KindServerReported:
		return "Classification failed"
	case KindEmptyResult:
		return "No predictions"
	default:
		return "Unexpected error"
	}
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
