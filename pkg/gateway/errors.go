package gateway

import (
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/pkg/errors"
)

// Error kinds. Every error returned by the gateway matches exactly one of
// these with errors.Is.
var (
	ErrAuthentication   = errors.New("authentication failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrValidation       = errors.New("validation failed")
	ErrPersistence      = errors.New("persistence failed")
	ErrDelivery         = errors.New("delivery failed")
)

// ErrChannelClosed is a delivery error for a channel that has already closed.
var ErrChannelClosed = errors.Wrap(ErrDelivery, "channel closed")

// Error carries a kind, the message safe to show the client and an optional
// underlying cause that is only logged.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func reject(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func fail(kind error, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// ClientMessage returns the text sent to the client for err.
func ClientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "Not authenticated"
	case errors.Is(err, ErrAuthentication):
		return "Authentication failed"
	case errors.Is(err, ErrValidation):
		return "Invalid request"
	case errors.Is(err, ErrPersistence):
		return "Failed to send message"
	}
	return "Internal error"
}

// ToEvent maps err to the outbound event reported to the client.
func ToEvent(err error) model.Outbound {
	if errors.Is(err, ErrAuthentication) {
		return model.AuthenticationError{Message: ClientMessage(err)}
	}
	return model.ErrorMessage{Message: ClientMessage(err)}
}
