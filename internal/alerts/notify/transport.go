package notify

import (
	"context"
	"errors"
	"fmt"
)

// Ack confirms that the gateway accepted a message.
type Ack struct {
	MessageID string
}

// Transport delivers a rendered body to a recipient.
type Transport interface {
	Send(ctx context.Context, recipient, body string) (Ack, error)
}

// ErrorKind separates retry-eligible failures from permanent ones.
type ErrorKind string

const (
	Transient ErrorKind = "transient"
	Permanent ErrorKind = "permanent"
)

// TransportError is the typed failure returned by every Transport.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TransientError wraps err as retry-eligible.
func TransientError(err error) error {
	return &TransportError{Kind: Transient, Err: err}
}

// PermanentError wraps err as not retry-eligible.
func PermanentError(err error) error {
	return &TransportError{Kind: Permanent, Err: err}
}

// IsTransient reports whether err may succeed on retry. Untyped errors and
// context deadline expiries are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind == Transient
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, recipient, body string) (Ack, error)

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, recipient, body string) (Ack, error) {
	return f(ctx, recipient, body)
}
