package sync

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Error taxonomy of the sync core. Transport and subscription failures are
// handled inside the core and only surface as a status flag; write
// rejections stay attached to the entity that caused them.

// TransportError wraps a network or auth failure on a store request. It is
// retryable; callers must treat it as "state unknown", never as "empty".
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err with the failed operation name.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: errors.WithStack(err)}
}

// ErrSubscriptionDropped signals a lost change subscription. It is never
// user visible; the lifecycle manager resubscribes and forces a snapshot.
var ErrSubscriptionDropped = stderrors.New("subscription dropped")

// ErrClosed is returned when an operation is attempted on a closed
// controller or subscription.
var ErrClosed = stderrors.New("subscription closed")

// WriteRejected is a server-side rejection of an optimistic write. The
// failed entity stays visible so the user can retry or discard it.
type WriteRejected struct {
	Reason string
	Err    error
}

func (e *WriteRejected) Error() string {
	return fmt.Sprintf("write rejected: %s", e.Reason)
}

func (e *WriteRejected) Unwrap() error { return e.Err }

// ValidationError is a client-side validation failure caught before any
// remote call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsTransport(err error) bool {
	var te *TransportError
	return stderrors.As(err, &te)
}

func IsWriteRejected(err error) bool {
	var wr *WriteRejected
	return stderrors.As(err, &wr)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return stderrors.As(err, &ve)
}
