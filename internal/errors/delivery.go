package errors

import (
	"errors"
	"fmt"
)

// Delivery taxonomy. Recipient-scoped kinds are recorded on the recipient and never
// abort a job; ErrInitialization is the only job-scoped kind.
var (
	// ErrTemplateNotFound means no template exists for the requested or default language.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrRender means variable substitution or asset resolution failed.
	ErrRender = errors.New("render failed")
	// ErrCompose means the MIME message could not be assembled.
	ErrCompose = errors.New("compose failed")
	// ErrTransport means the provider rejected the send.
	ErrTransport = errors.New("transport error")
	// ErrPersistence means a status or counter update failed.
	ErrPersistence = errors.New("persistence error")
	// ErrInitialization means the transport or job inputs could not be prepared.
	ErrInitialization = errors.New("initialization error")
)

// DeliveryError tags an underlying error with a taxonomy kind and the failing operation.
type DeliveryError struct {
	Kind error
	Op   string
	Err  error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewDelivery wraps err with the given kind. A nil err still yields an error of that kind.
func NewDelivery(kind error, op string, err error) error {
	return &DeliveryError{Kind: kind, Op: op, Err: err}
}

// IsJobScoped reports whether err must abort the whole job.
func IsJobScoped(err error) bool {
	return errors.Is(err, ErrInitialization)
}
