package webhook

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSignature is returned when a secret is configured but the
	// request carries no signature header.
	ErrMissingSignature = errors.New("signature header is required")

	// ErrInvalidSignature is returned when the signature does not match the body.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrMalformedPayload is returned when the callback body is not a valid payload.
	ErrMalformedPayload = errors.New("malformed callback payload")

	// ErrInvalidTemplate is returned for webhook URL templates that can never
	// carry a correlation key.
	ErrInvalidTemplate = errors.New("invalid webhook URL template")

	// ErrSecretRequired is returned when signature verification is enabled
	// without a secret.
	ErrSecretRequired = errors.New("webhook secret is required")

	// ErrDuplicateOperation is returned when registering an operation id that is already live.
	ErrDuplicateOperation = errors.New("operation already registered")

	// ErrUnknownOperation is returned when awaiting an operation that is not registered.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrClarificationLimit is returned when an operation asks for input more
	// times than its clarification cap allows.
	ErrClarificationLimit = errors.New("clarification round limit reached")
)

// DeliveryError reports a callback rejected at the edge, before any dispatch.
type DeliveryError struct {
	// Reason is one of ErrMissingSignature, ErrInvalidSignature or ErrMalformedPayload.
	Reason error
	Detail string
}

func (e *DeliveryError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("webhook delivery rejected: %v: %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("webhook delivery rejected: %v", e.Reason)
}

// Unwrap returns the reason for errors.Is matching.
func (e *DeliveryError) Unwrap() error {
	return e.Reason
}

// IsSignatureFailure reports whether the rejection was an authentication failure.
func (e *DeliveryError) IsSignatureFailure() bool {
	return errors.Is(e.Reason, ErrMissingSignature) || errors.Is(e.Reason, ErrInvalidSignature)
}

// HandlerError wraps a failure raised by an application handler. It is
// logged and never propagated to the HTTP layer.
type HandlerError struct {
	TaskKind    string
	OperationID string
	Err         error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %s (operation %s) failed: %v", e.TaskKind, e.OperationID, e.Err)
}

// Unwrap returns the handler's error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
