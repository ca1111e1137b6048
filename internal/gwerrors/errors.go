// Package gwerrors defines the gateway's error taxonomy (spec §7): client
// validation mistakes, routing failures, and upstream failures, each
// mapped to a distinct HTTP status by the server package.
package gwerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap these with fmt.Errorf("%w: ...", Sentinel) so
// callers can still errors.Is against the category.
var (
	// ErrValidation marks a client mistake in the request payload (422).
	ErrValidation = errors.New("validation error")

	// ErrRouting marks an unresolvable served-model or stage target (400).
	ErrRouting = errors.New("routing error")
)

// UpstreamResponseFormatError reports that an upstream response did not
// conform to the OpenAI chat-completions shape.
type UpstreamResponseFormatError struct {
	Reason        string
	Model         string
	BaseURL       string
	MessageCount  int
	StatusCode    int
	BodyPreview   string
}

func (e *UpstreamResponseFormatError) Error() string {
	return fmt.Sprintf(
		"upstream response format error: reason=%q model=%q base_url=%q message_count=%d status_code=%d body=%q",
		e.Reason, e.Model, e.BaseURL, e.MessageCount, e.StatusCode, e.BodyPreview,
	)
}

// TransportError reports a network-level failure (connection, TLS,
// timeout) talking to an upstream, or an upstream HTTP status of 400 or
// above, whatever its body.
type TransportError struct {
	Model   string
	BaseURL string
	Cause   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream transport error: model=%q base_url=%q: %v", e.Model, e.BaseURL, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Validation wraps msg as a client-facing validation error.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Validationf wraps a formatted message as a client-facing validation error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Routing wraps msg as a routing-resolution error.
func Routing(msg string) error {
	return fmt.Errorf("%w: %s", ErrRouting, msg)
}

// Routingf wraps a formatted message as a routing-resolution error.
func Routingf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRouting, fmt.Sprintf(format, args...))
}

// IsValidation reports whether err is (or wraps) a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRouting reports whether err is (or wraps) a routing error.
func IsRouting(err error) bool {
	return errors.Is(err, ErrRouting)
}

// AsUpstreamFormatError extracts an *UpstreamResponseFormatError from err, if any.
func AsUpstreamFormatError(err error) (*UpstreamResponseFormatError, bool) {
	var target *UpstreamResponseFormatError

	if errors.As(err, &target) {
		return target, true
	}

	return nil, false
}

// AsTransportError extracts a *TransportError from err, if any.
func AsTransportError(err error) (*TransportError, bool) {
	var target *TransportError

	if errors.As(err, &target) {
		return target, true
	}

	return nil, false
}
