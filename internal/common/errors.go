package common

import (
	"errors"
	"fmt"
)

// Kind classifies an application error into the taxonomy every layer
// agrees on. Handlers and the CLI switch on Kind, never on message text.
type Kind string

const (
	// KindCapture covers media-device failures: permission denied,
	// device busy, unsupported platform, no device present.
	KindCapture Kind = "capture"
	// KindDecode covers malformed or unreadable image input.
	KindDecode Kind = "decode"
	// KindRemote covers non-success HTTP status or malformed responses
	// from the tagging/translation endpoints.
	KindRemote Kind = "remote"
	// KindEmptyResult marks a tagging call that succeeded but produced
	// zero usable tags. A distinct terminal state, not a failure.
	KindEmptyResult Kind = "empty_result"
	// KindPartialTranslation marks a run where one or more languages
	// came back incomplete. Non-fatal by definition.
	KindPartialTranslation Kind = "partial_translation"
)

// AppError represents application-specific errors
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error constructors
func NewAppError(kind Kind, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

func NewCaptureError(message string, cause error) *AppError {
	return NewAppError(KindCapture, message, cause)
}

func NewDecodeError(message string, cause error) *AppError {
	return NewAppError(KindDecode, message, cause)
}

func NewEmptyResultError(message string) *AppError {
	return NewAppError(KindEmptyResult, message, nil)
}

// RemoteError is an AppError carrying the HTTP status of a failed
// endpoint call. Status is zero when the request never produced a
// response (transport failure).
type RemoteError struct {
	AppError
	Endpoint string
	Status   int
}

func NewRemoteError(endpoint string, status int, message string, cause error) *RemoteError {
	return &RemoteError{
		AppError: AppError{Kind: KindRemote, Message: message, Cause: cause},
		Endpoint: endpoint,
		Status:   status,
	}
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s: http %d: %s", e.Kind, e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Endpoint, e.Message)
}

// IsKind reports whether err (or anything it wraps) is an AppError of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
