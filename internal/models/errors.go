package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the categorical classification used by the error policy:
// each kind maps to one handling rule (retry, rewrite, refuse, recover).
type ErrorKind string

// Error kinds.
const (
	ErrKindConfig      ErrorKind = "configuration"
	ErrKindInput       ErrorKind = "input"
	ErrKindUnreachable ErrorKind = "unreachable-daemon"
	ErrKindExtraction  ErrorKind = "extraction"
	ErrKindModelAccess ErrorKind = "model-access"
	ErrKindRateLimit   ErrorKind = "rate-limit"
	ErrKindEmptyOutput ErrorKind = "empty-summary"
	ErrKindTooLarge    ErrorKind = "input-too-large"
	ErrKindAttachment  ErrorKind = "attachment-unsupported"
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindSlides      ErrorKind = "slides"
)

// KindError attaches a categorical kind to an error.
type KindError struct {
	Kind ErrorKind
	Err  error
}

// NewKindError wraps err with the given kind.
func NewKindError(kind ErrorKind, err error) *KindError {
	return &KindError{Kind: kind, Err: err}
}

// Errorf builds a KindError from a format string.
func Errorf(kind ErrorKind, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *KindError) Error() string {
	return e.Err.Error()
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" when it carries none.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Sentinel errors shared across packages.
var (
	// ErrEmptySummary is returned when the model produced only whitespace
	// twice in a row.
	ErrEmptySummary = Errorf(ErrKindEmptyOutput, "empty summary")

	// ErrInputTooLarge is returned before any LLM call when the estimated
	// input token count exceeds the model cap. Never partially truncate.
	ErrInputTooLarge = Errorf(ErrKindTooLarge, "input token count exceeds model cap")
)
