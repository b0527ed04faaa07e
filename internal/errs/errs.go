// Package errs defines the typed failure returned by every fallible
// snapshot, repository and store operation.
package errs

import (
	"errors"
	"fmt"
	"log/slog"
)

// Kind classifies a failure. Callers branch on Kind (and Code), never on
// message text.
type Kind int

const (
	// Internal is an unclassified failure.
	Internal Kind = iota
	// Validation is bad input or a missing precondition.
	Validation
	// Connectivity means a remote store could not be reached or refused
	// the request. Authorization failures carry Code "auth".
	Connectivity
	// NotFound means the snapshot or record is absent.
	NotFound
	// Conflict means the target already exists (re-push, owned bucket).
	Conflict
	// PartialFailure means one of two artifacts or records succeeded.
	PartialFailure
	// CorruptionGuard marks a serialized value that was passed through
	// unchanged because it could not be round-tripped.
	CorruptionGuard
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Connectivity:
		return "connectivity"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case PartialFailure:
		return "partial_failure"
	case CorruptionGuard:
		return "corruption_guard"
	default:
		return "internal"
	}
}

// Sub-codes used across packages.
const (
	CodeAuth            = "auth"
	CodeTransport       = "transport"
	CodeBucketNotFound  = "bucket_not_found"
	CodeAlreadyExists   = "already_exists"
	CodeAlreadyPushed   = "already_pushed"
	CodeMissingArtifact = "missing_artifact"
	CodeNoRemote        = "no_remote"
	CodeNotInstalled    = "not_installed"
	CodeCancelled       = "cancelled"
)

// Error is the uniform failure value.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Op      string

	// Provider diagnostics for remote calls.
	RequestID    string
	ProviderType string
	ProviderCode string

	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// LogValue exposes the diagnostic fields as a slog group.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", e.Kind.String()),
		slog.String("message", e.Error()),
	}
	if e.Code != "" {
		attrs = append(attrs, slog.String("code", e.Code))
	}
	if e.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", e.RequestID))
	}
	if e.ProviderType != "" {
		attrs = append(attrs, slog.String("provider_type", e.ProviderType))
	}
	if e.ProviderCode != "" {
		attrs = append(attrs, slog.String("provider_code", e.ProviderCode))
	}
	return slog.GroupValue(attrs...)
}

// New returns an Error of the given kind.
func New(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind wrapping err.
func Wrap(kind Kind, code string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validationf(format string, args ...any) *Error {
	return New(Validation, "", format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, "", format, args...)
}

func Conflictf(code, format string, args ...any) *Error {
	return New(Conflict, code, format, args...)
}

// KindOf reports the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// CodeOf reports the Code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// WithOp sets Op on err if it is an *Error without one, and returns it.
func WithOp(op string, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		e.Op = op
	}
	return err
}
