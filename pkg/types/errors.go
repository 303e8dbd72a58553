package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the search pipeline and the protocol layer.
type ErrorKind string

const (
	KindProtocolViolation   ErrorKind = "ProtocolViolation"
	KindInvalidArgument     ErrorKind = "InvalidArgument"
	KindIOFailure           ErrorKind = "IOFailure"
	KindParseFailure        ErrorKind = "ParseFailure"
	KindTimeout             ErrorKind = "Timeout"
	KindCancelled           ErrorKind = "Cancelled"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindInternal            ErrorKind = "Internal"
)

// Error is a classified error carrying the failing operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and the operation that produced it.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first classified error in err's chain.
// Bare context errors map to Timeout and Cancelled.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// ContextError converts a finished context into a Timeout or Cancelled error.
func ContextError(ctx context.Context, op string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, op, err)
	}
	return NewError(KindCancelled, op, err)
}
