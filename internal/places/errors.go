package places

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that must decide between rejecting and retrying.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors that carry no classification.
	KindUnknown Kind = iota
	// BadRequest marks invalid caller input.
	BadRequest
	// Transient marks a temporary index or backend failure. Retrying may succeed.
	Transient
	// Permanent marks a backend failure that will not succeed on retry.
	Permanent
	// Execution marks a query that could not be executed or whose results could not be read.
	Execution
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad request"
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Execution:
		return "execution failure"
	default:
		return "unknown"
	}
}

// Error is a classified failure from the place search engine or an index backend.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError returns an *Error of the given kind.
func NewError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Context deadline
// errors are Transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindUnknown {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return KindUnknown
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return KindOf(err) == Transient
}

// classify wraps err with op, keeping an existing classification or using fallback.
func classify(op string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	if kind == KindUnknown {
		kind = fallback
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
