package repo

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the store façade
type Kind int

const (
	// KindNetwork covers every transport or store-side failure
	KindNetwork Kind = iota + 1
	KindNotFound
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "store request failed"
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation failed"
	default:
		return "unknown"
	}
}

// Error is the only error type returned by the repositories
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

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrNotFound is wrapped by every KindNotFound error
var ErrNotFound = errors.New("jewellery piece not found")

// FieldErrors maps a form field name to a human readable problem
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	return fmt.Sprintf("%d invalid field(s)", len(f))
}

// KindOf reports the kind of err. Errors that did not come from this package
// are treated as store failures.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetwork
}

// Fields extracts per-field validation problems from err, if any
func Fields(err error) FieldErrors {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}

func storeError(op string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}
