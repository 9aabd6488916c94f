package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// Sentinel failure kinds. Every fallible operation returns an error that
// matches exactly one of these under errors.Is.
var (
	ErrIllegalLength        = errors.New("illegal length")
	ErrLengthExceedsMaximum = errors.New("length exceeds maximum")
	ErrOutOfMemory          = errors.New("out of memory")
	ErrIndexOutOfBounds     = errors.New("index out of bounds")
	ErrTypeMismatch         = errors.New("type mismatch")
	ErrDescriptorCreation   = errors.New("descriptor creation failed")
)

// ArrayError describes a failed array operation.
type ArrayError struct {
	Op     string // "allocate", "multi-allocate", "copy", "create-descriptor"
	Type   string // external name of the descriptor involved, if any
	Detail string
	Err    error // one of the sentinel errors above
}

func (e *ArrayError) Error() string {
	msg := e.Op
	if e.Type != "" {
		msg += " " + e.Type
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ArrayError) Unwrap() error {
	return e.Err
}

func arrayError(op string, d TypeDescriptor, err error, format string, args ...any) *ArrayError {
	e := &ArrayError{Op: op, Err: err}
	if d != nil {
		e.Type = d.ExternalName()
	}
	if format != "" {
		e.Detail = fmt.Sprintf(format, args...)
	}
	return e
}
