package core

import (
	"errors"
	"fmt"
)

// FailureKind identifies the precondition or capability that an operation
// violated. Kinds are stable identifiers, suitable for programmatic matching.
type FailureKind string

const (
	AdapterUnavailable FailureKind = "adapter_unavailable"
	ScanAlreadyActive  FailureKind = "scan_already_active"
	NotConnected       FailureKind = "not_connected"
	AlreadyConnecting  FailureKind = "already_connecting"
	AlreadyConnected   FailureKind = "already_connected"
	NotReadable        FailureKind = "not_readable"
	NotWritable        FailureKind = "not_writable"
	NotNotifiable      FailureKind = "not_notifiable"
)

// Error represents a state-precondition or capability failure. These are
// returned synchronously to the caller and are never fatal to the process.
type Error struct {
	Kind FailureKind
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare Error values by Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per failure kind.
var (
	ErrAdapterUnavailable = &Error{Kind: AdapterUnavailable}
	ErrScanAlreadyActive  = &Error{Kind: ScanAlreadyActive}
	ErrNotConnected       = &Error{Kind: NotConnected}
	ErrAlreadyConnecting  = &Error{Kind: AlreadyConnecting}
	ErrAlreadyConnected   = &Error{Kind: AlreadyConnected}
	ErrNotReadable        = &Error{Kind: NotReadable}
	ErrNotWritable        = &Error{Kind: NotWritable}
	ErrNotNotifiable      = &Error{Kind: NotNotifiable}
)

// StackError wraps an opaque failure reported by the underlying BLE stack.
// The original error is preserved in the chain for inspection and logging.
type StackError struct {
	Op  string
	Err error
}

func (e *StackError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("stack failure: %v", e.Err)
	}
	return fmt.Sprintf("stack failure during %s: %v", e.Op, e.Err)
}

func (e *StackError) Unwrap() error {
	return e.Err
}

// WrapStack wraps err as a StackError unless it already carries a structured
// kind, in which case it is returned unchanged. Nil passes through.
func WrapStack(op string, err error) error {
	if err == nil {
		return nil
	}
	var kindErr *Error
	if errors.As(err, &kindErr) {
		return err
	}
	var stackErr *StackError
	if errors.As(err, &stackErr) {
		return err
	}
	return &StackError{Op: op, Err: err}
}

// IsKind reports whether err carries the given failure kind anywhere in its
// chain.
func IsKind(err error, kind FailureKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
