// Package coreerr classifies the error kinds the storage core can return, per
// the propagation policy: operators return errors, QueryTask surfaces the
// first one, background threads log-and-continue except flush (which logs
// and retries on the next tick). There is no panic-based control flow.
package coreerr

import "fmt"

// Fatal signals an invariant violation (mismatched column lengths,
// incompatible batch-result shapes, arena overflow). The database remains
// usable; the caller sees the error for the one failed operation.
type Fatal struct {
	Msg   string
	Cause error
}

func (e *Fatal) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("fatal: %s", e.Msg)
}

func (e *Fatal) Unwrap() error { return e.Cause }

func NewFatal(msg string) error { return &Fatal{Msg: msg} }

func WrapFatal(msg string, cause error) error { return &Fatal{Msg: msg, Cause: cause} }

// NotImplemented signals a type pair unsupported by a merge/partition
// primitive. Surfaced to the caller, never retried.
type NotImplemented struct {
	Msg string
}

func (e *NotImplemented) Error() string { return fmt.Sprintf("not implemented: %s", e.Msg) }

func NewNotImplemented(format string, args ...any) error {
	return &NotImplemented{Msg: fmt.Sprintf(format, args...)}
}

// TypeErr signals an operator input type mismatch detected at plan time.
type TypeErr struct {
	Msg string
}

func (e *TypeErr) Error() string { return fmt.Sprintf("type error: %s", e.Msg) }

func NewTypeErr(format string, args ...any) error {
	return &TypeErr{Msg: fmt.Sprintf(format, args...)}
}

// Io signals a storage failure. Ingestion must fail without the in-memory
// buffers reflecting the failed batch, and the WAL segment must not be
// acknowledged.
type Io struct {
	Msg   string
	Cause error
}

func (e *Io) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("io: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("io: %s", e.Msg)
}

func (e *Io) Unwrap() error { return e.Cause }

func WrapIo(msg string, cause error) error { return &Io{Msg: msg, Cause: cause} }

// Overflow signals a packed-string offset or length exceeding the 40/24-bit
// budget. Always returned as Fatal at push time, per spec.
type Overflow struct {
	Msg string
}

func (e *Overflow) Error() string { return fmt.Sprintf("fatal: overflow: %s", e.Msg) }

func NewOverflow(msg string) error {
	return &Overflow{Msg: msg}
}
