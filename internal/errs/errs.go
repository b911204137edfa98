// Package errs implements the closed error-kind taxonomy from spec.md §7.
//
// Errors are distinguished by Kind, not by Go type name, so that callers can
// switch on a stable enum regardless of which layer produced the error.
package errs

import "fmt"

// Kind is the closed set of error categories the engine can surface.
type Kind string

const (
	KindCancelled       Kind = "cancelled"
	KindSSHOpen         Kind = "ssh_open"
	KindSSHProcess      Kind = "ssh_process"
	KindSSHClosed       Kind = "ssh_closed"
	KindSSHSpawn        Kind = "ssh_spawn"
	KindRsyncProcess    Kind = "rsync_process"
	KindRsyncTerminated Kind = "rsync_terminated"
	KindRsyncSpawn      Kind = "rsync_spawn"
	KindRsyncParse      Kind = "rsync_parse"
	KindConfig          Kind = "config"
	KindGit             Kind = "git"
	KindDefs            Kind = "defs"
	KindIO              Kind = "io"
	KindProto           Kind = "proto"
	KindCustom          Kind = "custom"
)

// Error is the engine's single error type: a Kind, a message, an optional
// chained cause, and a stable diagnostic Code used for machine matching
// (log fields, test assertions) independent of the human-readable message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error

	// Stderr carries captured stderr for SSH/rsync process failures.
	Stderr string
	// Line carries the offending line/output for rsync parse failures.
	Line string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// WithStderr attaches captured stderr and returns e, for chaining at the
// call site that produced a failed SSH/rsync process.
func (e *Error) WithStderr(stderr string) *Error {
	e.Stderr = stderr
	return e
}

// WithLine attaches the offending line and returns e, for rsync parse
// failures.
func (e *Error) WithLine(line string) *Error {
	e.Line = line
	return e
}

// Is allows errors.Is(err, errs.Cancelled) style matching against a Kind
// sentinel constructed with New(kind, code, message); only Kind is compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// Cancelled is the sentinel used with errors.Is to detect cancellation
// regardless of message/cause.
var Cancelled = New(KindCancelled, "E_CANCELLED", "operation cancelled")

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
