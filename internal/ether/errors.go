// Package ether defines the stable error kinds shared by every layer of
// the ET daemon, from EventList down to the wire protocol. A Kind is both
// a Go error and a stable integer wire code, so the protocol server never
// has to re-map error strings by hand.
package ether

import "fmt"

// Kind is one of the stable error kinds returned by core operations.
type Kind int

const (
	OK Kind = iota
	Error
	ErrorTooMany
	ErrorExists
	ErrorWakeUp
	ErrorTimeout
	ErrorBusy
	ErrorEmpty
	ErrorDead
	ErrorBadArgs
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Error:
		return "error"
	case ErrorTooMany:
		return "too_many"
	case ErrorExists:
		return "exists"
	case ErrorWakeUp:
		return "wake_up"
	case ErrorTimeout:
		return "timeout"
	case ErrorBusy:
		return "busy"
	case ErrorEmpty:
		return "empty"
	case ErrorDead:
		return "dead"
	case ErrorBadArgs:
		return "bad_args"
	default:
		return "unknown"
	}
}

// WireCode returns the stable integer the protocol server puts on the
// wire: negative for errors, 0 for OK, matching spec.md §7 ("negative =
// error; non-negative = ok").
func (k Kind) WireCode() int32 {
	if k == OK {
		return 0
	}
	return -int32(k)
}

// KindErr is an error carrying a Kind plus an optional message.
type KindErr struct {
	Kind Kind
	Msg  string
}

func (e *KindErr) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New builds a KindErr for the given kind with a formatted message.
func New(k Kind, format string, args ...interface{}) *KindErr {
	return &KindErr{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err carries the given Kind. Unrecognized errors
// (including nil) never match a non-OK kind.
func Is(err error, k Kind) bool {
	if err == nil {
		return k == OK
	}
	ke, ok := err.(*KindErr)
	return ok && ke.Kind == k
}

var (
	ErrTooMany = &KindErr{Kind: ErrorTooMany, Msg: "capacity exceeded"}
	ErrExists  = &KindErr{Kind: ErrorExists, Msg: "already exists with different configuration"}
	ErrWakeUp  = &KindErr{Kind: ErrorWakeUp, Msg: "woken before data arrived"}
	ErrTimeout = &KindErr{Kind: ErrorTimeout, Msg: "timed out waiting for data"}
	ErrBusy    = &KindErr{Kind: ErrorBusy, Msg: "resource busy"}
	ErrEmpty   = &KindErr{Kind: ErrorEmpty, Msg: "no events available"}
	ErrDead    = &KindErr{Kind: ErrorDead, Msg: "handle no longer usable"}
	ErrBadArgs = &KindErr{Kind: ErrorBadArgs, Msg: "invalid arguments"}
)
