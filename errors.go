package reqgate

import (
	"errors"
	"fmt"
)

// ErrCanceled matches every cancellation produced by a Gate:
//
//	if errors.Is(err, reqgate.ErrCanceled) { return } // nothing to show
var ErrCanceled = errors.New("reqgate: request canceled")

// CancelReason tells why a request was cancelled.
type CancelReason int

const (
	// ReasonDuplicate: the request was rejected because the same key was
	// already in flight.
	ReasonDuplicate CancelReason = iota + 1
	// ReasonSuperseded: a newer request with the same key took over.
	ReasonSuperseded
	// ReasonScopeCleared: ClearPendingRequests was called for the scope.
	ReasonScopeCleared
	// ReasonContext: the caller's own context ended.
	ReasonContext
	// ReasonClosed: the gate was closed.
	ReasonClosed
)

func (r CancelReason) String() string {
	switch r {
	case ReasonDuplicate:
		return "duplicate"
	case ReasonSuperseded:
		return "superseded"
	case ReasonScopeCleared:
		return "scope cleared"
	case ReasonContext:
		return "context done"
	case ReasonClosed:
		return "gate closed"
	}
	return "none"
}

// CanceledError is returned for every request the gate pre-empted. It is the
// only error the gate synthesizes; transport errors pass through untouched.
type CanceledError struct {
	Key    Key
	Scope  Scope
	Reason CancelReason
	// Err is the caller's context error for ReasonContext, nil otherwise.
	Err error
}

// Name mirrors the marker UI callers check before surfacing an error.
func (e *CanceledError) Name() string { return "CanceledError" }

func (e *CanceledError) Error() string {
	return fmt.Sprintf("reqgate: %s canceled: %s", e.Key, e.Reason)
}

// Is reports ErrCanceled as a match.
func (e *CanceledError) Is(target error) bool { return target == ErrCanceled }

func (e *CanceledError) Unwrap() error { return e.Err }

// IsCanceled reports whether err is a cancellation produced by a Gate.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
