// errors.go defines the registry's error taxonomy. Every rejected operation
// returns an *Error whose Kind can be matched with errors.Is against the
// sentinel values below; Reason is the human-readable message.
package registry

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected registry operation
type Kind string

const (
	KindAuthorization     Kind = "authorization"
	KindInvalidTransition Kind = "invalid_transition"
	KindNotFound          Kind = "not_found"
	KindInvalidArgument   Kind = "invalid_argument"
)

var (
	ErrAuthorization     = errors.New("authorization error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")

	// ErrReadOnly is returned by a store when a write is attempted inside View.
	ErrReadOnly = errors.New("write attempted in read-only transaction")
)

// Reasons surfaced to callers
const (
	ReasonNotOwner          = "Not owner"
	ReasonNotPrincipal      = "Not principal"
	ReasonInvalidStatus     = "Invalid status"
	ReasonModelNotFound     = "Model not found"
	ReasonIndexOutOfRange   = "Index out of range"
	ReasonInvalidSeverity   = "Invalid severity"
	ReasonMissingIdentifier = "Missing content identifier"
)

// Error is a rejected registry operation. It never wraps a storage failure;
// those are returned as plain wrapped errors.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Is lets errors.Is match an *Error against the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAuthorization:
		return e.Kind == KindAuthorization
	case ErrInvalidTransition:
		return e.Kind == KindInvalidTransition
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrInvalidArgument:
		return e.Kind == KindInvalidArgument
	}
	return false
}

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// AsError extracts the *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
