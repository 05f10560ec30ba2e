package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the discovery and control paths wraps
// exactly one of these.
var (
	ErrTransport         = errors.New("transport error")
	ErrProtocol          = errors.New("protocol error")
	ErrLookup            = errors.New("lookup error")
	ErrResolution        = errors.New("link-layer resolution failed")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrCycleFailed       = errors.New("discovery cycle failed")
)

// Error describes a failed operation against a target (an IP, a MAC, a device type).
type Error struct {
	Kind   error
	Op     string
	Target string
	Err    error
}

// NewError builds an Error. err may be nil when the kind says it all.
func NewError(kind error, op, target string, err error) *Error {
	return &Error{Kind: kind, Op: op, Target: target, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Target != "" {
		msg += " " + e.Target
	}
	msg = fmt.Sprintf("%s: %v", msg, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// KindOf returns the sentinel kind carried by err, or nil if there is none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrDeviceNotFound, ErrDeviceUnavailable, ErrLookup,
		ErrResolution, ErrProtocol, ErrTransport, ErrCycleFailed,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
