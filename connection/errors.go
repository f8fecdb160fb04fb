// Error taxonomy for the connection handler. A single ConnError struct
// tags every kind so errors.Is/errors.As callers can branch on Kind
// without a growing list of distinct sentinel values.
package connection

import (
	"fmt"
)

// Kind classifies a ConnError, not a type name a caller is expected to
// switch on directly - use errors.Is against the Err* sentinels below
// instead.
type Kind int

const (
	KindTransportIO Kind = iota
	KindProtocolViolation
	KindSecurityViolation
	KindServerStatus
	KindCancelled
	KindDisconnected
	KindInsufficientCredits
	KindBusy
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindTransportIO:
		return "transport-io"
	case KindProtocolViolation:
		return "protocol-violation"
	case KindSecurityViolation:
		return "security-violation"
	case KindServerStatus:
		return "server-status"
	case KindCancelled:
		return "cancelled"
	case KindDisconnected:
		return "disconnected"
	case KindInsufficientCredits:
		return "insufficient-credits"
	case KindBusy:
		return "busy"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// ConnError is the error type every Connection operation returns on
// failure. Status is only meaningful when Kind is KindServerStatus.
type ConnError struct {
	Kind   Kind
	Status uint32
	Err    error
}

func (e *ConnError) Error() string {
	if e.Kind == KindServerStatus {
		return fmt.Sprintf("connection: server returned NTSTATUS 0x%08x", e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("connection: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("connection: %s", e.Kind)
}

func (e *ConnError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDisconnected) match any ConnError of the
// same Kind regardless of its wrapped cause or status code.
func (e *ConnError) Is(target error) bool {
	t, ok := target.(*ConnError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, err error) *ConnError {
	return &ConnError{Kind: kind, Err: err}
}

func newStatusErr(status uint32) *ConnError {
	return &ConnError{Kind: KindServerStatus, Status: status}
}

// isFatal reports whether kind drains the pending table and fails the
// connection outright.
func isFatal(kind Kind) bool {
	switch kind {
	case KindTransportIO, KindProtocolViolation, KindSecurityViolation:
		return true
	default:
		return false
	}
}

// Sentinel ConnErrors for errors.Is comparisons against a bare Kind,
// e.g. errors.Is(err, ErrDisconnected).
var (
	ErrDisconnected        = &ConnError{Kind: KindDisconnected}
	ErrCancelled           = &ConnError{Kind: KindCancelled}
	ErrInsufficientCredits = &ConnError{Kind: KindInsufficientCredits}
	ErrBusy                = &ConnError{Kind: KindBusy}
	ErrUnsupported         = &ConnError{Kind: KindUnsupported}
)
