// Package usberr defines the sentinel error taxonomy shared by every layer
// of the usbdev stack: the peripheral contract (package hal), the resource
// allocator, the control pipe state machine, and the composite device
// runtime all return these values instead of ad-hoc errors so callers can
// dispatch on error kind with a single errors.Is check.
package usberr

import "errors"

// Kind identifies the category of a usbdev error.
type Kind int

// Error kinds, as named by the peripheral contract and propagation policy.
const (
	KindWouldBlock Kind = iota
	KindParseError
	KindBufferOverflow
	KindEndpointUnavailable
	KindEndpointOverflow
	KindEndpointMemoryOverflow
	KindInvalidEndpoint
	KindInvalidInterface
	KindInvalidAlternateSetting
	KindUnsupported
	KindInvalidState
	KindDuplicateConfig
	KindPlatform
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindWouldBlock:
		return "would-block"
	case KindParseError:
		return "parse-error"
	case KindBufferOverflow:
		return "buffer-overflow"
	case KindEndpointUnavailable:
		return "endpoint-unavailable"
	case KindEndpointOverflow:
		return "endpoint-overflow"
	case KindEndpointMemoryOverflow:
		return "endpoint-memory-overflow"
	case KindInvalidEndpoint:
		return "invalid-endpoint"
	case KindInvalidInterface:
		return "invalid-interface"
	case KindInvalidAlternateSetting:
		return "invalid-alternate-setting"
	case KindUnsupported:
		return "unsupported"
	case KindInvalidState:
		return "invalid-state"
	case KindDuplicateConfig:
		return "duplicate-config"
	case KindPlatform:
		return "platform"
	default:
		return "unknown"
	}
}

// usbError pairs a sentinel message with its Kind so errors.Is matches the
// package-level sentinel while callers that need the kind can still recover
// it with errors.As or the Of helper below.
type usbError struct {
	kind Kind
	msg  string
}

func (e *usbError) Error() string { return e.msg }

// Of returns the error kind of err if it originated in this package, and
// ok=false otherwise.
func Of(err error) (kind Kind, ok bool) {
	var e *usbError
	if errors.As(err, &e) {
		return e.kind, true
	}
	return 0, false
}

func newErr(kind Kind, msg string) error {
	return &usbError{kind: kind, msg: msg}
}

// Sentinel errors, one per Kind. Compare with errors.Is, which also
// matches an error that wraps one of these with fmt.Errorf("...: %w", ...).
var (
	// ErrWouldBlock means "retry on next poll" — never propagated to classes.
	ErrWouldBlock = newErr(KindWouldBlock, "usbdev: would block")

	// ErrParseError means a SETUP packet or descriptor failed to parse.
	ErrParseError = newErr(KindParseError, "usbdev: parse error")

	// ErrBufferOverflow means a write does not fit the destination buffer.
	ErrBufferOverflow = newErr(KindBufferOverflow, "usbdev: buffer overflow")

	// ErrEndpointUnavailable means a fixed-address endpoint request could
	// not be honored by the peripheral allocator.
	ErrEndpointUnavailable = newErr(KindEndpointUnavailable, "usbdev: endpoint unavailable")

	// ErrEndpointOverflow means more endpoints were requested than the
	// peripheral can provide.
	ErrEndpointOverflow = newErr(KindEndpointOverflow, "usbdev: endpoint overflow")

	// ErrEndpointMemoryOverflow means the peripheral's endpoint memory bank
	// is exhausted.
	ErrEndpointMemoryOverflow = newErr(KindEndpointMemoryOverflow, "usbdev: endpoint memory overflow")

	// ErrInvalidEndpoint means the referenced endpoint address does not
	// exist in the active configuration.
	ErrInvalidEndpoint = newErr(KindInvalidEndpoint, "usbdev: invalid endpoint")

	// ErrInvalidInterface means the referenced interface number was never
	// allocated.
	ErrInvalidInterface = newErr(KindInvalidInterface, "usbdev: invalid interface")

	// ErrInvalidAlternateSetting means SET_INTERFACE named an alternate
	// setting the interface never registered.
	ErrInvalidAlternateSetting = newErr(KindInvalidAlternateSetting, "usbdev: invalid alternate setting")

	// ErrUnsupported means the requested operation is not implemented.
	ErrUnsupported = newErr(KindUnsupported, "usbdev: unsupported")

	// ErrInvalidState means an operation was attempted from a state that
	// does not permit it (e.g. accept_out outside CompleteOut).
	ErrInvalidState = newErr(KindInvalidState, "usbdev: invalid state")

	// ErrDuplicateConfig means a class's configure pass registered the same
	// handle twice.
	ErrDuplicateConfig = newErr(KindDuplicateConfig, "usbdev: duplicate config")

	// ErrPlatform wraps a peripheral-specific failure with no closer match
	// among the other kinds.
	ErrPlatform = newErr(KindPlatform, "usbdev: platform error")
)
