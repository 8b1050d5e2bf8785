// Package hal defines the non-blocking peripheral contract the device stack
// polls. Implementations wrap a specific USB peripheral controller (a
// silicon core, or in-memory test fixture) and must never block: every
// operation either completes immediately or returns usberr.ErrWouldBlock.
package hal

import (
	"github.com/ardnew/usbdev/usb"
)

// EndpointConfig describes an endpoint as the device stack wants it
// configured, independent of the peripheral's internal buffer layout.
type EndpointConfig struct {
	Address       usb.EndpointAddress
	TransferType  usb.TransferType
	MaxPacketSize uint16
	Interval      uint8
}

// Event is the kind of condition Poll reports.
type Event uint8

// Event kinds.
const (
	EventNone Event = iota
	EventReset
	EventSuspend
	EventResume
	EventSetupReceived
	EventDataOut
	EventInComplete
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventReset:
		return "reset"
	case EventSuspend:
		return "suspend"
	case EventResume:
		return "resume"
	case EventSetupReceived:
		return "setup"
	case EventDataOut:
		return "data-out"
	case EventInComplete:
		return "in-complete"
	default:
		return "unknown"
	}
}

// PollResult is returned by Core.Poll. EndpointMask carries the OUT/IN
// endpoint bitmask for EventDataOut/EventInComplete, one bit per endpoint
// number (bit N set means endpoint N has the condition).
type PollResult struct {
	Event        Event
	EndpointMask uint16
}

// Core is the control-plane surface of a USB peripheral: address/speed
// state, endpoint (re)configuration, and the single poll point the device
// stack calls once per iteration of its run loop.
//
// No method on Core or the endpoint interfaces below may block. An
// operation that cannot complete immediately returns usberr.ErrWouldBlock,
// and the caller is expected to retry on a later Poll.
type Core interface {
	// Reset clears protocol state to its post-bus-reset condition:
	// address 0, no pending packets, no stalls. Endpoint hardware
	// configuration (what ConfigureEndpoint established) is not torn
	// down by a bus reset, matching real silicon; it is the device
	// layer's job to stop routing traffic to class endpoints outside
	// the Configured state.
	Reset()

	// SetAddress programs the USB device address. Per §4.4 the device
	// layer defers the actual programming until the status stage of
	// SET_ADDRESS completes; Core only applies what it is told.
	SetAddress(addr uint8) error

	// ConfigureEndpoint enables a non-zero endpoint with the given
	// configuration. Calling it again for the same address replaces
	// the configuration.
	ConfigureEndpoint(cfg EndpointConfig) error

	// DisableEndpoint disables a previously configured endpoint.
	DisableEndpoint(addr usb.EndpointAddress) error

	// Speed reports the negotiated connection speed; only meaningful
	// after EventReset has been observed.
	Speed() usb.Speed

	// Poll reports the next pending condition and clears it. Returns
	// EventNone when nothing is pending. The device stack calls this
	// once per run-loop iteration before touching any endpoint.
	Poll() PollResult

	// EP0 returns the control pipe's OUT and IN endpoint halves.
	EP0Out() OutEndpoint
	EP0In() InEndpoint

	// Out returns the OUT-direction half of a configured non-zero
	// endpoint, or nil if it is not configured.
	Out(addr usb.EndpointAddress) OutEndpoint

	// In returns the IN-direction half of a configured non-zero
	// endpoint, or nil if it is not configured.
	In(addr usb.EndpointAddress) InEndpoint
}

// OutEndpoint is the host-to-device half of an endpoint.
type OutEndpoint interface {
	// Read copies at most len(buf) bytes of the next pending OUT
	// packet into buf and returns the packet length. Returns
	// usberr.ErrWouldBlock if no packet is pending.
	Read(buf []byte) (int, error)

	// SetStall sets or clears the endpoint's STALL condition.
	SetStall(stalled bool)

	// IsStalled reports the current STALL condition.
	IsStalled() bool
}

// InEndpoint is the device-to-host half of an endpoint.
type InEndpoint interface {
	// Write enqueues buf as the next IN packet. Returns
	// usberr.ErrWouldBlock if the previous packet has not yet been
	// picked up by the host.
	Write(buf []byte) error

	// MaxPacketSize reports the endpoint's configured maximum packet
	// size, used by the control pipe to decide whether a transfer needs
	// a trailing zero-length packet.
	MaxPacketSize() uint16

	// SetStall sets or clears the endpoint's STALL condition.
	SetStall(stalled bool)

	// IsStalled reports the current STALL condition.
	IsStalled() bool
}
