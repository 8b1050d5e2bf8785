// Package class defines the contract a USB class driver implements, and
// List, the composite-device fan-out that broadcasts each device event to
// every registered class in turn.
//
// A C++-style generator might produce one tuple impl of the class trait per
// arity via a macro, so each combination of concrete class types is
// monomorphized and dispatched statically. Go has no macros and no
// variadic generics over distinct types, so List uses a slice of a common
// interface and dynamic dispatch instead - a deliberate simplification
// documented in DESIGN.md, not an oversight.
package class

import (
	"github.com/ardnew/usbdev/allocator"
	"github.com/ardnew/usbdev/control"
	"github.com/ardnew/usbdev/descriptor"
	"github.com/ardnew/usbdev/hal"
	"github.com/ardnew/usbdev/usb"
)

// Class is implemented by a USB class driver. Every method has a no-op
// default behavior a driver can skip by embedding Base (see below); a
// driver only overrides what it actually uses.
type Class interface {
	// Configure is called twice per class during device build, through
	// the same sequence of calls against two different visitors: once
	// with an *allocator.Allocator, to assign any interfaces, alternate
	// settings, and strings the class needs and to configure and retain
	// any endpoints it owns through core (calling core.ConfigureEndpoint,
	// then core.Out/core.In to keep the handles it will use from
	// EndpointOut/EndpointInComplete/Poll onward); and once with a
	// *descriptor.ConfigWriter, to emit the interface and endpoint
	// descriptor bytes using the handles and sizes the first call already
	// settled. A class should never branch on which visitor it was
	// given - stating a value (a packet size, a transfer type) once in
	// the arguments to a v call is what keeps both passes in sync.
	Configure(v allocator.ConfigVisitor, core hal.Core) error

	// DescribeBOS appends this class's BOS device capability
	// descriptors, if any.
	DescribeBOS(w *descriptor.BOSWriter) error

	// Reset is called after the device completes a bus reset.
	Reset()

	// AltSettingActivated is called after a successful SET_INTERFACE for
	// an interface this class registered.
	AltSettingActivated(iface usb.InterfaceHandle, altSetting uint8)

	// Poll is called after the device dispatches an EventDataOut or
	// EventInComplete. It is not called on device Poll calls that report
	// no event, a bus reset, suspend or resume, or a SETUP packet.
	Poll()

	// ControlOut is offered a pending host-to-device control transfer.
	// A class that recognizes req should consume xfer by calling Accept
	// or Reject; a class that doesn't recognize the request should
	// leave xfer untouched so the next class gets a turn.
	ControlOut(xfer *ControlOut)

	// ControlIn is offered a pending device-to-host control transfer.
	ControlIn(xfer *ControlIn)

	// EndpointOut is called when a non-zero OUT endpoint has received
	// data. May be called for an address this class didn't allocate;
	// such calls should be ignored.
	EndpointOut(addr usb.EndpointAddress)

	// EndpointInComplete is called when a non-zero IN endpoint has
	// finished transmitting. May be called for an address this class
	// didn't allocate; such calls should be ignored.
	EndpointInComplete(addr usb.EndpointAddress)

	// GetString returns a class-specific string for the given index and
	// language ID, or ("", false) if this class doesn't own that index.
	GetString(index usb.StringHandle, langID uint16) (string, bool)
}

// Base provides no-op implementations of every Class method. Embed it in a
// concrete class so only the methods actually used need overriding.
type Base struct{}

func (Base) Configure(allocator.ConfigVisitor, hal.Core) error { return nil }
func (Base) DescribeBOS(*descriptor.BOSWriter) error           { return nil }
func (Base) Reset()                                            {}
func (Base) AltSettingActivated(usb.InterfaceHandle, uint8)    {}
func (Base) Poll()                                             {}
func (Base) ControlOut(*ControlOut)                            {}
func (Base) ControlIn(*ControlIn)                              {}
func (Base) EndpointOut(usb.EndpointAddress)                   {}
func (Base) EndpointInComplete(usb.EndpointAddress)            {}
func (Base) GetString(usb.StringHandle, uint16) (string, bool) { return "", false }

// ControlOut is a handle to a pending host-to-device control transfer.
// Consume it exactly once, by calling Accept or Reject; calling neither
// leaves it for the next class, and calling either a second time is a
// programming error the pipe reports as usberr.ErrInvalidState.
type ControlOut struct {
	pipe      *control.Pipe
	req       usb.Request
	consumed  bool
}

// NewControlOut wraps pipe for dispatch to classes. Used by the device
// package; class implementations only ever receive one from a call to
// ControlOut.
func NewControlOut(pipe *control.Pipe, req usb.Request) *ControlOut {
	return &ControlOut{pipe: pipe, req: req}
}

// Request returns the request from the SETUP packet.
func (c *ControlOut) Request() usb.Request { return c.req }

// Data returns the data stage bytes received, if any.
func (c *ControlOut) Data() []byte { return c.pipe.Data() }

// Accept acknowledges the transfer's STATUS stage.
func (c *ControlOut) Accept() error {
	c.consumed = true
	return c.pipe.AcceptOut()
}

// Reject stalls the pipe.
func (c *ControlOut) Reject() error {
	c.consumed = true
	return c.pipe.Reject()
}

// Consumed reports whether a class has already called Accept or Reject.
func (c *ControlOut) Consumed() bool { return c.consumed }

// ControlIn is a handle to a pending device-to-host control transfer.
type ControlIn struct {
	pipe     *control.Pipe
	req      usb.Request
	consumed bool
}

// NewControlIn wraps pipe for dispatch to classes.
func NewControlIn(pipe *control.Pipe, req usb.Request) *ControlIn {
	return &ControlIn{pipe: pipe, req: req}
}

// Request returns the request from the SETUP packet.
func (c *ControlIn) Request() usb.Request { return c.req }

// Accept completes the transfer with data, truncated to the host's
// requested length.
func (c *ControlIn) Accept(data []byte) error {
	c.consumed = true
	return c.pipe.AcceptIn(data)
}

// Reject stalls the pipe.
func (c *ControlIn) Reject() error {
	c.consumed = true
	return c.pipe.Reject()
}

// Consumed reports whether a class has already called Accept or Reject.
func (c *ControlIn) Consumed() bool { return c.consumed }

// List is a composite device's registered classes, dispatched to in
// registration order. The first class to consume a control transfer wins;
// later classes in the list are not offered it.
type List []Class

// Configure calls Configure on every class in order, stopping at the first
// error. The caller runs this once per visitor - once for the allocation
// pass, once for the descriptor pass - against the same List.
func (l List) Configure(v allocator.ConfigVisitor, core hal.Core) error {
	for _, c := range l {
		if err := c.Configure(v, core); err != nil {
			return err
		}
	}
	return nil
}

// DescribeBOS calls DescribeBOS on every class in order, stopping at the
// first error.
func (l List) DescribeBOS(w *descriptor.BOSWriter) error {
	for _, c := range l {
		if err := c.DescribeBOS(w); err != nil {
			return err
		}
	}
	return nil
}

// Reset calls Reset on every class.
func (l List) Reset() {
	for _, c := range l {
		c.Reset()
	}
}

// AltSettingActivated calls AltSettingActivated on every class; only the
// class that owns iface is expected to act on it.
func (l List) AltSettingActivated(iface usb.InterfaceHandle, altSetting uint8) {
	for _, c := range l {
		c.AltSettingActivated(iface, altSetting)
	}
}

// Poll calls Poll on every class.
func (l List) Poll() {
	for _, c := range l {
		c.Poll()
	}
}

// EndpointOut calls EndpointOut on every class.
func (l List) EndpointOut(addr usb.EndpointAddress) {
	for _, c := range l {
		c.EndpointOut(addr)
	}
}

// EndpointInComplete calls EndpointInComplete on every class.
func (l List) EndpointInComplete(addr usb.EndpointAddress) {
	for _, c := range l {
		c.EndpointInComplete(addr)
	}
}

// ControlOut offers xfer to each class in turn until one consumes it.
func (l List) ControlOut(xfer *ControlOut) {
	for _, c := range l {
		c.ControlOut(xfer)
		if xfer.Consumed() {
			return
		}
	}
}

// ControlIn offers xfer to each class in turn until one consumes it.
func (l List) ControlIn(xfer *ControlIn) {
	for _, c := range l {
		c.ControlIn(xfer)
		if xfer.Consumed() {
			return
		}
	}
}

// GetString asks each class in turn for the given string index, returning
// the first match.
func (l List) GetString(index usb.StringHandle, langID uint16) (string, bool) {
	for _, c := range l {
		if s, ok := c.GetString(index, langID); ok {
			return s, true
		}
	}
	return "", false
}
