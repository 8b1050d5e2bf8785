// Package device implements the composite USB device: the UsbDeviceState
// machine, the per-poll dispatch that feeds SETUP/OUT/IN-complete events to
// the control pipe and every registered class, and the standard request
// handler (USB 2.0 chapter 9) that answers what no class claims.
package device

import (
	"github.com/ardnew/usbdev/allocator"
	"github.com/ardnew/usbdev/class"
	"github.com/ardnew/usbdev/control"
	"github.com/ardnew/usbdev/hal"
	"github.com/ardnew/usbdev/internal/telemetry"
	"github.com/ardnew/usbdev/usb"
)

// State is the device's position in the USB 2.0 chapter 9 state diagram.
// Class traffic is only meaningful once the device reaches StateConfigured.
type State uint8

// States.
const (
	StateDefault State = iota
	StateAddressed
	StateConfigured
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateDefault:
		return "default"
	case StateAddressed:
		return "addressed"
	case StateConfigured:
		return "configured"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// ConfigurationValue is the only bConfigurationValue this device answers
// to; it does not support multiple configurations.
const ConfigurationValue = 1

// maxInterfaces bounds how many distinct interface numbers a device can
// track alternate-setting state for.
const maxInterfaces = 32

// Info holds the fixed, descriptive fields of a device: everything a
// Builder can set before Build. Info never changes after Build.
type Info struct {
	DeviceClass    uint8
	DeviceSubClass uint8
	DeviceProtocol uint8
	MaxPacketSize0 uint8
	VendorID       uint16
	ProductID      uint16
	DeviceRelease  uint16

	Manufacturer string
	Product      string
	SerialNumber string

	SelfPowered          bool
	SupportsRemoteWakeup bool
	MaxPower             uint8 // bMaxPower units (2 mA each)
}

// Device is a composite USB device: one control pipe, shared by every
// class registered at Build time, driven by repeated calls to Poll.
type Device struct {
	core    hal.Core
	classes class.List
	alloc   *allocator.Allocator
	pipe    *control.Pipe
	info    Info

	state               State
	remoteWakeupEnabled bool
	selfPowered         bool
	pendingAddress      uint8

	altSettings [maxInterfaces]uint8

	descBuf          []byte
	configDescriptor []byte
}

// State returns the device's current chapter 9 state.
func (d *Device) State() State { return d.state }

// RemoteWakeupEnabled reports whether the host has enabled remote wakeup.
func (d *Device) RemoteWakeupEnabled() bool { return d.remoteWakeupEnabled }

// SelfPowered reports the device's current self-powered status.
func (d *Device) SelfPowered() bool { return d.selfPowered }

// SetSelfPowered updates the self-powered status GET_STATUS reports.
func (d *Device) SetSelfPowered(v bool) { d.selfPowered = v }

// Poll drives one iteration of the device's run loop: it reads the next
// peripheral event and dispatches it to the control pipe (for EP0) or to
// every registered class (for all other endpoints), in that order. It
// returns true for a SETUP, OUT or IN-complete event, and false when there
// was no event or the event was a bus reset, suspend or resume.
func (d *Device) Poll() bool {
	r := d.core.Poll()

	if d.state == StateSuspended {
		switch r.Event {
		case hal.EventNone, hal.EventSuspend:
			return false
		default:
			telemetry.Debug(telemetry.ComponentDevice, "device resumed")
			d.state = StateDefault
		}
	}

	switch r.Event {
	case hal.EventNone:
		return false

	case hal.EventReset:
		d.reset()
		return false

	case hal.EventSuspend:
		telemetry.Debug(telemetry.ComponentDevice, "device suspended")
		d.state = StateSuspended
		return false

	case hal.EventResume:
		return false

	case hal.EventSetupReceived:
		req, ready := d.pipe.HandleSetup()
		if ready {
			d.dispatchControl(req)
		}
		return true

	case hal.EventDataOut:
		if r.EndpointMask&1 != 0 {
			if req, done, err := d.pipe.HandleOut(); err == nil && done {
				d.dispatchControl(req)
			}
		}
		d.dispatchEndpoints(r.EndpointMask&^1, false)
		return true

	case hal.EventInComplete:
		if r.EndpointMask&1 != 0 {
			completed, err := d.pipe.HandleInComplete()
			if err == nil && completed && d.pendingAddress != 0 {
				d.core.SetAddress(d.pendingAddress)
				telemetry.Debug(telemetry.ComponentDevice, "device address set", "address", d.pendingAddress)
				d.pendingAddress = 0
				d.state = StateAddressed
			}
		}
		d.dispatchEndpoints(r.EndpointMask&^1, true)
		return true
	}

	return false
}

// dispatchEndpoints broadcasts non-EP0 endpoint events to every class.
// Class endpoints only carry traffic once the device is Configured; in
// Default or Addressed, a host has nothing to send them in the first
// place, but a real peripheral can still surface spurious bits, so the
// mask is dropped explicitly rather than trusted.
func (d *Device) dispatchEndpoints(mask uint16, in bool) {
	if d.state == StateConfigured {
		for i := uint8(1); i < 16 && mask != 0; i++ {
			bit := uint16(1) << i
			if mask&bit == 0 {
				continue
			}
			if in {
				d.classes.EndpointInComplete(usb.NewEndpointAddress(i, usb.DirIn))
			} else {
				d.classes.EndpointOut(usb.NewEndpointAddress(i, usb.DirOut))
			}
			mask &^= bit
		}
	}
	d.classes.Poll()
}

func (d *Device) dispatchControl(req usb.Request) {
	if req.Direction() == usb.DirIn {
		d.controlIn(req)
	} else {
		d.controlOut(req)
	}
}

func (d *Device) controlIn(req usb.Request) {
	xfer := class.NewControlIn(d.pipe, req)
	d.classes.ControlIn(xfer)
	if xfer.Consumed() {
		return
	}

	if req.Type() == usb.RequestStandard {
		d.standardControlIn(req, xfer)
	}

	if !xfer.Consumed() {
		xfer.Reject()
	}
}

func (d *Device) controlOut(req usb.Request) {
	xfer := class.NewControlOut(d.pipe, req)
	d.classes.ControlOut(xfer)
	if xfer.Consumed() {
		return
	}

	if req.Type() == usb.RequestStandard {
		d.standardControlOut(req, xfer)
	}

	if !xfer.Consumed() {
		xfer.Reject()
	}
}

func (d *Device) reset() {
	d.core.Reset()
	d.state = StateDefault
	d.remoteWakeupEnabled = false
	d.pendingAddress = 0
	for i := range d.altSettings {
		d.altSettings[i] = 0
	}
	d.pipe.Reset()
	d.classes.Reset()
	telemetry.Debug(telemetry.ComponentDevice, "device reset")
}

func (d *Device) setEndpointStall(addr usb.EndpointAddress, stalled bool) bool {
	if addr.IsIn() {
		if ep := d.core.In(addr); ep != nil {
			ep.SetStall(stalled)
			return true
		}
		return false
	}
	if ep := d.core.Out(addr); ep != nil {
		ep.SetStall(stalled)
		return true
	}
	return false
}

func (d *Device) isEndpointStalled(addr usb.EndpointAddress) bool {
	if addr.IsIn() {
		if ep := d.core.In(addr); ep != nil {
			return ep.IsStalled()
		}
		return false
	}
	if ep := d.core.Out(addr); ep != nil {
		return ep.IsStalled()
	}
	return false
}

// endpointAddressFromIndex recovers a full endpoint address from the
// wIndex field of an endpoint-recipient request, per USB 2.0 9.3.4: bit 7
// carries direction, bits 3:0 carry the endpoint number.
func endpointAddressFromIndex(index uint16) usb.EndpointAddress {
	return usb.EndpointAddress(index & 0x8F)
}
