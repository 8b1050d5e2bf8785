// Package testclass implements a reference USB class used to exercise a
// device stack end to end: a vendor-request scratch value, a vendor-request
// buffer echo, and a bulk OUT/IN loopback pair, plus one custom string
// descriptor. Driver implementations are expected to ship something
// equivalent under this name so interop tooling has a known-good target to
// test against.
package testclass

import (
	"github.com/ardnew/usbdev/allocator"
	"github.com/ardnew/usbdev/class"
	"github.com/ardnew/usbdev/descriptor"
	"github.com/ardnew/usbdev/hal"
	"github.com/ardnew/usbdev/usb"
	"github.com/ardnew/usbdev/usberr"
)

// VID and PID identify this reference device. They are borrowed from the
// pid.codes test allocation, not a real vendor.
const (
	VID = 0x16c0
	PID = 0x05dc
)

// Fixed descriptive strings a host can use to recognize this device.
const (
	Manufacturer = "TestClass Manufacturer"
	Product      = "usbdev TestClass"
	SerialNumber = "TestClass Serial"
	CustomString = "TestClass Custom String"
)

// Vendor request codes, all RequestVendor/RecipientDevice.
const (
	ReqSetValue     uint8 = 1
	ReqGetValue     uint8 = 2
	ReqWriteBuffer  uint8 = 3
	ReqReadBuffer   uint8 = 4
	ReqUnknown      uint8 = 42 // reserved for negative tests; never implemented
)

const bufferSize = 128

// Class is the reference class. Zero value is not usable; construct with
// New.
type Class struct {
	value  uint16
	buffer [bufferSize]byte
	bufLen int

	iface usb.InterfaceHandle
	str   usb.StringHandle

	outAddr, inAddr usb.EndpointAddress
	outEP           hal.OutEndpoint
	inEP            hal.InEndpoint
}

// New returns a Class that will configure a bulk OUT/IN pair at the given
// endpoint addresses. The two addresses must name the same endpoint number
// with opposite directions, or Configure fails.
func New(outAddr, inAddr usb.EndpointAddress) *Class {
	return &Class{
		iface:   usb.InterfaceHandle{Number: usb.Unassigned},
		str:     usb.StringHandle{Index: usb.Unassigned},
		outAddr: outAddr,
		inAddr:  inAddr,
	}
}

// maxPacketSize is this class's bulk endpoint packet size. Stated once
// here and read by both the allocation pass (to configure the hardware
// endpoint) and the descriptor pass (to write the endpoint descriptor),
// through the same Configure call.
const maxPacketSize = 64

// Configure implements class.Class. It runs once against the allocation
// pass's *allocator.Allocator and once against the descriptor pass's
// *descriptor.ConfigWriter, in both cases through the same sequence of
// calls against v.
func (c *Class) Configure(v allocator.ConfigVisitor, core hal.Core) error {
	if c.outAddr.IsIn() || !c.inAddr.IsIn() || c.outAddr.Number() != c.inAddr.Number() {
		return usberr.ErrInvalidEndpoint
	}
	if err := v.String(&c.str, CustomString); err != nil {
		return err
	}
	if err := v.BeginInterface(&c.iface, 0, 0xFF, 0x00, 0x00, c.str.Index); err != nil {
		return err
	}

	cfg := hal.EndpointConfig{TransferType: usb.TransferBulk, MaxPacketSize: maxPacketSize}
	cfg.Address = c.outAddr
	if err := core.ConfigureEndpoint(cfg); err != nil {
		return err
	}
	cfg.Address = c.inAddr
	if err := core.ConfigureEndpoint(cfg); err != nil {
		return err
	}
	c.outEP = core.Out(c.outAddr)
	c.inEP = core.In(c.inAddr)

	if err := v.Endpoint(c.outAddr, usb.TransferBulk, maxPacketSize, 0); err != nil {
		return err
	}
	if err := v.Endpoint(c.inAddr, usb.TransferBulk, maxPacketSize, 0); err != nil {
		return err
	}
	v.EndInterface()
	return nil
}

// DescribeBOS implements class.Class; this reference class has no device
// capability descriptors.
func (c *Class) DescribeBOS(*descriptor.BOSWriter) error { return nil }

// Reset implements class.Class. The scratch value and buffer persist across
// a bus reset; only the control/endpoint plumbing resets.
func (c *Class) Reset() {}

// AltSettingActivated implements class.Class; this reference class has only
// one alternate setting.
func (c *Class) AltSettingActivated(usb.InterfaceHandle, uint8) {}

// Poll implements class.Class; all of this class's work happens in response
// to control and endpoint events, not on a timer.
func (c *Class) Poll() {}

// ControlOut implements class.Class.
func (c *Class) ControlOut(xfer *class.ControlOut) {
	req := xfer.Request()
	if req.Type() != usb.RequestVendor || req.Recipient() != usb.RecipientDevice {
		return
	}

	switch req.Request {
	case ReqSetValue:
		c.value = req.Value
		_ = xfer.Accept()
	case ReqWriteBuffer:
		data := xfer.Data()
		if len(data) > bufferSize {
			_ = xfer.Reject()
			return
		}
		c.bufLen = copy(c.buffer[:], data)
		_ = xfer.Accept()
	default:
		_ = xfer.Reject()
	}
}

// ControlIn implements class.Class.
func (c *Class) ControlIn(xfer *class.ControlIn) {
	req := xfer.Request()
	if req.Type() != usb.RequestVendor || req.Recipient() != usb.RecipientDevice {
		return
	}

	switch req.Request {
	case ReqGetValue:
		_ = xfer.Accept([]byte{uint8(c.value), uint8(c.value >> 8)})
	case ReqReadBuffer:
		_ = xfer.Accept(c.buffer[:c.bufLen])
	default:
		_ = xfer.Reject()
	}
}

// EndpointOut implements class.Class: every OUT packet on this class's bulk
// endpoint is echoed back verbatim on the matching IN endpoint.
func (c *Class) EndpointOut(addr usb.EndpointAddress) {
	if addr.Number() != c.outAddr.Number() {
		return
	}
	var buf [64]byte
	n, err := c.outEP.Read(buf[:])
	if err != nil {
		return
	}
	if err := c.inEP.Write(buf[:n]); err != nil && err != usberr.ErrWouldBlock {
		return
	}
}

// EndpointInComplete implements class.Class; the loopback has nothing
// further to do once the echoed packet has been picked up.
func (c *Class) EndpointInComplete(usb.EndpointAddress) {}

// GetString implements class.Class.
func (c *Class) GetString(index usb.StringHandle, langID uint16) (string, bool) {
	if c.str.IsAssigned() && index.Index == c.str.Index && langID == usb.LangIDEnglishUS {
		return CustomString, true
	}
	return "", false
}
