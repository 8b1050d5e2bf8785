package device

import (
	"github.com/ardnew/usbdev/allocator"
	"github.com/ardnew/usbdev/class"
	"github.com/ardnew/usbdev/control"
	"github.com/ardnew/usbdev/descriptor"
	"github.com/ardnew/usbdev/hal"
)

// controlBufferSize bounds the largest control transfer data stage (e.g. a
// class-specific descriptor set or a vendor request payload) the pipe can
// hold.
const controlBufferSize = 256

// descriptorBufferSize bounds the largest descriptor Build's device can
// assemble in one GET_DESCRIPTOR response.
const descriptorBufferSize = 512

// Builder assembles a Device from a hal.Core, a set of classes, and the
// device-level descriptor fields. Its setters panic on a value the wire
// format cannot represent: a panic here is a programming error caught at
// startup, not a runtime condition a caller needs to recover from.
type Builder struct {
	core    hal.Core
	classes class.List
	info    Info
}

// NewBuilder returns a Builder with the defaults every field not
// explicitly set will carry into Build: 8-byte EP0 packets, device class
// 0x00 (class specified per-interface), release 0.10, and 100 mA of
// bus power.
func NewBuilder(core hal.Core, classes class.List, vendorID, productID uint16) *Builder {
	return &Builder{
		core:    core,
		classes: classes,
		info: Info{
			MaxPacketSize0: 8,
			VendorID:       vendorID,
			ProductID:      productID,
			DeviceRelease:  0x0010,
			MaxPower:       50,
		},
	}
}

// DeviceClass sets bDeviceClass/bDeviceSubClass/bDeviceProtocol.
func (b *Builder) DeviceClass(deviceClass, subClass, protocol uint8) *Builder {
	b.info.DeviceClass = deviceClass
	b.info.DeviceSubClass = subClass
	b.info.DeviceProtocol = protocol
	return b
}

// MaxPacketSize0 sets EP0's max packet size. Panics unless size is one of
// the four values USB 2.0 allows for a control endpoint: 8, 16, 32, 64.
func (b *Builder) MaxPacketSize0(size uint8) *Builder {
	switch size {
	case 8, 16, 32, 64:
	default:
		panic("device: MaxPacketSize0 must be 8, 16, 32, or 64")
	}
	b.info.MaxPacketSize0 = size
	return b
}

// DeviceRelease sets bcdDevice.
func (b *Builder) DeviceRelease(v uint16) *Builder {
	b.info.DeviceRelease = v
	return b
}

// Manufacturer sets the manufacturer string, reported at string index 1.
func (b *Builder) Manufacturer(s string) *Builder {
	b.info.Manufacturer = s
	return b
}

// Product sets the product string, reported at string index 2.
func (b *Builder) Product(s string) *Builder {
	b.info.Product = s
	return b
}

// SerialNumber sets the serial number string, reported at string index 3.
func (b *Builder) SerialNumber(s string) *Builder {
	b.info.SerialNumber = s
	return b
}

// SelfPowered marks the device as self-powered in GET_STATUS and the
// configuration descriptor's bmAttributes.
func (b *Builder) SelfPowered(v bool) *Builder {
	b.info.SelfPowered = v
	return b
}

// SupportsRemoteWakeup marks the device as remote-wakeup capable in the
// configuration descriptor's bmAttributes.
func (b *Builder) SupportsRemoteWakeup(v bool) *Builder {
	b.info.SupportsRemoteWakeup = v
	return b
}

// MaxPower sets the device's maximum bus current draw in milliamps. Panics
// if maxMA exceeds the USB 2.0 bus-powered limit of 500 mA.
func (b *Builder) MaxPower(maxMA int) *Builder {
	if maxMA < 0 || maxMA > 500 {
		panic("device: MaxPower must be between 0 and 500 mA")
	}
	b.info.MaxPower = uint8(maxMA / 2)
	return b
}

// Build runs the allocation pass over every class's interfaces, alternate
// settings, strings, and endpoints, then the descriptor pass that renders
// the configuration descriptor from the handles the first pass assigned,
// then constructs the device and runs its first reset. An error here comes
// from a class Configure call (a duplicate or out-of-order allocation, or a
// failed core.ConfigureEndpoint) or from a configuration descriptor that
// does not fit its buffer, and is a build-time condition, not a runtime one.
func (b *Builder) Build() (*Device, error) {
	alloc := allocator.New()
	if err := b.classes.Configure(alloc, b.core); err != nil {
		return nil, err
	}

	controlBuf := make([]byte, controlBufferSize)
	descBuf := make([]byte, descriptorBufferSize)
	configBuf := make([]byte, descriptorBufferSize)
	pipe := control.NewPipe(controlBuf, b.core.EP0Out(), b.core.EP0In())

	d := &Device{
		core:        b.core,
		classes:     b.classes,
		alloc:       alloc,
		pipe:        pipe,
		info:        b.info,
		selfPowered: b.info.SelfPowered,
		descBuf:     descBuf,
	}

	attrs := uint8(0x80)
	if b.info.SelfPowered {
		attrs |= 0x40
	}
	if b.info.SupportsRemoteWakeup {
		attrs |= 0x20
	}
	w := descriptor.NewWriter(configBuf)
	if err := w.BeginConfiguration(ConfigurationValue, attrs, b.info.MaxPower); err != nil {
		return nil, err
	}
	if err := b.classes.Configure(descriptor.NewConfigWriter(w), b.core); err != nil {
		return nil, err
	}
	w.EndConfiguration()
	d.configDescriptor = w.Bytes()

	d.reset()
	return d, nil
}
