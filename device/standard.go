package device

import (
	"github.com/ardnew/usbdev/allocator"
	"github.com/ardnew/usbdev/class"
	"github.com/ardnew/usbdev/descriptor"
	"github.com/ardnew/usbdev/internal/telemetry"
	"github.com/ardnew/usbdev/usb"
)

// standardControlIn answers a standard, device-to-host control request that
// no class consumed. Unmatched combinations leave xfer unconsumed so the
// caller rejects it.
func (d *Device) standardControlIn(req usb.Request, xfer *class.ControlIn) {
	switch req.Request {
	case usb.StdGetStatus:
		d.handleGetStatus(req, xfer)

	case usb.StdGetDescriptor:
		d.handleGetDescriptor(req, xfer)

	case usb.StdGetConfiguration:
		if req.Recipient() != usb.RecipientDevice {
			return
		}
		if d.state == StateConfigured {
			_ = xfer.Accept([]byte{ConfigurationValue})
		} else {
			_ = xfer.Accept([]byte{0})
		}

	case usb.StdGetInterface:
		if req.Recipient() != usb.RecipientInterface {
			return
		}
		number := uint8(req.Index)
		if number >= maxInterfaces || !d.alloc.IsRegistered(number, 0) {
			return
		}
		_ = xfer.Accept([]byte{d.altSettings[number]})
	}
}

func (d *Device) handleGetStatus(req usb.Request, xfer *class.ControlIn) {
	var status uint16
	switch req.Recipient() {
	case usb.RecipientDevice:
		if d.selfPowered {
			status |= 0x0001
		}
		if d.remoteWakeupEnabled {
			status |= 0x0002
		}
	case usb.RecipientInterface:
		number := uint8(req.Index)
		if number >= maxInterfaces || !d.alloc.IsRegistered(number, 0) {
			return
		}
	case usb.RecipientEndpoint:
		addr := endpointAddressFromIndex(req.Index)
		if addr.Number() == 0 {
			// EP0 never halts independently of the pipe's own error state.
		} else if d.isEndpointStalled(addr) {
			status |= 0x0001
		}
	default:
		return
	}
	_ = xfer.Accept([]byte{uint8(status), uint8(status >> 8)})
}

func (d *Device) handleGetDescriptor(req usb.Request, xfer *class.ControlIn) {
	switch req.DescriptorType() {
	case usb.DescDevice:
		dd := descriptor.DeviceDescriptor{
			USBVersion:        0x0200,
			DeviceClass:       d.info.DeviceClass,
			DeviceSubClass:    d.info.DeviceSubClass,
			DeviceProtocol:    d.info.DeviceProtocol,
			MaxPacketSize0:    d.info.MaxPacketSize0,
			VendorID:          d.info.VendorID,
			ProductID:         d.info.ProductID,
			DeviceRelease:     d.info.DeviceRelease,
			ManufacturerIndex: stringIndexOr(d.info.Manufacturer, allocator.ManufacturerString),
			ProductIndex:      stringIndexOr(d.info.Product, allocator.ProductString),
			SerialNumberIndex: stringIndexOr(d.info.SerialNumber, allocator.SerialNumberString),
			NumConfigurations: 1,
		}
		n := dd.MarshalTo(d.descBuf)
		if n == 0 {
			return
		}
		_ = xfer.Accept(d.descBuf[:n])

	case usb.DescConfiguration:
		_ = xfer.Accept(d.configDescriptor)

	case usb.DescString:
		w := descriptor.NewWriter(d.descBuf)
		index := req.DescriptorIndex()
		if index == 0 {
			if err := w.WriteLanguages(usb.LangIDEnglishUS); err != nil {
				return
			}
			_ = xfer.Accept(w.Bytes())
			return
		}
		s, ok := d.getString(index, req.Index)
		if !ok {
			return
		}
		if err := w.WriteString(s); err != nil {
			return
		}
		_ = xfer.Accept(w.Bytes())

	case usb.DescBOS:
		bw := descriptor.NewBOSWriter(d.descBuf)
		if err := bw.Begin(); err != nil {
			return
		}
		if err := d.classes.DescribeBOS(bw); err != nil {
			return
		}
		bw.End()
		_ = xfer.Accept(bw.Bytes())
	}
}

func (d *Device) getString(index uint8, langID uint16) (string, bool) {
	switch index {
	case allocator.ManufacturerString:
		return d.info.Manufacturer, d.info.Manufacturer != ""
	case allocator.ProductString:
		return d.info.Product, d.info.Product != ""
	case allocator.SerialNumberString:
		return d.info.SerialNumber, d.info.SerialNumber != ""
	default:
		return d.classes.GetString(usb.StringHandle{Index: index}, langID)
	}
}

func stringIndexOr(s string, index uint8) uint8 {
	if s == "" {
		return 0
	}
	return index
}

// standardControlOut answers a standard, host-to-device control request
// that no class consumed. Unmatched combinations leave xfer unconsumed so
// the caller rejects it.
func (d *Device) standardControlOut(req usb.Request, xfer *class.ControlOut) {
	switch req.Request {
	case usb.StdSetAddress:
		if req.Recipient() != usb.RecipientDevice {
			return
		}
		if req.Value == 0 || req.Value > 127 {
			return
		}
		d.pendingAddress = uint8(req.Value)
		_ = xfer.Accept()

	case usb.StdSetConfiguration:
		if req.Recipient() != usb.RecipientDevice {
			return
		}
		switch req.Value {
		case ConfigurationValue:
			d.state = StateConfigured
			telemetry.Debug(telemetry.ComponentDevice, "device configured", "configuration", req.Value)
			_ = xfer.Accept()
		case 0:
			d.state = StateAddressed
			telemetry.Debug(telemetry.ComponentDevice, "device deconfigured")
			_ = xfer.Accept()
		default:
			return
		}

	case usb.StdSetInterface:
		if req.Recipient() != usb.RecipientInterface {
			return
		}
		number := uint8(req.Index)
		altSetting := uint8(req.Value)
		if number >= maxInterfaces || !d.alloc.IsRegistered(number, altSetting) {
			return
		}
		d.altSettings[number] = altSetting
		d.classes.AltSettingActivated(usb.InterfaceHandle{Number: number, AltSetting: altSetting}, altSetting)
		_ = xfer.Accept()

	case usb.StdClearFeature:
		d.handleFeature(req, xfer, false)

	case usb.StdSetFeature:
		d.handleFeature(req, xfer, true)
	}
}

func (d *Device) handleFeature(req usb.Request, xfer *class.ControlOut, set bool) {
	switch req.Recipient() {
	case usb.RecipientDevice:
		if req.Value != usb.FeatureDeviceRemoteWakeup {
			return
		}
		d.remoteWakeupEnabled = set
		_ = xfer.Accept()

	case usb.RecipientEndpoint:
		if req.Value != usb.FeatureEndpointHalt {
			return
		}
		addr := endpointAddressFromIndex(req.Index)
		if addr.Number() == 0 {
			return
		}
		if !d.setEndpointStall(addr, set) {
			return
		}
		_ = xfer.Accept()
	}
}
