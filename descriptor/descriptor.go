// Package descriptor implements the append-only, back-patching byte-buffer
// builder used to emit USB device, configuration, interface, endpoint,
// string, and BOS descriptors without heap allocation.
package descriptor

import (
	"encoding/binary"

	"github.com/ardnew/usbdev/usb"
	"github.com/ardnew/usbdev/usberr"
)

// Writer appends descriptors to a caller-provided buffer, back-patching
// length and count fields that are only known once emission finishes (the
// configuration's wTotalLength/bNumInterfaces, an interface's
// bNumEndpoints).
//
// Writer never allocates: position, marks, and totals are plain ints.
type Writer struct {
	buf []byte
	pos int

	numInterfacesMark int // offset of bNumInterfaces, -1 if not in a config
	totalLengthMark   int // offset of wTotalLength

	curEndpointsMark int // offset of the current interface's bNumEndpoints
	curInterfaceNum  uint8
}

// NewWriter wraps buf. The caller retains ownership of buf.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf, numInterfacesMark: -1, curEndpointsMark: -1}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.pos }

// Bytes returns the written prefix of the underlying buffer.
func (w *Writer) Bytes() []byte { return w.buf[:w.pos] }

// Write appends a descriptor with the given type and payload, writing the
// one-byte length and one-byte type header itself. Returns
// usberr.ErrBufferOverflow if the buffer cannot hold len(payload)+2 bytes.
func (w *Writer) Write(descType uint8, payload []byte) error {
	total := len(payload) + 2
	if total > 255 || w.pos+total > len(w.buf) {
		return usberr.ErrBufferOverflow
	}
	w.buf[w.pos] = uint8(total)
	w.buf[w.pos+1] = descType
	copy(w.buf[w.pos+2:], payload)
	w.pos += total
	return nil
}

// insert overwrites length bytes at offset with data, without moving pos.
// Used for back-patching fields recorded by a mark.
func (w *Writer) insert(offset int, data []byte) {
	copy(w.buf[offset:offset+len(data)], data)
}

// BeginConfiguration writes the 9-byte configuration descriptor header with
// placeholder wTotalLength/bNumInterfaces fields and records their offsets
// for later back-patching by End.
func (w *Writer) BeginConfiguration(value, attributes, maxPower uint8) error {
	start := w.pos
	if err := w.Write(usb.DescConfiguration, []byte{
		0, 0, // wTotalLength placeholder
		0, // bNumInterfaces placeholder
		value,
		0, // iConfiguration
		attributes,
		maxPower,
	}); err != nil {
		return err
	}
	w.totalLengthMark = start + 2
	w.numInterfacesMark = start + 4
	return nil
}

// EndConfiguration back-patches wTotalLength and bNumInterfaces using the
// writer's current position and accumulated interface count.
func (w *Writer) EndConfiguration() {
	if w.numInterfacesMark < 0 {
		return
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(w.pos))
	w.insert(w.totalLengthMark, lenBuf[:])
	w.numInterfacesMark = -1
}

// BeginInterfaceAssociation writes an 8-byte IAD. IADs consume no interface
// number. ConfigVisitor has no IAD method, so the allocator pass never sees
// an IAD.
func (w *Writer) BeginInterfaceAssociation(first, count, class, subClass, protocol, stringIndex uint8) error {
	return w.Write(usb.DescInterfaceAssociation, []byte{first, count, class, subClass, protocol, stringIndex})
}

// BeginInterface writes a 9-byte interface descriptor with a placeholder
// bNumEndpoints field, increments bNumInterfaces in the enclosing
// configuration (if any) when altSetting is 0, and records the
// endpoint-count offset for
// EndInterface.
func (w *Writer) BeginInterface(number, altSetting, class, subClass, protocol, stringIndex uint8) error {
	start := w.pos
	if err := w.Write(usb.DescInterface, []byte{
		number, altSetting,
		0, // bNumEndpoints placeholder
		class, subClass, protocol, stringIndex,
	}); err != nil {
		return err
	}
	w.curEndpointsMark = start + 4
	w.curInterfaceNum = number
	if w.numInterfacesMark >= 0 && altSetting == 0 {
		w.buf[w.numInterfacesMark]++
	}
	return nil
}

// EndInterface finalizes the current interface's bNumEndpoints field.
func (w *Writer) EndInterface() {
	w.curEndpointsMark = -1
}

// Endpoint writes a 7-byte endpoint descriptor and increments the
// enclosing interface's bNumEndpoints.
func (w *Writer) Endpoint(address usb.EndpointAddress, attributes uint8, maxPacketSize uint16, interval uint8) error {
	var mps [2]byte
	binary.LittleEndian.PutUint16(mps[:], maxPacketSize)
	if err := w.Write(usb.DescEndpoint, []byte{uint8(address), attributes, mps[0], mps[1], interval}); err != nil {
		return err
	}
	if w.curEndpointsMark >= 0 {
		w.buf[w.curEndpointsMark]++
	}
	return nil
}

// ConfigWriter implements allocator.ConfigVisitor over a Writer, so a
// class's Configure method can drive the descriptor pass through the exact
// same calls it used during the allocation pass. Interface numbers and
// string indices are read from the handles the allocation pass already
// filled in; ConfigWriter never assigns one itself.
type ConfigWriter struct {
	w *Writer
}

// NewConfigWriter wraps w for the descriptor pass.
func NewConfigWriter(w *Writer) *ConfigWriter {
	return &ConfigWriter{w: w}
}

// String implements allocator.ConfigVisitor; the string index was already
// assigned during the allocation pass, so there is nothing to do here.
func (c *ConfigWriter) String(*usb.StringHandle, string) error { return nil }

// BeginInterface implements allocator.ConfigVisitor, writing the interface
// descriptor using the number the allocation pass assigned to h.
func (c *ConfigWriter) BeginInterface(h *usb.InterfaceHandle, altSetting, class, subClass, protocol, stringIndex uint8) error {
	return c.w.BeginInterface(h.Number, altSetting, class, subClass, protocol, stringIndex)
}

// EndInterface implements allocator.ConfigVisitor.
func (c *ConfigWriter) EndInterface() { c.w.EndInterface() }

// Endpoint implements allocator.ConfigVisitor, writing the endpoint
// descriptor.
func (c *ConfigWriter) Endpoint(addr usb.EndpointAddress, transferType usb.TransferType, maxPacketSize uint16, interval uint8) error {
	return c.w.Endpoint(addr, uint8(transferType), maxPacketSize, interval)
}

// Descriptor writes an arbitrary class-specific descriptor. descType and
// the length prefix are written automatically; payload is everything after
// those two bytes.
func (w *Writer) Descriptor(descType uint8, payload []byte) error {
	return w.Write(descType, payload)
}

// WriteString appends a UTF-16LE string descriptor. Longer-than-255-byte
// strings are truncated to fit the one-byte length prefix.
func (w *Writer) WriteString(s string) error {
	runes := []rune(s)
	if max := (255 - 2) / 2; len(runes) > max {
		runes = runes[:max]
	}
	length := 2 + len(runes)*2
	if w.pos+length > len(w.buf) {
		return usberr.ErrBufferOverflow
	}
	w.buf[w.pos] = uint8(length)
	w.buf[w.pos+1] = usb.DescString
	for i, r := range runes {
		binary.LittleEndian.PutUint16(w.buf[w.pos+2+i*2:], uint16(r))
	}
	w.pos += length
	return nil
}

// WriteLanguages appends the string-index-0 language-ID descriptor.
func (w *Writer) WriteLanguages(langIDs ...uint16) error {
	length := 2 + len(langIDs)*2
	if w.pos+length > len(w.buf) {
		return usberr.ErrBufferOverflow
	}
	w.buf[w.pos] = uint8(length)
	w.buf[w.pos+1] = usb.DescString
	for i, id := range langIDs {
		binary.LittleEndian.PutUint16(w.buf[w.pos+2+i*2:], id)
	}
	w.pos += length
	return nil
}

// DeviceDescriptor holds the fixed fields of the 18-byte device descriptor.
type DeviceDescriptor struct {
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceRelease     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// DeviceDescriptorSize is the wire size of a device descriptor.
const DeviceDescriptorSize = 18

// MarshalTo writes the device descriptor to buf, returning bytes written or
// 0 if buf is too small.
func (d *DeviceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < DeviceDescriptorSize {
		return 0
	}
	buf[0] = DeviceDescriptorSize
	buf[1] = usb.DescDevice
	binary.LittleEndian.PutUint16(buf[2:4], d.USBVersion)
	buf[4] = d.DeviceClass
	buf[5] = d.DeviceSubClass
	buf[6] = d.DeviceProtocol
	buf[7] = d.MaxPacketSize0
	binary.LittleEndian.PutUint16(buf[8:10], d.VendorID)
	binary.LittleEndian.PutUint16(buf[10:12], d.ProductID)
	binary.LittleEndian.PutUint16(buf[12:14], d.DeviceRelease)
	buf[14] = d.ManufacturerIndex
	buf[15] = d.ProductIndex
	buf[16] = d.SerialNumberIndex
	buf[17] = d.NumConfigurations
	return DeviceDescriptorSize
}

// BOSWriter builds a Binary Object Store descriptor (USB 2.0 LPM / WebUSB
// device capabilities) with the same mark/back-patch shape as Writer.
type BOSWriter struct {
	buf            []byte
	pos            int
	totalLenMark   int
	numCapsMark    int
	numCaps        uint8
}

// NewBOSWriter wraps buf for BOS descriptor emission.
func NewBOSWriter(buf []byte) *BOSWriter {
	return &BOSWriter{buf: buf}
}

// Begin writes the 5-byte BOS header with placeholder wTotalLength and
// bNumDeviceCaps fields.
func (w *BOSWriter) Begin() error {
	if len(w.buf) < 5 {
		return usberr.ErrBufferOverflow
	}
	w.buf[0] = 5
	w.buf[1] = usb.DescBOS
	w.totalLenMark = 2
	w.numCapsMark = 4
	w.pos = 5
	return nil
}

// Capability appends a device capability descriptor.
func (w *BOSWriter) Capability(capType uint8, payload []byte) error {
	total := len(payload) + 3
	if w.pos+total > len(w.buf) {
		return usberr.ErrBufferOverflow
	}
	w.buf[w.pos] = uint8(total)
	w.buf[w.pos+1] = usb.DescDeviceCapability
	w.buf[w.pos+2] = capType
	copy(w.buf[w.pos+3:], payload)
	w.pos += total
	w.numCaps++
	return nil
}

// End back-patches wTotalLength and bNumDeviceCaps.
func (w *BOSWriter) End() {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(w.pos))
	copy(w.buf[w.totalLenMark:w.totalLenMark+2], lenBuf[:])
	w.buf[w.numCapsMark] = w.numCaps
}

// Len returns the number of bytes written so far.
func (w *BOSWriter) Len() int { return w.pos }

// Bytes returns the written prefix of the underlying buffer.
func (w *BOSWriter) Bytes() []byte { return w.buf[:w.pos] }
