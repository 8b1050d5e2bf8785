package descriptor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbdev/descriptor"
	"github.com/ardnew/usbdev/usb"
	"github.com/ardnew/usbdev/usberr"
)

func TestDeviceDescriptorMarshal(t *testing.T) {
	d := descriptor.DeviceDescriptor{
		USBVersion:        0x0200,
		DeviceClass:       0,
		MaxPacketSize0:    64,
		VendorID:          0x1234,
		ProductID:         0x5678,
		NumConfigurations: 1,
	}
	var buf [descriptor.DeviceDescriptorSize]byte
	n := d.MarshalTo(buf[:])
	require.Equal(t, descriptor.DeviceDescriptorSize, n)
	assert.Equal(t, uint8(18), buf[0])
	assert.Equal(t, uint8(usb.DescDevice), buf[1])
	assert.Equal(t, uint8(0x00), buf[2])
	assert.Equal(t, uint8(0x02), buf[3])
	assert.Equal(t, uint8(64), buf[7])
	assert.Equal(t, uint8(1), buf[17])
}

func TestDeviceDescriptorMarshalTooSmall(t *testing.T) {
	var d descriptor.DeviceDescriptor
	var buf [4]byte
	assert.Equal(t, 0, d.MarshalTo(buf[:]))
}

func TestConfigurationBackPatch(t *testing.T) {
	var buf [256]byte
	w := descriptor.NewWriter(buf[:])

	require.NoError(t, w.BeginConfiguration(1, 0x80, 50))
	require.NoError(t, w.BeginInterface(0, 0, 0xFF, 0, 0, 0))
	require.NoError(t, w.Endpoint(usb.NewEndpointAddress(1, usb.DirIn), 0x02, 64, 0))
	require.NoError(t, w.Endpoint(usb.NewEndpointAddress(1, usb.DirOut), 0x02, 64, 0))
	w.EndInterface()
	w.EndConfiguration()

	out := w.Bytes()
	require.Len(t, out, 9+9+7+7)

	totalLength := uint16(out[2]) | uint16(out[3])<<8
	assert.EqualValues(t, len(out), totalLength)
	assert.Equal(t, uint8(1), out[4]) // bNumInterfaces

	ifaceStart := 9
	assert.Equal(t, uint8(2), out[ifaceStart+4]) // bNumEndpoints
}

func TestMultiInterfaceCounting(t *testing.T) {
	var buf [256]byte
	w := descriptor.NewWriter(buf[:])

	require.NoError(t, w.BeginConfiguration(1, 0x80, 50))
	require.NoError(t, w.BeginInterface(0, 0, 0xFF, 0, 0, 0))
	w.EndInterface()
	require.NoError(t, w.BeginInterface(1, 0, 0xFF, 0, 0, 0))
	w.EndInterface()
	w.EndConfiguration()

	out := w.Bytes()
	assert.Equal(t, uint8(2), out[4])
}

func TestAlternateSettingDoesNotIncrementInterfaceCount(t *testing.T) {
	var buf [256]byte
	w := descriptor.NewWriter(buf[:])

	require.NoError(t, w.BeginConfiguration(1, 0x80, 50))
	require.NoError(t, w.BeginInterface(0, 0, 0xFF, 0, 0, 0))
	w.EndInterface()
	require.NoError(t, w.BeginInterface(0, 1, 0xFF, 0, 0, 0))
	w.EndInterface()
	w.EndConfiguration()

	out := w.Bytes()
	assert.Equal(t, uint8(1), out[4])
}

func TestConfigWriterRoutesToUnderlyingWriter(t *testing.T) {
	var buf [256]byte
	w := descriptor.NewWriter(buf[:])
	require.NoError(t, w.BeginConfiguration(1, 0x80, 50))

	cw := descriptor.NewConfigWriter(w)
	h := usb.InterfaceHandle{Number: 0}
	str := usb.StringHandle{Index: 4}

	require.NoError(t, cw.String(&str, "ignored on the descriptor pass"))
	require.NoError(t, cw.BeginInterface(&h, 0, 0xFF, 0, 0, str.Index))
	require.NoError(t, cw.Endpoint(usb.NewEndpointAddress(1, usb.DirOut), usb.TransferBulk, 64, 0))
	cw.EndInterface()
	w.EndConfiguration()

	out := w.Bytes()
	require.Len(t, out, 9+9+7)
	assert.Equal(t, uint8(1), out[4]) // bNumInterfaces
	ifaceStart := 9
	assert.Equal(t, uint8(0), out[ifaceStart+2])    // bInterfaceNumber
	assert.Equal(t, uint8(4), out[ifaceStart+8])    // iInterface
	assert.Equal(t, uint8(1), out[ifaceStart+4])    // bNumEndpoints
}

func TestWriteOverflow(t *testing.T) {
	var buf [5]byte
	w := descriptor.NewWriter(buf[:])
	err := w.BeginConfiguration(1, 0x80, 50)
	assert.ErrorIs(t, err, usberr.ErrBufferOverflow)
}

func TestStringDescriptor(t *testing.T) {
	var buf [64]byte
	w := descriptor.NewWriter(buf[:])
	require.NoError(t, w.WriteString("Hi"))
	out := w.Bytes()
	require.Len(t, out, 6)
	assert.Equal(t, uint8(6), out[0])
	assert.Equal(t, uint8(usb.DescString), out[1])
	assert.EqualValues(t, 'H', uint16(out[2])|uint16(out[3])<<8)
	assert.EqualValues(t, 'i', uint16(out[4])|uint16(out[5])<<8)
}

func TestLanguageDescriptor(t *testing.T) {
	var buf [8]byte
	w := descriptor.NewWriter(buf[:])
	require.NoError(t, w.WriteLanguages(usb.LangIDEnglishUS))
	out := w.Bytes()
	require.Len(t, out, 4)
	assert.Equal(t, uint8(4), out[0])
	assert.EqualValues(t, usb.LangIDEnglishUS, uint16(out[2])|uint16(out[3])<<8)
}

func TestBOSWriter(t *testing.T) {
	var buf [64]byte
	w := descriptor.NewBOSWriter(buf[:])
	require.NoError(t, w.Begin())
	require.NoError(t, w.Capability(0x02, []byte{0x00, 0x00, 0x00, 0x06}))
	w.End()

	out := w.Bytes()
	require.Len(t, out, 5+7)
	totalLength := uint16(out[2]) | uint16(out[3])<<8
	assert.EqualValues(t, len(out), totalLength)
	assert.Equal(t, uint8(1), out[4])
}
