package control_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbdev/control"
	"github.com/ardnew/usbdev/hal"
	"github.com/ardnew/usbdev/hal/fifo"
	"github.com/ardnew/usbdev/usb"
)

func newPipe(t *testing.T, mps uint16) (*control.Pipe, *fifo.Peripheral) {
	t.Helper()
	p := fifo.NewPeripheral(usb.SpeedFull)
	p.SetEP0MaxPacketSize(mps)
	p.Reset()
	var buf [256]byte
	pipe := control.NewPipe(buf[:], p.EP0Out(), p.EP0In())
	return pipe, p
}

func TestColdEnumerationGetDescriptor(t *testing.T) {
	pipe, peripheral := newPipe(t, 8)

	setup := []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x08, 0x00}
	peripheral.HostWriteSetup(setup)
	r := peripheral.Poll()
	require.Equal(t, hal.EventSetupReceived, r.Event)

	req, ready := pipe.HandleSetup()
	require.True(t, ready)
	assert.Equal(t, control.StateCompleteIn, pipe.State())
	assert.Equal(t, usb.DirIn, req.Direction())
	assert.EqualValues(t, usb.StdGetDescriptor, req.Request)

	deviceDesc := make([]byte, 18)
	for i := range deviceDesc {
		deviceDesc[i] = byte(i)
	}
	require.NoError(t, pipe.AcceptIn(deviceDesc))
	// First packet: 8 bytes (request length), exactly fills max packet
	// size, so the pipe has already scheduled a trailing ZLP.
	assert.Equal(t, control.StateDataInZlp, pipe.State())

	data, ok := peripheral.HostTakeIn(0)
	require.True(t, ok)
	assert.Equal(t, deviceDesc[:8], data)
	peripheral.Poll() // drain EventInComplete

	done, err := pipe.HandleInComplete()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, control.StateDataInLast, pipe.State())

	zlp, ok := peripheral.HostTakeIn(0)
	require.True(t, ok)
	assert.Empty(t, zlp)
	peripheral.Poll()

	done, err = pipe.HandleInComplete()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, control.StateStatusOut, pipe.State())

	peripheral.HostWriteOut(0, nil)
	peripheral.Poll()
	_, _, err = pipe.HandleOut()
	require.NoError(t, err)
	assert.Equal(t, control.StateIdle, pipe.State())
}

func TestSetAddressOutTransferNoDataStage(t *testing.T) {
	pipe, peripheral := newPipe(t, 8)

	setup := []byte{0x00, 0x05, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00}
	peripheral.HostWriteSetup(setup)
	peripheral.Poll()

	req, ready := pipe.HandleSetup()
	require.True(t, ready)
	assert.EqualValues(t, usb.StdSetAddress, req.Request)
	assert.Equal(t, control.StateCompleteOut, pipe.State())

	require.NoError(t, pipe.AcceptOut())
	assert.Equal(t, control.StateStatusIn, pipe.State())

	_, ok := peripheral.HostTakeIn(0)
	require.True(t, ok)
	peripheral.Poll()

	done, err := pipe.HandleInComplete()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, control.StateIdle, pipe.State())
}

func TestOutTransferWithDataStage(t *testing.T) {
	pipe, peripheral := newPipe(t, 8)

	// A standard SET_DESCRIPTOR request (bmRequestType 0x00) carrying 4 bytes of data.
	setup := []byte{0x00, 0x07, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00}
	peripheral.HostWriteSetup(setup)
	peripheral.Poll()

	_, ready := pipe.HandleSetup()
	assert.False(t, ready)
	assert.Equal(t, control.StateDataOut, pipe.State())

	peripheral.HostWriteOut(0, []byte{1, 2, 3, 4})
	peripheral.Poll()

	req, done, err := pipe.HandleOut()
	require.NoError(t, err)
	require.True(t, done)
	assert.EqualValues(t, 0x07, req.Request)
	assert.Equal(t, []byte{1, 2, 3, 4}, pipe.Data())
	assert.Equal(t, control.StateCompleteOut, pipe.State())
}

func TestRejectStallsBothDirections(t *testing.T) {
	pipe, peripheral := newPipe(t, 8)

	setup := []byte{0x80, 0x06, 0x00, 0x03, 0x00, 0x00, 0xFF, 0x00}
	peripheral.HostWriteSetup(setup)
	peripheral.Poll()
	pipe.HandleSetup()

	require.NoError(t, pipe.Reject())
	assert.Equal(t, control.StateError, pipe.State())
	assert.True(t, peripheral.EP0Out().IsStalled())
	assert.True(t, peripheral.EP0In().IsStalled())
}

func TestRejectOutsideWaitingStateFails(t *testing.T) {
	pipe, _ := newPipe(t, 8)
	assert.Error(t, pipe.Reject())
}
