package class_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbdev/allocator"
	"github.com/ardnew/usbdev/class"
	"github.com/ardnew/usbdev/control"
	"github.com/ardnew/usbdev/hal"
	"github.com/ardnew/usbdev/hal/fifo"
	"github.com/ardnew/usbdev/usb"
)

type recordingClass struct {
	class.Base
	name       string
	resetCount int
	polled     bool
	consumeOut bool
	consumeIn  bool
	sawOut     bool
	strings    map[uint8]string
}

func (c *recordingClass) Reset() { c.resetCount++ }
func (c *recordingClass) Poll()  { c.polled = true }

func (c *recordingClass) ControlOut(xfer *class.ControlOut) {
	c.sawOut = true
	if c.consumeOut {
		_ = xfer.Accept()
	}
}

func (c *recordingClass) ControlIn(xfer *class.ControlIn) {
	if c.consumeIn {
		_ = xfer.Accept([]byte("ok"))
	}
}

func (c *recordingClass) GetString(index usb.StringHandle, _ uint16) (string, bool) {
	s, ok := c.strings[index.Index]
	return s, ok
}

func TestListBroadcastsResetAndPoll(t *testing.T) {
	a := &recordingClass{name: "a"}
	b := &recordingClass{name: "b"}
	l := class.List{a, b}

	l.Reset()
	l.Poll()

	assert.Equal(t, 1, a.resetCount)
	assert.Equal(t, 1, b.resetCount)
	assert.True(t, a.polled)
	assert.True(t, b.polled)
}

func TestListFirstRefusalStopsDispatch(t *testing.T) {
	a := &recordingClass{name: "a"}
	b := &recordingClass{name: "b", consumeOut: true}
	c := &recordingClass{name: "c", consumeOut: true}
	l := class.List{a, b, c}

	peripheral := fifo.NewPeripheral(usb.SpeedFull)
	peripheral.Reset()
	var buf [64]byte
	pipe := control.NewPipe(buf[:], peripheral.EP0Out(), peripheral.EP0In())

	peripheral.HostWriteSetup([]byte{0x00, 0x09, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00})
	peripheral.Poll()
	req, ready := pipe.HandleSetup()
	require.True(t, ready)

	xfer := class.NewControlOut(pipe, req)
	l.ControlOut(xfer)

	assert.True(t, xfer.Consumed())
	assert.True(t, a.sawOut)
	assert.True(t, b.sawOut)
	// c never saw the transfer: b already consumed it.
	assert.False(t, c.sawOut)
	assert.Equal(t, control.StateStatusIn, pipe.State())
}

func TestListGetStringFirstMatchWins(t *testing.T) {
	a := &recordingClass{strings: map[uint8]string{4: "from-a"}}
	b := &recordingClass{strings: map[uint8]string{4: "from-b"}}
	l := class.List{a, b}

	s, ok := l.GetString(usb.StringHandle{Index: 4}, usb.LangIDEnglishUS)
	require.True(t, ok)
	assert.Equal(t, "from-a", s)
}

func TestListGetStringNoMatch(t *testing.T) {
	a := &recordingClass{strings: map[uint8]string{}}
	l := class.List{a}

	_, ok := l.GetString(usb.StringHandle{Index: 9}, usb.LangIDEnglishUS)
	assert.False(t, ok)
}

type configuringClass struct {
	class.Base
	iface usb.InterfaceHandle
}

func (c *configuringClass) Configure(v allocator.ConfigVisitor, _ hal.Core) error {
	return v.BeginInterface(&c.iface, 0, 0xFF, 0x00, 0x00, 0)
}

func TestListConfigureAssignsInterfaceNumbers(t *testing.T) {
	a := &configuringClass{iface: *usb.NewInterfaceHandle()}
	b := &configuringClass{iface: *usb.NewInterfaceHandle()}
	l := class.List{a, b}

	alloc := allocator.New()
	peripheral := fifo.NewPeripheral(usb.SpeedFull)
	require.NoError(t, l.Configure(alloc, peripheral))

	assert.EqualValues(t, 0, a.iface.Number)
	assert.EqualValues(t, 1, b.iface.Number)
}
