package allocator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbdev/allocator"
	"github.com/ardnew/usbdev/usb"
	"github.com/ardnew/usbdev/usberr"
)

func TestStringAllocationStartsAtFour(t *testing.T) {
	a := allocator.New()
	h1, h2 := *usb.NewStringHandle(), *usb.NewStringHandle()
	require.NoError(t, a.String(&h1, "one"))
	require.NoError(t, a.String(&h2, "two"))
	assert.EqualValues(t, 4, h1.Index)
	assert.EqualValues(t, 5, h2.Index)
}

func TestStringDoubleAssignRejected(t *testing.T) {
	a := allocator.New()
	h := *usb.NewStringHandle()
	require.NoError(t, a.String(&h, "one"))
	assert.ErrorIs(t, a.String(&h, "again"), usberr.ErrDuplicateConfig)
}

func TestInterfaceNumbersStartAtZero(t *testing.T) {
	a := allocator.New()
	h0, h1 := *usb.NewInterfaceHandle(), *usb.NewInterfaceHandle()
	require.NoError(t, a.BeginInterface(&h0, 0, 0xFF, 0, 0, 0))
	require.NoError(t, a.BeginInterface(&h1, 0, 0xFF, 0, 0, 0))
	assert.EqualValues(t, 0, h0.Number)
	assert.EqualValues(t, 1, h1.Number)
	assert.EqualValues(t, 2, a.NumInterfaces())
}

func TestAlternateSettingRequiresPriorAllocation(t *testing.T) {
	a := allocator.New()
	h := *usb.NewInterfaceHandle()
	err := a.BeginInterface(&h, 1, 0xFF, 0, 0, 0)
	assert.ErrorIs(t, err, usberr.ErrInvalidState)
}

func TestAlternateSettingRegistersAgainstSameNumber(t *testing.T) {
	a := allocator.New()
	h := *usb.NewInterfaceHandle()
	require.NoError(t, a.BeginInterface(&h, 0, 0xFF, 0, 0, 0))
	require.NoError(t, a.BeginInterface(&h, 1, 0xFF, 0, 0, 0))
	assert.True(t, a.IsRegistered(h.Number, 0))
	assert.True(t, a.IsRegistered(h.Number, 1))
	assert.False(t, a.IsRegistered(h.Number, 2))
	assert.EqualValues(t, 1, a.MaxAltSetting(h.Number))
}

func TestDuplicateAltSettingRejected(t *testing.T) {
	a := allocator.New()
	h := *usb.NewInterfaceHandle()
	require.NoError(t, a.BeginInterface(&h, 0, 0xFF, 0, 0, 0))
	assert.ErrorIs(t, a.BeginInterface(&h, 0, 0xFF, 0, 0, 0), usberr.ErrDuplicateConfig)
}

func TestDuplicateEndpointRejected(t *testing.T) {
	a := allocator.New()
	addr := usb.NewEndpointAddress(1, usb.DirOut)
	require.NoError(t, a.Endpoint(addr, usb.TransferBulk, 64, 0))
	assert.ErrorIs(t, a.Endpoint(addr, usb.TransferBulk, 64, 0), usberr.ErrDuplicateConfig)
}

func TestDistinctEndpointsAccepted(t *testing.T) {
	a := allocator.New()
	out := usb.NewEndpointAddress(1, usb.DirOut)
	in := usb.NewEndpointAddress(1, usb.DirIn)
	require.NoError(t, a.Endpoint(out, usb.TransferBulk, 64, 0))
	require.NoError(t, a.Endpoint(in, usb.TransferBulk, 64, 0))
}
