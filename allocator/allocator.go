// Package allocator assigns the interface numbers, alternate settings, and
// string indices a class references through usb.InterfaceHandle and
// usb.StringHandle. Allocation happens once, in a single pass over every
// registered class, before the device ever answers a GET_DESCRIPTOR or
// SET_INTERFACE request; the device and class packages read the handles
// Allocator fills in but never allocate themselves.
package allocator

import (
	"github.com/ardnew/usbdev/usb"
	"github.com/ardnew/usbdev/usberr"
)

// Reserved string indices; class-allocated strings start at firstString.
const (
	ManufacturerString = 1
	ProductString      = 2
	SerialNumberString = 3
	firstString        = 4
)

// maxInterfaceRegistrations bounds how many (interface, alt setting) pairs
// a single device can register across all classes and alt settings.
const maxInterfaceRegistrations = 64

// maxEndpointRegistrations bounds how many endpoint addresses a single
// device can register across all classes.
const maxEndpointRegistrations = 32

// ConfigVisitor is implemented by both Allocator and descriptor.ConfigWriter.
// A class's Configure method takes a ConfigVisitor and drives it through the
// same sequence of calls regardless of which pass is running: the
// allocation pass (v is an *Allocator) assigns interface numbers, alt
// settings, and string indices and registers endpoints; the descriptor pass
// (v is a *descriptor.ConfigWriter) emits the interface/endpoint descriptor
// bytes using the handles the allocation pass already filled in. A class
// never branches on which pass is running - every field it needs (packet
// size, transfer type, interval) is stated once, in the arguments to the
// Endpoint call both passes share.
type ConfigVisitor interface {
	// String assigns h the next available string index on the
	// allocation pass. value is retained only for classes that want to
	// log it; neither implementation stores the string itself.
	String(h *usb.StringHandle, value string) error

	// BeginInterface assigns h an interface number when altSetting is 0,
	// or validates that h already has a number when altSetting is
	// nonzero (registering an additional alternate setting for an
	// interface allocated earlier in the same pass). class, subClass,
	// protocol, and stringIndex are ignored by the allocation pass and
	// written into the interface descriptor by the descriptor pass.
	BeginInterface(h *usb.InterfaceHandle, altSetting, class, subClass, protocol, stringIndex uint8) error

	// EndInterface closes the interface opened by the most recent
	// BeginInterface call.
	EndInterface()

	// Endpoint registers addr with the given transfer type, max packet
	// size, and polling interval. The allocation pass rejects a second
	// registration of the same address; the descriptor pass writes the
	// endpoint descriptor.
	Endpoint(addr usb.EndpointAddress, transferType usb.TransferType, maxPacketSize uint16, interval uint8) error
}

// registration records one valid (interface number, alt setting) pair, so
// the device's SET_INTERFACE handler can reject a pair no class ever
// registered.
type registration struct {
	number     uint8
	altSetting uint8
}

// Allocator is the concrete ConfigVisitor used for the allocation pass at
// device build time.
type Allocator struct {
	nextString    uint8
	nextInterface uint8
	registrations [maxInterfaceRegistrations]registration
	numRegistered int

	endpoints    [maxEndpointRegistrations]usb.EndpointAddress
	numEndpoints int
}

// New returns an allocator ready to assign the first class-allocated
// string index (4) and the first interface number (0).
func New() *Allocator {
	return &Allocator{nextString: firstString}
}

// String implements ConfigVisitor.
func (a *Allocator) String(h *usb.StringHandle, _ string) error {
	if h.IsAssigned() {
		return usberr.ErrDuplicateConfig
	}
	h.Index = a.nextString
	a.nextString++
	return nil
}

// BeginInterface implements ConfigVisitor. class, subClass, protocol, and
// stringIndex are the descriptor pass's concern; the allocation pass only
// assigns and validates h.
func (a *Allocator) BeginInterface(h *usb.InterfaceHandle, altSetting, _, _, _, _ uint8) error {
	if altSetting == 0 {
		if h.IsAssigned() {
			return usberr.ErrDuplicateConfig
		}
		h.Number = a.nextInterface
		a.nextInterface++
	} else if !h.IsAssigned() {
		// An alternate setting must be registered after its interface's
		// alt setting 0, in the same Configure call.
		return usberr.ErrInvalidState
	}
	return a.register(h.Number, altSetting)
}

// EndInterface implements ConfigVisitor. The allocation pass needs no
// closing action; only the descriptor pass's bNumEndpoints back-patch
// cares where an interface ends.
func (a *Allocator) EndInterface() {}

// Endpoint implements ConfigVisitor, rejecting a second registration of the
// same address. transferType, maxPacketSize, and interval are the
// descriptor pass's concern; the allocation pass only guards against a
// duplicate address, the same way register guards interface numbers.
func (a *Allocator) Endpoint(addr usb.EndpointAddress, _ usb.TransferType, _ uint16, _ uint8) error {
	for i := 0; i < a.numEndpoints; i++ {
		if a.endpoints[i] == addr {
			return usberr.ErrDuplicateConfig
		}
	}
	if a.numEndpoints == maxEndpointRegistrations {
		return usberr.ErrEndpointMemoryOverflow
	}
	a.endpoints[a.numEndpoints] = addr
	a.numEndpoints++
	return nil
}

func (a *Allocator) register(number, altSetting uint8) error {
	for i := 0; i < a.numRegistered; i++ {
		if a.registrations[i].number == number && a.registrations[i].altSetting == altSetting {
			return usberr.ErrDuplicateConfig
		}
	}
	if a.numRegistered == maxInterfaceRegistrations {
		return usberr.ErrEndpointMemoryOverflow
	}
	a.registrations[a.numRegistered] = registration{number: number, altSetting: altSetting}
	a.numRegistered++
	return nil
}

// IsRegistered reports whether number/altSetting was registered by some
// class's Configure call. The device's SET_INTERFACE handler uses this to
// give every alternate setting - not just alt setting 0 - full validation.
func (a *Allocator) IsRegistered(number, altSetting uint8) bool {
	for i := 0; i < a.numRegistered; i++ {
		if a.registrations[i].number == number && a.registrations[i].altSetting == altSetting {
			return true
		}
	}
	return false
}

// NumInterfaces returns the count of distinct interface numbers allocated
// (i.e. the number of alt-setting-0 registrations).
func (a *Allocator) NumInterfaces() uint8 { return a.nextInterface }

// MaxAltSetting returns the highest alternate setting registered for the
// given interface number, or 0 if the interface has no alternates beyond
// the default.
func (a *Allocator) MaxAltSetting(number uint8) uint8 {
	var max uint8
	for i := 0; i < a.numRegistered; i++ {
		if a.registrations[i].number == number && a.registrations[i].altSetting > max {
			max = a.registrations[i].altSetting
		}
	}
	return max
}
