// Package fifo implements an in-memory, non-blocking reference peripheral
// used by tests in place of real silicon. Each
// endpoint direction holds a single pending packet, mirroring the
// single-buffered FIFO a small microcontroller's USB core exposes; there is
// no double-buffering or hardware DMA to model.
//
// Host-side interaction (the part a real host controller plus cable would
// provide) is driven explicitly by test code through HostWriteSetup,
// HostWriteOut, and HostPeekIn/HostTakeIn, so a test can script an exact
// enumeration or transfer sequence byte-for-byte.
package fifo

import (
	"github.com/ardnew/usbdev/hal"
	"github.com/ardnew/usbdev/usb"
	"github.com/ardnew/usbdev/usberr"
)

const maxPacketBytes = 1024

// maxEndpoints bounds the endpoint numbers this peripheral can hold
// (EP0 plus 15 others).
const maxEndpoints = 16

type packetSlot struct {
	data [maxPacketBytes]byte
	len  int
	has  bool
}

func (p *packetSlot) set(b []byte) {
	p.len = copy(p.data[:], b)
	p.has = true
}

func (p *packetSlot) take() ([]byte, bool) {
	if !p.has {
		return nil, false
	}
	p.has = false
	return p.data[:p.len], true
}

type endpoint struct {
	configured bool
	cfg        hal.EndpointConfig
	stalled    bool
	out        packetSlot
	in         packetSlot

	// dropNext, when non-zero, causes the next dropNext writes to this
	// endpoint's data path (host OUT writes and device IN writes alike)
	// to be silently discarded instead of delivered, modeling isochronous
	// packet loss. Each drop decrements the counter.
	dropNext int
}

// Endpoint is the test-facing handle for one non-zero endpoint, returned
// by Peripheral.Endpoint so a test can inject packet loss without reaching
// into the HAL's internals.
type Endpoint struct {
	p    *Peripheral
	addr usb.EndpointAddress
}

// DropNext arranges for the next n packets written to this endpoint, by
// the host (OUT) or by the device (IN), to be silently dropped, simulating
// isochronous transfer
// loss. Non-isochronous endpoints accept the call but real hardware would
// never exhibit the behavior; callers should restrict it to isochronous
// endpoints under test.
func (e Endpoint) DropNext(n int) {
	ep := e.p.find(e.addr)
	if ep == nil {
		return
	}
	ep.dropNext = n
}

const eventQueueCap = 32

type eventQueue struct {
	buf   [eventQueueCap]hal.PollResult
	head  int
	count int
}

func (q *eventQueue) push(r hal.PollResult) {
	if q.count == eventQueueCap {
		return // queue full: the new event is dropped; queue depth is generous for test use
	}
	q.buf[(q.head+q.count)%eventQueueCap] = r
	q.count++
}

func (q *eventQueue) pop() (hal.PollResult, bool) {
	if q.count == 0 {
		return hal.PollResult{}, false
	}
	r := q.buf[q.head]
	q.head = (q.head + 1) % eventQueueCap
	q.count--
	return r, true
}

// Peripheral is an in-memory hal.Core implementation.
type Peripheral struct {
	speed          usb.Speed
	ep0MaxPacket   uint16
	address        uint8
	endpoints      [maxEndpoints]endpoint
	events         eventQueue
}

// NewPeripheral returns a peripheral reset to its power-on state, reporting
// speed as its negotiated connection speed once HostConnect is called. EP0
// answers every request with an 8-byte control max packet size, the
// smallest USB 2.0 allows and the value low-speed and many full-speed
// devices use.
func NewPeripheral(speed usb.Speed) *Peripheral {
	p := &Peripheral{speed: speed, ep0MaxPacket: 8}
	return p
}

// SetEP0MaxPacketSize overrides EP0's reported max packet size (8, 16, 32,
// or 64), matching the value a device.Builder configures.
func (p *Peripheral) SetEP0MaxPacketSize(size uint16) {
	p.ep0MaxPacket = size
}

// HostConnect simulates cable insertion and bus reset signaling, the
// condition a real core reports as EventReset.
func (p *Peripheral) HostConnect() {
	p.Reset()
	p.events.push(hal.PollResult{Event: hal.EventReset})
}

// HostSuspend and HostResume simulate bus suspend/resume signaling.
func (p *Peripheral) HostSuspend() { p.events.push(hal.PollResult{Event: hal.EventSuspend}) }
func (p *Peripheral) HostResume()  { p.events.push(hal.PollResult{Event: hal.EventResume}) }

// HostWriteSetup delivers an 8-byte SETUP packet to EP0 and queues
// EventSetupReceived.
func (p *Peripheral) HostWriteSetup(data []byte) {
	p.endpoints[0].out.set(data)
	p.events.push(hal.PollResult{Event: hal.EventSetupReceived})
}

// HostWriteOut delivers an OUT packet to the given endpoint number (0 for
// EP0) and queues EventDataOut. If the endpoint has a pending DropNext
// count, the packet is discarded and no event is queued.
func (p *Peripheral) HostWriteOut(number uint8, data []byte) {
	ep := &p.endpoints[number]
	if ep.dropNext > 0 {
		ep.dropNext--
		return
	}
	ep.out.set(data)
	p.events.push(hal.PollResult{Event: hal.EventDataOut, EndpointMask: 1 << number})
}

// HostTakeIn removes and returns the pending IN packet for the given
// endpoint number, simulating the host picking it up off the bus, and
// queues EventInComplete so the device stack can refill the buffer.
func (p *Peripheral) HostTakeIn(number uint8) ([]byte, bool) {
	ep := &p.endpoints[number]
	data, ok := ep.in.take()
	if ok {
		p.events.push(hal.PollResult{Event: hal.EventInComplete, EndpointMask: 1 << number})
	}
	return data, ok
}

// HostPeekIn reports the pending IN packet without consuming it.
func (p *Peripheral) HostPeekIn(number uint8) ([]byte, bool) {
	ep := &p.endpoints[number]
	if !ep.in.has {
		return nil, false
	}
	return ep.in.data[:ep.in.len], true
}

// Endpoint returns the test-facing handle for the given endpoint, used to
// inject packet loss via DropNext.
func (p *Peripheral) Endpoint(addr usb.EndpointAddress) Endpoint {
	return Endpoint{p: p, addr: addr}
}

func (p *Peripheral) find(addr usb.EndpointAddress) *endpoint {
	n := addr.Number()
	if n >= maxEndpoints {
		return nil
	}
	return &p.endpoints[n]
}

// Reset implements hal.Core. A bus reset clears protocol state - pending
// packets, stalls, and any isochronous drop schedule - but endpoint
// hardware configuration survives it, matching a real peripheral: the
// endpoint table is built once, typically during device construction, not
// torn down and rebuilt on every reset.
func (p *Peripheral) Reset() {
	p.address = 0
	for i := range p.endpoints {
		ep := &p.endpoints[i]
		ep.out = packetSlot{}
		ep.in = packetSlot{}
		ep.stalled = false
		ep.dropNext = 0
	}
	p.endpoints[0].configured = true
}

// SetAddress implements hal.Core.
func (p *Peripheral) SetAddress(addr uint8) error {
	if addr > 127 {
		return usberr.ErrInvalidState
	}
	p.address = addr
	return nil
}

// ConfigureEndpoint implements hal.Core.
func (p *Peripheral) ConfigureEndpoint(cfg hal.EndpointConfig) error {
	ep := p.find(cfg.Address)
	if ep == nil || cfg.Address.Number() == 0 {
		return usberr.ErrInvalidEndpoint
	}
	if int(cfg.MaxPacketSize) > maxPacketBytes {
		return usberr.ErrEndpointMemoryOverflow
	}
	ep.configured = true
	ep.cfg = cfg
	ep.out = packetSlot{}
	ep.in = packetSlot{}
	ep.stalled = false
	return nil
}

// DisableEndpoint implements hal.Core.
func (p *Peripheral) DisableEndpoint(addr usb.EndpointAddress) error {
	ep := p.find(addr)
	if ep == nil {
		return usberr.ErrInvalidEndpoint
	}
	*ep = endpoint{}
	return nil
}

// Speed implements hal.Core.
func (p *Peripheral) Speed() usb.Speed { return p.speed }

// Poll implements hal.Core.
func (p *Peripheral) Poll() hal.PollResult {
	r, ok := p.events.pop()
	if !ok {
		return hal.PollResult{Event: hal.EventNone}
	}
	return r
}

// EP0Out implements hal.Core.
func (p *Peripheral) EP0Out() hal.OutEndpoint { return outHalf{p: p, number: 0} }

// EP0In implements hal.Core.
func (p *Peripheral) EP0In() hal.InEndpoint { return inHalf{p: p, number: 0} }

// Out implements hal.Core.
func (p *Peripheral) Out(addr usb.EndpointAddress) hal.OutEndpoint {
	ep := p.find(addr)
	if ep == nil || !ep.configured {
		return nil
	}
	return outHalf{p: p, number: addr.Number()}
}

// In implements hal.Core.
func (p *Peripheral) In(addr usb.EndpointAddress) hal.InEndpoint {
	ep := p.find(addr)
	if ep == nil || !ep.configured {
		return nil
	}
	return inHalf{p: p, number: addr.Number()}
}

type outHalf struct {
	p      *Peripheral
	number uint8
}

func (o outHalf) Read(buf []byte) (int, error) {
	ep := &o.p.endpoints[o.number]
	data, ok := ep.out.take()
	if !ok {
		return 0, usberr.ErrWouldBlock
	}
	return copy(buf, data), nil
}

func (o outHalf) SetStall(stalled bool) { o.p.endpoints[o.number].stalled = stalled }
func (o outHalf) IsStalled() bool       { return o.p.endpoints[o.number].stalled }

type inHalf struct {
	p      *Peripheral
	number uint8
}

func (i inHalf) Write(buf []byte) error {
	ep := &i.p.endpoints[i.number]
	if ep.in.has {
		return usberr.ErrWouldBlock
	}
	if ep.dropNext > 0 {
		ep.dropNext--
		return nil
	}
	ep.in.set(buf)
	return nil
}

func (i inHalf) SetStall(stalled bool) { i.p.endpoints[i.number].stalled = stalled }
func (i inHalf) IsStalled() bool       { return i.p.endpoints[i.number].stalled }

func (i inHalf) MaxPacketSize() uint16 {
	if i.number == 0 {
		return i.p.ep0MaxPacket
	}
	return i.p.endpoints[i.number].cfg.MaxPacketSize
}
