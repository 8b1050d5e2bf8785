// Package control implements the EP0 control-transfer state machine: SETUP
// parsing, the DATA and STATUS stage bookkeeping, and early termination via
// a short IN packet or a host-issued early STATUS stage.
package control

import (
	"github.com/ardnew/usbdev/hal"
	"github.com/ardnew/usbdev/internal/telemetry"
	"github.com/ardnew/usbdev/usb"
	"github.com/ardnew/usbdev/usberr"
)

// State is the control pipe's position in the SETUP/DATA/STATUS sequence.
type State uint8

// States, in the order a successful OUT transfer with a data stage visits
// them: Idle -> DataOut -> CompleteOut -> StatusIn -> Idle. A successful IN
// transfer visits Idle -> CompleteIn -> DataIn -> [DataInZlp] -> DataInLast
// -> StatusOut -> Idle.
const (
	StateIdle State = iota
	StateDataOut
	StateCompleteOut
	StateDataIn
	StateDataInZlp
	StateDataInLast
	StateCompleteIn
	StateStatusIn
	StateStatusOut
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDataOut:
		return "data-out"
	case StateCompleteOut:
		return "complete-out"
	case StateDataIn:
		return "data-in"
	case StateDataInZlp:
		return "data-in-zlp"
	case StateDataInLast:
		return "data-in-last"
	case StateCompleteIn:
		return "complete-in"
	case StateStatusIn:
		return "status-in"
	case StateStatusOut:
		return "status-out"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Pipe drives EP0 through one control transfer at a time. It never
// allocates: buf is supplied by the caller and reused across transfers.
type Pipe struct {
	out hal.OutEndpoint
	in  hal.InEndpoint

	state State
	req   usb.Request

	buf     []byte
	i       int
	length  int
}

// NewPipe wraps the EP0 OUT/IN endpoint halves. buf bounds the largest
// control transfer data stage the pipe can hold.
func NewPipe(buf []byte, out hal.OutEndpoint, in hal.InEndpoint) *Pipe {
	return &Pipe{out: out, in: in, buf: buf}
}

// Reset returns the pipe to State Idle, as happens on every USB bus reset.
func (p *Pipe) Reset() { p.state = StateIdle }

// State returns the pipe's current state.
func (p *Pipe) State() State { return p.state }

// Request returns the most recently parsed SETUP request. Only meaningful
// once the pipe has left StateIdle.
func (p *Pipe) Request() *usb.Request { return &p.req }

// Data returns the data stage of an OUT transfer, sized to the request's
// declared length; it holds the received bytes once the pipe reaches
// StateCompleteOut.
func (p *Pipe) Data() []byte { return p.buf[:p.length] }

// WaitingForResponse reports whether a class or the standard handler owes
// this pipe a call to Accept/Reject before it can make further progress.
func (p *Pipe) WaitingForResponse() bool {
	return p.state == StateCompleteOut || p.state == StateCompleteIn
}

// HandleSetup reads a pending SETUP packet and advances the state machine.
// It returns the parsed request and true when the transfer is ready to be
// dispatched immediately (no data stage, or an IN transfer where the
// caller supplies the data); it returns false while still waiting on an
// OUT data stage.
//
// A SETUP packet that does not parse as a request is silently ignored. An
// OUT request whose data stage would not fit the pipe's buffer stalls the
// pipe.
func (p *Pipe) HandleSetup() (usb.Request, bool) {
	n, err := p.out.Read(p.buf)
	if err != nil {
		return usb.Request{}, false
	}

	var req usb.Request
	if !usb.ParseRequest(p.buf[:n], &req) {
		return usb.Request{}, false
	}

	p.out.SetStall(false)

	if req.Direction() == usb.DirOut {
		if req.Length > 0 {
			if int(req.Length) > len(p.buf) {
				p.setError()
				return usb.Request{}, false
			}
			p.i = 0
			p.length = int(req.Length)
			p.req = req
			p.state = StateDataOut
			return usb.Request{}, false
		}
		p.length = 0
		p.req = req
		p.state = StateCompleteOut
		return req, true
	}

	p.req = req
	p.state = StateCompleteIn
	return req, true
}

// HandleOut processes an OUT packet on EP0 outside of the SETUP stage. It
// returns the completed request once the data stage finishes.
func (p *Pipe) HandleOut() (usb.Request, bool, error) {
	switch p.state {
	case StateDataOut:
		n, err := p.out.Read(p.buf[p.i:])
		if err == usberr.ErrWouldBlock {
			return usb.Request{}, false, nil
		}
		if err != nil {
			p.setError()
			return usb.Request{}, false, nil
		}
		p.i += n
		if p.i > p.length {
			p.setError()
			return usb.Request{}, false, nil
		}
		if p.i >= p.length {
			p.state = StateCompleteOut
			return p.req, true, nil
		}
		return usb.Request{}, false, nil

	case StateDataIn, StateDataInLast, StateDataInZlp, StateStatusOut:
		// The host may terminate a DATA-IN stage early by sending a
		// zero-length STATUS packet.
		if _, err := p.out.Read(nil); err != nil && err != usberr.ErrWouldBlock {
			return usb.Request{}, false, err
		}
		p.state = StateIdle
		return usb.Request{}, false, nil

	default:
		if _, err := p.out.Read(nil); err != nil && err != usberr.ErrWouldBlock {
			return usb.Request{}, false, err
		}
		p.setError()
		return usb.Request{}, false, nil
	}
}

// HandleInComplete processes an IN-complete indication on EP0. It returns
// true once the entire control transfer (through its STATUS stage) has
// finished.
func (p *Pipe) HandleInComplete() (bool, error) {
	switch p.state {
	case StateDataIn:
		return false, p.writeInChunk()
	case StateDataInZlp:
		if err := p.in.Write(nil); err != nil {
			return false, err
		}
		p.state = StateDataInLast
		return false, nil
	case StateDataInLast:
		p.out.SetStall(false)
		p.state = StateStatusOut
		return false, nil
	case StateStatusIn:
		p.state = StateIdle
		return true, nil
	case StateIdle:
		// We may have already transitioned back to Idle before the
		// last IN-complete indication for the previous transfer
		// arrived; ignore it.
	default:
		// Stray IN-complete indications in other states don't drive
		// any further behavior.
	}
	return false, nil
}

func (p *Pipe) writeInChunk() error {
	mps := int(p.in.MaxPacketSize())
	end := p.i + mps
	if end > p.length {
		end = p.length
	}
	chunk := p.buf[p.i:end]
	if err := p.in.Write(chunk); err != nil {
		return err
	}
	n := len(chunk)
	p.i += n

	if p.i >= p.length {
		if n == mps {
			// Exactly filled the last packet: the host can't tell a
			// short packet from more data coming, so send a trailing
			// ZLP to mark the transfer's end.
			p.state = StateDataInZlp
		} else {
			p.state = StateDataInLast
		}
	}
	return nil
}

// AcceptOut completes a pending OUT transfer (CompleteOut) by starting the
// STATUS stage.
func (p *Pipe) AcceptOut() error {
	if p.state != StateCompleteOut {
		return usberr.ErrInvalidState
	}
	if err := p.in.Write(nil); err != nil {
		return err
	}
	p.state = StateStatusIn
	return nil
}

// AcceptIn completes a pending IN transfer (CompleteIn) with data, copying
// at most req.Length bytes and starting the DATA-IN stage.
func (p *Pipe) AcceptIn(data []byte) error {
	if p.state != StateCompleteIn {
		return usberr.ErrInvalidState
	}
	if len(data) > len(p.buf) {
		p.setError()
		return usberr.ErrBufferOverflow
	}
	n := copy(p.buf, data)
	return p.startInTransfer(n)
}

func (p *Pipe) startInTransfer(dataLen int) error {
	length := dataLen
	if int(p.req.Length) < length {
		length = int(p.req.Length)
	}
	p.length = length
	p.i = 0
	p.state = StateDataIn
	return p.writeInChunk()
}

// Reject stalls the pipe, rejecting a pending transfer. Valid only while
// WaitingForResponse is true.
func (p *Pipe) Reject() error {
	if !p.WaitingForResponse() {
		return usberr.ErrInvalidState
	}
	p.setError()
	return nil
}

func (p *Pipe) setError() {
	telemetry.Warn(telemetry.ComponentControl, "control transfer stalled", "from", p.state.String())
	p.state = StateError
	p.out.SetStall(true)
	p.in.SetStall(true)
}
