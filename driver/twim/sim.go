package twim

import (
	"fmt"
	"unsafe"
)

// Target services bus transactions behind a Simulator. For a plain
// write r is nil, for a plain read w is nil, and for a combined
// write-then-read both are set. The target fills r with its response.
type Target interface {
	Tx(addr uint8, w, r []byte)
}

// TargetFunc adapts a function to the Target interface.
type TargetFunc func(addr uint8, w, r []byte)

func (f TargetFunc) Tx(addr uint8, w, r []byte) { f(addr, w, r) }

// Simulator models a TWIM register block and the bus target behind
// it, for exercising the driver without hardware. It implements
// Instance synchronously: a triggered task completes, raises its
// events and follows the shortcut mask before Trigger returns, and
// the "DMA engine" moves bytes through the programmed pointer
// registers.
type Simulator struct {
	// Target services transfers. Nil leaves receive buffers untouched.
	Target Target

	// Writes records every register write in program order, as
	// "NAME=value" strings.
	Writes []string
	// Polls counts event flag reads per event.
	Polls map[Event]int

	// ShortTxBy and ShortRxBy lower the reported transfer amounts,
	// simulating a truncated transfer.
	ShortTxBy uint32
	ShortRxBy uint32

	addr   uint8
	txPtr  uintptr
	txMax  uint32
	rxPtr  uintptr
	rxMax  uint32
	txAmt  uint32
	rxAmt  uint32
	shorts Shorts
	events [3]bool
}

var _ Instance = (*Simulator)(nil)

func (s *Simulator) record(reg string, val uint32) {
	s.Writes = append(s.Writes, fmt.Sprintf("%s=%#x", reg, val))
}

func (s *Simulator) Configure(f Frequency) {
	s.record("ENABLE", enableValue)
	s.record("FREQUENCY", uint32(f))
}

func (s *Simulator) SetAddress(addr uint8) {
	s.addr = addr
	s.record("ADDRESS", uint32(addr))
}

func (s *Simulator) SetTxBuffer(ptr uintptr, n uint32) {
	s.txPtr, s.txMax = ptr, n
	// The PTR register is 32 bits wide; the record keeps the low half.
	s.record("TXD.PTR", uint32(ptr))
	s.record("TXD.MAXCNT", n)
}

func (s *Simulator) SetRxBuffer(ptr uintptr, n uint32) {
	s.rxPtr, s.rxMax = ptr, n
	s.record("RXD.PTR", uint32(ptr))
	s.record("RXD.MAXCNT", n)
}

func (s *Simulator) TxAmount() uint32 { return s.txAmt }
func (s *Simulator) RxAmount() uint32 { return s.rxAmt }

func (s *Simulator) Trigger(t Task) {
	switch t {
	case TaskStartRx:
		s.record("TASKS_STARTRX", trigger)
		s.startRx()
	case TaskStartTx:
		s.record("TASKS_STARTTX", trigger)
		s.startTx()
	case TaskStop:
		s.record("TASKS_STOP", trigger)
		s.events[EventStopped] = true
	}
}

func (s *Simulator) startTx() {
	w := dmaSlice(s.txPtr, s.txMax)
	if s.shorts&ShortLastTxStartRx != 0 {
		// Combined transfer: the receive phase chains directly onto
		// the last transmitted byte.
		r := dmaSlice(s.rxPtr, s.rxMax)
		if s.Target != nil {
			s.Target.Tx(s.addr, w, r)
		}
		s.txAmt = shorten(s.txMax, s.ShortTxBy)
		s.rxAmt = shorten(s.rxMax, s.ShortRxBy)
		s.events[EventLastTx] = true
		s.events[EventLastRx] = true
		if s.shorts&ShortLastRxStop != 0 {
			s.events[EventStopped] = true
		}
		return
	}
	if s.Target != nil {
		s.Target.Tx(s.addr, w, nil)
	}
	s.txAmt = shorten(s.txMax, s.ShortTxBy)
	s.events[EventLastTx] = true
}

func (s *Simulator) startRx() {
	r := dmaSlice(s.rxPtr, s.rxMax)
	if s.Target != nil {
		s.Target.Tx(s.addr, nil, r)
	}
	s.rxAmt = shorten(s.rxMax, s.ShortRxBy)
	s.events[EventLastRx] = true
	if s.shorts&ShortLastRxStop != 0 {
		s.events[EventStopped] = true
	}
}

func (s *Simulator) Event(e Event) bool {
	if s.Polls == nil {
		s.Polls = make(map[Event]int)
	}
	s.Polls[e]++
	return s.events[e]
}

func (s *Simulator) ClearEvent(e Event) {
	s.events[e] = false
	s.record("EVENTS_"+eventName(e), 0)
}

func (s *Simulator) SetShorts(v Shorts) {
	s.shorts = v
	s.record("SHORTS", uint32(v))
}

func eventName(e Event) string {
	switch e {
	case EventStopped:
		return "STOPPED"
	case EventLastTx:
		return "LASTTX"
	case EventLastRx:
		return "LASTRX"
	}
	return "UNKNOWN"
}

func shorten(n, by uint32) uint32 {
	if by > n {
		return 0
	}
	return n - by
}

// dmaSlice recovers the buffer behind a DMA pointer register, playing
// the part of the EasyDMA engine.
func dmaSlice(ptr uintptr, n uint32) []byte {
	if ptr == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
}
