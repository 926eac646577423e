//go:build tinygo

package twim

import (
	"errors"
	"runtime/volatile"
	"sync"
	"unsafe"
)

// regs is the TWIM register block, laid out per the nRF52832 product
// specification, section 33.6.
type regs struct {
	TASKS_STARTRX    volatile.Register32 // 0x000
	_                uint32
	TASKS_STARTTX    volatile.Register32 // 0x008
	_                [2]uint32
	TASKS_STOP       volatile.Register32 // 0x014
	_                uint32
	TASKS_SUSPEND    volatile.Register32 // 0x01c
	TASKS_RESUME     volatile.Register32 // 0x020
	_                [56]uint32
	EVENTS_STOPPED   volatile.Register32 // 0x104
	_                [7]uint32
	EVENTS_ERROR     volatile.Register32 // 0x124
	_                [8]uint32
	EVENTS_SUSPENDED volatile.Register32 // 0x148
	EVENTS_RXSTARTED volatile.Register32 // 0x14c
	EVENTS_TXSTARTED volatile.Register32 // 0x150
	_                [2]uint32
	EVENTS_LASTRX    volatile.Register32 // 0x15c
	EVENTS_LASTTX    volatile.Register32 // 0x160
	_                [39]uint32
	SHORTS           volatile.Register32 // 0x200
	_                [63]uint32
	INTEN            volatile.Register32 // 0x300
	INTENSET         volatile.Register32 // 0x304
	INTENCLR         volatile.Register32 // 0x308
	_                [110]uint32
	ERRORSRC         volatile.Register32 // 0x4c4
	_                [14]uint32
	ENABLE           volatile.Register32 // 0x500
	_                uint32
	PSEL_SCL         volatile.Register32 // 0x508
	PSEL_SDA         volatile.Register32 // 0x50c
	_                [5]uint32
	FREQUENCY        volatile.Register32 // 0x524
	_                [3]uint32
	RXD_PTR          volatile.Register32 // 0x534
	RXD_MAXCNT       volatile.Register32 // 0x538
	RXD_AMOUNT       volatile.Register32 // 0x53c
	RXD_LIST         volatile.Register32 // 0x540
	TXD_PTR          volatile.Register32 // 0x544
	TXD_MAXCNT       volatile.Register32 // 0x548
	TXD_AMOUNT       volatile.Register32 // 0x54c
	TXD_LIST         volatile.Register32 // 0x550
	_                [13]uint32
	ADDRESS          volatile.Register32 // 0x588
}

const (
	twim0Base uintptr = 0x4000_3000
	twim1Base uintptr = 0x4000_4000
)

var (
	mu sync.Mutex
	// acquired tracks the bitset of handed-out instances.
	acquired uint8
)

// Periph is the capability handle to one hardware TWIM peripheral.
type Periph struct {
	r *regs
}

var _ Instance = (*Periph)(nil)

// TWIM0 hands out the capability for the first TWIM instance. It
// fails once the handle is out: the hardware is not shareable, and a
// second live handle would race the first on the register block.
func TWIM0() (*Periph, error) {
	return acquire(0, twim0Base)
}

// TWIM1 hands out the capability for the second TWIM instance.
func TWIM1() (*Periph, error) {
	return acquire(1, twim1Base)
}

func acquire(n int, base uintptr) (*Periph, error) {
	mu.Lock()
	defer mu.Unlock()
	if acquired&(1<<n) != 0 {
		return nil, errors.New("twim: instance already in use")
	}
	acquired |= 1 << n
	return &Periph{r: (*regs)(unsafe.Pointer(base))}, nil
}

func (p *Periph) Configure(f Frequency) {
	p.r.ENABLE.Set(enableValue)
	p.r.FREQUENCY.Set(uint32(f))
}

func (p *Periph) SetAddress(addr uint8) {
	p.r.ADDRESS.Set(uint32(addr))
}

func (p *Periph) SetTxBuffer(ptr uintptr, n uint32) {
	// The PTR field is a full 32 bits wide.
	p.r.TXD_PTR.Set(uint32(ptr))
	p.r.TXD_MAXCNT.Set(n)
}

func (p *Periph) SetRxBuffer(ptr uintptr, n uint32) {
	p.r.RXD_PTR.Set(uint32(ptr))
	p.r.RXD_MAXCNT.Set(n)
}

func (p *Periph) TxAmount() uint32 {
	return p.r.TXD_AMOUNT.Get()
}

func (p *Periph) RxAmount() uint32 {
	return p.r.RXD_AMOUNT.Get()
}

func (p *Periph) Trigger(t Task) {
	switch t {
	case TaskStartRx:
		p.r.TASKS_STARTRX.Set(trigger)
	case TaskStartTx:
		p.r.TASKS_STARTTX.Set(trigger)
	case TaskStop:
		p.r.TASKS_STOP.Set(trigger)
	}
}

func (p *Periph) Event(e Event) bool {
	return p.event(e).Get() != 0
}

func (p *Periph) ClearEvent(e Event) {
	p.event(e).Set(0)
}

func (p *Periph) event(e Event) *volatile.Register32 {
	switch e {
	case EventStopped:
		return &p.r.EVENTS_STOPPED
	case EventLastTx:
		return &p.r.EVENTS_LASTTX
	case EventLastRx:
		return &p.r.EVENTS_LASTRX
	}
	panic("twim: unknown event")
}

func (p *Periph) SetShorts(s Shorts) {
	p.r.SHORTS.Set(uint32(s))
}
