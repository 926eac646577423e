// Package twim implements a blocking driver for the nRF52 TWIM
// peripheral, an I2C master with EasyDMA.
//
// A transfer is sequenced entirely through register writes and
// busy-wait polling of event flags; there are no interrupts and no
// timeouts. The peripheral moves buffer bytes itself through EasyDMA,
// so every transmit buffer must live in data RAM the DMA engine can
// reach and no buffer may exceed the chip's transfer ceiling.
//
// Datasheet: https://infocenter.nordicsemi.com/pdf/nRF52832_PS_v1.4.pdf
package twim

import (
	"errors"
	"runtime"
	"unsafe"
)

// Task identifies a task register. Writing the trigger value to a
// task register starts the corresponding hardware action.
type Task uint8

const (
	TaskStartRx Task = iota
	TaskStartTx
	TaskStop
)

// Event identifies an event flag register, set by hardware on
// completion of an action and cleared by software.
type Event uint8

const (
	EventStopped Event = iota
	EventLastTx
	EventLastRx
)

// Shorts is the task/event shortcut mask. A set bit chains an event
// directly into a task without software involvement. The values are
// the SHORTS register bits.
type Shorts uint32

const (
	// ShortLastTxStartRx starts a receive on the last transmitted byte.
	ShortLastTxStartRx Shorts = 1 << 7
	// ShortLastRxStop issues a stop condition on the last received byte.
	ShortLastRxStop Shorts = 1 << 12
)

// Frequency is a bus frequency as written to the FREQUENCY register.
type Frequency uint32

const (
	K100 Frequency = 0x01980000
	K250 Frequency = 0x04000000
	K400 Frequency = 0x06680000
)

const (
	// enableValue selects TWIM mode in the shared ENABLE register.
	enableValue = 6
	// trigger is the value written to a task register to start it.
	trigger = 1
)

// Instance is the capability handle to one TWIM register block. It
// exposes exactly the registers the driver touches; there is no
// general memory escape hatch. Implementations are the hardware
// peripherals (TWIM0, TWIM1), the Simulator, and remote monitors.
//
// An Instance represents exclusive ownership of the underlying
// hardware. At most one live Device may wrap it at a time.
type Instance interface {
	// Configure enables the peripheral and applies the bus frequency.
	Configure(f Frequency)
	// SetAddress programs the 7-bit target address register.
	SetAddress(addr uint8)
	// SetTxBuffer programs the transmit DMA pointer and maximum count.
	SetTxBuffer(ptr uintptr, n uint32)
	// SetRxBuffer programs the receive DMA pointer and maximum count.
	SetRxBuffer(ptr uintptr, n uint32)
	// TxAmount reads back the number of bytes transmitted by the last
	// transfer.
	TxAmount() uint32
	// RxAmount reads back the number of bytes received by the last
	// transfer.
	RxAmount() uint32
	// Trigger writes the trigger value to a task register.
	Trigger(t Task)
	// Event reports whether an event flag is set.
	Event(e Event) bool
	// ClearEvent resets an event flag.
	ClearEvent(e Event)
	// SetShorts replaces the shortcut mask.
	SetShorts(s Shorts)
}

var (
	// ErrBufferNotInRAM reports a transmit buffer outside the data RAM
	// reachable by EasyDMA, such as flash-resident data.
	ErrBufferNotInRAM  = errors.New("twim: buffer not in DMA-accessible RAM")
	ErrTxBufferTooLong = errors.New("twim: transmit buffer too long")
	ErrRxBufferTooLong = errors.New("twim: receive buffer too long")
	// ErrTransmit reports a transmitted byte count that differs from
	// the requested length.
	ErrTransmit = errors.New("twim: transmitted byte count mismatch")
	// ErrReceive reports a received byte count that differs from the
	// requested length.
	ErrReceive = errors.New("twim: received byte count mismatch")
)

// Config parameterizes a Device. The zero value selects 100 kHz and
// the nRF52832 limits.
type Config struct {
	Frequency Frequency
	Variant   Variant
	// Wait blocks until ready reports true. It is called once per
	// event the driver polls. Nil selects a busy spin; a platform may
	// substitute an interrupt-backed wait, or one with a deadline.
	Wait func(ready func() bool)
}

// Device is the transaction engine for one TWIM instance. It owns the
// instance exclusively from construction until Release. Methods must
// not be called concurrently.
type Device struct {
	inst Instance
	cfg  Config
}

// New wraps a register block in a transaction engine, enabling the
// peripheral and applying the bus frequency once. The caller must not
// retain other references to inst; pins and clocks are assumed to be
// configured already.
func New(inst Instance, cfg Config) *Device {
	if cfg.Frequency == 0 {
		cfg.Frequency = K100
	}
	if cfg.Variant == (Variant{}) {
		cfg.Variant = NRF52832
	}
	if cfg.Wait == nil {
		cfg.Wait = spinWait
	}
	inst.Configure(cfg.Frequency)
	return &Device{inst: inst, cfg: cfg}
}

// Write transmits buf to the target at addr and blocks until the bus
// is stopped. It fails without touching a register if buf is not
// DMA-accessible or exceeds the transmit ceiling, and with ErrTransmit
// if the peripheral reports fewer bytes on the wire than requested.
func (d *Device) Write(addr uint8, buf []byte) error {
	if err := validateTx(d.cfg.Variant, buf); err != nil {
		return err
	}
	p := d.instance()
	// Order all preceding writes to buf before the DMA engine is told
	// to read it.
	fence()
	p.SetAddress(addr)
	p.SetTxBuffer(bufAddr(buf), uint32(len(buf)))
	p.Trigger(TaskStartTx)
	d.cfg.Wait(func() bool { return p.Event(EventLastTx) })
	p.ClearEvent(EventLastTx)
	p.Trigger(TaskStop)
	d.cfg.Wait(func() bool { return p.Event(EventStopped) })
	p.ClearEvent(EventStopped)
	// Order the completed DMA before any following access to buf.
	fence()
	runtime.KeepAlive(buf)
	if p.TxAmount() != uint32(len(buf)) {
		return ErrTransmit
	}
	return nil
}

// Read receives len(buf) bytes from the target at addr and blocks
// until the bus is stopped. The destination is not residency-checked:
// a writable slice cannot reference memory the DMA engine cannot
// reach. It fails with ErrReceive if the peripheral reports fewer
// bytes than requested.
func (d *Device) Read(addr uint8, buf []byte) error {
	if err := validateRx(d.cfg.Variant, buf); err != nil {
		return err
	}
	p := d.instance()
	fence()
	p.SetAddress(addr)
	p.SetRxBuffer(bufAddr(buf), uint32(len(buf)))
	p.Trigger(TaskStartRx)
	d.cfg.Wait(func() bool { return p.Event(EventLastRx) })
	p.ClearEvent(EventLastRx)
	p.Trigger(TaskStop)
	d.cfg.Wait(func() bool { return p.Event(EventStopped) })
	p.ClearEvent(EventStopped)
	fence()
	runtime.KeepAlive(buf)
	if p.RxAmount() != uint32(len(buf)) {
		return ErrReceive
	}
	return nil
}

// WriteRead transmits w and then receives into r without an
// intervening stop condition, using the LASTTX_STARTRX and
// LASTRX_STOP shortcuts to chain the two phases in hardware. A single
// wait on the stopped event covers both phases. The shortcut mask and
// all event flags are reset before the byte counts are verified, so
// the peripheral is reusable whatever the outcome; the transmit count
// is checked first and at most one error is returned.
func (d *Device) WriteRead(addr uint8, w, r []byte) error {
	if err := validateTx(d.cfg.Variant, w); err != nil {
		return err
	}
	if err := validateRx(d.cfg.Variant, r); err != nil {
		return err
	}
	p := d.instance()
	fence()
	p.SetAddress(addr)
	p.SetTxBuffer(bufAddr(w), uint32(len(w)))
	p.SetRxBuffer(bufAddr(r), uint32(len(r)))
	p.SetShorts(ShortLastTxStartRx | ShortLastRxStop)
	p.Trigger(TaskStartTx)
	d.cfg.Wait(func() bool { return p.Event(EventStopped) })
	p.ClearEvent(EventLastTx)
	p.ClearEvent(EventLastRx)
	p.ClearEvent(EventStopped)
	p.SetShorts(0)
	fence()
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	if p.TxAmount() != uint32(len(w)) {
		return ErrTransmit
	}
	if p.RxAmount() != uint32(len(r)) {
		return ErrReceive
	}
	return nil
}

// Release consumes the device and returns the underlying register
// block, with no hardware side effects. Any further method call on
// the device panics.
func (d *Device) Release() Instance {
	p := d.instance()
	d.inst = nil
	return p
}

func (d *Device) instance() Instance {
	if d.inst == nil {
		panic("twim: device released")
	}
	return d.inst
}

// bufAddr is the DMA pointer register value for a buffer. The
// peripheral never dereferences the pointer when the count is zero.
func bufAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
