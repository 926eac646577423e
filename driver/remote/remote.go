// Package remote drives a TWIM register block across a serial link,
// for bringing up and debugging transfers from a host against a live
// chip running the monitor loop.
//
// The protocol is byte oriented and little endian. The monitor echoes
// the command byte as acknowledgement, followed by the response
// payload where one exists:
//
//	'C' freq:u32        configure            → 'C'
//	'A' addr:u8         set target address   → 'A'
//	'T' n:u16 data      load transmit buffer → 'T'
//	'R' n:u16           set receive length   → 'R'
//	'H' mask:u32        set shortcut mask    → 'H'
//	'S' task:u8         trigger task         → 'S'
//	'E' event:u8        poll event flag      → 'E' flag:u8
//	'X' event:u8        clear event flag     → 'X'
//	'M' dir:u8          read amount register → 'M' amount:u32
//	'F' n:u16           fetch receive buffer → 'F' data
//
// Buffers are staged in the monitor's scratch RAM: the host cannot be
// a DMA source, so 'T' uploads the transmit bytes before the transfer
// and 'F' downloads the received bytes after it.
package remote

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unsafe"

	"github.com/Lotterleben/nrf-hal/driver/twim"
)

const (
	cmdConfigure = 'C'
	cmdAddress   = 'A'
	cmdLoadTx    = 'T'
	cmdSetRx     = 'R'
	cmdShorts    = 'H'
	cmdTrigger   = 'S'
	cmdEvent     = 'E'
	cmdClear     = 'X'
	cmdAmount    = 'M'
	cmdFetchRx   = 'F'

	dirTx = 0
	dirRx = 1
)

// Client implements twim.Instance over a monitor link. Register
// access cannot fail, so link errors are sticky: the first one is
// recorded, every later exchange is skipped, event polls report the
// flag as set to unblock the engine, and amounts report an impossible
// value so the transfer surfaces as a byte count mismatch. Check Err
// after a failed transfer for the underlying cause.
type Client struct {
	rw  io.ReadWriter
	err error

	rxPtr uintptr
	rxLen uint32

	scratch [8]byte
}

var _ twim.Instance = (*Client)(nil)

// NewClient wraps a monitor link, typically a port from Open.
func NewClient(rw io.ReadWriter) *Client {
	return &Client{rw: rw}
}

// Err reports the first link error, if any.
func (c *Client) Err() error {
	return c.err
}

func (c *Client) Configure(f twim.Frequency) {
	b := c.scratch[:5]
	b[0] = cmdConfigure
	binary.LittleEndian.PutUint32(b[1:], uint32(f))
	c.exchange(b, nil)
}

func (c *Client) SetAddress(addr uint8) {
	c.exchange([]byte{cmdAddress, addr}, nil)
}

func (c *Client) SetTxBuffer(ptr uintptr, n uint32) {
	b := c.scratch[:3]
	b[0] = cmdLoadTx
	binary.LittleEndian.PutUint16(b[1:], uint16(n))
	c.exchange(b, nil)
	if c.err == nil && n > 0 {
		if _, err := c.rw.Write(hostSlice(ptr, n)); err != nil {
			c.err = err
		}
	}
}

func (c *Client) SetRxBuffer(ptr uintptr, n uint32) {
	c.rxPtr, c.rxLen = ptr, n
	b := c.scratch[:3]
	b[0] = cmdSetRx
	binary.LittleEndian.PutUint16(b[1:], uint16(n))
	c.exchange(b, nil)
}

func (c *Client) SetShorts(s twim.Shorts) {
	b := c.scratch[:5]
	b[0] = cmdShorts
	binary.LittleEndian.PutUint32(b[1:], uint32(s))
	c.exchange(b, nil)
}

func (c *Client) Trigger(t twim.Task) {
	c.exchange([]byte{cmdTrigger, byte(t)}, nil)
}

func (c *Client) Event(e twim.Event) bool {
	var flag [1]byte
	c.exchange([]byte{cmdEvent, byte(e)}, flag[:])
	if c.err != nil {
		// Report the event as raised so the engine's poll loop
		// terminates; the amount check fails the transfer.
		return true
	}
	return flag[0] != 0
}

func (c *Client) ClearEvent(e twim.Event) {
	c.exchange([]byte{cmdClear, byte(e)}, nil)
}

func (c *Client) TxAmount() uint32 {
	return c.amount(dirTx)
}

// RxAmount also downloads the monitor's receive scratch into the
// buffer programmed with SetRxBuffer. The engine reads the amount
// register exactly once, after completion, which makes it the
// synchronization point for received data.
func (c *Client) RxAmount() uint32 {
	n := c.amount(dirRx)
	if c.rxLen > 0 {
		b := c.scratch[:3]
		b[0] = cmdFetchRx
		binary.LittleEndian.PutUint16(b[1:], uint16(c.rxLen))
		c.exchange(b, hostSlice(c.rxPtr, c.rxLen))
	}
	return n
}

func (c *Client) amount(dir byte) uint32 {
	var v [4]byte
	c.exchange([]byte{cmdAmount, dir}, v[:])
	if c.err != nil {
		// No buffer length can match; the transfer fails.
		return ^uint32(0)
	}
	return binary.LittleEndian.Uint32(v[:])
}

// exchange sends a command frame, consumes the echoed command byte
// and reads the response payload into resp.
func (c *Client) exchange(frame, resp []byte) {
	if c.err != nil {
		return
	}
	if _, err := c.rw.Write(frame); err != nil {
		c.err = err
		return
	}
	var echo [1]byte
	if _, err := io.ReadFull(c.rw, echo[:]); err != nil {
		c.err = err
		return
	}
	if echo[0] != frame[0] {
		c.err = fmt.Errorf("remote: sent %#x, monitor echoed %#x", frame[0], echo[0])
		return
	}
	if len(resp) > 0 {
		if _, err := io.ReadFull(c.rw, resp); err != nil {
			c.err = err
		}
	}
}

// Serve runs the monitor side of the link, decoding commands onto a
// register block: on hardware the peripheral itself, in tests a
// Simulator. It returns nil when the link closes.
func Serve(rw io.ReadWriter, inst twim.Instance) error {
	var txBuf, rxBuf []byte
	var scratch [8]byte
	for {
		cmd := scratch[:1]
		if _, err := io.ReadFull(rw, cmd); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		var resp []byte
		switch cmd[0] {
		case cmdConfigure:
			b := scratch[1:5]
			if _, err := io.ReadFull(rw, b); err != nil {
				return err
			}
			inst.Configure(twim.Frequency(binary.LittleEndian.Uint32(b)))
		case cmdAddress:
			b := scratch[1:2]
			if _, err := io.ReadFull(rw, b); err != nil {
				return err
			}
			inst.SetAddress(b[0])
		case cmdLoadTx:
			b := scratch[1:3]
			if _, err := io.ReadFull(rw, b); err != nil {
				return err
			}
			n := binary.LittleEndian.Uint16(b)
			txBuf = grow(txBuf, int(n))
			if _, err := io.ReadFull(rw, txBuf); err != nil {
				return err
			}
			inst.SetTxBuffer(bufAddr(txBuf), uint32(n))
		case cmdSetRx:
			b := scratch[1:3]
			if _, err := io.ReadFull(rw, b); err != nil {
				return err
			}
			n := binary.LittleEndian.Uint16(b)
			rxBuf = grow(rxBuf, int(n))
			inst.SetRxBuffer(bufAddr(rxBuf), uint32(n))
		case cmdShorts:
			b := scratch[1:5]
			if _, err := io.ReadFull(rw, b); err != nil {
				return err
			}
			inst.SetShorts(twim.Shorts(binary.LittleEndian.Uint32(b)))
		case cmdTrigger:
			b := scratch[1:2]
			if _, err := io.ReadFull(rw, b); err != nil {
				return err
			}
			inst.Trigger(twim.Task(b[0]))
		case cmdEvent:
			b := scratch[1:2]
			if _, err := io.ReadFull(rw, b); err != nil {
				return err
			}
			var flag byte
			if inst.Event(twim.Event(b[0])) {
				flag = 1
			}
			resp = []byte{flag}
		case cmdClear:
			b := scratch[1:2]
			if _, err := io.ReadFull(rw, b); err != nil {
				return err
			}
			inst.ClearEvent(twim.Event(b[0]))
		case cmdAmount:
			b := scratch[1:2]
			if _, err := io.ReadFull(rw, b); err != nil {
				return err
			}
			var v uint32
			switch b[0] {
			case dirTx:
				v = inst.TxAmount()
			case dirRx:
				v = inst.RxAmount()
			default:
				return fmt.Errorf("remote: bad amount direction %#x", b[0])
			}
			resp = scratch[1:5]
			binary.LittleEndian.PutUint32(resp, v)
		case cmdFetchRx:
			b := scratch[1:3]
			if _, err := io.ReadFull(rw, b); err != nil {
				return err
			}
			n := int(binary.LittleEndian.Uint16(b))
			if n > len(rxBuf) {
				return errors.New("remote: fetch beyond receive buffer")
			}
			resp = rxBuf[:n]
		default:
			return fmt.Errorf("remote: bad command %#x", cmd[0])
		}
		if _, err := rw.Write(cmd); err != nil {
			return err
		}
		if len(resp) > 0 {
			if _, err := rw.Write(resp); err != nil {
				return err
			}
		}
	}
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

func bufAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func hostSlice(ptr uintptr, n uint32) []byte {
	if ptr == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
}
