package twim

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// I2C adapts a Device to the periph.io i2c.Bus interface, so device
// drivers written against periph.io conn can run over the TWIM
// engine. The adapter shares the device's exclusivity: it must not be
// used concurrently with direct Device calls.
type I2C struct {
	dev *Device
}

var _ i2c.Bus = (*I2C)(nil)

// Bus wraps the device in a periph.io i2c.Bus.
func (d *Device) Bus() *I2C {
	return &I2C{dev: d}
}

func (b *I2C) String() string {
	return "twim"
}

// Tx dispatches on the buffers: write, read, or write-then-read
// without an intervening stop condition when both are given.
func (b *I2C) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7f {
		return fmt.Errorf("twim: 10-bit address %#x not supported", addr)
	}
	switch {
	case len(w) != 0 && len(r) != 0:
		return b.dev.WriteRead(uint8(addr), w, r)
	case len(r) != 0:
		return b.dev.Read(uint8(addr), r)
	default:
		return b.dev.Write(uint8(addr), w)
	}
}

// SetSpeed reconfigures the bus frequency. The peripheral supports
// 100, 250 and 400 kHz.
func (b *I2C) SetSpeed(f physic.Frequency) error {
	var freq Frequency
	switch f {
	case 100 * physic.KiloHertz:
		freq = K100
	case 250 * physic.KiloHertz:
		freq = K250
	case 400 * physic.KiloHertz:
		freq = K400
	default:
		return fmt.Errorf("twim: unsupported bus frequency %s", f)
	}
	b.dev.cfg.Frequency = freq
	b.dev.instance().Configure(freq)
	return nil
}
