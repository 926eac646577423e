package twim

import "unsafe"

// AddrRange is a half-open address window [Start, End).
type AddrRange struct {
	Start, End uintptr
}

// Variant carries the chip-dependent EasyDMA limits: the per-transfer
// byte ceiling imposed by the MAXCNT register width, and the data RAM
// window the DMA engine can address.
type Variant struct {
	MaxTransfer int
	DataRAM     AddrRange
}

var (
	// NRF52832: 8-bit MAXCNT, 64 KiB RAM.
	NRF52832 = Variant{
		MaxTransfer: 0xff,
		DataRAM:     AddrRange{Start: 0x2000_0000, End: 0x2001_0000},
	}
	// NRF52840: 16-bit MAXCNT, 256 KiB RAM.
	NRF52840 = Variant{
		MaxTransfer: 0xffff,
		DataRAM:     AddrRange{Start: 0x2000_0000, End: 0x2004_0000},
	}
)

// HostRAM spans the entire address space. It is the DataRAM window for
// register blocks whose DMA engine reads host memory: the Simulator,
// and remote monitors that stage buffers in device-side scratch RAM.
var HostRAM = AddrRange{Start: 0, End: ^uintptr(0)}

// validateTx checks a source buffer before any register is touched:
// residency first, then the transfer ceiling. An invalid request must
// never partially program the peripheral.
func validateTx(v Variant, buf []byte) error {
	if !v.DataRAM.containsSlice(buf) {
		return ErrBufferNotInRAM
	}
	if len(buf) > v.MaxTransfer {
		return ErrTxBufferTooLong
	}
	return nil
}

// validateRx checks a destination buffer. Only the ceiling applies;
// see Device.Read for why residency is not checked.
func validateRx(v Variant, buf []byte) error {
	if len(buf) > v.MaxTransfer {
		return ErrRxBufferTooLong
	}
	return nil
}

func (r AddrRange) containsSlice(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	start := uintptr(unsafe.Pointer(&b[0]))
	return r.Start <= start && start+uintptr(len(b)) <= r.End
}
