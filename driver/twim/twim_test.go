package twim

import (
	"bytes"
	"strings"
	"testing"
)

// hostVariant is an nRF52832-sized chip whose data RAM spans the host
// address space, so heap-allocated test buffers pass the residency
// check.
var hostVariant = Variant{MaxTransfer: 0xff, DataRAM: HostRAM}

// noRAMVariant accepts no buffer at all; every residency check fails.
var noRAMVariant = Variant{MaxTransfer: 0xff}

func newTestDevice(sim *Simulator) *Device {
	d := New(sim, Config{Variant: hostVariant})
	// Construction programs ENABLE and FREQUENCY; drop them so tests
	// see only per-transfer register traffic.
	sim.Writes = nil
	return d
}

func TestWrite(t *testing.T) {
	var got []byte
	var gotAddr uint8
	sim := &Simulator{
		Target: TargetFunc(func(addr uint8, w, r []byte) {
			gotAddr = addr
			got = append(got[:0], w...)
		}),
	}
	d := newTestDevice(sim)

	if err := d.Write(0x50, []byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatal(err)
	}
	if gotAddr != 0x50 {
		t.Errorf("target address = %#x, want 0x50", gotAddr)
	}
	if want := []byte{0x01, 0x02, 0x03}; !bytes.Equal(got, want) {
		t.Errorf("target received %x, want %x", got, want)
	}
	if sim.TxAmount() != 3 {
		t.Errorf("TXD.AMOUNT = %d, want 3", sim.TxAmount())
	}
}

func TestRead(t *testing.T) {
	sim := &Simulator{
		Target: TargetFunc(func(addr uint8, w, r []byte) {
			for i := range r {
				r[i] = 0xc0 + byte(i)
			}
		}),
	}
	d := newTestDevice(sim)

	buf := make([]byte, 4)
	if err := d.Read(0x50, buf); err != nil {
		t.Fatal(err)
	}
	if want := []byte{0xc0, 0xc1, 0xc2, 0xc3}; !bytes.Equal(buf, want) {
		t.Errorf("read %x, want %x", buf, want)
	}
}

func TestWriteRead(t *testing.T) {
	var got []byte
	sim := &Simulator{
		Target: TargetFunc(func(addr uint8, w, r []byte) {
			got = append(got[:0], w...)
			for i := range r {
				r[i] = 0x55
			}
		}),
	}
	d := newTestDevice(sim)

	rd := make([]byte, 2)
	if err := d.WriteRead(0x50, []byte{0xaa}, rd); err != nil {
		t.Fatal(err)
	}
	if want := []byte{0xaa}; !bytes.Equal(got, want) {
		t.Errorf("target received %x, want %x", got, want)
	}
	if want := []byte{0x55, 0x55}; !bytes.Equal(rd, want) {
		t.Errorf("read %x, want %x", rd, want)
	}
	if sim.RxAmount() != 2 {
		t.Errorf("RXD.AMOUNT = %d, want 2", sim.RxAmount())
	}
}

// TestWriteReadChaining checks that the combined transfer is chained
// in hardware: the shortcut mask is programmed before the start task,
// only the stopped event is polled, and the mask is reset afterwards.
func TestWriteReadChaining(t *testing.T) {
	sim := &Simulator{}
	d := newTestDevice(sim)

	wr := []byte{1, 2, 3, 4}
	rd := make([]byte, 4)
	if err := d.WriteRead(0x50, wr, rd); err != nil {
		t.Fatal(err)
	}

	if n := sim.Polls[EventStopped]; n != 1 {
		t.Errorf("polled EVENTS_STOPPED %d times, want 1", n)
	}
	if n := sim.Polls[EventLastTx] + sim.Polls[EventLastRx]; n != 0 {
		t.Errorf("polled per-phase events %d times, want 0", n)
	}

	shorts := indexOf(sim.Writes, "SHORTS=0x1080")
	start := indexOf(sim.Writes, "TASKS_STARTTX=0x1")
	reset := indexOf(sim.Writes, "SHORTS=0x0")
	switch {
	case shorts < 0 || start < 0 || reset < 0:
		t.Fatalf("missing register writes in %q", sim.Writes)
	case shorts > start:
		t.Errorf("SHORTS programmed after TASKS_STARTTX: %q", sim.Writes)
	case reset < start:
		t.Errorf("SHORTS reset before TASKS_STARTTX: %q", sim.Writes)
	}
}

func TestTxBufferTooLong(t *testing.T) {
	sim := &Simulator{}
	d := newTestDevice(sim)

	if err := d.Write(0x50, make([]byte, 260)); err != ErrTxBufferTooLong {
		t.Fatalf("err = %v, want ErrTxBufferTooLong", err)
	}
	if len(sim.Writes) != 0 {
		t.Errorf("registers written on invalid request: %q", sim.Writes)
	}
}

func TestRxBufferTooLong(t *testing.T) {
	sim := &Simulator{}
	d := newTestDevice(sim)

	if err := d.Read(0x50, make([]byte, 260)); err != ErrRxBufferTooLong {
		t.Fatalf("err = %v, want ErrRxBufferTooLong", err)
	}
	if len(sim.Writes) != 0 {
		t.Errorf("registers written on invalid request: %q", sim.Writes)
	}
	if err := d.WriteRead(0x50, []byte{1}, make([]byte, 260)); err != ErrRxBufferTooLong {
		t.Fatalf("err = %v, want ErrRxBufferTooLong", err)
	}
	if len(sim.Writes) != 0 {
		t.Errorf("registers written on invalid request: %q", sim.Writes)
	}
}

func TestResidency(t *testing.T) {
	sim := &Simulator{}
	d := New(sim, Config{Variant: noRAMVariant})
	sim.Writes = nil

	if err := d.Write(0x50, []byte{1}); err != ErrBufferNotInRAM {
		t.Fatalf("Write err = %v, want ErrBufferNotInRAM", err)
	}
	if err := d.WriteRead(0x50, []byte{1}, make([]byte, 1)); err != ErrBufferNotInRAM {
		t.Fatalf("WriteRead err = %v, want ErrBufferNotInRAM", err)
	}
	if len(sim.Writes) != 0 {
		t.Errorf("registers written on invalid request: %q", sim.Writes)
	}
	// A destination slice is exempt: reads succeed even when the
	// residency window accepts nothing.
	if err := d.Read(0x50, make([]byte, 1)); err != nil {
		t.Errorf("Read err = %v, want nil", err)
	}
}

func TestTransmitMismatch(t *testing.T) {
	sim := &Simulator{ShortTxBy: 1}
	d := newTestDevice(sim)

	if err := d.Write(0x50, []byte{1, 2, 3}); err != ErrTransmit {
		t.Fatalf("err = %v, want ErrTransmit", err)
	}
	// The peripheral must be left clean: all events cleared.
	if sim.events != [3]bool{} {
		t.Errorf("event flags not cleared after error: %v", sim.events)
	}
}

func TestReceiveMismatch(t *testing.T) {
	sim := &Simulator{ShortRxBy: 2}
	d := newTestDevice(sim)

	if err := d.Read(0x50, make([]byte, 4)); err != ErrReceive {
		t.Fatalf("err = %v, want ErrReceive", err)
	}
}

// TestWriteReadMismatchOrder checks that when both byte counts are
// wrong, the transmit mismatch wins and exactly one error is
// reported, with the shortcut mask already reset.
func TestWriteReadMismatchOrder(t *testing.T) {
	sim := &Simulator{ShortTxBy: 1, ShortRxBy: 1}
	d := newTestDevice(sim)

	if err := d.WriteRead(0x50, []byte{1, 2}, make([]byte, 2)); err != ErrTransmit {
		t.Fatalf("err = %v, want ErrTransmit", err)
	}
	if sim.shorts != 0 {
		t.Errorf("SHORTS = %#x after error, want 0", uint32(sim.shorts))
	}
	if sim.events != [3]bool{} {
		t.Errorf("event flags not cleared after error: %v", sim.events)
	}
}

// TestRepeatedTransfers checks that no state leaks between calls: two
// identical transfers succeed independently, and a plain write after
// a combined transfer is not chained by a stale shortcut mask.
func TestRepeatedTransfers(t *testing.T) {
	sim := &Simulator{}
	d := newTestDevice(sim)

	buf := []byte{1, 2, 3}
	for i := 0; i < 2; i++ {
		if err := d.Write(0x50, buf); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	if err := d.WriteRead(0x50, []byte{1}, make([]byte, 1)); err != nil {
		t.Fatal(err)
	}
	sim.Writes = nil
	sim.Polls = nil
	if err := d.Write(0x50, buf); err != nil {
		t.Fatal(err)
	}
	if n := sim.Polls[EventLastTx]; n != 1 {
		t.Errorf("polled EVENTS_LASTTX %d times, want 1", n)
	}
	for _, w := range sim.Writes {
		if strings.HasPrefix(w, "RXD.") {
			t.Errorf("plain write touched receive registers: %q", sim.Writes)
		}
	}
}

func TestZeroLength(t *testing.T) {
	sim := &Simulator{}
	d := newTestDevice(sim)

	if err := d.Write(0x50, nil); err != nil {
		t.Fatal(err)
	}
	if err := d.Read(0x50, nil); err != nil {
		t.Fatal(err)
	}
}

func TestRelease(t *testing.T) {
	sim := &Simulator{}
	d := newTestDevice(sim)

	nwrites := len(sim.Writes)
	if got := d.Release(); got != Instance(sim) {
		t.Fatalf("Release returned %v, want the wrapped instance", got)
	}
	if len(sim.Writes) != nwrites {
		t.Errorf("Release touched registers: %q", sim.Writes)
	}

	defer func() {
		if recover() == nil {
			t.Error("use after Release did not panic")
		}
	}()
	d.Write(0x50, []byte{1})
}

func TestWaiterInjection(t *testing.T) {
	sim := &Simulator{}
	waits := 0
	d := New(sim, Config{
		Variant: hostVariant,
		Wait: func(ready func() bool) {
			waits++
			for !ready() {
			}
		},
	})

	if err := d.WriteRead(0x50, []byte{1}, make([]byte, 1)); err != nil {
		t.Fatal(err)
	}
	if waits != 1 {
		t.Errorf("combined transfer waited %d times, want 1", waits)
	}

	waits = 0
	if err := d.Write(0x50, []byte{1}); err != nil {
		t.Fatal(err)
	}
	if waits != 2 {
		t.Errorf("write waited %d times, want 2", waits)
	}
}

func indexOf(s []string, v string) int {
	for i, e := range s {
		if e == v {
			return i
		}
	}
	return -1
}
