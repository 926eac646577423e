//go:build tinygo

package twim

import "device/arm"

// fence orders CPU memory access relative to EasyDMA activity. One is
// issued before a transfer is programmed and one after the stopped
// event, so the DMA engine and the CPU agree on buffer contents at
// both edges of the transaction.
func fence() {
	arm.Asm("dmb")
}

func spinWait(ready func() bool) {
	for !ready() {
	}
}
