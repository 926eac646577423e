//go:build !tinygo

package twim

import "runtime"

// fence is a no-op on hosts: the Simulator performs its DMA on the
// calling goroutine, and remote register blocks synchronize through
// the serial link.
func fence() {}

func spinWait(ready func() bool) {
	for !ready() {
		runtime.Gosched()
	}
}
