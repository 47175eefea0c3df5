// Package uart implements the console UART: a two-register
// memory-mapped device in the same spirit as an LC-3 keyboard
// status/data register pair (MR_KBSR/MR_KBDR), generalized into a
// bus.Handler with a real receive queue instead of a single polled
// slot, since bytes now arrive from a background console reader
// goroutine rather than an inline keyboard.GetSingleKey call.
package uart

import (
	"bytes"
	"io"
	"sync"
)

// Register offsets within the device's mapped region.
const (
	RegStatus = 0x0
	RegData   = 0x4
)

const (
	statusRXReady = 1 << 0
	statusTXReady = 1 << 1 // transmit is modeled as instantaneous, always ready
)

// Device is the console UART. Reads/writes come from the CPU through
// the bus; RecieveChar is the host-side entry point a console reader
// goroutine calls to deliver a typed byte, kept misspelled to match
// the original uart_RecieveChar.
type Device struct {
	mu  sync.Mutex
	rx  bytes.Buffer
	out io.Writer
}

// New creates a UART that writes transmitted bytes to out.
func New(out io.Writer) *Device {
	return &Device{out: out}
}

// Read implements bus.Handler / memmap.Handler.
func (d *Device) Read(addr uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch addr & 0x7 {
	case RegStatus:
		status := uint32(statusTXReady)
		if d.rx.Len() > 0 {
			status |= statusRXReady
		}
		return status
	case RegData:
		b, err := d.rx.ReadByte()
		if err != nil {
			return 0
		}
		return uint32(b)
	default:
		return 0
	}
}

// Write implements bus.Handler / memmap.Handler.
func (d *Device) Write(addr, word, dqm uint32) {
	if addr&0x7 != RegData {
		return
	}
	if d.out == nil {
		return
	}
	d.out.Write([]byte{byte(word)})
}

// RecieveChar delivers one byte from the host console into the
// device's receive queue, making it visible to the next RegData read.
func (d *Device) RecieveChar(b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx.WriteByte(b)
}

// Reset clears the receive queue. Transmit has no state to clear.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx.Reset()
}
