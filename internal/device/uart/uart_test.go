package uart

import (
	"bytes"
	"testing"
)

func TestStatusReflectsReceiveQueue(t *testing.T) {
	var out bytes.Buffer
	d := New(&out)

	if status := d.Read(RegStatus); status&statusRXReady != 0 {
		t.Fatalf("status must not report RX ready before any byte arrives, got %#x", status)
	}

	d.RecieveChar('A')
	if status := d.Read(RegStatus); status&statusRXReady == 0 {
		t.Fatalf("status must report RX ready after RecieveChar, got %#x", status)
	}

	if b := d.Read(RegData); b != 'A' {
		t.Fatalf("RegData = %q, want 'A'", b)
	}
	if status := d.Read(RegStatus); status&statusRXReady != 0 {
		t.Fatalf("status must clear RX ready after the byte is consumed, got %#x", status)
	}
}

func TestWriteForwardsToOutput(t *testing.T) {
	var out bytes.Buffer
	d := New(&out)
	d.Write(RegData, uint32('X'), 0xFF)
	d.Write(RegData, uint32('Y'), 0xFF)
	if out.String() != "XY" {
		t.Fatalf("output = %q, want %q", out.String(), "XY")
	}
}

func TestQueueOrdersMultipleBytes(t *testing.T) {
	var out bytes.Buffer
	d := New(&out)
	d.RecieveChar('1')
	d.RecieveChar('2')
	d.RecieveChar('3')
	for _, want := range []byte{'1', '2', '3'} {
		if got := d.Read(RegData); byte(got) != want {
			t.Fatalf("Read(RegData) = %q, want %q", got, want)
		}
	}
}

func TestResetClearsQueue(t *testing.T) {
	var out bytes.Buffer
	d := New(&out)
	d.RecieveChar('Z')
	d.Reset()
	if status := d.Read(RegStatus); status&statusRXReady != 0 {
		t.Fatalf("status must not be RX ready after Reset, got %#x", status)
	}
}
