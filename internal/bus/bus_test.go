package bus

import "testing"

func TestWriteWordThenReadWordRoundTrips(t *testing.T) {
	b := New(1 << 12)
	b.WriteWord(0x100, 0xDEADBEEF, 0xFFFFFFFF)
	if got := b.ReadWord(0x100); got != 0xDEADBEEF {
		t.Fatalf("ReadWord = %#x, want 0xDEADBEEF", got)
	}
}

func TestWriteWordHonoursDQM(t *testing.T) {
	b := New(1 << 12)
	b.WriteWord(0x100, 0xFFFFFFFF, 0xFFFFFFFF)
	b.WriteWord(0x100, 0x00000000, 0x000000FF) // clear only the low byte
	if got := b.ReadWord(0x100); got != 0xFFFFFF00 {
		t.Fatalf("ReadWord after partial write = %#x, want 0xFFFFFF00", got)
	}
}

func TestUnmappedReadReturnsZero(t *testing.T) {
	b := New(0) // nothing is RAM; everything goes through the device map
	if got := b.ReadWord(0x1F800004); got != 0 {
		t.Fatalf("ReadWord(unmapped) = %#x, want 0", got)
	}
}

type countingDevice struct {
	reads, writes int
	last          uint32
}

func (d *countingDevice) Read(addr uint32) uint32 {
	d.reads++
	return 0x42
}

func (d *countingDevice) Write(addr, word, dqm uint32) {
	d.writes++
	d.last = word
}

func TestMappedDeviceDispatch(t *testing.T) {
	b := New(0x1000)
	dev := &countingDevice{}
	if err := b.Map(0x1F800000, 0x10, dev); err != nil {
		t.Fatalf("Map: %v", err)
	}

	if got := b.ReadWord(0x1F800000); got != 0x42 {
		t.Fatalf("ReadWord(device) = %#x, want 0x42", got)
	}
	if dev.reads != 1 {
		t.Fatalf("device.reads = %d, want 1", dev.reads)
	}

	b.WriteWord(0x1F800004, 0xAABBCCDD, 0xFFFFFFFF)
	if dev.writes != 1 || dev.last != 0xAABBCCDD {
		t.Fatalf("device write = %d writes, last=%#x; want 1, 0xAABBCCDD", dev.writes, dev.last)
	}
}

func TestBigEndianAndLittleEndianBothRoundTrip(t *testing.T) {
	for _, be := range []bool{false, true} {
		b := New(1 << 8)
		b.BigEndian = be
		b.WriteWord(0x10, 0x01020304, 0xFFFFFFFF)
		if got := b.ReadWord(0x10); got != 0x01020304 {
			t.Fatalf("BigEndian=%v: ReadWord = %#x, want 0x01020304", be, got)
		}
	}
}
