package srec

import (
	"strings"
	"testing"
)

func TestLoadDataAndTermination(t *testing.T) {
	image := "S107000001020304EE\nS9030000FC\n"
	mem := make([]byte, 16)
	entry, err := Load(strings.NewReader(image), mem)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if entry != 0 {
		t.Fatalf("entry = %#x, want 0", entry)
	}
	want := []byte{0x01, 0x02, 0x03, 0x04}
	if string(mem[:4]) != string(want) {
		t.Fatalf("mem[:4] = %v, want %v", mem[:4], want)
	}
}

func TestLoadHeaderRecordIgnored(t *testing.T) {
	// S0 header ("HDR" as three ASCII bytes) followed by one data record.
	image := "S00600004844521B\nS107000001020304EE\n"
	mem := make([]byte, 8)
	if _, err := Load(strings.NewReader(image), mem); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if mem[0] != 0x01 {
		t.Fatalf("mem[0] = %#x, want 0x01 (header record must not be loaded as data)", mem[0])
	}
}

func TestLoadBadChecksum(t *testing.T) {
	image := "S107000001020304FF\n" // wrong checksum
	mem := make([]byte, 8)
	if _, err := Load(strings.NewReader(image), mem); err == nil {
		t.Fatalf("expected checksum error")
	}
}

func TestLoadOutOfRangeAddress(t *testing.T) {
	image := "S107000001020304EE\n"
	mem := make([]byte, 2) // too small for the 4 data bytes at address 0
	if _, err := Load(strings.NewReader(image), mem); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestLoadRejectsMissingMarker(t *testing.T) {
	image := "X107000001020304EE\n"
	mem := make([]byte, 8)
	if _, err := Load(strings.NewReader(image), mem); err == nil {
		t.Fatalf("expected error for missing S marker")
	}
}
