package memmap

import "testing"

type fakeHandler struct{ id int }

func (f *fakeHandler) Read(addr uint32) uint32        { return uint32(f.id) }
func (f *fakeHandler) Write(addr, word, dqm uint32) {}

func TestResolveFindsContainingRange(t *testing.T) {
	m := New()
	a := &fakeHandler{id: 1}
	b := &fakeHandler{id: 2}
	if err := m.Insert(0x1000, 0x100, a); err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	if err := m.Insert(0x2000, 0x100, b); err != nil {
		t.Fatalf("Insert b: %v", err)
	}

	if h := m.Resolve(0x1050); h != Handler(a) {
		t.Fatalf("Resolve(0x1050) = %v, want a", h)
	}
	if h := m.Resolve(0x2050); h != Handler(b) {
		t.Fatalf("Resolve(0x2050) = %v, want b", h)
	}
}

func TestResolveOutsideAnyRangeReturnsNil(t *testing.T) {
	m := New()
	m.Insert(0x1000, 0x100, &fakeHandler{id: 1})
	if h := m.Resolve(0x5000); h != nil {
		t.Fatalf("Resolve(0x5000) = %v, want nil", h)
	}
}

func TestResolveRespectsHalfOpenBounds(t *testing.T) {
	m := New()
	m.Insert(0x1000, 0x10, &fakeHandler{id: 1})
	if h := m.Resolve(0x1000); h == nil {
		t.Fatalf("Resolve(start) should be in range")
	}
	if h := m.Resolve(0x1010); h != nil {
		t.Fatalf("Resolve(end) = %v, want nil (range is half-open)", h)
	}
}

func TestInsertRejectsOverlap(t *testing.T) {
	m := New()
	if err := m.Insert(0x1000, 0x100, &fakeHandler{id: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.Insert(0x1050, 0x100, &fakeHandler{id: 2}); err == nil {
		t.Fatalf("expected overlap error")
	}
}

func TestInsertRejectsZeroLength(t *testing.T) {
	m := New()
	if err := m.Insert(0x1000, 0, &fakeHandler{id: 1}); err == nil {
		t.Fatalf("expected zero-length error")
	}
}

func TestManyDisjointRangesAllResolve(t *testing.T) {
	m := New()
	for i := 0; i < 64; i++ {
		start := uint32(i * 0x1000)
		if err := m.Insert(start, 0x10, &fakeHandler{id: i}); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	for i := 0; i < 64; i++ {
		h := m.Resolve(uint32(i * 0x1000))
		fh, ok := h.(*fakeHandler)
		if !ok || fh.id != i {
			t.Fatalf("Resolve(%d) = %v, want handler id %d", i, h, i)
		}
	}
}
