package events

import "testing"

func TestRingBufferPushTryReadPreservesOrder(t *testing.T) {
	r := NewRingBuffer[int]()
	for i := 0; i < 10; i++ {
		r.Push(i)
	}
	if got := r.Len(); got != 10 {
		t.Fatalf("expected len 10, got %d", got)
	}

	out := make([]int, 5)
	n := r.TryRead(out)
	if n != 5 {
		t.Fatalf("expected 5 read, got %d", n)
	}
	for i, v := range out {
		if v != i {
			t.Fatalf("out[%d] = %d, want %d", i, v, i)
		}
	}
	if got := r.Len(); got != 5 {
		t.Fatalf("expected 5 remaining, got %d", got)
	}
}

func TestRingBufferTryReadEmptyReturnsZero(t *testing.T) {
	r := NewRingBuffer[int]()
	out := make([]int, 4)
	if n := r.TryRead(out); n != 0 {
		t.Fatalf("expected 0 read from empty buffer, got %d", n)
	}
}

func TestRingBufferWrapsAroundCorrectly(t *testing.T) {
	r := NewRingBuffer[int]()
	out := make([]int, 3)

	// Push/read in small batches many times to cross the ring boundary.
	next := 0
	for round := 0; round < 2*ringSize; round++ {
		r.Push(next)
		next++
		if round%3 == 2 {
			n := r.TryRead(out)
			if n != 3 {
				t.Fatalf("round %d: expected 3 read, got %d", round, n)
			}
		}
	}
}
