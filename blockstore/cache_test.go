package blockstore

import "testing"

func TestGroupSetFIFOAndLimit(t *testing.T) {
	s := newGroupSet(2)
	if !s.Add(1) || !s.Add(2) {
		t.Fatal("expected both adds to succeed within limit")
	}
	if s.Add(3) {
		t.Fatal("expected add beyond limit to fail")
	}
	if first, ok := s.First(); !ok || first != 1 {
		t.Fatalf("expected FIFO first == 1, got %d ok=%v", first, ok)
	}
	s.Remove(1)
	if s.Contains(1) {
		t.Fatal("expected 1 removed")
	}
	if s.Add(3); !s.Contains(3) {
		t.Fatal("expected room to add 3 after removing 1")
	}
}

func TestAddrQueueFIFOAndLimit(t *testing.T) {
	q := newAddrQueue(2)
	q.Push(10)
	q.Push(20)
	if q.Push(30) {
		t.Fatal("expected push beyond limit to fail")
	}
	v, ok := q.Pop()
	if !ok || v != 10 {
		t.Fatalf("expected FIFO pop == 10, got %d ok=%v", v, ok)
	}
	q.Clear()
	if q.Len() != 0 {
		t.Fatal("expected clear to empty the queue")
	}
}
