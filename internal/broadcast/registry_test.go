package broadcast

import "testing"

func TestListenerSendDropsOldestWhenFull(t *testing.T) {
	r := NewRegistry()
	l := r.Add("listener-1", 2)

	l.Send([]byte("1"))
	l.Send([]byte("2"))
	l.Send([]byte("3")) // queue full at "1","2" — should drop "1", keep "2","3"

	first, ok := l.Recv()
	if !ok || string(first) != "2" {
		t.Fatalf("expected oldest chunk dropped, got %q ok=%v", first, ok)
	}
	second, ok := l.Recv()
	if !ok || string(second) != "3" {
		t.Fatalf("expected %q, got %q ok=%v", "3", second, ok)
	}
}

func TestRegistryForEachIsPointInTimeCopy(t *testing.T) {
	r := NewRegistry()
	r.Add("a", 4)
	r.Add("b", 4)

	var seen []string
	r.ForEach(func(l *Listener) {
		seen = append(seen, l.ID)
		if l.ID == "a" {
			r.Add("c", 4) // concurrent mutation must not affect this iteration
		}
	})

	if len(seen) != 2 {
		t.Fatalf("expected iteration over the 2-listener snapshot, got %v", seen)
	}
	if r.Count() != 3 {
		t.Fatalf("expected registry to reflect the concurrent add, got count %d", r.Count())
	}
}

func TestRegistryRemoveClosesQueue(t *testing.T) {
	r := NewRegistry()
	l := r.Add("a", 1)
	r.Remove("a")

	_, ok := l.Recv()
	if ok {
		t.Fatal("expected removed listener's queue to be closed")
	}
	if r.Count() != 0 {
		t.Fatalf("expected registry empty after remove, got %d", r.Count())
	}
}
