package broadcast

import (
	"bytes"
	"testing"
)

func TestBurstBufferSnapshotBeforeFull(t *testing.T) {
	b := NewBurstBuffer(4)
	b.Append([]byte("a"))
	b.Append([]byte("b"))

	snap := b.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(snap))
	}
	if !bytes.Equal(snap[0], []byte("a")) || !bytes.Equal(snap[1], []byte("b")) {
		t.Fatalf("unexpected order: %v", snap)
	}
}

func TestBurstBufferWrapsAndDisplacesOldest(t *testing.T) {
	b := NewBurstBuffer(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b.Append([]byte(s))
	}

	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected buffer capped at 3, got %d", len(snap))
	}
	want := []string{"c", "d", "e"}
	for i, w := range want {
		if string(snap[i]) != w {
			t.Fatalf("index %d: expected %q, got %q (full snapshot %v)", i, w, snap[i], snap)
		}
	}
}

func TestBurstBufferEmptySnapshot(t *testing.T) {
	b := NewBurstBuffer(5)
	if snap := b.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap)
	}
}
