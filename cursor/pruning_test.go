package cursor

import "testing"

// TestPruningCursorVisibility checks spec.md §8's MVCC property: for a key
// with several versions, the newest version with timestamp <= the read
// timestamp is the one returned, and a tombstone at or under the cutoff
// hides all older versions.
func TestPruningCursorVisibility(t *testing.T) {
	child := newSliceCursor([]sliceEntry{
		{key: "a", timestamp: 5, value: "v5"},
		{key: "a", timestamp: 3, tombstone: true},
		{key: "a", timestamp: 1, value: "v1"},
	})

	p := NewPruningCursor(child, 4)
	if err := p.Seek([]byte("a")); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if !p.Valid() {
		t.Fatalf("Seek(a) at ts=4 found nothing")
	}
	if !p.IsTombstone() {
		t.Fatalf("Seek(a) at ts=4 should surface the tombstone at ts=3, got value %q", p.Value())
	}

	p2 := NewPruningCursor(newSliceCursor([]sliceEntry{
		{key: "a", timestamp: 5, value: "v5"},
		{key: "a", timestamp: 3, tombstone: true},
		{key: "a", timestamp: 1, value: "v1"},
	}), 6)
	if err := p2.Seek([]byte("a")); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if !p2.Valid() || p2.IsTombstone() || string(p2.Value()) != "v5" {
		t.Fatalf("Seek(a) at ts=6 should surface v5, got tombstone=%v value=%q", p2.IsTombstone(), p2.Value())
	}

	p3 := NewPruningCursor(newSliceCursor([]sliceEntry{
		{key: "a", timestamp: 5, value: "v5"},
		{key: "a", timestamp: 3, tombstone: true},
		{key: "a", timestamp: 1, value: "v1"},
	}), 0)
	if err := p3.Seek([]byte("a")); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if p3.Valid() {
		t.Fatalf("Seek(a) at ts=0 should find nothing visible, got %q", p3.Key())
	}
}

// TestPruningCursorSkipsInvisibleKeysForward checks that a key with no
// version visible at the cutoff is skipped entirely by Next, landing on the
// next key instead.
func TestPruningCursorSkipsInvisibleKeysForward(t *testing.T) {
	child := newSliceCursor([]sliceEntry{
		{key: "a", timestamp: 9, value: "future"},
		{key: "b", timestamp: 1, value: "v1"},
	})
	p := NewPruningCursor(child, 5)
	if err := p.SeekToFirst(); err != nil {
		t.Fatalf("SeekToFirst() error = %v", err)
	}
	if err := p.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !p.Valid() || string(p.Key()) != "b" {
		t.Fatalf("expected to land on b, got valid=%v key=%q", p.Valid(), p.Key())
	}
}

// TestPruningCursorBackward checks that Prev, which walks a key's version
// run from the oldest version first, still lands on the newest visible
// version rather than the oldest one.
func TestPruningCursorBackward(t *testing.T) {
	child := newSliceCursor([]sliceEntry{
		{key: "a", timestamp: 5, value: "v5"},
		{key: "a", timestamp: 3, value: "v3"},
		{key: "a", timestamp: 1, value: "v1"},
		{key: "b", timestamp: 1, value: "b1"},
	})
	p := NewPruningCursor(child, 4)
	if err := p.SeekToLast(); err != nil {
		t.Fatalf("SeekToLast() error = %v", err)
	}
	if err := p.Prev(); err != nil {
		t.Fatalf("Prev() error = %v", err)
	}
	if !p.Valid() || string(p.Key()) != "b" {
		t.Fatalf("first Prev() should land on b, got valid=%v key=%q", p.Valid(), p.Key())
	}
	if err := p.Prev(); err != nil {
		t.Fatalf("Prev() error = %v", err)
	}
	if !p.Valid() || string(p.Key()) != "a" || string(p.Value()) != "v3" {
		t.Fatalf("second Prev() should land on a@v3 (newest <= 4), got valid=%v key=%q value=%q", p.Valid(), p.Key(), p.Value())
	}
}
