package cursor

import "testing"

// sliceCursor is a minimal in-memory Cursor over a fixed, pre-sorted list
// of (key, timestamp, value, tombstone) entries, used so MergingCursor,
// PruningCursor, and BoundsCursor can be tested without a block or SST.
type sliceCursor struct {
	entries []sliceEntry
	pos     int // -1 = First, len(entries) = Last
}

type sliceEntry struct {
	key       string
	timestamp uint64
	value     string
	tombstone bool
}

func newSliceCursor(entries []sliceEntry) *sliceCursor {
	return &sliceCursor{entries: entries, pos: -1}
}

func (s *sliceCursor) Valid() bool { return s.pos >= 0 && s.pos < len(s.entries) }
func (s *sliceCursor) Key() []byte {
	if !s.Valid() {
		return nil
	}
	return []byte(s.entries[s.pos].key)
}
func (s *sliceCursor) Timestamp() uint64 {
	if !s.Valid() {
		return 0
	}
	return s.entries[s.pos].timestamp
}
func (s *sliceCursor) Value() []byte {
	if !s.Valid() || s.entries[s.pos].tombstone {
		return nil
	}
	return []byte(s.entries[s.pos].value)
}
func (s *sliceCursor) IsTombstone() bool {
	return s.Valid() && s.entries[s.pos].tombstone
}
// SeekToFirst positions the cursor conceptually before any entry, matching
// block.Cursor's contract: Next must be called to reach the first entry.
func (s *sliceCursor) SeekToFirst() error { s.pos = -1; return nil }

// SeekToLast positions the cursor conceptually after the last entry; Prev
// must be called to reach the actual last entry.
func (s *sliceCursor) SeekToLast() error { s.pos = len(s.entries); return nil }

func (s *sliceCursor) Seek(target []byte) error {
	for i, e := range s.entries {
		if string(target) <= e.key {
			s.pos = i
			return nil
		}
	}
	s.pos = len(s.entries)
	return nil
}
func (s *sliceCursor) Next() error {
	if s.pos < len(s.entries) {
		s.pos++
	}
	return nil
}
func (s *sliceCursor) Prev() error {
	if s.pos >= 0 {
		s.pos--
	}
	return nil
}

func collectForward(t *testing.T, c Cursor) []sliceEntry {
	t.Helper()
	var out []sliceEntry
	for {
		if err := c.Next(); err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if !c.Valid() {
			break
		}
		out = append(out, sliceEntry{
			key:       string(c.Key()),
			timestamp: c.Timestamp(),
			tombstone: c.IsTombstone(),
		})
		if !c.IsTombstone() {
			out[len(out)-1].value = string(c.Value())
		}
	}
	return out
}

// TestMergingCursorForward checks the universal merge property from
// spec.md §8: merging N sorted cursors produces one cursor whose output is
// sorted by the (key, timestamp) total order and equals the union of the
// inputs.
func TestMergingCursorForward(t *testing.T) {
	a := newSliceCursor([]sliceEntry{
		{key: "a", timestamp: 5, value: "a5"},
		{key: "c", timestamp: 3, value: "c3"},
	})
	b := newSliceCursor([]sliceEntry{
		{key: "b", timestamp: 4, value: "b4"},
		{key: "c", timestamp: 7, value: "c7"},
	})
	m := NewMergingCursor([]Cursor{a, b})
	if err := m.SeekToFirst(); err != nil {
		t.Fatalf("SeekToFirst() error = %v", err)
	}
	got := collectForward(t, m)
	want := []sliceEntry{
		{key: "a", timestamp: 5, value: "a5"},
		{key: "b", timestamp: 4, value: "b4"},
		{key: "c", timestamp: 7, value: "c7"},
		{key: "c", timestamp: 3, value: "c3"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// TestMergingCursorBackward checks that Prev reproduces the same total
// order in reverse.
func TestMergingCursorBackward(t *testing.T) {
	a := newSliceCursor([]sliceEntry{
		{key: "a", timestamp: 5, value: "a5"},
		{key: "c", timestamp: 3, value: "c3"},
	})
	b := newSliceCursor([]sliceEntry{
		{key: "b", timestamp: 4, value: "b4"},
		{key: "c", timestamp: 7, value: "c7"},
	})
	m := NewMergingCursor([]Cursor{a, b})
	if err := m.SeekToLast(); err != nil {
		t.Fatalf("SeekToLast() error = %v", err)
	}
	var got []string
	for {
		if err := m.Prev(); err != nil {
			t.Fatalf("Prev() error = %v", err)
		}
		if !m.Valid() {
			break
		}
		got = append(got, string(m.Key()))
	}
	want := []string{"c", "c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestMergingCursorDuplicateRejected checks that two children producing the
// identical (key, timestamp) pair surfaces as a LogicError rather than
// being silently resolved.
func TestMergingCursorDuplicateRejected(t *testing.T) {
	a := newSliceCursor([]sliceEntry{{key: "a", timestamp: 1, value: "x"}})
	b := newSliceCursor([]sliceEntry{{key: "a", timestamp: 1, value: "y"}})
	m := NewMergingCursor([]Cursor{a, b})
	if err := m.SeekToFirst(); err != nil {
		t.Fatalf("SeekToFirst() error = %v", err)
	}
	// The first Next resolves the initial position, landing on one of the
	// two tied entries; the second discovers its sibling still holds the
	// identical (key, timestamp).
	if err := m.Next(); err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	if err := m.Next(); err == nil {
		t.Fatalf("Next() over duplicate (key, timestamp) pairs should error")
	}
}

func TestMergingCursorSeek(t *testing.T) {
	a := newSliceCursor([]sliceEntry{
		{key: "a", timestamp: 1, value: "a1"},
		{key: "d", timestamp: 1, value: "d1"},
	})
	b := newSliceCursor([]sliceEntry{
		{key: "b", timestamp: 1, value: "b1"},
		{key: "c", timestamp: 1, value: "c1"},
	})
	m := NewMergingCursor([]Cursor{a, b})
	if err := m.Seek([]byte("b")); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if !m.Valid() || string(m.Key()) != "b" {
		t.Fatalf("Seek(b) landed on %q, want b", m.Key())
	}
}
