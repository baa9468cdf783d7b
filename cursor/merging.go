package cursor

import (
	"bytes"
	"container/heap"

	"github.com/rescrv-labs/lsmkv/keys"
	"github.com/rescrv-labs/lsmkv/lsmerr"
)

// MergingCursor merges children sorted cursors into one sorted cursor over
// their union, using a min-heap over the (key, timestamp) total order to
// find the smallest current entry across children. Grounded on
// internal/iterator/merging_iterator.go's MergingIterator: Next is
// heap-optimised; Prev and SeekToLast fall back to an O(n) scan of the
// children, matching the teacher's own comment that this type is tuned
// for forward iteration.
//
// Two children producing the identical (key, timestamp) pair is a caller
// error: the levels a MergingCursor is built over must not contain the
// same (key, timestamp) twice, since that pair is the engine's identity
// for a single write. Next reports this as a LogicError rather than
// silently picking one.
type MergingCursor struct {
	children []Cursor
	h        mergeHeap
	current  int
	pending  pendingSeek
}

// pendingSeek records that SeekToFirst or SeekToLast positioned every
// child conceptually before/after its own run without resolving a real
// entry yet, matching the half-open SeekToFirst/SeekToLast contract: the
// first Next (resp. Prev) call resolves children to their real boundary
// entry before picking the smallest (resp. largest) among them.
type pendingSeek int

const (
	pendingNone pendingSeek = iota
	pendingFirst
	pendingLast
)

// NewMergingCursor constructs a MergingCursor over children. The returned
// cursor starts unpositioned; call SeekToFirst, SeekToLast, or Seek.
func NewMergingCursor(children []Cursor) *MergingCursor {
	return &MergingCursor{
		children: children,
		current:  -1,
	}
}

type mergeHeapItem struct {
	idx       int
	key       []byte
	timestamp uint64
}

type mergeHeap []mergeHeapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	return keys.Less(h[i].key, h[i].timestamp, h[j].key, h[j].timestamp)
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(mergeHeapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Valid reports whether the cursor is positioned at an entry.
func (m *MergingCursor) Valid() bool {
	return m.current >= 0 && m.current < len(m.children)
}

// Key returns the current entry's key.
func (m *MergingCursor) Key() []byte {
	if !m.Valid() {
		return nil
	}
	return m.children[m.current].Key()
}

// Timestamp returns the current entry's timestamp.
func (m *MergingCursor) Timestamp() uint64 {
	if !m.Valid() {
		return 0
	}
	return m.children[m.current].Timestamp()
}

// Value returns the current entry's value.
func (m *MergingCursor) Value() []byte {
	if !m.Valid() {
		return nil
	}
	return m.children[m.current].Value()
}

// IsTombstone reports whether the current entry is a DEL.
func (m *MergingCursor) IsTombstone() bool {
	if !m.Valid() {
		return false
	}
	return m.children[m.current].IsTombstone()
}

func (m *MergingCursor) rebuildHeap(seek func(Cursor) error) error {
	m.h = m.h[:0]
	for i, c := range m.children {
		if err := seek(c); err != nil {
			return err
		}
		if c.Valid() {
			m.h = append(m.h, mergeHeapItem{idx: i, key: c.Key(), timestamp: c.Timestamp()})
		}
	}
	heap.Init(&m.h)
	m.findSmallest()
	return nil
}

func (m *MergingCursor) findSmallest() {
	if m.h.Len() == 0 {
		m.current = -1
		return
	}
	m.current = m.h[0].idx
}

// SeekToFirst positions the cursor conceptually before any entry: every
// child is positioned the same way, and no real entry is resolved until
// Next is called.
func (m *MergingCursor) SeekToFirst() error {
	if err := m.rebuildHeap(func(c Cursor) error { return c.SeekToFirst() }); err != nil {
		return err
	}
	m.pending = pendingFirst
	return nil
}

// Seek positions every child at its first entry with key >= target and
// selects the smallest across all of them.
func (m *MergingCursor) Seek(target []byte) error {
	if err := m.rebuildHeap(func(c Cursor) error { return c.Seek(target) }); err != nil {
		return err
	}
	m.pending = pendingNone
	return nil
}

// SeekToLast positions the cursor conceptually after the last entry;
// call Prev to reach the actual last entry. Children are merely told to
// seek to their own conceptual end; resolving the real largest entry is
// deferred to Prev, mirroring block.Cursor's SeekToLast/Prev pair.
func (m *MergingCursor) SeekToLast() error {
	for _, c := range m.children {
		if err := c.SeekToLast(); err != nil {
			return err
		}
	}
	m.h = m.h[:0]
	m.current = -1
	m.pending = pendingLast
	return nil
}

// Next advances the current child and re-heapifies, following
// MergingIterator.Next's update-then-fix pattern. The first call after
// SeekToFirst instead resolves every child from its conceptual
// before-first position to its real first entry.
func (m *MergingCursor) Next() error {
	if m.pending == pendingFirst {
		m.pending = pendingNone
		return m.rebuildHeap(func(c Cursor) error {
			if c.Valid() {
				return nil
			}
			return c.Next()
		})
	}
	if m.pending == pendingLast {
		// Conceptually after the last entry; nothing follows it.
		return nil
	}
	if !m.Valid() {
		return nil
	}
	prevKey := append([]byte(nil), m.children[m.current].Key()...)
	prevTS := m.children[m.current].Timestamp()

	if err := m.children[m.current].Next(); err != nil {
		return err
	}
	if m.children[m.current].Valid() {
		m.h[0].key = m.children[m.current].Key()
		m.h[0].timestamp = m.children[m.current].Timestamp()
		heap.Fix(&m.h, 0)
	} else {
		heap.Pop(&m.h)
	}
	m.findSmallest()

	if m.Valid() && bytes.Equal(m.children[m.current].Key(), prevKey) && m.children[m.current].Timestamp() == prevTS {
		return lsmerr.New(lsmerr.LogicError, "duplicate (key, timestamp) across merged cursors").
			With("key", string(prevKey)).With("timestamp", prevTS)
	}
	return nil
}

// Prev moves to the previous entry, scanning all children for the
// largest key strictly less than the current one. O(n) in the number of
// children, matching MergingIterator.Prev. The first call after
// SeekToLast instead resolves every child from its conceptual
// after-last position to its real last entry.
func (m *MergingCursor) Prev() error {
	if m.pending == pendingLast {
		m.pending = pendingNone
		largest := -1
		var largestKey []byte
		var largestTS uint64
		for i, c := range m.children {
			if !c.Valid() {
				if err := c.Prev(); err != nil {
					return err
				}
			}
			if !c.Valid() {
				continue
			}
			if largest == -1 || keys.Less(largestKey, largestTS, c.Key(), c.Timestamp()) {
				largest = i
				largestKey = c.Key()
				largestTS = c.Timestamp()
			}
		}
		m.current = largest
		if m.current >= 0 {
			return m.rebuildHeapAt()
		}
		return nil
	}
	if m.pending == pendingFirst {
		// Conceptually before the first entry; nothing precedes it.
		return nil
	}
	if !m.Valid() {
		return nil
	}
	curKey := append([]byte(nil), m.children[m.current].Key()...)
	curTS := m.children[m.current].Timestamp()

	if err := m.children[m.current].Prev(); err != nil {
		return err
	}

	largest := -1
	var largestKey []byte
	var largestTS uint64
	for i, c := range m.children {
		if !c.Valid() {
			continue
		}
		if !keys.Less(c.Key(), c.Timestamp(), curKey, curTS) {
			continue
		}
		if largest == -1 || keys.Less(largestKey, largestTS, c.Key(), c.Timestamp()) {
			largest = i
			largestKey = c.Key()
			largestTS = c.Timestamp()
		}
	}
	m.current = largest
	if m.current == -1 {
		m.pending = pendingFirst
	} else if err := m.rebuildHeapAt(); err != nil {
		return err
	}
	return nil
}

// rebuildHeapAt reconstructs the heap from every child's current position
// after a Prev, so a subsequent Next resumes heap-optimised forward
// iteration rather than leaving the heap stale.
func (m *MergingCursor) rebuildHeapAt() error {
	m.h = m.h[:0]
	for i, c := range m.children {
		if c.Valid() {
			m.h = append(m.h, mergeHeapItem{idx: i, key: c.Key(), timestamp: c.Timestamp()})
		}
	}
	heap.Init(&m.h)
	return nil
}
