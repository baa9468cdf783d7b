package cursor

import "github.com/rescrv-labs/lsmkv/keys"

// BoundsCursor clips a child cursor to the half-open key range
// [start, end): start == nil means unbounded below, end == nil means
// unbounded above. Entries outside the range are invisible even if the
// child cursor could reach them; RangeScan uses this to stop a merge at
// a query's boundaries without teaching every leaf cursor about bounds.
type BoundsCursor struct {
	child      Cursor
	start, end []byte
}

// NewBoundsCursor wraps child and calls SeekToFirst: with a start bound the
// child is sought to start; without one the cursor is left before the
// child's first entry until Next is called.
func NewBoundsCursor(child Cursor, start, end []byte) (*BoundsCursor, error) {
	b := &BoundsCursor{child: child, start: start, end: end}
	if err := b.SeekToFirst(); err != nil {
		return nil, err
	}
	return b, nil
}

// Valid reports whether the cursor is positioned at an entry within
// bounds.
func (b *BoundsCursor) Valid() bool {
	if !b.child.Valid() {
		return false
	}
	k := b.child.Key()
	if b.start != nil && keys.CompareKeys(k, b.start) < 0 {
		return false
	}
	if b.end != nil && keys.CompareKeys(k, b.end) >= 0 {
		return false
	}
	return true
}

// Key returns the current entry's key.
func (b *BoundsCursor) Key() []byte {
	if !b.Valid() {
		return nil
	}
	return b.child.Key()
}

// Timestamp returns the current entry's timestamp.
func (b *BoundsCursor) Timestamp() uint64 {
	if !b.Valid() {
		return 0
	}
	return b.child.Timestamp()
}

// Value returns the current entry's value.
func (b *BoundsCursor) Value() []byte {
	if !b.Valid() {
		return nil
	}
	return b.child.Value()
}

// IsTombstone reports whether the current entry is a DEL.
func (b *BoundsCursor) IsTombstone() bool {
	if !b.Valid() {
		return false
	}
	return b.child.IsTombstone()
}

// SeekToFirst seeks the child to start; when unbounded below it calls the
// child's SeekToFirst, which leaves the cursor before the first entry until
// Next is called.
func (b *BoundsCursor) SeekToFirst() error {
	if b.start != nil {
		return b.child.Seek(b.start)
	}
	return b.child.SeekToFirst()
}

// SeekToLast positions the cursor conceptually after the last entry
// within bounds; call Prev to reach the actual last entry. Seeking to
// end itself (rather than calling the child's SeekToLast) keeps this
// O(1) when the range is bounded above.
func (b *BoundsCursor) SeekToLast() error {
	if b.end != nil {
		return b.child.Seek(b.end)
	}
	return b.child.SeekToLast()
}

// Seek positions at the first entry with key >= target, clamped so a
// target below start never escapes the lower bound.
func (b *BoundsCursor) Seek(target []byte) error {
	if b.start != nil && keys.CompareKeys(target, b.start) < 0 {
		target = b.start
	}
	return b.child.Seek(target)
}

// Next advances to the next entry; Valid reports false once it leaves
// bounds.
func (b *BoundsCursor) Next() error {
	return b.child.Next()
}

// Prev moves to the previous entry; Valid reports false once it leaves
// bounds.
func (b *BoundsCursor) Prev() error {
	return b.child.Prev()
}
