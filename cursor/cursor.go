// Package cursor provides the combinators that compose block.Cursor-shaped
// leaves into the read paths a Tree snapshot needs: MergingCursor folds
// many sorted cursors into one (k-way merge over the reverse-timestamp
// total order), PruningCursor applies MVCC visibility by dropping any
// version newer than a read timestamp and all but the most recent visible
// version of each key, and BoundsCursor clips a cursor to a half-open key
// range for range scans.
//
// All three are grounded on internal/iterator/merging_iterator.go's
// Iterator interface and container/heap-based MergingIterator, adapted to
// this engine's Key/Timestamp/Value/IsTombstone surface (rather than a
// single opaque internal key) and to the reverse-timestamp ordering in
// github.com/rescrv-labs/lsmkv/keys instead of dbformat's sequence-number
// ordering.
package cursor

// Cursor is the shape every leaf and combinator in this package
// implements. It matches block.Cursor's method set exactly so a
// block.Cursor satisfies Cursor without an adapter.
type Cursor interface {
	// Valid reports whether the cursor is positioned at an entry.
	Valid() bool
	// Key returns the current entry's key. Only meaningful when Valid.
	Key() []byte
	// Timestamp returns the current entry's timestamp. Only meaningful
	// when Valid.
	Timestamp() uint64
	// Value returns the current entry's value, or nil for a tombstone.
	// Only meaningful when Valid.
	Value() []byte
	// IsTombstone reports whether the current entry is a DEL. Only
	// meaningful when Valid.
	IsTombstone() bool

	// SeekToFirst positions the cursor conceptually before any entry.
	SeekToFirst() error
	// SeekToLast positions the cursor conceptually after the last entry;
	// call Prev to reach the actual last entry.
	SeekToLast() error
	// Seek positions the cursor at the first entry with key >= target.
	Seek(target []byte) error
	// Next advances to the next entry, or stays put if already past the
	// last entry.
	Next() error
	// Prev moves to the previous entry, or stays put if already before
	// the first entry.
	Prev() error
}
