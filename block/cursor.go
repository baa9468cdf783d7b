package block

import (
	"github.com/rescrv-labs/lsmkv/keys"
	"github.com/rescrv-labs/lsmkv/lsmerr"
)

type positionKind int

const (
	posFirst positionKind = iota
	posLast
	posPositioned
)

// Cursor is a bidirectional cursor over a Block. Its state is the tagged
// union First | Last | Positioned{restart_idx, offset, next_offset, key,
// timestamp} from original_source/sst/src/block.rs: the Positioned
// variant owns a materialised key buffer because the stored fragment is
// prefix-compressed against the previous entry, and that buffer is reused
// across Next to amortise allocation.
type Cursor struct {
	block *Block
	kind  positionKind

	restartIdx int
	offset     int
	nextOffset int
	key        []byte
	timestamp  uint64
}

// Valid reports whether the cursor is positioned at an entry.
func (c *Cursor) Valid() bool {
	return c.kind == posPositioned
}

// Key returns the current entry's key. Only meaningful when Valid.
func (c *Cursor) Key() []byte {
	if !c.Valid() {
		return nil
	}
	return c.key
}

// Timestamp returns the current entry's timestamp. Only meaningful when
// Valid.
func (c *Cursor) Timestamp() uint64 {
	if !c.Valid() {
		return 0
	}
	return c.timestamp
}

// IsTombstone reports whether the current entry is a DEL. Only
// meaningful when Valid.
func (c *Cursor) IsTombstone() bool {
	if !c.Valid() {
		return false
	}
	e, _, err := decodeEntry(c.block.bytes[:c.block.restartsBoundary], c.offset)
	if err != nil {
		return false
	}
	return e.isDel
}

// Value returns the current entry's value, re-parsing the entry at the
// cursor's offset to avoid retaining a copy. Returns nil for a tombstone
// or when the cursor is not positioned.
func (c *Cursor) Value() []byte {
	if !c.Valid() {
		return nil
	}
	e, _, err := decodeEntry(c.block.bytes[:c.block.restartsBoundary], c.offset)
	if err != nil {
		return nil
	}
	return e.value
}

// SeekToFirst positions the cursor conceptually before any entry. O(1).
func (c *Cursor) SeekToFirst() error {
	c.kind = posFirst
	return nil
}

// SeekToLast positions the cursor conceptually after the last entry.
// O(1).
func (c *Cursor) SeekToLast() error {
	c.kind = posLast
	c.offset = c.block.restartsBoundary
	c.nextOffset = c.block.restartsBoundary
	return nil
}

// seekRestart repositions the cursor at the entry starting at the given
// restart index.
func (c *Cursor) seekRestart(restartIdx int) error {
	if restartIdx >= c.block.numRestarts {
		return lsmerr.New(lsmerr.LogicError, "restart_idx exceeds num_restarts").
			With("restart_idx", restartIdx).With("num_restarts", c.block.numRestarts)
	}
	offset := c.block.restartPoint(restartIdx)
	if offset >= c.block.restartsBoundary {
		return lsmerr.New(lsmerr.Corruption, "offset exceeds restarts_boundary").
			With("offset", offset).With("restarts_boundary", c.block.restartsBoundary)
	}
	prevKey := c.takeKey()
	return c.extractKey(offset, prevKey)
}

// takeKey detaches the cursor's current key buffer for reuse, leaving the
// cursor without one.
func (c *Cursor) takeKey() []byte {
	k := c.key
	c.key = nil
	return k
}

// extractKey decodes the entry at offset and sets the cursor's position
// to it, or to Last if offset has reached the entry region's end. key is
// a buffer to reuse for the materialised key (may be nil).
func (c *Cursor) extractKey(offset int, key []byte) error {
	if offset >= c.block.restartsBoundary {
		c.kind = posLast
		c.offset = c.block.restartsBoundary
		c.nextOffset = c.block.restartsBoundary
		return nil
	}
	e, nextOffset, err := decodeEntry(c.block.bytes[:c.block.restartsBoundary], offset)
	if err != nil {
		return err
	}
	if int(e.shared) > len(key) {
		return lsmerr.New(lsmerr.Corruption, "shared prefix longer than previous key").
			With("shared", e.shared).With("offset", offset)
	}
	restartIdx := c.block.restartForOffset(offset)
	key = append(key[:e.shared], e.keyFrag...)

	c.kind = posPositioned
	c.restartIdx = restartIdx
	c.offset = offset
	c.nextOffset = nextOffset
	c.key = key
	c.timestamp = e.timestamp
	return nil
}

func (c *Cursor) curRestartIdx() int {
	switch c.kind {
	case posFirst:
		return 0
	case posLast:
		return c.block.numRestarts
	default:
		return c.restartIdx
	}
}

// Seek positions the cursor at the first entry with key >= target,
// binary-searching over restart points (comparing only keys; the
// timestamp is not part of the seek key — visibility is a PruningCursor's
// job) and then linear-scanning forward within the chosen region.
func (c *Cursor) Seek(target []byte) error {
	if c.block.numRestarts == 0 {
		return lsmerr.New(lsmerr.Corruption, "a block with 0 restarts")
	}

	left, right := 0, c.block.numRestarts-1
	for left < right {
		mid := left + (right-left+1)/2
		if err := c.seekRestart(mid); err != nil {
			return err
		}
		if !c.Valid() {
			return lsmerr.New(lsmerr.Corruption, "restart point returned no entry").With("restart_point", mid)
		}
		switch keys.CompareKeys(target, c.key) {
		case -1, 0:
			right = mid - 1
		default:
			left = mid
		}
	}
	if left != right {
		return lsmerr.New(lsmerr.Corruption, "binary search left != right").With("left", left).With("right", right)
	}

	if err := c.seekRestart(left); err != nil {
		return err
	}
	for c.Valid() && keys.CompareKeys(target, c.key) > 0 {
		if err := c.Next(); err != nil {
			return err
		}
	}
	return nil
}

// Next advances to the next entry, or stays at Last.
func (c *Cursor) Next() error {
	switch c.kind {
	case posFirst:
		return c.seekRestart(0)
	case posLast:
		return nil
	}

	offset := c.nextOffset
	if offset >= c.block.restartsBoundary {
		c.kind = posLast
		c.offset = c.block.restartsBoundary
		c.nextOffset = c.block.restartsBoundary
		return nil
	}

	if c.restartIdx+1 < c.block.numRestarts && c.block.restartPoint(c.restartIdx+1) <= offset {
		return c.seekRestart(c.restartIdx + 1)
	}

	prevKey := c.takeKey()
	return c.extractKey(offset, prevKey)
}

// Prev moves to the previous entry. To move back one entry, it locates
// the restart region containing the current offset (or the previous
// region, if the current offset is the first entry of its region) and
// scans forward until reaching the entry just before the current one.
// O(restart interval) amortised.
func (c *Cursor) Prev() error {
	var targetNextOffset int
	switch c.kind {
	case posFirst:
		return nil
	case posLast:
		targetNextOffset = c.block.restartsBoundary
	default:
		targetNextOffset = c.offset
	}

	if targetNextOffset == 0 {
		c.kind = posFirst
		return nil
	}

	currentRestartIdx := c.curRestartIdx()
	var restartIdx int
	if currentRestartIdx >= c.block.numRestarts || targetNextOffset <= c.block.restartPoint(currentRestartIdx) {
		if currentRestartIdx == 0 {
			return lsmerr.New(lsmerr.LogicError, "tried taking the -1st restart_idx")
		}
		restartIdx = currentRestartIdx - 1
	} else {
		restartIdx = currentRestartIdx
	}

	if err := c.seekRestart(restartIdx); err != nil {
		return err
	}
	for c.nextOffset < targetNextOffset {
		if err := c.Next(); err != nil {
			return err
		}
	}
	return nil
}
