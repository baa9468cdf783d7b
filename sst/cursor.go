package sst

import (
	"github.com/rescrv-labs/lsmkv/block"
	"github.com/rescrv-labs/lsmkv/lsmerr"
)

// Cursor is a bidirectional cursor over an SST's entries: a meta cursor
// walks the index block to locate the covering data block, and a data
// cursor (loaded lazily, one block at a time) walks within it. Grounded
// on original_source/lp/src/sst.rs's SSTCursor, including its recursive
// next/prev: when a data block is exhausted in the requested direction,
// the cursor drops it and recurses to load the neighbouring block.
type Cursor struct {
	table      *Reader
	metaCursor *block.Cursor
	dataCursor *block.Cursor
}

func (c *Cursor) metadataFromMeta() (blockMetadata, error) {
	value := c.metaCursor.Value()
	if value == nil {
		return blockMetadata{}, lsmerr.New(lsmerr.Corruption, "meta block has a nil value")
	}
	return decodeBlockMetadata(value)
}

// metaNext advances the meta cursor and returns the BlockMetadata it now
// points to, or ok=false if the meta cursor ran off the end (in which
// case the cursor is left at Last).
func (c *Cursor) metaNext() (blockMetadata, bool, error) {
	if err := c.metaCursor.Next(); err != nil {
		return blockMetadata{}, false, err
	}
	if !c.metaCursor.Valid() {
		if err := c.SeekToLast(); err != nil {
			return blockMetadata{}, false, err
		}
		return blockMetadata{}, false, nil
	}
	m, err := c.metadataFromMeta()
	return m, true, err
}

// metaPrev retreats the meta cursor and returns the BlockMetadata it now
// points to, or ok=false if it ran off the start (in which case the
// cursor is left at First).
func (c *Cursor) metaPrev() (blockMetadata, bool, error) {
	if err := c.metaCursor.Prev(); err != nil {
		return blockMetadata{}, false, err
	}
	if !c.metaCursor.Valid() {
		if err := c.SeekToFirst(); err != nil {
			return blockMetadata{}, false, err
		}
		return blockMetadata{}, false, nil
	}
	m, err := c.metadataFromMeta()
	return m, true, err
}

// Valid reports whether the cursor is positioned at an entry.
func (c *Cursor) Valid() bool {
	return c.dataCursor != nil && c.dataCursor.Valid()
}

// Key returns the current entry's key.
func (c *Cursor) Key() []byte {
	if !c.Valid() {
		return nil
	}
	return c.dataCursor.Key()
}

// Timestamp returns the current entry's timestamp.
func (c *Cursor) Timestamp() uint64 {
	if !c.Valid() {
		return 0
	}
	return c.dataCursor.Timestamp()
}

// Value returns the current entry's value.
func (c *Cursor) Value() []byte {
	if !c.Valid() {
		return nil
	}
	return c.dataCursor.Value()
}

// IsTombstone reports whether the current entry is a DEL.
func (c *Cursor) IsTombstone() bool {
	if !c.Valid() {
		return false
	}
	return c.dataCursor.IsTombstone()
}

// SeekToFirst positions the cursor conceptually before any entry.
func (c *Cursor) SeekToFirst() error {
	if err := c.metaCursor.SeekToFirst(); err != nil {
		return err
	}
	c.dataCursor = nil
	return nil
}

// SeekToLast positions the cursor conceptually after the last entry;
// call Prev to reach the actual last entry.
func (c *Cursor) SeekToLast() error {
	if err := c.metaCursor.SeekToLast(); err != nil {
		return err
	}
	c.dataCursor = nil
	return nil
}

// Seek positions the cursor at the first entry with key >= target. The
// meta cursor's Seek lands positioned AT the covering divider (block
// cursors are positioned-at, not half-open), so the covering block's
// metadata is read directly off the current meta position rather than
// by advancing to the next divider.
func (c *Cursor) Seek(target []byte) error {
	if err := c.metaCursor.Seek(target); err != nil {
		return err
	}
	if !c.metaCursor.Valid() {
		return c.SeekToLast()
	}
	meta, err := c.metadataFromMeta()
	if err != nil {
		return err
	}
	blk, err := loadBlock(c.table.file, meta)
	if err != nil {
		return err
	}
	dc := blk.Cursor()
	if err := dc.Seek(target); err != nil {
		return err
	}
	c.dataCursor = dc
	if !dc.Valid() {
		// target sorts after every entry of the covering block, so the
		// first entry >= target, if any, opens the next block.
		c.dataCursor = nil
		return c.Next()
	}
	return nil
}

// Next advances to the next entry. When the current data block is
// exhausted going forward, it loads the next block named by the index
// and recurses.
func (c *Cursor) Next() error {
	if c.dataCursor == nil {
		meta, ok, err := c.metaNext()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		blk, err := loadBlock(c.table.file, meta)
		if err != nil {
			return err
		}
		dc := blk.Cursor()
		if err := dc.SeekToFirst(); err != nil {
			return err
		}
		c.dataCursor = dc
	}
	if err := c.dataCursor.Next(); err != nil {
		return err
	}
	if c.dataCursor.Valid() {
		return nil
	}
	c.dataCursor = nil
	return c.Next()
}

// Prev moves to the previous entry, recursing into the preceding data
// block when the current one is exhausted going backward.
func (c *Cursor) Prev() error {
	if c.dataCursor == nil {
		meta, ok, err := c.metaPrev()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		blk, err := loadBlock(c.table.file, meta)
		if err != nil {
			return err
		}
		dc := blk.Cursor()
		if err := dc.SeekToLast(); err != nil {
			return err
		}
		c.dataCursor = dc
	}
	if err := c.dataCursor.Prev(); err != nil {
		return err
	}
	if c.dataCursor.Valid() {
		return nil
	}
	c.dataCursor = nil
	return c.Prev()
}
