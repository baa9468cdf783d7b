package sst

import (
	"io"

	"github.com/rescrv-labs/lsmkv/block"
	"github.com/rescrv-labs/lsmkv/compression"
	"github.com/rescrv-labs/lsmkv/keys"
	"github.com/rescrv-labs/lsmkv/lsmerr"
	"github.com/rescrv-labs/lsmkv/options"
	"github.com/rescrv-labs/lsmkv/wire"
)

// syncer is implemented by *os.File and similar; Seal calls Sync
// opportunistically (matching original_source/lp/src/sst.rs's seal()
// calling sync_all) but works over any io.Writer when the underlying file
// doesn't need or support it.
type syncer interface {
	Sync() error
}

// Builder accepts a strictly ordered stream of PUT/DEL entries, seals
// them into data Blocks bounded by TargetBlockSize, and on Seal writes a
// trailing index Block plus a FinalBlock footer to w. Grounded on
// original_source/lp/src/sst.rs's SSTBuilder: start_new_block/flush_block/
// get_block/put/del/seal, including the divider-key computation via
// keys.Divider at each block boundary.
type Builder struct {
	opts options.SstOptions
	w    io.Writer

	lastKey       []byte
	lastTimestamp uint64

	blockBuilder *block.Builder
	bytesWritten uint64

	indexBlock *block.Builder
	meta       metadataBuilder

	sealed bool
}

// NewBuilder creates a Builder that writes to w.
func NewBuilder(w io.Writer, opts options.SstOptions) *Builder {
	opts = opts.Validate()
	return &Builder{
		opts:          opts,
		w:             w,
		lastTimestamp: ^uint64(0),
		indexBlock:    block.NewBuilder(options.DefaultBlockOptions()),
	}
}

// ApproximateSize is an upper bound on the file size were Seal called
// immediately.
func (b *Builder) ApproximateSize() uint64 {
	sum := b.bytesWritten
	if b.blockBuilder != nil {
		sum += b.blockBuilder.ApproximateSize()
	}
	sum += 1 + b.indexBlock.ApproximateSize()
	sum += finalBlockMaxSize
	return sum
}

// finalBlockMaxSize upper-bounds the trailing FinalBlock record: an outer
// tag+len, a nested BlockMetadata (two varints, 10 bytes each worst case),
// and the fixed64 offset field plus its tag.
const finalBlockMaxSize = 2 + 2*11 + 2 + 8

func (b *Builder) enforceSortOrder(key []byte, timestamp uint64) error {
	if !keys.Less(b.lastKey, b.lastTimestamp, key, timestamp) {
		return lsmerr.New(lsmerr.SortOrder, "append violates the ordering invariant").
			With("last_key", string(b.lastKey)).
			With("last_timestamp", b.lastTimestamp).
			With("new_key", string(key)).
			With("new_timestamp", timestamp)
	}
	return nil
}

func (b *Builder) assignLastKey(key []byte, timestamp uint64) {
	b.lastKey = append(b.lastKey[:0], key...)
	b.lastTimestamp = timestamp
}

func (b *Builder) startNewBlock() error {
	if b.blockBuilder != nil {
		return lsmerr.New(lsmerr.LogicError, "startNewBlock called with a block already open")
	}
	b.blockBuilder = block.NewBuilder(b.opts.Block)
	return nil
}

// flushBlock seals the open block, writes its framed record to w, records
// its BlockMetadata in the index block under a divider key that falls
// strictly between the sealed block's last entry and (key, timestamp),
// the first entry of the block that follows.
func (b *Builder) flushBlock(key []byte, timestamp uint64, hasNext bool) error {
	if b.blockBuilder == nil {
		return lsmerr.New(lsmerr.LogicError, "flushBlock called with no open block")
	}
	blk, err := b.blockBuilder.Seal()
	if err != nil {
		return err
	}
	b.blockBuilder = nil

	start := b.bytesWritten
	var record []byte
	if b.opts.Compression == compression.CodecNone {
		record = wire.AppendTaggedBytes(nil, tagPlainBlock, blk.Bytes())
	} else {
		record, err = appendCompressedBlock(nil, b.opts.Compression, blk.Bytes())
		if err != nil {
			return err
		}
	}
	n, err := b.w.Write(record)
	if err != nil {
		return lsmerr.Wrap(lsmerr.IoError, "writing data block", err)
	}
	b.bytesWritten += uint64(n)

	meta := blockMetadata{start: start, limit: b.bytesWritten}
	if err := meta.sanityCheck(); err != nil {
		return err
	}

	dk, dt := keys.Divider(b.lastKey, b.lastTimestamp, key, timestamp, hasNext)
	return b.indexBlock.Put(dk, dt, appendBlockMetadata(nil, meta))
}

func (b *Builder) getBlock(key []byte, timestamp uint64) (*block.Builder, error) {
	if b.blockBuilder == nil {
		if err := b.startNewBlock(); err != nil {
			return nil, err
		}
	} else if b.blockBuilder.ApproximateSize() > b.opts.TargetBlockSize {
		if err := b.flushBlock(key, timestamp, true); err != nil {
			return nil, err
		}
		if err := b.startNewBlock(); err != nil {
			return nil, err
		}
	}
	return b.blockBuilder, nil
}

func checkKeyLen(key []byte) error {
	if len(key) == 0 || len(key) > options.MaxKeySize {
		return lsmerr.New(lsmerr.KeyTooLong, "key length out of range").With("length", len(key))
	}
	return nil
}

func checkValueLen(value []byte) error {
	if len(value) > options.MaxValueSize {
		return lsmerr.New(lsmerr.ValueTooLong, "value length out of range").With("length", len(value))
	}
	return nil
}

func checkTableSize(size uint64) error {
	if size > options.MaxBlockSize {
		return lsmerr.New(lsmerr.TableFull, "sst size budget exceeded").With("size", size)
	}
	return nil
}

// Put appends a PUT entry.
func (b *Builder) Put(key []byte, timestamp uint64, value []byte) error {
	if err := checkKeyLen(key); err != nil {
		return err
	}
	if err := checkValueLen(value); err != nil {
		return err
	}
	if err := checkTableSize(b.ApproximateSize()); err != nil {
		return err
	}
	if err := b.enforceSortOrder(key, timestamp); err != nil {
		return err
	}
	blk, err := b.getBlock(key, timestamp)
	if err != nil {
		return err
	}
	if err := blk.Put(key, timestamp, value); err != nil {
		return err
	}
	b.meta.observe(key, timestamp, value, false)
	b.assignLastKey(key, timestamp)
	return nil
}

// Del appends a tombstone DEL entry.
func (b *Builder) Del(key []byte, timestamp uint64) error {
	if err := checkKeyLen(key); err != nil {
		return err
	}
	if err := checkTableSize(b.ApproximateSize()); err != nil {
		return err
	}
	if err := b.enforceSortOrder(key, timestamp); err != nil {
		return err
	}
	blk, err := b.getBlock(key, timestamp)
	if err != nil {
		return err
	}
	if err := blk.Del(key, timestamp); err != nil {
		return err
	}
	b.meta.observe(key, timestamp, nil, true)
	b.assignLastKey(key, timestamp)
	return nil
}

// Seal flushes any open block, writes the index block and FinalBlock
// footer, and returns the SST's Metadata. Seal must be called exactly
// once; the Builder must not be reused afterward.
func (b *Builder) Seal() (Metadata, error) {
	if b.sealed {
		return Metadata{}, lsmerr.New(lsmerr.LogicError, "Seal called twice")
	}
	b.sealed = true

	if b.blockBuilder != nil {
		successor := keys.MinimalSuccessor(b.lastKey)
		if err := b.flushBlock(successor, 0, false); err != nil {
			return Metadata{}, err
		}
	}

	indexBlk, err := b.indexBlock.Seal()
	if err != nil {
		return Metadata{}, err
	}
	indexStart := b.bytesWritten
	record := wire.AppendTaggedBytes(nil, tagPlainBlock, indexBlk.Bytes())
	n, err := b.w.Write(record)
	if err != nil {
		return Metadata{}, lsmerr.Wrap(lsmerr.IoError, "writing index block", err)
	}
	b.bytesWritten += uint64(n)
	indexLimit := b.bytesWritten

	fb := finalBlock{
		indexBlock:       blockMetadata{start: indexStart, limit: indexLimit},
		finalBlockOffset: b.bytesWritten,
	}
	n, err = b.w.Write(wire.AppendTaggedBytes(nil, tagFinalBlock, appendFinalBlock(nil, fb)))
	if err != nil {
		return Metadata{}, lsmerr.Wrap(lsmerr.IoError, "writing final block", err)
	}
	b.bytesWritten += uint64(n)

	if s, ok := b.w.(syncer); ok {
		if err := s.Sync(); err != nil {
			return Metadata{}, lsmerr.Wrap(lsmerr.IoError, "syncing sst file", err)
		}
	}

	return b.meta.finish(b.bytesWritten), nil
}
