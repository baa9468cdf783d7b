// Package block implements the prefix-compressed, restart-indexed Block:
// the base storage unit of an SST. A Block Builder accepts a strictly
// ordered stream of PUT/DEL entries and seals them into an immutable
// byte buffer; Block and Cursor read that buffer back with
// binary-searchable seek and bidirectional iteration.
//
// The byte layout and cursor state machine are grounded on
// original_source/sst/src/block.rs; the builder's Go shape (panic-free
// error returns, an approximate-size budget, a reused sharedPrefixLength
// helper) follows internal/block/builder.go.
package block

import (
	"github.com/rescrv-labs/lsmkv/keys"
	"github.com/rescrv-labs/lsmkv/lsmerr"
	"github.com/rescrv-labs/lsmkv/options"
	"github.com/rescrv-labs/lsmkv/wire"
)

// Builder accumulates PUT/DEL entries in sorted order and seals them into
// a Block. A Builder must not be reused after Seal.
type Builder struct {
	opts options.BlockOptions

	buf           []byte
	lastKey       []byte
	lastTimestamp uint64

	restarts          []uint32
	bytesSinceRestart uint64
	kvpSinceRestart   uint64
}

// NewBuilder creates a Builder with the given options (validated/clamped).
func NewBuilder(opts options.BlockOptions) *Builder {
	return &Builder{
		opts:          opts.Validate(),
		restarts:      []uint32{0},
		lastTimestamp: ^uint64(0),
	}
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
		return lsmerr.New(lsmerr.TableFull, "block size budget exceeded").With("size", size)
	}
	return nil
}

// ApproximateSize is an upper bound on the on-disk size were Seal called
// immediately: buffered entry bytes plus the restart array and footer
// constants.
func (b *Builder) ApproximateSize() uint64 {
	return uint64(len(b.buf)) + 16 + uint64(len(b.restarts))*4
}

func (b *Builder) shouldRestart() bool {
	return b.opts.BytesRestartInterval <= b.bytesSinceRestart ||
		b.opts.KVPRestartInterval <= b.kvpSinceRestart
}

// computeKeyFrag returns the shared-prefix length and the remaining key
// fragment to encode for key, triggering a restart (and resetting the
// restart counters) when the current restart region has grown large
// enough.
func (b *Builder) computeKeyFrag(key []byte) (int, []byte) {
	var shared int
	if !b.shouldRestart() {
		shared = keys.SharedPrefixLength(b.lastKey, key)
	} else {
		b.bytesSinceRestart = 0
		b.kvpSinceRestart = 0
		b.restarts = append(b.restarts, uint32(len(b.buf)))
		shared = 0
	}
	return shared, key[shared:]
}

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

func (b *Builder) append(isDel bool, shared int, keyFrag []byte, timestamp uint64, value []byte) {
	b.lastKey = append(b.lastKey[:shared], keyFrag...)
	b.lastTimestamp = timestamp

	before := len(b.buf)
	b.buf = appendEntry(b.buf, isDel, uint64(shared), keyFrag, timestamp, value)
	b.bytesSinceRestart += uint64(len(b.buf) - before)
	b.kvpSinceRestart++
}

// Put appends a PUT entry. Fails with KeyTooLong, ValueTooLong, TableFull,
// or SortOrder.
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
	shared, keyFrag := b.computeKeyFrag(key)
	b.append(false, shared, keyFrag, timestamp, value)
	return nil
}

// Del appends a tombstone DEL entry. Fails with KeyTooLong, TableFull, or
// SortOrder.
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
	shared, keyFrag := b.computeKeyFrag(key)
	b.append(true, shared, keyFrag, timestamp, nil)
	return nil
}

// Seal emits the restart array and final footer, consuming the builder
// and producing an immutable Block.
func (b *Builder) Seal() (*Block, error) {
	restartBytes := make([]byte, 0, len(b.restarts)*4)
	for _, r := range b.restarts {
		restartBytes = wire.AppendFixed32(restartBytes, r)
	}
	out := wire.AppendTaggedBytes(b.buf, fieldFooterRestarts, restartBytes)
	out = wire.AppendTaggedFixed32(out, fieldFooterCapstone, uint32(len(b.restarts)))
	return New(out)
}
