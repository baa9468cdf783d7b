// Package options defines the configuration structs for block, SST, and
// tree construction, following internal/options' Options-struct pattern:
// documented defaults, builder-style setters, and a Validate step that
// clamps out-of-range values rather than erroring on them where the
// teacher/original implementation does the same.
package options

import (
	"github.com/rescrv-labs/lsmkv/compression"
	"github.com/rescrv-labs/lsmkv/logging"
)

// BlockOptions configures the Block Builder. Defaults are taken from
// original_source/sst's BlockBuilderOptions.
type BlockOptions struct {
	// BytesRestartInterval starts a new restart region when accumulated
	// encoded bytes since the last restart reach this value.
	BytesRestartInterval uint64
	// KVPRestartInterval starts a new restart region when the entry count
	// since the last restart reaches this value.
	KVPRestartInterval uint64
}

// DefaultBlockOptions returns the block builder defaults.
func DefaultBlockOptions() BlockOptions {
	return BlockOptions{
		BytesRestartInterval: 1024,
		KVPRestartInterval:   16,
	}
}

// WithBytesRestartInterval returns a copy of o with BytesRestartInterval set.
func (o BlockOptions) WithBytesRestartInterval(n uint64) BlockOptions {
	o.BytesRestartInterval = n
	return o
}

// WithKVPRestartInterval returns a copy of o with KVPRestartInterval set.
func (o BlockOptions) WithKVPRestartInterval(n uint64) BlockOptions {
	o.KVPRestartInterval = n
	return o
}

// Validate clamps zero-valued fields to their defaults; both intervals
// must be at least 1 or no restart would ever fire.
func (o BlockOptions) Validate() BlockOptions {
	if o.BytesRestartInterval == 0 {
		o.BytesRestartInterval = 1024
	}
	if o.KVPRestartInterval == 0 {
		o.KVPRestartInterval = 16
	}
	return o
}

// Size bounds, shared by block and SST builders.
const (
	MaxKeySize   = 64 * 1024
	MaxValueSize = 1 << 28
	// MaxBlockSize is the TableFull threshold for a single block's
	// approximate size.
	MaxBlockSize = 1 << 30
)

// SstOptions configures the SST Builder.
type SstOptions struct {
	Block BlockOptions
	// Compression selects the codec new data and index blocks are
	// written with. CodecNone by default, matching spec.md's data model
	// exactly unless a caller opts in.
	Compression compression.Codec
	// TargetBlockSize clamps to [2^12, 2^24]; once the open block
	// builder's approximate size exceeds this, the block is sealed and a
	// new one begun.
	TargetBlockSize uint64
}

const (
	minTargetBlockSize = 1 << 12
	maxTargetBlockSize = 1 << 24
)

// DefaultSstOptions returns the SST builder defaults.
func DefaultSstOptions() SstOptions {
	return SstOptions{
		Block:           DefaultBlockOptions(),
		Compression:     compression.CodecNone,
		TargetBlockSize: 1 << 16,
	}
}

// Validate clamps TargetBlockSize into range and validates the nested
// BlockOptions.
func (o SstOptions) Validate() SstOptions {
	o.Block = o.Block.Validate()
	switch {
	case o.TargetBlockSize == 0:
		o.TargetBlockSize = 1 << 16
	case o.TargetBlockSize < minTargetBlockSize:
		o.TargetBlockSize = minTargetBlockSize
	case o.TargetBlockSize > maxTargetBlockSize:
		o.TargetBlockSize = maxTargetBlockSize
	}
	if !o.Compression.IsKnown() {
		o.Compression = compression.CodecNone
	}
	return o
}

// NumLevels is the fixed level count of a Tree snapshot, matching
// original_source/lsmtk's NUM_LEVELS.
const NumLevels = 16

// TreeOptions configures a Tree's compaction planner thresholds, grounded
// on the `options.*` fields original_source/lsmtk/src/tree/mod.rs reads
// off its LsmtkOptions (l0_write_stall_threshold_files,
// l0_mandatory_compaction_threshold_files/bytes, max_compaction_bytes,
// max_compaction_files, max_open_files).
type TreeOptions struct {
	// L0WriteStallThresholdFiles tells an ingest caller to stall new
	// writes once L0 holds at least this many SSTs.
	L0WriteStallThresholdFiles int
	// L0WriteStallThresholdBytes is the byte-size analog.
	L0WriteStallThresholdBytes uint64
	// L0MandatoryCompactionThresholdFiles forces a compaction out of L0
	// once it holds at least this many SSTs, regardless of scoring.
	L0MandatoryCompactionThresholdFiles int
	// L0MandatoryCompactionThresholdBytes is the byte-size analog.
	L0MandatoryCompactionThresholdBytes uint64
	// MaxCompactionBytes bounds a single compaction's total input size
	// for any compaction not rooted at L0.
	MaxCompactionBytes uint64
	// MaxCompactionFiles bounds a single compaction's input SST count.
	MaxCompactionFiles int
	// MaxOpenFiles bounds how many SST file handles may be held open by
	// a single compaction (and, via the file cache, by the tree overall).
	MaxOpenFiles int
	// Logger receives a Debug event for each compaction NextCompaction
	// emits. Defaults to logging.Discard.
	Logger logging.Logger
}

// DefaultTreeOptions returns conservative tree/compaction defaults.
func DefaultTreeOptions() TreeOptions {
	return TreeOptions{
		L0WriteStallThresholdFiles:           12,
		L0WriteStallThresholdBytes:           384 << 20,
		L0MandatoryCompactionThresholdFiles:  8,
		L0MandatoryCompactionThresholdBytes:  256 << 20,
		MaxCompactionBytes:                   4 << 30,
		MaxCompactionFiles:                   64,
		MaxOpenFiles:                         512,
		Logger:                               logging.Discard,
	}
}

// Validate clamps zero/negative fields to their defaults.
func (o TreeOptions) Validate() TreeOptions {
	d := DefaultTreeOptions()
	if o.L0WriteStallThresholdFiles <= 0 {
		o.L0WriteStallThresholdFiles = d.L0WriteStallThresholdFiles
	}
	if o.L0WriteStallThresholdBytes == 0 {
		o.L0WriteStallThresholdBytes = d.L0WriteStallThresholdBytes
	}
	if o.L0MandatoryCompactionThresholdFiles <= 0 {
		o.L0MandatoryCompactionThresholdFiles = d.L0MandatoryCompactionThresholdFiles
	}
	if o.L0MandatoryCompactionThresholdBytes == 0 {
		o.L0MandatoryCompactionThresholdBytes = d.L0MandatoryCompactionThresholdBytes
	}
	if o.MaxCompactionBytes == 0 {
		o.MaxCompactionBytes = d.MaxCompactionBytes
	}
	if o.MaxCompactionFiles <= 0 {
		o.MaxCompactionFiles = d.MaxCompactionFiles
	}
	if o.MaxOpenFiles <= 0 {
		o.MaxOpenFiles = d.MaxOpenFiles
	}
	o.Logger = logging.OrDefault(o.Logger)
	return o
}
