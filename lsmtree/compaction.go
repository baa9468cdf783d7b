package lsmtree

import (
	"sync/atomic"

	"github.com/rescrv-labs/lsmkv/keys"
	"github.com/rescrv-labs/lsmkv/options"
	"github.com/rescrv-labs/lsmkv/setsum"
	"github.com/rescrv-labs/lsmkv/sst"
)

// CompactionID identifies a planned compaction, monotonically increasing
// and process-local: the manifest, not the core, owns crash-durable
// identity for applied compactions, so this only needs to disambiguate
// concurrently-ongoing ones for logging.
type CompactionID uint64

var nextCompactionID atomic.Uint64

func newCompactionID() CompactionID {
	return CompactionID(nextCompactionID.Add(1))
}

// CompactionCore is the compaction descriptor spec.md §3 names:
// {id, lower_level, upper_level, first_key, last_key, inputs, size}.
// While a CompactionCore is in a Tree's ongoing set, its input footprint
// is reserved against overlap with any other candidate.
type CompactionCore struct {
	ID         CompactionID
	LowerLevel int
	UpperLevel int
	FirstKey   []byte
	LastKey    []byte
	Inputs     []setsum.Setsum
	Size       uint64
}

// Overlapping reports whether lhs and rhs reserve any of the same level
// span and key interval: the test may_choose_compaction performs against
// the ongoing set before admitting a new candidate.
func Overlapping(lhs, rhs *CompactionCore) bool {
	return lhs.LowerLevel <= rhs.UpperLevel &&
		rhs.LowerLevel <= lhs.UpperLevel &&
		keys.CompareKeys(lhs.FirstKey, rhs.LastKey) <= 0 &&
		keys.CompareKeys(rhs.FirstKey, lhs.LastKey) <= 0
}

func containsSetsum(inputs []setsum.Setsum, s setsum.Setsum) bool {
	for _, x := range inputs {
		if x.Equal(s) {
			return true
		}
	}
	return false
}

func allSSTsIncluded(ssts []sst.Metadata, inputs []setsum.Setsum) bool {
	for _, md := range ssts {
		if !containsSetsum(inputs, md.Setsum) {
			return false
		}
	}
	return true
}

// Compaction is an immutable handle to a planned compaction, returned by
// Tree.NextCompaction and consumed by Tree.ApplyCompaction/
// Tree.ReleaseCompaction. It wraps a *CompactionCore by pointer, the way
// the original wraps one in an Arc, so the ongoing set can track identity
// with a pointer comparison rather than a separately generated handle.
type Compaction struct {
	core *CompactionCore
}

// ID returns the compaction's identifier.
func (c Compaction) ID() CompactionID { return c.core.ID }

// LowerLevel is the lowest level the compaction reads from.
func (c Compaction) LowerLevel() int { return c.core.LowerLevel }

// UpperLevel is the level the compaction's outputs are written to.
func (c Compaction) UpperLevel() int { return c.core.UpperLevel }

// TopLevel reports whether the compaction targets the bottom level.
func (c Compaction) TopLevel() bool { return c.core.UpperLevel == options.NumLevels-1 }

// FirstKey and LastKey bound the compaction's key interval, inclusive.
func (c Compaction) FirstKey() []byte { return c.core.FirstKey }
func (c Compaction) LastKey() []byte  { return c.core.LastKey }

// Size is the total file size of the compaction's inputs.
func (c Compaction) Size() uint64 { return c.core.Size }

// Inputs returns the setsums of every SST the compaction reads from.
func (c Compaction) Inputs() []setsum.Setsum {
	out := make([]setsum.Setsum, len(c.core.Inputs))
	copy(out, c.core.Inputs)
	return out
}
