// Package lsmtree implements the LSM Tree snapshot: an immutable,
// per-level view of SST metadata answering point and range lookups with
// timestamped (MVCC) visibility, plus the compaction planner that selects
// which SSTs to merge into a higher level. Grounded on
// original_source/lsmtk/src/tree/mod.rs's Level/CompactionCore/Compaction/
// Tree, translated to Go: a Tree snapshot is copy-on-write (Ingest and
// ApplyCompaction return a new *Tree rather than mutating in place), while
// the ongoing-compaction set is shared by every snapshot derived from a
// common ancestor, the way the original shares an Arc<Mutex<...>> across
// Tree::clone.
package lsmtree

import (
	"github.com/rescrv-labs/lsmkv/keys"
	"github.com/rescrv-labs/lsmkv/sst"
)

// Level holds one level's SST metadata. For level 0 the SSTs may overlap
// in key range; for every level i >= 1 they are pairwise key-disjoint and
// sorted by FirstKey (spec.md §4.6).
type Level struct {
	SSTs []sst.Metadata
}

// Size is the sum of FileSize over the level's SSTs.
func (l Level) Size() uint64 {
	var sum uint64
	for _, md := range l.SSTs {
		sum += md.FileSize
	}
	return sum
}

// LowerBound returns the index of the first SST whose LastKey is >= key:
// the partition point on "LastKey < key", i.e. the first SST that could
// possibly contain key or anything beyond it. Valid only for a
// pairwise-disjoint, FirstKey-sorted level (i >= 1).
func (l Level) LowerBound(key []byte) int {
	lo, hi := 0, len(l.SSTs)
	for lo < hi {
		mid := (lo + hi) / 2
		if keys.CompareKeys(key, l.SSTs[mid].LastKey) > 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// UpperBound returns the index of the first SST whose FirstKey is > key:
// the partition point on "FirstKey <= key".
func (l Level) UpperBound(key []byte) int {
	lo, hi := 0, len(l.SSTs)
	for lo < hi {
		mid := (lo + hi) / 2
		if keys.CompareKeys(key, l.SSTs[mid].FirstKey) >= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
