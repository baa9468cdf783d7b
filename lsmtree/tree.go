package lsmtree

import (
	"sync"

	"github.com/rescrv-labs/lsmkv/cursor"
	"github.com/rescrv-labs/lsmkv/keys"
	"github.com/rescrv-labs/lsmkv/lsmerr"
	"github.com/rescrv-labs/lsmkv/options"
	"github.com/rescrv-labs/lsmkv/setsum"
	"github.com/rescrv-labs/lsmkv/sst"
)

// NumLevels is the fixed level count of a Tree snapshot (spec.md §3/§4.6).
const NumLevels = options.NumLevels

// Opener resolves an SST's setsum to an open Reader, so Tree.Load and
// Tree.RangeScan never need to know how SST files are named or cached.
// sst.FileCache satisfies this directly.
type Opener interface {
	Open(s setsum.Setsum) (*sst.Reader, error)
}

// ongoingSet is the mutex-protected shared state every Tree snapshot
// derived from a common ancestor holds in common: the set of
// currently-in-flight compactions, whose input footprint is reserved
// against concurrent overlapping candidates. Grounded on
// original_source/lsmtk/src/tree/mod.rs's Arc<Mutex<Vec<Arc<CompactionCore>>>>.
type ongoingSet struct {
	mu   sync.Mutex
	list []*CompactionCore
}

// Tree is an immutable snapshot of per-level SST metadata, per spec.md
// §3/§4.6. Ingest and ApplyCompaction return a new *Tree rather than
// mutating in place; the ongoing-compaction set is shared by reference
// across every Tree derived from a common ancestor.
type Tree struct {
	options options.TreeOptions
	levels  []Level
	ongoing *ongoingSet
}

// New returns an empty Tree: every level has no SSTs.
func New(opts options.TreeOptions) *Tree {
	return &Tree{
		options: opts.Validate(),
		levels:  make([]Level, NumLevels),
		ongoing: &ongoingSet{},
	}
}

// Open constructs a Tree from a caller-supplied, per-level partitioning of
// SST metadata: levelSSTs[i] becomes the Tree's level i. levelSSTs may
// have fewer than NumLevels entries; the remaining levels start empty.
// levelSSTs[0] may contain overlapping SSTs in any order; every other
// level's SSTs must already be pairwise key-disjoint and sorted by
// FirstKey (spec.md §3's Tree snapshot invariants), since the core treats
// per-level placement as a fact supplied by the external manifest rather
// than something it derives from a flat list on open (original_source's
// own recover module, which would otherwise ground this choice, is not
// part of the retrieval pack).
func Open(opts options.TreeOptions, levelSSTs [][]sst.Metadata) (*Tree, error) {
	if len(levelSSTs) > NumLevels {
		return nil, lsmerr.New(lsmerr.LogicError, "more levels supplied than NumLevels").
			With("supplied", len(levelSSTs)).With("num_levels", NumLevels)
	}
	t := New(opts)
	seen := make(map[setsum.Setsum]bool)
	for i, ssts := range levelSSTs {
		cp := append([]sst.Metadata(nil), ssts...)
		if i >= 1 {
			for j := 1; j < len(cp); j++ {
				if keys.CompareKeys(cp[j-1].LastKey, cp[j].FirstKey) >= 0 {
					return nil, lsmerr.New(lsmerr.Corruption, "level is not key-disjoint and FirstKey-sorted").
						With("level", i)
				}
			}
		}
		for _, md := range cp {
			if seen[md.Setsum] {
				return nil, lsmerr.New(lsmerr.DuplicateSst, "sst referenced more than once in the tree").
					With("setsum", md.Setsum.Digest())
			}
			seen[md.Setsum] = true
		}
		t.levels[i] = Level{SSTs: cp}
	}
	return t, nil
}

// clone returns a shallow copy of t suitable for a copy-on-write mutation:
// the levels slice is duplicated (so replacing one level's SSTs does not
// alias the original), but ongoing is shared by reference, matching
// Tree::clone in original_source/lsmtk/src/tree/mod.rs.
func (t *Tree) clone() *Tree {
	levels := make([]Level, len(t.levels))
	copy(levels, t.levels)
	return &Tree{options: t.options, levels: levels, ongoing: t.ongoing}
}

// Level returns level i's current SST metadata list.
func (t *Tree) Level(i int) Level {
	return t.levels[i]
}

// ShouldStallIngest reports whether L0 has grown past the configured
// write-stall threshold, a signal for an external ingest path to pause
// new writes until compaction catches up.
func (t *Tree) ShouldStallIngest() bool {
	return len(t.levels[0].SSTs) >= t.options.L0WriteStallThresholdFiles ||
		t.levels[0].Size() >= t.options.L0WriteStallThresholdBytes
}

// ShouldPerformMandatoryCompaction reports whether L0 pressure (file
// count, byte size) or a fully-populated level shape forces the planner
// to produce some compaction regardless of score.
func (t *Tree) ShouldPerformMandatoryCompaction() bool {
	if len(t.levels[0].SSTs) >= t.options.L0MandatoryCompactionThresholdFiles ||
		t.levels[0].Size() >= t.options.L0MandatoryCompactionThresholdBytes {
		return true
	}
	for _, l := range t.levels {
		if len(l.SSTs) == 0 {
			return false
		}
	}
	return true
}

// Setsums returns the setsum of every SST reachable from the tree.
func (t *Tree) Setsums() []setsum.Setsum {
	var out []setsum.Setsum
	for _, l := range t.levels {
		for _, md := range l.SSTs {
			out = append(out, md.Setsum)
		}
	}
	return out
}

// ComputeSetsum folds Add over every SST's setsum in the tree: since Add
// is commutative and associative, this total is independent of level or
// within-level order, and equals (inputs removed) subtracted from and
// (outputs added) to the total across every Ingest/ApplyCompaction.
func (t *Tree) ComputeSetsum() setsum.Setsum {
	acc := setsum.Zero
	for _, l := range t.levels {
		for _, md := range l.SSTs {
			acc = acc.Add(md.Setsum)
		}
	}
	return acc
}

// Ingest returns a new snapshot with md appended to L0. L0 may contain
// overlapping SSTs; spec.md §4.6 leaves their relative order as
// arrival/biggest_timestamp, which Ingest realizes simply by appending
// (Load already re-sorts L0 by BiggestTimestamp before scanning it).
func (t *Tree) Ingest(md sst.Metadata) (*Tree, error) {
	for _, l := range t.levels {
		for _, existing := range l.SSTs {
			if existing.Setsum.Equal(md.Setsum) {
				return nil, lsmerr.New(lsmerr.DuplicateSst, "sst already linked into the tree").
					With("setsum", md.Setsum.Digest())
			}
		}
	}
	nt := t.clone()
	ssts := make([]sst.Metadata, len(t.levels[0].SSTs)+1)
	copy(ssts, t.levels[0].SSTs)
	ssts[len(ssts)-1] = md
	nt.levels[0] = Level{SSTs: ssts}
	return nt, nil
}

// loadFromSST opens md via opener and looks for the newest version of key
// visible at timestamp, delegating visibility filtering to a
// cursor.PruningCursor layered over the SST's own Cursor.
func loadFromSST(opener Opener, md sst.Metadata, key []byte, timestamp uint64) (value []byte, isTombstone, found bool, err error) {
	reader, err := opener.Open(md.Setsum)
	if err != nil {
		return nil, false, false, err
	}
	pc := cursor.NewPruningCursor(reader.Cursor(), timestamp)
	if err := pc.Seek(key); err != nil {
		return nil, false, false, err
	}
	if !pc.Valid() || keys.CompareKeys(pc.Key(), key) != 0 {
		return nil, false, false, nil
	}
	if pc.IsTombstone() {
		return nil, true, true, nil
	}
	return append([]byte(nil), pc.Value()...), false, true, nil
}

// Load resolves the visible value of key at timestamp (spec.md §4.6's
// visibility contract, §8's MVCC property): the newest PUT with
// timestamp <= T wins; a tombstone with timestamp <= T hides all older
// PUTs. L0's SSTs may overlap, so they are examined newest-first by
// BiggestTimestamp; higher levels are key-disjoint, so binary search
// via Level.LowerBound/UpperBound locates the unique candidate SST.
func (t *Tree) Load(opener Opener, key []byte, timestamp uint64) (value []byte, isTombstone bool, err error) {
	l0 := append([]sst.Metadata(nil), t.levels[0].SSTs...)
	sortByBiggestTimestampDesc(l0)
	for _, md := range l0 {
		if !md.Contains(key) {
			continue
		}
		v, tomb, found, err := loadFromSST(opener, md, key, timestamp)
		if err != nil {
			return nil, false, err
		}
		if found {
			return v, tomb, nil
		}
	}
	for i := 1; i < len(t.levels); i++ {
		level := t.levels[i]
		lo := level.LowerBound(key)
		hi := level.UpperBound(key)
		for _, md := range level.SSTs[lo:hi] {
			v, tomb, found, err := loadFromSST(opener, md, key, timestamp)
			if err != nil {
				return nil, false, err
			}
			if found {
				return v, tomb, nil
			}
		}
	}
	return nil, false, nil
}

func sortByBiggestTimestampDesc(ssts []sst.Metadata) {
	for i := 1; i < len(ssts); i++ {
		for j := i; j > 0 && ssts[j-1].BiggestTimestamp < ssts[j].BiggestTimestamp; j-- {
			ssts[j-1], ssts[j] = ssts[j], ssts[j-1]
		}
	}
}

// RangeScan returns a cursor over every visible entry with key in
// [start, end) at the given read timestamp, built by merging a
// PruningCursor per selected SST and clipping to bounds: every L0 SST is
// included (L0 may overlap arbitrarily so no key-range filter is safe
// there), while higher levels only contribute SSTs whose range overlaps
// [start, end].
func (t *Tree) RangeScan(opener Opener, start, end []byte, timestamp uint64) (cursor.Cursor, error) {
	var children []cursor.Cursor
	for _, md := range t.levels[0].SSTs {
		reader, err := opener.Open(md.Setsum)
		if err != nil {
			return nil, err
		}
		children = append(children, cursor.NewPruningCursor(reader.Cursor(), timestamp))
	}
	for i := 1; i < len(t.levels); i++ {
		for _, md := range t.levels[i].SSTs {
			if !md.Overlaps(start, end) {
				continue
			}
			reader, err := opener.Open(md.Setsum)
			if err != nil {
				return nil, err
			}
			children = append(children, cursor.NewPruningCursor(reader.Cursor(), timestamp))
		}
	}
	merged := cursor.NewMergingCursor(children)
	return cursor.NewBoundsCursor(merged, start, end)
}
