package lsmtree

import (
	"math"

	"github.com/rescrv-labs/lsmkv/keys"
	"github.com/rescrv-labs/lsmkv/lsmerr"
	"github.com/rescrv-labs/lsmkv/setsum"
	"github.com/rescrv-labs/lsmkv/sst"
)

// This file implements the compaction planner spec.md §4.7 describes:
// trivial-move detection, best-overlap scoring, mandatory L0 pressure
// relief, curve-based level skip, and the level factor that scales the
// scores of compactions rooted at L1 or deeper. Grounded nearly line-for-line on
// original_source/lsmtk/src/tree/mod.rs's find_trivial_move/
// find_trivial_move_for_one_sst/find_best_compaction/expand_compaction/
// may_choose_compaction/compute_bounds/next_compaction, kept in the same
// package as Level/Tree rather than split into a standalone package:
// the algorithm needs direct access to each Level's unexported SST slice
// and the Tree's shared ongoing set, exactly as the original keeps all of
// this in one tree/mod.rs module rather than a separate crate.

// levelSlice is the per-level working window compute_bounds derives:
// [lowerBound, upperBound) indexes into that level's SSTs, and
// firstKey/lastKey is the running compaction key span at the point this
// level was folded in.
type levelSlice struct {
	lowerBound, upperBound int
	firstKey, lastKey      []byte
}

func compareForMinMax(a, b []byte) int {
	return keys.CompareKeys(a, b)
}

// computeBounds expands [firstKey, lastKey] to a fixed point across every
// level from lowerLevel upward: at each level, take the partition-point
// window covering the running key span, then widen the span to that
// window's boundary keys and repeat until neither changes. This
// guarantees the input set at each level is a contiguous window whose key
// span is closed under overlap with its neighbours.
func (t *Tree) computeBounds(lowerLevel int, firstKey, lastKey []byte) []levelSlice {
	bounds := make([]levelSlice, 0, len(t.levels))
	for i := 0; i < lowerLevel; i++ {
		bounds = append(bounds, levelSlice{})
	}
	for upperLevel := lowerLevel; upperLevel < len(t.levels); upperLevel++ {
		if upperLevel == 0 {
			this := t.levels[0]
			bounds = append(bounds, levelSlice{
				lowerBound: 0,
				upperBound: len(this.SSTs),
				firstKey:   firstKey,
				lastKey:    lastKey,
			})
			continue
		}
		this := t.levels[upperLevel]
		lo := this.LowerBound(firstKey)
		hi := this.UpperBound(lastKey)
		for {
			fixed := true
			if lo < len(this.SSTs) && keys.CompareKeys(this.SSTs[lo].FirstKey, firstKey) < 0 {
				fixed = false
				firstKey = this.SSTs[lo].FirstKey
			}
			if hi > lo && keys.CompareKeys(this.SSTs[hi-1].LastKey, lastKey) > 0 {
				fixed = false
				lastKey = this.SSTs[hi-1].LastKey
			}
			newLo := this.LowerBound(firstKey)
			newHi := this.UpperBound(lastKey)
			if fixed && newLo == lo && newHi == hi {
				lo, hi = newLo, newHi
				break
			}
			lo, hi = newLo, newHi
		}
		bounds = append(bounds, levelSlice{lowerBound: lo, upperBound: hi, firstKey: firstKey, lastKey: lastKey})
	}
	return bounds
}

// mayChooseCompaction rejects a candidate whose lower/upper level
// coincide, whose input count (combined with every ongoing compaction's)
// would exceed MaxOpenFiles, or whose key interval and level span overlap
// any already-ongoing compaction.
func (t *Tree) mayChooseCompaction(core *CompactionCore) bool {
	if core.LowerLevel == core.UpperLevel {
		return false
	}
	t.ongoing.mu.Lock()
	defer t.ongoing.mu.Unlock()
	total := len(core.Inputs)
	for _, o := range t.ongoing.list {
		total += len(o.Inputs)
	}
	if total > t.options.MaxOpenFiles {
		return false
	}
	for _, o := range t.ongoing.list {
		if Overlapping(o, core) {
			return false
		}
	}
	return true
}

// expandCompaction pulls in every sibling SST at each level in
// [core.LowerLevel, core.UpperLevel] whose key range is fully contained
// by core's current [FirstKey, LastKey], widening the span as it finds
// them, without exceeding MaxCompactionFiles/MaxOpenFiles.
func (t *Tree) expandCompaction(core *CompactionCore) {
	firstKey, lastKey := core.FirstKey, core.LastKey
	for level := core.UpperLevel; level >= core.LowerLevel; level-- {
		this := t.levels[level]
		var toAdd []sst.Metadata
		for _, md := range this.SSTs {
			numInputs := len(core.Inputs) + len(toAdd)
			if numInputs >= t.options.MaxCompactionFiles || numInputs >= t.options.MaxOpenFiles {
				return
			}
			if keys.CompareKeys(firstKey, md.FirstKey) <= 0 &&
				keys.CompareKeys(md.LastKey, lastKey) <= 0 &&
				!containsSetsum(core.Inputs, md.Setsum) {
				toAdd = append(toAdd, md)
			}
		}
		if len(toAdd) == 0 {
			continue
		}
		for _, md := range toAdd {
			if keys.CompareKeys(md.FirstKey, firstKey) < 0 {
				firstKey = md.FirstKey
			}
			if keys.CompareKeys(md.LastKey, lastKey) > 0 {
				lastKey = md.LastKey
			}
			core.Inputs = append(core.Inputs, md.Setsum)
		}
	}
	core.FirstKey, core.LastKey = firstKey, lastKey
}

// findTrivialMoveForOneSst checks whether sst's key range does not
// overlap any SST at lowerLevel+1, making a single-file promotion viable.
func (t *Tree) findTrivialMoveForOneSst(id CompactionID, lowerLevel int, md sst.Metadata) (*Compaction, int64) {
	upperLevel := lowerLevel + 1
	if upperLevel < len(t.levels) &&
		t.levels[upperLevel].LowerBound(md.FirstKey) == t.levels[upperLevel].UpperBound(md.LastKey) {
		core := &CompactionCore{
			ID:         id,
			LowerLevel: lowerLevel,
			UpperLevel: upperLevel,
			FirstKey:   append([]byte(nil), md.FirstKey...),
			LastKey:    append([]byte(nil), md.LastKey...),
			Inputs:     []setsum.Setsum{md.Setsum},
			Size:       md.FileSize,
		}
		if t.mayChooseCompaction(core) {
			return &Compaction{core: core}, int64(md.FileSize)
		}
	}
	return nil, math.MinInt64
}

// findTrivialMove looks for a single SST at level whose range does not
// overlap level+1 at all: for L0 it tries only the SST with the smallest
// BiggestTimestamp (the oldest arrival); for higher levels it tries
// every SST in order and returns the first that qualifies.
func (t *Tree) findTrivialMove(id CompactionID, level int) (*Compaction, int64) {
	if len(t.levels[level].SSTs) == 0 {
		return nil, math.MinInt64
	}
	if level == 0 {
		oldest := t.levels[0].SSTs[0]
		for _, md := range t.levels[0].SSTs[1:] {
			if md.BiggestTimestamp < oldest.BiggestTimestamp {
				oldest = md
			}
		}
		return t.findTrivialMoveForOneSst(id, level, oldest)
	}
	for _, md := range t.levels[level].SSTs {
		if c, score := t.findTrivialMoveForOneSst(id, level, md); c != nil {
			return c, score
		}
	}
	return nil, math.MinInt64
}

// findBestCompaction scores candidate compactions rooted at lowerLevel
// with the bounds computeBounds already derived, expanding upperLevel one
// level at a time. The score rewards absorbing data from lower levels and
// penalises adding data at the upper level: acc folds 2*lhs+rhs across
// overlap[lowerLevel..upperLevel), and score = acc - overlap[upperLevel].
func (t *Tree) findBestCompaction(id CompactionID, lowerLevel int, bounds []levelSlice) (*Compaction, int64) {
	var candidate *Compaction
	bestScore := int64(math.MinInt64)
	overlap := make([]int64, len(t.levels))
	var inputs []setsum.Setsum

	for upperLevel := lowerLevel; upperLevel < len(t.levels); upperLevel++ {
		this := t.levels[upperLevel]
		b := bounds[upperLevel]
		for idx := b.lowerBound; idx < b.upperBound; idx++ {
			overlap[upperLevel] += int64(this.SSTs[idx].FileSize)
			inputs = append(inputs, this.SSTs[idx].Setsum)
		}

		var acc int64
		for _, v := range overlap[lowerLevel:upperLevel] {
			acc = acc + acc + v
		}
		score := acc - overlap[upperLevel]

		var compactionSize int64
		for _, v := range overlap[lowerLevel : upperLevel+1] {
			compactionSize += v
		}
		if compactionSize > int64(t.options.MaxCompactionBytes) && lowerLevel != 0 {
			return candidate, bestScore
		}
		if len(inputs) > t.options.MaxCompactionFiles || len(inputs) > t.options.MaxOpenFiles {
			return candidate, bestScore
		}

		if lowerLevel < upperLevel && score > bestScore {
			core := &CompactionCore{
				ID:         id,
				LowerLevel: lowerLevel,
				UpperLevel: upperLevel,
				FirstKey:   append([]byte(nil), b.firstKey...),
				LastKey:    append([]byte(nil), b.lastKey...),
				Inputs:     append([]setsum.Setsum(nil), inputs...),
				Size:       uint64(compactionSize),
			}
			t.expandCompaction(core)
			if t.mayChooseCompaction(core) {
				candidate = &Compaction{core: core}
				bestScore = score
			}
		}

		if b.lowerBound == b.upperBound {
			break
		}
	}
	return candidate, bestScore
}

// levelCurve shapes the curve-based skip (spec.md §4.7.D): 1 for the top
// two levels, ceil(log10(level))+1 beyond that, so deeper levels tolerate
// proportionally more size before a skip is considered unwarranted churn.
func levelCurve(level int) uint64 {
	if level <= 2 {
		return 1
	}
	return uint64(math.Ceil(math.Log10(float64(level)))) + 1
}

// levelFactor multiplies a raw score by log2(level+1)/(level+1) + 1: 1.0 at
// level 0, about 1.53 at its peak at level 2, then decreasing toward 1.0
// as the level grows, so beyond level 2 a shallower compaction wins a
// near tie against a deeper one.
func levelFactor(level int) float64 {
	return math.Log2(float64(level)+1)/float64(level+1) + 1.0
}

// NextCompaction plans the next compaction this Tree should perform, per
// spec.md §4.7's passes A-E: trivial move first, then best-overlap
// scoring per candidate starting level (special-cased for L0), mandatory
// L0 pressure relief overriding score when the tree demands it, and a
// curve-based skip for levels whose shape is already proportionate. Only
// a non-negative final score is emitted; the returned Compaction's inputs
// are reserved in the ongoing set until ReleaseCompaction or
// ApplyCompaction retires it.
func (t *Tree) NextCompaction() *Compaction {
	id := newCompactionID()

	for lowerLevel := 0; lowerLevel < len(t.levels)-1; lowerLevel++ {
		if c, score := t.findTrivialMove(id, lowerLevel); c != nil {
			return t.emitCompaction(c, score)
		}
	}

	var candidate, mandatory *Compaction
	bestScore := int64(math.MinInt64)
	mandatoryScore := int64(math.MinInt64)

	if len(t.levels[0].SSTs) > 0 {
		firstKey := t.levels[0].SSTs[0].FirstKey
		lastKey := t.levels[0].SSTs[0].LastKey
		for _, md := range t.levels[0].SSTs[1:] {
			if compareForMinMax(md.FirstKey, firstKey) < 0 {
				firstKey = md.FirstKey
			}
			if compareForMinMax(md.LastKey, lastKey) > 0 {
				lastKey = md.LastKey
			}
		}
		bounds := t.computeBounds(0, firstKey, lastKey)
		if c, score := t.findBestCompaction(id, 0, bounds); c != nil {
			if t.ShouldPerformMandatoryCompaction() {
				mandatory, mandatoryScore = c, score
			} else {
				candidate, bestScore = c, score
			}
		}
	}

	for lowerLevel := len(t.levels) - 2; lowerLevel >= 1; lowerLevel-- {
		if t.levels[lowerLevel].Size()/levelCurve(lowerLevel) > t.levels[lowerLevel-1].Size() &&
			!t.ShouldPerformMandatoryCompaction() {
			continue
		}
		factor := levelFactor(lowerLevel)
		for _, md := range t.levels[lowerLevel].SSTs {
			bounds := t.computeBounds(lowerLevel, md.FirstKey, md.LastKey)
			c, score := t.findBestCompaction(id, lowerLevel, bounds)
			if c == nil {
				continue
			}
			if t.ShouldPerformMandatoryCompaction() &&
				allSSTsIncluded(t.levels[lowerLevel].SSTs, c.core.Inputs) &&
				mandatory != nil && c.core.Size < mandatory.core.Size {
				mandatory = c
				mandatoryScore = int64(math.Ceil(float64(score) * factor))
			} else if score > bestScore {
				candidate = c
				bestScore = int64(math.Ceil(float64(score) * factor))
			}
		}
	}

	if mandatory != nil {
		return t.emitCompaction(mandatory, mandatoryScore)
	}
	if candidate != nil && bestScore >= 0 {
		return t.emitCompaction(candidate, bestScore)
	}
	return nil
}

func (t *Tree) emitCompaction(c *Compaction, score int64) *Compaction {
	t.options.Logger.Debugf("candidate compaction id=%d lower=%d upper=%d score=%d inputs=%d",
		c.core.ID, c.core.LowerLevel, c.core.UpperLevel, score, len(c.core.Inputs))
	t.ongoing.mu.Lock()
	t.ongoing.list = append(t.ongoing.list, c.core)
	t.ongoing.mu.Unlock()
	return c
}

// ReleaseCompaction removes c from the ongoing set without applying it,
// freeing its input reservation. Returns CompactionNotOngoing if c was
// already released or applied.
func (t *Tree) ReleaseCompaction(c *Compaction) error {
	t.ongoing.mu.Lock()
	defer t.ongoing.mu.Unlock()
	for i, o := range t.ongoing.list {
		if o == c.core {
			t.ongoing.list = append(t.ongoing.list[:i], t.ongoing.list[i+1:]...)
			return nil
		}
	}
	return lsmerr.New(lsmerr.CompactionNotOngoing, "compaction is not in the ongoing set").
		With("compaction_id", c.core.ID)
}

// ApplyCompaction removes c's inputs from every level in
// [LowerLevel, UpperLevel) and splices outputs into UpperLevel in place
// of the [LowerBound(FirstKey), UpperBound(LastKey)) slice they replace,
// returning the new snapshot. Fails with CompactionNotOngoing if c is not
// in the ongoing set (already applied, released, or never emitted by this
// Tree's lineage).
func (t *Tree) ApplyCompaction(c *Compaction, outputs []sst.Metadata) (*Tree, error) {
	t.ongoing.mu.Lock()
	found := -1
	for i, o := range t.ongoing.list {
		if o == c.core {
			found = i
			break
		}
	}
	if found < 0 {
		t.ongoing.mu.Unlock()
		return nil, lsmerr.New(lsmerr.CompactionNotOngoing, "compaction is not in the ongoing set").
			With("compaction_id", c.core.ID)
	}
	t.ongoing.list = append(t.ongoing.list[:found], t.ongoing.list[found+1:]...)
	t.ongoing.mu.Unlock()

	nt := t.clone()
	core := c.core
	for level := core.LowerLevel; level < core.UpperLevel; level++ {
		this := t.levels[level]
		kept := make([]sst.Metadata, 0, len(this.SSTs))
		for _, md := range this.SSTs {
			if !containsSetsum(core.Inputs, md.Setsum) {
				kept = append(kept, md)
			}
		}
		nt.levels[level] = Level{SSTs: kept}
	}

	upper := nt.levels[core.UpperLevel]
	lo := upper.LowerBound(core.FirstKey)
	hi := upper.UpperBound(core.LastKey)
	merged := make([]sst.Metadata, 0, len(upper.SSTs)-(hi-lo)+len(outputs))
	merged = append(merged, upper.SSTs[:lo]...)
	merged = append(merged, outputs...)
	merged = append(merged, upper.SSTs[hi:]...)
	nt.levels[core.UpperLevel] = Level{SSTs: merged}

	return nt, nil
}
