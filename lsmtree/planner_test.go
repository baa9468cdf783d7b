package lsmtree

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/rescrv-labs/lsmkv/options"
	"github.com/rescrv-labs/lsmkv/setsum"
	"github.com/rescrv-labs/lsmkv/sst"
)

func TestLevelCurve(t *testing.T) {
	cases := []struct {
		level int
		want  uint64
	}{
		{1, 1},
		{2, 1},
		{3, 2},
		{10, 2},
		{11, 3},
	}
	for _, tc := range cases {
		if got := levelCurve(tc.level); got != tc.want {
			t.Errorf("levelCurve(%d) = %d, want %d", tc.level, got, tc.want)
		}
	}
}

// TestLevelFactorDecreasesWithDepth checks levelFactor decreases as the
// level grows beyond level 2 while staying above 1.0, so a shallower
// compaction wins a near tie against a deeper one.
func TestLevelFactorDecreasesWithDepth(t *testing.T) {
	f3, f7, f15 := levelFactor(3), levelFactor(7), levelFactor(15)
	if !(f3 > f7 && f7 > f15) {
		t.Fatalf("levelFactor(3)=%v levelFactor(7)=%v levelFactor(15)=%v, want strictly decreasing", f3, f7, f15)
	}
	if f3 <= 1.0 || f15 <= 1.0 {
		t.Fatalf("levelFactor should stay above 1.0, got f3=%v f15=%v", f3, f15)
	}
}

func mdFor(o *testOpener, t *testing.T, key string, size uint64) sst.Metadata {
	md := buildEntrySST(t, o, key, 1, "v", false)
	md.FirstKey, md.LastKey = []byte(key), []byte(key)
	md.FileSize = size
	return md
}

// TestFindTrivialMoveForOneSstNoOverlap checks a single SST at lowerLevel
// promotes trivially when lowerLevel+1 is empty.
func TestFindTrivialMoveForOneSstNoOverlap(t *testing.T) {
	o := newTestOpener()
	md := mdFor(o, t, "m", 100)

	tr, err := Open(options.DefaultTreeOptions(), [][]sst.Metadata{{md}, {}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	id := newCompactionID()
	c, score := tr.findTrivialMoveForOneSst(id, 0, md)
	if c == nil {
		t.Fatalf("findTrivialMoveForOneSst() = nil, want a candidate")
	}
	if c.LowerLevel() != 0 || c.UpperLevel() != 1 {
		t.Fatalf("levels = %d/%d, want 0/1", c.LowerLevel(), c.UpperLevel())
	}
	if score != int64(md.FileSize) {
		t.Fatalf("score = %d, want %d", score, md.FileSize)
	}
}

// TestFindTrivialMoveForOneSstBlockedByOverlap checks that an SST whose
// range overlaps one already at lowerLevel+1 cannot trivially move there.
func TestFindTrivialMoveForOneSstBlockedByOverlap(t *testing.T) {
	o := newTestOpener()
	md := mdFor(o, t, "m", 100)
	blocker := buildEntrySST(t, o, "m", 2, "w", false)
	blocker.FirstKey, blocker.LastKey = []byte("m"), []byte("m")
	blocker.FileSize = 50

	tr, err := Open(options.DefaultTreeOptions(), [][]sst.Metadata{{md}, {blocker}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	id := newCompactionID()
	c, _ := tr.findTrivialMoveForOneSst(id, 0, md)
	if c != nil {
		t.Fatalf("findTrivialMoveForOneSst() = %v, want nil when the target level overlaps", c)
	}
}

// TestFindTrivialMoveL0PicksOldest checks findTrivialMove, at L0, tries only
// the SST with the smallest BiggestTimestamp, regardless of slice order.
func TestFindTrivialMoveL0PicksOldest(t *testing.T) {
	o := newTestOpener()
	newer := buildEntrySST(t, o, "a", 10, "v", false)
	newer.FirstKey, newer.LastKey = []byte("a"), []byte("a")
	older := buildEntrySST(t, o, "z", 2, "v", false)
	older.FirstKey, older.LastKey = []byte("z"), []byte("z")

	tr, err := Open(options.DefaultTreeOptions(), [][]sst.Metadata{{newer, older}, {}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	id := newCompactionID()
	c, _ := tr.findTrivialMove(id, 0)
	if c == nil {
		t.Fatalf("findTrivialMove() = nil, want a candidate")
	}
	if !bytes.Equal(c.FirstKey(), []byte("z")) {
		t.Fatalf("findTrivialMove() picked %q, want the oldest SST (z)", c.FirstKey())
	}
}

// TestMayChooseCompactionRejectsSameLevel checks a degenerate span where
// LowerLevel == UpperLevel is always rejected.
func TestMayChooseCompactionRejectsSameLevel(t *testing.T) {
	tr := New(options.DefaultTreeOptions())
	core := &CompactionCore{ID: newCompactionID(), LowerLevel: 2, UpperLevel: 2}
	if tr.mayChooseCompaction(core) {
		t.Fatalf("mayChooseCompaction should reject LowerLevel == UpperLevel")
	}
}

// TestMayChooseCompactionRejectsOpenFileBudget checks a candidate is
// rejected once its inputs, combined with the ongoing set's, would exceed
// MaxOpenFiles.
func TestMayChooseCompactionRejectsOpenFileBudget(t *testing.T) {
	opts := options.DefaultTreeOptions()
	opts.MaxOpenFiles = 2
	tr := New(opts)

	ongoing := &CompactionCore{
		ID:         newCompactionID(),
		LowerLevel: 3,
		UpperLevel: 4,
		FirstKey:   []byte("x"),
		LastKey:    []byte("y"),
		Inputs:     []setsum.Setsum{{}},
	}
	tr.ongoing.list = append(tr.ongoing.list, ongoing)

	core := &CompactionCore{
		ID:         newCompactionID(),
		LowerLevel: 0,
		UpperLevel: 1,
		FirstKey:   []byte("a"),
		LastKey:    []byte("b"),
		Inputs:     []setsum.Setsum{{}, {}},
	}
	if tr.mayChooseCompaction(core) {
		t.Fatalf("mayChooseCompaction should reject once combined inputs exceed MaxOpenFiles")
	}
}

// TestExpandCompactionPullsContainedSiblings checks expandCompaction widens
// a candidate to include every sibling SST at the same level whose range
// already falls within the candidate's current key span.
func TestExpandCompactionPullsContainedSiblings(t *testing.T) {
	o := newTestOpener()
	x := mdFor(o, t, "a", 10)
	y := mdFor(o, t, "c", 10)
	z := mdFor(o, t, "f", 10)

	tr, err := Open(options.DefaultTreeOptions(), [][]sst.Metadata{{}, {x, y, z}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	core := &CompactionCore{
		ID:         newCompactionID(),
		LowerLevel: 1,
		UpperLevel: 1,
		FirstKey:   []byte("a"),
		LastKey:    []byte("d"),
		Inputs:     []setsum.Setsum{x.Setsum},
		Size:       x.FileSize,
	}
	tr.expandCompaction(core)

	if len(core.Inputs) != 2 {
		t.Fatalf("expandCompaction pulled in %d inputs, want 2 (x and y)", len(core.Inputs))
	}
	if !containsSetsum(core.Inputs, y.Setsum) {
		t.Fatalf("expandCompaction should have pulled in y (contained within [a,d])")
	}
	if containsSetsum(core.Inputs, z.Setsum) {
		t.Fatalf("expandCompaction should not pull in z (outside [a,d])")
	}
	if !bytes.Equal(core.FirstKey, []byte("a")) || !bytes.Equal(core.LastKey, []byte("d")) {
		t.Fatalf("expandCompaction key span = [%s,%s], want unchanged [a,d]", core.FirstKey, core.LastKey)
	}
}

// TestShouldStallIngestOnFileCount checks the file-count stall threshold.
func TestShouldStallIngestOnFileCount(t *testing.T) {
	o := newTestOpener()
	opts := options.DefaultTreeOptions()
	opts.L0WriteStallThresholdFiles = 2
	tr := New(opts)
	var err error
	for i := 0; i < 2; i++ {
		md := buildEntrySST(t, o, "a", uint64(i+1), "v", false)
		tr, err = tr.Ingest(md)
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}
	if !tr.ShouldStallIngest() {
		t.Fatalf("ShouldStallIngest() = false, want true once L0 reaches the file threshold")
	}
}

// TestShouldPerformMandatoryCompactionWhenEveryLevelPopulated checks the
// fallback rule: if every level holds at least one SST, a mandatory
// compaction is forced even without L0 pressure, since the tree has no
// slack level left to absorb ordinary scored compactions into.
func TestShouldPerformMandatoryCompactionWhenEveryLevelPopulated(t *testing.T) {
	o := newTestOpener()
	levelSSTs := make([][]sst.Metadata, NumLevels)
	for i := range levelSSTs {
		levelSSTs[i] = []sst.Metadata{mdFor(o, t, fmt.Sprintf("m%02d", i), 10)}
	}
	tr, err := Open(options.DefaultTreeOptions(), levelSSTs)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !tr.ShouldPerformMandatoryCompaction() {
		t.Fatalf("ShouldPerformMandatoryCompaction() = false, want true when every level is populated")
	}
}

// TestShouldPerformMandatoryCompactionFalseWhenSlack checks the common
// case: a fresh tree with room in most levels and no L0 pressure does not
// force a compaction.
func TestShouldPerformMandatoryCompactionFalseWhenSlack(t *testing.T) {
	tr := New(options.DefaultTreeOptions())
	if tr.ShouldPerformMandatoryCompaction() {
		t.Fatalf("ShouldPerformMandatoryCompaction() = true, want false on an empty tree")
	}
}
