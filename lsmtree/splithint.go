package lsmtree

import "github.com/rescrv-labs/lsmkv/keys"

// splitKeyKind distinguishes which edge of the current bottom-level SST
// SplitHint is watching: its FirstKey (not yet crossed) or its LastKey
// (crossed, watching for the next SST's FirstKey).
type splitKeyKind int

const (
	splitFirst splitKeyKind = iota
	splitLast
)

// SplitHint watches a stream of keys an external writer is producing (in
// increasing order) against the bottom level's existing SST boundaries,
// and reports when the writer has crossed one — a hint that a new output
// SST should be started there so outputs continue to align with the
// bottom level's existing key partitioning instead of drifting across
// boundaries at the next compaction. Grounded on
// original_source/lsmtk/src/tree/mod.rs's SplitHint/SplitKey.
type SplitHint struct {
	tree  *Tree
	index int
	kind  splitKeyKind
}

// NewSplitHint returns a SplitHint watching tree's bottom level from its
// first SST's FirstKey.
func NewSplitHint(tree *Tree) *SplitHint {
	return &SplitHint{tree: tree, index: 0, kind: splitFirst}
}

// hintKey returns the next boundary key Witness is watching for, or nil
// once the bottom level's SSTs are exhausted (meaning "no more hints").
func (s *SplitHint) hintKey() []byte {
	ssts := s.tree.levels[len(s.tree.levels)-1].SSTs
	if s.index >= len(ssts) {
		return nil
	}
	if s.kind == splitFirst {
		return ssts[s.index].FirstKey
	}
	return ssts[s.index].LastKey
}

// Witness reports whether writing key means an output SST boundary should
// be drawn: it advances past every bottom-level boundary key is strictly
// beyond, returning true if at least one boundary was crossed. A key equal
// to a boundary crosses nothing.
func (s *SplitHint) Witness(key []byte) bool {
	ssts := s.tree.levels[len(s.tree.levels)-1].SSTs
	shouldSplit := false
	for s.index < len(ssts) {
		h := s.hintKey()
		if h == nil || keys.CompareKeys(key, h) <= 0 {
			break
		}
		switch s.kind {
		case splitFirst:
			s.kind = splitLast
		case splitLast:
			s.kind = splitFirst
			s.index++
		}
		shouldSplit = true
	}
	return shouldSplit
}
