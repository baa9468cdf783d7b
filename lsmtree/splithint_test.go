package lsmtree

import (
	"testing"

	"github.com/rescrv-labs/lsmkv/options"
	"github.com/rescrv-labs/lsmkv/sst"
)

func bottomLevelTree(t *testing.T) *Tree {
	t.Helper()
	o := newTestOpener()
	s0 := buildEntrySST(t, o, "b", 1, "v", false)
	s0.FirstKey, s0.LastKey = []byte("b"), []byte("d")
	s1 := buildEntrySST(t, o, "f", 1, "v", false)
	s1.FirstKey, s1.LastKey = []byte("f"), []byte("h")

	levelSSTs := make([][]sst.Metadata, NumLevels)
	levelSSTs[NumLevels-1] = []sst.Metadata{s0, s1}
	tr, err := Open(options.DefaultTreeOptions(), levelSSTs)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return tr
}

// TestSplitHintSequence walks a stream of keys against a bottom level
// holding SSTs [b,d] and [f,h], checking Witness reports a split exactly
// at each boundary crossing and not before or exactly on a boundary key.
func TestSplitHintSequence(t *testing.T) {
	tr := bottomLevelTree(t)
	h := NewSplitHint(tr)

	cases := []struct {
		key  string
		want bool
	}{
		{"a", false}, // before the first SST's FirstKey
		{"b", false}, // exactly on FirstKey, not yet crossed
		{"c", true},  // crosses FirstKey of [b,d]
		{"d", false}, // exactly on LastKey, not yet crossed
		{"e", true},  // crosses LastKey of [b,d], into the gap before [f,h]
		{"g", true},  // crosses FirstKey of [f,h]
		{"i", true},  // crosses LastKey of [f,h], bottom level exhausted
		{"z", false}, // no more boundaries to cross
	}
	for _, tc := range cases {
		if got := h.Witness([]byte(tc.key)); got != tc.want {
			t.Errorf("Witness(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}
}

// TestSplitHintEmptyBottomLevel checks Witness never reports a split when
// the bottom level holds no SSTs.
func TestSplitHintEmptyBottomLevel(t *testing.T) {
	tr := New(options.DefaultTreeOptions())
	h := NewSplitHint(tr)
	if h.Witness([]byte("anything")) {
		t.Fatalf("Witness() on an empty bottom level should never report a split")
	}
}
