// Package setsum implements a 256-bit fingerprint over a set of entries
// that is associative and commutative under addition: the setsum of the
// union of two disjoint entry sets equals the sum of their setsums,
// regardless of insertion order. This lets the tree verify compaction
// conservation (sum(inputs) == sum(outputs)) and lets a caller compute a
// whole-tree fingerprint incrementally as SSTs are ingested, without ever
// needing to re-derive a canonical order over the entries.
//
// original_source/lsmtk/src/tree/mod.rs leans on a Setsum type this way
// (`acc += Setsum::from_digest(file.setsum)`) but its implementation lives
// outside the retrieval pack; this package supplies one built from
// independently-seeded XXH3 lanes, each combined by 64-bit modular
// addition, which is invertible (Sub is just the two's complement of Add)
// and commutes/associates the way plain integer addition does.
package setsum

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// Size is the length in bytes of a Setsum digest.
const Size = 32

const numLanes = Size / 8

// seeds are arbitrary, fixed, distinct 64-bit values: one per lane. Any
// four distinct seeds work; these are unrelated to any on-disk format and
// may never change without invalidating every digest computed so far.
var seeds = [numLanes]uint64{
	0x9e3779b97f4a7c15,
	0xbf58476d1ce4e5b9,
	0x94d049bb133111eb,
	0xd6e8feb86659fd93,
}

// Setsum is a 256-bit digest, stored as four 64-bit lanes.
type Setsum struct {
	lanes [numLanes]uint64
}

// Zero is the additive identity: the setsum of the empty set.
var Zero = Setsum{}

// FromDigest reconstructs a Setsum from its 32-byte on-disk encoding, as
// stored in an SST metadata record's setsum field.
func FromDigest(digest [Size]byte) Setsum {
	var s Setsum
	for i := 0; i < numLanes; i++ {
		s.lanes[i] = binary.LittleEndian.Uint64(digest[i*8 : i*8+8])
	}
	return s
}

// Digest returns the 32-byte on-disk encoding of s.
func (s Setsum) Digest() [Size]byte {
	var out [Size]byte
	for i := 0; i < numLanes; i++ {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], s.lanes[i])
	}
	return out
}

// OfEntry computes the per-entry setsum contribution for a single
// (key, timestamp, value) triple. value is nil for a tombstone DEL; a PUT
// and a DEL of the same (key, timestamp) hash differently since the
// tombstone marker itself is part of what a setsum must distinguish.
func OfEntry(key []byte, timestamp uint64, value []byte, isTombstone bool) Setsum {
	var header [9]byte
	binary.LittleEndian.PutUint64(header[:8], timestamp)
	if isTombstone {
		header[8] = 1
	}
	var s Setsum
	for i := 0; i < numLanes; i++ {
		h := xxh3.NewSeed(seeds[i])
		_, _ = h.Write(key)
		_, _ = h.Write(header[:])
		_, _ = h.Write(value)
		s.lanes[i] = h.Sum64()
	}
	return s
}

// Add returns s + other, combining two setsums over disjoint entry sets
// into the setsum of their union.
func (s Setsum) Add(other Setsum) Setsum {
	var out Setsum
	for i := 0; i < numLanes; i++ {
		out.lanes[i] = s.lanes[i] + other.lanes[i]
	}
	return out
}

// Sub returns s - other, the inverse of Add; used to remove a subset of
// entries (e.g. a compaction's inputs) from a running setsum.
func (s Setsum) Sub(other Setsum) Setsum {
	var out Setsum
	for i := 0; i < numLanes; i++ {
		out.lanes[i] = s.lanes[i] - other.lanes[i]
	}
	return out
}

// Equal reports whether two setsums are bitwise identical.
func (s Setsum) Equal(other Setsum) bool {
	return s.lanes == other.lanes
}

// IsZero reports whether s is the additive identity.
func (s Setsum) IsZero() bool {
	return s == Zero
}

// Sum folds Add over the given setsums, returning Zero when there are
// none. Provided for callers that want to combine an in-memory batch in
// one call rather than accumulating with Add.
func Sum(setsums ...Setsum) Setsum {
	acc := Zero
	for _, s := range setsums {
		acc = acc.Add(s)
	}
	return acc
}
