// Package keys implements the ordering primitives shared by every layer of
// the engine: lexicographic byte comparison on keys, with timestamps
// compared in reverse so that the newest version of a key sorts first.
//
// This mirrors the shape of internal/dbformat's InternalKey/Comparator
// pair, but the trailer rule differs: dbformat packs a sequence number and
// a value type into a single fixed trailer compared as an unsigned 64-bit
// integer ascending; here the timestamp is compared on its own, descending.
package keys

import "bytes"

// Key is an opaque byte sequence. The engine treats 1..=65536 bytes as the
// valid range; callers are responsible for enforcing the upper bound before
// handing a key to a builder, which reports KeyTooLong otherwise.
type Key = []byte

// Compare implements the total order over (key, timestamp) pairs:
// (k1, t1) < (k2, t2) iff k1 < k2 lexicographically, or k1 == k2 and
// t1 > t2 (larger timestamps sort first for the same key).
func Compare(k1 []byte, t1 uint64, k2 []byte, t2 uint64) int {
	if c := bytes.Compare(k1, k2); c != 0 {
		return c
	}
	switch {
	case t1 > t2:
		return -1
	case t1 < t2:
		return 1
	default:
		return 0
	}
}

// CompareKeys compares only the key portion, ignoring timestamp. Used by
// block/SST seeks, which locate entries by key alone and leave visibility
// filtering to a PruningCursor layered on top.
func CompareKeys(k1, k2 []byte) int {
	return bytes.Compare(k1, k2)
}

// Less reports whether (k1, t1) strictly precedes (k2, t2) in the total
// order.
func Less(k1 []byte, t1 uint64, k2 []byte, t2 uint64) bool {
	return Compare(k1, t1, k2, t2) < 0
}

// SharedPrefixLength returns the number of leading bytes a and b have in
// common, used by the block builder to compute the shared/key_frag split
// for prefix compression.
func SharedPrefixLength(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// MinimalSuccessor returns the smallest key strictly greater than k under
// bytewise comparison: k with a zero byte appended. It is used when no
// successor entry is available to derive a divider key (e.g. at SST
// builder seal time), pairing with timestamp zero, the smallest valid
// timestamp.
func MinimalSuccessor(k []byte) []byte {
	successor := make([]byte, len(k)+1)
	copy(successor, k)
	return successor
}

// Divider computes a divider key (dk, dt) for the boundary between
// (lastKey, lastTS) of a just-sealed block and (nextKey, nextTS) of the
// first entry of the following block. When the keys differ it is the
// lexicographically smallest key greater than lastKey and at most nextKey,
// paired with timestamp 0. When both entries share a key it is
// (nextKey, nextTS) itself.
//
// hasNext is false when sealing the final block of an SST with no
// successor entry; MinimalSuccessor(lastKey) is used in that case, paired
// with timestamp 0.
func Divider(lastKey []byte, lastTS uint64, nextKey []byte, nextTS uint64, hasNext bool) ([]byte, uint64) {
	if !hasNext {
		return MinimalSuccessor(lastKey), 0
	}
	if !bytes.Equal(lastKey, nextKey) {
		// MinimalSuccessor(lastKey) is the smallest key strictly greater
		// than lastKey; since nextKey > lastKey (the ordering invariant),
		// it is also <= nextKey, satisfying both sides of the divider
		// invariant (§3/§4.3) regardless of where nextKey itself falls.
		// The timestamp carries no seek-time meaning once the key itself
		// strictly separates the two blocks, so use the minimum.
		return MinimalSuccessor(lastKey), 0
	}
	// Same key straddling two blocks only happens when timestamps differ
	// (the ordering invariant forbids exact duplicates). The divider is the
	// next entry's own (key, timestamp): it sorts after every entry of the
	// sealed block and equals the first entry of the following block.
	return nextKey, nextTS
}
