package block

import (
	"encoding/binary"

	"github.com/rescrv-labs/lsmkv/lsmerr"
	"github.com/rescrv-labs/lsmkv/wire"
)

// Block is an immutable, sorted sequence of key-value entries plus a
// trailing restart index, as produced by Builder.Seal or loaded from disk.
type Block struct {
	bytes []byte

	// restartsBoundary is the end of the entry region (start of the
	// restart-array footer). restartsIdx is the start of the packed
	// restart offsets; num_restarts entries of 4 bytes each follow it.
	restartsBoundary int
	restartsIdx      int
	numRestarts      int
}

// New parses bytes as a sealed Block.
func New(data []byte) (*Block, error) {
	if len(data) < 4 {
		return nil, lsmerr.New(lsmerr.BlockTooSmall, "block buffer shorter than footer capstone").
			With("length", len(data)).With("required", 4)
	}
	numRestarts := int(binary.LittleEndian.Uint32(data[len(data)-4:]))

	capstoneTag := wire.VarintLength(wire.Tag(fieldFooterCapstone, wire.ThirtyTwo))
	capstone := capstoneTag + 4
	footerBody := numRestarts * 4
	footerHeadTag := wire.VarintLength(wire.Tag(fieldFooterRestarts, wire.LengthDelimited))
	footerHeadLen := wire.VarintLength(uint64(footerBody))
	footerHead := footerHeadTag + footerHeadLen

	restartsIdx := len(data) - capstone - footerBody
	if restartsIdx < 0 {
		return nil, lsmerr.New(lsmerr.Corruption, "restart array longer than block").
			With("num_restarts", numRestarts).With("length", len(data))
	}
	restartsBoundary := restartsIdx - footerHead
	if restartsBoundary < 0 {
		return nil, lsmerr.New(lsmerr.Corruption, "footer header longer than block").
			With("length", len(data))
	}

	return &Block{
		bytes:            data,
		restartsBoundary: restartsBoundary,
		restartsIdx:      restartsIdx,
		numRestarts:      numRestarts,
	}, nil
}

// ApproximateSize returns the block's on-disk size.
func (b *Block) ApproximateSize() int {
	return len(b.bytes)
}

// Bytes returns the block's raw encoded form.
func (b *Block) Bytes() []byte {
	return b.bytes
}

// Cursor returns a new Cursor positioned at First.
func (b *Block) Cursor() *Cursor {
	return &Cursor{block: b, kind: posFirst}
}

func (b *Block) restartPoint(restartIdx int) int {
	off := b.restartsIdx + restartIdx*4
	return int(binary.LittleEndian.Uint32(b.bytes[off : off+4]))
}

// restartForOffset finds the restart index whose region contains offset:
// the largest i such that restartPoint(i) <= offset. This binary search
// looks for an incomplete range (restart i covers [restartPoint(i),
// restartPoint(i+1))) and so differs from the exact-match search in Seek.
func (b *Block) restartForOffset(offset int) int {
	left, right := 0, b.numRestarts-1
	for left < right {
		mid := (left + right + 1) / 2
		value := b.restartPoint(mid)
		switch {
		case offset < value:
			right = mid - 1
		case offset == value:
			left, right = mid, mid
		default:
			left = mid
		}
	}
	return left
}
