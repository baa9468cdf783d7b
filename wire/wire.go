// Package wire implements the varint and tagged-length-delimited framing
// shared by every on-disk record in this module: Block entries, Block
// footers, SST block framing, and SST metadata records. The format matches
// the protobuf wire format (varint, 32-bit fixed, 64-bit fixed,
// length-delimited tags), following the tag/wire-type scheme of
// original_source/prototk and the byte layout fixed by
// original_source/sst/src/block.rs.
package wire

import (
	"encoding/binary"

	"github.com/rescrv-labs/lsmkv/lsmerr"
)

// WireType identifies how a tagged field's payload is encoded.
type WireType uint32

const (
	Varint          WireType = 0
	SixtyFour       WireType = 1
	LengthDelimited WireType = 2
	ThirtyTwo       WireType = 5
)

// Tag packs a field number and wire type the way protobuf does:
// (field_number << 3) | wire_type.
func Tag(field uint32, wt WireType) uint64 {
	return uint64(field)<<3 | uint64(wt)
}

// SplitTag unpacks a tag into its field number and wire type.
func SplitTag(tag uint64) (field uint32, wt WireType) {
	return uint32(tag >> 3), WireType(tag & 0x7)
}

const (
	maxVarintLen32 = 5
	maxVarintLen64 = 10
)

// AppendVarint appends v to dst using the standard 7-bit, MSB-continuation
// varint encoding.
func AppendVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// AppendTag appends a packed (field, wire type) tag as a varint.
func AppendTag(dst []byte, field uint32, wt WireType) []byte {
	return AppendVarint(dst, Tag(field, wt))
}

// AppendFixed32 appends a little-endian uint32.
func AppendFixed32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

// AppendFixed64 appends a little-endian uint64.
func AppendFixed64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

// AppendLengthDelimited appends a varint length followed by value.
func AppendLengthDelimited(dst []byte, value []byte) []byte {
	dst = AppendVarint(dst, uint64(len(value)))
	return append(dst, value...)
}

// AppendTaggedVarint appends a (field, Varint) tag followed by v.
func AppendTaggedVarint(dst []byte, field uint32, v uint64) []byte {
	dst = AppendTag(dst, field, Varint)
	return AppendVarint(dst, v)
}

// AppendTaggedBytes appends a (field, LengthDelimited) tag followed by a
// length-prefixed value.
func AppendTaggedBytes(dst []byte, field uint32, value []byte) []byte {
	dst = AppendTag(dst, field, LengthDelimited)
	return AppendLengthDelimited(dst, value)
}

// AppendTaggedFixed32 appends a (field, ThirtyTwo) tag followed by a 32-bit
// little-endian value.
func AppendTaggedFixed32(dst []byte, field uint32, v uint32) []byte {
	dst = AppendTag(dst, field, ThirtyTwo)
	return AppendFixed32(dst, v)
}

// AppendTaggedFixed64 appends a (field, SixtyFour) tag followed by a 64-bit
// little-endian value.
func AppendTaggedFixed64(dst []byte, field uint32, v uint64) []byte {
	dst = AppendTag(dst, field, SixtyFour)
	return AppendFixed64(dst, v)
}

// VarintLength returns the number of bytes AppendVarint would write for v.
func VarintLength(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Reader sequentially decodes tagged fields from a byte slice, following
// the Slice-reader pattern of internal/encoding.Slice.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential decoding.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Done reports whether the reader has consumed all its input.
func (r *Reader) Done() bool {
	return r.pos >= len(r.data)
}

// Pos returns the reader's current byte offset into its backing slice.
func (r *Reader) Pos() int {
	return r.pos
}

func errUnpack(context string) error {
	return lsmerr.New(lsmerr.UnpackError, context)
}

// Varint decodes a varint-encoded uint64.
func (r *Reader) Varint() (uint64, error) {
	var result uint64
	for shift := uint(0); shift < 64; shift += 7 {
		if r.pos >= len(r.data) {
			return 0, errUnpack("truncated varint")
		}
		b := r.data[r.pos]
		r.pos++
		result |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return result, nil
		}
	}
	return 0, errUnpack("varint overflow")
}

// Tag decodes a packed (field, wire type) tag.
func (r *Reader) Tag() (field uint32, wt WireType, err error) {
	v, err := r.Varint()
	if err != nil {
		return 0, 0, err
	}
	f, w := SplitTag(v)
	return f, w, nil
}

// Fixed32 decodes a little-endian uint32.
func (r *Reader) Fixed32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, errUnpack("truncated fixed32")
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// Fixed64 decodes a little-endian uint64.
func (r *Reader) Fixed64() (uint64, error) {
	if r.Remaining() < 8 {
		return 0, errUnpack("truncated fixed64")
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// Bytes decodes a varint length followed by that many raw bytes. The
// returned slice aliases the reader's backing data.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Varint()
	if err != nil {
		return nil, err
	}
	if uint64(r.Remaining()) < n {
		return nil, errUnpack("truncated length-delimited field")
	}
	v := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v, nil
}

// Skip discards n raw bytes, the remainder of a record whose tag the
// caller recognized but whose body it does not need to inspect.
func (r *Reader) Skip(n int) error {
	if r.Remaining() < n {
		return errUnpack("truncated skip")
	}
	r.pos += n
	return nil
}
