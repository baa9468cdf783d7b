// Package sst implements the SST: a sorted, immutable run of Blocks
// trailed by an index block and a footer, per spec.md §4.3/§4.4. Builder
// writes one; Reader and Cursor read one back. The on-disk framing is
// grounded on original_source/lp/src/sst.rs's SSTEntry/BlockMetadata/
// FinalBlock triple; the Go-facing file interfaces are grounded on
// internal/table/reader.go's ReadableFile and Open/Reader shape.
package sst

import (
	"github.com/rescrv-labs/lsmkv/compression"
	"github.com/rescrv-labs/lsmkv/lsmerr"
	"github.com/rescrv-labs/lsmkv/wire"
)

// Outer SSTEntry field tags: every block-sized record in the file (data
// block, index block, final block) is framed as tag(field, LengthDelim) |
// varint body_len | body, so a linear scan of the file can always skip a
// record it doesn't care about.
const (
	tagNOP             = 10
	tagPlainBlock      = 11
	tagCompressedBlock = 12
	tagFinalBlock      = 13
)

// CompressedBlock body field tags: codec identifies which compression.Codec
// produced payload, and uncompressedLen lets LZ4 decode without a resize
// loop.
const (
	fieldCompressedCodec   = 1
	fieldCompressedLen     = 2
	fieldCompressedPayload = 3
)

// BlockMetadata field tags, reused both nested in a FinalBlock and as the
// standalone value of an index block entry.
const (
	fieldMetaStart = 14
	fieldMetaLimit = 15
)

// FinalBlock field tags.
const (
	fieldFinalIndexBlock = 16
	fieldFinalOffset     = 18
)

// blockMetadata locates a data block's PlainBlock/CompressedBlock record
// within the file: [start, limit) spans the full tagged record, not just
// its payload.
type blockMetadata struct {
	start uint64
	limit uint64
}

func (m blockMetadata) sanityCheck() error {
	if m.start >= m.limit {
		return lsmerr.New(lsmerr.Corruption, "block_metadata.start >= block_metadata.limit").
			With("start", m.start).With("limit", m.limit)
	}
	return nil
}

func appendBlockMetadata(dst []byte, m blockMetadata) []byte {
	dst = wire.AppendTaggedVarint(dst, fieldMetaStart, m.start)
	return wire.AppendTaggedVarint(dst, fieldMetaLimit, m.limit)
}

func decodeBlockMetadata(data []byte) (blockMetadata, error) {
	var m blockMetadata
	r := wire.NewReader(data)
	for !r.Done() {
		f, wt, err := r.Tag()
		if err != nil {
			return blockMetadata{}, err
		}
		switch {
		case f == fieldMetaStart && wt == wire.Varint:
			m.start, err = r.Varint()
			if err != nil {
				return blockMetadata{}, err
			}
		case f == fieldMetaLimit && wt == wire.Varint:
			m.limit, err = r.Varint()
			if err != nil {
				return blockMetadata{}, err
			}
		default:
			if err := skipField(r, wt); err != nil {
				return blockMetadata{}, err
			}
		}
	}
	return m, nil
}

type finalBlock struct {
	indexBlock       blockMetadata
	finalBlockOffset uint64
}

func appendFinalBlock(dst []byte, f finalBlock) []byte {
	dst = wire.AppendTaggedBytes(dst, fieldFinalIndexBlock, appendBlockMetadata(nil, f.indexBlock))
	return wire.AppendTaggedFixed64(dst, fieldFinalOffset, f.finalBlockOffset)
}

func decodeFinalBlock(data []byte) (finalBlock, error) {
	var fb finalBlock
	r := wire.NewReader(data)
	for !r.Done() {
		f, wt, err := r.Tag()
		if err != nil {
			return finalBlock{}, err
		}
		switch {
		case f == fieldFinalIndexBlock && wt == wire.LengthDelimited:
			body, err := r.Bytes()
			if err != nil {
				return finalBlock{}, err
			}
			fb.indexBlock, err = decodeBlockMetadata(body)
			if err != nil {
				return finalBlock{}, err
			}
		case f == fieldFinalOffset && wt == wire.SixtyFour:
			fb.finalBlockOffset, err = r.Fixed64()
			if err != nil {
				return finalBlock{}, err
			}
		default:
			if err := skipField(r, wt); err != nil {
				return finalBlock{}, err
			}
		}
	}
	return fb, nil
}

func skipField(r *wire.Reader, wt wire.WireType) error {
	switch wt {
	case wire.Varint:
		_, err := r.Varint()
		return err
	case wire.ThirtyTwo:
		_, err := r.Fixed32()
		return err
	case wire.SixtyFour:
		_, err := r.Fixed64()
		return err
	case wire.LengthDelimited:
		_, err := r.Bytes()
		return err
	default:
		return lsmerr.New(lsmerr.UnpackError, "unknown wire type").With("wire_type", wt)
	}
}

// appendCompressedBlock frames raw (uncompressed) block bytes under the
// given codec.
func appendCompressedBlock(dst []byte, codec compression.Codec, raw []byte) ([]byte, error) {
	compressed, err := compression.Encode(codec, raw)
	if err != nil {
		return nil, lsmerr.Wrap(lsmerr.IoError, "compressing block", err)
	}
	var body []byte
	body = wire.AppendTaggedVarint(body, fieldCompressedCodec, uint64(codec))
	body = wire.AppendTaggedVarint(body, fieldCompressedLen, uint64(len(raw)))
	body = wire.AppendTaggedBytes(body, fieldCompressedPayload, compressed)
	return wire.AppendTaggedBytes(dst, tagCompressedBlock, body), nil
}

// decodeCompressedBlock reverses appendCompressedBlock's body (the payload
// after the outer SSTEntry tag has already been stripped).
func decodeCompressedBlock(body []byte) ([]byte, error) {
	var codec compression.Codec
	var uncompressedLen uint64
	var payload []byte
	r := wire.NewReader(body)
	for !r.Done() {
		f, wt, err := r.Tag()
		if err != nil {
			return nil, err
		}
		switch {
		case f == fieldCompressedCodec && wt == wire.Varint:
			v, err := r.Varint()
			if err != nil {
				return nil, err
			}
			codec = compression.Codec(v)
		case f == fieldCompressedLen && wt == wire.Varint:
			uncompressedLen, err = r.Varint()
			if err != nil {
				return nil, err
			}
		case f == fieldCompressedPayload && wt == wire.LengthDelimited:
			payload, err = r.Bytes()
			if err != nil {
				return nil, err
			}
		default:
			if err := skipField(r, wt); err != nil {
				return nil, err
			}
		}
	}
	return compression.Decode(codec, payload, int(uncompressedLen))
}
