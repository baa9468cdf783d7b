// Package compression implements the block compression codecs reserved by
// the SST block format. A data or index block is framed as a tagged
// length-delimited record; the codec byte selects how the framed bytes
// were produced. CodecNone is the default everywhere in this module, so
// behavior matches an uncompressed engine unless a caller opts in.
package compression

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies a block compression algorithm.
type Codec uint8

const (
	// CodecNone stores block bytes verbatim. The only codec spec.md's
	// data model names; the others are the reservation it leaves for
	// "future compressors".
	CodecNone Codec = iota
	CodecSnappy
	CodecLZ4
	CodecZstd
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "None"
	case CodecSnappy:
		return "Snappy"
	case CodecLZ4:
		return "LZ4"
	case CodecZstd:
		return "Zstd"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// IsKnown reports whether c is one of the codecs this package implements.
func (c Codec) IsKnown() bool {
	switch c {
	case CodecNone, CodecSnappy, CodecLZ4, CodecZstd:
		return true
	default:
		return false
	}
}

// Encode compresses data with the given codec.
func Encode(c Codec, data []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		return snappy.Encode(nil, data), nil
	case CodecLZ4:
		return encodeLZ4(data)
	case CodecZstd:
		return encodeZstd(data)
	default:
		return nil, fmt.Errorf("compression: unsupported codec %s", c)
	}
}

// Decode decompresses data with the given codec. expectedSize, when
// known, avoids a resize loop for LZ4's raw block format; pass 0 when
// unknown.
func Decode(c Codec, data []byte, expectedSize int) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		return snappy.Decode(nil, data)
	case CodecLZ4:
		return decodeLZ4(data, expectedSize)
	case CodecZstd:
		return decodeZstd(data)
	default:
		return nil, fmt.Errorf("compression: unsupported codec %s", c)
	}
}

func encodeLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(data, dst, ht[:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress block: %w", err)
	}
	if n == 0 {
		// Incompressible input: lz4 signals this by returning 0. Fall back
		// to storing the block as CodecNone-shaped bytes is the caller's
		// job (it knows the codec byte); here we just report it plainly.
		return nil, fmt.Errorf("lz4 compress block: incompressible input")
	}
	return dst[:n], nil
}

func decodeLZ4(data []byte, expectedSize int) ([]byte, error) {
	if expectedSize > 0 {
		dst := make([]byte, expectedSize)
		n, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 uncompress block: %w", err)
		}
		return dst[:n], nil
	}
	bufSize := max(len(data)*4, 256)
	for range 10 {
		dst := make([]byte, bufSize)
		n, err := lz4.UncompressBlock(data, dst)
		if err == nil {
			return dst[:n], nil
		}
		bufSize *= 2
	}
	return nil, fmt.Errorf("lz4 uncompress block: buffer too small after retries")
}

func encodeZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decodeZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
