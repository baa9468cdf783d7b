package sst

import (
	"io"

	"github.com/rescrv-labs/lsmkv/block"
	"github.com/rescrv-labs/lsmkv/lsmerr"
	"github.com/rescrv-labs/lsmkv/wire"
)

// ReadableFile is the file abstraction a Reader needs, matching
// internal/table/reader.go's ReadableFile exactly (io.Closer plus
// ReaderAt plus a total Size) so any *os.File, or a test double backed by
// a byte slice, satisfies it without an adapter.
type ReadableFile interface {
	io.Closer
	ReadAt(p []byte, off int64) (n int, err error)
	Size() int64
}

// Reader holds an open SST's index block and file handle, ready to serve
// point lookups (via a Cursor.Seek) or full scans. Grounded on
// original_source/lp/src/sst.rs's SST::from_file_handle: read the last 8
// bytes for the footer offset, parse the FinalBlock at that offset, then
// load the index block it names.
type Reader struct {
	file       ReadableFile
	indexBlock *block.Block
}

// Open parses file's trailing footer and loads its index block.
func Open(file ReadableFile) (*Reader, error) {
	size := file.Size()
	if size < 8 {
		return nil, lsmerr.New(lsmerr.Corruption, "file has fewer than eight bytes").With("size", size)
	}

	var tail [8]byte
	if _, err := file.ReadAt(tail[:], size-8); err != nil {
		return nil, lsmerr.Wrap(lsmerr.IoError, "reading final block offset", err)
	}
	finalBlockOffset, err := wire.NewReader(tail[:]).Fixed64()
	if err != nil {
		return nil, err
	}
	if int64(finalBlockOffset) >= size-8 || int64(finalBlockOffset) < 0 {
		return nil, lsmerr.New(lsmerr.Corruption, "final_block_offset out of range").
			With("final_block_offset", finalBlockOffset).With("size", size)
	}

	finalBuf := make([]byte, size-8-int64(finalBlockOffset))
	if _, err := file.ReadAt(finalBuf, int64(finalBlockOffset)); err != nil {
		return nil, lsmerr.Wrap(lsmerr.IoError, "reading final block", err)
	}
	r := wire.NewReader(finalBuf)
	field, wt, err := r.Tag()
	if err != nil {
		return nil, err
	}
	if field != tagFinalBlock || wt != wire.LengthDelimited {
		return nil, lsmerr.New(lsmerr.Corruption, "expected a FinalBlock record").
			With("field", field).With("wire_type", wt)
	}
	body, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	fb, err := decodeFinalBlock(body)
	if err != nil {
		return nil, err
	}
	if err := fb.indexBlock.sanityCheck(); err != nil {
		return nil, err
	}
	if fb.indexBlock.limit > finalBlockOffset {
		return nil, lsmerr.New(lsmerr.Corruption, "index_block runs past final_block_offset").
			With("final_block_offset", finalBlockOffset).With("limit", fb.indexBlock.limit)
	}

	indexBlk, err := loadBlock(file, fb.indexBlock)
	if err != nil {
		return nil, err
	}
	return &Reader{file: file, indexBlock: indexBlk}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Cursor returns a new Cursor over the SST, positioned before the first
// entry.
func (r *Reader) Cursor() *Cursor {
	return &Cursor{table: r, metaCursor: r.indexBlock.Cursor()}
}

// ComputeMetadata recomputes the SST's Metadata record by scanning every
// entry, for callers (e.g. a manifest recovery path) that need it but
// don't already have the record the Builder produced at write time.
func (r *Reader) ComputeMetadata() (Metadata, error) {
	c := r.Cursor()
	if err := c.SeekToFirst(); err != nil {
		return Metadata{}, err
	}
	var mb metadataBuilder
	for {
		if err := c.Next(); err != nil {
			return Metadata{}, err
		}
		if !c.Valid() {
			break
		}
		mb.observe(c.Key(), c.Timestamp(), c.Value(), c.IsTombstone())
	}
	return mb.finish(uint64(r.file.Size())), nil
}

// loadBlock reads and decodes the data or index block framed at meta's
// [start, limit) range.
func loadBlock(file ReadableFile, meta blockMetadata) (*block.Block, error) {
	if err := meta.sanityCheck(); err != nil {
		return nil, err
	}
	buf := make([]byte, meta.limit-meta.start)
	if _, err := file.ReadAt(buf, int64(meta.start)); err != nil {
		return nil, lsmerr.Wrap(lsmerr.IoError, "reading block", err)
	}
	r := wire.NewReader(buf)
	field, wt, err := r.Tag()
	if err != nil {
		return nil, err
	}
	if wt != wire.LengthDelimited {
		return nil, lsmerr.New(lsmerr.Corruption, "block record has unexpected wire type").
			With("wire_type", wt)
	}
	body, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	switch field {
	case tagNOP:
		return nil, lsmerr.New(lsmerr.Corruption, "file has a NOP block")
	case tagPlainBlock:
		return block.New(body)
	case tagCompressedBlock:
		raw, err := decodeCompressedBlock(body)
		if err != nil {
			return nil, err
		}
		return block.New(raw)
	case tagFinalBlock:
		return nil, lsmerr.New(lsmerr.Corruption, "tried loading the final block as a data block")
	default:
		return nil, lsmerr.New(lsmerr.Corruption, "unknown block entry tag").With("field", field)
	}
}
