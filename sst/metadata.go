package sst

import (
	"github.com/rescrv-labs/lsmkv/keys"
	"github.com/rescrv-labs/lsmkv/lsmerr"
	"github.com/rescrv-labs/lsmkv/setsum"
	"github.com/rescrv-labs/lsmkv/wire"
)

// Metadata is the summary record spec.md §6 calls "SST metadata": enough
// to place an SST within a Level and plan compactions without opening the
// file. Builder.Seal computes it incrementally; Marshal/Unmarshal give it
// the same tagged framing as every other on-disk record so a manifest can
// persist it directly.
type Metadata struct {
	Setsum            setsum.Setsum
	FirstKey          []byte
	FirstTimestamp    uint64
	LastKey           []byte
	LastTimestamp     uint64
	SmallestTimestamp uint64
	BiggestTimestamp  uint64
	FileSize          uint64
}

// Field tags for the standalone metadata record. Distinct from the
// in-file BlockMetadata/FinalBlock tags (14-18) since this record never
// appears inside the SST bytes themselves.
const (
	fieldMetaSetsum            = 20
	fieldMetaFirstKey          = 21
	fieldMetaLastKey           = 22
	fieldMetaSmallestTimestamp = 23
	fieldMetaBiggestTimestamp  = 24
	fieldMetaFileSize          = 25
	fieldMetaFirstTimestamp    = 26
	fieldMetaLastTimestamp     = 27
)

// Marshal serialises m to its tagged on-disk form.
func (m Metadata) Marshal() []byte {
	digest := m.Setsum.Digest()
	var dst []byte
	dst = wire.AppendTaggedBytes(dst, fieldMetaSetsum, digest[:])
	dst = wire.AppendTaggedBytes(dst, fieldMetaFirstKey, m.FirstKey)
	dst = wire.AppendTaggedBytes(dst, fieldMetaLastKey, m.LastKey)
	dst = wire.AppendTaggedVarint(dst, fieldMetaSmallestTimestamp, m.SmallestTimestamp)
	dst = wire.AppendTaggedVarint(dst, fieldMetaBiggestTimestamp, m.BiggestTimestamp)
	dst = wire.AppendTaggedVarint(dst, fieldMetaFileSize, m.FileSize)
	dst = wire.AppendTaggedVarint(dst, fieldMetaFirstTimestamp, m.FirstTimestamp)
	dst = wire.AppendTaggedVarint(dst, fieldMetaLastTimestamp, m.LastTimestamp)
	return dst
}

// UnmarshalMetadata parses a Metadata record produced by Marshal.
func UnmarshalMetadata(data []byte) (Metadata, error) {
	var m Metadata
	var digest [setsum.Size]byte
	haveDigest := false
	r := wire.NewReader(data)
	for !r.Done() {
		f, wt, err := r.Tag()
		if err != nil {
			return Metadata{}, err
		}
		switch {
		case f == fieldMetaSetsum && wt == wire.LengthDelimited:
			b, err := r.Bytes()
			if err != nil {
				return Metadata{}, err
			}
			if len(b) != setsum.Size {
				return Metadata{}, lsmerr.New(lsmerr.Corruption, "setsum field has wrong length").
					With("length", len(b))
			}
			copy(digest[:], b)
			haveDigest = true
		case f == fieldMetaFirstKey && wt == wire.LengthDelimited:
			b, err := r.Bytes()
			if err != nil {
				return Metadata{}, err
			}
			m.FirstKey = append([]byte(nil), b...)
		case f == fieldMetaLastKey && wt == wire.LengthDelimited:
			b, err := r.Bytes()
			if err != nil {
				return Metadata{}, err
			}
			m.LastKey = append([]byte(nil), b...)
		case f == fieldMetaSmallestTimestamp && wt == wire.Varint:
			m.SmallestTimestamp, err = r.Varint()
		case f == fieldMetaBiggestTimestamp && wt == wire.Varint:
			m.BiggestTimestamp, err = r.Varint()
		case f == fieldMetaFileSize && wt == wire.Varint:
			m.FileSize, err = r.Varint()
		case f == fieldMetaFirstTimestamp && wt == wire.Varint:
			m.FirstTimestamp, err = r.Varint()
		case f == fieldMetaLastTimestamp && wt == wire.Varint:
			m.LastTimestamp, err = r.Varint()
		default:
			err = skipField(r, wt)
		}
		if err != nil {
			return Metadata{}, err
		}
	}
	if haveDigest {
		m.Setsum = setsum.FromDigest(digest)
	}
	return m, nil
}

// Overlaps reports whether m's [FirstKey, LastKey] range overlaps
// [start, end]; used by the tree and compaction planner to select
// candidate SSTs by key interval without opening them.
func (m Metadata) Overlaps(start, end []byte) bool {
	if end != nil && keys.CompareKeys(m.FirstKey, end) > 0 {
		return false
	}
	if start != nil && keys.CompareKeys(m.LastKey, start) < 0 {
		return false
	}
	return true
}

// Contains reports whether key falls within [FirstKey, LastKey].
func (m Metadata) Contains(key []byte) bool {
	return keys.CompareKeys(key, m.FirstKey) >= 0 && keys.CompareKeys(key, m.LastKey) <= 0
}

// metadataBuilder accumulates the running fields of a Metadata record as
// a Builder writes entries, one OfEntry contribution at a time.
type metadataBuilder struct {
	acc      setsum.Setsum
	haveAny  bool
	firstKey []byte
	firstTS  uint64
	lastKey  []byte
	lastTS   uint64
	smallest uint64
	biggest  uint64
}

func (b *metadataBuilder) observe(key []byte, timestamp uint64, value []byte, isTombstone bool) {
	b.acc = b.acc.Add(setsum.OfEntry(key, timestamp, value, isTombstone))
	if !b.haveAny {
		b.haveAny = true
		b.firstKey = append([]byte(nil), key...)
		b.firstTS = timestamp
		b.smallest = timestamp
		b.biggest = timestamp
	}
	b.lastKey = append(b.lastKey[:0], key...)
	b.lastTS = timestamp
	if timestamp < b.smallest {
		b.smallest = timestamp
	}
	if timestamp > b.biggest {
		b.biggest = timestamp
	}
}

func (b *metadataBuilder) finish(fileSize uint64) Metadata {
	return Metadata{
		Setsum:            b.acc,
		FirstKey:          append([]byte(nil), b.firstKey...),
		FirstTimestamp:    b.firstTS,
		LastKey:           append([]byte(nil), b.lastKey...),
		LastTimestamp:     b.lastTS,
		SmallestTimestamp: b.smallest,
		BiggestTimestamp:  b.biggest,
		FileSize:          fileSize,
	}
}
