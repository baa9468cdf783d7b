package block

import (
	"github.com/rescrv-labs/lsmkv/lsmerr"
	"github.com/rescrv-labs/lsmkv/wire"
)

// Field and outer-tag numbers for a single block entry, per spec.md §6:
// `entry := tag(PUT=8|DEL=9, LengthDelim) | varint body_len | body`, with
// PUT body fields 1-4 (shared, key_frag, timestamp, value) and DEL body
// fields 5-7 (shared, key_frag, timestamp).
const (
	tagPut = 8
	tagDel = 9

	fieldPutShared    = 1
	fieldPutKeyFrag   = 2
	fieldPutTimestamp = 3
	fieldPutValue     = 4

	fieldDelShared    = 5
	fieldDelKeyFrag   = 6
	fieldDelTimestamp = 7

	fieldFooterRestarts = 10
	fieldFooterCapstone = 11
)

// entry is a decoded block entry: a PUT (value non-nil) or a DEL
// (tombstone, value nil).
type entry struct {
	isDel     bool
	shared    uint64
	keyFrag   []byte
	timestamp uint64
	value     []byte
}

// appendEntry appends the tagged encoding of a single PUT or DEL entry to
// dst and returns the extended slice.
func appendEntry(dst []byte, isDel bool, shared uint64, keyFrag []byte, timestamp uint64, value []byte) []byte {
	var body []byte
	if isDel {
		body = wire.AppendTaggedVarint(body, fieldDelShared, shared)
		body = wire.AppendTaggedBytes(body, fieldDelKeyFrag, keyFrag)
		body = wire.AppendTaggedVarint(body, fieldDelTimestamp, timestamp)
		return wire.AppendTaggedBytes(dst, tagDel, body)
	}
	body = wire.AppendTaggedVarint(body, fieldPutShared, shared)
	body = wire.AppendTaggedBytes(body, fieldPutKeyFrag, keyFrag)
	body = wire.AppendTaggedVarint(body, fieldPutTimestamp, timestamp)
	body = wire.AppendTaggedBytes(body, fieldPutValue, value)
	return wire.AppendTaggedBytes(dst, tagPut, body)
}

// decodeEntry decodes the entry starting at data[offset:], where data is
// bounded to the end of the entry region (the restarts boundary). It
// returns the decoded entry and the offset immediately following it.
func decodeEntry(data []byte, offset int) (entry, int, error) {
	r := wire.NewReader(data[offset:])
	field, wt, err := r.Tag()
	if err != nil {
		return entry{}, 0, err
	}
	if wt != wire.LengthDelimited {
		return entry{}, 0, lsmerr.New(lsmerr.UnpackError, "entry tag has unexpected wire type").
			With("offset", offset).With("wire_type", wt)
	}
	isDel := field == tagDel
	if !isDel && field != tagPut {
		return entry{}, 0, lsmerr.New(lsmerr.UnpackError, "unknown entry tag").
			With("offset", offset).With("field", field)
	}
	body, err := r.Bytes()
	if err != nil {
		return entry{}, 0, lsmerr.Wrap(lsmerr.UnpackError, "could not unpack key-value pair at offset", err).
			With("offset", offset)
	}
	nextOffset := offset + r.Pos()

	var e entry
	e.isDel = isDel
	br := wire.NewReader(body)
	for !br.Done() {
		f, fwt, err := br.Tag()
		if err != nil {
			return entry{}, 0, err
		}
		switch {
		case f == fieldPutShared || f == fieldDelShared:
			e.shared, err = br.Varint()
		case f == fieldPutKeyFrag || f == fieldDelKeyFrag:
			e.keyFrag, err = br.Bytes()
		case f == fieldPutTimestamp || f == fieldDelTimestamp:
			e.timestamp, err = br.Varint()
		case f == fieldPutValue:
			e.value, err = br.Bytes()
		default:
			err = skipField(br, fwt)
		}
		if err != nil {
			return entry{}, 0, err
		}
	}
	return e, nextOffset, nil
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
