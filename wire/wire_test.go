package wire

import (
	"bytes"
	"testing"
)

func TestTagPacking(t *testing.T) {
	tests := []struct {
		name  string
		field uint32
		wt    WireType
		want  uint64
	}{
		{"put entry", 8, LengthDelimited, 66},
		{"del entry", 9, LengthDelimited, 74},
		{"shared field", 1, Varint, 8},
		{"key_frag field", 2, LengthDelimited, 18},
		{"timestamp field", 3, Varint, 24},
		{"value field", 4, LengthDelimited, 34},
		{"footer restart array", 10, LengthDelimited, 82},
		{"footer num_restarts", 11, ThirtyTwo, 93},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tag(tt.field, tt.wt)
			if got != tt.want {
				t.Fatalf("Tag(%d, %d) = %d, want %d", tt.field, tt.wt, got, tt.want)
			}
			field, wt := SplitTag(got)
			if field != tt.field || wt != tt.wt {
				t.Fatalf("SplitTag(%d) = (%d, %d), want (%d, %d)", got, field, wt, tt.field, tt.wt)
			}
		})
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 255, 256, 16383, 16384, 1 << 32, 1<<64 - 1}
	for _, v := range values {
		buf := AppendVarint(nil, v)
		if len(buf) != VarintLength(v) {
			t.Fatalf("VarintLength(%d) = %d, encoded length = %d", v, VarintLength(v), len(buf))
		}
		r := NewReader(buf)
		got, err := r.Varint()
		if err != nil {
			t.Fatalf("Varint() error = %v", err)
		}
		if got != v {
			t.Fatalf("round trip %d got %d", v, got)
		}
		if !r.Done() {
			t.Fatalf("reader not exhausted after reading %d", v)
		}
	}
}

func TestTaggedBytesRoundTrip(t *testing.T) {
	var buf []byte
	buf = AppendTaggedBytes(buf, 2, []byte("hello"))
	buf = AppendTaggedVarint(buf, 3, 42)
	buf = AppendTaggedFixed32(buf, 11, 7)
	buf = AppendTaggedFixed64(buf, 18, 1<<40)

	r := NewReader(buf)

	field, wt, err := r.Tag()
	if err != nil || field != 2 || wt != LengthDelimited {
		t.Fatalf("first tag = (%d, %d, %v), want (2, LengthDelimited, nil)", field, wt, err)
	}
	got, err := r.Bytes()
	if err != nil || !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("Bytes() = (%q, %v)", got, err)
	}

	field, wt, err = r.Tag()
	if err != nil || field != 3 || wt != Varint {
		t.Fatalf("second tag = (%d, %d, %v)", field, wt, err)
	}
	v, err := r.Varint()
	if err != nil || v != 42 {
		t.Fatalf("Varint() = (%d, %v), want (42, nil)", v, err)
	}

	field, wt, err = r.Tag()
	if err != nil || field != 11 || wt != ThirtyTwo {
		t.Fatalf("third tag = (%d, %d, %v)", field, wt, err)
	}
	f32, err := r.Fixed32()
	if err != nil || f32 != 7 {
		t.Fatalf("Fixed32() = (%d, %v), want (7, nil)", f32, err)
	}

	field, wt, err = r.Tag()
	if err != nil || field != 18 || wt != SixtyFour {
		t.Fatalf("fourth tag = (%d, %d, %v)", field, wt, err)
	}
	f64, err := r.Fixed64()
	if err != nil || f64 != 1<<40 {
		t.Fatalf("Fixed64() = (%d, %v), want (%d, nil)", f64, err, uint64(1<<40))
	}

	if !r.Done() {
		t.Fatalf("reader should be exhausted, %d bytes remaining", r.Remaining())
	}
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{0x80})
	if _, err := r.Varint(); err == nil {
		t.Fatal("expected error decoding truncated varint")
	}

	r = NewReader(AppendTaggedBytes(nil, 2, []byte("hello"))[:3])
	if _, _, err := r.Tag(); err != nil {
		t.Fatalf("Tag() error = %v", err)
	}
	if _, err := r.Bytes(); err == nil {
		t.Fatal("expected error decoding truncated length-delimited field")
	}
}
