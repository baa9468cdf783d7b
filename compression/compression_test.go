package compression

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 64)

	codecs := []Codec{CodecNone, CodecSnappy, CodecLZ4, CodecZstd}
	for _, c := range codecs {
		t.Run(c.String(), func(t *testing.T) {
			encoded, err := Encode(c, payload)
			if err != nil {
				t.Fatalf("Encode(%s) error = %v", c, err)
			}
			decoded, err := Decode(c, encoded, len(payload))
			if err != nil {
				t.Fatalf("Decode(%s) error = %v", c, err)
			}
			if !bytes.Equal(decoded, payload) {
				t.Fatalf("round trip mismatch for %s", c)
			}
		})
	}
}

func TestIsKnown(t *testing.T) {
	for _, c := range []Codec{CodecNone, CodecSnappy, CodecLZ4, CodecZstd} {
		if !c.IsKnown() {
			t.Errorf("%s should be known", c)
		}
	}
	if Codec(99).IsKnown() {
		t.Errorf("codec 99 should not be known")
	}
}
