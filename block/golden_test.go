package block

import (
	"bytes"
	"testing"

	"github.com/rescrv-labs/lsmkv/options"
)

// These byte vectors are bit-exact with original_source/sst/src/block.rs's
// own unit tests, which pin down the tagged framing this package must
// reproduce exactly.

func TestGoldenEmptyBlock(t *testing.T) {
	b := NewBuilder(options.DefaultBlockOptions())
	blk, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	want := []byte{82, 4, 0, 0, 0, 0, 93, 1, 0, 0, 0}
	if !bytes.Equal(blk.Bytes(), want) {
		t.Fatalf("empty block = %v, want %v", blk.Bytes(), want)
	}
}

func TestGoldenSingleItemBlock(t *testing.T) {
	b := NewBuilder(options.DefaultBlockOptions())
	if err := b.Put([]byte("key"), 0xc0ffee, []byte("value")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	blk, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	want := []byte{
		66, 19,
		8, 0,
		18, 3, 107, 101, 121,
		24, 238, 255, 131, 6,
		34, 5, 118, 97, 108, 117, 101,
		82, 4, 0, 0, 0, 0,
		93, 1, 0, 0, 0,
	}
	if !bytes.Equal(blk.Bytes(), want) {
		t.Fatalf("single item block =\n%v, want\n%v", blk.Bytes(), want)
	}
}

func TestGoldenPrefixCompression(t *testing.T) {
	b := NewBuilder(options.DefaultBlockOptions())
	if err := b.Put([]byte("key1"), 0xc0ffee, []byte("value1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := b.Put([]byte("key2"), 0xc0ffee, []byte("value2")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	blk, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	want := []byte{
		66, 21,
		8, 0, 18, 4, 107, 101, 121, 49,
		24, 238, 255, 131, 6,
		34, 6, 118, 97, 108, 117, 101, 49,
		66, 18,
		8, 3, 18, 1, 50,
		24, 238, 255, 131, 6,
		34, 6, 118, 97, 108, 117, 101, 50,
		82, 4, 0, 0, 0, 0,
		93, 1, 0, 0, 0,
	}
	if !bytes.Equal(blk.Bytes(), want) {
		t.Fatalf("prefix compression block =\n%v, want\n%v", blk.Bytes(), want)
	}
}

func TestGoldenLoadRestartPoints(t *testing.T) {
	data := []byte{
		66, 21, 8, 0, 18, 4, 107, 101, 121, 49,
		24, 238, 255, 131, 6, 34, 6, 118, 97, 108, 117, 101, 49,
		66, 21, 8, 0, 18, 4, 107, 101, 121, 50,
		24, 238, 255, 131, 6, 34, 6, 118, 97, 108, 117, 101, 50,
		82, 8, 0, 0, 0, 0, 22, 0, 0, 0,
		93, 2, 0, 0, 0,
	}
	blk, err := New(data)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if blk.numRestarts != 2 {
		t.Fatalf("numRestarts = %d, want 2", blk.numRestarts)
	}
	if got := blk.restartPoint(0); got != 0 {
		t.Fatalf("restartPoint(0) = %d, want 0", got)
	}
	if got := blk.restartPoint(1); got != 22 {
		t.Fatalf("restartPoint(1) = %d, want 22", got)
	}
}
