package sst

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	"github.com/rescrv-labs/lsmkv/options"
)

// writeSSTFile builds a single-entry SST and writes it under dir using the
// file cache's own naming scheme, returning its metadata.
func writeSSTFile(t *testing.T, dir, key string) Metadata {
	t.Helper()
	var buf bytes.Buffer
	b := NewBuilder(&buf, options.DefaultSstOptions())
	if err := b.Put([]byte(key), 1, []byte("v-"+key)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	meta, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	path := SstFilePath(dir, meta.Setsum)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
	return meta
}

// TestFileCacheOpenCachesReader checks that two Open calls for the same
// setsum return the identical Reader and do not grow Len.
func TestFileCacheOpenCachesReader(t *testing.T) {
	dir := t.TempDir()
	md := writeSSTFile(t, dir, "a")

	fc := NewFileCache(dir, 4)
	defer fc.Close()

	r1, err := fc.Open(md.Setsum)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	r2, err := fc.Open(md.Setsum)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if r1 != r2 {
		t.Fatalf("Open() returned different readers for the same setsum")
	}
	if fc.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", fc.Len())
	}
}

// TestFileCacheEvictsLeastRecentlyUsed checks that once Len exceeds
// maxOpen, the least-recently-touched entry is the one closed, not
// whichever happens to be oldest by insertion order.
func TestFileCacheEvictsLeastRecentlyUsed(t *testing.T) {
	dir := t.TempDir()
	mds := make([]Metadata, 3)
	for i := range mds {
		mds[i] = writeSSTFile(t, dir, fmt.Sprintf("k%d", i))
	}

	fc := NewFileCache(dir, 2)
	defer fc.Close()

	if _, err := fc.Open(mds[0].Setsum); err != nil {
		t.Fatalf("Open(0) error = %v", err)
	}
	if _, err := fc.Open(mds[1].Setsum); err != nil {
		t.Fatalf("Open(1) error = %v", err)
	}
	// Touch 0 again so 1 becomes the least-recently-used entry.
	if _, err := fc.Open(mds[0].Setsum); err != nil {
		t.Fatalf("re-Open(0) error = %v", err)
	}
	if _, err := fc.Open(mds[2].Setsum); err != nil {
		t.Fatalf("Open(2) error = %v", err)
	}
	if fc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", fc.Len())
	}
	if _, ok := fc.index[mds[1].Setsum]; ok {
		t.Fatalf("entry 1 should have been evicted as least-recently-used")
	}
	if _, ok := fc.index[mds[0].Setsum]; !ok {
		t.Fatalf("entry 0 should still be cached")
	}
	if _, ok := fc.index[mds[2].Setsum]; !ok {
		t.Fatalf("entry 2 should still be cached")
	}
}

// TestFileCacheEvict checks that Evict closes and forgets a specific
// entry, and that a subsequent Open reopens it fresh.
func TestFileCacheEvict(t *testing.T) {
	dir := t.TempDir()
	md := writeSSTFile(t, dir, "a")

	fc := NewFileCache(dir, 4)
	defer fc.Close()

	if _, err := fc.Open(md.Setsum); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	fc.Evict(md.Setsum)
	if fc.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after Evict", fc.Len())
	}
	if _, err := fc.Open(md.Setsum); err != nil {
		t.Fatalf("Open() after Evict error = %v", err)
	}
	if fc.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after reopening", fc.Len())
	}
}

// TestFileCacheUnboundedWhenMaxOpenZero checks maxOpen <= 0 never evicts.
func TestFileCacheUnboundedWhenMaxOpenZero(t *testing.T) {
	dir := t.TempDir()
	mds := make([]Metadata, 5)
	for i := range mds {
		mds[i] = writeSSTFile(t, dir, fmt.Sprintf("u%d", i))
	}

	fc := NewFileCache(dir, 0)
	defer fc.Close()
	for _, md := range mds {
		if _, err := fc.Open(md.Setsum); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
	}
	if fc.Len() != len(mds) {
		t.Fatalf("Len() = %d, want %d with an unbounded cache", fc.Len(), len(mds))
	}
}
