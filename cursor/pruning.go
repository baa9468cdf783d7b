package cursor

import "bytes"

// PruningCursor filters a child cursor down to the single most recent
// version of each key visible at a given read timestamp: entries with
// Timestamp() greater than the cursor's visibility cutoff are invisible
// (written after the read began) and are skipped, and every version of a
// key older than the first visible one is superseded and skipped too.
// Tombstones pass through like any other entry; callers distinguish a
// visible delete from an absent key via IsTombstone.
//
// Because the reverse-timestamp order places a key's newest version
// first, forward movement only ever needs to skip entries; backward
// movement must instead re-seek to the head of a key's version run to
// find the newest version still at or under the cutoff, since walking
// Prev naturally lands on the oldest version first.
type PruningCursor struct {
	child       Cursor
	visibleUpTo uint64
}

// NewPruningCursor wraps child, hiding any entry with Timestamp() greater
// than visibleUpTo.
func NewPruningCursor(child Cursor, visibleUpTo uint64) *PruningCursor {
	return &PruningCursor{child: child, visibleUpTo: visibleUpTo}
}

// Valid reports whether the cursor is positioned at an entry.
func (p *PruningCursor) Valid() bool { return p.child.Valid() }

// Key returns the current entry's key.
func (p *PruningCursor) Key() []byte { return p.child.Key() }

// Timestamp returns the current entry's timestamp.
func (p *PruningCursor) Timestamp() uint64 { return p.child.Timestamp() }

// Value returns the current entry's value.
func (p *PruningCursor) Value() []byte { return p.child.Value() }

// IsTombstone reports whether the current entry is a DEL.
func (p *PruningCursor) IsTombstone() bool { return p.child.IsTombstone() }

// fixForward skips entries invisible at the cutoff; since skipping a
// whole key's invisible versions naturally advances into the next key's
// versions, no special-casing of key boundaries is needed going forward.
func (p *PruningCursor) fixForward() error {
	for p.child.Valid() && p.child.Timestamp() > p.visibleUpTo {
		if err := p.child.Next(); err != nil {
			return err
		}
	}
	return nil
}

// SeekToFirst calls the child's SeekToFirst and, if the child is then at
// an entry, moves forward to the first visible one. With a half-open child
// (block.Cursor, MergingCursor) the cursor is left before the first entry
// and Next resolves the first visible entry.
func (p *PruningCursor) SeekToFirst() error {
	if err := p.child.SeekToFirst(); err != nil {
		return err
	}
	return p.fixForward()
}

// SeekToLast positions the cursor conceptually after the last entry;
// call Prev to reach the actual last visible entry.
func (p *PruningCursor) SeekToLast() error {
	return p.child.SeekToLast()
}

// Seek positions at the first visible entry with key >= target.
func (p *PruningCursor) Seek(target []byte) error {
	if err := p.child.Seek(target); err != nil {
		return err
	}
	return p.fixForward()
}

// Next skips the remainder of the current key's version run, then
// advances to the next visible entry. When the cursor isn't positioned —
// conceptually before the first entry, or genuinely exhausted — there is
// no current key's run to skip, so it just advances the child once and
// resolves forward; this also correctly resolves the child's conceptual
// before-first position left by SeekToFirst into its real first entry.
func (p *PruningCursor) Next() error {
	if !p.Valid() {
		if err := p.child.Next(); err != nil {
			return err
		}
		return p.fixForward()
	}
	curKey := append([]byte(nil), p.child.Key()...)
	for {
		if err := p.child.Next(); err != nil {
			return err
		}
		if !p.child.Valid() || !bytes.Equal(p.child.Key(), curKey) {
			break
		}
	}
	return p.fixForward()
}

// Prev moves to the previous visible entry. Walking Prev through a key's
// version run reaches the oldest version first, not the newest one still
// under the cutoff, so each candidate key is re-sought from its head and
// scanned forward (skipping invisible versions exactly as fixForward
// does) to find the correct version; if that key has no visible version
// at all, Prev continues to the key before it.
func (p *PruningCursor) Prev() error {
	if p.Valid() {
		curKey := append([]byte(nil), p.child.Key()...)
		for {
			if err := p.child.Prev(); err != nil {
				return err
			}
			if !p.child.Valid() || !bytes.Equal(p.child.Key(), curKey) {
				break
			}
		}
	} else {
		if err := p.child.Prev(); err != nil {
			return err
		}
	}

	for p.child.Valid() {
		key := append([]byte(nil), p.child.Key()...)
		if err := p.child.Seek(key); err != nil {
			return err
		}
		for p.child.Valid() && bytes.Equal(p.child.Key(), key) && p.child.Timestamp() > p.visibleUpTo {
			if err := p.child.Next(); err != nil {
				return err
			}
		}
		if p.child.Valid() && bytes.Equal(p.child.Key(), key) {
			return nil
		}
		if err := p.child.Seek(key); err != nil {
			return err
		}
		if err := p.child.Prev(); err != nil {
			return err
		}
	}
	return nil
}
