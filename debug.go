package revdb

import (
	"fmt"
	"strings"
)

// DumpFlags selects which sections DocStore.Dump includes.
type DumpFlags uint64

const (
	DumpDocHeaders DumpFlags = 1 << iota
	DumpRevisions
	DumpStats

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var dumpSep = strings.Repeat("-", 60)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders every document's revision tree as text, for use in tests
// and admin tooling. It opens its own read-only transaction.
func (store *DocStore) Dump(f DumpFlags) string {
	var buf strings.Builder
	store.View(func(tx *Tx) error {
		c := tx.stx.Bucket(docsBucket).Cursor()
		for docID, raw := c.First(); docID != nil; docID, raw = c.Next() {
			tx.dumpDoc(&buf, f, docID, raw)
		}
		return nil
	})
	return buf.String()
}

func (tx *Tx) dumpDoc(w *strings.Builder, f DumpFlags, docID, raw []byte) {
	seq := tx.docSeq(docID)
	tree := NewRevTree()
	if err := tree.Decode(raw, seq, seq); err != nil {
		fmt.Fprintf(w, "%s: ** ERROR: %v\n", docID, err)
		return
	}

	if f.Contains(DumpDocHeaders) {
		fmt.Fprintln(w, dumpSep)
		fmt.Fprintf(w, "%s (seq %d, %d revisions)\n", docID, seq, tree.Len())
	}
	if f.Contains(DumpStats) {
		conflict := tree.HasConflict()
		fmt.Fprintf(w, "  conflict=%v leaves=%d\n", conflict, len(tree.Leaves()))
	}
	if f.Contains(DumpRevisions) {
		for i := 0; i < tree.Len(); i++ {
			rev := tree.Get(RevIndex(i))
			parent := "-"
			if p := rev.ParentIndex(); p != NoParent {
				parent = fmt.Sprintf("%d", p)
			}
			fmt.Fprintf(w, "  [%d] %s parent=%s leaf=%v deleted=%v bodyLen=%d\n",
				i, rev.RevID(), parent, rev.IsLeaf(), rev.IsDeleted(), len(rev.Body()))
		}
	}
}
