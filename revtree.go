package revdb

import (
	"bytes"
	"sort"
)

// BodyLoader resolves the body of a revision that isn't held inline,
// given the revision and the file offset of the document version that
// held it. It returns ok=false on any failure (missing data, I/O error);
// RevTree never panics or retries on a failed load: ReadBodyOf returns
// nil, and Compress/Decompress return ErrDeltaFailure.
type BodyLoader func(rev *Revision, atOffset uint64) (body []byte, ok bool)

// RevTree is an in-memory, index-addressed DAG of a document's revisions.
// Mutating operations (Insert, InsertHistory, Sort, Prune, Purge) may
// reorder or renumber revisions; callers must not hold a
// RevIndex or *Revision across such a call.
type RevTree struct {
	revs       []Revision
	bodyOffset uint64
	sorted     bool
	changed    bool
	unknown    bool

	loadBody BodyLoader
}

// NewRevTree returns an empty tree.
func NewRevTree() *RevTree {
	return &RevTree{sorted: true}
}

// NewUnknownRevTree returns a tree whose metadata (body offset) is known
// but whose revisions haven't been loaded yet. Get and Current panic
// until Decode populates the tree; the other accessors see an empty tree.
func NewUnknownRevTree(bodyOffset uint64) *RevTree {
	return &RevTree{bodyOffset: bodyOffset, unknown: true}
}

// SetBodyLoader installs the callback used to resolve a body stored
// outside this tree (referenced by OldBodyOffset). It may be nil, in
// which case such bodies are reported as unavailable.
func (t *RevTree) SetBodyLoader(loader BodyLoader) {
	t.loadBody = loader
}

// BodyOffset is the file offset of the document version this tree was
// decoded from. RemoveBody records it as the OldBodyOffset of a body it
// clears.
func (t *RevTree) BodyOffset() uint64 { return t.bodyOffset }

// SetBodyOffset sets the file offset that RemoveBody records for bodies
// it clears.
func (t *RevTree) SetBodyOffset(off uint64) { t.bodyOffset = off }

// Len returns the number of revisions in the tree.
func (t *RevTree) Len() int { return len(t.revs) }

// Changed reports whether the tree has been mutated since decode (or
// since construction, for a tree built from scratch).
func (t *RevTree) Changed() bool { return t.changed }

// Get returns the revision at index i.
func (t *RevTree) Get(i RevIndex) *Revision {
	if t.unknown {
		panic("revdb: RevTree accessed before its revisions were loaded")
	}
	return &t.revs[i]
}

// ParentOf returns the index of rev i's parent, or NoParent.
func (t *RevTree) ParentOf(i RevIndex) RevIndex {
	return t.revs[i].parentIndex
}

// Current returns the index of the highest-priority revision, sorting
// the tree first if needed. It reports ok=false only for an empty tree.
func (t *RevTree) Current() (RevIndex, bool) {
	if t.unknown {
		panic("revdb: RevTree.Current called before its revisions were loaded")
	}
	t.Sort()
	if len(t.revs) == 0 {
		return NoParent, false
	}
	return 0, true
}

// GetByID returns the index of the revision with the given rev id.
func (t *RevTree) GetByID(revID []byte) (RevIndex, bool) {
	for i := range t.revs {
		if bytes.Equal(t.revs[i].revID, revID) {
			return RevIndex(i), true
		}
	}
	return NoParent, false
}

// GetBySequence returns the index of the revision saved at sequence seq.
func (t *RevTree) GetBySequence(seq uint64) (RevIndex, bool) {
	for i := range t.revs {
		if t.revs[i].sequence == seq {
			return RevIndex(i), true
		}
	}
	return NoParent, false
}

// HasConflict reports whether more than one revision is active (a live
// leaf), i.e. whether the document has unresolved conflicting edits.
func (t *RevTree) HasConflict() bool {
	if len(t.revs) < 2 {
		return false
	}
	if t.sorted {
		return t.revs[1].IsActive()
	}
	active := 0
	for i := range t.revs {
		if t.revs[i].IsActive() {
			active++
			if active > 1 {
				return true
			}
		}
	}
	return false
}

// Leaves returns the indices of every leaf revision.
func (t *RevTree) Leaves() []RevIndex {
	var out []RevIndex
	for i := range t.revs {
		if t.revs[i].IsLeaf() {
			out = append(out, RevIndex(i))
		}
	}
	return out
}

// Insert adds revID as a child of parent (NoParent for a root revision),
// returning an HTTP-style status: 200 if revID already exists or the
// insert is a deletion, 201 if newly created, 400 for an invalid or
// out-of-sequence rev id, 409 for a conflict not permitted by
// allowConflict. idx is NoParent unless the revision now exists in the
// tree (status 200 or 201).
func (t *RevTree) Insert(revID, body []byte, deleted, hasAttachments bool, parent RevIndex, allowConflict bool) (status int, idx RevIndex) {
	newGen := generation(revID)
	if newGen == 0 {
		return 400, NoParent
	}
	if existing, ok := t.GetByID(revID); ok {
		return 200, existing
	}

	var parentGen int
	if parent != NoParent {
		if !allowConflict && !t.revs[parent].IsLeaf() {
			return 409, NoParent
		}
		parentGen = t.revs[parent].Generation()
	} else {
		if !allowConflict && len(t.revs) > 0 {
			return 409, NoParent
		}
	}

	if newGen != parentGen+1 {
		return 400, NoParent
	}

	idx = t.insert(revID, body, deleted, hasAttachments, parent)
	if deleted {
		return 200, idx
	}
	return 201, idx
}

// InsertByParentID is Insert, but looks up the parent by rev id instead
// of by index. It returns status 404 if parentRevID is non-empty and not
// found in the tree.
func (t *RevTree) InsertByParentID(revID, body []byte, deleted, hasAttachments bool, parentRevID []byte, allowConflict bool) (status int, idx RevIndex) {
	parent := NoParent
	if len(parentRevID) > 0 {
		p, ok := t.GetByID(parentRevID)
		if !ok {
			return 404, NoParent
		}
		parent = p
	}
	return t.Insert(revID, body, deleted, hasAttachments, parent, allowConflict)
}

// InsertHistory inserts an ancestor chain, history[0] being the newest
// revision and history[len-1] the oldest. Only history[0] is given body,
// deleted, and hasAttachments; intermediate ancestors are inserted with
// empty bodies and no flags. It returns the index within history of the
// first ancestor already present in the tree (len(history) if none was),
// or -1 if the generations in history aren't consecutive descending.
func (t *RevTree) InsertHistory(history [][]byte, body []byte, deleted, hasAttachments bool) int {
	if len(history) == 0 {
		panic("revdb: InsertHistory requires a non-empty history")
	}

	lastGen := 0
	parent := NoParent
	i := 0
	for ; i < len(history); i++ {
		gen := generation(history[i])
		if lastGen > 0 && gen != lastGen-1 {
			return -1
		}
		lastGen = gen
		if idx, ok := t.GetByID(history[i]); ok {
			parent = idx
			break
		}
	}
	commonAncestorIndex := i

	if i > 0 {
		i--
		for ; i > 0; i-- {
			parent = t.insert(history[i], nil, false, false, parent)
		}
		t.insert(history[0], body, deleted, hasAttachments, parent)
	}
	return commonAncestorIndex
}

// insert always succeeds: it clones revID and body into the tree's own
// storage, appends a new Leaf|New revision, and clears the parent's Leaf
// flag if there was a parent.
func (t *RevTree) insert(revID, body []byte, deleted, hasAttachments bool, parent RevIndex) RevIndex {
	if len(t.revs) >= maxRevs {
		panic("revdb: RevTree cannot hold more than 65535 revisions")
	}

	flags := RevFlagLeaf | RevFlagNew
	if deleted {
		flags |= RevFlagDeleted
	}
	if hasAttachments {
		flags |= RevFlagHasAttachments
	}

	rev := Revision{
		revID:         append([]byte(nil), revID...),
		body:          append([]byte(nil), body...),
		parentIndex:   parent,
		deltaRefIndex: NoParent,
		flags:         flags,
	}
	t.revs = append(t.revs, rev)
	idx := RevIndex(len(t.revs) - 1)

	if parent != NoParent {
		t.revs[parent].flags &^= RevFlagLeaf
	}
	t.changed = true
	if len(t.revs) > 1 {
		t.sorted = false
	}
	return idx
}

// IsBodyAvailable reports whether rev's body is present without going
// through the BodyLoader. The base implementation just checks for an
// inline body; a store built on this tree may want to additionally check
// whether atOffset is still reachable on disk.
func (t *RevTree) IsBodyAvailable(rev *Revision, atOffset uint64) bool {
	return len(rev.body) > 0
}

// loadInline returns rev's own stored bytes, ignoring delta compression:
// its inline body if present, or the BodyLoader's result for
// oldBodyOffset otherwise. It returns nil if neither is available.
func (t *RevTree) loadInline(rev *Revision, atOffset uint64) []byte {
	if len(rev.body) > 0 {
		return rev.body
	}
	if rev.oldBodyOffset == 0 || t.loadBody == nil {
		return nil
	}
	body, ok := t.loadBody(rev, rev.oldBodyOffset)
	if !ok {
		return nil
	}
	return body
}

// ReadBodyOf returns the fully expanded body of rev: its own bytes if not
// compressed, or its delta-reference's fully expanded body with rev's
// delta applied on top if it is. It returns nil (not an error) if any
// body along the chain can't be loaded, matching the source's
// nullable-return contract.
func (t *RevTree) ReadBodyOf(rev *Revision, atOffset uint64) []byte {
	if rev.deltaRefIndex == NoParent {
		return t.loadInline(rev, atOffset)
	}
	ref := &t.revs[rev.deltaRefIndex]
	refBody := t.ReadBodyOf(ref, t.bodyOffset)
	if refBody == nil {
		return nil
	}
	delta := t.loadInline(rev, atOffset)
	if delta == nil {
		return nil
	}
	out, err := ApplyDelta(refBody, delta, DeltaFlagNoChecksum)
	if err != nil {
		return nil
	}
	return out
}

// Compress replaces target's body with a delta against reference's body,
// using the package's DeltaCodec. It fails with ErrCycleAttempted if
// reference's own delta-reference chain would eventually point back at
// target, and with ErrDeltaFailure if either body can't be read or the
// codec itself fails.
func (t *RevTree) Compress(target, reference RevIndex) error {
	tgt := &t.revs[target]
	if tgt.IsCompressed() {
		return nil
	}
	for ref := reference; ; ref = t.revs[ref].deltaRefIndex {
		if ref == target {
			return ErrCycleAttempted
		}
		if !t.revs[ref].IsCompressed() {
			break
		}
	}

	refRev := &t.revs[reference]
	refBody := t.ReadBodyOf(refRev, t.bodyOffset)
	tgtBody := t.loadInline(tgt, t.bodyOffset)
	if refBody == nil || tgtBody == nil {
		return ErrDeltaFailure
	}
	delta, err := CreateDelta(refBody, tgtBody, DeltaFlagNoChecksum)
	if err != nil {
		return docErrf(nil, tgt.revID, ErrDeltaFailure, "compress: %v", err)
	}
	t.replaceBody(tgt, delta)
	tgt.deltaRefIndex = reference
	return nil
}

// Decompress expands rev's delta body in place and clears its delta
// reference.
func (t *RevTree) Decompress(rev RevIndex) error {
	r := &t.revs[rev]
	if !r.IsCompressed() {
		return nil
	}
	body := t.ReadBodyOf(r, t.bodyOffset)
	if body == nil {
		return ErrDeltaFailure
	}
	t.replaceBody(r, body)
	r.deltaRefIndex = NoParent
	return nil
}

// RemoveBody clears rev's inline body, remembering the tree's body
// offset so it can be recovered from the prior document version. Any
// revision currently delta-compressed against rev must be expanded
// first; if allowExpansion is false and such a dependent exists,
// RemoveBody fails and leaves rev untouched.
func (t *RevTree) RemoveBody(rev RevIndex, allowExpansion bool) bool {
	r := &t.revs[rev]
	if len(r.body) == 0 {
		return true
	}
	for i := range t.revs {
		if t.revs[i].deltaRefIndex == rev {
			if !allowExpansion {
				return false
			}
			if err := t.Decompress(RevIndex(i)); err != nil {
				return false
			}
		}
	}
	t.replaceBody(r, nil)
	return true
}

func (t *RevTree) replaceBody(rev *Revision, body []byte) {
	if len(body) > 0 {
		rev.body = append([]byte(nil), body...)
	} else {
		if len(rev.body) == 0 {
			return
		}
		rev.oldBodyOffset = t.bodyOffset
		rev.body = nil
	}
	t.changed = true
}

// ComputeDepths returns, for every revision index, its distance from a
// leaf along the parent chain: 0 for a leaf itself, 1 for a leaf's
// parent, and so on. When several leaves reach a revision, useMax selects
// the longest such distance, otherwise the shortest. A revision
// unreachable from any leaf keeps depth 0xFFFF.
func (t *RevTree) ComputeDepths(useMax bool) []uint16 {
	depths := make([]uint16, len(t.revs))
	for i := range depths {
		depths[i] = 0xFFFF
	}
	for i := range t.revs {
		if t.revs[i].IsLeaf() {
			d := uint16(0)
			for idx := RevIndex(i); idx != NoParent; idx, d = t.revs[idx].parentIndex, d+1 {
				old := depths[idx]
				better := old == 0xFFFF
				if !better {
					if useMax {
						better = d > old
					} else {
						better = d < old
					}
				}
				if !better {
					break
				}
				depths[idx] = d
			}
		} else if t.sorted {
			break
		}
	}
	return depths
}

// Prune removes every revision whose longest-path depth from a leaf (see
// ComputeDepths with useMax) exceeds maxDepth, then compacts the tree. It returns the
// number of revisions removed.
func (t *RevTree) Prune(maxDepth int) int {
	if maxDepth <= 0 || len(t.revs) <= maxDepth {
		return 0
	}
	depths := t.ComputeDepths(true)
	pruned := 0
	for i := range t.revs {
		if int(depths[i]) > maxDepth {
			t.revs[i].revID = nil
			pruned++
		}
	}
	if pruned > 0 {
		t.compact()
	}
	return pruned
}

// Purge removes the leaf revision leafID and then each ancestor whose
// remaining children have all themselves been purged, stopping at the
// first ancestor that's still a parent of some other revision. It
// returns the number of revisions removed.
func (t *RevTree) Purge(leafID []byte) int {
	idx, ok := t.GetByID(leafID)
	if !ok || !t.revs[idx].IsLeaf() {
		return 0
	}
	purged := 0
	for {
		purged++
		rev := &t.revs[idx]
		rev.revID = nil
		parent := rev.parentIndex
		rev.parentIndex = NoParent
		if parent == NoParent {
			break
		}
		idx = parent
		if !t.confirmLeaf(idx) {
			break
		}
	}
	t.compact()
	return purged
}

// confirmLeaf sets the Leaf flag on rev i if nothing still names it as a
// parent, and reports whether it did.
func (t *RevTree) confirmLeaf(i RevIndex) bool {
	for j := range t.revs {
		if t.revs[j].parentIndex == i {
			return false
		}
	}
	t.revs[i].flags |= RevFlagLeaf
	return true
}

// compact removes every tombstoned (rev_id.len == 0) revision, sliding
// survivors down and rewriting parentIndex/deltaRefIndex through the
// resulting index map.
func (t *RevTree) compact() {
	idxMap := make([]RevIndex, len(t.revs))
	next := RevIndex(0)
	for i := range t.revs {
		if !t.revs[i].tombstoned() {
			idxMap[i] = next
			next++
		} else {
			idxMap[i] = NoParent
		}
	}

	dst := 0
	for i := range t.revs {
		if t.revs[i].tombstoned() {
			continue
		}
		rev := t.revs[i]
		if rev.parentIndex != NoParent {
			rev.parentIndex = idxMap[rev.parentIndex]
		}
		if rev.deltaRefIndex != NoParent {
			rev.deltaRefIndex = idxMap[rev.deltaRefIndex]
		}
		t.revs[dst] = rev
		dst++
	}
	t.revs = t.revs[:dst]
	t.changed = true
}

// revSortKey orders revisions by descending priority: leaves before
// non-leaves, non-deleted before deleted, larger rev id first.
func revSortKey(a, b *Revision) bool {
	if a.IsLeaf() != b.IsLeaf() {
		return a.IsLeaf()
	}
	if a.IsDeleted() != b.IsDeleted() {
		return !a.IsDeleted()
	}
	return bytes.Compare(a.revID, b.revID) > 0
}

// Sort reorders the tree's revisions into descending priority order (see
// revSortKey), rewriting every parentIndex and deltaRefIndex through the
// resulting permutation. It is a no-op if the tree is already marked
// sorted.
func (t *RevTree) Sort() {
	if t.sorted {
		return
	}
	n := len(t.revs)
	oldParents := make([]RevIndex, n)
	for i := range t.revs {
		oldParents[i] = t.revs[i].parentIndex
		t.revs[i].parentIndex = RevIndex(i)
	}

	sort.SliceStable(t.revs, func(i, j int) bool {
		return revSortKey(&t.revs[i], &t.revs[j])
	})

	oldToNew := make([]RevIndex, n)
	for i := range t.revs {
		oldIndex := t.revs[i].parentIndex
		oldToNew[oldIndex] = RevIndex(i)
	}

	for i := range t.revs {
		oldIndex := t.revs[i].parentIndex
		parent := oldParents[oldIndex]
		if parent != NoParent {
			parent = oldToNew[parent]
		}
		t.revs[i].parentIndex = parent

		if dr := t.revs[i].deltaRefIndex; dr != NoParent {
			t.revs[i].deltaRefIndex = oldToNew[dr]
		}
	}
	t.sorted = true
}
