package revdb

// RevIndex addresses a Revision within the RevTree that owns it. Revision
// identity is the index, not a pointer: indices stay valid across a
// tree's lifetime except across a mutating call (Insert, InsertHistory,
// Sort, Prune, Purge), which callers must not straddle with a
// cached index.
type RevIndex uint16

// NoParent is the reserved index meaning "no such revision": an absent
// parent, an absent delta reference, or a failed lookup.
const NoParent RevIndex = 0xFFFF

// maxRevs is the largest number of revisions a tree can hold; RevIndex is
// 16 bits and 0xFFFF is reserved for NoParent.
const maxRevs = int(NoParent)

// RevFlags records a revision's persistent state plus, for New, a
// transient in-memory marker. Leaf, Deleted, and HasAttachments are
// written to the raw format; New is never serialized.
type RevFlags uint8

const (
	RevFlagLeaf           RevFlags = 0x01
	RevFlagDeleted        RevFlags = 0x02
	RevFlagHasAttachments RevFlags = 0x04
	RevFlagNew            RevFlags = 0x08

	revFlagHasBodyOffset RevFlags = 0x40
	revFlagHasData       RevFlags = 0x80

	revFlagPersistentMask = RevFlagLeaf | RevFlagDeleted | RevFlagHasAttachments
)

// Revision is one immutable version of a document. Its rev_id and body
// buffers are owned copies held by the tree; a Revision only borrows
// them, so a *Revision must not be retained across a tree mutation.
type Revision struct {
	revID         []byte
	sequence      uint64
	body          []byte
	oldBodyOffset uint64
	parentIndex   RevIndex
	deltaRefIndex RevIndex
	flags         RevFlags
}

// RevID returns the revision's identifier.
func (r *Revision) RevID() []byte { return r.revID }

// Sequence returns the document-sequence number this revision was saved
// at, or 0 if it hasn't been saved yet.
func (r *Revision) Sequence() uint64 { return r.sequence }

// Body returns the revision's stored body bytes: raw JSON if not
// compressed, or a delta against DeltaRefIndex's body if compressed. Use
// RevTree.ReadBodyOf for the expanded bytes.
func (r *Revision) Body() []byte { return r.body }

// OldBodyOffset is the file offset of a prior version of the owning
// document that still carries this revision's body, or 0 if the body is
// inline or absent.
func (r *Revision) OldBodyOffset() uint64 { return r.oldBodyOffset }

// ParentIndex is the index of this revision's parent, or NoParent.
func (r *Revision) ParentIndex() RevIndex { return r.parentIndex }

// DeltaRefIndex is the index of the revision this one's body is
// delta-compressed against, or NoParent if the body isn't compressed.
func (r *Revision) DeltaRefIndex() RevIndex { return r.deltaRefIndex }

// Flags returns the raw flag bitfield.
func (r *Revision) Flags() RevFlags { return r.flags }

// IsLeaf reports whether no other revision names this one as its parent.
func (r *Revision) IsLeaf() bool { return r.flags&RevFlagLeaf != 0 }

// IsDeleted reports whether this revision is a deletion tombstone.
func (r *Revision) IsDeleted() bool { return r.flags&RevFlagDeleted != 0 }

// HasAttachments reports whether this revision has associated attachments.
func (r *Revision) HasAttachments() bool { return r.flags&RevFlagHasAttachments != 0 }

// IsNew reports whether this revision was inserted in the current process
// and has never been round-tripped through Encode/Decode.
func (r *Revision) IsNew() bool { return r.flags&RevFlagNew != 0 }

// IsActive reports whether the revision is a live (non-deleted) leaf.
func (r *Revision) IsActive() bool { return r.IsLeaf() && !r.IsDeleted() }

// IsCompressed reports whether the body is stored as a delta.
func (r *Revision) IsCompressed() bool { return r.deltaRefIndex != NoParent }

// Generation is the leading generation number of the revision id, or 0 if
// the id doesn't start with one.
func (r *Revision) Generation() int { return generation(r.revID) }

// tombstoned marks a revision for removal by RevTree.compact; an empty
// rev id can never occur on a live revision (generation 0 is invalid).
func (r *Revision) tombstoned() bool { return len(r.revID) == 0 }

// generation parses the leading decimal digits of a rev id, the
// convention used throughout this package (e.g. "3-cafe01" has generation
// 3). A rev id with no leading digits has generation 0, which callers
// treat as invalid.
func generation(revID []byte) int {
	n := 0
	i := 0
	for i < len(revID) && revID[i] >= '0' && revID[i] <= '9' {
		n = n*10 + int(revID[i]-'0')
		i++
	}
	if i == 0 {
		return 0
	}
	return n
}
