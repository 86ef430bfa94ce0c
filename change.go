package revdb

import "fmt"

type (
	// Change describes one revision inserted into a document's revision
	// tree during a transaction (OpDelete for a deletion tombstone).
	Change struct {
		docID  []byte
		op     Op
		revID  []byte
		status int
	}

	ChangeFlags uint64

	Op int
)

const (
	OpNone   Op = 0
	OpPut    Op = 1
	OpDelete Op = 2
)

const (
	ChangeFlagNotify ChangeFlags = 1 << iota
	ChangeFlagIncludeBody
)

func (chg *Change) DocID() []byte {
	return chg.docID
}
func (chg *Change) Op() Op {
	return chg.op
}
func (chg *Change) RevID() []byte {
	return chg.revID
}

// Status is the HTTP-style outcome RevTree.Insert produced for this change.
// Changes recorded by PutHistory always carry 201.
func (chg *Change) Status() int {
	return chg.status
}

func (v ChangeFlags) Contains(f ChangeFlags) bool {
	return (v & f) == f
}
func (v ChangeFlags) ContainsAny(f ChangeFlags) bool {
	return (v & f) != 0
}

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}
