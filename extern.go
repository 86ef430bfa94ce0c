package revdb

// ExternTable is an externally owned, ordered table of strings shared
// across many encoded documents, amortizing common keys (field names,
// repeated enum values, ...) across a whole corpus instead of a single
// document. An Encoder may append to it, bounded by maxExternStrings, but
// must never remove or reorder entries: ids are 1-based and permanent for
// the lifetime of the table. If a table is shared between goroutines, the
// caller is responsible for serializing access to it.
type ExternTable struct {
	strings []string
	lookup  map[string]uint32 // string -> 1-based id
}

// NewExternTable builds a table seeded with an existing ordered list of
// strings (e.g. loaded from a prior session).
func NewExternTable(initial []string) *ExternTable {
	t := &ExternTable{
		strings: append([]string(nil), initial...),
		lookup:  make(map[string]uint32, len(initial)),
	}
	for i, s := range t.strings {
		t.lookup[s] = uint32(i) + 1
	}
	return t
}

// Len returns the number of strings currently in the table.
func (t *ExternTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.strings)
}

// Strings returns the table's contents in id order (index 0 is id 1).
func (t *ExternTable) Strings() []string {
	if t == nil {
		return nil
	}
	return t.strings
}

// At returns the string for a 1-based id.
func (t *ExternTable) At(id uint32) (string, bool) {
	if t == nil || id == 0 || int(id) > len(t.strings) {
		return "", false
	}
	return t.strings[id-1], true
}

// Lookup returns the 1-based id of s, if it is already in the table.
func (t *ExternTable) Lookup(s string) (uint32, bool) {
	if t == nil {
		return 0, false
	}
	id, ok := t.lookup[s]
	return id, ok
}

func (t *ExternTable) add(s string) uint32 {
	t.strings = append(t.strings, s)
	id := uint32(len(t.strings))
	t.lookup[s] = id
	return id
}
