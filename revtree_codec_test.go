package revdb

import (
	"errors"
	"testing"
)

func TestRevTreeCodec_RoundTrip(t *testing.T) {
	tree := NewRevTree()
	idxA := mustInsert(t, tree, "1-a", `{"x":1}`, NoParent)
	mustInsert(t, tree, "2-b", `{"x":2}`, idxA)

	raw := tree.Encode()

	out := NewRevTree()
	if err := out.Decode(raw, 7, 7); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("Len() = %d, wanted 2", out.Len())
	}

	idx, ok := out.GetByID([]byte("2-b"))
	if !ok {
		t.Fatalf("2-b not found after round trip")
	}
	rev := out.Get(idx)
	if string(rev.Body()) != `{"x":2}` {
		t.Fatalf("body = %q, wanted the original body", rev.Body())
	}
	if !rev.IsLeaf() {
		t.Fatalf("2-b should still be the leaf after round trip")
	}

	parentIdx, ok := out.GetByID([]byte("1-a"))
	if !ok {
		t.Fatalf("1-a not found after round trip")
	}
	if rev.ParentIndex() != parentIdx {
		t.Fatalf("parent link not preserved across round trip")
	}
}

func TestRevTreeCodec_SequenceSubstitution(t *testing.T) {
	tree := NewRevTree()
	mustInsert(t, tree, "1-a", "hello", NoParent)
	raw := tree.Encode()

	out := NewRevTree()
	if err := out.Decode(raw, 42, 42); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	idx, _ := out.GetByID([]byte("1-a"))
	if out.Get(idx).Sequence() != 42 {
		t.Fatalf("Sequence() = %d, wanted 42 (substituted for the unresolved 0)", out.Get(idx).Sequence())
	}

	raw2 := out.Encode()
	out2 := NewRevTree()
	if err := out2.Decode(raw2, 99, 99); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	idx2, _ := out2.GetByID([]byte("1-a"))
	if out2.Get(idx2).Sequence() != 42 {
		t.Fatalf("Sequence() = %d, wanted 42 to be preserved once resolved", out2.Get(idx2).Sequence())
	}
}

func TestRevTreeCodec_CorruptDataRejected(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
	}{
		{"truncated", []byte{0, 0, 0}},
		{"size too small", []byte{0, 0, 0, 1, 0, 0, 0, 0}},
		{"size overruns buffer", []byte{0, 0, 0, 0xFF, 1, 2, 3}},
		{"missing trailer", []byte{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out := NewRevTree()
			err := out.Decode(c.raw, 1, 1)
			if err == nil {
				t.Fatalf("expected an error decoding malformed data")
			}
			if !errors.Is(err, ErrCorruptRevisionData) {
				t.Fatalf("err = %v, wanted ErrCorruptRevisionData", err)
			}
		})
	}
}

func TestRevTreeCodec_EmptyTree(t *testing.T) {
	tree := NewRevTree()
	raw := tree.Encode()

	out := NewRevTree()
	if err := out.Decode(raw, 1, 1); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("Len() = %d, wanted 0", out.Len())
	}
}

func TestRevTreeCodec_NoBodyOffsetOnUntouchedRevision(t *testing.T) {
	tree := NewRevTree()
	idxA := mustInsert(t, tree, "1-a", "hello", NoParent)
	_ = tree.Encode()

	idxB := tree.insert([]byte("2-b"), nil, false, false, idxA)
	if idxB == NoParent {
		t.Fatalf("insert of 2-b failed")
	}

	raw := tree.Encode()
	out := NewRevTree()
	if err := out.Decode(raw, 5, 5); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	idx, ok := out.GetByID([]byte("2-b"))
	if !ok {
		t.Fatalf("2-b not found after round trip")
	}
	rev := out.Get(idx)
	if len(rev.Body()) != 0 {
		t.Fatalf("2-b has no body, got %q", rev.Body())
	}
	if rev.OldBodyOffset() != 0 {
		t.Fatalf("2-b never had a body removed; OldBodyOffset() = %d, wanted 0", rev.OldBodyOffset())
	}
}

func TestRevTreeCodec_OldBodyOffsetPreserved(t *testing.T) {
	tree := NewRevTree()
	idx := mustInsert(t, tree, "1-a", "hello", NoParent)
	tree.SetBodyOffset(5)
	if ok := tree.RemoveBody(idx, true); !ok {
		t.Fatalf("RemoveBody failed")
	}

	raw := tree.Encode()
	out := NewRevTree()
	if err := out.Decode(raw, 10, 10); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rev := out.Get(idx)
	if len(rev.Body()) != 0 {
		t.Fatalf("body should be empty after RemoveBody")
	}
	if rev.OldBodyOffset() != 5 {
		t.Fatalf("OldBodyOffset() = %d, wanted 5", rev.OldBodyOffset())
	}
}
