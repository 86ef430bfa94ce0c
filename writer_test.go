package revdb

import (
	"reflect"
	"testing"
)

func TestWriter_WriteAndGrow(t *testing.T) {
	w := NewWriter(1)
	w.Write([]byte{1, 2, 3})
	w.WriteByte(4)
	if got := w.Output(); !reflect.DeepEqual(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("Output = %x, wanted 01020304", got)
	}
	if w.Length() != 4 {
		t.Fatalf("Length = %d, wanted 4", w.Length())
	}
}

func TestWriter_Rewrite(t *testing.T) {
	w := NewWriter(0)
	w.Write([]byte{1, 2, 3, 4, 5})
	w.Rewrite(1, []byte{9, 9})
	if got := w.Output(); !reflect.DeepEqual(got, []byte{1, 9, 9, 4, 5}) {
		t.Fatalf("Output = %x, wanted 0109090405", got)
	}
}

func TestWriter_RewriteOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	w := NewWriter(0)
	w.Write([]byte{1, 2, 3})
	w.Rewrite(2, []byte{1, 2})
}

func TestWriter_ExtractOutputResets(t *testing.T) {
	w := NewWriter(0)
	w.Write([]byte{1, 2})
	out := w.ExtractOutput()
	if !reflect.DeepEqual(out, []byte{1, 2}) {
		t.Fatalf("ExtractOutput = %x, wanted 0102", out)
	}
	if w.Length() != 0 {
		t.Fatalf("Length after extract = %d, wanted 0", w.Length())
	}
}

func TestWriter_Clone(t *testing.T) {
	w := NewWriter(0)
	w.Write([]byte{1, 2, 3})
	dup := w.Clone()
	w.Write([]byte{4})
	if got := dup.Output(); !reflect.DeepEqual(got, []byte{1, 2, 3}) {
		t.Fatalf("clone mutated by original write: %x", got)
	}
}
