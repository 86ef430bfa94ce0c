package revdb

import (
	"encoding/binary"
	"reflect"
	"testing"
)

func encodeOne(t *testing.T, write func(e *Encoder) error) []byte {
	t.Helper()
	w := NewWriter(0)
	e := NewEncoder(w, nil, 0)
	if err := write(e); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := e.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return out
}

func TestEncoder_ScalarRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		write func(e *Encoder) error
		want  any
	}{
		{"null", func(e *Encoder) error { return e.WriteNull() }, nil},
		{"true", func(e *Encoder) error { return e.WriteBool(true) }, true},
		{"false", func(e *Encoder) error { return e.WriteBool(false) }, false},
		{"int8", func(e *Encoder) error { return e.WriteInt(42) }, int64(42)},
		{"int16", func(e *Encoder) error { return e.WriteInt(1000) }, int64(1000)},
		{"int32", func(e *Encoder) error { return e.WriteInt(100000) }, int64(100000)},
		{"int64", func(e *Encoder) error { return e.WriteInt(1 << 40) }, int64(1 << 40)},
		{"negative", func(e *Encoder) error { return e.WriteInt(-7) }, int64(-7)},
		{"uint64-huge", func(e *Encoder) error { return e.WriteUint(uint64(1) << 63) }, uint64(1) << 63},
		{"float64", func(e *Encoder) error { return e.WriteDouble(3.5) }, 3.5},
		{"float32", func(e *Encoder) error { return e.WriteFloat(2.25) }, float32(2.25)},
		{"rawnumber", func(e *Encoder) error { return e.WriteRawNumber([]byte("123456789012345678901")) }, RawNumber([]byte("123456789012345678901"))},
		{"date", func(e *Encoder) error { return e.WriteDate(1700000000) }, Date(1700000000)},
		{"data", func(e *Encoder) error { return e.WriteData([]byte{1, 2, 3}) }, []byte{1, 2, 3}},
		{"shortstring", func(e *Encoder) error { return e.WriteString("hi", false) }, "hi"},
		{"longstring", func(e *Encoder) error { return e.WriteString("a reasonably long string value", false) }, "a reasonably long string value"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out := encodeOne(t, c.write)
			got, err := Decode(out, nil)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, c.want) {
				t.Fatalf("Decode = %#v (%T), wanted %#v (%T)", got, got, c.want, c.want)
			}
		})
	}
}

func TestEncoder_WriteDoubleRejectsNaN(t *testing.T) {
	w := NewWriter(0)
	e := NewEncoder(w, nil, 0)
	if err := e.WriteDouble(nanValue()); err != ErrInvalidValue {
		t.Fatalf("WriteDouble(NaN) err = %v, wanted ErrInvalidValue", err)
	}
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func TestEncoder_WriteIntNarrowestTag(t *testing.T) {
	cases := []struct {
		v    int64
		want Tag
	}{
		{0, TagInt8},
		{127, TagInt8},
		{-128, TagInt8},
		{128, TagInt16},
		{32767, TagInt16},
		{32768, TagInt32},
		{1 << 31, TagInt64},
		{-(1 << 31) - 1, TagInt64},
	}
	for _, c := range cases {
		out := encodeOne(t, func(e *Encoder) error { return e.WriteInt(c.v) })
		if got := Tag(out[0]); got != c.want {
			t.Errorf("WriteInt(%d) tag = %s, wanted %s", c.v, got, c.want)
		}
	}
}

func TestEncoder_DictHashIndex(t *testing.T) {
	out := encodeOne(t, func(e *Encoder) error {
		if err := e.BeginDict(2); err != nil {
			return err
		}
		if err := e.WriteKey("x", false); err != nil {
			return err
		}
		if err := e.WriteInt(1); err != nil {
			return err
		}
		if err := e.WriteKey("y", false); err != nil {
			return err
		}
		if err := e.WriteInt(2); err != nil {
			return err
		}
		return e.EndDict()
	})

	got, err := Decode(out, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	dict, ok := got.(*Dict)
	if !ok {
		t.Fatalf("Decode returned %T, wanted *Dict", got)
	}
	if dict.Len() != 2 {
		t.Fatalf("Len() = %d, wanted 2", dict.Len())
	}
	for _, e := range dict.Entries {
		if want := dictHashCodeString(e.Key); e.Hash != want {
			t.Errorf("entry %q hash = %d, wanted %d", e.Key, e.Hash, want)
		}
	}
	if v, ok := dict.Get("x"); !ok || v.(int64) != 1 {
		t.Errorf("Get(x) = %v, %v", v, ok)
	}
	if v, ok := dict.Get("y"); !ok || v.(int64) != 2 {
		t.Errorf("Get(y) = %v, %v", v, ok)
	}
}

// TestEncoder_ScenarioS1 checks the exact byte layout for encoding
// {"x": 1, "y": [2, 3]}.
func TestEncoder_ScenarioS1(t *testing.T) {
	out := encodeOne(t, func(e *Encoder) error {
		if err := e.BeginDict(2); err != nil {
			return err
		}
		if err := e.WriteKey("x", false); err != nil {
			return err
		}
		if err := e.WriteInt(1); err != nil {
			return err
		}
		if err := e.WriteKey("y", false); err != nil {
			return err
		}
		if err := e.BeginArray(2); err != nil {
			return err
		}
		if err := e.WriteInt(2); err != nil {
			return err
		}
		if err := e.WriteInt(3); err != nil {
			return err
		}
		if err := e.PopState(); err != nil {
			return err
		}
		return e.EndDict()
	})

	var hashBuf [4]byte
	binary.LittleEndian.PutUint16(hashBuf[0:], dictHashCodeString("x"))
	binary.LittleEndian.PutUint16(hashBuf[2:], dictHashCodeString("y"))

	want := []byte{
		byte(TagDict), 0x02,
	}
	want = append(want, hashBuf[:]...)
	want = append(want,
		byte(TagString), 0x01, 'x',
		byte(TagInt8), 0x01,
		byte(TagString), 0x01, 'y',
		byte(TagArray), 0x02,
		byte(TagInt8), 0x02,
		byte(TagInt8), 0x03,
	)

	if !reflect.DeepEqual(out, want) {
		t.Fatalf("encoded bytes = %x, wanted %x", out, want)
	}
}

func TestEncoder_SharedStringPromotion(t *testing.T) {
	w := NewWriter(0)
	e := NewEncoder(w, nil, 0)
	e.EnableSharedStrings(true)

	const s = "a shareable string"
	if err := e.BeginArray(2); err != nil {
		t.Fatalf("BeginArray: %v", err)
	}
	firstOffset := w.Length()
	if err := e.WriteString(s, false); err != nil {
		t.Fatalf("WriteString 1: %v", err)
	}
	if err := e.WriteString(s, false); err != nil {
		t.Fatalf("WriteString 2: %v", err)
	}
	if err := e.PopState(); err != nil {
		t.Fatalf("PopState: %v", err)
	}
	out, err := e.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if got := Tag(out[firstOffset]); got != TagSharedString {
		t.Fatalf("first occurrence tag = %s, wanted SharedString (promoted in place)", got)
	}

	got, err := Decode(out, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	arr, ok := got.([]any)
	if !ok || len(arr) != 2 {
		t.Fatalf("Decode = %#v, wanted a 2-element array", got)
	}
	if arr[0] != s || arr[1] != s {
		t.Fatalf("array = %#v, wanted [%q %q]", arr, s, s)
	}
}

func TestEncoder_SharedStringsDisabledDoesNotPromote(t *testing.T) {
	w := NewWriter(0)
	e := NewEncoder(w, nil, 0)

	const s = "a shareable string"
	if err := e.BeginArray(2); err != nil {
		t.Fatalf("BeginArray: %v", err)
	}
	if err := e.WriteString(s, false); err != nil {
		t.Fatalf("WriteString 1: %v", err)
	}
	if err := e.WriteString(s, false); err != nil {
		t.Fatalf("WriteString 2: %v", err)
	}
	if err := e.PopState(); err != nil {
		t.Fatalf("PopState: %v", err)
	}
	out, err := e.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	count := 0
	for _, b := range out {
		if Tag(b) == TagString {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected both occurrences to stay plain strings, found %d TagString bytes", count)
	}
}

func TestEncoder_ExternStringRef(t *testing.T) {
	table := NewExternTable([]string{"type"})
	w := NewWriter(0)
	e := NewEncoder(w, table, 10)

	if err := e.BeginArray(2); err != nil {
		t.Fatalf("BeginArray: %v", err)
	}
	if err := e.WriteString("type", true); err != nil {
		t.Fatalf("WriteString (existing extern): %v", err)
	}
	if err := e.WriteString("newfield", true); err != nil {
		t.Fatalf("WriteString (new extern): %v", err)
	}
	if err := e.PopState(); err != nil {
		t.Fatalf("PopState: %v", err)
	}
	out, err := e.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if table.Len() != 2 {
		t.Fatalf("extern table length = %d, wanted 2", table.Len())
	}
	id, ok := table.Lookup("newfield")
	if !ok || id != 2 {
		t.Fatalf("Lookup(newfield) = %d, %v, wanted 2, true", id, ok)
	}

	got, err := Decode(out, table)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	arr, ok := got.([]any)
	if !ok || len(arr) != 2 {
		t.Fatalf("Decode = %#v, wanted a 2-element array", got)
	}
	if arr[0] != "type" || arr[1] != "newfield" {
		t.Fatalf("array = %#v, wanted [type newfield]", arr)
	}
}

func TestEncoder_ExternStringBoundRespected(t *testing.T) {
	table := NewExternTable(nil)
	w := NewWriter(0)
	e := NewEncoder(w, table, 0)

	out := encodeOneWith(t, e, w, func(e *Encoder) error {
		return e.WriteString("never interned", true)
	})
	if table.Len() != 0 {
		t.Fatalf("extern table length = %d, wanted 0 (maxExternStrings is 0)", table.Len())
	}
	if Tag(out[0]) != TagString {
		t.Fatalf("tag = %s, wanted String (fell back to inline)", Tag(out[0]))
	}
}

func encodeOneWith(t *testing.T, e *Encoder, w *Writer, write func(e *Encoder) error) []byte {
	t.Helper()
	if err := write(e); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := e.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return out
}

func TestEncoder_CountMismatchErrors(t *testing.T) {
	w := NewWriter(0)
	e := NewEncoder(w, nil, 0)
	if err := e.BeginArray(2); err != nil {
		t.Fatalf("BeginArray: %v", err)
	}
	if err := e.WriteInt(1); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	if _, err := e.Finish(); err == nil {
		t.Fatalf("Finish should fail: array frame still open with a missing value")
	}
	if err := e.WriteInt(2); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	if err := e.WriteInt(3); err == nil {
		t.Fatalf("expected ErrCountMismatch writing past the declared array count")
	}
}
