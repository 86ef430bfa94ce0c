package revdb

import (
	"encoding/binary"
	"errors"
	"math"
)

// Shared strings shorter than this save nothing (the reference itself
// costs a tag byte plus a varint); longer ones than this are unlikely to
// recur verbatim and aren't worth tracking.
const (
	minSharedStringLength = 4
	maxSharedStringLength = 100
)

const twoPow63 float64 = 1 << 63
const twoPow31 float64 = 1 << 31

// encState tracks one container frame: how many values it was declared
// with (expectedCount), how many it has received so far (i), and, for dicts
// only, the hash16 index being accumulated and where it was reserved in
// the output.
type encState struct {
	expectedCount uint32
	i             uint32
	hashes        []uint16
	indexPos      int
}

// Encoder writes a single Fleece-style tagged value stream into a Writer.
// It is stateful: array and dict values push a frame that tracks how many
// child values are still expected, and every primitive write is checked
// against the innermost open frame. The zero value is not usable; build
// one with NewEncoder.
type Encoder struct {
	out *Writer

	states []encState

	sharedStrings       map[string]int
	enableSharedStrings bool

	externStrings    *ExternTable
	maxExternStrings uint32
}

// NewEncoder returns an Encoder that appends to out. externStrings may be
// nil, in which case no extern-string interning is attempted regardless of
// maxExternStrings.
func NewEncoder(out *Writer, externStrings *ExternTable, maxExternStrings uint32) *Encoder {
	return &Encoder{
		out:              out,
		states:           []encState{{expectedCount: 0}},
		sharedStrings:    make(map[string]int),
		externStrings:    externStrings,
		maxExternStrings: maxExternStrings,
	}
}

// EnableSharedStrings turns intra-document string sharing on or off. It
// only affects strings written from this point forward.
func (e *Encoder) EnableSharedStrings(enable bool) {
	e.enableSharedStrings = enable
}

// Finish returns the encoded bytes. The bottom frame must be closed (every
// BeginArray/BeginDict balanced by a matching PopState/EndDict) and must
// have received exactly one top-level value, or Finish fails with
// ErrCountMismatch.
func (e *Encoder) Finish() ([]byte, error) {
	if len(e.states) != 1 {
		return nil, stateErrf("Finish", ErrCountMismatch)
	}
	if e.states[0].i != 1 {
		return nil, stateErrf("Finish", ErrCountMismatch)
	}
	return e.out.Output(), nil
}

func (e *Encoder) top() *encState {
	return &e.states[len(e.states)-1]
}

// beginValue checks that the innermost frame can accept one more value.
// The bottom (document) frame has no declared count and always accepts
// exactly the first value; every write past that is still permitted by
// this check (Finish is what rejects a second top-level value).
func (e *Encoder) beginValue() (*encState, error) {
	st := e.top()
	if len(e.states) > 1 && st.i >= st.expectedCount {
		return nil, stateErrf("write", ErrCountMismatch)
	}
	return st, nil
}

func (e *Encoder) addTag(tag Tag) {
	e.out.WriteByte(byte(tag))
}

func (e *Encoder) addUvarint(v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	e.out.Write(buf[:n])
}

// WriteNull writes a null value.
func (e *Encoder) WriteNull() error {
	st, err := e.beginValue()
	if err != nil {
		return err
	}
	e.addTag(TagNull)
	st.i++
	return nil
}

// WriteBool writes a true or false value.
func (e *Encoder) WriteBool(b bool) error {
	st, err := e.beginValue()
	if err != nil {
		return err
	}
	if b {
		e.addTag(TagTrue)
	} else {
		e.addTag(TagFalse)
	}
	st.i++
	return nil
}

// WriteInt writes a signed integer using the narrowest tag that can hold
// it (Int8, Int16, Int32, or Int64).
func (e *Encoder) WriteInt(v int64) error {
	st, err := e.beginValue()
	if err != nil {
		return err
	}
	e.writeIntTagged(v)
	st.i++
	return nil
}

func (e *Encoder) writeIntTagged(v int64) {
	var tag Tag
	var size int
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		tag, size = TagInt8, 1
	case v >= math.MinInt16 && v <= math.MaxInt16:
		tag, size = TagInt16, 2
	case v >= math.MinInt32 && v <= math.MaxInt32:
		tag, size = TagInt32, 4
	default:
		tag, size = TagInt64, 8
	}
	e.addTag(tag)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	e.out.Write(buf[8-size:])
}

// WriteUint writes an unsigned integer. Values below math.MaxInt64
// delegate to WriteInt so they get the narrowest signed tag; math.MaxInt64
// and everything above it use the dedicated UInt64 tag.
func (e *Encoder) WriteUint(v uint64) error {
	if v < uint64(math.MaxInt64) {
		return e.WriteInt(int64(v))
	}
	st, err := e.beginValue()
	if err != nil {
		return err
	}
	e.addTag(TagUInt64)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	e.out.Write(buf[:])
	st.i++
	return nil
}

// WriteDouble writes a float64. A value that has no fractional part and
// fits in an int64 is written as an integer instead, since that's a
// strictly more compact and equally lossless representation.
func (e *Encoder) WriteDouble(f float64) error {
	if math.IsNaN(f) {
		return ErrInvalidValue
	}
	if f == math.Trunc(f) && f >= -twoPow63 && f < twoPow63 {
		return e.WriteInt(int64(f))
	}
	st, err := e.beginValue()
	if err != nil {
		return err
	}
	e.addTag(TagFloat64)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
	e.out.Write(buf[:])
	st.i++
	return nil
}

// WriteFloat writes a float32. Like WriteDouble it writes an integral
// value as an integer, but only within the int32 range; any other value
// uses the Float32 tag.
func (e *Encoder) WriteFloat(f float32) error {
	if math.IsNaN(float64(f)) {
		return ErrInvalidValue
	}
	f64 := float64(f)
	if f64 == math.Trunc(f64) && f64 >= -twoPow31 && f64 < twoPow31 {
		return e.WriteInt(int64(f64))
	}
	st, err := e.beginValue()
	if err != nil {
		return err
	}
	e.addTag(TagFloat32)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], math.Float32bits(f))
	e.out.Write(buf[:])
	st.i++
	return nil
}

// WriteRawNumber writes the verbatim decimal text of a number that can't
// round-trip through WriteInt/WriteUint/WriteDouble without losing
// precision (e.g. a 20-digit integer).
func (e *Encoder) WriteRawNumber(data []byte) error {
	st, err := e.beginValue()
	if err != nil {
		return err
	}
	e.addTag(TagRawNumber)
	e.addUvarint(uint64(len(data)))
	e.out.Write(data)
	st.i++
	return nil
}

// WriteDate writes epochSeconds, seconds since the Unix epoch.
func (e *Encoder) WriteDate(epochSeconds int64) error {
	st, err := e.beginValue()
	if err != nil {
		return err
	}
	e.addTag(TagDate)
	e.addUvarint(uint64(epochSeconds))
	st.i++
	return nil
}

// WriteData writes an opaque byte blob.
func (e *Encoder) WriteData(data []byte) error {
	st, err := e.beginValue()
	if err != nil {
		return err
	}
	e.addTag(TagData)
	e.addUvarint(uint64(len(data)))
	e.out.Write(data)
	st.i++
	return nil
}

// WriteString writes a string value. If an extern table is attached and
// already holds s, or canAddExtern is true and the table has room for a
// new entry, the string is written as an extern-string reference instead
// of inline text. Otherwise, if shared strings are enabled and s is
// within the shareable length range, a repeat occurrence is rewritten as
// a back-reference to the first occurrence.
func (e *Encoder) WriteString(s string, canAddExtern bool) error {
	st, err := e.beginValue()
	if err != nil {
		return err
	}

	if e.externStrings != nil {
		if id, ok := e.externStrings.Lookup(s); ok {
			e.writeExternStringRef(id)
			st.i++
			return nil
		}
		if canAddExtern && uint32(e.externStrings.Len()) < e.maxExternStrings {
			id := e.externStrings.add(s)
			e.writeExternStringRef(id)
			st.i++
			return nil
		}
	}

	if e.enableSharedStrings && len(s) >= minSharedStringLength && len(s) <= maxSharedStringLength {
		curOffset := e.out.Length()
		if prevOffset, ok := e.sharedStrings[s]; ok {
			if curOffset > math.MaxUint32 {
				return ErrOutputTooLarge
			}
			e.out.Rewrite(prevOffset, []byte{byte(TagSharedString)})
			e.addTag(TagSharedStringRef)
			e.addUvarint(uint64(curOffset - prevOffset))
			st.i++
			return nil
		}
		if curOffset > math.MaxUint32 {
			return ErrOutputTooLarge
		}
		e.sharedStrings[s] = curOffset
	}

	e.addTag(TagString)
	e.addUvarint(uint64(len(s)))
	e.out.Write([]byte(s))
	st.i++
	return nil
}

func (e *Encoder) writeExternStringRef(id uint32) {
	if id == 0 {
		panic("revdb: extern string id must be 1-based")
	}
	e.addTag(TagExternStringRef)
	e.addUvarint(uint64(id))
}

// BeginArray opens an array of count values. Exactly count values (any of
// which may itself be an array or dict) must follow before PopState.
func (e *Encoder) BeginArray(count uint32) error {
	st, err := e.beginValue()
	if err != nil {
		return err
	}
	e.addTag(TagArray)
	e.addUvarint(uint64(count))
	st.i++
	e.states = append(e.states, encState{expectedCount: count})
	return nil
}

// BeginDict opens a dict of count key/value pairs. Each pair must be
// written as a WriteKey/WriteExternKey call immediately followed by
// exactly one value write; the dict is closed with EndDict, not PopState.
func (e *Encoder) BeginDict(count uint32) error {
	st, err := e.beginValue()
	if err != nil {
		return err
	}
	e.addTag(TagDict)
	e.addUvarint(uint64(count))
	st.i++

	e.states = append(e.states, encState{expectedCount: count})
	dst := e.top()
	dst.hashes = make([]uint16, count)
	dst.indexPos = e.out.Length()
	e.out.Write(make([]byte, int(count)*2))
	return nil
}

// WriteKey writes a dict entry's key. It must be immediately followed by
// exactly one value write (WriteNull, WriteInt, BeginArray, ...); the key
// itself does not count against the dict's expected pair count.
func (e *Encoder) WriteKey(key string, canAddExtern bool) error {
	st := e.top()
	if st.hashes == nil {
		return stateErrf("WriteKey", errNotInDict)
	}
	if st.i >= uint32(len(st.hashes)) {
		return stateErrf("WriteKey", ErrCountMismatch)
	}
	st.hashes[st.i] = dictHashCodeString(key)
	if err := e.WriteString(key, canAddExtern); err != nil {
		return err
	}
	e.top().i--
	return nil
}

// WriteExternKey writes a dict entry's key as a reference to an
// already-interned extern string, given its id and precomputed hash16.
func (e *Encoder) WriteExternKey(id uint32, hash uint16) error {
	st := e.top()
	if st.hashes == nil {
		return stateErrf("WriteExternKey", errNotInDict)
	}
	if st.i >= uint32(len(st.hashes)) {
		return stateErrf("WriteExternKey", ErrCountMismatch)
	}
	st.hashes[st.i] = hash
	e.writeExternStringRef(id)
	st.i++
	e.top().i--
	return nil
}

// EndDict finalizes the current dict's hash16 index in place and closes
// its frame. It fails with ErrCountMismatch if fewer pairs were written
// than BeginDict declared.
func (e *Encoder) EndDict() error {
	st := e.top()
	if st.hashes == nil {
		return stateErrf("EndDict", errNotInDict)
	}
	buf := make([]byte, len(st.hashes)*2)
	for i, h := range st.hashes {
		binary.LittleEndian.PutUint16(buf[i*2:], h)
	}
	e.out.Rewrite(st.indexPos, buf)
	return e.PopState()
}

// PopState closes the current array frame (or a dict frame already
// finalized by EndDict, though callers should use EndDict for dicts). It
// fails with ErrCountMismatch if the frame hasn't received exactly the
// number of values its Begin call declared.
func (e *Encoder) PopState() error {
	if len(e.states) <= 1 {
		panic("revdb: PopState called on the document's bottom frame")
	}
	st := e.top()
	if st.i != st.expectedCount {
		return stateErrf("PopState", ErrCountMismatch)
	}
	e.states = e.states[:len(e.states)-1]
	return nil
}

var errNotInDict = errors.New("not inside a dict container")
