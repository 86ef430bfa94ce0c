package revdb

import "encoding/binary"

// rawHeaderSize is the fixed portion of a raw revision record: size(4) +
// parentIndex(2) + deltaRefIndex(2) + flags(1) + revIDLen(1).
const rawHeaderSize = 4 + 2 + 2 + 1 + 1

// Decode replaces the tree's revisions with those parsed from raw, a
// buffer produced by a prior Encode. seq substitutes for any revision
// whose stored sequence is 0 (sequence is only known once a document is
// saved); docOffset becomes the tree's body offset (see BodyOffset).
// A HasBodyOffset record's offset is kept exactly as stored.
//
// It fails with ErrCorruptRevisionData if the record count exceeds
// 65535 or the buffer doesn't end exactly at the trailing zero marker.
func (t *RevTree) Decode(raw []byte, seq uint64, docOffset uint64) error {
	count, err := countRawRevisions(raw)
	if err != nil {
		return err
	}

	revs := make([]Revision, count)
	d := makeByteDecoder(raw)
	for i := 0; i < count; i++ {
		rev, err := decodeOneRevision(&d, seq)
		if err != nil {
			return err
		}
		revs[i] = rev
	}

	trailer, err := d.FixedUint32()
	if err != nil || trailer != 0 || d.Remaining() != 0 {
		return stateErrf("Decode", ErrCorruptRevisionData)
	}

	t.revs = revs
	t.bodyOffset = docOffset
	t.sorted = true
	t.changed = false
	t.unknown = false
	return nil
}

// countRawRevisions walks the size-linked records to find how many
// precede the terminating zero, without allocating anything.
func countRawRevisions(raw []byte) (int, error) {
	off := 0
	count := 0
	for {
		if off+4 > len(raw) {
			return 0, stateErrf("Decode", ErrCorruptRevisionData)
		}
		size := binary.BigEndian.Uint32(raw[off:])
		if size == 0 {
			break
		}
		if int(size) < rawHeaderSize || off+int(size) > len(raw) {
			return 0, stateErrf("Decode", ErrCorruptRevisionData)
		}
		off += int(size)
		count++
		if count > maxRevs {
			return 0, stateErrf("Decode", ErrCorruptRevisionData)
		}
	}
	if off != len(raw)-4 {
		return 0, stateErrf("Decode", ErrCorruptRevisionData)
	}
	return count, nil
}

func decodeOneRevision(d *byteDecoder, seq uint64) (Revision, error) {
	recStart := d.Off()
	size, err := d.FixedUint32()
	if err != nil {
		return Revision{}, stateErrf("Decode", ErrCorruptRevisionData)
	}
	recEnd := recStart + int(size)

	parentIndex, err := d.FixedUint16()
	if err != nil {
		return Revision{}, stateErrf("Decode", ErrCorruptRevisionData)
	}
	deltaRefIndex, err := d.FixedUint16()
	if err != nil {
		return Revision{}, stateErrf("Decode", ErrCorruptRevisionData)
	}
	flagsRaw, err := d.Raw(1)
	if err != nil {
		return Revision{}, stateErrf("Decode", ErrCorruptRevisionData)
	}
	flags := RevFlags(flagsRaw[0])
	revIDLenRaw, err := d.Raw(1)
	if err != nil {
		return Revision{}, stateErrf("Decode", ErrCorruptRevisionData)
	}
	revIDLen := int(revIDLenRaw[0])
	if revIDLen == 0 {
		return Revision{}, stateErrf("Decode", ErrInvalidValue)
	}
	revID, err := d.Raw(revIDLen)
	if err != nil {
		return Revision{}, stateErrf("Decode", ErrCorruptRevisionData)
	}

	rev := Revision{
		revID:         append([]byte(nil), revID...),
		parentIndex:   RevIndex(parentIndex),
		deltaRefIndex: RevIndex(deltaRefIndex),
		flags:         flags & revFlagPersistentMask,
	}

	sequence, err := d.Uvarint()
	if err != nil {
		return Revision{}, stateErrf("Decode", ErrCorruptRevisionData)
	}
	if sequence == 0 {
		sequence = seq
	}
	rev.sequence = sequence

	remaining := recEnd - d.Off()
	if remaining < 0 {
		return Revision{}, stateErrf("Decode", ErrCorruptRevisionData)
	}
	body, err := d.Raw(remaining)
	if err != nil {
		return Revision{}, stateErrf("Decode", ErrCorruptRevisionData)
	}

	switch {
	case flags&revFlagHasData != 0:
		rev.body = append([]byte(nil), body...)
	case flags&revFlagHasBodyOffset != 0:
		bd := makeByteDecoder(body)
		off, err := bd.Uvarint()
		if err != nil {
			return Revision{}, stateErrf("Decode", ErrCorruptRevisionData)
		}
		rev.oldBodyOffset = off
	}

	return rev, nil
}

// Encode sorts the tree and serializes it into the raw big-endian format
// described in the package's raw-format documentation: each revision as
// a size-prefixed record, terminated by a 32-bit zero.
func (t *RevTree) Encode() []byte {
	t.Sort()

	total := 4
	for i := range t.revs {
		total += sizeToWrite(&t.revs[i], t.bodyOffset)
	}

	buf := prealloc(nil, total)
	for i := range t.revs {
		writeOneRevision(&buf, &t.revs[i], t.bodyOffset)
	}
	buf.AppendFixedUint32(0)
	return buf.Trimmed()
}

func sizeToWrite(rev *Revision, bodyOffset uint64) int {
	size := rawHeaderSize + len(rev.revID) + uvarintSize(rev.sequence)
	switch {
	case len(rev.body) > 0:
		size += len(rev.body)
	case rev.oldBodyOffset > 0:
		off := rev.oldBodyOffset
		if off == 0 {
			off = bodyOffset
		}
		size += uvarintSize(off)
	}
	return size
}

func writeOneRevision(buf *byteBuf, rev *Revision, bodyOffset uint64) {
	size := sizeToWrite(rev, bodyOffset)
	buf.AppendFixedUint32(uint32(size))
	buf.AppendFixedUint16(uint16(rev.parentIndex))
	buf.AppendFixedUint16(uint16(rev.deltaRefIndex))

	flags := rev.flags & revFlagPersistentMask
	switch {
	case len(rev.body) > 0:
		flags |= revFlagHasData
	case rev.oldBodyOffset > 0:
		flags |= revFlagHasBodyOffset
	}

	buf.AppendByte(byte(flags))
	buf.AppendByte(byte(len(rev.revID)))
	buf.AppendRaw(rev.revID)
	buf.AppendUvarint(rev.sequence)

	switch {
	case flags&revFlagHasData != 0:
		buf.AppendRaw(rev.body)
	case flags&revFlagHasBodyOffset != 0:
		off := rev.oldBodyOffset
		if off == 0 {
			off = bodyOffset
		}
		buf.AppendUvarint(off)
	}
}

func uvarintSize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
