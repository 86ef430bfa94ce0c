package revdb

import (
	"encoding/binary"
	"math"
)

// Decode decodes a single top-level value from data, as produced by an
// Encoder. extern resolves TagExternStringRef values and may be nil if
// the value is known not to contain any.
//
// Decode always materializes the whole value tree; there is no streaming
// or lazy variant.
func Decode(data []byte, extern *ExternTable) (any, error) {
	d := &valueDecoder{orig: data, extern: extern}
	v, err := d.decodeValue()
	if err != nil {
		return nil, err
	}
	return v, nil
}

type valueDecoder struct {
	orig   []byte
	pos    int
	extern *ExternTable
}

func (d *valueDecoder) readByte() (byte, error) {
	if d.pos >= len(d.orig) {
		return 0, dataErrf(d.orig, d.pos, nil, "unexpected end of value")
	}
	b := d.orig[d.pos]
	d.pos++
	return b, nil
}

func (d *valueDecoder) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.orig[d.pos:])
	if n <= 0 {
		return 0, dataErrf(d.orig, d.pos, nil, "invalid varint")
	}
	d.pos += n
	return v, nil
}

func (d *valueDecoder) readN(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.orig) {
		return nil, dataErrf(d.orig, d.pos, nil, "truncated value")
	}
	b := d.orig[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *valueDecoder) decodeValue() (any, error) {
	tagPos := d.pos
	b, err := d.readByte()
	if err != nil {
		return nil, err
	}
	return d.decodeTagged(Tag(b), tagPos)
}

func (d *valueDecoder) decodeTagged(tag Tag, tagPos int) (any, error) {
	switch tag {
	case TagNull:
		return nil, nil
	case TagTrue:
		return true, nil
	case TagFalse:
		return false, nil
	case TagInt8:
		b, err := d.readN(1)
		if err != nil {
			return nil, err
		}
		return int64(int8(b[0])), nil
	case TagInt16:
		b, err := d.readN(2)
		if err != nil {
			return nil, err
		}
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case TagInt32:
		b, err := d.readN(4)
		if err != nil {
			return nil, err
		}
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	case TagInt64:
		b, err := d.readN(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	case TagUInt64:
		b, err := d.readN(8)
		if err != nil {
			return nil, err
		}
		return binary.BigEndian.Uint64(b), nil
	case TagFloat32:
		b, err := d.readN(4)
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
	case TagFloat64:
		b, err := d.readN(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case TagRawNumber:
		n, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		b, err := d.readN(int(n))
		if err != nil {
			return nil, err
		}
		return RawNumber(append([]byte(nil), b...)), nil
	case TagDate:
		n, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		return Date(int64(n)), nil
	case TagData:
		n, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		b, err := d.readN(int(n))
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), b...), nil
	case TagString, TagSharedString:
		n, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		b, err := d.readN(int(n))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case TagSharedStringRef:
		dist, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		refPos := tagPos - int(dist)
		if refPos < 0 || refPos >= len(d.orig) {
			return nil, dataErrf(d.orig, tagPos, nil, "shared string reference out of range")
		}
		refTag := Tag(d.orig[refPos])
		if refTag != TagString && refTag != TagSharedString {
			return nil, dataErrf(d.orig, refPos, nil, "shared string reference points at non-string tag")
		}
		sub := &valueDecoder{orig: d.orig, pos: refPos + 1, extern: d.extern}
		n, err := sub.readUvarint()
		if err != nil {
			return nil, err
		}
		b, err := sub.readN(int(n))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case TagExternStringRef:
		id, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		s, ok := d.extern.At(uint32(id))
		if !ok {
			return nil, dataErrf(d.orig, tagPos, nil, "unresolved extern string id %d", id)
		}
		return s, nil
	case TagArray:
		count, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		arr := make([]any, 0, count)
		for i := uint64(0); i < count; i++ {
			v, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case TagDict:
		count, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		hashes := make([]uint16, count)
		for i := range hashes {
			b, err := d.readN(2)
			if err != nil {
				return nil, err
			}
			hashes[i] = binary.LittleEndian.Uint16(b)
		}
		entries := make([]DictEntry, 0, count)
		for i := uint64(0); i < count; i++ {
			keyVal, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			key, ok := keyVal.(string)
			if !ok {
				return nil, dataErrf(d.orig, tagPos, nil, "dict key is not a string")
			}
			val, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			entries = append(entries, DictEntry{Key: key, Value: val, Hash: hashes[i]})
		}
		return &Dict{Entries: entries}, nil
	default:
		return nil, dataErrf(d.orig, tagPos, nil, "unknown value tag %d", byte(tag))
	}
}
