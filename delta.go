package revdb

import (
	"bytes"

	"github.com/pmezard/go-difflib/difflib"
)

// DeltaFlags mirrors the enclosing store's checksum policy for the delta
// codec. The tree always passes DeltaFlagNoChecksum: the key/value store
// underneath already checksums the whole document, so a second checksum
// inside the delta payload would be redundant.
type DeltaFlags uint8

const DeltaFlagNoChecksum DeltaFlags = 0x01

// DeltaCodec produces and consumes the compact diff format RevTree uses
// to store a revision's body relative to another revision's body. The
// package's default codec is lineDeltaCodec; callers with a
// domain-specific diff format may install their own via SetDeltaCodec.
type DeltaCodec interface {
	CreateDelta(reference, target []byte, flags DeltaFlags) ([]byte, error)
	ApplyDelta(reference, delta []byte, flags DeltaFlags) ([]byte, error)
}

var activeDeltaCodec DeltaCodec = lineDeltaCodec{}

// SetDeltaCodec installs the codec used by CreateDelta/ApplyDelta (and
// transitively by RevTree.Compress/Decompress/ReadBodyOf) for the rest of
// the process's lifetime. It is meant to be called once at startup, not
// concurrently with encoding activity.
func SetDeltaCodec(c DeltaCodec) {
	if c == nil {
		panic("revdb: SetDeltaCodec requires a non-nil codec")
	}
	activeDeltaCodec = c
}

// CreateDelta computes a delta that ApplyDelta(reference, delta) will
// turn back into target.
func CreateDelta(reference, target []byte, flags DeltaFlags) ([]byte, error) {
	return activeDeltaCodec.CreateDelta(reference, target, flags)
}

// ApplyDelta reconstructs a body from a reference body and a delta
// previously produced by CreateDelta(reference, that body, flags).
func ApplyDelta(reference, delta []byte, flags DeltaFlags) ([]byte, error) {
	return activeDeltaCodec.ApplyDelta(reference, delta, flags)
}

// lineDeltaCodec is the package's default DeltaCodec. It diffs the
// reference and target bodies line by line with difflib's
// SequenceMatcher and records the resulting opcodes: line ranges to copy
// from the reference verbatim, plus the literal bytes of any inserted or
// replaced lines. It's adequate for the mostly-textual JSON bodies
// document revisions carry; a store with binary bodies should install
// its own codec.
type lineDeltaCodec struct{}

func (lineDeltaCodec) CreateDelta(reference, target []byte, flags DeltaFlags) ([]byte, error) {
	refLines := splitLines(reference)
	tgtLines := splitLines(target)
	ops := difflib.NewMatcher(refLines, tgtLines).GetOpCodes()

	out := bytesBuilder{}
	out.AppendUvarint(uint64(len(ops)))
	for _, op := range ops {
		out.AppendByte(op.Tag)
		out.AppendUvarint(uint64(op.I1))
		out.AppendUvarint(uint64(op.I2))
		if op.Tag == 'r' || op.Tag == 'i' {
			out.AppendUvarint(uint64(op.J2 - op.J1))
			for _, line := range tgtLines[op.J1:op.J2] {
				out.Buf = appendVarbytes(out.Buf, []byte(line))
			}
		}
	}
	return out.Buf, nil
}

func (lineDeltaCodec) ApplyDelta(reference, delta []byte, flags DeltaFlags) ([]byte, error) {
	refLines := splitLines(reference)
	d := makeByteDecoder(delta)

	numOps, err := d.Uvarinti()
	if err != nil {
		return nil, dataErrf(delta, d.Off(), err, "ApplyDelta: bad opcode count")
	}

	var out bytes.Buffer
	for k := 0; k < numOps; k++ {
		tagRaw, err := d.Raw(1)
		if err != nil {
			return nil, dataErrf(delta, d.Off(), err, "ApplyDelta: truncated opcode")
		}
		i1, err := d.Uvarinti()
		if err != nil {
			return nil, err
		}
		i2, err := d.Uvarinti()
		if err != nil {
			return nil, err
		}
		switch tagRaw[0] {
		case 'e':
			if i2 > len(refLines) {
				return nil, dataErrf(delta, d.Off(), nil, "ApplyDelta: equal range out of bounds")
			}
			for _, line := range refLines[i1:i2] {
				out.WriteString(line)
			}
		case 'd':
			// deleted reference lines contribute nothing to the output.
		case 'r', 'i':
			n, err := d.Uvarinti()
			if err != nil {
				return nil, err
			}
			for j := 0; j < n; j++ {
				line, err := d.VarBytes()
				if err != nil {
					return nil, dataErrf(delta, d.Off(), err, "ApplyDelta: truncated inserted line")
				}
				out.Write(line)
			}
		default:
			return nil, dataErrf(delta, d.Off(), nil, "ApplyDelta: unknown opcode tag %q", tagRaw[0])
		}
	}
	return out.Bytes(), nil
}

func splitLines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	parts := bytes.SplitAfter(b, []byte("\n"))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		out = append(out, string(p))
	}
	return out
}
