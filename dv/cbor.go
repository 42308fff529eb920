package dv

import (
	"encoding/binary"
	"math"

	"github.com/holiman/uint256"
)

// Wire format: a deterministic subset of RFC 8949 CBOR (tag-length-value,
// definite lengths only, shortest-form length widths, map keys ordered
// length-first then bytewise). Major types and additional-info layout are
// CBOR's; everything outside this restricted subset (indefinite length,
// byte strings, tags, half/single precision floats, simple values other
// than true/false/null) is rejected as CodeUnsupportedCBOR.
const (
	majorUint  = 0
	majorNeg   = 1
	majorText  = 3
	majorArray = 4
	majorMap   = 5
	majorOther = 7

	simpleFalse = 20
	simpleTrue  = 21
	simpleNull  = 22
	floatWidth  = 27 // additional-info value meaning "8 bytes follow" for major 7

	maxSafeInt int64 = 1<<53 - 1
	minSafeInt int64 = -(1<<53) + 1
)

// head returns the canonical (major, value) header bytes for value under
// major. It always picks the shortest width that represents value.
func head(major byte, value uint64) []byte {
	b0 := major << 5
	switch {
	case value < 24:
		return []byte{b0 | byte(value)}
	case value <= 0xff:
		return []byte{b0 | 24, byte(value)}
	case value <= 0xffff:
		out := make([]byte, 3)
		out[0] = b0 | 25
		binary.BigEndian.PutUint16(out[1:], uint16(value))
		return out
	case value <= 0xffffffff:
		out := make([]byte, 5)
		out[0] = b0 | 26
		binary.BigEndian.PutUint32(out[1:], uint32(value))
		return out
	default:
		out := make([]byte, 9)
		out[0] = b0 | 27
		binary.BigEndian.PutUint64(out[1:], value)
		return out
	}
}

// readHeadResult carries the decoded header fields plus how many bytes
// the header itself consumed.
type readHeadResult struct {
	major    byte
	addInfo  byte
	value    uint64
	consumed int
}

// readHead decodes the header at data[offset:], without yet validating
// canonical width (callers decide whether CodeNonCanonicalInt or
// CodeNonCanonicalLength applies to their context).
func readHead(data []byte, offset int) (readHeadResult, *Error) {
	if offset >= len(data) {
		return readHeadResult{}, decErr(CodeTruncated, offset, "expected header byte")
	}
	b0 := data[offset]
	major := b0 >> 5
	addInfo := b0 & 0x1f

	switch {
	case addInfo < 24:
		return readHeadResult{major: major, addInfo: addInfo, value: uint64(addInfo), consumed: 1}, nil
	case addInfo == 24:
		if offset+2 > len(data) {
			return readHeadResult{}, decErr(CodeTruncated, offset, "truncated 1-byte length")
		}
		return readHeadResult{major: major, addInfo: addInfo, value: uint64(data[offset+1]), consumed: 2}, nil
	case addInfo == 25:
		if offset+3 > len(data) {
			return readHeadResult{}, decErr(CodeTruncated, offset, "truncated 2-byte length")
		}
		v := binary.BigEndian.Uint16(data[offset+1:])
		return readHeadResult{major: major, addInfo: addInfo, value: uint64(v), consumed: 3}, nil
	case addInfo == 26:
		if offset+5 > len(data) {
			return readHeadResult{}, decErr(CodeTruncated, offset, "truncated 4-byte length")
		}
		v := binary.BigEndian.Uint32(data[offset+1:])
		return readHeadResult{major: major, addInfo: addInfo, value: uint64(v), consumed: 5}, nil
	case addInfo == 27:
		if offset+9 > len(data) {
			return readHeadResult{}, decErr(CodeTruncated, offset, "truncated 8-byte length")
		}
		v := binary.BigEndian.Uint64(data[offset+1:])
		return readHeadResult{major: major, addInfo: addInfo, value: v, consumed: 9}, nil
	default:
		// addInfo 28-31: indefinite length / reserved — not part of this subset.
		return readHeadResult{}, decErr(CodeUnsupportedCBOR, offset, "indefinite-length or reserved additional info %d", addInfo)
	}
}

// isCanonicalWidth reports whether addInfo is the minimal encoding for
// value: every header whose value could have fit in a narrower width is
// non-canonical.
func isCanonicalWidth(addInfo byte, value uint64) bool {
	switch addInfo {
	case 24:
		return value >= 24 && value <= 0xff
	case 25:
		return value > 0xff && value <= 0xffff
	case 26:
		return value > 0xffff && value <= 0xffffffff
	case 27:
		return value > 0xffffffff
	default:
		return addInfo < 24 && uint64(addInfo) == value
	}
}

// encodeFloat64 returns the canonical 9-byte major-7 float64 encoding.
func encodeFloat64(f float64) []byte {
	out := make([]byte, 9)
	out[0] = majorOther<<5 | floatWidth
	binary.BigEndian.PutUint64(out[1:], math.Float64bits(f))
	return out
}

// isSafeIntegerValued reports whether f is a mathematical integer that
// fits the DV integer band [-2^53+1, 2^53-1], treating -0 as 0. Such
// values must use the integer wire form, never the float64 form.
func isSafeIntegerValued(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	if f == 0 {
		return 0, true // canonicalizes +0 and -0 alike
	}
	bound := new(uint256.Int).SetUint64(uint64(maxSafeInt))
	abs := f
	if abs < 0 {
		abs = -abs
	}
	av := new(uint256.Int).SetUint64(uint64(abs))
	if av.Gt(bound) {
		return 0, false
	}
	return int64(f), true
}
