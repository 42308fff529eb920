package dv

import (
	"bytes"
	"math"
	"unicode/utf8"
)

// Decode parses the canonical binary form produced by Encode back into a
// Value, rejecting anything that is not byte-exact canonical: wide-form
// integers/lengths that could have been narrower, floats outside the
// 8-byte major-7 form, out-of-order or duplicate map keys, and trailing
// bytes after the top-level value all fail closed.
func Decode(b []byte, limits Limits) (Value, error) {
	if len(b) > limits.MaxEncodedBytes {
		return Value{}, encErr(CodeEncodedTooLarge, "encoded size %d exceeds limit %d", len(b), limits.MaxEncodedBytes)
	}
	v, n, err := decodeValue(b, 0, limits, 0)
	if err != nil {
		return Value{}, err
	}
	if n != len(b) {
		return Value{}, decErr(CodeTrailingBytes, n, "%d trailing byte(s) after top-level value", len(b)-n)
	}
	return v, nil
}

func decodeValue(b []byte, offset int, limits Limits, depth int) (Value, int, *Error) {
	if depth > limits.MaxDepth {
		return Value{}, offset, decErr(CodeDepthExceeded, offset, "nesting depth exceeds limit %d", limits.MaxDepth)
	}
	h, err := readHead(b, offset)
	if err != nil {
		return Value{}, offset, err
	}
	switch h.major {
	case majorUint:
		if !isCanonicalWidth(h.addInfo, h.value) {
			return Value{}, offset, decErr(CodeNonCanonicalInt, offset, "non-minimal unsigned integer width")
		}
		if h.value > uint64(maxSafeInt) {
			return Value{}, offset, decErr(CodeIntegerOutOfRange, offset, "integer %d exceeds safe range", h.value)
		}
		return Int(int64(h.value)), offset + h.consumed, nil
	case majorNeg:
		if !isCanonicalWidth(h.addInfo, h.value) {
			return Value{}, offset, decErr(CodeNonCanonicalInt, offset, "non-minimal negative integer width")
		}
		if h.value > uint64(-(minSafeInt + 1)) {
			return Value{}, offset, decErr(CodeIntegerOutOfRange, offset, "integer -1-%d exceeds safe range", h.value)
		}
		return Int(-1 - int64(h.value)), offset + h.consumed, nil
	case majorText:
		return decodeString(b, offset, h, limits)
	case majorArray:
		return decodeArray(b, offset, h, limits, depth)
	case majorMap:
		return decodeMap(b, offset, h, limits, depth)
	case majorOther:
		return decodeOther(b, offset, h)
	default:
		return Value{}, offset, decErr(CodeUnsupportedCBOR, offset, "unsupported major type %d", h.major)
	}
}

func decodeOther(b []byte, offset int, h readHeadResult) (Value, int, *Error) {
	switch h.addInfo {
	case simpleFalse:
		return Bool(false), offset + h.consumed, nil
	case simpleTrue:
		return Bool(true), offset + h.consumed, nil
	case simpleNull:
		return Null(), offset + h.consumed, nil
	case floatWidth:
		f := math.Float64frombits(h.value)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, offset, decErr(CodeNaNOrInf, offset, "NaN or infinite float")
		}
		if _, ok := isSafeIntegerValued(f); ok {
			return Value{}, offset, decErr(CodeNonCanonicalFloat, offset, "integral value encoded as float")
		}
		return Float(f), offset + h.consumed, nil
	default:
		return Value{}, offset, decErr(CodeUnsupportedCBOR, offset, "unsupported simple/float additional info %d", h.addInfo)
	}
}

func decodeString(b []byte, offset int, h readHeadResult, limits Limits) (Value, int, *Error) {
	if !isCanonicalWidth(h.addInfo, h.value) {
		return Value{}, offset, decErr(CodeNonCanonicalLength, offset, "non-minimal string length width")
	}
	if h.value > uint64(limits.MaxStringBytes) {
		return Value{}, offset, decErr(CodeStringTooLong, offset, "string length %d exceeds limit %d", h.value, limits.MaxStringBytes)
	}
	start := offset + h.consumed
	end := start + int(h.value)
	if end > len(b) {
		return Value{}, offset, decErr(CodeTruncated, offset, "truncated string body")
	}
	s := string(b[start:end])
	if !utf8.ValidString(s) {
		return Value{}, offset, decErr(CodeInvalidUTF8, offset, "invalid UTF-8 in string")
	}
	return String(s), end, nil
}

func decodeArray(b []byte, offset int, h readHeadResult, limits Limits, depth int) (Value, int, *Error) {
	if !isCanonicalWidth(h.addInfo, h.value) {
		return Value{}, offset, decErr(CodeNonCanonicalLength, offset, "non-minimal array length width")
	}
	if h.value > uint64(limits.MaxContainerLen) {
		return Value{}, offset, decErr(CodeArrayTooLong, offset, "array length %d exceeds limit %d", h.value, limits.MaxContainerLen)
	}
	pos := offset + h.consumed
	elems := make([]Value, 0, h.value)
	for i := uint64(0); i < h.value; i++ {
		el, next, err := decodeValue(b, pos, limits, depth+1)
		if err != nil {
			return Value{}, offset, err
		}
		elems = append(elems, el)
		pos = next
	}
	return Array(elems...), pos, nil
}

func decodeMap(b []byte, offset int, h readHeadResult, limits Limits, depth int) (Value, int, *Error) {
	if !isCanonicalWidth(h.addInfo, h.value) {
		return Value{}, offset, decErr(CodeNonCanonicalLength, offset, "non-minimal map length width")
	}
	if h.value > uint64(limits.MaxContainerLen) {
		return Value{}, offset, decErr(CodeMapTooLong, offset, "map length %d exceeds limit %d", h.value, limits.MaxContainerLen)
	}
	pos := offset + h.consumed
	fields := make([]Field, 0, h.value)
	var prevKeyBytes []byte
	for i := uint64(0); i < h.value; i++ {
		keyStart := pos
		kh, err := readHead(b, pos)
		if err != nil {
			return Value{}, offset, err
		}
		if kh.major != majorText {
			return Value{}, pos, decErr(CodeUnsupportedCBOR, pos, "map key must be a text string")
		}
		keyVal, next, kerr := decodeString(b, pos, kh, limits)
		if kerr != nil {
			return Value{}, offset, kerr
		}
		keyBytes := b[keyStart:next]
		pos = next

		if prevKeyBytes != nil {
			switch {
			case bytes.Equal(keyBytes, prevKeyBytes):
				return Value{}, keyStart, decErr(CodeDuplicateKey, keyStart, "duplicate map key")
			case !keyLess(prevKeyBytes, keyBytes):
				return Value{}, keyStart, decErr(CodeKeyOrder, keyStart, "map keys out of canonical order")
			}
		}
		prevKeyBytes = keyBytes

		val, next2, verr := decodeValue(b, pos, limits, depth+1)
		if verr != nil {
			return Value{}, offset, verr
		}
		pos = next2

		key, _ := keyVal.AsString()
		fields = append(fields, Field{Key: key, Val: val})
	}
	return Object(fields...), pos, nil
}
