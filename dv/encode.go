package dv

import (
	"bytes"
	"math"
	"sort"
	"unicode/utf8"
)

// Encode serializes v into its canonical binary form under limits. Encode
// is total over well-formed DV values and fails closed: the first
// violation encountered aborts the whole encode, it never emits a partial
// or best-effort result.
func Encode(v Value, limits Limits) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, limits, 0); err != nil {
		return nil, err
	}
	if buf.Len() > limits.MaxEncodedBytes {
		return nil, encErr(CodeEncodedTooLarge, "encoded size %d exceeds limit %d", buf.Len(), limits.MaxEncodedBytes)
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v Value, limits Limits, depth int) *Error {
	if depth > limits.MaxDepth {
		return encErr(CodeDepthExceeded, "nesting depth exceeds limit %d", limits.MaxDepth)
	}
	switch v.kind {
	case KindNull:
		buf.WriteByte(majorOther<<5 | simpleNull)
		return nil
	case KindBool:
		if v.b {
			buf.WriteByte(majorOther<<5 | simpleTrue)
		} else {
			buf.WriteByte(majorOther<<5 | simpleFalse)
		}
		return nil
	case KindInt:
		return encodeInt(buf, v.i)
	case KindFloat:
		if i, ok := isSafeIntegerValued(v.f); ok {
			return encodeInt(buf, i)
		}
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return ErrNaNOrInf
		}
		buf.Write(encodeFloat64(v.f))
		return nil
	case KindString:
		return encodeString(buf, v.s, limits)
	case KindArray:
		return encodeArray(buf, v.arr, limits, depth)
	case KindMap:
		return encodeMap(buf, v.obj, limits, depth)
	default:
		return encErr(CodeUnsupportedType, "unknown DV kind %d", v.kind)
	}
}

func encodeInt(buf *bytes.Buffer, i int64) *Error {
	if i > maxSafeInt || i < minSafeInt {
		return ErrIntegerOutOfRange
	}
	if i >= 0 {
		buf.Write(head(majorUint, uint64(i)))
		return nil
	}
	buf.Write(head(majorNeg, uint64(-1-i)))
	return nil
}

func encodeString(buf *bytes.Buffer, s string, limits Limits) *Error {
	if !utf8.ValidString(s) {
		return ErrInvalidString
	}
	n := len(s)
	if n > limits.MaxStringBytes {
		return ErrStringTooLong
	}
	buf.Write(head(majorText, uint64(n)))
	buf.WriteString(s)
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []Value, limits Limits, depth int) *Error {
	if len(arr) > limits.MaxContainerLen {
		return ErrArrayTooLong
	}
	buf.Write(head(majorArray, uint64(len(arr))))
	for _, el := range arr {
		if err := encodeValue(buf, el, limits, depth+1); err != nil {
			return err
		}
	}
	return nil
}

type encodedField struct {
	key []byte
	val []byte
}

func encodeMap(buf *bytes.Buffer, fields []Field, limits Limits, depth int) *Error {
	if len(fields) > limits.MaxContainerLen {
		return ErrMapTooLong
	}
	seen := make(map[string]struct{}, len(fields))
	enc := make([]encodedField, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.Key]; dup {
			return ErrDuplicateKey
		}
		seen[f.Key] = struct{}{}

		var kbuf bytes.Buffer
		if err := encodeString(&kbuf, f.Key, limits); err != nil {
			return err
		}
		var vbuf bytes.Buffer
		if err := encodeValue(&vbuf, f.Val, limits, depth+1); err != nil {
			return err
		}
		enc = append(enc, encodedField{key: kbuf.Bytes(), val: vbuf.Bytes()})
	}
	sort.Slice(enc, func(i, j int) bool {
		return keyLess(enc[i].key, enc[j].key)
	})
	buf.Write(head(majorMap, uint64(len(enc))))
	for _, f := range enc {
		buf.Write(f.key)
		buf.Write(f.val)
	}
	return nil
}

// keyLess orders encoded map keys by length first, then bytewise — the
// canonical map key order every DV encoder and decoder must agree on.
func keyLess(a, b []byte) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return bytes.Compare(a, b) < 0
}
