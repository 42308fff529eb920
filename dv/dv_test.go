package dv

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMapOrdersKeysByLengthThenBytes(t *testing.T) {
	v := Object(
		Field{Key: "b", Val: Int(2)},
		Field{Key: "aa", Val: Int(1)},
	)
	got, err := Encode(v, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, normalizeHex("a2 61 62 02 62 61 61 01"), hex.EncodeToString(got))
}

func normalizeHex(s string) string {
	out := make([]byte, 0, len(s))
	for _, c := range s {
		if c == ' ' {
			continue
		}
		out = append(out, byte(c))
	}
	return string(out)
}

func TestRoundTrip(t *testing.T) {
	cases := []Value{
		Null(),
		Bool(true),
		Bool(false),
		Int(0),
		Int(-1),
		Int(1<<53 - 1),
		Int(-(1<<53) + 1),
		Float(0.5),
		Float(-2.25),
		String(""),
		String("hello"),
		Array(),
		Array(Int(1), Int(2), Int(3)),
		Object(Field{Key: "b", Val: Int(2)}, Field{Key: "aa", Val: Int(1)}),
		Object(Field{Key: "x", Val: Array(Int(1), Object(Field{Key: "y", Val: Null()}))}),
	}
	for _, v := range cases {
		enc, err := Encode(v, DefaultLimits())
		require.NoError(t, err)
		dec, err := Decode(enc, DefaultLimits())
		require.NoError(t, err)
		assert.True(t, Equal(v, dec))
	}
}

func TestEncodeCanonicalizesIntegralFloat(t *testing.T) {
	enc, err := Encode(Float(3.0), DefaultLimits())
	require.NoError(t, err)
	dec, err := Decode(enc, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, KindInt, dec.Kind())
	i, ok := dec.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(3), i)
}

func TestEncodeRejectsNaNAndInf(t *testing.T) {
	_, err := Encode(Float(nan()), DefaultLimits())
	assertCode(t, err, CodeNaNOrInf)
	_, err = Encode(Float(inf()), DefaultLimits())
	assertCode(t, err, CodeNaNOrInf)
}

func TestEncodeRejectsOutOfRangeInt(t *testing.T) {
	_, err := Encode(Int(1<<53), DefaultLimits())
	assertCode(t, err, CodeIntegerOutOfRange)
}

func TestEncodeRejectsDuplicateKey(t *testing.T) {
	v := Object(Field{Key: "a", Val: Int(1)}, Field{Key: "a", Val: Int(2)})
	_, err := Encode(v, DefaultLimits())
	assertCode(t, err, CodeDuplicateKey)
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	v := String(string([]byte{0xff, 0xfe}))
	_, err := Encode(v, DefaultLimits())
	assertCode(t, err, CodeInvalidString)
}

func TestEncodeRejectsDepthExceeded(t *testing.T) {
	v := Null()
	for i := 0; i < 3; i++ {
		v = Array(v)
	}
	limits := DefaultLimits()
	limits.MaxDepth = 2
	_, err := Encode(v, limits)
	assertCode(t, err, CodeDepthExceeded)
}

func TestDecodeRejectsNonCanonicalIntWidth(t *testing.T) {
	// 0x18 0x05 encodes 5 using the 1-byte-follow form, which is wider
	// than the 1-byte inline form (0x05) that 5 canonically requires.
	b, err := hex.DecodeString("1805")
	require.NoError(t, err)
	_, derr := Decode(b, DefaultLimits())
	assertCode(t, derr, CodeNonCanonicalInt)
}

func TestDecodeRejectsKeyOrderViolation(t *testing.T) {
	// Map with two single-char keys encoded out of bytewise order: {"b":1,"a":2}
	b, err := hex.DecodeString("a2616201616102")
	require.NoError(t, err)
	_, derr := Decode(b, DefaultLimits())
	assertCode(t, derr, CodeKeyOrder)
}

func TestDecodeRejectsDuplicateKey(t *testing.T) {
	// {"a":1,"a":2}
	b, err := hex.DecodeString("a2616101616102")
	require.NoError(t, err)
	_, derr := Decode(b, DefaultLimits())
	assertCode(t, derr, CodeDuplicateKey)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	enc, err := Encode(Int(1), DefaultLimits())
	require.NoError(t, err)
	enc = append(enc, 0x00)
	_, derr := Decode(enc, DefaultLimits())
	assertCode(t, derr, CodeTrailingBytes)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	b, err := hex.DecodeString("61")
	require.NoError(t, err)
	_, derr := Decode(b, DefaultLimits())
	assertCode(t, derr, CodeTruncated)
}

func TestTightenNeverLoosensDefaults(t *testing.T) {
	got := Tighten(Limits{MaxEncodedBytes: 1 << 30, MaxDepth: 0, MaxStringBytes: 10, MaxContainerLen: 1})
	d := DefaultLimits()
	assert.Equal(t, d.MaxEncodedBytes, got.MaxEncodedBytes)
	assert.Equal(t, d.MaxDepth, got.MaxDepth)
	assert.Equal(t, 10, got.MaxStringBytes)
	assert.Equal(t, 1, got.MaxContainerLen)
}

func assertCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	var dverr *Error
	require.ErrorAs(t, err, &dverr)
	assert.Equal(t, code, dverr.Code)
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func inf() float64 {
	var zero float64
	return 1 / zero
}
