package refhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/detjs/dv"
	"github.com/probechain/detjs/manifest"
)

func TestManifestValidatesAndHashesStably(t *testing.T) {
	limits := dv.DefaultLimits()
	m, err := Manifest(limits)
	require.NoError(t, err)

	canon, err := manifest.EncodeCanonical(m, limits)
	require.NoError(t, err)
	h1 := manifest.Hash(canon)
	assert.Len(t, h1, 64)

	m2, err := Manifest(limits)
	require.NoError(t, err)
	canon2, err := manifest.EncodeCanonical(m2, limits)
	require.NoError(t, err)
	assert.Equal(t, h1, manifest.Hash(canon2))
}

func TestStoreGetRoundTrips(t *testing.T) {
	limits := dv.DefaultLimits()
	s := NewStore()
	s.Put("path/to/doc", dv.Object(dv.Field{Key: "k", Val: dv.String("v")}))

	bindings := s.Bindings(limits)
	res := bindings[FnDocumentGet]([]dv.Value{dv.String("path/to/doc")})
	require.True(t, res.HasOK)
	v, ok := res.OK.Get("k")
	require.True(t, ok)
	s2, _ := v.AsString()
	assert.Equal(t, "v", s2)
}

func TestStoreGetMissingReturnsNotFound(t *testing.T) {
	limits := dv.DefaultLimits()
	s := NewStore()
	bindings := s.Bindings(limits)
	res := bindings[FnDocumentGet]([]dv.Value{dv.String("nope")})
	require.True(t, res.HasErr)
	assert.Equal(t, CodeNotFound, res.ErrCode)
}

func TestStoreEmitRecordsInOrder(t *testing.T) {
	limits := dv.DefaultLimits()
	s := NewStore()
	bindings := s.Bindings(limits)

	_ = bindings[FnEmit]([]dv.Value{dv.Int(1)})
	_ = bindings[FnEmit]([]dv.Value{dv.Int(2)})

	emitted := s.Emitted()
	require.Len(t, emitted, 2)
	v0, _ := emitted[0].AsInt()
	v1, _ := emitted[1].AsInt()
	assert.Equal(t, int64(1), v0)
	assert.Equal(t, int64(2), v1)
}

func TestGetCanonicalNormalizesIntegralFloatUnlikeGet(t *testing.T) {
	limits := dv.DefaultLimits()
	s := NewStore()
	s.Put("p", dv.Object(dv.Field{Key: "n", Val: dv.Float(3.0)}))
	bindings := s.Bindings(limits)

	plain := bindings[FnDocumentGet]([]dv.Value{dv.String("p")})
	canon := bindings[FnDocumentGetCanonical]([]dv.Value{dv.String("p")})
	require.True(t, plain.HasOK)
	require.True(t, canon.HasOK)

	// 3.0 is stored as a Float but canonicalizes to the integer wire form;
	// handleGet returns it untouched while handleGetCanonical normalizes it.
	pn, _ := plain.OK.Get("n")
	cn, _ := canon.OK.Get("n")
	assert.Equal(t, dv.KindFloat, pn.Kind())
	assert.Equal(t, dv.KindInt, cn.Kind())
	i, _ := cn.AsInt()
	assert.Equal(t, int64(3), i)
}
