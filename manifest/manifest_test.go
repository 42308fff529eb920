package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/detjs/dv"
)

func sampleManifest() Manifest {
	return Manifest{
		ABIID:      "detjs.host",
		ABIVersion: 1,
		Functions: []Function{
			{
				FnID:         1,
				JSPath:       []string{"document", "get"},
				Effect:       EffectRead,
				Arity:        1,
				ArgSchema:    []ArgKind{ArgString},
				ReturnSchema: ArgDV,
				Gas:          GasParams{ScheduleID: 1, Base: 20, KArgBytes: 1, KRetBytes: 1, KUnits: 1},
				Limits:       Limits{MaxRequestBytes: 4096, MaxResponseBytes: 65536, MaxUnits: 1000, ArgUTF8Max: []uint32{1024}},
				ErrorCodes:   []ErrorCode{{Code: "NOT_FOUND", Tag: "host/not_found"}},
			},
			{
				FnID:         2,
				JSPath:       []string{"document", "getCanonical"},
				Effect:       EffectRead,
				Arity:        1,
				ArgSchema:    []ArgKind{ArgString},
				ReturnSchema: ArgDV,
				Gas:          GasParams{ScheduleID: 1, Base: 20, KArgBytes: 1, KRetBytes: 1, KUnits: 1},
				Limits:       Limits{MaxRequestBytes: 4096, MaxResponseBytes: 65536, MaxUnits: 1000, ArgUTF8Max: []uint32{1024}},
				ErrorCodes:   []ErrorCode{{Code: "NOT_FOUND", Tag: "host/not_found"}},
			},
		},
	}
}

func TestValidateAcceptsWellFormedManifest(t *testing.T) {
	m, err := Validate(sampleManifest())
	require.NoError(t, err)
	assert.Equal(t, "detjs.host", m.ABIID)
}

func TestValidateRejectsNonAscendingFnID(t *testing.T) {
	m := sampleManifest()
	m.Functions[0], m.Functions[1] = m.Functions[1], m.Functions[0]
	_, err := Validate(m)
	require.Error(t, err)
}

func TestValidateRejectsForbiddenJSPathSegment(t *testing.T) {
	m := sampleManifest()
	m.Functions[0].JSPath = []string{"__proto__"}
	_, err := Validate(m)
	require.Error(t, err)
}

func TestValidateRejectsPathCollision(t *testing.T) {
	m := sampleManifest()
	m.Functions[1].JSPath = []string{"document"}
	_, err := Validate(m)
	require.Error(t, err)
}

func TestValidateRejectsReservedErrorCode(t *testing.T) {
	m := sampleManifest()
	m.Functions[0].ErrorCodes = []ErrorCode{{Code: CodeHostTransport, Tag: TagHostTransport}}
	_, err := Validate(m)
	require.Error(t, err)
}

func TestValidateRejectsArgUTF8MaxArityMismatch(t *testing.T) {
	m := sampleManifest()
	m.Functions[0].Limits.ArgUTF8Max = []uint32{1, 2}
	_, err := Validate(m)
	require.Error(t, err)
}

func TestValidateRejectsArgUTF8MaxOnNonStringArgEvenWhenZero(t *testing.T) {
	m := sampleManifest()
	m.Functions[0].ArgSchema = []ArgKind{ArgDV}
	m.Functions[0].Limits.ArgUTF8Max = []uint32{0}
	_, err := Validate(m)
	require.Error(t, err)
}

func TestHashStableUnderFieldConstructionOrder(t *testing.T) {
	m := sampleManifest()
	m, err := Validate(m)
	require.NoError(t, err)

	limits := dv.DefaultLimits()
	b1, err := EncodeCanonical(m, limits)
	require.NoError(t, err)

	// Re-encode the same manifest value with its top-level keys supplied
	// in reverse order: the canonical bytes, and so the hash, depend only
	// on content, not on the order the fields were assembled in.
	fields, ok := toDV(m).AsObject()
	require.True(t, ok)
	reversed := make([]dv.Field, len(fields))
	for i, f := range fields {
		reversed[len(fields)-1-i] = f
	}
	b2, err := dv.Encode(dv.Object(reversed...), limits)
	require.NoError(t, err)

	assert.Equal(t, b1, b2)
	assert.Equal(t, Hash(b1), Hash(b2))
}

func TestValidateRejectsGasOverflow(t *testing.T) {
	m := sampleManifest()
	m.Functions[0].Gas.KArgBytes = ^uint32(0)
	m.Functions[0].Limits.MaxRequestBytes = ^uint32(0)
	_, err := Validate(m)
	require.Error(t, err)
}
