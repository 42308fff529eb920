package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/detjs/dv"
	"github.com/probechain/detjs/manifest"
	"github.com/probechain/detjs/refhost"
)

func refhostConfig(t *testing.T, code string, gasLimit uint64) (Config, *refhost.Store) {
	t.Helper()
	limits := dv.DefaultLimits()
	m, err := refhost.Manifest(limits)
	require.NoError(t, err)
	canon, err := manifest.EncodeCanonical(m, limits)
	require.NoError(t, err)
	hash := manifest.Hash(canon)

	store := refhost.NewStore()
	cfg := Config{
		Program: Program{
			Code:            code,
			ABIID:           m.ABIID,
			ABIVersion:      m.ABIVersion,
			ABIManifestHash: hash,
		},
		GasLimit: gasLimit,
		Manifest: m,
		Handlers: store.Bindings(limits),
		Limits:   limits,
	}
	return cfg, store
}

func TestEvaluateReturnsDVValueOnSuccess(t *testing.T) {
	cfg, _ := refhostConfig(t, `({a: 1, b: [1,2,3]})`, 1_000_000)
	res, err := Evaluate(cfg)
	require.NoError(t, err)
	require.True(t, res.Ok)
	a, ok := res.Value.Get("a")
	require.True(t, ok)
	i, _ := a.AsInt()
	assert.Equal(t, int64(1), i)
}

func TestEvaluateRejectsManifestHashMismatch(t *testing.T) {
	cfg, _ := refhostConfig(t, `1`, 1000)
	cfg.Program.ABIManifestHash = "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	_, err := Evaluate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManifestHashMismatch)
}

// TestEvaluateOutOfGasStopsAtDeterministicBuiltinBoundary exercises the
// one metered surface that does not depend on the embedded engine's
// opcode loop (out of this repo's scope per spec.md §1): the metered
// Array.prototype.forEach entry/per-element charge. A budget of 11
// covers the entry charge (5) plus three elements (2 each, remaining
// exactly 0 after the third); the fourth element's charge is the
// deterministic OOG boundary.
func TestEvaluateOutOfGasStopsAtDeterministicBuiltinBoundary(t *testing.T) {
	cfg, _ := refhostConfig(t, `[1,2,3,4,5].forEach(function(x){})`, 11)
	res, err := Evaluate(cfg)
	require.NoError(t, err)
	require.False(t, res.Ok)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindOutOfGas, res.Error.Kind)
	assert.Equal(t, uint64(0), res.GasRemaining)
	assert.Equal(t, cfg.GasLimit, res.GasUsed)
}

func TestEvaluateHostRoundTripChargesDeclaredGas(t *testing.T) {
	cfg, store := refhostConfig(t, `document("greeting")`, 1_000_000)
	store.Put("greeting", dv.String("hello"))
	cfg.EnableTape = true

	res, err := Evaluate(cfg)
	require.NoError(t, err)
	require.True(t, res.Ok)
	s, ok := res.Value.AsString()
	require.True(t, ok)
	assert.Equal(t, "hello", s)

	require.Len(t, res.Tape, 1)
	rec := res.Tape[0]
	assert.Equal(t, refhost.FnDocumentGet, rec.FnID)
	assert.False(t, rec.IsError)
	assert.NotEmpty(t, res.TapeSession)

	// document.get declares base 20, k_arg_bytes 1, k_ret_bytes 1, k_units 1.
	// The request ["greeting"] encodes to 10 bytes and the response
	// {ok: "hello", units: 1} to 17; nothing else in this script is metered.
	assert.Equal(t, uint32(10), rec.ReqLen)
	assert.Equal(t, uint32(17), rec.RespLen)
	assert.Equal(t, uint64(20+10), rec.GasPre)
	assert.Equal(t, uint64(17+1), rec.GasPost)
	assert.Equal(t, rec.GasPre+rec.GasPost, res.GasUsed)
}

func TestEvaluateDocumentNotFoundThrowsCatchableHostError(t *testing.T) {
	cfg, _ := refhostConfig(t, `
		try {
			document("missing");
			"no error";
		} catch (e) {
			e.code;
		}
	`, 1_000_000)
	res, err := Evaluate(cfg)
	require.NoError(t, err)
	require.True(t, res.Ok)
	s, _ := res.Value.AsString()
	assert.Equal(t, refhost.CodeNotFound, s)
}

func TestEvaluateUncaughtJsExceptionClassifiesAsJsException(t *testing.T) {
	cfg, _ := refhostConfig(t, `throw new Error("boom")`, 1_000_000)
	res, err := Evaluate(cfg)
	require.NoError(t, err)
	require.False(t, res.Ok)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindJsException, res.Error.Kind)
}

func TestEvaluateNonDVReturnValueIsInvalidOutput(t *testing.T) {
	cfg, _ := refhostConfig(t, `(function(){})`, 1_000_000)
	res, err := Evaluate(cfg)
	require.NoError(t, err)
	require.False(t, res.Ok)
	assert.Equal(t, resultTypeInvalidOutput, res.Type)
}

func TestEvaluateIsDeterministicAcrossRuns(t *testing.T) {
	cfg, store1 := refhostConfig(t, `document("k")`, 5000)
	store1.Put("k", dv.String("v"))
	cfg.EnableTape = true
	res1, err := Evaluate(cfg)
	require.NoError(t, err)

	cfg2, store2 := refhostConfig(t, `document("k")`, 5000)
	store2.Put("k", dv.String("v"))
	cfg2.EnableTape = true
	res2, err := Evaluate(cfg2)
	require.NoError(t, err)

	assert.Equal(t, res1.Ok, res2.Ok)
	assert.Equal(t, res1.Raw, res2.Raw)
	assert.Equal(t, res1.GasUsed, res2.GasUsed)
	assert.Equal(t, res1.GasRemaining, res2.GasRemaining)
	require.Len(t, res1.Tape, 1)
	require.Len(t, res2.Tape, 1)
	assert.Equal(t, res1.Tape[0].ReqHash, res2.Tape[0].ReqHash)
	assert.Equal(t, res1.Tape[0].RespHash, res2.Tape[0].RespHash)
}
