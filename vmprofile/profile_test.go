package vmprofile

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/detjs/dv"
)

func TestStubbedGlobalsThrowFixedMessage(t *testing.T) {
	p := New()
	_, err := p.Runtime().RunString(`eval("1+1")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eval is disabled in deterministic mode")
}

func TestRemovedGlobalsAreUndefined(t *testing.T) {
	p := New()
	v, err := p.Runtime().RunString(`typeof Date`)
	require.NoError(t, err)
	assert.Equal(t, "undefined", v.String())
}

func TestFunctionConstructorUnreachableViaExistingFunctionPrototype(t *testing.T) {
	p := New()
	_, err := p.Runtime().RunString(`(function(){}).constructor("return 1")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Function constructor is disabled in deterministic mode")
}

func TestConsoleHasOnlyDisabledMethods(t *testing.T) {
	p := New()
	v, err := p.Runtime().RunString(`typeof console.log`)
	require.NoError(t, err)
	assert.Equal(t, "function", v.String())

	_, err = p.Runtime().RunString(`console.log("x")`)
	require.Error(t, err)
}

func TestInjectedContextIsFrozen(t *testing.T) {
	p := New()
	p.InjectContext(ContextBlob{
		Event:          dv.Object(dv.Field{Key: "a", Val: dv.Int(1)}),
		EventCanonical: dv.Null(),
		Steps:          dv.Array(),
	})
	v, err := p.Runtime().RunString(`event.a`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.ToInteger())

	_, err = p.Runtime().RunString(`event.a = 99; event.a`)
	require.NoError(t, err) // non-strict assignment to a non-writable prop is silently ignored
	v2, _ := p.Runtime().RunString(`event.a`)
	assert.Equal(t, int64(1), v2.ToInteger())
}

func TestCanonUnwrapRoundTrips(t *testing.T) {
	p := New()
	p.InstallCanonHelpers(dv.DefaultLimits())
	v, err := p.Runtime().RunString(`canon.unwrap({b: 2, aa: 1}).b`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.ToInteger())
}

func TestCanonAtNavigatesPath(t *testing.T) {
	p := New()
	p.InstallCanonHelpers(dv.DefaultLimits())
	v, err := p.Runtime().RunString(`canon.at({x: [1, {y: "z"}]}, ["x", 1, "y"])`)
	require.NoError(t, err)
	assert.Equal(t, "z", v.String())
}

func TestCanonAtMissingPathReturnsUndefined(t *testing.T) {
	p := New()
	p.InstallCanonHelpers(dv.DefaultLimits())
	v, err := p.Runtime().RunString(`canon.at({x: 1}, ["y"])`)
	require.NoError(t, err)
	assert.True(t, goja.IsUndefined(v))
}

func TestCanonAtOutOfRangeIndexThrowsTypeError(t *testing.T) {
	p := New()
	p.InstallCanonHelpers(dv.DefaultLimits())
	_, err := p.Runtime().RunString(`canon.at({x: [1, 2]}, ["x", 5])`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TypeError")
}

func TestCanonAtIndexIntoNonArrayThrowsTypeError(t *testing.T) {
	p := New()
	p.InstallCanonHelpers(dv.DefaultLimits())
	_, err := p.Runtime().RunString(`canon.at({x: 1}, ["x", 0])`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TypeError")
}
