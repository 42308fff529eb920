package gas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargeOpcodeDecrementsRemaining(t *testing.T) {
	m := New(10, false)
	require.NoError(t, m.ChargeOpcode())
	assert.Equal(t, uint64(9), m.Remaining())
	assert.Equal(t, uint64(1), m.Used())
}

func TestChargeOpcodeRaisesOutOfGasAtExactBoundary(t *testing.T) {
	m := New(2, false)
	require.NoError(t, m.ChargeOpcode())
	require.NoError(t, m.ChargeOpcode())
	err := m.ChargeOpcode()
	require.Error(t, err)
	var oog *OutOfGas
	require.True(t, errors.As(err, &oog))
	assert.Equal(t, uint64(0), m.Remaining())
}

func TestChargeAllocRoundsUpToQuantum(t *testing.T) {
	m := New(1000, false)
	require.NoError(t, m.ChargeAlloc(1)) // 3 + ceil(1/16) = 4
	assert.Equal(t, uint64(996), m.Remaining())
}

func TestChargeAllocExactMultiple(t *testing.T) {
	m := New(1000, false)
	require.NoError(t, m.ChargeAlloc(32)) // 3 + ceil(32/16) = 5
	assert.Equal(t, uint64(995), m.Remaining())
}

func TestBuiltinElementBoundaryStopsDeterministically(t *testing.T) {
	m := New(5+2+2, false) // entry + 2 elements, third element OOGs
	require.NoError(t, m.ChargeBuiltinEntry())
	require.NoError(t, m.ChargeBuiltinElement())
	require.NoError(t, m.ChargeBuiltinElement())
	err := m.ChargeBuiltinElement()
	require.Error(t, err)
}

func TestPendingGCSetAtThresholdAndClearedByCheckpoint(t *testing.T) {
	m := New(1<<20, false)
	require.NoError(t, m.ChargeAlloc(GCThresholdBytes))
	assert.True(t, m.PendingGC())
	m.Checkpoint()
	assert.False(t, m.PendingGC())
}

func TestChargeRawDecrementsRemainingWithoutTraceBucket(t *testing.T) {
	m := New(100, true)
	require.NoError(t, m.ChargeRaw(23))
	assert.Equal(t, uint64(77), m.Remaining())
	assert.Equal(t, uint64(0), m.Trace().TotalGas())
}

func TestChargeRawOutOfGasZeroesRemaining(t *testing.T) {
	m := New(10, false)
	err := m.ChargeRaw(11)
	require.Error(t, err)
	var oog *OutOfGas
	require.True(t, errors.As(err, &oog))
	assert.Equal(t, uint64(0), m.Remaining())
}

func TestTraceAccumulatesPerCategory(t *testing.T) {
	m := New(1000, true)
	require.NoError(t, m.ChargeOpcode())
	require.NoError(t, m.ChargeBuiltinEntry())
	require.NoError(t, m.ChargeBuiltinElement())
	require.NoError(t, m.ChargeAlloc(16))

	tr := m.Trace()
	require.NotNil(t, tr)
	assert.Equal(t, uint64(1), tr.OpcodeCount)
	assert.Equal(t, uint64(1), tr.BuiltinBaseCount)
	assert.Equal(t, uint64(1), tr.BuiltinElementCount)
	assert.Equal(t, uint64(1), tr.AllocCount)
	assert.Equal(t, uint64(16), tr.AllocBytes)
	assert.Equal(t, m.Used(), tr.TotalGas())
}
