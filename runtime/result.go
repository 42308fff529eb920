package runtime

import (
	"github.com/probechain/detjs/dv"
	"github.com/probechain/detjs/gas"
	"github.com/probechain/detjs/hostcall"
)

// Result is evaluate()'s complete, always-present output shape: success
// and failure are both reported here rather than via a Go error, except
// for the init-time validation failures Evaluate returns directly.
type Result struct {
	Ok bool

	// Type distinguishes the two failure shapes when !Ok.
	Type string // "vm-error" | "invalid-output"

	Value        dv.Value // the returned value, when Ok
	Raw          []byte   // canonical DV encoding of Value, when Ok
	GasUsed      uint64
	GasRemaining uint64
	Tape         []hostcall.TapeRecord
	TapeSession  string // correlation id for Tape, empty when tape recording is disabled
	GasTrace     *gas.Trace
	Error        *ErrorInfo // populated iff !Ok
}

const (
	resultTypeVMError       = "vm-error"
	resultTypeInvalidOutput = "invalid-output"
)
