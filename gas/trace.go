package gas

// Trace aggregates gas-accounting counters across an evaluation. Only
// aggregate counts are kept, never a per-opcode vector, so the trace
// stays small and its shape is independent of program length.
type Trace struct {
	OpcodeCount uint64
	OpcodeGas   uint64

	BuiltinBaseCount uint64
	BuiltinBaseGas   uint64

	BuiltinElementCount uint64
	BuiltinElementGas   uint64

	AllocCount uint64
	AllocBytes uint64
	AllocGas   uint64
}

// TotalGas returns the sum of every category's charged gas. It equals the
// meter's Used() only when every charge went through the four traced
// categories and succeeded: ChargeRaw amounts (host-call gas) and a failed
// charge's zeroed remainder are not counted here.
func (t *Trace) TotalGas() uint64 {
	return t.OpcodeGas + t.BuiltinBaseGas + t.BuiltinElementGas + t.AllocGas
}
