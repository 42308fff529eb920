package gas

// OutOfGas is raised when a charge would drive remaining gas negative.
// It is a distinct type, not a sentinel var, so the runtime layer can
// recognize it with errors.As and treat it as uncatchable by user code
// regardless of any wrapping in between.
type OutOfGas struct{}

const (
	CodeOutOfGas = "OOG"
	TagOutOfGas  = "vm/out_of_gas"
)

func (e *OutOfGas) Error() string {
	return "gas: out of gas"
}
