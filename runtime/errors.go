package runtime

import "errors"

// ErrorKind is the taxonomy evaluate() classifies every failure into.
// These are descriptive labels on Result, not Go error types — OutOfGas
// and ManifestError are the exceptions: gas.OutOfGas is detected with
// errors.As, and ManifestError below is returned from Evaluate.
type ErrorKind string

const (
	KindManifestError ErrorKind = "ManifestError"
	KindOutOfGas      ErrorKind = "OutOfGas"
	KindHostError     ErrorKind = "HostError"
	KindJsException   ErrorKind = "JsException"
	KindInvalidOutput ErrorKind = "InvalidOutput"
)

// ErrorInfo is the {kind, code, tag, message, ...} shape surfaced on a
// failed Result.
type ErrorInfo struct {
	Kind    ErrorKind
	Code    string
	Tag     string
	Message string
	Name    string // JS error constructor name, JsException only
}

// ManifestError is the init-time failure spec.md §4.6/§7 names for a
// manifest hash pin that doesn't match: the evaluation never starts, so
// it is returned as a Go error from Evaluate rather than folded into a
// Result, but it still carries the {code, tag} pair a caller can surface
// identically to any other ManifestError.
type ManifestError struct {
	Code string
	Tag  string
	msg  string
}

func (e *ManifestError) Error() string { return e.msg }

func (e *ManifestError) Is(target error) bool {
	var o *ManifestError
	if errors.As(target, &o) {
		return o.Code == e.Code
	}
	return false
}

var (
	ErrManifestHashMismatch = &ManifestError{Code: codeABIManifestHashMismatch, Tag: tagManifest, msg: "runtime: abi_manifest_hash mismatch"}
	ErrEngineHashMismatch   = &ManifestError{Code: codeEngineHashMismatch, Tag: tagManifest, msg: "runtime: engine_build_hash mismatch"}
)

const (
	codeABIManifestHashMismatch = "ABI_MANIFEST_HASH_MISMATCH"
	tagManifest                 = "vm/manifest"
	codeEngineHashMismatch      = "ENGINE_BUILD_HASH_MISMATCH"
	codeJSException             = "JS_EXCEPTION"
	tagJSException              = "vm/js_exception"
	codeInvalidOutput           = "INVALID_OUTPUT"
)
