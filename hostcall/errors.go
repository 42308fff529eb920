package hostcall

import (
	"errors"
	"fmt"

	"github.com/probechain/detjs/dv"
	"github.com/probechain/detjs/manifest"
)

// errArgTooLong marks a request argument that exceeds its manifest-declared
// arg_utf8_max. The dispatcher never surfaces this to JS directly: any
// malformed request collapses to the transport sentinel, since an engine
// that built a conforming wrapper call would never produce it.
var errArgTooLong = errors.New("hostcall: argument exceeds arg_utf8_max")

// Error is the value a Host.v1 wrapper throws into JS: either a
// manifest-declared error (Code/Tag looked up via Function.TagFor) or one
// of the two reserved codes synthesized below. It implements error so it
// travels through ordinary Go returns as well as goja's NewGoError.
type Error struct {
	Code    string
	Tag     string
	Details *dv.Value
}

func (e *Error) Error() string {
	return fmt.Sprintf("hostcall: %s (%s)", e.Code, e.Tag)
}

// ErrTransport is thrown when the Dispatcher returns the sentinel (fatal
// transport failure): a reentrant call, an fn_id with no bound handler, a
// request that fails decoding, arity or arg_utf8_max checks, or a handler
// result the Dispatcher rejects (undeclared error code, a non-null ok for
// a null return schema, or a response that cannot be encoded).
func ErrTransport() *Error {
	return &Error{Code: manifest.CodeHostTransport, Tag: manifest.TagHostTransport}
}

// ErrEnvelopeInvalid is thrown when the call arguments cannot be encoded
// within max_request_bytes, or when the response envelope fails structural
// validation: it does not decode, it lacks exactly one of ok/err, or its
// error code is not declared by the manifest.
func ErrEnvelopeInvalid() *Error {
	return &Error{Code: manifest.CodeHostEnvelopeInvalid, Tag: manifest.TagHostEnvelopeInvalid}
}
