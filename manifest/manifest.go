// Package manifest implements the ABI manifest model: structural
// validation, canonical DV encoding, and the pinned content hash that ties
// a program artifact to the exact set of host functions it was built
// against.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/probechain/detjs/dv"
)

// Effect classifies the side-effect discipline of a host function.
type Effect string

const (
	EffectRead   Effect = "READ"
	EffectEmit   Effect = "EMIT"
	EffectMutate Effect = "MUTATE"
)

// ArgKind is the shape of one argument or return slot.
type ArgKind string

const (
	ArgString ArgKind = "string"
	ArgDV     ArgKind = "dv"
	ArgNull   ArgKind = "null"
)

// Reserved error codes that may never appear in a manifest: they are
// synthesized by the dispatcher itself for transport and envelope
// failures.
const (
	CodeHostTransport       = "HOST_TRANSPORT"
	TagHostTransport        = "host/transport"
	CodeHostEnvelopeInvalid = "HOST_ENVELOPE_INVALID"
	TagHostEnvelopeInvalid  = "host/envelope_invalid"
)

// maxDVEncodedBytes mirrors dv.DefaultLimits().MaxEncodedBytes; manifest
// request/response byte caps are bounded by the same ceiling.
const maxDVEncodedBytes = 1 << 20

var jsPathSegment = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var forbiddenSegments = map[string]bool{
	"__proto__":   true,
	"prototype":   true,
	"constructor": true,
}

// GasParams is the linear gas-charging model for one host function.
type GasParams struct {
	ScheduleID uint32
	Base       uint32
	KArgBytes  uint32
	KRetBytes  uint32
	KUnits     uint32
}

// Limits bounds one host function's request/response sizes and unit
// budget. ArgUTF8Max is nil when the manifest omits arg_utf8_max.
type Limits struct {
	MaxRequestBytes  uint32
	MaxResponseBytes uint32
	MaxUnits         uint32
	ArgUTF8Max       []uint32
}

// ErrorCode is one declared (code, tag) pair a host function may return.
type ErrorCode struct {
	Code string
	Tag  string
}

// Function describes a single host function's ABI.
type Function struct {
	FnID         uint32
	JSPath       []string
	Effect       Effect
	Arity        uint32
	ArgSchema    []ArgKind
	ReturnSchema ArgKind
	Gas          GasParams
	Limits       Limits
	ErrorCodes   []ErrorCode
}

// Manifest is the full ABI description pinned by hash into a program
// artifact.
type Manifest struct {
	ABIID      string
	ABIVersion uint32
	Functions  []Function
}

// Validate checks every structural rule and returns the manifest
// unchanged on success; it never mutates the input (functions must
// already be supplied in ascending fn_id order — Validate checks this,
// it does not sort).
func Validate(m Manifest) (Manifest, error) {
	if m.ABIID == "" {
		return Manifest{}, fmt.Errorf("%w: abi_id must not be empty", ErrInvalidManifest)
	}

	var prevFnID uint32
	for i, fn := range m.Functions {
		if fn.FnID < 1 {
			return Manifest{}, fmt.Errorf("%w: fn_id must be >= 1, got %d", ErrInvalidManifest, fn.FnID)
		}
		if i > 0 && fn.FnID <= prevFnID {
			return Manifest{}, fmt.Errorf("%w: functions must be strictly ascending by fn_id (%d after %d)", ErrInvalidManifest, fn.FnID, prevFnID)
		}
		prevFnID = fn.FnID

		if err := validateJSPath(fn.JSPath); err != nil {
			return Manifest{}, err
		}
		if err := validateEffect(fn.Effect); err != nil {
			return Manifest{}, err
		}
		if uint32(len(fn.ArgSchema)) != fn.Arity {
			return Manifest{}, fmt.Errorf("%w: fn_id %d: arg_schema length %d != arity %d", ErrInvalidManifest, fn.FnID, len(fn.ArgSchema), fn.Arity)
		}
		if fn.Limits.ArgUTF8Max != nil {
			if uint32(len(fn.Limits.ArgUTF8Max)) != fn.Arity {
				return Manifest{}, fmt.Errorf("%w: fn_id %d: arg_utf8_max length %d != arity %d", ErrInvalidManifest, fn.FnID, len(fn.Limits.ArgUTF8Max), fn.Arity)
			}
			for i, k := range fn.ArgSchema {
				if k != ArgString {
					return Manifest{}, fmt.Errorf("%w: fn_id %d: arg_utf8_max[%d] present but arg_schema[%d] is not string", ErrInvalidManifest, fn.FnID, i, i)
				}
			}
		}
		if fn.Limits.MaxRequestBytes < 1 || fn.Limits.MaxRequestBytes > maxDVEncodedBytes {
			return Manifest{}, fmt.Errorf("%w: fn_id %d: max_request_bytes out of [1, %d]", ErrInvalidManifest, fn.FnID, maxDVEncodedBytes)
		}
		if fn.Limits.MaxResponseBytes < 1 || fn.Limits.MaxResponseBytes > maxDVEncodedBytes {
			return Manifest{}, fmt.Errorf("%w: fn_id %d: max_response_bytes out of [1, %d]", ErrInvalidManifest, fn.FnID, maxDVEncodedBytes)
		}
		if err := validateErrorCodes(fn.FnID, fn.ErrorCodes); err != nil {
			return Manifest{}, err
		}
		if err := validateGasFits64(fn); err != nil {
			return Manifest{}, err
		}
	}

	if err := validateNoPathCollisions(m.Functions); err != nil {
		return Manifest{}, err
	}

	return m, nil
}

func validateEffect(e Effect) error {
	switch e {
	case EffectRead, EffectEmit, EffectMutate:
		return nil
	default:
		return fmt.Errorf("%w: unknown effect %q", ErrInvalidManifest, e)
	}
}

func validateJSPath(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: js_path must have at least one segment", ErrInvalidManifest)
	}
	for _, seg := range path {
		if seg == "" || !jsPathSegment.MatchString(seg) {
			return fmt.Errorf("%w: js_path segment %q does not match [A-Za-z0-9_-]+", ErrInvalidManifest, seg)
		}
		if forbiddenSegments[seg] {
			return fmt.Errorf("%w: js_path segment %q is forbidden", ErrInvalidManifest, seg)
		}
	}
	return nil
}

// validateNoPathCollisions rejects any pair of functions whose js_path
// is a prefix of the other's — that would require installing both a
// function and a sub-object at the same property.
func validateNoPathCollisions(fns []Function) error {
	for i := range fns {
		for j := range fns {
			if i == j {
				continue
			}
			if isPathPrefix(fns[i].JSPath, fns[j].JSPath) {
				return fmt.Errorf("%w: js_path %s collides with %s", ErrInvalidManifest,
					strings.Join(fns[i].JSPath, "."), strings.Join(fns[j].JSPath, "."))
			}
		}
	}
	return nil
}

func isPathPrefix(a, b []string) bool {
	if len(a) >= len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func validateErrorCodes(fnID uint32, codes []ErrorCode) error {
	var prev string
	seen := make(map[string]bool, len(codes))
	for i, ec := range codes {
		if ec.Code == CodeHostTransport || ec.Code == CodeHostEnvelopeInvalid {
			return fmt.Errorf("%w: fn_id %d: reserved error code %q may not appear in a manifest", ErrInvalidManifest, fnID, ec.Code)
		}
		if seen[ec.Code] {
			return fmt.Errorf("%w: fn_id %d: duplicate error code %q", ErrInvalidManifest, fnID, ec.Code)
		}
		seen[ec.Code] = true
		if i > 0 && ec.Code <= prev {
			return fmt.Errorf("%w: fn_id %d: error_codes must be strictly ascending by code", ErrInvalidManifest, fnID)
		}
		prev = ec.Code
	}
	return nil
}

// validateGasFits64 checks that the worst-case charge for one call never
// overflows a 64-bit accumulator.
func validateGasFits64(fn Function) error {
	terms := []uint64{
		uint64(fn.Gas.Base),
		uint64(fn.Gas.KArgBytes) * uint64(fn.Limits.MaxRequestBytes),
		uint64(fn.Gas.KRetBytes) * uint64(fn.Limits.MaxResponseBytes),
		uint64(fn.Gas.KUnits) * uint64(fn.Limits.MaxUnits),
	}
	var total uint64
	for _, t := range terms {
		next := total + t
		if next < total {
			return fmt.Errorf("%w: fn_id %d: worst-case gas charge overflows 64 bits", ErrInvalidManifest, fn.FnID)
		}
		total = next
	}
	return nil
}

// EncodeCanonical converts a validated Manifest to its canonical DV form.
func EncodeCanonical(m Manifest, limits dv.Limits) ([]byte, error) {
	return dv.Encode(toDV(m), limits)
}

// Hash returns the lowercase hex SHA-256 digest of canonical manifest
// bytes.
func Hash(canonicalBytes []byte) string {
	sum := sha256.Sum256(canonicalBytes)
	return hex.EncodeToString(sum[:])
}

func toDV(m Manifest) dv.Value {
	fns := make([]dv.Value, len(m.Functions))
	for i, fn := range m.Functions {
		fns[i] = functionToDV(fn)
	}
	return dv.Object(
		dv.Field{Key: "abi_id", Val: dv.String(m.ABIID)},
		dv.Field{Key: "abi_version", Val: dv.Int(int64(m.ABIVersion))},
		dv.Field{Key: "functions", Val: dv.Array(fns...)},
	)
}

func functionToDV(fn Function) dv.Value {
	pathVals := make([]dv.Value, len(fn.JSPath))
	for i, seg := range fn.JSPath {
		pathVals[i] = dv.String(seg)
	}
	argVals := make([]dv.Value, len(fn.ArgSchema))
	for i, k := range fn.ArgSchema {
		argVals[i] = dv.String(string(k))
	}
	errVals := make([]dv.Value, len(fn.ErrorCodes))
	for i, ec := range fn.ErrorCodes {
		errVals[i] = dv.Object(
			dv.Field{Key: "code", Val: dv.String(ec.Code)},
			dv.Field{Key: "tag", Val: dv.String(ec.Tag)},
		)
	}

	limitFields := []dv.Field{
		{Key: "max_request_bytes", Val: dv.Int(int64(fn.Limits.MaxRequestBytes))},
		{Key: "max_response_bytes", Val: dv.Int(int64(fn.Limits.MaxResponseBytes))},
		{Key: "max_units", Val: dv.Int(int64(fn.Limits.MaxUnits))},
	}
	if fn.Limits.ArgUTF8Max != nil {
		maxVals := make([]dv.Value, len(fn.Limits.ArgUTF8Max))
		for i, v := range fn.Limits.ArgUTF8Max {
			maxVals[i] = dv.Int(int64(v))
		}
		limitFields = append(limitFields, dv.Field{Key: "arg_utf8_max", Val: dv.Array(maxVals...)})
	}

	return dv.Object(
		dv.Field{Key: "fn_id", Val: dv.Int(int64(fn.FnID))},
		dv.Field{Key: "js_path", Val: dv.Array(pathVals...)},
		dv.Field{Key: "effect", Val: dv.String(string(fn.Effect))},
		dv.Field{Key: "arity", Val: dv.Int(int64(fn.Arity))},
		dv.Field{Key: "arg_schema", Val: dv.Array(argVals...)},
		dv.Field{Key: "return_schema", Val: dv.String(string(fn.ReturnSchema))},
		dv.Field{Key: "gas", Val: dv.Object(
			dv.Field{Key: "schedule_id", Val: dv.Int(int64(fn.Gas.ScheduleID))},
			dv.Field{Key: "base", Val: dv.Int(int64(fn.Gas.Base))},
			dv.Field{Key: "k_arg_bytes", Val: dv.Int(int64(fn.Gas.KArgBytes))},
			dv.Field{Key: "k_ret_bytes", Val: dv.Int(int64(fn.Gas.KRetBytes))},
			dv.Field{Key: "k_units", Val: dv.Int(int64(fn.Gas.KUnits))},
		)},
		dv.Field{Key: "limits", Val: dv.Object(limitFields...)},
		dv.Field{Key: "error_codes", Val: dv.Array(errVals...)},
	)
}

// Lookup returns the function bound at fnID, if any.
func (m Manifest) Lookup(fnID uint32) (Function, bool) {
	for _, fn := range m.Functions {
		if fn.FnID == fnID {
			return fn, true
		}
	}
	return Function{}, false
}

// TagFor returns the declared tag for code on this function, if declared.
func (fn Function) TagFor(code string) (string, bool) {
	for _, ec := range fn.ErrorCodes {
		if ec.Code == code {
			return ec.Tag, true
		}
	}
	return "", false
}
