// Package hostcall implements the single-syscall host-call dispatcher:
// DV decode/validate of the request, routing by numeric function id,
// per-function limit enforcement, response envelope construction, and an
// optional bounded audit tape.
package hostcall

import (
	"errors"
	"sync/atomic"

	"github.com/probechain/detjs/dv"
	"github.com/probechain/detjs/manifest"
)

// Handler implements one host function's back-end. It never returns a Go
// error: every failure mode is expressed as a HandlerResult so the
// dispatcher can enforce the manifest's declared error taxonomy uniformly.
type Handler func(args []dv.Value) HandlerResult

// HandlerResult is what a Handler returns: exactly one of OK or Err is
// populated, matching the response envelope's own exclusivity rule.
type HandlerResult struct {
	HasOK      bool
	OK         dv.Value
	HasErr     bool
	ErrCode    string
	ErrDetails dv.Value
	HasDetails bool
	Units      uint32
}

// Dispatcher routes fn_id to a bound Handler and enforces every request
// and response rule around it. One Dispatcher instance belongs to exactly
// one running evaluation; it is not safe to share across concurrent
// evaluations (the reentrancy guard is per-dispatcher, not global).
//
// The dispatcher has no notion of gas: pre/post charging is the Host.v1
// wrapper's job (the runtime package), so the tape record it builds from
// an Outcome's CallInfo is completed there, not here.
type Dispatcher struct {
	m          manifest.Manifest
	bindings   map[uint32]Handler
	dvLimits   dv.Limits
	inProgress int32
}

// New creates a Dispatcher for m with the given bindings. dvLimits bounds
// every DV encode/decode the dispatcher performs.
func New(m manifest.Manifest, bindings map[uint32]Handler, dvLimits dv.Limits) *Dispatcher {
	return &Dispatcher{m: m, bindings: bindings, dvLimits: dvLimits}
}

// CallInfo describes one completed (non-sentinel) dispatch, with
// everything except the gas fields a tape record needs.
type CallInfo struct {
	FnID     uint32
	ReqLen   uint32
	RespLen  uint32
	Units    uint32
	IsError  bool
	ReqHash  string
	RespHash string
}

// Outcome is the result of one Dispatch call.
type Outcome struct {
	Sentinel bool     // fatal transport failure; no bytes produced
	Response []byte   // canonical DV-encoded response envelope
	Info     CallInfo // populated iff !Sentinel
}

// Dispatch executes one host call: fn_id identifies the bound function;
// req is the raw request bytes the engine produced. Reentrant calls (a
// Dispatch issued while another is in progress on this Dispatcher) are
// rejected with the sentinel, mirroring the wire protocol's per-dispatcher
// in-progress flag.
func (d *Dispatcher) Dispatch(fnID uint32, req []byte) Outcome {
	if !atomic.CompareAndSwapInt32(&d.inProgress, 0, 1) {
		return Outcome{Sentinel: true}
	}
	defer atomic.StoreInt32(&d.inProgress, 0)

	fn, ok := d.m.Lookup(fnID)
	if !ok {
		return Outcome{Sentinel: true}
	}
	binding, ok := d.bindings[fnID]
	if !ok {
		return Outcome{Sentinel: true}
	}

	if len(req) > int(fn.Limits.MaxRequestBytes) {
		if env, ok := d.limitExceededEnvelope(fn); ok {
			return Outcome{Response: env, Info: CallInfo{
				FnID:     fn.FnID,
				ReqLen:   uint32(len(req)),
				RespLen:  uint32(len(env)),
				IsError:  true,
				ReqHash:  sha256Hex(req),
				RespHash: sha256Hex(env),
			}}
		}
		return Outcome{Sentinel: true}
	}

	reqLimits := d.dvLimits
	if int(fn.Limits.MaxRequestBytes) < reqLimits.MaxEncodedBytes {
		reqLimits.MaxEncodedBytes = int(fn.Limits.MaxRequestBytes)
	}
	reqVal, err := dv.Decode(req, reqLimits)
	if err != nil {
		return Outcome{Sentinel: true}
	}
	args, ok := reqVal.AsArray()
	if !ok || len(args) != int(fn.Arity) {
		return Outcome{Sentinel: true}
	}
	if err := checkArgUTF8(fn, args); err != nil {
		return Outcome{Sentinel: true}
	}

	result := binding(args)

	resp, info, ok, sizeExceeded := d.buildResponse(fn, result, req)
	if !ok {
		if env, ok := d.limitExceededEnvelope(fn); sizeExceeded && ok {
			resp = env
			info = CallInfo{
				FnID:     fn.FnID,
				ReqLen:   uint32(len(req)),
				RespLen:  uint32(len(env)),
				IsError:  true,
				ReqHash:  sha256Hex(req),
				RespHash: sha256Hex(env),
			}
		} else {
			return Outcome{Sentinel: true}
		}
	}
	return Outcome{Response: resp, Info: info}
}

func checkArgUTF8(fn manifest.Function, args []dv.Value) error {
	if fn.Limits.ArgUTF8Max == nil {
		return nil
	}
	for i, max := range fn.Limits.ArgUTF8Max {
		if max == 0 {
			continue
		}
		s, ok := args[i].AsString()
		if !ok {
			continue
		}
		if uint32(len(s)) > max {
			return errArgTooLong
		}
	}
	return nil
}

// buildResponse validates result and encodes its envelope. The fourth
// result reports whether a failure was a size-class encode error, the only
// case the caller may answer with the declared LIMIT_EXCEEDED envelope.
func (d *Dispatcher) buildResponse(fn manifest.Function, result HandlerResult, req []byte) ([]byte, CallInfo, bool, bool) {
	respLimits := d.dvLimits
	if int(fn.Limits.MaxResponseBytes) < respLimits.MaxEncodedBytes {
		respLimits.MaxEncodedBytes = int(fn.Limits.MaxResponseBytes)
	}
	units := result.Units
	if units > fn.Limits.MaxUnits {
		units = fn.Limits.MaxUnits
	}

	var envelope dv.Value
	isError := false
	switch {
	case result.HasOK && !result.HasErr:
		if fn.ReturnSchema == manifest.ArgNull && !result.OK.IsNull() {
			return nil, CallInfo{}, false, false
		}
		envelope = dv.Object(
			dv.Field{Key: "ok", Val: result.OK},
			dv.Field{Key: "units", Val: dv.Int(int64(units))},
		)
	case result.HasErr && !result.HasOK:
		if _, declared := fn.TagFor(result.ErrCode); !declared {
			return nil, CallInfo{}, false, false
		}
		errFields := []dv.Field{{Key: "code", Val: dv.String(result.ErrCode)}}
		if result.HasDetails {
			errFields = append(errFields, dv.Field{Key: "details", Val: result.ErrDetails})
		}
		envelope = dv.Object(
			dv.Field{Key: "err", Val: dv.Object(errFields...)},
			dv.Field{Key: "units", Val: dv.Int(int64(units))},
		)
		isError = true
	default:
		return nil, CallInfo{}, false, false
	}

	encoded, err := dv.Encode(envelope, respLimits)
	if err != nil {
		var dverr *dv.Error
		sizeClass := errors.As(err, &dverr) && (dverr.Code == dv.CodeEncodedTooLarge ||
			dverr.Code == dv.CodeStringTooLong || dverr.Code == dv.CodeArrayTooLong || dverr.Code == dv.CodeMapTooLong)
		return nil, CallInfo{}, false, sizeClass
	}

	info := CallInfo{
		FnID:     fn.FnID,
		ReqLen:   uint32(len(req)),
		RespLen:  uint32(len(encoded)),
		Units:    units,
		IsError:  isError,
		ReqHash:  sha256Hex(req),
		RespHash: sha256Hex(encoded),
	}
	return encoded, info, true, false
}

// limitExceededEnvelope builds the declared LIMIT_EXCEEDED envelope for
// fn, if the manifest declares that code; otherwise reports !ok so the
// caller falls back to the sentinel.
func (d *Dispatcher) limitExceededEnvelope(fn manifest.Function) ([]byte, bool) {
	tag, declared := fn.TagFor(codeLimitExceeded)
	if !declared {
		return nil, false
	}
	envelope := dv.Object(
		dv.Field{Key: "err", Val: dv.Object(
			dv.Field{Key: "code", Val: dv.String(codeLimitExceeded)},
			dv.Field{Key: "details", Val: dv.String(tag)},
		)},
		dv.Field{Key: "units", Val: dv.Int(0)},
	)
	encoded, err := dv.Encode(envelope, d.dvLimits)
	if err != nil {
		return nil, false
	}
	return encoded, true
}

const codeLimitExceeded = "LIMIT_EXCEEDED"
