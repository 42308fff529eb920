package vmprofile

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/probechain/detjs/dv"
	"github.com/probechain/detjs/gas"
	"github.com/probechain/detjs/hostcall"
	"github.com/probechain/detjs/manifest"
)

// InstallHostV1 walks m's functions and installs a JS wrapper at each
// declared js_path under a frozen Host.v1 namespace, implementing the
// Host.v1 wrapper contract of spec.md §4.6: arity and per-arg UTF-8
// checks, DV-encoding the call as a request array, pre-charging gas,
// dispatching through disp, post-charging gas, and projecting the
// decoded response or throwing a HostError. meter and dvLimits are
// shared with the rest of the evaluation; tape may be nil to disable
// audit recording.
func (p *Profile) InstallHostV1(m manifest.Manifest, disp *hostcall.Dispatcher, meter *gas.Meter, tape *hostcall.Tape, dvLimits dv.Limits) error {
	rt := p.rt
	host := rt.NewObject()
	host.SetPrototype(nil)
	v1 := rt.NewObject()
	v1.SetPrototype(nil)
	if err := host.Set("v1", v1); err != nil {
		return err
	}
	if err := rt.Set("Host", host); err != nil {
		return err
	}

	for _, fn := range m.Functions {
		fn := fn
		wrapper := p.buildHostWrapper(fn, disp, meter, tape, dvLimits)
		if err := installAtPath(rt, v1, fn.JSPath, wrapper); err != nil {
			return fmt.Errorf("vmprofile: install %s: %w", strings.Join(fn.JSPath, "."), err)
		}
	}

	FreezeDeep(rt, host)
	p.FreezeGlobal("Host")
	return nil
}

// installAtPath creates intermediate null-prototype objects for every
// segment but the last and sets fn at the leaf. Manifest validation
// already rejects any pair of js_paths in a prefix relation, so a
// segment is always either wholly new or an existing namespace object.
func installAtPath(rt *goja.Runtime, root *goja.Object, path []string, fn func(goja.FunctionCall) goja.Value) error {
	obj := root
	for i, seg := range path {
		if i == len(path)-1 {
			return obj.Set(seg, fn)
		}
		child := obj.Get(seg)
		if child == nil || goja.IsUndefined(child) {
			next := rt.NewObject()
			next.SetPrototype(nil)
			if err := obj.Set(seg, next); err != nil {
				return err
			}
			obj = next
		} else {
			obj = child.ToObject(rt)
		}
	}
	return nil
}

// buildHostWrapper returns the native function installed at fn.JSPath.
func (p *Profile) buildHostWrapper(fn manifest.Function, disp *hostcall.Dispatcher, meter *gas.Meter, tape *hostcall.Tape, dvLimits dv.Limits) func(goja.FunctionCall) goja.Value {
	rt := p.rt
	path := strings.Join(fn.JSPath, ".")

	return func(call goja.FunctionCall) goja.Value {
		// 1. arity and per-arg UTF-8 checks; DV-encode arguments.
		if len(call.Arguments) != int(fn.Arity) {
			panic(rt.NewTypeError(fmt.Sprintf("%s: expected %d argument(s), got %d", path, fn.Arity, len(call.Arguments))))
		}
		args := make([]dv.Value, fn.Arity)
		for i, jsArg := range call.Arguments {
			val, err := FromJS(rt, jsArg)
			if err != nil {
				panic(rt.NewTypeError(fmt.Sprintf("%s: argument %d: %s", path, i, err.Error())))
			}
			if fn.ArgSchema[i] == manifest.ArgString {
				s, ok := val.AsString()
				if !ok {
					panic(rt.NewTypeError(fmt.Sprintf("%s: argument %d must be a string", path, i)))
				}
				if max := argUTF8Max(fn, i); max > 0 && uint32(len(s)) > max {
					panic(rt.NewTypeError(fmt.Sprintf("%s: argument %d exceeds max UTF-8 length", path, i)))
				}
			}
			args[i] = val
		}

		reqLimits := clampLimits(dvLimits, fn.Limits.MaxRequestBytes)
		reqBytes, err := dv.Encode(dv.Array(args...), reqLimits)
		if err != nil {
			p.throwHostError(hostcall.ErrEnvelopeInvalid())
		}

		// 2-3. pre-charge: base + k_arg_bytes * request length.
		gasPre := uint64(fn.Gas.Base) + uint64(fn.Gas.KArgBytes)*uint64(len(reqBytes))
		if cerr := meter.ChargeRaw(gasPre); cerr != nil {
			panic(cerr)
		}

		// 4. dispatch.
		outcome := disp.Dispatch(fn.FnID, reqBytes)
		if outcome.Sentinel {
			p.throwHostError(hostcall.ErrTransport())
		}

		// 5. decode and structurally validate the response envelope.
		respLimits := clampLimits(dvLimits, fn.Limits.MaxResponseBytes)
		envVal, decErr := dv.Decode(outcome.Response, respLimits)
		if decErr != nil {
			p.throwHostError(hostcall.ErrEnvelopeInvalid())
		}
		okVal, hasOK := envVal.Get("ok")
		errVal, hasErr := envVal.Get("err")
		if hasOK == hasErr {
			p.throwHostError(hostcall.ErrEnvelopeInvalid())
		}
		if hasErr {
			codeVal, _ := errVal.Get("code")
			code, _ := codeVal.AsString()
			if _, declared := fn.TagFor(code); !declared {
				p.throwHostError(hostcall.ErrEnvelopeInvalid())
			}
		}

		// 6. post-charge: k_ret_bytes * response length + k_units * units.
		gasPost := uint64(fn.Gas.KRetBytes)*uint64(len(outcome.Response)) + uint64(fn.Gas.KUnits)*uint64(outcome.Info.Units)
		chargeErr := meter.ChargeRaw(gasPost)
		if tape != nil {
			tape.Append(hostcall.TapeRecord{
				FnID:         fn.FnID,
				ReqLen:       outcome.Info.ReqLen,
				RespLen:      outcome.Info.RespLen,
				Units:        outcome.Info.Units,
				GasPre:       gasPre,
				GasPost:      gasPost,
				IsError:      outcome.Info.IsError,
				ChargeFailed: chargeErr != nil,
				ReqHash:      outcome.Info.ReqHash,
				RespHash:     outcome.Info.RespHash,
			})
		}
		meter.Checkpoint()
		if chargeErr != nil {
			panic(chargeErr)
		}

		// 7. project ok, or throw the manifest-mapped HostError.
		switch {
		case hasOK && !hasErr:
			out := ToJS(rt, okVal)
			FreezeDeep(rt, out)
			return out
		case hasErr && !hasOK:
			codeVal, _ := errVal.Get("code")
			code, _ := codeVal.AsString()
			tag, declared := fn.TagFor(code)
			if !declared {
				p.throwHostError(hostcall.ErrEnvelopeInvalid())
			}
			herr := &hostcall.Error{Code: code, Tag: tag}
			if details, ok := errVal.Get("details"); ok {
				herr.Details = &details
			}
			p.throwHostError(herr)
		default:
			p.throwHostError(hostcall.ErrEnvelopeInvalid())
		}
		panic("vmprofile: unreachable")
	}
}

func clampLimits(base dv.Limits, maxBytes uint32) dv.Limits {
	if int(maxBytes) < base.MaxEncodedBytes {
		base.MaxEncodedBytes = int(maxBytes)
	}
	return base
}

func argUTF8Max(fn manifest.Function, i int) uint32 {
	if fn.Limits.ArgUTF8Max == nil || i >= len(fn.Limits.ArgUTF8Max) {
		return 0
	}
	return fn.Limits.ArgUTF8Max[i]
}

// throwHostError builds a catchable JS Error carrying code/tag/details and
// panics with it. Unlike an OutOfGas panic, this is a goja.Value, so it is
// caught by a JS try/catch exactly like any other thrown Error, and by
// goja's RunProgram as a *goja.Exception if uncaught.
func (p *Profile) throwHostError(herr *hostcall.Error) {
	rt := p.rt
	obj := rt.NewGoError(herr)
	_ = obj.Set("code", herr.Code)
	_ = obj.Set("tag", herr.Tag)
	if herr.Details != nil {
		_ = obj.Set("details", ToJS(rt, *herr.Details))
	}
	panic(obj)
}
