package vmprofile

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/probechain/detjs/gas"
)

// meteredArrayMethods names every Array.prototype builtin spec.md §4.4
// item 2 meters. Typed-array counterparts are not installed since typed
// arrays are stubbed out of the deterministic profile entirely.
var meteredArrayMethods = []string{
	"map", "filter", "forEach", "some", "every", "reduce", "reduceRight",
}

// AttachMeter wires m into the profile and replaces goja's built-in
// Array.prototype.{map,filter,forEach,some,every,reduce,reduceRight} with
// native reimplementations that charge the canonical per-entry and
// per-element gas costs before the property lookup or callback
// invocation, as spec.md §4.4 item 2 requires. No allocation is charged:
// nothing in this package calls m.ChargeAlloc, including the DV<->JS
// conversions the profile itself performs.
func (p *Profile) AttachMeter(m *gas.Meter) error {
	p.meter = m
	rt := p.rt

	arrayV := rt.Get("Array")
	if arrayV == nil {
		return errMissingGlobal("Array")
	}
	protoV := arrayV.ToObject(rt).Get("prototype")
	if protoV == nil {
		return errMissingGlobal("Array.prototype")
	}
	proto := protoV.ToObject(rt)

	installs := map[string]func(goja.FunctionCall) goja.Value{
		"map":         p.meteredMap,
		"filter":      p.meteredFilter,
		"forEach":     p.meteredForEach,
		"some":        p.meteredSome,
		"every":       p.meteredEvery,
		"reduce":      p.meteredReduce,
		"reduceRight": p.meteredReduceRight,
	}
	for _, name := range meteredArrayMethods {
		if err := proto.Set(name, installs[name]); err != nil {
			return err
		}
	}
	return nil
}

func errMissingGlobal(name string) error {
	return &missingGlobalError{name: name}
}

type missingGlobalError struct{ name string }

func (e *missingGlobalError) Error() string { return "vmprofile: missing global " + e.name }

// chargeEntry charges the fixed entry cost of a metered builtin. A charge
// failure panics with *gas.OutOfGas directly (not wrapped as a goja
// value), which is deliberate: goja's try/catch machinery and RunProgram
// only special-case panics matching its own exception/value types, so a
// plain Go error panic is never caught as a catchable JS exception and
// propagates, uninterrupted, to the evaluator's own top-level recover.
func (p *Profile) chargeEntry() {
	if err := p.meter.ChargeBuiltinEntry(); err != nil {
		panic(err)
	}
}

func (p *Profile) chargeElement() {
	if err := p.meter.ChargeBuiltinElement(); err != nil {
		panic(err)
	}
}

// callbackArg extracts the first argument as a callable and the optional
// thisArg (second argument), matching the Array iteration method shape.
func callbackArg(rt *goja.Runtime, call goja.FunctionCall) (goja.Callable, goja.Value) {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(rt.NewTypeError("callback is not a function"))
	}
	return fn, call.Argument(1)
}

// invoke calls fn, re-throwing a JS-level exception as the original thrown
// value (so an enclosing try/catch still sees it) rather than as a Go
// error. A panic raised from inside the callback (e.g. a nested OutOfGas)
// is never observed here: it propagates straight through this Go call
// frame before invoke's own return path is reached.
func invoke(rt *goja.Runtime, fn goja.Callable, this goja.Value, args ...goja.Value) goja.Value {
	res, err := fn(this, args...)
	if err != nil {
		if exc, ok := err.(*goja.Exception); ok {
			panic(exc.Value())
		}
		panic(rt.NewGoError(err))
	}
	return res
}

func arrayLength(rt *goja.Runtime, obj *goja.Object) int {
	return int(obj.Get("length").ToInteger())
}

func (p *Profile) meteredMap(call goja.FunctionCall) goja.Value {
	rt := p.rt
	obj := call.This.ToObject(rt)
	fn, thisArg := callbackArg(rt, call)
	length := arrayLength(rt, obj)

	p.chargeEntry()
	out := make([]interface{}, length)
	for i := 0; i < length; i++ {
		p.chargeElement()
		key := strconv.Itoa(i)
		val := obj.Get(key)
		if val == nil {
			continue
		}
		out[i] = invoke(rt, fn, thisArg, val, rt.ToValue(i), obj)
	}
	return rt.ToValue(out)
}

func (p *Profile) meteredFilter(call goja.FunctionCall) goja.Value {
	rt := p.rt
	obj := call.This.ToObject(rt)
	fn, thisArg := callbackArg(rt, call)
	length := arrayLength(rt, obj)

	p.chargeEntry()
	out := make([]interface{}, 0, length)
	for i := 0; i < length; i++ {
		p.chargeElement()
		key := strconv.Itoa(i)
		val := obj.Get(key)
		if val == nil {
			continue
		}
		keep := invoke(rt, fn, thisArg, val, rt.ToValue(i), obj)
		if keep.ToBoolean() {
			out = append(out, val)
		}
	}
	return rt.ToValue(out)
}

func (p *Profile) meteredForEach(call goja.FunctionCall) goja.Value {
	rt := p.rt
	obj := call.This.ToObject(rt)
	fn, thisArg := callbackArg(rt, call)
	length := arrayLength(rt, obj)

	p.chargeEntry()
	for i := 0; i < length; i++ {
		p.chargeElement()
		key := strconv.Itoa(i)
		val := obj.Get(key)
		if val == nil {
			continue
		}
		invoke(rt, fn, thisArg, val, rt.ToValue(i), obj)
	}
	return goja.Undefined()
}

func (p *Profile) meteredSome(call goja.FunctionCall) goja.Value {
	rt := p.rt
	obj := call.This.ToObject(rt)
	fn, thisArg := callbackArg(rt, call)
	length := arrayLength(rt, obj)

	p.chargeEntry()
	for i := 0; i < length; i++ {
		p.chargeElement()
		key := strconv.Itoa(i)
		val := obj.Get(key)
		if val == nil {
			continue
		}
		if invoke(rt, fn, thisArg, val, rt.ToValue(i), obj).ToBoolean() {
			return rt.ToValue(true)
		}
	}
	return rt.ToValue(false)
}

func (p *Profile) meteredEvery(call goja.FunctionCall) goja.Value {
	rt := p.rt
	obj := call.This.ToObject(rt)
	fn, thisArg := callbackArg(rt, call)
	length := arrayLength(rt, obj)

	p.chargeEntry()
	for i := 0; i < length; i++ {
		p.chargeElement()
		key := strconv.Itoa(i)
		val := obj.Get(key)
		if val == nil {
			continue
		}
		if !invoke(rt, fn, thisArg, val, rt.ToValue(i), obj).ToBoolean() {
			return rt.ToValue(false)
		}
	}
	return rt.ToValue(true)
}

func (p *Profile) meteredReduce(call goja.FunctionCall) goja.Value {
	return p.meteredReduceDir(call, false)
}

func (p *Profile) meteredReduceRight(call goja.FunctionCall) goja.Value {
	return p.meteredReduceDir(call, true)
}

func (p *Profile) meteredReduceDir(call goja.FunctionCall, reverse bool) goja.Value {
	rt := p.rt
	obj := call.This.ToObject(rt)
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(rt.NewTypeError("callback is not a function"))
	}
	length := arrayLength(rt, obj)

	p.chargeEntry()

	var acc goja.Value
	haveAcc := false
	if len(call.Arguments) > 1 {
		acc = call.Argument(1)
		haveAcc = true
	}

	indices := make([]int, length)
	for i := range indices {
		if reverse {
			indices[i] = length - 1 - i
		} else {
			indices[i] = i
		}
	}

	for _, i := range indices {
		p.chargeElement()
		key := strconv.Itoa(i)
		val := obj.Get(key)
		if val == nil {
			continue
		}
		if !haveAcc {
			acc = val
			haveAcc = true
			continue
		}
		acc = invoke(rt, fn, goja.Undefined(), acc, val, rt.ToValue(i), obj)
	}
	if !haveAcc {
		panic(rt.NewTypeError("Reduce of empty array with no initial value"))
	}
	return acc
}
