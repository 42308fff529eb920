// Package vmprofile configures a goja.Runtime into the deterministic JS
// surface the evaluator requires: a fixed set of enabled foundations,
// stubbed globals that throw stable errors, globals removed outright, and
// frozen ergonomic helpers installed before any user code runs.
package vmprofile

import (
	"github.com/dop251/goja"

	"github.com/probechain/detjs/gas"
	"github.com/probechain/detjs/internal/detlog"
)

var log = detlog.Root.With("vmprofile")

// Profile owns the configured runtime. It is created fresh per evaluation;
// nothing here is process-global or reused across contexts.
type Profile struct {
	rt    *goja.Runtime
	meter *gas.Meter
}

// New configures a brand-new goja.Runtime into the deterministic profile
// and returns it wrapped. No user code has run at this point.
func New() *Profile {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.UncapFieldNameMapper())
	// A constant source guards against any native call path (e.g. engine
	// internals hashing an object's own iteration order) that might
	// otherwise consult a real RNG; Math.random itself is also stubbed
	// below, so this is belt-and-suspenders determinism.
	rt.SetRandSource(func() float64 { return 1 })

	p := &Profile{rt: rt}
	p.removeGlobals()
	p.stubGlobals()
	return p
}

// Runtime returns the underlying goja runtime for wrapper installation.
func (p *Profile) Runtime() *goja.Runtime { return p.rt }

// removedGlobals must read back as "undefined" via typeof; there is no
// constructor, no stub, nothing at all.
var removedGlobals = []string{
	"Date",
	"setTimeout",
	"setInterval",
	"queueMicrotask",
}

func (p *Profile) removeGlobals() {
	g := p.rt.GlobalObject()
	for _, name := range removedGlobals {
		g.Delete(name)
	}
}

// stubSpec is one disabled global and the fixed message it throws.
type stubSpec struct {
	path    []string // dotted path, e.g. ["console", "log"]
	message string
}

var stubSpecs = []stubSpec{
	{[]string{"eval"}, "eval is disabled in deterministic mode"},
	{[]string{"Function"}, "Function constructor is disabled in deterministic mode"},
	{[]string{"RegExp"}, "RegExp is disabled in deterministic mode"},
	{[]string{"Proxy"}, "Proxy is disabled in deterministic mode"},
	{[]string{"Promise"}, "Promise is disabled in deterministic mode"},
	{[]string{"ArrayBuffer"}, "ArrayBuffer is disabled in deterministic mode"},
	{[]string{"SharedArrayBuffer"}, "SharedArrayBuffer is disabled in deterministic mode"},
	{[]string{"DataView"}, "DataView is disabled in deterministic mode"},
	{[]string{"Int8Array"}, "typed arrays are disabled in deterministic mode"},
	{[]string{"Uint8Array"}, "typed arrays are disabled in deterministic mode"},
	{[]string{"Uint8ClampedArray"}, "typed arrays are disabled in deterministic mode"},
	{[]string{"Int16Array"}, "typed arrays are disabled in deterministic mode"},
	{[]string{"Uint16Array"}, "typed arrays are disabled in deterministic mode"},
	{[]string{"Int32Array"}, "typed arrays are disabled in deterministic mode"},
	{[]string{"Uint32Array"}, "typed arrays are disabled in deterministic mode"},
	{[]string{"Float32Array"}, "typed arrays are disabled in deterministic mode"},
	{[]string{"Float64Array"}, "typed arrays are disabled in deterministic mode"},
	{[]string{"BigInt64Array"}, "typed arrays are disabled in deterministic mode"},
	{[]string{"BigUint64Array"}, "typed arrays are disabled in deterministic mode"},
	{[]string{"Atomics"}, "Atomics is disabled in deterministic mode"},
	{[]string{"WebAssembly"}, "WebAssembly is disabled in deterministic mode"},
	{[]string{"print"}, "print is disabled in deterministic mode"},
	{[]string{"console", "log"}, "console.log is disabled in deterministic mode"},
	{[]string{"console", "info"}, "console.info is disabled in deterministic mode"},
	{[]string{"console", "warn"}, "console.warn is disabled in deterministic mode"},
	{[]string{"console", "error"}, "console.error is disabled in deterministic mode"},
	{[]string{"console", "debug"}, "console.debug is disabled in deterministic mode"},
	{[]string{"JSON", "parse"}, "JSON.parse is disabled in deterministic mode"},
	{[]string{"JSON", "stringify"}, "JSON.stringify is disabled in deterministic mode"},
	{[]string{"Array", "prototype", "sort"}, "Array.prototype.sort is disabled in deterministic mode"},
	{[]string{"Math", "random"}, "Math.random is disabled in deterministic mode"},
}

func (p *Profile) stubGlobals() {
	rt := p.rt
	for _, spec := range stubSpecs {
		spec := spec
		if spec.path[0] == "console" {
			continue // the whole console object is replaced by installConsole below
		}
		thrower := func(call goja.FunctionCall) goja.Value {
			panic(rt.NewTypeError(spec.message))
		}
		if len(spec.path) == 1 {
			if err := rt.Set(spec.path[0], thrower); err != nil {
				log.Error("stub global failed", "path", spec.path[0], "err", err)
			}
			if spec.path[0] == "Function" {
				// The global binding is now unreachable, but every function
				// value still carries the real Function.prototype in its
				// chain, and Function.prototype.constructor is the real
				// constructor. Poison it too, or
				// (function(){}).constructor("...") reaches the constructor
				// without ever naming "Function".
				if fnObj, ok := rt.Get("Function").(*goja.Object); ok {
					if proto := fnObj.Prototype(); proto != nil {
						_ = proto.Set("constructor", thrower)
					}
				}
			}
			continue
		}
		p.stubNested(spec.path, thrower)
	}
	p.installConsole()
}

// stubNested installs thrower at a dotted path under an existing parent
// object (console.log, JSON.parse, Array.prototype.sort, Math.random).
func (p *Profile) stubNested(path []string, thrower func(goja.FunctionCall) goja.Value) {
	parentName := path[0]
	leaf := path[len(path)-1]
	mid := path[1 : len(path)-1]

	parentVal := p.rt.Get(parentName)
	if parentVal == nil {
		return
	}
	obj := parentVal.ToObject(p.rt)
	for _, seg := range mid {
		next := obj.Get(seg)
		if next == nil {
			return
		}
		obj = next.ToObject(p.rt)
	}
	if err := obj.Set(leaf, thrower); err != nil {
		log.Error("stub nested global failed", "path", joinPath(path), "err", err)
	}
}

// installConsole replaces the console global with a null-prototype object
// exposing only the disabled methods, matching the deterministic profile's
// requirement that console carry no other surface.
func (p *Profile) installConsole() {
	rt := p.rt
	c := rt.NewObject()
	c.SetPrototype(nil)
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		name := name
		thrower := func(call goja.FunctionCall) goja.Value {
			panic(rt.NewTypeError("console." + name + " is disabled in deterministic mode"))
		}
		_ = c.Set(name, thrower)
	}
	if err := rt.Set("console", c); err != nil {
		log.Error("install console failed", "err", err)
	}
}

func joinPath(path []string) string {
	out := path[0]
	for _, seg := range path[1:] {
		out += "." + seg
	}
	return out
}

// FreezeGlobal makes name non-extensible, non-writable, non-configurable
// at the top level, matching the immutability requirement for Host,
// Host.v1, and the ergonomic globals (document, canon).
func (p *Profile) FreezeGlobal(name string) {
	v := p.rt.Get(name)
	if v == nil {
		return
	}
	g := p.rt.GlobalObject()
	if err := g.DefineDataProperty(name, v, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		log.Error("freeze global failed", "name", name, "err", err)
	}
	if obj := v.ToObject(p.rt); obj != nil {
		obj.SetExtensible(false)
		for _, key := range obj.Keys() {
			pv := obj.Get(key)
			_ = obj.DefineDataProperty(key, pv, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)
		}
	}
}
