package vmprofile

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/probechain/detjs/dv"
)

// ContextBlob is the canonical DV input injected into every evaluation.
// Missing fields default to dv.Null() before injection.
type ContextBlob struct {
	Event          dv.Value
	EventCanonical dv.Value
	Steps          dv.Value
}

// InjectContext installs event, eventCanonical, and steps as deep-frozen
// globals.
func (p *Profile) InjectContext(blob ContextBlob) {
	p.setFrozenGlobal("event", blob.Event)
	p.setFrozenGlobal("eventCanonical", blob.EventCanonical)
	p.setFrozenGlobal("steps", blob.Steps)
}

func (p *Profile) setFrozenGlobal(name string, v dv.Value) {
	jsv := ToJS(p.rt, v)
	FreezeDeep(p.rt, jsv)
	if err := p.rt.Set(name, jsv); err != nil {
		log.Error("inject context failed", "name", name, "err", err)
		return
	}
	p.FreezeGlobal(name)
}

// InstallCanonHelpers installs canon.unwrap and canon.at, both native Go
// functions backed directly by the DV codec rather than JS glue, since
// they need the encoder/decoder's own limits and error taxonomy.
func (p *Profile) InstallCanonHelpers(limits dv.Limits) {
	rt := p.rt
	canon := rt.NewObject()
	canon.SetPrototype(nil)

	_ = canon.Set("unwrap", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		val, err := FromJS(rt, arg)
		if err != nil {
			panic(rt.NewTypeError(err.Error()))
		}
		enc, err := dv.Encode(val, limits)
		if err != nil {
			panic(rt.NewTypeError(err.Error()))
		}
		dec, err := dv.Decode(enc, limits)
		if err != nil {
			panic(rt.NewTypeError(err.Error()))
		}
		out := ToJS(rt, dec)
		FreezeDeep(rt, out)
		return out
	})

	_ = canon.Set("at", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		val, err := FromJS(rt, arg)
		if err != nil {
			panic(rt.NewTypeError(err.Error()))
		}
		pathArg := call.Argument(1)
		path, err := exportPath(rt, pathArg, limits)
		if err != nil {
			panic(rt.NewTypeError(err.Error()))
		}
		found, outcome := navigate(val, path)
		switch outcome {
		case navMissing:
			return goja.Undefined()
		case navInvalid:
			panic(rt.NewTypeError("canon.at: path segment type mismatch or index out of range"))
		}
		out := ToJS(rt, found)
		FreezeDeep(rt, out)
		return out
	})

	if err := rt.Set("canon", canon); err != nil {
		log.Error("install canon helpers failed", "err", err)
		return
	}
	p.FreezeGlobal("canon")
}

type pathSeg struct {
	key   string
	index int
	isKey bool
}

func exportPath(rt *goja.Runtime, v goja.Value, limits dv.Limits) ([]pathSeg, error) {
	exported := v.Export()
	items, ok := exported.([]interface{})
	if !ok {
		return nil, fmt.Errorf("canon.at: path must be an array")
	}
	segs := make([]pathSeg, 0, len(items))
	for _, it := range items {
		switch x := it.(type) {
		case string:
			if len(x) > limits.MaxStringBytes {
				return nil, fmt.Errorf("canon.at: path segment exceeds max string size")
			}
			segs = append(segs, pathSeg{key: x, isKey: true})
		case int64:
			if x < 0 || x > int64(limits.MaxContainerLen) {
				return nil, fmt.Errorf("canon.at: path index out of range")
			}
			segs = append(segs, pathSeg{index: int(x)})
		case int:
			segs = append(segs, pathSeg{index: x})
		case float64:
			if x != float64(int64(x)) {
				return nil, fmt.Errorf("canon.at: path index must be an integer")
			}
			segs = append(segs, pathSeg{index: int(x)})
		default:
			return nil, fmt.Errorf("canon.at: path segment must be a string or integer")
		}
	}
	return segs, nil
}

// navOutcome distinguishes a missing path element (undefined per spec)
// from a type mismatch or out-of-range index (a deterministic TypeError
// per spec) — navigate must not collapse the two into one boolean, since
// dv.Value.Get itself reports "not found" for both "not a map" and "key
// absent in a map".
type navOutcome int

const (
	navFound navOutcome = iota
	navMissing
	navInvalid
)

func navigate(v dv.Value, path []pathSeg) (dv.Value, navOutcome) {
	cur := v
	for _, seg := range path {
		if seg.isKey {
			if cur.Kind() != dv.KindMap {
				return dv.Value{}, navInvalid
			}
			next, ok := cur.Get(seg.key)
			if !ok {
				return dv.Value{}, navMissing
			}
			cur = next
			continue
		}
		arr, ok := cur.AsArray()
		if !ok {
			return dv.Value{}, navInvalid
		}
		if seg.index < 0 || seg.index >= len(arr) {
			return dv.Value{}, navInvalid
		}
		cur = arr[seg.index]
	}
	return cur, navFound
}
