package vmprofile

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/probechain/detjs/dv"
)

// ToJS projects a DV value into the runtime's object model. Maps get a
// null prototype so forbidden-key tricks (__proto__, constructor) can't
// reach Object.prototype through a decoded value.
func ToJS(rt *goja.Runtime, v dv.Value) goja.Value {
	switch v.Kind() {
	case dv.KindNull:
		return goja.Null()
	case dv.KindBool:
		b, _ := v.AsBool()
		return rt.ToValue(b)
	case dv.KindInt:
		i, _ := v.AsInt()
		return rt.ToValue(i)
	case dv.KindFloat:
		f, _ := v.AsFloat()
		return rt.ToValue(f)
	case dv.KindString:
		s, _ := v.AsString()
		return rt.ToValue(s)
	case dv.KindArray:
		elems, _ := v.AsArray()
		out := make([]interface{}, len(elems))
		for i, el := range elems {
			out[i] = ToJS(rt, el)
		}
		return rt.ToValue(out)
	case dv.KindMap:
		fields, _ := v.AsObject()
		obj := rt.NewObject()
		obj.SetPrototype(nil)
		for _, f := range fields {
			_ = obj.Set(f.Key, ToJS(rt, f.Val))
		}
		return obj
	default:
		return goja.Undefined()
	}
}

// FreezeDeep recursively locks down a value produced by ToJS: every
// object becomes non-extensible and every own property non-writable and
// non-configurable.
func FreezeDeep(rt *goja.Runtime, v goja.Value) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return
	}
	for _, key := range obj.Keys() {
		pv := obj.Get(key)
		FreezeDeep(rt, pv)
		_ = obj.DefineDataProperty(key, pv, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}
	obj.SetExtensible(false)
}

// FromJS converts an exported JS value back into DV, failing if any part
// of the value is outside the DV sum type (functions, symbols, Dates,
// etc.).
func FromJS(rt *goja.Runtime, v goja.Value) (dv.Value, error) {
	if v == nil || goja.IsUndefined(v) {
		return dv.Value{}, fmt.Errorf("dv: undefined is not DV-encodable")
	}
	if goja.IsNull(v) {
		return dv.Null(), nil
	}
	switch {
	case v.ExportType() == nil:
		return dv.Value{}, fmt.Errorf("dv: value has no export type")
	}
	exported := v.Export()
	return fromExported(rt, exported)
}

func fromExported(rt *goja.Runtime, exported interface{}) (dv.Value, error) {
	switch x := exported.(type) {
	case nil:
		return dv.Null(), nil
	case bool:
		return dv.Bool(x), nil
	case int64:
		return dv.Int(x), nil
	case int:
		return dv.Int(int64(x)), nil
	case float64:
		return dv.Float(x), nil
	case string:
		return dv.String(x), nil
	case []interface{}:
		vals := make([]dv.Value, len(x))
		for i, el := range x {
			ev, err := fromExported(rt, el)
			if err != nil {
				return dv.Value{}, err
			}
			vals[i] = ev
		}
		return dv.Array(vals...), nil
	case map[string]interface{}:
		fields := make([]dv.Field, 0, len(x))
		for k, el := range x {
			ev, err := fromExported(rt, el)
			if err != nil {
				return dv.Value{}, err
			}
			fields = append(fields, dv.Field{Key: k, Val: ev})
		}
		return dv.Object(fields...), nil
	default:
		return dv.Value{}, fmt.Errorf("dv: value of type %T is not DV-encodable", exported)
	}
}
