package evaluator

import (
	"strconv"

	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// getProp implements the abstract [[Get]] used by member access, for-in,
// spread, and destructuring: host-adapted objects route through their
// barrier-installed HostAdapter, plain objects walk the prototype chain
// and invoke accessor getters, arrays expose a reactive `length`, and
// strings/functions expose their synthesized well-known properties.
func (ev *Evaluator) getProp(fr *frame, obj value.Value, key string) (value.Value, error) {
	switch obj.Tag() {
	case value.TagObject:
		o := obj.Object()
		if o.Host != nil {
			v, err := o.Host.Get(key)
			if err != nil {
				return value.Undefined, err
			}
			return v, nil
		}
		if o.Class == value.ClassArray && key == "length" {
			return value.Number(float64(o.ArrayLength)), nil
		}
		if p, owner := o.Lookup(key); p != nil {
			if p.IsAccessor {
				if p.Getter == nil {
					return value.Undefined, nil
				}
				return ev.callFunction(fr, p.Getter, obj, nil)
			}
			_ = owner
			return p.Value, nil
		}
		return arrayLikeBuiltin(ev, fr, obj, key)
	case value.TagFunction:
		return ev.getFunctionProp(fr, obj.Function(), key)
	case value.TagString:
		return stringProp(obj.Str(), key), nil
	case value.TagUndefined, value.TagNull:
		return value.Undefined, throwErr(errmodel.TypeError, "Cannot read properties of %s (reading '%s')", value.ToString(obj), key)
	default:
		return value.Undefined, nil
	}
}

func (ev *Evaluator) getFunctionProp(fr *frame, f *value.Function, key string) (value.Value, error) {
	switch key {
	case "name":
		return value.String(f.Name), nil
	case "length":
		return value.Number(float64(f.ParamCount)), nil
	case "prototype":
		if f.Proto == nil {
			return value.Undefined, nil
		}
		return value.ObjectValue(f.Proto), nil
	}
	if f.Props != nil {
		if p, _ := f.Props.Lookup(key); p != nil {
			if p.IsAccessor {
				if p.Getter == nil {
					return value.Undefined, nil
				}
				return ev.callFunction(fr, p.Getter, value.FunctionValue(f), nil)
			}
			return p.Value, nil
		}
	}
	return arrayLikeBuiltin(ev, fr, value.FunctionValue(f), key)
}

func stringProp(s string, key string) value.Value {
	if key == "length" {
		return value.Number(float64(len([]rune(s))))
	}
	if idx, err := strconv.Atoi(key); err == nil {
		runes := []rune(s)
		if idx >= 0 && idx < len(runes) {
			return value.String(string(runes[idx]))
		}
		return value.Undefined
	}
	return value.Undefined
}

// setProp implements the abstract [[Set]].
func (ev *Evaluator) setProp(fr *frame, obj value.Value, key string, v value.Value) error {
	switch obj.Tag() {
	case value.TagObject:
		o := obj.Object()
		if o.Host != nil {
			return o.Host.Set(key, v)
		}
		if o.Frozen {
			return nil // strict-mode throw is intentionally not modeled; sandbox scripts always run loose
		}
		if o.Class == value.ClassArray && key == "length" {
			n := uint32(value.ToNumber(v))
			o.SetLength(n)
			return nil
		}
		if p, owner := o.Lookup(key); p != nil && p.IsAccessor {
			if p.Setter == nil {
				return nil
			}
			_, err := ev.callFunction(fr, p.Setter, obj, []value.Value{v})
			return err
		} else if p != nil && owner == o && !p.Writable {
			return nil
		}
		o.DefineOwn(key, &value.Property{Value: v, Writable: true, Enumerable: !isPrivateKey(key), Configurable: true})
		return nil
	case value.TagFunction:
		f := obj.Function()
		if key == "prototype" {
			if v.IsObject() {
				f.Proto = v.Object()
			}
			return nil
		}
		if f.Props == nil {
			f.Props = value.NewObject(ev.realm.objectProto)
		}
		f.Props.DefineOwn(key, &value.Property{Value: v, Writable: true, Enumerable: true, Configurable: true})
		return nil
	default:
		return nil // primitives silently discard property writes
	}
}

func (ev *Evaluator) deleteProp(obj value.Value, key string) (bool, error) {
	if !obj.IsObject() {
		return true, nil
	}
	o := obj.Object()
	if o.Host != nil {
		if err := o.Host.Delete(key); err != nil {
			return false, err
		}
		return true, nil
	}
	return o.Delete(key), nil
}

func isPrivateKey(key string) bool { return len(key) > 0 && key[0] == '#' }

// hasProp implements the `in` operator and for-in/for-of membership
// checks (own or inherited).
func (ev *Evaluator) hasProp(obj value.Value, key string) bool {
	if !obj.IsObject() {
		return false
	}
	o := obj.Object()
	if o.Host != nil {
		for _, k := range o.Host.OwnKeys() {
			if k == key {
				return true
			}
		}
		return false
	}
	if o.Class == value.ClassArray && key == "length" {
		return true
	}
	p, _ := o.Lookup(key)
	return p != nil
}
