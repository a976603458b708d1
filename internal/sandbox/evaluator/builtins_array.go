package evaluator

import (
	"sort"

	"github.com/grafana/jsvm/internal/sandbox/value"
)

// arrayLikeBuiltin supplies the Array.prototype method surface (and
// Function call/apply/bind) on property-miss; strings get no methods: rather than pre-populating a prototype object with
// hundreds of host-adapted Function values, each array/function method
// is synthesized lazily by name, grounded on the teacher's
// js/common.FieldNameMapper idea of "resolve at access time" but
// applied to intrinsics instead of host reflection.
func arrayLikeBuiltin(ev *Evaluator, fr *frame, recv value.Value, key string) (value.Value, error) {
	if recv.IsObject() && recv.Object().Class == value.ClassArray {
		if fn := arrayMethod(ev, key); fn != nil {
			return value.FunctionValue(fn), nil
		}
		return value.Undefined, nil
	}
	if recv.IsFunction() {
		if key == "call" || key == "apply" || key == "bind" {
			return value.FunctionValue(functionMethod(ev, recv.Function(), key)), nil
		}
	}
	return value.Undefined, nil
}

func arrItems(o *value.Object) []value.Value {
	out := make([]value.Value, o.ArrayLength)
	for i := range out {
		if p := o.GetOwn(itoa(i)); p != nil {
			out[i] = p.Value
		} else {
			out[i] = value.Undefined
		}
	}
	return out
}

func arrayMethod(ev *Evaluator, key string) *value.Function {
	native := func(name string, call value.CallFunc) *value.Function {
		return &value.Function{Name: name, Kind: value.KindHostAdapted, Call: call}
	}
	switch key {
	case "push":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			o := this.Object()
			items := arrItems(o)
			items = append(items, args...)
			rebuildArray(o, items)
			return value.Number(float64(len(items))), nil
		})
	case "pop":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			o := this.Object()
			items := arrItems(o)
			if len(items) == 0 {
				return value.Undefined, nil
			}
			last := items[len(items)-1]
			rebuildArray(o, items[:len(items)-1])
			return last, nil
		})
	case "shift":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			o := this.Object()
			items := arrItems(o)
			if len(items) == 0 {
				return value.Undefined, nil
			}
			first := items[0]
			rebuildArray(o, items[1:])
			return first, nil
		})
	case "unshift":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			o := this.Object()
			items := append(append([]value.Value{}, args...), arrItems(o)...)
			rebuildArray(o, items)
			return value.Number(float64(len(items))), nil
		})
	case "slice":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			items := arrItems(this.Object())
			start, end := sliceBounds(args, len(items))
			return ev.newArray(append([]value.Value{}, items[start:end]...)), nil
		})
	case "concat":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			items := append([]value.Value{}, arrItems(this.Object())...)
			for _, a := range args {
				if a.IsObject() && a.Object().Class == value.ClassArray {
					items = append(items, arrItems(a.Object())...)
				} else {
					items = append(items, a)
				}
			}
			return ev.newArray(items), nil
		})
	case "join":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			sep := ","
			if len(args) > 0 && !args[0].IsUndefined() {
				sep = value.ToString(args[0])
			}
			items := arrItems(this.Object())
			var b []byte
			for i, it := range items {
				if i > 0 {
					b = append(b, sep...)
				}
				if !it.IsNullish() {
					b = append(b, value.ToString(it)...)
				}
			}
			return value.String(string(b)), nil
		})
	case "indexOf":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			items := arrItems(this.Object())
			var target value.Value
			if len(args) > 0 {
				target = args[0]
			}
			for i, it := range items {
				if value.StrictEquals(it, target) {
					return value.Number(float64(i)), nil
				}
			}
			return value.Number(-1), nil
		})
	case "includes":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			items := arrItems(this.Object())
			var target value.Value
			if len(args) > 0 {
				target = args[0]
			}
			for _, it := range items {
				if value.ObjectIs(it, target) {
					return value.Bool(true), nil
				}
			}
			return value.Bool(false), nil
		})
	case "reverse":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			o := this.Object()
			items := arrItems(o)
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
			rebuildArray(o, items)
			return this, nil
		})
	case "sort":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			o := this.Object()
			items := arrItems(o)
			var cmp *value.Function
			if len(args) > 0 && args[0].IsFunction() {
				cmp = args[0].Function()
			}
			var sortErr error
			sort.SliceStable(items, func(i, j int) bool {
				if sortErr != nil {
					return false
				}
				if cmp != nil {
					rv, err := ev.callFunction(nil, cmp, value.Undefined, []value.Value{items[i], items[j]})
					if err != nil {
						sortErr = err
						return false
					}
					return value.ToNumber(rv) < 0
				}
				return value.ToString(items[i]) < value.ToString(items[j])
			})
			if sortErr != nil {
				return value.Undefined, sortErr
			}
			rebuildArray(o, items)
			return this, nil
		})
	case "forEach":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			if len(args) == 0 || !args[0].IsFunction() {
				return value.Undefined, nil
			}
			cb := args[0].Function()
			items := arrItems(this.Object())
			for i, it := range items {
				if _, err := ev.callFunction(nil, cb, value.Undefined, []value.Value{it, value.Number(float64(i)), this}); err != nil {
					return value.Undefined, err
				}
			}
			return value.Undefined, nil
		})
	case "map":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			if len(args) == 0 || !args[0].IsFunction() {
				return ev.newArray(nil), nil
			}
			cb := args[0].Function()
			items := arrItems(this.Object())
			out := make([]value.Value, len(items))
			for i, it := range items {
				rv, err := ev.callFunction(nil, cb, value.Undefined, []value.Value{it, value.Number(float64(i)), this})
				if err != nil {
					return value.Undefined, err
				}
				out[i] = rv
			}
			return ev.newArray(out), nil
		})
	case "filter":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			if len(args) == 0 || !args[0].IsFunction() {
				return ev.newArray(nil), nil
			}
			cb := args[0].Function()
			items := arrItems(this.Object())
			var out []value.Value
			for i, it := range items {
				rv, err := ev.callFunction(nil, cb, value.Undefined, []value.Value{it, value.Number(float64(i)), this})
				if err != nil {
					return value.Undefined, err
				}
				if rv.Truthy() {
					out = append(out, it)
				}
			}
			return ev.newArray(out), nil
		})
	case "find":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			if len(args) == 0 || !args[0].IsFunction() {
				return value.Undefined, nil
			}
			cb := args[0].Function()
			items := arrItems(this.Object())
			for i, it := range items {
				rv, err := ev.callFunction(nil, cb, value.Undefined, []value.Value{it, value.Number(float64(i)), this})
				if err != nil {
					return value.Undefined, err
				}
				if rv.Truthy() {
					return it, nil
				}
			}
			return value.Undefined, nil
		})
	case "some":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			if len(args) == 0 || !args[0].IsFunction() {
				return value.Bool(false), nil
			}
			cb := args[0].Function()
			items := arrItems(this.Object())
			for i, it := range items {
				rv, err := ev.callFunction(nil, cb, value.Undefined, []value.Value{it, value.Number(float64(i)), this})
				if err != nil {
					return value.Undefined, err
				}
				if rv.Truthy() {
					return value.Bool(true), nil
				}
			}
			return value.Bool(false), nil
		})
	case "every":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			if len(args) == 0 || !args[0].IsFunction() {
				return value.Bool(true), nil
			}
			cb := args[0].Function()
			items := arrItems(this.Object())
			for i, it := range items {
				rv, err := ev.callFunction(nil, cb, value.Undefined, []value.Value{it, value.Number(float64(i)), this})
				if err != nil {
					return value.Undefined, err
				}
				if !rv.Truthy() {
					return value.Bool(false), nil
				}
			}
			return value.Bool(true), nil
		})
	case "reduce":
		return native(key, func(this value.Value, args []value.Value) (value.Value, error) {
			if len(args) == 0 || !args[0].IsFunction() {
				return value.Undefined, nil
			}
			cb := args[0].Function()
			items := arrItems(this.Object())
			i := 0
			var acc value.Value
			if len(args) > 1 {
				acc = args[1]
			} else if len(items) > 0 {
				acc = items[0]
				i = 1
			}
			for ; i < len(items); i++ {
				rv, err := ev.callFunction(nil, cb, value.Undefined, []value.Value{acc, items[i], value.Number(float64(i)), this})
				if err != nil {
					return value.Undefined, err
				}
				acc = rv
			}
			return acc, nil
		})
	}
	return nil
}

func rebuildArray(o *value.Object, items []value.Value) {
	for i := uint32(0); i < o.ArrayLength; i++ {
		o.Delete(itoa(int(i)))
	}
	o.SetLength(0)
	for i, v := range items {
		o.DefineOwn(itoa(i), &value.Property{Value: v, Writable: true, Enumerable: true, Configurable: true})
	}
}

func sliceBounds(args []value.Value, length int) (int, int) {
	start, end := 0, length
	if len(args) > 0 {
		start = normalizeIndex(value.ToNumber(args[0]), length)
	}
	if len(args) > 1 && !args[1].IsUndefined() {
		end = normalizeIndex(value.ToNumber(args[1]), length)
	}
	if end < start {
		end = start
	}
	return start, end
}

func normalizeIndex(n float64, length int) int {
	i := int(n)
	if i < 0 {
		i += length
	}
	if i < 0 {
		i = 0
	}
	if i > length {
		i = length
	}
	return i
}

func functionMethod(ev *Evaluator, target *value.Function, key string) *value.Function {
	switch key {
	case "call":
		return &value.Function{Name: "call", Kind: value.KindHostAdapted, Call: func(_ value.Value, args []value.Value) (value.Value, error) {
			var this value.Value = value.Undefined
			var rest []value.Value
			if len(args) > 0 {
				this, rest = args[0], args[1:]
			}
			return ev.callFunction(nil, target, this, rest)
		}}
	case "apply":
		return &value.Function{Name: "apply", Kind: value.KindHostAdapted, Call: func(_ value.Value, args []value.Value) (value.Value, error) {
			var this value.Value = value.Undefined
			var argArr []value.Value
			if len(args) > 0 {
				this = args[0]
			}
			if len(args) > 1 && args[1].IsObject() {
				argArr = arrItems(args[1].Object())
			}
			return ev.callFunction(nil, target, this, argArr)
		}}
	default: // bind
		return &value.Function{Name: "bind", Kind: value.KindHostAdapted, Call: func(_ value.Value, args []value.Value) (value.Value, error) {
			var boundThis value.Value = value.Undefined
			var boundArgs []value.Value
			if len(args) > 0 {
				boundThis, boundArgs = args[0], args[1:]
			}
			return value.FunctionValue(&value.Function{
				Name: "bound " + target.Name, Kind: value.KindHostAdapted,
				Call: func(_ value.Value, callArgs []value.Value) (value.Value, error) {
					return ev.callFunction(nil, target, boundThis, append(append([]value.Value{}, boundArgs...), callArgs...))
				},
			}), nil
		}}
	}
}
