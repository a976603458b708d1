package evaluator

import (
	"encoding/json"
	"math"
	"math/rand"
	"sort"

	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// installBuiltins populates the global scope with the intrinsics every
// sandbox program can reach without the host defining anything: console,
// Math, JSON, the Object/Array/String/Number/Boolean static namespaces,
// and the per-kind Error constructors bound to the realm's error
// prototypes. Grounded on the teacher's js/modules registration pattern
// (a fixed table of names wired in once at Runtime construction) rather
// than lazy per-access synthesis.
func installBuiltins(ev *Evaluator) {
	define := func(name string, v value.Value) {
		ev.global.Declare(name, environment.KindVar)
		ev.global.Initialize(name, v)
	}
	native := func(name string, call value.CallFunc) value.Value {
		return value.FunctionValue(&value.Function{Name: name, Kind: value.KindHostAdapted, Call: call})
	}

	define("undefined", value.Undefined)
	define("NaN", value.Number(math.NaN()))
	define("Infinity", value.Number(math.Inf(1)))

	globalThis := value.NewObject(ev.realm.objectProto)
	define("globalThis", value.ObjectValue(globalThis))

	installConsole(ev, define, native)
	installMath(ev, define, native)
	installJSON(ev, define, native)
	installObjectNS(ev, define, native)
	installArrayNS(ev, define, native)
	installStringNumberBoolean(ev, define, native)
	installErrorConstructors(ev, define)

	define("parseInt", native("parseInt", func(_ value.Value, args []value.Value) (value.Value, error) {
		return value.Number(parseIntArgs(args)), nil
	}))
	define("parseFloat", native("parseFloat", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Number(math.NaN()), nil
		}
		return value.Number(value.ToNumber(args[0])), nil
	}))
	define("isNaN", native("isNaN", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Bool(true), nil
		}
		return value.Bool(math.IsNaN(value.ToNumber(args[0]))), nil
	}))
	define("isFinite", native("isFinite", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Bool(false), nil
		}
		n := value.ToNumber(args[0])
		return value.Bool(!math.IsNaN(n) && !math.IsInf(n, 0)), nil
	}))
}

func installConsole(ev *Evaluator, define func(string, value.Value), native func(string, value.CallFunc) value.Value) {
	log := func(level func(args ...any)) value.CallFunc {
		return func(_ value.Value, args []value.Value) (value.Value, error) {
			parts := make([]any, len(args))
			for i, a := range args {
				parts[i] = value.ToString(a)
			}
			level(parts...)
			return value.Undefined, nil
		}
	}
	console := value.NewObject(ev.realm.objectProto)
	console.DefineOwn("log", &value.Property{Value: native("log", log(ev.log.Info)), Writable: true, Configurable: true})
	console.DefineOwn("info", &value.Property{Value: native("info", log(ev.log.Info)), Writable: true, Configurable: true})
	console.DefineOwn("warn", &value.Property{Value: native("warn", log(ev.log.Warn)), Writable: true, Configurable: true})
	console.DefineOwn("error", &value.Property{Value: native("error", log(ev.log.Error)), Writable: true, Configurable: true})
	console.DefineOwn("debug", &value.Property{Value: native("debug", log(ev.log.Debug)), Writable: true, Configurable: true})
	define("console", value.ObjectValue(console))
}

func installMath(ev *Evaluator, define func(string, value.Value), native func(string, value.CallFunc) value.Value) {
	m := value.NewObject(ev.realm.objectProto)
	constants := map[string]float64{
		"PI": math.Pi, "E": math.E, "LN2": math.Ln2, "LN10": math.Log(10),
		"SQRT2": math.Sqrt2, "LOG2E": 1 / math.Ln2, "LOG10E": 1 / math.Log(10),
	}
	for k, v := range constants {
		m.DefineOwn(k, &value.Property{Value: value.Number(v), Writable: false, Configurable: false})
	}
	unary := func(name string, fn func(float64) float64) {
		m.DefineOwn(name, &value.Property{Value: native(name, func(_ value.Value, args []value.Value) (value.Value, error) {
			var x float64 = math.NaN()
			if len(args) > 0 {
				x = value.ToNumber(args[0])
			}
			return value.Number(fn(x)), nil
		}), Writable: true, Configurable: true})
	}
	unary("abs", math.Abs)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("trunc", math.Trunc)
	unary("sqrt", math.Sqrt)
	unary("cbrt", math.Cbrt)
	unary("sign", func(x float64) float64 {
		switch {
		case math.IsNaN(x):
			return math.NaN()
		case x > 0:
			return 1
		case x < 0:
			return -1
		default:
			return x
		}
	})
	unary("log", math.Log)
	unary("log2", math.Log2)
	unary("log10", math.Log10)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("round", func(x float64) float64 { return math.Floor(x + 0.5) })
	m.DefineOwn("pow", &value.Property{Value: native("pow", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) < 2 {
			return value.Number(math.NaN()), nil
		}
		return value.Number(math.Pow(value.ToNumber(args[0]), value.ToNumber(args[1]))), nil
	}), Writable: true, Configurable: true})
	m.DefineOwn("max", &value.Property{Value: native("max", func(_ value.Value, args []value.Value) (value.Value, error) {
		best := math.Inf(-1)
		for _, a := range args {
			n := value.ToNumber(a)
			if math.IsNaN(n) {
				return value.Number(math.NaN()), nil
			}
			if n > best {
				best = n
			}
		}
		return value.Number(best), nil
	}), Writable: true, Configurable: true})
	m.DefineOwn("min", &value.Property{Value: native("min", func(_ value.Value, args []value.Value) (value.Value, error) {
		best := math.Inf(1)
		for _, a := range args {
			n := value.ToNumber(a)
			if math.IsNaN(n) {
				return value.Number(math.NaN()), nil
			}
			if n < best {
				best = n
			}
		}
		return value.Number(best), nil
	}), Writable: true, Configurable: true})
	m.DefineOwn("random", &value.Property{Value: native("random", func(_ value.Value, args []value.Value) (value.Value, error) {
		return value.Number(rand.Float64()), nil
	}), Writable: true, Configurable: true})
	define("Math", value.ObjectValue(m))
}

// installJSON wires JSON.stringify/parse through encoding/json rather
// than a hand-rolled recursive-descent parser: the value model's Object
// already round-trips cleanly through a map[string]any/[]any shape, so
// reusing the standard encoder/decoder for the wire format (not the
// language semantics) matches how the rest of the ambient stack leans on
// real libraries instead of reinventing them.
func installJSON(ev *Evaluator, define func(string, value.Value), native func(string, value.CallFunc) value.Value) {
	j := value.NewObject(ev.realm.objectProto)
	j.DefineOwn("stringify", &value.Property{Value: native("stringify", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Undefined, nil
		}
		native, ok := toJSONable(args[0])
		if !ok {
			return value.Undefined, nil
		}
		indent := ""
		if len(args) > 2 {
			if args[2].IsNumber() {
				indent = spaces(int(value.ToNumber(args[2])))
			} else if args[2].IsString() {
				indent = args[2].Str()
			}
		}
		var b []byte
		var err error
		if indent != "" {
			b, err = json.MarshalIndent(native, "", indent)
		} else {
			b, err = json.Marshal(native)
		}
		if err != nil {
			return value.Undefined, throwErr(errmodel.TypeError, "JSON.stringify: %v", err)
		}
		return value.String(string(b)), nil
	}), Writable: true, Configurable: true})
	j.DefineOwn("parse", &value.Property{Value: native("parse", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Undefined, throwErr(errmodel.SyntaxError, "Unexpected end of JSON input")
		}
		var out any
		if err := json.Unmarshal([]byte(value.ToString(args[0])), &out); err != nil {
			return value.Undefined, throwErr(errmodel.SyntaxError, "%v", err)
		}
		return ev.fromJSONable(out), nil
	}), Writable: true, Configurable: true})
	define("JSON", value.ObjectValue(j))
}

func spaces(n int) string {
	if n > 10 {
		n = 10
	}
	if n < 0 {
		n = 0
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

func toJSONable(v value.Value) (any, bool) {
	switch {
	case v.IsUndefined(), v.IsFunction(), v.IsSymbol():
		return nil, false
	case v.IsNull():
		return nil, true
	case v.IsBoolean():
		return v.Bool(), true
	case v.IsNumber():
		return v.Float(), true
	case v.IsString():
		return v.Str(), true
	case v.IsObject():
		o := v.Object()
		if o.Class == value.ClassArray {
			out := make([]any, o.ArrayLength)
			for i := range out {
				if p := o.GetOwn(itoa(i)); p != nil {
					if jv, ok := toJSONable(p.Value); ok {
						out[i] = jv
						continue
					}
				}
				out[i] = nil
			}
			return out, true
		}
		out := make(map[string]any)
		for _, k := range o.OwnKeys() {
			p := o.GetOwn(k)
			if p == nil || !p.Enumerable {
				continue
			}
			if jv, ok := toJSONable(p.Value); ok {
				out[k] = jv
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func (ev *Evaluator) fromJSONable(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null
	case bool:
		return value.Bool(t)
	case float64:
		return value.Number(t)
	case string:
		return value.String(t)
	case []any:
		items := make([]value.Value, len(t))
		for i, e := range t {
			items[i] = ev.fromJSONable(e)
		}
		return ev.newArray(items)
	case map[string]any:
		o := value.NewObject(ev.realm.objectProto)
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			o.DefineOwn(k, &value.Property{Value: ev.fromJSONable(t[k]), Writable: true, Enumerable: true, Configurable: true})
		}
		return value.ObjectValue(o)
	default:
		return value.Undefined
	}
}

func installObjectNS(ev *Evaluator, define func(string, value.Value), native func(string, value.CallFunc) value.Value) {
	o := value.NewObject(ev.realm.functionProto)
	o.DefineOwn("keys", &value.Property{Value: native("keys", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 || !args[0].IsObject() {
			return ev.newArray(nil), nil
		}
		keys := args[0].Object().OwnKeys()
		out := make([]value.Value, 0, len(keys))
		for _, k := range keys {
			if p := args[0].Object().GetOwn(k); p != nil && p.Enumerable {
				out = append(out, value.String(k))
			}
		}
		return ev.newArray(out), nil
	}), Writable: true, Configurable: true})
	o.DefineOwn("values", &value.Property{Value: native("values", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 || !args[0].IsObject() {
			return ev.newArray(nil), nil
		}
		obj := args[0].Object()
		var out []value.Value
		for _, k := range obj.OwnKeys() {
			if p := obj.GetOwn(k); p != nil && p.Enumerable {
				out = append(out, p.Value)
			}
		}
		return ev.newArray(out), nil
	}), Writable: true, Configurable: true})
	o.DefineOwn("entries", &value.Property{Value: native("entries", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 || !args[0].IsObject() {
			return ev.newArray(nil), nil
		}
		obj := args[0].Object()
		var out []value.Value
		for _, k := range obj.OwnKeys() {
			if p := obj.GetOwn(k); p != nil && p.Enumerable {
				out = append(out, ev.newArray([]value.Value{value.String(k), p.Value}))
			}
		}
		return ev.newArray(out), nil
	}), Writable: true, Configurable: true})
	o.DefineOwn("assign", &value.Property{Value: native("assign", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 || !args[0].IsObject() {
			return value.Undefined, throwErr(errmodel.TypeError, "Object.assign target must be an object")
		}
		target := args[0].Object()
		for _, src := range args[1:] {
			if !src.IsObject() {
				continue
			}
			so := src.Object()
			for _, k := range so.OwnKeys() {
				if p := so.GetOwn(k); p != nil && p.Enumerable {
					target.DefineOwn(k, &value.Property{Value: p.Value, Writable: true, Enumerable: true, Configurable: true})
				}
			}
		}
		return args[0], nil
	}), Writable: true, Configurable: true})
	o.DefineOwn("freeze", &value.Property{Value: native("freeze", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) > 0 && args[0].IsObject() {
			args[0].Object().Freeze()
			return args[0], nil
		}
		if len(args) > 0 {
			return args[0], nil
		}
		return value.Undefined, nil
	}), Writable: true, Configurable: true})
	o.DefineOwn("isFrozen", &value.Property{Value: native("isFrozen", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) > 0 && args[0].IsObject() {
			return value.Bool(args[0].Object().IsFrozen()), nil
		}
		return value.Bool(true), nil
	}), Writable: true, Configurable: true})
	o.DefineOwn("create", &value.Property{Value: native("create", func(_ value.Value, args []value.Value) (value.Value, error) {
		var proto *value.Object
		if len(args) > 0 && args[0].IsObject() {
			proto = args[0].Object()
		}
		return value.ObjectValue(value.NewObject(proto)), nil
	}), Writable: true, Configurable: true})
	o.DefineOwn("getPrototypeOf", &value.Property{Value: native("getPrototypeOf", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) > 0 && args[0].IsObject() {
			return value.ObjectValue(args[0].Object().Proto), nil
		}
		return value.Null, nil
	}), Writable: true, Configurable: true})
	o.DefineOwn("is", &value.Property{Value: native("is", func(_ value.Value, args []value.Value) (value.Value, error) {
		var a, b value.Value = value.Undefined, value.Undefined
		if len(args) > 0 {
			a = args[0]
		}
		if len(args) > 1 {
			b = args[1]
		}
		return value.Bool(value.ObjectIs(a, b)), nil
	}), Writable: true, Configurable: true})
	define("Object", value.ObjectValue(o))
}

func installArrayNS(ev *Evaluator, define func(string, value.Value), native func(string, value.CallFunc) value.Value) {
	ctor := &value.Function{Name: "Array", Kind: value.KindHostAdapted, Constructable: true}
	ctor.Call = func(_ value.Value, args []value.Value) (value.Value, error) {
		return arrayFromArgs(ev, args), nil
	}
	ctor.Construct = func(_ value.Value, args []value.Value, _ *value.Function) (value.Value, error) {
		return arrayFromArgs(ev, args), nil
	}
	props := value.NewObject(nil)
	props.DefineOwn("isArray", &value.Property{Value: native("isArray", func(_ value.Value, args []value.Value) (value.Value, error) {
		return value.Bool(len(args) > 0 && args[0].IsObject() && args[0].Object().Class == value.ClassArray), nil
	}), Writable: true, Configurable: true})
	props.DefineOwn("from", &value.Property{Value: native("from", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return ev.newArray(nil), nil
		}
		items, err := ev.iterateToSlice(nil, args[0])
		if err != nil {
			return value.Undefined, err
		}
		if len(args) > 1 && args[1].IsFunction() {
			cb := args[1].Function()
			out := make([]value.Value, len(items))
			for i, it := range items {
				rv, err := ev.callFunction(nil, cb, value.Undefined, []value.Value{it, value.Number(float64(i))})
				if err != nil {
					return value.Undefined, err
				}
				out[i] = rv
			}
			return ev.newArray(out), nil
		}
		return ev.newArray(items), nil
	}), Writable: true, Configurable: true})
	ctor.Props = props
	define("Array", value.FunctionValue(ctor))
}

func arrayFromArgs(ev *Evaluator, args []value.Value) value.Value {
	if len(args) == 1 && args[0].IsNumber() {
		return value.ObjectValue(value.NewArray(ev.realm.arrayProto, uint32(args[0].Float())))
	}
	return ev.newArray(args)
}

func installStringNumberBoolean(ev *Evaluator, define func(string, value.Value), native func(string, value.CallFunc) value.Value) {
	define("String", native("String", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.String(""), nil
		}
		return value.String(value.ToString(args[0])), nil
	}))
	define("Number", native("Number", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Number(0), nil
		}
		return value.Number(value.ToNumber(args[0])), nil
	}))
	define("Boolean", native("Boolean", func(_ value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Bool(false), nil
		}
		return value.Bool(args[0].Truthy()), nil
	}))
	define("Symbol", native("Symbol", func(_ value.Value, args []value.Value) (value.Value, error) {
		desc := ""
		if len(args) > 0 {
			desc = value.ToString(args[0])
		}
		return value.SymbolValue(&value.Symbol{Description: desc}), nil
	}))
}

func installErrorConstructors(ev *Evaluator, define func(string, value.Value)) {
	makeCtor := func(kind errmodel.Kind) *value.Function {
		proto := ev.realm.errorProto
		if p, ok := ev.realm.errorProtos[kind]; ok {
			proto = p
		}
		ctor := &value.Function{Name: string(kind), Kind: value.KindHostAdapted, Constructable: true, Proto: proto}
		build := func(args []value.Value) value.Value {
			msg := ""
			if len(args) > 0 {
				msg = value.ToString(args[0])
			}
			return value.ObjectValue(ev.realm.newErrorObject(kind, msg))
		}
		ctor.Call = func(_ value.Value, args []value.Value) (value.Value, error) { return build(args), nil }
		ctor.Construct = func(_ value.Value, args []value.Value, _ *value.Function) (value.Value, error) { return build(args), nil }
		return ctor
	}
	for _, kind := range []errmodel.Kind{
		errmodel.Generic, errmodel.TypeError, errmodel.ReferenceError,
		errmodel.SyntaxError, errmodel.RangeError, errmodel.SecurityError, errmodel.ModuleError,
	} {
		name := string(kind)
		if kind == errmodel.Generic {
			name = "Error"
		}
		define(name, value.FunctionValue(makeCtor(kind)))
	}
}

func parseIntArgs(args []value.Value) float64 {
	if len(args) == 0 {
		return math.NaN()
	}
	s := value.ToString(args[0])
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
		i++
	}
	neg := false
	if i < j && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	start := i
	for i < j && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		return math.NaN()
	}
	n := 0.0
	for _, c := range s[start:i] {
		n = n*10 + float64(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}
