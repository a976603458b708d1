// Package barrier implements the read-only wrapping layer that mediates
// every access from sandbox code to host-provided objects (spec §4.C).
// The approach is the systems-language equivalent spec §9 calls for: no
// reflective proxy, just an explicit value.HostAdapter wired into a
// handful of well-defined access points (get, call, iterate) — grounded on
// js/common/frozen_object_test.go (silently-ignored writes to a frozen
// wrapper outside strict mode) and js/common/bridge_test.go (the shapes a
// host-adapted callable must accept: plain, (context.Context, ...),
// (..., error), variadic).
package barrier

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// forbiddenNames blocks prototype-chain keys, legacy accessor
// introspection, introspection leaks, and function reflection (spec
// §4.C.1).
var forbiddenNames = map[string]bool{
	"__proto__":          true,
	"constructor":        true,
	"prototype":          true,
	"__defineGetter__":   true,
	"__defineSetter__":   true,
	"__lookupGetter__":   true,
	"__lookupSetter__":   true,
	"toLocaleString":     true,
	"hasOwnProperty":     true,
	"isPrototypeOf":      true,
	"propertyIsEnumerable": true,
	"apply":              true,
	"call":               true,
	"bind":                true,
	"arguments":           true,
	"caller":              true,
}

// forbiddenSymbols blocks the well-known symbols named in spec §4.C.1.
var forbiddenSymbols = map[string]bool{
	"toStringTag":          true,
	"toPrimitive":          true,
	"hasInstance":          true,
	"unscopables":          true,
	"match":                true,
	"matchAll":             true,
	"replace":              true,
	"search":               true,
	"split":                true,
	"species":              true,
	"isConcatSpreadable":   true,
}

// forbiddenGlobals blocks globals that would let sandbox code synthesize
// new code or reach interpreter internals (spec §4.C, final paragraph).
var forbiddenGlobals = map[string]bool{
	"Function":                true,
	"eval":                    true,
	"Proxy":                   true,
	"Reflect":                 true,
	"AsyncFunction":           true,
	"GeneratorFunction":       true,
	"AsyncGeneratorFunction":  true,
}

// IsForbiddenGlobal reports whether name may not be installed as a global.
func IsForbiddenGlobal(name string) bool { return forbiddenGlobals[name] }

// ForbiddenName reports whether reading name through the barrier must
// fail.
func ForbiddenName(name string) bool { return forbiddenNames[name] }

// ForbiddenSymbolName reports whether reading a well-known symbol of this
// name through the barrier must fail.
func ForbiddenSymbolName(name string) bool { return forbiddenSymbols[name] }

// Options configure a Barrier instance (spec §6 "security" options).
type Options struct {
	SanitizeErrors         bool
	HideHostErrorMessages  bool
}

// DefaultOptions matches spec §6's stated defaults.
func DefaultOptions() Options {
	return Options{SanitizeErrors: true, HideHostErrorMessages: true}
}

// Barrier wraps host values into sandbox-observable Objects/Functions.
type Barrier struct {
	opts Options
}

func New(opts Options) *Barrier {
	return &Barrier{opts: opts}
}

// WrapIterated wraps a single value yielded by iterating a wrapped host
// object, tagging the display path with "[]" (spec §4.C.7).
func (b *Barrier) WrapIterated(parentDisplayPath string, v any) (value.Value, error) {
	return b.wrap(parentDisplayPath+"[]", v)
}

// WrapGlobal wraps a top-level host global value, using its binding name
// as the root of the display path (spec §4.C.6: "parent-display-name").
func (b *Barrier) WrapGlobal(name string, v any) (value.Value, error) {
	if fn, ok := v.(func(value.Value, []value.Value) (value.Value, error)); ok {
		return value.FunctionValue(b.adaptFunc(fmt.Sprintf("global '%s'", name), reflect.ValueOf(fn))), nil
	}
	return b.wrap(fmt.Sprintf("global '%s'", name), v)
}

func (b *Barrier) wrap(displayPath string, v any) (value.Value, error) {
	if v == nil {
		return value.Null, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Invalid:
		return value.Undefined, nil
	case reflect.Bool:
		return value.Bool(rv.Bool()), nil
	case reflect.String:
		return value.String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return value.Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return value.Number(rv.Float()), nil
	case reflect.Func:
		return value.FunctionValue(b.adaptFunc(displayPath, rv)), nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return value.Null, nil
		}
		if rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Struct {
			// keep the pointer so pointer-receiver methods stay reachable
			w := &wrapper{barrier: b, displayPath: displayPath, host: rv}
			o := value.NewObject(nil)
			o.Host = w
			return value.ObjectValue(o), nil
		}
		return b.wrap(displayPath, rv.Elem().Interface())
	default:
		w := &wrapper{barrier: b, displayPath: displayPath, host: rv}
		o := value.NewObject(nil)
		o.Host = w
		return value.ObjectValue(o), nil
	}
}

// wrapper implements value.HostAdapter over a single reflect.Value (a Go
// struct, map, or slice/array host object).
type wrapper struct {
	barrier     *Barrier
	displayPath string
	host        reflect.Value
}

func (w *wrapper) DisplayPath() string { return w.displayPath }

// securityErr builds the SecurityError spec §4.C.1/§8 requires: it names
// both the forbidden property and the display path of the wrapped object.
func securityErr(prop, displayPath string) error {
	return errmodel.New(errmodel.SecurityError,
		fmt.Sprintf("Cannot access %s on %s", prop, displayPath))
}

func (w *wrapper) Get(key string) (value.Value, error) {
	if ForbiddenName(key) {
		return value.Undefined, securityErr(key, w.displayPath)
	}
	if key == "valueOf" {
		return w.valueOfStub(), nil
	}
	if key == "stack" {
		if se, ok := w.hostErrorStack(); ok {
			return value.String(errmodel.SanitizeStack(se, w.barrier.sanitization())), nil
		}
	}
	rv := w.host
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return value.Undefined, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		mv := rv.MapIndex(reflect.ValueOf(key))
		if !mv.IsValid() {
			return value.Undefined, nil
		}
		return w.barrier.wrap(w.displayPath+"."+key, mv.Interface())
	case reflect.Struct:
		fv := rv.FieldByNameFunc(func(n string) bool { return fieldMatches(n, key) })
		if !fv.IsValid() || !fv.CanInterface() {
			return w.methodOrUndefined(rv, key)
		}
		return w.barrier.wrap(w.displayPath+"."+key, fv.Interface())
	default:
		return value.Undefined, nil
	}
}

func (w *wrapper) methodOrUndefined(rv reflect.Value, key string) (value.Value, error) {
	m := rv.MethodByName(key)
	if !m.IsValid() {
		// try addressable pointer-receiver methods
		if rv.CanAddr() {
			m = rv.Addr().MethodByName(key)
		}
	}
	if !m.IsValid() {
		return value.Undefined, nil
	}
	return value.FunctionValue(w.barrier.adaptFunc(w.displayPath+"."+key, m)), nil
}

// fieldMatches does a case-insensitive exported-field match so host
// structs don't need JS-style lowercase field names.
func fieldMatches(fieldName, key string) bool {
	if fieldName == key {
		return true
	}
	return len(fieldName) > 0 && len(key) > 0 &&
		fieldName[0] >= 'A' && fieldName[0] <= 'Z' &&
		equalFold(fieldName, key)
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// valueOfStub implements spec §4.C.2: a safe stub for primitive wrappers
// and date-likes, otherwise the wrapper itself. This interpreter's host
// bridge treats every wrapped struct uniformly (no Date/Number/String
// object detection at the Go reflection boundary), so it always returns a
// function yielding the wrapper back — "otherwise return the wrapper
// itself" — never invoking the host's own valueOf.
func (w *wrapper) valueOfStub() value.Value {
	self := w
	fn := &value.Function{
		Name: "valueOf",
		Call: func(this value.Value, args []value.Value) (value.Value, error) {
			return value.ObjectValue(wrapperObject(self)), nil
		},
	}
	return value.FunctionValue(fn)
}

func wrapperObject(w *wrapper) *value.Object {
	o := value.NewObject(nil)
	o.Host = w
	return o
}

// hostErrorStack extracts a "stack"-like string field from the wrapped
// host value, if the host object exposes one (e.g. a Go error wrapped
// with a captured stack trace field named Stack or StackTrace).
func (w *wrapper) hostErrorStack() (string, bool) {
	rv := w.host
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return "", false
	}
	for _, name := range []string{"Stack", "StackTrace"} {
		fv := rv.FieldByName(name)
		if fv.IsValid() && fv.Kind() == reflect.String {
			return fv.String(), true
		}
	}
	return "", false
}

func (b *Barrier) sanitization() errmodel.Sanitization {
	if b.opts.SanitizeErrors {
		return errmodel.SanitizeOn
	}
	return errmodel.SanitizeOff
}

func (w *wrapper) Set(key string, v value.Value) error {
	if ForbiddenName(key) {
		return securityErr(key, w.displayPath)
	}
	return errmodel.New(errmodel.SecurityError,
		fmt.Sprintf("Cannot assign to read-only property %q on %s", key, w.displayPath))
}

func (w *wrapper) Delete(key string) error {
	return errmodel.New(errmodel.SecurityError,
		fmt.Sprintf("Cannot delete property %q on %s", key, w.displayPath))
}

func (w *wrapper) OwnKeys() []string {
	rv := w.host
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	var keys []string
	switch rv.Kind() {
	case reflect.Map:
		for _, k := range rv.MapKeys() {
			keys = append(keys, fmt.Sprint(k.Interface()))
		}
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath == "" { // exported
				keys = append(keys, f.Name)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// adaptFunc wraps a host Go function as a host-adapted callable (spec
// §4.C.5, §4.C "Host-adapted" in §3). It accepts the shapes exercised by
// js/common/bridge_test.go: plain args, a leading context.Context, a
// trailing error return, and variadic parameters.
func (b *Barrier) adaptFunc(displayPath string, fv reflect.Value) *value.Function {
	ft := fv.Type()
	wantsCtx := ft.NumIn() > 0 && ft.In(0) == reflect.TypeOf((*context.Context)(nil)).Elem()
	returnsErr := ft.NumOut() > 0 && ft.Out(ft.NumOut()-1) == reflect.TypeOf((*error)(nil)).Elem()

	// fixedIn counts the Go-side fixed (non-context, non-variadic,
	// non-error) parameters sandbox arguments map onto.
	fixedIn := ft.NumIn()
	if wantsCtx {
		fixedIn--
	}
	if ft.IsVariadic() {
		fixedIn--
	}

	call := func(this value.Value, args []value.Value) (value.Value, error) {
		in := make([]reflect.Value, 0, ft.NumIn())
		if wantsCtx {
			in = append(in, reflect.ValueOf(context.Background()))
		}
		firstFixed := 0
		if wantsCtx {
			firstFixed = 1
		}
		for i := 0; i < fixedIn; i++ {
			paramType := ft.In(firstFixed + i)
			var arg value.Value
			if i < len(args) {
				arg = args[i]
			}
			in = append(in, reflect.ValueOf(unwrapForHost(arg, paramType)))
		}
		var out []reflect.Value
		if ft.IsVariadic() {
			variadicType := ft.In(ft.NumIn() - 1).Elem()
			for i := fixedIn; i < len(args); i++ {
				in = append(in, reflect.ValueOf(unwrapForHost(args[i], variadicType)))
			}
			out = fv.Call(in)
		} else {
			out = fv.Call(in)
		}
		if returnsErr {
			if errVal := out[len(out)-1]; !errVal.IsNil() {
				return b.hostError(displayPath, errVal.Interface().(error))
			}
			out = out[:len(out)-1]
		}
		if len(out) == 0 {
			return value.Undefined, nil
		}
		return b.wrap(displayPath+"()", out[0].Interface())
	}

	return &value.Function{
		Name:        displayPath,
		Kind:        value.KindHostAdapted,
		Arrow:       true, // host-adapted callables accept any arity (spec §4.F)
		DisplayPath: displayPath,
		Call:        call,
	}
}

func (b *Barrier) hostError(displayPath string, err error) (value.Value, error) {
	msg := err.Error()
	if b.opts.HideHostErrorMessages {
		msg = "[error details hidden]"
	}
	return value.Undefined, errmodel.New(errmodel.Generic, msg)
}

// unwrapForHost converts a sandbox value back to a host Go value of the
// requested type for a host function call's argument. Only the primitive
// conversions needed by simple host APIs are supported; passing a sandbox
// object where a host struct pointer is expected is intentionally not
// supported (it would require re-wrapping in reverse, which would leak
// barrier internals into host code).
func unwrapForHost(v value.Value, t reflect.Type) any {
	switch t.Kind() {
	case reflect.String:
		return value.ToString(v)
	case reflect.Bool:
		return v.Truthy()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflect.ValueOf(int64(value.ToNumber(v))).Convert(t).Interface()
	case reflect.Float32, reflect.Float64:
		return reflect.ValueOf(value.ToNumber(v)).Convert(t).Interface()
	default:
		return v
	}
}
