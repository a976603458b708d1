package evaluator

import (
	"fmt"

	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// realm holds the handful of shared prototype objects every value and
// error created during evaluation links to. There is exactly one realm
// per Evaluator (spec §5: "two evaluator instances share nothing").
type realm struct {
	objectProto   *value.Object
	arrayProto    *value.Object
	functionProto *value.Object
	errorProto    *value.Object
	// errorProtos holds the per-kind error prototypes (TypeError.prototype
	// etc.), each chaining to errorProto.
	errorProtos map[errmodel.Kind]*value.Object
}

func newRealm() *realm {
	r := &realm{errorProtos: make(map[errmodel.Kind]*value.Object)}
	r.objectProto = value.NewObject(nil)
	r.functionProto = value.NewObject(r.objectProto)
	r.arrayProto = value.NewObject(r.objectProto)
	r.errorProto = value.NewObject(r.objectProto)
	dataProp(r.errorProto, "name", value.String("Error"), true, false, true)
	dataProp(r.errorProto, "message", value.String(""), true, false, true)

	for _, kind := range []errmodel.Kind{
		errmodel.TypeError, errmodel.ReferenceError, errmodel.SyntaxError,
		errmodel.RangeError, errmodel.SecurityError, errmodel.ModuleError,
	} {
		proto := value.NewObject(r.errorProto)
		dataProp(proto, "name", value.String(string(kind)), true, false, true)
		r.errorProtos[kind] = proto
	}
	return r
}

func dataProp(o *value.Object, key string, v value.Value, writable, enumerable, configurable bool) {
	o.DefineOwn(key, &value.Property{Value: v, Writable: writable, Enumerable: enumerable, Configurable: configurable})
}

// newErrorObject builds an Error-class object for kind+message, the shape
// sandbox `throw`/`catch` and `instanceof` observe.
func (r *realm) newErrorObject(kind errmodel.Kind, message string) *value.Object {
	proto, ok := r.errorProtos[kind]
	if !ok {
		proto = r.errorProto
	}
	o := value.NewObject(proto)
	o.Class = value.ClassError
	o.ClassName = string(kind)
	dataProp(o, "message", value.String(message), true, false, true)
	dataProp(o, "stack", value.String(fmt.Sprintf("%s: %s", kind, message)), true, false, true)
	o.Internal = map[string]any{"message": message, "kind": string(kind)}
	return o
}

func errorValueFor(r *realm, kind errmodel.Kind, message string) value.Value {
	return value.ObjectValue(r.newErrorObject(kind, message))
}

// errorValue is a package-level convenience used by throwErr, which has
// no Evaluator's realm in scope at its call sites; every runtime error
// thrown through throwErr is built here, as a bare error object without
// realm-specific prototypes (unlike newErrorObject).
func errorValue(kind errmodel.Kind, format string, args ...any) value.Value {
	o := value.NewObject(nil)
	o.Class = value.ClassError
	o.ClassName = string(kind)
	msg := fmt.Sprintf(format, args...)
	dataProp(o, "message", value.String(msg), true, false, true)
	dataProp(o, "stack", value.String(fmt.Sprintf("%s: %s", kind, msg)), true, false, true)
	return value.ObjectValue(o)
}
