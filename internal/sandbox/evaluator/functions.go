package evaluator

import (
	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// callFunction invokes f with strict-arity checking for ordinary
// interpreted functions and lenient arity for arrow/host-adapted
// callables (spec §4.F): wrong arity for a plain function is a thrown
// TypeError, a deliberate divergence from real JS (which pads missing
// arguments with undefined) called out in the spec as worth keeping,
// since silently accepting a wrong-arity call hides bugs at the
// sandbox boundary exactly where the host most wants them surfaced.
func (ev *Evaluator) callFunction(fr *frame, f *value.Function, this value.Value, args []value.Value) (value.Value, error) {
	if f == nil || f.Call == nil {
		return value.Undefined, throwErr(errmodel.TypeError, "value is not a function")
	}
	return f.Call(this, args)
}

// makeFunction builds the runtime Function for a parsed FunctionLiteral,
// closing over closureEnv. homeObject, when non-nil, anchors `super`
// inside a class method body (spec §4.F "super").
func (ev *Evaluator) makeFunction(lit *sbast.FunctionLiteral, closureEnv *environment.Environment, homeObject *value.Object) *value.Function {
	paramCount := 0
	for _, p := range lit.Params {
		if p.Default == nil {
			paramCount++
		} else {
			break
		}
	}
	strictArity := -1
	if !lit.Kind.Arrow && lit.Rest == nil && allParamsSimple(lit.Params) {
		strictArity = len(lit.Params)
	}

	fn := &value.Function{
		Name:          lit.Name,
		Kind:          value.KindInterpreted,
		Async:         lit.Kind.Func == sbast.FuncAsync || lit.Kind.Func == sbast.FuncAsyncGenerator,
		Generator:     lit.Kind.Func == sbast.FuncGenerator || lit.Kind.Func == sbast.FuncAsyncGenerator,
		Arrow:         lit.Kind.Arrow,
		Constructable: !lit.Kind.Arrow && lit.Kind.Func == sbast.FuncNormal,
		ParamCount:    paramCount,
		HomeObject:    homeObject,
	}
	if fn.Constructable {
		fn.Proto = value.NewObject(ev.realm.objectProto)
		fn.Proto.DefineOwn("constructor", &value.Property{Value: value.FunctionValue(fn), Writable: true, Configurable: true})
	}

	call := func(this value.Value, args []value.Value) (value.Value, error) {
		if strictArity >= 0 && len(args) != strictArity {
			return value.Undefined, throwErr(errmodel.TypeError,
				"Expected %d arguments but got %d", strictArity, len(args))
		}
		if fn.Generator {
			return ev.startGenerator(lit, closureEnv, homeObject, fn, this, args), nil
		}
		if fn.Async {
			return ev.runAsyncFunction(lit, closureEnv, homeObject, fn, this, args)
		}
		return ev.runFunctionBody(lit, closureEnv, homeObject, fn, this, nil, args)
	}
	fn.Call = call

	if fn.Constructable {
		fn.Construct = func(this value.Value, args []value.Value, newTarget *value.Function) (value.Value, error) {
			return ev.runFunctionBody(lit, closureEnv, homeObject, fn, this, newTarget, args)
		}
	}
	return fn
}

func displayName(name string) string {
	if name == "" {
		return "(anonymous)"
	}
	return name
}

func allParamsSimple(params []sbast.Param) bool {
	for _, p := range params {
		if _, ok := p.Target.(*sbast.Identifier); !ok {
			return false
		}
	}
	return true
}

// runFunctionBody executes a non-generator, non-async function call
// synchronously to completion.
func (ev *Evaluator) runFunctionBody(lit *sbast.FunctionLiteral, closureEnv *environment.Environment, homeObject *value.Object, fn *value.Function, this value.Value, newTarget *value.Function, args []value.Value) (value.Value, error) {
	env := closureEnv.NewChild(environment.ScopeFunction)
	if err := ev.bindParams(nil, env, lit, args); err != nil {
		return value.Undefined, err
	}
	fr := &frame{this: resolveThis(lit, this), newTarget: newTarget, homeObject: homeObject, fn: fn}
	return ev.execFunctionBlock(fr, env, lit.Body)
}

// resolveThis returns the receiver the call site passed, for arrow and
// non-arrow literals alike: an arrow's frame does not take `this` from
// the frame it was created in.
func resolveThis(lit *sbast.FunctionLiteral, this value.Value) value.Value {
	if lit.Kind.Arrow {
		return this
	}
	return this
}

func (ev *Evaluator) execFunctionBlock(fr *frame, env *environment.Environment, body *sbast.BlockStatement) (value.Value, error) {
	if err := hoistVars(env, body.Body); err != nil {
		return value.Undefined, err
	}
	if err := ev.declareBlockScoped(env, body.Body); err != nil {
		return value.Undefined, err
	}
	for _, s := range body.Body {
		c, err := ev.execStmt(fr, env, s)
		if err != nil {
			return value.Undefined, err
		}
		if c.Type == CompletionReturn {
			return c.Value, nil
		}
	}
	return value.Undefined, nil
}

// bindParams binds declared parameters (positional, with defaults,
// destructuring, and a trailing rest) plus the `arguments` object for
// non-arrow functions (spec §4.F "Parameter binding").
func (ev *Evaluator) bindParams(fr *frame, env *environment.Environment, lit *sbast.FunctionLiteral, args []value.Value) error {
	for i, p := range lit.Params {
		if err := declarePatternNames(env, p.Target, environment.KindParam); err != nil {
			return err
		}
		var v value.Value
		if i < len(args) {
			v = args[i]
		} else {
			v = value.Undefined
		}
		if v.IsUndefined() && p.Default != nil {
			dv, err := ev.evalExpr(fr, env, p.Default)
			if err != nil {
				return err
			}
			v = dv
		}
		if err := ev.bindPattern(fr, env, p.Target, v); err != nil {
			return err
		}
	}
	if lit.Rest != nil {
		if err := declarePatternNames(env, lit.Rest, environment.KindParam); err != nil {
			return err
		}
		var rest []value.Value
		if len(args) > len(lit.Params) {
			rest = append(rest, args[len(lit.Params):]...)
		}
		if err := ev.bindPattern(fr, env, lit.Rest, ev.newArray(rest)); err != nil {
			return err
		}
	}
	if !lit.Kind.Arrow {
		env.Declare("arguments", environment.KindVar)
		env.Initialize("arguments", ev.newArray(args))
	}
	return nil
}
