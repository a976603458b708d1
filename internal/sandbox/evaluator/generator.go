package evaluator

import (
	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// startGenerator builds the Generator object returned by calling a
// generator function: the body runs on its own fiber, suspended at
// every `yield`/`yield*`, and driven forward one step per next() call
// (spec §4.F "Generators").
func (ev *Evaluator) startGenerator(lit *sbast.FunctionLiteral, closureEnv *environment.Environment, homeObject *value.Object, fn *value.Function, this value.Value, args []value.Value) value.Value {
	fb := newFiber()
	g := value.NewObject(ev.realm.objectProto)
	g.ClassName = "Generator"
	g.Internal = map[string]any{"fiber": fb}

	var fr *frame
	start := func() {
		env := closureEnv.NewChild(environment.ScopeFunction)
		_ = ev.bindParams(nil, env, lit, args)
		fr = &frame{this: resolveThis(lit, this), homeObject: homeObject, fn: fn}
		fb.run(func(suspend func(value.Value) resumeMsg) {
			fr.suspend = suspend
			v, err := ev.execFunctionBlock(fr, env, lit.Body)
			if err != nil {
				panic(fiberCompletion{err: err})
			}
			panic(fiberCompletion{val: v})
		})
	}

	iterResult := func(v value.Value, done bool) value.Value {
		o := value.NewObject(ev.realm.objectProto)
		o.DefineOwn("value", &value.Property{Value: v, Writable: true, Enumerable: true, Configurable: true})
		o.DefineOwn("done", &value.Property{Value: value.Bool(done), Writable: true, Enumerable: true, Configurable: true})
		return value.ObjectValue(o)
	}

	step := func(msg resumeMsg) (value.Value, error) {
		if fb.done {
			return iterResult(value.Undefined, true), nil
		}
		var y yieldMsg
		if !fb.started {
			start()
			y = fb.resume(msg)
		} else {
			y = fb.resume(msg)
		}
		switch y.kind {
		case yieldValue:
			return iterResult(y.val, false), nil
		case yieldDone:
			return iterResult(y.val, true), nil
		default:
			if ts, ok := y.err.(*ThrowSignal); ok {
				return value.Undefined, ts
			}
			return value.Undefined, y.err
		}
	}

	next := &value.Function{Name: "next", Kind: value.KindHostAdapted, Call: func(_ value.Value, args []value.Value) (value.Value, error) {
		var arg value.Value = value.Undefined
		if len(args) > 0 {
			arg = args[0]
		}
		return step(resumeMsg{kind: resumeNext, val: arg})
	}}
	throwM := &value.Function{Name: "throw", Kind: value.KindHostAdapted, Call: func(_ value.Value, args []value.Value) (value.Value, error) {
		var arg value.Value = value.Undefined
		if len(args) > 0 {
			arg = args[0]
		}
		if !fb.started {
			return value.Undefined, &ThrowSignal{Value: arg}
		}
		return step(resumeMsg{kind: resumeThrow, val: arg})
	}}
	returnM := &value.Function{Name: "return", Kind: value.KindHostAdapted, Call: func(_ value.Value, args []value.Value) (value.Value, error) {
		var arg value.Value = value.Undefined
		if len(args) > 0 {
			arg = args[0]
		}
		if !fb.started || fb.done {
			return iterResult(arg, true), nil
		}
		return step(resumeMsg{kind: resumeReturn, val: arg})
	}}
	g.DefineOwn("next", &value.Property{Value: value.FunctionValue(next), Writable: true, Configurable: true})
	g.DefineOwn("throw", &value.Property{Value: value.FunctionValue(throwM), Writable: true, Configurable: true})
	g.DefineOwn("return", &value.Property{Value: value.FunctionValue(returnM), Writable: true, Configurable: true})
	return value.ObjectValue(g)
}

// drainGenerator runs a Generator object to completion via its next()
// method, collecting every yielded value — used by spread/destructuring
// and for-of over a generator.
func (ev *Evaluator) drainGenerator(fr *frame, g *value.Object) ([]value.Value, error) {
	nextProp := g.GetOwn("next")
	if nextProp == nil {
		return nil, nil
	}
	next := nextProp.Value.Function()
	var out []value.Value
	for {
		res, err := ev.callFunction(fr, next, value.ObjectValue(g), nil)
		if err != nil {
			return nil, err
		}
		done, _ := ev.getProp(fr, res, "done")
		if done.Truthy() {
			return out, nil
		}
		v, _ := ev.getProp(fr, res, "value")
		out = append(out, v)
	}
}
