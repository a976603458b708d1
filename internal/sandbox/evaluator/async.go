package evaluator

import (
	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// runAsyncFunction calls an async function: its body runs on a fiber
// suspended at every `await`, and the call returns a Promise
// immediately — settled synchronously if the body never actually
// suspends on a pending thenable, or resumed later through the task
// loop otherwise (spec §4.F "Async functions", §5).
func (ev *Evaluator) runAsyncFunction(lit *sbast.FunctionLiteral, closureEnv *environment.Environment, homeObject *value.Object, fn *value.Function, this value.Value, args []value.Value) (value.Value, error) {
	p, resolve, reject := newPromise(ev)
	fb := newFiber()
	env := closureEnv.NewChild(environment.ScopeFunction)
	if err := ev.bindParams(nil, env, lit, args); err != nil {
		return value.Undefined, err
	}
	fr := &frame{this: resolveThis(lit, this), homeObject: homeObject, fn: fn}
	fb.run(func(suspend func(value.Value) resumeMsg) {
		fr.suspend = suspend
		v, err := ev.execFunctionBlock(fr, env, lit.Body)
		if err != nil {
			panic(fiberCompletion{err: err})
		}
		panic(fiberCompletion{val: v})
	})
	y := fb.resume(resumeMsg{kind: resumeNext})
	if err := ev.driveFiber(fb, y, resolve, reject); err != nil {
		return value.Undefined, err
	}
	return value.ObjectValue(p), nil
}
