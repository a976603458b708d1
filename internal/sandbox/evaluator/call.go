package evaluator

import (
	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

func (ev *Evaluator) evalArgs(fr *frame, env *environment.Environment, args []sbast.Expression) ([]value.Value, error) {
	var out []value.Value
	for _, a := range args {
		if sp, ok := a.(*sbast.SpreadElement); ok {
			sv, err := ev.evalExpr(fr, env, sp.Argument)
			if err != nil {
				return nil, err
			}
			more, err := ev.iterateToSlice(fr, sv)
			if err != nil {
				return nil, err
			}
			out = append(out, more...)
			continue
		}
		v, err := ev.evalExpr(fr, env, a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (ev *Evaluator) evalCall(fr *frame, env *environment.Environment, c *sbast.CallExpression) (value.Value, error) {
	if err := ev.checkCancelled(); err != nil {
		return value.Undefined, err
	}
	if _, ok := c.Callee.(*sbast.SuperExpression); ok {
		return ev.evalSuperCall(fr, env, c)
	}

	var callee value.Value
	var this value.Value = value.Undefined
	var err error
	if m, ok := c.Callee.(*sbast.MemberExpression); ok {
		callee, this, err = ev.evalMember(fr, env, m)
		if err != nil {
			return value.Undefined, err
		}
		if m.Optional && callee.IsNullish() {
			return value.Undefined, nil
		}
	} else {
		callee, err = ev.evalExpr(fr, env, c.Callee)
		if err != nil {
			return value.Undefined, err
		}
	}
	if c.Optional && callee.IsNullish() {
		return value.Undefined, nil
	}
	args, err := ev.evalArgs(fr, env, c.Args)
	if err != nil {
		return value.Undefined, err
	}
	if !callee.IsFunction() {
		return value.Undefined, throwErr(errmodel.TypeError, "%s is not a function", calleeDisplay(c.Callee))
	}
	return ev.callFunction(fr, callee.Function(), this, args)
}

func calleeDisplay(e sbast.Expression) string {
	switch n := e.(type) {
	case *sbast.Identifier:
		return n.Name
	case *sbast.MemberExpression:
		if id, ok := n.Property.(*sbast.Identifier); ok && !n.Computed {
			return id.Name
		}
	}
	return "value"
}

func (ev *Evaluator) evalSuperCall(fr *frame, env *environment.Environment, c *sbast.CallExpression) (value.Value, error) {
	if fr == nil || fr.superClass == nil {
		return value.Undefined, throwErr(errmodel.SyntaxError, "'super' keyword is unexpected here")
	}
	args, err := ev.evalArgs(fr, env, c.Args)
	if err != nil {
		return value.Undefined, err
	}
	if fr.superClass.Construct != nil {
		if _, err := fr.superClass.Construct(fr.this, args, fr.newTarget); err != nil {
			return value.Undefined, err
		}
	}
	if fr.pendingFieldInit != nil {
		init := fr.pendingFieldInit
		fr.pendingFieldInit = nil
		if err := init(); err != nil {
			return value.Undefined, err
		}
	}
	return value.Undefined, nil
}

func (ev *Evaluator) evalNew(fr *frame, env *environment.Environment, n *sbast.NewExpression) (value.Value, error) {
	calleeV, err := ev.evalExpr(fr, env, n.Callee)
	if err != nil {
		return value.Undefined, err
	}
	if !calleeV.IsFunction() || !calleeV.Function().Constructable || calleeV.Function().Construct == nil {
		return value.Undefined, throwErr(errmodel.TypeError, "%s is not a constructor", calleeDisplay(n.Callee))
	}
	f := calleeV.Function()
	args, err := ev.evalArgs(fr, env, n.Args)
	if err != nil {
		return value.Undefined, err
	}
	inst := value.NewObject(f.Proto)
	return f.Construct(value.ObjectValue(inst), args, f)
}
