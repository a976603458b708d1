package evaluator

import (
	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

var compoundOps = map[string]sbast.BinaryOperator{
	"+=": sbast.OpAdd, "-=": sbast.OpSub, "*=": sbast.OpMul, "/=": sbast.OpDiv,
	"%=": sbast.OpMod, "**=": sbast.OpExp, "&=": sbast.OpBitAnd, "|=": sbast.OpBitOr,
	"^=": sbast.OpBitXor, "<<=": sbast.OpShl, ">>=": sbast.OpShr, ">>>=": sbast.OpUShr,
}

func (ev *Evaluator) evalAssignment(fr *frame, env *environment.Environment, a *sbast.AssignmentExpression) (value.Value, error) {
	if a.Operator == "=" {
		v, err := ev.evalExpr(fr, env, a.Value)
		if err != nil {
			return value.Undefined, err
		}
		if err := ev.assignTarget(fr, env, a.Target, v); err != nil {
			return value.Undefined, err
		}
		return v, nil
	}
	if a.Operator == "&&=" || a.Operator == "||=" || a.Operator == "??=" {
		targetExpr, ok := a.Target.(sbast.Expression)
		if !ok {
			return value.Undefined, throwErr(errmodel.SyntaxError, "invalid assignment target")
		}
		old, err := ev.evalExpr(fr, env, targetExpr)
		if err != nil {
			return value.Undefined, err
		}
		switch a.Operator {
		case "&&=":
			if !old.Truthy() {
				return old, nil
			}
		case "||=":
			if old.Truthy() {
				return old, nil
			}
		case "??=":
			if !old.IsNullish() {
				return old, nil
			}
		}
		v, err := ev.evalExpr(fr, env, a.Value)
		if err != nil {
			return value.Undefined, err
		}
		if err := ev.assignTarget(fr, env, a.Target, v); err != nil {
			return value.Undefined, err
		}
		return v, nil
	}

	op, ok := compoundOps[a.Operator]
	if !ok {
		return value.Undefined, throwErr(errmodel.SyntaxError, "unsupported assignment operator %s", a.Operator)
	}
	targetExpr, ok := a.Target.(sbast.Expression)
	if !ok {
		return value.Undefined, throwErr(errmodel.SyntaxError, "invalid assignment target")
	}
	old, err := ev.evalExpr(fr, env, targetExpr)
	if err != nil {
		return value.Undefined, err
	}
	rhs, err := ev.evalExpr(fr, env, a.Value)
	if err != nil {
		return value.Undefined, err
	}
	nv, err := ev.applyBinary(op, old, rhs)
	if err != nil {
		return value.Undefined, err
	}
	if err := ev.assignTarget(fr, env, a.Target, nv); err != nil {
		return value.Undefined, err
	}
	return nv, nil
}
