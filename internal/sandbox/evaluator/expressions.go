package evaluator

import (
	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

func (ev *Evaluator) evalExpr(fr *frame, env *environment.Environment, expr sbast.Expression) (value.Value, error) {
	if err := ev.checkGate(expr); err != nil {
		return value.Undefined, err
	}
	switch e := expr.(type) {
	case *sbast.NumberLiteral:
		return value.Number(e.Value), nil
	case *sbast.BigIntLiteral:
		n, err := value.ParseBigInt(e.Raw)
		if err != nil {
			return value.Undefined, throwErr(errmodel.SyntaxError, "invalid BigInt literal %q", e.Raw)
		}
		return value.BigInt(n), nil
	case *sbast.StringLiteral:
		return value.String(e.Value), nil
	case *sbast.BooleanLiteral:
		return value.Bool(e.Value), nil
	case *sbast.NullLiteral:
		return value.Null, nil
	case *sbast.UndefinedLiteral:
		return value.Undefined, nil
	case *sbast.Identifier:
		return ev.lookupIdentifier(env, e.Name)
	case *sbast.ThisExpression:
		return fr.this, nil
	case *sbast.TemplateLiteral:
		return ev.evalTemplate(fr, env, e)
	case *sbast.ArrayLiteral:
		return ev.evalArrayLiteral(fr, env, e)
	case *sbast.ObjectLiteral:
		return ev.evalObjectLiteral(fr, env, e)
	case *sbast.FunctionLiteral:
		return value.FunctionValue(ev.makeFunction(e, env, fr.homeObjectOrNil())), nil
	case *sbast.ClassLiteral:
		return ev.evalClass(fr, env, e)
	case *sbast.UnaryExpression:
		return ev.evalUnary(fr, env, e)
	case *sbast.BinaryExpression:
		return ev.evalBinary(fr, env, e)
	case *sbast.AssignmentExpression:
		return ev.evalAssignment(fr, env, e)
	case *sbast.ConditionalExpression:
		t, err := ev.evalExpr(fr, env, e.Test)
		if err != nil {
			return value.Undefined, err
		}
		if t.Truthy() {
			return ev.evalExpr(fr, env, e.Consequent)
		}
		return ev.evalExpr(fr, env, e.Alternate)
	case *sbast.SequenceExpression:
		var last value.Value = value.Undefined
		for _, sub := range e.Expressions {
			v, err := ev.evalExpr(fr, env, sub)
			if err != nil {
				return value.Undefined, err
			}
			last = v
		}
		return last, nil
	case *sbast.MemberExpression:
		v, _, err := ev.evalMember(fr, env, e)
		return v, err
	case *sbast.CallExpression:
		return ev.evalCall(fr, env, e)
	case *sbast.NewExpression:
		return ev.evalNew(fr, env, e)
	case *sbast.SpreadElement:
		// reaching a bare SpreadElement means it appeared somewhere other
		// than a call/array/object literal's element list, which the
		// compiler should never produce.
		return value.Undefined, throwErr(errmodel.SyntaxError, "unexpected spread element")
	}
	return value.Undefined, throwErr(errmodel.SyntaxError, "unsupported expression %s", expr.Kind())
}

func (fr *frame) homeObjectOrNil() *value.Object {
	if fr == nil {
		return nil
	}
	return fr.homeObject
}

func (ev *Evaluator) lookupIdentifier(env *environment.Environment, name string) (value.Value, error) {
	b, _ := env.Lookup(name)
	if b == nil {
		return value.Undefined, throwErr(errmodel.ReferenceError, "%s is not defined", name)
	}
	if !b.Initialized {
		return value.Undefined, throwErr(errmodel.ReferenceError, "cannot access '%s' before initialization", name)
	}
	return b.Value, nil
}

func (ev *Evaluator) evalTemplate(fr *frame, env *environment.Environment, t *sbast.TemplateLiteral) (value.Value, error) {
	var sb []byte
	sb = append(sb, t.Quasis[0]...)
	for i, expr := range t.Expressions {
		v, err := ev.evalExpr(fr, env, expr)
		if err != nil {
			return value.Undefined, err
		}
		sb = append(sb, value.ToString(v)...)
		sb = append(sb, t.Quasis[i+1]...)
	}
	return value.String(string(sb)), nil
}

func (ev *Evaluator) evalArrayLiteral(fr *frame, env *environment.Environment, a *sbast.ArrayLiteral) (value.Value, error) {
	var items []value.Value
	for _, el := range a.Elements {
		if el == nil {
			items = append(items, value.Undefined)
			continue
		}
		if sp, ok := el.(*sbast.SpreadElement); ok {
			sv, err := ev.evalExpr(fr, env, sp.Argument)
			if err != nil {
				return value.Undefined, err
			}
			more, err := ev.iterateToSlice(fr, sv)
			if err != nil {
				return value.Undefined, err
			}
			items = append(items, more...)
			continue
		}
		v, err := ev.evalExpr(fr, env, el)
		if err != nil {
			return value.Undefined, err
		}
		items = append(items, v)
	}
	return ev.newArray(items), nil
}

func (ev *Evaluator) evalObjectLiteral(fr *frame, env *environment.Environment, o *sbast.ObjectLiteral) (value.Value, error) {
	obj := value.NewObject(ev.realm.objectProto)
	for _, prop := range o.Properties {
		if prop.Kind == sbast.PropertySpread {
			sv, err := ev.evalExpr(fr, env, prop.Value)
			if err != nil {
				return value.Undefined, err
			}
			if sv.IsObject() {
				for _, k := range sv.Object().OwnKeys() {
					pv, err := ev.getProp(fr, sv, k)
					if err != nil {
						return value.Undefined, err
					}
					obj.DefineOwn(k, &value.Property{Value: pv, Writable: true, Enumerable: true, Configurable: true})
				}
			}
			continue
		}
		key := prop.Key
		if prop.Computed != nil {
			kv, err := ev.evalExpr(fr, env, prop.Computed)
			if err != nil {
				return value.Undefined, err
			}
			key = value.ToString(kv)
		}
		switch prop.Kind {
		case sbast.PropertyGetter, sbast.PropertySetter:
			fnLit := prop.Value.(*sbast.FunctionLiteral)
			fn := ev.makeFunction(fnLit, env, obj)
			existing := obj.GetOwn(key)
			p := &value.Property{IsAccessor: true, Enumerable: true, Configurable: true}
			if existing != nil && existing.IsAccessor {
				p.Getter, p.Setter = existing.Getter, existing.Setter
			}
			if prop.Kind == sbast.PropertyGetter {
				p.Getter = fn
			} else {
				p.Setter = fn
			}
			obj.DefineOwn(key, p)
		default:
			v, err := ev.evalExpr(fr, env, prop.Value)
			if err != nil {
				return value.Undefined, err
			}
			if fnLit, ok := prop.Value.(*sbast.FunctionLiteral); ok && fnLit.IsMethod {
				if f := v.Function(); f != nil {
					f.HomeObject = obj
				}
			}
			obj.DefineOwn(key, &value.Property{Value: v, Writable: true, Enumerable: true, Configurable: true})
		}
	}
	return value.ObjectValue(obj), nil
}

// evalMember evaluates a MemberExpression, also returning the receiver
// value (`this` for the ensuing call, if any) so CallExpression can bind
// method calls' `this` without re-evaluating the object subexpression.
func (ev *Evaluator) evalMember(fr *frame, env *environment.Environment, m *sbast.MemberExpression) (value.Value, value.Value, error) {
	if _, ok := m.Object.(*sbast.SuperExpression); ok {
		return ev.evalSuperMember(fr, env, m)
	}
	obj, err := ev.evalExpr(fr, env, m.Object)
	if err != nil {
		return value.Undefined, value.Undefined, err
	}
	if m.Optional && obj.IsNullish() {
		return value.Undefined, obj, nil
	}
	key, err := ev.memberKey(fr, env, m)
	if err != nil {
		return value.Undefined, obj, err
	}
	v, err := ev.getProp(fr, obj, key)
	return v, obj, err
}

func (ev *Evaluator) evalSuperMember(fr *frame, env *environment.Environment, m *sbast.MemberExpression) (value.Value, value.Value, error) {
	if fr == nil || fr.homeObject == nil || fr.homeObject.Proto == nil {
		return value.Undefined, value.Undefined, throwErr(errmodel.SyntaxError, "'super' keyword is only valid inside a class method")
	}
	key, err := ev.memberKey(fr, env, m)
	if err != nil {
		return value.Undefined, value.Undefined, err
	}
	p, _ := fr.homeObject.Proto.Lookup(key)
	if p == nil {
		return value.Undefined, fr.this, nil
	}
	if p.IsAccessor {
		if p.Getter == nil {
			return value.Undefined, fr.this, nil
		}
		v, err := ev.callFunction(fr, p.Getter, fr.this, nil)
		return v, fr.this, err
	}
	return p.Value, fr.this, nil
}
