package evaluator

import (
	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// bindPattern initializes an already-declared (hoisted) binding pattern
// with v — used for variable declarations, parameter binding, and
// catch-clause binding (spec §4.E "Destructuring").
func (ev *Evaluator) bindPattern(fr *frame, env *environment.Environment, pat sbast.Pattern, v value.Value) error {
	switch p := pat.(type) {
	case *sbast.Identifier:
		return env.Initialize(p.Name, v)
	case *sbast.AssignmentPattern:
		if v.IsUndefined() {
			dv, err := ev.evalExpr(fr, env, p.Default)
			if err != nil {
				return err
			}
			v = dv
		}
		return ev.bindPattern(fr, env, p.Target, v)
	case *sbast.ArrayPattern:
		return ev.bindArrayPattern(fr, env, p, v)
	case *sbast.ObjectPattern:
		return ev.bindObjectPattern(fr, env, p, v)
	}
	return nil
}

func (ev *Evaluator) bindArrayPattern(fr *frame, env *environment.Environment, p *sbast.ArrayPattern, v value.Value) error {
	items, err := ev.iterateToSlice(fr, v)
	if err != nil {
		return err
	}
	for i, el := range p.Elements {
		if el.Target == nil {
			continue
		}
		var iv value.Value
		if i < len(items) {
			iv = items[i]
		} else {
			iv = value.Undefined
		}
		if iv.IsUndefined() && el.Default != nil {
			dv, err := ev.evalExpr(fr, env, el.Default)
			if err != nil {
				return err
			}
			iv = dv
		}
		if err := ev.bindPattern(fr, env, el.Target, iv); err != nil {
			return err
		}
	}
	if p.Rest != nil {
		var rest []value.Value
		if len(items) > len(p.Elements) {
			rest = append(rest, items[len(p.Elements):]...)
		}
		if err := ev.bindPattern(fr, env, p.Rest, ev.newArray(rest)); err != nil {
			return err
		}
	}
	return nil
}

func (ev *Evaluator) bindObjectPattern(fr *frame, env *environment.Environment, p *sbast.ObjectPattern, v value.Value) error {
	used := map[string]bool{}
	for _, prop := range p.Properties {
		key := prop.Key
		if prop.Computed != nil {
			kv, err := ev.evalExpr(fr, env, prop.Computed)
			if err != nil {
				return err
			}
			key = value.ToString(kv)
		}
		used[key] = true
		pv, err := ev.getProp(fr, v, key)
		if err != nil {
			return err
		}
		if pv.IsUndefined() && prop.Default != nil {
			dv, err := ev.evalExpr(fr, env, prop.Default)
			if err != nil {
				return err
			}
			pv = dv
		}
		if err := ev.bindPattern(fr, env, prop.Value, pv); err != nil {
			return err
		}
	}
	if p.Rest != nil {
		rest := value.NewObject(ev.realm.objectProto)
		if v.IsObject() {
			for _, k := range v.Object().OwnKeys() {
				if used[k] {
					continue
				}
				pv, _ := ev.getProp(fr, v, k)
				rest.DefineOwn(k, &value.Property{Value: pv, Writable: true, Enumerable: true, Configurable: true})
			}
		}
		if err := ev.bindPattern(fr, env, p.Rest, value.ObjectValue(rest)); err != nil {
			return err
		}
	}
	return nil
}

// assignTarget implements assignment to an already-existing binding or
// property — used by AssignmentExpression, ForInStatement/ForOfStatement
// targets without a declaration, and destructuring assignment (as
// opposed to destructuring declaration, which goes through bindPattern).
func (ev *Evaluator) assignTarget(fr *frame, env *environment.Environment, target sbast.Node, v value.Value) error {
	switch t := target.(type) {
	case *sbast.Identifier:
		if err := env.Assign(t.Name, v); err != nil {
			return &ThrowSignal{Value: errorValue(errmodel.ReferenceError, "%s", err.Error())}
		}
		return nil
	case *sbast.MemberExpression:
		objVal, err := ev.evalExpr(fr, env, t.Object)
		if err != nil {
			return err
		}
		key, err := ev.memberKey(fr, env, t)
		if err != nil {
			return err
		}
		return ev.setProp(fr, objVal, key, v)
	case *sbast.AssignmentPattern:
		if v.IsUndefined() {
			dv, err := ev.evalExpr(fr, env, t.Default)
			if err != nil {
				return err
			}
			v = dv
		}
		return ev.assignTarget(fr, env, t.Target, v)
	case *sbast.ArrayPattern:
		items, err := ev.iterateToSlice(fr, v)
		if err != nil {
			return err
		}
		for i, el := range t.Elements {
			if el.Target == nil {
				continue
			}
			var iv value.Value
			if i < len(items) {
				iv = items[i]
			} else {
				iv = value.Undefined
			}
			if err := ev.assignTarget(fr, env, el.Target, iv); err != nil {
				return err
			}
		}
		if t.Rest != nil {
			var rest []value.Value
			if len(items) > len(t.Elements) {
				rest = append(rest, items[len(t.Elements):]...)
			}
			if err := ev.assignTarget(fr, env, t.Rest, ev.newArray(rest)); err != nil {
				return err
			}
		}
		return nil
	case *sbast.ObjectPattern:
		for _, prop := range t.Properties {
			key := prop.Key
			if prop.Computed != nil {
				kv, err := ev.evalExpr(fr, env, prop.Computed)
				if err != nil {
					return err
				}
				key = value.ToString(kv)
			}
			pv, err := ev.getProp(fr, v, key)
			if err != nil {
				return err
			}
			if err := ev.assignTarget(fr, env, prop.Value, pv); err != nil {
				return err
			}
		}
		return nil
	}
	return throwErr(errmodel.ReferenceError, "invalid assignment target")
}

// memberKey evaluates a MemberExpression's property name, handling both
// dotted (Identifier) and computed access.
func (ev *Evaluator) memberKey(fr *frame, env *environment.Environment, m *sbast.MemberExpression) (string, error) {
	if !m.Computed {
		return m.Property.(*sbast.Identifier).Name, nil
	}
	kv, err := ev.evalExpr(fr, env, m.Property)
	if err != nil {
		return "", err
	}
	return value.ToString(kv), nil
}
