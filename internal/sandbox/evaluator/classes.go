package evaluator

import (
	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// evalClass builds the constructor Function for a class declaration or
// expression (spec §4.F "Classes"): instance methods/accessors live on
// ctor.Proto, static members live directly on the ctor Function's own
// Props, instance fields are recorded for the constructor closure to
// install on every new instance before running any user constructor
// body, and a private field/method is just an ordinary property whose
// key happens to start with '#' and whose Enumerable flag is false, so
// for-in/Object.keys/JSON.stringify never surface it while ordinary
// property lookup (which doesn't filter on Enumerable) still finds it.
func (ev *Evaluator) evalClass(fr *frame, env *environment.Environment, cls *sbast.ClassLiteral) (value.Value, error) {
	var superCtor *value.Function
	if cls.SuperClass != nil {
		sv, err := ev.evalExpr(fr, env, cls.SuperClass)
		if err != nil {
			return value.Undefined, err
		}
		if !sv.IsFunction() {
			return value.Undefined, throwErr(errmodel.TypeError, "class extends value is not a constructor")
		}
		superCtor = sv.Function()
	}

	proto := value.NewObject(ev.realm.objectProto)
	if superCtor != nil && superCtor.Proto != nil {
		proto.Proto = superCtor.Proto
	}

	var instanceFields []sbast.ClassMember
	var ctorLit *sbast.FunctionLiteral

	ctor := &value.Function{Name: cls.Name, Kind: value.KindInterpreted, Constructable: true, Proto: proto}
	proto.DefineOwn("constructor", &value.Property{Value: value.FunctionValue(ctor), Writable: true, Configurable: true})

	classEnv := env.NewChild(environment.ScopeBlock)
	if cls.Name != "" {
		classEnv.Declare(cls.Name, environment.KindConst)
		classEnv.Initialize(cls.Name, value.FunctionValue(ctor))
	}

	for _, m := range cls.Members {
		m := m
		key := memberKeyStatic(m)
		switch m.Kind {
		case sbast.MemberField:
			if m.Static {
				var v value.Value = value.Undefined
				if m.Value != nil {
					var err error
					v, err = ev.evalExpr(&frame{this: value.FunctionValue(ctor), homeObject: proto}, classEnv, m.Value)
					if err != nil {
						return value.Undefined, err
					}
				}
				ev.setProp(fr, value.FunctionValue(ctor), key, v)
			} else {
				instanceFields = append(instanceFields, m)
			}
			continue
		}
		fnLit, _ := m.Value.(*sbast.FunctionLiteral)
		if fnLit == nil {
			continue
		}
		if fnLit.Name == "constructor" || key == "constructor" && m.Kind == sbast.MemberMethod && !m.Static {
			ctorLit = fnLit
			continue
		}
		home := proto
		if m.Static {
			home = nil // static methods resolve `super` against the superclass constructor instead; not modeled further
		}
		fn := ev.makeFunction(fnLit, classEnv, home)
		fn.Constructable = false
		target := proto
		if m.Static {
			if ctor.Props == nil {
				ctor.Props = value.NewObject(ev.realm.objectProto)
			}
			target = ctor.Props
		}
		switch m.Kind {
		case sbast.MemberGetter, sbast.MemberSetter:
			existing := target.GetOwn(key)
			p := &value.Property{IsAccessor: true, Configurable: true, Enumerable: !m.Private}
			if existing != nil && existing.IsAccessor {
				p.Getter, p.Setter = existing.Getter, existing.Setter
			}
			if m.Kind == sbast.MemberGetter {
				p.Getter = fn
			} else {
				p.Setter = fn
			}
			target.DefineOwn(key, p)
		default:
			target.DefineOwn(key, &value.Property{Value: value.FunctionValue(fn), Writable: true, Configurable: true, Enumerable: false})
		}
	}

	call := func(this value.Value, args []value.Value) (value.Value, error) {
		return value.Undefined, throwErr(errmodel.TypeError, "class constructor %s cannot be invoked without 'new'", displayName(cls.Name))
	}
	ctor.Call = call
	ctor.Construct = func(this value.Value, args []value.Value, newTarget *value.Function) (value.Value, error) {
		instFr := &frame{this: this, newTarget: newTarget, homeObject: proto, fn: ctor, superClass: superCtor}
		if superCtor == nil {
			if err := ev.initInstanceFields(instFr, classEnv, proto, instanceFields); err != nil {
				return value.Undefined, err
			}
		}
		if ctorLit != nil {
			fnEnv := classEnv.NewChild(environment.ScopeFunction)
			if err := ev.bindParams(instFr, fnEnv, ctorLit, args); err != nil {
				return value.Undefined, err
			}
			instFr.pendingFieldInit = func() error { return ev.initInstanceFields(instFr, classEnv, proto, instanceFields) }
			v, err := ev.execFunctionBlock(instFr, fnEnv, ctorLit.Body)
			if err != nil {
				return value.Undefined, err
			}
			if v.IsObject() {
				return v, nil
			}
			return this, nil
		}
		if superCtor != nil {
			if superCtor.Construct != nil {
				if _, err := superCtor.Construct(this, args, newTarget); err != nil {
					return value.Undefined, err
				}
			}
			if err := ev.initInstanceFields(instFr, classEnv, proto, instanceFields); err != nil {
				return value.Undefined, err
			}
		}
		return this, nil
	}
	return value.FunctionValue(ctor), nil
}

func (ev *Evaluator) initInstanceFields(fr *frame, env *environment.Environment, target *value.Object, fields []sbast.ClassMember) error {
	for _, m := range fields {
		key := memberKeyStatic(m)
		var v value.Value = value.Undefined
		if m.Value != nil {
			var err error
			v, err = ev.evalExpr(fr, env, m.Value)
			if err != nil {
				return err
			}
		}
		ev.setProp(fr, fr.this, key, v)
		_ = target
	}
	return nil
}

func memberKeyStatic(m sbast.ClassMember) string {
	key := m.Key
	if m.Private {
		key = "#" + key
	}
	return key
}
