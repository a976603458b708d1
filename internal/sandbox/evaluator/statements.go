package evaluator

import (
	"errors"

	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/task"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

func (ev *Evaluator) execStmt(fr *frame, env *environment.Environment, s sbast.Statement) (Completion, error) {
	if err := ev.checkGate(s); err != nil {
		return Completion{}, err
	}
	if err := ev.checkCancelled(); err != nil {
		return Completion{}, err
	}
	switch n := s.(type) {
	case *sbast.EmptyStatement:
		return normal(value.Undefined), nil
	case *sbast.ExpressionStatement:
		v, err := ev.evalExpr(fr, env, n.Expression)
		return normal(v), err
	case *sbast.VariableDeclaration:
		return ev.execVarDecl(fr, env, n)
	case *sbast.FunctionDeclaration:
		return normal(value.Undefined), nil // already bound in declareBlockScoped
	case *sbast.ClassDeclaration:
		v, err := ev.evalClass(fr, env, n.Class)
		if err != nil {
			return Completion{}, err
		}
		return normal(value.Undefined), env.Initialize(n.Class.Name, v)
	case *sbast.BlockStatement:
		return ev.execBlock(fr, env, n.Body)
	case *sbast.IfStatement:
		t, err := ev.evalExpr(fr, env, n.Test)
		if err != nil {
			return Completion{}, err
		}
		if t.Truthy() {
			return ev.execStmt(fr, env, n.Consequent)
		}
		if n.Alternate != nil {
			return ev.execStmt(fr, env, n.Alternate)
		}
		return normal(value.Undefined), nil
	case *sbast.WhileStatement:
		return ev.execWhile(fr, env, n)
	case *sbast.DoWhileStatement:
		return ev.execDoWhile(fr, env, n)
	case *sbast.ForStatement:
		return ev.execFor(fr, env, n)
	case *sbast.ForInStatement:
		return ev.execForIn(fr, env, n)
	case *sbast.ForOfStatement:
		return ev.execForOf(fr, env, n)
	case *sbast.SwitchStatement:
		return ev.execSwitch(fr, env, n)
	case *sbast.BreakStatement:
		return Completion{Type: CompletionBreak, Label: n.Label}, nil
	case *sbast.ContinueStatement:
		return Completion{Type: CompletionContinue, Label: n.Label}, nil
	case *sbast.ReturnStatement:
		var v value.Value = value.Undefined
		if n.Argument != nil {
			var err error
			v, err = ev.evalExpr(fr, env, n.Argument)
			if err != nil {
				return Completion{}, err
			}
		}
		return Completion{Type: CompletionReturn, Value: v}, nil
	case *sbast.ThrowStatement:
		v, err := ev.evalExpr(fr, env, n.Argument)
		if err != nil {
			return Completion{}, err
		}
		return Completion{}, throwValue(v)
	case *sbast.TryStatement:
		return ev.execTry(fr, env, n)
	case *sbast.LabeledStatement:
		c, err := ev.execStmt(fr, env, n.Body)
		if err != nil {
			return Completion{}, err
		}
		if (c.Type == CompletionBreak || c.Type == CompletionContinue) && c.Label == n.Label {
			return normal(value.Undefined), nil
		}
		return c, nil
	}
	return Completion{}, throwErr(errmodel.SyntaxError, "unsupported statement %s", s.Kind())
}

func (ev *Evaluator) execBlock(fr *frame, env *environment.Environment, body []sbast.Statement) (Completion, error) {
	blockEnv := env.NewChild(environment.ScopeBlock)
	if err := ev.declareBlockScoped(blockEnv, body); err != nil {
		return Completion{}, err
	}
	for _, s := range body {
		c, err := ev.execStmt(fr, blockEnv, s)
		if err != nil {
			return Completion{}, err
		}
		if isAbrupt(c) {
			return c, nil
		}
	}
	return normal(value.Undefined), nil
}

func (ev *Evaluator) execVarDecl(fr *frame, env *environment.Environment, n *sbast.VariableDeclaration) (Completion, error) {
	for _, d := range n.Declarations {
		var v value.Value = value.Undefined
		if d.Initializer != nil {
			var err error
			v, err = ev.evalExpr(fr, env, d.Initializer)
			if err != nil {
				return Completion{}, err
			}
			if fnLit, ok := d.Initializer.(*sbast.FunctionLiteral); ok && fnLit.Name == "" {
				if id, ok := d.Target.(*sbast.Identifier); ok {
					if f := v.Function(); f != nil {
						f.Name = id.Name
					}
				}
			}
		} else if n.DeclKind == sbast.KindVar {
			// re-assigning an already-hoisted var with no initializer is a
			// no-op, not an overwrite with undefined.
			if id, ok := d.Target.(*sbast.Identifier); ok {
				if b, _ := env.Lookup(id.Name); b != nil && b.Initialized {
					continue
				}
			}
		}
		if err := ev.bindPattern(fr, env, d.Target, v); err != nil {
			return Completion{}, err
		}
	}
	return normal(value.Undefined), nil
}

func (ev *Evaluator) execWhile(fr *frame, env *environment.Environment, n *sbast.WhileStatement) (Completion, error) {
	for {
		t, err := ev.evalExpr(fr, env, n.Test)
		if err != nil {
			return Completion{}, err
		}
		if !t.Truthy() {
			return normal(value.Undefined), nil
		}
		c, err := ev.execStmt(fr, env, n.Body)
		if err != nil {
			return Completion{}, err
		}
		if stop, ret, err := loopControl(c); stop {
			return ret, err
		}
	}
}

func (ev *Evaluator) execDoWhile(fr *frame, env *environment.Environment, n *sbast.DoWhileStatement) (Completion, error) {
	for {
		c, err := ev.execStmt(fr, env, n.Body)
		if err != nil {
			return Completion{}, err
		}
		if stop, ret, err := loopControl(c); stop {
			return ret, err
		}
		t, err := ev.evalExpr(fr, env, n.Test)
		if err != nil {
			return Completion{}, err
		}
		if !t.Truthy() {
			return normal(value.Undefined), nil
		}
	}
}

func (ev *Evaluator) execFor(fr *frame, env *environment.Environment, n *sbast.ForStatement) (Completion, error) {
	loopEnv := env.NewChild(environment.ScopeBlock)
	var perIterNames []string
	if n.Init != nil {
		if initStmt, ok := n.Init.(sbast.Statement); ok {
			if vd, ok := initStmt.(*sbast.VariableDeclaration); ok && vd.DeclKind != sbast.KindVar {
				kind := environment.KindLet
				if vd.DeclKind == sbast.KindConst {
					kind = environment.KindConst
				}
				for _, d := range vd.Declarations {
					if err := declarePatternNames(loopEnv, d.Target, kind); err != nil {
						return Completion{}, err
					}
					perIterNames = append(perIterNames, collectPatternNames(d.Target)...)
				}
			}
			if _, err := ev.execStmt(fr, loopEnv, initStmt); err != nil {
				return Completion{}, err
			}
		} else if initExpr, ok := n.Init.(sbast.Expression); ok {
			if _, err := ev.evalExpr(fr, loopEnv, initExpr); err != nil {
				return Completion{}, err
			}
		}
	}
	for {
		// Each iteration gets a fresh Environment holding copies of the
		// `let`-declared loop variables so a closure created in the body
		// captures that iteration's value rather than whatever the
		// variable holds by the time the closure is later called (spec
		// §8 "closure-over-loop-variable").
		iterEnv := loopEnv.NewChild(environment.ScopeBlock)
		for _, name := range perIterNames {
			b, _ := loopEnv.Lookup(name)
			iterEnv.Declare(name, environment.KindLet)
			if b != nil {
				iterEnv.Initialize(name, b.Value)
			} else {
				iterEnv.Initialize(name, value.Undefined)
			}
		}
		if n.Test != nil {
			t, err := ev.evalExpr(fr, iterEnv, n.Test)
			if err != nil {
				return Completion{}, err
			}
			if !t.Truthy() {
				return normal(value.Undefined), nil
			}
		}
		c, err := ev.execStmt(fr, iterEnv, n.Body)
		if err != nil {
			return Completion{}, err
		}
		for _, name := range perIterNames {
			if b, _ := iterEnv.Lookup(name); b != nil {
				loopEnv.Assign(name, b.Value)
			}
		}
		if stop, ret, err := loopControl(c); stop {
			return ret, err
		}
		if n.Update != nil {
			if _, err := ev.evalExpr(fr, iterEnv, n.Update); err != nil {
				return Completion{}, err
			}
			for _, name := range perIterNames {
				if b, _ := iterEnv.Lookup(name); b != nil {
					loopEnv.Assign(name, b.Value)
				}
			}
		}
	}
}

func loopControl(c Completion) (stop bool, ret Completion, err error) {
	switch c.Type {
	case CompletionBreak:
		if c.Label == "" {
			return true, normal(value.Undefined), nil
		}
		return true, c, nil
	case CompletionContinue:
		if c.Label == "" {
			return false, Completion{}, nil
		}
		return true, c, nil
	case CompletionReturn:
		return true, c, nil
	default:
		return false, Completion{}, nil
	}
}

func (ev *Evaluator) execForIn(fr *frame, env *environment.Environment, n *sbast.ForInStatement) (Completion, error) {
	rv, err := ev.evalExpr(fr, env, n.Right)
	if err != nil {
		return Completion{}, err
	}
	if !rv.IsObject() {
		return normal(value.Undefined), nil
	}
	var keys []string
	if rv.Object().Host != nil {
		keys = rv.Object().Host.OwnKeys()
	} else {
		for _, k := range rv.Object().OwnKeys() {
			p := rv.Object().GetOwn(k)
			if p != nil && !p.Enumerable {
				continue
			}
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		iterEnv := env.NewChild(environment.ScopeBlock)
		if err := ev.bindForTarget(fr, iterEnv, n.DeclKind, n.Target, value.String(k)); err != nil {
			return Completion{}, err
		}
		c, err := ev.execStmt(fr, iterEnv, n.Body)
		if err != nil {
			return Completion{}, err
		}
		if stop, ret, err := loopControl(c); stop {
			return ret, err
		}
	}
	return normal(value.Undefined), nil
}

func (ev *Evaluator) execForOf(fr *frame, env *environment.Environment, n *sbast.ForOfStatement) (Completion, error) {
	rv, err := ev.evalExpr(fr, env, n.Right)
	if err != nil {
		return Completion{}, err
	}
	items, err := ev.iterateToSlice(fr, rv)
	if err != nil {
		return Completion{}, err
	}
	for _, item := range items {
		iterEnv := env.NewChild(environment.ScopeBlock)
		if err := ev.bindForTarget(fr, iterEnv, n.DeclKind, n.Target, item); err != nil {
			return Completion{}, err
		}
		c, err := ev.execStmt(fr, iterEnv, n.Body)
		if err != nil {
			return Completion{}, err
		}
		if stop, ret, err := loopControl(c); stop {
			return ret, err
		}
	}
	return normal(value.Undefined), nil
}

func (ev *Evaluator) bindForTarget(fr *frame, env *environment.Environment, declKind sbast.DeclarationKind, target sbast.Pattern, v value.Value) error {
	if declKind == "" {
		return ev.assignTarget(fr, env, target, v)
	}
	kind := environment.KindLet
	if declKind == sbast.KindVar {
		kind = environment.KindVar
	} else if declKind == sbast.KindConst {
		kind = environment.KindConst
	}
	if err := declarePatternNames(env, target, kind); err != nil {
		return err
	}
	return ev.bindPattern(fr, env, target, v)
}

func (ev *Evaluator) execSwitch(fr *frame, env *environment.Environment, n *sbast.SwitchStatement) (Completion, error) {
	d, err := ev.evalExpr(fr, env, n.Discriminant)
	if err != nil {
		return Completion{}, err
	}
	switchEnv := env.NewChild(environment.ScopeBlock)
	for _, c := range n.Cases {
		if err := ev.declareBlockScoped(switchEnv, c.Body); err != nil {
			return Completion{}, err
		}
	}
	matched := -1
	for i, c := range n.Cases {
		if c.Test == nil {
			continue
		}
		tv, err := ev.evalExpr(fr, switchEnv, c.Test)
		if err != nil {
			return Completion{}, err
		}
		if value.StrictEquals(d, tv) {
			matched = i
			break
		}
	}
	if matched == -1 {
		for i, c := range n.Cases {
			if c.Test == nil {
				matched = i
				break
			}
		}
	}
	if matched == -1 {
		return normal(value.Undefined), nil
	}
	for _, c := range n.Cases[matched:] {
		for _, s := range c.Body {
			cc, err := ev.execStmt(fr, switchEnv, s)
			if err != nil {
				return Completion{}, err
			}
			if cc.Type == CompletionBreak && cc.Label == "" {
				return normal(value.Undefined), nil
			}
			if isAbrupt(cc) {
				return cc, nil
			}
		}
	}
	return normal(value.Undefined), nil
}

func (ev *Evaluator) execTry(fr *frame, env *environment.Environment, n *sbast.TryStatement) (Completion, error) {
	c, err := ev.execBlock(fr, env, n.Block.Body)
	var fatal *errmodel.Error
	_, cancelled := err.(task.Cancelled)
	if err != nil && !cancelled && !(errors.As(err, &fatal) && fatal.Fatal) {
		if n.Catch != nil {
			var thrown value.Value
			if ts, ok := err.(*ThrowSignal); ok {
				thrown = ts.Value
			} else {
				thrown = errorValue(errmodel.Generic, "%s", err.Error())
			}
			catchEnv := env.NewChild(environment.ScopeCatch)
			if n.Catch.Param != nil {
				if derr := declarePatternNames(catchEnv, n.Catch.Param, environment.KindLet); derr != nil {
					return Completion{}, derr
				}
				if derr := ev.bindPattern(fr, catchEnv, n.Catch.Param, thrown); derr != nil {
					return Completion{}, derr
				}
			}
			c, err = ev.execBlock(fr, catchEnv, n.Catch.Body.Body)
		}
	}
	if n.Finally != nil {
		fc, ferr := ev.execBlock(fr, env, n.Finally.Body)
		if ferr != nil {
			return Completion{}, ferr
		}
		if isAbrupt(fc) {
			return fc, nil
		}
	}
	return c, err
}
