package evaluator

import (
	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// hoistVars declares every `var` name reachable from stmts — descending
// into nested blocks, if/for/while/switch/try/labeled statements — in
// whichever scope Environment.Declare routes a KindVar binding to
// (spec §4.B: "var hoists to the nearest function/module/global
// scope"). It does not descend into nested function or class bodies:
// those hoist into their own scope when they run.
func hoistVars(env *environment.Environment, stmts []sbast.Statement) error {
	for _, s := range stmts {
		if err := hoistVarsIn(env, s); err != nil {
			return err
		}
	}
	return nil
}

func hoistVarsIn(env *environment.Environment, s sbast.Statement) error {
	switch n := s.(type) {
	case *sbast.VariableDeclaration:
		if n.DeclKind != sbast.KindVar {
			return nil
		}
		for _, d := range n.Declarations {
			if err := declarePatternNames(env, d.Target, environment.KindVar); err != nil {
				return err
			}
		}
	case *sbast.BlockStatement:
		return hoistVars(env, n.Body)
	case *sbast.IfStatement:
		if err := hoistVarsIn(env, n.Consequent); err != nil {
			return err
		}
		if n.Alternate != nil {
			return hoistVarsIn(env, n.Alternate)
		}
	case *sbast.ForStatement:
		if init, ok := n.Init.(sbast.Statement); ok {
			if err := hoistVarsIn(env, init); err != nil {
				return err
			}
		}
		return hoistVarsIn(env, n.Body)
	case *sbast.ForInStatement:
		if n.DeclKind == sbast.KindVar {
			if err := declarePatternNames(env, n.Target, environment.KindVar); err != nil {
				return err
			}
		}
		return hoistVarsIn(env, n.Body)
	case *sbast.ForOfStatement:
		if n.DeclKind == sbast.KindVar {
			if err := declarePatternNames(env, n.Target, environment.KindVar); err != nil {
				return err
			}
		}
		return hoistVarsIn(env, n.Body)
	case *sbast.WhileStatement:
		return hoistVarsIn(env, n.Body)
	case *sbast.DoWhileStatement:
		return hoistVarsIn(env, n.Body)
	case *sbast.SwitchStatement:
		for _, c := range n.Cases {
			if err := hoistVars(env, c.Body); err != nil {
				return err
			}
		}
	case *sbast.TryStatement:
		if err := hoistVars(env, n.Block.Body); err != nil {
			return err
		}
		if n.Catch != nil {
			if err := hoistVars(env, n.Catch.Body.Body); err != nil {
				return err
			}
		}
		if n.Finally != nil {
			return hoistVars(env, n.Finally.Body)
		}
	case *sbast.LabeledStatement:
		return hoistVarsIn(env, n.Body)
	case *sbast.FunctionDeclaration:
		// function declarations are handled by declareBlockScoped at
		// whichever block directly contains them, not hoisted as vars.
	}
	return nil
}

// declarePatternNames declares every identifier bound by pat.
func declarePatternNames(env *environment.Environment, pat sbast.Pattern, kind environment.Kind) error {
	switch p := pat.(type) {
	case *sbast.Identifier:
		return env.Declare(p.Name, kind)
	case *sbast.ArrayPattern:
		for _, el := range p.Elements {
			if el.Target == nil {
				continue
			}
			if err := declarePatternNames(env, el.Target, kind); err != nil {
				return err
			}
		}
		if p.Rest != nil {
			return declarePatternNames(env, p.Rest, kind)
		}
	case *sbast.ObjectPattern:
		for _, prop := range p.Properties {
			if err := declarePatternNames(env, prop.Value, kind); err != nil {
				return err
			}
		}
		if p.Rest != nil {
			return declarePatternNames(env, p.Rest, kind)
		}
	case *sbast.AssignmentPattern:
		return declarePatternNames(env, p.Target, kind)
	}
	return nil
}

// collectPatternNames returns every identifier name bound by pat, in
// binding order.
func collectPatternNames(pat sbast.Pattern) []string {
	var names []string
	switch p := pat.(type) {
	case *sbast.Identifier:
		names = append(names, p.Name)
	case *sbast.ArrayPattern:
		for _, el := range p.Elements {
			if el.Target != nil {
				names = append(names, collectPatternNames(el.Target)...)
			}
		}
		if p.Rest != nil {
			names = append(names, collectPatternNames(p.Rest)...)
		}
	case *sbast.ObjectPattern:
		for _, prop := range p.Properties {
			names = append(names, collectPatternNames(prop.Value)...)
		}
		if p.Rest != nil {
			names = append(names, collectPatternNames(p.Rest)...)
		}
	case *sbast.AssignmentPattern:
		names = append(names, collectPatternNames(p.Target)...)
	}
	return names
}

// declareBlockScoped declares the let/const/class/function-declaration
// names found directly in stmts (not recursing into nested blocks) in
// env, in TDZ, and then fills in function-declaration values before
// the block's first statement runs.
func (ev *Evaluator) declareBlockScoped(env *environment.Environment, stmts []sbast.Statement) error {
	for _, s := range stmts {
		switch n := s.(type) {
		case *sbast.VariableDeclaration:
			if n.DeclKind == sbast.KindVar {
				continue
			}
			kind := environment.KindLet
			if n.DeclKind == sbast.KindConst {
				kind = environment.KindConst
			}
			for _, d := range n.Declarations {
				if err := declarePatternNames(env, d.Target, kind); err != nil {
					return err
				}
			}
		case *sbast.FunctionDeclaration:
			if err := env.Declare(n.Function.Name, environment.KindFunction); err != nil {
				return err
			}
		case *sbast.ClassDeclaration:
			if err := env.Declare(n.Class.Name, environment.KindLet); err != nil {
				return err
			}
		}
	}
	// Function declarations are observable from the top of the block, so
	// their values are built and initialized in a second pass, once every
	// name (including ones referenced by other hoisted functions' closures)
	// has a TDZ slot to close over.
	for _, s := range stmts {
		if fd, ok := s.(*sbast.FunctionDeclaration); ok {
			fn := ev.makeFunction(fd.Function, env, nil)
			if err := env.Initialize(fd.Function.Name, value.FunctionValue(fn)); err != nil {
				return err
			}
		}
	}
	return nil
}
