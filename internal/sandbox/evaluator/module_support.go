package evaluator

import (
	"context"
	"sort"

	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// The methods in this file are the evaluator's side of the module-loader
// seam described by ModuleEvaluator above: internal/sandbox/module drives
// a module record's lifecycle (resolve, link, evaluate) and needs to
// hoist/declare a module body's bindings and run its statements/
// expressions using the same machinery a script or function body uses,
// without importing this package's unexported internals directly.

// RunInLoop sets ev's active context and runs fn on the evaluator's
// single task-loop goroutine, exactly as Evaluate/EvaluateAsync do. The
// module loader has no business reaching into the evaluator's private
// ctx/loop fields, so pkg/sandbox drives module evaluation entry points
// through this instead — fn typically calls into a *module.Loader.
func (ev *Evaluator) RunInLoop(ctx context.Context, fn func() error) error {
	ev.ctx = ctx
	err := ev.loop.Start(fn)
	if err != nil {
		return ev.toHostError(err)
	}
	return nil
}

// NewModuleEnv creates a fresh module-scoped environment chained to the
// global scope, matching spec §4.G "each module has its own lexical
// environment, chained to the realm's global scope for unqualified
// intrinsic lookups (undefined, NaN, Array, ...)".
func (ev *Evaluator) NewModuleEnv() *environment.Environment {
	return ev.global.NewChild(environment.ScopeModule)
}

// GlobalEnv exposes the evaluator's global environment, e.g. so the
// loader can alias a re-exported binding that happens to live there.
func (ev *Evaluator) GlobalEnv() *environment.Environment {
	return ev.global
}

// NewModuleFrame returns the activation record a module body executes
// under: `this` is undefined at module top level (spec §4.G), and there
// is no enclosing function/home-object/fiber.
func (ev *Evaluator) NewModuleFrame() *frame {
	return &frame{this: value.Undefined}
}

// HoistAndDeclare runs `var`/function hoisting and block-scoped
// (let/const/class) declaration over a module's runnable statement list,
// the same two passes a script or block body gets. The loader calls this
// once per record, before constructing that record's export table, so
// that every declared binding's *environment.Binding pointer already
// exists (even if still uninitialized/TDZ) and can be captured for
// live-binding aliasing.
func (ev *Evaluator) HoistAndDeclare(env *environment.Environment, body []sbast.Statement) error {
	if err := hoistVars(env, body); err != nil {
		return err
	}
	return ev.declareBlockScoped(env, body)
}

// RunStatements executes a module's runnable statement list (import/
// export declarations already stripped out by the loader) in order,
// stopping early on a thrown error. It does not re-hoist: callers run
// HoistAndDeclare first, once, before any module in the dependency graph
// evaluates, so that forward references across the graph's live
// bindings resolve correctly.
func (ev *Evaluator) RunStatements(fr *frame, env *environment.Environment, body []sbast.Statement) error {
	for _, s := range body {
		if _, err := ev.execStmt(fr, env, s); err != nil {
			return err
		}
	}
	return nil
}

// EvalExpression evaluates a single expression in a module's environment,
// used by the loader to build the synthetic binding for `export default
// <expr>` when the default export is not already a named declaration.
func (ev *Evaluator) EvalExpression(fr *frame, env *environment.Environment, expr sbast.Expression) (value.Value, error) {
	return ev.evalExpr(fr, env, expr)
}

// DeclareAndInitialize declares a new binding of the given kind in env
// and immediately initializes it, for synthetic bindings the loader
// manufactures (e.g. the `default` binding for `export default <expr>`)
// that have no corresponding source-level declarator.
func (ev *Evaluator) DeclareAndInitialize(env *environment.Environment, name string, kind environment.Kind, v value.Value) error {
	if err := env.Declare(name, kind); err != nil {
		return err
	}
	return env.Initialize(name, v)
}

// PatternNames returns every identifier a pattern binds, in left-to-right
// declaration order. The module loader uses this to enumerate the names
// a declaration exports (`export let a, [b, c] = pair`), reusing the
// same traversal hoisting itself already relies on.
func PatternNames(pat sbast.Pattern) []string {
	return collectPatternNames(pat)
}

// DeclaredNames returns every name a top-level declaration statement
// introduces: a VariableDeclaration's pattern names, or a single
// function/class declaration's name. Returns nil for any other
// statement kind. Used by the module loader to register `export
// <decl>`'s names without re-implementing hoist.go's declaration walk.
func DeclaredNames(s sbast.Statement) []string {
	switch d := s.(type) {
	case *sbast.VariableDeclaration:
		var names []string
		for _, decl := range d.Declarations {
			names = append(names, collectPatternNames(decl.Target)...)
		}
		return names
	case *sbast.FunctionDeclaration:
		return []string{d.Function.Name}
	case *sbast.ClassDeclaration:
		return []string{d.Class.Name}
	default:
		return nil
	}
}

// GetProperty reads key off an arbitrary value through the same
// abstract [[Get]] used by member-access expressions, resolving
// accessor getters (e.g. a module namespace object's live export
// getters) rather than returning the raw Property. Exposed for
// pkg/sandbox to read a module's namespace object into a plain Go map.
func (ev *Evaluator) GetProperty(obj value.Value, key string) (value.Value, error) {
	return ev.getProp(nil, obj, key)
}

// NewNamespaceObject builds a module namespace object (spec §4.G "import
// * as ns"): own properties for each export name are live getters backed
// directly by the exporting module's Binding, so a later write to the
// export inside its own module is observable through the namespace
// object without any copy step. Per the Open Question decision recorded
// in DESIGN.md, the object is frozen, so writes to it are silently ignored
// rather than throwing.
func (ev *Evaluator) NewNamespaceObject(exports map[string]*environment.Binding) *value.Object {
	o := value.NewObject(ev.realm.objectProto)
	o.ClassName = "Module"
	o.Extensible = false
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		name := name
		b := exports[name]
		getter := &value.Function{
			Name: "get " + name,
			Kind: value.KindHostAdapted,
			Call: func(value.Value, []value.Value) (value.Value, error) {
				if !b.Initialized {
					return value.Undefined, throwValue(errorValueFor(ev.realm, errmodel.ReferenceError,
						"Cannot access '"+name+"' before initialization"))
				}
				return b.Value, nil
			},
		}
		o.DefineOwn(name, &value.Property{
			IsAccessor: true, Getter: getter, Enumerable: true, Configurable: false,
		})
	}
	o.Freeze()
	return o
}
