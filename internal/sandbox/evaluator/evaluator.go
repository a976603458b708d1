// Package evaluator implements the tree-walking evaluator (spec §4.E,
// §4.F): statement execution, expression evaluation, destructuring,
// function/class call machinery, and generator/async suspension atop
// the single-goroutine task loop. It also owns the one per-Evaluator
// realm of shared prototype objects and the global environment.
package evaluator

import (
	"context"
	"fmt"
	"os"

	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/barrier"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/featuregate"
	"github.com/grafana/jsvm/internal/sandbox/task"
	"github.com/grafana/jsvm/internal/sandbox/value"
	"github.com/sirupsen/logrus"
)

// ModuleEvaluator is implemented by the module loader (package
// internal/sandbox/module) so this package never imports it back — the
// loader depends on the evaluator to run a module body, the evaluator
// depends on the loader (via this interface only) to run import
// expressions that resolve through it. Set via Evaluator.SetModuleHost.
type ModuleEvaluator interface {
	ImportModule(ctx context.Context, specifier, fromPath string) (*value.Object, error)
	DynamicImport(ctx context.Context, specifier, fromPath string) (value.Value, error)
}

// Evaluator runs sandbox programs against one realm and one global
// environment. Not safe for concurrent use from multiple goroutines at
// once — callers serialize Evaluate/EvaluateAsync/EvaluateModule calls,
// matching the teacher's one-goja.Runtime-per-VU model.
type Evaluator struct {
	realm  *realm
	global *environment.Environment
	gate   *featuregate.Gate
	bar    *barrier.Barrier
	loop   *task.Loop
	cancel *task.CancelFlag
	san    errmodel.Sanitization
	log    logrus.FieldLogger

	moduleHost ModuleEvaluator

	ctx      context.Context
	filename string
}

// Options configures a new Evaluator (spec §6).
type Options struct {
	Gate           *featuregate.Gate
	BarrierOptions barrier.Options
	Sanitize       errmodel.Sanitization
	Filename       string
	// Logger receives Debug-level lifecycle events and Warn-level barrier
	// denials (spec §4.I); defaults to a stderr logrus.Logger.
	Logger logrus.FieldLogger
}

// New constructs an Evaluator with a fresh realm and global scope. The
// caller populates globals afterward via DefineGlobal/DefineGlobalFunc.
func New(opts Options) *Evaluator {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		log = l
	}
	ev := &Evaluator{
		realm:    newRealm(),
		gate:     opts.Gate,
		bar:      barrier.New(opts.BarrierOptions),
		loop:     task.New(),
		cancel:   &task.CancelFlag{},
		san:      opts.Sanitize,
		log:      log,
		filename: opts.Filename,
	}
	ev.global = environment.New(environment.ScopeGlobal)
	installBuiltins(ev)
	return ev
}

// SetModuleHost wires in the module loader without creating an import
// cycle (see ModuleEvaluator above).
func (ev *Evaluator) SetModuleHost(h ModuleEvaluator) { ev.moduleHost = h }

// Cancel requests cooperative cancellation; observed between statements
// and at loop-body boundaries (spec §5 "Cancellation and timeouts").
func (ev *Evaluator) Cancel() { ev.cancel.Set() }

// DefineGlobal installs a host value as a global binding, routed through
// the barrier (spec §4.C).
func (ev *Evaluator) DefineGlobal(name string, v any) error {
	if barrier.IsForbiddenGlobal(name) {
		ev.log.WithField("global", name).Warn("refused to define reserved global")
		return fmt.Errorf("global %q is reserved", name)
	}
	wrapped, err := ev.bar.WrapGlobal(name, v)
	if err != nil {
		ev.log.WithField("global", name).Warn("barrier refused global")
		return err
	}
	if err := ev.global.Declare(name, environment.KindVar); err != nil {
		return err
	}
	return ev.global.Initialize(name, wrapped)
}

// Evaluate runs source as a script to completion, returning its
// completion value (spec §4.E "script" entry point).
func (ev *Evaluator) Evaluate(ctx context.Context, prog *sbast.Program) (value.Value, error) {
	ev.ctx = ctx
	var result value.Value
	err := ev.loop.Start(func() error {
		fr := &frame{this: value.Undefined}
		v, err := ev.runProgramBody(fr, ev.global, prog.Body)
		result = v
		return err
	})
	if err != nil {
		return value.Undefined, ev.toHostError(err)
	}
	return result, nil
}

// EvaluateAsync runs source, returning a Promise of its completion value;
// the top level may contain `await` (top-level await, spec §4.E).
func (ev *Evaluator) EvaluateAsync(ctx context.Context, prog *sbast.Program) (value.Value, error) {
	ev.ctx = ctx
	p, resolve, reject := newPromise(ev)
	fb := newFiber()
	fr := &frame{this: value.Undefined}
	err := ev.loop.Start(func() error {
		fb.run(func(suspend func(value.Value) resumeMsg) {
			fr.suspend = suspend
			v, err := ev.runProgramBody(fr, ev.global, prog.Body)
			if err != nil {
				panic(fiberCompletion{err: err})
			}
			panic(fiberCompletion{val: v})
		})
		y := fb.resume(resumeMsg{kind: resumeNext})
		return ev.driveFiber(fb, y, resolve, reject)
	})
	if err != nil {
		return value.Undefined, ev.toHostError(err)
	}
	return value.ObjectValue(p), nil
}

func (ev *Evaluator) runProgramBody(fr *frame, env *environment.Environment, body []sbast.Statement) (value.Value, error) {
	if err := hoistVars(env, body); err != nil {
		return value.Undefined, err
	}
	if err := ev.declareBlockScoped(env, body); err != nil {
		return value.Undefined, err
	}
	var last value.Value = value.Undefined
	for _, s := range body {
		c, err := ev.execStmt(fr, env, s)
		if err != nil {
			return value.Undefined, err
		}
		if c.Type == CompletionReturn {
			return c.Value, nil
		}
		if _, ok := s.(*sbast.ExpressionStatement); ok {
			last = c.Value
		}
	}
	return last, nil
}

// toHostError converts an internal *ThrowSignal / Go error into the
// *errmodel.Error shape the public API returns (spec §4.H, §6).
func (ev *Evaluator) toHostError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(task.Cancelled); ok {
		return errmodel.Fatal(errmodel.Generic, "evaluation cancelled")
	}
	if ts, ok := err.(*ThrowSignal); ok {
		msg := value.ToString(ts.Value)
		kind := errmodel.Generic
		stack := ""
		if ts.Value.IsObject() {
			o := ts.Value.Object()
			if o.ClassName != "" {
				kind = errmodel.Kind(o.ClassName)
			}
			if p := o.GetOwn("message"); p != nil {
				msg = value.ToString(p.Value)
			}
			if p := o.GetOwn("stack"); p != nil {
				stack = value.ToString(p.Value)
			}
		}
		e := errmodel.New(kind, msg).WithCause(ts.Value)
		if stack != "" {
			e = e.WithStack(errmodel.SanitizeStack(stack, ev.san))
		}
		return e
	}
	return errmodel.New(errmodel.Generic, err.Error())
}

func (ev *Evaluator) checkGate(node sbast.Node) error {
	if ev.gate == nil {
		return nil
	}
	kinds := []string{node.Kind()}
	if m, ok := node.(*sbast.MemberExpression); ok && m.Optional {
		kinds = append(kinds, "OptionalChaining")
	}
	if c, ok := node.(*sbast.CallExpression); ok && c.Optional {
		kinds = append(kinds, "OptionalChaining")
	}
	if b, ok := node.(*sbast.BinaryExpression); ok && b.Operator == sbast.OpNullish {
		kinds = append(kinds, "NullishCoalescing")
	}
	for _, kind := range kinds {
		if err := ev.gate.Check(kind); err != nil {
			ev.log.WithField("construct", kind).Debug("feature gate rejected construct")
			return errmodel.Fatal(errmodel.SecurityError, err.Error())
		}
	}
	return nil
}

func (ev *Evaluator) checkCancelled() error {
	if ev.cancel.IsSet() {
		ev.log.Debug("evaluation cancelled")
		return task.Cancelled{}
	}
	select {
	case <-ev.ctx.Done():
		ev.log.Debug("evaluation cancelled")
		return task.Cancelled{}
	default:
		return nil
	}
}

// frame is one call's activation: its `this`, the object `new.target`
// points to (nil outside a constructor call), the home object used to
// resolve `super` in methods, and — for generator/async bodies — the
// suspend hook a fiber installs so `yield`/`await` can hand control
// back to the driver mid-expression.
type frame struct {
	this       value.Value
	newTarget  *value.Function
	homeObject *value.Object
	fn         *value.Function
	suspend    func(value.Value) resumeMsg
	labels     []string // labels wrapping the statement currently executing

	// superClass and pendingFieldInit exist only inside a derived class's
	// constructor body: superClass is the parent constructor `super(...)`
	// invokes, and pendingFieldInit installs this subclass's own instance
	// fields right after that super() call returns (spec §4.F: fields
	// initialize after the super call, not before the constructor body).
	superClass       *value.Function
	pendingFieldInit func() error
}
