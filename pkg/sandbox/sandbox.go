// Package sandbox is the public embedding surface for the interpreter
// (spec §6): construct an Evaluator with host globals, a module
// resolver, security and feature-gate options, then run scripts or
// modules against it.
package sandbox

import (
	"context"
	"fmt"

	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/barrier"
	"github.com/grafana/jsvm/internal/sandbox/compiler"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/evaluator"
	"github.com/grafana/jsvm/internal/sandbox/featuregate"
	"github.com/grafana/jsvm/internal/sandbox/module"
	"github.com/grafana/jsvm/internal/sandbox/value"
	"github.com/sirupsen/logrus"
)

// Value, Object, and Function re-export the evaluator's value model so
// embedders never need to import an internal/ path directly.
type (
	Value    = value.Value
	Object   = value.Object
	Function = value.Function
)

// Resolver is the host-implemented module resolution capability (spec
// §4.G, §6).
type Resolver = module.Resolver

// ModuleOptions configures the module system (spec §6 "modules: {
// enabled, resolver, cache?, maxDepth? }").
type ModuleOptions struct {
	Enabled      bool
	Resolver     Resolver
	CacheEnabled bool
	MaxDepth     int
}

// SecurityOptions configures error-surfacing policy (spec §6
// "security: { sanitizeErrors?, hideHostErrorMessages? }", both default
// true).
type SecurityOptions struct {
	SanitizeErrors        *bool
	HideHostErrorMessages *bool
}

func (s SecurityOptions) sanitizeErrors() bool {
	if s.SanitizeErrors == nil {
		return true
	}
	return *s.SanitizeErrors
}

func (s SecurityOptions) hideHostErrorMessages() bool {
	if s.HideHostErrorMessages == nil {
		return true
	}
	return *s.HideHostErrorMessages
}

// FeatureControlOptions configures the syntax feature gate (spec §6
// "featureControl: { mode, features } or a named preset"). Preset, if
// non-empty, takes precedence over Mode/Features.
type FeatureControlOptions struct {
	Mode     featuregate.Mode
	Features []string
	Preset   string
}

// Options configures a new Evaluator. Every field is optional.
type Options struct {
	Globals        map[string]any
	Modules        ModuleOptions
	Security       SecurityOptions
	FeatureControl FeatureControlOptions
	Filename       string
	Logger         logrus.FieldLogger
}

// Evaluator is the embeddable interpreter instance: one realm, one
// global scope, one module cache (spec §5 "two evaluator instances
// share nothing").
type Evaluator struct {
	ev     *evaluator.Evaluator
	loader *module.Loader
}

// New constructs an Evaluator from opts, installing globals through the
// barrier and wiring up the module loader if enabled.
func New(opts Options) (*Evaluator, error) {
	gate, err := resolveGate(opts.FeatureControl)
	if err != nil {
		return nil, err
	}

	ev := evaluator.New(evaluator.Options{
		Gate: gate,
		BarrierOptions: barrier.Options{
			SanitizeErrors:        opts.Security.sanitizeErrors(),
			HideHostErrorMessages: opts.Security.hideHostErrorMessages(),
		},
		Sanitize: errmodel.Sanitization(opts.Security.sanitizeErrors()),
		Filename: opts.Filename,
		Logger:   opts.Logger,
	})

	for name, v := range opts.Globals {
		if err := ev.DefineGlobal(name, v); err != nil {
			return nil, fmt.Errorf("define global %q: %w", name, err)
		}
	}

	e := &Evaluator{ev: ev}
	if opts.Modules.Enabled {
		e.loader = module.New(ev, module.Options{
			Resolver:     opts.Modules.Resolver,
			CacheEnabled: opts.Modules.CacheEnabled,
			MaxDepth:     opts.Modules.MaxDepth,
		})
	}
	return e, nil
}

func resolveGate(opts FeatureControlOptions) (*featuregate.Gate, error) {
	if opts.Preset != "" {
		gate, ok := featuregate.Preset(opts.Preset)
		if !ok {
			return nil, fmt.Errorf("unknown feature preset %q", opts.Preset)
		}
		return gate, nil
	}
	if len(opts.Features) == 0 {
		return nil, nil // no gate configured: everything allowed
	}
	return featuregate.New(opts.Mode, opts.Features), nil
}

// Cancel requests cooperative cancellation of any evaluation in
// progress or started hereafter (spec §5 "Cancellation and timeouts").
func (e *Evaluator) Cancel() { e.ev.Cancel() }

// DefineGlobal installs an additional host global after construction.
func (e *Evaluator) DefineGlobal(name string, v any) error {
	return e.ev.DefineGlobal(name, v)
}

// Evaluate runs source as a script to completion (spec §6
// "evaluate(source) → value"; synchronous, fails on suspension).
func (e *Evaluator) Evaluate(ctx context.Context, source string) (Value, error) {
	prog, err := e.parse(source, false)
	if err != nil {
		return value.Undefined, err
	}
	return e.ev.Evaluate(ctx, prog)
}

// EvaluateAsync runs source, whose top level may use `await`, and
// returns a Promise of its completion value (spec §6 "evaluateAsync(source)
// → future<value>").
func (e *Evaluator) EvaluateAsync(ctx context.Context, source string) (Value, error) {
	prog, err := e.parse(source, false)
	if err != nil {
		return value.Undefined, err
	}
	return e.ev.EvaluateAsync(ctx, prog)
}

// EvaluateModuleAsync evaluates source as the entry module at path,
// resolving and evaluating its whole dependency graph, and returns its
// exports as a plain map (spec §6 "evaluateModuleAsync(source, {path})
// → future<exports-mapping>").
func (e *Evaluator) EvaluateModuleAsync(ctx context.Context, source, path string) (map[string]Value, error) {
	if e.loader == nil {
		return nil, errmodel.Fatal(errmodel.ModuleError, "module system is not enabled")
	}
	var ns *value.Object
	err := e.ev.RunInLoop(ctx, func() error {
		var ferr error
		if source != "" {
			ns, ferr = e.loader.EvaluateModuleFromSource(ctx, source, path)
		} else {
			ns, ferr = e.loader.EvaluateModule(ctx, path)
		}
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return e.namespaceToMap(ns)
}

func (e *Evaluator) namespaceToMap(ns *value.Object) (map[string]Value, error) {
	out := make(map[string]Value, len(ns.OwnKeys()))
	for _, key := range ns.OwnKeys() {
		v, err := e.ev.GetProperty(value.ObjectValue(ns), key)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func (e *Evaluator) parse(source string, isModule bool) (*sbast.Program, error) {
	prog, err := compiler.Compile(compiler.Source{Code: source, Filename: "<sandbox>", IsModule: isModule})
	if err != nil {
		return nil, errmodel.New(errmodel.SyntaxError, err.Error())
	}
	return prog, nil
}

// --- module introspection (spec §6) ---

func (e *Evaluator) IsModuleSystemEnabled() bool { return e.loader != nil }

func (e *Evaluator) IsModuleCached(path string) bool {
	return e.loader != nil && e.loader.IsModuleCached(path)
}

func (e *Evaluator) GetLoadedModulePaths() []string {
	if e.loader == nil {
		return nil
	}
	return e.loader.GetLoadedModulePaths()
}

func (e *Evaluator) GetLoadedModuleSpecifiers() []string {
	if e.loader == nil {
		return nil
	}
	return e.loader.GetLoadedModuleSpecifiers()
}

func (e *Evaluator) GetModuleMetadata(path string) (module.Metadata, bool) {
	if e.loader == nil {
		return module.Metadata{}, false
	}
	return e.loader.GetModuleMetadata(path)
}

func (e *Evaluator) GetModuleExports(path string) (map[string]Value, error) {
	if e.loader == nil {
		return nil, errmodel.Fatal(errmodel.ModuleError, "module system is not enabled")
	}
	ns, ok := e.loader.GetModuleExports(path)
	if !ok {
		return nil, fmt.Errorf("module %q is not loaded", path)
	}
	return e.namespaceToMap(ns)
}

func (e *Evaluator) GetModuleExportsBySpecifier(specifier string) (map[string]Value, error) {
	if e.loader == nil {
		return nil, errmodel.Fatal(errmodel.ModuleError, "module system is not enabled")
	}
	ns, ok := e.loader.GetModuleExportsBySpecifier(specifier)
	if !ok {
		return nil, fmt.Errorf("specifier %q is not loaded", specifier)
	}
	return e.namespaceToMap(ns)
}

func (e *Evaluator) GetModuleCacheSize() int {
	if e.loader == nil {
		return 0
	}
	return e.loader.GetModuleCacheSize()
}

func (e *Evaluator) ClearModuleCache() {
	if e.loader != nil {
		e.loader.ClearModuleCache()
	}
}
