package module

import (
	"context"
	"fmt"
	"sync"

	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/compiler"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/evaluator"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// Options configures a Loader (spec §6 "modules: {enabled, resolver,
// cache?, maxDepth?}").
type Options struct {
	Resolver Resolver
	// CacheEnabled, when false, forces every import to re-resolve and
	// re-evaluate rather than reusing a previously loaded Record (spec
	// §4.G "a configurable flag disables caching, forcing
	// re-evaluation").
	CacheEnabled bool
	// MaxDepth bounds the importer chain length; exceeding it fails with
	// a fatal ModuleError (spec §4.G step 3, §7 "module depth exceeded"
	// bypasses try/catch).
	MaxDepth int
}

const defaultMaxDepth = 64

// Loader drives the resolve → link → evaluate pipeline over a
// resolver-supplied import graph and implements evaluator.ModuleEvaluator
// so scripts can trigger it without an import cycle between packages.
type Loader struct {
	ev           *evaluator.Evaluator
	resolver     Resolver
	maxDepth     int
	enabled      bool
	cacheEnabled bool

	mu          sync.Mutex
	cache       map[string]*Record // completed records, consulted only when cacheEnabled
	all         map[string]*Record // every record ever built, for introspection
	firedOnLoad map[string]bool
	specToPath  map[string]string // last resolved path per raw specifier, for GetModuleExportsBySpecifier
}

// New builds a Loader over ev and wires it in as ev's module host.
func New(ev *evaluator.Evaluator, opts Options) *Loader {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	l := &Loader{
		ev:          ev,
		resolver:    opts.Resolver,
		maxDepth:    maxDepth,
		enabled:     opts.Resolver != nil,
		cache:       make(map[string]*Record),
		all:         make(map[string]*Record),
		firedOnLoad: make(map[string]bool),
		specToPath:  make(map[string]string),
	}
	l.cacheEnabled = opts.CacheEnabled
	ev.SetModuleHost(l)
	return l
}

// EvaluateModule is the spec §6 entry point `evaluateModuleAsync(source,
// {path})`: it resolves+links+evaluates the entry module and every
// module it transitively depends on, returning the entry's namespace
// object (its export table, spec §3 "Module record").
func (l *Loader) EvaluateModule(ctx context.Context, specifier string) (*value.Object, error) {
	if !l.enabled {
		return nil, errmodel.Fatal(errmodel.ModuleError, "module system is not enabled")
	}
	rec, err := l.link(ctx, specifier, "", nil)
	if err != nil {
		return nil, err
	}
	if err := l.evaluateTree(ctx, rec, map[string]bool{}); err != nil {
		return nil, err
	}
	return rec.NamespaceObject(l.ev.NewNamespaceObject), nil
}

// EvaluateModuleFromSource evaluates source directly as the entry module
// identified by path, without resolving path through the resolver first
// (spec §6 "evaluateModuleAsync(source, {path})": the caller supplies the
// entry's text; only its imports go through the resolver, using path as
// their importer). This differs from EvaluateModule, which resolves the
// entry specifier itself through the resolver too.
func (l *Loader) EvaluateModuleFromSource(ctx context.Context, source, path string) (*value.Object, error) {
	if !l.enabled {
		return nil, errmodel.Fatal(errmodel.ModuleError, "module system is not enabled")
	}
	rec, err := l.linkSourceEntry(ctx, source, path)
	if err != nil {
		return nil, err
	}
	if err := l.evaluateTree(ctx, rec, map[string]bool{}); err != nil {
		return nil, err
	}
	return rec.NamespaceObject(l.ev.NewNamespaceObject), nil
}

func (l *Loader) linkSourceEntry(ctx context.Context, source, path string) (*Record, error) {
	l.mu.Lock()
	l.specToPath[path] = path
	if l.cacheEnabled {
		if rec, ok := l.cache[path]; ok {
			l.mu.Unlock()
			return rec, nil
		}
	}
	l.mu.Unlock()

	prog, err := compiler.Compile(compiler.Source{Code: source, Filename: path, IsModule: true})
	if err != nil {
		return nil, errmodel.New(errmodel.SyntaxError, err.Error())
	}

	ls := &linkState{inFlight: map[string]*Record{}}
	rec := &Record{Path: path, Specifier: path, State: StateLinking, Exports: map[string]*environment.Binding{}}
	ls.inFlight[path] = rec
	l.mu.Lock()
	l.all[path] = rec
	l.mu.Unlock()

	if err := l.linkBody(ctx, rec, prog.Body, nil, ls); err != nil {
		rec.State = StateFailed
		rec.Err = err
		l.resolver.OnError(path, "", err)
		l.commit(rec)
		return nil, err
	}
	rec.State = StateLinked
	l.commit(rec)
	return rec, nil
}

// ImportModule implements evaluator.ModuleEvaluator: a static `import`
// resolved and evaluated on demand, returning its namespace object.
func (l *Loader) ImportModule(ctx context.Context, specifier, fromPath string) (*value.Object, error) {
	rec, err := l.link(ctx, specifier, fromPath, nil)
	if err != nil {
		return nil, err
	}
	if err := l.evaluateTree(ctx, rec, map[string]bool{}); err != nil {
		return nil, err
	}
	return rec.NamespaceObject(l.ev.NewNamespaceObject), nil
}

// DynamicImport implements evaluator.ModuleEvaluator for `import(...)`
// expressions (spec §6): same pipeline as ImportModule, but returning a
// plain value rather than forcing the namespace-object shape, so a
// future expression-level integration can wrap it as a resolved Promise
// without an extra conversion step.
func (l *Loader) DynamicImport(ctx context.Context, specifier, fromPath string) (value.Value, error) {
	ns, err := l.ImportModule(ctx, specifier, fromPath)
	if err != nil {
		return value.Undefined, err
	}
	return value.ObjectValue(ns), nil
}

// --- introspection (spec §6) ---

func (l *Loader) IsModuleSystemEnabled() bool { return l.enabled }

func (l *Loader) IsModuleCached(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.cache[path]
	return ok
}

func (l *Loader) GetLoadedModulePaths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.all))
	for p := range l.all {
		out = append(out, p)
	}
	return out
}

func (l *Loader) GetLoadedModuleSpecifiers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.specToPath))
	for s := range l.specToPath {
		out = append(out, s)
	}
	return out
}

func (l *Loader) GetModuleMetadata(path string) (Metadata, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.all[path]
	if !ok {
		return Metadata{}, false
	}
	return rec.Metadata(), true
}

func (l *Loader) GetModuleExports(path string) (*value.Object, bool) {
	l.mu.Lock()
	rec, ok := l.all[path]
	l.mu.Unlock()
	if !ok {
		return nil, false
	}
	return rec.NamespaceObject(l.ev.NewNamespaceObject), true
}

func (l *Loader) GetModuleExportsBySpecifier(specifier string) (*value.Object, bool) {
	l.mu.Lock()
	path, ok := l.specToPath[specifier]
	l.mu.Unlock()
	if !ok {
		return nil, false
	}
	return l.GetModuleExports(path)
}

func (l *Loader) GetModuleCacheSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}

func (l *Loader) ClearModuleCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*Record)
	l.all = make(map[string]*Record)
	l.firedOnLoad = make(map[string]bool)
	l.specToPath = make(map[string]string)
}

// --- linking pipeline ---

// inFlight tracks records currently being linked within one top-level
// link() call, keyed by path, so a cyclical import graph resolves to the
// same in-progress Record instead of recursing forever (spec §4.G step
// 5: "a module in cycle is observed as partially initialized").
type linkState struct {
	inFlight map[string]*Record
}

func (l *Loader) link(ctx context.Context, specifier, importer string, chain []string) (*Record, error) {
	return l.linkWith(ctx, specifier, importer, chain, &linkState{inFlight: map[string]*Record{}})
}

func (l *Loader) linkWith(ctx context.Context, specifier, importer string, chain []string, ls *linkState) (*Record, error) {
	if !l.enabled {
		return nil, errmodel.Fatal(errmodel.ModuleError, "module system is not enabled")
	}
	if len(chain) > l.maxDepth {
		err := errmodel.Fatal(errmodel.ModuleError, "module depth exceeded")
		l.resolver.OnError(specifier, importer, err)
		return nil, err
	}

	res, err := l.resolver.Resolve(ctx, specifier, importer, chain)
	if err != nil {
		l.resolver.OnError(specifier, importer, err)
		return nil, errmodel.New(errmodel.ModuleError, err.Error())
	}
	if res == nil {
		err := errmodel.New(errmodel.ModuleError, fmt.Sprintf("module not found: %s", specifier))
		l.resolver.OnError(specifier, importer, err)
		return nil, err
	}

	l.mu.Lock()
	l.specToPath[specifier] = res.Path
	if l.enabled && l.cacheEnabled {
		if rec, ok := l.cache[res.Path]; ok {
			l.mu.Unlock()
			return rec, nil
		}
	}
	if rec, ok := ls.inFlight[res.Path]; ok {
		l.mu.Unlock()
		return rec, nil
	}
	if !l.firedOnLoad[res.Path] || !l.cacheEnabled {
		l.firedOnLoad[res.Path] = true
		l.mu.Unlock()
		l.resolver.OnLoad(specifier, res.Path)
	} else {
		l.mu.Unlock()
	}

	rec := &Record{Path: res.Path, Specifier: specifier, State: StateLinking, Exports: map[string]*environment.Binding{}}
	ls.inFlight[res.Path] = rec
	l.mu.Lock()
	l.all[res.Path] = rec
	l.mu.Unlock()

	if res.Namespace != nil {
		rec.isHost = true
		for name, v := range res.Namespace {
			rec.Exports[name] = &environment.Binding{Kind: environment.KindConst, Initialized: true, Value: v}
		}
		rec.State = StateLinked
		l.commit(rec)
		return rec, nil
	}

	prog := res.AST
	if prog == nil {
		prog, err = compiler.Compile(compiler.Source{Code: res.Source, Filename: res.Path, IsModule: true})
		if err != nil {
			rec.State = StateFailed
			rec.Err = errmodel.New(errmodel.SyntaxError, err.Error())
			l.resolver.OnError(specifier, importer, rec.Err)
			l.commit(rec)
			return nil, rec.Err
		}
	}

	if err := l.linkBody(ctx, rec, prog.Body, chain, ls); err != nil {
		rec.State = StateFailed
		rec.Err = err
		l.resolver.OnError(specifier, importer, err)
		l.commit(rec)
		return nil, err
	}

	rec.State = StateLinked
	l.commit(rec)
	return rec, nil
}

// commit makes a fully-linked (or failed) record visible to other
// top-level link() calls once caching is enabled.
func (l *Loader) commit(rec *Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cacheEnabled {
		l.cache[rec.Path] = rec
	}
	l.all[rec.Path] = rec
}

// pendingLocalExport names a local binding (already declared or about
// to be, by a statement kept in the runnable body) that must become a
// rec.Exports entry once HoistAndDeclare has run.
type pendingLocalExport struct {
	localName    string
	exportedName string
}

// linkBody performs spec §4.G steps 3-4 for one record: discover and
// recursively link every import/re-export source, build the runnable
// statement list (import/export wrapper nodes stripped or rewritten to
// plain declarations), hoist+declare it, then populate rec.Exports in
// the order the spec lays out export forms — local exports and `export
// default` first (so they can never be shadowed), then `export *`
// passes in source order (first-writer-wins), then `export * as ns`.
func (l *Loader) linkBody(ctx context.Context, rec *Record, body []sbast.Statement, chain []string, ls *linkState) error {
	rec.Env = l.ev.NewModuleEnv()
	nextChain := append(append([]string{}, chain...), rec.Path)

	var runnable []sbast.Statement
	var pendingLocal []pendingLocalExport
	var pendingDefault string // name of the synthetic/declared binding to export as "default"
	type starReexport struct {
		dep *Record
		ns  string // "" for export *; namespace name for export * as ns
	}
	var stars []starReexport

	depFor := func(source string) (*Record, error) {
		return l.linkWith(ctx, source, rec.Path, nextChain, ls)
	}

	for _, s := range body {
		switch d := s.(type) {
		case *sbast.ImportDeclaration:
			dep, err := depFor(d.Source)
			if err != nil {
				return err
			}
			rec.Deps = append(rec.Deps, dep)
			for _, spec := range d.Specifiers {
				if err := bindImport(rec.Env, dep, spec, l.ev); err != nil {
					return err
				}
			}

		case *sbast.ExportNamedDeclaration:
			if d.Source != "" {
				dep, err := depFor(d.Source)
				if err != nil {
					return err
				}
				rec.Deps = append(rec.Deps, dep)
				for _, spec := range d.Specifiers {
					b, ok := dep.Exports[spec.Local]
					if !ok {
						return errmodel.New(errmodel.ModuleError,
							fmt.Sprintf("module %q has no exported member %q", d.Source, spec.Local))
					}
					rec.Exports[spec.Exported] = b
				}
				continue
			}
			if d.Declaration != nil {
				runnable = append(runnable, d.Declaration)
				for _, name := range evaluator.DeclaredNames(d.Declaration) {
					pendingLocal = append(pendingLocal, pendingLocalExport{localName: name, exportedName: name})
				}
				continue
			}
			for _, spec := range d.Specifiers {
				pendingLocal = append(pendingLocal, pendingLocalExport{localName: spec.Local, exportedName: spec.Exported})
			}

		case *sbast.ExportDefaultDeclaration:
			switch decl := d.Declaration.(type) {
			case *sbast.FunctionLiteral:
				if decl.Name != "" {
					runnable = append(runnable, &sbast.FunctionDeclaration{Function: decl})
					pendingDefault = decl.Name
				} else {
					runnable = append(runnable, syntheticConstDecl(defaultSyntheticName, decl))
					pendingDefault = defaultSyntheticName
				}
			case *sbast.ClassLiteral:
				if decl.Name != "" {
					runnable = append(runnable, &sbast.ClassDeclaration{Class: decl})
					pendingDefault = decl.Name
				} else {
					runnable = append(runnable, syntheticConstDecl(defaultSyntheticName, decl))
					pendingDefault = defaultSyntheticName
				}
			case sbast.Expression:
				runnable = append(runnable, syntheticConstDecl(defaultSyntheticName, decl))
				pendingDefault = defaultSyntheticName
			default:
				return errmodel.New(errmodel.SyntaxError, "unsupported export default form")
			}

		case *sbast.ExportAllDeclaration:
			dep, err := depFor(d.Source)
			if err != nil {
				return err
			}
			rec.Deps = append(rec.Deps, dep)
			stars = append(stars, starReexport{dep: dep, ns: d.Exported})

		default:
			runnable = append(runnable, s)
		}
	}

	rec.Body = runnable
	if err := l.ev.HoistAndDeclare(rec.Env, runnable); err != nil {
		return err
	}

	for _, p := range pendingLocal {
		b := rec.Env.OwnBinding(p.localName)
		if b == nil {
			return errmodel.New(errmodel.SyntaxError, fmt.Sprintf("export of undeclared name %q", p.localName))
		}
		rec.Exports[p.exportedName] = b
	}
	if pendingDefault != "" {
		b := rec.Env.OwnBinding(pendingDefault)
		if b == nil {
			return errmodel.New(errmodel.SyntaxError, "export default: binding not declared")
		}
		rec.Exports["default"] = b
	}
	for _, star := range stars {
		if star.ns != "" {
			rec.Exports[star.ns] = &environment.Binding{
				Kind: environment.KindConst, Initialized: true,
				Value: value.ObjectValue(star.dep.NamespaceObject(l.ev.NewNamespaceObject)),
			}
			continue
		}
		for name, b := range star.dep.Exports {
			if name == "default" {
				continue
			}
			if _, taken := rec.Exports[name]; taken {
				continue // first-writer-wins / local export shadows a star re-export
			}
			rec.Exports[name] = b
		}
	}
	return nil
}

const defaultSyntheticName = "%default%"

// syntheticConstDecl builds `const %default% = <expr>;` so `export
// default <expr>` gets a real Binding to export, matching how a named
// declaration's own Binding backs its export (spec §3's module record
// has no room for a value with no binding behind it).
func syntheticConstDecl(name string, init sbast.Expression) *sbast.VariableDeclaration {
	return &sbast.VariableDeclaration{
		DeclKind: sbast.KindConst,
		Declarations: []*sbast.VariableDeclarator{
			{Target: &sbast.Identifier{Name: name}, Initializer: init},
		},
	}
}

// bindImport installs one import specifier's local name into env,
// aliasing the exact Binding the dependency exports (spec §4.G step 4)
// rather than copying its current value.
func bindImport(env *environment.Environment, dep *Record, spec sbast.ImportSpecifier, ev *evaluator.Evaluator) error {
	switch spec.Imported {
	case "*":
		ns := dep.NamespaceObject(ev.NewNamespaceObject)
		return ev.DeclareAndInitialize(env, spec.Local, environment.KindConst, value.ObjectValue(ns))
	case "":
		b, ok := dep.Exports["default"]
		if !ok {
			return errmodel.New(errmodel.ModuleError, fmt.Sprintf("module %q has no default export", dep.Specifier))
		}
		return env.Alias(spec.Local, b)
	default:
		b, ok := dep.Exports[spec.Imported]
		if !ok {
			return errmodel.New(errmodel.ModuleError, fmt.Sprintf("module %q has no exported member %q", dep.Specifier, spec.Imported))
		}
		return env.Alias(spec.Local, b)
	}
}

// evaluateTree runs rec's dependencies (post-order, each at most once
// per call) and then rec's own body (spec §4.G step 5). visiting guards
// against infinite recursion on import cycles; a module encountered
// mid-evaluation of itself is simply skipped, left partially
// initialized, matching the spec's TDZ-on-read cycle semantics.
func (l *Loader) evaluateTree(ctx context.Context, rec *Record, visiting map[string]bool) error {
	if rec.State == StateEvaluated || rec.isHost {
		return nil
	}
	if visiting[rec.Path] {
		return nil
	}
	visiting[rec.Path] = true
	for _, dep := range rec.Deps {
		if err := l.evaluateTree(ctx, dep, visiting); err != nil {
			return err
		}
	}
	if rec.State == StateEvaluated {
		return nil
	}
	rec.State = StateEvaluating
	fr := l.ev.NewModuleFrame()
	if err := l.ev.RunStatements(fr, rec.Env, rec.Body); err != nil {
		rec.State = StateFailed
		rec.Err = err
		l.resolver.OnError(rec.Specifier, "", err)
		return err
	}
	rec.State = StateEvaluated
	return nil
}
