package module

import (
	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/environment"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// State is a module record's position in the resolve → link → evaluate
// lifecycle (spec §4.G).
type State int

const (
	StateLinking State = iota
	StateLinked
	StateEvaluating
	StateEvaluated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLinking:
		return "linking"
	case StateLinked:
		return "linked"
	case StateEvaluating:
		return "evaluating"
	case StateEvaluated:
		return "evaluated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Record is one module's state: its identity, its environment and
// export table, the dependency records that must evaluate before it,
// and its position in the lifecycle.
type Record struct {
	Path       string
	Specifier  string
	State      State
	Err        error

	Env  *environment.Environment
	Body []sbast.Statement // runnable statements, import/export wrappers stripped

	// Exports maps each exported name to the live Binding backing it:
	// a plain local export's Binding lives in Env; a re-export's Binding
	// is aliased in directly from the source module's own Exports table,
	// so a write anywhere is visible everywhere (spec §4.G "assign... a
	// binding that points (live) to the target module's export binding").
	Exports map[string]*environment.Binding

	// Deps lists, in source order, every module this one imports from or
	// re-exports from — the edges evaluateTree walks depth-first before
	// running this record's own Body.
	Deps []*Record

	// namespace caches the frozen namespace object NamespaceObject()
	// builds on first request; module namespace objects are stable
	// identity per spec (`import * as ns` always observes the same ns).
	namespace *value.Object

	// isHost marks a NamespaceRecord-backed record: no Body to run, no
	// Env of its own, Exports already fully populated at construction.
	isHost bool
}

// NamespaceObject returns (building and caching on first call) the
// frozen namespace object for `import * as ns from "..."` / `export *
// as ns from "..."`.
func (r *Record) NamespaceObject(build func(map[string]*environment.Binding) *value.Object) *value.Object {
	if r.namespace == nil {
		r.namespace = build(r.Exports)
	}
	return r.namespace
}

// Metadata is the introspection-facing snapshot of a Record (spec §6
// "getModuleMetadata").
type Metadata struct {
	Path       string
	Specifier  string
	State      string
	ExportNames []string
}

func (r *Record) Metadata() Metadata {
	names := make([]string, 0, len(r.Exports))
	for name := range r.Exports {
		names = append(names, name)
	}
	return Metadata{Path: r.Path, Specifier: r.Specifier, State: r.State.String(), ExportNames: names}
}
