// Package environment implements lexical scopes and bindings (spec §3,
// §4.B): chained scope records, TDZ tracking, const single-assignment,
// and var hoisting to the nearest function/module/global scope.
package environment

import (
	"fmt"

	"github.com/grafana/jsvm/internal/sandbox/value"
)

// Kind is a binding's declaration form.
type Kind uint8

const (
	KindLet Kind = iota
	KindConst
	KindVar
	KindParam
	KindFunction
)

// ScopeType tags what kind of scope an Environment represents, used only
// to decide where `var` hoists to and whether redeclaration is legal.
type ScopeType uint8

const (
	ScopeGlobal ScopeType = iota
	ScopeFunction
	ScopeBlock
	ScopeModule
	ScopeCatch
)

// Binding is a named slot: its declaration kind, whether it has been
// initialized yet (false means: in the temporal dead zone), and its
// current value.
type Binding struct {
	Kind        Kind
	Initialized bool
	Value       value.Value
}

// Environment is a single lexical scope: bindings by name, a parent
// pointer, and a scope-type tag.
type Environment struct {
	Type     ScopeType
	Parent   *Environment
	bindings map[string]*Binding
}

// New creates a root environment (typically the global scope) with no
// parent.
func New(scopeType ScopeType) *Environment {
	return &Environment{Type: scopeType, bindings: make(map[string]*Binding)}
}

// NewChild creates a scope nested under e.
func (e *Environment) NewChild(scopeType ScopeType) *Environment {
	return &Environment{Type: scopeType, Parent: e, bindings: make(map[string]*Binding)}
}

// nearestHoistTarget returns the scope `var` declarations hoist to: the
// nearest enclosing function, module, or global scope.
func (e *Environment) nearestHoistTarget() *Environment {
	for cur := e; cur != nil; cur = cur.Parent {
		switch cur.Type {
		case ScopeFunction, ScopeModule, ScopeGlobal:
			return cur
		}
	}
	return e
}

// Declare introduces a new binding of the given kind in the appropriate
// scope: `var` hoists to the nearest function/module/global scope; every
// other kind declares in e directly. `let`/`const`/`function` declarations
// start uninitialized (TDZ); `var` and `param` start initialized to
// undefined so the spec's "var over var is idempotent" rule holds trivially.
func (e *Environment) Declare(name string, kind Kind) error {
	target := e
	if kind == KindVar {
		target = e.nearestHoistTarget()
	}
	if existing, ok := target.bindings[name]; ok {
		if kind == KindVar && existing.Kind == KindVar {
			return nil // var redeclaration is idempotent
		}
		if kind == KindVar && existing.Kind == KindFunction {
			return nil // var may coexist with an earlier function hoist
		}
		return fmt.Errorf("identifier %q has already been declared", name)
	}
	b := &Binding{Kind: kind}
	if kind == KindVar || kind == KindParam {
		b.Initialized = true
		b.Value = value.Undefined
	}
	target.bindings[name] = b
	return nil
}

// Initialize sets the value of a binding previously declared in e (not a
// parent scope) and marks it initialized, ending its TDZ.
func (e *Environment) Initialize(name string, v value.Value) error {
	b, ok := e.bindings[name]
	if !ok {
		return fmt.Errorf("internal error: %q not declared in this scope", name)
	}
	b.Initialized = true
	b.Value = v
	return nil
}

// Lookup walks the parent chain for name, returning its binding and the
// environment that owns it. A binding that exists but is in TDZ is still
// returned (callers must check Initialized and raise a ReferenceError
// themselves, per spec: "A binding in TDZ is never observable as a value").
func (e *Environment) Lookup(name string) (*Binding, *Environment) {
	for cur := e; cur != nil; cur = cur.Parent {
		if b, ok := cur.bindings[name]; ok {
			return b, cur
		}
	}
	return nil, nil
}

// Assign writes a new value to an existing binding, enforcing const
// single-assignment and TDZ-on-write.
func (e *Environment) Assign(name string, v value.Value) error {
	b, _ := e.Lookup(name)
	if b == nil {
		return fmt.Errorf("%q is not defined", name)
	}
	if !b.Initialized {
		return fmt.Errorf("cannot access %q before initialization", name)
	}
	if b.Kind == KindConst {
		return fmt.Errorf("assignment to constant variable %q", name)
	}
	b.Value = v
	return nil
}

// HasOwn reports whether name is declared directly in e (not a parent).
func (e *Environment) HasOwn(name string) bool {
	_, ok := e.bindings[name]
	return ok
}

// Alias installs an existing Binding under name in e directly, without
// copying its value: reads through name observe whatever the aliased
// Binding later becomes. This is how the module loader (spec §4.G
// "link... a binding that points (live) to the target module's export
// binding") implements live import bindings without a separate
// indirection layer — the imported name and the exporting module's own
// binding are, literally, the same *Binding.
func (e *Environment) Alias(name string, b *Binding) error {
	if _, ok := e.bindings[name]; ok {
		return fmt.Errorf("identifier %q has already been declared", name)
	}
	e.bindings[name] = b
	return nil
}

// OwnBinding returns the Binding declared directly in e under name, or
// nil. Used by the module loader to capture a live pointer into a
// module's export table right after hoisting, before the module body
// has executed.
func (e *Environment) OwnBinding(name string) *Binding {
	return e.bindings[name]
}
