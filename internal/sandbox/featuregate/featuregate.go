// Package featuregate implements the AST-node-kind policy gate (spec
// §4.D): a whitelist or blacklist of syntactic construct names, checked
// once per node before the evaluator walks it.
package featuregate

import "fmt"

// Mode selects whether Features lists what's allowed or what's forbidden.
type Mode uint8

const (
	Blacklist Mode = iota
	Whitelist
)

// Gate holds one evaluation's feature policy.
type Gate struct {
	mode     Mode
	features map[string]bool
}

// New builds a Gate from a mode and an explicit feature-tag set.
func New(mode Mode, features []string) *Gate {
	g := &Gate{mode: mode, features: make(map[string]bool, len(features))}
	for _, f := range features {
		g.features[f] = true
	}
	return g
}

// Allow reports whether constructKind (an ast Node's Kind(), e.g.
// "BigIntLiteral", "ClassDeclaration", "AwaitExpression") is permitted.
func (g *Gate) Allow(constructKind string) bool {
	if g == nil {
		return true // no gate configured: everything allowed
	}
	listed := g.features[constructKind]
	if g.mode == Whitelist {
		return listed
	}
	return !listed
}

// Check returns a descriptive error if constructKind is forbidden,
// otherwise nil.
func (g *Gate) Check(constructKind string) error {
	if g.Allow(constructKind) {
		return nil
	}
	return fmt.Errorf("construct %q is disabled by the current feature policy", constructKind)
}

// Preset returns a named, fixed feature set. Presets are defined in
// presets.go; an unknown name reports ok=false.
func Preset(name string) (*Gate, bool) {
	features, mode, ok := presets[name]
	if !ok {
		return nil, false
	}
	return New(mode, features), true
}
