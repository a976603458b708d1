// Package module implements the module loader (spec §4.G): resolving
// specifiers through a host-supplied Resolver, building the import DAG,
// linking live bindings between modules, and evaluating the graph in
// dependency-first post-order.
package module

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
	"github.com/grafana/jsvm/internal/sandbox/value"
	"github.com/spf13/afero"
)

// ResolveResult is what a Resolver returns for a specifier: exactly one
// of Source, AST, or Namespace is set, mirroring the three record shapes
// the host-facing resolver protocol distinguishes (spec §6:
// SourceRecord/AstRecord/NamespaceRecord).
type ResolveResult struct {
	// Path is the canonical, resolution-stable identity used for caching
	// and cycle detection — distinct specifiers resolving to the same
	// Path are the same module.
	Path string

	// Source is raw ECMAScript text to parse; set for SourceRecord.
	Source string

	// AST is a pre-parsed program; set for AstRecord (a host that already
	// owns a parse pipeline can skip re-parsing here).
	AST *sbast.Program

	// Namespace is a ready-made export table for a host-native module
	// (spec NamespaceRecord) — e.g. a "virtual" module backed entirely by
	// Go values, never parsed or evaluated as script.
	Namespace map[string]value.Value
}

// Resolver is the host-supplied capability the loader consumes (spec
// §4.G "the loader consumes a resolver capability supplied by the
// host"). Resolve returns (nil, nil) for "module not found", not an
// error — a missing module is an ordinary negative result, while err is
// reserved for the resolver's own failures (I/O errors, etc).
type Resolver interface {
	Resolve(ctx context.Context, specifier, importer string, chain []string) (*ResolveResult, error)

	// OnLoad and OnError are lifecycle hooks (spec §4.G); the loader
	// guarantees OnLoad fires at most once per unique resolved Path while
	// caching is enabled (spec §8's testable property), and calls OnError
	// whenever resolution, parsing, linking, or evaluation of a module
	// fails. Either may be a no-op.
	OnLoad(specifier, path string)
	OnError(specifier, importer string, err error)
}

// NopHooks can be embedded by a Resolver implementation that doesn't
// care about lifecycle notifications.
type NopHooks struct{}

func (NopHooks) OnLoad(specifier, path string)            {}
func (NopHooks) OnError(specifier, importer string, err error) {}

// FileResolver resolves specifiers against an afero filesystem using
// Node-style relative/absolute path rules, grounded on the teacher's
// loader.Dir/loader.Load shape (loader/loader_test.go): an absolute
// specifier is used as is, and any other specifier, with or without a
// leading "." or "..", is resolved relative to the importer's directory
// (or Pwd for the entry module). Remote (http/https) loading, which
// the teacher's loader also supports, is deliberately not reproduced:
// spec §1 lists "real resolvers" as an external, host-supplied concern,
// and this type exists only to give cmd/sandboxjs a working local
// resolver out of the box.
type FileResolver struct {
	NopHooks
	Fs  afero.Fs
	Pwd string
}

// NewFileResolver builds a FileResolver rooted at pwd (used to resolve
// the entry module's own specifier, which has no importer).
func NewFileResolver(fs afero.Fs, pwd string) *FileResolver {
	return &FileResolver{Fs: fs, Pwd: pwd}
}

func (r *FileResolver) Resolve(_ context.Context, specifier, importer string, _ []string) (*ResolveResult, error) {
	if specifier == "" {
		return nil, fmt.Errorf("local or remote path required")
	}
	if strings.Contains(specifier, "://") {
		return nil, fmt.Errorf("imports should not contain a protocol")
	}
	base := r.Pwd
	if importer != "" {
		base = dirOf(importer)
	}
	var resolved string
	if path.IsAbs(specifier) {
		resolved = path.Clean(specifier)
	} else if strings.HasPrefix(specifier, ".") {
		resolved = path.Clean(path.Join(base, specifier))
	} else {
		resolved = path.Clean(path.Join(base, specifier))
	}
	data, err := afero.ReadFile(r.Fs, resolved)
	if err != nil {
		return nil, err
	}
	return &ResolveResult{Path: resolved, Source: string(data)}, nil
}

// dirOf mirrors loader.Dir: the directory portion of a resolved module
// path, "/" for a bare top-level file.
func dirOf(p string) string {
	d := path.Dir(filepath.ToSlash(p))
	if d == "." {
		return "/"
	}
	return d
}
