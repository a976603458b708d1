// Package compiler turns ECMAScript source text into the evaluator's AST.
//
// Parsing itself is explicitly out of scope for this interpreter (spec §1
// names "the lexer/parser producing the syntax tree" an external
// collaborator); this package is the thin adapter boundary that hands that
// job to goja's battle-tested parser (github.com/dop251/goja/parser,
// .../ast) and converts its tree into internal/sandbox/ast, the shape the
// evaluator actually walks. Isolating the conversion here means a future
// parser swap touches one file, not the evaluator.
package compiler

import (
	"fmt"

	gojaast "github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	sbast "github.com/grafana/jsvm/internal/sandbox/ast"
)

// Source is pre-parsed or raw-text input to Compile.
type Source struct {
	Code     string
	Filename string
	IsModule bool
}

// Compile parses source text into a Program. Parse errors are returned as
// plain errors; the evaluator wraps them into a SyntaxError sandbox error.
func Compile(src Source) (*sbast.Program, error) {
	opts := []parser.Option{}
	if src.IsModule {
		opts = append(opts, parser.IsModule)
	}
	prog, err := parser.ParseFile(nil, src.Filename, src.Code, 0, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.Filename, err)
	}
	return adapt(prog, src.IsModule)
}

// adapt walks goja's *gojaast.Program and rebuilds it as our own AST. Only
// the subset of goja's grammar this interpreter supports is translated;
// anything else surfaces as an "unsupported construct" error at compile
// time rather than a panic deep in the evaluator.
func adapt(p *gojaast.Program, isModule bool) (prog *sbast.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ue, ok := r.(unsupportedError); ok {
				err = fmt.Errorf("unsupported construct: %s", string(ue))
				return
			}
			panic(r)
		}
	}()

	a := &adapter{}
	body := make([]sbast.Statement, 0, len(p.Body))
	for _, s := range p.Body {
		body = append(body, a.statement(s))
	}
	return &sbast.Program{Body: body, IsModule: isModule}, nil
}

type unsupportedError string

func unsupported(what string) {
	panic(unsupportedError(what))
}

type adapter struct{}
