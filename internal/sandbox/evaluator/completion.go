package evaluator

import "github.com/grafana/jsvm/internal/sandbox/value"

// CompletionType is the tag of a statement's completion (spec §4.E
// "Completion model").
type CompletionType uint8

const (
	CompletionNormal CompletionType = iota
	CompletionReturn
	CompletionBreak
	CompletionContinue
)

// Completion is the result of evaluating one statement. Throw completions
// are represented as Go errors (specifically *ThrowSignal below) rather
// than a Completion variant, since every statement execution function
// already returns an error for that purpose — composing two different
// "this propagates upward" channels would be redundant.
type Completion struct {
	Type  CompletionType
	Value value.Value
	Label string // for Break/Continue: the target label, "" for unlabeled
}

func normal(v value.Value) Completion { return Completion{Type: CompletionNormal, Value: v} }

func isAbrupt(c Completion) bool { return c.Type != CompletionNormal }
