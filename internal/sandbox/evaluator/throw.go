package evaluator

import (
	"github.com/grafana/jsvm/internal/sandbox/errmodel"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// ThrowSignal carries a sandbox `throw` completion up through ordinary Go
// error returns (spec §4.E: "throw: wraps the thrown value into a
// sandbox-error carrier"). It is caught by try/catch and, if it escapes
// the whole evaluation, surfaced to the host wrapped in an *errmodel.Error
// whose Cause is the original thrown Value.
type ThrowSignal struct {
	Value value.Value
}

func (t *ThrowSignal) Error() string {
	return "Uncaught " + value.ToString(t.Value)
}

func throwValue(v value.Value) error { return &ThrowSignal{Value: v} }

func throwErr(kind errmodel.Kind, format string, args ...any) error {
	return &ThrowSignal{Value: errorValue(kind, format, args...)}
}
