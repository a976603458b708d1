package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/jsvm/internal/sandbox/value"
)

// The scenarios below are transcribed verbatim from the end-to-end list
// this interpreter is specified against, one test per scenario.

func TestScenarioStrictArityFailsWithExpectedMessage(t *testing.T) {
	t.Parallel()

	ev, err := New(Options{})
	require.NoError(t, err)

	_, err = ev.Evaluate(context.Background(), "function add(a,b){return a+b;} add(5)")
	require.Error(t, err)
	assert.ErrorContains(t, err, "Expected 2 arguments but got 1")
}

func TestScenarioClosureOverLoopVariable(t *testing.T) {
	t.Parallel()

	ev, err := New(Options{})
	require.NoError(t, err)

	v, err := ev.Evaluate(context.Background(), `
		let fs=[];
		for(const [n,l] of [[1,'a'],[2,'b'],[3,'c']]) fs.push(()=>n+l);
		[fs[0](),fs[1](),fs[2]()]
	`)
	require.NoError(t, err)
	assert.Equal(t, `1a,2b,3c`, value.ToString(v))
}

func TestScenarioProtoBlockRaisesSecurityError(t *testing.T) {
	t.Parallel()

	ev, err := New(Options{})
	require.NoError(t, err)
	require.NoError(t, ev.DefineGlobal("obj", map[string]any{"value": 42}))

	_, err = ev.Evaluate(context.Background(), "obj.__proto__")
	require.Error(t, err)
	assert.ErrorContains(t, err, "SecurityError")
	assert.ErrorContains(t, err, "Cannot access __proto__ on global 'obj'")
}

func TestScenarioLabeledBreak(t *testing.T) {
	t.Parallel()

	ev, err := New(Options{})
	require.NoError(t, err)

	v, err := ev.Evaluate(context.Background(), `
		let r=0;
		outer: for(let i=0;i<5;i++){
			for(let j=0;j<5;j++){
				if(j===2) break outer;
				r++;
			}
		}
		r
	`)
	require.NoError(t, err)
	assert.InDelta(t, 2, value.ToNumber(v), 0)
}

func TestScenarioBigIntIsolation(t *testing.T) {
	t.Parallel()

	ev, err := New(Options{})
	require.NoError(t, err)

	v, err := ev.Evaluate(context.Background(), "2n ** 10n")
	require.NoError(t, err)
	assert.Equal(t, "1024", value.ToString(v))

	_, err = ev.Evaluate(context.Background(), "10n + 5")
	require.Error(t, err)
	assert.ErrorContains(t, err, "TypeError")
}
