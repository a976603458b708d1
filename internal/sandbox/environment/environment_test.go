package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/jsvm/internal/sandbox/value"
)

func TestDeclareAndInitializeTDZ(t *testing.T) {
	t.Parallel()

	env := New(ScopeGlobal)
	require.NoError(t, env.Declare("x", KindLet))

	b, owner := env.Lookup("x")
	require.NotNil(t, b)
	assert.Same(t, env, owner)
	assert.False(t, b.Initialized)

	require.NoError(t, env.Initialize("x", value.Number(1)))
	assert.True(t, b.Initialized)
	assert.Equal(t, value.Number(1), b.Value)
}

func TestAssignEnforcesConstAndTDZ(t *testing.T) {
	t.Parallel()

	env := New(ScopeGlobal)
	require.NoError(t, env.Declare("x", KindLet))
	err := env.Assign("x", value.Number(1))
	assert.ErrorContains(t, err, "before initialization")

	require.NoError(t, env.Initialize("x", value.Number(1)))

	require.NoError(t, env.Declare("c", KindConst))
	require.NoError(t, env.Initialize("c", value.Number(2)))
	err = env.Assign("c", value.Number(3))
	assert.ErrorContains(t, err, "constant")
}

func TestVarHoistsToNearestFunctionScope(t *testing.T) {
	t.Parallel()

	fn := New(ScopeFunction)
	block := fn.NewChild(ScopeBlock)

	require.NoError(t, block.Declare("v", KindVar))
	assert.False(t, block.HasOwn("v"))
	assert.True(t, fn.HasOwn("v"))

	// Redeclaring the same var from a different nested block is idempotent.
	block2 := fn.NewChild(ScopeBlock)
	require.NoError(t, block2.Declare("v", KindVar))
}

func TestAliasSharesSameBindingPointer(t *testing.T) {
	t.Parallel()

	exporting := New(ScopeModule)
	require.NoError(t, exporting.Declare("value", KindConst))
	require.NoError(t, exporting.Initialize("value", value.Number(42)))
	exportBinding := exporting.OwnBinding("value")
	require.NotNil(t, exportBinding)

	importing := New(ScopeModule)
	require.NoError(t, importing.Alias("value", exportBinding))

	b, _ := importing.Lookup("value")
	require.Same(t, exportBinding, b)

	// Live binding: a later write on the exporting side is observed
	// through the imported name without re-aliasing.
	exportBinding.Value = value.Number(99)
	b2, _ := importing.Lookup("value")
	assert.Equal(t, value.Number(99), b2.Value)

	// Aliasing into an already-declared name fails.
	require.NoError(t, importing.Declare("taken", KindLet))
	assert.Error(t, importing.Alias("taken", exportBinding))
}

func TestOwnBindingDoesNotSeeParentScope(t *testing.T) {
	t.Parallel()

	parent := New(ScopeGlobal)
	require.NoError(t, parent.Declare("x", KindVar))
	child := parent.NewChild(ScopeBlock)

	assert.Nil(t, child.OwnBinding("x"))
	assert.NotNil(t, parent.OwnBinding("x"))
}
