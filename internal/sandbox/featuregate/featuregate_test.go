package featuregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilGateAllowsEverything(t *testing.T) {
	t.Parallel()

	var g *Gate
	assert.True(t, g.Allow("BigIntLiteral"))
	assert.NoError(t, g.Check("AwaitExpression"))
}

func TestBlacklistModeForbidsOnlyListedFeatures(t *testing.T) {
	t.Parallel()

	g := New(Blacklist, []string{"BigIntLiteral"})
	assert.False(t, g.Allow("BigIntLiteral"))
	assert.True(t, g.Allow("ClassDeclaration"))
}

func TestWhitelistModeAllowsOnlyListedFeatures(t *testing.T) {
	t.Parallel()

	g := New(Whitelist, []string{"NumberLiteral"})
	assert.True(t, g.Allow("NumberLiteral"))
	assert.False(t, g.Allow("ClassDeclaration"))
	assert.ErrorContains(t, g.Check("ClassDeclaration"), "disabled")
}

func TestPreset2019ForbidsBigIntAndOptionalChaining(t *testing.T) {
	t.Parallel()

	g, ok := Preset("2019")
	require := assert.New(t)
	require.True(ok)
	require.False(g.Allow("BigIntLiteral"))
	require.False(g.Allow("OptionalChaining"))
	require.True(g.Allow("ClassDeclaration"))
}

func TestPresetStrictDataWhitelistsOnlyDataShapes(t *testing.T) {
	t.Parallel()

	g, ok := Preset("strict-data")
	assert.True(t, ok)
	assert.True(t, g.Allow("ObjectLiteral"))
	assert.False(t, g.Allow("FunctionDeclaration"))
	assert.False(t, g.Allow("AwaitExpression"))
}

func TestUnknownPresetReturnsFalse(t *testing.T) {
	t.Parallel()

	_, ok := Preset("not-a-preset")
	assert.False(t, ok)
}
