package sandbox

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sbmodule "github.com/grafana/jsvm/internal/sandbox/module"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

func TestEvaluateArithmetic(t *testing.T) {
	t.Parallel()

	ev, err := New(Options{})
	require.NoError(t, err)

	v, err := ev.Evaluate(context.Background(), "1 + 2 * 3")
	require.NoError(t, err)
	assert.InDelta(t, 7, value.ToNumber(v), 0)
}

func TestEvaluateSyntaxErrorSurfacesAsError(t *testing.T) {
	t.Parallel()

	ev, err := New(Options{})
	require.NoError(t, err)

	_, err = ev.Evaluate(context.Background(), "const = ;")
	assert.Error(t, err)
}

func TestDefineGlobalReachableFromScript(t *testing.T) {
	t.Parallel()

	ev, err := New(Options{})
	require.NoError(t, err)
	require.NoError(t, ev.DefineGlobal("hostValue", 21))

	v, err := ev.Evaluate(context.Background(), "hostValue * 2")
	require.NoError(t, err)
	assert.InDelta(t, 42, value.ToNumber(v), 0)
}

func TestModuleSystemDisabledByDefault(t *testing.T) {
	t.Parallel()

	ev, err := New(Options{})
	require.NoError(t, err)
	assert.False(t, ev.IsModuleSystemEnabled())

	_, err = ev.EvaluateModuleAsync(context.Background(), "export const x = 1;", "/entry.js")
	assert.Error(t, err)
}

func TestEvaluateModuleAsyncWithFileResolver(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/lib.js", []byte(`export const half = n => n / 2;`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/entry.js", []byte(`
		import { half } from "./lib.js";
		export const result = half(10);
	`), 0o644))

	ev, err := New(Options{
		Modules: ModuleOptions{
			Enabled:      true,
			Resolver:     sbmodule.NewFileResolver(fs, "/"),
			CacheEnabled: true,
		},
	})
	require.NoError(t, err)

	exports, err := ev.EvaluateModuleAsync(context.Background(), "", "/entry.js")
	require.NoError(t, err)
	require.Contains(t, exports, "result")
	assert.InDelta(t, 5, value.ToNumber(exports["result"]), 0)

	assert.True(t, ev.IsModuleCached("/lib.js"))
	meta, ok := ev.GetModuleMetadata("/lib.js")
	require.True(t, ok)
	assert.Equal(t, "evaluated", meta.State)

	ev.ClearModuleCache()
	assert.False(t, ev.IsModuleCached("/lib.js"))
}

func TestUnknownFeaturePresetErrors(t *testing.T) {
	t.Parallel()

	_, err := New(Options{FeatureControl: FeatureControlOptions{Preset: "not-a-real-preset"}})
	assert.Error(t, err)
}
