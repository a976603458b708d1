package module

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/jsvm/internal/sandbox/evaluator"
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// mapResolver resolves specifiers directly against an in-memory source
// map, keyed by the specifier itself (no relative-path rewriting),
// mirroring FileResolver's shape but without touching a filesystem.
type mapResolver struct {
	NopHooks
	sources map[string]string
	loads   []string
	errs    []string
}

func (r *mapResolver) Resolve(_ context.Context, specifier, _ string, _ []string) (*ResolveResult, error) {
	src, ok := r.sources[specifier]
	if !ok {
		return nil, nil
	}
	return &ResolveResult{Path: specifier, Source: src}, nil
}

func (r *mapResolver) OnLoad(_, path string) { r.loads = append(r.loads, path) }
func (r *mapResolver) OnError(_, _ string, err error) {
	r.errs = append(r.errs, err.Error())
}

func newTestLoader(sources map[string]string, cacheEnabled bool) (*evaluator.Evaluator, *Loader, *mapResolver) {
	ev := evaluator.New(evaluator.Options{})
	res := &mapResolver{sources: sources}
	l := New(ev, Options{Resolver: res, CacheEnabled: cacheEnabled})
	return ev, l, res
}

func evalModule(t *testing.T, ev *evaluator.Evaluator, l *Loader, entry string) map[string]value.Value {
	t.Helper()
	var ns *value.Object
	err := ev.RunInLoop(context.Background(), func() error {
		var ferr error
		ns, ferr = l.EvaluateModule(context.Background(), entry)
		return ferr
	})
	require.NoError(t, err)
	out := map[string]value.Value{}
	for _, key := range ns.OwnKeys() {
		v, err := ev.GetProperty(value.ObjectValue(ns), key)
		require.NoError(t, err)
		out[key] = v
	}
	return out
}

func TestSimpleNamedExportAndImport(t *testing.T) {
	t.Parallel()

	ev, l, res := newTestLoader(map[string]string{
		"/a.js": `export const greeting = "hi";`,
		"/b.js": `import { greeting } from "/a.js"; export const shout = greeting + "!";`,
	}, true)

	exports := evalModule(t, ev, l, "/b.js")
	require.Contains(t, exports, "shout")
	assert.Equal(t, "hi!", value.ToString(exports["shout"]))
	assert.Contains(t, res.loads, "/a.js")
	assert.Contains(t, res.loads, "/b.js")
}

func TestDefaultExportAnonymousExpression(t *testing.T) {
	t.Parallel()

	ev, l, _ := newTestLoader(map[string]string{
		"/a.js": `export default 41 + 1;`,
		"/b.js": `import answer from "/a.js"; export const doubled = answer * 2;`,
	}, true)

	exports := evalModule(t, ev, l, "/b.js")
	assert.InDelta(t, 84, value.ToNumber(exports["doubled"]), 0)
}

func TestNamespaceImportIsLiveAndReadOnly(t *testing.T) {
	t.Parallel()

	ev, l, _ := newTestLoader(map[string]string{
		"/a.js": `export let count = 1; export function bump() { count = count + 1; }`,
		"/b.js": `
			import * as a from "/a.js";
			a.bump();
			a.bump();
			a.count = 100;
			export const seen = a.count;
		`,
	}, true)

	exports := evalModule(t, ev, l, "/b.js")
	assert.InDelta(t, 3, value.ToNumber(exports["seen"]), 0)
}

func TestExportAllReexportsAndCanBeShadowed(t *testing.T) {
	t.Parallel()

	ev, l, _ := newTestLoader(map[string]string{
		"/a.js": `export const x = 1; export const y = 2;`,
		"/b.js": `export * from "/a.js"; export const x = 100;`,
	}, true)

	exports := evalModule(t, ev, l, "/b.js")
	// The local `export const x` must win over the star re-export of "x".
	assert.InDelta(t, 100, value.ToNumber(exports["x"]), 0)
	assert.InDelta(t, 2, value.ToNumber(exports["y"]), 0)
}

func TestCircularImportLeavesPartiallyInitializedBindingReadable(t *testing.T) {
	t.Parallel()

	// a imports from b and vice versa; this must not deadlock or
	// infinite-loop, and each side observes the other as whatever it had
	// bound by the time evaluation reached it (the TDZ/partial-init
	// behavior spec §4.G describes for cycles).
	ev, l, _ := newTestLoader(map[string]string{
		"/a.js": `
			import { bFlag } from "/b.js";
			export const aFlag = true;
			export const sawB = bFlag;
		`,
		"/b.js": `
			import { aFlag } from "/a.js";
			export const bFlag = true;
			export const sawA = aFlag;
		`,
	}, true)

	exports := evalModule(t, ev, l, "/a.js")
	assert.Equal(t, value.True, exports["aFlag"])
	// /b.js finishes evaluating before /a.js's own body runs (b is a's
	// first dependency), so by the time a's body executes, b.bFlag is
	// already initialized.
	assert.Equal(t, value.True, exports["sawB"])
}

func TestDiamondDependencyEvaluatedOnce(t *testing.T) {
	t.Parallel()

	sources := map[string]string{
		"/base.js": `
			globalThis.__baseEvalCount = (globalThis.__baseEvalCount || 0) + 1;
			export const tag = "base";
		`,
		"/left.js":  `export { tag as leftTag } from "/base.js";`,
		"/right.js": `export { tag as rightTag } from "/base.js";`,
		"/top.js": `
			import { leftTag } from "/left.js";
			import { rightTag } from "/right.js";
			export const same = leftTag === rightTag;
			export const evalCount = globalThis.__baseEvalCount;
		`,
	}
	ev, l, _ := newTestLoader(sources, true)

	exports := evalModule(t, ev, l, "/top.js")
	assert.Equal(t, value.True, exports["same"])
	assert.InDelta(t, 1, value.ToNumber(exports["evalCount"]), 0)
}

func TestModuleNotFoundReportsError(t *testing.T) {
	t.Parallel()

	ev, l, res := newTestLoader(map[string]string{
		"/a.js": `import { x } from "/missing.js";`,
	}, true)

	err := ev.RunInLoop(context.Background(), func() error {
		_, ferr := l.EvaluateModule(context.Background(), "/a.js")
		return ferr
	})
	require.Error(t, err)
	assert.NotEmpty(t, res.errs)
}

func TestCacheDisabledReevaluatesOnEachImport(t *testing.T) {
	t.Parallel()

	sources := map[string]string{
		"/counted.js": `
			globalThis.__n = (globalThis.__n || 0) + 1;
			export const n = globalThis.__n;
		`,
		"/user.js": `
			import { n as first } from "/counted.js";
			import { n as second } from "/counted.js";
			export const firstN = first;
			export const secondN = second;
		`,
	}
	ev, l, _ := newTestLoader(sources, false)

	exports := evalModule(t, ev, l, "/user.js")
	assert.InDelta(t, 1, value.ToNumber(exports["firstN"]), 0)
	assert.InDelta(t, 2, value.ToNumber(exports["secondN"]), 0)
}

func TestIntrospectionReportsLoadedModules(t *testing.T) {
	t.Parallel()

	ev, l, _ := newTestLoader(map[string]string{
		"/a.js": `export const v = 1;`,
		"/b.js": `import { v } from "/a.js"; export const w = v + 1;`,
	}, true)

	evalModule(t, ev, l, "/b.js")

	assert.True(t, l.IsModuleCached("/a.js"))
	assert.True(t, l.IsModuleCached("/b.js"))
	assert.ElementsMatch(t, []string{"/a.js", "/b.js"}, l.GetLoadedModulePaths())

	meta, ok := l.GetModuleMetadata("/a.js")
	require.True(t, ok)
	assert.Equal(t, StateEvaluated.String(), meta.State)

	assert.Equal(t, 2, l.GetModuleCacheSize())
	l.ClearModuleCache()
	assert.Equal(t, 0, l.GetModuleCacheSize())
	assert.False(t, l.IsModuleCached("/a.js"))
}

func TestMaxDepthExceededIsFatal(t *testing.T) {
	t.Parallel()

	sources := map[string]string{}
	const depth = 5
	for i := 0; i < depth; i++ {
		sources[fmt.Sprintf("/m%d.js", i)] = fmt.Sprintf(`import "/m%d.js"; export const v = %d;`, i+1, i)
	}
	sources[fmt.Sprintf("/m%d.js", depth)] = `export const v = "leaf";`

	ev := evaluator.New(evaluator.Options{})
	res := &mapResolver{sources: sources}
	l := New(ev, Options{Resolver: res, CacheEnabled: true, MaxDepth: 2})

	err := ev.RunInLoop(context.Background(), func() error {
		_, ferr := l.EvaluateModule(context.Background(), "/m0.js")
		return ferr
	})
	assert.Error(t, err)
}
