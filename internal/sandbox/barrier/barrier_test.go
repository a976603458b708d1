package barrier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/jsvm/internal/sandbox/value"
)

type hostThing struct {
	Name  string
	Count int
}

func (h *hostThing) Greet(suffix string) string { return "hi " + h.Name + suffix }

func TestWrapGlobalStructExposesExportedFieldsCaseInsensitively(t *testing.T) {
	t.Parallel()

	b := New(DefaultOptions())
	v, err := b.WrapGlobal("thing", &hostThing{Name: "ada", Count: 3})
	require.NoError(t, err)
	require.True(t, v.IsObject())

	name, err := v.Object().Host.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "ada", value.ToString(name))

	count, err := v.Object().Host.Get("Count")
	require.NoError(t, err)
	assert.InDelta(t, 3, value.ToNumber(count), 0)
}

func TestForbiddenNameIsRejectedOnRead(t *testing.T) {
	t.Parallel()

	b := New(DefaultOptions())
	v, err := b.WrapGlobal("thing", &hostThing{Name: "ada"})
	require.NoError(t, err)

	_, err = v.Object().Host.Get("__proto__")
	assert.ErrorContains(t, err, "Cannot access")
}

func TestWriteToWrappedHostObjectAlwaysFails(t *testing.T) {
	t.Parallel()

	b := New(DefaultOptions())
	v, err := b.WrapGlobal("thing", &hostThing{Name: "ada"})
	require.NoError(t, err)

	err = v.Object().Host.Set("name", value.String("eve"))
	assert.ErrorContains(t, err, "read-only")

	err = v.Object().Host.Delete("name")
	assert.ErrorContains(t, err, "Cannot delete")
}

func TestWrapGlobalMapExposesSortedOwnKeys(t *testing.T) {
	t.Parallel()

	b := New(DefaultOptions())
	v, err := b.WrapGlobal("m", map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, v.Object().Host.OwnKeys())
}

func TestAdaptedMethodCallWithExtraSuffixArgument(t *testing.T) {
	t.Parallel()

	b := New(DefaultOptions())
	v, err := b.WrapGlobal("thing", &hostThing{Name: "ada"})
	require.NoError(t, err)

	greet, err := v.Object().Host.Get("Greet")
	require.NoError(t, err)
	require.True(t, greet.IsFunction())

	out, err := greet.Function().Call(value.Undefined, []value.Value{value.String("!")})
	require.NoError(t, err)
	assert.Equal(t, "hi ada!", value.ToString(out))
}

func TestAdaptFuncHandlesContextAndErrorReturn(t *testing.T) {
	t.Parallel()

	b := New(DefaultOptions())
	called := false
	hostFn := func(ctx context.Context, n int) (string, error) {
		called = true
		if n < 0 {
			return "", errors.New("negative")
		}
		return "ok", nil
	}
	v, err := b.WrapGlobal("fn", hostFn)
	require.NoError(t, err)
	require.True(t, v.IsFunction())

	out, err := v.Function().Call(value.Undefined, []value.Value{value.Number(1)})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "ok", value.ToString(out))

	_, err = v.Function().Call(value.Undefined, []value.Value{value.Number(-1)})
	assert.Error(t, err)
}

func TestHideHostErrorMessagesRedactsErrorText(t *testing.T) {
	t.Parallel()

	b := New(Options{SanitizeErrors: true, HideHostErrorMessages: true})
	hostFn := func() error { return errors.New("leaked internal path /etc/secret") }
	v, err := b.WrapGlobal("fn", hostFn)
	require.NoError(t, err)

	_, err = v.Function().Call(value.Undefined, nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "/etc/secret")
}

func TestValueOfReturnsSafeStubNotHostError(t *testing.T) {
	t.Parallel()

	b := New(DefaultOptions())
	v, err := b.WrapGlobal("thing", &hostThing{Name: "ada"})
	require.NoError(t, err)

	valueOf, err := v.Object().Host.Get("valueOf")
	require.NoError(t, err)
	require.True(t, valueOf.IsFunction())

	out, err := valueOf.Function().Call(v, nil)
	require.NoError(t, err)
	assert.True(t, out.IsObject())
}

func TestIsForbiddenGlobalBlocksCodeSynthesisAndReflection(t *testing.T) {
	t.Parallel()

	assert.True(t, IsForbiddenGlobal("Function"))
	assert.True(t, IsForbiddenGlobal("eval"))
	assert.True(t, IsForbiddenGlobal("Proxy"))
	assert.False(t, IsForbiddenGlobal("Math"))
}
