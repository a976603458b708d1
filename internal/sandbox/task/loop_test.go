package task

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain verifies no goroutine started by a Loop survives its test,
// the same check the teacher runs across its own test packages.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStartRunsFnSynchronously(t *testing.T) {
	t.Parallel()

	l := New()
	ran := false
	err := l.Start(func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestStartDrainsRegisteredCallbacks(t *testing.T) {
	t.Parallel()

	l := New()
	var order []int
	err := l.Start(func() error {
		enqueue1 := l.RegisterCallback()
		enqueue2 := l.RegisterCallback()
		go func() { enqueue1(func() error { order = append(order, 1); return nil }) }()
		go func() { enqueue2(func() error { order = append(order, 2); return nil }) }()
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, order)
}

// TestStartPropagatesCallbackError confirms a failing drained callback
// stops the loop and its error surfaces from Start, and that no
// goroutine spawned to deliver that callback is left running afterward
// (goleak's TestMain check covers that across the whole package, this
// test just exercises the path that matters for spec §4.L/§5).
func TestStartPropagatesCallbackError(t *testing.T) {
	t.Parallel()

	l := New()
	want := fmt.Errorf("boom")
	err := l.Start(func() error {
		enqueue := l.RegisterCallback()
		go func() { enqueue(func() error { return want }) }()
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, want, err)
}

func TestStartRejectsReentrantUseWhilePending(t *testing.T) {
	t.Parallel()

	l := New()
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = l.Start(func() error {
			enqueue := l.RegisterCallback()
			close(started)
			go func() {
				<-release
				enqueue(func() error { return nil })
			}()
			return nil
		})
	}()
	<-started

	err := l.Start(func() error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	close(release)
	// Give the first Start call's drain goroutine time to finish before
	// TestMain's goleak check runs.
	time.Sleep(10 * time.Millisecond)
}

func TestCancelFlag(t *testing.T) {
	t.Parallel()

	var c CancelFlag
	assert.False(t, c.IsSet())
	c.Set()
	assert.True(t, c.IsSet())
}
