package evaluator

import "github.com/grafana/jsvm/internal/sandbox/value"

// fiber gives generator and async function bodies a suspension point:
// the function body runs on its own goroutine, handed control by the
// driver (generator.next()/the task loop) one resumption at a time via
// the two channels below. Exactly one goroutine — either the driver or
// the fiber body — is ever running at once, so no sandbox state is
// touched concurrently (spec §5: "single-goroutine cooperative task
// loop"); the extra goroutine exists purely to give the body a call
// stack to suspend mid-expression.
type fiber struct {
	resumeCh chan resumeMsg
	yieldCh  chan yieldMsg
	started  bool
	done     bool
}

type resumeKind uint8

const (
	resumeNext resumeKind = iota
	resumeThrow
	resumeReturn
)

type resumeMsg struct {
	kind resumeKind
	val  value.Value
}

type yieldKind uint8

const (
	yieldValue yieldKind = iota // suspended at a `yield`/`await`
	yieldDone                   // body finished (return value, or fell off the end)
	yieldError                  // body raised an uncaught error
)

type yieldMsg struct {
	kind yieldKind
	val  value.Value
	err  error
}

func newFiber() *fiber {
	return &fiber{resumeCh: make(chan resumeMsg), yieldCh: make(chan yieldMsg)}
}

// run starts the fiber body on its own goroutine. body is called with a
// suspend function the evaluator invokes at every yield/await point; it
// blocks until the driver sends the next resumption.
func (f *fiber) run(body func(suspend func(value.Value) resumeMsg)) {
	f.started = true
	go func() {
		<-f.resumeCh // the body starts only when the driver sends the first resumption
		defer func() {
			if r := recover(); r != nil {
				if sig, ok := r.(fiberCompletion); ok {
					f.yieldCh <- yieldMsg{kind: yieldDone, val: sig.val, err: sig.err}
					return
				}
				f.yieldCh <- yieldMsg{kind: yieldError, err: panicToError(r)}
			}
		}()
		body(func(v value.Value) resumeMsg {
			f.yieldCh <- yieldMsg{kind: yieldValue, val: v}
			return <-f.resumeCh
		})
		f.yieldCh <- yieldMsg{kind: yieldDone}
	}()
}

// fiberCompletion is panicked by the fiber body to finish early with a
// concrete result (return value or a thrown error) instead of falling
// off the end of body — recovered in run above.
type fiberCompletion struct {
	val value.Value
	err error
}

// resume sends a resumption message into a started fiber and waits for
// its next yield/completion.
func (f *fiber) resume(msg resumeMsg) yieldMsg {
	f.resumeCh <- msg
	y := <-f.yieldCh
	if y.kind != yieldValue {
		f.done = true
	}
	return y
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fiberPanic{r}
}

type fiberPanic struct{ v any }

func (p fiberPanic) Error() string { return "internal fiber panic" }
