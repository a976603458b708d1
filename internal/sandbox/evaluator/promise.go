package evaluator

import (
	"github.com/grafana/jsvm/internal/sandbox/value"
)

// Promises are plain objects tagged via ClassName "Promise", carrying
// their state machine in Internal — there is no separate promise.Object
// wrapper type, matching how the value package models every extra slot
// (error message/stack, array length) as Internal/ArrayLength rather
// than subclassing Object.
type promiseState string

const (
	statePending   promiseState = "pending"
	stateFulfilled promiseState = "fulfilled"
	stateRejected  promiseState = "rejected"
)

type reaction struct {
	onFulfilled, onRejected *value.Function
	resolve, reject         func(value.Value)
}

type promiseData struct {
	state     promiseState
	result    value.Value
	reactions []reaction
}

func newPromise(ev *Evaluator) (*value.Object, func(value.Value), func(value.Value)) {
	o := value.NewObject(ev.realm.objectProto)
	o.ClassName = "Promise"
	d := &promiseData{state: statePending}
	o.Internal = map[string]any{"promise": d}

	var resolve, reject func(value.Value)
	resolve = func(v value.Value) {
		if d.state != statePending {
			return
		}
		if v.IsObject() && v.Object().ClassName == "Promise" {
			chainPromise(ev, v.Object(), resolve, reject)
			return
		}
		d.state = stateFulfilled
		d.result = v
		ev.flushReactions(d)
	}
	reject = func(v value.Value) {
		if d.state != statePending {
			return
		}
		d.state = stateRejected
		d.result = v
		ev.flushReactions(d)
	}
	return o, resolve, reject
}

func chainPromise(ev *Evaluator, inner *value.Object, resolve, reject func(value.Value)) {
	d := inner.Internal["promise"].(*promiseData)
	switch d.state {
	case stateFulfilled:
		resolve(d.result)
	case stateRejected:
		reject(d.result)
	default:
		d.reactions = append(d.reactions, reaction{resolve: resolve, reject: reject})
	}
}

func (ev *Evaluator) flushReactions(d *promiseData) {
	reactions := d.reactions
	d.reactions = nil
	for _, r := range reactions {
		r := r
		enqueue := ev.loop.RegisterCallback()
		enqueue(func() error {
			if d.state == stateFulfilled {
				if r.resolve != nil {
					r.resolve(d.result)
				}
			} else if r.reject != nil {
				r.reject(d.result)
			}
			return nil
		})
	}
}

// driveFiber drains a fiber until it completes, turning await points on
// thenables into promise-reaction registrations (resumed later via the
// task loop) and every other await/yield into an immediate resume —
// there is no host I/O that can make an await truly block, so a
// suspension either settles this tick or is requeued on the loop.
func (ev *Evaluator) driveFiber(fb *fiber, y yieldMsg, resolve, reject func(value.Value)) error {
	for {
		switch y.kind {
		case yieldDone:
			resolve(y.val)
			return nil
		case yieldError:
			if ts, ok := y.err.(*ThrowSignal); ok {
				reject(ts.Value)
				return nil
			}
			return y.err
		default: // yieldValue: an await or a generator yield reached top level
			awaited := y.val
			if awaited.IsObject() && awaited.Object().ClassName == "Promise" {
				d := awaited.Object().Internal["promise"].(*promiseData)
				enqueue := ev.loop.RegisterCallback()
				onOK := func(v value.Value) {
					enqueue(func() error { return ev.continueFiber(fb, resumeMsg{kind: resumeNext, val: v}, resolve, reject) })
				}
				onErr := func(v value.Value) {
					enqueue(func() error { return ev.continueFiber(fb, resumeMsg{kind: resumeThrow, val: v}, resolve, reject) })
				}
				switch d.state {
				case stateFulfilled:
					onOK(d.result)
				case stateRejected:
					onErr(d.result)
				default:
					d.reactions = append(d.reactions, reaction{resolve: onOK, reject: onErr})
				}
				return nil
			}
			y = fb.resume(resumeMsg{kind: resumeNext, val: awaited})
		}
	}
}

func (ev *Evaluator) continueFiber(fb *fiber, msg resumeMsg, resolve, reject func(value.Value)) error {
	return ev.driveFiber(fb, fb.resume(msg), resolve, reject)
}
