package async

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrAborted completes tasks whose coroutine was still suspended when the
	// scheduler closed.
	ErrAborted = errors.New("async: task aborted")
	ErrNotReady = errors.New("async: task not ready")
)

// Void is the result type of tasks that only signal completion.
type Void = struct{}

// Awaitable is anything a coroutine can suspend on.
type Awaitable interface {
	IsReady() bool
	Err() error
	state() *taskState
}

type taskState struct {
	name      string
	done      bool
	err       error
	cancelled atomic.Bool
	waiters   []*coro
	callbacks []func()
}

func (st *taskState) complete(err error) {
	if st.done {
		return
	}
	st.done = true
	st.err = err
	waiters := st.waiters
	st.waiters = nil
	for _, c := range waiters {
		c.sched.wake(c)
	}
	callbacks := st.callbacks
	st.callbacks = nil
	for _, fn := range callbacks {
		fn()
	}
}

// onDone runs fn when the task completes, immediately if it already has.
func (st *taskState) onDone(fn func()) {
	if st.done {
		fn()
		return
	}
	st.callbacks = append(st.callbacks, fn)
}

// Task is the handle of an asynchronous operation producing a T.
// A Task is completed exactly once and only on the scene thread.
type Task[T any] struct {
	st  taskState
	val T
}

func (t *Task[T]) state() *taskState { return &t.st }

func (t *Task[T]) Name() string  { return t.st.name }
func (t *Task[T]) IsReady() bool { return t.st.done }

// Err returns the failure of a completed task, ErrNotReady while pending.
func (t *Task[T]) Err() error {
	if !t.st.done {
		return ErrNotReady
	}
	return t.st.err
}

// Result returns the value and error of a completed task.
func (t *Task[T]) Result() (T, error) {
	if !t.st.done {
		var zero T
		return zero, ErrNotReady
	}
	return t.val, t.st.err
}

// Cancel raises the advisory cancellation flag. The task body decides when
// (and whether) to observe it through Co.Cancelled.
func (t *Task[T]) Cancel() { t.st.cancelled.Store(true) }

func (t *Task[T]) Cancelled() bool { return t.st.cancelled.Load() }

// OnDone registers fn to run on completion.
func (t *Task[T]) OnDone(fn func()) { t.st.onDone(fn) }

func (t *Task[T]) resolve(v T, err error) bool {
	if t.st.done {
		return false
	}
	t.val = v
	t.st.complete(err)
	return true
}

// Ready returns an already completed task.
func Ready[T any](v T) *Task[T] {
	t := &Task[T]{val: v}
	t.st.done = true
	return t
}

// Done returns an already completed Void task.
func Done() *Task[Void] { return Ready(Void{}) }

// Failed returns an already failed task.
func Failed[T any](err error) *Task[T] {
	t := &Task[T]{}
	t.st.done = true
	t.st.err = err
	return t
}

// Cancel raises the advisory cancellation flag of a pending awaitable.
func Cancel(a Awaitable) {
	if a != nil && !a.IsReady() {
		a.state().cancelled.Store(true)
	}
}
