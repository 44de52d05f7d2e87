package async

import (
	"fmt"
	"time"
)

type abortSignal struct{}

type coro struct {
	sched    *Scheduler
	st       *taskState
	resume   chan bool
	yield    chan struct{}
	wakeAt   time.Time
	finished bool
	panicVal any
}

// suspend gives the baton back and parks until the scheduler resumes us.
func (c *coro) suspend() {
	c.yield <- struct{}{}
	if !<-c.resume {
		panic(abortSignal{})
	}
}

// Co is the handle a coroutine body uses to suspend itself. It must not leak
// out of the body it was passed to.
type Co struct {
	c *coro
}

// Yield suspends until the next Poll.
func (co *Co) Yield() {
	s := co.c.sched
	s.yielded = append(s.yielded, co.c)
	co.c.suspend()
}

// Sleep suspends until the scheduler clock passes now+d.
func (co *Co) Sleep(d time.Duration) {
	if d <= 0 {
		co.Yield()
		return
	}
	s := co.c.sched
	co.c.wakeAt = s.now().Add(d)
	s.sleeping = append(s.sleeping, co.c)
	co.c.suspend()
}

// Await suspends until a completes and returns its error. Completed tasks
// return without suspending.
func (co *Co) Await(a Awaitable) error {
	if a == nil {
		return nil
	}
	st := a.state()
	if !st.done {
		st.waiters = append(st.waiters, co.c)
		co.c.suspend()
	}
	return st.err
}

// Cancelled reports whether the task running this body was asked to stop.
func (co *Co) Cancelled() bool { return co.c.st.cancelled.Load() }

func (co *Co) Scheduler() *Scheduler { return co.c.sched }

// Await suspends on t and returns its result.
func Await[T any](co *Co, t *Task[T]) (T, error) {
	if err := co.Await(t); err != nil {
		var zero T
		return zero, err
	}
	return t.val, nil
}

// Go starts fn as a coroutine. The body runs inside this call until its first
// suspension, so a body that never suspends returns a completed task.
func Go[T any](s *Scheduler, name string, fn func(co *Co) (T, error)) *Task[T] {
	t := &Task[T]{}
	t.st.name = name
	if s.closed {
		t.st.done = true
		t.st.err = ErrAborted
		return t
	}
	c := &coro{
		sched:  s,
		st:     &t.st,
		resume: make(chan bool),
		yield:  make(chan struct{}),
	}
	body := func() {
		defer func() {
			if r := recover(); r != nil {
				if _, aborted := r.(abortSignal); aborted {
					t.st.complete(ErrAborted)
				} else {
					c.panicVal = r
					t.st.complete(fmt.Errorf("async: task %q panicked: %v", name, r))
				}
			}
			c.finished = true
			c.yield <- struct{}{}
		}()
		if !<-c.resume {
			panic(abortSignal{})
		}
		v, err := fn(&Co{c: c})
		t.resolve(v, err)
	}
	s.start(c, body)
	return t
}

// Run starts a coroutine that only reports success or failure.
func Run(s *Scheduler, name string, fn func(co *Co) error) *Task[Void] {
	return Go(s, name, func(co *Co) (Void, error) {
		return Void{}, fn(co)
	})
}
