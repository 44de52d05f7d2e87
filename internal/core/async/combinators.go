package async

import "go.uber.org/multierr"

// Source is a task completed by hand.
type Source[T any] struct {
	t *Task[T]
}

func NewSource[T any](name string) *Source[T] {
	t := &Task[T]{}
	t.st.name = name
	return &Source[T]{t: t}
}

func (s *Source[T]) Task() *Task[T] { return s.t }

// Resolve completes the task with v. It reports false if it was already done.
func (s *Source[T]) Resolve(v T) bool { return s.t.resolve(v, nil) }

// Reject completes the task with err.
func (s *Source[T]) Reject(err error) bool {
	var zero T
	return s.t.resolve(zero, err)
}

// WhenAll completes once every task completed. Its error combines the
// failures in argument order. Nil entries are skipped.
func WhenAll(tasks ...Awaitable) *Task[Void] {
	all := &Task[Void]{}
	all.st.name = "when_all"
	remaining := 1
	finish := func() {
		remaining--
		if remaining > 0 {
			return
		}
		var err error
		for _, t := range tasks {
			if t != nil {
				err = multierr.Append(err, t.state().err)
			}
		}
		all.st.complete(err)
	}
	for _, t := range tasks {
		if t == nil {
			continue
		}
		remaining++
		t.state().onDone(finish)
	}
	finish()
	return all
}

// Collection tracks the outstanding async work of one owner so it can be
// cancelled and drained before the owner is released.
type Collection struct {
	tasks []Awaitable
}

// Add tracks a; completed tasks are ignored.
func (c *Collection) Add(a Awaitable) {
	if a == nil || a.IsReady() {
		return
	}
	c.prune()
	c.tasks = append(c.tasks, a)
}

// Len returns the number of tracked tasks still pending.
func (c *Collection) Len() int {
	c.prune()
	return len(c.tasks)
}

// CancelAll raises the advisory cancellation flag of every pending task.
func (c *Collection) CancelAll() {
	for _, t := range c.tasks {
		if !t.IsReady() {
			t.state().cancelled.Store(true)
		}
	}
}

// Drain suspends until no tracked task is pending, including tasks added
// while waiting. Failures of drained tasks are not reported.
func (c *Collection) Drain(co *Co) {
	for c.Len() > 0 {
		pending := append([]Awaitable(nil), c.tasks...)
		_ = co.Await(WhenAll(pending...))
	}
}

func (c *Collection) prune() {
	kept := c.tasks[:0]
	for _, t := range c.tasks {
		if !t.IsReady() {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(c.tasks); i++ {
		c.tasks[i] = nil
	}
	c.tasks = kept
}
