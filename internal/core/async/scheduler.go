package async

import (
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Scheduler is the cooperative executor of the scene thread.
//
// Coroutines run on pooled goroutines but hand a baton back and forth with the
// goroutine that resumed them, so at most one of them (or the scene thread
// itself) executes at any time. Every method except Task.Cancel must be called
// from the scene thread or from a coroutine it resumed.
type Scheduler struct {
	log  *zap.Logger
	pool *ants.Pool
	now  func() time.Time

	ready     []*coro // resumed within the current Poll
	yielded   []*coro // resumed by the next Poll
	sleeping  []*coro
	suspended map[*coro]struct{}
	current   *coro
	closed    bool
}

type Option func(*Scheduler)

// WithClock replaces time.Now for Sleep deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler whose coroutines borrow goroutines from an
// ants pool of poolSize workers (unlimited when poolSize <= 0). Once the pool
// is exhausted coroutines fall back to plain goroutines.
func NewScheduler(log *zap.Logger, poolSize int, opts ...Option) (*Scheduler, error) {
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("coroutine pool: %w", err)
	}
	s := &Scheduler{
		log:       log,
		pool:      pool,
		now:       time.Now,
		suspended: make(map[*coro]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// InTask reports whether the caller runs inside a coroutine.
func (s *Scheduler) InTask() bool { return s.current != nil }

// Pending returns the number of suspended coroutines.
func (s *Scheduler) Pending() int { return len(s.suspended) }

func (s *Scheduler) Now() time.Time { return s.now() }

// Poll resumes every coroutine that became runnable: yielded ones, expired
// sleepers, and those whose awaited task completed. Chains of completions
// triggered during the poll are followed within the same poll.
func (s *Scheduler) Poll() int {
	if s.current != nil {
		panic("async: Poll called from inside a coroutine")
	}
	if s.closed {
		return 0
	}
	now := s.now()
	kept := s.sleeping[:0]
	for _, c := range s.sleeping {
		if now.Before(c.wakeAt) {
			kept = append(kept, c)
			continue
		}
		s.ready = append(s.ready, c)
	}
	s.sleeping = kept
	s.ready = append(s.ready, s.yielded...)
	s.yielded = s.yielded[:0]

	n := 0
	for len(s.ready) > 0 {
		c := s.ready[0]
		s.ready = s.ready[1:]
		s.resume(c)
		n++
	}
	return n
}

// Close aborts every suspended coroutine. Their tasks complete with ErrAborted.
func (s *Scheduler) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for len(s.suspended) > 0 {
		for c := range s.suspended {
			delete(s.suspended, c)
			s.current = c
			c.resume <- false
			<-c.yield
			s.current = nil
			if !c.finished {
				s.suspended[c] = struct{}{}
			}
			break
		}
	}
	if n := len(s.ready) + len(s.yielded) + len(s.sleeping); n > 0 {
		s.log.Debug("scheduler closed with queued resumptions", zap.Int("count", n))
	}
	s.ready, s.yielded, s.sleeping = nil, nil, nil
	s.pool.Release()
}

func (s *Scheduler) wake(c *coro) {
	s.ready = append(s.ready, c)
}

func (s *Scheduler) start(c *coro, body func()) {
	if err := s.pool.Submit(body); err != nil {
		go body()
	}
	s.resume(c)
}

// resume hands the baton to c and blocks until c suspends or finishes.
func (s *Scheduler) resume(c *coro) {
	prev := s.current
	s.current = c
	delete(s.suspended, c)
	c.resume <- true
	<-c.yield
	s.current = prev
	if !c.finished {
		s.suspended[c] = struct{}{}
		return
	}
	if p := c.panicVal; p != nil {
		c.panicVal = nil
		panic(p)
	}
}
