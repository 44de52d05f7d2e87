package scene

import (
	"context"
	"testing"
	"time"

	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// probe counts every lifecycle callback it receives.
type probe struct {
	BaseComponent
	blocked bool
	failAct error

	created, activated, deactivated, destroyed int
	activateCalls, deactivateCalls             int
	disposed, released                         int
	activatedAsync                             bool
	operableOnActivated                        bool
}

func (p *probe) OnComponentCreated()     { p.created++ }
func (p *probe) OnComponentDeactivated() { p.deactivated++ }
func (p *probe) OnComponentDestroyed()   { p.destroyed++ }
func (p *probe) Dispose()                { p.disposed++ }
func (p *probe) OnReleased()             { p.released++ }

func (p *probe) OnComponentActivated() {
	p.activated++
	p.operableOnActivated = p.IsOperable()
}

func (p *probe) ActivateComponent() error {
	p.activateCalls++
	return p.failAct
}

func (p *probe) DeactivateComponent() { p.deactivateCalls++ }

func (p *probe) ActivateComponentAsync() async.Awaitable {
	return async.Run(p.Scheduler(), "probe_activation", func(co *async.Co) error {
		for p.blocked && !co.Cancelled() {
			co.Yield()
		}
		p.activatedAsync = true
		return nil
	})
}

// worker runs an async update that can be held open.
type worker struct {
	BaseComponent
	NopEvents
	hold           bool
	selfDeactivate bool
	updates        int
	started        int
	finished       int
	destroyed      int
}

func (w *worker) OnComponentDestroyed() { w.destroyed++ }

func (w *worker) UpdateComponent(time.Duration) { w.updates++ }

func (w *worker) UpdateComponentAsync(time.Duration) async.Awaitable {
	w.started++
	return async.Run(w.Scheduler(), "worker_update", func(co *async.Co) error {
		for w.hold {
			co.Yield()
		}
		if w.selfDeactivate {
			w.Manager().DeactivateScene(w.Scene().Ref())
		}
		w.finished++
		return nil
	})
}

// marker is a component with no capabilities.
type marker struct {
	BaseComponent
	label string
}

// remover destroys victim from its own activation hook.
type remover struct {
	BaseComponent
	victim Component
}

func (r *remover) ActivateComponent() error {
	if r.victim != nil {
		r.victim.Destroy()
	}
	return nil
}

func (r *remover) DeactivateComponent() {}

// spawner runs spawn on its object from its activation hook.
type spawner struct {
	BaseComponent
	spawn func(o *Object)
}

func (s *spawner) ActivateComponent() error {
	if s.spawn != nil {
		s.spawn(s.Object())
	}
	return nil
}

func (s *spawner) DeactivateComponent() {}

// pivot is a custom root component.
type pivot struct {
	SceneComponent
}

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	f := NewFactory()
	require.NoError(t, Register(f, func() *probe { return &probe{} }))
	require.NoError(t, Register(f, func() *worker { return &worker{} }))
	require.NoError(t, Register(f, func() *marker { return &marker{} }))
	require.NoError(t, Register(f, func() *pivot { return &pivot{} }))
	require.NoError(t, Register(f, func() *remover { return &remover{} }))
	require.NoError(t, Register(f, func() *spawner { return &spawner{} }))
	return f
}

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	sched, err := async.NewScheduler(zaptest.NewLogger(t), 0)
	require.NoError(t, err)
	t.Cleanup(sched.Close)
	return NewManager(zaptest.NewLogger(t), sched, newTestFactory(t), opts...)
}

func wait(t *testing.T, m *Manager, a async.Awaitable) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx, a))
}

// activeScene builds a scene, lets build populate its root and activates it.
func activeScene(t *testing.T, m *Manager, build func(root *Object)) *Scene {
	t.Helper()
	sp := m.NewScene("test")
	if build != nil {
		build(sp.Get().Root())
	}
	task := m.ActivateScene(&sp, nil)
	wait(t, m, task)
	ref, err := task.Result()
	require.NoError(t, err)
	s, ok := ref.Get()
	require.True(t, ok)
	return s
}

func attach(parent *Object, m *Manager, name string) *Object {
	p := m.NewObject(name)
	return parent.AttachChild(&p)
}

func tickUntil(t *testing.T, m *Manager, cond func() bool) {
	t.Helper()
	for i := 0; i < 100 && !cond(); i++ {
		m.Tick(time.Millisecond)
	}
	require.True(t, cond(), "condition not reached after 100 ticks")
}

func requireStructural(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a structural panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		assert.ErrorIs(t, err, ErrStructural)
	}()
	fn()
}
