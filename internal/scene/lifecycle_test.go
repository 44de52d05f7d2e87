package scene

import (
	"errors"
	"testing"
	"time"

	"github.com/l1jgo/scenecore/internal/core/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockedActivation(t *testing.T) {
	m := newManager(t)
	sp := m.NewScene("blocked")
	sceneRef := sp.Ref()

	childPtr := m.NewObject("child")
	p, err := AddComponent(childPtr.Get(), func(p *probe) { p.blocked = true })
	require.NoError(t, err)
	child := sp.Get().Root().AttachChild(&childPtr)
	assert.True(t, childPtr.IsNil(), "ownership moved to the parent")

	task := m.ActivateScene(&sp, nil)
	for i := 0; i < 5; i++ {
		m.Tick(time.Millisecond)
	}

	require.False(t, task.IsReady())
	scene, ok := sceneRef.Get()
	require.True(t, ok)
	assert.False(t, scene.IsActive())
	assert.Empty(t, m.ActiveScenes(nil))
	assert.Equal(t, Activating, child.ActivationState())
	assert.Equal(t, Activating, p.ActivationState())
	assert.False(t, p.IsOperable())
	assert.Equal(t, 1, p.activateCalls)
	assert.Equal(t, 0, p.activated)

	p.blocked = false
	wait(t, m, task)

	ref, err := task.Result()
	require.NoError(t, err)
	got, ok := ref.Get()
	require.True(t, ok)
	assert.Same(t, scene, got)
	assert.True(t, scene.IsActive())
	assert.Equal(t, Active, child.ActivationState())
	assert.Equal(t, Active, p.ActivationState())
	assert.True(t, p.activatedAsync)
	assert.True(t, p.IsOperable())
	assert.Equal(t, 1, p.activated)
	assert.Equal(t, []*Scene{scene}, m.ActiveScenes(nil))
}

func TestActivatedHookObservesOperable(t *testing.T) {
	m := newManager(t)
	var c *probe
	activeScene(t, m, func(root *Object) {
		var err error
		c, err = AddComponent[*probe](root, nil)
		require.NoError(t, err)
	})
	assert.True(t, c.operableOnActivated)
	assert.True(t, c.activatedAsync)
	assert.Equal(t, 1, c.activated)
	assert.Equal(t, 1, c.created)
}

func TestDisposableComponentRemoval(t *testing.T) {
	m := newManager(t)
	var obj *Object
	var c *probe
	activeScene(t, m, func(root *Object) {
		obj = attach(root, m, "holder")
		var err error
		c, err = AddComponent[*probe](obj, nil)
		require.NoError(t, err)
	})
	require.Equal(t, Active, c.ActivationState())
	ref := RefTo(c)
	require.True(t, ref.Valid())
	before := len(obj.DirectComponents())

	obj.RemoveComponent(c)
	_, ok := ref.Get()
	assert.False(t, ok, "reference is absent as soon as removal returns")
	assert.Len(t, obj.DirectComponents(), before-1)

	m.Tick(time.Millisecond)
	assert.Equal(t, Destroyed, c.ActivationState())
	assert.Equal(t, 1, c.deactivateCalls)
	assert.Equal(t, 1, c.deactivated)
	assert.Equal(t, 1, c.destroyed)
	assert.Equal(t, 1, c.disposed)
	assert.Equal(t, 1, c.released)

	for i := 0; i < 3; i++ {
		m.Tick(time.Millisecond)
	}
	assert.Equal(t, 1, c.disposed)
	assert.Equal(t, 1, c.released)

	requireStructural(t, func() { obj.RemoveComponent(c) })
}

func TestRemovalAccounting(t *testing.T) {
	m := newManager(t)
	var obj *Object
	var probes []*probe
	activeScene(t, m, func(root *Object) {
		obj = attach(root, m, "many")
		for i := 0; i < 5; i++ {
			p, err := AddComponent[*probe](obj, nil)
			require.NoError(t, err)
			probes = append(probes, p)
		}
	})
	require.Len(t, obj.DirectComponents(), 6)

	for _, p := range probes[:3] {
		ref, err := object.Cast[Component](RefTo(p))
		require.NoError(t, err)
		obj.RemoveComponentRef(ref)
	}
	obj.RemoveComponentRef(object.WeakRef[Component]{})
	assert.Len(t, obj.DirectComponents(), 3)

	m.Tick(time.Millisecond)
	for i, p := range probes {
		if i < 3 {
			assert.Equal(t, Destroyed, p.ActivationState())
			assert.Equal(t, 1, p.deactivated)
			assert.Equal(t, 1, p.destroyed)
			assert.Equal(t, 1, p.disposed)
			continue
		}
		assert.Equal(t, Active, p.ActivationState())
		assert.Zero(t, p.destroyed)
	}
	assert.Equal(t, 4, m.ActiveComponentCount(), "two scene components and two probes remain")
}

func TestInactiveComponentReleasedImmediately(t *testing.T) {
	m := newManager(t)
	objPtr := m.NewObject("loose")
	c, err := AddComponent[*probe](objPtr.Get(), nil)
	require.NoError(t, err)
	assert.Equal(t, Inactive, c.ActivationState())

	objPtr.Get().RemoveComponent(c)
	assert.Equal(t, Destroyed, c.ActivationState())
	assert.Zero(t, c.deactivateCalls, "never activated")
	assert.Equal(t, 1, c.destroyed)
	assert.Equal(t, 1, c.disposed)

	obj := objPtr.Get()
	objPtr.Reset()
	assert.False(t, obj.Alive())
}

func TestNoPrematureDestruction(t *testing.T) {
	m := newManager(t)
	var obj *Object
	var w *worker
	activeScene(t, m, func(root *Object) {
		obj = attach(root, m, "busy")
		var err error
		w, err = AddComponent(obj, func(w *worker) { w.hold = true })
		require.NoError(t, err)
	})

	m.Tick(time.Millisecond)
	m.Tick(time.Millisecond)
	assert.Equal(t, 1, w.started, "async update is not restarted while pending")
	assert.Equal(t, 2, w.updates)

	objRef := obj.Ref()
	obj.Parent().RemoveChild(objRef)
	assert.False(t, objRef.Valid())
	assert.False(t, w.Alive())

	for i := 0; i < 5; i++ {
		m.Tick(time.Millisecond)
	}
	assert.Equal(t, Deactivating, w.ActivationState())
	assert.Zero(t, w.destroyed)
	assert.Equal(t, 1, m.DyingObjects())
	assert.Equal(t, 2, w.updates, "deactivating components are not updated")

	w.hold = false
	tickUntil(t, m, func() bool { return w.ActivationState() == Destroyed })
	assert.Equal(t, 1, w.finished)
	assert.Equal(t, 1, w.destroyed)
	assert.Zero(t, m.DyingObjects())
}

func TestSelfDeactivationFromAsyncUpdate(t *testing.T) {
	m := newManager(t)
	var w *worker
	s := activeScene(t, m, func(root *Object) {
		var err error
		w, err = AddComponent(attach(root, m, "suicidal"), func(w *worker) { w.selfDeactivate = true })
		require.NoError(t, err)
	})
	ref := s.Ref()

	require.NotPanics(t, func() { m.Tick(time.Millisecond) })
	assert.False(t, ref.Valid())
	assert.Equal(t, 1, w.finished)
	tickUntil(t, m, func() bool { return w.ActivationState() == Destroyed })
	assert.Equal(t, 1, w.destroyed)
	assert.Zero(t, m.ActiveComponentCount())
	assert.Empty(t, m.DefaultWorld().Scenes())
}

func TestAddComponentToActiveObject(t *testing.T) {
	m := newManager(t)
	var obj *Object
	activeScene(t, m, func(root *Object) { obj = attach(root, m, "host") })

	c, err := AddComponent[*probe](obj, nil)
	require.NoError(t, err)
	assert.Equal(t, Active, c.ActivationState(), "activation completes inline when nothing suspends")

	blocked, err := AddComponent(obj, func(p *probe) { p.blocked = true })
	require.NoError(t, err)
	assert.Equal(t, Activating, blocked.ActivationState())
	assert.Positive(t, blocked.PendingTasks())

	blocked.blocked = false
	tickUntil(t, m, func() bool { return blocked.ActivationState() == Active })
	assert.Equal(t, 1, blocked.activated)
}

func TestAddComponentAsync(t *testing.T) {
	m := newManager(t)
	var obj *Object
	activeScene(t, m, func(root *Object) { obj = attach(root, m, "host") })

	task := AddComponentAsync(obj, func(p *probe) { p.blocked = true })
	m.Tick(time.Millisecond)
	require.False(t, task.IsReady())

	c, ok := FindComponent[*probe](obj, false)
	require.True(t, ok)
	c.blocked = false
	wait(t, m, task)

	ref, err := task.Result()
	require.NoError(t, err)
	got, ok := ref.Get()
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.True(t, got.activatedAsync)
	assert.Equal(t, Active, got.ActivationState())
}

func TestFailedActivationStaysActivating(t *testing.T) {
	m := newManager(t)
	boom := errors.New("refused")
	var good, bad *probe
	sp := m.NewScene("partial")
	root := sp.Get().Root()
	var err error
	good, err = AddComponent[*probe](root, nil)
	require.NoError(t, err)
	bad, err = AddComponent(root, func(p *probe) { p.failAct = boom })
	require.NoError(t, err)

	task := m.ActivateScene(&sp, nil)
	require.True(t, task.IsReady())
	err = task.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var ce *ComponentError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, bad.Uid(), ce.ComponentUid)

	assert.Equal(t, Active, good.ActivationState())
	assert.Equal(t, Activating, bad.ActivationState())
	assert.Equal(t, Activating, root.ActivationState())
	assert.False(t, bad.IsOperable())
	assert.Zero(t, bad.activated)
}

func TestShutdownDrainsEverything(t *testing.T) {
	m := newManager(t)
	var w *worker
	activeScene(t, m, func(root *Object) {
		var err error
		w, err = AddComponent(attach(root, m, "busy"), func(w *worker) { w.hold = true })
		require.NoError(t, err)
	})
	m.Tick(time.Millisecond)

	task := m.Shutdown()
	m.Tick(time.Millisecond)
	assert.False(t, task.IsReady())
	w.hold = false
	wait(t, m, task)

	assert.Equal(t, Destroyed, w.ActivationState())
	assert.Zero(t, m.ActiveComponentCount())
	assert.Zero(t, m.PendingTeardowns())
	assert.Len(t, m.Worlds(), 1)
}

func TestPostRunsOnNextUpdate(t *testing.T) {
	m := newManager(t)
	ran := false
	posted := make(chan error)
	go func() { posted <- m.Post(func() { ran = true }) }()
	require.NoError(t, <-posted)
	assert.False(t, ran)

	m.Update(time.Millisecond)
	assert.True(t, ran)
}

func TestSiblingRemovedDuringActivationGetsNoHooks(t *testing.T) {
	m := newManager(t)
	var r *remover
	var victim *probe
	s := activeScene(t, m, func(root *Object) {
		obj := attach(root, m, "pair")
		var err error
		r, err = AddComponent[*remover](obj, nil)
		require.NoError(t, err)
		victim, err = AddComponent[*probe](obj, nil)
		require.NoError(t, err)
		r.victim = victim
	})

	assert.Equal(t, Active, r.ActivationState())
	assert.False(t, victim.Alive())
	assert.Zero(t, victim.activateCalls)
	assert.False(t, victim.activatedAsync)
	assert.Zero(t, victim.activated)

	tickUntil(t, m, func() bool { return victim.ActivationState() == Destroyed })
	assert.Zero(t, victim.deactivateCalls, "deactivation pairs with a completed activation hook")
	assert.Equal(t, 1, victim.destroyed)
	assert.Equal(t, 1, victim.disposed)
	assert.Equal(t, Active, s.ActivationState())
}

func TestSceneActivationWaitsForChildAttachedMeanwhile(t *testing.T) {
	m := newManager(t)
	sp := m.NewScene("late")
	var kid *probe
	_, err := AddComponent(sp.Get().Root(), func(s *spawner) {
		s.spawn = func(o *Object) {
			cp := m.NewObject("kid")
			kid, _ = AddComponent(cp.Get(), func(p *probe) { p.blocked = true })
			o.AttachChild(&cp)
		}
	})
	require.NoError(t, err)

	task := m.ActivateScene(&sp, nil)
	for i := 0; i < 5; i++ {
		m.Tick(time.Millisecond)
	}
	require.NotNil(t, kid)
	assert.Equal(t, Activating, kid.ActivationState())
	assert.False(t, task.IsReady(), "scene waits for the attached subtree")

	kid.blocked = false
	wait(t, m, task)
	ref, err := task.Result()
	require.NoError(t, err)
	s, ok := ref.Get()
	require.True(t, ok)
	assert.Equal(t, Active, s.ActivationState())
	assert.Equal(t, Active, kid.ActivationState())
	assert.True(t, kid.activatedAsync)
}
