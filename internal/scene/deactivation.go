package scene

import (
	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/event"
	"github.com/l1jgo/scenecore/internal/core/object"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// teardownBatch is queued deactivation work. data is captured before the
// components' references were invalidated.
type teardownBatch struct {
	comps []Component
	data  []DeactivatedComponent
}

// DeactivateScene invalidates the scene and every reference into its tree
// before returning. Component teardown is queued and finishes once in-flight
// async work drained; calling it from a component of the scene is allowed.
func (m *Manager) DeactivateScene(ref object.WeakRef[*Scene]) {
	s, ok := ref.Get()
	if !ok {
		return
	}
	if !s.state.live() {
		m.log.Warn("場景未啟用，略過停用", zap.String("scene", s.name), zap.Stringer("state", s.state))
		return
	}
	span := m.startSpan("scene.deactivate", attribute.String("scene", s.name))
	defer span.End()

	s.state = Destroyed
	var worldID object.Uid
	if s.world != nil {
		worldID = s.world.uid
		s.world.removeScene(s)
	}
	m.reg.Invalidate(s.handle)
	event.Emit(m.bus, event.SceneDeactivated{SceneUid: s.uid, WorldUid: worldID, Name: s.name})
	m.log.Info("停用場景", zap.String("scene", s.name))
	m.teardown(s.root)
}

// teardown destroys an object subtree: references are invalidated now,
// components are deactivated children first.
func (m *Manager) teardown(root *Object) {
	objs := append([]*Object{root}, root.ChildObjects(true)...)

	var comps []Component
	for i := len(objs) - 1; i >= 0; i-- {
		cs := objs[i].components
		for j := len(cs) - 1; j >= 0; j-- {
			comps = append(comps, cs[j])
		}
	}

	objUids := make([]object.Uid, len(objs))
	for i, o := range objs {
		objUids[i] = o.uid
	}
	event.Emit(m.bus, event.ObjectsDeleting{Objects: objUids})

	for _, o := range objs {
		o.state = Destroyed
		m.reg.Invalidate(o.handle)
	}
	m.teardownComponents(comps)
	m.dying = append(m.dying, objs...)
}

// teardownComponents invalidates comps and queues their deactivation.
// Inactive components are released at once.
func (m *Manager) teardownComponents(comps []Component) {
	var tb teardownBatch
	uids := make([]object.Uid, 0, len(comps))
	for _, c := range comps {
		b := c.base()
		if b.state == Deactivating || b.state == Destroyed {
			continue
		}
		uids = append(uids, b.uid)
		prev := b.state
		d := deactivated(c)
		m.reg.Invalidate(b.handle)
		if prev == Inactive {
			m.release(c)
			continue
		}
		b.state = Deactivating
		if prev == Active {
			m.activeCount--
		}
		b.tasks.CancelAll()
		if e := m.updateIndex[b]; e != nil {
			e.removed = true
			delete(m.updateIndex, b)
			if e.task != nil {
				async.Cancel(e.task)
				b.TrackAsync(e.task)
			}
		}
		tb.comps = append(tb.comps, c)
		tb.data = append(tb.data, d)
	}
	if len(uids) > 0 {
		event.Emit(m.bus, event.ComponentsDeleting{Components: uids})
	}
	m.metrics.SetActiveComponents(m.activeCount)
	if len(tb.comps) > 0 {
		m.requestDeactivation(tb)
	}
}

func (m *Manager) requestDeactivation(tb teardownBatch) {
	m.deactivation = append(m.deactivation, tb)
	m.drainIfIdle()
}

// drainIfIdle runs queued deactivations unless user code is on the stack;
// otherwise they wait for the next drain point of Update.
func (m *Manager) drainIfIdle() {
	if !m.updating && !m.sched.InTask() && m.hookDepth == 0 {
		m.drainDeactivations()
	}
}

func (m *Manager) drainDeactivations() {
	for len(m.deactivation) > 0 {
		batches := m.deactivation
		m.deactivation = nil
		for _, tb := range batches {
			t := async.Run(m.sched, "deactivate_components", func(co *async.Co) error {
				return m.runDeactivation(co, tb)
			})
			m.tasks.Add(t)
		}
	}
	m.metrics.SetPendingTeardowns(m.tasks.Len())
}

func (m *Manager) runDeactivation(co *async.Co, tb teardownBatch) error {
	// Processors hear about deactivation only after their activation of the
	// same components completed.
	for _, c := range tb.comps {
		if a := c.base().activation; a != nil {
			_ = co.Await(a)
		}
	}
	for _, c := range tb.comps {
		b := c.base()
		if h := b.hooks.activation; h != nil && b.hookActivated {
			m.hook(h.DeactivateComponent)
		}
	}

	groups := groupDeactivated(tb.data)
	for _, a := range m.activators {
		for _, g := range groups {
			m.hook(func() { a.DeactivateComponents(g.world, g.data) })
		}
	}
	var procTasks []async.Awaitable
	for _, a := range m.asyncActivators {
		for _, g := range groups {
			var t async.Awaitable
			m.hook(func() { t = a.DeactivateComponentsAsync(g.world, g.data) })
			if t != nil {
				procTasks = append(procTasks, t)
			}
		}
	}
	if err := co.Await(async.WhenAll(procTasks...)); err != nil {
		m.log.Error("處理器停用元件失敗", zap.Error(err))
	}

	// In-flight updates and activations are awaited, never aborted.
	for _, c := range tb.comps {
		c.base().tasks.Drain(co)
	}

	for _, c := range tb.comps {
		if ev := c.base().hooks.events; ev != nil {
			m.hook(ev.OnComponentDeactivated)
		}
	}
	for _, c := range tb.comps {
		m.release(c)
	}
	return nil
}

type deactivatedGroup struct {
	world object.Uid
	data  []DeactivatedComponent
}

func groupDeactivated(data []DeactivatedComponent) []deactivatedGroup {
	var out []deactivatedGroup
	index := make(map[object.Uid]int)
	for _, d := range data {
		i, ok := index[d.WorldUid]
		if !ok {
			i = len(out)
			index[d.WorldUid] = i
			out = append(out, deactivatedGroup{world: d.WorldUid})
		}
		out[i].data = append(out[i].data, d)
	}
	return out
}

// release is the final transition; c must already be invalidated.
func (m *Manager) release(c Component) {
	b := c.base()
	b.state = Destroyed
	b.activation = nil
	h := b.hooks
	if h.events != nil {
		m.hook(h.events.OnComponentDestroyed)
	}
	if h.disposable != nil {
		m.hook(h.disposable.Dispose)
	}
	if h.releasable != nil {
		m.hook(h.releasable.OnReleased)
	}
	m.metrics.ComponentDestroyed(b.TypeName())
}

// Collect releases objects whose components all reached Destroyed and
// returns how many were released.
func (m *Manager) Collect() int {
	n := 0
	kept := m.dying[:0]
	for _, o := range m.dying {
		if !objectReleased(o) {
			kept = append(kept, o)
			continue
		}
		o.components = nil
		o.children = nil
		o.parent = nil
		n++
	}
	for i := len(kept); i < len(m.dying); i++ {
		m.dying[i] = nil
	}
	m.dying = kept
	if n > 0 {
		m.log.Debug("釋放已銷毀物件", zap.Int("count", n), zap.Int("pending", len(m.dying)))
	}
	return n
}

func objectReleased(o *Object) bool {
	for _, c := range o.components {
		if c.ActivationState() != Destroyed {
			return false
		}
	}
	return true
}

// DyingObjects is the number of destroyed objects still waiting for teardown.
func (m *Manager) DyingObjects() int { return len(m.dying) }
