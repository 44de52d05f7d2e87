package scene

import (
	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/event"
	"github.com/l1jgo/scenecore/internal/core/object"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ActivateScene takes ownership of the scene, binds it to world (the default
// world when nil) and activates its whole tree. The task resolves once every
// component finished activating, including subtrees and components attached
// while the scene was activating; its reference is absent if the scene was
// deactivated in the meantime.
func (m *Manager) ActivateScene(p *object.Ptr[*Scene], world *World) *async.Task[object.WeakRef[*Scene]] {
	s := p.Release()
	if s == nil {
		m.fatalf("ActivateScene with an empty scene pointer")
	}
	if world == nil {
		world = m.defaultWorld
	}
	switch {
	case !world.Alive():
		m.fatalf("activate scene %q in destroyed world %q", s.name, world.name)
	case s.state != Inactive:
		m.fatalf("scene %q activated twice (%s)", s.name, s.state)
	}
	s.state = Activating
	s.world = world
	world.scenes = append(world.scenes, s)
	m.log.Info("啟用場景", zap.String("scene", s.name), zap.String("world", world.name))

	span := m.startSpan("scene.activate",
		attribute.String("scene", s.name),
		attribute.String("world", world.name))
	t := async.Go(m.sched, "activate_scene", func(co *async.Co) (object.WeakRef[*Scene], error) {
		err := m.activateObject(co, s.root)
		for len(s.late) > 0 && s.state == Activating {
			a := s.late[0]
			s.late = s.late[1:]
			// Failures were reported where the activation started.
			_ = co.Await(a)
		}
		s.late = nil
		if s.state != Activating {
			return object.WeakRef[*Scene]{}, err
		}
		if err != nil {
			m.log.Error("場景啟用失敗", zap.String("scene", s.name), zap.Error(err))
			return s.Ref(), err
		}
		s.state = Active
		event.Emit(m.bus, event.SceneActivated{SceneUid: s.uid, WorldUid: world.uid, Name: s.name})
		m.log.Info("場景啟用完成", zap.String("scene", s.name))
		return s.Ref(), nil
	})
	t.OnDone(func() {
		if err := t.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	})
	return t
}

func (m *Manager) startActivation(o *Object) *async.Task[async.Void] {
	return async.Run(m.sched, "activate_object", func(co *async.Co) error {
		return m.activateObject(co, o)
	})
}

// joinSceneActivation makes the activation task of o's scene wait for t when
// the scene is still activating.
func (m *Manager) joinSceneActivation(o *Object, t async.Awaitable) {
	if s := o.scene; s != nil && s.state == Activating {
		s.late = append(s.late, t)
	}
}

// activateAdded starts activation of a component added to a live object.
func (m *Manager) activateAdded(c Component) error {
	o := c.Object()
	if o.state != Activating && o.state != Active {
		return nil
	}
	t := async.Run(m.sched, "activate_component", func(co *async.Co) error {
		return m.activateComponents(co, []Component{c})
	})
	if !t.IsReady() {
		m.log.Warn("元件啟用未同步完成，建議使用 AddComponentAsync",
			zap.String("object", o.name), zap.String("component", c.base().TypeName()))
		c.base().TrackAsync(t)
		m.joinSceneActivation(o, t)
		return nil
	}
	return t.Err()
}

// activateObject activates every inactive object and component of the subtree.
func (m *Manager) activateObject(co *async.Co, root *Object) error {
	if sc := root.scene; sc == nil || (sc.state != Activating && sc.state != Active) {
		m.log.Warn("物件不在啟用中的場景內", zap.String("object", root.name))
	}
	var (
		objs  []*Object
		comps []Component
	)
	visit := func(o *Object) bool {
		if o.state == Inactive {
			o.state = Activating
			objs = append(objs, o)
		}
		for _, c := range o.components {
			if c.ActivationState() == Inactive {
				comps = append(comps, c)
			}
		}
		return true
	}
	visit(root)
	root.WalkChildObjects(true, visit)

	err := m.activateComponents(co, comps)

	activated := make(map[object.Uid][]object.Uid)
	for _, o := range objs {
		m.refreshObject(o)
		if o.state == Active {
			w := worldUid(o)
			activated[w] = append(activated[w], o.uid)
		}
	}
	for w, uids := range activated {
		event.Emit(m.bus, event.ObjectsActivated{WorldUid: w, Objects: uids})
	}
	return err
}

// refreshObject promotes an activating object once all its components are active.
func (m *Manager) refreshObject(o *Object) {
	if o == nil || o.state != Activating {
		return
	}
	for _, c := range o.components {
		if c.ActivationState() != Active {
			return
		}
	}
	o.state = Active
}

type worldBatch struct {
	world object.Uid
	comps []Component
}

func groupByWorld(comps []Component) []worldBatch {
	var out []worldBatch
	index := make(map[object.Uid]int)
	for _, c := range comps {
		w := worldUid(c.Object())
		i, ok := index[w]
		if !ok {
			i = len(out)
			index[w] = i
			out = append(out, worldBatch{world: w})
		}
		out[i].comps = append(out[i].comps, c)
	}
	return out
}

func worldUid(o *Object) object.Uid {
	if w := o.World(); w != nil {
		return w.uid
	}
	return object.NullUid
}

// activateComponents runs a batch of inactive components through the
// processors and their own hooks. Components that fail stay Activating.
func (m *Manager) activateComponents(co *async.Co, comps []Component) error {
	batch := make([]Component, 0, len(comps))
	for _, c := range comps {
		b := c.base()
		if b.state != Inactive {
			m.log.Warn("元件不在未啟用狀態，略過啟用",
				zap.String("component", b.TypeName()), zap.Stringer("state", b.state))
			continue
		}
		b.state = Activating
		batch = append(batch, c)
	}
	if len(batch) == 0 {
		return nil
	}
	var err error
	for _, g := range groupByWorld(batch) {
		err = multierr.Append(err, m.activateGroup(co, g.world, g.comps))
	}
	return err
}

func (m *Manager) activateGroup(co *async.Co, world object.Uid, comps []Component) error {
	var errs error
	failed := make(map[Component]struct{})
	for _, a := range m.activators {
		var err error
		m.hook(func() { err = a.ActivateComponents(world, comps) })
		if err != nil {
			m.log.Error("處理器啟用元件失敗", zap.String("processor", processorName(a)), zap.Error(err))
			errs = multierr.Append(errs, err)
			failedSet(err, comps, failed)
		}
	}

	// Each async activator's barrier covers the activators registered before it.
	var procTasks []async.Awaitable
	for _, a := range m.asyncActivators {
		barrier := async.WhenAll(procTasks...)
		var t async.Awaitable
		m.hook(func() { t = a.ActivateComponentsAsync(world, comps, barrier) })
		if t != nil {
			procTasks = append(procTasks, t)
		}
	}
	procDone := async.WhenAll(procTasks...)
	// Teardown of any component of the batch waits for the processors first.
	for _, c := range comps {
		c.base().activation = procDone
	}

	finals := make([]async.Awaitable, 0, len(comps))
	for _, c := range comps {
		if _, bad := failed[c]; bad {
			continue
		}
		b := c.base()
		// A sibling hook may have removed c already.
		if b.state != Activating || !b.Alive() {
			continue
		}
		if h := b.hooks.activation; h != nil {
			var err error
			m.hook(func() { err = h.ActivateComponent() })
			if err != nil {
				errs = multierr.Append(errs, &ComponentError{ComponentUid: b.uid, Err: err})
				failed[c] = struct{}{}
				continue
			}
			b.hookActivated = true
		}
		if b.state != Activating {
			// Removed itself from ActivateComponent.
			continue
		}
		var hookTask async.Awaitable
		if h := b.hooks.asyncActivation; h != nil {
			m.hook(func() { hookTask = h.ActivateComponentAsync() })
			b.TrackAsync(hookTask)
		}
		b.activation = async.Run(m.sched, "finish_activation", func(co *async.Co) error {
			_ = co.Await(procDone)
			if hookTask != nil {
				if err := co.Await(hookTask); err != nil {
					return &ComponentError{ComponentUid: b.uid, Err: err}
				}
			}
			mine := make(map[Component]struct{})
			failedSet(procDone.Err(), []Component{c}, mine)
			if len(mine) == 0 {
				m.finishActivation(c)
			}
			return nil
		})
		finals = append(finals, b.activation)
	}

	if err := co.Await(procDone); err != nil {
		m.log.Error("非同步處理器啟用元件失敗", zap.Error(err))
		errs = multierr.Append(errs, err)
		failedSet(err, comps, failed)
	}
	if err := co.Await(async.WhenAll(finals...)); err != nil {
		errs = multierr.Append(errs, err)
		failedSet(err, comps, failed)
	}

	activated := make([]object.Uid, 0, len(comps))
	for _, c := range comps {
		if c.ActivationState() == Active {
			activated = append(activated, c.Uid())
		} else if _, bad := failed[c]; bad {
			m.metrics.ActivationFailed(c.base().TypeName())
		}
	}
	if len(activated) > 0 {
		event.Emit(m.bus, event.ComponentsActivated{WorldUid: world, Components: activated})
	}
	return errs
}

// finishActivation moves c to Active once all its activation work completed.
func (m *Manager) finishActivation(c Component) {
	b := c.base()
	if b.state != Activating {
		return
	}
	b.state = Active
	m.activeCount++
	if b.caps&(CapUpdate|CapAsyncUpdate) != 0 {
		m.addUpdatable(b)
	}
	if ev := b.hooks.events; ev != nil {
		m.hook(ev.OnComponentActivated)
	}
	m.metrics.ComponentActivated(b.TypeName())
	m.metrics.SetActiveComponents(m.activeCount)
	m.refreshObject(b.owner)
}
