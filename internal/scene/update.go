package scene

import (
	"time"

	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/event"
	"github.com/l1jgo/scenecore/internal/core/object"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type updateEntry struct {
	c       *BaseComponent
	task    async.Awaitable
	removed bool
}

func (m *Manager) addUpdatable(b *BaseComponent) {
	if _, ok := m.updateIndex[b]; ok {
		return
	}
	e := &updateEntry{c: b}
	m.updateIndex[b] = e
	m.updatables = append(m.updatables, e)
}

// Update runs one tick of the scene thread: posted work, ready coroutines,
// queued deactivations, component updates, then post-update teardown.
func (m *Manager) Update(dt time.Duration) {
	if m.updating {
		m.fatalf("Update reentered")
	}
	start := time.Now()
	m.drainInbox()

	m.updating = true
	m.sched.Poll()
	m.drainDeactivations()

	// Entries appended during the loop start next tick.
	n := len(m.updatables)
	for i := 0; i < n; i++ {
		e := m.updatables[i]
		if e.removed || e.c.state != Active {
			continue
		}
		if w := e.c.World(); w != nil && w.paused {
			continue
		}
		if h := e.c.hooks.update; h != nil {
			m.hook(func() { h.UpdateComponent(dt) })
		}
		h := e.c.hooks.asyncUpdate
		if h == nil || e.removed || e.c.state != Active {
			continue
		}
		if e.task != nil {
			if !e.task.IsReady() {
				continue
			}
			if err := e.task.Err(); err != nil {
				e.c.Logger().Error("元件非同步更新失敗", zap.Error(err))
			}
		}
		m.hook(func() { e.task = h.UpdateComponentAsync(dt) })
		if e.removed {
			// removed by its own update; teardown waits for the task
			e.c.TrackAsync(e.task)
		}
	}
	m.compactUpdatables()
	m.updating = false

	m.drainDeactivations()
	m.flushChanged()
	m.metrics.ObserveTick(time.Since(start))
}

func (m *Manager) compactUpdatables() {
	kept := m.updatables[:0]
	for _, e := range m.updatables {
		if !e.removed {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(m.updatables); i++ {
		m.updatables[i] = nil
	}
	m.updatables = kept
}

// SyncSceneState lets every SceneStateSyncer mirror this tick's state.
func (m *Manager) SyncSceneState() error {
	var err error
	for _, s := range m.syncers {
		var e error
		m.hook(func() { e = s.SyncSceneState() })
		if e != nil {
			m.log.Error("場景狀態同步失敗", zap.String("processor", processorName(s)), zap.Error(e))
			err = multierr.Append(err, e)
		}
	}
	m.drainIfIdle()
	return err
}

// Tick is Update, SyncSceneState and Collect in order.
func (m *Manager) Tick(dt time.Duration) {
	m.Update(dt)
	_ = m.SyncSceneState()
	m.Collect()
}

func (m *Manager) markChanged(s *SceneComponent) {
	if !s.Alive() {
		return
	}
	if _, ok := m.changedSet[s.uid]; ok {
		return
	}
	m.changedSet[s.uid] = struct{}{}
	m.changed = append(m.changed, s.uid)
}

func (m *Manager) flushChanged() {
	if len(m.changed) == 0 {
		return
	}
	event.Emit(m.bus, event.ComponentsChanged{Components: m.changed})
	m.changed = nil
	clear(m.changedSet)
}

// ChangedComponents returns the components marked dirty since the last update.
func (m *Manager) ChangedComponents() []object.Uid {
	return append([]object.Uid(nil), m.changed...)
}
