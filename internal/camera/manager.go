package camera

import (
	"cmp"
	"slices"
	"sync"

	"github.com/l1jgo/scenecore/internal/core/object"
	"github.com/l1jgo/scenecore/internal/scene"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
)

// Manager collects cameras as the scene activates them. Cameras and
// SyncCameras belong to the main loop; CreateDetachedCamera may be called from
// any goroutine.
type Manager struct {
	log      *zap.Logger
	mgr      *scene.Manager
	detached cmap.ConcurrentMap[string, *Detached]

	mu     sync.Mutex
	scenes []object.WeakRef[*Camera]
}

func NewManager(log *zap.Logger, mgr *scene.Manager) *Manager {
	return &Manager{
		log:      log,
		mgr:      mgr,
		detached: cmap.New[*Detached](),
	}
}

// RegisterComponents adds Camera to f.
func RegisterComponents(f *scene.Factory) error {
	return scene.Register(f, NewCamera)
}

func (m *Manager) Name() string { return "camera" }

func (m *Manager) ActivateComponents(_ object.Uid, comps []scene.Component) error {
	for _, c := range comps {
		cam, ok := c.(*Camera)
		if !ok {
			continue
		}
		m.mu.Lock()
		m.scenes = append(m.scenes, scene.RefTo(cam))
		m.mu.Unlock()
		m.log.Debug("場景攝影機已加入", zap.String("object", cam.Object().Name()), zap.Stringer("camera", cam.Uid()))
	}
	return nil
}

// DeactivateComponents has nothing to do: dead references are dropped lazily.
func (m *Manager) DeactivateComponents(object.Uid, []scene.DeactivatedComponent) {}

// CreateDetachedCamera registers a camera of world; NullUid means the default world.
func (m *Manager) CreateDetachedCamera(world object.Uid) *Detached {
	if world.IsNull() {
		world = m.mgr.DefaultWorld().Uid()
	}
	d := newDetached(world)
	m.detached.Set(d.uid.String(), d)
	return d
}

func (m *Manager) detachedCameras() []*Detached {
	items := m.detached.Items()
	out := make([]*Detached, 0, len(items))
	for key, d := range items {
		if _, ok := d.snapshot(); !ok {
			m.detached.Remove(key)
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *Detached) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

func (m *Manager) sceneCameras() []object.WeakRef[*Camera] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes = slices.DeleteFunc(m.scenes, func(r object.WeakRef[*Camera]) bool { return !r.Valid() })
	return slices.Clone(m.scenes)
}

// Cameras snapshots every live camera, detached ones first.
func (m *Manager) Cameras() []*View {
	var views []*View
	for _, d := range m.detachedCameras() {
		v := &View{detached: d}
		if v.sync() {
			views = append(views, v)
		}
	}
	for _, r := range m.sceneCameras() {
		v := &View{scene: r}
		if v.sync() {
			views = append(views, v)
		}
	}
	return views
}

// SyncCameras refreshes views in place, drops those whose camera is gone and
// appends cameras not yet present. The callbacks observe each change.
func (m *Manager) SyncCameras(views []*View, onAdded, onRemoved func(*View)) []*View {
	views = slices.DeleteFunc(views, func(v *View) bool {
		if v.sync() {
			return false
		}
		if onRemoved != nil {
			onRemoved(v)
		}
		return true
	})
	known := make(map[object.Uid]struct{}, len(views))
	for _, v := range views {
		known[v.Uid()] = struct{}{}
	}
	add := func(v *View) {
		if _, ok := known[v.Uid()]; ok {
			return
		}
		known[v.Uid()] = struct{}{}
		views = append(views, v)
		if onAdded != nil {
			onAdded(v)
		}
	}
	for _, d := range m.detachedCameras() {
		if v := (&View{detached: d}); v.sync() {
			add(v)
		}
	}
	for _, r := range m.sceneCameras() {
		if v := (&View{scene: r}); v.sync() {
			add(v)
		}
	}
	return views
}

// Count reports registered cameras, including ones not yet pruned.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detached.Count() + len(m.scenes)
}
