package scene

import (
	"slices"

	"github.com/l1jgo/scenecore/internal/core/object"
	"go.uber.org/zap"
)

// World groups scenes; collaborators key their state by world Uid.
type World struct {
	mgr    *Manager
	handle object.Handle
	uid    object.Uid
	name   string
	paused bool
	scenes []*Scene
}

func (w *World) Uid() object.Uid { return w.uid }
func (w *World) Name() string    { return w.name }

func (w *World) Ref() object.WeakRef[*World] {
	return object.RefOf(w.mgr.reg, w.handle, w)
}

func (w *World) Alive() bool { return w.mgr.reg.Alive(w.handle) }

// Scenes returns the scenes bound to w, including those still activating.
func (w *World) Scenes() []*Scene { return slices.Clone(w.scenes) }

// SetSimulationPaused stops component updates of w; collaborators read the
// flag during syncSceneState.
func (w *World) SetSimulationPaused(paused bool) {
	if w.paused == paused {
		return
	}
	w.paused = paused
	w.mgr.log.Info("世界模擬狀態變更", zap.String("world", w.name), zap.Bool("paused", paused))
}

func (w *World) IsSimulationPaused() bool { return w.paused }

func (w *World) removeScene(s *Scene) {
	w.scenes = slices.DeleteFunc(w.scenes, func(x *Scene) bool { return x == s })
}
