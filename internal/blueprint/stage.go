package blueprint

import (
	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/object"
	"github.com/l1jgo/scenecore/internal/scene"
	"go.uber.org/zap"
)

// Stage keeps one scene per blueprint file and swaps it when the file is
// loaded again. Main loop only.
type Stage struct {
	log    *zap.Logger
	mgr    *scene.Manager
	scenes map[string]object.WeakRef[*scene.Scene]
}

func NewStage(log *zap.Logger, mgr *scene.Manager) *Stage {
	return &Stage{log: log, mgr: mgr, scenes: make(map[string]object.WeakRef[*scene.Scene])}
}

// Load builds the blueprint at path and activates it, replacing the scene
// previously loaded from path. On a load or build error the old scene stays.
func (s *Stage) Load(path string) (*async.Task[object.WeakRef[*scene.Scene]], error) {
	bp, err := Load(path)
	if err != nil {
		return nil, err
	}
	sp, err := Build(s.mgr, bp)
	if err != nil {
		return nil, err
	}
	if old, ok := s.scenes[path]; ok {
		s.mgr.DeactivateScene(old)
		s.log.Info("替換藍圖場景", zap.String("file", path), zap.String("scene", bp.Name))
	}
	s.scenes[path] = sp.Ref()
	task := s.mgr.ActivateScene(&sp, s.world(bp.World))
	task.OnDone(func() {
		if err := task.Err(); err != nil {
			s.log.Error("藍圖場景啟用失敗", zap.String("file", path), zap.Error(err))
		}
	})
	return task, nil
}

// Unload deactivates the scene of path, if any.
func (s *Stage) Unload(path string) {
	if ref, ok := s.scenes[path]; ok {
		s.mgr.DeactivateScene(ref)
		delete(s.scenes, path)
	}
}

func (s *Stage) Scene(path string) (*scene.Scene, bool) {
	return s.scenes[path].Get()
}

func (s *Stage) world(name string) *scene.World {
	if name == "" {
		return nil
	}
	for _, w := range s.mgr.Worlds() {
		if w.Name() == name {
			return w
		}
	}
	return s.mgr.CreateWorld(name)
}
