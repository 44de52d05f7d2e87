package system

import (
	"time"

	coresys "github.com/l1jgo/scenecore/internal/core/system"
	"github.com/l1jgo/scenecore/internal/scene"
	"go.uber.org/zap"
)

// CleanupSystem releases objects whose components finished tearing down.
// Phase 5 (Cleanup).
type CleanupSystem struct {
	mgr *scene.Manager
	log *zap.Logger
}

func NewCleanupSystem(mgr *scene.Manager, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{mgr: mgr, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if n := s.mgr.Collect(); n > 0 {
		s.log.Debug("已釋放物件", zap.Int("count", n), zap.Int("dying", s.mgr.DyingObjects()))
	}
}
