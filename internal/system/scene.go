package system

import (
	"time"

	"github.com/l1jgo/scenecore/internal/core/event"
	coresys "github.com/l1jgo/scenecore/internal/core/system"
	"github.com/l1jgo/scenecore/internal/scene"
	"go.uber.org/zap"
)

// EventDispatchSystem delivers the scene events emitted during the previous
// tick. Phase 0 (Input).
type EventDispatchSystem struct {
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *EventDispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// SceneUpdateSystem drains posted work, resumes coroutines and updates
// components. Phase 1 (Update).
type SceneUpdateSystem struct {
	mgr *scene.Manager
}

func NewSceneUpdateSystem(mgr *scene.Manager) *SceneUpdateSystem {
	return &SceneUpdateSystem{mgr: mgr}
}

func (s *SceneUpdateSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *SceneUpdateSystem) Update(dt time.Duration) {
	s.mgr.Update(dt)
}

// Stepper is a collaborator simulation advanced once per tick.
type Stepper interface {
	Step(dt time.Duration)
}

// SimulationSystem steps collaborator simulations such as physics.
// Phase 2 (PostUpdate).
type SimulationSystem struct {
	steppers []Stepper
}

func NewSimulationSystem(steppers ...Stepper) *SimulationSystem {
	return &SimulationSystem{steppers: steppers}
}

func (s *SimulationSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *SimulationSystem) Update(dt time.Duration) {
	for _, st := range s.steppers {
		st.Step(dt)
	}
}

// SceneSyncSystem lets every collaborator reconcile with the scene.
// Phase 3 (Sync).
type SceneSyncSystem struct {
	mgr *scene.Manager
	log *zap.Logger
}

func NewSceneSyncSystem(mgr *scene.Manager, log *zap.Logger) *SceneSyncSystem {
	return &SceneSyncSystem{mgr: mgr, log: log}
}

func (s *SceneSyncSystem) Phase() coresys.Phase { return coresys.PhaseSync }

func (s *SceneSyncSystem) Update(_ time.Duration) {
	if err := s.mgr.SyncSceneState(); err != nil {
		s.log.Error("場景同步失敗", zap.Error(err))
	}
}
