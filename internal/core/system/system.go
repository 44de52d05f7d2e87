package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: deliver last tick's events, drain cross-thread posts
	PhaseUpdate                  // 1: resume tasks, component updates, queued deactivations
	PhasePostUpdate              // 2: collaborator simulation steps (physics)
	PhaseSync                    // 3: syncSceneState of every collaborator
	PhasePersist                 // 4: journal flush
	PhaseCleanup                 // 5: release objects whose teardown finished
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post_update"
	case PhaseSync:
		return "sync"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
