package scene

import (
	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/object"
)

// Scene owns a tree rooted at one Object and belongs to at most one World.
type Scene struct {
	mgr    *Manager
	handle object.Handle
	uid    object.Uid
	name   string
	root   *Object
	world  *World
	state  ActivationState

	// activations started while the scene itself was activating
	late []async.Awaitable
}

func (s *Scene) Uid() object.Uid                  { return s.uid }
func (s *Scene) Name() string                     { return s.name }
func (s *Scene) Root() *Object                    { return s.root }
func (s *Scene) World() *World                    { return s.world }
func (s *Scene) ActivationState() ActivationState { return s.state }

// IsActive reports whether the whole tree finished activating.
func (s *Scene) IsActive() bool { return s.state == Active }

func (s *Scene) Alive() bool { return s.mgr.reg.Alive(s.handle) }

func (s *Scene) Ref() object.WeakRef[*Scene] {
	return object.RefOf(s.mgr.reg, s.handle, s)
}

// Destroy deactivates an active scene, or tears down an inactive one.
func (s *Scene) Destroy() {
	if s.state == Activating || s.state == Active {
		s.mgr.DeactivateScene(s.Ref())
		return
	}
	if !s.Alive() {
		return
	}
	s.state = Destroyed
	s.mgr.reg.Invalidate(s.handle)
	s.mgr.teardown(s.root)
}
