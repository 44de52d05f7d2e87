package scene

import (
	"reflect"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/l1jgo/scenecore/internal/core/xform"
)

// sceneRoot is implemented by every type embedding SceneComponent.
type sceneRoot interface {
	Component
	sceneComponent() *SceneComponent
}

var sceneRootType = reflect.TypeFor[sceneRoot]()

// SceneComponent owns a local transform. The root component of an object is
// always a SceneComponent and defines the object's coordinate frame; other
// SceneComponents on the object are placed relative to it.
type SceneComponent struct {
	BaseComponent
	local      xform.Transform
	world      xform.Transform
	worldDirty bool
	subs       map[uint64]func(*Object)
	nextSub    uint64
	init       bool
}

func (s *SceneComponent) sceneComponent() *SceneComponent { return s }

func (s *SceneComponent) ensureInit() {
	if !s.init {
		s.local = xform.Identity()
		s.worldDirty = true
		s.init = true
	}
}

func (s *SceneComponent) isRoot() bool {
	return s.owner != nil && s.owner.root == s
}

func (s *SceneComponent) Transform() xform.Transform {
	s.ensureInit()
	return s.local
}

func (s *SceneComponent) SetTransform(t xform.Transform) {
	s.ensureInit()
	s.local = t
	s.changed()
}

// WorldTransform is recomputed lazily after the local transform of this
// component or of any ancestor changed.
func (s *SceneComponent) WorldTransform() xform.Transform {
	s.ensureInit()
	if s.owner == nil {
		return s.local
	}
	if !s.isRoot() {
		return s.owner.WorldTransform().Mul(s.local)
	}
	if s.worldDirty {
		parent := xform.Identity()
		if p := s.owner.parent; p != nil {
			parent = p.WorldTransform()
		}
		s.world = parent.Mul(s.local)
		s.worldDirty = false
	}
	return s.world
}

// SetWorldTransform stores the local transform that yields t under the
// current parent frame.
func (s *SceneComponent) SetWorldTransform(t xform.Transform) {
	parent := xform.Identity()
	if s.owner != nil {
		if s.isRoot() {
			if p := s.owner.parent; p != nil {
				parent = p.WorldTransform()
			}
		} else {
			parent = s.owner.WorldTransform()
		}
	}
	s.SetTransform(parent.Inverse().Mul(t))
}

func (s *SceneComponent) Translation() mgl64.Vec3 { return s.Transform().Translation }
func (s *SceneComponent) Rotation() mgl64.Quat    { return s.Transform().Rotation }
func (s *SceneComponent) Scale() mgl64.Vec3       { return s.Transform().Scale }

func (s *SceneComponent) SetTranslation(v mgl64.Vec3) {
	t := s.Transform()
	t.Translation = v
	s.SetTransform(t)
}

func (s *SceneComponent) SetRotation(q mgl64.Quat) {
	t := s.Transform()
	t.Rotation = q
	s.SetTransform(t)
}

func (s *SceneComponent) SetScale(v mgl64.Vec3) {
	t := s.Transform()
	t.Scale = v
	s.SetTransform(t)
}

// Subscription cancels a change subscription.
type Subscription struct {
	cancel func()
}

func (s Subscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}

// SubscribeOnChanges calls fn with the owning object whenever this component's
// world transform may have changed.
func (s *SceneComponent) SubscribeOnChanges(fn func(*Object)) Subscription {
	if s.subs == nil {
		s.subs = make(map[uint64]func(*Object))
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return Subscription{cancel: func() { delete(s.subs, id) }}
}

func (s *SceneComponent) changed() {
	if s.owner == nil {
		return
	}
	if s.isRoot() {
		s.owner.transformChanged()
		return
	}
	s.notify()
}

func (s *SceneComponent) notify() {
	if s.mgr != nil {
		s.mgr.markChanged(s)
	}
	for _, fn := range s.subs {
		fn(s.owner)
	}
}
