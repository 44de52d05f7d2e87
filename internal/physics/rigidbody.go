package physics

import (
	"fmt"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
	"github.com/l1jgo/scenecore/internal/scene"
	"go.uber.org/zap"
)

// MotionType controls how the simulation treats a body.
type MotionType uint8

const (
	Dynamic MotionType = iota
	Kinematic
	Static
)

func (m MotionType) String() string {
	switch m {
	case Dynamic:
		return "dynamic"
	case Kinematic:
		return "kinematic"
	case Static:
		return "static"
	}
	return "unknown"
}

func (m *MotionType) UnmarshalText(text []byte) error {
	for _, t := range []MotionType{Dynamic, Kinematic, Static} {
		if t.String() == string(text) {
			*m = t
			return nil
		}
	}
	return fmt.Errorf("physics: unknown motion type %q", text)
}

type actionKind uint8

const (
	actionForce actionKind = iota
	actionImpulse
)

type bodyAction struct {
	kind actionKind
	v    mgl64.Vec3
}

// RigidBody gives its object a body in the world's physics space. Forces and
// impulses are staged and applied on the next sync while the world runs; a
// paused world discards them.
type RigidBody struct {
	scene.BaseComponent

	Mass       float64
	Motion     MotionType
	Shape      Collision
	Friction   float64
	Elasticity float64
	Sensor     bool

	actions *queue.Queue
	body    *cp.Body
}

func NewRigidBody() *RigidBody {
	return &RigidBody{Mass: 1, Friction: 0.5, actions: queue.New(8)}
}

// AddForce stages a force in world units. Safe to call from any goroutine.
func (r *RigidBody) AddForce(f mgl64.Vec3) { r.stage(bodyAction{kind: actionForce, v: f}) }

// AddImpulse stages an impulse in world units. Safe to call from any goroutine.
func (r *RigidBody) AddImpulse(j mgl64.Vec3) { r.stage(bodyAction{kind: actionImpulse, v: j}) }

func (r *RigidBody) stage(a bodyAction) {
	if err := r.actions.Put(a); err != nil {
		r.Logger().Warn("剛體動作已丟棄", zap.Error(err))
	}
}

// PendingActions reports staged actions not yet applied or discarded.
func (r *RigidBody) PendingActions() int { return int(r.actions.Len()) }

// Velocity is the body's linear velocity, zero while it has no body.
func (r *RigidBody) Velocity() mgl64.Vec3 {
	if r.body == nil {
		return mgl64.Vec3{}
	}
	v := r.body.Velocity()
	return mgl64.Vec3{v.X, v.Y, 0}
}

// HasBody reports whether the processor created a body for r.
func (r *RigidBody) HasBody() bool { return r.body != nil }

// applyActions drains staged actions into body; a nil body drops them.
func (r *RigidBody) applyActions(body *cp.Body) {
	n := r.actions.Len()
	if n == 0 {
		return
	}
	items, err := r.actions.Get(n)
	if err != nil {
		return
	}
	if body == nil {
		return
	}
	at := body.Position()
	for _, it := range items {
		a := it.(bodyAction)
		v := cp.Vector{X: a.v[0], Y: a.v[1]}
		switch a.kind {
		case actionForce:
			body.ApplyForceAtWorldPoint(v, at)
		case actionImpulse:
			body.ApplyImpulseAtWorldPoint(v, at)
		}
	}
}

func (r *RigidBody) Dispose() {
	r.body = nil
	r.actions.Dispose()
}
