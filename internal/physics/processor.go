// Package physics binds RigidBody components to one chipmunk space per world.
package physics

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/object"
	"github.com/l1jgo/scenecore/internal/core/xform"
	"github.com/l1jgo/scenecore/internal/scene"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config holds the space parameters applied to every world.
type Config struct {
	Gravity    float64 // along +Y, negative pulls down
	Iterations int
}

func DefaultConfig() Config {
	return Config{Gravity: -9.81, Iterations: 20}
}

type bodyEntry struct {
	uid   object.Uid
	ref   object.WeakRef[*RigidBody]
	body  *cp.Body
	shape *cp.Shape
}

type worldState struct {
	uid    object.Uid
	space  *cp.Space
	paused bool
	bodies []*bodyEntry
}

// Processor is the physics collaborator of the scene manager.
type Processor struct {
	log    *zap.Logger
	mgr    *scene.Manager
	cfg    Config
	shapes ShapeFactory
	worlds map[object.Uid]*worldState
}

type Option func(*Processor)

// WithShapeFactory replaces BasicShapes. A nil factory makes PreInit fail.
func WithShapeFactory(f ShapeFactory) Option {
	return func(p *Processor) { p.shapes = f }
}

func NewProcessor(log *zap.Logger, mgr *scene.Manager, cfg Config, opts ...Option) *Processor {
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultConfig().Iterations
	}
	p := &Processor{
		log:    log,
		mgr:    mgr,
		cfg:    cfg,
		shapes: BasicShapes{},
		worlds: make(map[object.Uid]*worldState),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// RegisterComponents adds RigidBody to f.
func RegisterComponents(f *scene.Factory) error {
	return scene.Register(f, NewRigidBody)
}

func (p *Processor) Name() string { return "physics" }

func (p *Processor) PreInit(context.Context) error {
	if p.shapes == nil {
		return ErrNoShapeFactory
	}
	return nil
}

func (p *Processor) world(uid object.Uid) *worldState {
	if ws, ok := p.worlds[uid]; ok {
		return ws
	}
	space := cp.NewSpace()
	space.Iterations = uint(p.cfg.Iterations)
	space.SetGravity(cp.Vector{X: 0, Y: p.cfg.Gravity})
	ws := &worldState{uid: uid, space: space}
	if w, err := p.mgr.FindWorld(uid); err == nil {
		ws.paused = w.IsSimulationPaused()
	}
	p.worlds[uid] = ws
	return ws
}

// ActivateComponentsAsync creates a body for every RigidBody of the batch.
// A body that cannot be built fails only its own component.
func (p *Processor) ActivateComponentsAsync(world object.Uid, comps []scene.Component, _ async.Awaitable) async.Awaitable {
	return async.Run(p.mgr.Scheduler(), "physics_activate", func(co *async.Co) error {
		var errs error
		for _, c := range comps {
			rb, ok := c.(*RigidBody)
			if !ok {
				continue
			}
			ws := p.world(world)
			e, err := p.createBody(ws, rb)
			if err != nil {
				p.log.Error("建立剛體失敗",
					zap.String("object", rb.Object().Name()),
					zap.Stringer("component", rb.Uid()),
					zap.Error(err))
				errs = multierr.Append(errs, &scene.ComponentError{ComponentUid: rb.Uid(), Err: err})
				continue
			}
			ws.bodies = append(ws.bodies, e)
		}
		return errs
	})
}

func (p *Processor) createBody(ws *worldState, rb *RigidBody) (*bodyEntry, error) {
	if p.shapes == nil {
		return nil, ErrNoShapeFactory
	}
	wt := rb.Object().WorldTransform()
	shape := rb.Shape.scaled(wt.Scale)

	var body *cp.Body
	switch rb.Motion {
	case Static:
		body = cp.NewStaticBody()
	case Kinematic:
		body = cp.NewKinematicBody()
	default:
		mass := rb.Mass
		if mass <= 0 {
			return nil, fmt.Errorf("%w: mass %g", ErrInvalidShape, mass)
		}
		moment, err := p.shapes.Moment(shape, mass)
		if err != nil {
			return nil, err
		}
		body = cp.NewBody(mass, moment)
	}
	s, err := p.shapes.NewShape(body, shape)
	if err != nil {
		return nil, err
	}
	s.SetFriction(rb.Friction)
	s.SetElasticity(rb.Elasticity)
	s.SetSensor(rb.Sensor)

	body.SetPosition(cp.Vector{X: wt.Translation[0], Y: wt.Translation[1]})
	body.SetAngle(xform.AngleZ(wt.Rotation))
	ws.space.AddBody(body)
	ws.space.AddShape(s)
	rb.body = body
	return &bodyEntry{uid: rb.Uid(), ref: scene.RefTo(rb), body: body, shape: s}, nil
}

func (p *Processor) DeactivateComponentsAsync(world object.Uid, comps []scene.DeactivatedComponent) async.Awaitable {
	ws, ok := p.worlds[world]
	if !ok {
		return async.Done()
	}
	gone := make(map[object.Uid]struct{}, len(comps))
	for _, d := range comps {
		gone[d.ComponentUid] = struct{}{}
	}
	kept := ws.bodies[:0]
	for _, e := range ws.bodies {
		if _, ok := gone[e.uid]; ok {
			p.removeBody(ws, e)
			if rb, ok := findRigidBody(comps, e.uid); ok {
				rb.body = nil
			}
			continue
		}
		kept = append(kept, e)
	}
	clear(ws.bodies[len(kept):])
	ws.bodies = kept
	return async.Done()
}

func findRigidBody(comps []scene.DeactivatedComponent, uid object.Uid) (*RigidBody, bool) {
	for _, d := range comps {
		if d.ComponentUid == uid {
			rb, ok := d.Component.(*RigidBody)
			return rb, ok
		}
	}
	return nil, false
}

func (p *Processor) removeBody(ws *worldState, e *bodyEntry) {
	ws.space.RemoveShape(e.shape)
	ws.space.RemoveBody(e.body)
}

// Step advances every running world by dt.
func (p *Processor) Step(dt time.Duration) {
	for _, ws := range p.worlds {
		if ws.paused {
			continue
		}
		ws.space.Step(dt.Seconds())
	}
}

// SyncSceneState exchanges transforms between bodies and objects. Worlds that
// are gone drop their space.
func (p *Processor) SyncSceneState() error {
	for uid, ws := range p.worlds {
		w, err := p.mgr.FindWorld(uid)
		if err != nil {
			delete(p.worlds, uid)
			continue
		}
		if paused := w.IsSimulationPaused(); paused != ws.paused {
			ws.paused = paused
			if paused {
				p.log.Warn("物理模擬已停用，物件位置同步至剛體", zap.String("world", w.Name()))
			} else {
				p.log.Warn("物理模擬已啟用，剛體位置同步至物件", zap.String("world", w.Name()))
			}
		}
		p.syncWorld(ws)
	}
	return nil
}

func (p *Processor) syncWorld(ws *worldState) {
	kept := ws.bodies[:0]
	for _, e := range ws.bodies {
		rb, ok := e.ref.Get()
		if !ok {
			p.removeBody(ws, e)
			continue
		}
		kept = append(kept, e)
		if !rb.IsOperable() {
			// Still activating, or failed in another processor.
			continue
		}
		obj := rb.Object()
		if ws.paused {
			wt := obj.WorldTransform()
			e.body.SetPosition(cp.Vector{X: wt.Translation[0], Y: wt.Translation[1]})
			e.body.SetAngle(xform.AngleZ(wt.Rotation))
			rb.applyActions(nil)
			continue
		}
		if rb.Motion != Static {
			wt := obj.WorldTransform()
			pos := e.body.Position()
			wt.Translation = mgl64.Vec3{pos.X, pos.Y, wt.Translation[2]}
			wt.Rotation = xform.RotationZ(e.body.Angle())
			obj.SetWorldTransform(wt)
		}
		rb.applyActions(e.body)
	}
	clear(ws.bodies[len(kept):])
	ws.bodies = kept
}

// Bodies reports the number of bodies living in the space of world.
func (p *Processor) Bodies(world object.Uid) int {
	if ws, ok := p.worlds[world]; ok {
		return len(ws.bodies)
	}
	return 0
}

// Space exposes the chipmunk space of world, nil if it has none.
func (p *Processor) Space(world object.Uid) *cp.Space {
	if ws, ok := p.worlds[world]; ok {
		return ws.space
	}
	return nil
}
