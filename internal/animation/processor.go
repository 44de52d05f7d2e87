// Package animation plays keyframe tracks on scene objects.
package animation

import (
	"time"

	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/object"
	"github.com/l1jgo/scenecore/internal/scene"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type binding struct {
	world object.Uid
	ref   object.WeakRef[*Animator]
}

// Processor binds animators once the processors ahead of it finished with a
// batch, then advances them on every sync using the scheduler clock.
type Processor struct {
	log      *zap.Logger
	mgr      *scene.Manager
	bindings map[object.Uid]binding
	last     time.Time
}

func NewProcessor(log *zap.Logger, mgr *scene.Manager) *Processor {
	return &Processor{
		log:      log,
		mgr:      mgr,
		bindings: make(map[object.Uid]binding),
	}
}

// RegisterComponents adds Animator to f.
func RegisterComponents(f *scene.Factory) error {
	return scene.Register(f, NewAnimator)
}

func (p *Processor) Name() string { return "animation" }

func (p *Processor) ActivateComponentsAsync(world object.Uid, comps []scene.Component, barrier async.Awaitable) async.Awaitable {
	return async.Run(p.mgr.Scheduler(), "animation_activate", func(co *async.Co) error {
		if err := co.Await(barrier); err != nil {
			return err
		}
		var errs error
		for _, c := range comps {
			a, ok := c.(*Animator)
			if !ok {
				continue
			}
			if err := a.Track.Validate(); err != nil {
				p.log.Error("動畫軌道無效", zap.String("object", a.Object().Name()), zap.Error(err))
				errs = multierr.Append(errs, &scene.ComponentError{ComponentUid: a.Uid(), Err: err})
				continue
			}
			a.bound = true
			a.playing = a.Autoplay
			p.bindings[a.Uid()] = binding{world: world, ref: scene.RefTo(a)}
		}
		return errs
	})
}

func (p *Processor) DeactivateComponentsAsync(_ object.Uid, comps []scene.DeactivatedComponent) async.Awaitable {
	for _, d := range comps {
		if _, ok := p.bindings[d.ComponentUid]; !ok {
			continue
		}
		delete(p.bindings, d.ComponentUid)
		if a, ok := d.Component.(*Animator); ok {
			a.bound = false
			a.playing = false
		}
	}
	return async.Done()
}

// SyncSceneState advances running animators by the time since the previous
// sync and writes their translation. Paused worlds hold their animators.
func (p *Processor) SyncSceneState() error {
	now := p.mgr.Scheduler().Now()
	var dt time.Duration
	if !p.last.IsZero() {
		dt = now.Sub(p.last)
	}
	p.last = now

	paused := make(map[object.Uid]bool)
	for uid, b := range p.bindings {
		a, ok := b.ref.Get()
		if !ok {
			delete(p.bindings, uid)
			continue
		}
		hold, seen := paused[b.world]
		if !seen {
			w, err := p.mgr.FindWorld(b.world)
			hold = err != nil || w.IsSimulationPaused()
			paused[b.world] = hold
		}
		if hold {
			continue
		}
		a.advance(dt)
		a.apply()
	}
	return nil
}

// Bound reports how many animators are currently bound.
func (p *Processor) Bound() int { return len(p.bindings) }
