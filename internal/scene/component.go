package scene

import (
	"reflect"
	"time"

	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/object"
	"go.uber.org/zap"
)

// Component is a behavior unit attached to an Object. Concrete components
// embed BaseComponent (or SceneComponent) and implement any subset of the
// capability interfaces below.
type Component interface {
	object.Destroyable
	Uid() object.Uid
	Object() *Object
	ActivationState() ActivationState
	IsOperable() bool
	base() *BaseComponent
}

// ComponentEvents receives lifecycle notifications. Embed NopEvents to
// implement only some of them.
type ComponentEvents interface {
	OnComponentCreated()
	OnComponentActivated()
	OnComponentDeactivated()
	OnComponentDestroyed()
}

type ComponentUpdate interface {
	UpdateComponent(dt time.Duration)
}

// ComponentAsyncUpdate is restarted each tick once its previous task completed.
type ComponentAsyncUpdate interface {
	UpdateComponentAsync(dt time.Duration) async.Awaitable
}

type ComponentActivation interface {
	ActivateComponent() error
	DeactivateComponent()
}

type ComponentAsyncActivation interface {
	ActivateComponentAsync() async.Awaitable
}

// Disposable releases external resources once the component is destroyed.
type Disposable interface {
	Dispose()
}

// Releasable is told when its storage is given up by the scene.
type Releasable interface {
	OnReleased()
}

type NopEvents struct{}

func (NopEvents) OnComponentCreated()     {}
func (NopEvents) OnComponentActivated()   {}
func (NopEvents) OnComponentDeactivated() {}
func (NopEvents) OnComponentDestroyed()   {}

// Caps is the capability set of a component type, computed at registration.
type Caps uint8

const (
	CapEvents Caps = 1 << iota
	CapUpdate
	CapAsyncUpdate
	CapActivation
	CapAsyncActivation
	CapDisposable
	CapReleasable
)

func (c Caps) Has(o Caps) bool { return c&o == o }

var (
	eventsType          = reflect.TypeFor[ComponentEvents]()
	updateType          = reflect.TypeFor[ComponentUpdate]()
	asyncUpdateType     = reflect.TypeFor[ComponentAsyncUpdate]()
	activationType      = reflect.TypeFor[ComponentActivation]()
	asyncActivationType = reflect.TypeFor[ComponentAsyncActivation]()
	disposableType      = reflect.TypeFor[Disposable]()
	releasableType      = reflect.TypeFor[Releasable]()
)

func capsOf(t reflect.Type) Caps {
	var caps Caps
	for _, c := range []struct {
		iface reflect.Type
		bit   Caps
	}{
		{eventsType, CapEvents},
		{updateType, CapUpdate},
		{asyncUpdateType, CapAsyncUpdate},
		{activationType, CapActivation},
		{asyncActivationType, CapAsyncActivation},
		{disposableType, CapDisposable},
		{releasableType, CapReleasable},
	} {
		if t.Implements(c.iface) {
			caps |= c.bit
		}
	}
	return caps
}

// hooks caches the capability views of one component instance.
type hooks struct {
	events          ComponentEvents
	update          ComponentUpdate
	asyncUpdate     ComponentAsyncUpdate
	activation      ComponentActivation
	asyncActivation ComponentAsyncActivation
	disposable      Disposable
	releasable      Releasable
}

func bindHooks(c Component, caps Caps) hooks {
	var h hooks
	if caps.Has(CapEvents) {
		h.events = c.(ComponentEvents)
	}
	if caps.Has(CapUpdate) {
		h.update = c.(ComponentUpdate)
	}
	if caps.Has(CapAsyncUpdate) {
		h.asyncUpdate = c.(ComponentAsyncUpdate)
	}
	if caps.Has(CapActivation) {
		h.activation = c.(ComponentActivation)
	}
	if caps.Has(CapAsyncActivation) {
		h.asyncActivation = c.(ComponentAsyncActivation)
	}
	if caps.Has(CapDisposable) {
		h.disposable = c.(Disposable)
	}
	if caps.Has(CapReleasable) {
		h.releasable = c.(Releasable)
	}
	return h
}

// BaseComponent carries identity and lifecycle bookkeeping. Embed it by value.
type BaseComponent struct {
	mgr    *Manager
	self   Component
	handle object.Handle
	uid    object.Uid
	owner  *Object
	typ    *componentType
	state  ActivationState
	caps   Caps
	hooks  hooks
	tasks  async.Collection

	// activation completes once processors and hooks are done activating
	// this component; teardown awaits it before deactivating anything.
	activation    async.Awaitable
	hookActivated bool
}

func (c *BaseComponent) base() *BaseComponent { return c }

func (c *BaseComponent) Uid() object.Uid { return c.uid }

// Object returns the owning object; it stays set while teardown is pending.
func (c *BaseComponent) Object() *Object { return c.owner }

func (c *BaseComponent) ActivationState() ActivationState { return c.state }

func (c *BaseComponent) Caps() Caps { return c.caps }

// TypeName is the name the component type was registered under.
func (c *BaseComponent) TypeName() string {
	if c.typ == nil {
		return ""
	}
	return c.typ.name
}

// IsOperable reports whether the component is fully active and still referenced.
func (c *BaseComponent) IsOperable() bool {
	return c.mgr != nil && c.state == Active && c.mgr.reg.Alive(c.handle)
}

// Alive reports whether weak references to the component still resolve.
func (c *BaseComponent) Alive() bool {
	return c.mgr != nil && c.mgr.reg.Alive(c.handle)
}

// Destroy removes the component from its object.
func (c *BaseComponent) Destroy() {
	if c.owner == nil {
		return
	}
	c.owner.RemoveComponent(c.self)
}

func (c *BaseComponent) Manager() *Manager { return c.mgr }

func (c *BaseComponent) Scheduler() *async.Scheduler { return c.mgr.sched }

func (c *BaseComponent) Logger() *zap.Logger {
	return c.mgr.log.With(zap.String("component", c.TypeName()), zap.Stringer("uid", c.uid))
}

// TrackAsync makes teardown wait for a before the component is released.
func (c *BaseComponent) TrackAsync(a async.Awaitable) { c.tasks.Add(a) }

// Go runs fn as a coroutine tracked by the component.
func (c *BaseComponent) Go(name string, fn func(co *async.Co) error) *async.Task[async.Void] {
	t := async.Run(c.mgr.sched, name, fn)
	c.tasks.Add(t)
	return t
}

// PendingTasks returns the number of tracked tasks still running.
func (c *BaseComponent) PendingTasks() int { return c.tasks.Len() }

func (c *BaseComponent) Scene() *Scene {
	if c.owner == nil {
		return nil
	}
	return c.owner.scene
}

// World of the owning scene, nil while the object is not in a scene.
func (c *BaseComponent) World() *World {
	if sc := c.Scene(); sc != nil {
		return sc.world
	}
	return nil
}

// RefTo returns a weak reference to c.
func RefTo[T Component](c T) object.WeakRef[T] {
	b := c.base()
	if b.mgr == nil {
		return object.WeakRef[T]{}
	}
	return object.RefOf(b.mgr.reg, b.handle, c)
}
