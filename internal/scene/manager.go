package scene

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/event"
	"github.com/l1jgo/scenecore/internal/core/object"
	"github.com/l1jgo/scenecore/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultWorldName names the implicit world created with every Manager.
const DefaultWorldName = "game_main"

// Manager is the scene manager and activation driver. All methods except
// Post must be called from the scene thread (or a coroutine it resumed).
type Manager struct {
	log     *zap.Logger
	reg     *object.Registry
	factory *Factory
	sched   *async.Scheduler
	bus     *event.Bus
	metrics *metrics.Lifecycle
	tracer  trace.Tracer

	defaultWorld *World
	worlds       []*World

	activators      []ComponentsActivator
	asyncActivators []ComponentsAsyncActivator
	syncers         []SceneStateSyncer
	preIniters      []PreInitializer

	updatables   []*updateEntry
	updateIndex  map[*BaseComponent]*updateEntry
	activeCount  int
	updating     bool
	hookDepth    int
	deactivation []teardownBatch
	dying        []*Object
	tasks        async.Collection
	changed      []object.Uid
	changedSet   map[object.Uid]struct{}
	inbox        *queue.Queue
	waitStep     time.Duration
}

type Option func(*Manager)

func WithBus(b *event.Bus) Option { return func(m *Manager) { m.bus = b } }

func WithMetrics(l *metrics.Lifecycle) Option { return func(m *Manager) { m.metrics = l } }

func WithTracer(t trace.Tracer) Option { return func(m *Manager) { m.tracer = t } }

// WithDefaultWorldName overrides DefaultWorldName.
func WithDefaultWorldName(name string) Option {
	return func(m *Manager) { m.defaultWorld.name = name }
}

func NewManager(log *zap.Logger, sched *async.Scheduler, factory *Factory, opts ...Option) *Manager {
	if factory == nil {
		factory = NewFactory()
	}
	m := &Manager{
		log:         log,
		reg:         object.NewRegistry(),
		factory:     factory,
		sched:       sched,
		tracer:      noop.NewTracerProvider().Tracer("scene"),
		updateIndex: make(map[*BaseComponent]*updateEntry),
		changedSet:  make(map[object.Uid]struct{}),
		inbox:       queue.New(64),
		waitStep:    time.Millisecond,
	}
	m.defaultWorld = m.newWorld(DefaultWorldName)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Logger() *zap.Logger         { return m.log }
func (m *Manager) Registry() *object.Registry  { return m.reg }
func (m *Manager) Factory() *Factory           { return m.factory }
func (m *Manager) Scheduler() *async.Scheduler { return m.sched }
func (m *Manager) Bus() *event.Bus             { return m.bus }
func (m *Manager) DefaultWorld() *World        { return m.defaultWorld }
func (m *Manager) ActiveComponentCount() int   { return m.activeCount }
func (m *Manager) PendingTeardowns() int       { return m.tasks.Len() + len(m.deactivation) }

// RegisterProcessor adds a collaborator. p must implement at least one of
// ComponentsActivator, ComponentsAsyncActivator, SceneStateSyncer and
// PreInitializer; registration order is the call order of every hook.
func (m *Manager) RegisterProcessor(p any) error {
	found := false
	if a, ok := p.(ComponentsActivator); ok {
		m.activators = append(m.activators, a)
		found = true
	}
	if a, ok := p.(ComponentsAsyncActivator); ok {
		m.asyncActivators = append(m.asyncActivators, a)
		found = true
	}
	if s, ok := p.(SceneStateSyncer); ok {
		m.syncers = append(m.syncers, s)
		found = true
	}
	if s, ok := p.(PreInitializer); ok {
		m.preIniters = append(m.preIniters, s)
		found = true
	}
	if !found {
		return fmt.Errorf("%w: %T", ErrNoCapability, p)
	}
	m.log.Debug("註冊處理器", zap.String("processor", processorName(p)))
	return nil
}

// PreInit runs every PreInitializer and combines their failures.
func (m *Manager) PreInit(ctx context.Context) error {
	var err error
	for _, p := range m.preIniters {
		if e := p.PreInit(ctx); e != nil {
			m.log.Error("處理器預初始化失敗", zap.String("processor", processorName(p)), zap.Error(e))
			err = multierr.Append(err, fmt.Errorf("%s: %w", processorName(p), e))
		}
	}
	return err
}

// NewObject creates an inactive object whose root is a plain SceneComponent.
func (m *Manager) NewObject(name string) object.Ptr[*Object] {
	p, _, err := NewObjectWith[*SceneComponent](m, name, nil)
	if err != nil {
		panic(err) // SceneComponent is always registered
	}
	return p
}

// NewObjectWith creates an inactive object whose root component is T, which
// must embed SceneComponent and be registered in the factory.
func NewObjectWith[T Component](m *Manager, name string, init func(T)) (object.Ptr[*Object], T, error) {
	var zero T
	ct, err := m.factory.lookupType(reflect.TypeFor[T]())
	if err != nil {
		return object.Ptr[*Object]{}, zero, err
	}
	if !ct.root {
		return object.Ptr[*Object]{}, zero, fmt.Errorf("%w: %s", ErrNotSceneComponent, ct.name)
	}
	o := m.newObject(name)
	c := m.construct(ct, o)
	o.root = c.(sceneRoot).sceneComponent()
	o.root.ensureInit()
	o.components = append(o.components, c)
	if init != nil {
		init(c.(T))
	}
	m.created(c)
	return object.Own(o.Ref()), c.(T), nil
}

func (m *Manager) newObject(name string) *Object {
	o := &Object{mgr: m, uid: object.NewUid(), name: name}
	o.handle = m.reg.Allocate(o, o.uid)
	return o
}

// NewScene creates an inactive scene with an empty root object.
func (m *Manager) NewScene(name string) object.Ptr[*Scene] {
	rootPtr := m.NewObject(name)
	s := &Scene{mgr: m, uid: object.NewUid(), name: name}
	s.handle = m.reg.Allocate(s, s.uid)
	s.root = rootPtr.Release()
	s.root.scene = s
	return object.Own(s.Ref())
}

func (m *Manager) construct(ct *componentType, owner *Object) Component {
	c := ct.ctor()
	b := c.base()
	b.mgr = m
	b.self = c
	b.uid = object.NewUid()
	b.handle = m.reg.Allocate(c, b.uid)
	b.owner = owner
	b.typ = ct
	b.caps = ct.caps
	b.hooks = bindHooks(c, ct.caps)
	b.state = Inactive
	return c
}

func (m *Manager) created(c Component) {
	if ev := c.base().hooks.events; ev != nil {
		m.hook(ev.OnComponentCreated)
	}
}

// hook runs user code; deactivations requested inside it are queued.
func (m *Manager) hook(fn func()) {
	m.hookDepth++
	defer func() { m.hookDepth-- }()
	fn()
}

func (m *Manager) newWorld(name string) *World {
	w := &World{mgr: m, uid: object.NewUid(), name: name}
	w.handle = m.reg.Allocate(w, w.uid)
	m.worlds = append(m.worlds, w)
	return w
}

func (m *Manager) CreateWorld(name string) *World {
	w := m.newWorld(name)
	m.log.Info("建立世界", zap.String("world", name), zap.Stringer("uid", w.uid))
	return w
}

// FindWorld resolves a world Uid; NullUid selects the default world.
func (m *Manager) FindWorld(uid object.Uid) (*World, error) {
	if uid.IsNull() {
		return m.defaultWorld, nil
	}
	if obj, ok := m.reg.Find(uid); ok {
		if w, ok := obj.(*World); ok {
			return w, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrWorldNotFound, uid)
}

func (m *Manager) Worlds() []*World { return slices.Clone(m.worlds) }

// DestroyWorld deactivates every scene of the world and invalidates it.
func (m *Manager) DestroyWorld(ref object.WeakRef[*World]) error {
	w, ok := ref.Get()
	if !ok {
		return nil
	}
	if w == m.defaultWorld {
		return ErrDefaultWorld
	}
	for _, s := range w.Scenes() {
		m.DeactivateScene(s.Ref())
	}
	m.worlds = slices.DeleteFunc(m.worlds, func(x *World) bool { return x == w })
	m.reg.Invalidate(w.handle)
	event.Emit(m.bus, event.WorldDestroyed{WorldUid: w.uid, Name: w.name})
	m.log.Info("銷毀世界", zap.String("world", w.name))
	return nil
}

// ActiveScenes returns the fully activated scenes of w (default world if nil).
func (m *Manager) ActiveScenes(w *World) []*Scene {
	if w == nil {
		w = m.defaultWorld
	}
	var out []*Scene
	for _, s := range w.scenes {
		if s.state == Active {
			out = append(out, s)
		}
	}
	return out
}

// FindObject resolves a live object by Uid.
func (m *Manager) FindObject(uid object.Uid) (*Object, bool) {
	obj, ok := m.reg.Find(uid)
	if !ok {
		return nil, false
	}
	o, ok := obj.(*Object)
	return o, ok
}

// FindComponent resolves a live component by Uid.
func (m *Manager) FindComponent(uid object.Uid) (Component, bool) {
	obj, ok := m.reg.Find(uid)
	if !ok {
		return nil, false
	}
	c, ok := obj.(Component)
	return c, ok
}

// Post stages fn to run on the scene thread at the start of the next update.
// Safe for concurrent use.
func (m *Manager) Post(fn func()) error {
	return m.inbox.Put(fn)
}

func (m *Manager) drainInbox() {
	n := m.inbox.Len()
	if n == 0 {
		return
	}
	items, err := m.inbox.Get(n)
	if err != nil {
		m.log.Error("讀取場景工作佇列失敗", zap.Error(err))
		return
	}
	for _, it := range items {
		it.(func())()
	}
}

// Wait pumps ticks until a completes or ctx is done, then returns a's error.
func (m *Manager) Wait(ctx context.Context, a async.Awaitable) error {
	if m.sched.InTask() {
		m.fatalf("Wait called from inside a coroutine")
	}
	for !a.IsReady() {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.Tick(m.waitStep)
		if !a.IsReady() {
			time.Sleep(100 * time.Microsecond)
		}
	}
	return a.Err()
}

// Shutdown deactivates every scene, drops non-default worlds and completes
// once all teardown work drained.
func (m *Manager) Shutdown() *async.Task[async.Void] {
	for _, w := range m.Worlds() {
		for _, s := range w.Scenes() {
			m.DeactivateScene(s.Ref())
		}
		if w != m.defaultWorld {
			_ = m.DestroyWorld(w.Ref())
		}
	}
	m.drainIfIdle()
	return async.Run(m.sched, "shutdown", func(co *async.Co) error {
		for m.tasks.Len() > 0 || len(m.deactivation) > 0 {
			m.tasks.Drain(co)
			if len(m.deactivation) > 0 {
				co.Yield()
			}
		}
		return nil
	})
}

func (m *Manager) startSpan(name string, attrs ...attribute.KeyValue) trace.Span {
	_, span := m.tracer.Start(context.Background(), name, trace.WithAttributes(attrs...))
	return span
}
