package scene

import (
	"fmt"
	"reflect"
	"sort"
)

type componentType struct {
	name string
	typ  reflect.Type
	caps Caps
	ctor func() Component
	root bool // embeds SceneComponent, usable as an object root
}

// Factory is the component type registry. It is built once at startup and
// handed to the Manager; nothing registers into a process-wide table.
type Factory struct {
	byType map[reflect.Type]*componentType
	byName map[string]*componentType
}

// NewFactory returns a registry that already knows SceneComponent.
func NewFactory() *Factory {
	f := &Factory{
		byType: make(map[reflect.Type]*componentType),
		byName: make(map[string]*componentType),
	}
	MustRegister(f, func() *SceneComponent { return &SceneComponent{} })
	return f
}

// Register adds a component type under its Go type name (e.g. "physics.RigidBody").
func Register[T Component](f *Factory, ctor func() T) error {
	t := reflect.TypeFor[T]()
	name := t.String()
	if t.Kind() == reflect.Pointer {
		name = t.Elem().String()
	}
	return RegisterNamed(f, name, ctor)
}

// RegisterNamed adds a component type under an explicit name.
func RegisterNamed[T Component](f *Factory, name string, ctor func() T) error {
	t := reflect.TypeFor[T]()
	if _, dup := f.byType[t]; dup {
		return fmt.Errorf("component type %s already registered", t)
	}
	if _, dup := f.byName[name]; dup {
		return fmt.Errorf("component name %q already registered", name)
	}
	ct := &componentType{
		name: name,
		typ:  t,
		caps: capsOf(t),
		ctor: func() Component { return ctor() },
		root: t.Implements(sceneRootType),
	}
	f.byType[t] = ct
	f.byName[name] = ct
	return nil
}

func MustRegister[T Component](f *Factory, ctor func() T) {
	if err := Register(f, ctor); err != nil {
		panic(err)
	}
}

// CapsOf returns the cached capability set of a registered type.
func (f *Factory) CapsOf(name string) (Caps, bool) {
	ct, ok := f.byName[name]
	if !ok {
		return 0, false
	}
	return ct.caps, true
}

// Names lists registered component names in sorted order.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.byName))
	for n := range f.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f *Factory) lookupType(t reflect.Type) (*componentType, error) {
	ct, ok := f.byType[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, t)
	}
	return ct, nil
}

func (f *Factory) lookupName(name string) (*componentType, error) {
	ct, ok := f.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, name)
	}
	return ct, nil
}
