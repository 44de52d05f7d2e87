package scene

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/object"
	"github.com/l1jgo/scenecore/internal/core/xform"
	"go.uber.org/zap"
)

// Object is a node of the scene tree. It owns its children and components;
// the first component is always the root SceneComponent.
type Object struct {
	mgr        *Manager
	handle     object.Handle
	uid        object.Uid
	name       string
	parent     *Object
	children   []*Object
	components []Component
	root       *SceneComponent
	scene      *Scene
	state      ActivationState
}

func (o *Object) Uid() object.Uid                  { return o.uid }
func (o *Object) Name() string                     { return o.name }
func (o *Object) SetName(name string)              { o.name = name }
func (o *Object) Parent() *Object                  { return o.parent }
func (o *Object) Scene() *Scene                    { return o.scene }
func (o *Object) ActivationState() ActivationState { return o.state }
func (o *Object) RootComponent() *SceneComponent   { return o.root }

func (o *Object) Ref() object.WeakRef[*Object] {
	return object.RefOf(o.mgr.reg, o.handle, o)
}

// Alive reports whether weak references to o still resolve.
func (o *Object) Alive() bool { return o.mgr.reg.Alive(o.handle) }

func (o *Object) World() *World {
	if o.scene == nil {
		return nil
	}
	return o.scene.world
}

func (o *Object) isSceneRoot() bool {
	return o.scene != nil && o.scene.root == o
}

func (o *Object) isAncestorOf(n *Object) bool {
	for p := n.parent; p != nil; p = p.parent {
		if p == o {
			return true
		}
	}
	return false
}

// Destroy removes o and its subtree from the scene. Weak references into the
// subtree are invalid when it returns.
func (o *Object) Destroy() {
	if o.isSceneRoot() {
		o.mgr.fatalf("object %q is the root of scene %q; deactivate the scene instead", o.name, o.scene.name)
	}
	if o.state == Destroyed {
		o.mgr.fatalf("object %q destroyed twice", o.name)
	}
	if p := o.parent; p != nil {
		p.children = slices.DeleteFunc(p.children, func(c *Object) bool { return c == o })
		o.parent = nil
	}
	o.mgr.teardown(o)
}

// AttachChild takes ownership of child and, when o is activating or active,
// starts activating the child subtree before returning.
func (o *Object) AttachChild(child *object.Ptr[*Object]) *Object {
	c := o.adopt(child)
	if o.state == Activating || o.state == Active {
		t := o.mgr.startActivation(c)
		if !t.IsReady() {
			o.mgr.log.Warn("子物件啟用未同步完成，建議使用 AttachChildAsync",
				zap.String("parent", o.name), zap.String("child", c.name))
			c.root.TrackAsync(t)
			o.mgr.joinSceneActivation(c, t)
		} else if err := t.Err(); err != nil {
			o.mgr.log.Error("子物件啟用失敗", zap.String("child", c.name), zap.Error(err))
		}
	}
	return c
}

// AttachChildAsync is AttachChild whose task completes once every component of
// the child subtree finished activating.
func (o *Object) AttachChildAsync(child *object.Ptr[*Object]) *async.Task[object.WeakRef[*Object]] {
	c := o.adopt(child)
	activate := o.state == Activating || o.state == Active
	t := async.Go(o.mgr.sched, "attach_child", func(co *async.Co) (object.WeakRef[*Object], error) {
		var err error
		if activate {
			err = o.mgr.activateObject(co, c)
		}
		return c.Ref(), err
	})
	if activate && !t.IsReady() {
		o.mgr.joinSceneActivation(c, t)
	}
	return t
}

func (o *Object) adopt(child *object.Ptr[*Object]) *Object {
	c := child.Release()
	switch {
	case c == nil:
		o.mgr.fatalf("attach of an empty object pointer to %q", o.name)
	case c.parent != nil || c.isSceneRoot():
		o.mgr.fatalf("object %q already has a parent", c.name)
	case c == o || c.isAncestorOf(o):
		o.mgr.fatalf("attaching %q under %q would create a cycle", c.name, o.name)
	case c.state != Inactive:
		o.mgr.fatalf("attached object %q must be inactive, is %s", c.name, c.state)
	}
	o.mgr.reparent(c, o, false)
	return c
}

// RemoveChild destroys the referenced child. Absent references are ignored.
func (o *Object) RemoveChild(ref object.WeakRef[*Object]) {
	c, ok := ref.Get()
	if !ok {
		return
	}
	if c.parent != o {
		o.mgr.log.Warn("移除的物件不是此物件的子物件", zap.String("object", o.name), zap.String("child", c.name))
		return
	}
	c.Destroy()
}

// ReparentOption tunes SetParent.
type ReparentOption int

const (
	// DontKeepWorldTransform keeps the local transform; the world transform
	// follows the new parent.
	DontKeepWorldTransform ReparentOption = iota + 1
)

// SetParent moves o under parent. Both must be active or both inactive.
func (o *Object) SetParent(parent *Object, opts ...ReparentOption) {
	switch {
	case parent == nil:
		o.mgr.fatalf("SetParent(nil) on %q", o.name)
	case o.isSceneRoot():
		o.mgr.fatalf("scene root %q cannot be reparented", o.name)
	case o.state != parent.state || (o.state != Active && o.state != Inactive):
		o.mgr.fatalf("reparent %q (%s) under %q (%s): activation states must match and be active or inactive",
			o.name, o.state, parent.name, parent.state)
	case parent == o || o.isAncestorOf(parent):
		o.mgr.fatalf("reparenting %q under %q would create a cycle", o.name, parent.name)
	case o.state == Active && o.World() != parent.World():
		o.mgr.fatalf("active object %q cannot move to another world", o.name)
	}
	if o.parent == parent {
		return
	}
	o.mgr.reparent(o, parent, !slices.Contains(opts, DontKeepWorldTransform))
}

func (m *Manager) reparent(o, parent *Object, keepWorld bool) {
	var world xform.Transform
	if keepWorld {
		world = o.WorldTransform()
	}
	if old := o.parent; old != nil {
		old.children = slices.DeleteFunc(old.children, func(c *Object) bool { return c == o })
	}
	o.parent = parent
	parent.children = append(parent.children, o)
	o.setScene(parent.scene)
	if keepWorld {
		o.SetWorldTransform(world)
		return
	}
	o.transformChanged()
}

func (o *Object) setScene(sc *Scene) {
	o.scene = sc
	for _, c := range o.children {
		c.setScene(sc)
	}
}

// ChildObjects returns direct children, or the whole subtree in pre-order.
func (o *Object) ChildObjects(recursive bool) []*Object {
	var out []*Object
	o.WalkChildObjects(recursive, func(c *Object) bool {
		out = append(out, c)
		return true
	})
	return out
}

// WalkChildObjects visits children in attach order, descending pre-order when
// recursive. It stops when fn returns false and reports whether it completed.
func (o *Object) WalkChildObjects(recursive bool, fn func(*Object) bool) bool {
	for _, c := range slices.Clone(o.children) {
		if !fn(c) {
			return false
		}
		if recursive && !c.WalkChildObjects(true, fn) {
			return false
		}
	}
	return true
}

// DirectComponents returns the components of o, root first.
func (o *Object) DirectComponents() []Component {
	return slices.Clone(o.components)
}

func (o *Object) Components(recursive bool) []Component {
	var out []Component
	o.WalkComponents(recursive, func(c Component) bool {
		out = append(out, c)
		return true
	})
	return out
}

// WalkComponents visits o's components (root first) and then, when recursive,
// those of its children in attach order.
func (o *Object) WalkComponents(recursive bool, fn func(Component) bool) bool {
	for _, c := range slices.Clone(o.components) {
		if !fn(c) {
			return false
		}
	}
	if !recursive {
		return true
	}
	for _, child := range slices.Clone(o.children) {
		if !child.WalkComponents(true, fn) {
			return false
		}
	}
	return true
}

func (o *Object) FindComponentByUid(uid object.Uid) (Component, bool) {
	var found Component
	o.WalkComponents(true, func(c Component) bool {
		if c.Uid() == uid {
			found = c
			return false
		}
		return true
	})
	return found, found != nil
}

// ComponentsOf returns the components of o implementing T.
func ComponentsOf[T any](o *Object, recursive bool) []T {
	var out []T
	o.WalkComponents(recursive, func(c Component) bool {
		if t, ok := c.(T); ok {
			out = append(out, t)
		}
		return true
	})
	return out
}

// FindComponent returns the first component implementing T.
func FindComponent[T any](o *Object, recursive bool) (T, bool) {
	var found T
	ok := false
	o.WalkComponents(recursive, func(c Component) bool {
		found, ok = c.(T)
		return !ok
	})
	return found, ok
}

// AddComponent constructs a registered component type on o. init runs before
// activation. When o is activating or active the component starts activating
// immediately; an error is returned if that activation failed synchronously.
func AddComponent[T Component](o *Object, init func(T)) (T, error) {
	var zero T
	ct, err := o.mgr.factory.lookupType(reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	c := o.addComponent(ct, func(c Component) {
		if init != nil {
			init(c.(T))
		}
	})
	return c.(T), o.mgr.activateAdded(c)
}

// AddComponentAsync is AddComponent whose task completes once the component
// finished activating (or immediately if o is inactive).
func AddComponentAsync[T Component](o *Object, init func(T)) *async.Task[object.WeakRef[T]] {
	ct, err := o.mgr.factory.lookupType(reflect.TypeFor[T]())
	if err != nil {
		return async.Failed[object.WeakRef[T]](err)
	}
	c := o.addComponent(ct, func(c Component) {
		if init != nil {
			init(c.(T))
		}
	}).(T)
	activate := o.state == Activating || o.state == Active
	return async.Go(o.mgr.sched, "add_component", func(co *async.Co) (object.WeakRef[T], error) {
		var err error
		if activate {
			err = o.mgr.activateComponents(co, []Component{c})
		}
		return RefTo(c), err
	})
}

// AddComponentByName constructs a component from its registered name.
func (o *Object) AddComponentByName(name string, init func(Component)) (Component, error) {
	ct, err := o.mgr.factory.lookupName(name)
	if err != nil {
		return nil, err
	}
	c := o.addComponent(ct, init)
	return c, o.mgr.activateAdded(c)
}

func (o *Object) addComponent(ct *componentType, init func(Component)) Component {
	if o.state == Deactivating || o.state == Destroyed {
		o.mgr.fatalf("add %s to destroyed object %q", ct.name, o.name)
	}
	c := o.mgr.construct(ct, o)
	o.components = append(o.components, c)
	if sc, ok := c.(sceneRoot); ok {
		sc.sceneComponent().ensureInit()
	}
	if init != nil {
		init(c)
	}
	o.mgr.created(c)
	return c
}

// RemoveComponent destroys c, which must be a non-root component of o that
// was not removed before.
func (o *Object) RemoveComponent(c Component) {
	b := c.base()
	switch {
	case b.owner != o:
		o.mgr.fatalf("component %s does not belong to %q", b.uid, o.name)
	case len(o.components) > 0 && o.components[0] == c:
		o.mgr.fatalf("root component of %q cannot be removed", o.name)
	case b.state == Deactivating || b.state == Destroyed || !b.Alive():
		o.mgr.fatalf("component %s removed twice", b.uid)
	}
	o.components = slices.DeleteFunc(o.components, func(x Component) bool { return x == c })
	o.mgr.teardownComponents([]Component{c})
}

// RemoveComponentRef removes the referenced component; absent references are ignored.
func (o *Object) RemoveComponentRef(ref object.WeakRef[Component]) {
	if c, ok := ref.Get(); ok {
		o.RemoveComponent(c)
	}
}

func (o *Object) Transform() xform.Transform          { return o.root.Transform() }
func (o *Object) SetTransform(t xform.Transform)      { o.root.SetTransform(t) }
func (o *Object) WorldTransform() xform.Transform     { return o.root.WorldTransform() }
func (o *Object) SetWorldTransform(t xform.Transform) { o.root.SetWorldTransform(t) }
func (o *Object) Translation() mgl64.Vec3             { return o.root.Translation() }
func (o *Object) SetTranslation(v mgl64.Vec3)         { o.root.SetTranslation(v) }
func (o *Object) Rotation() mgl64.Quat                { return o.root.Rotation() }
func (o *Object) SetRotation(q mgl64.Quat)            { o.root.SetRotation(q) }
func (o *Object) Scale() mgl64.Vec3                   { return o.root.Scale() }
func (o *Object) SetScale(v mgl64.Vec3)               { o.root.SetScale(v) }

func (o *Object) SubscribeOnChanges(fn func(*Object)) Subscription {
	return o.root.SubscribeOnChanges(fn)
}

// transformChanged invalidates cached world transforms of the subtree and
// notifies subscribers.
func (o *Object) transformChanged() {
	o.root.worldDirty = true
	o.root.notify()
	for _, c := range o.children {
		c.transformChanged()
	}
}

func (o *Object) String() string {
	return fmt.Sprintf("%s(%s)", o.name, o.state)
}
