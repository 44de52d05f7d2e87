package scene

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/l1jgo/scenecore/internal/core/event"
	"github.com/l1jgo/scenecore/internal/core/object"
	"github.com/l1jgo/scenecore/internal/core/xform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidationAtomicity(t *testing.T) {
	m := newManager(t)
	var a *Object
	var objRefs []object.WeakRef[*Object]
	var compRefs []object.WeakRef[*probe]
	s := activeScene(t, m, func(root *Object) {
		a = attach(root, m, "a")
		b := attach(a, m, "b")
		c := attach(b, m, "c")
		for _, o := range []*Object{a, b, c} {
			p, err := AddComponent[*probe](o, nil)
			require.NoError(t, err)
			objRefs = append(objRefs, o.Ref())
			compRefs = append(compRefs, RefTo(p))
		}
	})
	for _, r := range objRefs {
		require.True(t, r.Valid())
	}

	s.Root().RemoveChild(a.Ref())

	for _, r := range objRefs {
		assert.False(t, r.Valid())
	}
	for _, r := range compRefs {
		_, ok := r.Get()
		assert.False(t, ok)
	}
	assert.True(t, s.Root().Alive())
	assert.Empty(t, s.Root().ChildObjects(false))
	_, found := m.FindObject(objRefs[1].Uid())
	assert.False(t, found)
}

func TestDeactivateSceneInvalidatesEverything(t *testing.T) {
	m := newManager(t)
	var p *probe
	var objRef object.WeakRef[*Object]
	s := activeScene(t, m, func(root *Object) {
		o := attach(root, m, "leaf")
		objRef = o.Ref()
		var err error
		p, err = AddComponent[*probe](o, nil)
		require.NoError(t, err)
	})
	sceneRef := s.Ref()
	rootRef := s.Root().Ref()

	m.DeactivateScene(sceneRef)

	assert.False(t, sceneRef.Valid())
	assert.False(t, rootRef.Valid())
	assert.False(t, objRef.Valid())
	assert.False(t, RefTo(p).Valid())
	assert.Empty(t, m.DefaultWorld().Scenes())

	m.Tick(time.Millisecond)
	assert.Equal(t, Destroyed, p.ActivationState())
	assert.Equal(t, 1, p.deactivated)

	// absent reference: no-op
	m.DeactivateScene(sceneRef)
}

func TestAttachChildToActiveParent(t *testing.T) {
	m := newManager(t)
	var root *Object
	activeScene(t, m, func(r *Object) { root = r })

	childPtr := m.NewObject("late")
	p, err := AddComponent[*probe](childPtr.Get(), nil)
	require.NoError(t, err)
	child := root.AttachChild(&childPtr)

	assert.Equal(t, Active, child.ActivationState())
	assert.Equal(t, Active, p.ActivationState())
	assert.Same(t, root.Scene(), child.Scene())
}

func TestAttachChildAsync(t *testing.T) {
	m := newManager(t)
	var root *Object
	activeScene(t, m, func(r *Object) { root = r })

	childPtr := m.NewObject("slow")
	p, err := AddComponent(childPtr.Get(), func(p *probe) { p.blocked = true })
	require.NoError(t, err)
	grandPtr := m.NewObject("slow/inner")
	q, err := AddComponent[*probe](grandPtr.Get(), nil)
	require.NoError(t, err)
	childPtr.Get().AttachChild(&grandPtr)

	task := root.AttachChildAsync(&childPtr)
	m.Tick(time.Millisecond)
	require.False(t, task.IsReady())
	assert.Equal(t, Active, q.ActivationState(), "siblings are not blocked by a slow component")

	p.blocked = false
	wait(t, m, task)
	ref, err := task.Result()
	require.NoError(t, err)
	child, ok := ref.Get()
	require.True(t, ok)
	assert.Equal(t, Active, child.ActivationState())
	assert.True(t, p.activatedAsync)
	assert.Equal(t, 1, p.activated)
}

func TestAttachChildInactiveParentDefersActivation(t *testing.T) {
	m := newManager(t)
	parentPtr := m.NewObject("parent")
	childPtr := m.NewObject("child")
	p, err := AddComponent[*probe](childPtr.Get(), nil)
	require.NoError(t, err)

	child := parentPtr.Get().AttachChild(&childPtr)
	assert.Equal(t, Inactive, child.ActivationState())
	assert.Equal(t, Inactive, p.ActivationState())
	assert.Same(t, parentPtr.Get(), child.Parent())
}

func TestRemoveChildIgnoresStrangers(t *testing.T) {
	m := newManager(t)
	var a, b *Object
	activeScene(t, m, func(root *Object) {
		a = attach(root, m, "a")
		b = attach(root, m, "b")
	})
	a.RemoveChild(b.Ref())
	assert.True(t, b.Alive())
	a.RemoveChild(object.WeakRef[*Object]{})
}

func TestTransformRoundTrip(t *testing.T) {
	m := newManager(t)
	parentPtr := m.NewObject("parent")
	parent := parentPtr.Get()
	parent.SetTransform(xform.Transform{
		Translation: mgl64.Vec3{3, -2, 7},
		Rotation:    mgl64.QuatRotate(0.7, mgl64.Vec3{0, 1, 1}.Normalize()),
		Scale:       mgl64.Vec3{2, 2, 2},
	})
	childPtr := m.NewObject("child")
	child := parent.AttachChild(&childPtr)

	want := xform.Transform{
		Translation: mgl64.Vec3{-4, 1, 0.5},
		Rotation:    xform.RotationZ(math.Pi / 3),
		Scale:       mgl64.Vec3{1, 1, 1},
	}
	child.SetWorldTransform(want)

	assert.True(t, child.WorldTransform().ApproxEqual(want), "world %v", child.WorldTransform())
	local := parent.WorldTransform().Inverse().Mul(want)
	assert.True(t, child.Transform().ApproxEqual(local))
}

func TestSetParentKeepsWorldTransform(t *testing.T) {
	m := newManager(t)
	var p1, p2, c *Object
	activeScene(t, m, func(root *Object) {
		p1 = attach(root, m, "p1")
		p2 = attach(root, m, "p2")
		c = attach(p1, m, "c")
	})
	p1.SetTranslation(mgl64.Vec3{10, 0, 0})
	p2.SetTransform(xform.Transform{
		Translation: mgl64.Vec3{0, 5, 0},
		Rotation:    xform.RotationZ(math.Pi / 2),
		Scale:       mgl64.Vec3{1, 1, 1},
	})
	c.SetTranslation(mgl64.Vec3{1, 0, 0})
	require.True(t, c.WorldTransform().ApproxEqual(xform.FromTranslation(mgl64.Vec3{11, 0, 0})))

	c.SetParent(p2)
	assert.Same(t, p2, c.Parent())
	assert.True(t, c.WorldTransform().ApproxEqual(xform.FromTranslation(mgl64.Vec3{11, 0, 0})))
	assert.NotContains(t, p1.ChildObjects(false), c)
	assert.Contains(t, p2.ChildObjects(false), c)
}

func TestSetParentDontKeepWorldTransform(t *testing.T) {
	m := newManager(t)
	var p1, p2, c *Object
	activeScene(t, m, func(root *Object) {
		p1 = attach(root, m, "p1")
		p2 = attach(root, m, "p2")
		c = attach(p1, m, "c")
	})
	p2.SetTranslation(mgl64.Vec3{0, 5, 0})
	c.SetTranslation(mgl64.Vec3{1, 0, 0})
	// read once so a stale cache would be observable
	_ = c.WorldTransform()

	c.SetParent(p2, DontKeepWorldTransform)
	assert.True(t, c.Transform().ApproxEqual(xform.FromTranslation(mgl64.Vec3{1, 0, 0})))
	assert.True(t, c.WorldTransform().ApproxEqual(xform.FromTranslation(mgl64.Vec3{1, 5, 0})))
}

func TestAncestorChangeNotifiesChildren(t *testing.T) {
	bus := event.NewBus()
	m := newManager(t, WithBus(bus))
	var parent, child *Object
	activeScene(t, m, func(root *Object) {
		parent = attach(root, m, "parent")
		child = attach(parent, m, "child")
	})
	var notified []*Object
	sub := child.SubscribeOnChanges(func(o *Object) { notified = append(notified, o) })

	parent.SetTranslation(mgl64.Vec3{0, 0, 4})
	require.Len(t, notified, 1)
	assert.Same(t, child, notified[0])
	assert.InDelta(t, 4, child.WorldTransform().Translation.Z(), 1e-9)

	var changed []object.Uid
	event.Subscribe(bus, func(e event.ComponentsChanged) { changed = append(changed, e.Components...) })
	m.Update(time.Millisecond)
	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Contains(t, changed, parent.RootComponent().Uid())
	assert.Contains(t, changed, child.RootComponent().Uid())

	sub.Unsubscribe()
	parent.SetTranslation(mgl64.Vec3{})
	assert.Len(t, notified, 1)
}

func TestWalkOrder(t *testing.T) {
	m := newManager(t)
	rootPtr := m.NewObject("root")
	root := rootPtr.Get()
	add := func(o *Object, label string) {
		_, err := AddComponent(o, func(mk *marker) { mk.label = label })
		require.NoError(t, err)
	}
	add(root, "root.1")
	add(root, "root.2")
	c1 := attach(root, m, "c1")
	add(c1, "c1.1")
	c11 := attach(c1, m, "c11")
	add(c11, "c11.1")
	c2 := attach(root, m, "c2")
	add(c2, "c2.1")

	assert.Equal(t, []*Object{c1, c11, c2}, root.ChildObjects(true))
	assert.Equal(t, []*Object{c1, c2}, root.ChildObjects(false))

	var labels []string
	for _, mk := range ComponentsOf[*marker](root, true) {
		labels = append(labels, mk.label)
	}
	assert.Equal(t, []string{"root.1", "root.2", "c1.1", "c11.1", "c2.1"}, labels)

	all := root.Components(true)
	assert.Same(t, root.RootComponent(), all[0].(*SceneComponent), "root component first")
	assert.Len(t, root.Components(false), 3)

	visited := 0
	done := root.WalkComponents(true, func(Component) bool {
		visited++
		return visited < 4
	})
	assert.False(t, done)
	assert.Equal(t, 4, visited)

	first, ok := FindComponent[*marker](root, true)
	require.True(t, ok)
	assert.Equal(t, "root.1", first.label)
	found, ok := root.FindComponentByUid(ComponentsOf[*marker](c11, false)[0].Uid())
	require.True(t, ok)
	assert.Equal(t, "c11.1", found.(*marker).label)
}

func TestCustomRootComponent(t *testing.T) {
	m := newManager(t)
	objPtr, root, err := NewObjectWith(m, "pivoted", func(p *pivot) {
		p.SetTranslation(mgl64.Vec3{1, 2, 3})
	})
	require.NoError(t, err)
	assert.Same(t, &root.SceneComponent, objPtr.Get().RootComponent())
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, objPtr.Get().Translation())

	_, _, err = NewObjectWith[*marker](m, "bad", nil)
	assert.ErrorIs(t, err, ErrNotSceneComponent)
}

func TestAddComponentByName(t *testing.T) {
	m := newManager(t)
	objPtr := m.NewObject("named")
	c, err := objPtr.Get().AddComponentByName("scene.marker", func(c Component) { c.(*marker).label = "x" })
	require.NoError(t, err)
	assert.Equal(t, "x", c.(*marker).label)
	assert.Equal(t, "scene.marker", c.(*marker).TypeName())

	_, err = objPtr.Get().AddComponentByName("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownComponent)
}

func TestStructuralMisuse(t *testing.T) {
	m := newManager(t)
	var a, b *Object
	s := activeScene(t, m, func(root *Object) {
		a = attach(root, m, "a")
		b = attach(a, m, "b")
	})

	requireStructural(t, func() { a.RemoveComponent(a.RootComponent()) })
	requireStructural(t, func() { s.Root().Destroy() })
	requireStructural(t, func() { a.SetParent(b) })
	requireStructural(t, func() { a.SetParent(a) })

	loosePtr := m.NewObject("loose")
	requireStructural(t, func() { a.SetParent(loosePtr.Get()) })
	requireStructural(t, func() { loosePtr.Get().SetParent(a) })

	other := attach(s.Root(), m, "other")
	mk, err := AddComponent[*marker](other, nil)
	require.NoError(t, err)
	requireStructural(t, func() { a.RemoveComponent(mk) })

	empty := object.Ptr[*Object]{}
	requireStructural(t, func() { a.AttachChild(&empty) })
}

func TestDumpTree(t *testing.T) {
	m := newManager(t)
	var root *Object
	activeScene(t, m, func(r *Object) {
		root = r
		_, err := AddComponent[*marker](attach(r, m, "child"), nil)
		require.NoError(t, err)
	})
	out := DumpTree(root)
	assert.True(t, strings.HasPrefix(out, "test [active]\n"))
	assert.Contains(t, out, "  child [active]\n")
	assert.Contains(t, out, "    - scene.marker (active)\n")
}
