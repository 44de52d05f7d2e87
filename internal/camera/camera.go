// Package camera tracks scene cameras and detached cameras and hands render
// code read-only views of them.
package camera

import (
	"sync"
	"sync/atomic"

	"github.com/l1jgo/scenecore/internal/core/object"
	"github.com/l1jgo/scenecore/internal/core/xform"
	"github.com/l1jgo/scenecore/internal/scene"
)

// Properties is a snapshot of one camera.
type Properties struct {
	Uid       object.Uid
	WorldUid  object.Uid
	Name      string
	Transform xform.Transform
	Fov       float64 // vertical, degrees
	ClipNear  float64
	ClipFar   float64
}

// Camera is a scene camera placed by its object's world transform.
type Camera struct {
	scene.BaseComponent

	Fov      float64
	ClipNear float64
	ClipFar  float64
}

func NewCamera() *Camera {
	return &Camera{Fov: 90, ClipNear: 0.1, ClipFar: 1000}
}

func (c *Camera) properties() Properties {
	var world object.Uid
	if w := c.World(); w != nil {
		world = w.Uid()
	}
	return Properties{
		Uid:       c.Uid(),
		WorldUid:  world,
		Name:      c.Object().Name(),
		Transform: c.Object().WorldTransform(),
		Fov:       c.Fov,
		ClipNear:  c.ClipNear,
		ClipFar:   c.ClipFar,
	}
}

var detachedSeq atomic.Uint64

// Detached is a camera that lives outside any scene. It may be driven from
// any goroutine until Release.
type Detached struct {
	seq   uint64
	uid   object.Uid
	world object.Uid

	mu       sync.Mutex
	name     string
	t        xform.Transform
	fov      float64
	near     float64
	far      float64
	released bool
}

func newDetached(world object.Uid) *Detached {
	return &Detached{
		seq:   detachedSeq.Add(1),
		uid:   object.NewUid(),
		world: world,
		name:  "detached",
		t:     xform.Identity(),
		fov:   90,
		near:  0.1,
		far:   1000,
	}
}

func (d *Detached) Uid() object.Uid      { return d.uid }
func (d *Detached) WorldUid() object.Uid { return d.world }

func (d *Detached) SetName(name string) {
	d.mu.Lock()
	d.name = name
	d.mu.Unlock()
}

func (d *Detached) SetTransform(t xform.Transform) {
	d.mu.Lock()
	d.t = t
	d.mu.Unlock()
}

func (d *Detached) SetFov(deg float64) {
	d.mu.Lock()
	d.fov = deg
	d.mu.Unlock()
}

func (d *Detached) SetClipPlanes(near, far float64) {
	d.mu.Lock()
	d.near, d.far = near, far
	d.mu.Unlock()
}

// Release gives the camera up; views of it disappear on the next sync.
func (d *Detached) Release() {
	d.mu.Lock()
	d.released = true
	d.mu.Unlock()
}

func (d *Detached) snapshot() (Properties, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return Properties{}, false
	}
	return Properties{
		Uid:       d.uid,
		WorldUid:  d.world,
		Name:      d.name,
		Transform: d.t,
		Fov:       d.fov,
		ClipNear:  d.near,
		ClipFar:   d.far,
	}, true
}

// View is a read-only camera handed out by the Manager. Its properties are
// refreshed by SyncCameras.
type View struct {
	detached *Detached
	scene    object.WeakRef[*Camera]
	props    Properties
}

func (v *View) Uid() object.Uid        { return v.props.Uid }
func (v *View) Properties() Properties { return v.props }
func (v *View) IsDetached() bool       { return v.detached != nil }

// sync refreshes the snapshot and reports whether the source still exists.
func (v *View) sync() bool {
	if v.detached != nil {
		p, ok := v.detached.snapshot()
		if ok {
			v.props = p
		}
		return ok
	}
	c, ok := v.scene.Get()
	if !ok {
		return false
	}
	v.props = c.properties()
	return true
}
