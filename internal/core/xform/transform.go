package xform

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Epsilon is the default tolerance of ApproxEqual.
const Epsilon = 1e-6

// Transform is a translation, rotation, scale triple. Composition treats scale
// per axis; rotation combined with non-uniform scale is not closed under
// composition and is approximated.
type Transform struct {
	Translation mgl64.Vec3
	Rotation    mgl64.Quat
	Scale       mgl64.Vec3
}

func Identity() Transform {
	return Transform{Rotation: mgl64.QuatIdent(), Scale: mgl64.Vec3{1, 1, 1}}
}

func FromTranslation(v mgl64.Vec3) Transform {
	t := Identity()
	t.Translation = v
	return t
}

// Mul composes t (parent) with child: the result maps child space to t's parent space.
func (t Transform) Mul(child Transform) Transform {
	return Transform{
		Translation: t.Translation.Add(t.Rotation.Rotate(mulElem(t.Scale, child.Translation))),
		Rotation:    t.Rotation.Mul(child.Rotation).Normalize(),
		Scale:       mulElem(t.Scale, child.Scale),
	}
}

func (t Transform) Inverse() Transform {
	inv := mgl64.Vec3{invOrZero(t.Scale[0]), invOrZero(t.Scale[1]), invOrZero(t.Scale[2])}
	rot := t.Rotation.Inverse()
	return Transform{
		Translation: mulElem(inv, rot.Rotate(t.Translation.Mul(-1))),
		Rotation:    rot,
		Scale:       inv,
	}
}

// Point maps p from local to parent space.
func (t Transform) Point(p mgl64.Vec3) mgl64.Vec3 {
	return t.Translation.Add(t.Rotation.Rotate(mulElem(t.Scale, p)))
}

func (t Transform) Matrix() mgl64.Mat4 {
	return mgl64.Translate3D(t.Translation.Elem()).
		Mul4(t.Rotation.Mat4()).
		Mul4(mgl64.Scale3D(t.Scale.Elem()))
}

// FromMatrix decomposes an affine matrix without shear.
func FromMatrix(m mgl64.Mat4) Transform {
	c0, c1, c2 := m.Col(0).Vec3(), m.Col(1).Vec3(), m.Col(2).Vec3()
	scale := mgl64.Vec3{c0.Len(), c1.Len(), c2.Len()}
	if m.Det() < 0 {
		scale[0] = -scale[0]
	}
	rot := mgl64.Mat3FromCols(
		c0.Mul(invOrZero(scale[0])),
		c1.Mul(invOrZero(scale[1])),
		c2.Mul(invOrZero(scale[2])),
	)
	return Transform{
		Translation: m.Col(3).Vec3(),
		Rotation:    mgl64.Mat4ToQuat(rot.Mat4()).Normalize(),
		Scale:       scale,
	}
}

func (t Transform) ApproxEqual(o Transform) bool {
	return t.ApproxEqualThreshold(o, Epsilon)
}

// ApproxEqualThreshold compares component-wise; q and -q are the same rotation.
func (t Transform) ApproxEqualThreshold(o Transform, eps float64) bool {
	if !t.Translation.ApproxEqualThreshold(o.Translation, eps) || !t.Scale.ApproxEqualThreshold(o.Scale, eps) {
		return false
	}
	return t.Rotation.ApproxEqualThreshold(o.Rotation, eps) ||
		t.Rotation.Scale(-1).ApproxEqualThreshold(o.Rotation, eps)
}

// RotationZ builds a rotation of angle radians about +Z.
func RotationZ(angle float64) mgl64.Quat {
	return mgl64.QuatRotate(angle, mgl64.Vec3{0, 0, 1})
}

// AngleZ extracts the rotation about +Z (yaw in the XY plane) from q.
func AngleZ(q mgl64.Quat) float64 {
	x, y, z, w := q.V[0], q.V[1], q.V[2], q.W
	return math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
}

func mulElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func invOrZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return 1 / v
}
