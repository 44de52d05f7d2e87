package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
)

var (
	ErrNoShapeFactory = errors.New("physics: no collision shape factory")
	ErrInvalidShape   = errors.New("physics: invalid collision shape")
)

// ShapeKind selects the collision primitive of a RigidBody.
type ShapeKind uint8

const (
	ShapeBox ShapeKind = iota
	ShapeCircle
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeBox:
		return "box"
	case ShapeCircle:
		return "circle"
	}
	return fmt.Sprintf("shape(%d)", uint8(k))
}

// UnmarshalText accepts "box" or "circle", as written in blueprints.
func (k *ShapeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "box":
		*k = ShapeBox
	case "circle":
		*k = ShapeCircle
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidShape, text)
	}
	return nil
}

// Collision describes the single collision primitive of a body in object space.
type Collision struct {
	Kind   ShapeKind
	Width  float64
	Height float64
	Radius float64
}

func Box(w, h float64) Collision      { return Collision{Kind: ShapeBox, Width: w, Height: h} }
func Circle(radius float64) Collision { return Collision{Kind: ShapeCircle, Radius: radius} }

// scaled applies the object's world scale to the primitive.
func (c Collision) scaled(s mgl64.Vec3) Collision {
	if s.ApproxEqual(mgl64.Vec3{1, 1, 1}) {
		return c
	}
	c.Width *= math.Abs(s[0])
	c.Height *= math.Abs(s[1])
	c.Radius *= math.Max(math.Abs(s[0]), math.Abs(s[1]))
	return c
}

// ShapeFactory turns Collision descriptions into chipmunk shapes.
type ShapeFactory interface {
	Moment(c Collision, mass float64) (float64, error)
	NewShape(body *cp.Body, c Collision) (*cp.Shape, error)
}

// BasicShapes builds boxes and circles centered on the body.
type BasicShapes struct{}

func (BasicShapes) validate(c Collision) error {
	switch c.Kind {
	case ShapeBox:
		if c.Width <= 0 || c.Height <= 0 {
			return fmt.Errorf("%w: box %gx%g", ErrInvalidShape, c.Width, c.Height)
		}
	case ShapeCircle:
		if c.Radius <= 0 {
			return fmt.Errorf("%w: circle radius %g", ErrInvalidShape, c.Radius)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidShape, c.Kind)
	}
	return nil
}

func (b BasicShapes) Moment(c Collision, mass float64) (float64, error) {
	if err := b.validate(c); err != nil {
		return 0, err
	}
	if c.Kind == ShapeCircle {
		return cp.MomentForCircle(mass, 0, c.Radius, cp.Vector{}), nil
	}
	return cp.MomentForBox(mass, c.Width, c.Height), nil
}

func (b BasicShapes) NewShape(body *cp.Body, c Collision) (*cp.Shape, error) {
	if err := b.validate(c); err != nil {
		return nil, err
	}
	if c.Kind == ShapeCircle {
		return cp.NewCircle(body, c.Radius, cp.Vector{}), nil
	}
	return cp.NewBox(body, c.Width, c.Height, 0), nil
}
