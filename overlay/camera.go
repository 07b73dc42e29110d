package overlay

import (
	"github.com/go-gl/mathgl/mgl64"
)

// ProjectionKind tells perspective and orthographic cameras apart
type ProjectionKind int

const (
	Perspective ProjectionKind = iota
	Orthographic
)

func (k ProjectionKind) String() string {
	switch k {
	case Perspective:
		return "perspective"
	case Orthographic:
		return "orthographic"
	default:
		return "unknown"
	}
}

// Camera is the per-frame snapshot of the external camera.
// Left, Right, Top and Bottom are only read for orthographic cameras.
type Camera struct {
	Kind       ProjectionKind
	World      mgl64.Mat4
	Projection mgl64.Mat4

	Left, Right, Top, Bottom float64
}

// NewPerspectiveCamera builds a camera from a vertical field of view in radians
func NewPerspectiveCamera(world mgl64.Mat4, fovy, aspect, near, far float64) Camera {
	return Camera{
		Kind:       Perspective,
		World:      world,
		Projection: mgl64.Perspective(fovy, aspect, near, far),
	}
}

// NewOrthographicCamera builds a camera from its frustum extents
func NewOrthographicCamera(world mgl64.Mat4, left, right, top, bottom, near, far float64) Camera {
	return Camera{
		Kind:       Orthographic,
		World:      world,
		Projection: mgl64.Ortho(left, right, bottom, top, near, far),
		Left:       left,
		Right:      right,
		Top:        top,
		Bottom:     bottom,
	}
}

// Focal returns the pixel distance matching the vertical projection scale
// for a viewport of the given half height.
func (c Camera) Focal(heightHalf float64) float64 {
	return c.Projection[5] * heightHalf
}

// Position is the camera world translation
func (c Camera) Position() mgl64.Vec3 {
	return mgl64.Vec3{c.World[12], c.World[13], c.World[14]}
}
