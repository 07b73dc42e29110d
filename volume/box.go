package volume

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrSingularMatrix is returned when a box world matrix cannot be inverted
var ErrSingularMatrix = errors.New("volume: singular world matrix")

// OrientedBox is a trigger region: a world matrix, half-extents along the
// local axes and an optional center offset expressed in local space.
type OrientedBox struct {
	World       mgl64.Mat4
	HalfExtents mgl64.Vec3
	Offset      mgl64.Vec3
}

// NewOrientedBox creates a box centered on the origin of its local space
func NewOrientedBox(world mgl64.Mat4, halfExtents mgl64.Vec3) OrientedBox {
	return OrientedBox{
		World:       world,
		HalfExtents: halfExtents,
	}
}

// ToLocal brings a world-space point into the box local space.
// The offset is not applied.
func (b OrientedBox) ToLocal(point mgl64.Vec3) (mgl64.Vec3, error) {
	if !Invertible(b.World) {
		return mgl64.Vec3{}, ErrSingularMatrix
	}

	return b.World.Inv().Mul4x1(point.Vec4(1)).Vec3(), nil
}

// Contains reports whether point lies strictly inside the box.
// A point on a face is outside, so are points of boxes with a zero half-extent.
func (b OrientedBox) Contains(point mgl64.Vec3) (bool, error) {
	local, err := b.ToLocal(point)
	if err != nil {
		return false, err
	}

	for axis := 0; axis < 3; axis++ {
		if !(math.Abs(local[axis]-b.Offset[axis]) < b.HalfExtents[axis]) {
			return false, nil
		}
	}

	return true, nil
}

// Contains is the free-function form of OrientedBox.Contains
func Contains(point mgl64.Vec3, box OrientedBox) (bool, error) {
	return box.Contains(point)
}

// ComputeAABB returns the world-space bounds of the 8 corners of the box
func (b OrientedBox) ComputeAABB() AABB {
	hx, hy, hz := b.HalfExtents.X(), b.HalfExtents.Y(), b.HalfExtents.Z()
	corners := [8]mgl64.Vec3{
		{-hx, -hy, -hz},
		{+hx, -hy, -hz},
		{-hx, +hy, -hz},
		{+hx, +hy, -hz},
		{-hx, -hy, +hz},
		{+hx, -hy, +hz},
		{-hx, +hy, +hz},
		{+hx, +hy, +hz},
	}

	worldCorner := b.World.Mul4x1(corners[0].Add(b.Offset).Vec4(1)).Vec3()
	min := worldCorner
	max := worldCorner

	for i := 1; i < 8; i++ {
		worldCorner = b.World.Mul4x1(corners[i].Add(b.Offset).Vec4(1)).Vec3()

		min[0] = math.Min(min[0], worldCorner[0])
		min[1] = math.Min(min[1], worldCorner[1])
		min[2] = math.Min(min[2], worldCorner[2])

		max[0] = math.Max(max[0], worldCorner[0])
		max[1] = math.Max(max[1], worldCorner[1])
		max[2] = math.Max(max[2], worldCorner[2])
	}

	return AABB{Min: min, Max: max}
}

// Invertible reports whether m has a usable inverse.
// It uses the same determinant threshold as mgl64.Mat4.Inv.
func Invertible(m mgl64.Mat4) bool {
	det := m.Det()
	if math.IsNaN(det) || math.IsInf(det, 0) {
		return false
	}

	return !mgl64.FloatEqual(det, 0)
}
