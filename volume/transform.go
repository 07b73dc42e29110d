package volume

import "github.com/go-gl/mathgl/mgl64"

// Transform is a snapshot of an entity placement in 3D space
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Scale    mgl64.Vec3
}

// NewTransform creates an identity transform
func NewTransform() Transform {
	return Transform{
		Position: mgl64.Vec3{0, 0, 0},
		Rotation: mgl64.QuatIdent(),
		Scale:    mgl64.Vec3{1, 1, 1},
	}
}

// Matrix composes translation, rotation and scale (T * R * S).
// A zero quaternion is read as the identity rotation.
func (t Transform) Matrix() mgl64.Mat4 {
	return mgl64.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).
		Mul4(t.Rotation.Normalize().Mat4()).
		Mul4(mgl64.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}
