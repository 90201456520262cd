package scene

import "github.com/go-gl/mathgl/mgl32"

// TransformComponent places an object in the world. Rotation holds Tait-Bryan
// angles in radians, applied in Y, X, Z order.
type TransformComponent struct {
	Translation mgl32.Vec3
	Scale       mgl32.Vec3
	Rotation    mgl32.Vec3
}

// NewTransform returns the identity transform.
func NewTransform() TransformComponent {
	return TransformComponent{Scale: mgl32.Vec3{1, 1, 1}}
}

// Mat4 returns translate * Ry * Rx * Rz * scale.
func (t TransformComponent) Mat4() mgl32.Mat4 {
	m := mgl32.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2])
	m = m.Mul4(mgl32.HomogRotate3DY(t.Rotation[1]))
	m = m.Mul4(mgl32.HomogRotate3DX(t.Rotation[0]))
	m = m.Mul4(mgl32.HomogRotate3DZ(t.Rotation[2]))
	return m.Mul4(mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
}
