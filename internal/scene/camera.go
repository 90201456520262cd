package scene

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera holds a projection and a view matrix. Clip space has Y pointing
// down and depth in [0, 1].
type Camera struct {
	projection mgl32.Mat4
	view       mgl32.Mat4
}

func NewCamera() *Camera {
	return &Camera{projection: mgl32.Ident4(), view: mgl32.Ident4()}
}

// at addresses a matrix element by column and row.
func at(col, row int) int { return col*4 + row }

func (c *Camera) SetOrthographicProjection(left, right, top, bottom, near, far float32) {
	p := mgl32.Ident4()
	p[at(0, 0)] = 2 / (right - left)
	p[at(1, 1)] = 2 / (bottom - top)
	p[at(2, 2)] = 1 / (far - near)
	p[at(3, 0)] = -(right + left) / (right - left)
	p[at(3, 1)] = -(bottom + top) / (bottom - top)
	p[at(3, 2)] = -near / (far - near)
	c.projection = p
}

// SetPerspectiveProjection panics on a degenerate aspect ratio.
func (c *Camera) SetPerspectiveProjection(fovy, aspect, near, far float32) {
	if math32.Abs(aspect) < 1e-6 {
		panic("scene: perspective aspect ratio is zero")
	}
	tanHalf := math32.Tan(fovy / 2)
	var p mgl32.Mat4
	p[at(0, 0)] = 1 / (aspect * tanHalf)
	p[at(1, 1)] = 1 / tanHalf
	p[at(2, 2)] = far / (far - near)
	p[at(2, 3)] = 1
	p[at(3, 2)] = -(far * near) / (far - near)
	c.projection = p
}

func (c *Camera) setView(u, v, w, position mgl32.Vec3) {
	m := mgl32.Ident4()
	m[at(0, 0)], m[at(1, 0)], m[at(2, 0)] = u[0], u[1], u[2]
	m[at(0, 1)], m[at(1, 1)], m[at(2, 1)] = v[0], v[1], v[2]
	m[at(0, 2)], m[at(1, 2)], m[at(2, 2)] = w[0], w[1], w[2]
	m[at(3, 0)] = -u.Dot(position)
	m[at(3, 1)] = -v.Dot(position)
	m[at(3, 2)] = -w.Dot(position)
	c.view = m
}

// SetViewDirection looks from position along direction. up defaults to -Y
// when zero.
func (c *Camera) SetViewDirection(position, direction, up mgl32.Vec3) {
	if up.Len() == 0 {
		up = mgl32.Vec3{0, -1, 0}
	}
	w := direction.Normalize()
	u := w.Cross(up).Normalize()
	v := w.Cross(u)
	c.setView(u, v, w, position)
}

func (c *Camera) SetViewTarget(position, target, up mgl32.Vec3) {
	c.SetViewDirection(position, target.Sub(position), up)
}

// SetViewYXZ builds the view from Tait-Bryan angles applied Y, X, Z.
func (c *Camera) SetViewYXZ(position, rotation mgl32.Vec3) {
	c3, s3 := math32.Cos(rotation[2]), math32.Sin(rotation[2])
	c2, s2 := math32.Cos(rotation[0]), math32.Sin(rotation[0])
	c1, s1 := math32.Cos(rotation[1]), math32.Sin(rotation[1])
	u := mgl32.Vec3{c1*c3 + s1*s2*s3, c2 * s3, c1*s2*s3 - c3*s1}
	v := mgl32.Vec3{c3*s1*s2 - c1*s3, c2 * c3, c1*c3*s2 + s1*s3}
	w := mgl32.Vec3{c2 * s1, -s2, c1 * c2}
	c.setView(u, v, w, position)
}

func (c *Camera) Projection() mgl32.Mat4 { return c.projection }
func (c *Camera) View() mgl32.Mat4       { return c.view }

// ViewProjection returns projection * view.
func (c *Camera) ViewProjection() mgl32.Mat4 { return c.projection.Mul4(c.view) }
