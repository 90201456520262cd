// Package scene holds the things a frame draws: models, textures, game
// objects and the camera.
package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"teapot/internal/engine"
	"teapot/internal/hal"
)

// Model is vertex data, and optionally index data, in device-local buffers.
type Model struct {
	dev *engine.Device

	vertexBuffer hal.Buffer
	vertexAlloc  hal.Allocation
	vertexCount  uint32

	indexBuffer hal.Buffer
	indexAlloc  hal.Allocation
	indexCount  uint32
}

// NewModel uploads vertices and indices through host-visible staging
// buffers. indices may be empty, in which case Draw issues a non-indexed
// draw.
func NewModel(dev *engine.Device, vertices []Vertex, indices []uint32) (*Model, error) {
	if len(vertices) < 3 {
		return nil, fmt.Errorf("vertex count must be at least 3, got %d", len(vertices))
	}
	m := &Model{dev: dev, vertexCount: uint32(len(vertices))}

	var err error
	m.vertexBuffer, m.vertexAlloc, err = upload(dev, encodeVertices(vertices), hal.BufferUsageVertex)
	if err != nil {
		return nil, errors.Wrap(err, "create vertex buffer")
	}
	if len(indices) > 0 {
		m.indexCount = uint32(len(indices))
		m.indexBuffer, m.indexAlloc, err = upload(dev, encodeIndices(indices), hal.BufferUsageIndex)
		if err != nil {
			m.Destroy()
			return nil, errors.Wrap(err, "create index buffer")
		}
	}
	return m, nil
}

func upload(dev *engine.Device, data []byte, usage hal.BufferUsage) (hal.Buffer, hal.Allocation, error) {
	size := uint64(len(data))
	staging, stagingAlloc, err := dev.CreateBuffer(size, hal.BufferUsageTransferSrc, hal.MemoryCPUOnly)
	if err != nil {
		return hal.Buffer{}, hal.Allocation{}, err
	}
	defer dev.Driver().DestroyBuffer(staging, stagingAlloc)

	if err := dev.WriteBuffer(stagingAlloc, data); err != nil {
		return hal.Buffer{}, hal.Allocation{}, err
	}

	buf, alloc, err := dev.CreateBuffer(size, usage|hal.BufferUsageTransferDst, hal.MemoryGPUOnly)
	if err != nil {
		return hal.Buffer{}, hal.Allocation{}, err
	}
	if err := dev.CopyBuffer(staging, buf, size); err != nil {
		dev.Driver().DestroyBuffer(buf, alloc)
		return hal.Buffer{}, hal.Allocation{}, err
	}
	return buf, alloc, nil
}

func (m *Model) VertexCount() uint32 { return m.vertexCount }
func (m *Model) IndexCount() uint32  { return m.indexCount }
func (m *Model) Indexed() bool       { return m.indexCount > 0 }

// Bind binds the vertex buffer and, for indexed models, the index buffer.
func (m *Model) Bind(cb hal.CommandBuffer) {
	drv := m.dev.Driver()
	drv.CmdBindVertexBuffers(cb, 0, []hal.Buffer{m.vertexBuffer}, []uint64{0})
	if m.Indexed() {
		drv.CmdBindIndexBuffer(cb, m.indexBuffer, 0, hal.IndexTypeUint32)
	}
}

func (m *Model) Draw(cb hal.CommandBuffer) {
	drv := m.dev.Driver()
	if m.Indexed() {
		drv.CmdDrawIndexed(cb, m.indexCount, 1, 0, 0, 0)
		return
	}
	drv.CmdDraw(cb, m.vertexCount, 1, 0, 0)
}

// Destroy releases the index buffer and then the vertex buffer.
func (m *Model) Destroy() {
	if m == nil || m.dev == nil {
		return
	}
	drv := m.dev.Driver()
	if !m.indexBuffer.IsNil() {
		drv.DestroyBuffer(m.indexBuffer, m.indexAlloc)
		m.indexBuffer, m.indexAlloc = hal.Buffer{}, hal.Allocation{}
	}
	if !m.vertexBuffer.IsNil() {
		drv.DestroyBuffer(m.vertexBuffer, m.vertexAlloc)
		m.vertexBuffer, m.vertexAlloc = hal.Buffer{}, hal.Allocation{}
	}
	m.dev = nil
}

// CubeVertices returns a unit cube centred on offset with one color per
// face. The faces are wound for a Y-down clip space.
func CubeVertices(offset mgl32.Vec3) ([]Vertex, []uint32) {
	type face struct {
		color   mgl32.Vec3
		corners [4]mgl32.Vec3
	}
	faces := []face{
		// left (x = -.5), white
		{mgl32.Vec3{.9, .9, .9}, [4]mgl32.Vec3{{-.5, -.5, -.5}, {-.5, .5, .5}, {-.5, -.5, .5}, {-.5, .5, -.5}}},
		// right (x = .5), yellow
		{mgl32.Vec3{.8, .8, .1}, [4]mgl32.Vec3{{.5, -.5, -.5}, {.5, .5, .5}, {.5, -.5, .5}, {.5, .5, -.5}}},
		// top (y = -.5), orange
		{mgl32.Vec3{.9, .6, .1}, [4]mgl32.Vec3{{-.5, -.5, -.5}, {.5, -.5, .5}, {-.5, -.5, .5}, {.5, -.5, -.5}}},
		// bottom (y = .5), red
		{mgl32.Vec3{.8, .1, .1}, [4]mgl32.Vec3{{-.5, .5, -.5}, {.5, .5, .5}, {-.5, .5, .5}, {.5, .5, -.5}}},
		// nose (z = .5), blue
		{mgl32.Vec3{.1, .1, .8}, [4]mgl32.Vec3{{-.5, -.5, .5}, {.5, .5, .5}, {-.5, .5, .5}, {.5, -.5, .5}}},
		// tail (z = -.5), green
		{mgl32.Vec3{.1, .8, .1}, [4]mgl32.Vec3{{-.5, -.5, -.5}, {.5, .5, -.5}, {-.5, .5, -.5}, {.5, -.5, -.5}}},
	}
	uvs := [4]mgl32.Vec2{{0, 0}, {1, 1}, {0, 1}, {1, 0}}

	vertices := make([]Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for i, f := range faces {
		for c, p := range f.corners {
			vertices = append(vertices, Vertex{Position: p.Add(offset), Color: f.color, UV: uvs[c]})
		}
		base := uint32(i * 4)
		indices = append(indices, base, base+1, base+2, base, base+3, base+1)
	}
	return vertices, indices
}

// CubeModel uploads the cube returned by CubeVertices.
func CubeModel(dev *engine.Device, offset mgl32.Vec3) (*Model, error) {
	vertices, indices := CubeVertices(offset)
	return NewModel(dev, vertices, indices)
}
