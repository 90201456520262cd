package scene

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"teapot/internal/hal"
)

// Vertex is the per-vertex input of the simple shader.
type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	UV       mgl32.Vec2
}

// VertexSize is the byte stride of an encoded Vertex.
const VertexSize = 8 * 4

// VertexBindings describes the single interleaved vertex buffer.
func VertexBindings() []hal.VertexBinding {
	return []hal.VertexBinding{{Binding: 0, Stride: VertexSize}}
}

// VertexAttributes maps Vertex fields to shader locations 0, 1 and 2.
func VertexAttributes() []hal.VertexAttribute {
	return []hal.VertexAttribute{
		{Location: 0, Binding: 0, Format: hal.FormatR32G32B32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: hal.FormatR32G32B32Sfloat, Offset: 12},
		{Location: 2, Binding: 0, Format: hal.FormatR32G32Sfloat, Offset: 24},
	}
}

func putFloats(b []byte, fs ...float32) []byte {
	for _, f := range fs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

func encodeVertices(vs []Vertex) []byte {
	b := make([]byte, 0, len(vs)*VertexSize)
	for _, v := range vs {
		b = putFloats(b, v.Position[0], v.Position[1], v.Position[2])
		b = putFloats(b, v.Color[0], v.Color[1], v.Color[2])
		b = putFloats(b, v.UV[0], v.UV[1])
	}
	return b
}

func encodeIndices(is []uint32) []byte {
	b := make([]byte, 0, len(is)*4)
	for _, i := range is {
		b = binary.LittleEndian.AppendUint32(b, i)
	}
	return b
}
