package pipeline

import (
	"errors"

	"teapot/internal/hal"
)

// noCopy makes go vet's copylocks check flag copies of the embedding struct.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Config is the fixed-function state of a graphics pipeline. It refers to a
// render pass and layout it does not own, so it is passed by pointer and
// must not be copied.
type Config struct {
	noCopy noCopy

	VertexBindings   []hal.VertexBinding
	VertexAttributes []hal.VertexAttribute

	InputAssembly        hal.InputAssemblyState
	Viewport             hal.ViewportState
	Rasterization        hal.RasterizationState
	Multisample          hal.MultisampleState
	ColorBlendAttachment hal.ColorBlendAttachment
	ColorBlend           hal.ColorBlendState
	DepthStencil         hal.DepthStencilState
	DynamicStates        []hal.DynamicState

	PipelineLayout hal.PipelineLayout
	RenderPass     hal.RenderPass
	Subpass        uint32
}

// DefaultConfig fills c with opaque, depth-tested triangle rendering and a
// dynamic viewport and scissor. Vertex layout, pipeline layout and render
// pass are left to the caller.
func DefaultConfig(c *Config) {
	c.InputAssembly = hal.InputAssemblyState{
		Topology:         hal.TopologyTriangleList,
		PrimitiveRestart: false,
	}

	c.Viewport = hal.ViewportState{ViewportCount: 1, ScissorCount: 1}

	c.Rasterization = hal.RasterizationState{
		DepthClamp:        false,
		RasterizerDiscard: false,
		PolygonMode:       hal.PolygonModeFill,
		LineWidth:         1,
		CullMode:          hal.CullModeNone,
		FrontFace:         hal.FrontFaceClockwise,
		DepthBias:         false,
	}

	c.Multisample = hal.MultisampleState{
		Samples:          1,
		SampleShading:    false,
		MinSampleShading: 1,
	}

	c.ColorBlendAttachment = hal.ColorBlendAttachment{
		BlendEnable: false,
		SrcColor:    hal.BlendFactorOne,
		DstColor:    hal.BlendFactorZero,
		ColorOp:     hal.BlendOpAdd,
		SrcAlpha:    hal.BlendFactorOne,
		DstAlpha:    hal.BlendFactorZero,
		AlphaOp:     hal.BlendOpAdd,
		WriteMask:   hal.ColorComponentAll,
	}
	c.ColorBlend = hal.ColorBlendState{LogicOpEnable: false}

	c.DepthStencil = hal.DepthStencilState{
		DepthTest:       true,
		DepthWrite:      true,
		CompareOp:       hal.CompareLess,
		DepthBoundsTest: false,
		MinDepthBounds:  0,
		MaxDepthBounds:  1,
		StencilTest:     false,
	}

	c.DynamicStates = []hal.DynamicState{hal.DynamicStateViewport, hal.DynamicStateScissor}
}

// Validate checks that the handles a pipeline cannot be built without are set.
func (c *Config) Validate() error {
	if c.PipelineLayout.IsNil() {
		return errors.New("cannot create graphics pipeline: no pipeline layout provided in config")
	}
	if c.RenderPass.IsNil() {
		return errors.New("cannot create graphics pipeline: no render pass provided in config")
	}
	return nil
}

func (c *Config) graphicsPipelineInfo(stages []hal.ShaderStageInfo) hal.GraphicsPipelineInfo {
	blend := c.ColorBlend
	blend.Attachments = []hal.ColorBlendAttachment{c.ColorBlendAttachment}
	return hal.GraphicsPipelineInfo{
		Stages:           stages,
		VertexBindings:   c.VertexBindings,
		VertexAttributes: c.VertexAttributes,
		InputAssembly:    c.InputAssembly,
		Viewport:         c.Viewport,
		Rasterization:    c.Rasterization,
		Multisample:      c.Multisample,
		ColorBlend:       blend,
		DepthStencil:     c.DepthStencil,
		DynamicStates:    c.DynamicStates,
		Layout:           c.PipelineLayout,
		RenderPass:       c.RenderPass,
		Subpass:          c.Subpass,
	}
}
