package hal

type PrimitiveTopology int

const (
	TopologyTriangleList PrimitiveTopology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

type PolygonMode int

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
	PolygonModePoint
)

type CullMode int

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

type FrontFace int

const (
	FrontFaceClockwise FrontFace = iota
	FrontFaceCounterClockwise
)

type CompareOp int

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareEqual
	CompareLessOrEqual
	CompareGreater
	CompareAlways
)

type BlendFactor int

const (
	BlendFactorZero BlendFactor = iota
	BlendFactorOne
	BlendFactorSrcAlpha
	BlendFactorOneMinusSrcAlpha
)

type BlendOp int

const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
)

type ColorComponent uint32

const (
	ColorComponentR ColorComponent = 1 << iota
	ColorComponentG
	ColorComponentB
	ColorComponentA

	ColorComponentAll = ColorComponentR | ColorComponentG | ColorComponentB | ColorComponentA
)

type DynamicState int

const (
	DynamicStateViewport DynamicState = iota
	DynamicStateScissor
)

type VertexBinding struct {
	Binding uint32
	Stride  uint32
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type InputAssemblyState struct {
	Topology         PrimitiveTopology
	PrimitiveRestart bool
}

// ViewportState holds counts only when viewport and scissor are dynamic.
type ViewportState struct {
	Viewports []Viewport
	Scissors  []Rect2D
	// ViewportCount and ScissorCount are used when the slices are empty.
	ViewportCount uint32
	ScissorCount  uint32
}

type RasterizationState struct {
	DepthClamp        bool
	RasterizerDiscard bool
	PolygonMode       PolygonMode
	LineWidth         float32
	CullMode          CullMode
	FrontFace         FrontFace
	DepthBias         bool
	DepthBiasConstant float32
	DepthBiasClamp    float32
	DepthBiasSlope    float32
}

type MultisampleState struct {
	Samples          uint32
	SampleShading    bool
	MinSampleShading float32
	AlphaToCoverage  bool
	AlphaToOne       bool
}

type ColorBlendAttachment struct {
	BlendEnable bool
	SrcColor    BlendFactor
	DstColor    BlendFactor
	ColorOp     BlendOp
	SrcAlpha    BlendFactor
	DstAlpha    BlendFactor
	AlphaOp     BlendOp
	WriteMask   ColorComponent
}

type ColorBlendState struct {
	LogicOpEnable  bool
	Attachments    []ColorBlendAttachment
	BlendConstants [4]float32
}

type DepthStencilState struct {
	DepthTest       bool
	DepthWrite      bool
	CompareOp       CompareOp
	DepthBoundsTest bool
	MinDepthBounds  float32
	MaxDepthBounds  float32
	StencilTest     bool
}

type ShaderStageInfo struct {
	Stage  ShaderStage
	Module ShaderModule
	Entry  string
}

// GraphicsPipelineInfo is everything needed to build a graphics pipeline.
type GraphicsPipelineInfo struct {
	Stages           []ShaderStageInfo
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	InputAssembly    InputAssemblyState
	Viewport         ViewportState
	Rasterization    RasterizationState
	Multisample      MultisampleState
	ColorBlend       ColorBlendState
	DepthStencil     DepthStencilState
	DynamicStates    []DynamicState
	Layout           PipelineLayout
	RenderPass       RenderPass
	Subpass          uint32
}
