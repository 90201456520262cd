package hal

import (
	"fmt"
	"math"
)

// NoTimeout makes a fence wait or acquire block until it completes.
const NoTimeout = math.MaxUint64

// Result is the status of a presentation-engine operation that did not fail.
type Result int

const (
	ResultSuccess Result = iota
	// ResultSuboptimal means the swapchain still works but no longer matches
	// the surface exactly.
	ResultSuboptimal
	// ResultOutOfDate means the swapchain can no longer present to the
	// surface and must be rebuilt.
	ResultOutOfDate
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultSuboptimal:
		return "SUBOPTIMAL"
	case ResultOutOfDate:
		return "OUT_OF_DATE"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

type Format int

const (
	FormatUndefined Format = iota
	FormatB8G8R8A8Srgb
	FormatB8G8R8A8Unorm
	FormatR8G8B8A8Srgb
	FormatR8G8B8A8Unorm
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
	FormatD32Sfloat
	FormatD32SfloatS8Uint
	FormatD24UnormS8Uint
)

var formatNames = [...]string{
	FormatUndefined:       "UNDEFINED",
	FormatB8G8R8A8Srgb:    "B8G8R8A8_SRGB",
	FormatB8G8R8A8Unorm:   "B8G8R8A8_UNORM",
	FormatR8G8B8A8Srgb:    "R8G8B8A8_SRGB",
	FormatR8G8B8A8Unorm:   "R8G8B8A8_UNORM",
	FormatR32G32Sfloat:    "R32G32_SFLOAT",
	FormatR32G32B32Sfloat: "R32G32B32_SFLOAT",
	FormatD32Sfloat:       "D32_SFLOAT",
	FormatD32SfloatS8Uint: "D32_SFLOAT_S8_UINT",
	FormatD24UnormS8Uint:  "D24_UNORM_S8_UINT",
}

func (f Format) String() string {
	if f >= 0 && int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// HasStencil reports whether a depth format carries a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD32SfloatS8Uint || f == FormatD24UnormS8Uint
}

type ColorSpace int

const (
	ColorSpaceSrgbNonlinear ColorSpace = iota
	ColorSpaceOther
)

type PresentMode int

const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFifo
	PresentModeFifoRelaxed
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	}
	return fmt.Sprintf("PresentMode(%d)", int(m))
}

// ParsePresentMode parses the names produced by PresentMode.String.
func ParsePresentMode(s string) (PresentMode, error) {
	for _, m := range []PresentMode{PresentModeImmediate, PresentModeMailbox, PresentModeFifo, PresentModeFifoRelaxed} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown present mode %q", s)
}

type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutTransferDstOptimal
	ImageLayoutShaderReadOnlyOptimal
	ImageLayoutColorAttachmentOptimal
	ImageLayoutDepthStencilAttachmentOptimal
	ImageLayoutPresentSrc
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "UNDEFINED"
	case ImageLayoutTransferDstOptimal:
		return "TRANSFER_DST_OPTIMAL"
	case ImageLayoutShaderReadOnlyOptimal:
		return "SHADER_READ_ONLY_OPTIMAL"
	case ImageLayoutColorAttachmentOptimal:
		return "COLOR_ATTACHMENT_OPTIMAL"
	case ImageLayoutDepthStencilAttachmentOptimal:
		return "DEPTH_STENCIL_ATTACHMENT_OPTIMAL"
	case ImageLayoutPresentSrc:
		return "PRESENT_SRC"
	}
	return fmt.Sprintf("ImageLayout(%d)", int(l))
}

type ImageTiling int

const (
	TilingOptimal ImageTiling = iota
	TilingLinear
)

type FormatFeature uint32

const (
	FormatFeatureSampledImage FormatFeature = 1 << iota
	FormatFeatureColorAttachment
	FormatFeatureDepthStencilAttachment
)

// FormatProperties lists the features a format supports per tiling.
type FormatProperties struct {
	LinearTiling  FormatFeature
	OptimalTiling FormatFeature
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageUniform
)

type ImageUsage uint32

const (
	ImageUsageTransferDst ImageUsage = 1 << iota
	ImageUsageSampled
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
)

// MemoryUsage is a residency hint for allocations.
type MemoryUsage int

const (
	// MemoryGPUOnly is device-local memory the CPU never maps.
	MemoryGPUOnly MemoryUsage = iota
	// MemoryCPUToGPU is host-visible memory written by the CPU and read by the GPU.
	MemoryCPUToGPU
	// MemoryCPUOnly is host memory used as a transfer source.
	MemoryCPUOnly
)

type ImageAspect uint32

const (
	AspectColor ImageAspect = 1 << iota
	AspectDepth
	AspectStencil
)

type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageTransfer
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageColorAttachmentOutput
)

type Access uint32

const (
	AccessTransferWrite Access = 1 << iota
	AccessShaderRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentWrite
)

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
)

type LoadOp int

const (
	LoadOpDontCare LoadOp = iota
	LoadOpClear
	LoadOpLoad
)

type StoreOp int

const (
	StoreOpDontCare StoreOp = iota
	StoreOpStore
)

type IndexType int

const (
	IndexTypeUint32 IndexType = iota
	IndexTypeUint16
)

type DescriptorType int

const (
	DescriptorSampledImage DescriptorType = iota
	DescriptorSampler
	DescriptorUniformBuffer
)

type Extent2D struct {
	Width, Height uint32
}

// IsZero reports whether either dimension is zero, as with a minimized window.
func (e Extent2D) IsZero() bool { return e.Width == 0 || e.Height == 0 }

type Offset2D struct {
	X, Y int32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// SurfaceCapabilities mirrors what the presentation engine reports for a
// surface. A CurrentExtent of math.MaxUint32 in width means the application
// picks the extent.
type SurfaceCapabilities struct {
	MinImageCount  uint32
	MaxImageCount  uint32
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
	// CurrentTransform is passed back unchanged as the pre-transform.
	CurrentTransform uint32
}

type SwapchainSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

type SwapchainInfo struct {
	MinImageCount uint32
	Format        SurfaceFormat
	Extent        Extent2D
	PresentMode   PresentMode
	PreTransform  uint32
	// Old is the swapchain being replaced, or null.
	Old Swapchain
}

type BufferInfo struct {
	Size  uint64
	Usage BufferUsage
}

type ImageInfo struct {
	Extent      Extent2D
	Format      Format
	Tiling      ImageTiling
	Usage       ImageUsage
	MipLevels   uint32
	ArrayLayers uint32
}

type ImageViewInfo struct {
	Image  Image
	Format Format
	Aspect ImageAspect
}

type SamplerInfo struct {
	Linear bool
	Repeat bool
}

type AttachmentInfo struct {
	Format        Format
	LoadOp        LoadOp
	StoreOp       StoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
	// SubpassLayout is the layout the attachment has inside the subpass.
	SubpassLayout ImageLayout
}

// SubpassDependency orders the single subpass against work outside the pass.
type SubpassDependency struct {
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
}

// RenderPassInfo describes a render pass with one color attachment, one depth
// attachment and a single graphics subpass.
type RenderPassInfo struct {
	Color      AttachmentInfo
	Depth      AttachmentInfo
	Dependency SubpassDependency
}

type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

type RenderPassBeginInfo struct {
	RenderPass   RenderPass
	Framebuffer  Framebuffer
	RenderArea   Rect2D
	ClearColor   [4]float32
	ClearDepth   float32
	ClearStencil uint32
}

type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
	Aspect    ImageAspect
	SrcStage  PipelineStage
	DstStage  PipelineStage
}

type BufferImageCopy struct {
	Width, Height uint32
	LayerCount    uint32
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
	// Fence is signaled when the submission completes. It may be null.
	Fence Fence
}

type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     uint32
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type PipelineLayoutInfo struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorWrite struct {
	Set       DescriptorSet
	Binding   uint32
	Type      DescriptorType
	ImageView ImageView
	Layout    ImageLayout
	Sampler   Sampler
	Buffer    Buffer
	Offset    uint64
	Range     uint64
}

// AllocatorStats reports live device memory allocations.
type AllocatorStats struct {
	Allocations int
	Bytes       uint64
}

type DeviceProperties struct {
	Name     string
	Discrete bool
}
