package gpu

import (
	vk "github.com/vulkan-go/vulkan"

	"teapot/internal/hal"
)

var formats = map[hal.Format]vk.Format{
	hal.FormatUndefined:       vk.FormatUndefined,
	hal.FormatB8G8R8A8Srgb:    vk.FormatB8g8r8a8Srgb,
	hal.FormatB8G8R8A8Unorm:   vk.FormatB8g8r8a8Unorm,
	hal.FormatR8G8B8A8Srgb:    vk.FormatR8g8b8a8Srgb,
	hal.FormatR8G8B8A8Unorm:   vk.FormatR8g8b8a8Unorm,
	hal.FormatR32G32Sfloat:    vk.FormatR32g32Sfloat,
	hal.FormatR32G32B32Sfloat: vk.FormatR32g32b32Sfloat,
	hal.FormatD32Sfloat:       vk.FormatD32Sfloat,
	hal.FormatD32SfloatS8Uint: vk.FormatD32SfloatS8Uint,
	hal.FormatD24UnormS8Uint:  vk.FormatD24UnormS8Uint,
}

func toVkFormat(f hal.Format) vk.Format { return formats[f] }

// fromVkFormat maps formats the engine does not know to FormatUndefined.
func fromVkFormat(f vk.Format) hal.Format {
	for h, v := range formats {
		if v == f {
			return h
		}
	}
	return hal.FormatUndefined
}

// toVkColorSpace only ever asks for sRGB nonlinear; other spaces are never
// selected by the swapchain.
func toVkColorSpace(hal.ColorSpace) vk.ColorSpace {
	return vk.ColorSpaceSrgbNonlinear
}

func fromVkColorSpace(c vk.ColorSpace) hal.ColorSpace {
	if c == vk.ColorSpaceSrgbNonlinear {
		return hal.ColorSpaceSrgbNonlinear
	}
	return hal.ColorSpaceOther
}

var presentModes = map[hal.PresentMode]vk.PresentMode{
	hal.PresentModeImmediate:   vk.PresentModeImmediate,
	hal.PresentModeMailbox:     vk.PresentModeMailbox,
	hal.PresentModeFifo:        vk.PresentModeFifo,
	hal.PresentModeFifoRelaxed: vk.PresentModeFifoRelaxed,
}

func toVkPresentMode(m hal.PresentMode) vk.PresentMode { return presentModes[m] }

func fromVkPresentMode(m vk.PresentMode) (hal.PresentMode, bool) {
	for h, v := range presentModes {
		if v == m {
			return h, true
		}
	}
	return 0, false
}

var layouts = map[hal.ImageLayout]vk.ImageLayout{
	hal.ImageLayoutUndefined:                     vk.ImageLayoutUndefined,
	hal.ImageLayoutTransferDstOptimal:            vk.ImageLayoutTransferDstOptimal,
	hal.ImageLayoutShaderReadOnlyOptimal:         vk.ImageLayoutShaderReadOnlyOptimal,
	hal.ImageLayoutColorAttachmentOptimal:        vk.ImageLayoutColorAttachmentOptimal,
	hal.ImageLayoutDepthStencilAttachmentOptimal: vk.ImageLayoutDepthStencilAttachmentOptimal,
	hal.ImageLayoutPresentSrc:                    vk.ImageLayoutPresentSrc,
}

func toVkLayout(l hal.ImageLayout) vk.ImageLayout { return layouts[l] }

func fromVkFeatures(f vk.FormatFeatureFlags) hal.FormatFeature {
	var out hal.FormatFeature
	if f&vk.FormatFeatureFlags(vk.FormatFeatureSampledImageBit) != 0 {
		out |= hal.FormatFeatureSampledImage
	}
	if f&vk.FormatFeatureFlags(vk.FormatFeatureColorAttachmentBit) != 0 {
		out |= hal.FormatFeatureColorAttachment
	}
	if f&vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit) != 0 {
		out |= hal.FormatFeatureDepthStencilAttachment
	}
	return out
}

func toVkBufferUsage(u hal.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	if u&hal.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageTransferSrcBit
	}
	if u&hal.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageTransferDstBit
	}
	if u&hal.BufferUsageVertex != 0 {
		out |= vk.BufferUsageVertexBufferBit
	}
	if u&hal.BufferUsageIndex != 0 {
		out |= vk.BufferUsageIndexBufferBit
	}
	if u&hal.BufferUsageUniform != 0 {
		out |= vk.BufferUsageUniformBufferBit
	}
	return vk.BufferUsageFlags(out)
}

func toVkImageUsage(u hal.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	if u&hal.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageTransferDstBit
	}
	if u&hal.ImageUsageSampled != 0 {
		out |= vk.ImageUsageSampledBit
	}
	if u&hal.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageColorAttachmentBit
	}
	if u&hal.ImageUsageDepthStencilAttachment != 0 {
		out |= vk.ImageUsageDepthStencilAttachmentBit
	}
	return vk.ImageUsageFlags(out)
}

// memoryProperties picks the memory flags for a residency hint.
func memoryProperties(u hal.MemoryUsage) vk.MemoryPropertyFlagBits {
	switch u {
	case hal.MemoryCPUToGPU, hal.MemoryCPUOnly:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	return vk.MemoryPropertyDeviceLocalBit
}

func toVkAspect(a hal.ImageAspect) vk.ImageAspectFlags {
	var out vk.ImageAspectFlagBits
	if a&hal.AspectColor != 0 {
		out |= vk.ImageAspectColorBit
	}
	if a&hal.AspectDepth != 0 {
		out |= vk.ImageAspectDepthBit
	}
	if a&hal.AspectStencil != 0 {
		out |= vk.ImageAspectStencilBit
	}
	return vk.ImageAspectFlags(out)
}

func toVkStages(s hal.PipelineStage) vk.PipelineStageFlags {
	var out vk.PipelineStageFlagBits
	if s&hal.StageTopOfPipe != 0 {
		out |= vk.PipelineStageTopOfPipeBit
	}
	if s&hal.StageTransfer != 0 {
		out |= vk.PipelineStageTransferBit
	}
	if s&hal.StageVertexShader != 0 {
		out |= vk.PipelineStageVertexShaderBit
	}
	if s&hal.StageFragmentShader != 0 {
		out |= vk.PipelineStageFragmentShaderBit
	}
	if s&hal.StageEarlyFragmentTests != 0 {
		out |= vk.PipelineStageEarlyFragmentTestsBit
	}
	if s&hal.StageColorAttachmentOutput != 0 {
		out |= vk.PipelineStageColorAttachmentOutputBit
	}
	return vk.PipelineStageFlags(out)
}

func toVkAccess(a hal.Access) vk.AccessFlags {
	var out vk.AccessFlagBits
	if a&hal.AccessTransferWrite != 0 {
		out |= vk.AccessTransferWriteBit
	}
	if a&hal.AccessShaderRead != 0 {
		out |= vk.AccessShaderReadBit
	}
	if a&hal.AccessColorAttachmentWrite != 0 {
		out |= vk.AccessColorAttachmentWriteBit
	}
	if a&hal.AccessDepthStencilAttachmentWrite != 0 {
		out |= vk.AccessDepthStencilAttachmentWriteBit
	}
	return vk.AccessFlags(out)
}

func toVkShaderStages(s hal.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlagBits
	if s&hal.ShaderStageVertex != 0 {
		out |= vk.ShaderStageVertexBit
	}
	if s&hal.ShaderStageFragment != 0 {
		out |= vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageFlags(out)
}

func toVkShaderStage(s hal.ShaderStage) vk.ShaderStageFlagBits {
	if s == hal.ShaderStageFragment {
		return vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageVertexBit
}

func toVkLoadOp(op hal.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case hal.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case hal.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

func toVkStoreOp(op hal.StoreOp) vk.AttachmentStoreOp {
	if op == hal.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func toVkIndexType(t hal.IndexType) vk.IndexType {
	if t == hal.IndexTypeUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func toVkDescriptorType(t hal.DescriptorType) vk.DescriptorType {
	switch t {
	case hal.DescriptorSampler:
		return vk.DescriptorTypeSampler
	case hal.DescriptorUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	}
	return vk.DescriptorTypeSampledImage
}

func toVkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func toVkExtent(e hal.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

func fromVkExtent(e vk.Extent2D) hal.Extent2D {
	return hal.Extent2D{Width: e.Width, Height: e.Height}
}

func toVkRect(r hal.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.Offset.X, Y: r.Offset.Y},
		Extent: toVkExtent(r.Extent),
	}
}

func toVkViewport(v hal.Viewport) vk.Viewport {
	return vk.Viewport{X: v.X, Y: v.Y, Width: v.Width, Height: v.Height, MinDepth: v.MinDepth, MaxDepth: v.MaxDepth}
}

// Pipeline state.

func toVkTopology(t hal.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case hal.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case hal.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case hal.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func toVkPolygonMode(m hal.PolygonMode) vk.PolygonMode {
	switch m {
	case hal.PolygonModeLine:
		return vk.PolygonModeLine
	case hal.PolygonModePoint:
		return vk.PolygonModePoint
	}
	return vk.PolygonModeFill
}

func toVkCullMode(m hal.CullMode) vk.CullModeFlags {
	switch m {
	case hal.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case hal.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func toVkFrontFace(f hal.FrontFace) vk.FrontFace {
	if f == hal.FrontFaceCounterClockwise {
		return vk.FrontFaceCounterClockwise
	}
	return vk.FrontFaceClockwise
}

var compareOps = map[hal.CompareOp]vk.CompareOp{
	hal.CompareNever:       vk.CompareOpNever,
	hal.CompareLess:        vk.CompareOpLess,
	hal.CompareEqual:       vk.CompareOpEqual,
	hal.CompareLessOrEqual: vk.CompareOpLessOrEqual,
	hal.CompareGreater:     vk.CompareOpGreater,
	hal.CompareAlways:      vk.CompareOpAlways,
}

func toVkCompareOp(op hal.CompareOp) vk.CompareOp { return compareOps[op] }

func toVkBlendFactor(f hal.BlendFactor) vk.BlendFactor {
	switch f {
	case hal.BlendFactorOne:
		return vk.BlendFactorOne
	case hal.BlendFactorSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case hal.BlendFactorOneMinusSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	}
	return vk.BlendFactorZero
}

func toVkBlendOp(op hal.BlendOp) vk.BlendOp {
	if op == hal.BlendOpSubtract {
		return vk.BlendOpSubtract
	}
	return vk.BlendOpAdd
}

func toVkColorMask(c hal.ColorComponent) vk.ColorComponentFlags {
	var out vk.ColorComponentFlagBits
	if c&hal.ColorComponentR != 0 {
		out |= vk.ColorComponentRBit
	}
	if c&hal.ColorComponentG != 0 {
		out |= vk.ColorComponentGBit
	}
	if c&hal.ColorComponentB != 0 {
		out |= vk.ColorComponentBBit
	}
	if c&hal.ColorComponentA != 0 {
		out |= vk.ColorComponentABit
	}
	return vk.ColorComponentFlags(out)
}

func toVkDynamicState(s hal.DynamicState) vk.DynamicState {
	if s == hal.DynamicStateScissor {
		return vk.DynamicStateScissor
	}
	return vk.DynamicStateViewport
}

func toVkSamples(n uint32) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	}
	return vk.SampleCount1Bit
}
