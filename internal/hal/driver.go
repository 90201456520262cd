package hal

import "errors"

var (
	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("hal: wait timed out")
	// ErrStaleHandle is returned when a handle does not name a live object.
	ErrStaleHandle = errors.New("hal: stale or null handle")
)

// SurfaceDriver negotiates and drives the presentation engine for the
// surface the driver was created with.
type SurfaceDriver interface {
	SwapchainSupport() (SwapchainSupport, error)
	FormatProperties(f Format) FormatProperties
	CreateSwapchain(info SwapchainInfo) (Swapchain, error)
	SwapchainImages(sc Swapchain) ([]Image, error)
	DestroySwapchain(sc Swapchain)
	// AcquireNextImage signals sem once the returned image may be written.
	AcquireNextImage(sc Swapchain, timeout uint64, sem Semaphore) (uint32, Result, error)
}

// ResourceDriver creates memory-backed buffers and images.
type ResourceDriver interface {
	CreateBuffer(info BufferInfo, usage MemoryUsage) (Buffer, Allocation, error)
	DestroyBuffer(b Buffer, a Allocation)
	CreateImage(info ImageInfo, usage MemoryUsage) (Image, Allocation, error)
	DestroyImage(img Image, a Allocation)
	// MapMemory returns the mapped bytes of a host-visible allocation.
	MapMemory(a Allocation) ([]byte, error)
	UnmapMemory(a Allocation)
	CreateImageView(info ImageViewInfo) (ImageView, error)
	DestroyImageView(v ImageView)
	CreateSampler(info SamplerInfo) (Sampler, error)
	DestroySampler(s Sampler)
	AllocatorStats() AllocatorStats
}

type SyncDriver interface {
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitForFences waits until all fences are signaled.
	WaitForFences(fences []Fence, timeout uint64) error
	ResetFences(fences []Fence) error
}

// CommandDriver allocates and records command buffers.
type CommandDriver interface {
	CreateCommandPool() (CommandPool, error)
	DestroyCommandPool(p CommandPool)
	AllocateCommandBuffers(p CommandPool, n int) ([]CommandBuffer, error)
	FreeCommandBuffers(p CommandPool, cbs []CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(cb CommandBuffer) error

	CmdBeginRenderPass(cb CommandBuffer, info RenderPassBeginInfo)
	CmdEndRenderPass(cb CommandBuffer)
	CmdSetViewport(cb CommandBuffer, vp Viewport)
	CmdSetScissor(cb CommandBuffer, r Rect2D)
	CmdBindPipeline(cb CommandBuffer, p Pipeline)
	CmdBindVertexBuffers(cb CommandBuffer, first uint32, bufs []Buffer, offsets []uint64)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, offset uint64, t IndexType)
	CmdBindDescriptorSets(cb CommandBuffer, layout PipelineLayout, first uint32, sets []DescriptorSet)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, size uint64)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, layout ImageLayout, region BufferImageCopy)
	CmdPipelineBarrier(cb CommandBuffer, barrier ImageBarrier)
}

// QueueDriver submits work. The graphics and present queues may be the same.
type QueueDriver interface {
	GraphicsQueue() Queue
	PresentQueue() Queue
	QueueSubmit(q Queue, info SubmitInfo) error
	QueuePresent(q Queue, info PresentInfo) (Result, error)
	QueueWaitIdle(q Queue) error
	DeviceWaitIdle() error
}

type PipelineDriver interface {
	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)
	CreatePipelineLayout(info PipelineLayoutInfo) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)
	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)
	DestroyPipeline(p Pipeline)
	CreateRenderPass(info RenderPassInfo) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreateDescriptorPool(maxSets uint32, sizes []DescriptorPoolSize) (DescriptorPool, error)
	DestroyDescriptorPool(p DescriptorPool)
	AllocateDescriptorSets(p DescriptorPool, layouts []DescriptorSetLayout) ([]DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorWrite)
}

// Driver is a logical device bound to one presentation surface.
type Driver interface {
	SurfaceDriver
	ResourceDriver
	SyncDriver
	CommandDriver
	QueueDriver
	PipelineDriver

	Properties() DeviceProperties
	// Destroy releases the device and everything it still owns.
	Destroy()
}
