package gpu

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"teapot/internal/hal"
	"teapot/internal/logging"
)

// CreateCommandPool creates a pool on the graphics family whose buffers can
// be reset one by one.
func (d *Driver) CreateCommandPool() (hal.CommandPool, error) {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queues.graphicsFamily,
		Flags: vk.CommandPoolCreateFlags(
			vk.CommandPoolCreateResetCommandBufferBit | vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(d.device, &poolInfo, nil, &pool)); err != nil {
		return hal.CommandPool{}, errors.Wrap(err, "create command pool")
	}
	return hal.CommandPool{Handle: d.commandPools.Insert(pool)}, nil
}

// DestroyCommandPool frees the pool together with the buffers allocated from it.
func (d *Driver) DestroyCommandPool(h hal.CommandPool) {
	pool, ok := d.commandPools.Remove(h.Handle)
	if !ok {
		return
	}
	d.commandBuffers.Each(func(cbh hal.Handle, cb commandBuffer) {
		if cb.pool == h {
			d.commandBuffers.Remove(cbh)
		}
	})
	vk.DestroyCommandPool(d.device, pool, nil)
}

func (d *Driver) AllocateCommandBuffers(h hal.CommandPool, n int) ([]hal.CommandBuffer, error) {
	pool, ok := d.commandPools.Get(h.Handle)
	if !ok {
		return nil, stale("command pool")
	}
	if n <= 0 {
		return nil, nil
	}
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(n),
	}
	raw := make([]vk.CommandBuffer, n)
	if err := vk.Error(vk.AllocateCommandBuffers(d.device, &allocInfo, raw)); err != nil {
		return nil, errors.Wrap(err, "allocate command buffers")
	}
	out := make([]hal.CommandBuffer, n)
	for i, cb := range raw {
		out[i] = hal.CommandBuffer{Handle: d.commandBuffers.Insert(commandBuffer{buffer: cb, pool: h})}
	}
	return out, nil
}

func (d *Driver) FreeCommandBuffers(h hal.CommandPool, cbs []hal.CommandBuffer) {
	pool, ok := d.commandPools.Get(h.Handle)
	if !ok {
		return
	}
	raw := make([]vk.CommandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		if c, ok := d.commandBuffers.Remove(cb.Handle); ok {
			raw = append(raw, c.buffer)
		}
	}
	if len(raw) > 0 {
		vk.FreeCommandBuffers(d.device, pool, uint32(len(raw)), raw)
	}
}

func (d *Driver) cb(h hal.CommandBuffer) (vk.CommandBuffer, bool) {
	c, ok := d.commandBuffers.Get(h.Handle)
	if !ok {
		logging.Logger().Error("recording into stale command buffer")
		return nil, false
	}
	return c.buffer, true
}

// BeginCommandBuffer resets cb implicitly and starts recording.
func (d *Driver) BeginCommandBuffer(h hal.CommandBuffer, oneTime bool) error {
	c, ok := d.commandBuffers.Get(h.Handle)
	if !ok {
		return stale("command buffer")
	}
	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if oneTime {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return errors.Wrap(vk.Error(vk.BeginCommandBuffer(c.buffer, &beginInfo)), "begin command buffer")
}

func (d *Driver) EndCommandBuffer(h hal.CommandBuffer) error {
	c, ok := d.commandBuffers.Get(h.Handle)
	if !ok {
		return stale("command buffer")
	}
	return errors.Wrap(vk.Error(vk.EndCommandBuffer(c.buffer)), "end command buffer")
}

func (d *Driver) CmdBeginRenderPass(h hal.CommandBuffer, info hal.RenderPassBeginInfo) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	rp, ok1 := d.renderPasses.Get(info.RenderPass.Handle)
	fb, ok2 := d.framebuffers.Get(info.Framebuffer.Handle)
	if !ok1 || !ok2 {
		logging.Logger().Error("begin render pass with stale render pass or framebuffer")
		return
	}
	clearValues := []vk.ClearValue{
		vk.NewClearValue(info.ClearColor[:]),
		vk.NewClearDepthStencil(info.ClearDepth, info.ClearStencil),
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp,
		Framebuffer:     fb,
		RenderArea:      toVkRect(info.RenderArea),
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cb, &beginInfo, vk.SubpassContentsInline)
}

func (d *Driver) CmdEndRenderPass(h hal.CommandBuffer) {
	if cb, ok := d.cb(h); ok {
		vk.CmdEndRenderPass(cb)
	}
}

func (d *Driver) CmdSetViewport(h hal.CommandBuffer, vp hal.Viewport) {
	if cb, ok := d.cb(h); ok {
		vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{toVkViewport(vp)})
	}
}

func (d *Driver) CmdSetScissor(h hal.CommandBuffer, r hal.Rect2D) {
	if cb, ok := d.cb(h); ok {
		vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{toVkRect(r)})
	}
}

func (d *Driver) CmdBindPipeline(h hal.CommandBuffer, p hal.Pipeline) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	if pipeline, ok := d.pipelines.Get(p.Handle); ok {
		vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, pipeline)
	}
}

func (d *Driver) CmdBindVertexBuffers(h hal.CommandBuffer, first uint32, bufs []hal.Buffer, offsets []uint64) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	raw := make([]vk.Buffer, len(bufs))
	vkOffsets := make([]vk.DeviceSize, len(bufs))
	for i, b := range bufs {
		buf, ok := d.buffers.Get(b.Handle)
		if !ok {
			logging.Logger().Error("bind stale vertex buffer", "index", i)
			return
		}
		raw[i] = buf
		if i < len(offsets) {
			vkOffsets[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(cb, first, uint32(len(raw)), raw, vkOffsets)
}

func (d *Driver) CmdBindIndexBuffer(h hal.CommandBuffer, b hal.Buffer, offset uint64, t hal.IndexType) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	if buf, ok := d.buffers.Get(b.Handle); ok {
		vk.CmdBindIndexBuffer(cb, buf, vk.DeviceSize(offset), toVkIndexType(t))
	}
}

func (d *Driver) CmdBindDescriptorSets(h hal.CommandBuffer, layout hal.PipelineLayout, first uint32, sets []hal.DescriptorSet) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	l, ok := d.pipelineLayouts.Get(layout.Handle)
	if !ok {
		return
	}
	raw := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		set, ok := d.descriptorSets.Get(s.Handle)
		if !ok {
			logging.Logger().Error("bind stale descriptor set", "index", i)
			return
		}
		raw[i] = set
	}
	vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointGraphics, l, first, uint32(len(raw)), raw, 0, nil)
}

func (d *Driver) CmdPushConstants(h hal.CommandBuffer, layout hal.PipelineLayout, stages hal.ShaderStage, offset uint32, data []byte) {
	cb, ok := d.cb(h)
	if !ok || len(data) == 0 {
		return
	}
	if l, ok := d.pipelineLayouts.Get(layout.Handle); ok {
		vk.CmdPushConstants(cb, l, toVkShaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
	}
}

func (d *Driver) CmdDraw(h hal.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if cb, ok := d.cb(h); ok {
		vk.CmdDraw(cb, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (d *Driver) CmdDrawIndexed(h hal.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if cb, ok := d.cb(h); ok {
		vk.CmdDrawIndexed(cb, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

func (d *Driver) CmdCopyBuffer(h hal.CommandBuffer, src, dst hal.Buffer, size uint64) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	s, ok1 := d.buffers.Get(src.Handle)
	t, ok2 := d.buffers.Get(dst.Handle)
	if !ok1 || !ok2 {
		logging.Logger().Error("copy with stale buffer")
		return
	}
	vk.CmdCopyBuffer(cb, s, t, 1, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})
}

func (d *Driver) CmdCopyBufferToImage(h hal.CommandBuffer, src hal.Buffer, dst hal.Image, layout hal.ImageLayout, region hal.BufferImageCopy) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	buf, ok1 := d.buffers.Get(src.Handle)
	img, ok2 := d.images.Get(dst.Handle)
	if !ok1 || !ok2 {
		logging.Logger().Error("copy to image with stale handle")
		return
	}
	layers := region.LayerCount
	if layers == 0 {
		layers = 1
	}
	copyRegion := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     layers,
		},
		ImageExtent: vk.Extent3D{Width: region.Width, Height: region.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb, buf, img.image, toVkLayout(layout), 1, []vk.BufferImageCopy{copyRegion})
}

func (d *Driver) CmdPipelineBarrier(h hal.CommandBuffer, b hal.ImageBarrier) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	img, ok := d.images.Get(b.Image.Handle)
	if !ok {
		logging.Logger().Error("barrier on stale image")
		return
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       toVkAccess(b.SrcAccess),
		DstAccessMask:       toVkAccess(b.DstAccess),
		OldLayout:           toVkLayout(b.OldLayout),
		NewLayout:           toVkLayout(b.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: toVkAspect(b.Aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cb, toVkStages(b.SrcStage), toVkStages(b.DstStage), 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (d *Driver) GraphicsQueue() hal.Queue { return d.graphics }
func (d *Driver) PresentQueue() hal.Queue  { return d.present }

func (d *Driver) QueueSubmit(q hal.Queue, info hal.SubmitInfo) error {
	queue, ok := d.queueObjs.Get(q.Handle)
	if !ok {
		return stale("queue")
	}
	waits, err := d.lookupSemaphores(info.WaitSemaphores)
	if err != nil {
		return err
	}
	signals, err := d.lookupSemaphores(info.SignalSemaphores)
	if err != nil {
		return err
	}
	stages := make([]vk.PipelineStageFlags, len(info.WaitStages))
	for i, s := range info.WaitStages {
		stages[i] = toVkStages(s)
	}
	cbs := make([]vk.CommandBuffer, len(info.CommandBuffers))
	for i, h := range info.CommandBuffers {
		c, ok := d.commandBuffers.Get(h.Handle)
		if !ok {
			return stale("command buffer")
		}
		cbs[i] = c.buffer
	}
	fence := vk.NullFence
	if !info.Fence.IsNil() {
		f, ok := d.fences.Get(info.Fence.Handle)
		if !ok {
			return stale("fence")
		}
		fence = f
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(cbs)),
		PCommandBuffers:      cbs,
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}
	return errors.Wrap(vk.Error(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, fence)), "queue submit")
}

func (d *Driver) QueueWaitIdle(q hal.Queue) error {
	queue, ok := d.queueObjs.Get(q.Handle)
	if !ok {
		return stale("queue")
	}
	return errors.Wrap(vk.Error(vk.QueueWaitIdle(queue)), "queue wait idle")
}

func (d *Driver) DeviceWaitIdle() error {
	return errors.Wrap(vk.Error(vk.DeviceWaitIdle(d.device)), "device wait idle")
}
