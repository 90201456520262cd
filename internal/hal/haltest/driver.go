// Package haltest provides an in-memory hal.Driver for tests.
//
// GPU work completes when the CPU waits for it: a submitted fence stays
// pending until WaitForFences, QueueWaitIdle or DeviceWaitIdle observes it.
// The driver records protocol violations (resetting or resubmitting a pending
// fence, writing an image whose previous frame is still pending, using stale
// handles) instead of failing, so tests can assert on them afterwards.
package haltest

import (
	"fmt"
	"math"

	"teapot/internal/hal"
)

// Object kinds, as reported by Live and DestroyLog.
const (
	KindFence          = "fence"
	KindSemaphore      = "semaphore"
	KindQueue          = "queue"
	KindImage          = "image"
	KindSwapImage      = "swapchain-image"
	KindImageView      = "image-view"
	KindSampler        = "sampler"
	KindBuffer         = "buffer"
	KindAllocation     = "allocation"
	KindSwapchain      = "swapchain"
	KindRenderPass     = "render-pass"
	KindFramebuffer    = "framebuffer"
	KindCommandPool    = "command-pool"
	KindCommandBuffer  = "command-buffer"
	KindShaderModule   = "shader-module"
	KindPipelineLayout = "pipeline-layout"
	KindPipeline       = "pipeline"
	KindSetLayout      = "descriptor-set-layout"
	KindDescriptorPool = "descriptor-pool"
	KindDescriptorSet  = "descriptor-set"
)

// Command is one recorded command-buffer operation.
type Command struct {
	Op         string
	RenderPass hal.RenderPassBeginInfo
	Viewport   hal.Viewport
	Scissor    hal.Rect2D
	Pipeline   hal.Pipeline
	Barrier    hal.ImageBarrier
	Copy       hal.BufferImageCopy
	Buffers    []hal.Buffer
	Sets       []hal.DescriptorSet
	Data       []byte
	Count      uint32
	Size       uint64
}

type object struct {
	kind string

	// fences
	signaled bool
	pending  bool

	// allocations
	mem      []byte
	mappable bool

	// swapchains
	info    hal.SwapchainInfo
	images  []hal.Image
	next    uint32
	retired bool

	// command buffers
	recording bool
	cmds      []Command
}

// Driver is a fake hal.Driver. The exported fields may be changed between
// calls to steer its behavior.
type Driver struct {
	Support       hal.SwapchainSupport
	FormatSupport map[hal.Format]hal.FormatProperties

	// AcquireHook overrides round-robin image acquisition. n counts calls
	// from zero.
	AcquireHook func(n int) (uint32, hal.Result, error)
	// PresentHook overrides the present result.
	PresentHook func(n int) (hal.Result, error)
	// StallFences makes bounded waits on pending fences time out.
	StallFences bool

	objects  hal.Arena[*object]
	graphics hal.Queue
	present  hal.Queue
	fail     map[string]error
	failSkip map[string]int

	calls      map[string]int
	log        []Command
	violations []string
	destroyed  []string
	swapchains []hal.SwapchainInfo

	acquired        hal.Image
	imageFence      map[hal.Image]hal.Fence
	lastSubmitFence hal.Fence
	maxPending      int
	acquireCalls    int
	presentCalls    int
}

var _ hal.Driver = (*Driver)(nil)

// New returns a driver reporting an 800x600 surface that supports
// B8G8R8A8_SRGB, FIFO and MAILBOX, with 2 to 8 images.
func New() *Driver {
	d := &Driver{
		Support: hal.SwapchainSupport{
			Capabilities: hal.SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  8,
				CurrentExtent:  hal.Extent2D{Width: 800, Height: 600},
				MinImageExtent: hal.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: hal.Extent2D{Width: 4096, Height: 4096},
			},
			Formats: []hal.SurfaceFormat{
				{Format: hal.FormatB8G8R8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear},
				{Format: hal.FormatB8G8R8A8Srgb, ColorSpace: hal.ColorSpaceSrgbNonlinear},
			},
			PresentModes: []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeMailbox},
		},
		FormatSupport: map[hal.Format]hal.FormatProperties{
			hal.FormatD32Sfloat:     {OptimalTiling: hal.FormatFeatureDepthStencilAttachment},
			hal.FormatR8G8B8A8Srgb:  {OptimalTiling: hal.FormatFeatureSampledImage},
			hal.FormatB8G8R8A8Srgb:  {OptimalTiling: hal.FormatFeatureColorAttachment | hal.FormatFeatureSampledImage},
			hal.FormatB8G8R8A8Unorm: {OptimalTiling: hal.FormatFeatureColorAttachment | hal.FormatFeatureSampledImage},
		},
		fail:       map[string]error{},
		failSkip:   map[string]int{},
		calls:      map[string]int{},
		imageFence: map[hal.Image]hal.Fence{},
	}
	d.graphics = hal.Queue{Handle: d.objects.Insert(&object{kind: KindQueue})}
	d.present = d.graphics
	return d
}

// UseApplicationExtent makes the surface report that the application picks
// the extent, within [min, max].
func (d *Driver) UseApplicationExtent(min, max hal.Extent2D) {
	d.Support.Capabilities.CurrentExtent = hal.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32}
	d.Support.Capabilities.MinImageExtent = min
	d.Support.Capabilities.MaxImageExtent = max
}

// FailNext makes the next call to op return err.
func (d *Driver) FailNext(op string, err error) { d.FailAfter(op, 0, err) }

// FailAfter makes op succeed skip more times and then fail once with err.
func (d *Driver) FailAfter(op string, skip int, err error) {
	d.fail[op] = err
	d.failSkip[op] = skip
}

// Violations returns every protocol violation recorded so far.
func (d *Driver) Violations() []string { return d.violations }

// Calls returns how often op was called.
func (d *Driver) Calls(op string) int { return d.calls[op] }

// DestroyLog returns object kinds in the order they were destroyed.
func (d *Driver) DestroyLog() []string { return d.destroyed }

// SwapchainInfos returns the create info of every swapchain created.
func (d *Driver) SwapchainInfos() []hal.SwapchainInfo { return d.swapchains }

// MaxPendingFences returns the largest number of fences that were pending at
// the same time.
func (d *Driver) MaxPendingFences() int { return d.maxPending }

// Live returns how many objects of kind are alive.
func (d *Driver) Live(kind string) int {
	n := 0
	d.objects.Each(func(_ hal.Handle, o *object) {
		if o.kind == kind {
			n++
		}
	})
	return n
}

// Commands returns what was recorded into cb since its last Begin.
func (d *Driver) Commands(cb hal.CommandBuffer) []Command {
	o, ok := d.objects.Get(cb.Handle)
	if !ok {
		return nil
	}
	return o.cmds
}

// Log returns every command recorded into any command buffer, including
// buffers that were freed since.
func (d *Driver) Log() []Command { return d.log }

// LogOps returns the Op of every logged command.
func (d *Driver) LogOps() []string {
	ops := make([]string, len(d.log))
	for i, c := range d.log {
		ops[i] = c.Op
	}
	return ops
}

// FenceSignaled reports whether f is signaled.
func (d *Driver) FenceSignaled(f hal.Fence) bool {
	o, ok := d.objects.Get(f.Handle)
	return ok && o.signaled
}

// FencePending reports whether f guards GPU work that has not completed.
func (d *Driver) FencePending(f hal.Fence) bool {
	o, ok := d.objects.Get(f.Handle)
	return ok && o.pending
}

func (d *Driver) violate(format string, args ...any) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Driver) call(op string) error {
	d.calls[op]++
	if err, ok := d.fail[op]; ok {
		if d.failSkip[op] > 0 {
			d.failSkip[op]--
			return nil
		}
		delete(d.fail, op)
		return err
	}
	return nil
}

func (d *Driver) get(h hal.Handle, kind, op string) *object {
	o, ok := d.objects.Get(h)
	if !ok {
		d.violate("%s: stale %s handle", op, kind)
		return nil
	}
	if o.kind != kind {
		d.violate("%s: handle is a %s, want %s", op, o.kind, kind)
		return nil
	}
	return o
}

func (d *Driver) insert(kind string) hal.Handle {
	return d.objects.Insert(&object{kind: kind})
}

func (d *Driver) remove(h hal.Handle, kind, op string) *object {
	if h.IsNil() {
		return nil
	}
	o := d.get(h, kind, op)
	if o == nil {
		return nil
	}
	d.objects.Remove(h)
	d.destroyed = append(d.destroyed, kind)
	return o
}

func (d *Driver) pendingFences() int {
	n := 0
	d.objects.Each(func(_ hal.Handle, o *object) {
		if o.kind == KindFence && o.pending {
			n++
		}
	})
	return n
}

func (d *Driver) completeAll() {
	d.objects.Each(func(_ hal.Handle, o *object) {
		if o.kind == KindFence && o.pending {
			o.pending = false
			o.signaled = true
		}
	})
}

func (d *Driver) Properties() hal.DeviceProperties {
	return hal.DeviceProperties{Name: "haltest"}
}

func (d *Driver) Destroy() {
	d.calls["Destroy"]++
	d.objects.Remove(d.graphics.Handle)
	d.destroyed = append(d.destroyed, "device")
}

// Surface

func (d *Driver) SwapchainSupport() (hal.SwapchainSupport, error) {
	if err := d.call("SwapchainSupport"); err != nil {
		return hal.SwapchainSupport{}, err
	}
	return d.Support, nil
}

func (d *Driver) FormatProperties(f hal.Format) hal.FormatProperties {
	return d.FormatSupport[f]
}

func (d *Driver) CreateSwapchain(info hal.SwapchainInfo) (hal.Swapchain, error) {
	if err := d.call("CreateSwapchain"); err != nil {
		return hal.Swapchain{}, err
	}
	if !info.Old.IsNil() {
		if old := d.get(info.Old.Handle, KindSwapchain, "CreateSwapchain"); old != nil {
			old.retired = true
		}
	}
	n := info.MinImageCount
	if max := d.Support.Capabilities.MaxImageCount; max > 0 && n > max {
		d.violate("CreateSwapchain: %d images exceeds max %d", n, max)
	}
	sc := &object{kind: KindSwapchain, info: info}
	for i := uint32(0); i < n; i++ {
		sc.images = append(sc.images, hal.Image{Handle: d.insert(KindSwapImage)})
	}
	d.swapchains = append(d.swapchains, info)
	return hal.Swapchain{Handle: d.objects.Insert(sc)}, nil
}

func (d *Driver) SwapchainImages(sc hal.Swapchain) ([]hal.Image, error) {
	if err := d.call("SwapchainImages"); err != nil {
		return nil, err
	}
	o := d.get(sc.Handle, KindSwapchain, "SwapchainImages")
	if o == nil {
		return nil, hal.ErrStaleHandle
	}
	return append([]hal.Image(nil), o.images...), nil
}

func (d *Driver) DestroySwapchain(sc hal.Swapchain) {
	o := d.remove(sc.Handle, KindSwapchain, "DestroySwapchain")
	if o == nil {
		return
	}
	for _, img := range o.images {
		d.objects.Remove(img.Handle)
		delete(d.imageFence, img)
	}
}

func (d *Driver) AcquireNextImage(sc hal.Swapchain, timeout uint64, sem hal.Semaphore) (uint32, hal.Result, error) {
	n := d.acquireCalls
	d.acquireCalls++
	if err := d.call("AcquireNextImage"); err != nil {
		return 0, 0, err
	}
	o := d.get(sc.Handle, KindSwapchain, "AcquireNextImage")
	if o == nil {
		return 0, 0, hal.ErrStaleHandle
	}
	d.get(sem.Handle, KindSemaphore, "AcquireNextImage")
	if o.retired {
		return 0, hal.ResultOutOfDate, nil
	}
	var (
		idx uint32
		res hal.Result
	)
	if d.AcquireHook != nil {
		var err error
		idx, res, err = d.AcquireHook(n)
		if err != nil || res == hal.ResultOutOfDate {
			return idx, res, err
		}
	} else {
		idx = o.next % uint32(len(o.images))
		o.next++
	}
	if int(idx) >= len(o.images) {
		return 0, 0, fmt.Errorf("haltest: acquired image %d out of range", idx)
	}
	d.acquired = o.images[idx]
	return idx, res, nil
}

// Resources

func (d *Driver) allocate(size uint64, usage hal.MemoryUsage) hal.Allocation {
	return hal.Allocation{Handle: d.objects.Insert(&object{
		kind:     KindAllocation,
		mem:      make([]byte, size),
		mappable: usage != hal.MemoryGPUOnly,
	})}
}

func (d *Driver) CreateBuffer(info hal.BufferInfo, usage hal.MemoryUsage) (hal.Buffer, hal.Allocation, error) {
	if err := d.call("CreateBuffer"); err != nil {
		return hal.Buffer{}, hal.Allocation{}, err
	}
	if info.Size == 0 {
		return hal.Buffer{}, hal.Allocation{}, fmt.Errorf("haltest: zero-sized buffer")
	}
	return hal.Buffer{Handle: d.insert(KindBuffer)}, d.allocate(info.Size, usage), nil
}

func (d *Driver) DestroyBuffer(b hal.Buffer, a hal.Allocation) {
	d.remove(b.Handle, KindBuffer, "DestroyBuffer")
	d.remove(a.Handle, KindAllocation, "DestroyBuffer")
}

func (d *Driver) CreateImage(info hal.ImageInfo, usage hal.MemoryUsage) (hal.Image, hal.Allocation, error) {
	if err := d.call("CreateImage"); err != nil {
		return hal.Image{}, hal.Allocation{}, err
	}
	if info.Extent.IsZero() {
		return hal.Image{}, hal.Allocation{}, fmt.Errorf("haltest: zero-sized image")
	}
	size := uint64(info.Extent.Width) * uint64(info.Extent.Height) * 4
	return hal.Image{Handle: d.insert(KindImage)}, d.allocate(size, usage), nil
}

func (d *Driver) DestroyImage(img hal.Image, a hal.Allocation) {
	d.remove(img.Handle, KindImage, "DestroyImage")
	d.remove(a.Handle, KindAllocation, "DestroyImage")
}

func (d *Driver) MapMemory(a hal.Allocation) ([]byte, error) {
	o := d.get(a.Handle, KindAllocation, "MapMemory")
	if o == nil {
		return nil, hal.ErrStaleHandle
	}
	if !o.mappable {
		return nil, fmt.Errorf("haltest: allocation is not host visible")
	}
	return o.mem, nil
}

func (d *Driver) UnmapMemory(a hal.Allocation) {
	d.get(a.Handle, KindAllocation, "UnmapMemory")
}

// Memory returns the backing bytes of an allocation.
func (d *Driver) Memory(a hal.Allocation) []byte {
	if o, ok := d.objects.Get(a.Handle); ok {
		return o.mem
	}
	return nil
}

func (d *Driver) CreateImageView(info hal.ImageViewInfo) (hal.ImageView, error) {
	if err := d.call("CreateImageView"); err != nil {
		return hal.ImageView{}, err
	}
	if o, ok := d.objects.Get(info.Image.Handle); !ok || (o.kind != KindImage && o.kind != KindSwapImage) {
		d.violate("CreateImageView: stale image handle")
		return hal.ImageView{}, hal.ErrStaleHandle
	}
	return hal.ImageView{Handle: d.insert(KindImageView)}, nil
}

func (d *Driver) DestroyImageView(v hal.ImageView) {
	d.remove(v.Handle, KindImageView, "DestroyImageView")
}

func (d *Driver) CreateSampler(hal.SamplerInfo) (hal.Sampler, error) {
	if err := d.call("CreateSampler"); err != nil {
		return hal.Sampler{}, err
	}
	return hal.Sampler{Handle: d.insert(KindSampler)}, nil
}

func (d *Driver) DestroySampler(s hal.Sampler) {
	d.remove(s.Handle, KindSampler, "DestroySampler")
}

func (d *Driver) AllocatorStats() hal.AllocatorStats {
	var st hal.AllocatorStats
	d.objects.Each(func(_ hal.Handle, o *object) {
		if o.kind == KindAllocation {
			st.Allocations++
			st.Bytes += uint64(len(o.mem))
		}
	})
	return st
}

// Sync

func (d *Driver) CreateSemaphore() (hal.Semaphore, error) {
	if err := d.call("CreateSemaphore"); err != nil {
		return hal.Semaphore{}, err
	}
	return hal.Semaphore{Handle: d.insert(KindSemaphore)}, nil
}

func (d *Driver) DestroySemaphore(s hal.Semaphore) {
	d.remove(s.Handle, KindSemaphore, "DestroySemaphore")
}

func (d *Driver) CreateFence(signaled bool) (hal.Fence, error) {
	if err := d.call("CreateFence"); err != nil {
		return hal.Fence{}, err
	}
	return hal.Fence{Handle: d.objects.Insert(&object{kind: KindFence, signaled: signaled})}, nil
}

func (d *Driver) DestroyFence(f hal.Fence) {
	if o, ok := d.objects.Get(f.Handle); ok && o.pending {
		d.violate("DestroyFence: fence is still pending")
	}
	d.remove(f.Handle, KindFence, "DestroyFence")
}

func (d *Driver) WaitForFences(fences []hal.Fence, timeout uint64) error {
	if err := d.call("WaitForFences"); err != nil {
		return err
	}
	for _, f := range fences {
		o := d.get(f.Handle, KindFence, "WaitForFences")
		if o == nil {
			return hal.ErrStaleHandle
		}
		switch {
		case o.pending:
			if d.StallFences && timeout != hal.NoTimeout {
				return hal.ErrTimeout
			}
			o.pending = false
			o.signaled = true
		case !o.signaled:
			d.violate("WaitForFences: fence was reset and never submitted")
			return hal.ErrTimeout
		}
	}
	return nil
}

func (d *Driver) ResetFences(fences []hal.Fence) error {
	if err := d.call("ResetFences"); err != nil {
		return err
	}
	for _, f := range fences {
		o := d.get(f.Handle, KindFence, "ResetFences")
		if o == nil {
			return hal.ErrStaleHandle
		}
		if o.pending {
			d.violate("ResetFences: fence is still pending")
		}
		o.signaled = false
	}
	return nil
}

// Commands

func (d *Driver) CreateCommandPool() (hal.CommandPool, error) {
	if err := d.call("CreateCommandPool"); err != nil {
		return hal.CommandPool{}, err
	}
	return hal.CommandPool{Handle: d.insert(KindCommandPool)}, nil
}

func (d *Driver) DestroyCommandPool(p hal.CommandPool) {
	d.remove(p.Handle, KindCommandPool, "DestroyCommandPool")
}

func (d *Driver) AllocateCommandBuffers(p hal.CommandPool, n int) ([]hal.CommandBuffer, error) {
	if err := d.call("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	if d.get(p.Handle, KindCommandPool, "AllocateCommandBuffers") == nil {
		return nil, hal.ErrStaleHandle
	}
	cbs := make([]hal.CommandBuffer, n)
	for i := range cbs {
		cbs[i] = hal.CommandBuffer{Handle: d.insert(KindCommandBuffer)}
	}
	return cbs, nil
}

func (d *Driver) FreeCommandBuffers(p hal.CommandPool, cbs []hal.CommandBuffer) {
	d.calls["FreeCommandBuffers"]++
	d.get(p.Handle, KindCommandPool, "FreeCommandBuffers")
	for _, cb := range cbs {
		d.remove(cb.Handle, KindCommandBuffer, "FreeCommandBuffers")
	}
}

func (d *Driver) BeginCommandBuffer(cb hal.CommandBuffer, oneTime bool) error {
	if err := d.call("BeginCommandBuffer"); err != nil {
		return err
	}
	o := d.get(cb.Handle, KindCommandBuffer, "BeginCommandBuffer")
	if o == nil {
		return hal.ErrStaleHandle
	}
	if o.recording {
		d.violate("BeginCommandBuffer: already recording")
	}
	o.recording = true
	o.cmds = nil
	return nil
}

func (d *Driver) EndCommandBuffer(cb hal.CommandBuffer) error {
	if err := d.call("EndCommandBuffer"); err != nil {
		return err
	}
	o := d.get(cb.Handle, KindCommandBuffer, "EndCommandBuffer")
	if o == nil {
		return hal.ErrStaleHandle
	}
	if !o.recording {
		return fmt.Errorf("haltest: command buffer is not recording")
	}
	o.recording = false
	return nil
}

func (d *Driver) record(cb hal.CommandBuffer, c Command) {
	o := d.get(cb.Handle, KindCommandBuffer, c.Op)
	if o == nil {
		return
	}
	if !o.recording {
		d.violate("%s: command buffer is not recording", c.Op)
		return
	}
	o.cmds = append(o.cmds, c)
	d.log = append(d.log, c)
}

func (d *Driver) CmdBeginRenderPass(cb hal.CommandBuffer, info hal.RenderPassBeginInfo) {
	d.get(info.RenderPass.Handle, KindRenderPass, "CmdBeginRenderPass")
	d.get(info.Framebuffer.Handle, KindFramebuffer, "CmdBeginRenderPass")
	d.record(cb, Command{Op: "BeginRenderPass", RenderPass: info})
}

func (d *Driver) CmdEndRenderPass(cb hal.CommandBuffer) {
	d.record(cb, Command{Op: "EndRenderPass"})
}

func (d *Driver) CmdSetViewport(cb hal.CommandBuffer, vp hal.Viewport) {
	d.record(cb, Command{Op: "SetViewport", Viewport: vp})
}

func (d *Driver) CmdSetScissor(cb hal.CommandBuffer, r hal.Rect2D) {
	d.record(cb, Command{Op: "SetScissor", Scissor: r})
}

func (d *Driver) CmdBindPipeline(cb hal.CommandBuffer, p hal.Pipeline) {
	d.get(p.Handle, KindPipeline, "CmdBindPipeline")
	d.record(cb, Command{Op: "BindPipeline", Pipeline: p})
}

func (d *Driver) CmdBindVertexBuffers(cb hal.CommandBuffer, first uint32, bufs []hal.Buffer, offsets []uint64) {
	for _, b := range bufs {
		d.get(b.Handle, KindBuffer, "CmdBindVertexBuffers")
	}
	d.record(cb, Command{Op: "BindVertexBuffers", Buffers: bufs, Count: first})
}

func (d *Driver) CmdBindIndexBuffer(cb hal.CommandBuffer, b hal.Buffer, offset uint64, t hal.IndexType) {
	d.get(b.Handle, KindBuffer, "CmdBindIndexBuffer")
	d.record(cb, Command{Op: "BindIndexBuffer", Buffers: []hal.Buffer{b}, Size: offset})
}

func (d *Driver) CmdBindDescriptorSets(cb hal.CommandBuffer, layout hal.PipelineLayout, first uint32, sets []hal.DescriptorSet) {
	d.get(layout.Handle, KindPipelineLayout, "CmdBindDescriptorSets")
	d.record(cb, Command{Op: "BindDescriptorSets", Sets: sets, Count: first})
}

func (d *Driver) CmdPushConstants(cb hal.CommandBuffer, layout hal.PipelineLayout, stages hal.ShaderStage, offset uint32, data []byte) {
	d.get(layout.Handle, KindPipelineLayout, "CmdPushConstants")
	d.record(cb, Command{Op: "PushConstants", Data: append([]byte(nil), data...), Count: offset})
}

func (d *Driver) CmdDraw(cb hal.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record(cb, Command{Op: "Draw", Count: vertexCount})
}

func (d *Driver) CmdDrawIndexed(cb hal.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.record(cb, Command{Op: "DrawIndexed", Count: indexCount})
}

func (d *Driver) CmdCopyBuffer(cb hal.CommandBuffer, src, dst hal.Buffer, size uint64) {
	d.get(src.Handle, KindBuffer, "CmdCopyBuffer")
	d.get(dst.Handle, KindBuffer, "CmdCopyBuffer")
	d.record(cb, Command{Op: "CopyBuffer", Buffers: []hal.Buffer{src, dst}, Size: size})
}

func (d *Driver) CmdCopyBufferToImage(cb hal.CommandBuffer, src hal.Buffer, dst hal.Image, layout hal.ImageLayout, region hal.BufferImageCopy) {
	d.get(src.Handle, KindBuffer, "CmdCopyBufferToImage")
	d.get(dst.Handle, KindImage, "CmdCopyBufferToImage")
	if layout != hal.ImageLayoutTransferDstOptimal {
		d.violate("CmdCopyBufferToImage: destination layout %s", layout)
	}
	d.record(cb, Command{Op: "CopyBufferToImage", Buffers: []hal.Buffer{src}, Copy: region})
}

func (d *Driver) CmdPipelineBarrier(cb hal.CommandBuffer, barrier hal.ImageBarrier) {
	d.get(barrier.Image.Handle, KindImage, "CmdPipelineBarrier")
	d.record(cb, Command{Op: "PipelineBarrier", Barrier: barrier})
}

// Queues

func (d *Driver) GraphicsQueue() hal.Queue { return d.graphics }
func (d *Driver) PresentQueue() hal.Queue  { return d.present }

func (d *Driver) QueueSubmit(q hal.Queue, info hal.SubmitInfo) error {
	if err := d.call("QueueSubmit"); err != nil {
		return err
	}
	d.get(q.Handle, KindQueue, "QueueSubmit")
	for _, s := range info.WaitSemaphores {
		d.get(s.Handle, KindSemaphore, "QueueSubmit")
	}
	for _, s := range info.SignalSemaphores {
		d.get(s.Handle, KindSemaphore, "QueueSubmit")
	}
	for _, cb := range info.CommandBuffers {
		if o := d.get(cb.Handle, KindCommandBuffer, "QueueSubmit"); o != nil && o.recording {
			d.violate("QueueSubmit: command buffer is still recording")
		}
	}
	if info.Fence.IsNil() {
		return nil
	}
	o := d.get(info.Fence.Handle, KindFence, "QueueSubmit")
	if o == nil {
		return hal.ErrStaleHandle
	}
	switch {
	case o.pending:
		d.violate("QueueSubmit: fence is still pending")
	case o.signaled:
		d.violate("QueueSubmit: fence was not reset")
	}
	if !d.acquired.IsNil() {
		if prev, ok := d.imageFence[d.acquired]; ok && d.FencePending(prev) {
			d.violate("QueueSubmit: image written while its previous frame is pending")
		}
	}
	o.pending = true
	d.lastSubmitFence = info.Fence
	if n := d.pendingFences(); n > d.maxPending {
		d.maxPending = n
	}
	return nil
}

func (d *Driver) QueuePresent(q hal.Queue, info hal.PresentInfo) (hal.Result, error) {
	n := d.presentCalls
	d.presentCalls++
	if err := d.call("QueuePresent"); err != nil {
		return 0, err
	}
	d.get(q.Handle, KindQueue, "QueuePresent")
	sc := d.get(info.Swapchain.Handle, KindSwapchain, "QueuePresent")
	if sc == nil {
		return 0, hal.ErrStaleHandle
	}
	if int(info.ImageIndex) >= len(sc.images) {
		return 0, fmt.Errorf("haltest: present image %d out of range", info.ImageIndex)
	}
	d.imageFence[sc.images[info.ImageIndex]] = d.lastSubmitFence
	d.acquired = hal.Image{}
	if sc.retired {
		return hal.ResultOutOfDate, nil
	}
	if d.PresentHook != nil {
		return d.PresentHook(n)
	}
	return hal.ResultSuccess, nil
}

func (d *Driver) QueueWaitIdle(q hal.Queue) error {
	if err := d.call("QueueWaitIdle"); err != nil {
		return err
	}
	d.completeAll()
	return nil
}

func (d *Driver) DeviceWaitIdle() error {
	if err := d.call("DeviceWaitIdle"); err != nil {
		return err
	}
	d.completeAll()
	return nil
}

// Pipelines

func (d *Driver) CreateShaderModule(code []uint32) (hal.ShaderModule, error) {
	if err := d.call("CreateShaderModule"); err != nil {
		return hal.ShaderModule{}, err
	}
	if len(code) == 0 {
		return hal.ShaderModule{}, fmt.Errorf("haltest: empty shader code")
	}
	return hal.ShaderModule{Handle: d.insert(KindShaderModule)}, nil
}

func (d *Driver) DestroyShaderModule(m hal.ShaderModule) {
	d.remove(m.Handle, KindShaderModule, "DestroyShaderModule")
}

func (d *Driver) CreatePipelineLayout(info hal.PipelineLayoutInfo) (hal.PipelineLayout, error) {
	if err := d.call("CreatePipelineLayout"); err != nil {
		return hal.PipelineLayout{}, err
	}
	for _, l := range info.SetLayouts {
		d.get(l.Handle, KindSetLayout, "CreatePipelineLayout")
	}
	return hal.PipelineLayout{Handle: d.insert(KindPipelineLayout)}, nil
}

func (d *Driver) DestroyPipelineLayout(l hal.PipelineLayout) {
	d.remove(l.Handle, KindPipelineLayout, "DestroyPipelineLayout")
}

func (d *Driver) CreateGraphicsPipeline(info hal.GraphicsPipelineInfo) (hal.Pipeline, error) {
	if err := d.call("CreateGraphicsPipeline"); err != nil {
		return hal.Pipeline{}, err
	}
	if d.get(info.Layout.Handle, KindPipelineLayout, "CreateGraphicsPipeline") == nil ||
		d.get(info.RenderPass.Handle, KindRenderPass, "CreateGraphicsPipeline") == nil {
		return hal.Pipeline{}, hal.ErrStaleHandle
	}
	for _, s := range info.Stages {
		d.get(s.Module.Handle, KindShaderModule, "CreateGraphicsPipeline")
	}
	return hal.Pipeline{Handle: d.insert(KindPipeline)}, nil
}

func (d *Driver) DestroyPipeline(p hal.Pipeline) {
	d.remove(p.Handle, KindPipeline, "DestroyPipeline")
}

func (d *Driver) CreateRenderPass(info hal.RenderPassInfo) (hal.RenderPass, error) {
	if err := d.call("CreateRenderPass"); err != nil {
		return hal.RenderPass{}, err
	}
	return hal.RenderPass{Handle: d.insert(KindRenderPass)}, nil
}

func (d *Driver) DestroyRenderPass(rp hal.RenderPass) {
	d.remove(rp.Handle, KindRenderPass, "DestroyRenderPass")
}

func (d *Driver) CreateFramebuffer(info hal.FramebufferInfo) (hal.Framebuffer, error) {
	if err := d.call("CreateFramebuffer"); err != nil {
		return hal.Framebuffer{}, err
	}
	d.get(info.RenderPass.Handle, KindRenderPass, "CreateFramebuffer")
	for _, v := range info.Attachments {
		d.get(v.Handle, KindImageView, "CreateFramebuffer")
	}
	return hal.Framebuffer{Handle: d.insert(KindFramebuffer)}, nil
}

func (d *Driver) DestroyFramebuffer(fb hal.Framebuffer) {
	d.remove(fb.Handle, KindFramebuffer, "DestroyFramebuffer")
}

func (d *Driver) CreateDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	if err := d.call("CreateDescriptorSetLayout"); err != nil {
		return hal.DescriptorSetLayout{}, err
	}
	return hal.DescriptorSetLayout{Handle: d.insert(KindSetLayout)}, nil
}

func (d *Driver) DestroyDescriptorSetLayout(l hal.DescriptorSetLayout) {
	d.remove(l.Handle, KindSetLayout, "DestroyDescriptorSetLayout")
}

func (d *Driver) CreateDescriptorPool(maxSets uint32, sizes []hal.DescriptorPoolSize) (hal.DescriptorPool, error) {
	if err := d.call("CreateDescriptorPool"); err != nil {
		return hal.DescriptorPool{}, err
	}
	return hal.DescriptorPool{Handle: d.insert(KindDescriptorPool)}, nil
}

// DestroyDescriptorPool also frees the sets allocated from the pool.
func (d *Driver) DestroyDescriptorPool(p hal.DescriptorPool) {
	d.remove(p.Handle, KindDescriptorPool, "DestroyDescriptorPool")
	var sets []hal.Handle
	d.objects.Each(func(h hal.Handle, o *object) {
		if o.kind == KindDescriptorSet {
			sets = append(sets, h)
		}
	})
	for _, h := range sets {
		d.objects.Remove(h)
	}
}

func (d *Driver) AllocateDescriptorSets(p hal.DescriptorPool, layouts []hal.DescriptorSetLayout) ([]hal.DescriptorSet, error) {
	if err := d.call("AllocateDescriptorSets"); err != nil {
		return nil, err
	}
	if d.get(p.Handle, KindDescriptorPool, "AllocateDescriptorSets") == nil {
		return nil, hal.ErrStaleHandle
	}
	sets := make([]hal.DescriptorSet, len(layouts))
	for i := range sets {
		sets[i] = hal.DescriptorSet{Handle: d.insert(KindDescriptorSet)}
	}
	return sets, nil
}

func (d *Driver) UpdateDescriptorSets(writes []hal.DescriptorWrite) {
	d.calls["UpdateDescriptorSets"]++
	for _, w := range writes {
		d.get(w.Set.Handle, KindDescriptorSet, "UpdateDescriptorSets")
	}
}
