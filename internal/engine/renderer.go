package engine

import (
	"github.com/pkg/errors"

	"teapot/internal/hal"
	"teapot/internal/logging"
)

// Window is what the renderer needs from the OS window.
type Window interface {
	// Extent is the drawable size in pixels. It is zero while minimized.
	Extent() hal.Extent2D
	WasResized() bool
	ResetResized()
	// WaitEvents blocks until the window system delivers an event.
	WaitEvents()
}

// ClearColor is the color every frame starts from.
var ClearColor = [4]float32{0.1, 0.1, 0.1, 1}

// Renderer drives the per-frame protocol and rebuilds the swap chain when
// the surface changes. Drawing code only sees BeginFrame/EndFrame and the
// render pass helpers.
type Renderer struct {
	window Window
	dev    *Device
	opts   SwapChainOptions

	swapChain      *SwapChain
	commandBuffers []hal.CommandBuffer
	// imageCount is the image count of the chain the command buffers were
	// allocated alongside.
	imageCount int

	currentImage uint32
	frameIndex   int
	frameStarted bool
}

// NewRenderer builds the first swap chain and the per-frame command buffers.
func NewRenderer(window Window, dev *Device, opts SwapChainOptions) (*Renderer, error) {
	r := &Renderer{window: window, dev: dev, opts: opts}
	if err := r.recreateSwapChain(); err != nil {
		return nil, err
	}
	if err := r.createCommandBuffers(); err != nil {
		r.swapChain.Destroy()
		return nil, err
	}
	return r, nil
}

// Close frees the command buffers and destroys the swap chain. The device
// must be idle.
func (r *Renderer) Close() {
	r.freeCommandBuffers()
	r.swapChain.Destroy()
	r.swapChain = nil
}

func (r *Renderer) createCommandBuffers() error {
	cbs, err := r.dev.Driver().AllocateCommandBuffers(r.dev.CommandPool(), MaxFramesInFlight)
	if err != nil {
		return errors.Wrap(err, "allocate command buffers")
	}
	r.commandBuffers = cbs
	r.imageCount = r.swapChain.ImageCount()
	return nil
}

func (r *Renderer) freeCommandBuffers() {
	if len(r.commandBuffers) == 0 {
		return
	}
	r.dev.Driver().FreeCommandBuffers(r.dev.CommandPool(), r.commandBuffers)
	r.commandBuffers = nil
}

func (r *Renderer) recreateSwapChain() error {
	extent := r.window.Extent()
	for extent.IsZero() {
		r.window.WaitEvents()
		extent = r.window.Extent()
	}
	if err := r.dev.WaitIdle(); err != nil {
		return err
	}

	prev := r.swapChain
	r.swapChain = nil
	next, err := NewSwapChain(r.dev, extent, prev, r.opts)
	if err != nil {
		return errors.Wrap(err, "recreate swap chain")
	}
	if prev != nil && !prev.CompareSwapFormats(next) {
		next.Destroy()
		return ErrSwapFormatChanged
	}
	r.swapChain = next

	if r.commandBuffers != nil && next.ImageCount() != r.imageCount {
		logging.Logger().Debug("swap image count changed", "from", r.imageCount, "to", next.ImageCount())
		r.freeCommandBuffers()
		if err := r.createCommandBuffers(); err != nil {
			return err
		}
	}
	return nil
}

// BeginFrame acquires the next image and starts recording the frame's
// command buffer. A null command buffer with a nil error means the swap
// chain was rebuilt and the frame must be skipped.
func (r *Renderer) BeginFrame() (hal.CommandBuffer, error) {
	if r.frameStarted {
		return hal.CommandBuffer{}, ErrFrameInProgress
	}
	if r.swapChain == nil {
		return hal.CommandBuffer{}, errors.New("renderer has no swap chain")
	}

	idx, res, err := r.swapChain.AcquireNextImage()
	if err != nil {
		return hal.CommandBuffer{}, err
	}
	if res == hal.ResultOutOfDate {
		return hal.CommandBuffer{}, r.recreateSwapChain()
	}

	cb := r.commandBuffers[r.frameIndex]
	if err := r.dev.Driver().BeginCommandBuffer(cb, false); err != nil {
		return hal.CommandBuffer{}, errors.Wrap(err, "begin recording command buffer")
	}
	r.currentImage = idx
	r.frameStarted = true
	return cb, nil
}

// EndFrame finishes recording, submits and presents. The frame ends and the
// frame index advances even when an error is returned.
func (r *Renderer) EndFrame() error {
	if !r.frameStarted {
		return ErrNoFrameInProgress
	}
	defer func() {
		r.frameStarted = false
		r.frameIndex = (r.frameIndex + 1) % MaxFramesInFlight
	}()

	cb := r.commandBuffers[r.frameIndex]
	if err := r.dev.Driver().EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "record command buffer")
	}
	res, err := r.swapChain.SubmitCommandBuffers([]hal.CommandBuffer{cb}, r.currentImage)
	if err != nil {
		return err
	}
	if res == hal.ResultOutOfDate || res == hal.ResultSuboptimal || r.window.WasResized() {
		r.window.ResetResized()
		return r.recreateSwapChain()
	}
	return nil
}

func (r *Renderer) checkPass(cb hal.CommandBuffer) error {
	if !r.frameStarted {
		return ErrNoFrameInProgress
	}
	if cb != r.commandBuffers[r.frameIndex] {
		return ErrForeignCommandBuffer
	}
	return nil
}

// BeginSwapChainRenderPass clears the acquired image and sets a viewport and
// scissor covering the whole swap extent.
func (r *Renderer) BeginSwapChainRenderPass(cb hal.CommandBuffer) error {
	if err := r.checkPass(cb); err != nil {
		return err
	}
	drv := r.dev.Driver()
	extent := r.swapChain.Extent()
	drv.CmdBeginRenderPass(cb, hal.RenderPassBeginInfo{
		RenderPass:   r.swapChain.RenderPass(),
		Framebuffer:  r.swapChain.Framebuffer(int(r.currentImage)),
		RenderArea:   hal.Rect2D{Extent: extent},
		ClearColor:   ClearColor,
		ClearDepth:   1,
		ClearStencil: 0,
	})
	drv.CmdSetViewport(cb, hal.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	drv.CmdSetScissor(cb, hal.Rect2D{Extent: extent})
	return nil
}

func (r *Renderer) EndSwapChainRenderPass(cb hal.CommandBuffer) error {
	if err := r.checkPass(cb); err != nil {
		return err
	}
	r.dev.Driver().CmdEndRenderPass(cb)
	return nil
}

// CurrentCommandBuffer returns the buffer being recorded, or a null handle
// outside a frame.
func (r *Renderer) CurrentCommandBuffer() hal.CommandBuffer {
	if !r.frameStarted {
		return hal.CommandBuffer{}
	}
	return r.commandBuffers[r.frameIndex]
}

func (r *Renderer) IsFrameInProgress() bool { return r.frameStarted }

// FrameIndex is the frame slot in [0, MaxFramesInFlight).
func (r *Renderer) FrameIndex() int { return r.frameIndex }

func (r *Renderer) SwapChain() *SwapChain { return r.swapChain }

func (r *Renderer) SwapChainRenderPass() hal.RenderPass { return r.swapChain.RenderPass() }

func (r *Renderer) AspectRatio() float32 { return r.swapChain.ExtentAspectRatio() }
