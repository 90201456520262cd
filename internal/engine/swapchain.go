package engine

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"teapot/internal/hal"
	"teapot/internal/logging"
)

// MaxFramesInFlight is the number of frames the CPU may record ahead of the
// GPU.
const MaxFramesInFlight = 2

// SwapChainOptions tunes swap chain construction.
type SwapChainOptions struct {
	// PresentMode is used when the surface supports it, FIFO otherwise.
	PresentMode hal.PresentMode
	// FenceTimeout bounds the frame fence wait and image acquisition in
	// nanoseconds. Zero means hal.NoTimeout.
	FenceTimeout uint64
}

// DefaultSwapChainOptions prefers mailbox presentation and never times out.
func DefaultSwapChainOptions() SwapChainOptions {
	return SwapChainOptions{PresentMode: hal.PresentModeMailbox, FenceTimeout: hal.NoTimeout}
}

// SwapChain owns the presentable images together with their views, depth
// buffers, framebuffers, the render pass and the per-frame sync objects.
type SwapChain struct {
	dev          *Device
	drv          hal.Driver
	opts         SwapChainOptions
	windowExtent hal.Extent2D

	swapchain   hal.Swapchain
	imageFormat hal.Format
	depthFormat hal.Format
	presentMode hal.PresentMode
	extent      hal.Extent2D
	renderPass  hal.RenderPass

	images       []hal.Image
	imageViews   []hal.ImageView
	depthImages  []hal.Image
	depthMemory  []hal.Allocation
	depthViews   []hal.ImageView
	framebuffers []hal.Framebuffer

	imageAvailable [MaxFramesInFlight]hal.Semaphore
	renderFinished [MaxFramesInFlight]hal.Semaphore
	inFlight       [MaxFramesInFlight]hal.Fence
	// imagesInFlight holds, per swap image, the frame fence of the last
	// submission that rendered to it.
	imagesInFlight []hal.Fence
	currentFrame   int

	resources teardown
}

// NewSwapChain builds a swap chain for windowExtent. When previous is not
// nil it is handed to the presentation engine for reuse and then destroyed;
// the caller gives up ownership of previous whether or not construction
// succeeds. Its formats stay readable for CompareSwapFormats.
func NewSwapChain(dev *Device, windowExtent hal.Extent2D, previous *SwapChain, opts SwapChainOptions) (*SwapChain, error) {
	if opts.FenceTimeout == 0 {
		opts.FenceTimeout = hal.NoTimeout
	}
	sc := &SwapChain{
		dev:          dev,
		drv:          dev.Driver(),
		opts:         opts,
		windowExtent: windowExtent,
	}
	if err := sc.init(previous); err != nil {
		sc.Destroy()
		previous.Destroy()
		return nil, err
	}
	logging.Logger().Debug("swap chain created",
		"images", len(sc.images),
		"format", sc.imageFormat.String(),
		"depth", sc.depthFormat.String(),
		"present", sc.presentMode.String(),
		"width", sc.extent.Width,
		"height", sc.extent.Height,
	)
	return sc, nil
}

func (sc *SwapChain) init(previous *SwapChain) error {
	if err := sc.createSwapChain(previous); err != nil {
		return err
	}
	// The new chain owns its images now; the old one is no longer needed.
	previous.Destroy()

	if err := sc.createImageViews(); err != nil {
		return err
	}
	if err := sc.createRenderPass(); err != nil {
		return err
	}
	if err := sc.createDepthResources(); err != nil {
		return err
	}
	if err := sc.createFramebuffers(); err != nil {
		return err
	}
	return sc.createSyncObjects()
}

// Destroy releases everything the swap chain owns in reverse creation order.
// It is safe to call more than once and on a nil receiver.
func (sc *SwapChain) Destroy() {
	if sc == nil {
		return
	}
	sc.resources.release()
	sc.swapchain = hal.Swapchain{}
	sc.images = nil
	sc.imageViews = nil
	sc.depthImages = nil
	sc.depthMemory = nil
	sc.depthViews = nil
	sc.framebuffers = nil
	sc.imagesInFlight = nil
}

func (sc *SwapChain) createSwapChain(previous *SwapChain) error {
	support, err := sc.drv.SwapchainSupport()
	if err != nil {
		return errors.Wrap(err, "query swap chain support")
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return errors.New("surface reports no formats or present modes")
	}

	surfaceFormat := chooseSurfaceFormat(support.Formats)
	sc.presentMode = choosePresentMode(support.PresentModes, sc.opts.PresentMode)
	sc.extent = chooseExtent(support.Capabilities, sc.windowExtent)

	info := hal.SwapchainInfo{
		MinImageCount: chooseImageCount(support.Capabilities),
		Format:        surfaceFormat,
		Extent:        sc.extent,
		PresentMode:   sc.presentMode,
		PreTransform:  support.Capabilities.CurrentTransform,
	}
	if previous != nil {
		info.Old = previous.swapchain
	}

	swapchain, err := sc.drv.CreateSwapchain(info)
	if err != nil {
		return errors.Wrap(err, "create swap chain")
	}
	sc.swapchain = swapchain
	sc.resources.push(func() { sc.drv.DestroySwapchain(swapchain) })

	images, err := sc.drv.SwapchainImages(swapchain)
	if err != nil {
		return errors.Wrap(err, "get swap chain images")
	}
	if len(images) == 0 {
		return errors.New("swap chain has no images")
	}
	sc.images = images
	sc.imageFormat = surfaceFormat.Format
	return nil
}

func (sc *SwapChain) createImageViews() error {
	sc.imageViews = make([]hal.ImageView, len(sc.images))
	for i, img := range sc.images {
		view, err := sc.drv.CreateImageView(hal.ImageViewInfo{
			Image:  img,
			Format: sc.imageFormat,
			Aspect: hal.AspectColor,
		})
		if err != nil {
			return errors.Wrapf(err, "create image view %d", i)
		}
		sc.imageViews[i] = view
		sc.resources.push(func() { sc.drv.DestroyImageView(view) })
	}
	return nil
}

func (sc *SwapChain) createRenderPass() error {
	depthFormat, err := sc.dev.FindDepthFormat()
	if err != nil {
		return errors.Wrap(err, "find depth format")
	}
	sc.depthFormat = depthFormat

	rp, err := sc.drv.CreateRenderPass(hal.RenderPassInfo{
		Color: hal.AttachmentInfo{
			Format:        sc.imageFormat,
			LoadOp:        hal.LoadOpClear,
			StoreOp:       hal.StoreOpStore,
			InitialLayout: hal.ImageLayoutUndefined,
			FinalLayout:   hal.ImageLayoutPresentSrc,
			SubpassLayout: hal.ImageLayoutColorAttachmentOptimal,
		},
		Depth: hal.AttachmentInfo{
			Format:        depthFormat,
			LoadOp:        hal.LoadOpClear,
			StoreOp:       hal.StoreOpDontCare,
			InitialLayout: hal.ImageLayoutUndefined,
			FinalLayout:   hal.ImageLayoutDepthStencilAttachmentOptimal,
			SubpassLayout: hal.ImageLayoutDepthStencilAttachmentOptimal,
		},
		Dependency: hal.SubpassDependency{
			SrcStage:  hal.StageColorAttachmentOutput | hal.StageEarlyFragmentTests,
			DstStage:  hal.StageColorAttachmentOutput | hal.StageEarlyFragmentTests,
			SrcAccess: 0,
			DstAccess: hal.AccessColorAttachmentWrite | hal.AccessDepthStencilAttachmentWrite,
		},
	})
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}
	sc.renderPass = rp
	sc.resources.push(func() { sc.drv.DestroyRenderPass(rp) })
	return nil
}

func (sc *SwapChain) createDepthResources() error {
	n := len(sc.images)
	sc.depthImages = make([]hal.Image, n)
	sc.depthMemory = make([]hal.Allocation, n)
	sc.depthViews = make([]hal.ImageView, n)
	for i := range n {
		img, mem, err := sc.dev.CreateImage(hal.ImageInfo{
			Extent: sc.extent,
			Format: sc.depthFormat,
			Tiling: hal.TilingOptimal,
			Usage:  hal.ImageUsageDepthStencilAttachment,
		}, hal.MemoryGPUOnly)
		if err != nil {
			return errors.Wrapf(err, "create depth image %d", i)
		}
		sc.depthImages[i], sc.depthMemory[i] = img, mem
		sc.resources.push(func() { sc.drv.DestroyImage(img, mem) })

		view, err := sc.drv.CreateImageView(hal.ImageViewInfo{
			Image:  img,
			Format: sc.depthFormat,
			Aspect: hal.AspectDepth,
		})
		if err != nil {
			return errors.Wrapf(err, "create depth image view %d", i)
		}
		sc.depthViews[i] = view
		sc.resources.push(func() { sc.drv.DestroyImageView(view) })
	}
	return nil
}

func (sc *SwapChain) createFramebuffers() error {
	sc.framebuffers = make([]hal.Framebuffer, len(sc.images))
	for i := range sc.images {
		fb, err := sc.drv.CreateFramebuffer(hal.FramebufferInfo{
			RenderPass:  sc.renderPass,
			Attachments: []hal.ImageView{sc.imageViews[i], sc.depthViews[i]},
			Extent:      sc.extent,
		})
		if err != nil {
			return errors.Wrapf(err, "create framebuffer %d", i)
		}
		sc.framebuffers[i] = fb
		sc.resources.push(func() { sc.drv.DestroyFramebuffer(fb) })
	}
	return nil
}

func (sc *SwapChain) createSyncObjects() error {
	sc.imagesInFlight = make([]hal.Fence, len(sc.images))
	for i := range MaxFramesInFlight {
		avail, err := sc.drv.CreateSemaphore()
		if err != nil {
			return errors.Wrapf(err, "create image-available semaphore %d", i)
		}
		sc.imageAvailable[i] = avail
		sc.resources.push(func() { sc.drv.DestroySemaphore(avail) })

		done, err := sc.drv.CreateSemaphore()
		if err != nil {
			return errors.Wrapf(err, "create render-finished semaphore %d", i)
		}
		sc.renderFinished[i] = done
		sc.resources.push(func() { sc.drv.DestroySemaphore(done) })

		fence, err := sc.drv.CreateFence(true)
		if err != nil {
			return errors.Wrapf(err, "create in-flight fence %d", i)
		}
		sc.inFlight[i] = fence
		sc.resources.push(func() { sc.drv.DestroyFence(sc.inFlight[i]) })
	}
	return nil
}

// AcquireNextImage waits for the current frame slot to be free and acquires
// the next presentable image. ResultOutOfDate means the chain must be
// rebuilt; ResultSuboptimal images are still usable.
func (sc *SwapChain) AcquireNextImage() (uint32, hal.Result, error) {
	frame := sc.currentFrame
	if err := sc.drv.WaitForFences([]hal.Fence{sc.inFlight[frame]}, sc.opts.FenceTimeout); err != nil {
		return 0, 0, errors.Wrap(err, "wait for in-flight fence")
	}
	idx, res, err := sc.drv.AcquireNextImage(sc.swapchain, sc.opts.FenceTimeout, sc.imageAvailable[frame])
	if err != nil {
		return 0, 0, errors.Wrap(err, "acquire swap chain image")
	}
	return idx, res, nil
}

// SubmitCommandBuffers submits cbs for the image acquired by the last
// AcquireNextImage and queues that image for presentation.
func (sc *SwapChain) SubmitCommandBuffers(cbs []hal.CommandBuffer, imageIndex uint32) (hal.Result, error) {
	frame := sc.currentFrame
	// The slot advances on every path, in step with the renderer's frame index.
	defer func() { sc.currentFrame = (frame + 1) % MaxFramesInFlight }()

	if int(imageIndex) >= len(sc.images) {
		return 0, fmt.Errorf("image index %d out of range [0, %d)", imageIndex, len(sc.images))
	}

	if prev := sc.imagesInFlight[imageIndex]; !prev.IsNil() {
		if err := sc.drv.WaitForFences([]hal.Fence{prev}, sc.opts.FenceTimeout); err != nil {
			return 0, errors.Wrapf(err, "wait for image %d", imageIndex)
		}
	}
	sc.imagesInFlight[imageIndex] = sc.inFlight[frame]

	if err := sc.drv.ResetFences([]hal.Fence{sc.inFlight[frame]}); err != nil {
		return 0, errors.Wrap(err, "reset in-flight fence")
	}
	err := sc.drv.QueueSubmit(sc.dev.GraphicsQueue(), hal.SubmitInfo{
		WaitSemaphores:   []hal.Semaphore{sc.imageAvailable[frame]},
		WaitStages:       []hal.PipelineStage{hal.StageColorAttachmentOutput},
		CommandBuffers:   cbs,
		SignalSemaphores: []hal.Semaphore{sc.renderFinished[frame]},
		Fence:            sc.inFlight[frame],
	})
	if err != nil {
		sc.imagesInFlight[imageIndex] = hal.Fence{}
		if ferr := sc.replaceFence(frame); ferr != nil {
			logging.Logger().Error("replace in-flight fence", "frame", frame, "err", ferr)
		}
		return 0, errors.Wrap(err, "submit draw command buffer")
	}

	res, err := sc.drv.QueuePresent(sc.dev.PresentQueue(), hal.PresentInfo{
		WaitSemaphores: []hal.Semaphore{sc.renderFinished[frame]},
		Swapchain:      sc.swapchain,
		ImageIndex:     imageIndex,
	})
	if err != nil {
		return 0, errors.Wrap(err, "present swap chain image")
	}
	return res, nil
}

// replaceFence swaps the slot's fence for a new signaled one. A fence that
// was reset for a submission that never reached the queue would otherwise
// block the slot's next acquire forever.
func (sc *SwapChain) replaceFence(frame int) error {
	fence, err := sc.drv.CreateFence(true)
	if err != nil {
		return err
	}
	sc.drv.DestroyFence(sc.inFlight[frame])
	sc.inFlight[frame] = fence
	return nil
}

// CompareSwapFormats reports whether other uses the same color and depth
// formats, so render passes and pipelines built for one fit the other.
func (sc *SwapChain) CompareSwapFormats(other *SwapChain) bool {
	return sc.imageFormat == other.imageFormat && sc.depthFormat == other.depthFormat
}

// ImageCount is the number of presentable images the surface handed out.
func (sc *SwapChain) ImageCount() int { return len(sc.images) }

// Framebuffer returns the framebuffer targeting swap image i.
func (sc *SwapChain) Framebuffer(i int) hal.Framebuffer { return sc.framebuffers[i] }

func (sc *SwapChain) ImageView(i int) hal.ImageView { return sc.imageViews[i] }
func (sc *SwapChain) RenderPass() hal.RenderPass    { return sc.renderPass }
func (sc *SwapChain) ImageFormat() hal.Format       { return sc.imageFormat }
func (sc *SwapChain) DepthFormat() hal.Format       { return sc.depthFormat }
func (sc *SwapChain) PresentMode() hal.PresentMode  { return sc.presentMode }
func (sc *SwapChain) Extent() hal.Extent2D          { return sc.extent }
func (sc *SwapChain) Width() uint32                 { return sc.extent.Width }
func (sc *SwapChain) Height() uint32                { return sc.extent.Height }

// ExtentAspectRatio is width over height of the swap extent.
func (sc *SwapChain) ExtentAspectRatio() float32 {
	return float32(sc.extent.Width) / float32(sc.extent.Height)
}

func chooseSurfaceFormat(formats []hal.SurfaceFormat) hal.SurfaceFormat {
	for _, f := range formats {
		if f.Format == hal.FormatB8G8R8A8Srgb && f.ColorSpace == hal.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

func choosePresentMode(modes []hal.PresentMode, preferred hal.PresentMode) hal.PresentMode {
	for _, m := range modes {
		if m == preferred {
			return m
		}
	}
	return hal.PresentModeFifo
}

func chooseExtent(caps hal.SurfaceCapabilities, window hal.Extent2D) hal.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return hal.Extent2D{
		Width:  clamp(window.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(window.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func chooseImageCount(caps hal.SurfaceCapabilities) uint32 {
	n := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

func clamp(v, lo, hi uint32) uint32 {
	return max(lo, min(v, hi))
}
