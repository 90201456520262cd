package engine

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teapot/internal/hal"
	"teapot/internal/hal/haltest"
)

var extent800x600 = hal.Extent2D{Width: 800, Height: 600}

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := hal.SurfaceFormat{Format: hal.FormatB8G8R8A8Srgb, ColorSpace: hal.ColorSpaceSrgbNonlinear}
	unorm := hal.SurfaceFormat{Format: hal.FormatB8G8R8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear}
	srgbOther := hal.SurfaceFormat{Format: hal.FormatB8G8R8A8Srgb, ColorSpace: hal.ColorSpaceOther}

	assert.Equal(t, srgb, chooseSurfaceFormat([]hal.SurfaceFormat{unorm, srgb}))
	assert.Equal(t, unorm, chooseSurfaceFormat([]hal.SurfaceFormat{unorm, srgbOther}))
}

func TestChoosePresentMode(t *testing.T) {
	all := []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeMailbox, hal.PresentModeImmediate}
	assert.Equal(t, hal.PresentModeMailbox, choosePresentMode(all, hal.PresentModeMailbox))
	assert.Equal(t, hal.PresentModeImmediate, choosePresentMode(all, hal.PresentModeImmediate))
	assert.Equal(t, hal.PresentModeFifo, choosePresentMode([]hal.PresentMode{hal.PresentModeFifo}, hal.PresentModeMailbox))
}

func TestChooseExtent(t *testing.T) {
	caps := hal.SurfaceCapabilities{
		CurrentExtent:  hal.Extent2D{Width: 640, Height: 480},
		MinImageExtent: hal.Extent2D{Width: 100, Height: 100},
		MaxImageExtent: hal.Extent2D{Width: 1000, Height: 1000},
	}
	assert.Equal(t, hal.Extent2D{Width: 640, Height: 480}, chooseExtent(caps, extent800x600))

	caps.CurrentExtent = hal.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32}
	assert.Equal(t, extent800x600, chooseExtent(caps, extent800x600))
	assert.Equal(t, hal.Extent2D{Width: 1000, Height: 100}, chooseExtent(caps, hal.Extent2D{Width: 5000, Height: 10}))
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), chooseImageCount(hal.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
	assert.Equal(t, uint32(3), chooseImageCount(hal.SurfaceCapabilities{MinImageCount: 3, MaxImageCount: 3}))
	// Zero max means no limit.
	assert.Equal(t, uint32(5), chooseImageCount(hal.SurfaceCapabilities{MinImageCount: 4}))
}

func TestNewSwapChain(t *testing.T) {
	dev, drv := newTestDevice(t)
	sc, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	require.NoError(t, err)
	defer sc.Destroy()

	caps := drv.Support.Capabilities
	n := sc.ImageCount()
	assert.GreaterOrEqual(t, n, 2)
	assert.GreaterOrEqual(t, n, int(caps.MinImageCount))
	assert.LessOrEqual(t, n, int(caps.MaxImageCount))

	assert.Len(t, sc.imageViews, n)
	assert.Len(t, sc.depthImages, n)
	assert.Len(t, sc.depthViews, n)
	assert.Len(t, sc.framebuffers, n)
	assert.Len(t, sc.imagesInFlight, n)

	assert.Equal(t, extent800x600, sc.Extent())
	assert.Equal(t, hal.FormatB8G8R8A8Srgb, sc.ImageFormat())
	assert.Equal(t, hal.FormatD32Sfloat, sc.DepthFormat())
	assert.Equal(t, hal.PresentModeMailbox, sc.PresentMode())
	assert.InDelta(t, 800.0/600.0, sc.ExtentAspectRatio(), 1e-6)

	info := drv.SwapchainInfos()[0]
	assert.True(t, info.Old.IsNil())
	assert.Empty(t, drv.Violations())
}

func TestSwapChainDestroyOrder(t *testing.T) {
	dev, drv := newTestDevice(t)
	sc, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	require.NoError(t, err)

	sc.Destroy()
	sc.Destroy()

	for _, kind := range []string{
		haltest.KindSwapchain, haltest.KindSwapImage, haltest.KindImageView, haltest.KindImage,
		haltest.KindAllocation, haltest.KindRenderPass, haltest.KindFramebuffer,
		haltest.KindSemaphore, haltest.KindFence,
	} {
		assert.Zero(t, drv.Live(kind), kind)
	}

	log := drv.DestroyLog()
	lastFramebuffer := -1
	for i, kind := range log {
		if kind == haltest.KindFramebuffer {
			lastFramebuffer = i
		}
	}
	assert.Less(t, slices.Index(log, haltest.KindFramebuffer), slices.Index(log, haltest.KindImage),
		"framebuffers go before the depth images they reference")
	assert.Less(t, lastFramebuffer, slices.Index(log, haltest.KindRenderPass))
	assert.Less(t, slices.Index(log, haltest.KindFence), slices.Index(log, haltest.KindFramebuffer))
	assert.Equal(t, haltest.KindSwapchain, log[len(log)-1], "the swapchain itself goes last")
	assert.Empty(t, drv.Violations())
}

func TestNewSwapChainFailureIsAtomic(t *testing.T) {
	for _, op := range []string{"CreateSwapchain", "CreateImageView", "CreateRenderPass", "CreateImage", "CreateFramebuffer", "CreateSemaphore", "CreateFence"} {
		t.Run(op, func(t *testing.T) {
			dev, drv := newTestDevice(t)
			drv.FailNext(op, errors.New("out of device memory"))

			sc, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
			require.Error(t, err)
			assert.Nil(t, sc)
			assert.ErrorContains(t, err, "out of device memory")

			for _, kind := range []string{haltest.KindSwapchain, haltest.KindImageView, haltest.KindImage,
				haltest.KindAllocation, haltest.KindRenderPass, haltest.KindFramebuffer,
				haltest.KindSemaphore, haltest.KindFence} {
				assert.Zero(t, drv.Live(kind), kind)
			}
			assert.Empty(t, drv.Violations())
		})
	}
}

func TestNewSwapChainNoDepthFormat(t *testing.T) {
	dev, drv := newTestDevice(t)
	delete(drv.FormatSupport, hal.FormatD32Sfloat)

	_, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	assert.ErrorIs(t, err, ErrNoSupportedFormat)
	assert.Zero(t, drv.Live(haltest.KindSwapchain))
}

func TestSwapChainPredecessorHandoff(t *testing.T) {
	dev, drv := newTestDevice(t)
	first, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	require.NoError(t, err)
	old := first.swapchain

	second, err := NewSwapChain(dev, extent800x600, first, DefaultSwapChainOptions())
	require.NoError(t, err)
	defer second.Destroy()

	assert.Equal(t, old, drv.SwapchainInfos()[1].Old)
	assert.Equal(t, 1, drv.Live(haltest.KindSwapchain), "predecessor is released once superseded")
	assert.Equal(t, MaxFramesInFlight, drv.Live(haltest.KindFence))
	assert.True(t, first.CompareSwapFormats(second))
	assert.Equal(t, first.ImageFormat(), second.ImageFormat())
	assert.Empty(t, drv.Violations())
}

func TestSwapChainPredecessorReleasedOnFailure(t *testing.T) {
	dev, drv := newTestDevice(t)
	first, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	require.NoError(t, err)

	drv.FailNext("CreateFramebuffer", errors.New("boom"))
	_, err = NewSwapChain(dev, extent800x600, first, DefaultSwapChainOptions())
	require.Error(t, err)
	assert.Zero(t, drv.Live(haltest.KindSwapchain))
	assert.Zero(t, drv.Live(haltest.KindFence))
}

func TestCompareSwapFormats(t *testing.T) {
	dev, drv := newTestDevice(t)
	a, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	require.NoError(t, err)
	defer a.Destroy()

	drv.Support.Formats = []hal.SurfaceFormat{{Format: hal.FormatB8G8R8A8Unorm}}
	b, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	require.NoError(t, err)
	defer b.Destroy()

	assert.False(t, a.CompareSwapFormats(b))
}

func TestSwapChainFrameProtocol(t *testing.T) {
	dev, drv := newTestDevice(t)
	sc, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	require.NoError(t, err)
	defer sc.Destroy()

	cbs, err := drv.AllocateCommandBuffers(dev.CommandPool(), MaxFramesInFlight)
	require.NoError(t, err)

	for frame := range 12 {
		idx, res, err := sc.AcquireNextImage()
		require.NoError(t, err)
		require.Equal(t, hal.ResultSuccess, res)

		cb := cbs[frame%MaxFramesInFlight]
		require.NoError(t, drv.BeginCommandBuffer(cb, false))
		require.NoError(t, drv.EndCommandBuffer(cb))

		res, err = sc.SubmitCommandBuffers([]hal.CommandBuffer{cb}, idx)
		require.NoError(t, err)
		require.Equal(t, hal.ResultSuccess, res)
		assert.Equal(t, (frame+1)%MaxFramesInFlight, sc.currentFrame)
	}

	assert.Empty(t, drv.Violations())
	assert.LessOrEqual(t, drv.MaxPendingFences(), MaxFramesInFlight)
	require.NoError(t, dev.WaitIdle())
}

// An image coming back while the frame that last rendered it is still in
// flight must be waited on through the per-image fence table.
func TestSwapChainWaitsForImageInFlight(t *testing.T) {
	dev, drv := newTestDevice(t)
	order := []uint32{0, 1, 1}
	drv.AcquireHook = func(n int) (uint32, hal.Result, error) {
		return order[n], hal.ResultSuccess, nil
	}
	sc, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	require.NoError(t, err)
	defer sc.Destroy()

	cbs, err := drv.AllocateCommandBuffers(dev.CommandPool(), MaxFramesInFlight)
	require.NoError(t, err)

	for frame := range order {
		idx, _, err := sc.AcquireNextImage()
		require.NoError(t, err)
		cb := cbs[frame%MaxFramesInFlight]
		require.NoError(t, drv.BeginCommandBuffer(cb, false))
		require.NoError(t, drv.EndCommandBuffer(cb))
		_, err = sc.SubmitCommandBuffers([]hal.CommandBuffer{cb}, idx)
		require.NoError(t, err)
	}

	// Three slot waits plus one wait on the fence that last used image 1.
	assert.Equal(t, 4, drv.Calls("WaitForFences"))
	assert.Equal(t, sc.inFlight[0], sc.imagesInFlight[1])
	assert.Empty(t, drv.Violations())
}

func TestSwapChainSubmitRejectsBadIndex(t *testing.T) {
	dev, _ := newTestDevice(t)
	sc, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	require.NoError(t, err)
	defer sc.Destroy()

	_, err = sc.SubmitCommandBuffers(nil, uint32(sc.ImageCount()))
	assert.Error(t, err)
}

func TestSwapChainFenceTimeout(t *testing.T) {
	dev, drv := newTestDevice(t)
	drv.StallFences = true
	opts := DefaultSwapChainOptions()
	opts.FenceTimeout = 1_000_000
	sc, err := NewSwapChain(dev, extent800x600, nil, opts)
	require.NoError(t, err)
	defer sc.Destroy()

	cbs, err := drv.AllocateCommandBuffers(dev.CommandPool(), MaxFramesInFlight)
	require.NoError(t, err)
	for frame := range MaxFramesInFlight {
		idx, _, err := sc.AcquireNextImage()
		require.NoError(t, err)
		cb := cbs[frame]
		require.NoError(t, drv.BeginCommandBuffer(cb, false))
		require.NoError(t, drv.EndCommandBuffer(cb))
		_, err = sc.SubmitCommandBuffers([]hal.CommandBuffer{cb}, idx)
		require.NoError(t, err)
	}

	_, _, err = sc.AcquireNextImage()
	assert.ErrorIs(t, err, hal.ErrTimeout)
	drv.StallFences = false
	require.NoError(t, dev.WaitIdle())
}

func TestSwapChainSubmitFailureReplacesFence(t *testing.T) {
	dev, drv := newTestDevice(t)
	sc, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	require.NoError(t, err)
	defer sc.Destroy()

	cbs, err := drv.AllocateCommandBuffers(dev.CommandPool(), 1)
	require.NoError(t, err)
	cb := cbs[0]

	idx, _, err := sc.AcquireNextImage()
	require.NoError(t, err)
	stale := sc.inFlight[0]
	drv.FailNext("QueueSubmit", errors.New("device lost"))
	_, err = sc.SubmitCommandBuffers([]hal.CommandBuffer{cb}, idx)
	require.ErrorContains(t, err, "device lost")

	assert.Equal(t, 1, sc.currentFrame)
	assert.NotEqual(t, stale, sc.inFlight[0])
	assert.True(t, sc.imagesInFlight[idx].IsNil())
	assert.Equal(t, MaxFramesInFlight, drv.Live(haltest.KindFence))

	for range MaxFramesInFlight {
		idx, _, err := sc.AcquireNextImage()
		require.NoError(t, err)
		_, err = sc.SubmitCommandBuffers(nil, idx)
		require.NoError(t, err)
	}
	assert.Empty(t, drv.Violations())
	require.NoError(t, dev.WaitIdle())
}

func TestSwapChainBadImageIndexAdvancesSlot(t *testing.T) {
	dev, _ := newTestDevice(t)
	sc, err := NewSwapChain(dev, extent800x600, nil, DefaultSwapChainOptions())
	require.NoError(t, err)
	defer sc.Destroy()

	_, err = sc.SubmitCommandBuffers(nil, uint32(sc.ImageCount()))
	assert.ErrorContains(t, err, "out of range")
	assert.Equal(t, 1, sc.currentFrame)
}
