package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teapot/internal/hal"
	"teapot/internal/hal/haltest"
)

func newTestRenderer(t *testing.T) (*Renderer, *fakeWindow, *haltest.Driver) {
	t.Helper()
	dev, drv := newTestDevice(t)
	win := newFakeWindow()
	r, err := NewRenderer(win, dev, DefaultSwapChainOptions())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = dev.WaitIdle()
		r.Close()
	})
	return r, win, drv
}

func drawFrame(t *testing.T, r *Renderer) hal.CommandBuffer {
	t.Helper()
	cb, err := r.BeginFrame()
	require.NoError(t, err)
	if cb.IsNil() {
		return cb
	}
	require.NoError(t, r.BeginSwapChainRenderPass(cb))
	require.NoError(t, r.EndSwapChainRenderPass(cb))
	require.NoError(t, r.EndFrame())
	return cb
}

func TestRendererFrameStateMachine(t *testing.T) {
	r, _, _ := newTestRenderer(t)
	assert.False(t, r.IsFrameInProgress())
	assert.True(t, r.CurrentCommandBuffer().IsNil())

	assert.ErrorIs(t, r.EndFrame(), ErrNoFrameInProgress)

	cb, err := r.BeginFrame()
	require.NoError(t, err)
	require.False(t, cb.IsNil())
	assert.True(t, r.IsFrameInProgress())
	assert.Equal(t, cb, r.CurrentCommandBuffer())

	_, err = r.BeginFrame()
	assert.ErrorIs(t, err, ErrFrameInProgress)
	assert.True(t, r.IsFrameInProgress(), "a rejected BeginFrame leaves the frame alone")

	require.NoError(t, r.EndFrame())
	assert.False(t, r.IsFrameInProgress())
	assert.ErrorIs(t, r.EndFrame(), ErrNoFrameInProgress)
}

func TestRendererFrameIndexCycles(t *testing.T) {
	r, _, drv := newTestRenderer(t)

	var seen []int
	var buffers []hal.CommandBuffer
	for range 6 {
		seen = append(seen, r.FrameIndex())
		buffers = append(buffers, drawFrame(t, r))
	}
	assert.Equal(t, []int{0, 1, 0, 1, 0, 1}, seen)
	assert.Equal(t, buffers[0], buffers[2])
	assert.NotEqual(t, buffers[0], buffers[1])

	assert.Empty(t, drv.Violations())
	assert.LessOrEqual(t, drv.MaxPendingFences(), MaxFramesInFlight)
	assert.Equal(t, 1, drv.Calls("CreateSwapchain"))
}

func TestRendererRenderPassCommands(t *testing.T) {
	r, _, drv := newTestRenderer(t)

	cb, err := r.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, r.BeginSwapChainRenderPass(cb))

	cmds := drv.Commands(cb)
	require.Len(t, cmds, 3)

	begin := cmds[0].RenderPass
	assert.Equal(t, "BeginRenderPass", cmds[0].Op)
	assert.Equal(t, [4]float32{0.1, 0.1, 0.1, 1}, begin.ClearColor)
	assert.Equal(t, float32(1), begin.ClearDepth)
	assert.Equal(t, uint32(0), begin.ClearStencil)
	assert.Equal(t, r.SwapChainRenderPass(), begin.RenderPass)
	assert.Equal(t, extent800x600, begin.RenderArea.Extent)

	assert.Equal(t, hal.Viewport{Width: 800, Height: 600, MaxDepth: 1}, cmds[1].Viewport)
	assert.Equal(t, hal.Rect2D{Extent: extent800x600}, cmds[2].Scissor)

	require.NoError(t, r.EndSwapChainRenderPass(cb))
	require.NoError(t, r.EndFrame())
}

func TestRendererRejectsForeignCommandBuffer(t *testing.T) {
	r, _, drv := newTestRenderer(t)
	other, err := drv.AllocateCommandBuffers(r.dev.CommandPool(), 1)
	require.NoError(t, err)

	assert.ErrorIs(t, r.BeginSwapChainRenderPass(other[0]), ErrNoFrameInProgress)

	cb, err := r.BeginFrame()
	require.NoError(t, err)
	assert.ErrorIs(t, r.BeginSwapChainRenderPass(other[0]), ErrForeignCommandBuffer)
	assert.ErrorIs(t, r.EndSwapChainRenderPass(other[0]), ErrForeignCommandBuffer)
	require.NoError(t, r.BeginSwapChainRenderPass(cb))
	require.NoError(t, r.EndSwapChainRenderPass(cb))
	require.NoError(t, r.EndFrame())

	drv.FreeCommandBuffers(r.dev.CommandPool(), other)
}

func TestRendererOutOfDateAcquireSkipsFrame(t *testing.T) {
	r, _, drv := newTestRenderer(t)
	drv.AcquireHook = func(n int) (uint32, hal.Result, error) {
		if n == 0 {
			return 0, hal.ResultOutOfDate, nil
		}
		return 0, hal.ResultSuccess, nil
	}

	cb, err := r.BeginFrame()
	require.NoError(t, err)
	assert.True(t, cb.IsNil(), "no command buffer for a skipped frame")
	assert.False(t, r.IsFrameInProgress())
	assert.Equal(t, 0, r.FrameIndex())
	assert.Equal(t, 2, drv.Calls("CreateSwapchain"))
	assert.Equal(t, 2, drv.Calls("DeviceWaitIdle"))

	assert.False(t, drawFrame(t, r).IsNil())
	assert.Empty(t, drv.Violations())
}

func TestRendererSuboptimalAcquireStillDraws(t *testing.T) {
	r, _, drv := newTestRenderer(t)
	drv.AcquireHook = func(n int) (uint32, hal.Result, error) {
		return 0, hal.ResultSuboptimal, nil
	}

	cb, err := r.BeginFrame()
	require.NoError(t, err)
	assert.False(t, cb.IsNil())
	require.NoError(t, r.EndFrame())
	assert.Equal(t, 1, drv.Calls("CreateSwapchain"))
}

func TestRendererResizeMidFrame(t *testing.T) {
	r, win, drv := newTestRenderer(t)

	cb, err := r.BeginFrame()
	require.NoError(t, err)
	require.False(t, cb.IsNil())

	win.resized = true
	require.NoError(t, r.EndFrame())

	assert.Equal(t, 2, drv.Calls("CreateSwapchain"))
	assert.False(t, win.resized)
	assert.Equal(t, 1, win.resets, "resize flag is cleared exactly once")
	assert.False(t, r.IsFrameInProgress())
	assert.Equal(t, 1, r.FrameIndex(), "frame slot advances across recreation")

	drawFrame(t, r)
	assert.Equal(t, 1, win.resets)
	assert.Equal(t, 2, drv.Calls("CreateSwapchain"))
	assert.Empty(t, drv.Violations())
}

func TestRendererPresentResultsTriggerRecreation(t *testing.T) {
	for _, res := range []hal.Result{hal.ResultSuboptimal, hal.ResultOutOfDate} {
		t.Run(res.String(), func(t *testing.T) {
			r, win, drv := newTestRenderer(t)
			drv.PresentHook = func(n int) (hal.Result, error) {
				if n == 0 {
					return res, nil
				}
				return hal.ResultSuccess, nil
			}

			drawFrame(t, r)
			assert.Equal(t, 2, drv.Calls("CreateSwapchain"))
			assert.Equal(t, 1, win.resets)

			drawFrame(t, r)
			assert.Equal(t, 2, drv.Calls("CreateSwapchain"))
			assert.Empty(t, drv.Violations())
		})
	}
}

func TestRendererMinimizedWindowStalls(t *testing.T) {
	r, win, drv := newTestRenderer(t)
	drv.UseApplicationExtent(hal.Extent2D{Width: 1, Height: 1}, hal.Extent2D{Width: 4096, Height: 4096})

	cb, err := r.BeginFrame()
	require.NoError(t, err)
	require.False(t, cb.IsNil())

	win.extent = hal.Extent2D{}
	win.pending = []hal.Extent2D{{}, {Width: 0, Height: 300}, {Width: 1024, Height: 768}}
	win.resized = true
	require.NoError(t, r.EndFrame())

	assert.Equal(t, 3, win.waits, "construction waits until the window has a size")
	assert.Equal(t, hal.Extent2D{Width: 1024, Height: 768}, r.SwapChain().Extent())
	assert.InDelta(t, 1024.0/768.0, r.AspectRatio(), 1e-6)
	assert.Empty(t, drv.Violations())
}

func TestRendererRecreateIsIdempotent(t *testing.T) {
	r, _, drv := newTestRenderer(t)

	require.NoError(t, r.recreateSwapChain())
	first := r.SwapChain()
	count, color, depth := first.ImageCount(), first.ImageFormat(), first.DepthFormat()

	require.NoError(t, r.recreateSwapChain())
	second := r.SwapChain()
	assert.Equal(t, count, second.ImageCount())
	assert.Equal(t, color, second.ImageFormat())
	assert.Equal(t, depth, second.DepthFormat())
	assert.True(t, first.CompareSwapFormats(second))

	assert.Zero(t, drv.Calls("FreeCommandBuffers"), "command buffers survive an unchanged image count")
	assert.Equal(t, 1, drv.Live(haltest.KindSwapchain))
}

func TestRendererFormatChangeIsFatal(t *testing.T) {
	r, win, drv := newTestRenderer(t)
	drv.Support.Formats = []hal.SurfaceFormat{{Format: hal.FormatB8G8R8A8Unorm}}

	_, err := r.BeginFrame()
	require.NoError(t, err)
	win.resized = true
	err = r.EndFrame()
	assert.ErrorIs(t, err, ErrSwapFormatChanged)
	assert.False(t, r.IsFrameInProgress())
	assert.Zero(t, drv.Live(haltest.KindSwapchain))

	_, err = r.BeginFrame()
	assert.Error(t, err)
}

func TestRendererImageCountChangeReallocates(t *testing.T) {
	r, win, drv := newTestRenderer(t)
	before := r.SwapChain().ImageCount()
	drv.Support.Capabilities.MinImageCount = 4

	_, err := r.BeginFrame()
	require.NoError(t, err)
	win.resized = true
	require.NoError(t, r.EndFrame())

	assert.NotEqual(t, before, r.SwapChain().ImageCount())
	assert.Equal(t, 1, drv.Calls("FreeCommandBuffers"))
	assert.Equal(t, MaxFramesInFlight, drv.Live(haltest.KindCommandBuffer))
	drawFrame(t, r)
	assert.Empty(t, drv.Violations())
}

func TestRendererEndFrameErrorStillEndsFrame(t *testing.T) {
	r, _, drv := newTestRenderer(t)

	_, err := r.BeginFrame()
	require.NoError(t, err)
	drv.FailNext("QueueSubmit", errors.New("device lost"))

	err = r.EndFrame()
	assert.ErrorContains(t, err, "device lost")
	assert.False(t, r.IsFrameInProgress())
	assert.Equal(t, 1, r.FrameIndex())
	assert.Equal(t, r.FrameIndex(), r.SwapChain().currentFrame)
	assert.Equal(t, MaxFramesInFlight, drv.Live(haltest.KindFence))

	// Both slots, including the one whose submit failed, stay usable.
	for range 2 * MaxFramesInFlight {
		drawFrame(t, r)
		assert.Equal(t, r.FrameIndex(), r.SwapChain().currentFrame)
	}
	assert.Empty(t, drv.Violations())
}

func TestNewRendererFailureReleasesSwapChain(t *testing.T) {
	dev, drv := newTestDevice(t)
	drv.FailNext("AllocateCommandBuffers", errors.New("out of host memory"))

	r, err := NewRenderer(newFakeWindow(), dev, DefaultSwapChainOptions())
	require.Error(t, err)
	assert.Nil(t, r)
	assert.Zero(t, drv.Live(haltest.KindSwapchain))
	assert.Zero(t, drv.Live(haltest.KindFence))
}
