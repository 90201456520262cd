package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teapot/internal/hal"
	"teapot/internal/hal/haltest"
)

func TestFindDepthFormat(t *testing.T) {
	dev, drv := newTestDevice(t)

	f, err := dev.FindDepthFormat()
	require.NoError(t, err)
	assert.Equal(t, hal.FormatD32Sfloat, f)

	delete(drv.FormatSupport, hal.FormatD32Sfloat)
	drv.FormatSupport[hal.FormatD24UnormS8Uint] = hal.FormatProperties{
		OptimalTiling: hal.FormatFeatureDepthStencilAttachment,
	}
	f, err = dev.FindDepthFormat()
	require.NoError(t, err)
	assert.Equal(t, hal.FormatD24UnormS8Uint, f)

	// Linear-only support does not count for optimal tiling.
	drv.FormatSupport = map[hal.Format]hal.FormatProperties{
		hal.FormatD32Sfloat: {LinearTiling: hal.FormatFeatureDepthStencilAttachment},
	}
	_, err = dev.FindDepthFormat()
	assert.ErrorIs(t, err, ErrNoSupportedFormat)
}

func TestTransitionImageLayout(t *testing.T) {
	dev, drv := newTestDevice(t)
	img, mem, err := dev.CreateImage(hal.ImageInfo{
		Extent: hal.Extent2D{Width: 4, Height: 4},
		Format: hal.FormatR8G8B8A8Srgb,
		Usage:  hal.ImageUsageTransferDst | hal.ImageUsageSampled,
	}, hal.MemoryGPUOnly)
	require.NoError(t, err)

	require.NoError(t, dev.TransitionImageLayout(img, hal.FormatR8G8B8A8Srgb,
		hal.ImageLayoutUndefined, hal.ImageLayoutTransferDstOptimal))
	require.NoError(t, dev.TransitionImageLayout(img, hal.FormatR8G8B8A8Srgb,
		hal.ImageLayoutTransferDstOptimal, hal.ImageLayoutShaderReadOnlyOptimal))

	log := drv.Log()
	require.Len(t, log, 2)

	toTransfer := log[0].Barrier
	assert.Equal(t, hal.Access(0), toTransfer.SrcAccess)
	assert.Equal(t, hal.AccessTransferWrite, toTransfer.DstAccess)
	assert.Equal(t, hal.StageTopOfPipe, toTransfer.SrcStage)
	assert.Equal(t, hal.StageTransfer, toTransfer.DstStage)

	toShader := log[1].Barrier
	assert.Equal(t, hal.AccessTransferWrite, toShader.SrcAccess)
	assert.Equal(t, hal.AccessShaderRead, toShader.DstAccess)
	assert.Equal(t, hal.StageTransfer, toShader.SrcStage)
	assert.Equal(t, hal.StageFragmentShader, toShader.DstStage)

	// Each transition waited for the queue and freed its command buffer.
	assert.Equal(t, 2, drv.Calls("QueueWaitIdle"))
	assert.Zero(t, drv.Live(haltest.KindCommandBuffer))
	assert.Empty(t, drv.Violations())

	drv.DestroyImage(img, mem)
}

func TestTransitionImageLayoutUnsupported(t *testing.T) {
	dev, drv := newTestDevice(t)
	img, mem, err := dev.CreateImage(hal.ImageInfo{
		Extent: hal.Extent2D{Width: 4, Height: 4},
		Format: hal.FormatR8G8B8A8Srgb,
	}, hal.MemoryGPUOnly)
	require.NoError(t, err)
	defer drv.DestroyImage(img, mem)

	err = dev.TransitionImageLayout(img, hal.FormatR8G8B8A8Srgb,
		hal.ImageLayoutShaderReadOnlyOptimal, hal.ImageLayoutTransferDstOptimal)
	assert.ErrorIs(t, err, ErrUnsupportedLayoutTransition)
	assert.Contains(t, err.Error(), "SHADER_READ_ONLY_OPTIMAL -> TRANSFER_DST_OPTIMAL")
	assert.Zero(t, drv.Calls("AllocateCommandBuffers"), "nothing may be recorded")
}

func TestCopyBuffer(t *testing.T) {
	dev, drv := newTestDevice(t)
	src, srcMem, err := dev.CreateBuffer(64, hal.BufferUsageTransferSrc, hal.MemoryCPUOnly)
	require.NoError(t, err)
	dst, dstMem, err := dev.CreateBuffer(64, hal.BufferUsageTransferDst|hal.BufferUsageVertex, hal.MemoryGPUOnly)
	require.NoError(t, err)

	require.NoError(t, dev.CopyBuffer(src, dst, 64))

	require.Equal(t, []string{"CopyBuffer"}, drv.LogOps())
	assert.Equal(t, uint64(64), drv.Log()[0].Size)
	assert.Equal(t, []hal.Buffer{src, dst}, drv.Log()[0].Buffers)
	assert.Equal(t, 1, drv.Calls("QueueSubmit"))
	assert.Equal(t, 1, drv.Calls("QueueWaitIdle"))
	assert.Zero(t, drv.Live(haltest.KindCommandBuffer))

	drv.DestroyBuffer(src, srcMem)
	drv.DestroyBuffer(dst, dstMem)
	assert.Empty(t, drv.Violations())
}

func TestCopyBufferToImage(t *testing.T) {
	dev, drv := newTestDevice(t)
	buf, bufMem, err := dev.CreateBuffer(16*16*4, hal.BufferUsageTransferSrc, hal.MemoryCPUOnly)
	require.NoError(t, err)
	img, imgMem, err := dev.CreateImage(hal.ImageInfo{
		Extent: hal.Extent2D{Width: 16, Height: 16},
		Format: hal.FormatR8G8B8A8Srgb,
	}, hal.MemoryGPUOnly)
	require.NoError(t, err)

	require.NoError(t, dev.CopyBufferToImage(buf, img, 16, 16, 1))
	require.Len(t, drv.Log(), 1)
	assert.Equal(t, hal.BufferImageCopy{Width: 16, Height: 16, LayerCount: 1}, drv.Log()[0].Copy)

	drv.DestroyImage(img, imgMem)
	drv.DestroyBuffer(buf, bufMem)
	assert.Empty(t, drv.Violations())
}

func TestSubmitOnceFailureFreesCommandBuffer(t *testing.T) {
	dev, drv := newTestDevice(t)
	drv.FailNext("QueueSubmit", errors.New("device lost"))

	err := dev.SubmitOnce(func(hal.CommandBuffer) {})
	assert.ErrorContains(t, err, "device lost")
	assert.Zero(t, drv.Live(haltest.KindCommandBuffer))
}

func TestWriteBuffer(t *testing.T) {
	dev, drv := newTestDevice(t)
	buf, mem, err := dev.CreateBuffer(4, hal.BufferUsageTransferSrc, hal.MemoryCPUOnly)
	require.NoError(t, err)

	require.NoError(t, dev.WriteBuffer(mem, []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3, 0}, drv.Memory(mem))

	assert.Error(t, dev.WriteBuffer(mem, make([]byte, 5)))
	drv.DestroyBuffer(buf, mem)

	gpuBuf, gpuMem, err := dev.CreateBuffer(4, hal.BufferUsageVertex, hal.MemoryGPUOnly)
	require.NoError(t, err)
	assert.Error(t, dev.WriteBuffer(gpuMem, []byte{1}))
	drv.DestroyBuffer(gpuBuf, gpuMem)
}

func TestDeviceClose(t *testing.T) {
	dev, drv := newTestDevice(t)
	dev.Close()
	dev.Close()
	assert.Zero(t, drv.Live(haltest.KindCommandPool))
	assert.Equal(t, 1, drv.Calls("Destroy"))
}
