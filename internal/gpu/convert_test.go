package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"

	"teapot/internal/hal"
)

func TestFormatRoundTrip(t *testing.T) {
	for h := range formats {
		assert.Equal(t, h, fromVkFormat(toVkFormat(h)), h.String())
	}
	assert.Equal(t, hal.FormatUndefined, fromVkFormat(vk.FormatR16g16b16a16Sfloat))
}

func TestPresentModes(t *testing.T) {
	m, ok := fromVkPresentMode(vk.PresentModeMailbox)
	assert.True(t, ok)
	assert.Equal(t, hal.PresentModeMailbox, m)
	assert.Equal(t, vk.PresentModeFifo, toVkPresentMode(hal.PresentModeFifo))

	_, ok = fromVkPresentMode(vk.PresentMode(0x7fff))
	assert.False(t, ok)
}

func TestPresentResult(t *testing.T) {
	r, err := presentResult(vk.Suboptimal)
	assert.NoError(t, err)
	assert.Equal(t, hal.ResultSuboptimal, r)

	r, err = presentResult(vk.ErrorOutOfDate)
	assert.NoError(t, err)
	assert.Equal(t, hal.ResultOutOfDate, r)

	_, err = presentResult(vk.Timeout)
	assert.ErrorIs(t, err, hal.ErrTimeout)

	_, err = presentResult(vk.ErrorDeviceLost)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, hal.ErrTimeout)
}

func TestMemoryProperties(t *testing.T) {
	assert.Equal(t, vk.MemoryPropertyDeviceLocalBit, memoryProperties(hal.MemoryGPUOnly))
	host := memoryProperties(hal.MemoryCPUOnly)
	assert.NotZero(t, host&vk.MemoryPropertyHostVisibleBit)
	assert.NotZero(t, host&vk.MemoryPropertyHostCoherentBit)
	assert.Equal(t, host, memoryProperties(hal.MemoryCPUToGPU))
}

func TestFlagConversions(t *testing.T) {
	usage := toVkBufferUsage(hal.BufferUsageVertex | hal.BufferUsageTransferDst)
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit|vk.BufferUsageTransferDstBit), usage)

	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit),
		toVkAspect(hal.AspectDepth|hal.AspectStencil))

	assert.Equal(t, vk.ColorComponentFlags(vk.ColorComponentRBit|vk.ColorComponentGBit|vk.ColorComponentBBit|vk.ColorComponentABit),
		toVkColorMask(hal.ColorComponentAll))

	assert.Equal(t, vk.SampleCount4Bit, toVkSamples(4))
	assert.Equal(t, vk.SampleCount1Bit, toVkSamples(3))
}

func TestLayouts(t *testing.T) {
	assert.Equal(t, vk.ImageLayoutPresentSrc, toVkLayout(hal.ImageLayoutPresentSrc))
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, toVkLayout(hal.ImageLayoutShaderReadOnlyOptimal))
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b\x00"}))
}
