package scene

import (
	"fmt"

	"github.com/pkg/errors"

	"teapot/internal/engine"
	"teapot/internal/hal"
)

// TextureFormat is the format of every texture uploaded by NewTexture.
const TextureFormat = hal.FormatR8G8B8A8Srgb

// Texture is a sampled 2D image with its view and sampler.
type Texture struct {
	dev    *engine.Device
	width  uint32
	height uint32

	image   hal.Image
	alloc   hal.Allocation
	view    hal.ImageView
	sampler hal.Sampler
}

// NewTexture uploads tightly packed RGBA8 pixels.
func NewTexture(dev *engine.Device, width, height uint32, pixels []byte) (*Texture, error) {
	size := uint64(width) * uint64(height) * 4
	if size == 0 || uint64(len(pixels)) != size {
		return nil, fmt.Errorf("texture %dx%d needs %d bytes of pixels, got %d", width, height, size, len(pixels))
	}
	drv := dev.Driver()

	staging, stagingAlloc, err := dev.CreateBuffer(size, hal.BufferUsageTransferSrc, hal.MemoryCPUOnly)
	if err != nil {
		return nil, err
	}
	defer drv.DestroyBuffer(staging, stagingAlloc)
	if err := dev.WriteBuffer(stagingAlloc, pixels); err != nil {
		return nil, err
	}

	t := &Texture{dev: dev, width: width, height: height}
	t.image, t.alloc, err = dev.CreateImage(hal.ImageInfo{
		Extent: hal.Extent2D{Width: width, Height: height},
		Format: TextureFormat,
		Tiling: hal.TilingOptimal,
		Usage:  hal.ImageUsageTransferDst | hal.ImageUsageSampled,
	}, hal.MemoryGPUOnly)
	if err != nil {
		return nil, err
	}

	if err := dev.TransitionImageLayout(t.image, TextureFormat, hal.ImageLayoutUndefined, hal.ImageLayoutTransferDstOptimal); err != nil {
		t.Destroy()
		return nil, err
	}
	if err := dev.CopyBufferToImage(staging, t.image, width, height, 1); err != nil {
		t.Destroy()
		return nil, errors.Wrap(err, "copy texture pixels")
	}
	if err := dev.TransitionImageLayout(t.image, TextureFormat, hal.ImageLayoutTransferDstOptimal, hal.ImageLayoutShaderReadOnlyOptimal); err != nil {
		t.Destroy()
		return nil, err
	}

	if t.view, err = drv.CreateImageView(hal.ImageViewInfo{Image: t.image, Format: TextureFormat, Aspect: hal.AspectColor}); err != nil {
		t.Destroy()
		return nil, errors.Wrap(err, "failed to create texture image view")
	}
	if t.sampler, err = drv.CreateSampler(hal.SamplerInfo{Linear: true, Repeat: true}); err != nil {
		t.Destroy()
		return nil, errors.Wrap(err, "failed to create texture sampler")
	}
	return t, nil
}

// Checkerboard returns RGBA8 pixels alternating between two colors every
// cell pixels.
func Checkerboard(width, height, cell uint32, a, b [4]byte) []byte {
	if cell == 0 {
		cell = 1
	}
	pixels := make([]byte, 0, width*height*4)
	for y := uint32(0); y < height; y++ {
		for x := uint32(0); x < width; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			pixels = append(pixels, c[:]...)
		}
	}
	return pixels
}

// WhiteTexture is the 1x1 texture bound for objects without one.
func WhiteTexture(dev *engine.Device) (*Texture, error) {
	return NewTexture(dev, 1, 1, []byte{255, 255, 255, 255})
}

func (t *Texture) Width() uint32           { return t.width }
func (t *Texture) Height() uint32          { return t.height }
func (t *Texture) View() hal.ImageView     { return t.view }
func (t *Texture) Sampler() hal.Sampler    { return t.sampler }
func (t *Texture) Layout() hal.ImageLayout { return hal.ImageLayoutShaderReadOnlyOptimal }

// Destroy releases the sampler, the view and then the image.
func (t *Texture) Destroy() {
	if t == nil || t.dev == nil {
		return
	}
	drv := t.dev.Driver()
	if !t.sampler.IsNil() {
		drv.DestroySampler(t.sampler)
	}
	if !t.view.IsNil() {
		drv.DestroyImageView(t.view)
	}
	if !t.image.IsNil() {
		drv.DestroyImage(t.image, t.alloc)
	}
	*t = Texture{}
}
