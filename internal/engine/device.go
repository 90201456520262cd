package engine

import (
	"fmt"

	"github.com/pkg/errors"

	"teapot/internal/hal"
	"teapot/internal/logging"
)

// Device owns the logical device driver and the command pool used for both
// per-frame and one-shot command buffers. It is used from a single
// goroutine.
type Device struct {
	drv  hal.Driver
	pool hal.CommandPool
}

// NewDevice takes ownership of drv and creates the command pool.
func NewDevice(drv hal.Driver) (*Device, error) {
	pool, err := drv.CreateCommandPool()
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	props := drv.Properties()
	logging.Logger().Info("device ready", "gpu", props.Name, "discrete", props.Discrete)
	return &Device{drv: drv, pool: pool}, nil
}

// Driver exposes the underlying driver for pipeline and resource code.
func (d *Device) Driver() hal.Driver { return d.drv }

func (d *Device) CommandPool() hal.CommandPool { return d.pool }
func (d *Device) GraphicsQueue() hal.Queue     { return d.drv.GraphicsQueue() }
func (d *Device) PresentQueue() hal.Queue      { return d.drv.PresentQueue() }

// WaitIdle blocks until the device has finished all submitted work.
func (d *Device) WaitIdle() error {
	return errors.Wrap(d.drv.DeviceWaitIdle(), "wait device idle")
}

// Close destroys the command pool and the driver. The caller must have
// released every object created through the device first.
func (d *Device) Close() {
	if d.drv == nil {
		return
	}
	st := d.drv.AllocatorStats()
	if st.Allocations > 0 {
		logging.Logger().Warn("device closed with live allocations", "count", st.Allocations, "bytes", st.Bytes)
	}
	d.drv.DestroyCommandPool(d.pool)
	d.drv.Destroy()
	d.drv = nil
}

// CreateBuffer creates a buffer with its own allocation.
func (d *Device) CreateBuffer(size uint64, usage hal.BufferUsage, mem hal.MemoryUsage) (hal.Buffer, hal.Allocation, error) {
	buf, alloc, err := d.drv.CreateBuffer(hal.BufferInfo{Size: size, Usage: usage}, mem)
	if err != nil {
		return hal.Buffer{}, hal.Allocation{}, errors.Wrapf(err, "create buffer of %d bytes", size)
	}
	return buf, alloc, nil
}

// CreateImage creates a 2D image with its own allocation.
func (d *Device) CreateImage(info hal.ImageInfo, mem hal.MemoryUsage) (hal.Image, hal.Allocation, error) {
	if info.MipLevels == 0 {
		info.MipLevels = 1
	}
	if info.ArrayLayers == 0 {
		info.ArrayLayers = 1
	}
	img, alloc, err := d.drv.CreateImage(info, mem)
	if err != nil {
		return hal.Image{}, hal.Allocation{}, errors.Wrapf(err, "create %dx%d %s image", info.Extent.Width, info.Extent.Height, info.Format)
	}
	return img, alloc, nil
}

// WriteBuffer copies data into a host-visible allocation.
func (d *Device) WriteBuffer(alloc hal.Allocation, data []byte) error {
	mem, err := d.drv.MapMemory(alloc)
	if err != nil {
		return errors.Wrap(err, "map memory")
	}
	defer d.drv.UnmapMemory(alloc)
	if len(data) > len(mem) {
		return fmt.Errorf("write %d bytes into %d byte allocation", len(data), len(mem))
	}
	copy(mem, data)
	return nil
}

// FindSupportedFormat returns the first candidate supporting features with
// the given tiling.
func (d *Device) FindSupportedFormat(candidates []hal.Format, tiling hal.ImageTiling, features hal.FormatFeature) (hal.Format, error) {
	for _, f := range candidates {
		props := d.drv.FormatProperties(f)
		switch {
		case tiling == hal.TilingLinear && props.LinearTiling&features == features:
			return f, nil
		case tiling == hal.TilingOptimal && props.OptimalTiling&features == features:
			return f, nil
		}
	}
	return hal.FormatUndefined, ErrNoSupportedFormat
}

// FindDepthFormat picks the depth attachment format.
func (d *Device) FindDepthFormat() (hal.Format, error) {
	return d.FindSupportedFormat(
		[]hal.Format{hal.FormatD32Sfloat, hal.FormatD32SfloatS8Uint, hal.FormatD24UnormS8Uint},
		hal.TilingOptimal,
		hal.FormatFeatureDepthStencilAttachment,
	)
}

// BeginSingleTimeCommands allocates a command buffer and starts a one-time
// recording on it.
func (d *Device) BeginSingleTimeCommands() (hal.CommandBuffer, error) {
	cbs, err := d.drv.AllocateCommandBuffers(d.pool, 1)
	if err != nil {
		return hal.CommandBuffer{}, errors.Wrap(err, "allocate single-time command buffer")
	}
	if err := d.drv.BeginCommandBuffer(cbs[0], true); err != nil {
		d.drv.FreeCommandBuffers(d.pool, cbs)
		return hal.CommandBuffer{}, errors.Wrap(err, "begin single-time command buffer")
	}
	return cbs[0], nil
}

// EndSingleTimeCommands submits cb, waits for the graphics queue to drain
// and frees cb.
func (d *Device) EndSingleTimeCommands(cb hal.CommandBuffer) error {
	defer d.drv.FreeCommandBuffers(d.pool, []hal.CommandBuffer{cb})
	if err := d.drv.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "end single-time command buffer")
	}
	q := d.drv.GraphicsQueue()
	if err := d.drv.QueueSubmit(q, hal.SubmitInfo{CommandBuffers: []hal.CommandBuffer{cb}}); err != nil {
		return errors.Wrap(err, "submit single-time command buffer")
	}
	return errors.Wrap(d.drv.QueueWaitIdle(q), "wait graphics queue")
}

// SubmitOnce records fn into a one-shot command buffer and waits for it to
// execute.
func (d *Device) SubmitOnce(fn func(cb hal.CommandBuffer)) error {
	cb, err := d.BeginSingleTimeCommands()
	if err != nil {
		return err
	}
	fn(cb)
	return d.EndSingleTimeCommands(cb)
}

func (d *Device) CopyBuffer(src, dst hal.Buffer, size uint64) error {
	return d.SubmitOnce(func(cb hal.CommandBuffer) {
		d.drv.CmdCopyBuffer(cb, src, dst, size)
	})
}

// CopyBufferToImage copies tightly packed pixels into an image that is in
// TRANSFER_DST_OPTIMAL layout.
func (d *Device) CopyBufferToImage(src hal.Buffer, dst hal.Image, width, height, layers uint32) error {
	return d.SubmitOnce(func(cb hal.CommandBuffer) {
		d.drv.CmdCopyBufferToImage(cb, src, dst, hal.ImageLayoutTransferDstOptimal, hal.BufferImageCopy{
			Width:      width,
			Height:     height,
			LayerCount: layers,
		})
	})
}

// TransitionImageLayout moves a color image between layouts. Only the two
// transitions used by texture upload are supported.
func (d *Device) TransitionImageLayout(img hal.Image, format hal.Format, from, to hal.ImageLayout) error {
	barrier := hal.ImageBarrier{
		Image:     img,
		OldLayout: from,
		NewLayout: to,
		Aspect:    hal.AspectColor,
	}
	switch {
	case from == hal.ImageLayoutUndefined && to == hal.ImageLayoutTransferDstOptimal:
		barrier.SrcAccess = 0
		barrier.DstAccess = hal.AccessTransferWrite
		barrier.SrcStage = hal.StageTopOfPipe
		barrier.DstStage = hal.StageTransfer
	case from == hal.ImageLayoutTransferDstOptimal && to == hal.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccess = hal.AccessTransferWrite
		barrier.DstAccess = hal.AccessShaderRead
		barrier.SrcStage = hal.StageTransfer
		barrier.DstStage = hal.StageFragmentShader
	default:
		return errors.Wrapf(ErrUnsupportedLayoutTransition, "%s -> %s (%s)", from, to, format)
	}
	return d.SubmitOnce(func(cb hal.CommandBuffer) {
		d.drv.CmdPipelineBarrier(cb, barrier)
	})
}
