package gpu

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"teapot/internal/hal"
)

func (d *Driver) querySwapchainSupport(device vk.PhysicalDevice) hal.SwapchainSupport {
	var caps vk.SurfaceCapabilities
	vk.GetPhysicalDeviceSurfaceCapabilities(device, d.surface, &caps)
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	support := hal.SwapchainSupport{
		Capabilities: hal.SurfaceCapabilities{
			MinImageCount:    caps.MinImageCount,
			MaxImageCount:    caps.MaxImageCount,
			CurrentExtent:    fromVkExtent(caps.CurrentExtent),
			MinImageExtent:   fromVkExtent(caps.MinImageExtent),
			MaxImageExtent:   fromVkExtent(caps.MaxImageExtent),
			CurrentTransform: uint32(caps.CurrentTransform),
		},
	}

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(device, d.surface, &formatCount, nil)
	if formatCount > 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		vk.GetPhysicalDeviceSurfaceFormats(device, d.surface, &formatCount, formats)
		for i := range formats {
			formats[i].Deref()
			support.Formats = append(support.Formats, hal.SurfaceFormat{
				Format:     fromVkFormat(formats[i].Format),
				ColorSpace: fromVkColorSpace(formats[i].ColorSpace),
			})
		}
	}

	var presentCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(device, d.surface, &presentCount, nil)
	if presentCount > 0 {
		modes := make([]vk.PresentMode, presentCount)
		vk.GetPhysicalDeviceSurfacePresentModes(device, d.surface, &presentCount, modes)
		for _, m := range modes {
			if mode, ok := fromVkPresentMode(m); ok {
				support.PresentModes = append(support.PresentModes, mode)
			}
		}
	}
	return support
}

// SwapchainSupport queries the surface again; the answer changes with the
// window size.
func (d *Driver) SwapchainSupport() (hal.SwapchainSupport, error) {
	support := d.querySwapchainSupport(d.physical)
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return support, errors.New("surface reports no formats or present modes")
	}
	return support, nil
}

func (d *Driver) FormatProperties(f hal.Format) hal.FormatProperties {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.physical, toVkFormat(f), &props)
	props.Deref()
	return hal.FormatProperties{
		LinearTiling:  fromVkFeatures(props.LinearTilingFeatures),
		OptimalTiling: fromVkFeatures(props.OptimalTilingFeatures),
	}
}

func (d *Driver) CreateSwapchain(info hal.SwapchainInfo) (hal.Swapchain, error) {
	old := vk.NullSwapchain
	if !info.Old.IsNil() {
		sc, ok := d.swapchains.Get(info.Old.Handle)
		if !ok {
			return hal.Swapchain{}, stale("old swapchain")
		}
		old = sc.swapchain
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    info.MinImageCount,
		ImageFormat:      toVkFormat(info.Format.Format),
		ImageColorSpace:  toVkColorSpace(info.Format.ColorSpace),
		ImageExtent:      toVkExtent(info.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformFlagBits(info.PreTransform),
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      toVkPresentMode(info.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	if d.queues.graphicsFamily != d.queues.presentFamily {
		indices := []uint32{d.queues.graphicsFamily, d.queues.presentFamily}
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(indices))
		createInfo.PQueueFamilyIndices = indices
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(d.device, &createInfo, nil, &handle)); err != nil {
		return hal.Swapchain{}, errors.Wrap(err, "create swapchain")
	}

	var count uint32
	vk.GetSwapchainImages(d.device, handle, &count, nil)
	raw := make([]vk.Image, count)
	if err := vk.Error(vk.GetSwapchainImages(d.device, handle, &count, raw)); err != nil {
		vk.DestroySwapchain(d.device, handle, nil)
		return hal.Swapchain{}, errors.Wrap(err, "get swapchain images")
	}
	sc := &swapchain{swapchain: handle, images: make([]hal.Image, len(raw))}
	for i, img := range raw {
		sc.images[i] = hal.Image{Handle: d.images.Insert(image{image: img, swapchain: true})}
	}
	return hal.Swapchain{Handle: d.swapchains.Insert(sc)}, nil
}

func (d *Driver) SwapchainImages(h hal.Swapchain) ([]hal.Image, error) {
	sc, ok := d.swapchains.Get(h.Handle)
	if !ok {
		return nil, stale("swapchain")
	}
	return append([]hal.Image(nil), sc.images...), nil
}

// DestroySwapchain also retires the handles of its images.
func (d *Driver) DestroySwapchain(h hal.Swapchain) {
	sc, ok := d.swapchains.Remove(h.Handle)
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.Remove(img.Handle)
	}
	vk.DestroySwapchain(d.device, sc.swapchain, nil)
}

func (d *Driver) AcquireNextImage(h hal.Swapchain, timeout uint64, sem hal.Semaphore) (uint32, hal.Result, error) {
	sc, ok := d.swapchains.Get(h.Handle)
	if !ok {
		return 0, hal.ResultSuccess, stale("swapchain")
	}
	s, ok := d.semaphores.Get(sem.Handle)
	if !ok {
		return 0, hal.ResultSuccess, stale("semaphore")
	}
	var index uint32
	res := vk.AcquireNextImage(d.device, sc.swapchain, timeout, s, vk.NullFence, &index)
	result, err := presentResult(res)
	if err != nil {
		return 0, result, errors.Wrap(err, "acquire next image")
	}
	return index, result, nil
}

func (d *Driver) QueuePresent(q hal.Queue, info hal.PresentInfo) (hal.Result, error) {
	queue, ok := d.queueObjs.Get(q.Handle)
	if !ok {
		return hal.ResultSuccess, stale("queue")
	}
	sc, ok := d.swapchains.Get(info.Swapchain.Handle)
	if !ok {
		return hal.ResultSuccess, stale("swapchain")
	}
	waits, err := d.lookupSemaphores(info.WaitSemaphores)
	if err != nil {
		return hal.ResultSuccess, err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.swapchain},
		PImageIndices:      []uint32{info.ImageIndex},
	}
	result, err := presentResult(vk.QueuePresent(queue, &presentInfo))
	if err != nil {
		return result, errors.Wrap(err, "queue present")
	}
	return result, nil
}

// presentResult separates the statuses the frame loop recovers from
// (suboptimal, out of date, timeout) from real failures.
func presentResult(res vk.Result) (hal.Result, error) {
	switch res {
	case vk.Success:
		return hal.ResultSuccess, nil
	case vk.Suboptimal:
		return hal.ResultSuboptimal, nil
	case vk.ErrorOutOfDate:
		return hal.ResultOutOfDate, nil
	case vk.Timeout, vk.NotReady:
		return hal.ResultSuccess, hal.ErrTimeout
	}
	return hal.ResultSuccess, vk.Error(res)
}
