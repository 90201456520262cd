package gpu

/*
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"teapot/internal/hal"
)

func (d *Driver) findMemoryType(typeFilter uint32, properties vk.MemoryPropertyFlagBits) (uint32, error) {
	want := vk.MemoryPropertyFlags(properties)
	for i := uint32(0); i < d.memProps.MemoryTypeCount; i++ {
		memoryType := d.memProps.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&want == want {
			return i, nil
		}
	}
	return 0, errors.Errorf("no memory type for filter %#x and properties %#x", typeFilter, uint32(want))
}

// allocate binds fresh memory matching req to an object through bind.
func (d *Driver) allocate(req vk.MemoryRequirements, usage hal.MemoryUsage, bind func(vk.DeviceMemory) vk.Result) (hal.Allocation, error) {
	req.Deref()
	props := memoryProperties(usage)
	typeIndex, err := d.findMemoryType(req.MemoryTypeBits, props)
	if err != nil {
		return hal.Allocation{}, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}
	var memory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(d.device, &allocInfo, nil, &memory)); err != nil {
		return hal.Allocation{}, errors.Wrap(err, "allocate memory")
	}
	if err := vk.Error(bind(memory)); err != nil {
		vk.FreeMemory(d.device, memory, nil)
		return hal.Allocation{}, errors.Wrap(err, "bind memory")
	}
	d.allocatedBytes += uint64(req.Size)
	a := &allocation{
		memory:      memory,
		size:        uint64(req.Size),
		hostVisible: props&vk.MemoryPropertyHostVisibleBit != 0,
	}
	return hal.Allocation{Handle: d.allocations.Insert(a)}, nil
}

func (d *Driver) freeAllocation(h hal.Allocation) {
	a, ok := d.allocations.Remove(h.Handle)
	if !ok {
		return
	}
	if a.mapped != nil {
		vk.UnmapMemory(d.device, a.memory)
	}
	vk.FreeMemory(d.device, a.memory, nil)
	d.allocatedBytes -= a.size
}

func (d *Driver) CreateBuffer(info hal.BufferInfo, usage hal.MemoryUsage) (hal.Buffer, hal.Allocation, error) {
	if info.Size == 0 {
		return hal.Buffer{}, hal.Allocation{}, errors.New("create buffer: size is zero")
	}
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       toVkBufferUsage(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(d.device, &bufferInfo, nil, &buffer)); err != nil {
		return hal.Buffer{}, hal.Allocation{}, errors.Wrap(err, "create buffer")
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &req)
	alloc, err := d.allocate(req, usage, func(mem vk.DeviceMemory) vk.Result {
		return vk.BindBufferMemory(d.device, buffer, mem, 0)
	})
	if err != nil {
		vk.DestroyBuffer(d.device, buffer, nil)
		return hal.Buffer{}, hal.Allocation{}, errors.Wrap(err, "buffer")
	}
	return hal.Buffer{Handle: d.buffers.Insert(buffer)}, alloc, nil
}

func (d *Driver) DestroyBuffer(b hal.Buffer, a hal.Allocation) {
	if buffer, ok := d.buffers.Remove(b.Handle); ok {
		vk.DestroyBuffer(d.device, buffer, nil)
	}
	d.freeAllocation(a)
}

func (d *Driver) CreateImage(info hal.ImageInfo, usage hal.MemoryUsage) (hal.Image, hal.Allocation, error) {
	mips, layers := info.MipLevels, info.ArrayLayers
	if mips == 0 {
		mips = 1
	}
	if layers == 0 {
		layers = 1
	}
	tiling := vk.ImageTilingOptimal
	if info.Tiling == hal.TilingLinear {
		tiling = vk.ImageTilingLinear
	}
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     mips,
		ArrayLayers:   layers,
		Format:        toVkFormat(info.Format),
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         toVkImageUsage(info.Usage),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var img vk.Image
	if err := vk.Error(vk.CreateImage(d.device, &createInfo, nil, &img)); err != nil {
		return hal.Image{}, hal.Allocation{}, errors.Wrap(err, "create image")
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img, &req)
	alloc, err := d.allocate(req, usage, func(mem vk.DeviceMemory) vk.Result {
		return vk.BindImageMemory(d.device, img, mem, 0)
	})
	if err != nil {
		vk.DestroyImage(d.device, img, nil)
		return hal.Image{}, hal.Allocation{}, errors.Wrap(err, "image")
	}
	return hal.Image{Handle: d.images.Insert(image{image: img})}, alloc, nil
}

func (d *Driver) DestroyImage(h hal.Image, a hal.Allocation) {
	if img, ok := d.images.Get(h.Handle); ok && !img.swapchain {
		d.images.Remove(h.Handle)
		vk.DestroyImage(d.device, img.image, nil)
	}
	d.freeAllocation(a)
}

// MapMemory maps the whole allocation once and keeps it mapped until
// UnmapMemory or until the allocation is freed.
func (d *Driver) MapMemory(h hal.Allocation) ([]byte, error) {
	a, ok := d.allocations.Get(h.Handle)
	if !ok {
		return nil, stale("allocation")
	}
	if !a.hostVisible {
		return nil, errors.New("map memory: allocation is not host visible")
	}
	if a.mapped == nil {
		var data unsafe.Pointer
		if err := vk.Error(vk.MapMemory(d.device, a.memory, 0, vk.DeviceSize(a.size), 0, &data)); err != nil {
			return nil, errors.Wrap(err, "map memory")
		}
		a.mapped = data
	}
	return unsafe.Slice((*byte)(a.mapped), a.size), nil
}

func (d *Driver) UnmapMemory(h hal.Allocation) {
	a, ok := d.allocations.Get(h.Handle)
	if !ok || a.mapped == nil {
		return
	}
	vk.UnmapMemory(d.device, a.memory)
	a.mapped = nil
}

func (d *Driver) CreateImageView(info hal.ImageViewInfo) (hal.ImageView, error) {
	img, ok := d.images.Get(info.Image.Handle)
	if !ok {
		return hal.ImageView{}, stale("image")
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.image,
		ViewType: vk.ImageViewType2d,
		Format:   toVkFormat(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     toVkAspect(info.Aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(d.device, &viewInfo, nil, &view)); err != nil {
		return hal.ImageView{}, errors.Wrap(err, "create image view")
	}
	return hal.ImageView{Handle: d.views.Insert(view)}, nil
}

func (d *Driver) DestroyImageView(h hal.ImageView) {
	if view, ok := d.views.Remove(h.Handle); ok {
		vk.DestroyImageView(d.device, view, nil)
	}
}

func (d *Driver) CreateSampler(info hal.SamplerInfo) (hal.Sampler, error) {
	filter := vk.FilterNearest
	mipmap := vk.SamplerMipmapModeNearest
	if info.Linear {
		filter = vk.FilterLinear
		mipmap = vk.SamplerMipmapModeLinear
	}
	address := vk.SamplerAddressModeClampToEdge
	if info.Repeat {
		address = vk.SamplerAddressModeRepeat
	}
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              mipmap,
	}

	// vkCreateSampler writes through a pointer that must live in C memory.
	var zero vk.Sampler
	out := (*vk.Sampler)(C.malloc(C.size_t(unsafe.Sizeof(zero))))
	if out == nil {
		return hal.Sampler{}, errors.New("allocate sampler handle")
	}
	defer C.free(unsafe.Pointer(out))

	if err := vk.Error(vk.CreateSampler(d.device, &samplerInfo, nil, out)); err != nil {
		return hal.Sampler{}, errors.Wrap(err, "create sampler")
	}
	return hal.Sampler{Handle: d.samplers.Insert(*out)}, nil
}

func (d *Driver) DestroySampler(h hal.Sampler) {
	if s, ok := d.samplers.Remove(h.Handle); ok {
		vk.DestroySampler(d.device, s, nil)
	}
}

func (d *Driver) AllocatorStats() hal.AllocatorStats {
	return hal.AllocatorStats{Allocations: d.allocations.Len(), Bytes: d.allocatedBytes}
}
