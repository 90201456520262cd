package gpu

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"teapot/internal/hal"
)

func (d *Driver) CreateSemaphore() (hal.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var s vk.Semaphore
	if err := vk.Error(vk.CreateSemaphore(d.device, &info, nil, &s)); err != nil {
		return hal.Semaphore{}, errors.Wrap(err, "create semaphore")
	}
	return hal.Semaphore{Handle: d.semaphores.Insert(s)}, nil
}

func (d *Driver) DestroySemaphore(h hal.Semaphore) {
	if s, ok := d.semaphores.Remove(h.Handle); ok {
		vk.DestroySemaphore(d.device, s, nil)
	}
}

func (d *Driver) CreateFence(signaled bool) (hal.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := vk.Error(vk.CreateFence(d.device, &info, nil, &f)); err != nil {
		return hal.Fence{}, errors.Wrap(err, "create fence")
	}
	return hal.Fence{Handle: d.fences.Insert(f)}, nil
}

func (d *Driver) DestroyFence(h hal.Fence) {
	if f, ok := d.fences.Remove(h.Handle); ok {
		vk.DestroyFence(d.device, f, nil)
	}
}

func (d *Driver) WaitForFences(fences []hal.Fence, timeout uint64) error {
	vkFences, err := d.lookupFences(fences)
	if err != nil {
		return err
	}
	switch res := vk.WaitForFences(d.device, uint32(len(vkFences)), vkFences, vk.True, timeout); res {
	case vk.Success:
		return nil
	case vk.Timeout:
		return hal.ErrTimeout
	default:
		return errors.Wrap(vk.Error(res), "wait for fences")
	}
}

func (d *Driver) ResetFences(fences []hal.Fence) error {
	vkFences, err := d.lookupFences(fences)
	if err != nil {
		return err
	}
	return errors.Wrap(vk.Error(vk.ResetFences(d.device, uint32(len(vkFences)), vkFences)), "reset fences")
}

func (d *Driver) lookupFences(fences []hal.Fence) ([]vk.Fence, error) {
	out := make([]vk.Fence, len(fences))
	for i, h := range fences {
		f, ok := d.fences.Get(h.Handle)
		if !ok {
			return nil, stale("fence")
		}
		out[i] = f
	}
	return out, nil
}

func (d *Driver) lookupSemaphores(sems []hal.Semaphore) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, len(sems))
	for i, h := range sems {
		s, ok := d.semaphores.Get(h.Handle)
		if !ok {
			return nil, stale("semaphore")
		}
		out[i] = s
	}
	return out, nil
}
