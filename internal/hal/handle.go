package hal

// Handle identifies an object owned by a Driver. The zero Handle is the null
// handle and is never issued by an Arena.
type Handle struct {
	index uint32
	gen   uint32
}

// IsNil reports whether h is the null handle.
func (h Handle) IsNil() bool { return h.gen == 0 }

// Typed handles. Each embeds Handle so the zero value is null and two handles
// of the same kind compare equal only when they name the same live object.
type (
	Fence               struct{ Handle }
	Semaphore           struct{ Handle }
	Queue               struct{ Handle }
	Image               struct{ Handle }
	ImageView           struct{ Handle }
	Sampler             struct{ Handle }
	Buffer              struct{ Handle }
	Allocation          struct{ Handle }
	Swapchain           struct{ Handle }
	RenderPass          struct{ Handle }
	Framebuffer         struct{ Handle }
	CommandPool         struct{ Handle }
	CommandBuffer       struct{ Handle }
	ShaderModule        struct{ Handle }
	PipelineLayout      struct{ Handle }
	Pipeline            struct{ Handle }
	DescriptorSetLayout struct{ Handle }
	DescriptorPool      struct{ Handle }
	DescriptorSet       struct{ Handle }
)

type slot[T any] struct {
	gen  uint32
	live bool
	val  T
}

// Arena stores values addressed by generation-checked handles. Removing a
// value bumps the slot generation, so handles to it go stale instead of
// aliasing whatever is stored in the slot next.
//
// An Arena is not safe for concurrent use.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.live = true
	s.val = v
	a.live++
	return Handle{index: idx, gen: s.gen}
}

func (a *Arena[T]) lookup(h Handle) *slot[T] {
	if h.IsNil() || int(h.index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil
	}
	return s
}

// Get returns the value for h. The boolean is false for null or stale handles.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	if s := a.lookup(h); s != nil {
		return s.val, true
	}
	var zero T
	return zero, false
}

// Remove deletes the value for h and returns it.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	s := a.lookup(h)
	if s == nil {
		var zero T
		return zero, false
	}
	v := s.val
	var zero T
	s.val = zero
	s.live = false
	a.free = append(a.free, h.index)
	a.live--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int { return a.live }

// Each calls fn for every live value in slot order.
func (a *Arena[T]) Each(fn func(Handle, T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.live {
			fn(Handle{index: uint32(i), gen: s.gen}, s.val)
		}
	}
}
