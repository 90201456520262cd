package scene

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// ID identifies a GameObject. IDs are never reused by an allocator.
type ID uint32

// IDAllocator hands out increasing IDs starting at 0.
type IDAllocator struct {
	mu   sync.Mutex
	next ID
}

func (a *IDAllocator) Next() ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	return id
}

// GameObject is something drawn by the render system. Model and Texture are
// shared and not owned by the object.
type GameObject struct {
	id ID

	Model     *Model
	Texture   *Texture
	Color     mgl32.Vec3
	Transform TransformComponent
}

func (o *GameObject) ID() ID { return o.id }

// Registry owns the game objects of a scene, keyed by ID.
type Registry struct {
	ids     IDAllocator
	objects map[ID]*GameObject
	order   []ID
}

func NewRegistry() *Registry {
	return &Registry{objects: make(map[ID]*GameObject)}
}

// Create adds an object with a fresh ID and identity transform.
func (r *Registry) Create() *GameObject {
	o := &GameObject{id: r.ids.Next(), Transform: NewTransform()}
	r.objects[o.id] = o
	r.order = append(r.order, o.id)
	return o
}

func (r *Registry) Get(id ID) (*GameObject, bool) {
	o, ok := r.objects[id]
	return o, ok
}

// Remove drops the object. It reports whether the object existed.
func (r *Registry) Remove(id ID) bool {
	if _, ok := r.objects[id]; !ok {
		return false
	}
	delete(r.objects, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Objects returns the live objects in creation order.
func (r *Registry) Objects() []*GameObject {
	out := make([]*GameObject, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.objects[id])
	}
	return out
}

func (r *Registry) Len() int { return len(r.objects) }
