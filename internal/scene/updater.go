package scene

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// UpdateFunc advances one object by dt seconds. It must only touch obj.
type UpdateFunc func(obj *GameObject, dt float32)

// Updater runs an UpdateFunc over many objects on a worker pool.
type Updater struct {
	pool    worker.DynamicWorkerPool
	workers int
	stopped bool
}

// NewUpdater starts a pool of workers goroutines. workers <= 0 uses one
// fewer than the CPU count, leaving a core for the frame loop.
func NewUpdater(workers int) *Updater {
	if workers <= 0 {
		workers = max(runtime.NumCPU()-1, 1)
	}
	return &Updater{
		pool:    worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
		workers: workers,
	}
}

func (u *Updater) Workers() int { return u.workers }

// Close stops the pool's workers. Update does nothing afterwards.
func (u *Updater) Close() {
	if u.stopped {
		return
	}
	u.pool.Stop()
	u.stopped = true
}

// Update applies fn to every object and returns once all of them are done.
// Objects are split into one contiguous batch per worker.
func (u *Updater) Update(objs []*GameObject, dt float32, fn UpdateFunc) {
	if u.stopped || len(objs) == 0 {
		return
	}
	batch := (len(objs) + u.workers - 1) / u.workers

	// pool.Wait blocks until workers idle out, so completion is tracked here.
	var wg sync.WaitGroup
	for start, id := 0, 0; start < len(objs); start, id = start+batch, id+1 {
		chunk := objs[start:min(start+batch, len(objs))]
		wg.Add(1)
		u.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				for _, o := range chunk {
					fn(o, dt)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
}
