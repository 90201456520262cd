package engine

// teardown collects release functions as objects are created and runs them
// in reverse, so destruction mirrors construction order.
type teardown []func()

func (t *teardown) push(fn func()) { *t = append(*t, fn) }

// release runs and drops every pending function, newest first.
func (t *teardown) release() {
	for i := len(*t) - 1; i >= 0; i-- {
		(*t)[i]()
	}
	*t = nil
}
