package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"teapot/internal/hal"
	"teapot/internal/hal/haltest"
)

type fakeWindow struct {
	extent hal.Extent2D
	// next extents, one per WaitEvents call
	pending []hal.Extent2D
	resized bool
	resets  int
	waits   int
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{extent: hal.Extent2D{Width: 800, Height: 600}}
}

func (w *fakeWindow) Extent() hal.Extent2D { return w.extent }
func (w *fakeWindow) WasResized() bool     { return w.resized }

func (w *fakeWindow) ResetResized() {
	w.resized = false
	w.resets++
}

func (w *fakeWindow) WaitEvents() {
	w.waits++
	if len(w.pending) > 0 {
		w.extent = w.pending[0]
		w.pending = w.pending[1:]
	}
}

func newTestDevice(t *testing.T) (*Device, *haltest.Driver) {
	t.Helper()
	drv := haltest.New()
	dev, err := NewDevice(drv)
	require.NoError(t, err)
	return dev, drv
}
