// Package window opens the GLFW window the renderer presents to.
//
// GLFW must be driven from the main OS thread; callers lock it before New.
package window

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"

	"teapot/internal/hal"
	"teapot/internal/logging"
)

// Window is a Vulkan-capable GLFW window that remembers framebuffer resizes
// until the renderer acknowledges them.
type Window struct {
	win    *glfw.Window
	resize resizeState
}

// resizeState records framebuffer size callbacks.
type resizeState struct {
	resized       bool
	width, height int
}

func (s *resizeState) handle(width, height int) {
	s.resized = true
	s.width, s.height = width, height
}

// New initializes GLFW and opens a window without a client API.
func New(width, height int, title string) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "init glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.New("glfw reports no vulkan support")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "create window")
	}

	w := &Window{win: win}
	w.resize.width, w.resize.height = win.GetFramebufferSize()
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resize.handle(width, height)
		logging.Logger().Debug("framebuffer resized", "width", width, "height", height)
	})
	win.SetKeyCallback(func(gw *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.SetShouldClose(true)
		}
	})
	return w, nil
}

// ProcAddr returns vkGetInstanceProcAddr as loaded by GLFW.
func ProcAddr() unsafe.Pointer { return glfw.GetVulkanGetInstanceProcAddress() }

// Extent is the framebuffer size in pixels, zero while minimized.
func (w *Window) Extent() hal.Extent2D {
	width, height := w.win.GetFramebufferSize()
	return extent(width, height)
}

func extent(width, height int) hal.Extent2D {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return hal.Extent2D{Width: uint32(width), Height: uint32(height)}
}

func (w *Window) WasResized() bool  { return w.resize.resized }
func (w *Window) ResetResized()     { w.resize.resized = false }
func (w *Window) ShouldClose() bool { return w.win.ShouldClose() }

func (w *Window) SetTitle(title string) { w.win.SetTitle(title) }

func (w *Window) PollEvents() { glfw.PollEvents() }
func (w *Window) WaitEvents() { glfw.WaitEvents() }

func (w *Window) GetRequiredInstanceExtensions() []string {
	return w.win.GetRequiredInstanceExtensions()
}

func (w *Window) CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error) {
	return w.win.CreateWindowSurface(instance, allocCallbacks)
}

// Close destroys the window and terminates GLFW.
func (w *Window) Close() {
	if w.win == nil {
		return
	}
	w.win.Destroy()
	w.win = nil
	glfw.Terminate()
}
