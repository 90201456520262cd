package render

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teapot/internal/engine"
	"teapot/internal/hal"
	"teapot/internal/hal/haltest"
	"teapot/internal/pipeline"
	"teapot/internal/scene"
)

func testShaders() pipeline.ShaderStages {
	return pipeline.ShaderStages{
		Vertex:   pipeline.ShaderStage{Code: []uint32{0x07230203, 1}, Entry: "main"},
		Fragment: pipeline.ShaderStage{Code: []uint32{0x07230203, 2}, Entry: "main"},
	}
}

type fixture struct {
	drv *haltest.Driver
	dev *engine.Device
	sys *SimpleRenderSystem
	rp  hal.RenderPass
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	drv := haltest.New()
	dev, err := engine.NewDevice(drv)
	require.NoError(t, err)
	rp, err := drv.CreateRenderPass(hal.RenderPassInfo{})
	require.NoError(t, err)
	sys, err := NewSimpleRenderSystem(dev, rp, testShaders(), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		sys.Destroy()
		drv.DestroyRenderPass(rp)
		dev.Close()
	})
	return &fixture{drv: drv, dev: dev, sys: sys, rp: rp}
}

func (f *fixture) recording(t *testing.T) hal.CommandBuffer {
	t.Helper()
	cbs, err := f.drv.AllocateCommandBuffers(f.dev.CommandPool(), 1)
	require.NoError(t, err)
	require.NoError(t, f.drv.BeginCommandBuffer(cbs[0], false))
	return cbs[0]
}

func ops(cmds []haltest.Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Op
	}
	return out
}

func decodePush(b []byte) (mgl32.Mat4, mgl32.Vec4) {
	f := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])) }
	var m mgl32.Mat4
	for i := range m {
		m[i] = f(i)
	}
	return m, mgl32.Vec4{f(16), f(17), f(18), f(19)}
}

func TestNewSimpleRenderSystem(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, 1, f.drv.Live(haltest.KindSetLayout))
	assert.Equal(t, 1, f.drv.Live(haltest.KindDescriptorPool))
	assert.Equal(t, 1, f.drv.Live(haltest.KindPipelineLayout))
	assert.Equal(t, 1, f.drv.Live(haltest.KindPipeline))
	assert.Equal(t, 1, f.drv.Live(haltest.KindImage), "default white texture")
}

func TestRenderGameObjects(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	model, err := scene.CubeModel(f.dev, mgl32.Vec3{})
	require.NoError(t, err)
	defer model.Destroy()

	reg := scene.NewRegistry()
	cube := reg.Create()
	cube.Model = model
	cube.Color = mgl32.Vec3{1, 0, 0}
	cube.Transform.Translation = mgl32.Vec3{0, 0, 2.5}
	reg.Create() // no model, skipped
	other := reg.Create()
	other.Model = model

	camera := scene.NewCamera()
	camera.SetPerspectiveProjection(mgl32.DegToRad(50), 1, .1, 10)

	cb := f.recording(t)
	require.NoError(t, f.sys.RenderGameObjects(cb, reg.Objects(), camera))
	cmds := f.drv.Commands(cb)
	assert.Equal(t, []string{
		"BindPipeline",
		"BindDescriptorSets", "PushConstants", "BindVertexBuffers", "BindIndexBuffer", "DrawIndexed",
		"PushConstants", "BindVertexBuffers", "BindIndexBuffer", "DrawIndexed",
	}, ops(cmds), "both objects share the white texture set")

	require.Len(t, cmds[2].Data, PushConstantSize)
	m, color := decodePush(cmds[2].Data)
	want := camera.Projection().Mul4(camera.View()).Mul4(cube.Transform.Mat4())
	assert.True(t, want.ApproxEqualThreshold(m, 1e-6))
	assert.Equal(t, mgl32.Vec4{1, 0, 0, 1}, color)

	assert.Equal(t, 1, f.drv.Live(haltest.KindDescriptorSet))
	assert.Equal(t, 1, f.drv.Calls("UpdateDescriptorSets"))
	assert.Empty(t, f.drv.Violations())
}

func TestDescriptorSetPerTexture(t *testing.T) {
	f := newFixture(t, Options{MaxTextures: 4})
	model, err := scene.CubeModel(f.dev, mgl32.Vec3{})
	require.NoError(t, err)
	defer model.Destroy()
	checker, err := scene.NewTexture(f.dev, 2, 2, scene.Checkerboard(2, 2, 1, [4]byte{255, 0, 0, 255}, [4]byte{0, 0, 255, 255}))
	require.NoError(t, err)
	defer checker.Destroy()

	reg := scene.NewRegistry()
	a := reg.Create()
	a.Model, a.Texture = model, checker
	b := reg.Create()
	b.Model = model

	for range 3 {
		cb := f.recording(t)
		require.NoError(t, f.sys.RenderGameObjects(cb, reg.Objects(), scene.NewCamera()))
	}
	assert.Equal(t, 2, f.drv.Live(haltest.KindDescriptorSet), "sets are cached across frames")
	assert.Equal(t, 2, f.drv.Calls("UpdateDescriptorSets"))
}

func TestDescriptorAllocationFailure(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	model, err := scene.CubeModel(f.dev, mgl32.Vec3{})
	require.NoError(t, err)
	defer model.Destroy()

	obj := scene.NewRegistry().Create()
	obj.Model = model
	f.drv.FailNext("AllocateDescriptorSets", errors.New("pool exhausted"))
	err = f.sys.RenderGameObjects(f.recording(t), []*scene.GameObject{obj}, scene.NewCamera())
	assert.ErrorContains(t, err, "pool exhausted")
}

func TestReload(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	old := f.sys.pipeline.Handle()

	require.NoError(t, f.sys.Reload(f.rp, testShaders()))
	assert.NotEqual(t, old, f.sys.pipeline.Handle())
	assert.Equal(t, 1, f.drv.Live(haltest.KindPipeline))
	assert.Equal(t, 2, f.drv.Live(haltest.KindShaderModule))
	assert.Equal(t, 1, f.drv.Calls("DeviceWaitIdle"))

	current := f.sys.pipeline.Handle()
	f.drv.FailNext("CreateGraphicsPipeline", errors.New("bad shader"))
	err := f.sys.Reload(f.rp, testShaders())
	assert.ErrorContains(t, err, "bad shader")
	assert.Equal(t, current, f.sys.pipeline.Handle(), "old pipeline kept")
	assert.Equal(t, 1, f.drv.Live(haltest.KindPipeline))
}

type resizableWindow struct {
	resized bool
}

func (w *resizableWindow) Extent() hal.Extent2D { return hal.Extent2D{Width: 640, Height: 480} }
func (w *resizableWindow) WasResized() bool     { return w.resized }
func (w *resizableWindow) ResetResized()        { w.resized = false }
func (w *resizableWindow) WaitEvents()          {}

func TestReloadAfterSwapChainRecreation(t *testing.T) {
	drv := haltest.New()
	dev, err := engine.NewDevice(drv)
	require.NoError(t, err)
	win := &resizableWindow{}
	r, err := engine.NewRenderer(win, dev, engine.DefaultSwapChainOptions())
	require.NoError(t, err)
	sys, err := NewSimpleRenderSystem(dev, r.SwapChainRenderPass(), testShaders(), DefaultOptions())
	require.NoError(t, err)
	defer func() {
		_ = dev.WaitIdle()
		sys.Destroy()
		r.Close()
		dev.Close()
	}()

	first := r.SwapChainRenderPass()
	_, err = r.BeginFrame()
	require.NoError(t, err)
	win.resized = true
	require.NoError(t, r.EndFrame())
	require.NotEqual(t, first, r.SwapChainRenderPass())

	require.NoError(t, sys.Reload(r.SwapChainRenderPass(), testShaders()))
	assert.Equal(t, r.SwapChainRenderPass(), sys.renderPass)
	assert.Equal(t, 1, drv.Live(haltest.KindPipeline))
	assert.Empty(t, drv.Violations())

	cb, err := r.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, r.BeginSwapChainRenderPass(cb))
	obj := &scene.GameObject{Color: mgl32.Vec3{1, 1, 1}}
	require.NoError(t, sys.RenderGameObjects(cb, []*scene.GameObject{obj}, scene.NewCamera()))
	require.NoError(t, r.EndSwapChainRenderPass(cb))
	require.NoError(t, r.EndFrame())
	assert.Empty(t, drv.Violations())
}

func TestReloadFailureKeepsRenderPass(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	other, err := f.drv.CreateRenderPass(hal.RenderPassInfo{})
	require.NoError(t, err)
	defer f.drv.DestroyRenderPass(other)

	f.drv.FailNext("CreateGraphicsPipeline", errors.New("bad shader"))
	require.Error(t, f.sys.Reload(other, testShaders()))
	assert.Equal(t, f.rp, f.sys.renderPass)
}

func TestNewSimpleRenderSystemFailure(t *testing.T) {
	drv := haltest.New()
	dev, err := engine.NewDevice(drv)
	require.NoError(t, err)
	defer dev.Close()
	rp, err := drv.CreateRenderPass(hal.RenderPassInfo{})
	require.NoError(t, err)

	drv.FailNext("CreateShaderModule", errors.New("invalid SPIR-V"))
	_, err = NewSimpleRenderSystem(dev, rp, testShaders(), DefaultOptions())
	assert.ErrorContains(t, err, "invalid SPIR-V")
	assert.Zero(t, drv.Live(haltest.KindSetLayout))
	assert.Zero(t, drv.Live(haltest.KindDescriptorPool))
	assert.Zero(t, drv.Live(haltest.KindPipelineLayout))
}

func TestDestroyOrder(t *testing.T) {
	drv := haltest.New()
	dev, err := engine.NewDevice(drv)
	require.NoError(t, err)
	defer dev.Close()
	rp, err := drv.CreateRenderPass(hal.RenderPassInfo{})
	require.NoError(t, err)
	sys, err := NewSimpleRenderSystem(dev, rp, testShaders(), DefaultOptions())
	require.NoError(t, err)

	before := len(drv.DestroyLog())
	sys.Destroy()
	sys.Destroy()
	assert.Equal(t, []string{
		haltest.KindPipeline, haltest.KindShaderModule, haltest.KindShaderModule,
		haltest.KindSampler, haltest.KindImageView, haltest.KindImage, haltest.KindAllocation,
		haltest.KindPipelineLayout, haltest.KindDescriptorPool, haltest.KindSetLayout,
	}, drv.DestroyLog()[before:])
}
