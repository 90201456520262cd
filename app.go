package main

import (
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"teapot/internal/config"
	"teapot/internal/engine"
	"teapot/internal/gpu"
	"teapot/internal/logging"
	"teapot/internal/pipeline"
	"teapot/internal/render"
	"teapot/internal/scene"
	"teapot/internal/window"
)

const (
	spinSpeed   = 0.6 // radians per second
	statsPeriod = time.Second
)

// FirstApp wires the window, the device, the renderer and one render system
// around a small scene of cubes.
type FirstApp struct {
	cfg config.Config

	window       *window.Window
	device       *engine.Device
	renderer     *engine.Renderer
	renderSystem *render.SimpleRenderSystem
	watcher      *pipeline.Watcher

	registry *scene.Registry
	updater  *scene.Updater
	camera   *scene.Camera
	models   []*scene.Model
	textures []*scene.Texture
}

// NewFirstApp opens the window and builds every GPU object the scene needs.
// On failure whatever was built is released.
func NewFirstApp(cfg config.Config) (_ *FirstApp, err error) {
	a := &FirstApp{
		cfg:      cfg,
		registry: scene.NewRegistry(),
		updater:  scene.NewUpdater(cfg.Scene.Workers),
		camera:   scene.NewCamera(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.window, err = window.New(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title); err != nil {
		return nil, err
	}
	drv, err := gpu.New(a.window, gpu.Options{
		AppName:    cfg.Window.Title,
		Validation: cfg.Renderer.Validation,
		ProcAddr:   window.ProcAddr(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "init vulkan")
	}
	if a.device, err = engine.NewDevice(drv); err != nil {
		drv.Destroy()
		return nil, err
	}
	a.renderer, err = engine.NewRenderer(a.window, a.device, engine.SwapChainOptions{
		PresentMode:  cfg.PresentMode(),
		FenceTimeout: cfg.FenceTimeout(),
	})
	if err != nil {
		return nil, err
	}

	shaders, err := pipeline.LoadStages(cfg.Shaders.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "load shaders")
	}
	a.renderSystem, err = render.NewSimpleRenderSystem(a.device, a.renderer.SwapChainRenderPass(), shaders,
		render.Options{MaxTextures: cfg.Renderer.MaxTextures})
	if err != nil {
		return nil, err
	}

	if err := a.loadGameObjects(); err != nil {
		return nil, errors.Wrap(err, "load game objects")
	}

	if cfg.Shaders.Watch && cfg.Shaders.Dir != "" {
		w, err := pipeline.Watch(cfg.Shaders.Dir, time.Duration(cfg.Shaders.Debounce))
		if err != nil {
			logging.Logger().Warn("shader hot reload disabled", "err", err)
		} else {
			a.watcher = w
		}
	}
	a.camera.SetViewTarget(mgl32.Vec3{-1, -2, -2}, mgl32.Vec3{0, 0, 2.5}, mgl32.Vec3{0, -1, 0})
	return a, nil
}

func (a *FirstApp) loadGameObjects() error {
	cube, err := scene.CubeModel(a.device, mgl32.Vec3{})
	if err != nil {
		return err
	}
	a.models = append(a.models, cube)

	checker, err := scene.NewTexture(a.device, 64, 64,
		scene.Checkerboard(64, 64, 8, [4]byte{230, 230, 230, 255}, [4]byte{40, 40, 48, 255}))
	if err != nil {
		return err
	}
	a.textures = append(a.textures, checker)

	left := a.registry.Create()
	left.Model = cube
	left.Color = mgl32.Vec3{1, 1, 1}
	left.Transform.Translation = mgl32.Vec3{-0.6, 0, 2.5}
	left.Transform.Scale = mgl32.Vec3{0.4, 0.4, 0.4}

	right := a.registry.Create()
	right.Model = cube
	right.Texture = checker
	right.Color = mgl32.Vec3{1, 0.85, 0.6}
	right.Transform.Translation = mgl32.Vec3{0.6, 0, 2.5}
	right.Transform.Scale = mgl32.Vec3{0.4, 0.4, 0.4}
	return nil
}

func spin(obj *scene.GameObject, dt float32) {
	r := &obj.Transform.Rotation
	r[1] = math32.Mod(r[1]+spinSpeed*dt, 2*math32.Pi)
	r[0] = math32.Mod(r[0]+spinSpeed*0.5*dt, 2*math32.Pi)
}

// Run draws frames until the window is closed, then waits for the device to
// go idle.
func (a *FirstApp) Run() error {
	log := logging.Logger()
	stats := NewFrameStats(time.Now(), statsPeriod)

	for !a.window.ShouldClose() {
		a.window.PollEvents()
		a.reloadShaders()

		dt, report := stats.Frame(time.Now())
		if report {
			log.Info("frame stats", "fps", fmt.Sprintf("%.1f", stats.FPS()), "worst", stats.WorstFrame())
			a.window.SetTitle(fmt.Sprintf("%s (%.0f fps)", a.cfg.Window.Title, stats.FPS()))
		}

		objects := a.registry.Objects()
		a.updater.Update(objects, dt, spin)
		a.camera.SetPerspectiveProjection(mgl32.DegToRad(50), a.renderer.AspectRatio(), 0.1, 10)

		cb, err := a.renderer.BeginFrame()
		if err != nil {
			return errors.Wrap(err, "begin frame")
		}
		if cb.IsNil() {
			continue
		}
		if err := a.renderer.BeginSwapChainRenderPass(cb); err != nil {
			return err
		}
		if err := a.renderSystem.RenderGameObjects(cb, objects, a.camera); err != nil {
			return errors.Wrap(err, "render game objects")
		}
		if err := a.renderer.EndSwapChainRenderPass(cb); err != nil {
			return err
		}
		if err := a.renderer.EndFrame(); err != nil {
			return errors.Wrap(err, "end frame")
		}
	}
	return a.device.WaitIdle()
}

// reloadShaders rebuilds the pipeline after the watcher reports a change. A
// broken shader keeps the previous pipeline.
func (a *FirstApp) reloadShaders() {
	if a.watcher == nil {
		return
	}
	select {
	case name := <-a.watcher.Changed():
		log := logging.Logger().With("file", name)
		shaders, err := pipeline.LoadStages(a.cfg.Shaders.Dir)
		if err != nil {
			log.Warn("shader reload failed", "err", err)
			return
		}
		if err := a.renderSystem.Reload(a.renderer.SwapChainRenderPass(), shaders); err != nil {
			log.Warn("shader reload failed", "err", err)
		}
	default:
	}
}

// Close releases everything in reverse order of creation. It is safe on a
// partially built app.
func (a *FirstApp) Close() {
	if a.watcher != nil {
		a.watcher.Close()
		a.watcher = nil
	}
	if a.device != nil {
		if err := a.device.WaitIdle(); err != nil {
			logging.Logger().Error("wait idle before teardown", "err", err)
		}
	}
	if a.updater != nil {
		a.updater.Close()
		a.updater = nil
	}
	if a.renderSystem != nil {
		a.renderSystem.Destroy()
		a.renderSystem = nil
	}
	for _, t := range a.textures {
		t.Destroy()
	}
	a.textures = nil
	for _, m := range a.models {
		m.Destroy()
	}
	a.models = nil
	if a.renderer != nil {
		a.renderer.Close()
		a.renderer = nil
	}
	if a.device != nil {
		a.device.Close()
		a.device = nil
	}
	if a.window != nil {
		a.window.Close()
		a.window = nil
	}
}
