// Package render records the draw commands for the scene's game objects.
package render

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"teapot/internal/engine"
	"teapot/internal/hal"
	"teapot/internal/logging"
	"teapot/internal/pipeline"
	"teapot/internal/scene"
)

// PushConstantSize is a mat4 transform followed by a vec4 color.
const PushConstantSize = 16*4 + 4*4

const pushStages = hal.ShaderStageVertex | hal.ShaderStageFragment

type Options struct {
	// MaxTextures bounds the number of distinct textures that can be drawn.
	MaxTextures uint32
}

func DefaultOptions() Options {
	return Options{MaxTextures: 64}
}

// SimpleRenderSystem draws textured, vertex-colored models with one
// push-constant block per object.
type SimpleRenderSystem struct {
	dev        *engine.Device
	renderPass hal.RenderPass

	setLayout      hal.DescriptorSetLayout
	descriptorPool hal.DescriptorPool
	pipelineLayout hal.PipelineLayout
	pipeline       *pipeline.Pipeline

	white *scene.Texture
	sets  map[*scene.Texture]hal.DescriptorSet
}

func NewSimpleRenderSystem(dev *engine.Device, renderPass hal.RenderPass, shaders pipeline.ShaderStages, opts Options) (*SimpleRenderSystem, error) {
	if opts.MaxTextures == 0 {
		opts.MaxTextures = DefaultOptions().MaxTextures
	}
	s := &SimpleRenderSystem{
		dev:        dev,
		renderPass: renderPass,
		sets:       make(map[*scene.Texture]hal.DescriptorSet),
	}
	if err := s.createPipelineLayout(opts.MaxTextures); err != nil {
		s.Destroy()
		return nil, err
	}
	if err := s.createPipeline(shaders); err != nil {
		s.Destroy()
		return nil, err
	}
	white, err := scene.WhiteTexture(dev)
	if err != nil {
		s.Destroy()
		return nil, errors.Wrap(err, "create default texture")
	}
	s.white = white
	return s, nil
}

func (s *SimpleRenderSystem) createPipelineLayout(maxTextures uint32) error {
	drv := s.dev.Driver()
	var err error
	s.setLayout, err = drv.CreateDescriptorSetLayout([]hal.DescriptorBinding{
		{Binding: 0, Type: hal.DescriptorSampledImage, Count: 1, Stages: hal.ShaderStageFragment},
		{Binding: 1, Type: hal.DescriptorSampler, Count: 1, Stages: hal.ShaderStageFragment},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create descriptor set layout")
	}
	s.descriptorPool, err = drv.CreateDescriptorPool(maxTextures, []hal.DescriptorPoolSize{
		{Type: hal.DescriptorSampledImage, Count: maxTextures},
		{Type: hal.DescriptorSampler, Count: maxTextures},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create descriptor pool")
	}
	s.pipelineLayout, err = drv.CreatePipelineLayout(hal.PipelineLayoutInfo{
		SetLayouts:    []hal.DescriptorSetLayout{s.setLayout},
		PushConstants: []hal.PushConstantRange{{Stages: pushStages, Offset: 0, Size: PushConstantSize}},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create pipeline layout")
	}
	return nil
}

func (s *SimpleRenderSystem) createPipeline(shaders pipeline.ShaderStages) error {
	cfg := &pipeline.Config{}
	pipeline.DefaultConfig(cfg)
	cfg.VertexBindings = scene.VertexBindings()
	cfg.VertexAttributes = scene.VertexAttributes()
	cfg.RenderPass = s.renderPass
	cfg.PipelineLayout = s.pipelineLayout

	p, err := pipeline.New(s.dev.Driver(), shaders, cfg)
	if err != nil {
		return err
	}
	s.pipeline = p
	return nil
}

// Reload rebuilds the pipeline from new shaders against renderPass once the
// device is idle. renderPass must be the current swap chain's, since a
// recreated chain destroys the pass the system was built with. The old
// pipeline and pass are kept when the new pipeline fails to build.
func (s *SimpleRenderSystem) Reload(renderPass hal.RenderPass, shaders pipeline.ShaderStages) error {
	if err := s.dev.WaitIdle(); err != nil {
		return err
	}
	old, oldPass := s.pipeline, s.renderPass
	s.renderPass = renderPass
	if err := s.createPipeline(shaders); err != nil {
		s.pipeline, s.renderPass = old, oldPass
		return errors.Wrap(err, "reload shaders")
	}
	old.Destroy()
	logging.Logger().Info("pipeline reloaded")
	return nil
}

// descriptorSet returns the set sampling tex, allocating it on first use.
func (s *SimpleRenderSystem) descriptorSet(tex *scene.Texture) (hal.DescriptorSet, error) {
	if set, ok := s.sets[tex]; ok {
		return set, nil
	}
	drv := s.dev.Driver()
	sets, err := drv.AllocateDescriptorSets(s.descriptorPool, []hal.DescriptorSetLayout{s.setLayout})
	if err != nil {
		return hal.DescriptorSet{}, errors.Wrapf(err, "allocate descriptor set for texture %d", len(s.sets)+1)
	}
	set := sets[0]
	drv.UpdateDescriptorSets([]hal.DescriptorWrite{
		{Set: set, Binding: 0, Type: hal.DescriptorSampledImage, ImageView: tex.View(), Layout: tex.Layout()},
		{Set: set, Binding: 1, Type: hal.DescriptorSampler, Sampler: tex.Sampler()},
	})
	s.sets[tex] = set
	return set, nil
}

func encodePush(transform mgl32.Mat4, color mgl32.Vec3) []byte {
	b := make([]byte, 0, PushConstantSize)
	for _, f := range transform {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	for _, f := range [4]float32{color[0], color[1], color[2], 1} {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

// RenderGameObjects records draws for every object with a model. cb must be
// inside the swap chain render pass.
func (s *SimpleRenderSystem) RenderGameObjects(cb hal.CommandBuffer, objects []*scene.GameObject, camera *scene.Camera) error {
	drv := s.dev.Driver()
	s.pipeline.Bind(cb)

	projectionView := camera.ViewProjection()
	bound := hal.DescriptorSet{}
	for _, obj := range objects {
		if obj.Model == nil {
			continue
		}
		tex := obj.Texture
		if tex == nil {
			tex = s.white
		}
		set, err := s.descriptorSet(tex)
		if err != nil {
			return err
		}
		if set != bound {
			drv.CmdBindDescriptorSets(cb, s.pipelineLayout, 0, []hal.DescriptorSet{set})
			bound = set
		}

		push := encodePush(projectionView.Mul4(obj.Transform.Mat4()), obj.Color)
		drv.CmdPushConstants(cb, s.pipelineLayout, pushStages, 0, push)
		obj.Model.Bind(cb)
		obj.Model.Draw(cb)
	}
	return nil
}

// Destroy releases the pipeline, the default texture, the descriptor pool
// with its sets, and the layouts.
func (s *SimpleRenderSystem) Destroy() {
	if s.dev == nil {
		return
	}
	drv := s.dev.Driver()
	if s.pipeline != nil {
		s.pipeline.Destroy()
		s.pipeline = nil
	}
	s.white.Destroy()
	s.white = nil
	if !s.pipelineLayout.IsNil() {
		drv.DestroyPipelineLayout(s.pipelineLayout)
	}
	if !s.descriptorPool.IsNil() {
		drv.DestroyDescriptorPool(s.descriptorPool)
	}
	if !s.setLayout.IsNil() {
		drv.DestroyDescriptorSetLayout(s.setLayout)
	}
	s.sets = nil
	s.dev = nil
}
