// Package pipeline builds graphics pipelines from shader stages and a
// fixed-function Config.
package pipeline

import (
	"github.com/pkg/errors"

	"teapot/internal/hal"
)

// Driver is the part of hal.Driver a pipeline uses.
type Driver interface {
	hal.PipelineDriver
	CmdBindPipeline(cb hal.CommandBuffer, p hal.Pipeline)
}

// Pipeline owns a graphics pipeline and its shader modules.
type Pipeline struct {
	drv      Driver
	pipeline hal.Pipeline
	vert     hal.ShaderModule
	frag     hal.ShaderModule
}

// New creates the shader modules and the graphics pipeline described by cfg.
func New(drv Driver, stages ShaderStages, cfg *Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{drv: drv}

	var err error
	if p.vert, err = drv.CreateShaderModule(stages.Vertex.Code); err != nil {
		return nil, errors.Wrap(err, "create vertex shader module")
	}
	if p.frag, err = drv.CreateShaderModule(stages.Fragment.Code); err != nil {
		p.Destroy()
		return nil, errors.Wrap(err, "create fragment shader module")
	}

	info := cfg.graphicsPipelineInfo([]hal.ShaderStageInfo{
		{Stage: hal.ShaderStageVertex, Module: p.vert, Entry: stages.Vertex.Entry},
		{Stage: hal.ShaderStageFragment, Module: p.frag, Entry: stages.Fragment.Entry},
	})
	if p.pipeline, err = drv.CreateGraphicsPipeline(info); err != nil {
		p.Destroy()
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	return p, nil
}

func (p *Pipeline) Bind(cb hal.CommandBuffer) {
	p.drv.CmdBindPipeline(cb, p.pipeline)
}

// Handle returns the underlying pipeline handle.
func (p *Pipeline) Handle() hal.Pipeline { return p.pipeline }

// Destroy releases the pipeline before the shader modules it was built from.
func (p *Pipeline) Destroy() {
	if !p.pipeline.IsNil() {
		p.drv.DestroyPipeline(p.pipeline)
		p.pipeline = hal.Pipeline{}
	}
	if !p.frag.IsNil() {
		p.drv.DestroyShaderModule(p.frag)
		p.frag = hal.ShaderModule{}
	}
	if !p.vert.IsNil() {
		p.drv.DestroyShaderModule(p.vert)
		p.vert = hal.ShaderModule{}
	}
}
