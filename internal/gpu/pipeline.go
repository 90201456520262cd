package gpu

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"teapot/internal/hal"
	"teapot/internal/logging"
)

func (d *Driver) CreateShaderModule(code []uint32) (hal.ShaderModule, error) {
	if len(code) == 0 {
		return hal.ShaderModule{}, errors.New("create shader module: empty code")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(d.device, &createInfo, nil, &module)); err != nil {
		return hal.ShaderModule{}, errors.Wrap(err, "create shader module")
	}
	return hal.ShaderModule{Handle: d.shaderModules.Insert(module)}, nil
}

func (d *Driver) DestroyShaderModule(h hal.ShaderModule) {
	if m, ok := d.shaderModules.Remove(h.Handle); ok {
		vk.DestroyShaderModule(d.device, m, nil)
	}
}

func (d *Driver) CreatePipelineLayout(info hal.PipelineLayoutInfo) (hal.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(info.SetLayouts))
	for i, h := range info.SetLayouts {
		l, ok := d.setLayouts.Get(h.Handle)
		if !ok {
			return hal.PipelineLayout{}, stale("descriptor set layout")
		}
		setLayouts[i] = l
	}
	ranges := make([]vk.PushConstantRange, len(info.PushConstants))
	for i, r := range info.PushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: toVkShaderStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var layout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(d.device, &createInfo, nil, &layout)); err != nil {
		return hal.PipelineLayout{}, errors.Wrap(err, "create pipeline layout")
	}
	return hal.PipelineLayout{Handle: d.pipelineLayouts.Insert(layout)}, nil
}

func (d *Driver) DestroyPipelineLayout(h hal.PipelineLayout) {
	if l, ok := d.pipelineLayouts.Remove(h.Handle); ok {
		vk.DestroyPipelineLayout(d.device, l, nil)
	}
}

func (d *Driver) CreateGraphicsPipeline(info hal.GraphicsPipelineInfo) (hal.Pipeline, error) {
	layout, ok := d.pipelineLayouts.Get(info.Layout.Handle)
	if !ok {
		return hal.Pipeline{}, stale("pipeline layout")
	}
	renderPass, ok := d.renderPasses.Get(info.RenderPass.Handle)
	if !ok {
		return hal.Pipeline{}, stale("render pass")
	}

	shaderStages := make([]vk.PipelineShaderStageCreateInfo, len(info.Stages))
	for i, s := range info.Stages {
		module, ok := d.shaderModules.Get(s.Module.Handle)
		if !ok {
			return hal.Pipeline{}, stale("shader module")
		}
		shaderStages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  toVkShaderStage(s.Stage),
			Module: module,
			PName:  safeStrings([]string{s.Entry})[0],
		}
	}

	bindings := make([]vk.VertexInputBindingDescription, len(info.VertexBindings))
	for i, b := range info.VertexBindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRateVertex,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(info.VertexAttributes))
	for i, a := range info.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   toVkFormat(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               toVkTopology(info.InputAssembly.Topology),
		PrimitiveRestartEnable: toVkBool(info.InputAssembly.PrimitiveRestart),
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: info.Viewport.ViewportCount,
		ScissorCount:  info.Viewport.ScissorCount,
	}
	if n := len(info.Viewport.Viewports); n > 0 {
		viewports := make([]vk.Viewport, n)
		for i, v := range info.Viewport.Viewports {
			viewports[i] = toVkViewport(v)
		}
		viewportState.ViewportCount = uint32(n)
		viewportState.PViewports = viewports
	}
	if n := len(info.Viewport.Scissors); n > 0 {
		scissors := make([]vk.Rect2D, n)
		for i, r := range info.Viewport.Scissors {
			scissors[i] = toVkRect(r)
		}
		viewportState.ScissorCount = uint32(n)
		viewportState.PScissors = scissors
	}

	r := info.Rasterization
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        toVkBool(r.DepthClamp),
		RasterizerDiscardEnable: toVkBool(r.RasterizerDiscard),
		PolygonMode:             toVkPolygonMode(r.PolygonMode),
		LineWidth:               r.LineWidth,
		CullMode:                toVkCullMode(r.CullMode),
		FrontFace:               toVkFrontFace(r.FrontFace),
		DepthBiasEnable:         toVkBool(r.DepthBias),
		DepthBiasConstantFactor: r.DepthBiasConstant,
		DepthBiasClamp:          r.DepthBiasClamp,
		DepthBiasSlopeFactor:    r.DepthBiasSlope,
	}

	m := info.Multisample
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples:  toVkSamples(m.Samples),
		SampleShadingEnable:   toVkBool(m.SampleShading),
		MinSampleShading:      m.MinSampleShading,
		AlphaToCoverageEnable: toVkBool(m.AlphaToCoverage),
		AlphaToOneEnable:      toVkBool(m.AlphaToOne),
	}

	ds := info.DepthStencil
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       toVkBool(ds.DepthTest),
		DepthWriteEnable:      toVkBool(ds.DepthWrite),
		DepthCompareOp:        toVkCompareOp(ds.CompareOp),
		DepthBoundsTestEnable: toVkBool(ds.DepthBoundsTest),
		MinDepthBounds:        ds.MinDepthBounds,
		MaxDepthBounds:        ds.MaxDepthBounds,
		StencilTestEnable:     toVkBool(ds.StencilTest),
	}

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(info.ColorBlend.Attachments))
	for i, a := range info.ColorBlend.Attachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         toVkBool(a.BlendEnable),
			SrcColorBlendFactor: toVkBlendFactor(a.SrcColor),
			DstColorBlendFactor: toVkBlendFactor(a.DstColor),
			ColorBlendOp:        toVkBlendOp(a.ColorOp),
			SrcAlphaBlendFactor: toVkBlendFactor(a.SrcAlpha),
			DstAlphaBlendFactor: toVkBlendFactor(a.DstAlpha),
			AlphaBlendOp:        toVkBlendOp(a.AlphaOp),
			ColorWriteMask:      toVkColorMask(a.WriteMask),
		}
	}
	colorBlending := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   toVkBool(info.ColorBlend.LogicOpEnable),
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
		BlendConstants:  info.ColorBlend.BlendConstants,
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(shaderStages)),
		PStages:             shaderStages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlending,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             info.Subpass,
		BasePipelineIndex:   -1,
	}
	if len(info.DynamicStates) > 0 {
		states := make([]vk.DynamicState, len(info.DynamicStates))
		for i, s := range info.DynamicStates {
			states[i] = toVkDynamicState(s)
		}
		pipelineInfo.PDynamicState = &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(states)),
			PDynamicStates:    states,
		}
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := vk.Error(vk.CreateGraphicsPipelines(d.device, vk.PipelineCache(vk.NullHandle), 1,
		[]vk.GraphicsPipelineCreateInfo{pipelineInfo}, nil, pipelines)); err != nil {
		return hal.Pipeline{}, errors.Wrap(err, "create graphics pipeline")
	}
	return hal.Pipeline{Handle: d.pipelines.Insert(pipelines[0])}, nil
}

func (d *Driver) DestroyPipeline(h hal.Pipeline) {
	if p, ok := d.pipelines.Remove(h.Handle); ok {
		vk.DestroyPipeline(d.device, p, nil)
	}
}

func attachmentDescription(a hal.AttachmentInfo) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         toVkFormat(a.Format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         toVkLoadOp(a.LoadOp),
		StoreOp:        toVkStoreOp(a.StoreOp),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  toVkLayout(a.InitialLayout),
		FinalLayout:    toVkLayout(a.FinalLayout),
	}
}

func (d *Driver) CreateRenderPass(info hal.RenderPassInfo) (hal.RenderPass, error) {
	colorRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     toVkLayout(info.Color.SubpassLayout),
	}
	depthRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     toVkLayout(info.Depth.SubpassLayout),
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       []vk.AttachmentReference{colorRef},
		PDepthStencilAttachment: &depthRef,
	}
	dep := info.Dependency
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  toVkStages(dep.SrcStage),
		SrcAccessMask: toVkAccess(dep.SrcAccess),
		DstStageMask:  toVkStages(dep.DstStage),
		DstAccessMask: toVkAccess(dep.DstAccess),
	}

	attachments := []vk.AttachmentDescription{
		attachmentDescription(info.Color),
		attachmentDescription(info.Depth),
	}
	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var rp vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(d.device, &createInfo, nil, &rp)); err != nil {
		return hal.RenderPass{}, errors.Wrap(err, "create render pass")
	}
	return hal.RenderPass{Handle: d.renderPasses.Insert(rp)}, nil
}

func (d *Driver) DestroyRenderPass(h hal.RenderPass) {
	if rp, ok := d.renderPasses.Remove(h.Handle); ok {
		vk.DestroyRenderPass(d.device, rp, nil)
	}
}

func (d *Driver) CreateFramebuffer(info hal.FramebufferInfo) (hal.Framebuffer, error) {
	rp, ok := d.renderPasses.Get(info.RenderPass.Handle)
	if !ok {
		return hal.Framebuffer{}, stale("render pass")
	}
	attachments := make([]vk.ImageView, len(info.Attachments))
	for i, h := range info.Attachments {
		v, ok := d.views.Get(h.Handle)
		if !ok {
			return hal.Framebuffer{}, stale("framebuffer attachment")
		}
		attachments[i] = v
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := vk.Error(vk.CreateFramebuffer(d.device, &createInfo, nil, &fb)); err != nil {
		return hal.Framebuffer{}, errors.Wrap(err, "create framebuffer")
	}
	return hal.Framebuffer{Handle: d.framebuffers.Insert(fb)}, nil
}

func (d *Driver) DestroyFramebuffer(h hal.Framebuffer) {
	if fb, ok := d.framebuffers.Remove(h.Handle); ok {
		vk.DestroyFramebuffer(d.device, fb, nil)
	}
}

func (d *Driver) CreateDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  toVkDescriptorType(b.Type),
			DescriptorCount: count,
			StageFlags:      toVkShaderStages(b.Stages),
		}
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var layout vk.DescriptorSetLayout
	if err := vk.Error(vk.CreateDescriptorSetLayout(d.device, &layoutInfo, nil, &layout)); err != nil {
		return hal.DescriptorSetLayout{}, errors.Wrap(err, "create descriptor set layout")
	}
	return hal.DescriptorSetLayout{Handle: d.setLayouts.Insert(layout)}, nil
}

func (d *Driver) DestroyDescriptorSetLayout(h hal.DescriptorSetLayout) {
	if l, ok := d.setLayouts.Remove(h.Handle); ok {
		vk.DestroyDescriptorSetLayout(d.device, l, nil)
	}
}

func (d *Driver) CreateDescriptorPool(maxSets uint32, sizes []hal.DescriptorPoolSize) (hal.DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            toVkDescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if err := vk.Error(vk.CreateDescriptorPool(d.device, &poolInfo, nil, &pool)); err != nil {
		return hal.DescriptorPool{}, errors.Wrap(err, "create descriptor pool")
	}
	return hal.DescriptorPool{Handle: d.descriptorPools.Insert(&descriptorPool{pool: pool})}, nil
}

// DestroyDescriptorPool also retires the handles of sets allocated from it.
func (d *Driver) DestroyDescriptorPool(h hal.DescriptorPool) {
	p, ok := d.descriptorPools.Remove(h.Handle)
	if !ok {
		return
	}
	for _, s := range p.sets {
		d.descriptorSets.Remove(s.Handle)
	}
	vk.DestroyDescriptorPool(d.device, p.pool, nil)
}

func (d *Driver) AllocateDescriptorSets(h hal.DescriptorPool, layouts []hal.DescriptorSetLayout) ([]hal.DescriptorSet, error) {
	p, ok := d.descriptorPools.Get(h.Handle)
	if !ok {
		return nil, stale("descriptor pool")
	}
	if len(layouts) == 0 {
		return nil, nil
	}
	vkLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		layout, ok := d.setLayouts.Get(l.Handle)
		if !ok {
			return nil, stale("descriptor set layout")
		}
		vkLayouts[i] = layout
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.pool,
		DescriptorSetCount: uint32(len(vkLayouts)),
		PSetLayouts:        vkLayouts,
	}
	raw := make([]vk.DescriptorSet, len(vkLayouts))
	if err := vk.Error(vk.AllocateDescriptorSets(d.device, &allocInfo, &raw[0])); err != nil {
		return nil, errors.Wrap(err, "allocate descriptor sets")
	}
	out := make([]hal.DescriptorSet, len(raw))
	for i, s := range raw {
		out[i] = hal.DescriptorSet{Handle: d.descriptorSets.Insert(s)}
		p.sets = append(p.sets, out[i])
	}
	return out, nil
}

func (d *Driver) UpdateDescriptorSets(writes []hal.DescriptorWrite) {
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := d.descriptorSets.Get(w.Set.Handle)
		if !ok {
			logging.Logger().Error("update stale descriptor set", "binding", w.Binding)
			continue
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  toVkDescriptorType(w.Type),
			DescriptorCount: 1,
		}
		switch w.Type {
		case hal.DescriptorSampledImage:
			view, ok := d.views.Get(w.ImageView.Handle)
			if !ok {
				logging.Logger().Error("write stale image view", "binding", w.Binding)
				continue
			}
			write.PImageInfo = []vk.DescriptorImageInfo{{ImageView: view, ImageLayout: toVkLayout(w.Layout)}}
		case hal.DescriptorSampler:
			sampler, ok := d.samplers.Get(w.Sampler.Handle)
			if !ok {
				logging.Logger().Error("write stale sampler", "binding", w.Binding)
				continue
			}
			write.PImageInfo = []vk.DescriptorImageInfo{{Sampler: sampler}}
		case hal.DescriptorUniformBuffer:
			buf, ok := d.buffers.Get(w.Buffer.Handle)
			if !ok {
				logging.Logger().Error("write stale buffer", "binding", w.Binding)
				continue
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) > 0 {
		vk.UpdateDescriptorSets(d.device, uint32(len(vkWrites)), vkWrites, 0, nil)
	}
}
