// Package gpu implements hal.Driver on Vulkan through vulkan-go.
//
// A Driver owns the instance, the window surface and one logical device.
// Vulkan objects are kept in generation-checked arenas and handed out as hal
// handles, so a handle to a destroyed object is detected instead of reaching
// the driver.
package gpu

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"teapot/internal/hal"
	"teapot/internal/logging"
)

var (
	validationLayers = []string{"VK_LAYER_KHRONOS_validation\x00"}
	deviceExtensions = []string{"VK_KHR_swapchain\x00"}
)

// Surface is the window the driver presents to.
type Surface interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

type Options struct {
	AppName string
	// Validation enables VK_LAYER_KHRONOS_validation and routes its reports
	// to the logger.
	Validation bool
	// ProcAddr is vkGetInstanceProcAddr as returned by the windowing library.
	ProcAddr unsafe.Pointer
}

type queueFamilyIndices struct {
	graphicsFamily uint32
	presentFamily  uint32
	hasGraphics    bool
	hasPresent     bool
}

func (q queueFamilyIndices) complete() bool { return q.hasGraphics && q.hasPresent }

type allocation struct {
	memory      vk.DeviceMemory
	size        uint64
	hostVisible bool
	mapped      unsafe.Pointer
}

type image struct {
	image vk.Image
	// swapchain images belong to their swapchain and are never destroyed
	// individually.
	swapchain bool
}

type swapchain struct {
	swapchain vk.Swapchain
	images    []hal.Image
}

type commandBuffer struct {
	buffer vk.CommandBuffer
	pool   hal.CommandPool
}

type descriptorPool struct {
	pool vk.DescriptorPool
	sets []hal.DescriptorSet
}

// Driver is a Vulkan logical device bound to one window surface.
type Driver struct {
	opts     Options
	instance vk.Instance
	debug    vk.DebugReportCallback
	hasDebug bool
	surface  vk.Surface
	physical vk.PhysicalDevice
	device   vk.Device
	queues   queueFamilyIndices
	props    hal.DeviceProperties
	memProps vk.PhysicalDeviceMemoryProperties

	graphics hal.Queue
	present  hal.Queue

	queueObjs       hal.Arena[vk.Queue]
	fences          hal.Arena[vk.Fence]
	semaphores      hal.Arena[vk.Semaphore]
	images          hal.Arena[image]
	allocations     hal.Arena[*allocation]
	buffers         hal.Arena[vk.Buffer]
	views           hal.Arena[vk.ImageView]
	samplers        hal.Arena[vk.Sampler]
	swapchains      hal.Arena[*swapchain]
	renderPasses    hal.Arena[vk.RenderPass]
	framebuffers    hal.Arena[vk.Framebuffer]
	commandPools    hal.Arena[vk.CommandPool]
	commandBuffers  hal.Arena[commandBuffer]
	shaderModules   hal.Arena[vk.ShaderModule]
	pipelineLayouts hal.Arena[vk.PipelineLayout]
	pipelines       hal.Arena[vk.Pipeline]
	setLayouts      hal.Arena[vk.DescriptorSetLayout]
	descriptorPools hal.Arena[*descriptorPool]
	descriptorSets  hal.Arena[vk.DescriptorSet]

	allocatedBytes uint64
}

var _ hal.Driver = (*Driver)(nil)

// New creates the instance, the surface and the logical device. Everything
// created so far is released when a step fails.
func New(surface Surface, opts Options) (*Driver, error) {
	if opts.AppName == "" {
		opts.AppName = "Teapot"
	}
	d := &Driver{opts: opts}

	if opts.ProcAddr != nil {
		vk.SetGetInstanceProcAddr(opts.ProcAddr)
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, errors.Wrap(err, "load vulkan loader")
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vulkan init")
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"create instance", func() error { return d.createInstance(surface) }},
		{"init instance", func() error { return vk.InitInstance(d.instance) }},
		{"setup debug callback", d.setupDebugCallback},
		{"create surface", func() error { return d.createSurface(surface) }},
		{"pick physical device", d.pickPhysicalDevice},
		{"create logical device", d.createLogicalDevice},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			d.Destroy()
			return nil, errors.Wrap(err, s.name)
		}
	}
	logging.Logger().Info("vulkan device ready",
		"gpu", d.props.Name,
		"discrete", d.props.Discrete,
		"validation", opts.Validation,
		"graphicsFamily", d.queues.graphicsFamily,
		"presentFamily", d.queues.presentFamily,
	)
	return d, nil
}

func (d *Driver) Properties() hal.DeviceProperties { return d.props }

// Destroy releases every object the driver still tracks and then the device,
// the surface and the instance.
func (d *Driver) Destroy() {
	if d.device != nil {
		vk.DeviceWaitIdle(d.device)
		d.releaseAll()
		vk.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.hasDebug {
		vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
		d.hasDebug = false
	}
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

// releaseAll destroys leaked objects in dependency order.
func (d *Driver) releaseAll() {
	leaked := 0
	count := func(n int) { leaked += n }

	count(d.pipelines.Len())
	d.pipelines.Each(func(h hal.Handle, _ vk.Pipeline) { d.DestroyPipeline(hal.Pipeline{Handle: h}) })
	count(d.pipelineLayouts.Len())
	d.pipelineLayouts.Each(func(h hal.Handle, _ vk.PipelineLayout) { d.DestroyPipelineLayout(hal.PipelineLayout{Handle: h}) })
	count(d.shaderModules.Len())
	d.shaderModules.Each(func(h hal.Handle, _ vk.ShaderModule) { d.DestroyShaderModule(hal.ShaderModule{Handle: h}) })
	count(d.descriptorPools.Len())
	d.descriptorPools.Each(func(h hal.Handle, _ *descriptorPool) { d.DestroyDescriptorPool(hal.DescriptorPool{Handle: h}) })
	count(d.setLayouts.Len())
	d.setLayouts.Each(func(h hal.Handle, _ vk.DescriptorSetLayout) {
		d.DestroyDescriptorSetLayout(hal.DescriptorSetLayout{Handle: h})
	})
	count(d.framebuffers.Len())
	d.framebuffers.Each(func(h hal.Handle, _ vk.Framebuffer) { d.DestroyFramebuffer(hal.Framebuffer{Handle: h}) })
	count(d.renderPasses.Len())
	d.renderPasses.Each(func(h hal.Handle, _ vk.RenderPass) { d.DestroyRenderPass(hal.RenderPass{Handle: h}) })
	count(d.commandPools.Len())
	d.commandPools.Each(func(h hal.Handle, _ vk.CommandPool) { d.DestroyCommandPool(hal.CommandPool{Handle: h}) })
	count(d.fences.Len())
	d.fences.Each(func(h hal.Handle, _ vk.Fence) { d.DestroyFence(hal.Fence{Handle: h}) })
	count(d.semaphores.Len())
	d.semaphores.Each(func(h hal.Handle, _ vk.Semaphore) { d.DestroySemaphore(hal.Semaphore{Handle: h}) })
	count(d.samplers.Len())
	d.samplers.Each(func(h hal.Handle, _ vk.Sampler) { d.DestroySampler(hal.Sampler{Handle: h}) })
	count(d.views.Len())
	d.views.Each(func(h hal.Handle, _ vk.ImageView) { d.DestroyImageView(hal.ImageView{Handle: h}) })
	count(d.swapchains.Len())
	d.swapchains.Each(func(h hal.Handle, _ *swapchain) { d.DestroySwapchain(hal.Swapchain{Handle: h}) })
	d.images.Each(func(h hal.Handle, img image) {
		vk.DestroyImage(d.device, img.image, nil)
		d.images.Remove(h)
		leaked++
	})
	d.buffers.Each(func(h hal.Handle, b vk.Buffer) {
		vk.DestroyBuffer(d.device, b, nil)
		d.buffers.Remove(h)
		leaked++
	})
	d.allocations.Each(func(h hal.Handle, _ *allocation) { d.freeAllocation(hal.Allocation{Handle: h}) })

	if leaked > 0 {
		logging.Logger().Warn("destroyed leaked vulkan objects", "count", leaked)
	}
}

func (d *Driver) createInstance(surface Surface) error {
	if d.opts.Validation && !validationLayersSupported() {
		return errors.New("requested validation layers not available")
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   d.opts.AppName + "\x00",
		ApplicationVersion: vk.MakeVersion(0, 1, 0),
		PEngineName:        "teapot\x00",
		EngineVersion:      vk.MakeVersion(0, 1, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}

	extensions := safeStrings(surface.GetRequiredInstanceExtensions())
	if d.opts.Validation {
		extensions = append(extensions, "VK_EXT_debug_report\x00")
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	if d.opts.Validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = validationLayers
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return err
	}
	d.instance = instance
	return nil
}

func validationLayersSupported() bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	props := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, props) != vk.Success {
		return false
	}
	supported := make(map[string]bool)
	for i := range props {
		props[i].Deref()
		supported[vk.ToString(props[i].LayerName[:])+"\x00"] = true
	}
	for _, l := range validationLayers {
		if !supported[l] {
			return false
		}
	}
	return true
}

func (d *Driver) setupDebugCallback() error {
	if !d.opts.Validation {
		return nil
	}
	createInfo := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(
			vk.DebugReportErrorBit |
				vk.DebugReportWarningBit |
				vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugReport,
	}
	var cb vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(d.instance, &createInfo, nil, &cb)); err != nil {
		return err
	}
	d.debug = cb
	d.hasDebug = true
	return nil
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint, messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vk.Bool32 {
	log := logging.Logger()
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		log.Error(message, "layer", layerPrefix, "code", messageCode)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		log.Warn(message, "layer", layerPrefix, "code", messageCode)
	default:
		log.Debug(message, "layer", layerPrefix, "code", messageCode)
	}
	return vk.False
}

func (d *Driver) createSurface(surface Surface) error {
	ptr, err := surface.CreateWindowSurface(d.instance, nil)
	if err != nil {
		return err
	}
	d.surface = vk.SurfaceFromPointer(ptr)
	return nil
}

func (d *Driver) pickPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.instance, &count, nil); res != vk.Success || count == 0 {
		return errors.Wrap(orNoDevice(res), "enumerate physical devices")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := vk.Error(vk.EnumeratePhysicalDevices(d.instance, &count, devices)); err != nil {
		return errors.Wrap(err, "enumerate physical devices list")
	}

	var (
		selected       vk.PhysicalDevice
		selectedQueues queueFamilyIndices
		found          bool
		bestScore      = int32(-1)
	)
	for _, dev := range devices {
		q := d.findQueueFamilies(dev)
		if !q.complete() {
			continue
		}
		if !deviceExtensionsSupported(dev) {
			continue
		}
		support := d.querySwapchainSupport(dev)
		if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
			continue
		}
		if score := deviceScore(dev); score > bestScore {
			bestScore = score
			selected = dev
			selectedQueues = q
			found = true
		}
	}
	if !found {
		return errors.New("no suitable GPU found")
	}

	d.physical = selected
	d.queues = selectedQueues

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(selected, &props)
	props.Deref()
	d.props = hal.DeviceProperties{
		Name:     vk.ToString(props.DeviceName[:]),
		Discrete: props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu,
	}

	vk.GetPhysicalDeviceMemoryProperties(selected, &d.memProps)
	d.memProps.Deref()
	return nil
}

func orNoDevice(res vk.Result) error {
	if err := vk.Error(res); err != nil {
		return err
	}
	return errors.New("no vulkan devices")
}

// deviceScore prefers discrete GPUs over integrated ones.
func deviceScore(device vk.PhysicalDevice) int32 {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(device, &props)
	props.Deref()

	switch props.DeviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return 1000
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return 500
	default:
		return 100
	}
}

func deviceExtensionsSupported(device vk.PhysicalDevice) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(device, "", &count, nil) != vk.Success {
		return false
	}
	props := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(device, "", &count, props) != vk.Success {
		return false
	}
	supported := make(map[string]bool)
	for i := range props {
		props[i].Deref()
		supported[vk.ToString(props[i].ExtensionName[:])+"\x00"] = true
	}
	for _, ext := range deviceExtensions {
		if !supported[ext] {
			return false
		}
	}
	return true
}

func (d *Driver) findQueueFamilies(device vk.PhysicalDevice) queueFamilyIndices {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, props)

	var indices queueFamilyIndices
	for i := range props {
		props[i].Deref()
		if props[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			indices.graphicsFamily = uint32(i)
			indices.hasGraphics = true
		}
		var present vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), d.surface, &present)
		if present == vk.True {
			indices.presentFamily = uint32(i)
			indices.hasPresent = true
		}
		if indices.complete() {
			break
		}
	}
	return indices
}

func (d *Driver) createLogicalDevice() error {
	var queueInfos []vk.DeviceQueueCreateInfo
	families := []uint32{d.queues.graphicsFamily}
	if d.queues.presentFamily != d.queues.graphicsFamily {
		families = append(families, d.queues.presentFamily)
	}
	for _, family := range families {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PQueueCreateInfos:       queueInfos,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		PpEnabledExtensionNames: deviceExtensions,
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
	}
	if d.opts.Validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = validationLayers
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(d.physical, &createInfo, nil, &device)); err != nil {
		return err
	}
	d.device = device

	var graphics, present vk.Queue
	vk.GetDeviceQueue(d.device, d.queues.graphicsFamily, 0, &graphics)
	vk.GetDeviceQueue(d.device, d.queues.presentFamily, 0, &present)
	d.graphics = hal.Queue{Handle: d.queueObjs.Insert(graphics)}
	if d.queues.presentFamily == d.queues.graphicsFamily {
		d.present = d.graphics
	} else {
		d.present = hal.Queue{Handle: d.queueObjs.Insert(present)}
	}
	return nil
}

// safeStrings NUL-terminates names for the C side.
func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		if len(s) == 0 || s[len(s)-1] != 0 {
			s += "\x00"
		}
		out[i] = s
	}
	return out
}

func stale(kind string) error {
	return errors.Wrap(hal.ErrStaleHandle, kind)
}
