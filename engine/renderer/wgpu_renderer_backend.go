package renderer

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"slices"
	"sync"
	"unsafe"

	"github.com/Carmen-Shannon/helix-go/common"
	"github.com/Carmen-Shannon/helix-go/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/helix-go/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/helix-go/engine/renderer/shader"
	"github.com/Carmen-Shannon/helix-go/engine/spatial"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// Bindings of the mesh bind group (group 0 of mesh.wgsl).
const (
	meshBindingUniforms = 0
	meshBindingTexture  = 1
	meshBindingSampler  = 2
)

// Bindings of the post bind group (group 0 of fullscreen.wgsl).
const (
	postBindingSource  = 0
	postBindingSampler = 1
	postBindingParams  = 2
	postBindingBloom   = 3
)

// meshUniforms mirrors MeshUniforms in mesh.wgsl.
type meshUniforms struct {
	ViewProj [16]float32
	Model    [16]float32
	Tint     [4]float32
}

// postParams mirrors PostParams in fullscreen.wgsl.
type postParams struct {
	Texel     [2]float32
	Direction [2]float32
	Threshold float32
	Intensity float32
	Radius    int32
	_         float32
	Weights   [MaxKernelTaps][4]float32
}

const (
	meshUniformsSize = uint64(unsafe.Sizeof(meshUniforms{}))
	postParamsSize   = uint64(unsafe.Sizeof(postParams{}))
)

// meshVertexLayout describes spatial.Vertex.
var meshVertexLayout = wgpu.VertexBufferLayout{
	ArrayStride: uint64(spatial.VertexSize),
	StepMode:    wgpu.VertexStepModeVertex,
	Attributes: []wgpu.VertexAttribute{
		{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
		{Format: wgpu.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
		{Format: wgpu.VertexFormatFloat32x4, Offset: 20, ShaderLocation: 2},
	},
}

// attachments are the multisample color and depth buffers a mesh pass renders with.
type attachments struct {
	msaaTexture  *wgpu.Texture
	msaaView     *wgpu.TextureView
	depthTexture *wgpu.Texture
	depthView    *wgpu.TextureView
}

func (a *attachments) release() {
	if a == nil {
		return
	}
	if a.msaaView != nil {
		a.msaaView.Release()
	}
	if a.msaaTexture != nil {
		a.msaaTexture.Release()
	}
	if a.depthView != nil {
		a.depthView.Release()
	}
	if a.depthTexture != nil {
		a.depthTexture.Release()
	}
}

// wgpuTarget is an offscreen color texture that can be rendered into and sampled.
type wgpuTarget struct {
	label       string
	width       int
	height      int
	texture     *wgpu.Texture
	view        *wgpu.TextureView
	attachments *attachments
}

var _ RenderTarget = &wgpuTarget{}

func (t *wgpuTarget) Label() string { return t.label }
func (t *wgpuTarget) Width() int    { return t.width }
func (t *wgpuTarget) Height() int   { return t.height }

// nodeEntry caches the GPU resources of one node until its mesh or material changes.
type nodeEntry struct {
	provider bind_group_provider.BindGroupProvider
	version  uint64
}

type wgpuRendererBackendImpl struct {
	mu  *sync.Mutex
	log *zap.Logger

	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat      wgpu.TextureFormat
	width, height      int
	surfaceAttachments *attachments

	presentMode wgpu.PresentMode
	sampleCount MSAASampleCount

	// Shared layouts and resources, created once per device
	meshLayout         *wgpu.BindGroupLayout
	postLayout         *wgpu.BindGroupLayout
	meshPipelineLayout *wgpu.PipelineLayout
	postPipelineLayout *wgpu.PipelineLayout
	meshSampler        *wgpu.Sampler
	postSampler        *wgpu.Sampler
	whiteTexture       *wgpu.Texture
	whiteView          *wgpu.TextureView
	postParamBuffers   map[PostPassKind]*wgpu.Buffer

	pipelineCache map[string]pipeline.Pipeline
	modules       map[string]*wgpu.ShaderModule
	nodes         map[spatial.Node]*nodeEntry

	// Frame state for batched rendering across multiple passes
	frameEncoder *wgpu.CommandEncoder
	framePass    *wgpu.RenderPassEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
	pass         PassState
	frameGarbage []*wgpu.BindGroup
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, sampleCount MSAASampleCount, log *zap.Logger) (*wgpuRendererBackendImpl, error) {
	runtime.LockOSThread()
	b := &wgpuRendererBackendImpl{
		mu:               &sync.Mutex{},
		log:              log.Named("wgpu"),
		instance:         wgpu.CreateInstance(nil),
		presentMode:      wgpu.PresentModeFifo,
		sampleCount:      sampleCount,
		postParamBuffers: make(map[PostPassKind]*wgpu.Buffer),
		pipelineCache:    make(map[string]pipeline.Pipeline),
		modules:          make(map[string]*wgpu.ShaderModule),
		nodes:            make(map[spatial.Node]*nodeEntry),
	}
	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	b.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Helix Device",
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()

	if err := b.createSharedResources(); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

// createSharedResources builds the bind group layouts, samplers, fallback texture and
// post-pass uniform buffers every frame reuses.
func (b *wgpuRendererBackendImpl) createSharedResources() error {
	var err error
	b.meshLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Mesh Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    meshBindingUniforms,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: meshUniformsSize,
				},
			},
			{
				Binding:    meshBindingTexture,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    meshBindingSampler,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("mesh bind group layout: %w", err)
	}

	b.postLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Post Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    postBindingSource,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    postBindingSampler,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
			{
				Binding:    postBindingParams,
				Visibility: wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: postParamsSize,
				},
			},
			{
				Binding:    postBindingBloom,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("post bind group layout: %w", err)
	}

	b.meshPipelineLayout, err = b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Mesh Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.meshLayout},
	})
	if err != nil {
		return fmt.Errorf("mesh pipeline layout: %w", err)
	}
	b.postPipelineLayout, err = b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Post Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.postLayout},
	})
	if err != nil {
		return fmt.Errorf("post pipeline layout: %w", err)
	}

	b.meshSampler, err = b.createSampler("Mesh Sampler", common.SamplerStagingData{})
	if err != nil {
		return err
	}
	b.postSampler, err = b.createSampler("Post Sampler", common.SamplerStagingData{
		AddressModeU: wgpu.AddressModeClampToEdge,
		AddressModeV: wgpu.AddressModeClampToEdge,
		AddressModeW: wgpu.AddressModeClampToEdge,
	})
	if err != nil {
		return err
	}

	b.whiteTexture, b.whiteView, err = b.uploadTexture("White Texture", &common.TextureStagingData{
		Pixels: []byte{255, 255, 255, 255},
		Width:  1,
		Height: 1,
	})
	if err != nil {
		return err
	}

	for _, kind := range []PostPassKind{PostPassExtract, PostPassBlurHorizontal, PostPassBlurVertical, PostPassComposite} {
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: kind.String() + " Params Buffer",
			Size:  postParamsSize,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("%s params buffer: %w", kind, err)
		}
		b.postParamBuffers[kind] = buf
	}
	return nil
}

func (b *wgpuRendererBackendImpl) Size() (width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface != nil {
		return errors.New("cannot reconfigure the surface while a frame is held")
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 {
		return errors.New("surface reports no formats")
	}
	format := capabilities.Formats[0]
	if b.surfaceFormat != 0 && format != b.surfaceFormat {
		// Cached pipelines target the old format.
		b.releasePipelines()
	}
	b.surfaceFormat = format

	presentMode := b.presentMode
	if !slices.Contains(capabilities.PresentModes, presentMode) {
		presentMode = wgpu.PresentModeFifo
	}

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	att, err := b.createAttachments("Surface", width, height)
	if err != nil {
		return err
	}
	b.surfaceAttachments.release()
	b.surfaceAttachments = att
	b.width, b.height = width, height

	b.log.Debug("surface configured",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Uint32("format", uint32(b.surfaceFormat)),
	)
	return nil
}

// createAttachments allocates the MSAA color texture (when MSAA is on) and the
// depth texture of a mesh pass. Depth sample count must match the color attachment.
func (b *wgpuRendererBackendImpl) createAttachments(label string, width, height int) (*attachments, error) {
	count := uint32(b.sampleCount)
	size := wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1}
	att := &attachments{}

	if count > 1 {
		tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         label + " MSAA Texture",
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   count,
			Dimension:     wgpu.TextureDimension2D,
			Format:        b.surfaceFormat,
			Usage:         wgpu.TextureUsageRenderAttachment,
		})
		if err != nil {
			return nil, fmt.Errorf("%s msaa texture: %w", label, err)
		}
		att.msaaTexture = tex
		if att.msaaView, err = tex.CreateView(nil); err != nil {
			att.release()
			return nil, fmt.Errorf("%s msaa view: %w", label, err)
		}
	}

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label + " Depth Texture",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   count,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		att.release()
		return nil, fmt.Errorf("%s depth texture: %w", label, err)
	}
	att.depthTexture = tex
	if att.depthView, err = tex.CreateView(nil); err != nil {
		att.release()
		return nil, fmt.Errorf("%s depth view: %w", label, err)
	}
	return att, nil
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeUncapped:
		b.presentMode = wgpu.PresentModeImmediate
	case PresentModeMailbox:
		b.presentMode = wgpu.PresentModeMailbox
	case PresentModeVSync:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeFifo
	}
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// If a previous frame's surface texture is still held, do not acquire another
	// one; wgpu-native rejects a second acquire before present.
	if b.frameSurface != nil {
		return errors.New("previous frame surface not yet presented")
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return err
	}

	b.frameEncoder = encoder
	b.frameSurface = surfaceTexture
	b.frameView = view
	return nil
}

func (b *wgpuRendererBackendImpl) BeginPass(state PassState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	if b.framePass != nil {
		return ErrContextActive
	}

	view, att, width, height, err := b.resolveMeshTarget(state.Target)
	if err != nil {
		return err
	}

	loadOp := wgpu.LoadOpLoad
	if state.Clear {
		loadOp = wgpu.LoadOpClear
	}
	color := wgpu.RenderPassColorAttachment{
		View:    view,
		LoadOp:  loadOp,
		StoreOp: wgpu.StoreOpStore,
		ClearValue: wgpu.Color{
			R: float64(state.ClearColor.R),
			G: float64(state.ClearColor.G),
			B: float64(state.ClearColor.B),
			A: float64(state.ClearColor.A),
		},
	}
	// When MSAA is enabled, the MSAA texture is the color attachment View and
	// the target view is the ResolveTarget.
	if att.msaaView != nil {
		color.View = att.msaaView
		color.ResolveTarget = view
	}

	pass := b.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{color},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            att.depthView,
			DepthLoadOp:     loadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})

	vp := state.Viewport
	if vp.Empty() {
		vp = common.Viewport{Width: width, Height: height}
	}
	vpRect := image.Rect(vp.X, vp.Y, vp.X+vp.Width, vp.Y+vp.Height).Intersect(image.Rect(0, 0, width, height))
	if !vpRect.Empty() {
		pass.SetViewport(float32(vpRect.Min.X), float32(vpRect.Min.Y), float32(vpRect.Dx()), float32(vpRect.Dy()), 0, 1)
	}

	b.framePass = pass
	b.pass = state
	return nil
}

// resolveMeshTarget returns the color view, pass attachments and size of a mesh pass
// target; nil is the surface. Offscreen attachments are created on first use.
// Caller must hold the mutex.
func (b *wgpuRendererBackendImpl) resolveMeshTarget(t RenderTarget) (*wgpu.TextureView, *attachments, int, int, error) {
	if t == nil {
		return b.frameView, b.surfaceAttachments, b.width, b.height, nil
	}
	wt, err := b.asTarget(t)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	if wt.attachments == nil {
		att, err := b.createAttachments(wt.label, wt.width, wt.height)
		if err != nil {
			return nil, nil, 0, 0, err
		}
		wt.attachments = att
	}
	return wt.view, wt.attachments, wt.width, wt.height, nil
}

func (b *wgpuRendererBackendImpl) Draw(viewProj [16]float32, node spatial.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass == nil {
		return ErrNoContext
	}

	provider, err := b.nodeProvider(node)
	if err != nil {
		return err
	}

	u := meshUniforms{ViewProj: viewProj, Model: node.ModelMatrix(), Tint: node.Material().Tint().Vec4()}
	if err := bind_group_provider.WriteBuffers(b.queue, bind_group_provider.BufferWrite{
		Provider: provider,
		Binding:  meshBindingUniforms,
		Data:     common.SliceToBytes([]meshUniforms{u}),
	}); err != nil {
		return err
	}

	p, err := b.meshPipeline(node.Mesh().Topology, b.pass.Blend)
	if err != nil {
		return err
	}

	b.framePass.SetPipeline(p.RenderPipeline())
	b.framePass.SetBindGroup(0, provider.BindGroup(), nil)
	b.framePass.SetVertexBuffer(0, provider.VertexBuffer(), 0, wgpu.WholeSize)
	b.framePass.SetIndexBuffer(provider.IndexBuffer(), wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	b.framePass.DrawIndexed(uint32(provider.IndexCount()), 1, 0, 0, 0)
	return nil
}

// nodeProvider returns the cached provider of node, rebuilding it when the node's mesh
// or material changed since it was uploaded. Caller must hold the mutex.
func (b *wgpuRendererBackendImpl) nodeProvider(node spatial.Node) (bind_group_provider.BindGroupProvider, error) {
	if entry, ok := b.nodes[node]; ok {
		if entry.version == node.Version() {
			return entry.provider, nil
		}
		entry.provider.Release()
		delete(b.nodes, node)
	}

	provider := bind_group_provider.NewBindGroupProvider(
		"node:"+node.Label(),
		bind_group_provider.WithBindGroupLayout(b.meshLayout),
		bind_group_provider.WithSampler(meshBindingSampler, b.meshSampler),
	)
	if err := b.initNodeResources(provider, node); err != nil {
		provider.Release()
		return nil, err
	}
	b.nodes[node] = &nodeEntry{provider: provider, version: node.Version()}
	return provider, nil
}

// initNodeResources uploads the mesh, texture and uniform buffer of a node and creates
// its bind group. Caller must hold the mutex.
func (b *wgpuRendererBackendImpl) initNodeResources(provider bind_group_provider.BindGroupProvider, node spatial.Node) error {
	mesh := node.Mesh()

	vertexData := mesh.VertexBytes()
	vbuf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: provider.Label() + " Vertex Buffer",
		Size:  uint64(len(vertexData)),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	b.queue.WriteBuffer(vbuf, 0, vertexData)
	provider.SetVertexBuffer(vbuf)

	indexData := mesh.IndexBytes()
	ibuf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: provider.Label() + " Index Buffer",
		Size:  uint64(len(indexData)),
		Usage: wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	b.queue.WriteBuffer(ibuf, 0, indexData)
	provider.SetIndexBuffer(ibuf)
	provider.SetIndexCount(len(mesh.Indices))

	ubuf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: provider.Label() + " Uniform Buffer",
		Size:  meshUniformsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	provider.SetBuffer(meshBindingUniforms, ubuf)

	if tex := node.Material().Texture; tex.Valid() {
		t, v, err := b.uploadTexture(provider.Label()+" Texture", tex)
		if err != nil {
			return err
		}
		provider.SetTexture(meshBindingTexture, t, v)
	} else {
		provider.SetTextureView(meshBindingTexture, b.whiteView)
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  provider.Label() + " Bind Group",
		Layout: provider.BindGroupLayout(),
		Entries: []wgpu.BindGroupEntry{
			{Binding: meshBindingUniforms, Buffer: ubuf, Offset: 0, Size: wgpu.WholeSize},
			{Binding: meshBindingTexture, TextureView: provider.TextureView(meshBindingTexture)},
			{Binding: meshBindingSampler, Sampler: provider.Sampler(meshBindingSampler)},
		},
	})
	if err != nil {
		return err
	}
	provider.SetBindGroup(bindGroup)
	return nil
}

// uploadTexture creates a sampled sRGB texture from staging data.
func (b *wgpuRendererBackendImpl) uploadTexture(label string, stagingData *common.TextureStagingData) (*wgpu.Texture, *wgpu.TextureView, error) {
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label,
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              stagingData.Width,
			Height:             stagingData.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        wgpu.TextureFormatRGBA8UnormSrgb,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", label, err)
	}

	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		stagingData.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  stagingData.Width * 4,
			RowsPerImage: stagingData.Height,
		},
		&wgpu.Extent3D{
			Width:              stagingData.Width,
			Height:             stagingData.Height,
			DepthOrArrayLayers: 1,
		},
	)

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, fmt.Errorf("%s view: %w", label, err)
	}
	return tex, view, nil
}

func (b *wgpuRendererBackendImpl) createSampler(label string, samplerStagingData common.SamplerStagingData) (*wgpu.Sampler, error) {
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         label,
		AddressModeU:  common.Coalesce(samplerStagingData.AddressModeU, wgpu.AddressModeRepeat),
		AddressModeV:  common.Coalesce(samplerStagingData.AddressModeV, wgpu.AddressModeRepeat),
		AddressModeW:  common.Coalesce(samplerStagingData.AddressModeW, wgpu.AddressModeRepeat),
		MagFilter:     common.Coalesce(samplerStagingData.MagFilter, wgpu.FilterModeLinear),
		MinFilter:     common.Coalesce(samplerStagingData.MinFilter, wgpu.FilterModeLinear),
		MipmapFilter:  common.Coalesce(samplerStagingData.MipmapFilter, wgpu.MipmapFilterModeLinear),
		LodMinClamp:   common.Coalesce(samplerStagingData.LodMinClamp, 0.0),
		LodMaxClamp:   common.Coalesce(samplerStagingData.LodMaxClamp, 32.0),
		MaxAnisotropy: common.Coalesce(samplerStagingData.MaxAnisotropy, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return samp, nil
}

// meshPipeline returns the cached mesh pipeline for a topology and blend mode,
// creating it on first use. Caller must hold the mutex.
func (b *wgpuRendererBackendImpl) meshPipeline(topology spatial.Topology, blend BlendMode) (pipeline.Pipeline, error) {
	key := fmt.Sprintf("mesh/%s/%s", topology, blend)
	if p, ok := b.pipelineCache[key]; ok {
		return p, nil
	}

	opts := []pipeline.PipelineBuilderOption{
		pipeline.WithVertexShader(shader.MeshVertex()),
		pipeline.WithFragmentShader(shader.MeshFragment()),
		pipeline.WithVertexLayouts(meshVertexLayout),
		pipeline.WithSampleCount(uint32(b.sampleCount)),
	}
	if topology == spatial.TopologyLines {
		opts = append(opts, pipeline.WithTopology(wgpu.PrimitiveTopologyLineList))
	}
	switch blend {
	case BlendAlpha:
		opts = append(opts, pipeline.WithBlendState(pipeline.BlendAlpha))
	case BlendAdditive:
		opts = append(opts, pipeline.WithBlendState(pipeline.BlendAdditive))
	}

	p := pipeline.NewPipeline(key, opts...)
	if err := b.registerRenderPipeline(p, b.meshPipelineLayout); err != nil {
		return nil, err
	}
	b.pipelineCache[key] = p
	return p, nil
}

// postPipeline returns the cached full-screen pipeline of a post pass kind.
// Caller must hold the mutex.
func (b *wgpuRendererBackendImpl) postPipeline(kind PostPassKind) (pipeline.Pipeline, error) {
	key := "post/" + kind.String()
	if p, ok := b.pipelineCache[key]; ok {
		return p, nil
	}

	var fragment shader.Shader
	switch kind {
	case PostPassExtract:
		fragment = shader.ExtractFragment()
	case PostPassBlurHorizontal, PostPassBlurVertical:
		fragment = shader.BlurFragment()
	case PostPassComposite:
		fragment = shader.CompositeFragment()
	default:
		return nil, fmt.Errorf("unknown post pass %s", kind)
	}

	p := pipeline.NewPipeline(key,
		pipeline.WithVertexShader(shader.FullscreenVertex()),
		pipeline.WithFragmentShader(fragment),
		pipeline.WithDepthAttachment(false),
	)
	if err := b.registerRenderPipeline(p, b.postPipelineLayout); err != nil {
		return nil, err
	}
	b.pipelineCache[key] = p
	return p, nil
}

// registerRenderPipeline creates the GPU pipeline of a description against the surface format.
// Shaders are validated offline first so WGSL errors surface with the shader key.
// Caller must hold the mutex.
func (b *wgpuRendererBackendImpl) registerRenderPipeline(p pipeline.Pipeline, layout *wgpu.PipelineLayout) error {
	if err := p.Validate(); err != nil {
		return err
	}
	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)

	vs, err := b.shaderModule(vertexShader)
	if err != nil {
		return err
	}
	fs, err := b.shaderModule(fragmentShader)
	if err != nil {
		return err
	}

	target := wgpu.ColorTargetState{
		Format:    b.surfaceFormat,
		WriteMask: p.WriteMask(),
	}
	if p.BlendEnabled() {
		target.Blend = p.BlendState()
	}

	var depthStencil *wgpu.DepthStencilState
	if p.DepthAttachment() {
		depthCompare := wgpu.CompareFunctionLess
		if !p.DepthTestEnabled() {
			depthCompare = wgpu.CompareFunctionAlways
		}
		depthStencil = &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled: p.DepthWriteEnabled(),
			DepthCompare:      depthCompare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vertexShader.EntryPoint(),
			Buffers:    p.VertexLayouts(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.Topology(),
			FrontFace: p.FrontFace(),
			CullMode:  p.CullMode(),
		},
		Multisample: wgpu.MultisampleState{
			Count: p.SampleCount(),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencil,
	})
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", p.PipelineKey(), err)
	}
	p.SetRenderPipeline(created)
	b.log.Debug("pipeline created", zap.String("key", p.PipelineKey()))
	return nil
}

// shaderModule returns the cached module of a shader. Caller must hold the mutex.
func (b *wgpuRendererBackendImpl) shaderModule(s shader.Shader) (*wgpu.ShaderModule, error) {
	if m, ok := b.modules[s.Key()]; ok {
		return m, nil
	}
	m, err := b.device.CreateShaderModule(s.Module())
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", s.Key(), err)
	}
	b.modules[s.Key()] = m
	return m, nil
}

func (b *wgpuRendererBackendImpl) EndPass() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass == nil {
		return ErrNoContext
	}
	b.framePass.End()
	b.framePass.Release()
	b.framePass = nil
	return nil
}

func (b *wgpuRendererBackendImpl) CreateTarget(label string, width, height int) (RenderTarget, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label + " Target",
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        b.surfaceFormat,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &wgpuTarget{label: label, width: width, height: height, texture: tex, view: view}, nil
}

func (b *wgpuRendererBackendImpl) ReleaseTarget(t RenderTarget) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wt, ok := t.(*wgpuTarget)
	if !ok || wt.texture == nil {
		return
	}
	wt.attachments.release()
	wt.attachments = nil
	wt.view.Release()
	wt.texture.Release()
	wt.view = nil
	wt.texture = nil
}

func (b *wgpuRendererBackendImpl) RunPostPass(kind PostPassKind, inputs []RenderTarget, output RenderTarget, params PassParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	if b.framePass != nil {
		return ErrContextActive
	}

	src, err := b.asTarget(inputs[0])
	if err != nil {
		return err
	}
	bloomView := src.view
	if kind == PostPassComposite {
		bloom, err := b.asTarget(inputs[1])
		if err != nil {
			return err
		}
		bloomView = bloom.view
	}

	outView := b.frameView
	if output != nil {
		out, err := b.asTarget(output)
		if err != nil {
			return err
		}
		outView = out.view
	}

	p, err := b.postPipeline(kind)
	if err != nil {
		return err
	}

	u := postParams{
		Texel:     [2]float32{1 / float32(src.width), 1 / float32(src.height)},
		Threshold: params.Threshold,
		Intensity: params.Intensity,
	}
	switch kind {
	case PostPassBlurHorizontal:
		u.Direction = [2]float32{1, 0}
	case PostPassBlurVertical:
		u.Direction = [2]float32{0, 1}
	}
	if len(params.Kernel) > 0 {
		u.Radius = int32(len(params.Kernel) - 1)
		for i, w := range params.Kernel {
			u.Weights[i][0] = w
		}
	} else {
		u.Weights[0][0] = 1
	}
	paramsBuf := b.postParamBuffers[kind]
	b.queue.WriteBuffer(paramsBuf, 0, common.SliceToBytes([]postParams{u}))

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  kind.String() + " Bind Group",
		Layout: b.postLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: postBindingSource, TextureView: src.view},
			{Binding: postBindingSampler, Sampler: b.postSampler},
			{Binding: postBindingParams, Buffer: paramsBuf, Offset: 0, Size: wgpu.WholeSize},
			{Binding: postBindingBloom, TextureView: bloomView},
		},
	})
	if err != nil {
		return err
	}
	// Bind groups must outlive the submit of the encoder that references them.
	b.frameGarbage = append(b.frameGarbage, bindGroup)

	pass := b.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       outView,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{A: 1},
		}},
	})
	pass.SetPipeline(p.RenderPipeline())
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()
	pass.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) Present() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// If no frame surface is held, nothing to present.
	if b.frameSurface == nil {
		return ErrNoFrame
	}
	if b.framePass != nil {
		return ErrContextActive
	}

	commandBuffer, err := b.frameEncoder.Finish(nil)
	if err != nil {
		b.releaseFrame()
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	b.surface.Present()
	b.releaseFrame()
	return nil
}

// releaseFrame drops the per-frame encoder, surface texture and garbage.
// Caller must hold the mutex.
func (b *wgpuRendererBackendImpl) releaseFrame() {
	if b.frameEncoder != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
	}
	for _, bg := range b.frameGarbage {
		bg.Release()
	}
	b.frameGarbage = b.frameGarbage[:0]
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

// Snapshot is not supported: surface textures cannot be read back.
func (b *wgpuRendererBackendImpl) Snapshot() (*image.RGBA, error) {
	return nil, ErrUnsupported
}

func (b *wgpuRendererBackendImpl) ReleaseNode(node spatial.Node) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, ok := b.nodes[node]; ok {
		entry.provider.Release()
		delete(b.nodes, node)
	}
}

// releasePipelines drops every cached pipeline. Caller must hold the mutex.
func (b *wgpuRendererBackendImpl) releasePipelines() {
	for key, p := range b.pipelineCache {
		if rp := p.RenderPipeline(); rp != nil {
			rp.Release()
		}
		delete(b.pipelineCache, key)
	}
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass != nil {
		b.framePass.End()
		b.framePass.Release()
		b.framePass = nil
	}
	b.releaseFrame()

	for node, entry := range b.nodes {
		entry.provider.Release()
		delete(b.nodes, node)
	}
	b.releasePipelines()
	for key, m := range b.modules {
		m.Release()
		delete(b.modules, key)
	}
	for kind, buf := range b.postParamBuffers {
		buf.Release()
		delete(b.postParamBuffers, kind)
	}
	b.surfaceAttachments.release()
	b.surfaceAttachments = nil

	if b.whiteView != nil {
		b.whiteView.Release()
		b.whiteView = nil
	}
	if b.whiteTexture != nil {
		b.whiteTexture.Release()
		b.whiteTexture = nil
	}
	if b.meshSampler != nil {
		b.meshSampler.Release()
		b.meshSampler = nil
	}
	if b.postSampler != nil {
		b.postSampler.Release()
		b.postSampler = nil
	}
	if b.meshPipelineLayout != nil {
		b.meshPipelineLayout.Release()
		b.meshPipelineLayout = nil
	}
	if b.postPipelineLayout != nil {
		b.postPipelineLayout.Release()
		b.postPipelineLayout = nil
	}
	if b.meshLayout != nil {
		b.meshLayout.Release()
		b.meshLayout = nil
	}
	if b.postLayout != nil {
		b.postLayout.Release()
		b.postLayout = nil
	}

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// asTarget checks that t is a live target of this backend.
func (b *wgpuRendererBackendImpl) asTarget(t RenderTarget) (*wgpuTarget, error) {
	wt, ok := t.(*wgpuTarget)
	if !ok {
		return nil, fmt.Errorf("target %s was not created by the wgpu backend", t.Label())
	}
	if wt.texture == nil {
		return nil, fmt.Errorf("target %s was released", wt.label)
	}
	return wt, nil
}
