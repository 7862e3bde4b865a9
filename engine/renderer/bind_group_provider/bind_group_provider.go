package bind_group_provider

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label string

	// The following fields are GPU allocated resources owned by the provider and released with it.

	// bindGroup is the GPU bind group created for this provider, or nil until the renderer builds it.
	bindGroup *wgpu.BindGroup
	// buffers holds the uniform buffers created for this provider, keyed by binding index.
	buffers map[int]*wgpu.Buffer
	// textures holds textures uploaded for this provider, keyed by the binding of their view.
	textures map[int]*wgpu.Texture
	// textureViews holds the views bound at each binding. A view is released only when the
	// texture at the same binding is owned by the provider.
	textureViews map[int]*wgpu.TextureView

	// The following fields are borrowed from the renderer and are never released here.

	bindGroupLayout *wgpu.BindGroupLayout
	samplers        map[int]*wgpu.Sampler

	// Geometry uploaded from a spatial.Mesh.

	vertexBuffer *wgpu.Buffer
	indexBuffer  *wgpu.Buffer
	indexCount   int
}

// BindGroupProvider holds the GPU resources one drawable needs: its bind group, the
// uniform buffers and textures behind it, and its vertex and index buffers.
type BindGroupProvider interface {
	// Label returns the debug label of the provider.
	//
	// Returns:
	//   - string: the label passed to NewBindGroupProvider
	Label() string

	// BindGroup returns the bind group, or nil if it has not been created yet.
	BindGroup() *wgpu.BindGroup

	// BindGroupLayout returns the layout the bind group was created against.
	BindGroupLayout() *wgpu.BindGroupLayout

	// Buffer returns the buffer bound at binding, or nil.
	//
	// Parameters:
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer at that binding
	Buffer(binding int) *wgpu.Buffer

	// TextureView returns the texture view bound at binding, or nil.
	TextureView(binding int) *wgpu.TextureView

	// Sampler returns the sampler bound at binding, or nil.
	Sampler(binding int) *wgpu.Sampler

	// VertexBuffer returns the vertex buffer.
	VertexBuffer() *wgpu.Buffer

	// IndexBuffer returns the index buffer.
	IndexBuffer() *wgpu.Buffer

	// IndexCount returns the number of indices to draw.
	IndexCount() int

	// SetBindGroup sets the bind group, releasing any previous one.
	//
	// Parameters:
	//   - bg: the bind group
	SetBindGroup(bg *wgpu.BindGroup)

	// SetBindGroupLayout sets the borrowed layout.
	SetBindGroupLayout(bgl *wgpu.BindGroupLayout)

	// SetBuffer stores an owned buffer at binding.
	//
	// Parameters:
	//   - binding: the binding index within the group
	//   - buf: the buffer to own
	SetBuffer(binding int, buf *wgpu.Buffer)

	// SetTexture stores an owned texture and its view at binding.
	//
	// Parameters:
	//   - binding: the binding index of the view
	//   - tex: the texture to own
	//   - tv: a view of tex
	SetTexture(binding int, tex *wgpu.Texture, tv *wgpu.TextureView)

	// SetTextureView stores a borrowed texture view at binding.
	SetTextureView(binding int, tv *wgpu.TextureView)

	// SetSampler stores a borrowed sampler at binding.
	SetSampler(binding int, s *wgpu.Sampler)

	// SetVertexBuffer stores the owned vertex buffer.
	SetVertexBuffer(buf *wgpu.Buffer)

	// SetIndexBuffer stores the owned index buffer.
	SetIndexBuffer(buf *wgpu.Buffer)

	// SetIndexCount sets the number of indices for draw calls.
	//
	// Parameters:
	//   - count: the index count
	SetIndexCount(count int)

	// Release frees every owned GPU resource. Borrowed layouts, views and samplers
	// are dropped without being released.
	Release()
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: the debug label, also used for the GPU objects created for the provider
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:        label,
		buffers:      make(map[int]*wgpu.Buffer),
		textures:     make(map[int]*wgpu.Texture),
		textureViews: make(map[int]*wgpu.TextureView),
		samplers:     make(map[int]*wgpu.Sampler),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup() *wgpu.BindGroup {
	return p.bindGroup
}

func (p *bindGroupProvider) BindGroupLayout() *wgpu.BindGroupLayout {
	return p.bindGroupLayout
}

func (p *bindGroupProvider) Buffer(binding int) *wgpu.Buffer {
	return p.buffers[binding]
}

func (p *bindGroupProvider) TextureView(binding int) *wgpu.TextureView {
	return p.textureViews[binding]
}

func (p *bindGroupProvider) Sampler(binding int) *wgpu.Sampler {
	return p.samplers[binding]
}

func (p *bindGroupProvider) VertexBuffer() *wgpu.Buffer {
	return p.vertexBuffer
}

func (p *bindGroupProvider) IndexBuffer() *wgpu.Buffer {
	return p.indexBuffer
}

func (p *bindGroupProvider) IndexCount() int {
	return p.indexCount
}

func (p *bindGroupProvider) SetBindGroup(bg *wgpu.BindGroup) {
	if p.bindGroup != nil && p.bindGroup != bg {
		p.bindGroup.Release()
	}
	p.bindGroup = bg
}

func (p *bindGroupProvider) SetBindGroupLayout(bgl *wgpu.BindGroupLayout) {
	p.bindGroupLayout = bgl
}

func (p *bindGroupProvider) SetBuffer(binding int, buf *wgpu.Buffer) {
	p.buffers[binding] = buf
}

func (p *bindGroupProvider) SetTexture(binding int, tex *wgpu.Texture, tv *wgpu.TextureView) {
	p.textures[binding] = tex
	p.textureViews[binding] = tv
}

func (p *bindGroupProvider) SetTextureView(binding int, tv *wgpu.TextureView) {
	delete(p.textures, binding)
	p.textureViews[binding] = tv
}

func (p *bindGroupProvider) SetSampler(binding int, s *wgpu.Sampler) {
	p.samplers[binding] = s
}

func (p *bindGroupProvider) SetVertexBuffer(buf *wgpu.Buffer) {
	p.vertexBuffer = buf
}

func (p *bindGroupProvider) SetIndexBuffer(buf *wgpu.Buffer) {
	p.indexBuffer = buf
}

func (p *bindGroupProvider) SetIndexCount(count int) {
	p.indexCount = count
}

func (p *bindGroupProvider) Release() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	for i, tex := range p.textures {
		if tv := p.textureViews[i]; tv != nil {
			tv.Release()
		}
		if tex != nil {
			tex.Release()
		}
		delete(p.textures, i)
	}
	clear(p.textureViews)
	clear(p.samplers)
	for i, buf := range p.buffers {
		if buf != nil {
			buf.Release()
		}
		delete(p.buffers, i)
	}
	if p.vertexBuffer != nil {
		p.vertexBuffer.Release()
		p.vertexBuffer = nil
	}
	if p.indexBuffer != nil {
		p.indexBuffer.Release()
		p.indexBuffer = nil
	}
	p.bindGroupLayout = nil
	p.indexCount = 0
}
