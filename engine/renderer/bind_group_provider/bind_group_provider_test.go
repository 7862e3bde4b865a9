package bind_group_provider

import (
	"strings"
	"testing"
)

func TestNewBindGroupProviderKeepsLabel(t *testing.T) {
	p := NewBindGroupProvider("node:box")
	if p.Label() != "node:box" {
		t.Fatalf("Label() = %q", p.Label())
	}
	if p.BindGroup() != nil || p.VertexBuffer() != nil || p.IndexCount() != 0 {
		t.Fatal("new provider should hold no resources")
	}
}

func TestReleaseEmptyProvider(t *testing.T) {
	p := NewBindGroupProvider("empty")
	p.SetIndexCount(6)
	p.SetTextureView(1, nil)
	p.Release()
	p.Release()
	if p.IndexCount() != 0 {
		t.Fatalf("IndexCount() = %d after Release", p.IndexCount())
	}
	if p.TextureView(1) != nil {
		t.Fatal("texture view survived Release")
	}
}

func TestWriteBuffersMissingBinding(t *testing.T) {
	p := NewBindGroupProvider("uniforms")
	err := WriteBuffers(nil, BufferWrite{Provider: p, Binding: 3, Data: []byte{1}})
	if err == nil || !strings.Contains(err.Error(), "binding 3") {
		t.Fatalf("WriteBuffers() = %v, want missing binding error", err)
	}
}
