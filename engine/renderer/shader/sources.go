package shader

import _ "embed"

//go:embed assets/mesh.wgsl
var meshSource string

//go:embed assets/fullscreen.wgsl
var fullscreenSource string

// Keys of the built-in shaders.
const (
	KeyMeshVertex        = "mesh_vertex"
	KeyMeshFragment      = "mesh_fragment"
	KeyFullscreenVertex  = "fullscreen_vertex"
	KeyExtractFragment   = "bloom_extract_fragment"
	KeyBlurFragment      = "bloom_blur_fragment"
	KeyCompositeFragment = "bloom_composite_fragment"
)

// MeshVertex returns the vertex stage used for every node draw.
func MeshVertex() Shader {
	return NewShader(KeyMeshVertex, ShaderTypeVertex, meshSource, "vs_main")
}

// MeshFragment returns the fragment stage used for every node draw.
func MeshFragment() Shader {
	return NewShader(KeyMeshFragment, ShaderTypeFragment, meshSource, "fs_main")
}

// FullscreenVertex returns the vertex stage shared by all post passes.
func FullscreenVertex() Shader {
	return NewShader(KeyFullscreenVertex, ShaderTypeVertex, fullscreenSource, "vs_fullscreen")
}

// ExtractFragment returns the bright-pass fragment stage.
func ExtractFragment() Shader {
	return NewShader(KeyExtractFragment, ShaderTypeFragment, fullscreenSource, "fs_extract")
}

// BlurFragment returns the one-dimensional Gaussian blur fragment stage.
func BlurFragment() Shader {
	return NewShader(KeyBlurFragment, ShaderTypeFragment, fullscreenSource, "fs_blur")
}

// CompositeFragment returns the additive bloom composite fragment stage.
func CompositeFragment() Shader {
	return NewShader(KeyCompositeFragment, ShaderTypeFragment, fullscreenSource, "fs_composite")
}

// All returns every built-in shader stage.
func All() []Shader {
	return []Shader{
		MeshVertex(),
		MeshFragment(),
		FullscreenVertex(),
		ExtractFragment(),
		BlurFragment(),
		CompositeFragment(),
	}
}
