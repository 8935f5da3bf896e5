package raster

import "github.com/taigrr/tilecaster/pkg/math3d"

// DrawCall is an immutable-after-submission record describing one indexed
// triangle draw. Callers build one with NewDrawCall and the Set* builder
// methods, matching the shape of the DrawCall the front-end reads.
//
// Buffers are typed Go slices rather than raw pointer+byte-stride pairs:
// idiomatic Go favors a typed view over the original engine's void*+stride
// convention, and every collaborator in this repository already produces
// typed math3d/slice data (see pkg/models.Mesh).
type DrawCall struct {
	VertexShader VertexShaderFunc
	VertexUniforms any
	OutAttributeStride int

	PixelShader  PixelShaderFunc
	PixelUniforms any
	Kind          ShaderKind
	Texture       *Texture

	Indices   []uint32
	Positions []math3d.Vec3

	// Attribs is flattened [vertex][attrib]; AttribStride is the number
	// of floats per vertex. These are the vertex shader's per-vertex
	// inputs, so AttribStride is independent of OutAttributeStride.
	Attribs      []float32
	AttribStride int
	UVOffset     int // index into the varying vector where (u, v) begins; -1 if none

	MVP math3d.Mat4

	ColorWrite bool
	DepthWrite bool
	DepthRead  bool

	drawCallIdx int
}

// NewDrawCall returns a DrawCall with the default flags set (color write,
// depth write, depth read all enabled), matching the original engine's
// DrawCall constructor defaults.
func NewDrawCall() *DrawCall {
	return &DrawCall{
		ColorWrite: true,
		DepthWrite: true,
		DepthRead:  true,
		UVOffset:   -1,
		MVP:        math3d.Identity(),
	}
}

// SetVertexShader installs the vertex shader, its uniforms, and the number
// of scalar varyings it emits per vertex.
func (d *DrawCall) SetVertexShader(fn VertexShaderFunc, uniforms any, outStride int) *DrawCall {
	d.VertexShader = fn
	d.VertexUniforms = uniforms
	d.OutAttributeStride = outStride
	return d
}

// SetPixelShader installs a user pixel shader via the callback escape
// hatch (ShaderCallback). Use SetBuiltinShader for the built-in,
// monomorphized shader kinds instead.
func (d *DrawCall) SetPixelShader(fn PixelShaderFunc, uniforms any) *DrawCall {
	d.PixelShader = fn
	d.PixelUniforms = uniforms
	d.Kind = ShaderCallback
	return d
}

// SetBuiltinShader selects one of the engine's built-in pixel shader
// kinds. The back-end switches on the kind once per shaded 2x2 quad.
func (d *DrawCall) SetBuiltinShader(kind ShaderKind, uniforms any) *DrawCall {
	d.Kind = kind
	d.PixelUniforms = uniforms
	return d
}

// SetIndexBuffer installs the triangle index list. count must be a
// multiple of 3.
func (d *DrawCall) SetIndexBuffer(indices []uint32) *DrawCall {
	d.Indices = indices
	return d
}

// SetPositionBuffer installs the model/local-space source positions,
// looked up by index.
func (d *DrawCall) SetPositionBuffer(positions []math3d.Vec3) *DrawCall {
	d.Positions = positions
	return d
}

// SetAttributeBuffer installs the per-vertex attribute source, flattened
// [vertex][attrib] with the given stride, and the offset within the vertex
// shader's output varyings where (u, v) begin (-1 if the draw has no
// texture coordinates).
func (d *DrawCall) SetAttributeBuffer(attribs []float32, stride, uvOffset int) *DrawCall {
	d.Attribs = attribs
	d.AttribStride = stride
	d.UVOffset = uvOffset
	return d
}

// SetFrameBuffer is a no-op placeholder retained for API symmetry with the
// original engine's builder surface: the target FrameBuffer is passed to
// RenderContext.BeginFrame directly rather than stored per draw call, since
// a RenderContext in this implementation renders one FrameBuffer at a
// time (see RenderContext.resize).
func (d *DrawCall) SetFrameBuffer(*FrameBuffer) *DrawCall { return d }

// SetMVP stores the model-view-projection matrix on the draw call. The
// pipeline does not apply it: positions reach the vertex shader
// untransformed, and the vertex shader applies its own transform, usually
// taken from its uniforms.
func (d *DrawCall) SetMVP(mvp math3d.Mat4) *DrawCall {
	d.MVP = mvp
	return d
}

// SetTexture stores tex on the draw call, where validate checks its mip
// count. The built-in ShaderTextured samples TexturedUniforms.Texture, not
// this field.
func (d *DrawCall) SetTexture(tex *Texture) *DrawCall {
	d.Texture = tex
	return d
}

// SetFlags overrides the color-write/depth-write/depth-read flags.
func (d *DrawCall) SetFlags(colorWrite, depthWrite, depthRead bool) *DrawCall {
	d.ColorWrite = colorWrite
	d.DepthWrite = depthWrite
	d.DepthRead = depthRead
	return d
}

// validate checks the precondition-violation error taxonomy (§7a):
// null/malformed index buffers, oversized attribute strides and textures
// with more than MaxTexDimLog2 mip levels are programmer errors surfaced
// as hard failures.
func (d *DrawCall) validate(cfg Config) error {
	if d.Indices == nil {
		return &ConfigError{Op: "DrawCall.validate", Reason: "index buffer is nil"}
	}
	if len(d.Indices)%3 != 0 {
		return &ConfigError{Op: "DrawCall.validate", Reason: "index count must be a multiple of 3"}
	}
	if d.VertexShader == nil {
		return &ConfigError{Op: "DrawCall.validate", Reason: "vertex shader is nil"}
	}
	if d.OutAttributeStride > cfg.MaxVaryings {
		return &ConfigError{Op: "DrawCall.validate", Reason: "vertex shader output stride exceeds MaxVaryings"}
	}
	if d.Kind == ShaderCallback && d.PixelShader == nil {
		return &ConfigError{Op: "DrawCall.validate", Reason: "callback shader kind requires a pixel shader"}
	}
	textures := []*Texture{d.Texture}
	if tu, ok := d.PixelUniforms.(TexturedUniforms); ok {
		textures = append(textures, tu.Texture)
	}
	for _, tex := range textures {
		if tex != nil && len(tex.mips) > cfg.MaxTexDimLog2 {
			return &ConfigError{Op: "DrawCall.validate", Reason: "texture mip count exceeds MaxTexDimLog2"}
		}
	}
	return nil
}
