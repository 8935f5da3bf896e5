package raster

import "github.com/taigrr/tilecaster/pkg/math3d"

// VertexShaderFunc transforms one vertex. It returns the clip-space
// position and writes up to cfg.MaxVaryings varyings into out (sized by
// the draw call's OutAttributeStride); out is owned by the caller, so a
// vertex shader never allocates.
type VertexShaderFunc func(uniforms any, position math3d.Vec3, attribs []float32, out []float32) math3d.Vec4

// Derivatives holds the screen-space partial derivatives of the
// perspective-corrected (u, v) texture coordinates at a quad, used to
// select a mip level.
type Derivatives struct {
	DuDx, DuDy, DvDx, DvDy float32
}

// QuadVaryings holds one 2x2 quad's interpolated, perspective-corrected
// varyings and depth terms, one lane per pixel in the quad (top-left,
// top-right, bottom-left, bottom-right).
type QuadVaryings struct {
	Varyings [4][]float32
	ZOverW   [4]float32
	RecipW   [4]float32
}

// PixelShaderFunc shades one 2x2 quad at once, masked by the 4-bit
// coverage mask (bit i set means lane i is inside the triangle and passed
// the depth test). Returning a color for a masked-out lane is harmless;
// the back-end only writes covered lanes.
type PixelShaderFunc func(uniforms any, quad *QuadVaryings, deriv Derivatives, mask uint8) [4]Color

// ShaderKind tags which pixel shading path a draw call uses. shadeQuad
// switches on the kind once per shaded 2x2 quad; the built-in kinds are
// direct calls, and only ShaderCallback goes through a function value.
// The kind is not resolved ahead of the quad loop.
type ShaderKind int

const (
	// ShaderCallback dispatches to DrawCall.PixelShader, the escape hatch
	// for shading logic the built-in kinds don't cover.
	ShaderCallback ShaderKind = iota
	// ShaderFlat paints every covered pixel a single uniform color.
	ShaderFlat
	// ShaderGouraud interpolates a per-vertex RGB color (varyings[0:3])
	// with no texture sampling.
	ShaderGouraud
	// ShaderTextured samples TexturedUniforms.Texture at the interpolated,
	// mip-selected (u, v) and modulates it by an interpolated intensity
	// varying (varyings[2]).
	ShaderTextured
)

// FlatUniforms is the uniform block for ShaderFlat.
type FlatUniforms struct {
	Color Color
}

// TexturedUniforms is the uniform block for ShaderTextured.
type TexturedUniforms struct {
	Texture *Texture
}

// shadeQuad dispatches to the shader kind resolved for the draw call,
// returning one color per lane. Only lanes set in mask are required to be
// meaningful.
func shadeQuad(kind ShaderKind, uniforms any, cb PixelShaderFunc, quad *QuadVaryings, deriv Derivatives, mask uint8) [4]Color {
	switch kind {
	case ShaderFlat:
		return shadeFlat(uniforms)
	case ShaderGouraud:
		return shadeGouraud(quad)
	case ShaderTextured:
		return shadeTextured(uniforms, quad, deriv)
	default:
		if cb == nil {
			return [4]Color{}
		}
		return cb(uniforms, quad, deriv, mask)
	}
}

func shadeFlat(uniforms any) [4]Color {
	u, _ := uniforms.(FlatUniforms)
	return [4]Color{u.Color, u.Color, u.Color, u.Color}
}

// shadeGouraud reads three interpolated color varyings per lane, each
// premultiplied by 1/w upstream and already divided back out by the
// back-end before calling the shader (see backend.go's interpolation
// step), so the per-vertex colors are blended through screen-space planes
// rather than barycentrics.
func shadeGouraud(quad *QuadVaryings) [4]Color {
	var out [4]Color
	for lane := 0; lane < 4; lane++ {
		v := quad.Varyings[lane]
		if len(v) < 3 {
			continue
		}
		out[lane] = Color{
			R: clampByte(v[0] * 255),
			G: clampByte(v[1] * 255),
			B: clampByte(v[2] * 255),
			A: 255,
		}
	}
	return out
}

// shadeTextured samples the bound texture at the interpolated UV with
// derivative-selected mip level and modulates it by an interpolated
// intensity varying.
func shadeTextured(uniforms any, quad *QuadVaryings, deriv Derivatives) [4]Color {
	u, _ := uniforms.(TexturedUniforms)
	var out [4]Color
	if u.Texture == nil {
		return out
	}
	for lane := 0; lane < 4; lane++ {
		v := quad.Varyings[lane]
		if len(v) < 2 {
			continue
		}
		texColor := u.Texture.Sample(v[0], v[1], deriv)
		intensity := float32(1)
		if len(v) >= 3 {
			intensity = v[2]
		}
		out[lane] = modulateColor(texColor, intensity)
	}
	return out
}

func clampByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func modulateColor(c Color, intensity float32) Color {
	return Color{
		R: clampByte(float32(c.R) * intensity),
		G: clampByte(float32(c.G) * intensity),
		B: clampByte(float32(c.B) * intensity),
		A: c.A,
	}
}
