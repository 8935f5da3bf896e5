package raster

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
)

// WrapMode determines how a texture coordinate outside [0,1) is handled.
type WrapMode int

const (
	WrapRepeat WrapMode = iota
	WrapClamp
)

// mipLevel is one level of a texture's box-filtered mip chain, BGRA8.
type mipLevel struct {
	width, height int
	pixels        []Color
}

// Texture is a mipmapped, nearest-filtered sampling source. Mip levels are
// generated once at load time by repeated 2x2 box filtering; the back-end
// selects a level per quad from screen-space derivatives rather than
// filtering across levels, matching the engine's nearest-only sampling
// contract.
type Texture struct {
	WrapU, WrapV WrapMode
	mips         []mipLevel
}

// NewTextureFromImage builds a mipmapped texture from a decoded image,
// converting to BGRA8 and building numMips = floor(log2(max(w,h)))+1
// levels by box-filtering each level down from the one above.
func NewTextureFromImage(img image.Image, wrapU, wrapV WrapMode) *Texture {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	base := mipLevel{width: w, height: h, pixels: make([]Color, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			base.pixels[y*w+x] = Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
		}
	}

	t := &Texture{WrapU: wrapU, WrapV: wrapV, mips: []mipLevel{base}}
	numMips := int(math.Floor(math.Log2(float64(max(w, h))))) + 1
	for level := 1; level < numMips; level++ {
		t.mips = append(t.mips, downsample(t.mips[level-1]))
	}
	return t
}

// LoadTexture decodes an image file and builds a mipmapped texture from
// it, wrapping decode errors the way the engine wraps every I/O failure.
func LoadTexture(path string, wrapU, wrapV WrapMode) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("raster: open texture %q: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("raster: decode texture %q: %w", path, err)
	}
	return NewTextureFromImage(img, wrapU, wrapV), nil
}

// NewCheckerTexture builds a mipmapped procedural checkerboard texture,
// useful as a fallback when no texture file is supplied. width and height
// must be powers of two.
func NewCheckerTexture(width, height, checkSize int, c1, c2 Color) *Texture {
	base := mipLevel{width: width, height: height, pixels: make([]Color, width*height)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := c1
			if ((x/checkSize)+(y/checkSize))%2 != 0 {
				c = c2
			}
			base.pixels[y*width+x] = c
		}
	}

	t := &Texture{WrapU: WrapRepeat, WrapV: WrapRepeat, mips: []mipLevel{base}}
	numMips := int(math.Floor(math.Log2(float64(max(width, height))))) + 1
	for level := 1; level < numMips; level++ {
		t.mips = append(t.mips, downsample(t.mips[level-1]))
	}
	return t
}

func downsample(src mipLevel) mipLevel {
	w := max(1, src.width/2)
	h := max(1, src.height/2)
	dst := mipLevel{width: w, height: h, pixels: make([]Color, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := x*2, y*2
			var r, g, b, a uint32
			n := uint32(0)
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					px, py := min(sx+dx, src.width-1), min(sy+dy, src.height-1)
					c := src.pixels[py*src.width+px]
					r += uint32(c.R)
					g += uint32(c.G)
					b += uint32(c.B)
					a += uint32(c.A)
					n++
				}
			}
			dst.pixels[y*w+x] = Color{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n), A: uint8(a / n)}
		}
	}
	return dst
}

// lodEpsilon floors the squared derivative magnitude before the log2 mip
// selection so a degenerate (zero-derivative) quad resolves to mip 0
// instead of computing log2(0).
const lodEpsilon = 1e-12

// selectMip picks a mip level from the derivative-based LOD formula
// L = clamp(floor(0.5*log2(rho2)), 0, numMips-1), rho2 = max(duMax, dvMax)
// where duMax/dvMax are the squared screen-space derivative magnitudes of
// u and v scaled by the base level's (mip 0's) texel dimensions.
func (t *Texture) selectMip(deriv Derivatives) int {
	w0 := float32(t.mips[0].width)
	h0 := float32(t.mips[0].height)
	duX := deriv.DuDx * w0
	duY := deriv.DuDy * w0
	dvX := deriv.DvDx * h0
	dvY := deriv.DvDy * h0

	rho2 := duX*duX + duY*duY
	if alt := dvX*dvX + dvY*dvY; alt > rho2 {
		rho2 = alt
	}
	if rho2 < lodEpsilon {
		rho2 = lodEpsilon
	}

	lod := int(math.Floor(0.5 * math.Log2(float64(rho2))))
	if lod < 0 {
		lod = 0
	}
	if lod > len(t.mips)-1 {
		lod = len(t.mips) - 1
	}
	return lod
}

// Sample returns the nearest-filtered texel at (u, v), selecting a mip
// level from deriv. Coordinates outside [0,1) are wrapped or clamped per
// WrapU/WrapV.
func (t *Texture) Sample(u, v float32, deriv Derivatives) Color {
	lvl := t.mips[t.selectMip(deriv)]
	uu := wrapCoord(u, t.WrapU)
	vv := wrapCoord(v, t.WrapV)

	x := int(uu * float32(lvl.width))
	y := int(vv * float32(lvl.height))
	if x >= lvl.width {
		x = lvl.width - 1
	}
	if y >= lvl.height {
		y = lvl.height - 1
	}
	return lvl.pixels[y*lvl.width+x]
}

// wrapCoord applies repeat (mirrored around the negative fractional part,
// so -0.25 wraps to 0.75 rather than producing a negative index) or clamp
// addressing to a coordinate.
func wrapCoord(c float32, mode WrapMode) float32 {
	switch mode {
	case WrapClamp:
		if c < 0 {
			return 0
		}
		if c > 1 {
			return 1
		}
		return c
	default: // WrapRepeat
		f := c - float32(math.Floor(float64(c)))
		if f < 0 {
			f += 1
		}
		return f
	}
}
