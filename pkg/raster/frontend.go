package raster

import "github.com/taigrr/tilecaster/pkg/math3d"

// nearClipEpsilon is the clip-space w value treated as the near plane:
// vertices with w <= nearClipEpsilon are behind (or exactly on) the
// camera and must be clipped away before the perspective divide, which
// would otherwise divide by a non-positive w.
const nearClipEpsilon = 1e-5

type clipVert struct {
	clip     math3d.Vec4
	varyings []float32
}

// newFrontEndTask returns the TaskFunc the front-end pushes to the task
// system for one draw call, partitioned over its triangle count. Each
// packet shades, clips, culls, and bins its own triangle range into the
// calling thread's own ThreadBin entries — front-end tasks never touch
// another thread's bins, so no synchronization is needed here.
func (rc *RenderContext) newFrontEndTask(dc *DrawCall, drawCallIdx int) TaskFunc {
	return func(threadIdx, start, end int) {
		cache := make(map[uint32]clipVert, (end-start)*2)
		shade := func(idx uint32) clipVert {
			if v, ok := cache[idx]; ok {
				return v
			}
			pos := dc.Positions[idx]
			var attribs []float32
			if dc.AttribStride > 0 {
				off := int(idx) * dc.AttribStride
				attribs = dc.Attribs[off : off+dc.AttribStride]
			}
			out := make([]float32, dc.OutAttributeStride)
			clip := dc.VertexShader(dc.VertexUniforms, pos, attribs, out)
			v := clipVert{clip: clip, varyings: out}
			cache[idx] = v
			return v
		}

		for triIdx := start; triIdx < end; triIdx++ {
			i0 := dc.Indices[triIdx*3+0]
			i1 := dc.Indices[triIdx*3+1]
			i2 := dc.Indices[triIdx*3+2]
			verts := [3]clipVert{shade(i0), shade(i1), shade(i2)}

			poly := clipNearPlane(verts)
			for i := 1; i+1 < len(poly); i++ {
				rc.binTriangle(dc, drawCallIdx, threadIdx, poly[0], poly[i], poly[i+1])
			}
		}
	}
}

// clipNearPlane clips a triangle against the near plane w = nearClipEpsilon
// using Sutherland-Hodgman, returning a fan-triangulable polygon of 0 (fully
// behind), 3, or 4 vertices (a quad is produced when exactly one original
// vertex is behind the plane).
func clipNearPlane(verts [3]clipVert) []clipVert {
	var out []clipVert
	for i := 0; i < 3; i++ {
		cur := verts[i]
		next := verts[(i+1)%3]
		curIn := cur.clip.W > nearClipEpsilon
		nextIn := next.clip.W > nearClipEpsilon
		if curIn {
			out = append(out, cur)
		}
		if curIn != nextIn {
			t := (nearClipEpsilon - cur.clip.W) / (next.clip.W - cur.clip.W)
			out = append(out, lerpClipVert(cur, next, t))
		}
	}
	return out
}

func lerpClipVert(a, b clipVert, t float64) clipVert {
	varyings := make([]float32, len(a.varyings))
	for i := range varyings {
		varyings[i] = a.varyings[i] + float32(t)*(b.varyings[i]-a.varyings[i])
	}
	return clipVert{clip: a.clip.Lerp(b.clip, t), varyings: varyings}
}

// binTriangle performs the perspective divide and viewport map, backface
// culls, sets up the fixed-point edge equations and screen-space plane
// equations, and appends the triangle into every tile its bounding box
// overlaps.
func (rc *RenderContext) binTriangle(dc *DrawCall, drawCallIdx, threadIdx int, a, b, c clipVert) {
	fb := rc.frame
	sx := [3]float64{}
	sy := [3]float64{}
	recipW := [3]float64{}
	zOverW := [3]float64{}
	vary := [3][]float32{a.varyings, b.varyings, c.varyings}
	clip := [3]math3d.Vec4{a.clip, b.clip, c.clip}

	for i, cv := range clip {
		invW := 1.0 / cv.W
		ndcX := cv.X * invW
		ndcY := cv.Y * invW
		sx[i] = (ndcX*0.5 + 0.5) * float64(fb.Width)
		sy[i] = (1 - (ndcY*0.5 + 0.5)) * float64(fb.Height)
		recipW[i] = invW
		zOverW[i] = cv.Z * invW
	}

	// Backface cull: counter-clockwise in NDC is front-facing (NDC is
	// Y-up). The screen-space Y flip above mirrors every triangle, so a
	// front-facing (CCW-in-NDC) triangle comes out CW in screen space,
	// i.e. area2 negative under this cross-product formula. Cull the
	// triangles that came out CCW in screen space instead (area2 >= 0).
	area2 := (sx[1]-sx[0])*(sy[2]-sy[0]) - (sx[2]-sx[0])*(sy[1]-sy[0])
	if area2 >= 0 {
		return
	}

	// The edge and plane equations below assume a positive-area (CCW in
	// screen space) vertex order so that "inside" evaluates non-negative.
	// Swap the second and third vertex once to undo the mirroring and
	// restore that order without touching the edge/plane math itself.
	sx[1], sx[2] = sx[2], sx[1]
	sy[1], sy[2] = sy[2], sy[1]
	recipW[1], recipW[2] = recipW[2], recipW[1]
	zOverW[1], zOverW[2] = zOverW[2], zOverW[1]
	vary[1], vary[2] = vary[2], vary[1]
	area2 = -area2

	minX, maxX := sx[0], sx[0]
	minY, maxY := sy[0], sy[0]
	for i := 1; i < 3; i++ {
		minX, maxX = min(minX, sx[i]), max(maxX, sx[i])
		minY, maxY = min(minY, sy[i]), max(maxY, sy[i])
	}
	if maxX < 0 || maxY < 0 || minX >= float64(fb.Width) || minY >= float64(fb.Height) {
		return
	}

	cfg := rc.cfg
	edge := makeEdgeEq(cfg, sx, sy)
	recipWPlane := makePlaneEq(sx, sy, recipW, area2)
	zOverWPlane := makePlaneEq(sx, sy, zOverW, area2)

	stride := dc.OutAttributeStride
	attribPlanes := make([]PlaneEq, stride)
	premult := [3]float64{}
	for k := 0; k < stride; k++ {
		for i := 0; i < 3; i++ {
			premult[i] = float64(vary[i][k]) * recipW[i]
		}
		attribPlanes[k] = makePlaneEq(sx, sy, premult, area2)
	}

	tileMinX := max(0, int(minX)/fb.BinWidth)
	tileMaxX := min(fb.TilesX-1, int(maxX)/fb.BinWidth)
	tileMinY := max(0, int(minY)/fb.BinHeight)
	tileMaxY := min(fb.TilesY-1, int(maxY)/fb.BinHeight)

	for ty := tileMinY; ty <= tileMaxY; ty++ {
		for tx := tileMinX; tx <= tileMaxX; tx++ {
			tb := rc.bins.At(threadIdx, tx, ty)
			tileEdge := edge
			tileEdge.BlockMinX, tileEdge.BlockMaxX = blockRange(minX, maxX, tx, fb.BinWidth)
			tileEdge.BlockMinY, tileEdge.BlockMaxY = blockRange(minY, maxY, ty, fb.BinHeight)
			if err := tb.append(rc.arenas[threadIdx], cfg, drawCallIdx, stride, tileEdge, recipWPlane, zOverWPlane, attribPlanes); err != nil {
				panic(err)
			}
		}
	}
}

// blockRange converts a screen-space bounding range into tile-local
// 8x8-block index bounds, clamped to the tile's own block grid and to
// uint8.
func blockRange(lo, hi float64, tileIdx, binExtent int) (uint8, uint8) {
	tileOrigin := float64(tileIdx * binExtent)
	loLocal := lo - tileOrigin
	hiLocal := hi - tileOrigin
	if loLocal < 0 {
		loLocal = 0
	}
	if hiLocal > float64(binExtent-1) {
		hiLocal = float64(binExtent - 1)
	}
	minBlock := int(loLocal) / blockSize
	maxBlock := int(hiLocal) / blockSize
	if minBlock < 0 {
		minBlock = 0
	}
	maxBlocks := (binExtent + blockSize - 1) / blockSize
	if maxBlock >= maxBlocks {
		maxBlock = maxBlocks - 1
	}
	return uint8(minBlock), uint8(maxBlock)
}

// makeEdgeEq builds the three fixed-point edge functions E(x,y) = c + x*dx
// + y*dy for a screen-space triangle, applying the top-left fill-rule bias
// so shared edges between adjacent triangles are rasterized exactly once.
func makeEdgeEq(cfg Config, sx, sy [3]float64) EdgeEq {
	scale := float64(int64(1) << cfg.SubpixelBits)
	fx := [3]int32{}
	fy := [3]int32{}
	for i := 0; i < 3; i++ {
		fx[i] = int32(round(sx[i] * scale))
		fy[i] = int32(round(sy[i] * scale))
	}

	var e EdgeEq
	for i := 0; i < 3; i++ {
		j := (i + 1) % 3
		dx := fy[i] - fy[j]
		dy := fx[j] - fx[i]
		c := -(int64(dx)*int64(fx[i]) + int64(dy)*int64(fy[i]))

		isTop := dx == 0 && dy > 0
		isLeft := dy < 0
		if !isTop && !isLeft {
			c--
		}

		e.Dx[i] = dx
		e.Dy[i] = dy
		e.C[i] = int32(c)
	}
	return e
}

// makePlaneEq fits the screen-space-linear plane P(x,y) = c0 + x*dx + y*dy
// through three (x, y, value) samples.
func makePlaneEq(sx, sy [3]float64, value [3]float64, area2 float64) PlaneEq {
	invArea := 1.0 / area2
	a0, a1, a2 := value[0], value[1], value[2]
	dx := ((a1-a0)*(sy[2]-sy[0]) - (a2-a0)*(sy[1]-sy[0])) * invArea
	dy := ((a2-a0)*(sx[1]-sx[0]) - (a1-a0)*(sx[2]-sx[0])) * invArea
	c0 := a0 - dx*sx[0] - dy*sy[0]
	return PlaneEq{C0: float32(c0), Dx: float32(dx), Dy: float32(dy)}
}

func round(v float64) float64 {
	if v < 0 {
		return -roundHalfUp(-v)
	}
	return roundHalfUp(v)
}

func roundHalfUp(v float64) float64 {
	return float64(int64(v + 0.5))
}
