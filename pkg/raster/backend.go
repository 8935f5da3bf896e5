package raster

import "sort"

// blockSize is the edge length, in pixels, of the coarse raster block used
// for trivial accept/reject against the binned edge equations.
const blockSize = 8

// quadSize is the edge length, in pixels, of the 2x2 pixel quad the
// pixel shader is invoked on. Lane order within a quad is top-left,
// top-right, bottom-left, bottom-right.
const quadSize = 2

// chunkRef identifies one bin chunk's position in a tile's deterministic
// visitation order: draw call ascending, then thread ascending, then the
// chunk's append order within that thread's bin, so the same set of
// triangles always rasterizes in the same order regardless of which
// worker happened to bin each one.
type chunkRef struct {
	drawCallIdx int
	threadIdx   int
	order       int
	chunk       *BinChunk
}

// newBackEndTask returns the TaskFunc that rasterizes and shades every
// triangle binned into tile (tx, ty), entirely tile-local: the only
// shared state it touches is its own FrameBuffer tile slices, which no
// other back-end task addresses.
func (rc *RenderContext) newBackEndTask(tx, ty int, drawCalls []*DrawCall) TaskFunc {
	return func(threadIdx, start, end int) {
		refs := rc.gatherChunkRefs(tx, ty)
		if len(refs) == 0 {
			return
		}

		fb := rc.frame
		tileIdx := ty*fb.TilesX + tx
		colorTile := fb.ColorTiles[tileIdx]
		depthTile := fb.DepthTiles[tileIdx]
		originX := tx * fb.BinWidth
		originY := ty * fb.BinHeight

		for _, ref := range refs {
			dc := drawCalls[ref.drawCallIdx]
			chunk := ref.chunk
			for t := 0; t < chunk.NumTris; t++ {
				rasterTriangle(rc.cfg, dc, chunk, t, originX, originY, fb.BinWidth, fb.BinHeight, colorTile, depthTile)
			}
		}
	}
}

// gatherChunkRefs collects every thread's chunks for tile (tx, ty) and
// sorts them into the deterministic total visitation order.
func (rc *RenderContext) gatherChunkRefs(tx, ty int) []chunkRef {
	var refs []chunkRef
	for threadIdx := 0; threadIdx < rc.bins.NumThreads; threadIdx++ {
		tb := rc.bins.At(threadIdx, tx, ty)
		for order, chunk := range tb.Chunks {
			refs = append(refs, chunkRef{
				drawCallIdx: tb.DrawCallIdx[order],
				threadIdx:   threadIdx,
				order:       order,
				chunk:       chunk,
			})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.drawCallIdx != b.drawCallIdx {
			return a.drawCallIdx < b.drawCallIdx
		}
		if a.threadIdx != b.threadIdx {
			return a.threadIdx < b.threadIdx
		}
		return a.order < b.order
	})
	return refs
}

// rasterTriangle walks triangle t of chunk over its binned block range,
// trivially accepting or rejecting whole 8x8 blocks against the edge
// equations before falling back to per-quad coverage testing.
func rasterTriangle(cfg Config, dc *DrawCall, chunk *BinChunk, t, tileOriginX, tileOriginY, tileW, tileH int, colorTile []Color, depthTile []float32) {
	edge := chunk.Edge[t]
	recipWPlane := chunk.RecipW[t]
	zOverWPlane := chunk.ZOverW[t]
	attribs := chunk.attribPlanes(t)

	scale := int64(1) << cfg.SubpixelBits

	for by := int(edge.BlockMinY); by <= int(edge.BlockMaxY); by++ {
		for bx := int(edge.BlockMinX); bx <= int(edge.BlockMaxX); bx++ {
			blockOriginX := tileOriginX + bx*blockSize
			blockOriginY := tileOriginY + by*blockSize
			blockW := min(blockSize, tileW-bx*blockSize)
			blockH := min(blockSize, tileH-by*blockSize)
			if blockW <= 0 || blockH <= 0 {
				continue
			}

			accept, reject := blockTrivialTest(edge, scale, blockOriginX, blockOriginY, blockW, blockH)
			if reject {
				continue
			}

			for qy := 0; qy < blockH; qy += quadSize {
				for qx := 0; qx < blockW; qx += quadSize {
					px := blockOriginX + qx
					py := blockOriginY + qy
					rasterQuad(dc, &edge, recipWPlane, zOverWPlane, attribs, scale, px, py, tileOriginX, tileOriginY, tileW, tileH, accept, colorTile, depthTile)
				}
			}
		}
	}
}

// blockTrivialTest evaluates every edge at a block's four pixel-center
// corners and reports whether the block can skip per-pixel coverage
// testing (accept, fully inside) or be skipped entirely (reject, fully
// outside).
func blockTrivialTest(edge EdgeEq, scale int64, originX, originY, w, h int) (accept, reject bool) {
	corners := [4][2]int{
		{originX, originY},
		{originX + w - 1, originY},
		{originX, originY + h - 1},
		{originX + w - 1, originY + h - 1},
	}
	accept = true
	for e := 0; e < 3; e++ {
		minV, maxV := int64(1)<<62, -(int64(1) << 62)
		for _, corner := range corners {
			v := evalEdge(edge, e, scale, corner[0], corner[1])
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
		if maxV < 0 {
			return false, true
		}
		if minV < 0 {
			accept = false
		}
	}
	return accept, false
}

func evalEdge(edge EdgeEq, e int, scale int64, px, py int) int64 {
	x := int64(px)*scale + scale/2
	y := int64(py)*scale + scale/2
	return int64(edge.C[e]) + int64(edge.Dx[e])*x + int64(edge.Dy[e])*y
}

func evalPlane(p PlaneEq, px, py int) float32 {
	return p.C0 + p.Dx*float32(px) + p.Dy*float32(py)
}

// rasterQuad tests coverage and depth for one 2x2 pixel quad, interpolates
// perspective-correct varyings for covered lanes, computes screen-space
// derivatives for mip selection, and dispatches the pixel shader.
func rasterQuad(dc *DrawCall, edge *EdgeEq, recipWPlane, zOverWPlane PlaneEq, attribs []PlaneEq, scale int64, px, py, tileOriginX, tileOriginY, tileW, tileH int, blockAccepted bool, colorTile []Color, depthTile []float32) {
	lanePX := [4]int{px, px + 1, px, px + 1}
	lanePY := [4]int{py, py, py + 1, py + 1}

	var mask uint8
	for lane := 0; lane < 4; lane++ {
		localX := lanePX[lane] - tileOriginX
		localY := lanePY[lane] - tileOriginY
		if localX < 0 || localX >= tileW || localY < 0 || localY >= tileH {
			continue
		}
		inside := blockAccepted
		if !inside {
			inside = true
			for e := 0; e < 3; e++ {
				if evalEdge(*edge, e, scale, lanePX[lane], lanePY[lane]) < 0 {
					inside = false
					break
				}
			}
		}
		if inside {
			mask |= 1 << lane
		}
	}
	if mask == 0 {
		return
	}

	var quad QuadVaryings
	var recipW, zOverW [4]float32
	for lane := 0; lane < 4; lane++ {
		recipW[lane] = evalPlane(recipWPlane, lanePX[lane], lanePY[lane])
		zOverW[lane] = evalPlane(zOverWPlane, lanePX[lane], lanePY[lane])
		quad.RecipW[lane] = recipW[lane]
		quad.ZOverW[lane] = zOverW[lane]

		varyings := make([]float32, len(attribs))
		for k, plane := range attribs {
			premult := evalPlane(plane, lanePX[lane], lanePY[lane])
			if recipW[lane] != 0 {
				varyings[k] = premult / recipW[lane]
			}
		}
		quad.Varyings[lane] = varyings
	}

	if dc.DepthRead || dc.DepthWrite {
		for lane := 0; lane < 4; lane++ {
			if mask&(1<<lane) == 0 {
				continue
			}
			localX := lanePX[lane] - tileOriginX
			localY := lanePY[lane] - tileOriginY
			idx := localY*tileW + localX
			if dc.DepthRead && zOverW[lane] >= depthTile[idx] {
				mask &^= 1 << lane
			}
		}
	}
	if mask == 0 {
		return
	}

	var deriv Derivatives
	if dc.UVOffset >= 0 {
		u0, v0 := quad.Varyings[0][dc.UVOffset], quad.Varyings[0][dc.UVOffset+1]
		u1, v1 := quad.Varyings[1][dc.UVOffset], quad.Varyings[1][dc.UVOffset+1]
		u2, v2 := quad.Varyings[2][dc.UVOffset], quad.Varyings[2][dc.UVOffset+1]
		deriv.DuDx = u1 - u0
		deriv.DvDx = v1 - v0
		deriv.DuDy = u2 - u0
		deriv.DvDy = v2 - v0
	}

	colors := shadeQuad(dc.Kind, dc.PixelUniforms, dc.PixelShader, &quad, deriv, mask)

	for lane := 0; lane < 4; lane++ {
		if mask&(1<<lane) == 0 {
			continue
		}
		localX := lanePX[lane] - tileOriginX
		localY := lanePY[lane] - tileOriginY
		idx := localY*tileW + localX
		if dc.ColorWrite {
			colorTile[idx] = colors[lane]
		}
		if dc.DepthWrite {
			depthTile[idx] = zOverW[lane]
		}
	}
}
