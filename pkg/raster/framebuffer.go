package raster

// Color is a BGRA8 pixel, matching the byte order the back-end writes and
// the order Blit emits.
type Color struct {
	B, G, R, A uint8
}

// FrameBuffer is a tile-array color+depth target. Tiles are
// cfg.BinWidth x cfg.BinHeight pixels of interleaved BGRA8 color and f32
// depth; the screen address (x, y) maps to tile (x>>log2 binW, y>>log2
// binH), intra-tile row-major. FrameBuffer is externally owned: a
// RenderContext only writes to it during EndFrame's raster tasks.
type FrameBuffer struct {
	Width, Height int
	BinWidth      int
	BinHeight     int
	TilesX, TilesY int

	ColorTiles [][]Color
	DepthTiles [][]float32
}

// NewFrameBuffer allocates a frame buffer of width x height pixels, tiled
// per cfg.BinWidth/BinHeight.
func NewFrameBuffer(cfg Config, width, height int) *FrameBuffer {
	tilesX := (width + cfg.BinWidth - 1) / cfg.BinWidth
	tilesY := (height + cfg.BinHeight - 1) / cfg.BinHeight

	fb := &FrameBuffer{
		Width:     width,
		Height:    height,
		BinWidth:  cfg.BinWidth,
		BinHeight: cfg.BinHeight,
		TilesX:    tilesX,
		TilesY:    tilesY,
	}

	numTiles := tilesX * tilesY
	fb.ColorTiles = make([][]Color, numTiles)
	fb.DepthTiles = make([][]float32, numTiles)
	tilePixels := cfg.BinWidth * cfg.BinHeight
	for i := 0; i < numTiles; i++ {
		fb.ColorTiles[i] = make([]Color, tilePixels)
		fb.DepthTiles[i] = make([]float32, tilePixels)
	}
	return fb
}

// tileIndex returns the linear tile index for tile coordinates (tx, ty).
func (fb *FrameBuffer) tileIndex(tx, ty int) int {
	return ty*fb.TilesX + tx
}

// Clear fills every pixel with clearColor and every depth sample with
// clearDepth.
func (fb *FrameBuffer) Clear(clearColor Color, clearDepth float32) {
	for i := range fb.ColorTiles {
		ct := fb.ColorTiles[i]
		for j := range ct {
			ct[j] = clearColor
		}
		dt := fb.DepthTiles[i]
		for j := range dt {
			dt[j] = clearDepth
		}
	}
}

// Blit copies the framebuffer's color into dest as row-major BGRA8, a
// width*height*4 byte buffer the caller owns.
func (fb *FrameBuffer) Blit(dest []byte) error {
	if len(dest) < fb.Width*fb.Height*4 {
		return &ConfigError{Op: "FrameBuffer.Blit", Reason: "destination buffer too small"}
	}
	for ty := 0; ty < fb.TilesY; ty++ {
		for tx := 0; tx < fb.TilesX; tx++ {
			tile := fb.ColorTiles[fb.tileIndex(tx, ty)]
			baseY := ty * fb.BinHeight
			baseX := tx * fb.BinWidth
			rowsInTile := fb.BinHeight
			if baseY+rowsInTile > fb.Height {
				rowsInTile = fb.Height - baseY
			}
			colsInTile := fb.BinWidth
			if baseX+colsInTile > fb.Width {
				colsInTile = fb.Width - baseX
			}
			for row := 0; row < rowsInTile; row++ {
				srcRow := tile[row*fb.BinWidth : row*fb.BinWidth+colsInTile]
				destOff := ((baseY+row)*fb.Width + baseX) * 4
				for col, c := range srcRow {
					o := destOff + col*4
					dest[o+0] = c.B
					dest[o+1] = c.G
					dest[o+2] = c.R
					dest[o+3] = c.A
				}
			}
		}
	}
	return nil
}

// BlitDepth copies the framebuffer's depth into dest as row-major 8-bit
// grayscale, scaling [0,1] depth to [0,255], a width*height byte buffer
// the caller owns.
func (fb *FrameBuffer) BlitDepth(dest []byte) error {
	if len(dest) < fb.Width*fb.Height {
		return &ConfigError{Op: "FrameBuffer.BlitDepth", Reason: "destination buffer too small"}
	}
	for ty := 0; ty < fb.TilesY; ty++ {
		for tx := 0; tx < fb.TilesX; tx++ {
			tile := fb.DepthTiles[fb.tileIndex(tx, ty)]
			baseY := ty * fb.BinHeight
			baseX := tx * fb.BinWidth
			rowsInTile := fb.BinHeight
			if baseY+rowsInTile > fb.Height {
				rowsInTile = fb.Height - baseY
			}
			colsInTile := fb.BinWidth
			if baseX+colsInTile > fb.Width {
				colsInTile = fb.Width - baseX
			}
			for row := 0; row < rowsInTile; row++ {
				srcRow := tile[row*fb.BinWidth : row*fb.BinWidth+colsInTile]
				destOff := (baseY+row)*fb.Width + baseX
				for col, d := range srcRow {
					v := d * 255
					if v < 0 {
						v = 0
					} else if v > 255 {
						v = 255
					}
					dest[destOff+col] = uint8(v)
				}
			}
		}
	}
	return nil
}
