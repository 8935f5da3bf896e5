package raster

import "sync/atomic"

// RenderContext owns the task system, per-thread scratch arenas, and bin
// storage for one frame at a time. It is the entry point the rest of the
// engine drives: BeginFrame, any number of DrawIndexed calls, EndFrame,
// and eventually Shutdown.
//
// frame is a non-owning, frame-scoped reference set fresh by every
// BeginFrame: RenderContext never keeps ambient state about "the current
// frame" beyond what BeginFrame/EndFrame bracket, so nothing here is
// valid to read between a Shutdown and the next BeginFrame.
type RenderContext struct {
	cfg   Config
	tasks *TaskSystem

	arenas []*arena
	bins   *BinContext
	frame  *FrameBuffer

	drawCalls []*DrawCall

	frontCounter int64
	backCounter  int64
}

// NewRenderContext validates cfg, starts the task system, and allocates
// one scratch arena per thread (including the submitter). The returned
// context has no bin storage yet; BeginFrame sizes it from the first
// FrameBuffer it's given.
func NewRenderContext(cfg Config) (*RenderContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tasks := NewTaskSystem(cfg.NumWorkers)
	tasks.Start()

	rc := &RenderContext{cfg: cfg, tasks: tasks}
	rc.arenas = make([]*arena, tasks.NumThreads())
	for i := range rc.arenas {
		rc.arenas[i] = newArena(cfg, cfg.MaxThreadBinChunks)
	}
	return rc, nil
}

// Shutdown stops the task system's worker goroutines. The context must
// not be used afterward.
func (rc *RenderContext) Shutdown() {
	rc.tasks.Shutdown()
}

// resize (re)allocates bin storage if the tile grid implied by fb differs
// from what's currently allocated. Bin-grid sizing always derives from
// the frame's own dimensions, never a hardcoded constant.
func (rc *RenderContext) resize(fb *FrameBuffer) {
	if rc.bins != nil && rc.bins.TilesX == fb.TilesX && rc.bins.TilesY == fb.TilesY && rc.bins.NumThreads == rc.tasks.NumThreads() {
		return
	}
	rc.bins = NewBinContext(rc.tasks.NumThreads(), fb.TilesX, fb.TilesY)
	Logger().Debug("bin context resized", "tilesX", fb.TilesX, "tilesY", fb.TilesY)
}

// BeginFrame binds fb as this frame's render target, resizing bin storage
// if needed and resetting every scratch arena and bin for a clean frame.
func (rc *RenderContext) BeginFrame(fb *FrameBuffer) error {
	if fb == nil {
		return &ConfigError{Op: "RenderContext.BeginFrame", Reason: "frame buffer is nil"}
	}
	rc.frame = fb
	rc.resize(fb)
	rc.bins.reset()
	for _, a := range rc.arenas {
		a.reset()
	}
	rc.drawCalls = rc.drawCalls[:0]
	atomic.StoreInt64(&rc.frontCounter, 0)
	atomic.StoreInt64(&rc.backCounter, 0)
	return nil
}

// ClearFrameBuffer clears the bound frame buffer's color and depth. It is
// a thin convenience wrapper; callers may instead call FrameBuffer.Clear
// directly before BeginFrame.
func (rc *RenderContext) ClearFrameBuffer(clearColor Color, clearDepth float32) error {
	if rc.frame == nil {
		return &ConfigError{Op: "RenderContext.ClearFrameBuffer", Reason: "no frame bound, call BeginFrame first"}
	}
	rc.frame.Clear(clearColor, clearDepth)
	return nil
}

// frontEndGranularity bounds how many triangles one front-end packet
// covers, balancing per-packet overhead against letting idle workers pick
// up the tail of a large draw call.
const frontEndGranularity = 64

// DrawIndexed validates dc, copies the draw record, and schedules its
// front-end work (vertex shading, clipping, binning) onto the task
// system. The copy means a caller is free to mutate or reuse dc (e.g. a
// builder) immediately after this call returns; it does not block, and
// the scheduled work runs concurrently with subsequent DrawIndexed
// calls, only guaranteed complete once EndFrame's front-end barrier
// passes.
func (rc *RenderContext) DrawIndexed(dc *DrawCall) error {
	if rc.frame == nil {
		return &ConfigError{Op: "RenderContext.DrawIndexed", Reason: "no frame bound, call BeginFrame first"}
	}
	if err := dc.validate(rc.cfg); err != nil {
		return err
	}

	cp := *dc
	drawCallIdx := len(rc.drawCalls)
	cp.drawCallIdx = drawCallIdx
	rc.drawCalls = append(rc.drawCalls, &cp)

	numTris := len(cp.Indices) / 3
	rc.tasks.Push(rc.newFrontEndTask(&cp, drawCallIdx), numTris, frontEndGranularity, &rc.frontCounter)
	return nil
}

// EndFrame waits for every outstanding front-end packet, then schedules
// exactly one back-end task per tile that received at least one
// triangle, and waits for those. Any panic raised by a task — including
// an arena, bin, or task-queue overflow — propagates out of EndFrame on
// this goroutine rather than being swallowed.
func (rc *RenderContext) EndFrame() error {
	if rc.frame == nil {
		return &ConfigError{Op: "RenderContext.EndFrame", Reason: "no frame bound, call BeginFrame first"}
	}

	rc.tasks.WaitForCounter(&rc.frontCounter)

	for ty := 0; ty < rc.bins.TilesY; ty++ {
		for tx := 0; tx < rc.bins.TilesX; tx++ {
			if !rc.bins.hasTriangles(tx, ty) {
				continue
			}
			rc.tasks.Push(rc.newBackEndTask(tx, ty, rc.drawCalls), 1, 1, &rc.backCounter)
		}
	}
	rc.tasks.WaitForCounter(&rc.backCounter)

	rc.frame = nil
	return nil
}
