// trophy - Terminal 3D Model Viewer
// View OBJ and GLB files in your terminal with full 3D rendering.
//
// Controls:
//
//	Mouse drag  - Rotate model (yaw/pitch)
//	Scroll      - Zoom in/out
//	W/S         - Pitch up/down
//	A/D         - Yaw left/right
//	Q/E         - Roll left/right (Q rolls left, E rolls right)
//	Space       - Apply random impulse
//	R           - Reset rotation
//	T           - Toggle texture on/off
//	X           - Toggle wireframe mode (x-ray)
//	L           - Light positioning mode (move mouse, click to set, Esc to cancel)
//	?           - Toggle HUD overlay (FPS, filename, poly count, mode status)
//	+/-         - Adjust zoom
//	Esc         - Quit (or cancel light mode)
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/harmonica"
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/taigrr/tilecaster/pkg/math3d"
	"github.com/taigrr/tilecaster/pkg/models"
	"github.com/taigrr/tilecaster/pkg/raster"
	"github.com/taigrr/tilecaster/pkg/render"
)

var (
	texturePath = flag.String("texture", "", "Path to texture image (PNG/JPG)")
	targetFPS   = flag.Int("fps", 60, "Target FPS")
	bgColor     = flag.String("bg", "30,30,40", "Background color (R,G,B)")
	workers     = flag.Int("workers", 0, "Rasterizer worker count (0 = GOMAXPROCS-1)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "trophy - Terminal 3D Model Viewer\n\n")
		fmt.Fprintf(os.Stderr, "Usage: trophy [options] <model.obj|model.glb>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nControls:\n")
		fmt.Fprintf(os.Stderr, "  Mouse drag  - Rotate model\n")
		fmt.Fprintf(os.Stderr, "  Scroll      - Zoom in/out\n")
		fmt.Fprintf(os.Stderr, "  W/S/A/D     - Pitch and yaw\n")
		fmt.Fprintf(os.Stderr, "  Q/E         - Roll left/right\n")
		fmt.Fprintf(os.Stderr, "  Space       - Random spin\n")
		fmt.Fprintf(os.Stderr, "  R           - Reset view\n")
		fmt.Fprintf(os.Stderr, "  T           - Toggle texture\n")
		fmt.Fprintf(os.Stderr, "  X           - Toggle wireframe\n")
		fmt.Fprintf(os.Stderr, "  L           - Position light (mouse to aim, click to set)\n")
		fmt.Fprintf(os.Stderr, "  ?           - Toggle HUD overlay\n")
		fmt.Fprintf(os.Stderr, "  Esc         - Quit\n")
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	modelPath := flag.Arg(0)

	if err := run(modelPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// RotationAxis tracks position and velocity for one rotation axis with spring decay
type RotationAxis struct {
	Position  float64
	Velocity  float64
	velSpring harmonica.Spring
	velAccel  float64 // internal spring velocity (for animating Velocity toward 0)
}

// NewRotationAxis creates an axis with harmonica spring for smooth velocity decay
func NewRotationAxis(fps int) RotationAxis {
	return RotationAxis{
		// Frequency 4.0 = moderate speed, damping 1.0 = critically damped (no overshoot)
		velSpring: harmonica.NewSpring(harmonica.FPS(fps), 4.0, 1.0),
	}
}

// Update applies velocity to position and decays velocity toward 0 using spring
func (a *RotationAxis) Update() {
	// Apply velocity to position
	a.Position += a.Velocity

	// Use spring to animate velocity toward 0 (smooth deceleration)
	a.Velocity, a.velAccel = a.velSpring.Update(a.Velocity, a.velAccel, 0)
}

// RotationState holds rotation with harmonica spring physics
type RotationState struct {
	Pitch, Yaw, Roll RotationAxis
	fps              int
}

func NewRotationState(fps int) *RotationState {
	return &RotationState{
		Pitch: NewRotationAxis(fps),
		Yaw:   NewRotationAxis(fps),
		Roll:  NewRotationAxis(fps),
		fps:   fps,
	}
}

func (r *RotationState) Update() {
	r.Pitch.Update()
	r.Yaw.Update()
	r.Roll.Update()
}

func (r *RotationState) ApplyImpulse(pitch, yaw, roll float64) {
	r.Pitch.Velocity += pitch
	r.Yaw.Velocity += yaw
	r.Roll.Velocity += roll
}

func (r *RotationState) Reset() {
	r.Pitch = NewRotationAxis(r.fps)
	r.Yaw = NewRotationAxis(r.fps)
	r.Roll = NewRotationAxis(r.fps)
}

// RenderMode controls how the mesh is drawn
type RenderMode int

const (
	RenderModeTextured  RenderMode = iota // Textured with Gouraud shading
	RenderModeFlat                        // Flat shading (no texture)
	RenderModeWireframe                   // Wireframe only
)

// ViewState holds all view-related settings (UI state, not library code)
type ViewState struct {
	TextureEnabled bool        // Whether to show textures
	RenderMode     RenderMode  // Current render mode
	LightMode      bool        // Whether in light positioning mode
	LightDir       math3d.Vec3 // Current light direction
	PendingLight   math3d.Vec3 // Light direction while positioning
	ShowHUD        bool        // Whether to show the HUD overlay
}

// NewViewState creates default view state
func NewViewState() *ViewState {
	return &ViewState{
		TextureEnabled: true,
		RenderMode:     RenderModeTextured,
		LightMode:      false,
		LightDir:       math3d.V3(0.5, 1, 0.3).Normalize(),
	}
}

// HUD renders an overlay with model info and controls
type HUD struct {
	filename  string
	polyCount int
	fps       float64
	fpsFrames int
	fpsTime   time.Time
}

// NewHUD creates a new HUD
func NewHUD(filename string, polyCount int) *HUD {
	return &HUD{
		filename:  filename,
		polyCount: polyCount,
		fpsTime:   time.Now(),
	}
}

// UpdateFPS updates the FPS counter (call once per frame)
func (h *HUD) UpdateFPS() {
	h.fpsFrames++
	elapsed := time.Since(h.fpsTime)
	if elapsed >= time.Second {
		h.fps = float64(h.fpsFrames) / elapsed.Seconds()
		h.fpsFrames = 0
		h.fpsTime = time.Now()
	}
}

// Render draws the HUD overlay directly to the terminal
func (h *HUD) Render(width, height int, viewState *ViewState) {
	// ANSI escape codes for positioning and styling
	const (
		reset     = "\x1b[0m"
		bold      = "\x1b[1m"
		dim       = "\x1b[2m"
		bgBlack   = "\x1b[40m"
		fgWhite   = "\x1b[97m"
		fgGreen   = "\x1b[92m"
		fgYellow  = "\x1b[93m"
		fgCyan    = "\x1b[96m"
		clearLine = "\x1b[2K"
	)

	// Helper to position cursor
	moveTo := func(row, col int) string {
		return fmt.Sprintf("\x1b[%d;%dH", row, col)
	}

	// Always clear the HUD rows (so toggling off works)
	fmt.Print(moveTo(1, 1) + clearLine)
	fmt.Print(moveTo(height, 1) + clearLine)

	// Light mode always shows its indicator
	if viewState.LightMode {
		lightMsg := fmt.Sprintf("%s%s%s ◉ LIGHT MODE - Move mouse to position, click to set, Esc to cancel %s",
			bgBlack, bold, fgYellow, reset)
		lightCol := max((width-60)/2, 1)
		fmt.Print(moveTo(height, lightCol) + lightMsg)
		return
	}

	// If HUD is disabled, we're done (lines already cleared)
	if !viewState.ShowHUD {
		return
	}

	// Top left: FPS
	fpsStr := fmt.Sprintf("%s%s%s %.0f FPS %s", moveTo(1, 1), bgBlack, fgGreen, h.fps, reset)
	fmt.Print(fpsStr)

	// Top middle: filename
	titleStr := fmt.Sprintf("%s%s%s %s %s", bold, bgBlack, fgWhite, h.filename, reset)
	titleCol := max((width-len(h.filename)-2)/2, 1)
	fmt.Print(moveTo(1, titleCol) + titleStr)

	// Top right: polygon count
	polyStr := fmt.Sprintf("%s%s%s %d polys %s", bgBlack, fgCyan, bold, h.polyCount, reset)
	polyCol := max(width-12, 1)
	fmt.Print(moveTo(1, polyCol) + polyStr)

	// Bottom: mode checkboxes and hint
	checkTex := "[ ]"
	if viewState.TextureEnabled && viewState.RenderMode != RenderModeWireframe {
		checkTex = "[✓]"
	}
	checkWire := "[ ]"
	if viewState.RenderMode == RenderModeWireframe {
		checkWire = "[✓]"
	}

	// Bottom: Mode checkboxes and hint
	modeStr := fmt.Sprintf("%s%s %s Texture  %s X-Ray (wireframe) %s",
		bgBlack, fgWhite, checkTex, checkWire, reset)
	fmt.Print(moveTo(height, 1) + modeStr)

	// Light hint (right side of bottom)
	hint := fmt.Sprintf("%s%s%s L: position light %s", bgBlack, dim, fgYellow, reset)
	hintCol := max(width-18, 1)
	fmt.Print(moveTo(height, hintCol) + hint)
}

// ScreenToLightDir converts a screen position to a light direction.
// Maps screen coords to a hemisphere above the object.
func (v *ViewState) ScreenToLightDir(screenX, screenY, width, height int) math3d.Vec3 {
	// Normalize to [-1, 1]
	nx := (float64(screenX)/float64(width))*2 - 1
	ny := (float64(screenY)/float64(height))*2 - 1

	// Clamp to unit circle
	lenSq := nx*nx + ny*ny
	if lenSq > 1 {
		len := math.Sqrt(lenSq)
		nx /= len
		ny /= len
		lenSq = 1
	}

	// Z component (hemisphere projection)
	nz := math.Sqrt(1 - lenSq)

	// Return as light direction (pointing toward the object)
	return math3d.V3(nx, -ny, nz).Normalize()
}

// meshBuffers holds the flattened index/position/attribute buffers a
// models.Mesh contributes to raster.DrawCall, built once per loaded mesh
// since only the per-frame rotation (folded into MVP and the normal
// matrix) changes, never vertex data itself.
type meshBuffers struct {
	indices   []uint32
	positions []math3d.Vec3
	// attribs is flattened [vertex][nx,ny,nz,u,v].
	attribs []float32
}

func buildMeshBuffers(mesh *models.Mesh) meshBuffers {
	b := meshBuffers{
		indices:   make([]uint32, 0, len(mesh.Faces)*3),
		positions: make([]math3d.Vec3, mesh.VertexCount()),
		attribs:   make([]float32, mesh.VertexCount()*5),
	}
	for i := 0; i < mesh.VertexCount(); i++ {
		pos, normal, uv := mesh.GetVertex(i)
		b.positions[i] = pos
		off := i * 5
		b.attribs[off+0] = float32(normal.X)
		b.attribs[off+1] = float32(normal.Y)
		b.attribs[off+2] = float32(normal.Z)
		b.attribs[off+3] = float32(uv.X)
		b.attribs[off+4] = float32(uv.Y)
	}
	for i := 0; i < len(mesh.Faces); i++ {
		f := mesh.GetFace(i)
		b.indices = append(b.indices, uint32(f[0]), uint32(f[1]), uint32(f[2]))
	}
	return b
}

// litVSUniforms is the vertex-shader uniform block shared by every draw
// mode: a full clip-space transform plus a separate rotation-only matrix
// for transforming normals, and the light direction to dot them against.
type litVSUniforms struct {
	MVP       math3d.Mat4
	NormalRot math3d.Mat4
	LightDir  math3d.Vec3
}

const ambientFloor = 0.15

// litVertexShader transforms position to clip space and writes either
// (u, v, intensity) — for the textured built-in shader — or just
// (intensity) — for the flat-lit callback shader — depending on how many
// varying slots the draw call asked for.
func litVertexShader(uniforms any, pos math3d.Vec3, attribs []float32, out []float32) math3d.Vec4 {
	u := uniforms.(litVSUniforms)
	clip := u.MVP.MulVec4(math3d.V4FromV3(pos, 1))

	normal := math3d.V3(float64(attribs[0]), float64(attribs[1]), float64(attribs[2]))
	worldNormal := u.NormalRot.MulVec3Dir(normal).Normalize()
	intensity := worldNormal.Dot(u.LightDir)
	if intensity < ambientFloor {
		intensity = ambientFloor
	}

	switch len(out) {
	case 3:
		out[0] = attribs[3]
		out[1] = attribs[4]
		out[2] = float32(intensity)
	case 1:
		out[0] = float32(intensity)
	}
	return clip
}

// litColorUniforms is the pixel-shader uniform block for the flat-lit
// callback shader: a single base color modulated by the interpolated
// per-pixel light intensity.
type litColorUniforms struct {
	Color raster.Color
}

func litColorPixelShader(uniforms any, quad *raster.QuadVaryings, _ raster.Derivatives, _ uint8) [4]raster.Color {
	u := uniforms.(litColorUniforms)
	var out [4]raster.Color
	for lane := 0; lane < 4; lane++ {
		intensity := float32(1)
		if v := quad.Varyings[lane]; len(v) > 0 {
			intensity = v[0]
		}
		out[lane] = raster.Color{
			R: scaleChannel(u.Color.R, intensity),
			G: scaleChannel(u.Color.G, intensity),
			B: scaleChannel(u.Color.B, intensity),
			A: u.Color.A,
		}
	}
	return out
}

func scaleChannel(c uint8, intensity float32) uint8 {
	v := float32(c) * intensity
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// buildDrawCall assembles the single DrawCall the current view state and
// mesh require. Wireframe mode never calls this: it draws overlay lines
// directly instead of going through the tile pipeline.
func buildDrawCall(bufs meshBuffers, mvp, normalRot math3d.Mat4, lightDir math3d.Vec3, mode RenderMode, textureEnabled bool, texture *raster.Texture) *raster.DrawCall {
	dc := raster.NewDrawCall().
		SetIndexBuffer(bufs.indices).
		SetPositionBuffer(bufs.positions).
		SetMVP(mvp)

	uniforms := litVSUniforms{MVP: mvp, NormalRot: normalRot, LightDir: lightDir}

	if mode == RenderModeTextured && textureEnabled {
		dc.SetAttributeBuffer(bufs.attribs, 5, 0).
			SetVertexShader(litVertexShader, uniforms, 3).
			SetBuiltinShader(raster.ShaderTextured, raster.TexturedUniforms{Texture: texture})
		return dc
	}

	dc.SetAttributeBuffer(bufs.attribs, 5, -1).
		SetVertexShader(litVertexShader, uniforms, 1).
		SetPixelShader(litColorPixelShader, litColorUniforms{Color: raster.Color{R: 200, G: 200, B: 200, A: 255}})
	return dc
}

// blitToTerminal copies a raster.FrameBuffer's resolved color into a
// render.Framebuffer's half-block pixel grid via FrameBuffer.Blit's public
// BGRA8 byte contract, the same boundary an external present layer would
// cross.
func blitToTerminal(rfb *raster.FrameBuffer, tfb *render.Framebuffer, scratch *[]byte) error {
	need := rfb.Width * rfb.Height * 4
	if len(*scratch) < need {
		*scratch = make([]byte, need)
	}
	buf := (*scratch)[:need]
	if err := rfb.Blit(buf); err != nil {
		return err
	}
	for i := 0; i < rfb.Width*rfb.Height; i++ {
		o := i * 4
		tfb.Pixels[i] = color.RGBA{R: buf[o+2], G: buf[o+1], B: buf[o+0], A: buf[o+3]}
	}
	return nil
}

// drawWireframeOverlay draws every triangle edge of mesh, transformed by
// transform, as a line in screen space. Shared edges are drawn twice; for
// an x-ray debug overlay that is harmless.
func drawWireframeOverlay(wf *render.Wireframe, mesh *models.Mesh, transform math3d.Mat4, c render.Color) {
	for i := 0; i < mesh.TriangleCount(); i++ {
		face := mesh.GetFace(i)
		p0, _, _ := mesh.GetVertex(face[0])
		p1, _, _ := mesh.GetVertex(face[1])
		p2, _, _ := mesh.GetVertex(face[2])
		p0 = transform.MulVec3(p0)
		p1 = transform.MulVec3(p1)
		p2 = transform.MulVec3(p2)
		wf.DrawLine3D(p0, p1, c)
		wf.DrawLine3D(p1, p2, c)
		wf.DrawLine3D(p2, p0, c)
	}
}

func run(modelPath string) error {
	// Parse background color
	var bgR, bgG, bgB uint8 = 30, 30, 40
	fmt.Sscanf(*bgColor, "%d,%d,%d", &bgR, &bgG, &bgB)

	// Create terminal
	term := uv.DefaultTerminal()

	width, height, err := term.GetSize()
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}

	if err := term.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}

	term.EnterAltScreen()
	term.HideCursor()
	term.Resize(width, height)

	// Enable mouse mode
	fmt.Fprint(os.Stdout, "\x1b[?1003h") // Enable any-event mouse tracking
	fmt.Fprint(os.Stdout, "\x1b[?1006h") // Enable SGR extended mouse mode

	// Create the tile rasterizer and the terminal presentation layer
	cfg := raster.DefaultConfig()
	cfg.NumWorkers = *workers
	rc, err := raster.NewRenderContext(cfg)
	if err != nil {
		return fmt.Errorf("create render context: %w", err)
	}
	defer rc.Shutdown()

	termRenderer := render.NewTerminalRenderer(term, width, height)
	fbWidth, fbHeight := termRenderer.FramebufferSize()
	tfb := render.NewFramebuffer(fbWidth, fbHeight)
	rfb := raster.NewFrameBuffer(cfg, fbWidth, fbHeight)
	var blitScratch []byte

	// Create camera
	camera := render.NewCamera()
	camera.SetAspectRatio(float64(fbWidth) / float64(fbHeight))
	camera.SetFOV(math.Pi / 3)
	camera.SetClipPlanes(0.1, 100)
	camera.SetPosition(math3d.V3(0, 0, 5))
	camera.LookAt(math3d.V3(0, 0, 0))

	wireframe := render.NewWireframe(camera, tfb)

	// Load texture if specified
	var texture *raster.Texture
	if *texturePath != "" {
		texture, err = raster.LoadTexture(*texturePath, raster.WrapRepeat, raster.WrapRepeat)
		if err != nil {
			fmt.Printf("Warning: could not load texture: %v\n", err)
		}
	}

	// Load model
	ext := strings.ToLower(filepath.Ext(modelPath))
	var mesh *models.Mesh

	switch ext {
	case ".glb", ".gltf":
		var embeddedImg image.Image
		mesh, embeddedImg, err = models.LoadGLBWithTexture(modelPath)
		if err != nil {
			return fmt.Errorf("load model: %w", err)
		}
		// Use embedded texture if no explicit texture and one exists
		if texture == nil && embeddedImg != nil {
			texture = raster.NewTextureFromImage(embeddedImg, raster.WrapRepeat, raster.WrapRepeat)
			fmt.Printf("Using embedded texture: %dx%d\n", embeddedImg.Bounds().Dx(), embeddedImg.Bounds().Dy())
		}
	case ".obj":
		mesh, err = models.LoadOBJ(modelPath)
		if err != nil {
			return fmt.Errorf("load model: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format: %s (use .obj or .glb)", ext)
	}

	// Generate fallback texture if none
	if texture == nil {
		texture = raster.NewCheckerTexture(64, 64, 8, raster.Color{R: 200, G: 200, B: 200, A: 255}, raster.Color{R: 100, G: 100, B: 100, A: 255})
	}

	fmt.Printf("Loaded: %s (%d vertices, %d triangles)\n", filepath.Base(modelPath), mesh.VertexCount(), mesh.TriangleCount())

	// Create HUD
	hud := NewHUD(filepath.Base(modelPath), mesh.TriangleCount())

	// Center and scale model
	mesh.CalculateBounds()
	center := mesh.Center()
	size := mesh.Size()
	maxDim := math.Max(size.X, math.Max(size.Y, size.Z))
	if maxDim > 0 {
		scale := 2.0 / maxDim
		transform := math3d.Scale(math3d.V3(scale, scale, scale)).Mul(math3d.Translate(center.Scale(-1)))
		mesh.Transform(transform)
	}

	bufs := buildMeshBuffers(mesh)

	// Initialize rotation and view state
	rotation := NewRotationState(*targetFPS)
	viewState := NewViewState()

	// Context for clean shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	// Input state
	inputTorque := struct{ pitch, yaw, roll float64 }{}
	const torqueStrength = 3.0

	// Mouse state
	var mouseDown bool
	var lastMouseX, lastMouseY int
	cameraZ := 5.0

	// Event handler
	go func() {
		for ev := range term.Events() {
			switch ev := ev.(type) {
			case uv.WindowSizeEvent:
				width, height = ev.Width, ev.Height
				term.Erase()
				term.Resize(width, height)
				termRenderer = render.NewTerminalRenderer(term, width, height)
				fbWidth, fbHeight = termRenderer.FramebufferSize()
				tfb = render.NewFramebuffer(fbWidth, fbHeight)
				rfb = raster.NewFrameBuffer(cfg, fbWidth, fbHeight)
				wireframe = render.NewWireframe(camera, tfb)
				camera.SetAspectRatio(float64(fbWidth) / float64(fbHeight))

			case uv.KeyPressEvent:
				switch {
				case ev.MatchString("escape"):
					if viewState.LightMode {
						// Cancel light positioning mode
						viewState.LightMode = false
					} else {
						cancel()
						return
					}
				case ev.MatchString("ctrl+c"):
					cancel()
					return
				case ev.MatchString("q"):
					inputTorque.roll = -torqueStrength
				case ev.MatchString("r"):
					rotation.Reset()
					cameraZ = 5.0
					camera.SetPosition(math3d.V3(0, 0, cameraZ))
				case ev.MatchString("w", "up"):
					inputTorque.pitch = -torqueStrength
				case ev.MatchString("s", "down"):
					inputTorque.pitch = torqueStrength
				case ev.MatchString("a", "left"):
					inputTorque.yaw = -torqueStrength
				case ev.MatchString("d", "right"):
					inputTorque.yaw = torqueStrength
				case ev.MatchString("e"):
					inputTorque.roll = torqueStrength
				case ev.MatchString("space"):
					rotation.ApplyImpulse(
						(rand.Float64()-0.5)*1.5,
						(rand.Float64()-0.5)*1.5,
						(rand.Float64()-0.5)*1.5,
					)
				case ev.MatchString("+", "="):
					cameraZ = math.Max(1, cameraZ-0.5)
					camera.SetPosition(math3d.V3(0, 0, cameraZ))
				case ev.MatchString("-", "_"):
					cameraZ = math.Min(20, cameraZ+0.5)
					camera.SetPosition(math3d.V3(0, 0, cameraZ))
				case ev.MatchString("t"):
					// Toggle texture
					viewState.TextureEnabled = !viewState.TextureEnabled
				case ev.MatchString("x"):
					// Toggle wireframe mode
					if viewState.RenderMode == RenderModeWireframe {
						viewState.RenderMode = RenderModeTextured
					} else {
						viewState.RenderMode = RenderModeWireframe
					}
				case ev.MatchString("l"):
					// Enter light positioning mode
					viewState.LightMode = true
					viewState.PendingLight = viewState.LightDir
				case ev.MatchString("?"), ev.MatchString("shift+/"):
					// Toggle HUD
					viewState.ShowHUD = !viewState.ShowHUD
				}

			case uv.KeyReleaseEvent:
				switch {
				case ev.MatchString("w"), ev.MatchString("up"), ev.MatchString("s"), ev.MatchString("down"):
					inputTorque.pitch = 0
				case ev.MatchString("a"), ev.MatchString("left"), ev.MatchString("d"), ev.MatchString("right"):
					inputTorque.yaw = 0
				case ev.MatchString("q"), ev.MatchString("e"):
					inputTorque.roll = 0
				}

			case uv.MouseClickEvent:
				if viewState.LightMode {
					// Set light position and exit light mode
					viewState.LightDir = viewState.PendingLight
					viewState.LightMode = false
				} else {
					mouseDown = true
					lastMouseX, lastMouseY = ev.X, ev.Y
				}

			case uv.MouseReleaseEvent:
				if !viewState.LightMode {
					mouseDown = false
				}

			case uv.MouseMotionEvent:
				if viewState.LightMode {
					// Update pending light direction based on mouse position
					viewState.PendingLight = viewState.ScreenToLightDir(ev.X, ev.Y, width, height)
				} else if mouseDown {
					dx := ev.X - lastMouseX
					dy := ev.Y - lastMouseY
					rotation.ApplyImpulse(float64(dy)*0.03, float64(dx)*0.03, 0)
					lastMouseX, lastMouseY = ev.X, ev.Y
				}

			case uv.MouseWheelEvent:
				switch ev.Button {
				case uv.MouseWheelUp:
					cameraZ -= 0.5
					if cameraZ < 1 {
						cameraZ = 1
					}
				case uv.MouseWheelDown:
					cameraZ += 0.5
					if cameraZ > 20 {
						cameraZ = 20
					}
				}
				camera.SetPosition(math3d.V3(0, 0, cameraZ))
			}
		}
	}()

	// Main loop
	targetDuration := time.Second / time.Duration(*targetFPS)
	lastFrame := time.Now()

	cleanup := func() {
		fmt.Fprint(os.Stdout, "\x1b[?1003l")
		fmt.Fprint(os.Stdout, "\x1b[?1006l")
		term.ExitAltScreen()
		term.ShowCursor()
		term.Shutdown(context.Background())
	}

	bgRasterColor := raster.Color{R: bgR, G: bgG, B: bgB, A: 255}

	for {
		select {
		case <-ctx.Done():
			cleanup()
			return nil
		default:
		}

		now := time.Now()
		dt := now.Sub(lastFrame).Seconds()
		lastFrame = now

		if dt > 0.1 {
			dt = 0.1
		}

		// Apply input torque and decay it (key release events unreliable)
		rotation.ApplyImpulse(
			inputTorque.pitch*dt,
			inputTorque.yaw*dt,
			inputTorque.roll*dt,
		)
		inputTorque.pitch *= 0.9
		inputTorque.yaw *= 0.9
		inputTorque.roll *= 0.9

		// Update springs (harmonica handles timing internally)
		rotation.Update()

		// Build transform
		transform := math3d.RotateX(rotation.Pitch.Position).
			Mul(math3d.RotateY(rotation.Yaw.Position)).
			Mul(math3d.RotateZ(rotation.Roll.Position))

		// Choose light direction (pending if in light mode, otherwise current)
		lightDir := viewState.LightDir
		if viewState.LightMode {
			lightDir = viewState.PendingLight
		}

		tfb.Clear(render.RGB(bgR, bgG, bgB))

		if viewState.RenderMode == RenderModeWireframe {
			drawWireframeOverlay(wireframe, mesh, transform, render.RGB(0, 255, 128))
		} else {
			rfb.Clear(bgRasterColor, cfg.DepthMax)
			if err := rc.BeginFrame(rfb); err != nil {
				cleanup()
				return fmt.Errorf("begin frame: %w", err)
			}

			// Coarse-cull the whole model against the camera frustum before
			// paying for vertex shading and binning: a model spun fully out
			// of view submits zero front-end work this frame.
			worldBounds := render.NewAABB(mesh.BoundsMin, mesh.BoundsMax).Transform(transform)
			if camera.GetFrustum().IntersectAABB(worldBounds) {
				mvp := camera.ViewProjectionMatrix().Mul(transform)
				dc := buildDrawCall(bufs, mvp, transform, lightDir, viewState.RenderMode, viewState.TextureEnabled, texture)
				if err := rc.DrawIndexed(dc); err != nil {
					cleanup()
					return fmt.Errorf("draw indexed: %w", err)
				}
			}

			if err := rc.EndFrame(); err != nil {
				cleanup()
				return fmt.Errorf("end frame: %w", err)
			}

			if err := blitToTerminal(rfb, tfb, &blitScratch); err != nil {
				cleanup()
				return fmt.Errorf("blit: %w", err)
			}
		}

		// Display
		termRenderer.Render(tfb)
		if err := termRenderer.Flush(); err != nil {
			cleanup()
			return fmt.Errorf("flush: %w", err)
		}

		// HUD overlay (always update FPS, render clears lines when HUD off)
		hud.UpdateFPS()
		hud.Render(width, height, viewState)

		// Frame timing
		elapsed := time.Since(now)
		if elapsed < targetDuration {
			time.Sleep(targetDuration - elapsed)
		}
	}
}
