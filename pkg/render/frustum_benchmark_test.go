package render

import (
	"math"
	"math/rand"
	"testing"

	"github.com/taigrr/tilecaster/pkg/math3d"
	"github.com/taigrr/tilecaster/pkg/raster"
)

// BenchmarkFrustumExtract benchmarks frustum plane extraction from view-projection matrix.
func BenchmarkFrustumExtract(b *testing.B) {
	fov := math.Pi / 3
	aspect := 16.0 / 9.0
	near := 0.1
	far := 100.0

	proj := math3d.Perspective(fov, aspect, near, far)
	view := math3d.Identity()
	viewProj := proj.Mul(view)

	for b.Loop() {
		_ = ExtractFrustum(viewProj)
	}
}

// BenchmarkAABBIntersection benchmarks AABB vs frustum intersection test.
func BenchmarkAABBIntersection(b *testing.B) {
	fov := math.Pi / 3
	aspect := 16.0 / 9.0
	near := 0.1
	far := 100.0

	proj := math3d.Perspective(fov, aspect, near, far)
	view := math3d.Identity()
	viewProj := proj.Mul(view)
	frustum := ExtractFrustum(viewProj)

	// AABB in front of camera (visible)
	visibleBounds := AABB{
		Min: math3d.V3(-1, -1, -15),
		Max: math3d.V3(1, 1, -5),
	}

	b.Run("visible", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = frustum.IntersectsFrustum(visibleBounds)
		}
	})

	// AABB behind camera (culled quickly)
	culledBounds := AABB{
		Min: math3d.V3(-1, -1, 5),
		Max: math3d.V3(1, 1, 15),
	}

	b.Run("culled", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = frustum.IntersectsFrustum(culledBounds)
		}
	})
}

// BenchmarkTransformAABB benchmarks AABB transformation.
func BenchmarkTransformAABB(b *testing.B) {
	local := AABB{
		Min: math3d.V3(-1, -1, -1),
		Max: math3d.V3(1, 1, 1),
	}
	transform := math3d.Translate(math3d.V3(10, 5, -20)).Mul(math3d.RotateY(0.5)).Mul(math3d.ScaleUniform(2))

	for b.Loop() {
		_ = TransformAABB(local, transform)
	}
}

// BenchmarkCullingScenario simulates culling N objects, some visible, some not.
func BenchmarkCullingScenario(b *testing.B) {
	// Setup camera and frustum
	cam := NewCamera()
	cam.SetPosition(math3d.V3(0, 10, 20))
	cam.LookAt(math3d.V3(0, 0, 0))

	viewProj := cam.ViewProjectionMatrix()
	frustum := ExtractFrustum(viewProj)

	// Generate random objects: some in view, some out
	rng := rand.New(rand.NewSource(42))
	objectCount := 100

	type object struct {
		bounds    AABB
		transform math3d.Mat4
	}
	objects := make([]object, objectCount)

	for i := range objectCount {
		// Random position: X, Z in [-50, 50], Y in [0, 10]
		x := rng.Float64()*100 - 50
		y := rng.Float64() * 10
		z := rng.Float64()*100 - 50

		objects[i] = object{
			bounds: AABB{
				Min: math3d.V3(-1, -1, -1),
				Max: math3d.V3(1, 1, 1),
			},
			transform: math3d.Translate(math3d.V3(x, y, z)),
		}
	}

	b.Run("with_culling", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			visible := 0
			for _, obj := range objects {
				worldBounds := TransformAABB(obj.bounds, obj.transform)
				if frustum.IntersectsFrustum(worldBounds) {
					visible++
				}
			}
			_ = visible
		}
	})

	b.Run("no_culling", func(b *testing.B) {
		// Simulate just doing work without culling
		for i := 0; i < b.N; i++ {
			visible := 0
			for range objects {
				// Pretend we "render" everything
				visible++
			}
			_ = visible
		}
	})
}

// BenchmarkMeshRenderingComparison compares submitting draw calls with and
// without frustum culling applied ahead of submission. Culling belongs at
// the submission boundary in this architecture: a RenderContext has no
// knowledge of object bounds, so the caller tests each transform's AABB
// against the extracted frustum before ever calling DrawIndexed, and a
// culled object costs nothing beyond the AABB test.
func BenchmarkMeshRenderingComparison(b *testing.B) {
	cfg := raster.DefaultConfig()
	cfg.NumWorkers = 1
	rc, err := raster.NewRenderContext(cfg)
	if err != nil {
		b.Fatal(err)
	}
	defer rc.Shutdown()

	fb := raster.NewFrameBuffer(cfg, 160, 120)

	cam := NewCamera()
	cam.SetPosition(math3d.V3(0, 10, 20))
	cam.LookAt(math3d.V3(0, 0, 0))
	cam.SetAspectRatio(float64(fb.Width) / float64(fb.Height))

	mesh := &simpleMesh{
		vertices: []meshVertex{
			// Front face
			{pos: math3d.V3(-1, -1, 1), normal: math3d.V3(0, 0, 1)},
			{pos: math3d.V3(1, -1, 1), normal: math3d.V3(0, 0, 1)},
			{pos: math3d.V3(1, 1, 1), normal: math3d.V3(0, 0, 1)},
			{pos: math3d.V3(-1, 1, 1), normal: math3d.V3(0, 0, 1)},
			// Back face
			{pos: math3d.V3(-1, -1, -1), normal: math3d.V3(0, 0, -1)},
			{pos: math3d.V3(1, -1, -1), normal: math3d.V3(0, 0, -1)},
			{pos: math3d.V3(1, 1, -1), normal: math3d.V3(0, 0, -1)},
			{pos: math3d.V3(-1, 1, -1), normal: math3d.V3(0, 0, -1)},
		},
		faces: [][3]int{
			{0, 1, 2}, {0, 2, 3}, // Front
			{4, 6, 5}, {4, 7, 6}, // Back
			{0, 3, 7}, {0, 7, 4}, // Left
			{1, 5, 6}, {1, 6, 2}, // Right
			{3, 2, 6}, {3, 6, 7}, // Top
			{0, 4, 5}, {0, 5, 1}, // Bottom
		},
		bounds: AABB{
			Min: math3d.V3(-1, -1, -1),
			Max: math3d.V3(1, 1, 1),
		},
	}
	positions := meshPositions(mesh)
	indices := meshIndices(mesh)
	color := raster.Color{R: 100, G: 150, B: 200, A: 255}

	// Generate objects: 50% visible, 50% behind camera.
	rng := rand.New(rand.NewSource(42))
	objectCount := 100
	transforms := make([]math3d.Mat4, objectCount)

	for i := range objectCount {
		var z float64
		if i%2 == 0 {
			z = rng.Float64()*30 - 40 // Visible: in front of the camera.
		} else {
			z = rng.Float64()*20 + 25 // Culled: behind the camera.
		}
		x := rng.Float64()*40 - 20
		y := rng.Float64() * 10
		transforms[i] = math3d.Translate(math3d.V3(x, y, z))
	}

	submit := func(transform math3d.Mat4) {
		mvp := cam.ViewProjectionMatrix().Mul(transform)
		dc := raster.NewDrawCall().
			SetIndexBuffer(indices).
			SetPositionBuffer(positions).
			SetVertexShader(mvpVertexShader, mvp, 0).
			SetBuiltinShader(raster.ShaderFlat, raster.FlatUniforms{Color: color}).
			SetMVP(mvp)
		if err := rc.DrawIndexed(dc); err != nil {
			b.Fatal(err)
		}
	}

	b.Run("with_culling", func(b *testing.B) {
		viewProj := cam.ViewProjectionMatrix()
		frustum := ExtractFrustum(viewProj)
		for i := 0; i < b.N; i++ {
			fb.Clear(raster.Color{}, cfg.DepthMax)
			if err := rc.BeginFrame(fb); err != nil {
				b.Fatal(err)
			}
			for _, transform := range transforms {
				bounds := mesh.bounds.Transform(transform)
				if !frustum.IntersectAABB(bounds) {
					continue
				}
				submit(transform)
			}
			if err := rc.EndFrame(); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("without_culling", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			fb.Clear(raster.Color{}, cfg.DepthMax)
			if err := rc.BeginFrame(fb); err != nil {
				b.Fatal(err)
			}
			for _, transform := range transforms {
				submit(transform)
			}
			if err := rc.EndFrame(); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// mvpVertexShader applies uniforms (a math3d.Mat4 MVP) to position and
// writes no varyings; used by benchmarks and tests exercising the
// built-in flat shader, which reads no per-vertex attributes.
func mvpVertexShader(uniforms any, position math3d.Vec3, _ []float32, _ []float32) math3d.Vec4 {
	mvp := uniforms.(math3d.Mat4)
	return mvp.MulVec4(math3d.V4FromV3(position, 1))
}

func meshPositions(m *simpleMesh) []math3d.Vec3 {
	out := make([]math3d.Vec3, len(m.vertices))
	for i, v := range m.vertices {
		out[i] = v.pos
	}
	return out
}

func meshIndices(m *simpleMesh) []uint32 {
	out := make([]uint32, 0, len(m.faces)*3)
	for _, f := range m.faces {
		out = append(out, uint32(f[0]), uint32(f[1]), uint32(f[2]))
	}
	return out
}

// simpleMesh is a minimal in-test mesh used by the culling benchmarks.
type simpleMesh struct {
	vertices []meshVertex
	faces    [][3]int
	bounds   AABB
}

type meshVertex struct {
	pos    math3d.Vec3
	normal math3d.Vec3
	uv     math3d.Vec2
}

func (m *simpleMesh) VertexCount() int   { return len(m.vertices) }
func (m *simpleMesh) TriangleCount() int { return len(m.faces) }

func (m *simpleMesh) GetVertex(i int) (pos, normal math3d.Vec3, uv math3d.Vec2) {
	v := m.vertices[i]
	return v.pos, v.normal, v.uv
}

func (m *simpleMesh) GetFace(i int) [3]int {
	return m.faces[i]
}
