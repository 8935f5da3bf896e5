package models

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/taigrr/tilecaster/pkg/math3d"
)

// LoadOBJ loads a Wavefront OBJ file into a Mesh. Only vertex positions,
// normals, texture coordinates, and triangulated (or fan-triangulated)
// polygon faces are read; materials, groups, and smoothing groups are
// ignored.
func LoadOBJ(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open obj: %w", err)
	}
	defer f.Close()

	var positions []math3d.Vec3
	var normals []math3d.Vec3
	var uvs []math3d.Vec2

	mesh := NewMesh(filepath.Base(path))
	seen := make(map[objIndex]int)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "v":
			v, err := parseVec3(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("obj:%d: vertex: %w", lineNum, err)
			}
			positions = append(positions, v)
		case "vn":
			n, err := parseVec3(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("obj:%d: normal: %w", lineNum, err)
			}
			normals = append(normals, n)
		case "vt":
			uv, err := parseVec2(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("obj:%d: texcoord: %w", lineNum, err)
			}
			uvs = append(uvs, uv)
		case "f":
			idxs := make([]int, len(fields)-1)
			for i, tok := range fields[1:] {
				vi, err := resolveVertex(tok, positions, normals, uvs, seen, mesh)
				if err != nil {
					return nil, fmt.Errorf("obj:%d: face: %w", lineNum, err)
				}
				idxs[i] = vi
			}
			// Fan-triangulate polygons with more than 3 vertices.
			for i := 1; i+1 < len(idxs); i++ {
				mesh.Faces = append(mesh.Faces, Face{V: [3]int{idxs[0], idxs[i], idxs[i+1]}, Material: -1})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read obj: %w", err)
	}

	hasNormals := false
	for _, v := range mesh.Vertices {
		if v.Normal.Len() > 0.001 {
			hasNormals = true
			break
		}
	}
	if !hasNormals {
		mesh.CalculateSmoothNormals()
	}

	mesh.CalculateBounds()
	return mesh, nil
}

// objIndex identifies one OBJ face-vertex triple (position/uv/normal),
// each distinct triple becoming one vertex in the output mesh since OBJ
// allows attributes to be shared across unrelated faces.
type objIndex struct {
	pos, uv, normal int
}

func resolveVertex(tok string, positions, normals []math3d.Vec3, uvs []math3d.Vec2, seen map[objIndex]int, mesh *Mesh) (int, error) {
	parts := strings.Split(tok, "/")
	pi, err := parseOBJIndex(parts[0], len(positions))
	if err != nil {
		return 0, fmt.Errorf("position index: %w", err)
	}

	key := objIndex{pos: pi, uv: -1, normal: -1}
	if len(parts) > 1 && parts[1] != "" {
		ti, err := parseOBJIndex(parts[1], len(uvs))
		if err != nil {
			return 0, fmt.Errorf("texcoord index: %w", err)
		}
		key.uv = ti
	}
	if len(parts) > 2 && parts[2] != "" {
		ni, err := parseOBJIndex(parts[2], len(normals))
		if err != nil {
			return 0, fmt.Errorf("normal index: %w", err)
		}
		key.normal = ni
	}

	if vi, ok := seen[key]; ok {
		return vi, nil
	}

	v := MeshVertex{Position: positions[key.pos]}
	if key.uv >= 0 {
		v.UV = uvs[key.uv]
	}
	if key.normal >= 0 {
		v.Normal = normals[key.normal]
	}
	mesh.Vertices = append(mesh.Vertices, v)
	vi := len(mesh.Vertices) - 1
	seen[key] = vi
	return vi, nil
}

// parseOBJIndex parses a 1-based OBJ index, supporting the negative
// (relative-to-end) form, and returns a 0-based index.
func parseOBJIndex(s string, count int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = count + n
	} else {
		n--
	}
	if n < 0 || n >= count {
		return 0, fmt.Errorf("index %s out of range (have %d)", s, count)
	}
	return n, nil
}

func parseVec3(fields []string) (math3d.Vec3, error) {
	if len(fields) < 3 {
		return math3d.Vec3{}, fmt.Errorf("expected 3 components, got %d", len(fields))
	}
	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return math3d.Vec3{}, err
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return math3d.Vec3{}, err
	}
	z, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return math3d.Vec3{}, err
	}
	return math3d.V3(x, y, z), nil
}

func parseVec2(fields []string) (math3d.Vec2, error) {
	if len(fields) < 2 {
		return math3d.Vec2{}, fmt.Errorf("expected 2 components, got %d", len(fields))
	}
	u, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return math3d.Vec2{}, err
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return math3d.Vec2{}, err
	}
	// OBJ's V=0 is the bottom of the image; flip to match GLTF/top-left
	// convention used elsewhere in this package.
	return math3d.V2(u, 1.0-v), nil
}
