// Package terrain parses a land mesh: an NRes archive holding vertex
// positions, optional UVs, and triangular face records.
package terrain

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ernie/parkan-core/nres"
)

// TerrainUVScale divides raw i16 UV components into the 0..1 texture
// coordinate range the rest of the pipeline expects.
const TerrainUVScale = 1024.0

const (
	kindPositions = 3
	kindUV        = 5
	kindFaces     = 21

	positionStride = 12
	uvStride       = 4
	faceStride     = 28
)

// Face is one triangle of the land mesh.
type Face struct {
	Indices     [3]uint16
	Flags       uint32
	MaterialTag uint16
	AuxTag      uint16
}

// Mesh is a parsed land mesh: vertex attributes plus faces that
// already reference only in-range vertices.
type Mesh struct {
	Positions [][3]float32
	UV0       [][2]float32
	Faces     []Face
}

// RenderVertex is one vertex ready for a render-mesh vertex buffer.
type RenderVertex struct {
	Position [3]float32
	UV0      [2]float32
}

// RenderMesh is a Mesh flattened into vertex/index buffers, along
// with face-count fields. Faces dropped by Parse are not counted in
// them (see BuildRenderMesh).
type RenderMesh struct {
	Vertices                []RenderVertex
	Indices                 []uint16
	FaceCountRaw            int
	FaceCountKept           int
	FaceCountDroppedInvalid int
}

// Parse reads a land mesh's NRes payload (typically the whole file).
func Parse(data []byte) (*Mesh, error) {
	archive, err := nres.Open(data, nres.OpenOptions{})
	if err != nil {
		return nil, fmt.Errorf("terrain: %w", err)
	}

	positionsID, ok := findByKind(archive, kindPositions)
	if !ok {
		return nil, fmt.Errorf("terrain: missing required chunk type=3 (positions)")
	}
	facesID, ok := findByKind(archive, kindFaces)
	if !ok {
		return nil, fmt.Errorf("terrain: missing required chunk type=21 (faces)")
	}
	uvID, hasUV := findByKind(archive, kindUV)

	positionsPayload, err := archive.Read(positionsID)
	if err != nil {
		return nil, fmt.Errorf("terrain: read positions: %w", err)
	}
	if len(positionsPayload)%positionStride != 0 {
		return nil, fmt.Errorf("terrain: invalid chunk size for type=3 (positions): %d (must be divisible by %d)", len(positionsPayload), positionStride)
	}

	positions := make([][3]float32, 0, len(positionsPayload)/positionStride)
	for off := 0; off+positionStride <= len(positionsPayload); off += positionStride {
		positions = append(positions, [3]float32{
			readF32(positionsPayload, off),
			readF32(positionsPayload, off+4),
			readF32(positionsPayload, off+8),
		})
	}

	uv0 := make([][2]float32, len(positions))
	if hasUV {
		uvPayload, err := archive.Read(uvID)
		if err != nil {
			return nil, fmt.Errorf("terrain: read uv: %w", err)
		}
		if len(uvPayload)%uvStride != 0 {
			return nil, fmt.Errorf("terrain: invalid chunk size for type=5 (uv): %d (must be divisible by %d)", len(uvPayload), uvStride)
		}
		uvCount := len(uvPayload) / uvStride
		n := uvCount
		if n > len(uv0) {
			n = len(uv0)
		}
		for idx := 0; idx < n; idx++ {
			off := idx * uvStride
			u := int16(binary.LittleEndian.Uint16(uvPayload[off : off+2]))
			v := int16(binary.LittleEndian.Uint16(uvPayload[off+2 : off+4]))
			uv0[idx] = [2]float32{float32(u) / TerrainUVScale, float32(v) / TerrainUVScale}
		}
	}

	facePayload, err := archive.Read(facesID)
	if err != nil {
		return nil, fmt.Errorf("terrain: read faces: %w", err)
	}
	if len(facePayload)%faceStride != 0 {
		return nil, fmt.Errorf("terrain: invalid chunk size for type=21 (faces): %d (must be divisible by %d)", len(facePayload), faceStride)
	}

	faces := make([]Face, 0, len(facePayload)/faceStride)
	for off := 0; off+faceStride <= len(facePayload); off += faceStride {
		flags := binary.LittleEndian.Uint32(facePayload[off : off+4])
		materialTag := binary.LittleEndian.Uint16(facePayload[off+4 : off+6])
		auxTag := binary.LittleEndian.Uint16(facePayload[off+6 : off+8])
		i0 := binary.LittleEndian.Uint16(facePayload[off+8 : off+10])
		i1 := binary.LittleEndian.Uint16(facePayload[off+10 : off+12])
		i2 := binary.LittleEndian.Uint16(facePayload[off+12 : off+14])
		if int(i0) >= len(positions) || int(i1) >= len(positions) || int(i2) >= len(positions) {
			continue
		}
		faces = append(faces, Face{
			Indices:     [3]uint16{i0, i1, i2},
			Flags:       flags,
			MaterialTag: materialTag,
			AuxTag:      auxTag,
		})
	}

	return &Mesh{Positions: positions, UV0: uv0, Faces: faces}, nil
}

// BuildRenderMesh flattens a Mesh into vertex/index buffers. Face
// drops happen during Parse, so FaceCountKept always equals
// FaceCountRaw here and FaceCountDroppedInvalid is always zero — the
// fields exist so callers can compare a Mesh's face count against the
// payload's declared record count themselves if they want that detail.
func BuildRenderMesh(mesh *Mesh) (*RenderMesh, error) {
	if len(mesh.Positions) > 1<<16 {
		return nil, fmt.Errorf("terrain: vertex count %d exceeds u16 range", len(mesh.Positions))
	}

	vertices := make([]RenderVertex, len(mesh.Positions))
	for i, pos := range mesh.Positions {
		uv := [2]float32{0, 0}
		if i < len(mesh.UV0) {
			uv = mesh.UV0[i]
		}
		vertices[i] = RenderVertex{Position: pos, UV0: uv}
	}

	indices := make([]uint16, 0, len(mesh.Faces)*3)
	for _, face := range mesh.Faces {
		indices = append(indices, face.Indices[:]...)
	}

	return &RenderMesh{
		Vertices:                vertices,
		Indices:                 indices,
		FaceCountRaw:            len(mesh.Faces),
		FaceCountKept:           len(mesh.Faces),
		FaceCountDroppedInvalid: 0,
	}, nil
}

func findByKind(archive *nres.Archive, kind uint32) (nres.EntryID, bool) {
	for _, e := range archive.Entries() {
		if e.Meta.Kind == kind {
			return e.ID, true
		}
	}
	return 0, false
}

func readF32(data []byte, offset int) float32 {
	bits := binary.LittleEndian.Uint32(data[offset : offset+4])
	return math.Float32frombits(bits)
}
