package terrain

import (
	"encoding/binary"
	"math"
	"testing"
)

type rawChunk struct {
	kind uint32
	data []byte
}

// buildNresPayload assembles a minimal valid NRes archive in memory,
// mirroring the on-disk layout the nres package parses.
func buildNresPayload(chunks []rawChunk) []byte {
	out := make([]byte, 16)

	type built struct {
		kind, size, offset uint32
	}
	var builts []built

	for _, c := range chunks {
		offset := uint32(len(out))
		out = append(out, c.data...)
		for len(out)%8 != 0 {
			out = append(out, 0)
		}
		builts = append(builts, built{kind: c.kind, size: uint32(len(c.data)), offset: offset})
	}

	for i, b := range builts {
		putU32 := func(v uint32) { out = append(out, byte(v), byte(v>>8), byte(v>>16), byte(v>>24)) }
		putU32(b.kind)
		putU32(0)
		putU32(0)
		putU32(b.size)
		putU32(0)
		out = append(out, make([]byte, 36)...)
		putU32(b.offset)
		putU32(uint32(i))
	}

	copy(out[0:4], "NRes")
	binary.LittleEndian.PutUint32(out[4:8], 0x100)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(builts)))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(out)))
	return out
}

func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }
func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func lef32(v float32) []byte { return le32(math.Float32bits(v)) }

func TestParseDropsOutOfRangeFaces(t *testing.T) {
	positions := append(append(lef32(0), lef32(0)...), lef32(0)...)
	positions = append(positions, append(append(lef32(1), lef32(1)...), lef32(1)...)...) // 2 positions

	var faces []byte
	// valid face referencing 0,1,0
	faces = append(faces, le32(0)...)  // flags
	faces = append(faces, le16(5)...)  // material tag
	faces = append(faces, le16(9)...)  // aux tag
	faces = append(faces, le16(0)...)
	faces = append(faces, le16(1)...)
	faces = append(faces, le16(0)...)
	faces = append(faces, make([]byte, 14)...) // pad face record to 28 bytes total

	// invalid face referencing out-of-range index 99
	faces = append(faces, le32(0)...)
	faces = append(faces, le16(0)...)
	faces = append(faces, le16(0)...)
	faces = append(faces, le16(0)...)
	faces = append(faces, le16(99)...)
	faces = append(faces, le16(0)...)
	faces = append(faces, make([]byte, 14)...)

	payload := buildNresPayload([]rawChunk{
		{kind: kindPositions, data: positions},
		{kind: kindFaces, data: faces},
	})

	mesh, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(mesh.Positions) != 2 {
		t.Fatalf("Positions = %d, want 2", len(mesh.Positions))
	}
	if len(mesh.Faces) != 1 {
		t.Fatalf("Faces = %d, want 1 (invalid face should be dropped)", len(mesh.Faces))
	}
	if mesh.Faces[0].MaterialTag != 5 || mesh.Faces[0].AuxTag != 9 {
		t.Fatalf("unexpected face fields: %+v", mesh.Faces[0])
	}
}

func TestParseMissingFacesFails(t *testing.T) {
	positions := append(append(lef32(0), lef32(0)...), lef32(0)...)
	payload := buildNresPayload([]rawChunk{
		{kind: kindPositions, data: positions},
	})
	if _, err := Parse(payload); err == nil {
		t.Fatalf("expected error for missing faces chunk")
	}
}

func TestBuildRenderMeshFlattensIndices(t *testing.T) {
	mesh := &Mesh{
		Positions: [][3]float32{{0, 0, 0}, {1, 1, 1}},
		UV0:       [][2]float32{{0, 0}, {0.5, 0.5}},
		Faces: []Face{
			{Indices: [3]uint16{0, 1, 0}},
		},
	}
	render, err := BuildRenderMesh(mesh)
	if err != nil {
		t.Fatalf("BuildRenderMesh: %v", err)
	}
	if len(render.Indices) != 3 {
		t.Fatalf("Indices = %d, want 3", len(render.Indices))
	}
	if render.FaceCountRaw != 1 || render.FaceCountKept != 1 {
		t.Fatalf("unexpected face counts: %+v", render)
	}
}
