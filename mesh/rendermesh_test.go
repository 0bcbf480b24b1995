package mesh

import "testing"

func TestBuildRenderMeshWalksBatchesAndIndices(t *testing.T) {
	model := &Model{
		NodeStride: nodeStrideWide,
		NodeCount:  1,
		NodesRaw:   make([]byte, nodeStrideWide),
		Slots: []Slot{
			{BatchStart: 0, BatchCount: 1},
		},
		Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		UV0:       [][2]int16{{0, 0}, {1024, 0}, {0, 1024}},
		Indices:   []uint16{0, 1, 2},
		Batches: []Batch{
			{IndexStart: 0, IndexCount: 3, BaseVertex: 0},
		},
	}
	// node 0, lod 0, group 0 -> slot index 0 (write u16(0) at the matrix offset)
	writeU16(model.NodesRaw, 8, 0)

	render := BuildRenderMesh(model, 0, 0)
	if len(render.Vertices) != 3 {
		t.Fatalf("Vertices = %d, want 3", len(render.Vertices))
	}
	if render.BatchCount != 1 {
		t.Fatalf("BatchCount = %d, want 1", render.BatchCount)
	}
	if render.Vertices[1].UV0 != [2]float32{1, 0} {
		t.Fatalf("UV0 = %v, want {1, 0}", render.Vertices[1].UV0)
	}
	if render.TriangleCount() != 1 {
		t.Fatalf("TriangleCount = %d, want 1", render.TriangleCount())
	}
}

func TestBuildRenderMeshSkipsShortBatches(t *testing.T) {
	model := &Model{
		NodeStride: nodeStrideWide,
		NodeCount:  1,
		NodesRaw:   make([]byte, nodeStrideWide),
		Slots: []Slot{
			{BatchStart: 0, BatchCount: 1},
		},
		Positions: [][3]float32{{0, 0, 0}},
		Indices:   []uint16{0, 0},
		Batches: []Batch{
			{IndexStart: 0, IndexCount: 2, BaseVertex: 0}, // fewer than 3 indices
		},
	}
	writeU16(model.NodesRaw, 8, 0)

	render := BuildRenderMesh(model, 0, 0)
	if len(render.Vertices) != 0 {
		t.Fatalf("expected no vertices for a too-short batch, got %d", len(render.Vertices))
	}
}

func writeU16(b []byte, offset int, v uint16) {
	b[offset] = byte(v)
	b[offset+1] = byte(v >> 8)
}
