package mesh

// DefaultUVScale divides packed i16 UV0 components into texture
// space, matching the scale baked into Res5 by the tooling that
// produced these models.
const DefaultUVScale = 1024.0

// RenderVertex is one vertex of an expanded triangle list.
type RenderVertex struct {
	Position [3]float32
	UV0      [2]float32
}

// RenderMesh is a model flattened into an expanded triangle list for
// a chosen (lod, group) pair, suitable for a simple non-indexed draw.
type RenderMesh struct {
	Vertices   []RenderVertex
	BatchCount int
}

// TriangleCount returns the number of complete triangles in Vertices.
func (m *RenderMesh) TriangleCount() int {
	return len(m.Vertices) / 3
}

// BuildRenderMesh walks every node's slot (stride-38 node tables
// only) for the given (lod, group), then every batch in that slot's
// range, then every index in that batch's range, emitting one vertex
// per index. Out-of-range batches, index ranges, and indices are
// skipped rather than failing the whole build.
func BuildRenderMesh(model *Model, lod, group int) *RenderMesh {
	var vertices []RenderVertex
	batchCount := 0

	for nodeIndex := 0; nodeIndex < model.NodeCount; nodeIndex++ {
		slotIdx, ok := model.SlotIndex(nodeIndex, lod, group)
		if !ok {
			continue
		}
		if slotIdx < 0 || slotIdx >= len(model.Slots) {
			continue
		}
		slot := model.Slots[slotIdx]

		batchStart := int(slot.BatchStart)
		batchEnd := batchStart + int(slot.BatchCount)
		if batchEnd > len(model.Batches) {
			continue
		}

		for _, batch := range model.Batches[batchStart:batchEnd] {
			indexStart := int(batch.IndexStart)
			indexCount := int(batch.IndexCount)
			indexEnd := indexStart + indexCount
			if indexEnd > len(model.Indices) || indexCount < 3 {
				continue
			}

			for _, idx := range model.Indices[indexStart:indexEnd] {
				finalIdx64 := uint64(batch.BaseVertex) + uint64(idx)
				if finalIdx64 > uint64(^uint(0)>>1) {
					continue
				}
				finalIdx := int(finalIdx64)
				if finalIdx < 0 || finalIdx >= len(model.Positions) {
					continue
				}

				uv := [2]float32{0, 0}
				if model.UV0 != nil && finalIdx < len(model.UV0) {
					packed := model.UV0[finalIdx]
					uv = [2]float32{float32(packed[0]) / DefaultUVScale, float32(packed[1]) / DefaultUVScale}
				}

				vertices = append(vertices, RenderVertex{
					Position: model.Positions[finalIdx],
					UV0:      uv,
				})
			}
			batchCount++
		}
	}

	return &RenderMesh{Vertices: vertices, BatchCount: batchCount}
}
