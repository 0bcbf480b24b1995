// Package mesh parses the typed mesh payload stored inside a .msh
// entry: a nested NRes archive of per-kind binary chunks describing a
// model's node hierarchy, LOD/group slots, render batches, and vertex
// attributes.
package mesh

import (
	"fmt"
	"math"

	"github.com/ernie/parkan-core/internal/cp1251"
	"github.com/ernie/parkan-core/nres"
)

const (
	Res1NodeTable uint32 = 1
	Res2Slots     uint32 = 2
	Res3Positions uint32 = 3
	Res4Normals   uint32 = 4
	Res5UV0       uint32 = 5
	Res6Indices   uint32 = 6
	Res10Names    uint32 = 10
	Res13Batches  uint32 = 13

	slotTableOffset = 0x8C
	slotStride      = 68
	batchStride     = 20
	nodeStrideWide  = 38
)

// Slot describes one LOD/group rendering unit: a triangle range within
// a node and the batch range that renders it.
type Slot struct {
	TriStart, TriCount     uint16
	BatchStart, BatchCount uint16
	AABBMin, AABBMax       [3]float32
	SphereCenter           [3]float32
	SphereRadius           float32
	Opaque                 [5]uint32
}

// Batch describes one draw call's worth of indices into the model's
// shared index buffer.
type Batch struct {
	BatchFlags     uint16
	MaterialIndex  uint16
	Opaque4        uint16
	Opaque6        uint16
	IndexCount     uint16
	IndexStart     uint32
	Opaque14       uint16
	BaseVertex     uint32
}

// Model is a fully parsed mesh payload.
type Model struct {
	NodeStride int
	NodeCount  int
	NodesRaw   []byte
	Slots      []Slot
	Positions  [][3]float32
	Normals    [][4]int8 // nil if Res4 absent
	UV0        [][2]int16 // nil if Res5 absent
	Indices    []uint16
	Batches    []Batch
	NodeNames  []*string // nil if Res10 absent; per-node, nil entry means unnamed
}

// SlotIndex resolves the slot serving (nodeIndex, lod, group), or
// false if there is none. Only node tables with the wide (38-byte)
// stride carry the LOD/group matrix this lookup reads.
func (m *Model) SlotIndex(nodeIndex, lod, group int) (int, bool) {
	if nodeIndex < 0 || nodeIndex >= m.NodeCount || lod < 0 || lod >= 3 || group < 0 || group >= 5 {
		return 0, false
	}
	if m.NodeStride != nodeStrideWide {
		return 0, false
	}
	nodeOff := nodeIndex * m.NodeStride
	matrixOff := nodeOff + 8
	wordOff := matrixOff + (lod*5+group)*2
	if wordOff+2 > len(m.NodesRaw) {
		return 0, false
	}
	raw := readU16(m.NodesRaw, wordOff)
	if raw == 0xFFFF {
		return 0, false
	}
	idx := int(raw)
	if idx >= len(m.Slots) {
		return 0, false
	}
	return idx, true
}

// ParsePayload parses a nested-NRes mesh payload into a Model.
func ParsePayload(payload []byte) (*Model, error) {
	archive, err := nres.Open(payload, nres.OpenOptions{})
	if err != nil {
		return nil, fmt.Errorf("mesh: %w", err)
	}

	res1, err := readRequired(archive, Res1NodeTable, "Res1")
	if err != nil {
		return nil, err
	}
	res2, err := readRequired(archive, Res2Slots, "Res2")
	if err != nil {
		return nil, err
	}
	res3, err := readRequired(archive, Res3Positions, "Res3")
	if err != nil {
		return nil, err
	}
	res6, err := readRequired(archive, Res6Indices, "Res6")
	if err != nil {
		return nil, err
	}
	res13, err := readRequired(archive, Res13Batches, "Res13")
	if err != nil {
		return nil, err
	}

	res4, err := readOptional(archive, Res4Normals)
	if err != nil {
		return nil, err
	}
	res5, err := readOptional(archive, Res5UV0)
	if err != nil {
		return nil, err
	}
	res10, err := readOptional(archive, Res10Names)
	if err != nil {
		return nil, err
	}

	nodeStride := int(res1.meta.Attr3)
	if nodeStride != 38 && nodeStride != 24 {
		return nil, fmt.Errorf("mesh: unsupported node stride %d", nodeStride)
	}
	if len(res1.bytes)%nodeStride != 0 {
		return nil, fmt.Errorf("mesh: Res1 size %d not a multiple of stride %d", len(res1.bytes), nodeStride)
	}
	nodeCount := len(res1.bytes) / nodeStride

	if len(res2.bytes) < slotTableOffset {
		return nil, fmt.Errorf("mesh: Res2 size %d smaller than slot table offset %d", len(res2.bytes), slotTableOffset)
	}
	slotBlob := len(res2.bytes) - slotTableOffset
	if slotBlob%slotStride != 0 {
		return nil, fmt.Errorf("mesh: Res2 slot blob size %d not a multiple of %d", slotBlob, slotStride)
	}
	slotCount := slotBlob / slotStride
	slots := make([]Slot, slotCount)
	for i := 0; i < slotCount; i++ {
		off := slotTableOffset + i*slotStride
		b := res2.bytes
		slots[i] = Slot{
			TriStart:   readU16(b, off),
			TriCount:   readU16(b, off+2),
			BatchStart: readU16(b, off+4),
			BatchCount: readU16(b, off+6),
			AABBMin:    [3]float32{readF32(b, off+8), readF32(b, off+12), readF32(b, off+16)},
			AABBMax:    [3]float32{readF32(b, off+20), readF32(b, off+24), readF32(b, off+28)},
			SphereCenter: [3]float32{readF32(b, off+32), readF32(b, off+36), readF32(b, off+40)},
			SphereRadius: readF32(b, off+44),
			Opaque: [5]uint32{
				readU32(b, off+48), readU32(b, off+52), readU32(b, off+56),
				readU32(b, off+60), readU32(b, off+64),
			},
		}
	}

	positions, err := parsePositions(res3.bytes)
	if err != nil {
		return nil, err
	}
	indices, err := parseU16Array(res6.bytes, "Res6")
	if err != nil {
		return nil, err
	}
	batches, err := parseBatches(res13.bytes)
	if err != nil {
		return nil, err
	}
	if err := validateSlotBatchRanges(slots, len(batches)); err != nil {
		return nil, err
	}
	if err := validateBatchIndexRanges(batches, len(indices)); err != nil {
		return nil, err
	}

	var normals [][4]int8
	if res4 != nil {
		normals, err = parseI8x4Array(res4.bytes, "Res4")
		if err != nil {
			return nil, err
		}
	}
	var uv0 [][2]int16
	if res5 != nil {
		uv0, err = parseI16x2Array(res5.bytes, "Res5")
		if err != nil {
			return nil, err
		}
	}
	var nodeNames []*string
	if res10 != nil {
		nodeNames, err = parseRes10Names(res10.bytes, nodeCount)
		if err != nil {
			return nil, err
		}
	}

	return &Model{
		NodeStride: nodeStride,
		NodeCount:  nodeCount,
		NodesRaw:   res1.bytes,
		Slots:      slots,
		Positions:  positions,
		Normals:    normals,
		UV0:        uv0,
		Indices:    indices,
		Batches:    batches,
		NodeNames:  nodeNames,
	}, nil
}

func validateSlotBatchRanges(slots []Slot, batchCount int) error {
	for _, s := range slots {
		start := int(s.BatchStart)
		end := start + int(s.BatchCount)
		if end > batchCount {
			return fmt.Errorf("mesh: slot batch range [%d, %d) exceeds batch count %d", start, end, batchCount)
		}
	}
	return nil
}

func validateBatchIndexRanges(batches []Batch, indexCount int) error {
	for _, b := range batches {
		start := int(b.IndexStart)
		end := start + int(b.IndexCount)
		if end > indexCount {
			return fmt.Errorf("mesh: batch index range [%d, %d) exceeds index count %d", start, end, indexCount)
		}
	}
	return nil
}

func parsePositions(data []byte) ([][3]float32, error) {
	if len(data)%12 != 0 {
		return nil, fmt.Errorf("mesh: Res3 size %d not a multiple of 12", len(data))
	}
	count := len(data) / 12
	out := make([][3]float32, count)
	for i := 0; i < count; i++ {
		off := i * 12
		out[i] = [3]float32{readF32(data, off), readF32(data, off+4), readF32(data, off+8)}
	}
	return out, nil
}

func parseBatches(data []byte) ([]Batch, error) {
	if len(data)%batchStride != 0 {
		return nil, fmt.Errorf("mesh: Res13 size %d not a multiple of %d", len(data), batchStride)
	}
	count := len(data) / batchStride
	out := make([]Batch, count)
	for i := 0; i < count; i++ {
		off := i * batchStride
		out[i] = Batch{
			BatchFlags:    readU16(data, off),
			MaterialIndex: readU16(data, off+2),
			Opaque4:       readU16(data, off+4),
			Opaque6:       readU16(data, off+6),
			IndexCount:    readU16(data, off+8),
			IndexStart:    readU32(data, off+10),
			Opaque14:      readU16(data, off+14),
			BaseVertex:    readU32(data, off+16),
		}
	}
	return out, nil
}

func parseU16Array(data []byte, label string) ([]uint16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("mesh: %s size %d not a multiple of 2", label, len(data))
	}
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = readU16(data, i*2)
	}
	return out, nil
}

func parseI8x4Array(data []byte, label string) ([][4]int8, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("mesh: %s size %d not a multiple of 4", label, len(data))
	}
	out := make([][4]int8, len(data)/4)
	for i := range out {
		off := i * 4
		out[i] = [4]int8{int8(data[off]), int8(data[off+1]), int8(data[off+2]), int8(data[off+3])}
	}
	return out, nil
}

func parseI16x2Array(data []byte, label string) ([][2]int16, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("mesh: %s size %d not a multiple of 4", label, len(data))
	}
	out := make([][2]int16, len(data)/4)
	for i := range out {
		off := i * 4
		out[i] = [2]int16{int16(readU16(data, off)), int16(readU16(data, off+2))}
	}
	return out, nil
}

// parseRes10Names decodes the node name table. Each entry is a
// little-endian u32 length prefix; a zero length means "unnamed", a
// nonzero length is followed by that many bytes plus one (a trailing
// NUL the original format pads every name with). Names are CP1251,
// not UTF-8, matching the rest of the game's text encoding.
func parseRes10Names(data []byte, nodeCount int) ([]*string, error) {
	out := make([]*string, 0, nodeCount)
	off := 0
	for i := 0; i < nodeCount; i++ {
		if off+4 > len(data) {
			return nil, fmt.Errorf("mesh: Res10 name table truncated at node %d", i)
		}
		length := int(readU32(data, off))
		off += 4
		if length == 0 {
			out = append(out, nil)
			continue
		}
		need := length + 1
		end := off + need
		if end > len(data) {
			return nil, fmt.Errorf("mesh: Res10 name table truncated at node %d", i)
		}
		slice := data[off:end]
		if slice[len(slice)-1] == 0 {
			slice = slice[:len(slice)-1]
		}
		decoded, err := cp1251.Decode(slice)
		if err != nil {
			return nil, fmt.Errorf("mesh: Res10 name at node %d: %w", i, err)
		}
		out = append(out, &decoded)
		off = end
	}
	return out, nil
}

type rawResource struct {
	meta  nres.EntryMeta
	bytes []byte
}

func readRequired(archive *nres.Archive, kind uint32, label string) (*rawResource, error) {
	for _, e := range archive.Entries() {
		if e.Meta.Kind == kind {
			data, err := archive.Read(e.ID)
			if err != nil {
				return nil, err
			}
			return &rawResource{meta: e.Meta, bytes: append([]byte(nil), data...)}, nil
		}
	}
	return nil, fmt.Errorf("mesh: missing required chunk %s (kind %d)", label, kind)
}

func readOptional(archive *nres.Archive, kind uint32) (*rawResource, error) {
	for _, e := range archive.Entries() {
		if e.Meta.Kind == kind {
			data, err := archive.Read(e.ID)
			if err != nil {
				return nil, err
			}
			return &rawResource{meta: e.Meta, bytes: append([]byte(nil), data...)}, nil
		}
	}
	return nil, nil
}

func readU16(data []byte, offset int) uint16 {
	return uint16(data[offset]) | uint16(data[offset+1])<<8
}

func readU32(data []byte, offset int) uint32 {
	return uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16 | uint32(data[offset+3])<<24
}

func readF32(data []byte, offset int) float32 {
	return math.Float32frombits(readU32(data, offset))
}
