package texture

import (
	"encoding/binary"
	"testing"
)

func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

func buildHeader(width, height, mipCount, format uint32) []byte {
	h := make([]byte, headerSize)
	copy(h[0:4], le32(texmMagic))
	copy(h[4:8], le32(width))
	copy(h[8:12], le32(height))
	copy(h[12:16], le32(mipCount))
	copy(h[28:32], le32(format))
	return h
}

func TestParseRgb888SingleMip(t *testing.T) {
	payload := buildHeader(2, 1, 1, 888)
	// two pixels, 4 bytes each (r,g,b,_)
	payload = append(payload, 10, 20, 30, 0)
	payload = append(payload, 40, 50, 60, 0)

	tex, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tex.MipLevels) != 1 {
		t.Fatalf("MipLevels = %d, want 1", len(tex.MipLevels))
	}

	rgba, err := tex.DecodeMipRGBA8(0)
	if err != nil {
		t.Fatalf("DecodeMipRGBA8: %v", err)
	}
	want := []byte{10, 20, 30, 255, 40, 50, 60, 255}
	if string(rgba) != string(want) {
		t.Fatalf("got %v, want %v", rgba, want)
	}
}

func TestParseIndexed8RequiresPalette(t *testing.T) {
	payload := buildHeader(1, 1, 1, 0)
	// no palette, no pixel data -> out of bounds
	if _, err := Parse(payload); err == nil {
		t.Fatalf("expected error for missing palette")
	}
}

func TestParseIndexed8WithPalette(t *testing.T) {
	payload := buildHeader(1, 1, 1, 0)
	var pal [1024]byte
	pal[255*4+0] = 0xAA
	pal[255*4+1] = 0xBB
	pal[255*4+2] = 0xCC
	pal[255*4+3] = 0xDD
	payload = append(payload, pal[:]...)
	payload = append(payload, 255) // single pixel indexing entry 255

	tex, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rgba, err := tex.DecodeMipRGBA8(0)
	if err != nil {
		t.Fatalf("DecodeMipRGBA8: %v", err)
	}
	want := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	if string(rgba) != string(want) {
		t.Fatalf("got %v, want %v", rgba, want)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	payload := make([]byte, headerSize)
	if _, err := Parse(payload); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestParsePageTail(t *testing.T) {
	payload := buildHeader(1, 1, 1, 888)
	payload = append(payload, 1, 2, 3, 0) // one rgb888 pixel

	var tail []byte
	tail = append(tail, le32(pageMagic)...)
	tail = append(tail, le32(1)...) // one rect
	rect := make([]byte, 8)
	x := int16(-5)
	binary.LittleEndian.PutUint16(rect[0:2], uint16(x))
	binary.LittleEndian.PutUint16(rect[2:4], uint16(10))
	binary.LittleEndian.PutUint16(rect[4:6], uint16(20))
	binary.LittleEndian.PutUint16(rect[6:8], uint16(30))
	tail = append(tail, rect...)
	payload = append(payload, tail...)

	tex, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tex.PageRects) != 1 {
		t.Fatalf("PageRects = %d, want 1", len(tex.PageRects))
	}
	got := tex.PageRects[0]
	if got.X != -5 || got.W != 10 || got.Y != 20 || got.H != 30 {
		t.Fatalf("got %+v", got)
	}
}

func TestMipDimensionsHalveAndClamp(t *testing.T) {
	payload := buildHeader(3, 1, 2, 888)
	payload = append(payload, make([]byte, 3*1*4)...) // mip 0: 3x1
	payload = append(payload, make([]byte, 1*1*4)...) // mip 1: 1x1 (3>>1=1, clamped)

	tex, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tex.MipLevels[1].Width != 1 || tex.MipLevels[1].Height != 1 {
		t.Fatalf("mip1 dims = %dx%d, want 1x1", tex.MipLevels[1].Width, tex.MipLevels[1].Height)
	}
}
