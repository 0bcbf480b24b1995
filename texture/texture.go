// Package texture decodes the Texm texture payload format: a header,
// an optional 256-entry RGBA palette, a chain of mip levels, and an
// optional trailing Page chunk of atlas rectangles.
package texture

import (
	"encoding/binary"
	"fmt"
	"image"
)

// Magic is the Texm payload's leading 4-byte magic, read little-endian
// as a u32; callers matching an NRes entry's kind field against this
// use it to identify texture entries before parsing them.
const Magic = texmMagic

const (
	texmMagic = 0x6D78_6554
	pageMagic = 0x6567_6150

	headerSize  = 32
	paletteSize = 1024
)

// PixelFormat identifies a Texm pixel encoding.
type PixelFormat int

const (
	FormatIndexed8 PixelFormat = iota
	FormatRgb565
	FormatRgb556
	FormatArgb4444
	FormatLuminanceAlpha88
	FormatRgb888
	FormatArgb8888
)

func formatFromRaw(raw uint32) (PixelFormat, bool) {
	switch raw {
	case 0:
		return FormatIndexed8, true
	case 565:
		return FormatRgb565, true
	case 556:
		return FormatRgb556, true
	case 4444:
		return FormatArgb4444, true
	case 88:
		return FormatLuminanceAlpha88, true
	case 888:
		return FormatRgb888, true
	case 8888:
		return FormatArgb8888, true
	default:
		return 0, false
	}
}

func (f PixelFormat) bytesPerPixel() int {
	switch f {
	case FormatIndexed8:
		return 1
	case FormatRgb565, FormatRgb556, FormatArgb4444, FormatLuminanceAlpha88:
		return 2
	case FormatRgb888, FormatArgb8888:
		return 4
	default:
		return 0
	}
}

// Header is the fixed 32-byte Texm header.
type Header struct {
	Width, Height uint32
	MipCount      uint32
	Flags4        uint32
	Flags5        uint32
	Unk6          uint32
	FormatRaw     uint32
	Format        PixelFormat
}

// MipLevel records a mip's dimensions and its byte range within the
// source payload; the bytes themselves are not copied.
type MipLevel struct {
	Width, Height uint32
	Offset, Size  int
}

// PageRect is one atlas rectangle from the trailing Page chunk.
type PageRect struct {
	X, W, Y, H int16
}

// Texture is a fully parsed Texm payload.
type Texture struct {
	Header    Header
	Palette   *[1024]byte
	MipLevels []MipLevel
	PageRects []PageRect

	payload []byte
}

// CoreSize returns the byte length of the header, palette (if any),
// and every mip level, excluding any trailing Page chunk.
func (t *Texture) CoreSize() int {
	size := headerSize
	if t.Palette != nil {
		size += paletteSize
	}
	for _, level := range t.MipLevels {
		size += level.Size
	}
	return size
}

// Parse validates and decodes a Texm payload without copying mip
// pixel bytes; use MipBytes/DecodeMipRGBA8 to materialize pixels.
func Parse(payload []byte) (*Texture, error) {
	if len(payload) < headerSize {
		return nil, fmt.Errorf("texture: header too small: %d bytes", len(payload))
	}

	magic := binary.LittleEndian.Uint32(payload[0:4])
	if magic != texmMagic {
		return nil, fmt.Errorf("texture: invalid magic %#x", magic)
	}

	width := binary.LittleEndian.Uint32(payload[4:8])
	height := binary.LittleEndian.Uint32(payload[8:12])
	mipCount := binary.LittleEndian.Uint32(payload[12:16])
	flags4 := binary.LittleEndian.Uint32(payload[16:20])
	flags5 := binary.LittleEndian.Uint32(payload[20:24])
	unk6 := binary.LittleEndian.Uint32(payload[24:28])
	formatRaw := binary.LittleEndian.Uint32(payload[28:32])

	if width == 0 || height == 0 {
		return nil, fmt.Errorf("texture: invalid dimensions %dx%d", width, height)
	}
	if mipCount == 0 {
		return nil, fmt.Errorf("texture: mip count is zero")
	}

	format, ok := formatFromRaw(formatRaw)
	if !ok {
		return nil, fmt.Errorf("texture: unknown format code %d", formatRaw)
	}
	bpp := format.bytesPerPixel()

	offset := headerSize
	var palette *[1024]byte
	if format == FormatIndexed8 {
		end := offset + paletteSize
		if end > len(payload) {
			return nil, fmt.Errorf("texture: palette out of bounds: need %d, have %d", end, len(payload))
		}
		var pal [1024]byte
		copy(pal[:], payload[offset:end])
		palette = &pal
		offset = end
	}

	levels := make([]MipLevel, 0, mipCount)
	w, h := width, height
	for i := uint32(0); i < mipCount; i++ {
		levelSize := int(w) * int(h) * bpp
		levelOffset := offset
		offset += levelSize
		if offset > len(payload) {
			return nil, fmt.Errorf("texture: mip %d out of bounds: need %d, have %d", i, offset, len(payload))
		}
		levels = append(levels, MipLevel{Width: w, Height: h, Offset: levelOffset, Size: levelSize})

		w >>= 1
		h >>= 1
		if w == 0 {
			w = 1
		}
		if h == 0 {
			h = 1
		}
	}

	rects, err := parsePageTail(payload, offset)
	if err != nil {
		return nil, err
	}

	return &Texture{
		Header: Header{
			Width: width, Height: height, MipCount: mipCount,
			Flags4: flags4, Flags5: flags5, Unk6: unk6,
			FormatRaw: formatRaw, Format: format,
		},
		Palette:   palette,
		MipLevels: levels,
		PageRects: rects,
		payload:   payload,
	}, nil
}

func parsePageTail(payload []byte, coreEnd int) ([]PageRect, error) {
	if coreEnd == len(payload) {
		return nil, nil
	}
	remaining := len(payload) - coreEnd
	if remaining < 8 {
		return nil, fmt.Errorf("texture: trailing Page chunk too small: %d bytes", remaining)
	}
	magic := binary.LittleEndian.Uint32(payload[coreEnd : coreEnd+4])
	if magic != pageMagic {
		return nil, fmt.Errorf("texture: invalid Page magic %#x", magic)
	}
	rectCount := binary.LittleEndian.Uint32(payload[coreEnd+4 : coreEnd+8])
	expected := 8 + int(rectCount)*8
	if expected != remaining {
		return nil, fmt.Errorf("texture: Page chunk size mismatch: expected %d, have %d", expected, remaining)
	}

	rects := make([]PageRect, 0, rectCount)
	for i := 0; i < int(rectCount); i++ {
		off := coreEnd + 8 + i*8
		rects = append(rects, PageRect{
			X: int16(binary.LittleEndian.Uint16(payload[off : off+2])),
			W: int16(binary.LittleEndian.Uint16(payload[off+2 : off+4])),
			Y: int16(binary.LittleEndian.Uint16(payload[off+4 : off+6])),
			H: int16(binary.LittleEndian.Uint16(payload[off+6 : off+8])),
		})
	}
	return rects, nil
}

// MipBytes returns the raw encoded bytes of a mip level, unchanged
// from the source payload.
func (t *Texture) MipBytes(mipIndex int) ([]byte, error) {
	if mipIndex < 0 || mipIndex >= len(t.MipLevels) {
		return nil, fmt.Errorf("texture: mip index %d out of range", mipIndex)
	}
	level := t.MipLevels[mipIndex]
	return t.payload[level.Offset : level.Offset+level.Size], nil
}

// DecodeMipRGBA8 decodes a mip level into a freshly allocated
// width*height*4 RGBA8 buffer.
func (t *Texture) DecodeMipRGBA8(mipIndex int) ([]byte, error) {
	if mipIndex < 0 || mipIndex >= len(t.MipLevels) {
		return nil, fmt.Errorf("texture: mip index %d out of range", mipIndex)
	}
	level := t.MipLevels[mipIndex]
	src, err := t.MipBytes(mipIndex)
	if err != nil {
		return nil, err
	}

	pixelCount := int(level.Width) * int(level.Height)
	out := make([]byte, pixelCount*4)

	switch t.Header.Format {
	case FormatIndexed8:
		if t.Palette == nil {
			return nil, fmt.Errorf("texture: indexed format missing palette")
		}
		for i := 0; i < pixelCount; i++ {
			idx := int(src[i]) * 4
			copy(out[i*4:i*4+4], t.Palette[idx:idx+4])
		}
	case FormatRgb565:
		for i := 0; i < pixelCount; i++ {
			v := binary.LittleEndian.Uint16(src[i*2 : i*2+2])
			r := expand(uint32(v>>11)&0x1F, 5)
			g := expand(uint32(v>>5)&0x3F, 6)
			b := expand(uint32(v)&0x1F, 5)
			out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = r, g, b, 255
		}
	case FormatRgb556:
		for i := 0; i < pixelCount; i++ {
			v := binary.LittleEndian.Uint16(src[i*2 : i*2+2])
			r := expand(uint32(v>>11)&0x1F, 5)
			g := expand(uint32(v>>6)&0x1F, 5)
			b := expand(uint32(v)&0x3F, 6)
			out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = r, g, b, 255
		}
	case FormatArgb4444:
		for i := 0; i < pixelCount; i++ {
			v := binary.LittleEndian.Uint16(src[i*2 : i*2+2])
			a := expand(uint32(v>>12)&0xF, 4)
			r := expand(uint32(v>>8)&0xF, 4)
			g := expand(uint32(v>>4)&0xF, 4)
			b := expand(uint32(v)&0xF, 4)
			out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = r, g, b, a
		}
	case FormatLuminanceAlpha88:
		for i := 0; i < pixelCount; i++ {
			l := src[i*2]
			a := src[i*2+1]
			out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = l, l, l, a
		}
	case FormatRgb888:
		for i := 0; i < pixelCount; i++ {
			r, g, b := src[i*4], src[i*4+1], src[i*4+2]
			out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = r, g, b, 255
		}
	case FormatArgb8888:
		for i := 0; i < pixelCount; i++ {
			a, r, g, b := src[i*4], src[i*4+1], src[i*4+2], src[i*4+3]
			out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = r, g, b, a
		}
	default:
		return nil, fmt.Errorf("texture: unhandled format %v", t.Header.Format)
	}

	return out, nil
}

// expand widens a bits-wide saturating channel value to a full byte
// using the standard (v*255 + half) / max_in rounding expansion.
func expand(v uint32, bits int) byte {
	maxIn := uint32(1)<<bits - 1
	half := maxIn / 2
	return byte((v*255 + half) / maxIn)
}

// DecodeMipImage decodes a mip level into a standard library
// image.Image, so the rest of the Go image ecosystem (encoders,
// thumbnailing, golden-file tests) can consume it without the caller
// re-wrapping the raw RGBA8 buffer.
func (t *Texture) DecodeMipImage(mipIndex int) (*image.RGBA, error) {
	if mipIndex < 0 || mipIndex >= len(t.MipLevels) {
		return nil, fmt.Errorf("texture: mip index %d out of range", mipIndex)
	}
	level := t.MipLevels[mipIndex]
	rgba8, err := t.DecodeMipRGBA8(mipIndex)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, int(level.Width), int(level.Height)))
	copy(img.Pix, rgba8)
	return img, nil
}
