package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// InflateDeflate decodes a raw Deflate (RFC 1951) stream using
// klauspost/compress, the pack's preferred compress provider, rather
// than the standard library's compress/flate.
//
// The "EOF+1" compatibility quirk some RsLi directories exhibit —
// packed_size claiming one byte more than the archive actually has —
// is resolved one layer up, when the directory record's available
// packed-data slice is computed; by the time bytes reach here the
// slice is already exactly the bytes the compressor produced.
func InflateDeflate(data []byte, expectedSize int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out := make([]byte, expectedSize)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if n != expectedSize {
		return nil, fmt.Errorf("deflate: decoded %d bytes, expected %d", n, expectedSize)
	}
	return out, nil
}

// InflateZlib decodes a zlib-wrapped Deflate stream (a two-byte header
// followed by a raw Deflate stream and an Adler-32 trailer). Not
// produced by any RsLi entry observed in the wild, but kept available
// for archives whose packed payload happens to carry a valid zlib
// header, detected by sniffing the first two bytes before falling
// back to raw Deflate.
func InflateZlib(data []byte, expectedSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()

	out := make([]byte, expectedSize)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	if n != expectedSize {
		return nil, fmt.Errorf("zlib: decoded %d bytes, expected %d", n, expectedSize)
	}
	return out, nil
}

// looksLikeZlibHeader reports whether the first two bytes of data form
// a valid zlib header (CMF/FLG with CM==8 and a checksum that divides
// evenly by 31), the same sniff zlib implementations use.
func looksLikeZlibHeader(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	cmf, flg := data[0], data[1]
	if cmf&0x0F != 8 {
		return false
	}
	return (uint16(cmf)*256+uint16(flg))%31 == 0
}
