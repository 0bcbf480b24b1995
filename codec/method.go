package codec

import "fmt"

// Method identifies one of the seven RsLi packing methods, encoded in
// bits 5-8 of an entry's directory flags field.
type Method int

const (
	MethodNone Method = iota
	MethodXorOnly
	MethodLzss
	MethodXorLzss
	MethodLzssHuffman
	MethodXorLzssHuffman
	MethodDeflate
	MethodUnknown
)

// MethodFromFlags maps the raw flags bits to a Method, matching the
// original parse.rs mapping table.
func MethodFromFlags(flags int32) Method {
	switch flags & 0x1E0 {
	case 0x000:
		return MethodNone
	case 0x020:
		return MethodXorOnly
	case 0x040:
		return MethodLzss
	case 0x060:
		return MethodXorLzss
	case 0x080:
		return MethodLzssHuffman
	case 0x0A0:
		return MethodXorLzssHuffman
	case 0x100:
		return MethodDeflate
	default:
		return MethodUnknown
	}
}

// NeedsXorKey reports whether method requires a per-entry XOR key to
// decode (either as a standalone cipher or fused into LZSS/LZH).
func NeedsXorKey(m Method) bool {
	switch m {
	case MethodXorOnly, MethodXorLzss, MethodXorLzssHuffman:
		return true
	default:
		return false
	}
}

// Decode applies method to packed, producing exactly unpackedSize
// bytes of output. key is required (and must be non-nil) for any
// method NeedsXorKey reports true for. packed is expected to already
// be trimmed to the available packed size by the caller (the RsLi
// directory layer resolves the EOF+1 quirk before calling Decode).
func Decode(packed []byte, m Method, key *uint16, unpackedSize int) ([]byte, error) {
	switch m {
	case MethodNone:
		if len(packed) < unpackedSize {
			return nil, fmt.Errorf("codec: packed size %d smaller than unpacked size %d", len(packed), unpackedSize)
		}
		out := make([]byte, unpackedSize)
		copy(out, packed[:unpackedSize])
		return out, nil

	case MethodXorOnly:
		if key == nil {
			return nil, fmt.Errorf("codec: xor-only requires a key")
		}
		decrypted := XorStream(packed, *key)
		if len(decrypted) < unpackedSize {
			return nil, fmt.Errorf("codec: xor-only decrypted size %d smaller than unpacked size %d", len(decrypted), unpackedSize)
		}
		return decrypted[:unpackedSize], nil

	case MethodLzss:
		return LzssDecompress(packed, unpackedSize, nil)

	case MethodXorLzss:
		if key == nil {
			return nil, fmt.Errorf("codec: xor-lzss requires a key")
		}
		return LzssDecompress(packed, unpackedSize, key)

	case MethodLzssHuffman:
		return LzssHuffmanDecompress(packed, unpackedSize, nil)

	case MethodXorLzssHuffman:
		if key == nil {
			return nil, fmt.Errorf("codec: xor-lzss-huffman requires a key")
		}
		return LzssHuffmanDecompress(packed, unpackedSize, key)

	case MethodDeflate:
		if looksLikeZlibHeader(packed) {
			if out, err := InflateZlib(packed, unpackedSize); err == nil {
				return out, nil
			}
		}
		return InflateDeflate(packed, unpackedSize)

	default:
		return nil, fmt.Errorf("codec: unknown packing method (flags group %d)", m)
	}
}
