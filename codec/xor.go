// Package codec implements the packing methods used by the RsLi
// container format: a stateful XOR stream cipher, LZSS, LZSS combined
// with an adaptive Huffman coder, and Deflate.
package codec

// xorState is the stream-cipher state used both to decrypt RsLi
// directory records and, for methods that need it, entry payloads.
// Grounded on the original xor.rs: the 16-bit key splits into a low
// and high byte that update each other every byte.
type xorState struct {
	lo, hi byte
}

func newXorState(key uint16) xorState {
	return xorState{
		lo: byte(key & 0xFF),
		hi: byte(key >> 8),
	}
}

func (s *xorState) decryptByte(encrypted byte) byte {
	s.lo = s.hi ^ (s.lo << 1)
	decrypted := encrypted ^ s.lo
	s.hi = s.lo ^ (s.hi >> 1)
	return decrypted
}

// XorStream decrypts data using the stream cipher keyed by key,
// returning the decrypted bytes in a new buffer; data is not modified. Used both for RsLi directory
// decryption and for the XorOnly/XorLzss/XorLzssHuffman payload
// methods.
func XorStream(data []byte, key uint16) []byte {
	out := make([]byte, len(data))
	st := newXorState(key)
	for i, b := range data {
		out[i] = st.decryptByte(b)
	}
	return out
}
