package codec

import "fmt"

// LzssDecompress decompresses a control-byte-driven LZSS stream,
// matching the original lzss.rs implementation exactly: a 4096-byte
// ring buffer pre-filled with spaces, back-references encoded as a
// low/high byte pair, and an optional fused XOR decrypt applied to
// every input byte before it is interpreted.
func LzssDecompress(data []byte, expectedSize int, xorKey *uint16) ([]byte, error) {
	var ring [0x1000]byte
	for i := range ring {
		ring[i] = 0x20
	}
	ringPos := 0xFEE

	out := make([]byte, 0, expectedSize)
	inPos := 0

	var state *xorState
	if xorKey != nil {
		s := newXorState(*xorKey)
		state = &s
	}

	readByte := func(pos int) (byte, bool) {
		if pos < 0 || pos >= len(data) {
			return 0, false
		}
		b := data[pos]
		if state != nil {
			b = state.decryptByte(b)
		}
		return b, true
	}

	var control byte
	var bitsLeft uint

	for len(out) < expectedSize {
		if bitsLeft == 0 {
			b, ok := readByte(inPos)
			if !ok {
				return nil, fmt.Errorf("lzss: unexpected EOF reading control byte")
			}
			control = b
			inPos++
			bitsLeft = 8
		}

		if control&1 != 0 {
			b, ok := readByte(inPos)
			if !ok {
				return nil, fmt.Errorf("lzss: unexpected EOF reading literal")
			}
			inPos++
			out = append(out, b)
			ring[ringPos] = b
			ringPos = (ringPos + 1) & 0x0FFF
		} else {
			low, ok := readByte(inPos)
			if !ok {
				return nil, fmt.Errorf("lzss: unexpected EOF reading back-reference")
			}
			high, ok := readByte(inPos + 1)
			if !ok {
				return nil, fmt.Errorf("lzss: unexpected EOF reading back-reference")
			}
			inPos += 2

			offset := int(low) | (int(high&0xF0) << 4)
			length := int(high&0x0F) + 3

			for step := 0; step < length; step++ {
				b := ring[(offset+step)&0x0FFF]
				out = append(out, b)
				ring[ringPos] = b
				ringPos = (ringPos + 1) & 0x0FFF
				if len(out) >= expectedSize {
					break
				}
			}
		}

		control >>= 1
		bitsLeft--
	}

	if len(out) != expectedSize {
		return nil, fmt.Errorf("lzss: decoded %d bytes, expected %d", len(out), expectedSize)
	}
	return out, nil
}
