package rsli

import (
	"encoding/binary"
	"testing"

	"github.com/ernie/parkan-core/codec"
)

// buildLibrary hand-assembles a minimal valid RsLi archive with a
// presorted identity permutation, so each entry's XOR key
// (sort_to_original cast to u16) is simply its own index — letting
// tests pre-encrypt payloads with a known key.
func buildLibrary(t *testing.T, xorSeed uint32, names []string, payloads [][]byte, flagsList []int16) []byte {
	t.Helper()
	count := len(names)

	var table []byte
	for i := 0; i < count; i++ {
		var row [32]byte
		copy(row[0:12], names[i])
		binary.LittleEndian.PutUint16(row[16:18], uint16(flagsList[i]))
		binary.LittleEndian.PutUint16(row[18:20], uint16(i)) // sort_to_original = identity
		binary.LittleEndian.PutUint32(row[20:24], uint32(len(payloads[i])))
		table = append(table, row[:]...)
	}

	encryptedTable := codec.XorStream(table, uint16(xorSeed&0xFFFF))

	header := make([]byte, 32)
	copy(header[0:2], "NL")
	header[3] = 0x01
	binary.LittleEndian.PutUint16(header[4:6], uint16(count))
	binary.LittleEndian.PutUint16(header[14:16], 0xABBA)
	binary.LittleEndian.PutUint32(header[20:24], xorSeed)

	out := append(header, encryptedTable...)

	// Now fix up each row's data_offset_raw/packed_size to point at
	// where its payload will land, re-encrypting the table afterward.
	offsets := make([]uint32, count)
	var payloadBlob []byte
	for i, p := range payloads {
		offsets[i] = uint32(32 + len(table) + len(payloadBlob))
		payloadBlob = append(payloadBlob, p...)
	}

	for i := 0; i < count; i++ {
		base := i * 32
		binary.LittleEndian.PutUint32(table[base+24:base+28], offsets[i])
		binary.LittleEndian.PutUint32(table[base+28:base+32], uint32(len(payloads[i])))
	}
	encryptedTable = codec.XorStream(table, uint16(xorSeed&0xFFFF))
	copy(out[32:32+len(table)], encryptedTable)

	out = append(out, payloadBlob...)
	return out
}

func TestOpenAndLoadNoneMethod(t *testing.T) {
	data := buildLibrary(t, 0xBEEF,
		[]string{"FIRST", "SECOND"},
		[][]byte{[]byte("hello"), []byte("world!")},
		[]int16{0x000, 0x000},
	)

	lib, err := Open(data, DefaultOpenOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if lib.EntryCount() != 2 {
		t.Fatalf("EntryCount = %d, want 2", lib.EntryCount())
	}

	id, ok := lib.Find("second")
	if !ok {
		t.Fatalf("Find(second) not found")
	}
	payload, err := lib.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(payload) != "world!" {
		t.Fatalf("got %q", payload)
	}
}

func TestOpenAndLoadXorOnlyMethod(t *testing.T) {
	plain := []byte("secret payload")
	key := uint16(0) // entry index 0 -> key16 = 0 under identity permutation
	encrypted := codec.XorStream(plain, key)

	data := buildLibrary(t, 0x1111,
		[]string{"CRYPT"},
		[][]byte{encrypted},
		[]int16{0x020},
	)

	lib, err := Open(data, DefaultOpenOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, ok := lib.Find("CRYPT")
	if !ok {
		t.Fatalf("Find(CRYPT) not found")
	}
	out, err := lib.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(out) != string(plain) {
		t.Fatalf("got %q want %q", out, plain)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	data := make([]byte, 32)
	copy(data[0:2], "XX")
	if _, err := Open(data, DefaultOpenOptions()); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}
