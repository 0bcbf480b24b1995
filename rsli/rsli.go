// Package rsli reads RsLi resource libraries: an XOR-encrypted
// directory, per-entry packing methods (none, XOR, LZSS and
// LZSS+Huffman each with or without a fused XOR layer, and Deflate
// without one), and an
// optional trailing media-overlay marker.
package rsli

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ernie/parkan-core/codec"
)

const (
	headerSize     = 32
	directoryRow   = 32
	nameFieldSize  = 12
	presortedMagic = 0xABBA
	methodMask     = 0x1E0
	deflateRaw     = 0x100
)

// OpenOptions controls compatibility toggles for archives that don't
// strictly follow the canonical format.
type OpenOptions struct {
	// AllowAOTrailer enables detection of a trailing 6-byte "AO" media
	// overlay marker; when present, every entry's data offset is
	// relative to the overlay value rather than to byte 0.
	AllowAOTrailer bool
	// AllowDeflateEOFPlusOne tolerates a Deflate entry whose declared
	// packed_size claims one byte past the end of the file, trimming
	// the available slice by one byte instead of failing.
	AllowDeflateEOFPlusOne bool
}

// DefaultOpenOptions matches the original format's default behavior.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{AllowAOTrailer: true, AllowDeflateEOFPlusOne: true}
}

// EntryID identifies an entry within a Library.
type EntryID uint32

// EntryMeta describes one directory record, after XOR-decryption.
type EntryMeta struct {
	Name         string
	Flags        int32
	Method       codec.Method
	DataOffset   uint64
	PackedSize   uint32
	UnpackedSize uint32
}

type entryRecord struct {
	meta                EntryMeta
	nameRaw             [nameFieldSize]byte
	sortToOriginal      int16
	key16               uint16
	packedSizeAvailable int
	effectiveOffset     int
}

// AOTrailer describes the optional 6-byte media overlay marker some
// archives carry at the very end of the file.
type AOTrailer struct {
	Raw     [6]byte
	Overlay uint32
}

// Library is a parsed, read-only RsLi archive.
type Library struct {
	bytes     []byte
	entries   []entryRecord
	aoTrailer *AOTrailer
}

// Open parses archive bytes per opts.
func Open(data []byte, opts OpenOptions) (*Library, error) {
	return parseLibrary(data, opts)
}

// EntryCount returns the number of entries.
func (l *Library) EntryCount() int { return len(l.entries) }

// Get returns id's metadata.
func (l *Library) Get(id EntryID) (EntryMeta, bool) {
	idx := int(id)
	if idx < 0 || idx >= len(l.entries) {
		return EntryMeta{}, false
	}
	return l.entries[idx].meta, true
}

// Find looks up an entry by case-sensitive, uppercased-on-compare C
// string name (matching the original format's comparison, which is a
// byte compare, not a Unicode-aware one), binary searching via the
// sort_to_original permutation with a linear fallback.
func (l *Library) Find(name string) (EntryID, bool) {
	if len(l.entries) == 0 {
		return 0, false
	}

	query := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 32
		}
		query[i] = c
	}

	low, high := 0, len(l.entries)
	for low < high {
		mid := low + (high-low)/2
		idx := int(l.entries[mid].sortToOriginal)
		if idx < 0 || idx >= len(l.entries) {
			break
		}
		cmp := cmpCString(query, cNameBytes(l.entries[idx].nameRaw))
		switch {
		case cmp < 0:
			high = mid
		case cmp > 0:
			low = mid + 1
		default:
			return EntryID(idx), true
		}
	}

	for idx, e := range l.entries {
		if cmpCString(query, cNameBytes(e.nameRaw)) == 0 {
			return EntryID(idx), true
		}
	}
	return 0, false
}

// Load returns the fully decoded payload for id.
func (l *Library) Load(id EntryID) ([]byte, error) {
	entry, err := l.entryByID(id)
	if err != nil {
		return nil, err
	}
	packed, err := l.packedSlice(entry)
	if err != nil {
		return nil, err
	}
	return decodePayload(packed, entry.meta.Method, entry.key16, int(entry.meta.UnpackedSize))
}

// LoadPacked returns the still-packed payload bytes for id, along with
// its metadata, for callers that want to cache or re-distribute the
// compressed form without paying decode cost up front.
func (l *Library) LoadPacked(id EntryID) (EntryMeta, []byte, error) {
	entry, err := l.entryByID(id)
	if err != nil {
		return EntryMeta{}, nil, err
	}
	packed, err := l.packedSlice(entry)
	if err != nil {
		return EntryMeta{}, nil, err
	}
	out := make([]byte, len(packed))
	copy(out, packed)
	return entry.meta, out, nil
}

// Unpack decodes previously-extracted packed bytes for meta, resolving
// the XOR key by matching meta against the library's own directory
// (meta alone does not carry the key).
func (l *Library) Unpack(meta EntryMeta, packed []byte) ([]byte, error) {
	key := l.resolveKeyForMeta(meta)
	if codec.NeedsXorKey(meta.Method) && key == nil {
		return nil, fmt.Errorf("rsli: cannot resolve xor key for packed resource %q", meta.Name)
	}
	var k uint16
	if key != nil {
		k = *key
	}
	return decodePayload(packed, meta.Method, k, int(meta.UnpackedSize))
}

func (l *Library) entryByID(id EntryID) (*entryRecord, error) {
	idx := int(id)
	if idx < 0 || idx >= len(l.entries) {
		return nil, fmt.Errorf("rsli: entry id %d out of range (count %d)", id, len(l.entries))
	}
	return &l.entries[idx], nil
}

func (l *Library) packedSlice(entry *entryRecord) ([]byte, error) {
	start := entry.effectiveOffset
	end := start + entry.packedSizeAvailable
	if end > len(l.bytes) || end < start {
		return nil, fmt.Errorf("rsli: entry data range [%d, %d) exceeds archive length %d", start, end, len(l.bytes))
	}
	return l.bytes[start:end], nil
}

func (l *Library) resolveKeyForMeta(meta EntryMeta) *uint16 {
	for _, e := range l.entries {
		if e.meta.Name == meta.Name && e.meta.Flags == meta.Flags && e.meta.DataOffset == meta.DataOffset &&
			e.meta.PackedSize == meta.PackedSize && e.meta.UnpackedSize == meta.UnpackedSize && e.meta.Method == meta.Method {
			k := e.key16
			return &k
		}
	}
	return nil
}

func decodePayload(packed []byte, method codec.Method, key16 uint16, unpackedSize int) ([]byte, error) {
	var keyPtr *uint16
	if codec.NeedsXorKey(method) {
		keyPtr = &key16
	}
	return codec.Decode(packed, method, keyPtr, unpackedSize)
}

func parseLibrary(data []byte, opts OpenOptions) (*Library, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("rsli: file too small for header (%d bytes)", len(data))
	}

	if string(data[0:2]) != "NL" {
		return nil, fmt.Errorf("rsli: bad magic %q", data[0:2])
	}
	ver := data[3]
	if ver != 0x01 {
		return nil, fmt.Errorf("rsli: unsupported version 0x%X", ver)
	}

	entryCountSigned := int16(binary.LittleEndian.Uint16(data[4:6]))
	if entryCountSigned < 0 {
		return nil, fmt.Errorf("rsli: negative entry count %d", entryCountSigned)
	}
	count := int(entryCountSigned)

	presortedFlag := binary.LittleEndian.Uint16(data[14:16])
	xorSeed := binary.LittleEndian.Uint32(data[20:24])

	tableLen := count * directoryRow
	tableOffset := headerSize
	tableEnd := tableOffset + tableLen
	if tableEnd > len(data) {
		return nil, fmt.Errorf("rsli: entry table [%d, +%d) exceeds file length %d", tableOffset, tableLen, len(data))
	}

	tablePlain := codec.XorStream(data[tableOffset:tableEnd], uint16(xorSeed&0xFFFF))

	overlay, aoTrailer, err := parseAOTrailer(data, opts.AllowAOTrailer)
	if err != nil {
		return nil, err
	}

	entries := make([]entryRecord, 0, count)
	for idx := 0; idx < count; idx++ {
		row := tablePlain[idx*32 : (idx+1)*32]

		var nameRaw [nameFieldSize]byte
		copy(nameRaw[:], row[0:12])

		flagsSigned := int16(binary.LittleEndian.Uint16(row[16:18]))
		sortToOriginal := int16(binary.LittleEndian.Uint16(row[18:20]))
		unpackedSize := binary.LittleEndian.Uint32(row[20:24])
		dataOffsetRaw := binary.LittleEndian.Uint32(row[24:28])
		packedSizeDeclared := binary.LittleEndian.Uint32(row[28:32])

		methodRaw := uint32(uint16(flagsSigned)) & methodMask
		method := codec.MethodFromFlags(int32(methodRaw))

		effectiveOffset64 := uint64(dataOffsetRaw) + uint64(overlay)
		effectiveOffset := int(effectiveOffset64)

		packedSizeAvailable := int(packedSizeDeclared)
		end := effectiveOffset64 + uint64(packedSizeDeclared)
		fileLen := uint64(len(data))

		if end > fileLen {
			if methodRaw == deflateRaw && end == fileLen+1 {
				if opts.AllowDeflateEOFPlusOne {
					packedSizeAvailable--
				} else {
					return nil, fmt.Errorf("rsli: entry %d rejected deflate EOF+1 quirk (allow_deflate_eof_plus_one=false)", idx)
				}
			} else {
				return nil, fmt.Errorf("rsli: entry %d data range [%d, +%d) exceeds file length %d", idx, effectiveOffset64, packedSizeDeclared, fileLen)
			}
		}

		availableEnd := effectiveOffset + packedSizeAvailable
		if availableEnd > len(data) {
			return nil, fmt.Errorf("rsli: entry %d available data range exceeds file length %d", idx, len(data))
		}

		name := decodeCName(cNameBytes(nameRaw))

		entries = append(entries, entryRecord{
			meta: EntryMeta{
				Name:         name,
				Flags:        int32(flagsSigned),
				Method:       method,
				DataOffset:   effectiveOffset64,
				PackedSize:   packedSizeDeclared,
				UnpackedSize: unpackedSize,
			},
			nameRaw:             nameRaw,
			sortToOriginal:      sortToOriginal,
			key16:               uint16(sortToOriginal),
			packedSizeAvailable: packedSizeAvailable,
			effectiveOffset:     effectiveOffset,
		})
	}

	if presortedFlag == presortedMagic {
		seen := make([]bool, count)
		for _, e := range entries {
			idx := int(e.sortToOriginal)
			if idx < 0 || idx >= count {
				return nil, fmt.Errorf("rsli: sort_to_original is not a valid permutation index")
			}
			if seen[idx] {
				return nil, fmt.Errorf("rsli: sort_to_original is not a permutation")
			}
			seen[idx] = true
		}
		for _, ok := range seen {
			if !ok {
				return nil, fmt.Errorf("rsli: sort_to_original is not a permutation")
			}
		}
	} else {
		sorted := make([]int, count)
		for i := range sorted {
			sorted[i] = i
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			return cmpCString(cNameBytes(entries[sorted[i]].nameRaw), cNameBytes(entries[sorted[j]].nameRaw)) < 0
		})
		for idx := range entries {
			entries[idx].sortToOriginal = int16(sorted[idx])
			entries[idx].key16 = uint16(entries[idx].sortToOriginal)
		}
	}

	return &Library{bytes: data, entries: entries, aoTrailer: aoTrailer}, nil
}

func parseAOTrailer(data []byte, allow bool) (uint32, *AOTrailer, error) {
	if !allow || len(data) < 6 {
		return 0, nil, nil
	}
	if string(data[len(data)-6:len(data)-4]) != "AO" {
		return 0, nil, nil
	}

	var trailer [6]byte
	copy(trailer[:], data[len(data)-6:])
	overlay := binary.LittleEndian.Uint32(trailer[2:6])

	if uint64(overlay) > uint64(len(data)) {
		return 0, nil, fmt.Errorf("rsli: media overlay offset %d exceeds file length %d", overlay, len(data))
	}
	return overlay, &AOTrailer{Raw: trailer, Overlay: overlay}, nil
}

func cNameBytes(raw [nameFieldSize]byte) []byte {
	for i, b := range raw {
		if b == 0 {
			return raw[:i]
		}
	}
	return raw[:]
}

func decodeCName(name []byte) string {
	runes := make([]rune, len(name))
	for i, b := range name {
		runes[i] = rune(b)
	}
	return string(runes)
}

func cmpCString(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
