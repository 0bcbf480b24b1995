// Package nres reads and rewrites NRes resource containers: a flat
// archive format with a 16-byte header, raw entry payloads, and a
// fixed-size directory at the tail of the file.
package nres

import (
	"encoding/binary"
	"fmt"
)

const (
	magic         = "NRes"
	version       = 0x100
	headerSize    = 16
	directoryRow  = 64
	nameFieldSize = 36
	maxNameLen    = 35
)

// OpenOptions controls how Open interprets the archive bytes.
type OpenOptions struct {
	// RawMode treats the entire input as a single synthetic entry
	// named "RAW" instead of parsing an NRes header, for archives that
	// turn out not to be containers at all.
	RawMode bool
}

// EntryID identifies an entry within an opened Archive. IDs are stable
// for the lifetime of the Archive they came from but are not portable
// across archives.
type EntryID uint32

// EntryMeta describes one directory record.
type EntryMeta struct {
	Kind       uint32
	Attr1      uint32
	Attr2      uint32
	Attr3      uint32
	Name       string
	DataOffset uint64
	DataSize   uint32
	SortIndex  uint32
}

type entryRecord struct {
	meta    EntryMeta
	nameRaw [nameFieldSize]byte
}

// Archive is a parsed, read-only view over NRes container bytes.
type Archive struct {
	bytes   []byte
	entries []entryRecord
	rawMode bool
}

// Open parses archive bytes per opts.
func Open(data []byte, opts OpenOptions) (*Archive, error) {
	entries, err := parseArchive(data, opts.RawMode)
	if err != nil {
		return nil, err
	}
	return &Archive{bytes: data, entries: entries, rawMode: opts.RawMode}, nil
}

// EntryCount returns the number of entries in the archive.
func (a *Archive) EntryCount() int { return len(a.entries) }

// Entries returns every entry's id and metadata, in directory-storage
// order (not sorted order).
func (a *Archive) Entries() []struct {
	ID   EntryID
	Meta EntryMeta
} {
	out := make([]struct {
		ID   EntryID
		Meta EntryMeta
	}, len(a.entries))
	for i, e := range a.entries {
		out[i].ID = EntryID(i)
		out[i].Meta = e.meta
	}
	return out
}

// Get returns the metadata for id, or false if id is out of range.
func (a *Archive) Get(id EntryID) (EntryMeta, bool) {
	idx := int(id)
	if idx < 0 || idx >= len(a.entries) {
		return EntryMeta{}, false
	}
	return a.entries[idx].meta, true
}

// Find looks up an entry by case-insensitive name, using the stored
// sort_index permutation for a binary search with a linear fallback
// when the permutation looks inconsistent (as the original archive
// format allows raw mode and hand-edited archives to be).
func (a *Archive) Find(name string) (EntryID, bool) {
	if len(a.entries) == 0 {
		return 0, false
	}

	if !a.rawMode {
		query := []byte(name)
		low, high := 0, len(a.entries)
		for low < high {
			mid := low + (high-low)/2
			targetIdx := int(a.entries[mid].meta.SortIndex)
			if targetIdx < 0 || targetIdx >= len(a.entries) {
				break
			}
			cmp := cmpNameCaseInsensitive(query, entryNameBytes(a.entries[targetIdx].nameRaw))
			switch {
			case cmp < 0:
				high = mid
			case cmp > 0:
				low = mid + 1
			default:
				return EntryID(targetIdx), true
			}
		}
	}

	query := []byte(name)
	for idx, e := range a.entries {
		if cmpNameCaseInsensitive(query, entryNameBytes(e.nameRaw)) == 0 {
			return EntryID(idx), true
		}
	}
	return 0, false
}

// Read returns the raw payload bytes for id. The returned slice
// aliases the archive's backing storage; callers must not mutate it.
func (a *Archive) Read(id EntryID) ([]byte, error) {
	start, end, err := a.entryRange(id)
	if err != nil {
		return nil, err
	}
	return a.bytes[start:end], nil
}

func (a *Archive) entryRange(id EntryID) (int, int, error) {
	idx := int(id)
	if idx < 0 || idx >= len(a.entries) {
		return 0, 0, fmt.Errorf("nres: entry id %d out of range (count %d)", id, len(a.entries))
	}
	meta := a.entries[idx].meta
	return checkedRange(meta.DataOffset, meta.DataSize, len(a.bytes))
}

func checkedRange(offset uint64, size uint32, dataLen int) (int, int, error) {
	start := int(offset)
	if uint64(start) != offset {
		return 0, 0, fmt.Errorf("nres: offset %d overflows int", offset)
	}
	end := start + int(size)
	if end > dataLen || end < start {
		return 0, 0, fmt.Errorf("nres: range [%d, %d) exceeds archive length %d", start, end, dataLen)
	}
	return start, end, nil
}

func parseArchive(data []byte, rawMode bool) ([]entryRecord, error) {
	if rawMode {
		var nameRaw [nameFieldSize]byte
		copy(nameRaw[:], "RAW")
		return []entryRecord{{
			meta: EntryMeta{
				Name:     "RAW",
				DataSize: uint32(len(data)),
			},
			nameRaw: nameRaw,
		}}, nil
	}

	if len(data) < headerSize {
		return nil, fmt.Errorf("nres: file too small for header (%d bytes)", len(data))
	}
	if string(data[0:4]) != magic {
		return nil, fmt.Errorf("nres: bad magic %q", data[0:4])
	}
	ver := binary.LittleEndian.Uint32(data[4:8])
	if ver != version {
		return nil, fmt.Errorf("nres: unsupported version 0x%X", ver)
	}

	entryCountSigned := int32(binary.LittleEndian.Uint32(data[8:12]))
	if entryCountSigned < 0 {
		return nil, fmt.Errorf("nres: negative entry count %d", entryCountSigned)
	}
	entryCount := int(entryCountSigned)

	totalSize := binary.LittleEndian.Uint32(data[12:16])
	if int(totalSize) != len(data) || uint32(len(data)) != totalSize {
		return nil, fmt.Errorf("nres: header total_size %d does not match actual length %d", totalSize, len(data))
	}

	directoryLen := entryCount * directoryRow
	if directoryLen/directoryRow != entryCount {
		return nil, fmt.Errorf("nres: entry count %d overflows directory size computation", entryCount)
	}
	directoryOffset := int(totalSize) - directoryLen
	if directoryOffset < headerSize || directoryOffset+directoryLen > len(data) {
		return nil, fmt.Errorf("nres: directory [%d, +%d) out of bounds for file of length %d", directoryOffset, directoryLen, len(data))
	}

	entries := make([]entryRecord, 0, entryCount)
	for index := 0; index < entryCount; index++ {
		base := directoryOffset + index*directoryRow

		kind := binary.LittleEndian.Uint32(data[base : base+4])
		attr1 := binary.LittleEndian.Uint32(data[base+4 : base+8])
		attr2 := binary.LittleEndian.Uint32(data[base+8 : base+12])
		dataSize := binary.LittleEndian.Uint32(data[base+12 : base+16])
		attr3 := binary.LittleEndian.Uint32(data[base+16 : base+20])

		var nameRaw [nameFieldSize]byte
		copy(nameRaw[:], data[base+20:base+56])

		nameBytes := entryNameBytes(nameRaw)
		if len(nameBytes) > maxNameLen {
			return nil, fmt.Errorf("nres: entry %d name length %d exceeds %d", index, len(nameBytes), maxNameLen)
		}

		dataOffset := uint64(binary.LittleEndian.Uint32(data[base+56 : base+60]))
		sortIndex := binary.LittleEndian.Uint32(data[base+60 : base+64])

		end := dataOffset + uint64(dataSize)
		if dataOffset < headerSize || end > uint64(directoryOffset) {
			return nil, fmt.Errorf("nres: entry %d data range [%d, %d) out of bounds (directory at %d)", index, dataOffset, end, directoryOffset)
		}

		entries = append(entries, entryRecord{
			meta: EntryMeta{
				Kind:       kind,
				Attr1:      attr1,
				Attr2:      attr2,
				Attr3:      attr3,
				Name:       decodeName(nameBytes),
				DataOffset: dataOffset,
				DataSize:   dataSize,
				SortIndex:  sortIndex,
			},
			nameRaw: nameRaw,
		})
	}

	return entries, nil
}

func entryNameBytes(raw [nameFieldSize]byte) []byte {
	for i, b := range raw {
		if b == 0 {
			return raw[:i]
		}
	}
	return raw[:]
}

// decodeName maps each raw byte to its Latin-1 code point, matching
// the original format's one-byte-per-char name encoding (entry names
// are drawn from a restricted ASCII/Latin-1 set in practice).
func decodeName(name []byte) string {
	runes := make([]rune, len(name))
	for i, b := range name {
		runes[i] = rune(b)
	}
	return string(runes)
}

func cmpNameCaseInsensitive(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		left := asciiLower(a[i])
		right := asciiLower(b[i])
		if left != right {
			if left < right {
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

func asciiLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}
