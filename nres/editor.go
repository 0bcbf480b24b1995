package nres

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// entryData is either a borrowed range into the editor's source bytes
// or bytes the caller supplied directly; replacing or adding an entry
// never copies the source archive, only the touched entry.
type entryData struct {
	borrowedStart, borrowedEnd int
	modified                   []byte
	isModified                 bool
}

func (d entryData) slice(source []byte) []byte {
	if d.isModified {
		return d.modified
	}
	return source[d.borrowedStart:d.borrowedEnd]
}

type editableEntry struct {
	meta    EntryMeta
	nameRaw [nameFieldSize]byte
	data    entryData
}

// Editor supports building a new version of an NRes archive by
// adding, replacing, and removing entries, then committing the result
// atomically.
type Editor struct {
	path    string
	source  []byte
	entries []editableEntry
}

// EditPath opens path for editing. The existing archive must not be in
// raw mode.
func EditPath(path string) (*Editor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nres: read %s: %w", path, err)
	}
	entries, err := parseArchive(data, false)
	if err != nil {
		return nil, err
	}

	editable := make([]editableEntry, 0, len(entries))
	for _, e := range entries {
		start, end, err := checkedRange(e.meta.DataOffset, e.meta.DataSize, len(data))
		if err != nil {
			return nil, err
		}
		editable = append(editable, editableEntry{
			meta:    e.meta,
			nameRaw: e.nameRaw,
			data:    entryData{borrowedStart: start, borrowedEnd: end},
		})
	}

	return &Editor{path: path, source: data, entries: editable}, nil
}

// Entries returns the current entry list, reflecting any edits made
// so far but not yet committed.
func (e *Editor) Entries() []struct {
	ID   EntryID
	Meta EntryMeta
} {
	out := make([]struct {
		ID   EntryID
		Meta EntryMeta
	}, len(e.entries))
	for i, entry := range e.entries {
		out[i].ID = EntryID(i)
		out[i].Meta = entry.meta
	}
	return out
}

// NewEntry describes an entry to add via Editor.Add.
type NewEntry struct {
	Kind, Attr1, Attr2, Attr3 uint32
	Name                      string
	Data                      []byte
}

// Add appends a new entry, returning its id.
func (e *Editor) Add(entry NewEntry) (EntryID, error) {
	nameRaw, err := encodeNameField(entry.Name)
	if err != nil {
		return 0, err
	}
	id := EntryID(len(e.entries))
	e.entries = append(e.entries, editableEntry{
		meta: EntryMeta{
			Kind:     entry.Kind,
			Attr1:    entry.Attr1,
			Attr2:    entry.Attr2,
			Attr3:    entry.Attr3,
			Name:     decodeName(entryNameBytes(nameRaw)),
			DataSize: uint32(len(entry.Data)),
		},
		nameRaw: nameRaw,
		data:    entryData{modified: append([]byte(nil), entry.Data...), isModified: true},
	})
	return id, nil
}

// ReplaceData swaps id's payload for data.
func (e *Editor) ReplaceData(id EntryID, data []byte) error {
	idx := int(id)
	if idx < 0 || idx >= len(e.entries) {
		return fmt.Errorf("nres: entry id %d out of range (count %d)", id, len(e.entries))
	}
	e.entries[idx].meta.DataSize = uint32(len(data))
	e.entries[idx].data = entryData{modified: append([]byte(nil), data...), isModified: true}
	return nil
}

// Remove deletes id. Later ids shift down by one, exactly as a Vec
// remove would.
func (e *Editor) Remove(id EntryID) error {
	idx := int(id)
	if idx < 0 || idx >= len(e.entries) {
		return fmt.Errorf("nres: entry id %d out of range (count %d)", id, len(e.entries))
	}
	e.entries = append(e.entries[:idx], e.entries[idx+1:]...)
	return nil
}

// Commit serializes the edited entry set to a new archive and
// atomically replaces the file at the editor's path.
func (e *Editor) Commit() error {
	out := make([]byte, headerSize, headerSize+len(e.source)+len(e.entries)*(8+directoryRow))

	for i := range e.entries {
		entry := &e.entries[i]
		entry.meta.DataOffset = uint64(len(out))
		data := entry.data.slice(e.source)
		entry.meta.DataSize = uint32(len(data))
		out = append(out, data...)

		padding := (8 - len(out)%8) % 8
		if padding > 0 {
			out = append(out, make([]byte, padding)...)
		}
	}

	sortOrder := make([]int, len(e.entries))
	for i := range sortOrder {
		sortOrder[i] = i
	}
	sort.SliceStable(sortOrder, func(i, j int) bool {
		a, b := sortOrder[i], sortOrder[j]
		return cmpNameCaseInsensitive(entryNameBytes(e.entries[a].nameRaw), entryNameBytes(e.entries[b].nameRaw)) < 0
	})
	for idx := range sortOrder {
		e.entries[idx].meta.SortIndex = uint32(sortOrder[idx])
	}

	for _, entry := range e.entries {
		appendU32(&out, entry.meta.Kind)
		appendU32(&out, entry.meta.Attr1)
		appendU32(&out, entry.meta.Attr2)
		appendU32(&out, entry.meta.DataSize)
		appendU32(&out, entry.meta.Attr3)
		out = append(out, entry.nameRaw[:]...)
		appendU32(&out, uint32(entry.meta.DataOffset))
		appendU32(&out, entry.meta.SortIndex)
	}

	copy(out[0:4], magic)
	appendU32At(out, 4, version)
	appendU32At(out, 8, uint32(len(e.entries)))
	appendU32At(out, 12, uint32(len(out)))

	if err := writeAtomic(e.path, out); err != nil {
		return err
	}
	return nil
}

func encodeNameField(name string) ([nameFieldSize]byte, error) {
	var out [nameFieldSize]byte
	b := []byte(name)
	for _, c := range b {
		if c == 0 {
			return out, fmt.Errorf("nres: entry name contains a NUL byte")
		}
	}
	if len(b) > maxNameLen {
		return out, fmt.Errorf("nres: entry name length %d exceeds %d", len(b), maxNameLen)
	}
	copy(out[:], b)
	return out, nil
}

func appendU32(out *[]byte, v uint32) {
	*out = append(*out, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendU32At(out []byte, offset int, v uint32) {
	out[offset] = byte(v)
	out[offset+1] = byte(v >> 8)
	out[offset+2] = byte(v >> 16)
	out[offset+3] = byte(v >> 24)
}

// writeAtomic writes content to a uniquely-named sibling temp file and
// renames it over path, so a crash or a concurrent reader never
// observes a half-written archive. Collisions are vanishingly
// unlikely with a random UUIDv4 suffix, unlike a PID- or counter-based
// name, which multiple editors in the same directory could race on.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("nres: create temp file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("nres: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("nres: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("nres: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("nres: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// LogSummary formats a one-line human-readable description of an
// archive, for the progress logging callers do around long batch
// operations (mirrors the teacher's manifest build logging style).
func LogSummary(a *Archive) string {
	var total uint64
	for _, e := range a.entries {
		total += uint64(e.meta.DataSize)
	}
	return fmt.Sprintf("%d entries, %s", len(a.entries), humanize.Bytes(total))
}
