package unit

import (
	"encoding/binary"
	"testing"
)

func buildDat(archiveName, modelKey string, flags uint32) []byte {
	data := make([]byte, minSize)
	binary.LittleEndian.PutUint32(data[0:4], magic)
	binary.LittleEndian.PutUint32(data[4:8], flags)
	copy(data[0x08:0x28], archiveName)
	copy(data[0x28:0x48], modelKey)
	return data
}

func TestParseValidDat(t *testing.T) {
	data := buildDat("UNITS.RLB", "tut1_p", 7)
	dat, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if dat.ArchiveName != "UNITS.RLB" {
		t.Fatalf("ArchiveName = %q", dat.ArchiveName)
	}
	if dat.ModelKey != "tut1_p" {
		t.Fatalf("ModelKey = %q", dat.ModelKey)
	}
	if dat.Flags != 7 {
		t.Fatalf("Flags = %d, want 7", dat.Flags)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := buildDat("A.RLB", "key", 0)
	binary.LittleEndian.PutUint32(data[0:4], 0)
	if _, err := Parse(data); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestParseRejectsEmptyArchiveName(t *testing.T) {
	data := buildDat("", "key", 0)
	if _, err := Parse(data); err == nil {
		t.Fatalf("expected error for empty archive name")
	}
}

func TestParseRejectsEmptyModelKey(t *testing.T) {
	data := buildDat("A.RLB", "", 0)
	if _, err := Parse(data); err == nil {
		t.Fatalf("expected error for empty model key")
	}
}

func TestParseRejectsTooSmall(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for too-small payload")
	}
}
