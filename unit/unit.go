// Package unit parses the unit ".dat" descriptor: a tiny fixed-layout
// header naming the archive a unit's model lives in and the model's
// key inside that archive.
package unit

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ernie/parkan-core/internal/cp1251"
)

const (
	minSize = 0x48
	magic   = 0x0000_F0F1
)

// Dat is a parsed unit ".dat" descriptor.
type Dat struct {
	Magic       uint32
	Flags       uint32
	ArchiveName string
	ModelKey    string
}

// Parse validates and decodes a unit ".dat" payload.
func Parse(data []byte) (*Dat, error) {
	if len(data) < minSize {
		return nil, fmt.Errorf("unit: .dat is too small: %d bytes", len(data))
	}

	got := binary.LittleEndian.Uint32(data[0:4])
	if got != magic {
		return nil, fmt.Errorf("unit: invalid .dat magic: %#08x", got)
	}
	flags := binary.LittleEndian.Uint32(data[4:8])

	archiveName, err := decodeFixedCString(data[0x08:0x28])
	if err != nil {
		return nil, fmt.Errorf("unit: decode archive name: %w", err)
	}
	if archiveName == "" {
		return nil, fmt.Errorf("unit: .dat has empty archive name")
	}

	modelKey, err := decodeFixedCString(data[0x28:0x48])
	if err != nil {
		return nil, fmt.Errorf("unit: decode model key: %w", err)
	}
	if modelKey == "" {
		return nil, fmt.Errorf("unit: .dat has empty model key")
	}

	return &Dat{Magic: got, Flags: flags, ArchiveName: archiveName, ModelKey: modelKey}, nil
}

func decodeFixedCString(field []byte) (string, error) {
	used := len(field)
	for i, b := range field {
		if b == 0 {
			used = i
			break
		}
	}
	decoded, err := cp1251.Decode(field[:used])
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(decoded), nil
}
