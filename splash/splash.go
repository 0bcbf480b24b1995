// Package splash decodes loose preview-art images (mission splash
// screens) shipped beside data files as plain Targa or Windows
// Bitmap files, rather than inside an archive.
package splash

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
)

// Load decodes a loose .tga or .bmp image by its file extension.
func Load(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("splash: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tga":
		img, err := tga.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("splash: decode tga %s: %w", path, err)
		}
		return img, nil
	case ".bmp":
		img, err := bmp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("splash: decode bmp %s: %w", path, err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("splash: unrecognized preview image extension: %s", path)
	}
}

// FindBeside looks for a loose .tga or .bmp file sharing a base name
// with (or living next to) the given reference file — the mission's
// own file by convention — and returns its path if present.
func FindBeside(referencePath string, candidateNames ...string) (string, bool) {
	dir := filepath.Dir(referencePath)
	for _, name := range candidateNames {
		for _, ext := range []string{".tga", ".bmp", ".TGA", ".BMP"} {
			path := filepath.Join(dir, name+ext)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, true
			}
		}
	}
	return "", false
}
