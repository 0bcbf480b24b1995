package splash

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

func writeBMP(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatalf("bmp.Encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadBMP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "splash.bmp")
	writeBMP(t, path)

	img, err := Load(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 4 || bounds.Dy() != 4 {
		t.Fatalf("got %dx%d, want 4x4", bounds.Dx(), bounds.Dy())
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "splash.png")
	if err := os.WriteFile(path, []byte("not a real image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unrecognized extension")
	}
}

func TestFindBeside(t *testing.T) {
	dir := t.TempDir()
	missionPath := filepath.Join(dir, "data.tma")
	if err := os.WriteFile(missionPath, []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}
	splashPath := filepath.Join(dir, "data.bmp")
	writeBMP(t, splashPath)

	got, ok := FindBeside(missionPath, "data", "preview")
	if !ok {
		t.Fatalf("expected to find a loose splash image")
	}
	if got != splashPath {
		t.Fatalf("got %q, want %q", got, splashPath)
	}
}

func TestFindBesideMiss(t *testing.T) {
	dir := t.TempDir()
	missionPath := filepath.Join(dir, "data.tma")
	if err := os.WriteFile(missionPath, []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := FindBeside(missionPath, "data", "preview"); ok {
		t.Fatalf("expected no match when no loose image exists")
	}
}
