package imageproc

import (
	"encoding/base64"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

func writeTestPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := imaging.New(w, h, image.White.C)
	path := filepath.Join(dir, "sample.png")
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}
	return path
}

func TestPreprocessResizesLargeImage(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, 4000, 1000)

	out := Preprocess(path)
	if out == "" {
		t.Fatal("expected a preprocessed path")
	}
	defer Cleanup(out)

	if !strings.HasSuffix(out, ".processed.jpg") {
		t.Errorf("unexpected output name: %q", out)
	}
	processed, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("output is not a decodable image: %v", err)
	}
	b := processed.Bounds()
	if b.Dx() > MaxDimension || b.Dy() > MaxDimension {
		t.Errorf("image not bounded: %dx%d", b.Dx(), b.Dy())
	}
}

func TestPreprocessKeepsSmallImageSize(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, 100, 80)

	out := Preprocess(path)
	if out == "" {
		t.Fatal("expected a preprocessed path")
	}
	defer Cleanup(out)

	processed, err := imaging.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	b := processed.Bounds()
	if b.Dx() != 100 || b.Dy() != 80 {
		t.Errorf("small image was resized to %dx%d", b.Dx(), b.Dy())
	}
}

func TestPreprocessRejectsNonImage(t *testing.T) {
	dir := t.TempDir()

	if out := Preprocess(filepath.Join(dir, "missing.jpg")); out != "" {
		t.Errorf("expected empty path for missing file, got %q", out)
	}

	video := filepath.Join(dir, "clip.mp4")
	os.WriteFile(video, []byte("not an image"), 0o644)
	if out := Preprocess(video); out != "" {
		t.Errorf("expected empty path for video extension, got %q", out)
	}

	garbage := filepath.Join(dir, "broken.jpg")
	os.WriteFile(garbage, []byte("jpeg but not really"), 0o644)
	if out := Preprocess(garbage); out != "" {
		t.Errorf("expected empty path for undecodable file, got %q", out)
	}
}

func TestEncodeBase64(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.jpg")
	os.WriteFile(path, []byte("bytes"), 0o644)

	got := EncodeBase64(path)
	want := base64.StdEncoding.EncodeToString([]byte("bytes"))
	if got != want {
		t.Errorf("encode mismatch: %q != %q", got, want)
	}

	if got := EncodeBase64(filepath.Join(dir, "missing.jpg")); got != "" {
		t.Errorf("expected empty string for missing file, got %q", got)
	}
}

func TestCleanupOnlyRemovesProcessedFiles(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "keep.jpg")
	os.WriteFile(orig, []byte("x"), 0o644)

	Cleanup(orig)
	if _, err := os.Stat(orig); err != nil {
		t.Error("cleanup removed a non-processed file")
	}

	proc := filepath.Join(dir, "keep.processed.jpg")
	os.WriteFile(proc, []byte("x"), 0o644)
	Cleanup(proc)
	if _, err := os.Stat(proc); !os.IsNotExist(err) {
		t.Error("cleanup did not remove the processed file")
	}
}
