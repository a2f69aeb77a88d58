// Package imageproc prepares downloaded images for vision analysis:
// resize to a bounded dimension, flatten to RGB JPEG, base64 encode.
// Failures are soft; a bad image is skipped, never fatal.
package imageproc

import (
	"encoding/base64"
	"image"
	"log"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/mfreitag/socialosint/internal/model"
)

const (
	// MaxDimension bounds the longest edge of a preprocessed image.
	MaxDimension = 1536
	// JPEGQuality is the re-encode quality.
	JPEGQuality = 85
)

// Preprocess decodes an image, scales it down to MaxDimension if needed,
// and writes an RGB JPEG next to the original with a .processed.jpg
// suffix. Returns "" when the file is missing, not a supported image, or
// undecodable. The caller owns cleanup of the returned file.
func Preprocess(path string) string {
	if _, err := os.Stat(path); err != nil {
		log.Printf("Image file does not exist: %s", path)
		return ""
	}
	if !model.IsImagePath(path) {
		log.Printf("Unsupported image format: %s", path)
		return ""
	}

	img, err := imaging.Open(path)
	if err != nil {
		log.Printf("Cannot decode image %s: %v", path, err)
		return ""
	}

	bounds := img.Bounds()
	if bounds.Dx() > MaxDimension || bounds.Dy() > MaxDimension {
		img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	}

	// Flatten transparency onto white so the JPEG encode never produces
	// black backgrounds.
	flat := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), image.White.C)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	outPath := processedPath(path)
	if err := imaging.Save(flat, outPath, imaging.JPEGQuality(JPEGQuality)); err != nil {
		log.Printf("Failed to save preprocessed image for %s: %v", path, err)
		return ""
	}
	return outPath
}

// EncodeBase64 reads a file and returns its base64 encoding, or "" on
// failure.
func EncodeBase64(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Failed to read image %s for encoding: %v", path, err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Cleanup removes a preprocessed temp file, ignoring errors.
func Cleanup(processed string) {
	if processed != "" && strings.HasSuffix(processed, ".processed.jpg") {
		os.Remove(processed)
	}
}

func processedPath(path string) string {
	if i := strings.LastIndex(path, "."); i > strings.LastIndex(path, string(os.PathSeparator)) {
		return path[:i] + ".processed.jpg"
	}
	return path + ".processed.jpg"
}
