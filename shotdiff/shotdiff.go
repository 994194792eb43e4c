// Package shotdiff compares two encoded images for visual regression
// testing, pixel-diffing with orisano/pixelmatch and rendering a diff PNG.
//
// Grounded directly on the teacher's screenshot_test.go matchPixel helper
// (image.Decode + pixelmatch.MatchPixel(img1, img2, pixelmatch.Threshold)),
// generalized from a test-only helper comparing a screenshot against a
// golden file on disk into a standalone function over two byte slices that
// also renders the diff, using pixelmatch.Match's draw.Image output
// parameter instead of MatchPixel's count-only form.
package shotdiff

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"github.com/orisano/pixelmatch"
)

// Threshold is the default pixelmatch sensitivity, matching the teacher's
// screenshot_test.go.
const Threshold = 0.1

// Compare decodes a and b, reports how many pixels differ under Threshold,
// and returns a PNG rendering highlighting the differing pixels. It errors
// if the two images decode to different formats or dimensions rather than
// silently diffing mismatched images.
func Compare(a, b []byte) (diffPixels int, diffPNG []byte, err error) {
	imgA, formatA, err := image.Decode(bytes.NewReader(a))
	if err != nil {
		return 0, nil, fmt.Errorf("decode first image: %w", err)
	}
	imgB, formatB, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return 0, nil, fmt.Errorf("decode second image: %w", err)
	}
	if formatA != formatB {
		return 0, nil, fmt.Errorf("image formats don't match: %s != %s", formatA, formatB)
	}
	if sizeA, sizeB := imgA.Bounds().Size(), imgB.Bounds().Size(); sizeA != sizeB {
		return 0, nil, fmt.Errorf("image dimensions don't match: %v != %v", sizeA, sizeB)
	}

	diffImg := image.NewRGBA(imgA.Bounds())
	diffPixels, err = pixelmatch.Match(imgA, imgB, diffImg, pixelmatch.Threshold(Threshold))
	if err != nil {
		return 0, nil, fmt.Errorf("pixelmatch: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, diffImg); err != nil {
		return 0, nil, fmt.Errorf("encode diff png: %w", err)
	}

	return diffPixels, buf.Bytes(), nil
}
