package shotdiff

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCompareIdenticalImagesHaveNoDiff(t *testing.T) {
	t.Parallel()

	a := encodePNG(t, solidImage(10, 10, color.White))
	n, diffPNG, err := Compare(a, a)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("got %d differing pixels, want 0", n)
	}
	if len(diffPNG) == 0 {
		t.Fatal("expected a non-empty diff image")
	}
}

func TestCompareDetectsDifference(t *testing.T) {
	t.Parallel()

	a := encodePNG(t, solidImage(10, 10, color.White))
	b := encodePNG(t, solidImage(10, 10, color.Black))

	n, _, err := Compare(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected a nonzero pixel diff between white and black images")
	}
}

func TestCompareRejectsUndecodableInput(t *testing.T) {
	t.Parallel()

	if _, _, err := Compare([]byte("not an image"), []byte("also not an image")); err == nil {
		t.Fatal("expected an error for undecodable input")
	}
}
