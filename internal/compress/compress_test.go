package compress

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func encodeTestImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestBoundShrinksOversizedImage(t *testing.T) {
	data := encodeTestImage(t, 2048, 3072)

	res := Bound(data, 1024, 1536, 90)
	if res.Kind != Compressed {
		t.Fatal("Expected compressed result for valid input")
	}

	img, err := imaging.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("Result did not decode: %v", err)
	}
	if img.Bounds().Dx() > 1024 || img.Bounds().Dy() > 1536 {
		t.Errorf("Dimensions not bounded: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestBoundKeepsSmallDimensions(t *testing.T) {
	data := encodeTestImage(t, 400, 600)

	res := Bound(data, 1024, 1536, 90)
	if res.Kind != Compressed {
		t.Fatal("Expected compressed result")
	}

	img, err := imaging.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("Result did not decode: %v", err)
	}
	if img.Bounds().Dx() != 400 || img.Bounds().Dy() != 600 {
		t.Errorf("Small image must not be scaled up, got %dx%d",
			img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestBoundFallsBackOnGarbage(t *testing.T) {
	garbage := []byte("definitely not an image")

	res := Bound(garbage, 1024, 1536, 90)
	if res.Kind != Original {
		t.Error("Expected original fallback for undecodable input")
	}
	if !bytes.Equal(res.Data, garbage) {
		t.Error("Fallback must return the input unmodified")
	}
}

func TestBoundFallsBackOnBadParams(t *testing.T) {
	data := encodeTestImage(t, 100, 100)

	for _, tc := range []struct {
		name                 string
		maxW, maxH, quality int
	}{
		{"zero width", 0, 100, 90},
		{"zero height", 100, 0, 90},
		{"zero quality", 100, 100, 0},
		{"quality above range", 100, 100, 101},
	} {
		res := Bound(data, tc.maxW, tc.maxH, tc.quality)
		if res.Kind != Original {
			t.Errorf("%s: expected original fallback", tc.name)
		}
	}
}
