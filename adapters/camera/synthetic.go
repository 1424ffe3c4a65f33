package camera

import (
	"context"
	"errors"
	"image"
	"image/color"

	"github.com/tufuturo/totem/domain/repositories"
)

// SyntheticCamera produces a generated test pattern. Default device when no
// camera source is configured.
type SyntheticCamera struct {
	Width  int
	Height int

	// Denied simulates a permission denial for tests.
	Denied bool
}

var _ repositories.Camera = (*SyntheticCamera)(nil)

// NewSyntheticCamera creates a 1280×720 test-pattern device.
func NewSyntheticCamera() *SyntheticCamera {
	return &SyntheticCamera{Width: 1280, Height: 720}
}

// Acquire returns a feed over a gradient frame.
func (c *SyntheticCamera) Acquire(ctx context.Context) (repositories.Feed, error) {
	if c.Denied {
		return nil, errors.New("camera access denied")
	}

	frame := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	for x := 0; x < c.Width; x++ {
		for y := 0; y < c.Height; y++ {
			frame.Set(x, y, color.RGBA{
				R: uint8(255 * x / c.Width),
				G: uint8(255 * y / c.Height),
				B: 96,
				A: 255,
			})
		}
	}
	return &staticFeed{frame: frame}, nil
}
