// Package capture drives the camera side of the kiosk: device acquisition,
// the timed countdown, and turning a live frame into the fixed-aspect still
// that feeds the processing pipeline.
package capture

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	// Output still dimensions, a 2:3 portrait.
	StillWidth  = 1024
	StillHeight = 1536

	stillQuality = 90
)

// CropRect computes the centered source rectangle that preserves the 2:3
// output aspect against a feed of the given native size. Wider feeds are
// cropped horizontally, taller feeds vertically.
func CropRect(feedWidth, feedHeight int) image.Rectangle {
	if feedWidth <= 0 || feedHeight <= 0 {
		return image.Rectangle{}
	}

	const targetAspect = float64(StillWidth) / float64(StillHeight)
	feedAspect := float64(feedWidth) / float64(feedHeight)

	sx, sy, sw, sh := 0, 0, feedWidth, feedHeight
	if feedAspect > targetAspect {
		sw = int(float64(feedHeight) * targetAspect)
		sx = (feedWidth - sw) / 2
	} else {
		sh = int(float64(feedWidth) / targetAspect)
		sy = (feedHeight - sh) / 2
	}
	return image.Rect(sx, sy, sx+sw, sy+sh)
}

// Still composites a captured frame into the upload-ready still: centered 2:3
// crop, horizontal mirror, scaled to 1024×1536 and JPEG encoded. The frame is
// not retained after encoding.
func Still(frame image.Image) ([]byte, error) {
	bounds := frame.Bounds()
	crop := CropRect(bounds.Dx(), bounds.Dy())
	if crop.Empty() {
		return nil, fmt.Errorf("frame has no pixels")
	}

	img := imaging.Crop(frame, crop.Add(bounds.Min))
	img = imaging.FlipH(img)
	img = imaging.Resize(img, StillWidth, StillHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(stillQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode still: %w", err)
	}
	return buf.Bytes(), nil
}
