// Package compress re-encodes captured stills before upload. It is an
// optimization step only: any internal failure yields the original bytes so
// processing is never blocked by compression.
package compress

import (
	"bytes"

	"github.com/disintegration/imaging"
)

// Kind tags which branch of the fallback chain produced the result.
type Kind int

const (
	// Compressed means the image was re-encoded within the given bounds.
	Compressed Kind = iota
	// Original means compression failed and the input passed through.
	Original
)

// Result carries the image bytes together with the branch that produced them.
type Result struct {
	Kind Kind
	Data []byte
}

// Bound decodes the image, scales it down to fit within maxWidth×maxHeight
// (never up), and re-encodes it as JPEG at the given quality. Dimensions are
// bounded, size is not guaranteed to shrink.
func Bound(data []byte, maxWidth, maxHeight, quality int) Result {
	if maxWidth <= 0 || maxHeight <= 0 || quality <= 0 || quality > 100 {
		return Result{Kind: Original, Data: data}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Result{Kind: Original, Data: data}
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxWidth || bounds.Dy() > maxHeight {
		img = imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return Result{Kind: Original, Data: data}
	}
	return Result{Kind: Compressed, Data: buf.Bytes()}
}
