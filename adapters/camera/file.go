// Package camera holds acquisition-device adapters. A kiosk installation
// wires the real device here; development and tests use the file-backed and
// synthetic sources.
package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/tufuturo/totem/domain/repositories"
)

// FileCamera serves frames from a still image on disk. Useful for bench
// setups and rehearsals without camera hardware.
type FileCamera struct {
	path string
}

var _ repositories.Camera = (*FileCamera)(nil)

// NewFileCamera creates a device over an image file.
func NewFileCamera(path string) *FileCamera {
	return &FileCamera{path: path}
}

// Acquire loads the backing image. A missing or unreadable file behaves like
// absent hardware: the error surfaces and no retry happens here.
func (c *FileCamera) Acquire(ctx context.Context) (repositories.Feed, error) {
	img, err := imaging.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("camera source %s unavailable: %w", c.path, err)
	}
	return &staticFeed{frame: img}, nil
}

type staticFeed struct {
	mu       sync.Mutex
	frame    image.Image
	released bool
}

func (f *staticFeed) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.released
}

func (f *staticFeed) Frame() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil, fmt.Errorf("feed already released")
	}
	return f.frame, nil
}

func (f *staticFeed) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
	f.frame = nil
}
