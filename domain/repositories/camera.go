package repositories

import (
	"context"
	"image"
)

// Camera abstracts the acquisition device. Implementations must request device
// access exactly once per Acquire call and report denial or hardware absence
// as an error instead of retrying.
type Camera interface {
	Acquire(ctx context.Context) (Feed, error)
}

// Feed is a live preview handle. It is exclusively owned by the screen that
// acquired it and must be released when that screen goes away.
type Feed interface {
	// Ready reports whether frames can be read yet. Consumers gate timed
	// logic on this so waiting time does not leak into countdowns.
	Ready() bool

	// Frame returns the latest frame at the device's native resolution.
	Frame() (image.Image, error)

	// Release returns the device. No Frame calls may follow.
	Release()
}
