package capture

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tufuturo/totem/domain/entities"
	"github.com/tufuturo/totem/domain/repositories"
)

// Manager owns the acquisition device handle for the screens that need a live
// preview. Access is requested exactly once per screen visit; on denial the
// error is surfaced and no retry loop runs — recovery is an explicit
// re-acquire by the caller.
type Manager struct {
	camera repositories.Camera
	logger *zap.Logger

	mu   sync.Mutex
	feed repositories.Feed
	err  string
}

// NewManager creates a manager over the given device.
func NewManager(camera repositories.Camera, logger *zap.Logger) *Manager {
	return &Manager{camera: camera, logger: logger}
}

// Acquire requests device access. Calling it while a feed is held is a no-op,
// so a screen visit maps to at most one device request.
func (m *Manager) Acquire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.feed != nil {
		return nil
	}

	feed, err := m.camera.Acquire(ctx)
	if err != nil {
		m.err = err.Error()
		m.logger.Warn("Camera acquisition failed", zap.Error(err))
		return entities.NewAcquisitionDenied(err.Error())
	}

	m.feed = feed
	m.err = ""
	m.logger.Info("Camera acquired")
	return nil
}

// Feed returns the held feed, or nil when acquisition has not succeeded.
func (m *Manager) Feed() repositories.Feed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feed
}

// Err returns the last acquisition error message, if any.
func (m *Manager) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Release returns the device. The consuming screen calls this when it goes
// away so no handle leaks across screens.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.feed != nil {
		m.feed.Release()
		m.feed = nil
		m.logger.Info("Camera released")
	}
}
