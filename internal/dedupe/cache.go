// Package dedupe holds the server-side request-deduplication cache. A client
// that retries a submission reuses its request id, and the cache guarantees
// the expensive transformation runs at most once per id within the retention
// window.
package dedupe

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRetention is how long a computed result stays answerable.
	DefaultRetention = 5 * time.Minute

	// DefaultSweepInterval is how often expired entries are purged.
	DefaultSweepInterval = 5 * time.Minute
)

// Entry is the stored outcome of one successful processing run.
type Entry struct {
	ProcessedImageURL string    `json:"imageUrl"`
	StorageURL        string    `json:"storageUrl,omitempty"`
	StorageKey        string    `json:"storageKey,omitempty"`
	FileName          string    `json:"fileName"`
	Timestamp         time.Time `json:"timestamp"`
}

// Cache is a process-wide, time-bounded map from request id to result.
// Concurrent submissions with the same id collapse into a single backend
// execution via the per-key flight group.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	clock     clock.Clock
	retention time.Duration
	interval  time.Duration
	flight    singleflight.Group
	stop      chan struct{}
	stopOnce  sync.Once
	logger    *zap.Logger
}

// NewCache creates a cache with the default retention and sweep interval.
func NewCache(clk clock.Clock, logger *zap.Logger) *Cache {
	return &Cache{
		entries:   make(map[string]Entry),
		clock:     clk,
		retention: DefaultRetention,
		interval:  DefaultSweepInterval,
		stop:      make(chan struct{}),
		logger:    logger,
	}
}

// Lookup returns the stored entry for a request id, if it is still inside the
// retention window.
func (c *Cache) Lookup(requestID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[requestID]
	if !ok {
		return Entry{}, false
	}
	if c.clock.Now().Sub(entry.Timestamp) > c.retention {
		return Entry{}, false
	}
	return entry, true
}

// Store records a computed result. At most one entry per request id exists;
// last write wins.
func (c *Cache) Store(requestID string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[requestID] = entry
}

// Do returns the cached entry for the request id, or runs fn once to compute
// it. The second return value reports whether the result was served from
// cache. Concurrent callers with the same id share one execution.
func (c *Cache) Do(requestID string, fn func() (Entry, error)) (Entry, bool, error) {
	if entry, ok := c.Lookup(requestID); ok {
		c.logger.Info("Duplicate request detected, returning stored result",
			zap.String("requestId", requestID))
		return entry, true, nil
	}

	v, err, shared := c.flight.Do(requestID, func() (interface{}, error) {
		// Re-check under the flight: a racing caller may have finished
		// and stored while this one waited for the lock.
		if entry, ok := c.Lookup(requestID); ok {
			return entry, nil
		}
		entry, err := fn()
		if err != nil {
			return Entry{}, err
		}
		c.Store(requestID, entry)
		return entry, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return v.(Entry), shared, nil
}

// Sweep removes entries older than the retention window and returns how many
// were purged. Reads never observe a half-removed entry; removal happens under
// the write lock.
func (c *Cache) Sweep() int {
	cutoff := c.clock.Now().Add(-c.retention)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.entries {
		if entry.Timestamp.Before(cutoff) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Start launches the background sweep loop.
func (c *Cache) Start() {
	go c.sweepLoop()
	c.logger.Info("Dedup cache sweeper started",
		zap.Duration("retention", c.retention),
		zap.Duration("interval", c.interval))
}

// Stop terminates the background sweep loop.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop() {
	ticker := c.clock.Ticker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				c.logger.Info("Swept expired dedup entries", zap.Int("removed", removed))
			}
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
