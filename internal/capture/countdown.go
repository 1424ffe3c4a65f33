package capture

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tufuturo/totem/domain/repositories"
)

const (
	countdownStart = 3
	tickInterval   = time.Second

	// FlashDuration is how long the capture flash signal stays up.
	FlashDuration = 120 * time.Millisecond
)

// Countdown drives the timed capture: a counter from 3 decrementing once per
// second, gated on the feed being ready. Ticks where the feed is not ready do
// not advance the counter, so waiting time never leaks into the countdown.
// When the counter hits zero exactly one still is captured and returned.
type Countdown struct {
	feed   repositories.Feed
	clock  clock.Clock
	logger *zap.Logger

	// OnTick, if set, observes each counter value as it is displayed.
	OnTick func(count int)
	// OnFlash, if set, is invoked at capture time; the flash should stay
	// visible for FlashDuration.
	OnFlash func()
}

// NewCountdown creates a countdown over a feed.
func NewCountdown(feed repositories.Feed, clk clock.Clock, logger *zap.Logger) *Countdown {
	return &Countdown{feed: feed, clock: clk, logger: logger}
}

// Run blocks until a still has been captured or the context is done. The
// encoded still is emitted exactly once.
func (c *Countdown) Run(ctx context.Context) ([]byte, error) {
	count := countdownStart
	announced := false

	ticker := c.clock.Ticker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if !c.feed.Ready() {
				continue
			}
			if !announced {
				// First ready tick displays the start value for a
				// full interval before counting begins.
				announced = true
				c.tick(count)
				continue
			}

			count--
			if count > 0 {
				c.tick(count)
				continue
			}

			c.logger.Info("Countdown finished, capturing frame")
			if c.OnFlash != nil {
				c.OnFlash()
			}
			return c.capture()
		}
	}
}

func (c *Countdown) tick(count int) {
	c.logger.Debug("Countdown tick", zap.Int("count", count))
	if c.OnTick != nil {
		c.OnTick(count)
	}
}

func (c *Countdown) capture() ([]byte, error) {
	frame, err := c.feed.Frame()
	if err != nil {
		return nil, err
	}
	return Still(frame)
}
