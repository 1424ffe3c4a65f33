package kiosk

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tufuturo/totem/domain/entities"
	"github.com/tufuturo/totem/domain/repositories"
	"github.com/tufuturo/totem/internal/capture"
	"github.com/tufuturo/totem/internal/compress"
	"github.com/tufuturo/totem/internal/gateway"
)

// Runner reacts to machine transitions by driving the pipeline stages: camera
// acquisition on the camera screen, the countdown on the countdown screen and
// the compress-submit sequence on the processing screen.
type Runner struct {
	machine *Machine
	camera  *capture.Manager
	gateway *gateway.Client
	archive repositories.SessionArchive // nil when disabled
	clock   clock.Clock
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// stageCancel terminates the goroutine of the screen-bound stage in
	// flight (acquisition, countdown) when the machine leaves its screen.
	// Processing is not screen-bound: the submission runs to completion so
	// the server-side dedup entry exists for a retry, and the machine
	// suppresses its late callback instead.
	stageMu     sync.Mutex
	stageCancel context.CancelFunc
}

// NewRunner wires the runner onto the machine's transition stream.
func NewRunner(
	machine *Machine,
	camera *capture.Manager,
	gw *gateway.Client,
	archive repositories.SessionArchive,
	clk clock.Clock,
	logger *zap.Logger,
) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		machine: machine,
		camera:  camera,
		gateway: gw,
		archive: archive,
		clock:   clk,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	machine.Subscribe(r.onTransition)
	return r
}

// Stop terminates any in-flight stage goroutines.
func (r *Runner) Stop() {
	r.cancel()
}

func (r *Runner) onTransition(change StateChange) {
	switch change.To {
	case entities.ScreenCamera:
		go r.acquire(r.beginStage())
	case entities.ScreenCountdown:
		go r.countdown(r.beginStage())
	case entities.ScreenReview:
		r.endStage()
	case entities.ScreenProcessing:
		r.endStage()
		if change.Session != nil {
			go r.process(change.Session.RequestID, change.Session.CapturedImage)
		}
	case entities.ScreenWelcome, entities.ScreenError:
		// Leaving the capture flow releases the device so no handle
		// leaks across screens.
		r.endStage()
		r.camera.Release()
	case entities.ScreenResult:
		r.endStage()
		r.camera.Release()
		if change.Session != nil {
			go r.record(change.Session)
		}
	}
}

// beginStage cancels whatever stage was running and derives the context for
// the next one, so an abandoned countdown or acquisition never outlives its
// screen.
func (r *Runner) beginStage() context.Context {
	r.stageMu.Lock()
	defer r.stageMu.Unlock()
	if r.stageCancel != nil {
		r.stageCancel()
	}
	ctx, cancel := context.WithCancel(r.ctx)
	r.stageCancel = cancel
	return ctx
}

func (r *Runner) endStage() {
	r.stageMu.Lock()
	defer r.stageMu.Unlock()
	if r.stageCancel != nil {
		r.stageCancel()
		r.stageCancel = nil
	}
}

func (r *Runner) acquire(ctx context.Context) {
	if err := r.camera.Acquire(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.machine.FailScreen("The camera is not available. Please ask the staff for help.")
	}
}

func (r *Runner) countdown(ctx context.Context) {
	feed := r.camera.Feed()
	if feed == nil {
		r.machine.FailScreen("The camera is not ready yet. Please start again.")
		return
	}

	cd := capture.NewCountdown(feed, r.clock, r.logger)
	still, err := cd.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("Capture failed", zap.Error(err))
		r.machine.FailScreen("The photo could not be taken. Please try again.")
		return
	}
	r.machine.CompleteCapture(still)
}

// process runs compression and submission off the UI flow. Completion and
// failure report back through the machine, which suppresses them when the
// processing screen was already left.
func (r *Runner) process(requestID string, captured []byte) {
	res := compress.Bound(captured, capture.StillWidth, capture.StillHeight, 90)
	if res.Kind == compress.Original {
		r.logger.Warn("Compression failed, submitting original capture",
			zap.String("requestId", requestID))
	}

	result, err := r.gateway.Submit(r.ctx, res.Data, requestID)
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		pe := entities.AsPipelineError(err)
		r.logger.Error("Processing submission failed",
			zap.String("requestId", requestID),
			zap.String("kind", string(pe.Kind)),
			zap.Error(err))
		r.machine.FailProcessing(requestID, pe.Message)
		return
	}

	r.machine.CompleteProcessing(requestID,
		result.ImageData, result.ImageURL,
		result.StorageURL, result.StorageKey, result.FileName)
}

func (r *Runner) record(session *entities.Session) {
	if r.archive == nil {
		return
	}
	if err := r.archive.Record(r.ctx, session); err != nil {
		r.logger.Warn("Session archive write failed", zap.Error(err))
	}
}
