// Package kiosk holds the top-level screen orchestrator: it sequences the
// welcome → camera → countdown → review → processing → result flow, guards
// against re-entrant navigation and carries the session artifacts between
// screens.
package kiosk

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tufuturo/totem/domain/entities"
)

const (
	// DebounceWindow suppresses unforced transitions right after a commit.
	DebounceWindow = 500 * time.Millisecond

	// AutoReturnDelay is how long the result screen stays up before the
	// kiosk resets itself for the next visitor.
	AutoReturnDelay = 60 * time.Second
)

// StateChange is delivered to listeners after every committed transition.
// Session is a snapshot taken at commit time, so listeners can read it
// without holding the machine lock while later stages mutate the live
// session.
type StateChange struct {
	From    entities.ScreenState
	To      entities.ScreenState
	Session *entities.Session
	Message string
}

// Listener observes committed transitions. Called synchronously under no lock.
type Listener func(StateChange)

// Machine is the screen state machine. Unforced transitions are dropped while
// the debounce window from the previous commit is active; forced transitions
// (capture completion, processing completion, reset) always commit so they
// are never silently lost.
type Machine struct {
	mu             sync.Mutex
	state          entities.ScreenState
	session        *entities.Session
	lastTransition time.Time
	autoTimer      *clock.Timer
	autoPaused     bool

	clock     clock.Clock
	logger    *zap.Logger
	listeners []Listener
}

// NewMachine creates a machine on the welcome screen.
func NewMachine(clk clock.Clock, logger *zap.Logger) *Machine {
	return &Machine{
		state:  entities.ScreenWelcome,
		clock:  clk,
		logger: logger,
	}
}

// Subscribe registers a transition listener. Not safe to call after the
// machine started serving events.
func (m *Machine) Subscribe(l Listener) {
	m.listeners = append(m.listeners, l)
}

// State returns the active screen.
func (m *Machine) State() entities.ScreenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the session in flight, or nil before capture.
func (m *Machine) Session() *entities.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Navigate attempts an unforced transition. It is a no-op while the debounce
// window is active or when the edge is illegal; the return value reports
// whether the transition committed.
func (m *Machine) Navigate(to entities.ScreenState) bool {
	return m.transition(to, false, "")
}

// force commits a transition regardless of the debounce window. Illegal edges
// are still rejected.
func (m *Machine) force(to entities.ScreenState, message string) bool {
	return m.transition(to, true, message)
}

func (m *Machine) transition(to entities.ScreenState, forced bool, message string) bool {
	m.mu.Lock()

	if !forced && m.clock.Now().Sub(m.lastTransition) < DebounceWindow {
		m.mu.Unlock()
		m.logger.Debug("Navigation suppressed by debounce window",
			zap.String("to", string(to)))
		return false
	}
	if !entities.CanTransition(m.state, to) {
		m.mu.Unlock()
		m.logger.Warn("Illegal screen transition rejected",
			zap.String("from", string(m.state)),
			zap.String("to", string(to)))
		return false
	}

	from := m.state
	m.state = to
	m.lastTransition = m.clock.Now()
	m.stopAutoReturnLocked()
	if to == entities.ScreenResult {
		m.armAutoReturnLocked()
	}
	var session *entities.Session
	if m.session != nil {
		snapshot := *m.session
		session = &snapshot
	}
	listeners := m.listeners
	m.mu.Unlock()

	m.logger.Info("Screen transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Bool("forced", forced))

	change := StateChange{From: from, To: to, Session: session, Message: message}
	for _, l := range listeners {
		l(change)
	}
	return true
}

// CompleteCapture installs the captured still in a fresh session and forces
// the review screen. Forced so a finished capture is never dropped by the
// debounce guard.
func (m *Machine) CompleteCapture(still []byte) bool {
	m.mu.Lock()
	if m.state != entities.ScreenCountdown {
		m.mu.Unlock()
		m.logger.Warn("Capture completion ignored outside countdown",
			zap.String("state", string(m.state)))
		return false
	}
	m.session = entities.NewSession(still, m.clock.Now())
	requestID := m.session.RequestID
	m.mu.Unlock()

	m.logger.Info("Capture completed", zap.String("requestId", requestID))
	return m.force(entities.ScreenReview, "")
}

// AcceptReview moves from review into processing, clearing any previous
// processing artifacts. It is a user gesture, so it rides the ordinary
// navigation path: the debounce window absorbs a double-tap instead of
// re-entering processing.
func (m *Machine) AcceptReview() bool {
	m.mu.Lock()
	if m.state != entities.ScreenReview || m.session == nil {
		m.mu.Unlock()
		return false
	}
	m.session.ProcessedImage = nil
	m.session.ImageURL = ""
	m.session.StorageURL = ""
	m.session.StorageKey = ""
	m.session.FileName = ""
	m.mu.Unlock()

	return m.Navigate(entities.ScreenProcessing)
}

// Retake returns from review to the camera screen, keeping the session
// discarded: the next capture generates a fresh request id.
func (m *Machine) Retake() bool {
	m.mu.Lock()
	if m.state != entities.ScreenReview {
		m.mu.Unlock()
		return false
	}
	m.session = nil
	m.mu.Unlock()

	return m.Navigate(entities.ScreenCamera)
}

// CompleteProcessing records the processed result and forces the result
// screen. The completion only applies while the machine is still processing
// the same request id; anything else is a stale callback from a consumer that
// went away, and is suppressed.
func (m *Machine) CompleteProcessing(requestID string, image []byte, imageURL, storageURL, storageKey, fileName string) bool {
	m.mu.Lock()
	if m.state != entities.ScreenProcessing || m.session == nil || m.session.RequestID != requestID {
		m.mu.Unlock()
		m.logger.Info("Stale processing completion suppressed",
			zap.String("requestId", requestID))
		return false
	}
	m.session.CompleteProcessing(image, imageURL, storageURL, storageKey, fileName, m.clock.Now())
	m.mu.Unlock()

	return m.force(entities.ScreenResult, "")
}

// FailProcessing records the failure and forces the error screen, unless the
// callback is stale.
func (m *Machine) FailProcessing(requestID, message string) bool {
	m.mu.Lock()
	if m.state != entities.ScreenProcessing || m.session == nil || m.session.RequestID != requestID {
		m.mu.Unlock()
		m.logger.Info("Stale processing failure suppressed",
			zap.String("requestId", requestID))
		return false
	}
	m.session.Fail(message)
	m.mu.Unlock()

	return m.force(entities.ScreenError, message)
}

// FailScreen jumps to the error screen from any state with a user-facing
// message. Used for acquisition failures.
func (m *Machine) FailScreen(message string) bool {
	m.mu.Lock()
	if m.session != nil {
		m.session.Fail(message)
	}
	m.mu.Unlock()
	return m.force(entities.ScreenError, message)
}

// Cancel handles the global cancel gesture. Accepted in every state except
// processing; resets the session immediately.
func (m *Machine) Cancel() bool {
	m.mu.Lock()
	if m.state == entities.ScreenProcessing {
		m.mu.Unlock()
		m.logger.Info("Cancel ignored during processing")
		return false
	}
	m.mu.Unlock()

	m.Reset()
	return true
}

// Reset discards the session and forces the welcome screen.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.session = nil
	m.stopAutoReturnLocked()
	m.mu.Unlock()

	m.force(entities.ScreenWelcome, "")
}

// PauseAutoReturn keeps the result screen up until ResumeAutoReturn or an
// explicit reset.
func (m *Machine) PauseAutoReturn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoPaused = true
	m.stopAutoReturnLocked()
}

// ResumeAutoReturn re-arms the result screen countdown.
func (m *Machine) ResumeAutoReturn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoPaused = false
	if m.state == entities.ScreenResult {
		m.armAutoReturnLocked()
	}
}

func (m *Machine) armAutoReturnLocked() {
	if m.autoPaused {
		return
	}
	m.autoTimer = m.clock.AfterFunc(AutoReturnDelay, func() {
		m.logger.Info("Result screen auto-return elapsed")
		m.Reset()
	})
}

func (m *Machine) stopAutoReturnLocked() {
	if m.autoTimer != nil {
		m.autoTimer.Stop()
		m.autoTimer = nil
	}
}
