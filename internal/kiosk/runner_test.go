package kiosk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tufuturo/totem/adapters/camera"
	"github.com/tufuturo/totem/domain/entities"
	"github.com/tufuturo/totem/internal/capture"
	"github.com/tufuturo/totem/internal/gateway"
)

type recordingArchive struct {
	records []*entities.Session
}

func (a *recordingArchive) Record(ctx context.Context, session *entities.Session) error {
	a.records = append(a.records, session)
	return nil
}

// newTestRunner builds a runner without subscribing it to the machine, so
// tests can drive individual stages directly.
func newTestRunner(m *Machine, gw *gateway.Client) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		machine: m,
		gateway: gw,
		clock:   m.clock,
		logger:  zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func TestRunnerProcessCompletesSession(t *testing.T) {
	processed := []byte("processed-image")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"imageUrl": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(processed),
			"fileName": "tu_futuro_test.jpg",
		})
	}))
	defer server.Close()

	m, mock := newTestMachine()
	requestID := reachProcessing(t, m, mock)

	r := newTestRunner(m, gateway.NewClient(server.URL, zap.NewNop()))
	r.process(requestID, []byte("captured"))

	if got := m.State(); got != entities.ScreenResult {
		t.Fatalf("state = %q, want %q", got, entities.ScreenResult)
	}
	session := m.Session()
	if string(session.ProcessedImage) != string(processed) {
		t.Errorf("ProcessedImage = %q, want %q", session.ProcessedImage, processed)
	}
	if session.FileName != "tu_futuro_test.jpg" {
		t.Errorf("FileName = %q, want tu_futuro_test.jpg", session.FileName)
	}
}

func TestRunnerProcessFailureLandsOnErrorScreen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "backend unavailable",
		})
	}))
	defer server.Close()

	m, mock := newTestMachine()
	requestID := reachProcessing(t, m, mock)

	r := newTestRunner(m, gateway.NewClient(server.URL, zap.NewNop()))
	r.process(requestID, []byte("captured"))

	if got := m.State(); got != entities.ScreenError {
		t.Fatalf("state = %q, want %q", got, entities.ScreenError)
	}
	if msg := m.Session().ErrorMessage; msg != "backend unavailable" {
		t.Errorf("ErrorMessage = %q, want backend message", msg)
	}
}

func TestRunnerAbandonedProcessKeepsCurrentScreen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"imageUrl": "data:image/jpeg;base64,cGhvdG8=",
		})
	}))
	defer server.Close()

	m, mock := newTestMachine()
	requestID := reachProcessing(t, m, mock)

	// The visitor's session was torn down before the submission finished.
	m.Reset()

	r := newTestRunner(m, gateway.NewClient(server.URL, zap.NewNop()))
	r.process(requestID, []byte("captured"))

	if got := m.State(); got != entities.ScreenWelcome {
		t.Fatalf("state = %q after stale completion, want %q", got, entities.ScreenWelcome)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunnerCancelStopsCountdownStage(t *testing.T) {
	m, mock := newTestMachine()
	manager := capture.NewManager(camera.NewSyntheticCamera(), zap.NewNop())
	r := NewRunner(m, manager, gateway.NewClient("http://127.0.0.1:0", zap.NewNop()), nil, mock, zap.NewNop())
	defer r.Stop()

	baseline := runtime.NumGoroutine()

	m.Navigate(entities.ScreenCamera)
	waitFor(t, "camera acquisition", func() bool { return manager.Feed() != nil })

	mock.Add(DebounceWindow)
	m.Navigate(entities.ScreenCountdown)
	waitFor(t, "countdown goroutine start", func() bool { return runtime.NumGoroutine() > baseline })

	// Abandoning the session must tear the countdown goroutine down, not
	// leave it ticking for the kiosk's lifetime.
	m.Cancel()
	waitFor(t, "countdown goroutine exit", func() bool { return runtime.NumGoroutine() <= baseline })

	if got := m.State(); got != entities.ScreenWelcome {
		t.Fatalf("state = %q after cancel, want %q", got, entities.ScreenWelcome)
	}
}

func TestRunnerRecordsSessions(t *testing.T) {
	m, mock := newTestMachine()
	reachProcessing(t, m, mock)

	archive := &recordingArchive{}
	r := newTestRunner(m, nil)
	r.archive = archive

	r.record(m.Session())
	if len(archive.records) != 1 {
		t.Fatalf("records = %d, want 1", len(archive.records))
	}
	if archive.records[0].RequestID != m.Session().RequestID {
		t.Error("recorded session does not match the machine session")
	}
}
