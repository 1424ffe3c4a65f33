package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ScreenState identifies which kiosk screen is active. Exactly one screen is
// active at a time.
type ScreenState string

const (
	ScreenWelcome    ScreenState = "welcome"
	ScreenCamera     ScreenState = "camera"
	ScreenCountdown  ScreenState = "countdown"
	ScreenReview     ScreenState = "review"
	ScreenProcessing ScreenState = "processing"
	ScreenResult     ScreenState = "result"
	ScreenError      ScreenState = "error"
)

// forwardTransitions lists the legal forward edges of the screen flow. Error is
// reachable from every state and welcome is reachable from every state via
// reset; both are handled separately in CanTransition.
var forwardTransitions = map[ScreenState][]ScreenState{
	ScreenWelcome:    {ScreenCamera},
	ScreenCamera:     {ScreenCountdown},
	ScreenCountdown:  {ScreenReview},
	ScreenReview:     {ScreenProcessing, ScreenCamera},
	ScreenProcessing: {ScreenResult},
	ScreenResult:     {},
	ScreenError:      {},
}

// CanTransition reports whether moving from one screen to another is legal.
func CanTransition(from, to ScreenState) bool {
	if to == ScreenError || to == ScreenWelcome {
		return true
	}
	for _, next := range forwardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session holds the artifacts of one visitor interaction, from capture until
// reset. The orchestrator mutates it as each pipeline stage completes.
type Session struct {
	RequestID      string    `json:"request_id" bson:"request_id"`
	CapturedImage  []byte    `json:"-" bson:"-"`
	ProcessedImage []byte    `json:"-" bson:"-"`
	ImageURL       string    `json:"image_url,omitempty" bson:"image_url,omitempty"`
	StorageURL     string    `json:"storage_url,omitempty" bson:"storage_url,omitempty"`
	StorageKey     string    `json:"storage_key,omitempty" bson:"storage_key,omitempty"`
	FileName       string    `json:"file_name,omitempty" bson:"file_name,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty" bson:"error_message,omitempty"`
	CapturedAt     time.Time `json:"captured_at" bson:"captured_at"`
	CompletedAt    time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// NewSession creates a session for a freshly captured still. The request id is
// generated here, at capture time, and reused for every retried submission of
// the same capture.
func NewSession(captured []byte, at time.Time) *Session {
	return &Session{
		RequestID:     uuid.NewString(),
		CapturedImage: captured,
		CapturedAt:    at,
	}
}

// CompleteProcessing records the transformed image and its retrieval handles.
// The storage fields stay empty when persistence fell back to inline delivery.
func (s *Session) CompleteProcessing(image []byte, imageURL, storageURL, storageKey, fileName string, at time.Time) {
	s.ProcessedImage = image
	s.ImageURL = imageURL
	s.StorageURL = storageURL
	s.StorageKey = storageKey
	s.FileName = fileName
	s.CompletedAt = at
}

// Fail records a user-facing failure message.
func (s *Session) Fail(message string) {
	s.ErrorMessage = message
}

// Persisted reports whether durable storage accepted the processed image.
func (s *Session) Persisted() bool {
	return s.StorageKey != ""
}

// Validate validates the session data.
func (s *Session) Validate() error {
	if s.RequestID == "" {
		return errors.New("request_id is required")
	}
	if len(s.CapturedImage) == 0 && len(s.ProcessedImage) == 0 {
		return errors.New("session carries no image data")
	}
	return nil
}
