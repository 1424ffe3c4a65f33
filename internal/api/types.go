package api

import "time"

// ProcessResponse represents a successful processing answer. ImageURL always
// carries a retrievable location (inline data URL or remote); the storage
// fields are empty when persistence was unavailable.
type ProcessResponse struct {
	Success    bool      `json:"success"`
	ImageURL   string    `json:"imageUrl"`
	StorageURL string    `json:"storageUrl,omitempty"`
	StorageKey string    `json:"storageKey,omitempty"`
	FileName   string    `json:"fileName"`
	Timestamp  time.Time `json:"timestamp"`
	Cached     bool      `json:"cached"`
}

// DisplayAuthRequest represents the request payload for display authentication
type DisplayAuthRequest struct {
	DisplayID string `json:"display_id" validate:"required"`
	SecretKey string `json:"secret_key" validate:"required"`
}

// DisplayAuthResponse represents the response payload for display authentication
type DisplayAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DisplayID string    `json:"display_id"`
}

// ErrorResponse represents an error response. CorrelationID is only set for
// unclassified failures so a visitor report can be matched to logs.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}
