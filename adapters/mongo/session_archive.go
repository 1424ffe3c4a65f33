package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tufuturo/totem/domain/entities"
	"github.com/tufuturo/totem/domain/repositories"
)

// SessionArchive records completed kiosk sessions for later reporting. Image
// bytes are never written, only the metadata and retrieval handles.
type SessionArchive struct {
	collection *mongo.Collection
}

// NewSessionArchive creates a MongoDB session archive
func NewSessionArchive(db *mongo.Database) repositories.SessionArchive {
	return &SessionArchive{
		collection: db.Collection("sessions"),
	}
}

// Record implements repositories.SessionArchive
func (a *SessionArchive) Record(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if session.RequestID == "" {
		return errors.New("session request id cannot be empty")
	}

	doc := bson.M{
		"request_id":   session.RequestID,
		"file_name":    session.FileName,
		"storage_url":  session.StorageURL,
		"storage_key":  session.StorageKey,
		"persisted":    session.Persisted(),
		"captured_at":  session.CapturedAt,
		"completed_at": session.CompletedAt,
	}
	if session.ErrorMessage != "" {
		doc["error_message"] = session.ErrorMessage
	}

	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}
