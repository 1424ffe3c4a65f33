package repositories

import (
	"context"

	"github.com/tufuturo/totem/domain/entities"
)

// SessionArchive defines data access methods for completed kiosk sessions.
// Recording is best-effort; the kiosk flow never blocks on it.
type SessionArchive interface {
	Record(ctx context.Context, session *entities.Session) error
}
