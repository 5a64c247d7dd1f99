package store

import (
	"context"
	"errors"
	"time"

	"github.com/mwantia/fluxupload/pkg/db/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// MetadataStore defines the interface for database operations
type MetadataStore interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	Health(ctx context.Context) error

	// Session operations
	CreateSession(ctx context.Context, session *models.UploadSession) error
	GetSession(ctx context.Context, sessionID string) (*models.UploadSession, error)
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	CountSessions(ctx context.Context) (int64, error)
	UpdateSessionFields(ctx context.Context, sessionID string, fields map[string]any) error
	TransitionSessionStatus(ctx context.Context, sessionID string, from []models.SessionStatus, to models.SessionStatus) (bool, error)
	ListReclaimableSessions(ctx context.Context, now, completedBefore time.Time) ([]models.UploadSession, error)
	ListStuckSessions(ctx context.Context, before time.Time) ([]models.UploadSession, error)
	DeleteSession(ctx context.Context, id uint) error

	// Chunk operations
	CreateChunk(ctx context.Context, chunk *models.Chunk) error
	GetChunk(ctx context.Context, sessionRefID uint, index int) (*models.Chunk, error)
	ListChunks(ctx context.Context, sessionRefID uint) ([]models.Chunk, error)
	ListChunkIndices(ctx context.Context, sessionRefID uint) ([]int, error)
	CountChunks(ctx context.Context, sessionRefID uint) (int, error)
	DeleteChunk(ctx context.Context, id uint) error
	DeleteSessionChunks(ctx context.Context, sessionRefID uint) error
}
