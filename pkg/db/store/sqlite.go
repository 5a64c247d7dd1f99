package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mwantia/fluxupload/pkg/db/migrations"
	"github.com/mwantia/fluxupload/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore implements MetadataStore using SQLite
type SQLiteStore struct {
	db   *gorm.DB
	path string
	now  func() time.Time
}

// DB returns the underlying GORM database instance
func (s *SQLiteStore) DB() *gorm.DB {
	return s.db
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path         string
	MaxOpenConns int
	LogLevel     logger.LogLevel
	NowFunc      func() time.Time
}

// NewSQLiteStore creates a new SQLite-backed metadata store
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Default to silent logging
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Silent
	}
	if cfg.NowFunc == nil {
		cfg.NowFunc = time.Now
	}
	now := func() time.Time {
		return cfg.NowFunc().UTC()
	}

	db, err := gorm.Open(sqlite.Open(withForeignKeys(cfg.Path)), &gorm.Config{
		Logger:  logger.Default.LogMode(cfg.LogLevel),
		NowFunc: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: cfg.Path,
		now:  now,
	}, nil
}

// withForeignKeys enables cascading deletes for every pooled connection
func withForeignKeys(path string) string {
	if strings.Contains(path, "_pragma=foreign_keys") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)"
}

// Connect initializes the database connection
func (s *SQLiteStore) Connect(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(1) // SQLite only supports 1 writer
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// Migrate runs all pending database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return migrations.NewMigrator(s.db).Migrate(ctx)
}

// Health checks database connectivity
func (s *SQLiteStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Session operations

func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.UploadSession) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	var session models.UploadSession
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		return nil, normalize(err)
	}
	return &session, nil
}

func (s *SQLiteStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count > 0, err
}

func (s *SQLiteStore) CountSessions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.UploadSession{}).Count(&count).Error
	return count, err
}

func (s *SQLiteStore) UpdateSessionFields(ctx context.Context, sessionID string, fields map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("session_id = ?", sessionID).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionSessionStatus moves a session to the target status only while it is in one
// of the given source states. The returned flag reports whether this call won the transition.
func (s *SQLiteStore) TransitionSessionStatus(ctx context.Context, sessionID string, from []models.SessionStatus, to models.SessionStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to '%s' requires at least one source status", to)
	}

	fields := map[string]any{"status": to}
	if to != models.StatusFailed {
		fields["error_message"] = ""
	}

	result := s.db.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("session_id = ? AND status IN ?", sessionID, from).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *SQLiteStore) ListReclaimableSessions(ctx context.Context, now, completedBefore time.Time) ([]models.UploadSession, error) {
	var sessions []models.UploadSession
	db := s.db.WithContext(ctx)
	err := db.
		Where("status <> ?", models.StatusAssembling).
		Where(db.Where("expires_at < ?", now.UTC()).
			Or("status = ? AND updated_at < ?", models.StatusCompleted, completedBefore.UTC())).
		Order("id").
		Find(&sessions).Error
	return sessions, err
}

func (s *SQLiteStore) ListStuckSessions(ctx context.Context, before time.Time) ([]models.UploadSession, error) {
	var sessions []models.UploadSession
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.StatusAssembling, before.UTC()).
		Order("id").
		Find(&sessions).Error
	return sessions, err
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_ref_id = ?", id).Delete(&models.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.UploadSession{}, id).Error
	})
}

// Chunk operations

func (s *SQLiteStore) CreateChunk(ctx context.Context, chunk *models.Chunk) error {
	return s.db.WithContext(ctx).Create(chunk).Error
}

func (s *SQLiteStore) GetChunk(ctx context.Context, sessionRefID uint, index int) (*models.Chunk, error) {
	var chunk models.Chunk
	err := s.db.WithContext(ctx).
		Where("session_ref_id = ? AND chunk_index = ?", sessionRefID, index).
		First(&chunk).Error
	if err != nil {
		return nil, normalize(err)
	}
	return &chunk, nil
}

func (s *SQLiteStore) ListChunks(ctx context.Context, sessionRefID uint) ([]models.Chunk, error) {
	var chunks []models.Chunk
	err := s.db.WithContext(ctx).
		Where("session_ref_id = ?", sessionRefID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

func (s *SQLiteStore) ListChunkIndices(ctx context.Context, sessionRefID uint) ([]int, error) {
	var indices []int
	err := s.db.WithContext(ctx).
		Model(&models.Chunk{}).
		Where("session_ref_id = ?", sessionRefID).
		Order("chunk_index ASC").
		Pluck("chunk_index", &indices).Error
	return indices, err
}

func (s *SQLiteStore) CountChunks(ctx context.Context, sessionRefID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Chunk{}).
		Where("session_ref_id = ?", sessionRefID).
		Count(&count).Error
	return int(count), err
}

func (s *SQLiteStore) DeleteChunk(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Chunk{}, id).Error
}

func (s *SQLiteStore) DeleteSessionChunks(ctx context.Context, sessionRefID uint) error {
	return s.db.WithContext(ctx).Where("session_ref_id = ?", sessionRefID).Delete(&models.Chunk{}).Error
}

func normalize(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

var _ MetadataStore = (*SQLiteStore)(nil)
