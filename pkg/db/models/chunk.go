package models

import "time"

// Chunk represents one received piece of an upload session
type Chunk struct {
	ID           uint  `gorm:"primaryKey"`
	SessionRefID uint  `gorm:"not null;uniqueIndex:idx_session_chunk"`
	ChunkIndex   int   `gorm:"not null;uniqueIndex:idx_session_chunk"`
	ChunkSize    int64 `gorm:"not null"`

	ChunkPath  string `gorm:"type:text;not null"`
	Hash       string `gorm:"type:text"`
	UploadedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
