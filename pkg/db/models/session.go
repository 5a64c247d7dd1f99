package models

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of an upload session
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusUploading  SessionStatus = "uploading"
	StatusAssembling SessionStatus = "assembling"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// ParseSessionStatus converts a stored or user-provided value into a SessionStatus
func ParseSessionStatus(value string) (SessionStatus, error) {
	switch status := SessionStatus(strings.ToLower(strings.TrimSpace(value))); status {
	case StatusPending, StatusUploading, StatusAssembling, StatusCompleted, StatusFailed:
		return status, nil
	default:
		return "", fmt.Errorf("unknown session status '%s'", value)
	}
}

func (s SessionStatus) String() string {
	return string(s)
}

// UploadSession represents one tracked file transfer
type UploadSession struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"type:varchar(64);not null;uniqueIndex"`

	// File descriptor
	Filename         string `gorm:"type:text;not null"` // Server assigned storage name
	OriginalFilename string `gorm:"type:text;not null"` // Client supplied, untrusted
	Extension        string `gorm:"type:text"`
	MimeType         string `gorm:"type:text"`

	// Geometry, fixed for the life of the session
	TotalSize   int64 `gorm:"not null"`
	TotalChunks int   `gorm:"not null"`
	ChunkSize   int64 `gorm:"not null"`

	// Integrity
	Hash          string `gorm:"type:text"`
	HashAlgorithm string `gorm:"type:text"`

	// Destination
	StorageDisk string `gorm:"type:text;not null;default:'local'"`
	StoragePath string `gorm:"type:text"`

	// State tracking
	Status       SessionStatus `gorm:"type:varchar(16);not null;default:'pending';index"`
	ErrorMessage string        `gorm:"type:text"`
	ExpiresAt    time.Time     `gorm:"not null;index"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relationships
	Chunks []Chunk `gorm:"foreignKey:SessionRefID;constraint:OnDelete:CASCADE"`
}

// IsExpired reports whether the session deadline has passed at the given time
func (s *UploadSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
