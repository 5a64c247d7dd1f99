package upload

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Options is the explicit configuration of the upload core
type Options struct {
	ChunkSize    int64 // Default chunk size when the client sends none
	MinChunkSize int64
	MaxFileSize  int64

	SessionTTL           time.Duration
	CompletedGrace       time.Duration // Completed sessions older than this are swept
	StuckAssemblyTimeout time.Duration

	ValidateHash  bool
	HashAlgorithm string

	// Empty means every extension is accepted
	AllowedExtensions []string

	StorageDisk string
	StoragePath string

	// Keep chunk rows after a successful assembly; payload files are always removed
	KeepChunkRecords bool
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:            2097152,
		MinChunkSize:         1024,
		MaxFileSize:          26843545600,
		SessionTTL:           24 * time.Hour,
		CompletedGrace:       time.Hour,
		StuckAssemblyTimeout: time.Hour,
		HashAlgorithm:        HashSHA256,
		StorageDisk:          "local",
		StoragePath:          "fluxupload",
		KeepChunkRecords:     true,
	}
}

func (o Options) Validate() error {
	if o.MinChunkSize <= 0 {
		return fmt.Errorf("minimum chunk size must be positive")
	}
	if o.ChunkSize < o.MinChunkSize {
		return fmt.Errorf("chunk size %d is below the minimum of %d", o.ChunkSize, o.MinChunkSize)
	}
	if o.MaxFileSize <= 0 {
		return fmt.Errorf("maximum file size must be positive")
	}
	if o.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if o.StorageDisk == "" {
		return fmt.Errorf("storage disk is required")
	}
	if _, err := NewHash(o.HashAlgorithm); err != nil {
		return err
	}
	return nil
}

func (o Options) extensionAllowed(extension string) bool {
	if len(o.AllowedExtensions) == 0 {
		return true
	}
	for _, allowed := range o.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(allowed, "."), extension) {
			return true
		}
	}
	return false
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock in UTC
func SystemClock() Clock { return systemClock{} }

// IDGenerator produces session identifiers and server side storage names
type IDGenerator interface {
	SessionID() string
	StorageName(extension string) string
}

type uuidGenerator struct{}

// UUIDGenerator returns random v4 based identifiers
func UUIDGenerator() IDGenerator { return uuidGenerator{} }

// SessionID returns 32 lowercase hex characters
func (uuidGenerator) SessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (uuidGenerator) StorageName(extension string) string {
	if extension == "" {
		return uuid.NewString()
	}
	return uuid.NewString() + "." + strings.ToLower(extension)
}
