package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mwantia/fluxupload/internal/app/uploadhttp"
	config "github.com/mwantia/fluxupload/internal/config/server"
	"github.com/mwantia/fluxupload/pkg/db/store"
	"github.com/mwantia/fluxupload/pkg/log"
	"github.com/mwantia/fluxupload/pkg/upload"
	"github.com/spf13/afero"
	"gorm.io/gorm/logger"
)

// UploadOptions converts the upload section into the core options
func UploadOptions(cfg config.UploadServerConfig) upload.Options {
	defaults := upload.DefaultOptions()

	var extensions []string
	for _, ext := range cfg.AllowedExtensions {
		extensions = append(extensions, strings.ToLower(strings.TrimPrefix(ext, ".")))
	}

	return upload.Options{
		ChunkSize:            cfg.ChunkSize,
		MinChunkSize:         cfg.MinChunkSize,
		MaxFileSize:          cfg.MaxFileSize,
		SessionTTL:           config.MustDuration(cfg.SessionTTL, defaults.SessionTTL),
		CompletedGrace:       config.MustDuration(cfg.CompletedGrace, defaults.CompletedGrace),
		StuckAssemblyTimeout: config.MustDuration(cfg.StuckAssemblyTimeout, defaults.StuckAssemblyTimeout),
		ValidateHash:         cfg.ValidateHash,
		HashAlgorithm:        cfg.HashAlgorithm,
		AllowedExtensions:    extensions,
		StorageDisk:          cfg.StorageDisk,
		StoragePath:          cfg.StoragePath,
		KeepChunkRecords:     cfg.KeepChunkRecords,
	}
}

// OpenStore connects the metadata store and optionally applies pending migrations
func OpenStore(ctx context.Context, cfg config.MetadataServerConfig, migrate bool) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create metadata directory: %w", err)
		}
	}

	level := logger.Silent
	if cfg.SQLite.Debug {
		level = logger.Info
	}

	st, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path:     cfg.SQLite.Path,
		LogLevel: level,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Connect(ctx); err != nil {
		return nil, err
	}

	if migrate {
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to migrate metadata store: %w", err)
		}
	}
	return st, nil
}

// NewManager builds the upload core on top of the configured chunk directory and disks
func NewManager(cfg config.UploadServerConfig, st store.MetadataStore, events upload.EventSink, logger log.LoggerService) (*upload.Manager, error) {
	chunks, err := filepath.Abs(cfg.ChunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chunks path: %w", err)
	}
	if err := os.MkdirAll(chunks, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chunks directory: %w", err)
	}

	blobs, err := upload.NewOsBlobStore(cfg.Disks)
	if err != nil {
		return nil, err
	}

	return upload.NewManager(upload.ManagerConfig{
		Options: UploadOptions(cfg),
		Store:   st,
		ChunkFs: afero.NewBasePathFs(afero.NewOsFs(), chunks),
		Blobs:   blobs,
		Events:  events,
		Logger:  logger,
	})
}

// NewHTTPServer wires the upload API for the given manager
func NewHTTPServer(cfg config.HTTPServerConfig, manager *upload.Manager, health uploadhttp.HealthChecker, logger log.LoggerService) *uploadhttp.Server {
	return uploadhttp.NewServer(uploadhttp.Config{
		Prefix:         cfg.Prefix(),
		MaxRequestSize: cfg.MaxRequestSize,
	}, manager, health, logger)
}
