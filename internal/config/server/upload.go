package server

import (
	"fmt"
	"strings"
)

type UploadServerConfig struct {
	ChunkSize            int64             `mapstructure:"chunk_size"             yaml:"chunk_size"`
	MinChunkSize         int64             `mapstructure:"min_chunk_size"         yaml:"min_chunk_size"`
	MaxFileSize          int64             `mapstructure:"max_file_size"          yaml:"max_file_size"`
	SessionTTL           string            `mapstructure:"session_ttl"            yaml:"session_ttl"`
	CompletedGrace       string            `mapstructure:"completed_grace"        yaml:"completed_grace"`
	StuckAssemblyTimeout string            `mapstructure:"stuck_assembly_timeout" yaml:"stuck_assembly_timeout"`
	ValidateHash         bool              `mapstructure:"validate_hash"          yaml:"validate_hash"`
	HashAlgorithm        string            `mapstructure:"hash_algorithm"         yaml:"hash_algorithm"`
	AllowedExtensions    []string          `mapstructure:"allowed_extensions"     yaml:"allowed_extensions"`
	ChunksPath           string            `mapstructure:"chunks_path"            yaml:"chunks_path"`
	StorageDisk          string            `mapstructure:"storage_disk"           yaml:"storage_disk"`
	StoragePath          string            `mapstructure:"storage_path"           yaml:"storage_path"`
	Disks                map[string]string `mapstructure:"disks"                  yaml:"disks"`
	KeepChunkRecords     bool              `mapstructure:"keep_chunk_records"     yaml:"keep_chunk_records"`
}

func (cfg UploadServerConfig) Validate() error {
	if cfg.MinChunkSize <= 0 {
		return fmt.Errorf("upload.min_chunk_size must be positive")
	}
	if cfg.ChunkSize < cfg.MinChunkSize {
		return fmt.Errorf("upload.chunk_size must be at least %d", cfg.MinChunkSize)
	}
	if cfg.MaxFileSize <= 0 {
		return fmt.Errorf("upload.max_file_size must be positive")
	}
	for key, value := range map[string]string{
		"upload.session_ttl":            cfg.SessionTTL,
		"upload.completed_grace":        cfg.CompletedGrace,
		"upload.stuck_assembly_timeout": cfg.StuckAssemblyTimeout,
	} {
		if _, err := parseDuration(key, value); err != nil {
			return err
		}
	}
	if cfg.ChunksPath == "" {
		return fmt.Errorf("upload.chunks_path is required")
	}
	if _, ok := cfg.Disks[cfg.StorageDisk]; !ok {
		return fmt.Errorf("upload.storage_disk '%s' is not declared in upload.disks", cfg.StorageDisk)
	}
	for name, root := range cfg.Disks {
		if strings.TrimSpace(root) == "" {
			return fmt.Errorf("upload.disks.%s requires a root directory", name)
		}
	}
	return nil
}
