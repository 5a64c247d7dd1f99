package server

import (
	"fmt"
	"strings"
)

// MetadataServerConfig holds metadata store configuration
type MetadataServerConfig struct {
	Type   string               `mapstructure:"type"   yaml:"type"`
	SQLite MetadataSQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
}

// MetadataSQLiteConfig holds SQLite-specific configuration
type MetadataSQLiteConfig struct {
	Path  string `mapstructure:"path"  yaml:"path"`
	Debug bool   `mapstructure:"debug" yaml:"debug"` // Log every SQL statement
}

func (cfg MetadataServerConfig) Validate() error {
	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			return fmt.Errorf("metadata.sqlite.path is required")
		}
		return nil
	default:
		return fmt.Errorf("metadata.type '%s' is not supported", cfg.Type)
	}
}
