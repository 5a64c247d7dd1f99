package server

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type BaseServerConfig struct {
	ShutdownTimeout string `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	Log      LogServerConfig      `mapstructure:"log"      yaml:"log"`
	Metadata MetadataServerConfig `mapstructure:"metadata" yaml:"metadata"`
	HTTP     HTTPServerConfig     `mapstructure:"http"     yaml:"http"`
	Upload   UploadServerConfig   `mapstructure:"upload"   yaml:"upload"`
	Sweep    SweepServerConfig    `mapstructure:"sweep"    yaml:"sweep"`
}

func LoadServerConfig() (*BaseServerConfig, error) {
	return loadServerConfig(viper.GetViper())
}

func loadServerConfig(v *viper.Viper) (*BaseServerConfig, error) {
	cfg := &BaseServerConfig{}

	setDefaults(v)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Comma separated lists arrive as a single entry from the environment
	cfg.Upload.AllowedExtensions = splitList(cfg.Upload.AllowedExtensions)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks values that cannot be expressed through defaults alone
func (cfg *BaseServerConfig) Validate() error {
	if _, err := parseDuration("shutdown_timeout", cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := cfg.Metadata.Validate(); err != nil {
		return err
	}
	if err := cfg.HTTP.Validate(); err != nil {
		return err
	}
	if err := cfg.Upload.Validate(); err != nil {
		return err
	}
	return cfg.Sweep.Validate()
}

func splitList(values []string) []string {
	var result []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}
