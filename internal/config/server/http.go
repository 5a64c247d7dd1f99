package server

import (
	"fmt"
	"strings"
)

// HTTPServerConfig controls the upload API listener
type HTTPServerConfig struct {
	Address           string `mapstructure:"address"             yaml:"address"`
	RoutePrefix       string `mapstructure:"route_prefix"        yaml:"route_prefix"`
	MaxRequestSize    int64  `mapstructure:"max_request_size"    yaml:"max_request_size"`
	ReadHeaderTimeout string `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
}

func (cfg HTTPServerConfig) Validate() error {
	if cfg.Address == "" {
		return fmt.Errorf("http.address is required")
	}
	if cfg.MaxRequestSize <= 0 {
		return fmt.Errorf("http.max_request_size must be positive")
	}
	_, err := parseDuration("http.read_header_timeout", cfg.ReadHeaderTimeout)
	return err
}

// Prefix returns the route prefix as an absolute path without trailing slash
func (cfg HTTPServerConfig) Prefix() string {
	prefix := strings.Trim(cfg.RoutePrefix, "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}
