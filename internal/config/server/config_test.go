package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := GetServerDefault()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(2097152), cfg.Upload.ChunkSize)
	assert.Equal(t, int64(26843545600), cfg.Upload.MaxFileSize)
	assert.Equal(t, "24h", cfg.Upload.SessionTTL)
	assert.Equal(t, "fluxupload", cfg.HTTP.RoutePrefix)
	assert.Equal(t, "/fluxupload", cfg.HTTP.Prefix())
}

func TestLoadFromYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
upload:
  chunk_size: 4096
  disks:
    local: /srv/uploads
http:
  route_prefix: /api/uploads/
`), 0644))

	t.Setenv("FLUXUPLOAD_UPLOAD_ALLOWED_EXTENSIONS", "pdf, ZIP ,,png")
	t.Setenv("FLUXUPLOAD_UPLOAD_VALIDATE_HASH", "true")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FLUXUPLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	require.NoError(t, v.ReadInConfig())

	cfg, err := loadServerConfig(v)
	require.NoError(t, err)

	assert.Equal(t, int64(4096), cfg.Upload.ChunkSize)
	assert.Equal(t, "/srv/uploads", cfg.Upload.Disks["local"])
	assert.True(t, cfg.Upload.ValidateHash)
	assert.Equal(t, []string{"pdf", "ZIP", "png"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, "/api/uploads", cfg.HTTP.Prefix())
	// Untouched keys keep their defaults
	assert.Equal(t, int64(1024), cfg.Upload.MinChunkSize)
	assert.Equal(t, "10s", cfg.ShutdownTimeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*BaseServerConfig){
		"chunk below minimum": func(c *BaseServerConfig) { c.Upload.ChunkSize = 512 },
		"bad ttl":             func(c *BaseServerConfig) { c.Upload.SessionTTL = "tomorrow" },
		"unknown disk":        func(c *BaseServerConfig) { c.Upload.StorageDisk = "s3" },
		"empty disk root":     func(c *BaseServerConfig) { c.Upload.Disks["local"] = " " },
		"metadata type":       func(c *BaseServerConfig) { c.Metadata.Type = "postgres" },
		"zero sweep":          func(c *BaseServerConfig) { c.Sweep.Interval = "0s" },
		"negative shutdown":   func(c *BaseServerConfig) { c.ShutdownTimeout = "-1s" },
		"request size":        func(c *BaseServerConfig) { c.HTTP.MaxRequestSize = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := GetServerDefault()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDisabledSweepSkipsInterval(t *testing.T) {
	cfg := GetServerDefault()
	cfg.Sweep.Disabled = true
	cfg.Sweep.Interval = ""
	assert.NoError(t, cfg.Validate())
}

func TestDefaultsRoundTripThroughYAML(t *testing.T) {
	data, err := yaml.Marshal(GetServerDefault())
	require.NoError(t, err)
	assert.Contains(t, string(data), "route_prefix: fluxupload")
	assert.Contains(t, string(data), "stuck_assembly_timeout: 1h")
}

func TestMustDuration(t *testing.T) {
	assert.Equal(t, "1m0s", MustDuration("1m", 0).String())
	assert.Equal(t, "5s", MustDuration("nope", 5e9).String())
}
