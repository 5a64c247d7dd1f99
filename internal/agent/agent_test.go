package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	config "github.com/mwantia/fluxupload/internal/config/server"
	"github.com/mwantia/fluxupload/pkg/log"
	"github.com/mwantia/fluxupload/pkg/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.BaseServerConfig {
	t.Helper()
	dir := t.TempDir()

	cfg := config.GetServerDefault()
	cfg.ShutdownTimeout = "5s"
	cfg.HTTP.Address = "127.0.0.1:0"
	cfg.Metadata.SQLite.Path = filepath.Join(dir, "meta", "fluxupload.db")
	cfg.Upload.ChunksPath = filepath.Join(dir, "chunks")
	cfg.Upload.Disks = map[string]string{"local": filepath.Join(dir, "storage")}
	cfg.Sweep.OnStart = true
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestUploadOptions(t *testing.T) {
	cfg := config.GetServerDefault().Upload
	cfg.SessionTTL = "2h"
	cfg.CompletedGrace = "bogus"
	cfg.AllowedExtensions = []string{".PDF", "png"}

	opts := UploadOptions(cfg)

	assert.Equal(t, 2*time.Hour, opts.SessionTTL)
	assert.Equal(t, upload.DefaultOptions().CompletedGrace, opts.CompletedGrace)
	assert.Equal(t, []string{"pdf", "png"}, opts.AllowedExtensions)
	assert.Equal(t, cfg.ChunkSize, opts.ChunkSize)
	assert.Equal(t, cfg.StorageDisk, opts.StorageDisk)
	assert.True(t, opts.KeepChunkRecords)
}

func TestDefaultUploadOptionsAreValid(t *testing.T) {
	opts := UploadOptions(config.GetServerDefault().Upload)
	assert.NoError(t, opts.Validate())
	assert.Equal(t, upload.DefaultOptions(), opts)
}

func TestOpenStoreCreatesDirectory(t *testing.T) {
	cfg := testConfig(t)

	st, err := OpenStore(context.Background(), cfg.Metadata, true)
	require.NoError(t, err)
	defer st.Close()

	assert.NoError(t, st.Health(context.Background()))
	assert.FileExists(t, cfg.Metadata.SQLite.Path)
}

func TestNewManagerCreatesChunkDirectory(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	st, err := OpenStore(ctx, cfg.Metadata, true)
	require.NoError(t, err)
	defer st.Close()

	manager, err := NewManager(cfg.Upload, st, nil, nil)
	require.NoError(t, err)
	assert.DirExists(t, cfg.Upload.ChunksPath)

	snapshot, err := manager.Initialize(ctx, upload.Descriptor{Filename: "a.bin", TotalSize: 4096}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.TotalChunks)
}

func TestNewManagerRejectsUnknownDisk(t *testing.T) {
	cfg := testConfig(t)
	cfg.Upload.StorageDisk = "remote"

	st, err := OpenStore(context.Background(), cfg.Metadata, true)
	require.NoError(t, err)
	defer st.Close()

	_, err = NewManager(cfg.Upload, st, nil, nil)
	assert.Error(t, err)
}

func TestServeAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	var output bytes.Buffer
	agent := newAgent(cfg, log.NewLoggerServiceWithWriter("test", cfg.Log, &output))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Serve(ctx) }()

	require.Eventually(t, func() bool { return agent.Addr() != nil }, 5*time.Second, 10*time.Millisecond)
	base := "http://" + agent.Addr().String()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	body, _ := json.Marshal(map[string]any{"filename": "doc.txt", "total_size": 10})
	resp, err = http.Post(base+"/fluxupload/init", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not shut down")
	}
}

func TestServeFailsOnBadListenAddress(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.Address = "127.0.0.1:-1"
	agent := newAgent(cfg, log.Discard())

	err := agent.Serve(context.Background())
	assert.ErrorContains(t, err, "failed to listen")
}
