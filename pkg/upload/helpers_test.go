package upload

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mwantia/fluxupload/pkg/db/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sequenceIDs struct {
	mu     sync.Mutex
	next   int
	forced []string
}

func (g *sequenceIDs) SessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.forced) > 0 {
		id := g.forced[0]
		g.forced = g.forced[1:]
		return id
	}
	g.next++
	return fmt.Sprintf("session%025d", g.next)
}

func (g *sequenceIDs) StorageName(extension string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	if extension == "" {
		return fmt.Sprintf("file-%d", g.next)
	}
	return fmt.Sprintf("file-%d.%s", g.next, extension)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]EventType, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.Type)
	}
	return types
}

type harness struct {
	ctx      context.Context
	manager  *Manager
	store    *store.SQLiteStore
	chunkFs  afero.Fs
	diskFs   afero.Fs
	clock    *fakeClock
	ids      *sequenceIDs
	recorder *recorder
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.MinChunkSize = 4
	opts.ChunkSize = 8
	opts.StoragePath = "uploads"
	return opts
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()

	opts := testOptions()
	for _, fn := range mutate {
		fn(&opts)
	}

	clock := &fakeClock{now: testStart}
	metadata, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path:    filepath.Join(t.TempDir(), "upload.db"),
		NowFunc: clock.Now,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, metadata.Connect(ctx))
	require.NoError(t, metadata.Migrate(ctx))
	t.Cleanup(func() { metadata.Close() })

	h := &harness{
		ctx:      ctx,
		store:    metadata,
		chunkFs:  afero.NewMemMapFs(),
		diskFs:   afero.NewMemMapFs(),
		clock:    clock,
		ids:      &sequenceIDs{},
		recorder: &recorder{},
	}

	h.manager, err = NewManager(ManagerConfig{
		Options: opts,
		Store:   metadata,
		ChunkFs: h.chunkFs,
		Blobs:   NewBlobStore(map[string]afero.Fs{opts.StorageDisk: h.diskFs}),
		Events:  h.recorder,
		Clock:   clock,
		IDs:     h.ids,
	})
	require.NoError(t, err)
	return h
}

// payload returns size deterministic bytes distinct per seed
func payload(seed byte, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i%7)
	}
	return data
}

// split cuts data into chunks of chunkSize
func split(data []byte, chunkSize int) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := min(chunkSize, len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

func (h *harness) upload(t *testing.T, sessionID string, index int, data []byte) *ChunkResult {
	t.Helper()
	result, err := h.manager.UploadChunk(h.ctx, sessionID, index, bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return result
}

func (h *harness) readArtifact(t *testing.T, name string) []byte {
	t.Helper()
	data, err := afero.ReadFile(h.diskFs, name)
	require.NoError(t, err)
	return data
}

func (h *harness) exists(t *testing.T, fs afero.Fs, name string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, name)
	require.NoError(t, err)
	return ok
}
