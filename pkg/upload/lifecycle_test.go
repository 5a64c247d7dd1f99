package upload

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mwantia/fluxupload/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeCreatesSession(t *testing.T) {
	h := newHarness(t)

	snapshot, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "report.pdf", TotalSize: 20, MimeType: "application/pdf"}, "")
	require.NoError(t, err)

	assert.False(t, snapshot.Resumed)
	assert.Equal(t, 3, snapshot.TotalChunks)
	assert.Equal(t, int64(8), snapshot.ChunkSize)
	assert.Equal(t, []int{0, 1, 2}, snapshot.MissingChunks)
	assert.Zero(t, snapshot.Progress)
	assert.Equal(t, models.StatusPending, snapshot.Status)
	assert.Equal(t, testStart.Add(24*time.Hour), snapshot.ExpiresAt)

	session, err := h.store.GetSession(h.ctx, snapshot.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", session.OriginalFilename)
	assert.Equal(t, "pdf", session.Extension)
	assert.NotEqual(t, "report.pdf", session.Filename)
	assert.Equal(t, "uploads", session.StoragePath)
}

func TestInitializeValidation(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.MaxFileSize = 1 << 20
		o.AllowedExtensions = []string{"PDF", ".png"}
	})

	_, err := h.manager.Initialize(h.ctx, Descriptor{TotalSize: 0}, "")
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, CodeValidation, uerr.Code)
	assert.Contains(t, uerr.Fields, "filename")
	assert.Contains(t, uerr.Fields, "total_size")

	_, err = h.manager.Initialize(h.ctx, Descriptor{Filename: "a.pdf", TotalSize: 20, ChunkSize: 2}, "")
	require.ErrorAs(t, err, &uerr)
	assert.Contains(t, uerr.Fields, "chunk_size")

	_, err = h.manager.Initialize(h.ctx, Descriptor{Filename: "a.pdf", TotalSize: 2 << 20}, "")
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, CodeFileTooLarge, uerr.Code)
	assert.Equal(t, "File size exceeds maximum allowed size of 1.0 MiB", uerr.Message)

	_, err = h.manager.Initialize(h.ctx, Descriptor{Filename: "a.exe", TotalSize: 20}, "")
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, CodeExtensionNotAllowed, uerr.Code)
	assert.Equal(t, "File extension 'exe' is not allowed", uerr.Message)

	_, err = h.manager.Initialize(h.ctx, Descriptor{Filename: "scan.Png", TotalSize: 20}, "")
	assert.NoError(t, err)

	count, err := h.store.CountSessions(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "rejected requests must not persist anything")
}

func TestSessionIDCollisionIsRetried(t *testing.T) {
	h := newHarness(t)
	h.ids.forced = []string{"fixed", "fixed", "other"}

	first, err := h.manager.CreateSession(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 10})
	require.NoError(t, err)
	second, err := h.manager.CreateSession(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 10})
	require.NoError(t, err)

	assert.Equal(t, "fixed", first.SessionID)
	assert.Equal(t, "other", second.SessionID)
}

func TestInitializeResumesSession(t *testing.T) {
	h := newHarness(t)
	data := payload(1, 20)
	created, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 20}, "")
	require.NoError(t, err)
	h.upload(t, created.SessionID, 1, split(data, 8)[1])

	resumed, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 20}, created.SessionID)
	require.NoError(t, err)

	assert.True(t, resumed.Resumed)
	assert.Equal(t, created.SessionID, resumed.SessionID)
	assert.Equal(t, 1, resumed.UploadedChunks)
	assert.Equal(t, []int{0, 2}, resumed.MissingChunks)
	assert.Equal(t, 33.33, resumed.Progress)
	assert.Equal(t, models.StatusUploading, resumed.Status)
}

func TestResumeFlipsPendingToUploading(t *testing.T) {
	h := newHarness(t)
	session, err := h.manager.CreateSession(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 20})
	require.NoError(t, err)

	resumed, err := h.manager.FindOrResumeSession(h.ctx, session.SessionID, Descriptor{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, resumed.Status)

	// Idempotent
	resumed, err = h.manager.FindOrResumeSession(h.ctx, session.SessionID, Descriptor{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, resumed.Status)
}

func TestNonResumableSessionsCreateNewOnes(t *testing.T) {
	h := newHarness(t)

	t.Run("unknown", func(t *testing.T) {
		snapshot, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 20}, "does-not-exist")
		require.NoError(t, err)
		assert.False(t, snapshot.Resumed)
		assert.NotEqual(t, "does-not-exist", snapshot.SessionID)
	})

	t.Run("different size", func(t *testing.T) {
		session, err := h.manager.CreateSession(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 20})
		require.NoError(t, err)

		_, err = h.manager.FindOrResumeSession(h.ctx, session.SessionID, Descriptor{TotalSize: 30})
		assert.ErrorIs(t, err, ErrNotResumable)
	})

	t.Run("completed", func(t *testing.T) {
		session, err := h.manager.CreateSession(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 8})
		require.NoError(t, err)
		h.upload(t, session.SessionID, 0, payload(1, 8))

		snapshot, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 8}, session.SessionID)
		require.NoError(t, err)
		assert.False(t, snapshot.Resumed)
		assert.NotEqual(t, session.SessionID, snapshot.SessionID)
	})

	t.Run("expired", func(t *testing.T) {
		session, err := h.manager.CreateSession(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 8})
		require.NoError(t, err)
		h.clock.Advance(25 * time.Hour)
		defer h.clock.Advance(-25 * time.Hour)

		_, err = h.manager.FindOrResumeSession(h.ctx, session.SessionID, Descriptor{})
		assert.ErrorIs(t, err, ErrNotResumable)
	})
}

func TestUploadInAnyOrderAssemblesConcatenation(t *testing.T) {
	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{2, 0, 3, 1},
	}
	data := payload(5, 30)

	for _, order := range orders {
		h := newHarness(t)
		created, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "data.bin", TotalSize: int64(len(data))}, "")
		require.NoError(t, err)
		parts := split(data, 8)

		var result *ChunkResult
		for _, index := range order {
			result = h.upload(t, created.SessionID, index, parts[index])
		}

		require.True(t, result.IsComplete, "order %v", order)
		assert.Equal(t, models.StatusCompleted, result.Status)
		assert.Equal(t, 100.0, result.Progress)
		assert.Equal(t, data, h.readArtifact(t, result.StoragePath), "order %v", order)
	}
}

func TestTwoChunkExampleAssemblesExactly(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.MinChunkSize = 1024
		o.ChunkSize = 1048576
	})
	const chunkSize = 1048576
	chunk0 := bytes.Repeat([]byte{0xAA}, chunkSize)
	chunk1 := bytes.Repeat([]byte{0x55}, chunkSize)

	created, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "big.bin", TotalSize: 2 * chunkSize, ChunkSize: chunkSize}, "")
	require.NoError(t, err)
	require.Equal(t, 2, created.TotalChunks)

	first := h.upload(t, created.SessionID, 1, chunk1)
	assert.False(t, first.IsComplete)
	assert.Equal(t, 50.0, first.Progress)

	second := h.upload(t, created.SessionID, 0, chunk0)
	require.True(t, second.IsComplete)

	artifact := h.readArtifact(t, second.StoragePath)
	assert.Len(t, artifact, 2*chunkSize)
	assert.Equal(t, append(append([]byte{}, chunk0...), chunk1...), artifact)
}

func TestUploadChunkErrors(t *testing.T) {
	h := newHarness(t)
	created, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 20}, "")
	require.NoError(t, err)

	_, err = h.manager.UploadChunk(h.ctx, "missing", 0, bytes.NewReader(payload(1, 8)), 8)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = h.manager.UploadChunk(h.ctx, created.SessionID, 2, bytes.NewReader(payload(1, 8)), 8)
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, CodeInvalidChunk, uerr.Code)
	assert.Equal(t, int64(4), uerr.Expected)
	assert.Equal(t, int64(8), uerr.Received)

	status, err := h.manager.Status(h.ctx, created.SessionID)
	require.NoError(t, err)
	assert.Zero(t, status.UploadedChunks, "invalid chunks leave no trace")
	assert.Equal(t, models.StatusPending, status.Status)
}

func TestExpiredSessionRejectsAnyChunk(t *testing.T) {
	h := newHarness(t)
	created, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 20}, "")
	require.NoError(t, err)
	h.clock.Advance(24*time.Hour + time.Second)

	for _, chunk := range [][]byte{payload(1, 8), payload(1, 100)} {
		_, err := h.manager.UploadChunk(h.ctx, created.SessionID, 0, bytes.NewReader(chunk), int64(len(chunk)))
		assert.ErrorIs(t, err, ErrSessionExpired)
	}
}

func TestUploadAgainstCompletedIsNoop(t *testing.T) {
	h := newHarness(t)
	created, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 8}, "")
	require.NoError(t, err)
	done := h.upload(t, created.SessionID, 0, payload(1, 8))
	require.True(t, done.IsComplete)

	again := h.upload(t, created.SessionID, 0, payload(1, 8))
	assert.True(t, again.AlreadyCompleted)
	assert.True(t, again.IsComplete)
	assert.Equal(t, done.StoragePath, again.StoragePath)
}

func TestFailedAssemblyReportsErrorAndCanBeResumed(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.ValidateHash = true })
	data := payload(2, 16)
	created, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 16, Hash: "deadbeef"}, "")
	require.NoError(t, err)
	parts := split(data, 8)

	h.upload(t, created.SessionID, 0, parts[0])
	_, err = h.manager.UploadChunk(h.ctx, created.SessionID, 1, bytes.NewReader(parts[1]), 8)
	assert.Equal(t, CodeAssemblyFailed, CodeOf(err))

	status, err := h.manager.Status(h.ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.Status)
	assert.Contains(t, status.ErrorMessage, "file hash validation failed")
	assert.Empty(t, status.StoragePath)

	_, err = h.manager.UploadChunk(h.ctx, created.SessionID, 1, bytes.NewReader(parts[1]), 8)
	assert.Equal(t, CodeSessionFailed, CodeOf(err))

	resumed, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 16}, created.SessionID)
	require.NoError(t, err)
	assert.True(t, resumed.Resumed)
	assert.Equal(t, models.StatusUploading, resumed.Status)
	assert.Empty(t, resumed.ErrorMessage)
}

func TestConcurrentFinalChunksAssembleOnce(t *testing.T) {
	h := newHarness(t)
	data := payload(4, 16)
	created, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 16}, "")
	require.NoError(t, err)
	parts := split(data, 8)

	var wg sync.WaitGroup
	errs := make([]error, len(parts))
	for index := range parts {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			_, errs[index] = h.manager.UploadChunk(context.Background(), created.SessionID, index, bytes.NewReader(parts[index]), 8)
		}(index)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	completed := 0
	for _, eventType := range h.recorder.types() {
		if eventType == EventUploadCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)

	status, err := h.manager.Status(h.ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)
	assert.Equal(t, data, h.readArtifact(t, status.StoragePath))
}

func TestStatusSnapshot(t *testing.T) {
	h := newHarness(t)
	created, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "notes.txt", TotalSize: 20}, "")
	require.NoError(t, err)
	h.upload(t, created.SessionID, 2, payload(1, 4))

	status, err := h.manager.Status(h.ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", status.Filename)
	assert.Equal(t, int64(20), status.TotalSize)
	assert.Equal(t, []int{0, 1}, status.MissingChunks)
	assert.Empty(t, status.StoragePath)

	_, err = h.manager.Status(h.ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCleanExpiredSessions(t *testing.T) {
	h := newHarness(t)

	expired, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 20}, "")
	require.NoError(t, err)
	h.upload(t, expired.SessionID, 0, payload(1, 8))

	completed, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "b.bin", TotalSize: 8}, "")
	require.NoError(t, err)
	done := h.upload(t, completed.SessionID, 0, payload(1, 8))
	require.True(t, done.IsComplete)

	// The expired session fell past its deadline, the completed one past the grace period
	h.clock.Advance(25 * time.Hour)
	active, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "c.bin", TotalSize: 20}, "")
	require.NoError(t, err)

	before, err := h.store.CountSessions(h.ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), before)

	count, err := h.manager.CleanExpiredSessions(h.ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	after, err := h.store.CountSessions(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "dry run must not mutate")
	assert.True(t, h.exists(t, h.chunkFs, expired.SessionID+"/0"))

	count, err = h.manager.CleanExpiredSessions(h.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	after, err = h.store.CountSessions(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), after)
	assert.False(t, h.exists(t, h.chunkFs, expired.SessionID))
	assert.True(t, h.exists(t, h.diskFs, done.StoragePath), "artifacts outlive their sessions")

	_, err = h.manager.Status(h.ctx, active.SessionID)
	assert.NoError(t, err)
}

func TestSweepSkipsAndFailsStuckAssemblies(t *testing.T) {
	h := newHarness(t)
	created, err := h.manager.Initialize(h.ctx, Descriptor{Filename: "a.bin", TotalSize: 20}, "")
	require.NoError(t, err)

	// Simulate a crash after the session entered assembling
	won, err := h.store.TransitionSessionStatus(h.ctx, created.SessionID,
		[]models.SessionStatus{models.StatusPending}, models.StatusAssembling)
	require.NoError(t, err)
	require.True(t, won)

	h.clock.Advance(25 * time.Hour)

	count, err := h.manager.CleanExpiredSessions(h.ctx, false)
	require.NoError(t, err)
	assert.Zero(t, count, "assembling sessions are never reclaimed")

	result, err := h.manager.Sweep(h.ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StuckFailed)
	assert.True(t, result.DryRun)

	status, err := h.manager.Status(h.ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssembling, status.Status)

	result, err = h.manager.Sweep(h.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StuckFailed)
	assert.Equal(t, 1, result.Cleaned, "the now failed and expired session is reclaimed")
	assert.Contains(t, h.recorder.types(), EventUploadFailed)
}
