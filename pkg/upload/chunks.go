package upload

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"strconv"

	"github.com/mwantia/fluxupload/pkg/db/models"
	"github.com/mwantia/fluxupload/pkg/db/store"
	"github.com/mwantia/fluxupload/pkg/log"
	"github.com/spf13/afero"
)

// ChunkStore persists chunk payloads on an afero filesystem and their metadata in the store.
// Payloads live at {session_id}/{chunk_index} relative to the filesystem root.
type ChunkStore struct {
	opts   Options
	store  store.MetadataStore
	fs     afero.Fs
	events EventSink
	clock  Clock
	log    log.LoggerService
}

func NewChunkStore(opts Options, metadata store.MetadataStore, fs afero.Fs, events EventSink, clock Clock, logger log.LoggerService) *ChunkStore {
	if events == nil {
		events = NopSink()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ChunkStore{
		opts:   opts,
		store:  metadata,
		fs:     fs,
		events: events,
		clock:  clock,
		log:    logger,
	}
}

func (cs *ChunkStore) ValidateChunk(session *models.UploadSession, index int, size int64) error {
	return ValidateChunk(session, index, size)
}

func (cs *ChunkStore) GetExpectedChunkSize(session *models.UploadSession, index int) int64 {
	return ExpectedChunkSize(session, index)
}

// StoreChunk writes payload for (session, index) and records it.
// A chunk already stored with the same size is returned unchanged; one with a
// different size is replaced. size must be the declared payload length.
func (cs *ChunkStore) StoreChunk(ctx context.Context, session *models.UploadSession, index int, payload io.Reader, size int64) (*models.Chunk, error) {
	existing, err := cs.GetChunk(ctx, session, index)
	switch {
	case err == nil && existing.ChunkSize == size:
		return existing, nil
	case err == nil:
		current, err := cs.store.GetSession(ctx, session.SessionID)
		if err != nil {
			return nil, internalError("Failed to load session", err)
		}
		// The stored set is owned by assembly from here on
		if current.Status == models.StatusAssembling || current.Status == models.StatusCompleted {
			cs.log.Debug("Keeping chunk %d of session '%s' while it is %s", index, session.SessionID, current.Status)
			return existing, nil
		}
		cs.log.Debug("Replacing chunk %d of session '%s' (%d -> %d bytes)", index, session.SessionID, existing.ChunkSize, size)
		if err := cs.DeleteChunk(ctx, existing); err != nil {
			return nil, internalError("Failed to replace chunk", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, internalError("Failed to look up chunk", err)
	}

	chunkPath, digest, err := cs.writePayload(session, index, payload, size)
	if err != nil {
		return nil, err
	}

	chunk := &models.Chunk{
		SessionRefID: session.ID,
		ChunkIndex:   index,
		ChunkSize:    size,
		ChunkPath:    chunkPath,
		Hash:         digest,
		UploadedAt:   cs.clock.Now(),
	}
	if err := cs.store.CreateChunk(ctx, chunk); err != nil {
		// A concurrent request for the same index won the insert
		if winner, lookupErr := cs.store.GetChunk(ctx, session.ID, index); lookupErr == nil && winner.ChunkSize == size {
			return winner, nil
		}
		return nil, internalError("Failed to record chunk", err)
	}

	if session.Status == models.StatusPending {
		won, err := cs.store.TransitionSessionStatus(ctx, session.SessionID,
			[]models.SessionStatus{models.StatusPending}, models.StatusUploading)
		if err != nil {
			return nil, internalError("Failed to update session status", err)
		}
		if won {
			session.Status = models.StatusUploading
		}
	}

	cs.events.Publish(ctx, Event{
		Type:    EventChunkReceived,
		Session: *session,
		Chunk:   chunk,
		Time:    chunk.UploadedAt,
	})
	return chunk, nil
}

// writePayload streams into a temporary file and renames it into place once the
// byte count matches, so a reader never sees a partial chunk.
func (cs *ChunkStore) writePayload(session *models.UploadSession, index int, payload io.Reader, size int64) (string, string, error) {
	dir := session.SessionID
	if err := cs.fs.MkdirAll(dir, 0755); err != nil {
		return "", "", internalError(fmt.Sprintf("Could not create directory: %s", dir), err)
	}

	chunkPath := path.Join(dir, strconv.Itoa(index))
	tmpPath := chunkPath + ".part"

	var h hash.Hash
	if cs.opts.ValidateHash {
		var err error
		if h, err = NewHash(cs.opts.HashAlgorithm); err != nil {
			return "", "", internalError("Failed to hash chunk", err)
		}
	}

	f, err := cs.fs.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", "", internalError("Failed to create chunk file", err)
	}

	var w io.Writer = f
	if h != nil {
		w = io.MultiWriter(f, h)
	}

	written, err := io.Copy(w, io.LimitReader(payload, size+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		cs.fs.Remove(tmpPath)
		return "", "", internalError("Failed to write chunk file", err)
	}
	if written != size {
		cs.fs.Remove(tmpPath)
		return "", "", invalidChunkError(index, size, written)
	}

	if err := cs.fs.Rename(tmpPath, chunkPath); err != nil {
		cs.fs.Remove(tmpPath)
		return "", "", internalError("Failed to move chunk file into place", err)
	}

	var digest string
	if h != nil {
		digest = hex.EncodeToString(h.Sum(nil))
	}
	return chunkPath, digest, nil
}

func (cs *ChunkStore) GetChunk(ctx context.Context, session *models.UploadSession, index int) (*models.Chunk, error) {
	return cs.store.GetChunk(ctx, session.ID, index)
}

// GetChunks returns the session chunks ordered by index
func (cs *ChunkStore) GetChunks(ctx context.Context, session *models.UploadSession) ([]models.Chunk, error) {
	return cs.store.ListChunks(ctx, session.ID)
}

func (cs *ChunkStore) UploadedIndices(ctx context.Context, session *models.UploadSession) ([]int, error) {
	return cs.store.ListChunkIndices(ctx, session.ID)
}

func (cs *ChunkStore) CountChunks(ctx context.Context, session *models.UploadSession) (int, error) {
	return cs.store.CountChunks(ctx, session.ID)
}

// Open returns the payload of a stored chunk
func (cs *ChunkStore) Open(chunk *models.Chunk) (afero.File, error) {
	return cs.fs.Open(chunk.ChunkPath)
}

// DeleteChunk removes the payload, ignoring a missing file, and the record
func (cs *ChunkStore) DeleteChunk(ctx context.Context, chunk *models.Chunk) error {
	cs.removePayload(chunk)
	return cs.store.DeleteChunk(ctx, chunk.ID)
}

func (cs *ChunkStore) removePayload(chunk *models.Chunk) {
	if err := cs.fs.Remove(chunk.ChunkPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		cs.log.Warn("Failed to remove chunk file '%s': %v", chunk.ChunkPath, err)
	}
}

// RemovePayloads deletes every payload file of the session and, when it is empty, its directory
func (cs *ChunkStore) RemovePayloads(session *models.UploadSession, chunks []models.Chunk) {
	for i := range chunks {
		cs.removePayload(&chunks[i])
	}
	cs.RemoveSessionDirectory(session)
}

// RemoveSessionDirectory attempts to remove the chunk directory; a non-empty or missing one is left alone
func (cs *ChunkStore) RemoveSessionDirectory(session *models.UploadSession) {
	if session.SessionID == "" {
		return
	}
	entries, err := afero.ReadDir(cs.fs, session.SessionID)
	if err != nil || len(entries) > 0 {
		return
	}
	_ = cs.fs.Remove(session.SessionID)
}
