package upload

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"path"

	"github.com/mwantia/fluxupload/pkg/db/models"
	"github.com/mwantia/fluxupload/pkg/db/store"
	"github.com/mwantia/fluxupload/pkg/log"
)

type Outcome int

const (
	// OutcomeCompleted means this call assembled and verified the artifact
	OutcomeCompleted Outcome = iota
	// OutcomeFailed means assembly ran and the session is now failed
	OutcomeFailed
	// OutcomeBusy means another caller owns the session, or it already left the uploadable states
	OutcomeBusy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "busy"
	}
}

// AssemblyResult reports the assembly outcome; Assemble never returns an error
type AssemblyResult struct {
	Outcome     Outcome
	Status      models.SessionStatus
	StoragePath string
	Hash        string
	Message     string
}

// Assembler concatenates the chunks of a complete session into its final artifact
type Assembler struct {
	opts   Options
	store  store.MetadataStore
	chunks *ChunkStore
	blobs  BlobStore
	events EventSink
	clock  Clock
	log    log.LoggerService
}

func NewAssembler(opts Options, metadata store.MetadataStore, chunks *ChunkStore, blobs BlobStore, events EventSink, clock Clock, logger log.LoggerService) *Assembler {
	if events == nil {
		events = NopSink()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Assembler{
		opts:   opts,
		store:  metadata,
		chunks: chunks,
		blobs:  blobs,
		events: events,
		clock:  clock,
		log:    logger,
	}
}

// DestinationPath returns {storage_path}/{YYYY}/{MM}/{DD}/{filename} for the current time
func (a *Assembler) DestinationPath(session *models.UploadSession) string {
	now := a.clock.Now()
	return path.Join(session.StoragePath, now.Format("2006"), now.Format("01"), now.Format("02"), session.Filename)
}

// Assemble runs only if this call wins the uploading -> assembling transition.
// session is updated in place with the resulting state. Once the transition is
// won the work ignores cancellation of ctx so the session always leaves assembling.
func (a *Assembler) Assemble(ctx context.Context, session *models.UploadSession) AssemblyResult {
	won, err := a.store.TransitionSessionStatus(ctx, session.SessionID,
		[]models.SessionStatus{models.StatusPending, models.StatusUploading}, models.StatusAssembling)
	if err != nil {
		a.log.Error("Failed to lock session '%s' for assembly: %v", session.SessionID, err)
		return AssemblyResult{
			Outcome: OutcomeFailed,
			Status:  session.Status,
			Message: fmt.Sprintf("failed to start assembly: %v", err),
		}
	}
	if !won {
		if current, err := a.store.GetSession(ctx, session.SessionID); err == nil {
			*session = *current
		}
		return AssemblyResult{
			Outcome:     OutcomeBusy,
			Status:      session.Status,
			StoragePath: session.StoragePath,
			Hash:        session.Hash,
		}
	}
	session.Status = models.StatusAssembling

	ctx = context.WithoutCancel(ctx)
	result, err := a.assemble(ctx, session)
	if err != nil {
		return a.fail(ctx, session, err)
	}
	return result
}

func (a *Assembler) assemble(ctx context.Context, session *models.UploadSession) (AssemblyResult, error) {
	chunks, err := a.chunks.GetChunks(ctx, session)
	if err != nil {
		return AssemblyResult{}, fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(chunks) != session.TotalChunks {
		return AssemblyResult{}, fmt.Errorf("not all chunks are uploaded (%d of %d)", len(chunks), session.TotalChunks)
	}

	destination := a.DestinationPath(session)
	digest, err := a.write(session, destination, chunks)
	if err != nil {
		a.removeArtifact(session, destination)
		return AssemblyResult{}, err
	}

	if digest != "" {
		if session.Hash != "" && !digestEqual(session.Hash, digest) {
			a.removeArtifact(session, destination)
			return AssemblyResult{}, fmt.Errorf("file hash validation failed: expected %s, computed %s", session.Hash, digest)
		}
		session.Hash = digest
		session.HashAlgorithm = a.algorithm(session)
	}

	err = a.store.UpdateSessionFields(ctx, session.SessionID, map[string]any{
		"status":         models.StatusCompleted,
		"storage_path":   destination,
		"hash":           session.Hash,
		"hash_algorithm": session.HashAlgorithm,
		"error_message":  "",
	})
	if err != nil {
		a.removeArtifact(session, destination)
		return AssemblyResult{}, fmt.Errorf("failed to mark session completed: %w", err)
	}
	session.Status = models.StatusCompleted
	session.StoragePath = destination
	session.ErrorMessage = ""

	a.chunks.RemovePayloads(session, chunks)
	if !a.opts.KeepChunkRecords {
		if err := a.store.DeleteSessionChunks(ctx, session.ID); err != nil {
			a.log.Warn("Failed to delete chunk records of session '%s': %v", session.SessionID, err)
		}
	}

	a.events.Publish(ctx, Event{
		Type:    EventUploadCompleted,
		Session: *session,
		Time:    a.clock.Now(),
	})

	return AssemblyResult{
		Outcome:     OutcomeCompleted,
		Status:      models.StatusCompleted,
		StoragePath: destination,
		Hash:        session.Hash,
	}, nil
}

// write streams every chunk in index order into destination and returns the
// digest when hash validation is enabled.
func (a *Assembler) write(session *models.UploadSession, destination string, chunks []models.Chunk) (string, error) {
	out, err := a.blobs.Create(session.StorageDisk, destination)
	if err != nil {
		return "", fmt.Errorf("failed to create destination '%s': %w", destination, err)
	}

	var h hash.Hash
	var w io.Writer = out
	if a.opts.ValidateHash {
		if h, err = NewHash(a.algorithm(session)); err != nil {
			out.Close()
			return "", err
		}
		w = io.MultiWriter(out, h)
	}

	var total int64
	for i := range chunks {
		n, err := a.copyChunk(w, &chunks[i], i)
		if err != nil {
			out.Close()
			return "", err
		}
		total += n
	}

	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize destination '%s': %w", destination, err)
	}
	if total != session.TotalSize {
		return "", fmt.Errorf("assembled file size %d does not match expected size %d", total, session.TotalSize)
	}

	if h == nil {
		return "", nil
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (a *Assembler) copyChunk(w io.Writer, chunk *models.Chunk, expectedIndex int) (int64, error) {
	if chunk.ChunkIndex != expectedIndex {
		return 0, fmt.Errorf("chunk %d is missing", expectedIndex)
	}

	in, err := a.chunks.Open(chunk)
	if err != nil {
		return 0, fmt.Errorf("chunk file not found for chunk %d: %w", chunk.ChunkIndex, err)
	}
	defer in.Close()

	n, err := io.Copy(w, in)
	if err != nil {
		return n, fmt.Errorf("failed to read chunk %d: %w", chunk.ChunkIndex, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("failed to copy chunk %d: no bytes written", chunk.ChunkIndex)
	}
	return n, nil
}

func (a *Assembler) fail(ctx context.Context, session *models.UploadSession, cause error) AssemblyResult {
	message := cause.Error()
	a.log.Error("Assembly of session '%s' failed: %s", session.SessionID, message)

	err := a.store.UpdateSessionFields(ctx, session.SessionID, map[string]any{
		"status":        models.StatusFailed,
		"error_message": message,
	})
	if err != nil {
		a.log.Error("Failed to mark session '%s' as failed: %v", session.SessionID, err)
	}
	session.Status = models.StatusFailed
	session.ErrorMessage = message

	a.events.Publish(ctx, Event{
		Type:    EventUploadFailed,
		Session: *session,
		Error:   message,
		Time:    a.clock.Now(),
	})

	return AssemblyResult{
		Outcome: OutcomeFailed,
		Status:  models.StatusFailed,
		Message: message,
	}
}

func (a *Assembler) removeArtifact(session *models.UploadSession, destination string) {
	if err := a.blobs.Remove(session.StorageDisk, destination); err != nil {
		a.log.Warn("Failed to remove partial artifact '%s': %v", destination, err)
	}
}

func (a *Assembler) algorithm(session *models.UploadSession) string {
	if session.HashAlgorithm != "" {
		return session.HashAlgorithm
	}
	return a.opts.HashAlgorithm
}
