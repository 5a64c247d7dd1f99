package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/fluxupload/pkg/db/models"
	"github.com/mwantia/fluxupload/pkg/db/store"
	"github.com/mwantia/fluxupload/pkg/log"
	"github.com/spf13/afero"
)

const (
	maxFilenameLength  = 255
	maxMimeTypeLength  = 255
	maxSessionIDLength = 64
	sessionIDAttempts  = 5
)

// Descriptor is the client supplied description of a file to upload
type Descriptor struct {
	Filename  string
	TotalSize int64
	ChunkSize int64 // Zero selects the configured default
	MimeType  string
	Hash      string
}

// Snapshot is the externally visible state of a session
type Snapshot struct {
	SessionID      string
	Filename       string
	Status         models.SessionStatus
	Resumed        bool
	TotalSize      int64
	TotalChunks    int
	ChunkSize      int64
	UploadedChunks int
	MissingChunks  []int
	Progress       float64
	StoragePath    string // Only set once completed
	Hash           string
	ErrorMessage   string
	ExpiresAt      time.Time
}

// ChunkResult describes the state after a chunk upload
type ChunkResult struct {
	Snapshot
	ChunkIndex       int
	IsComplete       bool
	AlreadyCompleted bool
}

// ManagerConfig bundles the collaborators of a Manager
type ManagerConfig struct {
	Options Options
	Store   store.MetadataStore
	ChunkFs afero.Fs
	Blobs   BlobStore
	Events  EventSink
	Clock   Clock
	IDs     IDGenerator
	Logger  log.LoggerService
}

// Manager orchestrates session creation, chunk intake, assembly and sweeps
type Manager struct {
	opts      Options
	store     store.MetadataStore
	chunks    *ChunkStore
	assembler *Assembler
	events    EventSink
	clock     Clock
	ids       IDGenerator
	log       log.LoggerService
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.Options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid upload options: %w", err)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if cfg.ChunkFs == nil {
		return nil, fmt.Errorf("chunk filesystem is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.Events == nil {
		cfg.Events = NopSink()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.IDs == nil {
		cfg.IDs = UUIDGenerator()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}

	chunks := NewChunkStore(cfg.Options, cfg.Store, cfg.ChunkFs, cfg.Events, cfg.Clock, cfg.Logger.Named("chunks"))
	assembler := NewAssembler(cfg.Options, cfg.Store, chunks, cfg.Blobs, cfg.Events, cfg.Clock, cfg.Logger.Named("assembly"))

	return &Manager{
		opts:      cfg.Options,
		store:     cfg.Store,
		chunks:    chunks,
		assembler: assembler,
		events:    cfg.Events,
		clock:     cfg.Clock,
		ids:       cfg.IDs,
		log:       cfg.Logger,
	}, nil
}

func (m *Manager) Options() Options     { return m.opts }
func (m *Manager) Chunks() *ChunkStore   { return m.chunks }
func (m *Manager) Assembler() *Assembler { return m.assembler }

// Initialize resumes sessionID when possible and otherwise creates a new session
func (m *Manager) Initialize(ctx context.Context, desc Descriptor, sessionID string) (*Snapshot, error) {
	if err := m.validateDescriptor(desc, sessionID); err != nil {
		return nil, err
	}

	if sessionID != "" {
		session, err := m.FindOrResumeSession(ctx, sessionID, desc)
		if err == nil {
			snapshot, err := m.snapshot(ctx, session)
			if err != nil {
				return nil, err
			}
			snapshot.Resumed = true
			return snapshot, nil
		}
		if !errors.Is(err, ErrNotResumable) {
			return nil, err
		}
		m.log.Debug("Session '%s' is not resumable, creating a new one", sessionID)
	}

	session, err := m.CreateSession(ctx, desc)
	if err != nil {
		return nil, err
	}
	return m.snapshot(ctx, session)
}

func (m *Manager) validateDescriptor(desc Descriptor, sessionID string) error {
	fields := map[string]string{}
	switch {
	case strings.TrimSpace(desc.Filename) == "":
		fields["filename"] = "The filename field is required."
	case len(desc.Filename) > maxFilenameLength:
		fields["filename"] = fmt.Sprintf("The filename may not be greater than %d characters.", maxFilenameLength)
	}
	if desc.TotalSize < 1 {
		fields["total_size"] = "The total size must be at least 1."
	}
	if desc.ChunkSize != 0 && desc.ChunkSize < m.opts.MinChunkSize {
		fields["chunk_size"] = fmt.Sprintf("The chunk size must be at least %d.", m.opts.MinChunkSize)
	}
	if len(desc.MimeType) > maxMimeTypeLength {
		fields["mime_type"] = fmt.Sprintf("The mime type may not be greater than %d characters.", maxMimeTypeLength)
	}
	if len(sessionID) > maxSessionIDLength {
		fields["session_id"] = fmt.Sprintf("The session id may not be greater than %d characters.", maxSessionIDLength)
	}
	if len(fields) > 0 {
		return validationError(fields)
	}

	if desc.TotalSize > m.opts.MaxFileSize {
		return &Error{
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %s", humanize.IBytes(uint64(m.opts.MaxFileSize))),
		}
	}
	return nil
}

// CreateSession validates desc and persists a new pending session
func (m *Manager) CreateSession(ctx context.Context, desc Descriptor) (*models.UploadSession, error) {
	if err := m.validateDescriptor(desc, ""); err != nil {
		return nil, err
	}

	extension := strings.TrimPrefix(path.Ext(desc.Filename), ".")
	if !m.opts.extensionAllowed(extension) {
		return nil, &Error{
			Code:    CodeExtensionNotAllowed,
			Message: fmt.Sprintf("File extension '%s' is not allowed", extension),
		}
	}

	chunkSize := desc.ChunkSize
	if chunkSize == 0 {
		chunkSize = m.opts.ChunkSize
	}

	sessionID, err := m.generateSessionID(ctx)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	session := &models.UploadSession{
		SessionID:        sessionID,
		Filename:         m.ids.StorageName(extension),
		OriginalFilename: desc.Filename,
		Extension:        extension,
		MimeType:         desc.MimeType,
		TotalSize:        desc.TotalSize,
		TotalChunks:      CalculateTotalChunks(desc.TotalSize, chunkSize),
		ChunkSize:        chunkSize,
		Hash:             strings.ToLower(strings.TrimSpace(desc.Hash)),
		HashAlgorithm:    m.opts.HashAlgorithm,
		StorageDisk:      m.opts.StorageDisk,
		StoragePath:      m.opts.StoragePath,
		Status:           models.StatusPending,
		ExpiresAt:        now.Add(m.opts.SessionTTL).UTC(),
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, internalError("Failed to create session", err)
	}

	m.log.Info("Created session '%s' for '%s' (%s in %d chunks)",
		session.SessionID, session.OriginalFilename, humanize.IBytes(uint64(session.TotalSize)), session.TotalChunks)
	return session, nil
}

func (m *Manager) generateSessionID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < sessionIDAttempts; attempt++ {
		id := m.ids.SessionID()
		exists, err := m.store.SessionExists(ctx, id)
		if err != nil {
			return "", internalError("Failed to check session id", err)
		}
		if !exists {
			return id, nil
		}
		m.log.Warn("Session id collision on '%s', retrying", id)
	}
	return "", internalError("Failed to generate a unique session id", nil)
}

// FindOrResumeSession returns sessionID flipped to uploading, or ErrNotResumable when
// the session is unknown, expired, completed, assembling or describes another file.
func (m *Manager) FindOrResumeSession(ctx context.Context, sessionID string, desc Descriptor) (*models.UploadSession, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotResumable
		}
		return nil, internalError("Failed to load session", err)
	}

	if session.IsExpired(m.clock.Now()) || session.Status == models.StatusCompleted || session.Status == models.StatusAssembling {
		return nil, ErrNotResumable
	}
	if desc.TotalSize != 0 && desc.TotalSize != session.TotalSize {
		return nil, ErrNotResumable
	}

	if session.Status != models.StatusUploading {
		won, err := m.store.TransitionSessionStatus(ctx, sessionID,
			[]models.SessionStatus{models.StatusPending, models.StatusFailed}, models.StatusUploading)
		if err != nil {
			return nil, internalError("Failed to resume session", err)
		}
		if !won {
			// Lost to a concurrent transition; report what is stored now
			if session, err = m.store.GetSession(ctx, sessionID); err != nil {
				return nil, internalError("Failed to load session", err)
			}
			if session.Status != models.StatusUploading {
				return nil, ErrNotResumable
			}
			return session, nil
		}
		session.Status = models.StatusUploading
		session.ErrorMessage = ""
	}

	m.log.Debug("Resumed session '%s'", sessionID)
	return session, nil
}

// UploadChunk stores one chunk and assembles the file once every chunk is present
func (m *Manager) UploadChunk(ctx context.Context, sessionID string, index int, payload io.Reader, size int64) (*ChunkResult, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, internalError("Failed to load session", err)
	}

	if session.IsExpired(m.clock.Now()) {
		return nil, ErrSessionExpired
	}

	switch session.Status {
	case models.StatusCompleted:
		return m.chunkResult(ctx, session, index, true)
	case models.StatusAssembling:
		// Another request completed the set; absorb the duplicate
		return m.chunkResult(ctx, session, index, false)
	case models.StatusFailed:
		return nil, &Error{
			Code:    CodeSessionFailed,
			Message: "Upload failed, resume the session before sending more chunks",
		}
	}

	if err := m.chunks.ValidateChunk(session, index, size); err != nil {
		return nil, err
	}

	if _, err := m.chunks.StoreChunk(ctx, session, index, payload, size); err != nil {
		return nil, err
	}

	count, err := m.chunks.CountChunks(ctx, session)
	if err != nil {
		return nil, internalError("Failed to count chunks", err)
	}

	if count == session.TotalChunks {
		result := m.assembler.Assemble(ctx, session)
		if result.Outcome == OutcomeFailed {
			return nil, &Error{
				Code:    CodeAssemblyFailed,
				Message: fmt.Sprintf("Failed to upload chunk: %s", result.Message),
			}
		}
	}

	return m.chunkResult(ctx, session, index, false)
}

func (m *Manager) chunkResult(ctx context.Context, session *models.UploadSession, index int, alreadyCompleted bool) (*ChunkResult, error) {
	snapshot, err := m.snapshot(ctx, session)
	if err != nil {
		return nil, err
	}
	return &ChunkResult{
		Snapshot:         *snapshot,
		ChunkIndex:       index,
		IsComplete:       session.Status == models.StatusCompleted,
		AlreadyCompleted: alreadyCompleted,
	}, nil
}

// Status returns the current snapshot of sessionID
func (m *Manager) Status(ctx context.Context, sessionID string) (*Snapshot, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, internalError("Failed to load session", err)
	}
	return m.snapshot(ctx, session)
}

func (m *Manager) snapshot(ctx context.Context, session *models.UploadSession) (*Snapshot, error) {
	uploaded, err := m.chunks.UploadedIndices(ctx, session)
	if err != nil {
		return nil, internalError("Failed to list chunks", err)
	}

	snapshot := &Snapshot{
		SessionID:      session.SessionID,
		Filename:       session.OriginalFilename,
		Status:         session.Status,
		TotalSize:      session.TotalSize,
		TotalChunks:    session.TotalChunks,
		ChunkSize:      session.ChunkSize,
		UploadedChunks: len(uploaded),
		MissingChunks:  MissingChunkIndices(session.TotalChunks, uploaded),
		Progress:       Progress(len(uploaded), session.TotalChunks),
		ErrorMessage:   session.ErrorMessage,
		ExpiresAt:      session.ExpiresAt,
	}
	if session.Status == models.StatusCompleted {
		snapshot.StoragePath = session.StoragePath
		snapshot.Hash = session.Hash
		// Chunk records may have been dropped after assembly
		snapshot.UploadedChunks = session.TotalChunks
		snapshot.MissingChunks = []int{}
		snapshot.Progress = 100
	}
	return snapshot, nil
}

// CleanExpiredSessions removes expired sessions and completed sessions older than the
// completed grace period, skipping sessions that are assembling. A dry run only counts.
func (m *Manager) CleanExpiredSessions(ctx context.Context, dryRun bool) (int, error) {
	now := m.clock.Now()
	sessions, err := m.store.ListReclaimableSessions(ctx, now, now.Add(-m.opts.CompletedGrace))
	if err != nil {
		return 0, fmt.Errorf("failed to list reclaimable sessions: %w", err)
	}
	if dryRun {
		return len(sessions), nil
	}

	cleaned := 0
	for i := range sessions {
		if err := ctx.Err(); err != nil {
			return cleaned, err
		}
		session := &sessions[i]
		if err := m.reclaim(ctx, session); err != nil {
			m.log.Error("Failed to clean session '%s': %v", session.SessionID, err)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		m.log.Info("Cleaned %d expired session(s)", cleaned)
	}
	return cleaned, nil
}

func (m *Manager) reclaim(ctx context.Context, session *models.UploadSession) error {
	chunks, err := m.chunks.GetChunks(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}
	m.chunks.RemovePayloads(session, chunks)
	return m.store.DeleteSession(ctx, session.ID)
}

// FailStuckAssemblies marks sessions that stayed in assembling longer than the
// stuck assembly timeout as failed. A dry run only counts.
func (m *Manager) FailStuckAssemblies(ctx context.Context, dryRun bool) (int, error) {
	if m.opts.StuckAssemblyTimeout <= 0 {
		return 0, nil
	}

	sessions, err := m.store.ListStuckSessions(ctx, m.clock.Now().Add(-m.opts.StuckAssemblyTimeout))
	if err != nil {
		return 0, fmt.Errorf("failed to list stuck sessions: %w", err)
	}
	if dryRun {
		return len(sessions), nil
	}

	failed := 0
	for i := range sessions {
		session := &sessions[i]
		won, err := m.store.TransitionSessionStatus(ctx, session.SessionID,
			[]models.SessionStatus{models.StatusAssembling}, models.StatusFailed)
		if err != nil {
			m.log.Error("Failed to fail stuck session '%s': %v", session.SessionID, err)
			continue
		}
		if !won {
			continue
		}

		const message = "assembly interrupted"
		if err := m.store.UpdateSessionFields(ctx, session.SessionID, map[string]any{"error_message": message}); err != nil {
			m.log.Warn("Failed to record failure of session '%s': %v", session.SessionID, err)
		}
		session.Status = models.StatusFailed
		session.ErrorMessage = message

		m.events.Publish(ctx, Event{
			Type:    EventUploadFailed,
			Session: *session,
			Error:   message,
			Time:    m.clock.Now(),
		})
		failed++
	}

	if failed > 0 {
		m.log.Warn("Marked %d stuck assembly session(s) as failed", failed)
	}
	return failed, nil
}

// SweepResult summarizes one maintenance pass
type SweepResult struct {
	Cleaned     int
	StuckFailed int
	DryRun      bool
}

// Sweep fails stuck assemblies and then reclaims expired sessions
func (m *Manager) Sweep(ctx context.Context, dryRun bool) (SweepResult, error) {
	result := SweepResult{DryRun: dryRun}

	stuck, err := m.FailStuckAssemblies(ctx, dryRun)
	if err != nil {
		return result, err
	}
	result.StuckFailed = stuck

	cleaned, err := m.CleanExpiredSessions(ctx, dryRun)
	if err != nil {
		return result, err
	}
	result.Cleaned = cleaned
	return result, nil
}
