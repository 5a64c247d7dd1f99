package uploadhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mwantia/fluxupload/pkg/db/models"
)

type statusResponse struct {
	Success        bool                 `json:"success"`
	SessionID      string               `json:"session_id"`
	Filename       string               `json:"filename"`
	Status         models.SessionStatus `json:"status"`
	UploadedChunks int                  `json:"uploaded_chunks"`
	TotalChunks    int                  `json:"total_chunks"`
	TotalSize      int64                `json:"total_size"`
	Progress       float64              `json:"progress"`
	MissingChunks  []int                `json:"missing_chunks"`
	StoragePath    *string              `json:"storage_path"`
	ErrorMessage   *string              `json:"error_message"`
	ExpiresAt      string               `json:"expires_at"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.manager.Status(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := statusResponse{
		Success:        true,
		SessionID:      snapshot.SessionID,
		Filename:       snapshot.Filename,
		Status:         snapshot.Status,
		UploadedChunks: snapshot.UploadedChunks,
		TotalChunks:    snapshot.TotalChunks,
		TotalSize:      snapshot.TotalSize,
		Progress:       snapshot.Progress,
		MissingChunks:  snapshot.MissingChunks,
		ExpiresAt:      snapshot.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if snapshot.Status == models.StatusCompleted {
		resp.StoragePath = &snapshot.StoragePath
	}
	if snapshot.ErrorMessage != "" {
		resp.ErrorMessage = &snapshot.ErrorMessage
	}
	writeJSON(w, http.StatusOK, resp)
}
