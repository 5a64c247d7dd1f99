package uploadhttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/mwantia/fluxupload/pkg/db/models"
	"github.com/mwantia/fluxupload/pkg/upload"
)

type chunkResponse struct {
	Success        bool                 `json:"success"`
	Message        string               `json:"message"`
	SessionID      string               `json:"session_id"`
	ChunkIndex     int                  `json:"chunk_index"`
	UploadedChunks int                  `json:"uploaded_chunks"`
	TotalChunks    int                  `json:"total_chunks"`
	Progress       float64              `json:"progress"`
	Status         models.SessionStatus `json:"status"`
	IsComplete     bool                 `json:"is_complete"`
	StoragePath    *string              `json:"storage_path,omitempty"`
}

func (s *Server) postChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			s.writeErrorStatus(w, http.StatusRequestEntityTooLarge, errTooLarge)
			return
		}
		s.writeError(w, validation("chunk", "The request must be multipart/form-data."))
		return
	}
	defer r.MultipartForm.RemoveAll()

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	switch {
	case sessionID == "":
		s.writeError(w, validation("session_id", "The session id field is required."))
		return
	case len(sessionID) > 64:
		s.writeError(w, validation("session_id", "The session id may not be greater than 64 characters."))
		return
	}

	index, err := strconv.Atoi(strings.TrimSpace(r.FormValue("chunk_index")))
	if err != nil || index < 0 {
		s.writeError(w, validation("chunk_index", "The chunk index must be an integer of at least 0."))
		return
	}

	file, header, err := r.FormFile("chunk")
	if err != nil {
		s.writeError(w, validation("chunk", "The chunk field must be a file."))
		return
	}
	defer file.Close()

	result, err := s.manager.UploadChunk(r.Context(), sessionID, index, file, header.Size)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := chunkResponse{
		Success:        true,
		Message:        "Chunk uploaded successfully",
		SessionID:      result.SessionID,
		ChunkIndex:     result.ChunkIndex,
		UploadedChunks: result.UploadedChunks,
		TotalChunks:    result.TotalChunks,
		Progress:       result.Progress,
		Status:         result.Status,
		IsComplete:     result.IsComplete,
	}
	if result.AlreadyCompleted {
		resp.Message = "Upload already completed"
	}
	if result.IsComplete {
		resp.StoragePath = &result.StoragePath
	}
	writeJSON(w, http.StatusOK, resp)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

var errTooLarge = &upload.Error{
	Code:    upload.CodeValidation,
	Message: "Request body is larger than the configured limit",
	Fields:  map[string]string{"body": "The request body is too large."},
}
