package uploadhttp

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/mwantia/fluxupload/pkg/upload"
)

type initRequest struct {
	Filename  string `json:"filename"`
	TotalSize int64  `json:"total_size"`
	ChunkSize int64  `json:"chunk_size"`
	MimeType  string `json:"mime_type"`
	Hash      string `json:"hash"`
	SessionID string `json:"session_id"`
}

type initResponse struct {
	Success        bool    `json:"success"`
	SessionID      string  `json:"session_id"`
	Resumed        bool    `json:"resumed"`
	TotalChunks    int     `json:"total_chunks"`
	ChunkSize      int64   `json:"chunk_size"`
	UploadedChunks int     `json:"uploaded_chunks"`
	MissingChunks  []int   `json:"missing_chunks"`
	Progress       float64 `json:"progress"`
}

func (s *Server) postInit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize)

	req, verr := decodeInitRequest(r)
	if verr == errTooLarge {
		s.writeErrorStatus(w, http.StatusRequestEntityTooLarge, verr)
		return
	}
	if verr != nil {
		s.writeError(w, verr)
		return
	}

	snapshot, err := s.manager.Initialize(r.Context(), upload.Descriptor{
		Filename:  req.Filename,
		TotalSize: req.TotalSize,
		ChunkSize: req.ChunkSize,
		MimeType:  req.MimeType,
		Hash:      req.Hash,
	}, req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, initResponse{
		Success:        true,
		SessionID:      snapshot.SessionID,
		Resumed:        snapshot.Resumed,
		TotalChunks:    snapshot.TotalChunks,
		ChunkSize:      snapshot.ChunkSize,
		UploadedChunks: snapshot.UploadedChunks,
		MissingChunks:  snapshot.MissingChunks,
		Progress:       snapshot.Progress,
	})
}

// decodeInitRequest accepts a JSON body or url-encoded/multipart form values
func decodeInitRequest(r *http.Request) (*initRequest, *upload.Error) {
	var req initRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "" || mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if isTooLarge(err) {
				return nil, errTooLarge
			}
			return nil, validation("body", "The request body must be a valid JSON object.")
		}
		return &req, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil && err != http.ErrNotMultipart {
		if isTooLarge(err) {
			return nil, errTooLarge
		}
		return nil, validation("body", "The request body could not be parsed.")
	}

	req.Filename = r.FormValue("filename")
	req.MimeType = r.FormValue("mime_type")
	req.Hash = r.FormValue("hash")
	req.SessionID = r.FormValue("session_id")

	for field, target := range map[string]*int64{"total_size": &req.TotalSize, "chunk_size": &req.ChunkSize} {
		value := strings.TrimSpace(r.FormValue(field))
		if value == "" {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, validation(field, "The "+strings.ReplaceAll(field, "_", " ")+" must be an integer.")
		}
		*target = n
	}
	return &req, nil
}
