package client

import "fmt"

type InitRequest struct {
	Filename  string `json:"filename"`
	TotalSize int64  `json:"total_size"`
	ChunkSize int64  `json:"chunk_size,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	Hash      string `json:"hash,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type InitResponse struct {
	SessionID      string  `json:"session_id"`
	Resumed        bool    `json:"resumed"`
	TotalChunks    int     `json:"total_chunks"`
	ChunkSize      int64   `json:"chunk_size"`
	UploadedChunks int     `json:"uploaded_chunks"`
	MissingChunks  []int   `json:"missing_chunks"`
	Progress       float64 `json:"progress"`
}

type ChunkResponse struct {
	Message        string  `json:"message"`
	SessionID      string  `json:"session_id"`
	ChunkIndex     int     `json:"chunk_index"`
	UploadedChunks int     `json:"uploaded_chunks"`
	TotalChunks    int     `json:"total_chunks"`
	Progress       float64 `json:"progress"`
	Status         string  `json:"status"`
	IsComplete     bool    `json:"is_complete"`
	StoragePath    string  `json:"storage_path"`
}

type StatusResponse struct {
	SessionID      string  `json:"session_id"`
	Filename       string  `json:"filename"`
	Status         string  `json:"status"`
	UploadedChunks int     `json:"uploaded_chunks"`
	TotalChunks    int     `json:"total_chunks"`
	TotalSize      int64   `json:"total_size"`
	Progress       float64 `json:"progress"`
	MissingChunks  []int   `json:"missing_chunks"`
	StoragePath    *string `json:"storage_path"`
	ErrorMessage   *string `json:"error_message"`
	ExpiresAt      string  `json:"expires_at"`
}

type CleanResponse struct {
	DryRun      bool `json:"dry_run"`
	Count       int  `json:"count"`
	StuckFailed int  `json:"stuck_failed"`
}

// APIError is a non-2xx response from the upload service
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"error"`
	Errors     map[string]string `json:"errors"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upload service returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("upload service returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether repeating the request may succeed
func (e *APIError) Retryable() bool {
	if e.Code == "assembly_failed" {
		return false
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}
