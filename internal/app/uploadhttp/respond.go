package uploadhttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mwantia/fluxupload/pkg/upload"
)

type errorResponse struct {
	Success      bool              `json:"success"`
	Error        string            `json:"error"`
	Code         upload.Code       `json:"code"`
	Errors       map[string]string `json:"errors,omitempty"`
	ExpectedSize *int64            `json:"expected_size,omitempty"`
	ReceivedSize *int64            `json:"received_size,omitempty"`
}

func statusFor(code upload.Code) int {
	switch code {
	case upload.CodeSessionNotFound:
		return http.StatusNotFound
	case upload.CodeSessionExpired:
		return http.StatusGone
	case upload.CodeSessionFailed, upload.CodeNotResumable:
		return http.StatusConflict
	case upload.CodeValidation, upload.CodeFileTooLarge, upload.CodeExtensionNotAllowed, upload.CodeInvalidChunk:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var uerr *upload.Error
	if !errors.As(err, &uerr) {
		uerr = &upload.Error{Code: upload.CodeInternal, Message: "Internal server error", Err: err}
	}

	status := statusFor(uerr.Code)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed: %v", err)
	}
	s.writeErrorStatus(w, status, uerr)
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, status int, uerr *upload.Error) {
	resp := errorResponse{
		Success: false,
		Error:   uerr.Message,
		Code:    uerr.Code,
		Errors:  uerr.Fields,
	}
	if uerr.Code == upload.CodeInvalidChunk {
		resp.ExpectedSize = &uerr.Expected
		resp.ReceivedSize = &uerr.Received
	}
	writeJSON(w, status, resp)
}

func validation(field, message string) *upload.Error {
	return &upload.Error{
		Code:    upload.CodeValidation,
		Message: "The given data was invalid",
		Fields:  map[string]string{field: message},
	}
}
