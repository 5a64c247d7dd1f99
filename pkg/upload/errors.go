package upload

import (
	"errors"
	"fmt"
)

// Code is a stable, machine readable error category
type Code string

const (
	CodeValidation          Code = "validation_failed"
	CodeFileTooLarge        Code = "file_too_large"
	CodeExtensionNotAllowed Code = "extension_not_allowed"
	CodeSessionNotFound     Code = "session_not_found"
	CodeSessionExpired      Code = "session_expired"
	CodeSessionFailed       Code = "session_failed"
	CodeNotResumable        Code = "not_resumable"
	CodeInvalidChunk        Code = "invalid_chunk"
	CodeAssemblyFailed      Code = "assembly_failed"
	CodeInternal            Code = "internal_error"
)

// Error is returned by every core operation that fails in a way callers can act on
type Error struct {
	Code    Code
	Message string

	// Field level problems for CodeValidation
	Fields map[string]string

	// Expected and received chunk size for CodeInvalidChunk
	Expected int64
	Received int64

	Err error
}

var (
	ErrSessionNotFound = &Error{Code: CodeSessionNotFound, Message: "Session not found"}
	ErrSessionExpired  = &Error{Code: CodeSessionExpired, Message: "Session expired"}
	ErrNotResumable    = &Error{Code: CodeNotResumable, Message: "Session cannot be resumed"}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func validationError(fields map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: "The given data was invalid", Fields: fields}
}

func invalidChunkError(index int, expected, received int64) *Error {
	return &Error{
		Code:     CodeInvalidChunk,
		Message:  fmt.Sprintf("Invalid chunk size or index (chunk %d: expected %d bytes, received %d)", index, expected, received),
		Expected: expected,
		Received: received,
	}
}

func internalError(message string, err error) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: err}
}
