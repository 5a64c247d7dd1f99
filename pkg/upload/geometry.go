package upload

import (
	"math"

	"github.com/mwantia/fluxupload/pkg/db/models"
)

// CalculateTotalChunks returns ceil(totalSize / chunkSize)
func CalculateTotalChunks(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// ExpectedChunkSize returns the size a chunk at index should have.
// Every chunk but the last is chunk_size; the last one carries the remainder.
func ExpectedChunkSize(session *models.UploadSession, index int) int64 {
	if index == session.TotalChunks-1 {
		remaining := session.TotalSize - session.ChunkSize*int64(session.TotalChunks-1)
		if remaining > 0 {
			return remaining
		}
	}
	return session.ChunkSize
}

// IsValidChunk reports whether a chunk fits the session geometry.
// Non-last chunks tolerate a one byte difference; the last chunk may be short.
func IsValidChunk(session *models.UploadSession, index int, size int64) bool {
	if index < 0 || index >= session.TotalChunks {
		return false
	}
	if size <= 0 || size > session.ChunkSize {
		return false
	}

	expected := ExpectedChunkSize(session, index)
	if index == session.TotalChunks-1 {
		return size <= expected
	}

	diff := size - expected
	return diff >= -1 && diff <= 1
}

// ValidateChunk is IsValidChunk returning an invalid_chunk error with diagnostics
func ValidateChunk(session *models.UploadSession, index int, size int64) error {
	if IsValidChunk(session, index, size) {
		return nil
	}

	var expected int64
	if index >= 0 && index < session.TotalChunks {
		expected = ExpectedChunkSize(session, index)
	}
	return invalidChunkError(index, expected, size)
}

// MissingChunkIndices returns {0..total-1} minus uploaded, sorted ascending
func MissingChunkIndices(total int, uploaded []int) []int {
	present := make(map[int]struct{}, len(uploaded))
	for _, index := range uploaded {
		present[index] = struct{}{}
	}

	missing := make([]int, 0, max(total-len(present), 0))
	for index := 0; index < total; index++ {
		if _, ok := present[index]; !ok {
			missing = append(missing, index)
		}
	}
	return missing
}

// Progress returns the uploaded percentage rounded to two decimals
func Progress(uploaded, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(uploaded)/float64(total)*10000) / 100
}
