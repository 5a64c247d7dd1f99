package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatIndices(t *testing.T) {
	assert.Equal(t, "1, 4, 7", formatIndices([]int{1, 4, 7}, 5))
	assert.Equal(t, "0, 1, ... (3 more)", formatIndices([]int{0, 1, 2, 3, 4}, 2))
	assert.Empty(t, formatIndices(nil, 3))
}
