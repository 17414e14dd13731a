package fsutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeBytes(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}

func TestFreeBytesMissingPath(t *testing.T) {
	_, err := FreeBytes("/definitely/not/a/path")
	assert.Error(t, err)
}
