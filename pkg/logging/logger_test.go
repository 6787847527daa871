package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitsByLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, err := NewWithWriters("info", &stdout, &stderr)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("training")
	logger.Warn("falling back")
	logger.Error("broken")
	require.NoError(t, logger.Sync())

	assert.Contains(t, stdout.String(), "training")
	assert.NotContains(t, stdout.String(), "hidden")
	assert.NotContains(t, stdout.String(), "broken")
	assert.NotContains(t, stdout.String(), "falling back")
	assert.Contains(t, stderr.String(), "broken")
	assert.Contains(t, stderr.String(), "falling back")
	assert.NotContains(t, stderr.String(), "training")
}

func TestBadLevel(t *testing.T) {
	_, err := NewWithWriters("loud", &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}
