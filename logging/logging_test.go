package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/greut/iiif-tiler/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogger(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "iiif.log")

	logger, err := New(config.Log{Level: "info", File: filename, MaxSize: 1})
	require.NoError(t, err)

	logger.Named("worker").Info("derivative stored")
	logger.Debug("not written")
	_ = logger.Sync()

	content, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"logger":"worker"`)
	assert.Contains(t, string(content), "derivative stored")
	assert.NotContains(t, string(content), "not written")
}

func TestBadLevel(t *testing.T) {
	_, err := New(config.Log{Level: "loud"})
	assert.Error(t, err)
}
