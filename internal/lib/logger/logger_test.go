package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")

	log, closer := Setup(EnvProd, FileConfig{Path: path})
	log.Info("logger_test_message")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "logger_test_message")
}

func TestSetup_NoFile(t *testing.T) {
	log, closer := Setup(EnvLocal, FileConfig{})
	require.NotNil(t, log)
	assert.NoError(t, closer.Close())
}
