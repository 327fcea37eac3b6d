package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/netcheck-agent/internal/domain"
)

func TestFileStore_RoundTrip(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	creds := domain.Credentials{
		AgentName: "agent-1",
		ServerURL: "https://coordinator.example",
		Token:     "personal-token",
		IssuedAt:  issued,
		Metadata:  map[string]string{"Region": "eu", "region": "us"},
	}

	for _, name := range []string{"creds.json", "creds.yaml", "creds.yml", "creds.toml"} {
		t.Run(name, func(t *testing.T) {
			store := NewFileStore(filepath.Join(t.TempDir(), "nested", name))
			require.NoError(t, store.Save(creds))

			got, err := store.Load()
			require.NoError(t, err)
			assert.Equal(t, creds.Token, got.Token)
			assert.Equal(t, creds.AgentName, got.AgentName)
			assert.Equal(t, creds.ServerURL, got.ServerURL)
			assert.True(t, issued.Equal(got.IssuedAt), got.IssuedAt)
			assert.Equal(t, creds.Metadata, got.Metadata)
		})
	}
}

func TestFileStore_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, NewFileStore(path).Save(domain.Credentials{Token: "x"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_Missing(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "absent.json")).Load()
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStore_UnsupportedExtension(t *testing.T) {
	err := NewFileStore(filepath.Join(t.TempDir(), "creds.ini")).Save(domain.Credentials{Token: "x"})
	assert.Error(t, err)
}

func TestFileStore_OverwritesExisting(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "creds.yaml"))
	require.NoError(t, store.Save(domain.Credentials{AgentName: "a", Token: "old"}))
	require.NoError(t, store.Save(domain.Credentials{AgentName: "a", Token: "new"}))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "new", got.Token)
}
