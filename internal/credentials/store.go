// Package credentials persists the personal token issued to the agent.
package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"ozzus/netcheck-agent/internal/domain"
)

var ErrNotFound = errors.New("credentials not found")

type Store interface {
	Load() (domain.Credentials, error)
	Save(creds domain.Credentials) error
}

// FileStore keeps credentials in one file; the extension selects the format
// (.json, .yaml/.yml or .toml).
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (domain.Credentials, error) {
	const op = "credentials.Load"

	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Credentials{}, ErrNotFound
		}
		return domain.Credentials{}, fmt.Errorf("%s: %w", op, err)
	}

	var creds domain.Credentials
	if err := cleanenv.ReadConfig(s.path, &creds); err != nil {
		return domain.Credentials{}, fmt.Errorf("%s: %w", op, err)
	}
	return creds, nil
}

// Save writes the file atomically with owner-only permissions.
func (s *FileStore) Save(creds domain.Credentials) error {
	const op = "credentials.Save"

	data, err := encode(s.path, creds)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func encode(path string, creds domain.Credentials) ([]byte, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return json.MarshalIndent(creds, "", "  ")
	case ".yaml", ".yml":
		return yaml.Marshal(creds)
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported credentials file extension %q", ext)
	}
}
