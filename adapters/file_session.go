package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/entities"
	"github.com/satriahrh/bpmn-voice/domain/repositories"
)

// FileSessionRepository stores each record as a JSON file named after its
// key inside a data directory.
type FileSessionRepository struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

var (
	_ repositories.SessionRepository    = (*FileSessionRepository)(nil)
	_ repositories.CredentialRepository = (*FileSessionRepository)(nil)
)

// NewFileSessionRepository creates a new file backed session repository,
// creating dir when it does not exist.
func NewFileSessionRepository(dir string, logger *zap.Logger) (*FileSessionRepository, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileSessionRepository{dir: dir, logger: logger}, nil
}

// LoadSessions implements repositories.SessionRepository
func (f *FileSessionRepository) LoadSessions(ctx context.Context) ([]*entities.Session, error) {
	var sessions []*entities.Session
	if err := f.read(repositories.SessionsKey, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SaveSessions implements repositories.SessionRepository
func (f *FileSessionRepository) SaveSessions(ctx context.Context, sessions []*entities.Session) error {
	for _, s := range sessions {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("failed to save sessions: %w", err)
		}
	}
	return f.write(repositories.SessionsKey, sessions)
}

// LoadActiveSessionID implements repositories.SessionRepository
func (f *FileSessionRepository) LoadActiveSessionID(ctx context.Context) (string, error) {
	var id string
	if err := f.read(repositories.ActiveSessionKey, &id); err != nil {
		return "", err
	}
	return id, nil
}

// SaveActiveSessionID implements repositories.SessionRepository
func (f *FileSessionRepository) SaveActiveSessionID(ctx context.Context, id string) error {
	return f.write(repositories.ActiveSessionKey, id)
}

// LoadAPIKey implements repositories.CredentialRepository
func (f *FileSessionRepository) LoadAPIKey(ctx context.Context) (string, error) {
	var key string
	if err := f.read(repositories.APIKeyKey, &key); err != nil {
		return "", err
	}
	return key, nil
}

// SaveAPIKey implements repositories.CredentialRepository
func (f *FileSessionRepository) SaveAPIKey(ctx context.Context, key string) error {
	return f.write(repositories.APIKeyKey, key)
}

func (f *FileSessionRepository) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *FileSessionRepository) read(key string, out interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return repositories.ErrRecordNotFound
		}
		return fmt.Errorf("failed to read record %s: %w", key, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		f.logger.Error("Corrupt record on disk", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return nil
}

// write replaces the record atomically through a temp file and rename
func (f *FileSessionRepository) write(key string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace record %s: %w", key, err)
	}
	return nil
}
