package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sandeepkv93/alarmd/internal/model"
)

// FileStore keeps the alarm set in a single JSON document. Writes go to a
// sibling temp file that is renamed into place.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage: file store path is required")
	}
	return &FileStore{path: path, logger: loggerOrDefault(logger).With("store", "json", "path", path)}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) LoadAll(ctx context.Context) ([]model.Alarm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.Alarm{}, nil
		}
		return nil, storageErr("load", s.path, errors.Join(ErrUnavailable, err))
	}
	alarms, err := decodeDocument(raw, s.logger)
	if err != nil {
		return nil, storageErr("load", s.path, err)
	}
	return alarms, nil
}

func (s *FileStore) SaveAll(ctx context.Context, alarms []model.Alarm) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encodeDocument(alarms)
	if err != nil {
		return storageErr("encode", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return storageErr("save", s.path, errors.Join(ErrUnavailable, err))
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		_ = os.Remove(tmp)
		return storageErr("save", s.path, errors.Join(ErrUnavailable, err))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return storageErr("save", s.path, errors.Join(ErrUnavailable, err))
	}
	return nil
}

// Purge removes the document. A missing file already is the empty state.
func (s *FileStore) Purge(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return storageErr("purge", s.path, err)
	}
	s.logger.Info("store purged", "path", s.path)
	return nil
}

func (s *FileStore) Close() error { return nil }
