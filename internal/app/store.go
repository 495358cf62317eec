package app

import (
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/alarmd/internal/storage"
)

// OpenStore opens the AlarmStore selected by cfg.StoreBackend.
func OpenStore(cfg RuntimeConfig, logger *slog.Logger) (storage.AlarmStore, error) {
	switch cfg.StoreBackend {
	case BackendSQLite:
		return storage.OpenSQLite(cfg.StorePath, logger)
	case BackendJSON:
		return storage.NewFileStore(cfg.StorePath, logger)
	case BackendBadger:
		return storage.OpenBadger(storage.BadgerConfig{Path: cfg.StorePath, SyncWrites: true, Logger: logger})
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, cfg.StoreBackend)
	}
}

// WatchPath returns the file the store watcher should follow, or "" when the
// backend does not support external edits.
func WatchPath(cfg RuntimeConfig) string {
	if !cfg.WatchStore || cfg.StoreBackend != BackendJSON {
		return ""
	}
	return cfg.StorePath
}
