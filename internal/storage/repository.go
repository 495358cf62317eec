package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandeepkv93/alarmd/internal/model"
)

var (
	ErrUnavailable = errors.New("storage: medium unavailable")
	ErrCorrupt     = errors.New("storage: corrupt document")
)

// AlarmStore persists the whole alarm set. LoadAll returns records in the
// order they were saved and may be called any number of times.
type AlarmStore interface {
	LoadAll(ctx context.Context) ([]model.Alarm, error)
	SaveAll(ctx context.Context, alarms []model.Alarm) error
	Close() error
}

// Purger is implemented by stores that can drop everything they hold and
// return to an empty, usable state.
type Purger interface {
	Purge(ctx context.Context) error
}

var (
	_ Purger = (*SQLiteRepository)(nil)
	_ Purger = (*FileStore)(nil)
	_ Purger = (*BadgerStore)(nil)
)

// StorageError wraps any failure of the underlying medium.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Path: path, Err: err}
}
