package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/sandeepkv93/alarmd/internal/model"
)

var (
	badgerOrderKey  = []byte("alarm/order")
	badgerRecPrefix = []byte("alarm/rec/")
)

type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

// BadgerStore keeps each alarm under its own key plus an order key listing
// the ids, so a damaged record only loses that alarm.
type BadgerStore struct {
	db     *badger.DB
	path   string
	logger *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	logger := loggerOrDefault(cfg.Logger).With("store", "badger")
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("storage: badger path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, storageErr("open", cfg.Path, errors.Join(ErrUnavailable, err))
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storageErr("open", cfg.Path, errors.Join(ErrUnavailable, err))
	}
	return &BadgerStore{db: db, path: cfg.Path, logger: logger}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Purge(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DropAll(); err != nil {
		return storageErr("purge", s.path, err)
	}
	s.logger.Info("store purged", "path", s.path)
	return nil
}

func (s *BadgerStore) LoadAll(ctx context.Context) ([]model.Alarm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Alarm, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := readOrder(txn)
		if err != nil {
			return err
		}
		for _, id := range ids {
			item, getErr := txn.Get(recordKey(id))
			if errors.Is(getErr, badger.ErrKeyNotFound) {
				s.logger.Warn("skipping alarm missing from store", "alarm_id", id)
				continue
			}
			if getErr != nil {
				return getErr
			}
			raw, valErr := item.ValueCopy(nil)
			if valErr != nil {
				return valErr
			}
			a, decErr := decodeRecord(raw)
			if decErr != nil || a.ID != id {
				s.logger.Warn("skipping unreadable alarm record", "alarm_id", id, "error", decErr)
				continue
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("load", s.path, err)
	}
	return out, nil
}

func (s *BadgerStore) SaveAll(ctx context.Context, alarms []model.Alarm) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		stale := make([][]byte, 0)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: badgerRecPrefix})
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		ids := make([]string, 0, len(alarms))
		for _, a := range alarms {
			raw, err := encodeRecord(a)
			if err != nil {
				return err
			}
			if err := txn.Set(recordKey(a.ID), raw); err != nil {
				return err
			}
			ids = append(ids, a.ID)
		}
		order, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return txn.Set(badgerOrderKey, order)
	})
	if err != nil {
		return storageErr("save", s.path, errors.Join(ErrUnavailable, err))
	}
	return nil
}

func readOrder(txn *badger.Txn) ([]string, error) {
	item, err := txn.Get(badgerOrderKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: order key: %v", ErrCorrupt, err)
	}
	return ids, nil
}

func recordKey(id string) []byte {
	return append(append([]byte{}, badgerRecPrefix...), id...)
}
