package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sandeepkv93/alarmd/internal/model"
)

// SQLiteRepository stores one row per alarm holding its JSON record, ordered
// by position so LoadAll returns the saved order.
type SQLiteRepository struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

func NewSQLiteRepository(db *sql.DB, logger *slog.Logger) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db, logger: loggerOrDefault(logger).With("store", "sqlite")}, nil
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the embedded migrations.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storageErr("open", path, fmt.Errorf("open sqlite: %w", err))
	}
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, storageErr("migrate", path, errors.Join(ErrUnavailable, err))
	}
	repo, err := NewSQLiteRepository(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, storageErr("open", path, err)
	}
	repo.path = path
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]model.Alarm, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, payload FROM alarms ORDER BY position ASC`)
	if err != nil {
		return nil, storageErr("load", r.path, errors.Join(ErrUnavailable, err))
	}
	defer rows.Close()

	out := make([]model.Alarm, 0)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, storageErr("load", r.path, err)
		}
		a, decErr := decodeRecord([]byte(payload))
		if decErr != nil {
			r.logger.Warn("skipping unreadable alarm row", "alarm_id", id, "error", decErr)
			continue
		}
		if a.ID != id {
			r.logger.Warn("skipping alarm row with mismatched id", "alarm_id", id, "payload_id", a.ID)
			continue
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load", r.path, err)
	}
	return out, nil
}

// Purge drops the schema and recreates it empty.
func (r *SQLiteRepository) Purge(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := MigrateDown(r.db); err != nil {
		return storageErr("purge", r.path, err)
	}
	if err := MigrateUp(r.db); err != nil {
		return storageErr("purge", r.path, err)
	}
	r.logger.Info("store purged", "path", r.path)
	return nil
}

func (r *SQLiteRepository) SaveAll(ctx context.Context, alarms []model.Alarm) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("save", r.path, errors.Join(ErrUnavailable, err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alarms`); err != nil {
		return storageErr("save", r.path, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO alarms (id, position, payload) VALUES (?, ?, ?)`)
	if err != nil {
		return storageErr("save", r.path, err)
	}
	defer stmt.Close()

	for i, a := range alarms {
		payload, encErr := encodeRecord(a)
		if encErr != nil {
			return storageErr("encode", r.path, encErr)
		}
		if _, err := stmt.ExecContext(ctx, a.ID, i, string(payload)); err != nil {
			return storageErr("save", r.path, fmt.Errorf("insert alarm %s: %w", a.ID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("save", r.path, errors.Join(ErrUnavailable, err))
	}
	return nil
}
