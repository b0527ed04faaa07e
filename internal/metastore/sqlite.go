package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/metastore/migrations"
	"wpsnapshots/internal/snapshots"
)

// SQLiteStore keeps the index in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens the index at path. path can be ":memory:".
func NewSQLiteStore(path string, now func() time.Time) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStoreFromDB(db, now), nil
}

// NewSQLiteStoreFromDB wraps an open connection. A nil now uses time.Now.
func NewSQLiteStoreFromDB(db *sql.DB, now func() time.Time) *SQLiteStore {
	if now == nil {
		now = time.Now
	}
	return &SQLiteStore{db: db, now: now}
}

// OpenConnection opens a SQLite database with the settings the index
// expects. A single connection keeps ":memory:" databases shared.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ready fails when the schema has not been created.
func (s *SQLiteStore) ready() error {
	err := migrations.CheckStatus(s.db)
	if errors.Is(err, migrations.ErrNotInitialized) {
		return errs.Wrap(errs.NotFound, "", err, "repository index is not initialized; run create-repository")
	}
	return err
}

func (s *SQLiteStore) Search(ctx context.Context, query string) ([]*snapshots.Meta, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT meta FROM snapshots ORDER BY time DESC, id")
	if err != nil {
		return nil, fmt.Errorf("searching snapshots: %w", err)
	}
	defer rows.Close()

	var out []*snapshots.Meta
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("searching snapshots: %w", err)
		}
		meta, err := decode(raw)
		if err != nil {
			return nil, err
		}
		if matches(meta, query) {
			out = append(out, meta)
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, meta *snapshots.Meta) (*snapshots.Meta, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	item := record(meta, s.now())
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot %s: %w", meta.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO snapshots (id, project, project_name, time, meta) VALUES (?, ?, ?, ?, ?)",
		meta.ID, item["project"], meta.Project, item["time"], string(data))
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return nil, errs.Conflictf(errs.CodeAlreadyExists, "snapshot %s is already in the index", meta.ID)
		}
		return nil, fmt.Errorf("inserting snapshot %s: %w", meta.ID, err)
	}
	return decode(string(data))
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*snapshots.Meta, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT meta FROM snapshots WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("snapshot %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", id, err)
	}
	return decode(raw)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}
	return nil
}

// CreateTables migrates the schema. An up-to-date schema is reported as
// already existing.
func (s *SQLiteStore) CreateTables(ctx context.Context) error {
	applied, err := migrations.Up(s.db)
	if err != nil {
		return err
	}
	if !applied {
		return errs.Conflictf(errs.CodeAlreadyExists, "repository index already exists")
	}
	return nil
}

func decode(raw string) (*snapshots.Meta, error) {
	var item map[string]any
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("decoding snapshot record: %w", err)
	}
	return fromRecord(item)
}
