package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mdelaney/catsync/internal/events"
	"github.com/mdelaney/catsync/internal/models"
)

// schemaVersion for migrations.
const schemaVersion = 1

// SQLiteStore implements SQLite-backed durable storage. Mutations
// touch a sidecar signal file so other instances sharing the database
// can observe changes without polling the tables.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	origin string
	logger *events.Logger
}

// catFields is the subset of category JSON mirrored into indexed
// columns.
type catFields struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// NewSQLiteStore opens or creates the category database.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		path:   dbPath,
		origin: uuid.NewString(),
		logger: logger.WithField("component", "sqlite_store"),
	}

	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables and indexes.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS categories (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        is_default INTEGER NOT NULL DEFAULT 0,
        data TEXT NOT NULL,
        updated_at TIMESTAMP NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_categories_name ON categories(name);
    CREATE INDEX IF NOT EXISTS idx_categories_default ON categories(is_default);

    CREATE TABLE IF NOT EXISTS relations (
        file_id TEXT NOT NULL,
        category_id TEXT NOT NULL,
        data TEXT NOT NULL,
        updated_at TIMESTAMP NOT NULL,
        PRIMARY KEY (file_id, category_id)
    );

    CREATE INDEX IF NOT EXISTS idx_relations_file ON relations(file_id);
    CREATE INDEX IF NOT EXISTS idx_relations_category ON relations(category_id);

    CREATE TABLE IF NOT EXISTS sync_queue (
        id TEXT PRIMARY KEY,
        data TEXT NOT NULL,
        updated_at TIMESTAMP NOT NULL
    );

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, schemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// GetAll returns every record of a kind, ordered by primary key.
func (s *SQLiteStore) GetAll(ctx context.Context, kind Kind) ([]Record, error) {
	if !validKind(kind) {
		return nil, ErrUnknownKind
	}

	var query string
	switch kind {
	case KindCategories:
		query = "SELECT id, data, updated_at FROM categories ORDER BY id"
	case KindRelations:
		query = "SELECT file_id || char(31) || category_id, data, updated_at FROM relations ORDER BY file_id, category_id"
	case KindSyncQueue:
		query = "SELECT id, data, updated_at FROM sync_queue ORDER BY id"
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var rec Record
		var data string
		if err := rows.Scan(&rec.ID, &data, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", kind, err)
		}
		rec.Data = json.RawMessage(data)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}

	return records, nil
}

// Get returns one record by id.
func (s *SQLiteStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	if !validKind(kind) {
		return nil, ErrUnknownKind
	}

	var row *sql.Row
	switch kind {
	case KindCategories:
		row = s.db.QueryRowContext(ctx, "SELECT data, updated_at FROM categories WHERE id = ?", id)
	case KindRelations:
		fileID, categoryID, ok := models.SplitRelationKey(id)
		if !ok {
			return nil, fmt.Errorf("malformed relation key %q", id)
		}
		row = s.db.QueryRowContext(ctx,
			"SELECT data, updated_at FROM relations WHERE file_id = ? AND category_id = ?", fileID, categoryID)
	case KindSyncQueue:
		row = s.db.QueryRowContext(ctx, "SELECT data, updated_at FROM sync_queue WHERE id = ?", id)
	}

	rec := Record{ID: id}
	var data string
	err := row.Scan(&data, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", kind, id, err)
	}
	rec.Data = json.RawMessage(data)

	return &rec, nil
}

// Put inserts or replaces a record.
func (s *SQLiteStore) Put(ctx context.Context, kind Kind, rec Record) error {
	if !validKind(kind) {
		return ErrUnknownKind
	}

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	var err error
	switch kind {
	case KindCategories:
		var fields catFields
		if jsonErr := json.Unmarshal(rec.Data, &fields); jsonErr != nil {
			return fmt.Errorf("decode category %s: %w", rec.ID, jsonErr)
		}
		_, err = s.db.ExecContext(ctx, `
            INSERT INTO categories (id, name, is_default, data, updated_at)
            VALUES (?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                is_default = excluded.is_default,
                data = excluded.data,
                updated_at = excluded.updated_at
        `, rec.ID, models.FoldName(fields.Name), boolInt(fields.IsDefault), string(rec.Data), rec.UpdatedAt)

	case KindRelations:
		fileID, categoryID, ok := models.SplitRelationKey(rec.ID)
		if !ok {
			return fmt.Errorf("malformed relation key %q", rec.ID)
		}
		_, err = s.db.ExecContext(ctx, `
            INSERT INTO relations (file_id, category_id, data, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(file_id, category_id) DO UPDATE SET
                data = excluded.data,
                updated_at = excluded.updated_at
        `, fileID, categoryID, string(rec.Data), rec.UpdatedAt)

	case KindSyncQueue:
		_, err = s.db.ExecContext(ctx, `
            INSERT INTO sync_queue (id, data, updated_at)
            VALUES (?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                data = excluded.data,
                updated_at = excluded.updated_at
        `, rec.ID, string(rec.Data), rec.UpdatedAt)
	}

	if err != nil {
		return fmt.Errorf("put %s %s: %w", kind, rec.ID, err)
	}

	s.signalChange(kind)
	return nil
}

// Delete removes a record. Deleting a missing id is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, kind Kind, id string) error {
	if !validKind(kind) {
		return ErrUnknownKind
	}

	var err error
	switch kind {
	case KindCategories:
		_, err = s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	case KindRelations:
		fileID, categoryID, ok := models.SplitRelationKey(id)
		if !ok {
			return fmt.Errorf("malformed relation key %q", id)
		}
		_, err = s.db.ExecContext(ctx,
			"DELETE FROM relations WHERE file_id = ? AND category_id = ?", fileID, categoryID)
	case KindSyncQueue:
		_, err = s.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id)
	}

	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}

	s.signalChange(kind)
	return nil
}

// Query returns records matching the predicate.
func (s *SQLiteStore) Query(ctx context.Context, kind Kind, pred func(Record) bool) ([]Record, error) {
	all, err := s.GetAll(ctx, kind)
	if err != nil {
		return nil, err
	}

	var matched []Record
	for _, rec := range all {
		if pred(rec) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// Clear removes all records of a kind.
func (s *SQLiteStore) Clear(ctx context.Context, kind Kind) error {
	if !validKind(kind) {
		return ErrUnknownKind
	}

	table := string(kind)
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", kind, err)
	}

	s.signalChange(kind)
	return nil
}

// Origin identifies this store handle.
func (s *SQLiteStore) Origin() string {
	return s.origin
}

// Watch returns a watcher over the sidecar signal file.
func (s *SQLiteStore) Watch() (Watcher, error) {
	return newFileWatcher(s.signalPath(), s.logger)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) signalPath() string {
	return s.path + ".changes"
}

// signalChange touches the sidecar so watchers in other instances
// learn that records of a kind were modified. A failed signal is
// logged, not returned: local durability is already guaranteed.
func (s *SQLiteStore) signalChange(kind Kind) {
	payload := strings.Join([]string{
		s.origin,
		string(kind),
		strconv.FormatInt(time.Now().UnixNano(), 10),
	}, "\x1f")

	if err := os.WriteFile(s.signalPath(), []byte(payload), 0644); err != nil {
		s.logger.WithError(err).Warn("Failed to write change signal")
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
