package real

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/cryptosync/interfaces"
	"github.com/opd-ai/cryptosync/record"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Schema version history:
//
//	v1: records table keyed by (collection, guid)
const currentSchemaVersion = 1

// maxQueryParams bounds the guids bound into one IN clause.
const maxQueryParams = 500

// SQLiteRepository is an interfaces.Repository stored in SQLite.
type SQLiteRepository struct {
	db         *sql.DB
	config     interfaces.RepositoryConfig
	dispatcher *interfaces.Dispatcher

	mu     sync.RWMutex
	clock  interfaces.TimeProvider
	closed bool
}

// OpenSQLiteRepository opens (or creates) the database at config.DatabasePath.
func OpenSQLiteRepository(config *interfaces.RepositoryConfig) (*SQLiteRepository, error) {
	if config.DatabasePath == "" {
		return nil, interfaces.ErrMissingDatabasePath
	}
	if dir := filepath.Dir(config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := openAndMigrate(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":       "OpenSQLiteRepository",
		"database_path":  config.DatabasePath,
		"collection":     config.Collection,
		"async_dispatch": config.AsyncDispatch,
	}).Info("Opened SQLite repository")

	return &SQLiteRepository{
		db:         db,
		config:     *config,
		dispatcher: interfaces.NewDispatcher(config.AsyncDispatch),
		clock:      interfaces.DefaultTimeProvider{},
	}, nil
}

// openAndMigrate opens the database, configures it, and runs schema migration.
func openAndMigrate(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps writes serialized and pragmas applied.
	db.SetMaxOpenConns(1)
	_ = os.Chmod(dbPath, 0o600)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrateSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	version, err := schemaVersion(db)
	if err != nil {
		return err
	}
	switch {
	case version == 0:
		return initFreshSchema(db)
	case version > currentSchemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func initFreshSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS records (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			collection  TEXT NOT NULL,
			guid        TEXT NOT NULL,
			payload     TEXT NOT NULL,
			modified_ms INTEGER NOT NULL,
			deleted     INTEGER NOT NULL DEFAULT 0,
			sortindex   INTEGER NOT NULL DEFAULT 0,
			ttl         INTEGER NOT NULL DEFAULT 0,
			UNIQUE(collection, guid)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_modified ON records(collection, modified_ms)`,
		`DELETE FROM schema_version`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("init schema: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
		tx.Rollback()
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

// SetTimeProvider replaces the clock used to stamp envelopes without a
// modification time.
func (r *SQLiteRepository) SetTimeProvider(tp interfaces.TimeProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tp == nil {
		tp = interfaces.DefaultTimeProvider{}
	}
	r.clock = tp
}

// Collection implements interfaces.Repository.
func (r *SQLiteRepository) Collection() string {
	return r.config.Collection
}

// CreateSession implements interfaces.Repository.
func (r *SQLiteRepository) CreateSession(ctx context.Context) (interfaces.RepositorySession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, interfaces.ErrRepositoryClosed
	}

	id := uuid.NewString()
	logrus.WithFields(logrus.Fields{
		"function":   "SQLiteRepository.CreateSession",
		"session_id": id,
		"collection": r.config.Collection,
	}).Debug("Created SQLite session")

	return interfaces.NewBackendSession(id, r.config.Collection, r, r.dispatcher, r.clock), nil
}

// Close drains pending work and closes the database.
func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.dispatcher.Close()
	return r.db.Close()
}

// Count returns the number of stored envelopes, tombstones included.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, r.config.Collection).Scan(&n)
	return n, err
}

// PutEnvelope implements interfaces.EnvelopeBackend.
func (r *SQLiteRepository) PutEnvelope(ctx context.Context, env *record.Envelope) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO records (collection, guid, payload, modified_ms, deleted, sortindex, ttl)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, guid) DO UPDATE SET
			payload     = excluded.payload,
			modified_ms = excluded.modified_ms,
			deleted     = excluded.deleted,
			sortindex   = excluded.sortindex,
			ttl         = excluded.ttl`,
		r.config.Collection, env.ID, env.Payload, env.ModifiedMillis(), env.Deleted, env.SortIndex, env.TTL)
	if err != nil {
		return fmt.Errorf("store %s: %w", env.ID, err)
	}
	return nil
}

// GetEnvelopes implements interfaces.EnvelopeBackend. Results follow the
// order of guids.
func (r *SQLiteRepository) GetEnvelopes(ctx context.Context, guids []string) ([]*record.Envelope, error) {
	found := make(map[string]*record.Envelope, len(guids))
	for start := 0; start < len(guids); start += maxQueryParams {
		end := start + maxQueryParams
		if end > len(guids) {
			end = len(guids)
		}
		chunk := guids[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, r.config.Collection)
		for _, guid := range chunk {
			args = append(args, guid)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		envs, err := r.query(ctx,
			`SELECT guid, payload, modified_ms, deleted, sortindex, ttl FROM records
			 WHERE collection = ? AND guid IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, err
		}
		for _, env := range envs {
			found[env.ID] = env
		}
	}

	out := make([]*record.Envelope, 0, len(guids))
	for _, guid := range guids {
		if env, ok := found[guid]; ok {
			c := *env
			out = append(out, &c)
		}
	}
	return out, nil
}

// AllEnvelopes implements interfaces.EnvelopeBackend.
func (r *SQLiteRepository) AllEnvelopes(ctx context.Context) ([]*record.Envelope, error) {
	return r.query(ctx,
		`SELECT guid, payload, modified_ms, deleted, sortindex, ttl FROM records
		 WHERE collection = ? ORDER BY seq`, r.config.Collection)
}

// EnvelopesSince implements interfaces.EnvelopeBackend.
func (r *SQLiteRepository) EnvelopesSince(ctx context.Context, sinceMillis int64) ([]*record.Envelope, error) {
	return r.query(ctx,
		`SELECT guid, payload, modified_ms, deleted, sortindex, ttl FROM records
		 WHERE collection = ? AND modified_ms >= ? ORDER BY seq`, r.config.Collection, sinceMillis)
}

// GUIDsSince implements interfaces.EnvelopeBackend.
func (r *SQLiteRepository) GUIDsSince(ctx context.Context, sinceMillis int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT guid FROM records WHERE collection = ? AND modified_ms >= ? ORDER BY seq`,
		r.config.Collection, sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("query guids: %w", err)
	}
	defer rows.Close()

	guids := make([]string, 0)
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, err
		}
		guids = append(guids, guid)
	}
	return guids, rows.Err()
}

// WipeEnvelopes implements interfaces.EnvelopeBackend.
func (r *SQLiteRepository) WipeEnvelopes(ctx context.Context) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, r.config.Collection)
	if err != nil {
		return fmt.Errorf("wipe %s: %w", r.config.Collection, err)
	}
	removed, _ := res.RowsAffected()
	logrus.WithFields(logrus.Fields{
		"function":   "SQLiteRepository.WipeEnvelopes",
		"collection": r.config.Collection,
		"removed":    removed,
	}).Info("Collection wiped")
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]*record.Envelope, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query envelopes: %w", err)
	}
	defer rows.Close()

	out := make([]*record.Envelope, 0)
	for rows.Next() {
		var (
			env      = &record.Envelope{Collection: r.config.Collection}
			modified int64
		)
		if err := rows.Scan(&env.ID, &env.Payload, &modified, &env.Deleted, &env.SortIndex, &env.TTL); err != nil {
			return nil, fmt.Errorf("scan envelope: %w", err)
		}
		env.SetModifiedMillis(modified)
		out = append(out, env)
	}
	return out, rows.Err()
}
