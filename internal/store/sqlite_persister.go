package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/SakshamDixitSBH/docrag/internal/errors"
)

// SQLiteFile is the database file name used by SQLitePersister.
const SQLiteFile = "index.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	seq  INTEGER PRIMARY KEY,
	text TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS metadatas (
	seq  INTEGER PRIMARY KEY,
	meta TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS lengths (
	seq         INTEGER PRIMARY KEY,
	token_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS corpus (
	id                      INTEGER PRIMARY KEY CHECK (id = 1),
	generation              INTEGER NOT NULL,
	tokenizer_version       INTEGER NOT NULL,
	average_document_length REAL NOT NULL,
	entries                 INTEGER NOT NULL
);
`

// SQLitePersister stores a snapshot in a single SQLite database. The three
// artifacts are tables rewritten together in one transaction.
type SQLitePersister struct {
	mu   sync.Mutex
	dir  string
	path string
	db   *sql.DB
}

// NewSQLitePersister creates a persister for <dir>/index.db.
// The database is opened on first use.
func NewSQLitePersister(dir string) *SQLitePersister {
	return &SQLitePersister{dir: dir, path: filepath.Join(dir, SQLiteFile)}
}

// validateSQLiteIntegrity checks an existing database before it is trusted.
func validateSQLiteIntegrity(path string) error {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
	                   WHERE type='table' AND name IN ('documents','metadatas','lengths','corpus')`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count != 4 {
		return fmt.Errorf("expected 4 index tables, found %d", count)
	}
	return nil
}

// open returns the shared connection, creating the database and schema if
// needed. Callers hold p.mu.
func (p *SQLitePersister) open(ctx context.Context) (*sql.DB, error) {
	if p.db != nil {
		return p.db, nil
	}
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", p.dir, err)
	}

	db, err := sql.Open("sqlite", p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	p.db = db
	return db, nil
}

// Load reads the snapshot. It returns (nil, nil) when the database does not
// exist or holds no corpus yet.
func (p *SQLitePersister) Load(ctx context.Context) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := os.Stat(p.path); os.IsNotExist(err) {
		return nil, nil
	}
	if err := validateSQLiteIntegrity(p.path); err != nil {
		return nil, errors.CorruptStateError("sqlite index failed validation", err).WithDetail("path", p.path)
	}

	db, err := p.open(ctx)
	if err != nil {
		return nil, errors.CorruptStateError("cannot open sqlite index", err).WithDetail("path", p.path)
	}

	snap := &Snapshot{}
	var entries int
	err = db.QueryRowContext(ctx,
		`SELECT generation, tokenizer_version, average_document_length, entries FROM corpus WHERE id = 1`).
		Scan(&snap.Generation, &snap.TokenizerVersion, &snap.AvgDocLength, &entries)
	if stderrors.Is(err, sql.ErrNoRows) {
		var docs int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&docs); err != nil {
			return nil, errors.CorruptStateError("cannot count documents", err)
		}
		if docs == 0 {
			return nil, nil
		}
		return nil, errors.CorruptStateError("documents present without corpus statistics", nil)
	}
	if err != nil {
		return nil, errors.CorruptStateError("cannot read corpus statistics", err)
	}

	if snap.Documents, err = loadColumn(ctx, db, `SELECT seq, text FROM documents ORDER BY seq`,
		func(rows *sql.Rows) (int, string, error) {
			var seq int
			var text string
			err := rows.Scan(&seq, &text)
			return seq, text, err
		}); err != nil {
		return nil, errors.CorruptStateError("cannot read documents", err)
	}
	if snap.Metadatas, err = loadColumn(ctx, db, `SELECT seq, meta FROM metadatas ORDER BY seq`,
		func(rows *sql.Rows) (int, Metadata, error) {
			var seq int
			var raw string
			if err := rows.Scan(&seq, &raw); err != nil {
				return 0, nil, err
			}
			var m Metadata
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				return 0, nil, fmt.Errorf("metadata %d: %w", seq, err)
			}
			return seq, m, nil
		}); err != nil {
		return nil, errors.CorruptStateError("cannot read metadatas", err)
	}
	if snap.TokenCounts, err = loadColumn(ctx, db, `SELECT seq, token_count FROM lengths ORDER BY seq`,
		func(rows *sql.Rows) (int, int, error) {
			var seq, n int
			err := rows.Scan(&seq, &n)
			return seq, n, err
		}); err != nil {
		return nil, errors.CorruptStateError("cannot read lengths", err)
	}

	if err := snap.validate(); err != nil {
		return nil, err
	}
	if snap.Len() != entries {
		return nil, errors.CorruptStateError(
			fmt.Sprintf("corpus records %d entries but %d are stored", entries, snap.Len()), nil)
	}
	return snap, nil
}

// loadColumn reads one ordered table. Rows must be numbered 0..n-1.
func loadColumn[T any](ctx context.Context, db *sql.DB, query string, scan func(*sql.Rows) (int, T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		seq, v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		if seq != len(out) {
			return nil, fmt.Errorf("expected row %d, found %d", len(out), seq)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Save replaces the stored snapshot in one transaction.
func (p *SQLitePersister) Save(ctx context.Context, snap *Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	db, err := p.open(ctx)
	if err != nil {
		return errors.PersistenceError("cannot open sqlite index", err).WithDetail("path", p.path)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.PersistenceError("cannot begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"documents", "metadatas", "lengths", "corpus"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.PersistenceError(fmt.Sprintf("cannot clear %s", table), err)
		}
	}

	docStmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (seq, text) VALUES (?, ?)`)
	if err != nil {
		return errors.PersistenceError("cannot prepare documents insert", err)
	}
	defer docStmt.Close()
	metaStmt, err := tx.PrepareContext(ctx, `INSERT INTO metadatas (seq, meta) VALUES (?, ?)`)
	if err != nil {
		return errors.PersistenceError("cannot prepare metadatas insert", err)
	}
	defer metaStmt.Close()
	lenStmt, err := tx.PrepareContext(ctx, `INSERT INTO lengths (seq, token_count) VALUES (?, ?)`)
	if err != nil {
		return errors.PersistenceError("cannot prepare lengths insert", err)
	}
	defer lenStmt.Close()

	for i, text := range snap.Documents {
		raw, err := json.Marshal(snap.Metadatas[i])
		if err != nil {
			return errors.PersistenceError(fmt.Sprintf("cannot encode metadata %d", i), err)
		}
		if _, err := docStmt.ExecContext(ctx, i, text); err != nil {
			return errors.PersistenceError("cannot insert document", err)
		}
		if _, err := metaStmt.ExecContext(ctx, i, string(raw)); err != nil {
			return errors.PersistenceError("cannot insert metadata", err)
		}
		if _, err := lenStmt.ExecContext(ctx, i, snap.TokenCounts[i]); err != nil {
			return errors.PersistenceError("cannot insert length", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO corpus (id, generation, tokenizer_version, average_document_length, entries) VALUES (1, ?, ?, ?, ?)`,
		snap.Generation, snap.TokenizerVersion, snap.AvgDocLength, snap.Len()); err != nil {
		return errors.PersistenceError("cannot write corpus statistics", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.PersistenceError("cannot commit index", err).WithDetail("path", p.path)
	}
	return nil
}

// Reset closes the database and removes its files.
func (p *SQLitePersister) Reset(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		_ = p.db.Close()
		p.db = nil
	}
	for _, path := range []string{p.path, p.path + "-wal", p.path + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.PersistenceError("cannot remove sqlite index", err).WithDetail("path", path)
		}
	}
	return nil
}

func (p *SQLitePersister) Backend() Backend { return BackendSQLite }
func (p *SQLitePersister) Location() string { return p.path }

// Close checkpoints the WAL and closes the database.
func (p *SQLitePersister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}
	_, _ = p.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := p.db.Close()
	p.db = nil
	return err
}
