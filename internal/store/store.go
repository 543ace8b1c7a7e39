package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/magnolia/internal/docstore"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added (collection, seq) index for ordered scans
const currentSchemaVersion = 1

// Options tunes how a database file is opened.
type Options struct {
	// Unsafe trades durability for speed: synchronous=OFF.
	Unsafe bool
}

// Store is one SQLite database holding any number of collections.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, opts); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin starts a transaction scoped to collection.
func (s *Store) Begin(ctx context.Context, collection string, _ bool) (docstore.Txn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txn{ctx: ctx, tx: tx, collection: collection}, nil
}

func applyPragmas(db *sql.DB, opts Options) error {
	synchronous := "NORMAL"
	if opts.Unsafe {
		synchronous = "OFF"
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = " + synchronous,
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the index ordered scans use.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_collection_seq
		ON documents(collection, seq)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

type txn struct {
	ctx        context.Context
	tx         *sql.Tx
	collection string
}

func (t *txn) Scan(fn func(key string, raw []byte) error) error {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, body FROM documents
		WHERE collection = ?
		ORDER BY seq ASC
	`, t.collection)
	if err != nil {
		return fmt.Errorf("scan %s: %w", t.collection, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if err := fn(id, body); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (t *txn) Insert(key string, raw []byte) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`,
		t.collection, key, raw)
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return docstore.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert into %s: %w", t.collection, err)
	}
	return nil
}

func (t *txn) Replace(key string, raw []byte) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE documents SET body = ? WHERE collection = ? AND id = ?`,
		raw, t.collection, key)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.collection, err)
	}
	return expectOne(res)
}

func (t *txn) Delete(key string) error {
	res, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		t.collection, key)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", t.collection, err)
	}
	return expectOne(res)
}

func (t *txn) Commit() error {
	return t.tx.Commit()
}

func (t *txn) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}
