package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Cache persists the last good mapping so a restart serves metadata
// before the upstream spreadsheet has been fetched again.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) the SQLite database at path.
func OpenCache(ctx context.Context, path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create cache dir: %w", err)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	c := &Cache{db: db}
	if err := c.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return c, nil
}

func (c *Cache) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS products (
		basename TEXT PRIMARY KEY,
		title    TEXT NOT NULL DEFAULT '',
		slug     TEXT NOT NULL DEFAULT '',
		sizes    TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS catalog_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Save replaces the persisted mapping and version in one transaction.
func (c *Cache) Save(ctx context.Context, version string, records map[string]Product) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("cannot clear products: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO products (basename, title, slug, sizes, category) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for key, p := range records {
		if _, err := stmt.ExecContext(ctx, key, p.Title, p.Slug, p.Sizes, p.Category); err != nil {
			return fmt.Errorf("cannot insert product %s: %w", key, err)
		}
	}

	upsert := `INSERT INTO catalog_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, upsert, "version", version); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsert, "saved_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}

// Load returns the persisted mapping. ok is false when nothing was saved yet.
func (c *Cache) Load(ctx context.Context) (version string, records map[string]Product, ok bool, err error) {
	err = c.db.QueryRowContext(ctx, `SELECT value FROM catalog_meta WHERE key = 'version'`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, fmt.Errorf("cannot read catalog version: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `SELECT basename, title, slug, sizes, category FROM products`)
	if err != nil {
		return "", nil, false, fmt.Errorf("cannot read products: %w", err)
	}
	defer rows.Close()

	records = map[string]Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.Basename, &p.Title, &p.Slug, &p.Sizes, &p.Category); err != nil {
			return "", nil, false, err
		}
		records[p.Basename] = p
	}
	if err := rows.Err(); err != nil {
		return "", nil, false, err
	}
	return version, records, true, nil
}
