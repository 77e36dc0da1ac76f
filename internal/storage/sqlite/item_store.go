// Package sqlite persists the item table in a SQLite file so crawls can resume
// across processes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/storage/itemrow"
)

const columns = `kind, key, status, reason, depth, source_url, content_type, payload, document, refs, updated_at`

// ItemStore wraps *sql.DB using the pure Go modernc.org/sqlite driver.
type ItemStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*ItemStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; the dispatcher already serializes table writes.
	db.SetMaxOpenConns(1)
	s := &ItemStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *ItemStore) Close() error { return s.db.Close() }

func (s *ItemStore) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS items (
            kind TEXT NOT NULL,
            key TEXT NOT NULL,
            status TEXT NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            depth INTEGER NOT NULL DEFAULT 0,
            source_url TEXT NOT NULL DEFAULT '',
            content_type TEXT NOT NULL DEFAULT '',
            payload BLOB,
            document BLOB,
            refs BLOB,
            updated_at INTEGER NOT NULL DEFAULT 0,
            PRIMARY KEY (kind, key)
        );`,
		`CREATE INDEX IF NOT EXISTS items_status ON items(status);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

// Put upserts the row for item.ID.
func (s *ItemStore) Put(ctx context.Context, item crawler.Item) error {
	row, err := itemrow.Encode(item)
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO items(`+columns+`)
        VALUES(?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(kind, key) DO UPDATE SET status=excluded.status, reason=excluded.reason,
            depth=excluded.depth, source_url=excluded.source_url, content_type=excluded.content_type,
            payload=excluded.payload, document=excluded.document, refs=excluded.refs,
            updated_at=excluded.updated_at`,
		row.Kind, row.Key, row.Status, row.Reason, row.Depth, row.SourceURL, row.ContentType,
		row.Payload, row.Document, row.References, row.UpdatedAt)
	if err != nil {
		return &crawler.IOError{Op: "upsert item", Path: item.ID.String(), Err: err}
	}
	return nil
}

// Get returns the row for id or crawler.ErrNotFound.
func (s *ItemStore) Get(ctx context.Context, id crawler.ItemID) (crawler.Item, error) {
	r := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM items WHERE kind = ? AND key = ?`,
		string(id.Kind), id.Key)
	item, err := scanItem(r)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Item{}, fmt.Errorf("item %s: %w", id, crawler.ErrNotFound)
	}
	if err != nil {
		return crawler.Item{}, err
	}
	return item, nil
}

// List returns every row ordered by kind then key.
func (s *ItemStore) List(ctx context.Context) ([]crawler.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM items ORDER BY kind, key`)
	if err != nil {
		return nil, &crawler.IOError{Op: "query items", Err: err}
	}
	defer rows.Close()
	var out []crawler.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, &crawler.IOError{Op: "iterate items", Err: err}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (crawler.Item, error) {
	var row itemrow.Row
	err := sc.Scan(&row.Kind, &row.Key, &row.Status, &row.Reason, &row.Depth, &row.SourceURL,
		&row.ContentType, &row.Payload, &row.Document, &row.References, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Item{}, err
	}
	if err != nil {
		return crawler.Item{}, &crawler.IOError{Op: "scan item", Err: err}
	}
	return itemrow.Decode(row)
}
