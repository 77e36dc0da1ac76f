// Package postgres provides a Postgres-backed item table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/storage/itemrow"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const columns = `kind, key, status, reason, depth, source_url, content_type, payload, document, refs, updated_at`

// Config controls the Postgres connection pool backing the item table.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ItemStore stores item rows in Postgres.
type ItemStore struct {
	pool  pool
	table string
}

// Open connects to Postgres and ensures the table exists.
func Open(ctx context.Context, cfg Config) (*ItemStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("items.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*ItemStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "items"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ItemStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ItemStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the item table when missing.
func (s *ItemStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	kind TEXT NOT NULL,
	key TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	depth INTEGER NOT NULL DEFAULT 0,
	source_url TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	payload BYTEA,
	document JSONB,
	refs JSONB,
	updated_at BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (kind, key)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Put upserts the row for item.ID.
func (s *ItemStore) Put(ctx context.Context, item crawler.Item) error {
	row, err := itemrow.Encode(item)
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (kind, key) DO UPDATE SET
	status = EXCLUDED.status,
	reason = EXCLUDED.reason,
	depth = EXCLUDED.depth,
	source_url = EXCLUDED.source_url,
	content_type = EXCLUDED.content_type,
	payload = EXCLUDED.payload,
	document = EXCLUDED.document,
	refs = EXCLUDED.refs,
	updated_at = EXCLUDED.updated_at`, s.table, columns)

	args := []any{
		row.Kind,
		row.Key,
		row.Status,
		row.Reason,
		row.Depth,
		row.SourceURL,
		row.ContentType,
		row.Payload,
		row.Document,
		row.References,
		row.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return &crawler.IOError{Op: "upsert item", Path: item.ID.String(), Err: err}
	}
	return nil
}

// Get returns the row for id or crawler.ErrNotFound.
func (s *ItemStore) Get(ctx context.Context, id crawler.ItemID) (crawler.Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE kind = $1 AND key = $2`, columns, s.table)
	item, err := scanItem(s.pool.QueryRow(ctx, query, string(id.Kind), id.Key))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Item{}, fmt.Errorf("item %s: %w", id, crawler.ErrNotFound)
	}
	return item, err
}

// List returns every row ordered by kind then key.
func (s *ItemStore) List(ctx context.Context) ([]crawler.Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY kind, key`, columns, s.table)
	rows, err := s.pool.Query(ctx, query)
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

func scanItem(r pgx.Row) (crawler.Item, error) {
	var row itemrow.Row
	err := r.Scan(&row.Kind, &row.Key, &row.Status, &row.Reason, &row.Depth, &row.SourceURL,
		&row.ContentType, &row.Payload, &row.Document, &row.References, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Item{}, err
	}
	if err != nil {
		return crawler.Item{}, &crawler.IOError{Op: "scan item", Err: err}
	}
	return itemrow.Decode(row)
}
