// Package sqlite stores lineage edges and the processed-files ledger in a
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/efebarandurmaz/sqllineage/internal/graph"
	"github.com/efebarandurmaz/sqllineage/internal/lineage"
	"github.com/efebarandurmaz/sqllineage/internal/store"
)

var _ graph.Traverser = (*Store)(nil)

// Options tune batching. Zero values take the defaults.
type Options struct {
	BatchSize      int
	FlushInterval  time.Duration
	MaxQueryLength int
	Logger         zerolog.Logger
}

// DefaultOptions returns 100-row, 5-second batches and a 60 000 character
// query text cap.
func DefaultOptions() Options {
	return Options{
		BatchSize:      100,
		FlushInterval:  5 * time.Second,
		MaxQueryLength: 60000,
		Logger:         zerolog.Nop(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = d.FlushInterval
	}
	if o.MaxQueryLength <= 0 {
		o.MaxQueryLength = d.MaxQueryLength
	}
	return o
}

// Store is a store.Sink and store.Ledger backed by SQLite.
type Store struct {
	db     *sql.DB
	opts   Options
	closed atomic.Bool
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer; an in-memory database also lives only as long as its
	// single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, opts), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, opts Options) *Store {
	return &Store{db: db, opts: opts.withDefaults(), now: time.Now}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Name() string { return "sqlite" }

const upsertLineage = `INSERT INTO table_lineage
    (source_table, target_table, file_path, query_text, model_used, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source_table, target_table, file_path) DO UPDATE SET
    query_text = excluded.query_text,
    model_used = excluded.model_used,
    updated_at = excluded.updated_at`

// SaveAll upserts edges in transactions of at most BatchSize rows, committing
// early once a batch has been open for FlushInterval.
func (s *Store) SaveAll(ctx context.Context, edges []lineage.Edge) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	for len(edges) > 0 {
		n, err := s.writeBatch(ctx, edges)
		if err != nil {
			return err
		}
		edges = edges[n:]
	}
	return nil
}

func (s *Store) writeBatch(ctx context.Context, edges []lineage.Edge) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin lineage batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertLineage)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare lineage upsert: %w", err)
	}
	defer stmt.Close()

	started := time.Now()
	now := s.now().UTC().Format(time.RFC3339)
	n := 0
	for _, e := range edges {
		_, err := stmt.ExecContext(ctx,
			e.Source, e.Target, e.FilePath,
			truncate(e.QueryText, s.opts.MaxQueryLength), e.Model,
			now, now,
		)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("upsert %s -> %s: %w", e.Source, e.Target, err)
		}
		n++
		if n >= s.opts.BatchSize || time.Since(started) >= s.opts.FlushInterval {
			break
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit lineage batch: %w", err)
	}
	s.opts.Logger.Debug().Int("rows", n).Msg("lineage batch committed")
	return n, nil
}

// truncate cuts s to at most limit characters.
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	i := 0
	for pos := range s {
		if i == limit {
			return s[:pos]
		}
		i++
	}
	return s
}

// Sources returns the stored edges whose target is table, ordered by source.
func (s *Store) Sources(ctx context.Context, table string) ([]lineage.Edge, error) {
	return s.query(ctx, `SELECT source_table, target_table, file_path, query_text, model_used, created_at
FROM table_lineage WHERE target_table = ? ORDER BY source_table, file_path`, lineage.NormalizeName(table))
}

// Targets returns the stored edges whose source is table, ordered by target.
func (s *Store) Targets(ctx context.Context, table string) ([]lineage.Edge, error) {
	return s.query(ctx, `SELECT source_table, target_table, file_path, query_text, model_used, created_at
FROM table_lineage WHERE source_table = ? ORDER BY target_table, file_path`, lineage.NormalizeName(table))
}

// Edges returns every stored edge ordered by source, target and file.
func (s *Store) Edges(ctx context.Context) ([]lineage.Edge, error) {
	return s.query(ctx, `SELECT source_table, target_table, file_path, query_text, model_used, created_at
FROM table_lineage ORDER BY source_table, target_table, file_path`)
}

// Upstream walks stored edges towards the tables that feed table.
func (s *Store) Upstream(ctx context.Context, table string, maxDepth int) ([]graph.Hop, error) {
	return graph.Walk(ctx, table, maxDepth, s.neighbors(`SELECT DISTINCT source_table FROM table_lineage WHERE target_table = ?`))
}

// Downstream walks stored edges towards the tables fed by table.
func (s *Store) Downstream(ctx context.Context, table string, maxDepth int) ([]graph.Hop, error) {
	return graph.Walk(ctx, table, maxDepth, s.neighbors(`SELECT DISTINCT target_table FROM table_lineage WHERE source_table = ?`))
}

func (s *Store) neighbors(q string) graph.Neighbors {
	return func(ctx context.Context, table string) ([]string, error) {
		if s.closed.Load() {
			return nil, store.ErrClosed
		}
		rows, err := s.db.QueryContext(ctx, q, table)
		if err != nil {
			return nil, fmt.Errorf("query lineage: %w", err)
		}
		defer rows.Close()
		var out []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, fmt.Errorf("scan lineage: %w", err)
			}
			out = append(out, name)
		}
		return out, rows.Err()
	}
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]lineage.Edge, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query lineage: %w", err)
	}
	defer rows.Close()

	var out []lineage.Edge
	for rows.Next() {
		var (
			e         lineage.Edge
			queryText sql.NullString
			model     sql.NullString
			created   string
		)
		if err := rows.Scan(&e.Source, &e.Target, &e.FilePath, &queryText, &model, &created); err != nil {
			return nil, fmt.Errorf("scan lineage: %w", err)
		}
		e.QueryText = queryText.String
		e.Model = model.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// IsProcessed reports whether path was last processed successfully with the
// same fingerprint.
func (s *Store) IsProcessed(ctx context.Context, path, fingerprint string) (bool, error) {
	if s.closed.Load() {
		return false, store.ErrClosed
	}
	var fp, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, status FROM processed_files WHERE file_path = ?`, path,
	).Scan(&fp, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup processed file: %w", err)
	}
	return fp == fingerprint && status == store.StatusSuccess, nil
}

// MarkProcessed records rec, replacing any earlier row for the same path.
func (s *Store) MarkProcessed(ctx context.Context, rec store.ProcessedFile) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO processed_files
    (file_path, fingerprint, status, statements, edges, processed_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (file_path) DO UPDATE SET
    fingerprint = excluded.fingerprint,
    status = excluded.status,
    statements = excluded.statements,
    edges = excluded.edges,
    processed_at = excluded.processed_at`,
		rec.Path, rec.Fingerprint, rec.Status, rec.Statements, rec.Edges,
		s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", rec.Path, err)
	}
	return nil
}

// Close closes the database. Further calls return store.ErrClosed.
func (s *Store) Close(context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

var (
	_ store.Sink   = (*Store)(nil)
	_ store.Ledger = (*Store)(nil)
)
