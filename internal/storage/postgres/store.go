// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	_ "embed" // schema.sql
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
	"github.com/JakeFAU/realtime-content-feed/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Migrate applies schema.sql on startup.
	Migrate bool
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements store.Store on Postgres.
type Store struct {
	pool pool
}

var _ store.Store = (*Store)(nil)

// New connects to Postgres using cfg and optionally applies the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	s := &Store{pool: p}
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Migrate creates tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const recordColumns = `id, title, url, description, image_url, source, type, published_at, scraped_at,
	category, severity, score, location, city, country, lat, lng`

// InsertIfAbsent inserts rec; a conflicting URL leaves the existing row untouched.
func (s *Store) InsertIfAbsent(ctx context.Context, rec feed.Record) (bool, error) {
	var lat, lng *float64
	if rec.Coordinates != nil {
		lat, lng = &rec.Coordinates.Lat, &rec.Coordinates.Lng
	}
	query := `
		INSERT INTO content_items (` + recordColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (url) DO NOTHING;
	`
	tag, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.Title,
		rec.URL,
		rec.Description,
		rec.ImageURL,
		rec.SourceName,
		string(rec.ContentType),
		rec.PublishedAt,
		rec.ScrapedAt,
		rec.Category,
		string(rec.Severity),
		rec.Score,
		rec.Location,
		rec.City,
		rec.Country,
		lat,
		lng,
	)
	if err != nil {
		return false, fmt.Errorf("insert content item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByURL loads a record by URL.
func (s *Store) GetByURL(ctx context.Context, url string) (feed.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM content_items WHERE url = $1;`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return feed.Record{}, store.ErrNotFound
		}
		return feed.Record{}, fmt.Errorf("get content item: %w", err)
	}
	return rec, nil
}

// Query returns records matching f ordered by published_at descending.
func (s *Store) Query(ctx context.Context, f store.Filter, limit, offset int) ([]feed.Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", limit)
	}
	if offset < 0 {
		offset = 0
	}
	where, args := buildWhere(f)
	n := len(args)
	query := `SELECT ` + recordColumns + ` FROM content_items` + where +
		fmt.Sprintf(` ORDER BY published_at DESC, url ASC LIMIT $%d OFFSET $%d;`, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query content items: %w", err)
	}
	defer rows.Close()

	out := []feed.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}
	return out, nil
}

// Stats aggregates counts for the stats endpoint.
func (s *Store) Stats(ctx context.Context, since time.Time) (store.Stats, error) {
	out := store.Stats{Categories: make(map[string]int64)}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE severity = 'HIGH'),
			COUNT(*) FILTER (WHERE scraped_at >= $1)
		FROM content_items;
	`, since).Scan(&out.Total, &out.HighSeverity, &out.Recent)
	if err != nil {
		return store.Stats{}, fmt.Errorf("count content items: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT category, COUNT(*) FROM content_items GROUP BY category;`)
	if err != nil {
		return store.Stats{}, fmt.Errorf("count categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cat string
			n   int64
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return store.Stats{}, fmt.Errorf("scan category count: %w", err)
		}
		out.Categories[cat] = n
	}
	if err := rows.Err(); err != nil {
		return store.Stats{}, fmt.Errorf("iterate category counts: %w", err)
	}
	return out, nil
}

// AppendRunLog inserts a run-log row.
func (s *Store) AppendRunLog(ctx context.Context, entry feed.RunLogEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_logs (id, source, status, message, count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`, entry.ID, entry.Source, string(entry.Outcome), entry.Message, entry.Count, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

// ListRunLogs returns the newest run-log rows.
func (s *Store) ListRunLogs(ctx context.Context, limit int) ([]feed.RunLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, status, message, count, created_at
		FROM run_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	out := []feed.RunLogEntry{}
	for rows.Next() {
		var e feed.RunLogEntry
		if err := rows.Scan(&e.ID, &e.Source, &e.Outcome, &e.Message, &e.Count, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run logs: %w", err)
	}
	return out, nil
}

// CreateKey inserts a new access key.
func (s *Store) CreateKey(ctx context.Context, key feed.AccessKey) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (key, owner, plan, requests, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO NOTHING;
	`, key.Key, key.Owner, key.Plan, key.Requests, key.Active, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDuplicateKey
	}
	return nil
}

// GetKey loads an access key.
func (s *Store) GetKey(ctx context.Context, key string) (feed.AccessKey, error) {
	var k feed.AccessKey
	err := s.pool.QueryRow(ctx, `
		SELECT key, owner, plan, requests, active, created_at
		FROM api_keys
		WHERE key = $1;
	`, key).Scan(&k.Key, &k.Owner, &k.Plan, &k.Requests, &k.Active, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return feed.AccessKey{}, store.ErrNotFound
		}
		return feed.AccessKey{}, fmt.Errorf("get api key: %w", err)
	}
	return k, nil
}

// IncrementRequests bumps the request counter atomically.
func (s *Store) IncrementRequests(ctx context.Context, key string) error {
	return s.updateKey(ctx, `UPDATE api_keys SET requests = requests + 1 WHERE key = $1;`, key)
}

// SetKeyActive flips the active flag.
func (s *Store) SetKeyActive(ctx context.Context, key string, active bool) error {
	return s.updateKey(ctx, `UPDATE api_keys SET active = $2 WHERE key = $1;`, key, active)
}

func (s *Store) updateKey(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (feed.Record, error) {
	var (
		rec      feed.Record
		lat, lng *float64
	)
	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.URL,
		&rec.Description,
		&rec.ImageURL,
		&rec.SourceName,
		&rec.ContentType,
		&rec.PublishedAt,
		&rec.ScrapedAt,
		&rec.Category,
		&rec.Severity,
		&rec.Score,
		&rec.Location,
		&rec.City,
		&rec.Country,
		&lat,
		&lng,
	)
	if err != nil {
		return feed.Record{}, err
	}
	if lat != nil && lng != nil {
		rec.Coordinates = &feed.Coordinates{Lat: *lat, Lng: *lng}
	}
	return rec, nil
}

// buildWhere renders f as a WHERE clause with positional parameters.
func buildWhere(f store.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	param := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	like := func(column, value string) {
		if value != "" {
			clauses = append(clauses, column+" ILIKE "+param(likePattern(value)))
		}
	}

	like("category", f.Category)
	like("city", f.City)
	like("country", f.Country)
	if f.Location != "" {
		p := param(likePattern(f.Location))
		clauses = append(clauses, fmt.Sprintf(
			"(city ILIKE %[1]s OR country ILIKE %[1]s OR location ILIKE %[1]s OR title ILIKE %[1]s OR description ILIKE %[1]s)", p))
	}
	if f.Source != "" {
		clauses = append(clauses, "source = "+param(f.Source))
	}
	if f.ContentType != "" {
		clauses = append(clauses, "type = "+param(string(f.ContentType)))
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity = "+param(string(f.Severity)))
	}
	if f.Search != "" {
		p := param(likePattern(f.Search))
		clauses = append(clauses, fmt.Sprintf("(title ILIKE %[1]s OR description ILIKE %[1]s)", p))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
