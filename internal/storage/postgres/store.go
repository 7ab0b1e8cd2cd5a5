// Package postgres persists events, editions, and the crawl run journal in
// Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/racecal-crawler/internal/crawler"
)

const uniqueViolation = "23505"

// Constraint names from the schema migrations.
const (
	constraintEventSlug    = "events_slug_key"
	constraintEventKey     = "events_name_city_key"
	constraintEditionEvent = "event_editions_event_year_key"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements crawler.Store and crawler.RunStore.
type Store struct {
	pool Pool
}

// New connects a pool using cfg.
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool.
func NewWithPool(pool Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// FindEventsByName returns events whose name matches case-insensitively,
// oldest first.
func (s *Store) FindEventsByName(ctx context.Context, name string) ([]crawler.Event, error) {
	const query = `
		SELECT id, name, slug, COALESCE(city, ''), COALESCE(country_code, ''), COALESCE(sport_type, '')
		FROM events
		WHERE lower(name) = lower($1)
		ORDER BY id`
	rows, err := s.pool.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []crawler.Event
	for rows.Next() {
		var ev crawler.Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Slug, &ev.City, &ev.CountryCode, &ev.SportType); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// InsertEvent creates an event row.
func (s *Store) InsertEvent(ctx context.Context, ev crawler.Event) (int64, error) {
	const query = `
		INSERT INTO events (name, slug, city, country_code, sport_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, query,
		ev.Name, ev.Slug, nullText(ev.City), nullText(ev.CountryCode), nullText(ev.SportType),
	).Scan(&id)
	if err != nil {
		return 0, mapWriteError("insert event", err)
	}
	return id, nil
}

// FillEvent sets the NULL attributes of an event.
func (s *Store) FillEvent(ctx context.Context, ev crawler.Event) error {
	const query = `
		UPDATE events
		SET city = COALESCE(city, $2),
		    country_code = COALESCE(country_code, $3),
		    sport_type = COALESCE(sport_type, $4),
		    updated_at = now()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		ev.ID, nullText(ev.City), nullText(ev.CountryCode), nullText(ev.SportType),
	)
	if err != nil {
		return mapWriteError("fill event", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// FindEdition loads the edition for (eventID, year).
func (s *Store) FindEdition(ctx context.Context, eventID int64, year int) (crawler.Edition, error) {
	const query = `
		SELECT id, event_id, year, start_date, end_date, distances
		FROM event_editions
		WHERE event_id = $1 AND year = $2`
	var (
		ed         crawler.Edition
		start, end pgtype.Date
	)
	err := s.pool.QueryRow(ctx, query, eventID, year).
		Scan(&ed.ID, &ed.EventID, &ed.Year, &start, &end, &ed.Distances)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Edition{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Edition{}, fmt.Errorf("query edition: %w", err)
	}
	ed.StartDate = dateValue(start)
	ed.EndDate = dateValue(end)
	if ed.Distances == nil {
		ed.Distances = []string{}
	}
	return ed, nil
}

// InsertEdition creates an edition row.
func (s *Store) InsertEdition(ctx context.Context, ed crawler.Edition) (int64, error) {
	const query = `
		INSERT INTO event_editions (event_id, year, start_date, end_date, distances)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, query,
		ed.EventID, ed.Year, nullDate(ed.StartDate), nullDate(ed.EndDate), distances(ed.Distances),
	).Scan(&id)
	if err != nil {
		return 0, mapWriteError("insert edition", err)
	}
	return id, nil
}

// UpdateEdition replaces the distances and fills NULL dates, guarded by the
// distances the caller read.
func (s *Store) UpdateEdition(ctx context.Context, ed crawler.Edition, expected []string) error {
	const query = `
		UPDATE event_editions
		SET distances = $2,
		    start_date = COALESCE(start_date, $3),
		    end_date = COALESCE(end_date, $4),
		    updated_at = now()
		WHERE id = $1 AND distances = $5`
	tag, err := s.pool.Exec(ctx, query,
		ed.ID, distances(ed.Distances), nullDate(ed.StartDate), nullDate(ed.EndDate), distances(expected),
	)
	if err != nil {
		return mapWriteError("update edition", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrConflict
	}
	return nil
}

// RecordRun upserts a journal row.
func (s *Store) RecordRun(ctx context.Context, run crawler.Run) error {
	const query = `
		INSERT INTO crawl_runs (
			id, from_date, to_date, start_cursor, next_cursor,
			seen, inserted, pages, done, error, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			next_cursor = EXCLUDED.next_cursor,
			seen = EXCLUDED.seen,
			inserted = EXCLUDED.inserted,
			pages = EXCLUDED.pages,
			done = EXCLUDED.done,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`
	_, err := s.pool.Exec(ctx, query,
		run.ID, run.From, run.To, run.StartCursor, run.NextCursor,
		run.Seen, run.Inserted, run.Pages, run.Done, nullText(run.Error), run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the newest runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]crawler.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id::text, from_date, to_date, start_cursor, next_cursor,
		       seen, inserted, pages, done, COALESCE(error, ''), started_at, finished_at
		FROM crawl_runs
		ORDER BY started_at DESC
		LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := []crawler.Run{}
	for rows.Next() {
		var (
			run      crawler.Run
			from, to pgtype.Date
			finished pgtype.Timestamptz
		)
		if err := rows.Scan(
			&run.ID, &from, &to, &run.StartCursor, &run.NextCursor,
			&run.Seen, &run.Inserted, &run.Pages, &run.Done, &run.Error, &run.StartedAt, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.From = dateValue(from)
		run.To = dateValue(to)
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// mapWriteError turns unique violations into crawler sentinels.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case constraintEventSlug:
			return fmt.Errorf("%s: %w", op, crawler.ErrSlugTaken)
		case constraintEventKey, constraintEditionEvent:
			return fmt.Errorf("%s: %w", op, crawler.ErrDuplicate)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func dateValue(d pgtype.Date) time.Time {
	if !d.Valid {
		return time.Time{}
	}
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func distances(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
