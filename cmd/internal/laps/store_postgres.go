package laps

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// PostgresStore does NOT own the pool; the caller closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the schema holding the laps table (default "acdisplay").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !isValidPGIdent(schema) {
			return fmt.Errorf("laps: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore builds a store on pool.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "acdisplay"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("laps: nil pool")
	}
	return st, nil
}

// EnsureSchema creates the schema and table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{s.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + s.table() + ` (
			id           BIGSERIAL PRIMARY KEY,
			lap_number   INTEGER NOT NULL,
			lap_ms       INTEGER NOT NULL,
			best_ms      INTEGER NOT NULL,
			car          TEXT NOT NULL DEFAULT '',
			driver       TEXT NOT NULL DEFAULT '',
			track        TEXT NOT NULL DEFAULT '',
			track_config TEXT NOT NULL DEFAULT '',
			recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("laps: ensure schema: %w", err)
		}
	}
	return nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) RecordLap(ctx context.Context, l Lap) (Lap, error) {
	q := `INSERT INTO ` + s.table() + ` (lap_number, lap_ms, best_ms, car, driver, track, track_config, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		RETURNING id, recorded_at`

	var recorded *time.Time
	if !l.RecordedAt.IsZero() {
		at := l.RecordedAt
		recorded = &at
	}
	if err := s.pool.QueryRow(ctx, q,
		l.Number, l.LapMS, l.BestMS, l.Car, l.Driver, l.Track, l.TrackConfig, recorded,
	).Scan(&l.ID, &l.RecordedAt); err != nil {
		return Lap{}, fmt.Errorf("laps: insert: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) RecentLaps(ctx context.Context, limit int) ([]Lap, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	q := `SELECT id, lap_number, lap_ms, best_ms, car, driver, track, track_config, recorded_at
		FROM ` + s.table() + `
		ORDER BY id DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("laps: query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Lap, error) {
		var l Lap
		err := row.Scan(&l.ID, &l.Number, &l.LapMS, &l.BestMS, &l.Car, &l.Driver, &l.Track, &l.TrackConfig, &l.RecordedAt)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("laps: scan: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "laps"}.Sanitize()
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

func isValidPGIdent(s string) bool { return pgIdentRE.MatchString(s) }
