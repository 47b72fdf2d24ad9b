package laps

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when ACDISPLAY_DATABASE_URL is set.

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("ACDISPLAY_DATABASE_URL")
	if dsn == "" {
		t.Skip("ACDISPLAY_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("ping: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStore_RecordAndList(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)

	schema := fmt.Sprintf("acdisplay_it_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	// Idempotent.
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema again: %v", err)
	}

	first, err := st.RecordLap(ctx, Lap{Number: 1, LapMS: 91000, BestMS: 91000, Car: "gr2_opel_kadett", Track: "ks_brands_hatch"})
	if err != nil {
		t.Fatalf("RecordLap: %v", err)
	}
	if first.ID == 0 || first.RecordedAt.IsZero() {
		t.Fatalf("first=%+v", first)
	}

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if _, err := st.RecordLap(ctx, Lap{Number: 2, LapMS: 89500, BestMS: 89500, RecordedAt: at}); err != nil {
		t.Fatalf("RecordLap: %v", err)
	}

	got, err := st.RecentLaps(ctx, 10)
	if err != nil {
		t.Fatalf("RecentLaps: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].Number != 2 || !got[0].RecordedAt.Equal(at) {
		t.Fatalf("newest=%+v", got[0])
	}
	if got[1].Car != "gr2_opel_kadett" {
		t.Fatalf("oldest=%+v", got[1])
	}
}

func TestWithSchema_RejectsBadIdentifiers(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "1abc", "a-b", "a;drop"} {
		if err := WithSchema(s)(&PostgresStore{}); err == nil {
			t.Fatalf("schema %q accepted", s)
		}
	}
}
