package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestAppendErrorMapsUniqueViolation(t *testing.T) {
	if err := appendError(1, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	dup := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", ConstraintName: "journal_entries_pkey"})
	if err := appendError(4, dup); !errors.Is(err, ErrSequenceConflict) {
		t.Fatalf("expected sequence conflict, got %v", err)
	}

	other := &pgconn.PgError{Code: "42P01"}
	err := appendError(4, other)
	if errors.Is(err, ErrSequenceConflict) {
		t.Fatalf("unrelated error mapped to conflict")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("cause should stay in the chain: %v", err)
	}
}

// TestPostgresRoundTrip needs a scratch database in JOURNAL_TEST_DATABASE_URL.
func TestPostgresRoundTrip(t *testing.T) {
	url := os.Getenv("JOURNAL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("JOURNAL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	j := NewPostgres(pool)
	if err := j.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE journal_entries`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 30, 0, 123456000, time.UTC)
	want := Entry{Seq: 1, Op: "transfer", Caller: "alice", Args: json.RawMessage(`{"amount":"5"}`), At: at}
	if err := j.Append(ctx, want); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Append(ctx, want); !errors.Is(err, ErrSequenceConflict) {
		t.Fatalf("expected sequence conflict, got %v", err)
	}

	entries, err := j.Entries(ctx)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Seq != 1 || got.Op != "transfer" || got.Caller != "alice" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if !got.At.Equal(at) {
		t.Fatalf("timestamp changed: want %s got %s", at, got.At)
	}
	var args map[string]string
	if err := json.Unmarshal(got.Args, &args); err != nil || args["amount"] != "5" {
		t.Fatalf("args did not round-trip: %s (%v)", got.Args, err)
	}
}
