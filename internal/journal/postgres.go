package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
    seq        BIGINT PRIMARY KEY,
    op         TEXT        NOT NULL,
    caller     TEXT        NOT NULL DEFAULT '',
    args       JSONB       NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
)`

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// Postgres persists entries in the journal_entries table.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed journal.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the journal table when it is missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Append implements Journal. A second writer appending the same sequence hits
// the primary key and gets ErrSequenceConflict.
func (p *Postgres) Append(ctx context.Context, e Entry) error {
	_, err := p.db.Exec(ctx, `INSERT INTO journal_entries (seq, op, caller, args, created_at)
        VALUES ($1, $2, $3, $4, $5)`, int64(e.Seq), e.Op, e.Caller, []byte(e.Args), e.At)
	return appendError(e.Seq, err)
}

func appendError(seq uint64, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrSequenceConflict
	}
	return fmt.Errorf("append journal entry %d: %w", seq, err)
}

// Entries implements Journal.
func (p *Postgres) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := p.db.Query(ctx, `SELECT seq, op, caller, args, created_at
        FROM journal_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e    Entry
			seq  int64
			args []byte
		)
		if err := row.Scan(&seq, &e.Op, &e.Caller, &args, &e.At); err != nil {
			return Entry{}, err
		}
		e.Seq = uint64(seq)
		e.Args = args
		e.At = e.At.UTC()
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}
