package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bskt/internal/reconcile"
	id "bskt/pkg/domain"
	"bskt/pkg/platform/sentinel"
)

// Schema creates the reconciliation table.
const Schema = `
CREATE TABLE IF NOT EXISTS reconciliation_entries (
	transaction_id    TEXT PRIMARY KEY,
	kind              TEXT NOT NULL,
	stage             TEXT NOT NULL,
	detail            TEXT NOT NULL,
	mint_tx           TEXT NOT NULL DEFAULT '',
	creation_tx       TEXT NOT NULL DEFAULT '',
	amount            TEXT NOT NULL DEFAULT '',
	holder            TEXT NOT NULL DEFAULT '',
	destination_chain TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	resolved_at       TIMESTAMPTZ,
	resolution        TEXT NOT NULL DEFAULT ''
)`

const selectColumns = `transaction_id, kind, stage, detail, mint_tx, creation_tx, amount, holder,
	destination_chain, created_at, resolved_at, resolution`

// PostgresStore persists reconciliation entries through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate reconciliation store: %w", err)
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, e *reconcile.Entry) error {
	if e == nil {
		return fmt.Errorf("reconciliation entry is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reconciliation_entries
			(transaction_id, kind, stage, detail, mint_tx, creation_tx, amount, holder, destination_chain, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.TransactionID.String(), string(e.Kind), e.Stage, e.Detail, e.MintTx.String(),
		e.CreationTx.String(), e.Amount, e.Holder.String(), e.DestinationChain, e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("transaction %s: %w", e.TransactionID, sentinel.ErrConflict)
		}
		return fmt.Errorf("record reconciliation entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, includeResolved bool) ([]*reconcile.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM reconciliation_entries
		WHERE $1 OR resolved_at IS NULL
		ORDER BY created_at, transaction_id`, includeResolved)
	if err != nil {
		return nil, fmt.Errorf("list reconciliation entries: %w", err)
	}
	defer rows.Close()

	out := []*reconcile.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reconciliation entries: %w", err)
	}
	return out, nil
}

// Resolve marks an open entry resolved. The conditional update and the
// existence lookup share one transaction.
func (s *PostgresStore) Resolve(ctx context.Context, txID id.TransactionID, resolution string, at time.Time) (*reconcile.Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin resolve: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE reconciliation_entries
		SET resolved_at = $2, resolution = $3
		WHERE transaction_id = $1 AND resolved_at IS NULL
		RETURNING `+selectColumns, txID.String(), at, resolution)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM reconciliation_entries WHERE transaction_id = $1)`,
			txID.String()).Scan(&exists); err != nil {
			return nil, fmt.Errorf("resolve reconciliation entry: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("transaction %s already resolved: %w", txID, sentinel.ErrConflict)
		}
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit resolve: %w", err)
	}
	return e, nil
}

func scanEntry(row pgx.Row) (*reconcile.Entry, error) {
	var e reconcile.Entry
	var txID, kind, mintTx, creationTx, holder string
	var resolvedAt *time.Time
	err := row.Scan(&txID, &kind, &e.Stage, &e.Detail, &mintTx, &creationTx, &e.Amount, &holder,
		&e.DestinationChain, &e.CreatedAt, &resolvedAt, &e.Resolution)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan reconciliation entry: %w", err)
	}
	e.TransactionID = id.TransactionID(txID)
	e.Kind = reconcile.Kind(kind)
	e.MintTx = id.TxHash(mintTx)
	e.CreationTx = id.TxHash(creationTx)
	e.Holder = id.Address(holder)
	e.ResolvedAt = resolvedAt
	return &e, nil
}
