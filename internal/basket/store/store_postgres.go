package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"bskt/internal/basket"
	id "bskt/pkg/domain"
	"bskt/pkg/platform/sentinel"
)

// Schema creates the basket registry table.
const Schema = `
CREATE TABLE IF NOT EXISTS baskets (
	symbol               TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	asset_contract       TEXT NOT NULL UNIQUE,
	enforcement_consumer TEXT NOT NULL,
	admin                TEXT NOT NULL,
	creation_tx_hash     TEXT NOT NULL,
	transaction_id       TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL
)`

const uniqueViolation = "23505"

// PostgresRegistry persists baskets in PostgreSQL. Symbols are stored
// upper-cased so uniqueness is case-insensitive.
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// Migrate applies Schema.
func (r *PostgresRegistry) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate basket registry: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Save(ctx context.Context, rec *basket.Record) error {
	if rec == nil {
		return fmt.Errorf("basket record is required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO baskets (symbol, name, asset_contract, enforcement_consumer, admin, creation_tx_hash, transaction_id, created_at)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, $8)`,
		rec.Symbol, rec.Name, rec.AssetContract.String(), rec.EnforcementConsumer.String(),
		rec.Admin.String(), rec.CreationTxHash.String(), rec.TransactionID.String(), rec.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("symbol %s: %w", rec.Symbol, sentinel.ErrConflict)
		}
		return fmt.Errorf("save basket: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) List(ctx context.Context) ([]*basket.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, name, asset_contract, enforcement_consumer, admin, creation_tx_hash, transaction_id, created_at
		FROM baskets ORDER BY created_at, symbol`)
	if err != nil {
		return nil, fmt.Errorf("list baskets: %w", err)
	}
	defer rows.Close()

	var out []*basket.Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list baskets: %w", err)
	}
	return out, nil
}

func (r *PostgresRegistry) FindBySymbol(ctx context.Context, symbol string) (*basket.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT symbol, name, asset_contract, enforcement_consumer, admin, creation_tx_hash, transaction_id, created_at
		FROM baskets WHERE symbol = UPPER($1)`, symbol)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*basket.Record, error) {
	var rec basket.Record
	var asset, consumer, admin, txHash, txnID string
	if err := s.Scan(&rec.Symbol, &rec.Name, &asset, &consumer, &admin, &txHash, &txnID, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan basket: %w", err)
	}
	rec.AssetContract = id.Address(asset)
	rec.EnforcementConsumer = id.Address(consumer)
	rec.Admin = id.Address(admin)
	rec.CreationTxHash = id.TxHash(txHash)
	rec.TransactionID = id.TransactionID(txnID)
	return &rec, nil
}
