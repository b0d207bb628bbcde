package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradeledger/types"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres is the durable AccountStore. Serializability per account comes
// from a version column on the accounts row: Commit updates it with
// WHERE version = $n inside one transaction, so a concurrent commit makes
// the UPDATE match zero rows and surfaces as ErrConflict.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects the pool, registers the shopspring decimal codec and
// verifies connectivity.
func NewPostgres(ctx context.Context, dbURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) CreateAccount(ctx context.Context, accountID string, startingCash decimal.Decimal) error {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO accounts (id, cash, version)
		VALUES ($1, $2, 0)
		ON CONFLICT (id) DO NOTHING`,
		accountID, startingCash)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountExists
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, accountID string) (*types.Account, error) {
	acct, _, err := p.load(ctx, accountID)
	return acct, err
}

func (p *Postgres) LoadForUpdate(ctx context.Context, accountID string) (*types.Account, int64, error) {
	return p.load(ctx, accountID)
}

func (p *Postgres) load(ctx context.Context, accountID string) (*types.Account, int64, error) {
	var (
		cash    decimal.Decimal
		version int64
	)
	err := p.pool.QueryRow(ctx,
		`SELECT cash, version FROM accounts WHERE id = $1`, accountID).
		Scan(&cash, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrAccountNotFound
		}
		return nil, 0, fmt.Errorf("load account: %w", err)
	}

	acct := types.NewAccount(accountID, cash)

	rows, err := p.pool.Query(ctx,
		`SELECT symbol, quantity, avg_cost FROM holdings WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, 0, fmt.Errorf("load holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h types.Holding
		if err := rows.Scan(&h.Symbol, &h.Quantity, &h.AvgCost); err != nil {
			return nil, 0, fmt.Errorf("scan holding: %w", err)
		}
		acct.Holdings[h.Symbol] = &h
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate holdings: %w", err)
	}
	return acct, version, nil
}

// Commit writes balance, holdings and the transaction record in a single
// database transaction. The versioned UPDATE is the conflict check; holdings
// are replaced wholesale since an account holds at most a handful of rows.
func (p *Postgres) Commit(ctx context.Context, accountID string, version int64, acct *types.Account, rec types.TransactionRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET cash = $1, version = version + 1
		WHERE id = $2 AND version = $3`,
		acct.Cash, accountID, version)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the account vanished or another commit won the race.
		// Accounts are never deleted, so treat it as a conflict.
		return ErrConflict
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM holdings WHERE account_id = $1`, accountID)
	for _, h := range acct.Holdings {
		batch.Queue(`
			INSERT INTO holdings (account_id, symbol, quantity, avg_cost)
			VALUES ($1, $2, $3, $4)`,
			accountID, h.Symbol, h.Quantity, h.AvgCost)
	}
	batch.Queue(`
		INSERT INTO transactions (id, account_id, symbol, side, quantity, price_per_unit, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, accountID, rec.Symbol, string(rec.Side), rec.Quantity, rec.PricePerUnit, rec.ExecutedAt)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("commit batch at index %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close commit batch: %w", err)
	}

	return tx.Commit(ctx)
}

// Transactions returns records with execution time in [from, to), oldest
// first. Zero bounds mean unbounded on that side.
func (p *Postgres) Transactions(ctx context.Context, accountID string, from, to time.Time) ([]types.TransactionRecord, error) {
	if err := p.pool.QueryRow(ctx,
		`SELECT 1 FROM accounts WHERE id = $1`, accountID).Scan(new(int)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("check account: %w", err)
	}

	query := `
		SELECT id, symbol, side, quantity, price_per_unit, executed_at
		FROM transactions
		WHERE account_id = $1
		  AND ($2::timestamptz IS NULL OR executed_at >= $2)
		  AND ($3::timestamptz IS NULL OR executed_at < $3)
		ORDER BY executed_at, id`

	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}

	rows, err := p.pool.Query(ctx, query, accountID, fromArg, toArg)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []types.TransactionRecord
	for rows.Next() {
		rec := types.TransactionRecord{AccountID: accountID}
		var side string
		if err := rows.Scan(&rec.ID, &rec.Symbol, &side, &rec.Quantity, &rec.PricePerUnit, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		rec.Side = types.Side(side)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
