package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketplace/internal/address"
	"marketplace/internal/models"
)

// pgUniqueViolation is the SQLSTATE for a duplicate primary key
const pgUniqueViolation = "23505"

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS accounts (
		address    BYTEA PRIMARY KEY,
		owner      BYTEA NOT NULL,
		lamports   BIGINT NOT NULL CHECK (lamports >= 0),
		data       BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS accounts_owner_idx ON accounts (owner);
	CREATE TABLE IF NOT EXISTS processed_transactions (
		tx_id        TEXT PRIMARY KEY,
		committed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

// processedKey is the primary key constraint of processed_transactions
const processedKey = "processed_transactions_pkey"

// PostgresStore implements Store using PostgreSQL.
// Account locks are transaction-scoped advisory locks, so several
// processes may share one database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and ensures the schema exists
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	slog.Info("✅ Connected to PostgreSQL account store")
	return &PostgresStore{pool: pool}, nil
}

// Begin opens a transaction and takes an advisory lock per key
func (s *PostgresStore) Begin(ctx context.Context, keys []address.Address) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, key := range sortedKeys(keys) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(key)); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("failed to lock account %s: %w", key, err)
		}
	}

	return &postgresTx{tx: tx, writes: newWriteSet()}, nil
}

// GetAccount reads committed state
func (s *PostgresStore) GetAccount(ctx context.Context, addr address.Address) (models.Account, bool, error) {
	return scanPostgresAccount(s.pool.QueryRow(ctx, selectPostgresAccountSQL, addr[:]), addr)
}

// Ping checks the pool
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// advisoryKey maps an address onto the bigint advisory lock space.
// Collisions only cause extra waiting.
func advisoryKey(addr address.Address) int64 {
	return int64(binary.BigEndian.Uint64(addr[:8]))
}

const selectPostgresAccountSQL = `SELECT owner, lamports, data FROM accounts WHERE address = $1`

func scanPostgresAccount(row pgx.Row, addr address.Address) (models.Account, bool, error) {
	var (
		owner    []byte
		lamports int64
		data     []byte
	)
	err := row.Scan(&owner, &lamports, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, false, nil
	}
	if err != nil {
		return models.Account{}, false, fmt.Errorf("failed to get account %s: %w", addr, err)
	}

	ownerAddr, err := address.FromBytes(owner)
	if err != nil {
		return models.Account{}, false, fmt.Errorf("account %s owner: %w", addr, err)
	}
	return models.Account{
		Address:  addr,
		Owner:    ownerAddr,
		Lamports: uint64(lamports),
		Data:     normalizeData(data),
	}, true, nil
}

type postgresTx struct {
	tx     pgx.Tx
	writes writeSet
}

func (t *postgresTx) Get(ctx context.Context, addr address.Address) (models.Account, bool, error) {
	if t.writes.done {
		return models.Account{}, false, ErrTxDone
	}
	if acct, exists, found := t.writes.lookup(addr); found {
		return acct, exists, nil
	}
	return scanPostgresAccount(t.tx.QueryRow(ctx, selectPostgresAccountSQL, addr[:]), addr)
}

func (t *postgresTx) Put(ctx context.Context, acct models.Account) error {
	if t.writes.done {
		return ErrTxDone
	}
	t.writes.put(acct)
	return nil
}

func (t *postgresTx) Delete(ctx context.Context, addr address.Address) error {
	if t.writes.done {
		return ErrTxDone
	}
	t.writes.delete(addr)
	return nil
}

func (t *postgresTx) MarkProcessed(ctx context.Context, txID string) error {
	if t.writes.done {
		return ErrTxDone
	}
	var seen bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM processed_transactions WHERE tx_id = $1)`, txID).Scan(&seen)
	if err != nil {
		return fmt.Errorf("failed to look up transaction %s: %w", txID, err)
	}
	if seen {
		return ErrAlreadyProcessed
	}
	return t.writes.markProcessed(txID)
}

// Commit sends all buffered writes as one batch and commits
func (t *postgresTx) Commit(ctx context.Context) error {
	if t.writes.done {
		return ErrTxDone
	}
	t.writes.done = true
	defer t.tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for addr := range t.writes.deletes {
		batch.Queue(`DELETE FROM accounts WHERE address = $1`, addr[:])
	}
	for addr, acct := range t.writes.puts {
		lamports, err := lamportsColumn(acct)
		if err != nil {
			return err
		}
		data := acct.Data
		if data == nil {
			data = []byte{}
		}
		batch.Queue(`
			INSERT INTO accounts (address, owner, lamports, data, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (address) DO UPDATE SET
				owner = EXCLUDED.owner,
				lamports = EXCLUDED.lamports,
				data = EXCLUDED.data,
				updated_at = now()`,
			addr[:], acct.Owner[:], lamports, data,
		)
	}
	for _, id := range t.writes.processed {
		batch.Queue(`INSERT INTO processed_transactions (tx_id) VALUES ($1)`, id)
	}

	if batch.Len() > 0 {
		if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				if pgErr.ConstraintName == processedKey {
					return ErrAlreadyProcessed
				}
				return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
			}
			return fmt.Errorf("failed to save accounts: %w", err)
		}
	}

	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	if t.writes.done {
		return nil
	}
	t.writes.done = true
	return t.tx.Rollback(ctx)
}
