package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"marketplace/internal/address"
	"marketplace/internal/models"
)

// SQLiteStore keeps accounts in an embedded SQLite database.
// It runs on a single connection, so transactions are fully serialized.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSQLitePragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSQLitePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			address BLOB PRIMARY KEY,
			owner BLOB NOT NULL,
			lamports INTEGER NOT NULL,
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS accounts_owner ON accounts(owner);`,
		`CREATE TABLE IF NOT EXISTS processed_transactions (
			tx_id TEXT PRIMARY KEY,
			committed_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

// Begin opens a transaction. The single connection already serializes
// writers, so no per-key lock is needed.
func (s *SQLiteStore) Begin(ctx context.Context, keys []address.Address) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx, writes: newWriteSet()}, nil
}

// GetAccount reads committed state
func (s *SQLiteStore) GetAccount(ctx context.Context, addr address.Address) (models.Account, bool, error) {
	return scanSQLiteAccount(s.db.QueryRowContext(ctx, selectAccountSQL, addr[:]), addr)
}

// Ping checks the database handle
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectAccountSQL = `SELECT owner, lamports, data FROM accounts WHERE address = ?`

func scanSQLiteAccount(row *sql.Row, addr address.Address) (models.Account, bool, error) {
	var (
		owner    []byte
		lamports int64
		data     []byte
	)
	err := row.Scan(&owner, &lamports, &data)
	if errors.Is(err, sql.ErrNoRows) {
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

type sqliteTx struct {
	tx     *sql.Tx
	writes writeSet
}

func (t *sqliteTx) Get(ctx context.Context, addr address.Address) (models.Account, bool, error) {
	if t.writes.done {
		return models.Account{}, false, ErrTxDone
	}
	if acct, exists, found := t.writes.lookup(addr); found {
		return acct, exists, nil
	}
	return scanSQLiteAccount(t.tx.QueryRowContext(ctx, selectAccountSQL, addr[:]), addr)
}

func (t *sqliteTx) Put(ctx context.Context, acct models.Account) error {
	if t.writes.done {
		return ErrTxDone
	}
	t.writes.put(acct)
	return nil
}

func (t *sqliteTx) Delete(ctx context.Context, addr address.Address) error {
	if t.writes.done {
		return ErrTxDone
	}
	t.writes.delete(addr)
	return nil
}

func (t *sqliteTx) MarkProcessed(ctx context.Context, txID string) error {
	if t.writes.done {
		return ErrTxDone
	}
	var one int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM processed_transactions WHERE tx_id = ?`, txID).Scan(&one)
	switch {
	case err == nil:
		return ErrAlreadyProcessed
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to look up transaction %s: %w", txID, err)
	}
	return t.writes.markProcessed(txID)
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	if t.writes.done {
		return ErrTxDone
	}
	t.writes.done = true

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for addr := range t.writes.deletes {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM accounts WHERE address = ?`, addr[:]); err != nil {
			_ = t.tx.Rollback()
			return fmt.Errorf("failed to delete account %s: %w", addr, err)
		}
	}
	for addr, acct := range t.writes.puts {
		lamports, err := lamportsColumn(acct)
		if err != nil {
			_ = t.tx.Rollback()
			return err
		}
		data := acct.Data
		if data == nil {
			data = []byte{}
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO accounts (address, owner, lamports, data, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(address) DO UPDATE SET
				owner = excluded.owner,
				lamports = excluded.lamports,
				data = excluded.data,
				updated_at = excluded.updated_at`,
			addr[:], acct.Owner[:], lamports, data, now,
		)
		if err != nil {
			_ = t.tx.Rollback()
			return fmt.Errorf("failed to save account %s: %w", addr, err)
		}
	}

	for _, id := range t.writes.processed {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO processed_transactions (tx_id, committed_at) VALUES (?, ?)`, id, now,
		); err != nil {
			_ = t.tx.Rollback()
			return fmt.Errorf("failed to record transaction %s: %w", id, err)
		}
	}

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	if t.writes.done {
		return nil
	}
	t.writes.done = true
	return t.tx.Rollback()
}
