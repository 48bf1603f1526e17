package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"marketplace/internal/address"
	"marketplace/internal/models"
)

// ErrTxDone is returned when a finished transaction is used again
var ErrTxDone = errors.New("storage: transaction already committed or rolled back")

// ErrAlreadyProcessed is returned when a transaction id was committed before
var ErrAlreadyProcessed = errors.New("storage: transaction already processed")

// ErrConflict is returned when a commit races with another writer
// creating the same account
var ErrConflict = errors.New("storage: conflicting write")

// Store defines the interface for account storage.
// Begin takes an exclusive lock on every listed account (existing or not)
// for the lifetime of the returned Tx.
type Store interface {
	Begin(ctx context.Context, keys []address.Address) (Tx, error)

	// GetAccount reads the last committed state of an account
	GetAccount(ctx context.Context, addr address.Address) (models.Account, bool, error)

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}

// Tx is a set of locked accounts whose writes become visible together on Commit
type Tx interface {
	Get(ctx context.Context, addr address.Address) (models.Account, bool, error)
	Put(ctx context.Context, acct models.Account) error
	Delete(ctx context.Context, addr address.Address) error

	// MarkProcessed records txID with the commit. It fails with
	// ErrAlreadyProcessed when txID was committed before.
	MarkProcessed(ctx context.Context, txID string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// sortedKeys dedupes keys into a fixed lock order so concurrent
// transactions never deadlock on each other
func sortedKeys(keys []address.Address) []address.Address {
	out := slices.Clone(keys)
	slices.SortFunc(out, address.Address.Compare)
	return slices.Compact(out)
}

// writeSet buffers a transaction's writes until commit
type writeSet struct {
	puts      map[address.Address]models.Account
	deletes   map[address.Address]bool
	processed []string
	done      bool
}

func newWriteSet() writeSet {
	return writeSet{
		puts:    make(map[address.Address]models.Account),
		deletes: make(map[address.Address]bool),
	}
}

// lookup returns a buffered write; found reports whether the address was touched
func (w *writeSet) lookup(addr address.Address) (acct models.Account, exists, found bool) {
	if w.deletes[addr] {
		return models.Account{}, false, true
	}
	if acct, ok := w.puts[addr]; ok {
		return acct.Clone(), true, true
	}
	return models.Account{}, false, false
}

func (w *writeSet) put(acct models.Account) {
	delete(w.deletes, acct.Address)
	w.puts[acct.Address] = acct.Clone()
}

func (w *writeSet) delete(addr address.Address) {
	delete(w.puts, addr)
	w.deletes[addr] = true
}

// markProcessed buffers txID, failing if this transaction already holds it
func (w *writeSet) markProcessed(txID string) error {
	if slices.Contains(w.processed, txID) {
		return ErrAlreadyProcessed
	}
	w.processed = append(w.processed, txID)
	return nil
}

// lamportsColumn converts a balance to the signed column type used by the SQL stores
func lamportsColumn(acct models.Account) (int64, error) {
	if acct.Lamports > math.MaxInt64 {
		return 0, fmt.Errorf("account %s: %d lamports exceed storable range", acct.Address, acct.Lamports)
	}
	return int64(acct.Lamports), nil
}

// normalizeData maps empty blobs back to nil so wallets compare equal across stores
func normalizeData(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return data
}
