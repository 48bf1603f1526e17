package storage

import (
	"context"
	"sync"

	"marketplace/internal/address"
	"marketplace/internal/models"
)

// MemoryStore keeps accounts in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[address.Address]models.Account
	processed map[string]struct{}
	locks     *lockTable
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[address.Address]models.Account),
		processed: make(map[string]struct{}),
		locks:     newLockTable(),
	}
}

// Begin locks keys and opens a transaction over them
func (s *MemoryStore) Begin(ctx context.Context, keys []address.Address) (Tx, error) {
	keys = sortedKeys(keys)
	if err := s.locks.acquire(ctx, keys); err != nil {
		return nil, err
	}
	return &memoryTx{store: s, keys: keys, writes: newWriteSet()}, nil
}

// GetAccount reads committed state
func (s *MemoryStore) GetAccount(ctx context.Context, addr address.Address) (models.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[addr]
	if !ok {
		return models.Account{}, false, nil
	}
	return acct.Clone(), true, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases nothing
func (s *MemoryStore) Close() error {
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	keys   []address.Address
	writes writeSet
}

func (t *memoryTx) Get(ctx context.Context, addr address.Address) (models.Account, bool, error) {
	if t.writes.done {
		return models.Account{}, false, ErrTxDone
	}
	if acct, exists, found := t.writes.lookup(addr); found {
		return acct, exists, nil
	}
	return t.store.GetAccount(ctx, addr)
}

func (t *memoryTx) Put(ctx context.Context, acct models.Account) error {
	if t.writes.done {
		return ErrTxDone
	}
	t.writes.put(acct)
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, addr address.Address) error {
	if t.writes.done {
		return ErrTxDone
	}
	t.writes.delete(addr)
	return nil
}

func (t *memoryTx) MarkProcessed(ctx context.Context, txID string) error {
	if t.writes.done {
		return ErrTxDone
	}
	t.store.mu.RLock()
	_, seen := t.store.processed[txID]
	t.store.mu.RUnlock()
	if seen {
		return ErrAlreadyProcessed
	}
	return t.writes.markProcessed(txID)
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.writes.done {
		return ErrTxDone
	}
	t.writes.done = true
	defer t.store.locks.release(t.keys)

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, id := range t.writes.processed {
		if _, seen := t.store.processed[id]; seen {
			return ErrAlreadyProcessed
		}
	}
	for _, id := range t.writes.processed {
		t.store.processed[id] = struct{}{}
	}
	for addr := range t.writes.deletes {
		delete(t.store.accounts, addr)
	}
	for addr, acct := range t.writes.puts {
		t.store.accounts[addr] = acct
	}
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	if t.writes.done {
		return nil
	}
	t.writes.done = true
	t.store.locks.release(t.keys)
	return nil
}

// lockTable hands out exclusive per-account locks.
// A channel per held key lets waiters honour context cancellation.
type lockTable struct {
	mu   sync.Mutex
	held map[address.Address]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[address.Address]chan struct{})}
}

// acquire locks keys in the given (sorted) order
func (l *lockTable) acquire(ctx context.Context, keys []address.Address) error {
	for i, key := range keys {
		if err := l.lock(ctx, key); err != nil {
			l.release(keys[:i])
			return err
		}
	}
	return nil
}

func (l *lockTable) lock(ctx context.Context, key address.Address) error {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *lockTable) release(keys []address.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range keys {
		if ch, ok := l.held[key]; ok {
			close(ch)
			delete(l.held, key)
		}
	}
}
