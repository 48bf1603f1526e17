package pipeline

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/address"
	"marketplace/internal/ledger"
)

// ErrStopped is returned by Submit once the pipeline is shutting down
var ErrStopped = errors.New("pipeline is stopped")

// Executor runs one transaction to completion
type Executor interface {
	Execute(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error)
}

// Sink receives every receipt in sequence order
type Sink interface {
	Write(receipt *ledger.Receipt) error
}

// Config contains configuration for the pipeline
type Config struct {
	WorkerCount int // 0 picks from the CPU count
	BufferSize  int // Pending submissions accepted before Submit blocks
}

// job is one submitted transaction travelling through the pipeline
type job struct {
	seq    uint64
	tx     *ledger.Transaction
	reads  []address.Address
	writes []address.Address
	done   chan result
}

// result is the outcome of a job, produced by a worker and released by the orderer
type result struct {
	job            *job
	receipt        *ledger.Receipt
	err            error
	workerID       int
	processingTime time.Duration
}

// newJob splits the declared accounts into the read and write sets used
// for conflict detection
func newJob(tx *ledger.Transaction) *job {
	writable := make(map[address.Address]bool, len(tx.Instruction.Accounts))
	for _, meta := range tx.Instruction.Accounts {
		writable[meta.Address] = writable[meta.Address] || meta.Writable
	}

	j := &job{tx: tx, done: make(chan result, 1)}
	for addr, w := range writable {
		if w {
			j.writes = append(j.writes, addr)
		} else {
			j.reads = append(j.reads, addr)
		}
	}
	return j
}
