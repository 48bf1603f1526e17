package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"marketplace/internal/address"
	"marketplace/internal/debug"
	"marketplace/internal/metrics"
	"marketplace/internal/models"
	"marketplace/internal/orchestrator"
	"marketplace/internal/program"
	"marketplace/internal/storage"
)

const (
	// MaxAccounts bounds the accounts one instruction may declare
	MaxAccounts = 64

	// DefaultMaxInvokeDepth bounds nested program calls
	DefaultMaxInvokeDepth = 4
)

// Status is the outcome of a transaction
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Receipt records what happened to one transaction
type Receipt struct {
	TxID        string            `json:"tx_id"`
	Sequence    uint64            `json:"sequence"`
	Program     string            `json:"program"`
	Instruction string            `json:"instruction"`
	Status      Status            `json:"status"`
	ErrorKind   program.ErrorKind `json:"error_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
	Accounts    []address.Address `json:"accounts,omitempty"`
	Events      []program.Event   `json:"events,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Options tune the runtime
type Options struct {
	MinReserve     uint64           // Lamports a wallet must keep after paying
	Rent           Rent             // Storage price for new accounts
	Clock          func() time.Time // Ledger clock, time.Now when nil
	MaxInvokeDepth int              // Nested call limit, DefaultMaxInvokeDepth when 0
}

// Processor executes signed transactions against a store.
// Each transaction locks its declared accounts, runs its instruction in a
// staging area and commits every touched account together or nothing.
type Processor struct {
	store    storage.Store
	programs *orchestrator.Orchestrator
	opts     Options
}

// NewProcessor creates a new Processor instance
func NewProcessor(store storage.Store, programs *orchestrator.Orchestrator, opts Options) *Processor {
	if opts.Rent.LamportsPerByteYear == 0 {
		opts.Rent.LamportsPerByteYear = DefaultLamportsPerByteYear
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxInvokeDepth <= 0 {
		opts.MaxInvokeDepth = DefaultMaxInvokeDepth
	}
	return &Processor{
		store:    store,
		programs: programs,
		opts:     opts,
	}
}

// Rent returns the storage price in effect
func (p *Processor) Rent() Rent {
	return p.opts.Rent
}

// Execute runs tx. The receipt is always returned; err is non-nil exactly
// when the transaction was rejected and left no trace in the store.
// A transaction id commits at most once; resubmissions fail with AlreadyExists.
func (p *Processor) Execute(ctx context.Context, tx *Transaction) (*Receipt, error) {
	start := time.Now()
	now := p.opts.Clock()

	receipt := &Receipt{
		TxID:        tx.ID(),
		Program:     p.programName(tx.Instruction.ProgramID),
		Instruction: tx.Instruction.Name,
		Status:      StatusSuccess,
		Timestamp:   now.UTC(),
	}

	err := p.execute(ctx, tx, now.Unix(), receipt)
	if err != nil {
		receipt.Status = StatusFailed
		receipt.ErrorKind = program.KindOf(err)
		receipt.Error = err.Error()
		receipt.Accounts = nil
		receipt.Events = nil
	}

	p.record(receipt, time.Since(start))
	return receipt, err
}

func (p *Processor) execute(ctx context.Context, tx *Transaction, now int64, receipt *Receipt) error {
	ix := tx.Instruction
	if len(ix.Accounts) == 0 {
		return program.Errorf(program.KindInvalidArgument, "%s: no accounts declared", ix.Name)
	}
	if len(ix.Accounts) > MaxAccounts {
		return program.Errorf(program.KindInvalidArgument, "%s: %d accounts exceed limit %d", ix.Name, len(ix.Accounts), MaxAccounts)
	}
	if _, ok := p.programs.Lookup(ix.ProgramID); !ok {
		return program.Errorf(program.KindInvalidArgument, "unknown program %s", ix.ProgramID)
	}

	signers, err := tx.Verify()
	if err != nil {
		return err
	}

	keys := make([]address.Address, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		keys[i] = meta.Address
	}

	stx, err := p.store.Begin(ctx, keys)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer stx.Rollback(ctx)

	if err := stx.MarkProcessed(ctx, receipt.TxID); err != nil {
		return processedError(receipt.TxID, err)
	}

	st, err := loadState(ctx, stx, ix.Accounts, now)
	if err != nil {
		return err
	}

	root := newFrame(p, st, ix.ProgramID, ix.Accounts, signers, 0)
	if err := p.programs.Dispatch(root, ix); err != nil {
		return err
	}
	if err := st.checkBalanced(); err != nil {
		return err
	}

	commitStart := time.Now()
	if err := st.apply(ctx, stx); err != nil {
		return err
	}
	if err := stx.Commit(ctx); err != nil {
		if errors.Is(err, storage.ErrAlreadyProcessed) {
			return processedError(receipt.TxID, err)
		}
		metrics.ErrorsTotal.WithLabelValues("store").Inc()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	metrics.StoreCommitDuration.Observe(time.Since(commitStart).Seconds())

	receipt.Accounts = st.touched()
	receipt.Events = st.events
	return nil
}

// processedError rejects a transaction whose id already committed
func processedError(txID string, err error) error {
	if errors.Is(err, storage.ErrAlreadyProcessed) {
		return program.Errorf(program.KindAlreadyExists, "transaction %s was already processed", txID)
	}
	return fmt.Errorf("failed to check transaction %s: %w", txID, err)
}

func (p *Processor) record(r *Receipt, elapsed time.Duration) {
	metrics.InstructionsTotal.WithLabelValues(r.Program, r.Instruction, string(r.Status)).Inc()
	metrics.InstructionDuration.Observe(elapsed.Seconds())

	if r.Status == StatusFailed {
		metrics.InstructionErrors.WithLabelValues(string(r.ErrorKind)).Inc()
		if r.ErrorKind == program.KindInternal {
			slog.Warn("Transaction failed on infrastructure error",
				"tx_id", r.TxID,
				"instruction", r.Instruction,
				"error", r.Error,
			)
		} else {
			slog.Debug("Transaction rejected",
				"tx_id", r.TxID,
				"instruction", r.Instruction,
				"kind", r.ErrorKind,
				"error", r.Error,
			)
		}
		return
	}

	for _, ev := range r.Events {
		switch ev.Name {
		case program.EventPayment:
			metrics.LamportsSettled.Add(float64(ev.Amount))
		case program.EventRoyalty:
			metrics.LamportsSettled.Add(float64(ev.Amount))
			metrics.RoyaltiesPaid.Add(float64(ev.Amount))
		case program.EventOfferingSold:
			metrics.OfferingsSold.Inc()
		case program.EventListingSold:
			metrics.ListingsSold.Inc()
		}
	}

	slog.Debug("Transaction committed",
		"tx_id", r.TxID,
		"program", r.Program,
		"instruction", r.Instruction,
		"accounts", len(r.Accounts),
		"duration_ms", elapsed.Milliseconds(),
	)
	debug.PrintJSON("Transaction receipt", r)
}

func (p *Processor) programName(id address.Address) string {
	if prog, ok := p.programs.Lookup(id); ok {
		return prog.Name()
	}
	return "unknown"
}

// Airdrop credits a system wallet outside any program. Development and
// test fixture only.
func (p *Processor) Airdrop(ctx context.Context, to address.Address, lamports uint64) (models.Account, error) {
	stx, err := p.store.Begin(ctx, []address.Address{to})
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer stx.Rollback(ctx)

	acct, exists, err := stx.Get(ctx, to)
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to load account %s: %w", to, err)
	}
	if !exists {
		acct = models.Account{Address: to, Owner: models.SystemProgramID}
	}
	if !acct.IsWallet() {
		return models.Account{}, program.Errorf(program.KindInvalidArgument, "account %s is not a wallet", to)
	}

	sum, carry := bits.Add64(acct.Lamports, lamports, 0)
	if carry != 0 {
		return models.Account{}, program.Errorf(program.KindInvalidArgument, "balance of %s would overflow", to)
	}
	acct.Lamports = sum

	if err := stx.Put(ctx, acct); err != nil {
		return models.Account{}, err
	}
	if err := stx.Commit(ctx); err != nil {
		return models.Account{}, fmt.Errorf("failed to commit airdrop: %w", err)
	}

	slog.Info("🪂 Airdrop", "to", to.String(), "lamports", lamports)
	return acct, nil
}

// Account reads the committed state of addr
func (p *Processor) Account(ctx context.Context, addr address.Address) (models.Account, bool, error) {
	return p.store.GetAccount(ctx, addr)
}
