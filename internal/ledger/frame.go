package ledger

import (
	"bytes"
	"context"
	"fmt"
	"math/bits"
	"slices"

	"marketplace/internal/address"
	"marketplace/internal/models"
	"marketplace/internal/program"
	"marketplace/internal/storage"
)

// staged is one declared account as the running transaction sees it
type staged struct {
	acct    models.Account
	exists  bool
	dirty   bool
	initial uint64
}

// state is the staging area of one transaction. Nothing in it reaches the
// store unless the whole instruction succeeds.
type state struct {
	accounts map[address.Address]*staged
	events   []program.Event
	now      int64
}

func loadState(ctx context.Context, tx storage.Tx, metas []program.AccountMeta, now int64) (*state, error) {
	st := &state{
		accounts: make(map[address.Address]*staged, len(metas)),
		now:      now,
	}
	for _, meta := range metas {
		if _, ok := st.accounts[meta.Address]; ok {
			continue
		}
		acct, exists, err := tx.Get(ctx, meta.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to load account %s: %w", meta.Address, err)
		}
		if !exists {
			acct = models.Account{Address: meta.Address}
		}
		st.accounts[meta.Address] = &staged{acct: acct, exists: exists, initial: acct.Lamports}
	}
	return st, nil
}

// checkBalanced verifies that no lamports were created or destroyed
func (st *state) checkBalanced() error {
	var beforeHi, beforeLo, afterHi, afterLo, carry uint64
	for _, s := range st.accounts {
		beforeLo, carry = bits.Add64(beforeLo, s.initial, 0)
		beforeHi += carry
		if s.exists {
			afterLo, carry = bits.Add64(afterLo, s.acct.Lamports, 0)
			afterHi += carry
		}
	}
	if beforeHi != afterHi || beforeLo != afterLo {
		return fmt.Errorf("lamport imbalance: before %d:%d, after %d:%d", beforeHi, beforeLo, afterHi, afterLo)
	}
	return nil
}

// touched returns the changed addresses in sorted order
func (st *state) touched() []address.Address {
	var out []address.Address
	for addr, s := range st.accounts {
		if s.dirty {
			out = append(out, addr)
		}
	}
	slices.SortFunc(out, address.Address.Compare)
	return out
}

func (st *state) apply(ctx context.Context, tx storage.Tx) error {
	for _, addr := range st.touched() {
		s := st.accounts[addr]
		if !s.exists {
			if err := tx.Delete(ctx, addr); err != nil {
				return fmt.Errorf("failed to delete account %s: %w", addr, err)
			}
			continue
		}
		if err := tx.Put(ctx, s.acct); err != nil {
			return fmt.Errorf("failed to stage account %s: %w", addr, err)
		}
	}
	return nil
}

// frame is the program.Context of one (possibly nested) program call
type frame struct {
	proc      *Processor
	st        *state
	programID address.Address
	metas     map[address.Address]program.AccountMeta
	signers   map[address.Address]bool
	depth     int
}

func newFrame(proc *Processor, st *state, programID address.Address, accounts []program.AccountMeta, signers map[address.Address]bool, depth int) *frame {
	return &frame{
		proc:      proc,
		st:        st,
		programID: programID,
		metas:     mergeMetas(accounts),
		signers:   signers,
		depth:     depth,
	}
}

// mergeMetas folds duplicate declarations, keeping the widest privileges
func mergeMetas(accounts []program.AccountMeta) map[address.Address]program.AccountMeta {
	out := make(map[address.Address]program.AccountMeta, len(accounts))
	for _, meta := range accounts {
		prev := out[meta.Address]
		out[meta.Address] = program.AccountMeta{
			Address:  meta.Address,
			Signer:   prev.Signer || meta.Signer,
			Writable: prev.Writable || meta.Writable,
		}
	}
	return out
}

func (f *frame) ProgramID() address.Address {
	return f.programID
}

func (f *frame) Now() int64 {
	return f.st.now
}

func (f *frame) IsSigner(addr address.Address) bool {
	return f.signers[addr]
}

func (f *frame) MinReserve() uint64 {
	return f.proc.opts.MinReserve
}

func (f *frame) Emit(ev program.Event) {
	f.st.events = append(f.st.events, ev)
}

func (f *frame) lookup(addr address.Address) (*staged, error) {
	if _, ok := f.metas[addr]; !ok {
		return nil, program.Errorf(program.KindInvalidArgument, "account %s was not declared", addr)
	}
	return f.st.accounts[addr], nil
}

func (f *frame) writable(addr address.Address) (*staged, error) {
	s, err := f.lookup(addr)
	if err != nil {
		return nil, err
	}
	if !f.metas[addr].Writable {
		return nil, program.Errorf(program.KindUnauthorized, "account %s is read-only", addr)
	}
	return s, nil
}

func (f *frame) Account(addr address.Address) (models.Account, error) {
	s, err := f.lookup(addr)
	if err != nil {
		return models.Account{}, err
	}
	if !s.exists {
		return models.Account{}, program.Errorf(program.KindNotFound, "account %s does not exist", addr)
	}
	return s.acct.Clone(), nil
}

func (f *frame) Exists(addr address.Address) (bool, error) {
	s, err := f.lookup(addr)
	if err != nil {
		return false, err
	}
	return s.exists, nil
}

func (f *frame) CreateAccount(payer, addr, owner address.Address, data []byte, seeds ...program.Seeds) error {
	if owner != f.programID {
		return program.Errorf(program.KindUnauthorized, "program %s cannot create accounts owned by %s", f.programID, owner)
	}
	target, err := f.writable(addr)
	if err != nil {
		return err
	}
	if target.exists {
		return program.Errorf(program.KindAlreadyExists, "account %s already exists", addr)
	}
	if !f.IsSigner(addr) {
		derived, err := f.derive(seeds)
		if err != nil {
			return err
		}
		if !derived[addr] {
			return program.Errorf(program.KindUnauthorized, "new account %s did not sign", addr)
		}
	}

	rent := f.proc.opts.Rent.MinimumBalance(len(data))
	if err := f.debit(payer, rent); err != nil {
		return err
	}

	target.acct = models.Account{
		Address:  addr,
		Owner:    owner,
		Lamports: rent,
		Data:     bytes.Clone(data),
	}
	target.exists = true
	target.dirty = true
	return nil
}

func (f *frame) SetData(addr address.Address, data []byte) error {
	s, err := f.writable(addr)
	if err != nil {
		return err
	}
	if !s.exists {
		return program.Errorf(program.KindNotFound, "account %s does not exist", addr)
	}
	if s.acct.Owner != f.programID {
		return program.Errorf(program.KindUnauthorized, "account %s is not owned by program %s", addr, f.programID)
	}
	if len(data) != len(s.acct.Data) {
		return program.Errorf(program.KindInvalidArgument, "account %s holds %d bytes, got %d", addr, len(s.acct.Data), len(data))
	}
	s.acct.Data = bytes.Clone(data)
	s.dirty = true
	return nil
}

func (f *frame) Transfer(from, to address.Address, amount uint64) error {
	if _, err := f.writable(to); err != nil {
		return err
	}
	if err := f.debit(from, amount); err != nil {
		return err
	}
	return f.credit(to, amount)
}

func (f *frame) Close(addr, dest address.Address) error {
	if addr == dest {
		return program.Errorf(program.KindInvalidArgument, "cannot close %s into itself", addr)
	}
	s, err := f.writable(addr)
	if err != nil {
		return err
	}
	if _, err := f.writable(dest); err != nil {
		return err
	}
	if !s.exists {
		return program.Errorf(program.KindNotFound, "account %s does not exist", addr)
	}
	if s.acct.Owner != f.programID {
		return program.Errorf(program.KindUnauthorized, "account %s is not owned by program %s", addr, f.programID)
	}

	lamports := s.acct.Lamports
	s.acct = models.Account{Address: addr}
	s.exists = false
	s.dirty = true
	return f.credit(dest, lamports)
}

// debit takes amount from a signing wallet (keeping the reserve) or from
// an account owned by the running program
func (f *frame) debit(from address.Address, amount uint64) error {
	s, err := f.writable(from)
	if err != nil {
		return err
	}
	if !s.exists {
		return program.Errorf(program.KindInsufficientFunds, "account %s does not exist", from)
	}

	switch {
	case s.acct.IsWallet():
		if !f.IsSigner(from) {
			return program.Errorf(program.KindUnauthorized, "wallet %s did not sign", from)
		}
		required, carry := bits.Add64(amount, f.MinReserve(), 0)
		if carry != 0 || s.acct.Lamports < required {
			return program.Errorf(program.KindInsufficientFunds,
				"wallet %s has %d lamports, needs %d plus reserve %d", from, s.acct.Lamports, amount, f.MinReserve())
		}
	case s.acct.Owner == f.programID:
		if s.acct.Lamports < amount {
			return program.Errorf(program.KindInsufficientFunds,
				"account %s has %d lamports, needs %d", from, s.acct.Lamports, amount)
		}
	default:
		return program.Errorf(program.KindUnauthorized, "program %s cannot debit %s", f.programID, from)
	}

	if amount == 0 {
		return nil
	}
	s.acct.Lamports -= amount
	s.dirty = true
	return nil
}

// credit adds amount to an account, opening a system wallet when needed
func (f *frame) credit(to address.Address, amount uint64) error {
	s, err := f.writable(to)
	if err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if !s.exists {
		s.acct = models.Account{Address: to, Owner: models.SystemProgramID}
		s.exists = true
	}
	sum, carry := bits.Add64(s.acct.Lamports, amount, 0)
	if carry != 0 {
		return program.Errorf(program.KindInvalidArgument, "balance of %s would overflow", to)
	}
	s.acct.Lamports = sum
	s.dirty = true
	return nil
}

func (f *frame) Invoke(ix program.Instruction, seeds ...program.Seeds) error {
	if f.depth+1 > f.proc.opts.MaxInvokeDepth {
		return program.Errorf(program.KindInvalidArgument, "invoke depth %d exceeded", f.proc.opts.MaxInvokeDepth)
	}

	derived, err := f.derive(seeds)
	if err != nil {
		return err
	}

	signers := make(map[address.Address]bool)
	for _, meta := range ix.Accounts {
		caller, ok := f.metas[meta.Address]
		if !ok {
			return program.Errorf(program.KindInvalidArgument, "account %s is not available to %s", meta.Address, ix.Name)
		}
		if meta.Writable && !caller.Writable {
			return program.Errorf(program.KindUnauthorized, "account %s is read-only", meta.Address)
		}
		if meta.Signer {
			if !f.signers[meta.Address] && !derived[meta.Address] {
				return program.Errorf(program.KindUnauthorized, "%s cannot sign for %s", f.programID, meta.Address)
			}
			signers[meta.Address] = true
		}
	}

	child := newFrame(f.proc, f.st, ix.ProgramID, ix.Accounts, signers, f.depth+1)
	return f.proc.programs.Dispatch(child, ix)
}

// derive resolves seeds to the addresses they prove under the running program
func (f *frame) derive(seeds []program.Seeds) (map[address.Address]bool, error) {
	derived := make(map[address.Address]bool, len(seeds))
	for _, s := range seeds {
		addr, err := address.Derive(f.programID, s.Namespace, s.Parts...)
		if err != nil {
			return nil, program.Errorf(program.KindInvalidArgument, "signer seeds: %v", err)
		}
		derived[addr] = true
	}
	return derived, nil
}
