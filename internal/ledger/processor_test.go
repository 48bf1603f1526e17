package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/address"
	"marketplace/internal/models"
	"marketplace/internal/orchestrator"
	"marketplace/internal/program"
	"marketplace/internal/storage"
)

var runtimeTestID = address.ProgramID("test", "runtime")

type runtimeTestArgs struct {
	Data   []byte          `json:"data,omitempty"`
	Other  address.Address `json:"other"`
	Amount uint64          `json:"amount,omitempty"`
}

// runtimeTest exercises the runtime through small instructions
type runtimeTest struct{}

func (runtimeTest) ID() address.Address { return runtimeTestID }
func (runtimeTest) Name() string        { return "RuntimeTest" }

func (runtimeTest) Process(ctx program.Context, ix program.Instruction) error {
	var args runtimeTestArgs
	if err := ix.Decode(&args); err != nil {
		return err
	}
	first := ix.Accounts[0].Address

	switch ix.Name {
	case "create":
		return ctx.CreateAccount(first, ix.Accounts[1].Address, runtimeTestID, args.Data)
	case "peek":
		_, err := ctx.Account(args.Other)
		return err
	case "write":
		return ctx.SetData(first, args.Data)
	case "pay":
		return ctx.Transfer(first, args.Other, args.Amount)
	case "pay-then-fail":
		if err := ctx.Transfer(first, args.Other, args.Amount); err != nil {
			return err
		}
		return program.Errorf(program.KindExpired, "too late")
	case "recurse":
		return ctx.Invoke(ix)
	case "emit":
		ctx.Emit(program.Event{Name: program.EventPayment, Account: first, Amount: args.Amount})
		return nil
	}
	return program.Errorf(program.KindInvalidArgument, "unknown instruction %s", ix.Name)
}

type processorFixture struct {
	t     *testing.T
	store *storage.MemoryStore
	proc  *Processor
	nonce uint64
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	orch, err := orchestrator.New(runtimeTest{})
	require.NoError(t, err)
	store := storage.NewMemoryStore()
	return &processorFixture{
		t:     t,
		store: store,
		proc: NewProcessor(store, orch, Options{
			Clock: func() time.Time { return time.Unix(1_700_000_000, 0) },
		}),
	}
}

func (f *processorFixture) wallet(lamports uint64) (*keypair.Full, address.Address) {
	f.t.Helper()
	kp := keypair.MustRandom()
	a := address.FromKeypair(kp)
	_, err := f.proc.Airdrop(context.Background(), a, lamports)
	require.NoError(f.t, err)
	return kp, a
}

func (f *processorFixture) run(name string, metas []program.AccountMeta, args runtimeTestArgs, signers ...*keypair.Full) (*Receipt, error) {
	f.t.Helper()
	ix, err := program.NewInstruction(runtimeTestID, name, metas, args)
	require.NoError(f.t, err)
	f.nonce++
	tx := &Transaction{Instruction: ix, Nonce: f.nonce}
	require.NoError(f.t, tx.Sign(signers...))
	return f.proc.Execute(context.Background(), tx)
}

func (f *processorFixture) account(a address.Address) (models.Account, bool) {
	f.t.Helper()
	acct, ok, err := f.proc.Account(context.Background(), a)
	require.NoError(f.t, err)
	return acct, ok
}

func TestExecuteCreateChargesRent(t *testing.T) {
	f := newProcessorFixture(t)
	payerKP, payer := f.wallet(10_000_000)
	newKP := keypair.MustRandom()
	target := address.FromKeypair(newKP)

	receipt, err := f.run("create", []program.AccountMeta{
		{Address: payer, Signer: true, Writable: true},
		{Address: target, Signer: true, Writable: true},
	}, runtimeTestArgs{Data: []byte("hello")}, payerKP, newKP)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, receipt.Status)
	assert.Equal(t, "RuntimeTest", receipt.Program)
	assert.ElementsMatch(t, []address.Address{payer, target}, receipt.Accounts)

	rent := f.proc.Rent().MinimumBalance(5)
	acct, ok := f.account(target)
	require.True(t, ok)
	assert.Equal(t, rent, acct.Lamports)
	assert.Equal(t, runtimeTestID, acct.Owner)
	assert.Equal(t, []byte("hello"), acct.Data)

	payerAcct, _ := f.account(payer)
	assert.Equal(t, 10_000_000-rent, payerAcct.Lamports)
}

func TestExecuteCreateNeedsTargetSignature(t *testing.T) {
	f := newProcessorFixture(t)
	payerKP, payer := f.wallet(10_000_000)
	target := address.FromKeypair(keypair.MustRandom())

	_, err := f.run("create", []program.AccountMeta{
		{Address: payer, Signer: true, Writable: true},
		{Address: target, Writable: true},
	}, runtimeTestArgs{Data: []byte("x")}, payerKP)
	assert.ErrorIs(t, err, program.ErrUnauthorized)

	_, ok := f.account(target)
	assert.False(t, ok)
}

func TestExecuteUndeclaredAccount(t *testing.T) {
	f := newProcessorFixture(t)
	kp, a := f.wallet(1)
	_, other := f.wallet(1)

	receipt, err := f.run("peek", []program.AccountMeta{{Address: a, Signer: true}}, runtimeTestArgs{Other: other}, kp)
	assert.ErrorIs(t, err, program.ErrInvalidArgument)
	assert.Equal(t, StatusFailed, receipt.Status)
	assert.Equal(t, program.KindInvalidArgument, receipt.ErrorKind)
}

func TestExecuteReadOnlyAccount(t *testing.T) {
	f := newProcessorFixture(t)
	kp, a := f.wallet(1)
	_, other := f.wallet(0)

	_, err := f.run("pay", []program.AccountMeta{
		{Address: a, Signer: true, Writable: true},
		{Address: other},
	}, runtimeTestArgs{Other: other, Amount: 1}, kp)
	assert.ErrorIs(t, err, program.ErrUnauthorized)
}

func TestExecuteUnsignedDebit(t *testing.T) {
	f := newProcessorFixture(t)
	payKP, _ := f.wallet(0)
	_, victim := f.wallet(100)
	thief := address.FromKeypair(payKP)

	_, err := f.run("pay", []program.AccountMeta{
		{Address: victim, Writable: true},
		{Address: thief, Signer: true, Writable: true},
	}, runtimeTestArgs{Other: thief, Amount: 100}, payKP)
	assert.ErrorIs(t, err, program.ErrUnauthorized)

	acct, _ := f.account(victim)
	assert.Equal(t, uint64(100), acct.Lamports)
}

func TestExecuteRollsBackOnError(t *testing.T) {
	f := newProcessorFixture(t)
	kp, from := f.wallet(100)
	to := address.FromKeypair(keypair.MustRandom())

	receipt, err := f.run("pay-then-fail", []program.AccountMeta{
		{Address: from, Signer: true, Writable: true},
		{Address: to, Writable: true},
	}, runtimeTestArgs{Other: to, Amount: 60}, kp)
	assert.ErrorIs(t, err, program.ErrExpired)
	assert.Empty(t, receipt.Accounts)
	assert.Empty(t, receipt.Events)

	acct, _ := f.account(from)
	assert.Equal(t, uint64(100), acct.Lamports)
	_, ok := f.account(to)
	assert.False(t, ok)
}

func TestExecuteTransferOpensWallet(t *testing.T) {
	f := newProcessorFixture(t)
	kp, from := f.wallet(100)
	to := address.FromKeypair(keypair.MustRandom())

	_, err := f.run("pay", []program.AccountMeta{
		{Address: from, Signer: true, Writable: true},
		{Address: to, Writable: true},
	}, runtimeTestArgs{Other: to, Amount: 60}, kp)
	require.NoError(t, err)

	acct, ok := f.account(to)
	require.True(t, ok)
	assert.True(t, acct.IsWallet())
	assert.Equal(t, uint64(60), acct.Lamports)
}

func TestExecuteInvokeDepthLimit(t *testing.T) {
	f := newProcessorFixture(t)
	kp, a := f.wallet(1)

	_, err := f.run("recurse", []program.AccountMeta{{Address: a, Signer: true}}, runtimeTestArgs{}, kp)
	assert.ErrorIs(t, err, program.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "invoke depth")
}

func TestExecuteEventsOnReceipt(t *testing.T) {
	f := newProcessorFixture(t)
	kp, a := f.wallet(1)

	receipt, err := f.run("emit", []program.AccountMeta{{Address: a, Signer: true}}, runtimeTestArgs{Amount: 7}, kp)
	require.NoError(t, err)
	assert.Equal(t, []program.Event{{Name: program.EventPayment, Account: a, Amount: 7}}, receipt.Events)
}

func TestExecuteRejectsMalformedTransactions(t *testing.T) {
	f := newProcessorFixture(t)
	kp, a := f.wallet(1)

	t.Run("no accounts", func(t *testing.T) {
		_, err := f.run("emit", nil, runtimeTestArgs{})
		assert.ErrorIs(t, err, program.ErrInvalidArgument)
	})

	t.Run("too many accounts", func(t *testing.T) {
		metas := make([]program.AccountMeta, MaxAccounts+1)
		for i := range metas {
			metas[i].Address[0] = byte(i)
			metas[i].Address[1] = 1
		}
		_, err := f.run("emit", metas, runtimeTestArgs{})
		assert.ErrorIs(t, err, program.ErrInvalidArgument)
	})

	t.Run("unknown program", func(t *testing.T) {
		ix := program.Instruction{
			ProgramID: address.ProgramID("test", "missing"),
			Name:      "emit",
			Accounts:  []program.AccountMeta{{Address: a, Signer: true}},
		}
		tx := &Transaction{Instruction: ix}
		require.NoError(t, tx.Sign(kp))
		receipt, err := f.proc.Execute(context.Background(), tx)
		assert.ErrorIs(t, err, program.ErrInvalidArgument)
		assert.Equal(t, "unknown", receipt.Program)
	})

	t.Run("unsigned", func(t *testing.T) {
		_, err := f.run("emit", []program.AccountMeta{{Address: a, Signer: true}}, runtimeTestArgs{})
		assert.ErrorIs(t, err, program.ErrUnauthorized)
	})
}

func TestAirdrop(t *testing.T) {
	f := newProcessorFixture(t)
	_, a := f.wallet(5)
	acct, err := f.proc.Airdrop(context.Background(), a, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), acct.Lamports)

	payerKP, payer := f.wallet(10_000_000)
	dataKP := keypair.MustRandom()
	target := address.FromKeypair(dataKP)
	_, err = f.run("create", []program.AccountMeta{
		{Address: payer, Signer: true, Writable: true},
		{Address: target, Signer: true, Writable: true},
	}, runtimeTestArgs{Data: []byte("x")}, payerKP, dataKP)
	require.NoError(t, err)

	_, err = f.proc.Airdrop(context.Background(), target, 1)
	assert.ErrorIs(t, err, program.ErrInvalidArgument)
}

func TestCheckBalanced(t *testing.T) {
	a, b := address.Address{1}, address.Address{2}
	st := &state{accounts: map[address.Address]*staged{
		a: {acct: models.Account{Address: a, Lamports: 10}, exists: true, initial: 10},
		b: {acct: models.Account{Address: b}, initial: 0},
	}}
	require.NoError(t, st.checkBalanced())

	st.accounts[a].acct.Lamports = 4
	st.accounts[b].acct.Lamports = 6
	st.accounts[b].exists = true
	require.NoError(t, st.checkBalanced())

	st.accounts[b].acct.Lamports = 7
	assert.Error(t, st.checkBalanced())

	// closing an account without crediting anyone destroys lamports
	st.accounts[b].acct.Lamports = 6
	st.accounts[a].exists = false
	assert.Error(t, st.checkBalanced())
}

func TestExecuteRejectsReplay(t *testing.T) {
	f := newProcessorFixture(t)
	payerKP, payer := f.wallet(1_000)
	payee := address.FromKeypair(keypair.MustRandom())

	tx := f.payTx(payerKP, payee, 300)
	_, err := f.proc.Execute(context.Background(), tx)
	require.NoError(t, err)

	receipt, err := f.proc.Execute(context.Background(), tx)
	assert.ErrorIs(t, err, program.ErrAlreadyExists)
	assert.Equal(t, StatusFailed, receipt.Status)

	acct, _ := f.account(payee)
	assert.Equal(t, uint64(300), acct.Lamports)
	acct, _ = f.account(payer)
	assert.Equal(t, uint64(700), acct.Lamports)

	// the same payment under a new nonce is a new transaction
	_, err = f.proc.Execute(context.Background(), f.payTx(payerKP, payee, 300))
	require.NoError(t, err)
}

func TestExecuteRetriesRejectedTransaction(t *testing.T) {
	f := newProcessorFixture(t)
	payerKP, payer := f.wallet(100)
	payee := address.FromKeypair(keypair.MustRandom())

	tx := f.payTx(payerKP, payee, 500)
	_, err := f.proc.Execute(context.Background(), tx)
	assert.ErrorIs(t, err, program.ErrInsufficientFunds)

	_, err = f.proc.Airdrop(context.Background(), payer, 1_000)
	require.NoError(t, err)

	// a rejection consumes nothing
	_, err = f.proc.Execute(context.Background(), tx)
	require.NoError(t, err)
}
