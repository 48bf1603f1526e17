package marketplace_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stretchr/testify/require"

	"marketplace/internal/address"
	"marketplace/internal/assets"
	"marketplace/internal/client"
	"marketplace/internal/ledger"
	"marketplace/internal/marketplace"
	"marketplace/internal/models"
	"marketplace/internal/orchestrator"
	"marketplace/internal/program"
	"marketplace/internal/storage"
)

const (
	sol         = uint64(1_000_000_000)
	startTime   = int64(1_700_000_000)
	initialFund = 1_000 * sol
)

type harness struct {
	t       *testing.T
	store   *storage.MemoryStore
	proc    *ledger.Processor
	builder *client.Builder
	ids     client.Programs
	now     atomic.Int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, ledger.Options{})
}

// newHarnessWith runs against a fresh memory store with a controllable clock
func newHarnessWith(t *testing.T, opts ledger.Options) *harness {
	t.Helper()

	ids := client.Programs{
		Marketplace: address.ProgramID(network.TestNetworkPassphrase, marketplace.ProgramName),
		Assets:      address.ProgramID(network.TestNetworkPassphrase, assets.ProgramName),
	}
	orch, err := orchestrator.New(
		assets.New(ids.Assets),
		marketplace.New(ids.Marketplace, ids.Assets),
	)
	require.NoError(t, err)

	h := &harness{
		t:       t,
		store:   storage.NewMemoryStore(),
		builder: client.NewBuilder(ids),
		ids:     ids,
	}
	h.now.Store(startTime)
	opts.Clock = func() time.Time { return time.Unix(h.now.Load(), 0) }
	h.proc = ledger.NewProcessor(h.store, orch, opts)
	return h
}

func (h *harness) advance(seconds int64) {
	h.now.Add(seconds)
}

// wallet creates a funded keypair
func (h *harness) wallet(lamports uint64) (*keypair.Full, address.Address) {
	h.t.Helper()
	kp := keypair.MustRandom()
	addr := address.FromKeypair(kp)
	if lamports > 0 {
		_, err := h.proc.Airdrop(context.Background(), addr, lamports)
		require.NoError(h.t, err)
	}
	return kp, addr
}

func (h *harness) exec(tx *ledger.Transaction) (*ledger.Receipt, error) {
	return h.proc.Execute(context.Background(), tx)
}

func (h *harness) mustExec(tx *ledger.Transaction, err error) *ledger.Receipt {
	h.t.Helper()
	require.NoError(h.t, err)
	receipt, err := h.exec(tx)
	require.NoError(h.t, err)
	require.Equal(h.t, ledger.StatusSuccess, receipt.Status)
	return receipt
}

func (h *harness) requireKind(kind program.ErrorKind, tx *ledger.Transaction, buildErr error) {
	h.t.Helper()
	require.NoError(h.t, buildErr)
	receipt, err := h.exec(tx)
	require.Error(h.t, err)
	require.Equal(h.t, kind, program.KindOf(err), err.Error())
	require.Equal(h.t, ledger.StatusFailed, receipt.Status)
	require.Equal(h.t, kind, receipt.ErrorKind)
}

func (h *harness) account(addr address.Address) (models.Account, bool) {
	h.t.Helper()
	acct, ok, err := h.store.GetAccount(context.Background(), addr)
	require.NoError(h.t, err)
	return acct, ok
}

func (h *harness) balance(addr address.Address) uint64 {
	acct, _ := h.account(addr)
	return acct.Lamports
}

func (h *harness) offering(addr address.Address) *models.ServiceOffering {
	h.t.Helper()
	acct, ok := h.account(addr)
	require.True(h.t, ok, "offering %s missing", addr)
	o, err := models.UnmarshalServiceOffering(acct.Data)
	require.NoError(h.t, err)

	// invariants hold in every observed state
	require.LessOrEqual(h.t, o.NumSold, o.MaxQuantity)
	if o.NumSold == o.MaxQuantity {
		require.False(h.t, o.Active)
	}
	return o
}

func (h *harness) asset(addr address.Address) *models.Asset {
	h.t.Helper()
	acct, ok := h.account(addr)
	require.True(h.t, ok, "asset %s missing", addr)
	a, err := assets.Read(acct, h.ids.Assets)
	require.NoError(h.t, err)
	return a
}

func (h *harness) group(addr address.Address) *models.Group {
	h.t.Helper()
	acct, ok := h.account(addr)
	require.True(h.t, ok, "group %s missing", addr)
	g, err := assets.ReadGroup(acct, h.ids.Assets)
	require.NoError(h.t, err)
	return g
}

// assetTransfer calls the asset program directly, bypassing the marketplace
func assetTransfer(h *harness, asset address.Address, owner *keypair.Full, recipient address.Address) (*ledger.Transaction, error) {
	ix, err := assets.Transfer(h.ids.Assets, asset, address.FromKeypair(owner), recipient)
	if err != nil {
		return nil, err
	}
	tx := &ledger.Transaction{Instruction: ix, Nonce: 1}
	return tx, tx.Sign(owner)
}

func offeringArgs(name string, maxQuantity, price uint64) marketplace.CreateServiceOfferingArgs {
	return marketplace.CreateServiceOfferingArgs{
		OfferingName: name,
		MaxQuantity:  maxQuantity,
		SolPrice:     price,
		Metadata: models.OfferingMetadata{
			Symbol:             "SVC",
			Description:        "One hour of consulting",
			URI:                "https://example.com/offering.json",
			Image:              "https://example.com/offering.png",
			RoyaltyBasisPoints: 500,
			TermsOfServiceURI:  "https://example.com/tos",
			IsTransferrable:    true,
		},
	}
}

func ptr[T any](v T) *T {
	return &v
}
