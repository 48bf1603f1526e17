package marketplace_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/address"
	"marketplace/internal/ledger"
	"marketplace/internal/marketplace"
	"marketplace/internal/models"
	"marketplace/internal/program"
)

func TestResaleScenario(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	b1KP, b1 := h.wallet(initialFund)
	b2KP, b2 := h.wallet(initialFund)

	tx, refs, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Test Offering", 10, sol))
	h.mustExec(tx, err)

	o := h.offering(refs.Offering)
	assert.Equal(t, vendor, o.Vendor)
	assert.Equal(t, refs.Group, o.Group)
	assert.Equal(t, uint64(0), o.NumSold)
	assert.True(t, o.Active)
	assert.Equal(t, startTime, o.CreatedAt)
	assert.Equal(t, refs.Offering, h.group(refs.Group).Authority)

	// B1 buys
	vendorBefore := h.balance(vendor)
	tx, assetAddr, err := h.builder.BuyService(b1KP, vendor, "Test Offering")
	receipt := h.mustExec(tx, err)
	assert.Contains(t, receipt.Events, program.Event{Name: program.EventPayment, Account: vendor, Amount: sol})

	o = h.offering(refs.Offering)
	assert.Equal(t, uint64(1), o.NumSold)
	assert.True(t, o.Active)
	assert.Equal(t, vendorBefore+sol, h.balance(vendor))

	asset := h.asset(assetAddr)
	assert.Equal(t, b1, asset.Owner)
	assert.Equal(t, refs.Group, asset.Group)
	assert.Equal(t, models.StandardNonFungible, asset.Standard)
	assert.Equal(t, uint64(1), h.group(refs.Group).Size)

	// B1 lists at 2 SOL
	b1Before := h.balance(b1)
	vendorBefore = h.balance(vendor)
	tx, listingAddr, err := h.builder.ListAsset(b1KP, assetAddr, 2*sol, nil)
	h.mustExec(tx, err)

	asset = h.asset(assetAddr)
	assert.Equal(t, models.AssetLocked, asset.State)
	assert.True(t, asset.HasDelegate(listingAddr, models.RoleTransfer))

	// B2 buys the listing
	b2Before := h.balance(b2)
	tx, err = h.builder.BuyListing(b2KP, b1, assetAddr, vendor, "Test Offering", 2*sol)
	h.mustExec(tx, err)

	_, listed := h.account(listingAddr)
	assert.False(t, listed, "listing should be closed")

	asset = h.asset(assetAddr)
	assert.Equal(t, b2, asset.Owner)
	assert.Equal(t, models.AssetUnlocked, asset.State)
	assert.True(t, asset.Delegate.IsZero())

	royalty := 2 * sol * 500 / 10000
	assert.Equal(t, b1Before+2*sol-royalty, h.balance(b1))
	assert.Equal(t, vendorBefore+royalty, h.balance(vendor))
	assert.Equal(t, b2Before-2*sol, h.balance(b2))
}

func TestBuyServiceUntilSoldOut(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	buyerKP, _ := h.wallet(initialFund)

	tx, refs, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Limited", 3, sol))
	h.mustExec(tx, err)

	for i := 1; i <= 3; i++ {
		tx, _, err := h.builder.BuyService(buyerKP, vendor, "Limited")
		h.mustExec(tx, err)
		assert.Equal(t, uint64(i), h.offering(refs.Offering).NumSold)
	}

	o := h.offering(refs.Offering)
	assert.False(t, o.Active)

	tx, _, err = h.builder.BuyService(buyerKP, vendor, "Limited")
	h.requireKind(program.KindSoldOut, tx, err)
	assert.Equal(t, uint64(3), h.offering(refs.Offering).NumSold)
	assert.Equal(t, uint64(3), h.group(refs.Group).Size)
}

func TestZeroQuantityOfferingIsSoldOut(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	buyerKP, _ := h.wallet(initialFund)

	tx, refs, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Nothing", 0, sol))
	h.mustExec(tx, err)
	assert.False(t, h.offering(refs.Offering).Active)

	tx, _, err = h.builder.BuyService(buyerKP, vendor, "Nothing")
	h.requireKind(program.KindSoldOut, tx, err)
}

func TestExpiry(t *testing.T) {
	t.Run("offering", func(t *testing.T) {
		h := newHarness(t)
		vendorKP, vendor := h.wallet(initialFund)
		buyerKP, _ := h.wallet(initialFund)

		args := offeringArgs("Timed", 5, sol)
		args.ExpiresAt = ptr(startTime + 100)
		tx, _, err := h.builder.CreateServiceOffering(vendorKP, args)
		h.mustExec(tx, err)

		h.advance(99)
		tx, _, err = h.builder.BuyService(buyerKP, vendor, "Timed")
		h.mustExec(tx, err)

		// expires_at itself is already expired
		h.advance(1)
		tx, _, err = h.builder.BuyService(buyerKP, vendor, "Timed")
		h.requireKind(program.KindExpired, tx, err)
	})

	t.Run("expired wins over paused", func(t *testing.T) {
		h := newHarness(t)
		vendorKP, vendor := h.wallet(initialFund)
		buyerKP, _ := h.wallet(initialFund)

		args := offeringArgs("Paused", 5, sol)
		args.ExpiresAt = ptr(startTime + 10)
		tx, _, err := h.builder.CreateServiceOffering(vendorKP, args)
		h.mustExec(tx, err)
		h.mustExec(h.builder.SetOfferingActive(vendorKP, "Paused", false))

		h.advance(60)
		tx, _, err = h.builder.BuyService(buyerKP, vendor, "Paused")
		h.requireKind(program.KindExpired, tx, err)
	})

	t.Run("listing", func(t *testing.T) {
		h := newHarness(t)
		vendorKP, vendor := h.wallet(initialFund)
		sellerKP, seller := h.wallet(initialFund)
		buyerKP, _ := h.wallet(initialFund)

		tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Resale", 5, sol))
		h.mustExec(tx, err)
		tx, assetAddr, err := h.builder.BuyService(sellerKP, vendor, "Resale")
		h.mustExec(tx, err)

		tx, _, err = h.builder.ListAsset(sellerKP, assetAddr, 2*sol, ptr(h.now.Load()+30))
		h.mustExec(tx, err)

		h.advance(30)
		tx, err = h.builder.BuyListing(buyerKP, seller, assetAddr, vendor, "Resale", 2*sol)
		h.requireKind(program.KindExpired, tx, err)
		assert.Equal(t, seller, h.asset(assetAddr).Owner)
	})
}

func TestCreateServiceOfferingValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*marketplace.CreateServiceOfferingArgs)
	}{
		{"zero price", func(a *marketplace.CreateServiceOfferingArgs) { a.SolPrice = 0 }},
		{"royalty above 100%", func(a *marketplace.CreateServiceOfferingArgs) { a.Metadata.RoyaltyBasisPoints = 10001 }},
		{"empty name", func(a *marketplace.CreateServiceOfferingArgs) { a.OfferingName = "" }},
		{"symbol too long", func(a *marketplace.CreateServiceOfferingArgs) { a.Metadata.Symbol = strings.Repeat("S", models.MaxSymbolLen+1) }},
		{"description too long", func(a *marketplace.CreateServiceOfferingArgs) {
			a.Metadata.Description = strings.Repeat("d", models.MaxDescriptionLen+1)
		}},
		{"expiry in the past", func(a *marketplace.CreateServiceOfferingArgs) { a.ExpiresAt = ptr(startTime - 1) }},
		{"expiry now", func(a *marketplace.CreateServiceOfferingArgs) { a.ExpiresAt = ptr(startTime) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			vendorKP, vendor := h.wallet(initialFund)
			args := offeringArgs("Validated", 5, sol)
			tt.mutate(&args)

			before := h.balance(vendor)
			tx, _, err := h.builder.CreateServiceOffering(vendorKP, args)
			h.requireKind(program.KindInvalidArgument, tx, err)
			assert.Equal(t, before, h.balance(vendor))
		})
	}
}

func TestOfferingNameTooLongCannotDerive(t *testing.T) {
	h := newHarness(t)
	vendorKP, _ := h.wallet(initialFund)

	_, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs(strings.Repeat("n", 33), 1, sol))
	assert.ErrorIs(t, err, address.ErrSeedTooLong)
}

func TestCreateServiceOfferingTwice(t *testing.T) {
	h := newHarness(t)
	vendorKP, _ := h.wallet(initialFund)

	tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Once", 5, sol))
	h.mustExec(tx, err)

	tx, _, err = h.builder.CreateServiceOffering(vendorKP, offeringArgs("Once", 7, 2*sol))
	h.requireKind(program.KindAlreadyExists, tx, err)

	// same name under another vendor is a different address
	otherKP, _ := h.wallet(initialFund)
	tx, _, err = h.builder.CreateServiceOffering(otherKP, offeringArgs("Once", 5, sol))
	h.mustExec(tx, err)
}

func TestSetOfferingActive(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	buyerKP, _ := h.wallet(initialFund)

	tx, refs, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Pausable", 1, sol))
	h.mustExec(tx, err)

	h.mustExec(h.builder.SetOfferingActive(vendorKP, "Pausable", false))
	tx, _, err = h.builder.BuyService(buyerKP, vendor, "Pausable")
	h.requireKind(program.KindOfferingInactive, tx, err)

	h.mustExec(h.builder.SetOfferingActive(vendorKP, "Pausable", true))
	tx, _, err = h.builder.BuyService(buyerKP, vendor, "Pausable")
	h.mustExec(tx, err)
	assert.False(t, h.offering(refs.Offering).Active)

	// an exhausted offering cannot be resumed
	tx, err = h.builder.SetOfferingActive(vendorKP, "Pausable", true)
	h.requireKind(program.KindSoldOut, tx, err)
}

func TestSetOfferingActiveRequiresVendor(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	strangerKP, stranger := h.wallet(initialFund)

	tx, refs, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Mine", 5, sol))
	h.mustExec(tx, err)

	// stranger signs an instruction naming themselves as vendor
	ix, err := marketplace.NewSetOfferingActive(h.ids.Marketplace, stranger, refs.Offering, false)
	require.NoError(t, err)
	tx = &ledger.Transaction{Instruction: ix, Nonce: 1}
	require.NoError(t, tx.Sign(strangerKP))
	h.requireKind(program.KindUnauthorized, tx, nil)

	// naming the real vendor without their signature
	ix, err = marketplace.NewSetOfferingActive(h.ids.Marketplace, vendor, refs.Offering, false)
	require.NoError(t, err)
	tx = &ledger.Transaction{Instruction: ix, Nonce: 2}
	require.NoError(t, tx.Sign(strangerKP))
	h.requireKind(program.KindUnauthorized, tx, nil)

	assert.True(t, h.offering(refs.Offering).Active)
}

func TestListAssetTwice(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	b1KP, b1 := h.wallet(initialFund)
	b2KP, _ := h.wallet(initialFund)

	tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Relist", 5, sol))
	h.mustExec(tx, err)
	tx, assetAddr, err := h.builder.BuyService(b1KP, vendor, "Relist")
	h.mustExec(tx, err)

	tx, _, err = h.builder.ListAsset(b1KP, assetAddr, 2*sol, nil)
	h.mustExec(tx, err)
	tx, _, err = h.builder.ListAsset(b1KP, assetAddr, 3*sol, nil)
	h.requireKind(program.KindAlreadyListed, tx, err)

	tx, err = h.builder.BuyListing(b2KP, b1, assetAddr, vendor, "Relist", 2*sol)
	h.mustExec(tx, err)

	// the new owner may list the same asset
	tx, listingAddr, err := h.builder.ListAsset(b2KP, assetAddr, 3*sol, nil)
	h.mustExec(tx, err)
	_, ok := h.account(listingAddr)
	assert.True(t, ok)

	// the previous owner no longer can
	tx, _, err = h.builder.ListAsset(b1KP, assetAddr, 3*sol, nil)
	h.requireKind(program.KindUnauthorized, tx, err)
}

func TestListAssetValidation(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	ownerKP, _ := h.wallet(initialFund)

	tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Checked", 5, sol))
	h.mustExec(tx, err)
	tx, assetAddr, err := h.builder.BuyService(ownerKP, vendor, "Checked")
	h.mustExec(tx, err)

	tx, _, err = h.builder.ListAsset(ownerKP, assetAddr, 0, nil)
	h.requireKind(program.KindInvalidArgument, tx, err)

	tx, _, err = h.builder.ListAsset(ownerKP, assetAddr, sol, ptr(startTime))
	h.requireKind(program.KindInvalidArgument, tx, err)

	assert.Equal(t, models.AssetUnlocked, h.asset(assetAddr).State)
}

func TestSoulboundAssetCannotBeListed(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	ownerKP, _ := h.wallet(initialFund)

	args := offeringArgs("Personal", 5, sol)
	args.Metadata.IsTransferrable = false
	tx, _, err := h.builder.CreateServiceOffering(vendorKP, args)
	h.mustExec(tx, err)

	tx, assetAddr, err := h.builder.BuyService(ownerKP, vendor, "Personal")
	h.mustExec(tx, err)
	assert.Equal(t, models.StandardSoulbound, h.asset(assetAddr).Standard)

	tx, _, err = h.builder.ListAsset(ownerKP, assetAddr, 2*sol, nil)
	h.requireKind(program.KindNotTransferrable, tx, err)
}

func TestInsufficientFundsLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	poorKP, poor := h.wallet(sol / 2)

	tx, refs, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Pricey", 5, sol))
	h.mustExec(tx, err)

	vendorBefore := h.balance(vendor)
	tx, assetAddr, err := h.builder.BuyService(poorKP, vendor, "Pricey")
	h.requireKind(program.KindInsufficientFunds, tx, err)

	assert.Equal(t, sol/2, h.balance(poor))
	assert.Equal(t, vendorBefore, h.balance(vendor))
	assert.Equal(t, uint64(0), h.offering(refs.Offering).NumSold)
	_, minted := h.account(assetAddr)
	assert.False(t, minted)
}

func TestBuyListingRollsBackOnInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	sellerKP, seller := h.wallet(initialFund)
	poorKP, poor := h.wallet(sol)

	tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Atomic", 5, sol))
	h.mustExec(tx, err)
	tx, assetAddr, err := h.builder.BuyService(sellerKP, vendor, "Atomic")
	h.mustExec(tx, err)
	tx, listingAddr, err := h.builder.ListAsset(sellerKP, assetAddr, 5*sol, nil)
	h.mustExec(tx, err)

	sellerBefore := h.balance(seller)
	tx, err = h.builder.BuyListing(poorKP, seller, assetAddr, vendor, "Atomic", 5*sol)
	h.requireKind(program.KindInsufficientFunds, tx, err)

	_, listed := h.account(listingAddr)
	assert.True(t, listed)
	asset := h.asset(assetAddr)
	assert.Equal(t, seller, asset.Owner)
	assert.Equal(t, models.AssetLocked, asset.State)
	assert.Equal(t, sellerBefore, h.balance(seller))
	assert.Equal(t, sol, h.balance(poor))
}

func TestMinReserveIsKept(t *testing.T) {
	h := newHarnessWith(t, ledger.Options{MinReserve: sol})
	vendorKP, vendor := h.wallet(initialFund)
	buyerKP, _ := h.wallet(sol + sol/2)

	tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Reserved", 5, sol))
	h.mustExec(tx, err)

	tx, _, err = h.builder.BuyService(buyerKP, vendor, "Reserved")
	h.requireKind(program.KindInsufficientFunds, tx, err)
}

func TestDelistAsset(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	sellerKP, seller := h.wallet(initialFund)
	otherKP, _ := h.wallet(initialFund)

	tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Withdrawn", 5, sol))
	h.mustExec(tx, err)
	tx, assetAddr, err := h.builder.BuyService(sellerKP, vendor, "Withdrawn")
	h.mustExec(tx, err)

	sellerBefore := h.balance(seller)
	tx, listingAddr, err := h.builder.ListAsset(sellerKP, assetAddr, 2*sol, nil)
	h.mustExec(tx, err)

	// someone else cannot withdraw it
	tx, err = h.builder.DelistAsset(otherKP, assetAddr)
	h.requireKind(program.KindNotFound, tx, err)

	h.mustExec(h.builder.DelistAsset(sellerKP, assetAddr))

	_, listed := h.account(listingAddr)
	assert.False(t, listed)
	asset := h.asset(assetAddr)
	assert.Equal(t, models.AssetUnlocked, asset.State)
	assert.True(t, asset.Delegate.IsZero())
	assert.Equal(t, sellerBefore, h.balance(seller), "listing rent is refunded")

	// and it can be listed again
	tx, _, err = h.builder.ListAsset(sellerKP, assetAddr, 3*sol, nil)
	h.mustExec(tx, err)
}

func TestExpiredListingIsReplacedInPlace(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	sellerKP, seller := h.wallet(initialFund)
	buyerKP, buyer := h.wallet(initialFund)

	tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Stale", 5, sol))
	h.mustExec(tx, err)
	tx, assetAddr, err := h.builder.BuyService(sellerKP, vendor, "Stale")
	h.mustExec(tx, err)

	tx, listingAddr, err := h.builder.ListAsset(sellerKP, assetAddr, 2*sol, ptr(startTime+10))
	h.mustExec(tx, err)
	h.advance(10)

	tx, relisted, err := h.builder.ListAsset(sellerKP, assetAddr, 3*sol, nil)
	h.mustExec(tx, err)
	assert.Equal(t, listingAddr, relisted)

	acct, ok := h.account(listingAddr)
	require.True(t, ok)
	listing, err := models.UnmarshalListing(acct.Data)
	require.NoError(t, err)
	assert.Equal(t, 3*sol, listing.Price)
	assert.Nil(t, listing.ExpiresAt)

	tx, err = h.builder.BuyListing(buyerKP, seller, assetAddr, vendor, "Stale", 3*sol)
	h.mustExec(tx, err)
	assert.Equal(t, buyer, h.asset(assetAddr).Owner)
}

func TestListedAssetCannotMoveOutsideListing(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	sellerKP, _ := h.wallet(initialFund)

	tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Escrowed", 5, sol))
	h.mustExec(tx, err)
	tx, assetAddr, err := h.builder.BuyService(sellerKP, vendor, "Escrowed")
	h.mustExec(tx, err)
	tx, _, err = h.builder.ListAsset(sellerKP, assetAddr, 2*sol, nil)
	h.mustExec(tx, err)

	// a direct call into the asset program is refused while locked
	_, friend := h.wallet(0)
	tx, err = assetTransfer(h, assetAddr, sellerKP, friend)
	h.requireKind(program.KindAssetLocked, tx, err)
}

func TestResubmittedPurchaseIsRejected(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	buyerKP, _ := h.wallet(initialFund)

	tx, refs, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Once More", 5, sol))
	h.mustExec(tx, err)

	tx, _, err = h.builder.BuyService(buyerKP, vendor, "Once More")
	h.mustExec(tx, err)
	h.requireKind(program.KindAlreadyExists, tx, nil)
	assert.Equal(t, uint64(1), h.offering(refs.Offering).NumSold)
}

func TestTamperedSignatureIsRejected(t *testing.T) {
	h := newHarness(t)
	vendorKP, _ := h.wallet(initialFund)

	tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Signed", 5, sol))
	require.NoError(t, err)
	tx.Signatures[0].Signature[0] ^= 0xff
	h.requireKind(program.KindUnauthorized, tx, nil)
}

func TestConcurrentBuyersNeverOversell(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)

	tx, refs, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Rush", 10, sol))
	h.mustExec(tx, err)

	buyers := make([]*keypair.Full, 25)
	for i := range buyers {
		buyers[i], _ = h.wallet(initialFund)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sold    int
		soldOut int
	)
	for _, kp := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, _, err := h.builder.BuyService(kp, vendor, "Rush")
			if err != nil {
				t.Error(err)
				return
			}
			_, err = h.exec(tx)
			mu.Lock()
			defer mu.Unlock()
			switch program.KindOf(err) {
			case "":
				sold++
			case program.KindSoldOut:
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, sold)
	assert.Equal(t, 15, soldOut)
	o := h.offering(refs.Offering)
	assert.Equal(t, uint64(10), o.NumSold)
	assert.False(t, o.Active)
	assert.Equal(t, uint64(10), h.group(refs.Group).Size)
}

func TestBuyListingRequiresAgreedPrice(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	sellerKP, seller := h.wallet(initialFund)
	buyerKP, buyer := h.wallet(initialFund)

	tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Quoted", 5, sol))
	h.mustExec(tx, err)
	tx, assetAddr, err := h.builder.BuyService(sellerKP, vendor, "Quoted")
	h.mustExec(tx, err)
	tx, _, err = h.builder.ListAsset(sellerKP, assetAddr, 2*sol, nil)
	h.mustExec(tx, err)

	before := h.balance(buyer)
	for _, price := range []uint64{0, sol, 3 * sol} {
		tx, err = h.builder.BuyListing(buyerKP, seller, assetAddr, vendor, "Quoted", price)
		h.requireKind(program.KindInvalidArgument, tx, err)
	}
	assert.Equal(t, before, h.balance(buyer))
	assert.Equal(t, seller, h.asset(assetAddr).Owner)

	tx, err = h.builder.BuyListing(buyerKP, seller, assetAddr, vendor, "Quoted", 2*sol)
	h.mustExec(tx, err)
	assert.Equal(t, before-2*sol, h.balance(buyer))
}

func TestReplayedListingPurchaseIsRejected(t *testing.T) {
	h := newHarness(t)
	vendorKP, vendor := h.wallet(initialFund)
	b1KP, b1 := h.wallet(initialFund)
	b2KP, b2 := h.wallet(initialFund)

	tx, _, err := h.builder.CreateServiceOffering(vendorKP, offeringArgs("Replayed", 5, sol))
	h.mustExec(tx, err)
	tx, assetAddr, err := h.builder.BuyService(b1KP, vendor, "Replayed")
	h.mustExec(tx, err)
	tx, _, err = h.builder.ListAsset(b1KP, assetAddr, 2*sol, nil)
	h.mustExec(tx, err)

	purchase, err := h.builder.BuyListing(b2KP, b1, assetAddr, vendor, "Replayed", 2*sol)
	h.mustExec(purchase, err)

	// the asset finds its way back to b1, who lists it again at the same price
	tx, _, err = h.builder.ListAsset(b2KP, assetAddr, 2*sol, nil)
	h.mustExec(tx, err)
	tx, err = h.builder.BuyListing(b1KP, b2, assetAddr, vendor, "Replayed", 2*sol)
	h.mustExec(tx, err)
	tx, _, err = h.builder.ListAsset(b1KP, assetAddr, 2*sol, nil)
	h.mustExec(tx, err)

	b2Before := h.balance(b2)
	h.requireKind(program.KindAlreadyExists, purchase, nil)
	assert.Equal(t, b2Before, h.balance(b2))
	assert.Equal(t, b1, h.asset(assetAddr).Owner)
}
