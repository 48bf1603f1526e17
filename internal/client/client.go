// Package client builds and signs marketplace transactions, filling every
// account list by re-deriving the addresses involved.
package client

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/stellar/go/keypair"

	"marketplace/internal/address"
	"marketplace/internal/assets"
	"marketplace/internal/ledger"
	"marketplace/internal/marketplace"
	"marketplace/internal/program"
)

// Programs identifies the deployed program pair
type Programs struct {
	Marketplace address.Address
	Assets      address.Address
}

// ProgramsFor derives the program pair of a deployment. A non-empty seed
// separates deployments sharing one network.
func ProgramsFor(networkPassphrase, seed string) Programs {
	marketplaceName, assetsName := marketplace.ProgramName, assets.ProgramName
	if seed != "" {
		marketplaceName += "@" + seed
		assetsName += "@" + seed
	}
	return Programs{
		Marketplace: address.ProgramID(networkPassphrase, marketplaceName),
		Assets:      address.ProgramID(networkPassphrase, assetsName),
	}
}

// Builder creates signed transactions for one deployment
type Builder struct {
	programs Programs
	nonce    atomic.Uint64
}

// NewBuilder creates a transaction builder for programs
func NewBuilder(programs Programs) *Builder {
	b := &Builder{programs: programs}
	b.nonce.Store(uint64(time.Now().UnixNano()))
	return b
}

// Programs returns the program ids transactions are addressed to
func (b *Builder) Programs() Programs {
	return b.programs
}

// OfferingAddress derives the offering of vendor named name
func (b *Builder) OfferingAddress(vendor address.Address, name string) (address.Address, error) {
	return address.OfferingAddress(b.programs.Marketplace, vendor, name)
}

// GroupAddress derives the asset group of an offering
func (b *Builder) GroupAddress(offering address.Address) (address.Address, error) {
	return address.OfferingGroupAddress(b.programs.Marketplace, offering)
}

// ListingAddress derives the listing of asset by seller
func (b *Builder) ListingAddress(asset, seller address.Address) (address.Address, error) {
	return address.ListingAddress(b.programs.Marketplace, asset, seller)
}

func (b *Builder) sign(ix program.Instruction, signers ...*keypair.Full) (*ledger.Transaction, error) {
	tx := &ledger.Transaction{
		Instruction: ix,
		Nonce:       b.nonce.Add(1),
	}
	if err := tx.Sign(signers...); err != nil {
		return nil, err
	}
	return tx, nil
}

// OfferingRefs are the accounts createServiceOffering creates
type OfferingRefs struct {
	Offering address.Address
	Group    address.Address
}

// CreateServiceOffering builds a signed createServiceOffering
func (b *Builder) CreateServiceOffering(vendor *keypair.Full, args marketplace.CreateServiceOfferingArgs) (*ledger.Transaction, OfferingRefs, error) {
	vendorAddr := address.FromKeypair(vendor)
	offering, err := b.OfferingAddress(vendorAddr, args.OfferingName)
	if err != nil {
		return nil, OfferingRefs{}, err
	}
	group, err := b.GroupAddress(offering)
	if err != nil {
		return nil, OfferingRefs{}, err
	}

	ix, err := marketplace.NewCreateServiceOffering(b.programs.Marketplace, marketplace.CreateServiceOfferingAccounts{
		Vendor:   vendorAddr,
		Offering: offering,
		Group:    group,
	}, args)
	if err != nil {
		return nil, OfferingRefs{}, err
	}

	tx, err := b.sign(ix, vendor)
	if err != nil {
		return nil, OfferingRefs{}, err
	}
	return tx, OfferingRefs{Offering: offering, Group: group}, nil
}

// BuyService builds a signed buyService. The asset is minted at the
// address of a fresh keypair, returned so the caller can find it.
func (b *Builder) BuyService(buyer *keypair.Full, vendor address.Address, offeringName string) (*ledger.Transaction, address.Address, error) {
	assetKP, err := keypair.Random()
	if err != nil {
		return nil, address.Zero, fmt.Errorf("failed to generate asset keypair: %w", err)
	}
	return b.BuyServiceAs(buyer, assetKP, vendor, offeringName)
}

// BuyServiceAs is BuyService with a caller-chosen asset keypair
func (b *Builder) BuyServiceAs(buyer, assetKP *keypair.Full, vendor address.Address, offeringName string) (*ledger.Transaction, address.Address, error) {
	buyerAddr := address.FromKeypair(buyer)
	assetAddr := address.FromKeypair(assetKP)
	offering, err := b.OfferingAddress(vendor, offeringName)
	if err != nil {
		return nil, address.Zero, err
	}
	group, err := b.GroupAddress(offering)
	if err != nil {
		return nil, address.Zero, err
	}

	ix, err := marketplace.NewBuyService(b.programs.Marketplace, marketplace.BuyServiceAccounts{
		Buyer:    buyerAddr,
		Offering: offering,
		Vendor:   vendor,
		Group:    group,
		Asset:    assetAddr,
	})
	if err != nil {
		return nil, address.Zero, err
	}

	tx, err := b.sign(ix, buyer, assetKP)
	if err != nil {
		return nil, address.Zero, err
	}
	return tx, assetAddr, nil
}

// SetOfferingActive builds a signed setOfferingActive
func (b *Builder) SetOfferingActive(vendor *keypair.Full, offeringName string, active bool) (*ledger.Transaction, error) {
	vendorAddr := address.FromKeypair(vendor)
	offering, err := b.OfferingAddress(vendorAddr, offeringName)
	if err != nil {
		return nil, err
	}
	ix, err := marketplace.NewSetOfferingActive(b.programs.Marketplace, vendorAddr, offering, active)
	if err != nil {
		return nil, err
	}
	return b.sign(ix, vendor)
}

// ListAsset builds a signed listAsset and returns the listing address
func (b *Builder) ListAsset(seller *keypair.Full, asset address.Address, price uint64, expiresAt *int64) (*ledger.Transaction, address.Address, error) {
	sellerAddr := address.FromKeypair(seller)
	listing, err := b.ListingAddress(asset, sellerAddr)
	if err != nil {
		return nil, address.Zero, err
	}

	ix, err := marketplace.NewListAsset(b.programs.Marketplace, marketplace.ListAssetAccounts{
		Seller:  sellerAddr,
		Asset:   asset,
		Listing: listing,
	}, marketplace.ListAssetArgs{Price: price, ExpiresAt: expiresAt})
	if err != nil {
		return nil, address.Zero, err
	}

	tx, err := b.sign(ix, seller)
	if err != nil {
		return nil, address.Zero, err
	}
	return tx, listing, nil
}

// BuyListing builds a signed buyListing for asset listed by seller, an
// asset of vendor's offering named offeringName. The transaction only
// settles while the listing asks exactly price.
func (b *Builder) BuyListing(buyer *keypair.Full, seller, asset, vendor address.Address, offeringName string, price uint64) (*ledger.Transaction, error) {
	buyerAddr := address.FromKeypair(buyer)
	listing, err := b.ListingAddress(asset, seller)
	if err != nil {
		return nil, err
	}
	offering, err := b.OfferingAddress(vendor, offeringName)
	if err != nil {
		return nil, err
	}
	group, err := b.GroupAddress(offering)
	if err != nil {
		return nil, err
	}

	ix, err := marketplace.NewBuyListing(b.programs.Marketplace, marketplace.BuyListingAccounts{
		Buyer:    buyerAddr,
		Seller:   seller,
		Listing:  listing,
		Asset:    asset,
		Offering: offering,
		Group:    group,
		Vendor:   vendor,
	}, marketplace.BuyListingArgs{Price: price})
	if err != nil {
		return nil, err
	}
	return b.sign(ix, buyer)
}

// DelistAsset builds a signed delistAsset
func (b *Builder) DelistAsset(seller *keypair.Full, asset address.Address) (*ledger.Transaction, error) {
	sellerAddr := address.FromKeypair(seller)
	listing, err := b.ListingAddress(asset, sellerAddr)
	if err != nil {
		return nil, err
	}
	ix, err := marketplace.NewDelistAsset(b.programs.Marketplace, sellerAddr, asset, listing)
	if err != nil {
		return nil, err
	}
	return b.sign(ix, seller)
}
