package marketplace

import (
	"marketplace/internal/address"
	"marketplace/internal/assets"
	"marketplace/internal/models"
	"marketplace/internal/program"
)

// Bridge issues and moves assets through the asset program. Authority
// held by offering and listing addresses is proven with their seeds.
type Bridge struct {
	assetProgram address.Address
}

// NewBridge creates a bridge to the asset program with the given id
func NewBridge(assetProgram address.Address) *Bridge {
	return &Bridge{assetProgram: assetProgram}
}

func offeringSeeds(vendor address.Address, name string) program.Seeds {
	return program.Seeds{
		Namespace: address.SeedServiceOffering,
		Parts:     [][]byte{vendor.Bytes(), []byte(name)},
	}
}

func groupSeeds(offering address.Address) program.Seeds {
	return program.Seeds{
		Namespace: address.SeedServiceOfferingGroup,
		Parts:     [][]byte{offering.Bytes()},
	}
}

func listingSeeds(asset, seller address.Address) program.Seeds {
	return program.Seeds{
		Namespace: address.SeedListing,
		Parts:     [][]byte{asset.Bytes(), seller.Bytes()},
	}
}

// CreateGroup creates the offering's group with the offering as authority
func (b *Bridge) CreateGroup(ctx program.Context, payer, group address.Address, offering *models.ServiceOffering, offeringAddr address.Address) error {
	ix, err := assets.CreateGroup(b.assetProgram, payer, group, offeringAddr, offeringAddr, offering.OfferingName)
	if err != nil {
		return err
	}
	return ctx.Invoke(ix,
		offeringSeeds(offering.Vendor, offering.OfferingName),
		groupSeeds(offeringAddr),
	)
}

// MintGroupedAsset mints asset into the offering's group for owner
func (b *Bridge) MintGroupedAsset(ctx program.Context, asset, owner, payer address.Address, offering *models.ServiceOffering, offeringAddr address.Address) error {
	standard := models.StandardSoulbound
	if offering.Metadata.IsTransferrable {
		standard = models.StandardNonFungible
	}
	ix, err := assets.Mint(b.assetProgram, asset, owner, payer, offering.Group, offeringAddr, offering.OfferingName, standard)
	if err != nil {
		return err
	}
	return ctx.Invoke(ix, offeringSeeds(offering.Vendor, offering.OfferingName))
}

// Asset reads an asset account
func (b *Bridge) Asset(ctx program.Context, asset address.Address) (*models.Asset, error) {
	acct, err := ctx.Account(asset)
	if err != nil {
		return nil, err
	}
	return assets.Read(acct, b.assetProgram)
}

// Group reads a group account
func (b *Bridge) Group(ctx program.Context, group address.Address) (*models.Group, error) {
	acct, err := ctx.Account(group)
	if err != nil {
		return nil, err
	}
	return assets.ReadGroup(acct, b.assetProgram)
}

// OwnerOf returns the current owner of asset
func (b *Bridge) OwnerOf(ctx program.Context, asset address.Address) (address.Address, error) {
	a, err := b.Asset(ctx, asset)
	if err != nil {
		return address.Zero, err
	}
	return a.Owner, nil
}

// DelegateToListing approves the listing as transfer and lock delegate
// (owner signs) and locks the asset under the listing's authority
func (b *Bridge) DelegateToListing(ctx program.Context, asset, owner, listing address.Address) error {
	approve, err := assets.Approve(b.assetProgram, asset, owner, listing, models.RoleTransfer|models.RoleLock)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(approve); err != nil {
		return err
	}

	lock, err := assets.Lock(b.assetProgram, asset, listing)
	if err != nil {
		return err
	}
	return ctx.Invoke(lock, listingSeeds(asset, owner))
}

// ReleaseFromListing unlocks the asset and drops the listing's delegation
func (b *Bridge) ReleaseFromListing(ctx program.Context, asset, seller, listing address.Address) error {
	seeds := listingSeeds(asset, seller)

	unlock, err := assets.Unlock(b.assetProgram, asset, listing)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(unlock, seeds); err != nil {
		return err
	}

	revoke, err := assets.Revoke(b.assetProgram, asset, listing)
	if err != nil {
		return err
	}
	return ctx.Invoke(revoke, seeds)
}

// TransferFromListing unlocks the asset and moves it to buyer using the
// listing's delegation. The transfer clears the delegate.
func (b *Bridge) TransferFromListing(ctx program.Context, asset, seller, listing, buyer address.Address) error {
	seeds := listingSeeds(asset, seller)

	unlock, err := assets.Unlock(b.assetProgram, asset, listing)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(unlock, seeds); err != nil {
		return err
	}

	return b.TransferAsset(ctx, asset, listing, buyer, seeds)
}

// TransferAsset moves asset to recipient on the authority of signer,
// the owner or a transfer delegate
func (b *Bridge) TransferAsset(ctx program.Context, asset, signer, recipient address.Address, seeds ...program.Seeds) error {
	ix, err := assets.Transfer(b.assetProgram, asset, signer, recipient)
	if err != nil {
		return err
	}
	return ctx.Invoke(ix, seeds...)
}
