package marketplace

import (
	"log/slog"

	"marketplace/internal/address"
	"marketplace/internal/models"
	"marketplace/internal/program"
	"marketplace/internal/settlement"
)

// listAsset offers an owned asset for resale at a fixed price. The asset
// is delegated to the listing and locked until it is bought or delisted.
func (p *Program) listAsset(ctx program.Context, ix program.Instruction) error {
	accts, err := ix.Addresses(3)
	if err != nil {
		return err
	}
	seller, assetAddr, listingAddr := accts[0], accts[1], accts[2]

	var args ListAssetArgs
	if err := ix.Decode(&args); err != nil {
		return err
	}
	if !ctx.IsSigner(seller) {
		return program.Errorf(program.KindUnauthorized, "seller %s did not sign", seller)
	}
	if args.Price == 0 {
		return program.Errorf(program.KindInvalidArgument, "price must be positive")
	}
	now := ctx.Now()
	if err := checkExpiry(now, args.ExpiresAt); err != nil {
		return err
	}
	if err := expectAddress("listing", listingAddr, func() (address.Address, error) {
		return address.ListingAddress(p.id, assetAddr, seller)
	}); err != nil {
		return err
	}

	owner, err := p.bridge.OwnerOf(ctx, assetAddr)
	if err != nil {
		return err
	}
	if owner != seller {
		return program.Errorf(program.KindUnauthorized, "%s does not own asset %s", seller, assetAddr)
	}
	asset, err := p.bridge.Asset(ctx, assetAddr)
	if err != nil {
		return err
	}
	if asset.Standard == models.StandardSoulbound {
		return program.Errorf(program.KindNotTransferrable, "asset %s is soulbound", assetAddr)
	}

	existing, err := ctx.Exists(listingAddr)
	if err != nil {
		return err
	}
	if existing {
		prev, err := p.loadListing(ctx, listingAddr)
		if err != nil {
			return err
		}
		if !prev.IsExpired(now) {
			return program.Errorf(program.KindAlreadyListed, "asset %s is already listed by %s", assetAddr, seller)
		}
	}

	heldByListing := asset.State == models.AssetLocked && asset.HasDelegate(listingAddr, models.RoleTransfer)
	switch {
	case heldByListing:
		// expired listing at the same address still holds the lock
	case asset.State == models.AssetLocked:
		return program.Errorf(program.KindAssetLocked, "asset %s is locked", assetAddr)
	default:
		if err := p.bridge.DelegateToListing(ctx, assetAddr, seller, listingAddr); err != nil {
			return err
		}
	}

	listing := &models.Listing{
		Seller:    seller,
		AssetID:   assetAddr,
		Price:     args.Price,
		CreatedAt: now,
		ExpiresAt: args.ExpiresAt,
	}
	data, err := listing.Marshal()
	if err != nil {
		return program.Errorf(program.KindInvalidArgument, "listing: %v", err)
	}
	if existing {
		err = ctx.SetData(listingAddr, data)
	} else {
		err = ctx.CreateAccount(seller, listingAddr, p.id, data, listingSeeds(assetAddr, seller))
	}
	if err != nil {
		return err
	}

	ctx.Emit(program.Event{Name: program.EventListed, Account: listingAddr, Amount: args.Price})
	slog.Debug("Asset listed",
		"listing", listingAddr.String(),
		"asset", assetAddr.String(),
		"seller", seller.String(),
		"price", args.Price,
		"relisted", existing,
	)
	return nil
}

// buyListing settles a listing: the buyer pays price (royalty to the
// vendor, the rest to the seller), receives the asset, and the listing
// closes with its rent returned to the seller
func (p *Program) buyListing(ctx program.Context, ix program.Instruction) error {
	accts, err := ix.Addresses(7)
	if err != nil {
		return err
	}
	buyer, seller, listingAddr := accts[0], accts[1], accts[2]
	assetAddr, offeringAddr, groupAddr, vendor := accts[3], accts[4], accts[5], accts[6]

	var args BuyListingArgs
	if err := ix.Decode(&args); err != nil {
		return err
	}
	if !ctx.IsSigner(buyer) {
		return program.Errorf(program.KindUnauthorized, "buyer %s did not sign", buyer)
	}
	if err := expectAddress("listing", listingAddr, func() (address.Address, error) {
		return address.ListingAddress(p.id, assetAddr, seller)
	}); err != nil {
		return err
	}

	listing, err := p.loadListing(ctx, listingAddr)
	if err != nil {
		return err
	}
	if listing.Seller != seller || listing.AssetID != assetAddr {
		return program.Errorf(program.KindInvalidArgument, "listing %s is not asset %s by %s", listingAddr, assetAddr, seller)
	}
	if listing.IsExpired(ctx.Now()) {
		return program.Errorf(program.KindExpired, "listing %s expired at %d", listingAddr, *listing.ExpiresAt)
	}
	if args.Price != listing.Price {
		return program.Errorf(program.KindInvalidArgument, "listing %s asks %d lamports, buyer agreed to %d",
			listingAddr, listing.Price, args.Price)
	}

	owner, err := p.bridge.OwnerOf(ctx, assetAddr)
	if err != nil {
		return err
	}
	if owner != seller {
		return program.Errorf(program.KindInvalidArgument, "asset %s is no longer owned by %s", assetAddr, seller)
	}
	asset, err := p.bridge.Asset(ctx, assetAddr)
	if err != nil {
		return err
	}
	if asset.Group != groupAddr {
		return program.Errorf(program.KindInvalidArgument, "asset %s is not a member of group %s", assetAddr, groupAddr)
	}
	group, err := p.bridge.Group(ctx, groupAddr)
	if err != nil {
		return err
	}
	if group.Offering != offeringAddr {
		return program.Errorf(program.KindInvalidArgument, "group %s does not belong to offering %s", groupAddr, offeringAddr)
	}
	offering, err := p.loadOffering(ctx, offeringAddr)
	if err != nil {
		return err
	}
	if offering.Group != groupAddr || offering.Vendor != vendor {
		return program.Errorf(program.KindInvalidArgument, "offering %s does not match group %s and vendor %s",
			offeringAddr, groupAddr, vendor)
	}

	paid, err := settlement.PaySplit(ctx, buyer, seller, vendor, listing.Price, offering.Metadata.RoyaltyBasisPoints)
	if err != nil {
		return err
	}
	if err := p.bridge.TransferFromListing(ctx, assetAddr, seller, listingAddr, buyer); err != nil {
		return err
	}
	if err := ctx.Close(listingAddr, seller); err != nil {
		return err
	}

	ctx.Emit(program.Event{Name: program.EventListingSold, Account: listingAddr, Amount: listing.Price})
	slog.Debug("Listing bought",
		"listing", listingAddr.String(),
		"asset", assetAddr.String(),
		"buyer", buyer.String(),
		"seller", seller.String(),
		"price", paid.Price,
		"royalty", paid.Royalty,
	)
	return nil
}

// delistAsset withdraws a listing, live or expired, and releases the asset
func (p *Program) delistAsset(ctx program.Context, ix program.Instruction) error {
	accts, err := ix.Addresses(3)
	if err != nil {
		return err
	}
	seller, assetAddr, listingAddr := accts[0], accts[1], accts[2]

	if !ctx.IsSigner(seller) {
		return program.Errorf(program.KindUnauthorized, "seller %s did not sign", seller)
	}
	if err := expectAddress("listing", listingAddr, func() (address.Address, error) {
		return address.ListingAddress(p.id, assetAddr, seller)
	}); err != nil {
		return err
	}

	listing, err := p.loadListing(ctx, listingAddr)
	if err != nil {
		return err
	}
	if listing.Seller != seller {
		return program.Errorf(program.KindUnauthorized, "listing %s belongs to %s", listingAddr, listing.Seller)
	}

	asset, err := p.bridge.Asset(ctx, assetAddr)
	if err != nil {
		return err
	}
	if asset.HasDelegate(listingAddr, models.RoleLock) {
		if err := p.bridge.ReleaseFromListing(ctx, assetAddr, seller, listingAddr); err != nil {
			return err
		}
	}
	if err := ctx.Close(listingAddr, seller); err != nil {
		return err
	}

	ctx.Emit(program.Event{Name: program.EventDelisted, Account: listingAddr})
	slog.Debug("Asset delisted",
		"listing", listingAddr.String(),
		"asset", assetAddr.String(),
		"seller", seller.String(),
	)
	return nil
}
