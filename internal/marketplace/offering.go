package marketplace

import (
	"log/slog"

	"marketplace/internal/address"
	"marketplace/internal/models"
	"marketplace/internal/program"
	"marketplace/internal/settlement"
)

// createServiceOffering publishes a new offering and its asset group
func (p *Program) createServiceOffering(ctx program.Context, ix program.Instruction) error {
	accts, err := ix.Addresses(3)
	if err != nil {
		return err
	}
	vendor, offeringAddr, groupAddr := accts[0], accts[1], accts[2]

	var args CreateServiceOfferingArgs
	if err := ix.Decode(&args); err != nil {
		return err
	}
	if !ctx.IsSigner(vendor) {
		return program.Errorf(program.KindUnauthorized, "vendor %s did not sign", vendor)
	}

	switch {
	case args.OfferingName == "":
		return program.Errorf(program.KindInvalidArgument, "offering name is empty")
	case len(args.OfferingName) > models.MaxOfferingNameLen:
		return program.Errorf(program.KindInvalidArgument, "offering name is %d bytes, limit %d",
			len(args.OfferingName), models.MaxOfferingNameLen)
	case args.SolPrice == 0:
		return program.Errorf(program.KindInvalidArgument, "sol_price must be positive")
	}
	if err := args.Metadata.Validate(); err != nil {
		return program.Errorf(program.KindInvalidArgument, "metadata: %v", err)
	}
	if err := checkExpiry(ctx.Now(), args.ExpiresAt); err != nil {
		return err
	}

	if err := expectAddress("offering", offeringAddr, func() (address.Address, error) {
		return address.OfferingAddress(p.id, vendor, args.OfferingName)
	}); err != nil {
		return err
	}
	if err := expectAddress("group", groupAddr, func() (address.Address, error) {
		return address.OfferingGroupAddress(p.id, offeringAddr)
	}); err != nil {
		return err
	}

	exists, err := ctx.Exists(offeringAddr)
	if err != nil {
		return err
	}
	if exists {
		return program.Errorf(program.KindAlreadyExists, "offering %q of vendor %s already exists", args.OfferingName, vendor)
	}

	offering := &models.ServiceOffering{
		Vendor:       vendor,
		Group:        groupAddr,
		OfferingName: args.OfferingName,
		ServiceType:  models.ServiceOneTime,
		MaxQuantity:  args.MaxQuantity,
		Active:       args.MaxQuantity > 0,
		SolPrice:     args.SolPrice,
		CreatedAt:    ctx.Now(),
		ExpiresAt:    args.ExpiresAt,
		Metadata:     args.Metadata,
	}
	data, err := offering.Marshal()
	if err != nil {
		return program.Errorf(program.KindInvalidArgument, "offering: %v", err)
	}
	if err := ctx.CreateAccount(vendor, offeringAddr, p.id, data, offeringSeeds(vendor, args.OfferingName)); err != nil {
		return err
	}
	if err := p.bridge.CreateGroup(ctx, vendor, groupAddr, offering, offeringAddr); err != nil {
		return err
	}

	slog.Debug("Service offering created",
		"offering", offeringAddr.String(),
		"vendor", vendor.String(),
		"name", args.OfferingName,
		"max_quantity", args.MaxQuantity,
		"sol_price", args.SolPrice,
	)
	return nil
}

// buyService pays the vendor and mints one asset of the offering to the buyer
func (p *Program) buyService(ctx program.Context, ix program.Instruction) error {
	accts, err := ix.Addresses(5)
	if err != nil {
		return err
	}
	buyer, offeringAddr, vendor, groupAddr, assetAddr := accts[0], accts[1], accts[2], accts[3], accts[4]

	if !ctx.IsSigner(buyer) {
		return program.Errorf(program.KindUnauthorized, "buyer %s did not sign", buyer)
	}

	offering, err := p.loadOffering(ctx, offeringAddr)
	if err != nil {
		return err
	}
	if offering.Vendor != vendor {
		return program.Errorf(program.KindInvalidArgument, "vendor %s does not own offering %s", vendor, offeringAddr)
	}
	if offering.Group != groupAddr {
		return program.Errorf(program.KindInvalidArgument, "group %s does not belong to offering %s", groupAddr, offeringAddr)
	}

	now := ctx.Now()
	switch {
	case offering.IsExpired(now):
		return program.Errorf(program.KindExpired, "offering %s expired at %d", offeringAddr, *offering.ExpiresAt)
	case !offering.Active && !offering.IsSoldOut():
		return program.Errorf(program.KindOfferingInactive, "offering %s is not active", offeringAddr)
	case offering.IsSoldOut():
		return program.Errorf(program.KindSoldOut, "offering %s sold %d of %d", offeringAddr, offering.NumSold, offering.MaxQuantity)
	}

	if err := settlement.Pay(ctx, buyer, vendor, offering.SolPrice); err != nil {
		return err
	}
	if err := p.bridge.MintGroupedAsset(ctx, assetAddr, buyer, buyer, offering, offeringAddr); err != nil {
		return err
	}

	offering.RecordSale()
	data, err := offering.Marshal()
	if err != nil {
		return program.Errorf(program.KindInvalidArgument, "offering: %v", err)
	}
	if err := ctx.SetData(offeringAddr, data); err != nil {
		return err
	}

	ctx.Emit(program.Event{Name: program.EventOfferingSold, Account: offeringAddr, Amount: offering.SolPrice})
	slog.Debug("Service bought",
		"offering", offeringAddr.String(),
		"buyer", buyer.String(),
		"asset", assetAddr.String(),
		"num_sold", offering.NumSold,
		"max_quantity", offering.MaxQuantity,
	)
	return nil
}

// setOfferingActive pauses or resumes sales of an offering
func (p *Program) setOfferingActive(ctx program.Context, ix program.Instruction) error {
	accts, err := ix.Addresses(2)
	if err != nil {
		return err
	}
	vendor, offeringAddr := accts[0], accts[1]

	var args SetOfferingActiveArgs
	if err := ix.Decode(&args); err != nil {
		return err
	}

	offering, err := p.loadOffering(ctx, offeringAddr)
	if err != nil {
		return err
	}
	if offering.Vendor != vendor || !ctx.IsSigner(vendor) {
		return program.Errorf(program.KindUnauthorized, "only the vendor may change offering %s", offeringAddr)
	}

	if args.Active {
		if !offering.Activate() {
			return program.Errorf(program.KindSoldOut, "offering %s is sold out", offeringAddr)
		}
	} else {
		offering.Deactivate()
	}

	data, err := offering.Marshal()
	if err != nil {
		return program.Errorf(program.KindInvalidArgument, "offering: %v", err)
	}
	return ctx.SetData(offeringAddr, data)
}
