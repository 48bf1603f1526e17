// Package marketplace implements the service marketplace program: vendors
// publish service offerings, buyers redeem them into assets, and holders
// list and resell those assets.
package marketplace

import (
	"marketplace/internal/address"
	"marketplace/internal/models"
	"marketplace/internal/program"
)

// ProgramName is the name the marketplace program id is derived from
const ProgramName = "service-marketplace"

// Program is the marketplace program
type Program struct {
	id     address.Address
	bridge *Bridge
}

// New creates the marketplace program. assetProgram is the id of the
// asset program it issues assets through.
func New(id, assetProgram address.Address) *Program {
	return &Program{
		id:     id,
		bridge: NewBridge(assetProgram),
	}
}

// ID returns the program id
func (p *Program) ID() address.Address {
	return p.id
}

// Name returns the program name
func (p *Program) Name() string {
	return "ServiceMarketplace"
}

// Process dispatches one marketplace instruction
func (p *Program) Process(ctx program.Context, ix program.Instruction) error {
	switch ix.Name {
	case IxCreateServiceOffering:
		return p.createServiceOffering(ctx, ix)
	case IxBuyService:
		return p.buyService(ctx, ix)
	case IxSetOfferingActive:
		return p.setOfferingActive(ctx, ix)
	case IxListAsset:
		return p.listAsset(ctx, ix)
	case IxBuyListing:
		return p.buyListing(ctx, ix)
	case IxDelistAsset:
		return p.delistAsset(ctx, ix)
	default:
		return program.Errorf(program.KindInvalidArgument, "marketplace: unknown instruction %q", ix.Name)
	}
}

func (p *Program) loadOffering(ctx program.Context, addr address.Address) (*models.ServiceOffering, error) {
	acct, err := ctx.Account(addr)
	if err != nil {
		return nil, err
	}
	if acct.Owner != p.id {
		return nil, program.Errorf(program.KindInvalidArgument, "account %s is not a service offering", addr)
	}
	offering, err := models.UnmarshalServiceOffering(acct.Data)
	if err != nil {
		return nil, program.Errorf(program.KindInvalidArgument, "account %s: %v", addr, err)
	}
	return offering, nil
}

func (p *Program) loadListing(ctx program.Context, addr address.Address) (*models.Listing, error) {
	acct, err := ctx.Account(addr)
	if err != nil {
		return nil, err
	}
	if acct.Owner != p.id {
		return nil, program.Errorf(program.KindInvalidArgument, "account %s is not a listing", addr)
	}
	listing, err := models.UnmarshalListing(acct.Data)
	if err != nil {
		return nil, program.Errorf(program.KindInvalidArgument, "account %s: %v", addr, err)
	}
	return listing, nil
}

// expectAddress checks that a declared account sits at its derived address
func expectAddress(role string, got address.Address, derive func() (address.Address, error)) error {
	want, err := derive()
	if err != nil {
		return program.Errorf(program.KindInvalidArgument, "%s address: %v", role, err)
	}
	if got != want {
		return program.Errorf(program.KindInvalidArgument, "%s account %s does not match derived address %s", role, got, want)
	}
	return nil
}

// checkExpiry rejects an expiry that has already passed
func checkExpiry(now int64, expiresAt *int64) error {
	if expiresAt != nil && now >= *expiresAt {
		return program.Errorf(program.KindInvalidArgument, "expires_at %d is not in the future", *expiresAt)
	}
	return nil
}
