package marketplace

import (
	"marketplace/internal/address"
	"marketplace/internal/models"
	"marketplace/internal/program"
)

// Instruction names understood by the marketplace program
const (
	IxCreateServiceOffering = "createServiceOffering"
	IxBuyService            = "buyService"
	IxSetOfferingActive     = "setOfferingActive"
	IxListAsset             = "listAsset"
	IxBuyListing            = "buyListing"
	IxDelistAsset           = "delistAsset"
)

// CreateServiceOfferingArgs is the payload of createServiceOffering
type CreateServiceOfferingArgs struct {
	OfferingName string                  `json:"offering_name"`
	MaxQuantity  uint64                  `json:"max_quantity"`
	SolPrice     uint64                  `json:"sol_price"`
	ExpiresAt    *int64                  `json:"expires_at,omitempty"`
	Metadata     models.OfferingMetadata `json:"metadata"`
}

// SetOfferingActiveArgs is the payload of setOfferingActive
type SetOfferingActiveArgs struct {
	Active bool `json:"active"`
}

// ListAssetArgs is the payload of listAsset
type ListAssetArgs struct {
	Price     uint64 `json:"price"`
	ExpiresAt *int64 `json:"expires_at,omitempty"`
}

// BuyListingArgs is the payload of buyListing. Price is the amount the
// buyer agreed to pay and must equal the listing's price.
type BuyListingArgs struct {
	Price uint64 `json:"price"`
}

// Accounts of createServiceOffering, in order
type CreateServiceOfferingAccounts struct {
	Vendor   address.Address
	Offering address.Address
	Group    address.Address
}

// NewCreateServiceOffering builds createServiceOffering.
// Accounts: vendor (signer), offering, group.
func NewCreateServiceOffering(programID address.Address, accts CreateServiceOfferingAccounts, args CreateServiceOfferingArgs) (program.Instruction, error) {
	return program.NewInstruction(programID, IxCreateServiceOffering, []program.AccountMeta{
		{Address: accts.Vendor, Signer: true, Writable: true},
		{Address: accts.Offering, Writable: true},
		{Address: accts.Group, Writable: true},
	}, args)
}

// Accounts of buyService, in order
type BuyServiceAccounts struct {
	Buyer    address.Address
	Offering address.Address
	Vendor   address.Address
	Group    address.Address
	Asset    address.Address // fresh keypair, signs
}

// NewBuyService builds buyService.
// Accounts: buyer (signer), offering, vendor, group, asset (signer).
func NewBuyService(programID address.Address, accts BuyServiceAccounts) (program.Instruction, error) {
	return program.NewInstruction(programID, IxBuyService, []program.AccountMeta{
		{Address: accts.Buyer, Signer: true, Writable: true},
		{Address: accts.Offering, Writable: true},
		{Address: accts.Vendor, Writable: true},
		{Address: accts.Group, Writable: true},
		{Address: accts.Asset, Signer: true, Writable: true},
	}, nil)
}

// NewSetOfferingActive builds setOfferingActive. Accounts: vendor (signer), offering.
func NewSetOfferingActive(programID, vendor, offering address.Address, active bool) (program.Instruction, error) {
	return program.NewInstruction(programID, IxSetOfferingActive, []program.AccountMeta{
		{Address: vendor, Signer: true},
		{Address: offering, Writable: true},
	}, SetOfferingActiveArgs{Active: active})
}

// Accounts of listAsset, in order
type ListAssetAccounts struct {
	Seller  address.Address
	Asset   address.Address
	Listing address.Address
}

// NewListAsset builds listAsset. Accounts: seller (signer), asset, listing.
func NewListAsset(programID address.Address, accts ListAssetAccounts, args ListAssetArgs) (program.Instruction, error) {
	return program.NewInstruction(programID, IxListAsset, []program.AccountMeta{
		{Address: accts.Seller, Signer: true, Writable: true},
		{Address: accts.Asset, Writable: true},
		{Address: accts.Listing, Writable: true},
	}, args)
}

// Accounts of buyListing, in order
type BuyListingAccounts struct {
	Buyer    address.Address
	Seller   address.Address
	Listing  address.Address
	Asset    address.Address
	Offering address.Address
	Group    address.Address
	Vendor   address.Address
}

// NewBuyListing builds buyListing.
// Accounts: buyer (signer), seller, listing, asset, offering, group, vendor.
func NewBuyListing(programID address.Address, accts BuyListingAccounts, args BuyListingArgs) (program.Instruction, error) {
	return program.NewInstruction(programID, IxBuyListing, []program.AccountMeta{
		{Address: accts.Buyer, Signer: true, Writable: true},
		{Address: accts.Seller, Writable: true},
		{Address: accts.Listing, Writable: true},
		{Address: accts.Asset, Writable: true},
		{Address: accts.Offering},
		{Address: accts.Group},
		{Address: accts.Vendor, Writable: true},
	}, args)
}

// NewDelistAsset builds delistAsset. Accounts: seller (signer), asset, listing.
func NewDelistAsset(programID, seller, asset, listing address.Address) (program.Instruction, error) {
	return program.NewInstruction(programID, IxDelistAsset, []program.AccountMeta{
		{Address: seller, Signer: true, Writable: true},
		{Address: asset, Writable: true},
		{Address: listing, Writable: true},
	}, nil)
}
