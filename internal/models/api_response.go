package models

import "marketplace/internal/address"

// AccountResponse is the API view of one ledger account
type AccountResponse struct {
	Address    address.Address `json:"address"`
	Owner      address.Address `json:"owner"`
	Lamports   uint64          `json:"lamports"`
	SOL        string          `json:"sol"`
	Size       int             `json:"size"`
	RecordType string          `json:"record_type,omitempty"`
	Record     any             `json:"record,omitempty"` // Decoded data when the record type is known
}

// OfferingResponse is the API view of a service offering
type OfferingResponse struct {
	Address     address.Address  `json:"address"`
	Offering    *ServiceOffering `json:"offering"`
	PriceSOL    string           `json:"price_sol"`
	Remaining   uint64           `json:"remaining"`
	Purchasable bool             `json:"purchasable"`
}

// ListingResponse is the API view of a resale listing
type ListingResponse struct {
	Address  address.Address `json:"address"`
	Listing  *Listing        `json:"listing"`
	PriceSOL string          `json:"price_sol"`
	Expired  bool            `json:"expired"`
}

// AirdropRequest asks the development faucet for lamports
type AirdropRequest struct {
	Address  address.Address `json:"address"`
	Lamports uint64          `json:"lamports"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
