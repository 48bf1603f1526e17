package models

import (
	"fmt"

	"marketplace/internal/address"
)

// Field limits of the ServiceOffering record
const (
	MaxOfferingNameLen = address.MaxSeedLen
	MaxSymbolLen       = 10
	MaxDescriptionLen  = 200
	MaxURILen          = 200

	// MaxRoyaltyBasisPoints is 100%
	MaxRoyaltyBasisPoints = 10000
)

// ServiceType of an offering
type ServiceType uint8

const (
	ServiceOneTime ServiceType = iota
)

func (t ServiceType) String() string {
	switch t {
	case ServiceOneTime:
		return "one_time"
	default:
		return fmt.Sprintf("service_type(%d)", uint8(t))
	}
}

// OfferingMetadata is display and policy data copied at creation
type OfferingMetadata struct {
	Symbol             string `json:"symbol"`
	Description        string `json:"description"`
	URI                string `json:"uri"`
	Image              string `json:"image"`
	RoyaltyBasisPoints uint16 `json:"royalty_basis_points"`
	TermsOfServiceURI  string `json:"terms_of_service_uri"`
	IsTransferrable    bool   `json:"is_transferrable"`
}

// Validate checks metadata limits
func (m OfferingMetadata) Validate() error {
	checks := []struct {
		field string
		value string
		max   int
	}{
		{"symbol", m.Symbol, MaxSymbolLen},
		{"description", m.Description, MaxDescriptionLen},
		{"uri", m.URI, MaxURILen},
		{"image", m.Image, MaxURILen},
		{"terms_of_service_uri", m.TermsOfServiceURI, MaxURILen},
	}
	for _, c := range checks {
		if len(c.value) > c.max {
			return fmt.Errorf("%s is %d bytes, limit %d", c.field, len(c.value), c.max)
		}
	}
	if m.RoyaltyBasisPoints > MaxRoyaltyBasisPoints {
		return fmt.Errorf("royalty_basis_points %d exceeds %d", m.RoyaltyBasisPoints, MaxRoyaltyBasisPoints)
	}
	return nil
}

// ServiceOffering is a vendor-published, quantity-limited, priced service
type ServiceOffering struct {
	Vendor       address.Address  `json:"vendor"`
	Group        address.Address  `json:"group"`
	OfferingName string           `json:"offering_name"`
	ServiceType  ServiceType      `json:"service_type"`
	NumSold      uint64           `json:"num_sold"`
	MaxQuantity  uint64           `json:"max_quantity"`
	Active       bool             `json:"active"`
	SolPrice     uint64           `json:"sol_price"`
	CreatedAt    int64            `json:"created_at"`
	ExpiresAt    *int64           `json:"expires_at,omitempty"`
	Metadata     OfferingMetadata `json:"metadata"`
}

var offeringDiscriminator = newDiscriminator("ServiceOffering")

// ServiceOfferingSize is the fixed account size of a ServiceOffering
const ServiceOfferingSize = discriminatorSize +
	address.Size + // vendor
	address.Size + // group
	strPrefixSize + MaxOfferingNameLen + // offering_name
	1 + // service_type
	8 + // num_sold
	8 + // max_quantity
	1 + // active
	8 + // sol_price
	8 + // created_at
	optI64Size + // expires_at
	strPrefixSize + MaxSymbolLen + // symbol
	strPrefixSize + MaxDescriptionLen + // description
	strPrefixSize + MaxURILen + // uri
	strPrefixSize + MaxURILen + // image
	2 + // royalty_basis_points
	strPrefixSize + MaxURILen + // terms_of_service_uri
	1 // is_transferrable

// IsExpired reports whether the offering can no longer be bought at now
func (o *ServiceOffering) IsExpired(now int64) bool {
	return o.ExpiresAt != nil && now >= *o.ExpiresAt
}

// IsSoldOut reports whether every unit has been sold
func (o *ServiceOffering) IsSoldOut() bool {
	return o.NumSold >= o.MaxQuantity
}

// IsPurchasable reports whether buyService can succeed at now
func (o *ServiceOffering) IsPurchasable(now int64) bool {
	return o.Active && !o.IsExpired(now) && !o.IsSoldOut()
}

// Remaining returns how many units can still be sold
func (o *ServiceOffering) Remaining() uint64 {
	if o.IsSoldOut() {
		return 0
	}
	return o.MaxQuantity - o.NumSold
}

// RecordSale counts one unit as sold, deactivating the offering when the
// last unit goes. Callers check IsPurchasable first.
func (o *ServiceOffering) RecordSale() {
	o.NumSold++
	if o.NumSold >= o.MaxQuantity {
		o.Active = false
	}
}

// Deactivate pauses sales
func (o *ServiceOffering) Deactivate() {
	o.Active = false
}

// Activate resumes sales; an exhausted offering stays inactive
func (o *ServiceOffering) Activate() bool {
	if o.IsSoldOut() {
		return false
	}
	o.Active = true
	return true
}

// Marshal encodes the offering into its fixed-size account layout
func (o *ServiceOffering) Marshal() ([]byte, error) {
	e := newEncoder(offeringDiscriminator, ServiceOfferingSize)
	e.addr(o.Vendor)
	e.addr(o.Group)
	if err := e.str(o.OfferingName, MaxOfferingNameLen); err != nil {
		return nil, fmt.Errorf("offering_name: %w", err)
	}
	e.u8(uint8(o.ServiceType))
	e.u64(o.NumSold)
	e.u64(o.MaxQuantity)
	e.boolean(o.Active)
	e.u64(o.SolPrice)
	e.i64(o.CreatedAt)
	e.optI64(o.ExpiresAt)

	m := o.Metadata
	if m.RoyaltyBasisPoints > MaxRoyaltyBasisPoints {
		return nil, fmt.Errorf("royalty_basis_points %d exceeds %d", m.RoyaltyBasisPoints, MaxRoyaltyBasisPoints)
	}
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"symbol", m.Symbol, MaxSymbolLen},
		{"description", m.Description, MaxDescriptionLen},
		{"uri", m.URI, MaxURILen},
		{"image", m.Image, MaxURILen},
	} {
		if err := e.str(f.value, f.max); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	e.u16(m.RoyaltyBasisPoints)
	if err := e.str(m.TermsOfServiceURI, MaxURILen); err != nil {
		return nil, fmt.Errorf("terms_of_service_uri: %w", err)
	}
	e.boolean(m.IsTransferrable)

	return e.finish(ServiceOfferingSize), nil
}

// UnmarshalServiceOffering decodes a ServiceOffering account
func UnmarshalServiceOffering(data []byte) (*ServiceOffering, error) {
	d, err := newDecoder(offeringDiscriminator, data)
	if err != nil {
		return nil, err
	}

	o := &ServiceOffering{}
	o.Vendor = d.addr()
	o.Group = d.addr()
	o.OfferingName = d.str(MaxOfferingNameLen)
	o.ServiceType = ServiceType(d.u8())
	o.NumSold = d.u64()
	o.MaxQuantity = d.u64()
	o.Active = d.boolean()
	o.SolPrice = d.u64()
	o.CreatedAt = d.i64()
	o.ExpiresAt = d.optI64()
	o.Metadata.Symbol = d.str(MaxSymbolLen)
	o.Metadata.Description = d.str(MaxDescriptionLen)
	o.Metadata.URI = d.str(MaxURILen)
	o.Metadata.Image = d.str(MaxURILen)
	o.Metadata.RoyaltyBasisPoints = d.u16()
	o.Metadata.TermsOfServiceURI = d.str(MaxURILen)
	o.Metadata.IsTransferrable = d.boolean()

	if d.err != nil {
		return nil, d.err
	}
	return o, nil
}
