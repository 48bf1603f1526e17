package models

import "marketplace/internal/address"

// Listing is a resale offer for one previously purchased asset
type Listing struct {
	Seller    address.Address `json:"seller"`
	AssetID   address.Address `json:"asset_id"`
	Price     uint64          `json:"price"`
	CreatedAt int64           `json:"created_at"`
	ExpiresAt *int64          `json:"expires_at,omitempty"`
}

var listingDiscriminator = newDiscriminator("Listing")

// ListingSize is the fixed account size of a Listing
const ListingSize = discriminatorSize +
	address.Size + // seller
	address.Size + // asset_id
	8 + // price
	8 + // created_at
	optI64Size // expires_at

// IsExpired reports whether the listing can no longer be filled at now
func (l *Listing) IsExpired(now int64) bool {
	return l.ExpiresAt != nil && now >= *l.ExpiresAt
}

// Marshal encodes the listing into its fixed-size account layout
func (l *Listing) Marshal() ([]byte, error) {
	e := newEncoder(listingDiscriminator, ListingSize)
	e.addr(l.Seller)
	e.addr(l.AssetID)
	e.u64(l.Price)
	e.i64(l.CreatedAt)
	e.optI64(l.ExpiresAt)
	return e.finish(ListingSize), nil
}

// UnmarshalListing decodes a Listing account
func UnmarshalListing(data []byte) (*Listing, error) {
	d, err := newDecoder(listingDiscriminator, data)
	if err != nil {
		return nil, err
	}
	l := &Listing{
		Seller:  d.addr(),
		AssetID: d.addr(),
		Price:   d.u64(),
	}
	l.CreatedAt = d.i64()
	l.ExpiresAt = d.optI64()
	if d.err != nil {
		return nil, d.err
	}
	return l, nil
}
