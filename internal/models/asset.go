package models

import (
	"fmt"

	"marketplace/internal/address"
)

// MaxAssetNameLen bounds asset and group names
const MaxAssetNameLen = 32

// Standard decides whether an asset may ever change hands
type Standard uint8

const (
	StandardNonFungible Standard = iota
	StandardSoulbound
)

func (s Standard) String() string {
	switch s {
	case StandardNonFungible:
		return "non_fungible"
	case StandardSoulbound:
		return "soulbound"
	default:
		return fmt.Sprintf("standard(%d)", uint8(s))
	}
}

// AssetState tracks whether an asset is frozen in place
type AssetState uint8

const (
	AssetUnlocked AssetState = iota
	AssetLocked
)

func (s AssetState) String() string {
	if s == AssetLocked {
		return "locked"
	}
	return "unlocked"
}

// DelegateRole is a bit set of powers granted to an asset delegate
type DelegateRole uint8

const (
	RoleTransfer DelegateRole = 1 << iota
	RoleLock
)

// Has reports whether every role in r is granted
func (d DelegateRole) Has(r DelegateRole) bool {
	return d&r == r
}

// Asset is an ownership token minted by the asset program
type Asset struct {
	Owner         address.Address `json:"owner"`
	Group         address.Address `json:"group"`
	Authority     address.Address `json:"authority"`
	Standard      Standard        `json:"standard"`
	State         AssetState      `json:"state"`
	Delegate      address.Address `json:"delegate"`
	DelegateRoles DelegateRole    `json:"delegate_roles"`
	Name          string          `json:"name"`
}

var assetDiscriminator = newDiscriminator("Asset")

// AssetSize is the fixed account size of an Asset
const AssetSize = discriminatorSize +
	address.Size*4 + // owner, group, authority, delegate
	1 + // standard
	1 + // state
	1 + // delegate_roles
	strPrefixSize + MaxAssetNameLen

// HasDelegate reports whether a delegate holding role r is set
func (a *Asset) HasDelegate(d address.Address, r DelegateRole) bool {
	return !a.Delegate.IsZero() && a.Delegate == d && a.DelegateRoles.Has(r)
}

// Marshal encodes the asset into its fixed-size account layout
func (a *Asset) Marshal() ([]byte, error) {
	e := newEncoder(assetDiscriminator, AssetSize)
	e.addr(a.Owner)
	e.addr(a.Group)
	e.addr(a.Authority)
	e.u8(uint8(a.Standard))
	e.u8(uint8(a.State))
	e.addr(a.Delegate)
	e.u8(uint8(a.DelegateRoles))
	if err := e.str(a.Name, MaxAssetNameLen); err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	return e.finish(AssetSize), nil
}

// UnmarshalAsset decodes an Asset account
func UnmarshalAsset(data []byte) (*Asset, error) {
	d, err := newDecoder(assetDiscriminator, data)
	if err != nil {
		return nil, err
	}
	a := &Asset{}
	a.Owner = d.addr()
	a.Group = d.addr()
	a.Authority = d.addr()
	a.Standard = Standard(d.u8())
	a.State = AssetState(d.u8())
	a.Delegate = d.addr()
	a.DelegateRoles = DelegateRole(d.u8())
	a.Name = d.str(MaxAssetNameLen)
	if d.err != nil {
		return nil, d.err
	}
	return a, nil
}

// Group is the collection every asset minted under one offering belongs to
type Group struct {
	Authority address.Address `json:"authority"`
	Offering  address.Address `json:"offering"`
	Name      string          `json:"name"`
	Size      uint64          `json:"size"` // Number of member assets
}

var groupDiscriminator = newDiscriminator("OfferingGroupAsset")

// GroupSize is the fixed account size of a Group
const GroupSize = discriminatorSize +
	address.Size*2 + // authority, offering
	strPrefixSize + MaxAssetNameLen +
	8 // size

// Marshal encodes the group into its fixed-size account layout
func (g *Group) Marshal() ([]byte, error) {
	e := newEncoder(groupDiscriminator, GroupSize)
	e.addr(g.Authority)
	e.addr(g.Offering)
	if err := e.str(g.Name, MaxAssetNameLen); err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	e.u64(g.Size)
	return e.finish(GroupSize), nil
}

// UnmarshalGroup decodes a Group account
func UnmarshalGroup(data []byte) (*Group, error) {
	d, err := newDecoder(groupDiscriminator, data)
	if err != nil {
		return nil, err
	}
	g := &Group{}
	g.Authority = d.addr()
	g.Offering = d.addr()
	g.Name = d.str(MaxAssetNameLen)
	g.Size = d.u64()
	if d.err != nil {
		return nil, d.err
	}
	return g, nil
}

// Decode returns the typed record stored in an account, or nil for wallets
// and unknown data
func Decode(acct Account) (any, error) {
	switch acct.RecordType() {
	case "ServiceOffering":
		return UnmarshalServiceOffering(acct.Data)
	case "Listing":
		return UnmarshalListing(acct.Data)
	case "Asset":
		return UnmarshalAsset(acct.Data)
	case "OfferingGroupAsset":
		return UnmarshalGroup(acct.Data)
	default:
		return nil, nil
	}
}
