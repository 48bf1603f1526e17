// Package assets implements the asset sub-program: grouped, exclusively
// owned tokens that the marketplace mints on purchase and moves on resale.
package assets

import (
	"log/slog"

	"marketplace/internal/address"
	"marketplace/internal/models"
	"marketplace/internal/program"
)

// ProgramName is the name the asset program id is derived from
const ProgramName = "oss-asset"

// Program is the asset sub-program
type Program struct {
	id address.Address
}

// New creates the asset program with the given id
func New(id address.Address) *Program {
	return &Program{id: id}
}

// ID returns the program id
func (p *Program) ID() address.Address {
	return p.id
}

// Name returns the program name
func (p *Program) Name() string {
	return "AssetProgram"
}

// Process dispatches one asset instruction
func (p *Program) Process(ctx program.Context, ix program.Instruction) error {
	switch ix.Name {
	case IxCreateGroup:
		return p.createGroup(ctx, ix)
	case IxMint:
		return p.mint(ctx, ix)
	case IxTransfer:
		return p.transfer(ctx, ix)
	case IxApprove:
		return p.approve(ctx, ix)
	case IxRevoke:
		return p.revoke(ctx, ix)
	case IxLock:
		return p.setLocked(ctx, ix, true)
	case IxUnlock:
		return p.setLocked(ctx, ix, false)
	default:
		return program.Errorf(program.KindInvalidArgument, "asset program: unknown instruction %q", ix.Name)
	}
}

func (p *Program) createGroup(ctx program.Context, ix program.Instruction) error {
	accts, err := ix.Addresses(3)
	if err != nil {
		return err
	}
	payer, groupAddr, authority := accts[0], accts[1], accts[2]

	var args CreateGroupArgs
	if err := ix.Decode(&args); err != nil {
		return err
	}
	if !ctx.IsSigner(authority) {
		return program.Errorf(program.KindUnauthorized, "group authority %s did not sign", authority)
	}

	group := &models.Group{
		Authority: authority,
		Offering:  args.Offering,
		Name:      args.Name,
	}
	data, err := group.Marshal()
	if err != nil {
		return program.Errorf(program.KindInvalidArgument, "group: %v", err)
	}
	return ctx.CreateAccount(payer, groupAddr, p.id, data)
}

func (p *Program) mint(ctx program.Context, ix program.Instruction) error {
	accts, err := ix.Addresses(5)
	if err != nil {
		return err
	}
	assetAddr, owner, payer, groupAddr, authority := accts[0], accts[1], accts[2], accts[3], accts[4]

	var args MintArgs
	if err := ix.Decode(&args); err != nil {
		return err
	}
	if args.Standard != models.StandardNonFungible && args.Standard != models.StandardSoulbound {
		return program.Errorf(program.KindInvalidArgument, "unknown standard %d", args.Standard)
	}

	group, err := p.loadGroup(ctx, groupAddr)
	if err != nil {
		return err
	}
	if group.Authority != authority || !ctx.IsSigner(authority) {
		return program.Errorf(program.KindUnauthorized, "mint into group %s requires its authority", groupAddr)
	}

	asset := &models.Asset{
		Owner:     owner,
		Group:     groupAddr,
		Authority: authority,
		Standard:  args.Standard,
		State:     models.AssetUnlocked,
		Name:      args.Name,
	}
	data, err := asset.Marshal()
	if err != nil {
		return program.Errorf(program.KindInvalidArgument, "asset: %v", err)
	}
	if err := ctx.CreateAccount(payer, assetAddr, p.id, data); err != nil {
		return err
	}

	group.Size++
	if err := p.storeGroup(ctx, groupAddr, group); err != nil {
		return err
	}

	slog.Debug("Asset minted",
		"asset", assetAddr.String(),
		"owner", owner.String(),
		"group", groupAddr.String(),
		"standard", args.Standard.String(),
	)
	return nil
}

func (p *Program) transfer(ctx program.Context, ix program.Instruction) error {
	accts, err := ix.Addresses(3)
	if err != nil {
		return err
	}
	assetAddr, signer, recipient := accts[0], accts[1], accts[2]

	asset, err := p.Load(ctx, assetAddr)
	if err != nil {
		return err
	}
	if !ctx.IsSigner(signer) {
		return program.Errorf(program.KindUnauthorized, "transfer signer %s did not sign", signer)
	}
	if signer != asset.Owner && !asset.HasDelegate(signer, models.RoleTransfer) {
		return program.Errorf(program.KindUnauthorized, "%s may not transfer asset %s", signer, assetAddr)
	}
	if asset.Standard == models.StandardSoulbound {
		return program.Errorf(program.KindNotTransferrable, "asset %s is soulbound", assetAddr)
	}
	if asset.State == models.AssetLocked {
		return program.Errorf(program.KindAssetLocked, "asset %s is locked", assetAddr)
	}

	asset.Owner = recipient
	asset.Delegate = address.Zero
	asset.DelegateRoles = 0
	return p.store(ctx, assetAddr, asset)
}

func (p *Program) approve(ctx program.Context, ix program.Instruction) error {
	accts, err := ix.Addresses(3)
	if err != nil {
		return err
	}
	assetAddr, owner, delegate := accts[0], accts[1], accts[2]

	var args ApproveArgs
	if err := ix.Decode(&args); err != nil {
		return err
	}

	asset, err := p.Load(ctx, assetAddr)
	if err != nil {
		return err
	}
	if asset.Owner != owner || !ctx.IsSigner(owner) {
		return program.Errorf(program.KindUnauthorized, "only the owner may approve a delegate for %s", assetAddr)
	}
	if asset.State == models.AssetLocked {
		return program.Errorf(program.KindAssetLocked, "asset %s is locked", assetAddr)
	}

	asset.Delegate = delegate
	asset.DelegateRoles = args.Roles
	return p.store(ctx, assetAddr, asset)
}

func (p *Program) revoke(ctx program.Context, ix program.Instruction) error {
	accts, err := ix.Addresses(2)
	if err != nil {
		return err
	}
	assetAddr, signer := accts[0], accts[1]

	asset, err := p.Load(ctx, assetAddr)
	if err != nil {
		return err
	}
	if !ctx.IsSigner(signer) || (signer != asset.Owner && signer != asset.Delegate) {
		return program.Errorf(program.KindUnauthorized, "%s may not revoke the delegate of %s", signer, assetAddr)
	}
	if asset.State == models.AssetLocked {
		return program.Errorf(program.KindAssetLocked, "asset %s is locked", assetAddr)
	}

	asset.Delegate = address.Zero
	asset.DelegateRoles = 0
	return p.store(ctx, assetAddr, asset)
}

// setLocked locks or unlocks an asset. With a lock delegate set only the
// delegate may do so; otherwise the owner may.
func (p *Program) setLocked(ctx program.Context, ix program.Instruction, locked bool) error {
	accts, err := ix.Addresses(2)
	if err != nil {
		return err
	}
	assetAddr, signer := accts[0], accts[1]

	asset, err := p.Load(ctx, assetAddr)
	if err != nil {
		return err
	}

	allowed := signer == asset.Owner
	if !asset.Delegate.IsZero() && asset.DelegateRoles.Has(models.RoleLock) {
		allowed = signer == asset.Delegate
	}
	if !allowed || !ctx.IsSigner(signer) {
		return program.Errorf(program.KindUnauthorized, "%s may not change the lock on %s", signer, assetAddr)
	}

	if locked {
		asset.State = models.AssetLocked
	} else {
		asset.State = models.AssetUnlocked
	}
	return p.store(ctx, assetAddr, asset)
}

// Load reads an asset account owned by this program
func (p *Program) Load(ctx program.Context, addr address.Address) (*models.Asset, error) {
	acct, err := ctx.Account(addr)
	if err != nil {
		return nil, err
	}
	return Read(acct, p.id)
}

// Read decodes an asset account, checking that programID owns it
func Read(acct models.Account, programID address.Address) (*models.Asset, error) {
	if acct.Owner != programID {
		return nil, program.Errorf(program.KindInvalidArgument, "account %s is not an asset", acct.Address)
	}
	asset, err := models.UnmarshalAsset(acct.Data)
	if err != nil {
		return nil, program.Errorf(program.KindInvalidArgument, "account %s: %v", acct.Address, err)
	}
	return asset, nil
}

// ReadGroup decodes a group account, checking that programID owns it
func ReadGroup(acct models.Account, programID address.Address) (*models.Group, error) {
	if acct.Owner != programID {
		return nil, program.Errorf(program.KindInvalidArgument, "account %s is not an asset group", acct.Address)
	}
	group, err := models.UnmarshalGroup(acct.Data)
	if err != nil {
		return nil, program.Errorf(program.KindInvalidArgument, "account %s: %v", acct.Address, err)
	}
	return group, nil
}

func (p *Program) loadGroup(ctx program.Context, addr address.Address) (*models.Group, error) {
	acct, err := ctx.Account(addr)
	if err != nil {
		return nil, err
	}
	return ReadGroup(acct, p.id)
}

func (p *Program) store(ctx program.Context, addr address.Address, asset *models.Asset) error {
	data, err := asset.Marshal()
	if err != nil {
		return program.Errorf(program.KindInvalidArgument, "asset: %v", err)
	}
	return ctx.SetData(addr, data)
}

func (p *Program) storeGroup(ctx program.Context, addr address.Address, group *models.Group) error {
	data, err := group.Marshal()
	if err != nil {
		return program.Errorf(program.KindInvalidArgument, "group: %v", err)
	}
	return ctx.SetData(addr, data)
}
