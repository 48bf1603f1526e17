package assets

import (
	"marketplace/internal/address"
	"marketplace/internal/models"
	"marketplace/internal/program"
)

// Instruction names understood by the asset program
const (
	IxCreateGroup = "createGroup"
	IxMint        = "mint"
	IxTransfer    = "transfer"
	IxApprove     = "approve"
	IxRevoke      = "revoke"
	IxLock        = "lock"
	IxUnlock      = "unlock"
)

// CreateGroupArgs is the payload of createGroup
type CreateGroupArgs struct {
	Offering address.Address `json:"offering"`
	Name     string          `json:"name"`
}

// MintArgs is the payload of mint
type MintArgs struct {
	Name     string          `json:"name"`
	Standard models.Standard `json:"standard"`
}

// ApproveArgs is the payload of approve
type ApproveArgs struct {
	Roles models.DelegateRole `json:"roles"`
}

// CreateGroup builds createGroup. Accounts: payer, group, authority.
func CreateGroup(programID, payer, group, authority, offering address.Address, name string) (program.Instruction, error) {
	return program.NewInstruction(programID, IxCreateGroup, []program.AccountMeta{
		{Address: payer, Signer: true, Writable: true},
		{Address: group, Signer: true, Writable: true},
		{Address: authority, Signer: true},
	}, CreateGroupArgs{Offering: offering, Name: name})
}

// Mint builds mint. Accounts: asset, owner, payer, group, authority.
func Mint(programID, asset, owner, payer, group, authority address.Address, name string, standard models.Standard) (program.Instruction, error) {
	return program.NewInstruction(programID, IxMint, []program.AccountMeta{
		{Address: asset, Signer: true, Writable: true},
		{Address: owner},
		{Address: payer, Signer: true, Writable: true},
		{Address: group, Writable: true},
		{Address: authority, Signer: true},
	}, MintArgs{Name: name, Standard: standard})
}

// Transfer builds transfer. Accounts: asset, signer, recipient.
func Transfer(programID, asset, signer, recipient address.Address) (program.Instruction, error) {
	return program.NewInstruction(programID, IxTransfer, []program.AccountMeta{
		{Address: asset, Writable: true},
		{Address: signer, Signer: true},
		{Address: recipient},
	}, nil)
}

// Approve builds approve. Accounts: asset, owner, delegate.
func Approve(programID, asset, owner, delegate address.Address, roles models.DelegateRole) (program.Instruction, error) {
	return program.NewInstruction(programID, IxApprove, []program.AccountMeta{
		{Address: asset, Writable: true},
		{Address: owner, Signer: true},
		{Address: delegate},
	}, ApproveArgs{Roles: roles})
}

// Revoke builds revoke. Accounts: asset, signer.
func Revoke(programID, asset, signer address.Address) (program.Instruction, error) {
	return program.NewInstruction(programID, IxRevoke, []program.AccountMeta{
		{Address: asset, Writable: true},
		{Address: signer, Signer: true},
	}, nil)
}

// Lock builds lock. Accounts: asset, signer.
func Lock(programID, asset, signer address.Address) (program.Instruction, error) {
	return program.NewInstruction(programID, IxLock, []program.AccountMeta{
		{Address: asset, Writable: true},
		{Address: signer, Signer: true},
	}, nil)
}

// Unlock builds unlock. Accounts: asset, signer.
func Unlock(programID, asset, signer address.Address) (program.Instruction, error) {
	return program.NewInstruction(programID, IxUnlock, []program.AccountMeta{
		{Address: asset, Writable: true},
		{Address: signer, Signer: true},
	}, nil)
}
