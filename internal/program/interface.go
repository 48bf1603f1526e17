package program

import (
	"bytes"
	"encoding/json"

	"marketplace/internal/address"
	"marketplace/internal/models"
)

// AccountMeta declares one account an instruction touches
type AccountMeta struct {
	Address  address.Address `json:"address"`
	Signer   bool            `json:"signer,omitempty"`
	Writable bool            `json:"writable,omitempty"`
}

// Instruction is a single call into a program
type Instruction struct {
	ProgramID address.Address `json:"program_id"`
	Name      string          `json:"name"`
	Accounts  []AccountMeta   `json:"accounts"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewInstruction encodes args as the instruction payload
func NewInstruction(programID address.Address, name string, accounts []AccountMeta, args any) (Instruction, error) {
	ix := Instruction{
		ProgramID: programID,
		Name:      name,
		Accounts:  accounts,
	}
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return ix, Errorf(KindInvalidArgument, "encode %s args: %v", name, err)
		}
		ix.Data = data
	}
	return ix, nil
}

// Decode parses the instruction payload into v, rejecting unknown fields
func (ix Instruction) Decode(v any) error {
	if len(ix.Data) == 0 {
		return Errorf(KindInvalidArgument, "%s: missing instruction data", ix.Name)
	}
	dec := json.NewDecoder(bytes.NewReader(ix.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return Errorf(KindInvalidArgument, "%s: %v", ix.Name, err)
	}
	return nil
}

// Account returns the address of the i-th declared account
func (ix Instruction) Account(i int) (address.Address, error) {
	if i < 0 || i >= len(ix.Accounts) {
		return address.Zero, Errorf(KindInvalidArgument, "%s: expected at least %d accounts, got %d",
			ix.Name, i+1, len(ix.Accounts))
	}
	return ix.Accounts[i].Address, nil
}

// Addresses returns the first n declared account addresses
func (ix Instruction) Addresses(n int) ([]address.Address, error) {
	if len(ix.Accounts) < n {
		return nil, Errorf(KindInvalidArgument, "%s: expected %d accounts, got %d",
			ix.Name, n, len(ix.Accounts))
	}
	out := make([]address.Address, n)
	for i := range n {
		out[i] = ix.Accounts[i].Address
	}
	return out, nil
}

// Seeds proves that the invoking program controls a derived address
type Seeds struct {
	Namespace string
	Parts     [][]byte
}

// Event names emitted by the marketplace programs
const (
	EventPayment      = "payment"
	EventRoyalty      = "royalty"
	EventOfferingSold = "offering_sold"
	EventListed       = "listed"
	EventListingSold  = "listing_sold"
	EventDelisted     = "delisted"
)

// Event is a note a program attaches to the transaction receipt.
// Events of a rejected transaction are discarded with its state.
type Event struct {
	Name    string          `json:"name"`
	Account address.Address `json:"account"`
	Amount  uint64          `json:"amount,omitempty"`
}

// Context is everything a program may do while processing one instruction.
// All effects are staged and become visible only if the whole transaction
// commits.
type Context interface {
	// ProgramID is the id of the program currently executing
	ProgramID() address.Address

	// Now is the ledger clock in unix seconds, fixed for the transaction
	Now() int64

	// IsSigner reports whether addr signed the transaction or was proven
	// as a derived signer by the calling program
	IsSigner(addr address.Address) bool

	// Account returns a copy of a declared account; NotFound when it does not exist
	Account(addr address.Address) (models.Account, error)

	// Exists reports whether a declared account currently exists
	Exists(addr address.Address) (bool, error)

	// CreateAccount allocates addr owned by owner, funded rent-exempt by payer.
	// addr must have signed or be derived from seeds under the running program.
	CreateAccount(payer, addr, owner address.Address, data []byte, seeds ...Seeds) error

	// SetData replaces the data of an account owned by the running program
	SetData(addr address.Address, data []byte) error

	// Transfer moves lamports between declared accounts
	Transfer(from, to address.Address, amount uint64) error

	// Close deletes an account owned by the running program, sending its
	// lamports to dest
	Close(addr, dest address.Address) error

	// MinReserve is the balance a wallet must keep after paying
	MinReserve() uint64

	// Emit records an event on the receipt
	Emit(ev Event)

	// Invoke calls another program, adding the addresses proven by seeds
	// (derived under the running program id) to the signer set
	Invoke(ix Instruction, signers ...Seeds) error
}

// Program is an on-ledger state transition program
type Program interface {
	// ID returns the program id instructions are addressed to
	ID() address.Address

	// Name returns the program name for logging
	Name() string

	// Process validates and applies one instruction.
	// Any returned error aborts the whole transaction.
	Process(ctx Context, ix Instruction) error
}
