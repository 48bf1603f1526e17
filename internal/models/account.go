package models

import (
	"bytes"

	"marketplace/internal/address"
)

// Account is one independently addressed ledger entry
type Account struct {
	Address  address.Address `json:"address"`
	Owner    address.Address `json:"owner"`    // Program allowed to mutate data and debit lamports
	Lamports uint64          `json:"lamports"` // Balance in the smallest unit
	Data     []byte          `json:"data,omitempty"`
}

// Clone returns a deep copy
func (a Account) Clone() Account {
	c := a
	if a.Data != nil {
		c.Data = bytes.Clone(a.Data)
	}
	return c
}

// Equal reports whether two accounts hold identical state
func (a Account) Equal(b Account) bool {
	return a.Address == b.Address &&
		a.Owner == b.Owner &&
		a.Lamports == b.Lamports &&
		bytes.Equal(a.Data, b.Data)
}

// RecordType returns the record type name stored in the account, or ""
// when the data carries no known discriminator
func (a Account) RecordType() string {
	if len(a.Data) < discriminatorSize {
		return ""
	}
	var d [discriminatorSize]byte
	copy(d[:], a.Data)
	return discriminatorNames[d]
}

// SystemProgramID owns plain wallets
var SystemProgramID = address.Zero

// IsWallet reports whether the account is a data-less system wallet
func (a Account) IsWallet() bool {
	return a.Owner == SystemProgramID && len(a.Data) == 0
}
