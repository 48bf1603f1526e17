package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/stellar/go/hash"
	"github.com/stellar/go/keypair"

	"marketplace/internal/address"
	"marketplace/internal/program"
)

// Signature is one ed25519 signature over the transaction message
type Signature struct {
	Signer    address.Address `json:"signer"`
	Signature []byte          `json:"signature"`
}

// Transaction carries exactly one instruction plus the signatures of every
// account the instruction marks as signer
type Transaction struct {
	Instruction program.Instruction `json:"instruction"`
	Nonce       uint64              `json:"nonce"`
	Signatures  []Signature         `json:"signatures"`
}

type message struct {
	Instruction program.Instruction `json:"instruction"`
	Nonce       uint64              `json:"nonce"`
}

// Message returns the canonical bytes that signers sign
func (tx *Transaction) Message() ([]byte, error) {
	msg, err := json.Marshal(message{Instruction: tx.Instruction, Nonce: tx.Nonce})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction message: %w", err)
	}
	return msg, nil
}

// ID is the hex hash of the message. Signatures are not part of it.
func (tx *Transaction) ID() string {
	msg, err := tx.Message()
	if err != nil {
		return ""
	}
	sum := hash.Hash(msg)
	return hex.EncodeToString(sum[:])
}

// Sign appends a signature by kp
func (tx *Transaction) Sign(signers ...*keypair.Full) error {
	msg, err := tx.Message()
	if err != nil {
		return err
	}
	for _, kp := range signers {
		sig, err := kp.Sign(msg)
		if err != nil {
			return fmt.Errorf("failed to sign with %s: %w", kp.Address(), err)
		}
		tx.Signatures = append(tx.Signatures, Signature{Signer: address.FromKeypair(kp), Signature: sig})
	}
	return nil
}

// Verify checks every signature and that each account declared as signer
// has one. It returns the set of verified signers.
func (tx *Transaction) Verify() (map[address.Address]bool, error) {
	msg, err := tx.Message()
	if err != nil {
		return nil, program.Errorf(program.KindInvalidArgument, "%v", err)
	}

	verified := make(map[address.Address]bool, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		kp, err := keypair.ParseAddress(sig.Signer.String())
		if err != nil {
			return nil, program.Errorf(program.KindUnauthorized, "signer %s: %v", sig.Signer, err)
		}
		if err := kp.Verify(msg, sig.Signature); err != nil {
			return nil, program.Errorf(program.KindUnauthorized, "invalid signature from %s", sig.Signer)
		}
		verified[sig.Signer] = true
	}

	signers := make(map[address.Address]bool)
	for _, meta := range tx.Instruction.Accounts {
		if !meta.Signer {
			continue
		}
		if !verified[meta.Address] {
			return nil, program.Errorf(program.KindUnauthorized, "missing signature for %s", meta.Address)
		}
		signers[meta.Address] = true
	}
	return signers, nil
}
