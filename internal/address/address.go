package address

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
)

// Size is the length in bytes of every account address
const Size = 32

// Address identifies an account on the ledger.
// Wallet addresses are ed25519 public keys, derived addresses are hashes;
// both render with the same strkey account encoding ("G...").
type Address [Size]byte

// Zero is the unset address
var Zero Address

// String returns the strkey form of the address
func (a Address) String() string {
	return strkey.MustEncode(strkey.VersionByteAccountID, a[:])
}

// Hex returns the lowercase hex form of the address
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the raw address bytes
func (a Address) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, a[:])
	return b
}

// IsZero reports whether the address is unset
func (a Address) IsZero() bool {
	return a == Zero
}

// Compare orders addresses bytewise
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalText implements encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse decodes a strkey ("G...") or 64-char hex address
func Parse(s string) (Address, error) {
	var a Address
	if len(s) == 2*Size {
		raw, err := hex.DecodeString(s)
		if err == nil {
			copy(a[:], raw)
			return a, nil
		}
	}

	raw, err := strkey.Decode(strkey.VersionByteAccountID, s)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != Size {
		return a, fmt.Errorf("invalid address %q: expected %d bytes, got %d", s, Size, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// MustParse is Parse for constants and tests
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromBytes copies b into an Address
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Size {
		return a, fmt.Errorf("invalid address length %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

// FromKeypair returns the address of a stellar keypair
func FromKeypair(kp keypair.KP) Address {
	return MustParse(kp.Address())
}
