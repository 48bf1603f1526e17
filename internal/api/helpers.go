package api

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL
const LamportsPerSOL = 1_000_000_000

// LamportsToSOL converts lamports (smallest unit) to SOL
// 1 SOL = 1,000,000,000 lamports
func LamportsToSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9).StringFixed(9)
}

// SOLToLamports parses a SOL amount such as "1.5" into lamports.
// Amounts finer than one lamport, negative or above the uint64 range are rejected.
func SOLToLamports(sol string) (uint64, error) {
	d, err := decimal.NewFromString(sol)
	if err != nil {
		return 0, fmt.Errorf("invalid SOL amount %q: %w", sol, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid SOL amount %q: negative", sol)
	}

	lamports := d.Shift(9)
	if !lamports.Equal(lamports.Truncate(0)) {
		return 0, fmt.Errorf("invalid SOL amount %q: more than 9 decimals", sol)
	}

	n := lamports.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("invalid SOL amount %q: out of range", sol)
	}
	return n.Uint64(), nil
}
