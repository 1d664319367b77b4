package state

import "math/big"

// Loyalty modes routed by the ledger engine. Stored as a raw byte so the state
// layer stays free of ledger imports.
const (
	LoyaltyModePoint uint8 = 0
	LoyaltyModeToken uint8 = 1
)

// Account is the per-address ledger record. PointBalance and TokenBalance are
// both fixed-point values scaled by 1e18.
type Account struct {
	Nonce        uint64
	PointBalance *big.Int
	TokenBalance *big.Int
	LoyaltyMode  uint8
}

// Normalize replaces nil balances with zero so callers can do arithmetic
// without nil checks.
func (a *Account) Normalize() *Account {
	if a.PointBalance == nil {
		a.PointBalance = big.NewInt(0)
	}
	if a.TokenBalance == nil {
		a.TokenBalance = big.NewInt(0)
	}
	return a
}

type storedAccount struct {
	Nonce        uint64
	PointBalance *big.Int
	TokenBalance *big.Int
	LoyaltyMode  uint8
}
