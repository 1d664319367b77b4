package shop

import "math/big"

// Status tracks a shop through its lifecycle. Closed is terminal: a closed
// shop accepts no further provide/use traffic but keeps withdrawal rights
// over points cleared before closure.
type Status uint8

const (
	StatusInactive Status = iota
	StatusActive
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Shop is the per-merchant registry record. Point totals are fixed-point
// values scaled by 1e18; ProvidePercent is the whole-number percentage of a
// purchase credited back as points.
type Shop struct {
	ID             [32]byte
	Name           string
	Currency       string
	Account        [20]byte
	Status         Status
	ProvidePercent uint8
	ProvidedPoint  *big.Int
	UsedPoint      *big.Int
	ClearedPoint   *big.Int
	SettledAmount  *big.Int
}

// Normalize replaces nil totals with zero.
func (s *Shop) Normalize() *Shop {
	if s.ProvidedPoint == nil {
		s.ProvidedPoint = big.NewInt(0)
	}
	if s.UsedPoint == nil {
		s.UsedPoint = big.NewInt(0)
	}
	if s.ClearedPoint == nil {
		s.ClearedPoint = big.NewInt(0)
	}
	if s.SettledAmount == nil {
		s.SettledAmount = big.NewInt(0)
	}
	return s
}

// Withdrawable is the settled-point surplus the owner may still convert to
// tokens: used minus provided minus already cleared, floored at zero.
func (s *Shop) Withdrawable() *big.Int {
	s.Normalize()
	surplus := new(big.Int).Sub(s.UsedPoint, s.ProvidedPoint)
	surplus.Sub(surplus, s.ClearedPoint)
	if surplus.Sign() < 0 {
		return big.NewInt(0)
	}
	return surplus
}
