package ledger

import "math/big"

// LoyaltyType selects whether an account's purchase rewards and payments
// settle in points or tokens.
type LoyaltyType uint8

const (
	LoyaltyPoint LoyaltyType = iota
	LoyaltyToken
)

func (t LoyaltyType) String() string {
	if t == LoyaltyToken {
		return "token"
	}
	return "point"
}

// PaymentStatus tracks the two-phase payment state machine. Closed payments
// may still enter the cancellation flow; Rejected and Cancelled are terminal.
type PaymentStatus uint8

const (
	PaymentNone PaymentStatus = iota
	PaymentOpened
	PaymentClosed
	PaymentRejected
	PaymentCancelRequested
	PaymentCancelled
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentOpened:
		return "opened"
	case PaymentClosed:
		return "closed"
	case PaymentRejected:
		return "rejected"
	case PaymentCancelRequested:
		return "cancelRequested"
	case PaymentCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Purchase is the ephemeral record submitted by a validator for every
// off-chain purchase. Amount is denominated in Currency and scaled by 1e18.
type Purchase struct {
	ID        [32]byte
	Timestamp uint64
	Amount    *big.Int
	Currency  string
	ShopID    [32]byte
	Method    string
	Account   [20]byte
	PhoneHash [32]byte
}

// Payment is the persisted record of a loyalty payment. Paid and fee amounts
// are fixed at open time; SettleToken and SettleFeeToken capture the exact
// token movements applied at close time so cancellation can reverse them
// precisely.
type Payment struct {
	ID             [32]byte
	PurchaseID     [32]byte
	ShopID         [32]byte
	Account        [20]byte
	Currency       string
	Amount         *big.Int
	LoyaltyType    LoyaltyType
	PaidPoint      *big.Int
	PaidToken      *big.Int
	PaidValue      *big.Int
	FeePoint       *big.Int
	FeeToken       *big.Int
	FeeValue       *big.Int
	SettleToken    *big.Int
	SettleFeeToken *big.Int
	Status         PaymentStatus
}

// Normalize replaces nil amounts with zero.
func (p *Payment) Normalize() *Payment {
	for _, field := range []**big.Int{
		&p.Amount, &p.PaidPoint, &p.PaidToken, &p.PaidValue,
		&p.FeePoint, &p.FeeToken, &p.FeeValue,
		&p.SettleToken, &p.SettleFeeToken,
	} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	return p
}

type storedPayment struct {
	ID             [32]byte
	PurchaseID     [32]byte
	ShopID         [32]byte
	Account        [20]byte
	Currency       string
	Amount         *big.Int
	LoyaltyType    uint8
	PaidPoint      *big.Int
	PaidToken      *big.Int
	PaidValue      *big.Int
	FeePoint       *big.Int
	FeeToken       *big.Int
	FeeValue       *big.Int
	SettleToken    *big.Int
	SettleFeeToken *big.Int
	Status         uint8
}

// Withdrawal is a pending shop settlement withdrawal.
type Withdrawal struct {
	ShopID      [32]byte
	Account     [20]byte
	PointAmount *big.Int
	Open        bool
}
