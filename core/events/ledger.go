package events

import "math/big"

const (
	// TypeSavedPurchase is emitted for every accepted purchase record.
	TypeSavedPurchase = "ledger.savedPurchase"
	// TypeProvidedPoint is emitted when a purchase credits payable points.
	TypeProvidedPoint = "ledger.providedPoint"
	// TypeProvidedUnpayablePoint is emitted when a purchase credits the
	// escrow bucket of an unlinked phone hash.
	TypeProvidedUnpayablePoint = "ledger.providedUnpayablePoint"
	// TypeProvidedToken is emitted when a token-mode account receives the
	// purchase reward as tokens.
	TypeProvidedToken = "ledger.providedToken"
	// TypeLoyaltyPayment is emitted on every payment state transition.
	TypeLoyaltyPayment = "ledger.payment"
	// TypeChangedToLoyaltyToken is emitted when an account switches to
	// token mode.
	TypeChangedToLoyaltyToken = "ledger.changedToLoyaltyToken"
	// TypeChangedToPayablePoint is emitted when escrowed points move into
	// an account.
	TypeChangedToPayablePoint = "ledger.changedToPayablePoint"
	// TypeDeposited and TypeWithdrawn track token movement in and out of
	// the ledger.
	TypeDeposited = "ledger.deposited"
	TypeWithdrawn = "ledger.withdrawn"
	// TypeWithdrawalOpened / TypeWithdrawalClosed track shop settlement.
	TypeWithdrawalOpened = "ledger.withdrawal.opened"
	TypeWithdrawalClosed = "ledger.withdrawal.closed"
)

// SavedPurchase records the raw purchase submitted by a validator.
type SavedPurchase struct {
	PurchaseID [32]byte
	Timestamp  uint64
	Amount     *big.Int
	Currency   string
	ShopID     [32]byte
	Method     string
	Account    [20]byte
	PhoneHash  [32]byte
}

func (SavedPurchase) EventType() string { return TypeSavedPurchase }

// ProvidedPoint reports a point credit to a linked account.
type ProvidedPoint struct {
	Account     [20]byte
	PurchaseID  [32]byte
	ShopID      [32]byte
	PointAmount *big.Int
	Balance     *big.Int
}

func (ProvidedPoint) EventType() string { return TypeProvidedPoint }

// ProvidedUnpayablePoint reports a point credit escrowed for an unlinked
// phone hash.
type ProvidedUnpayablePoint struct {
	PhoneHash   [32]byte
	PurchaseID  [32]byte
	ShopID      [32]byte
	PointAmount *big.Int
	Balance     *big.Int
}

func (ProvidedUnpayablePoint) EventType() string { return TypeProvidedUnpayablePoint }

// ProvidedToken reports a token credit to a token-mode account.
type ProvidedToken struct {
	Account     [20]byte
	PurchaseID  [32]byte
	ShopID      [32]byte
	PointAmount *big.Int
	TokenAmount *big.Int
	Balance     *big.Int
}

func (ProvidedToken) EventType() string { return TypeProvidedToken }

// LoyaltyPayment reports a payment lifecycle transition. Status carries the
// post-transition state.
type LoyaltyPayment struct {
	PaymentID  [32]byte
	PurchaseID [32]byte
	ShopID     [32]byte
	Account    [20]byte
	LoyaltyTyp uint8
	PaidPoint  *big.Int
	PaidToken  *big.Int
	PaidValue  *big.Int
	FeePoint   *big.Int
	FeeToken   *big.Int
	FeeValue   *big.Int
	Status     uint8
}

func (LoyaltyPayment) EventType() string { return TypeLoyaltyPayment }

// ChangedToLoyaltyToken reports the one-way switch to token mode.
type ChangedToLoyaltyToken struct {
	Account [20]byte
}

func (ChangedToLoyaltyToken) EventType() string { return TypeChangedToLoyaltyToken }

// ChangedToPayablePoint reports escrowed points moving into an account.
type ChangedToPayablePoint struct {
	PhoneHash   [32]byte
	Account     [20]byte
	PointAmount *big.Int
	TokenAmount *big.Int
}

func (ChangedToPayablePoint) EventType() string { return TypeChangedToPayablePoint }

// Deposited reports a token deposit into the ledger.
type Deposited struct {
	Account [20]byte
	Amount  *big.Int
	Balance *big.Int
}

func (Deposited) EventType() string { return TypeDeposited }

// Withdrawn reports a token withdrawal out of the ledger.
type Withdrawn struct {
	Account [20]byte
	Amount  *big.Int
	Balance *big.Int
}

func (Withdrawn) EventType() string { return TypeWithdrawn }

// WithdrawalOpened reports the start of a shop settlement withdrawal.
type WithdrawalOpened struct {
	ShopID  [32]byte
	Account [20]byte
	Amount  *big.Int
}

func (WithdrawalOpened) EventType() string { return TypeWithdrawalOpened }

// WithdrawalClosed reports a completed shop settlement withdrawal.
type WithdrawalClosed struct {
	ShopID      [32]byte
	Account     [20]byte
	PointAmount *big.Int
	TokenAmount *big.Int
}

func (WithdrawalClosed) EventType() string { return TypeWithdrawalClosed }
