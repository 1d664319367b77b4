package ledger

import "errors"

var (
	ErrUnsupportedCurrency   = errors.New("ledger: unsupported currency")
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrUnregisteredAddress   = errors.New("ledger: address has no linked identity")
	ErrDuplicateID           = errors.New("ledger: identifier already used")
	ErrPaymentNotFound       = errors.New("ledger: payment not found")
	ErrInvalidPaymentState   = errors.New("ledger: payment is not in the required state")
	ErrShopNotActive         = errors.New("ledger: shop is not active")
	ErrNoEscrowedPoint       = errors.New("ledger: no unpayable point balance to convert")
	ErrAlreadyTokenMode      = errors.New("ledger: account already settles in tokens")
	ErrWithdrawalPending     = errors.New("ledger: shop already has an open withdrawal")
	ErrNoOpenWithdrawal      = errors.New("ledger: shop has no open withdrawal")
	ErrTokenPriceUnavailable = errors.New("ledger: token price rate unavailable")
)
