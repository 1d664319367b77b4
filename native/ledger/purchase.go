package ledger

import (
	"fmt"
	"math/big"

	"pointchain/core/events"
	"pointchain/core/sigverify"
	"pointchain/native/quorum"
	"pointchain/native/shop"
)

var purchasePrefix = []byte("ledger/purchase/")

func purchaseKey(id [32]byte) []byte {
	return append(append([]byte(nil), purchasePrefix...), id[:]...)
}

// SavePurchase records an off-chain purchase and credits the buyer's reward.
// Only active validators may submit purchases. Linked buyers are credited in
// points (or tokens, if the account settles in token mode); buyers known only
// by phone hash accrue unpayable points until they link an address. The
// purchase id is consumed only once the reward has been applied, so a failed
// credit leaves the purchase retryable.
func (e *Engine) SavePurchase(validator [20]byte, p *Purchase) error {
	if p == nil {
		return fmt.Errorf("ledger: nil purchase")
	}
	if !e.validators.IsActive(validator) {
		return quorum.ErrNotValidator
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return fmt.Errorf("ledger: purchase amount must be positive")
	}
	if p.ID == ([32]byte{}) {
		// Off-chain feeds may omit the identifier; mint one so the
		// purchase still carries replay protection.
		p.ID = sigverify.PurchaseID()
	}
	used, err := e.st.KVGet(purchaseKey(p.ID), nil)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: purchase %x", ErrDuplicateID, p.ID)
	}
	record, err := e.shops.Get(p.ShopID)
	if err != nil {
		return err
	}
	if record.Status != shop.StatusActive {
		return fmt.Errorf("%w: %x", ErrShopNotActive, p.ShopID)
	}

	point, err := e.currencyToPoint(p.Amount, p.Currency)
	if err != nil {
		return err
	}
	point.Mul(point, big.NewInt(int64(record.ProvidePercent)))
	point.Quo(point, big.NewInt(100))

	account, linked, err := e.resolveBuyer(p)
	if err != nil {
		return err
	}
	var provided events.Event
	if linked {
		provided, err = e.provideToAccount(account, p, point)
	} else {
		provided, err = e.provideToEscrow(p, point)
	}
	if err != nil {
		return err
	}

	if err := e.st.KVPut(purchaseKey(p.ID), true); err != nil {
		return err
	}
	// The provided total always grows by the point equivalent, even when
	// the buyer was rewarded in tokens, so cross-shop accounting stays in
	// one unit.
	if err := e.shops.CreditProvided(p.ShopID, point); err != nil {
		return err
	}
	e.emitter.Emit(events.SavedPurchase{
		PurchaseID: p.ID,
		Timestamp:  p.Timestamp,
		Amount:     new(big.Int).Set(p.Amount),
		Currency:   p.Currency,
		ShopID:     p.ShopID,
		Method:     p.Method,
		Account:    p.Account,
		PhoneHash:  p.PhoneHash,
	})
	e.emitter.Emit(provided)
	return nil
}

// resolveBuyer prefers the explicit account, then a linked address for the
// phone hash, and reports unlinked otherwise.
func (e *Engine) resolveBuyer(p *Purchase) ([20]byte, bool, error) {
	var zero [20]byte
	if p.Account != zero {
		return p.Account, true, nil
	}
	linked, ok, err := e.links.AddressOf(p.PhoneHash)
	if err != nil {
		return zero, false, err
	}
	if ok {
		return linked, true, nil
	}
	return zero, false, nil
}

// provideToAccount routes the reward by the account's loyalty type: point
// accounts accrue points, token accounts receive the converted token amount
// out of the foundation reserve. The event describing the credit is returned
// rather than emitted so the caller controls emission order.
func (e *Engine) provideToAccount(account [20]byte, p *Purchase, point *big.Int) (events.Event, error) {
	acc, err := e.st.GetAccount(account)
	if err != nil {
		return nil, err
	}
	switch LoyaltyType(acc.LoyaltyMode) {
	case LoyaltyToken:
		token, err := e.pointToToken(point)
		if err != nil {
			return nil, err
		}
		if err := e.debitFoundation(token); err != nil {
			return nil, err
		}
		acc.TokenBalance.Add(acc.TokenBalance, token)
		if err := e.st.PutAccount(account, acc); err != nil {
			return nil, err
		}
		return events.ProvidedToken{
			Account:     account,
			PurchaseID:  p.ID,
			ShopID:      p.ShopID,
			PointAmount: new(big.Int).Set(point),
			TokenAmount: token,
			Balance:     new(big.Int).Set(acc.TokenBalance),
		}, nil
	default:
		acc.PointBalance.Add(acc.PointBalance, point)
		if err := e.st.PutAccount(account, acc); err != nil {
			return nil, err
		}
		return events.ProvidedPoint{
			Account:     account,
			PurchaseID:  p.ID,
			ShopID:      p.ShopID,
			PointAmount: new(big.Int).Set(point),
			Balance:     new(big.Int).Set(acc.PointBalance),
		}, nil
	}
}

// provideToEscrow accrues the reward in the phone hash's unpayable bucket.
func (e *Engine) provideToEscrow(p *Purchase, point *big.Int) (events.Event, error) {
	balance, err := e.st.UnpayablePoint(p.PhoneHash)
	if err != nil {
		return nil, err
	}
	balance.Add(balance, point)
	if err := e.st.SetUnpayablePoint(p.PhoneHash, balance); err != nil {
		return nil, err
	}
	return events.ProvidedUnpayablePoint{
		PhoneHash:   p.PhoneHash,
		PurchaseID:  p.ID,
		ShopID:      p.ShopID,
		PointAmount: new(big.Int).Set(point),
		Balance:     balance,
	}, nil
}
