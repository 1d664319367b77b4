package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"pointchain/core/events"
	"pointchain/core/sigverify"
	"pointchain/native/quorum"
	"pointchain/native/shop"
)

var paymentPrefix = []byte("ledger/payment/")

func paymentKey(id [32]byte) []byte {
	return append(append([]byte(nil), paymentPrefix...), id[:]...)
}

// OpenPaymentParams carries the signed fields of a new payment.
type OpenPaymentParams struct {
	PaymentID  [32]byte
	PurchaseID [32]byte
	Amount     *big.Int
	Currency   string
	ShopID     [32]byte
	Account    [20]byte
	Signature  []byte
}

// OpenNewPayment reserves the payer's balance for a payment without debiting
// it. The payer signs (paymentId, purchaseId, amount, currency, shopId,
// account, nonce).
func (e *Engine) OpenNewPayment(params OpenPaymentParams) error {
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return fmt.Errorf("ledger: payment amount must be positive")
	}
	exists, err := e.st.KVGet(paymentKey(params.PaymentID), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: payment %x", ErrDuplicateID, params.PaymentID)
	}
	record, err := e.shops.Get(params.ShopID)
	if err != nil {
		return err
	}
	if record.Status != shop.StatusActive {
		return fmt.Errorf("%w: %x", ErrShopNotActive, params.ShopID)
	}

	nonce, err := e.st.Nonce(params.Account)
	if err != nil {
		return err
	}
	hash := sigverify.PaymentMessage(
		params.PaymentID, params.PurchaseID, params.Amount,
		params.Currency, params.ShopID, params.Account, nonce,
	)
	if err := sigverify.Verify(hash, params.Signature, params.Account); err != nil {
		return err
	}

	paidPoint, err := e.currencyToPoint(params.Amount, params.Currency)
	if err != nil {
		return err
	}
	feeRate := big.NewInt(int64(e.cfg.FeeRate))
	feePoint := new(big.Int).Mul(paidPoint, feeRate)
	feePoint.Quo(feePoint, big.NewInt(100))
	feeValue := new(big.Int).Mul(params.Amount, feeRate)
	feeValue.Quo(feeValue, big.NewInt(100))

	acc, err := e.st.GetAccount(params.Account)
	if err != nil {
		return err
	}
	payment := &Payment{
		ID:          params.PaymentID,
		PurchaseID:  params.PurchaseID,
		ShopID:      params.ShopID,
		Account:     params.Account,
		Currency:    strings.ToLower(params.Currency),
		Amount:      new(big.Int).Set(params.Amount),
		LoyaltyType: LoyaltyType(acc.LoyaltyMode),
		PaidPoint:   paidPoint,
		PaidValue:   new(big.Int).Set(params.Amount),
		FeePoint:    feePoint,
		FeeValue:    feeValue,
		Status:      PaymentOpened,
	}
	total := new(big.Int).Add(paidPoint, feePoint)
	switch payment.LoyaltyType {
	case LoyaltyToken:
		paidToken, err := e.pointToToken(paidPoint)
		if err != nil {
			return err
		}
		feeToken, err := e.pointToToken(feePoint)
		if err != nil {
			return err
		}
		payment.PaidToken = paidToken
		payment.FeeToken = feeToken
		totalToken := new(big.Int).Add(paidToken, feeToken)
		if acc.TokenBalance.Cmp(totalToken) < 0 {
			return fmt.Errorf("%w: need %s tokens", ErrInsufficientBalance, totalToken)
		}
	default:
		if acc.PointBalance.Cmp(total) < 0 {
			return fmt.Errorf("%w: need %s points", ErrInsufficientBalance, total)
		}
	}

	if err := e.putPayment(payment); err != nil {
		return err
	}
	if err := e.st.BumpNonce(params.Account); err != nil {
		return err
	}
	e.emitPayment(payment)
	return nil
}

// CloseNewPayment finishes an opened payment. With confirm the reserved
// balance is debited, the shop's used total grows, the fee is converted to
// tokens for the fee account and the net amount is converted to tokens for
// the foundation reserve. Without confirm the payment closes rejected with no
// balance movement. Either way the open phase is terminal.
func (e *Engine) CloseNewPayment(validator [20]byte, paymentID [32]byte, confirm bool) error {
	if !e.validators.IsActive(validator) {
		return quorum.ErrNotValidator
	}
	payment, err := e.Payment(paymentID)
	if err != nil {
		return err
	}
	if payment.Status != PaymentOpened {
		return fmt.Errorf("%w: %s", ErrInvalidPaymentState, payment.Status)
	}
	if !confirm {
		payment.Status = PaymentRejected
		if err := e.putPayment(payment); err != nil {
			return err
		}
		e.emitPayment(payment)
		return nil
	}

	settleToken, err := e.pointToToken(payment.PaidPoint)
	if err != nil {
		return err
	}
	settleFeeToken, err := e.pointToToken(payment.FeePoint)
	if err != nil {
		return err
	}

	acc, err := e.st.GetAccount(payment.Account)
	if err != nil {
		return err
	}
	switch payment.LoyaltyType {
	case LoyaltyToken:
		totalToken := new(big.Int).Add(payment.PaidToken, payment.FeeToken)
		if acc.TokenBalance.Cmp(totalToken) < 0 {
			return fmt.Errorf("%w: %x", ErrInsufficientBalance, payment.Account)
		}
		acc.TokenBalance.Sub(acc.TokenBalance, totalToken)
		settleToken = new(big.Int).Set(payment.PaidToken)
		settleFeeToken = new(big.Int).Set(payment.FeeToken)
	default:
		total := new(big.Int).Add(payment.PaidPoint, payment.FeePoint)
		if acc.PointBalance.Cmp(total) < 0 {
			return fmt.Errorf("%w: %x", ErrInsufficientBalance, payment.Account)
		}
		acc.PointBalance.Sub(acc.PointBalance, total)
	}
	if err := e.st.PutAccount(payment.Account, acc); err != nil {
		return err
	}
	if err := e.shops.CreditUsed(payment.ShopID, payment.PaidPoint); err != nil {
		return err
	}
	if err := e.creditToken(e.cfg.FeeAccount, settleFeeToken); err != nil {
		return err
	}
	if err := e.creditFoundation(settleToken); err != nil {
		return err
	}

	payment.SettleToken = settleToken
	payment.SettleFeeToken = settleFeeToken
	payment.Status = PaymentClosed
	if err := e.putPayment(payment); err != nil {
		return err
	}
	e.emitPayment(payment)
	return nil
}

// OpenCancelPayment starts a merchant-initiated refund of a closed payment.
// The shop owner signs (paymentId, shopAccount, nonce).
func (e *Engine) OpenCancelPayment(paymentID [32]byte, signature []byte) error {
	payment, err := e.Payment(paymentID)
	if err != nil {
		return err
	}
	if payment.Status != PaymentClosed {
		return fmt.Errorf("%w: %s", ErrInvalidPaymentState, payment.Status)
	}
	record, err := e.shops.Get(payment.ShopID)
	if err != nil {
		return err
	}
	nonce, err := e.st.Nonce(record.Account)
	if err != nil {
		return err
	}
	hash := sigverify.CancelMessage(paymentID, record.Account, nonce)
	if err := sigverify.Verify(hash, signature, record.Account); err != nil {
		return err
	}
	payment.Status = PaymentCancelRequested
	if err := e.putPayment(payment); err != nil {
		return err
	}
	if err := e.st.BumpNonce(record.Account); err != nil {
		return err
	}
	e.emitPayment(payment)
	return nil
}

// CloseCancelPayment finishes a cancellation. With confirm the exact balance
// deltas applied when the payment closed are reversed; without confirm the
// payment returns to closed and stands.
func (e *Engine) CloseCancelPayment(validator [20]byte, paymentID [32]byte, confirm bool) error {
	if !e.validators.IsActive(validator) {
		return quorum.ErrNotValidator
	}
	payment, err := e.Payment(paymentID)
	if err != nil {
		return err
	}
	if payment.Status != PaymentCancelRequested {
		return fmt.Errorf("%w: %s", ErrInvalidPaymentState, payment.Status)
	}
	if !confirm {
		payment.Status = PaymentClosed
		if err := e.putPayment(payment); err != nil {
			return err
		}
		e.emitPayment(payment)
		return nil
	}

	// Check every source the reversal draws from before touching state, so
	// a cancel that cannot be funded fails without partial effects and can
	// be retried once the reserve recovers.
	record, err := e.shops.Get(payment.ShopID)
	if err != nil {
		return err
	}
	if record.UsedPoint.Cmp(payment.PaidPoint) < 0 {
		return fmt.Errorf("%w: shop %x used point below %s", ErrInsufficientBalance, payment.ShopID, payment.PaidPoint)
	}
	feeAcc, err := e.st.GetAccount(e.cfg.FeeAccount)
	if err != nil {
		return err
	}
	if feeAcc.TokenBalance.Cmp(payment.SettleFeeToken) < 0 {
		return fmt.Errorf("%w: fee account holds %s, need %s", ErrInsufficientBalance, feeAcc.TokenBalance, payment.SettleFeeToken)
	}
	reserve, err := e.st.GetAccount(e.cfg.Foundation)
	if err != nil {
		return err
	}
	if reserve.TokenBalance.Cmp(payment.SettleToken) < 0 {
		return fmt.Errorf("%w: foundation reserve holds %s, need %s", ErrInsufficientBalance, reserve.TokenBalance, payment.SettleToken)
	}

	acc, err := e.st.GetAccount(payment.Account)
	if err != nil {
		return err
	}
	switch payment.LoyaltyType {
	case LoyaltyToken:
		totalToken := new(big.Int).Add(payment.PaidToken, payment.FeeToken)
		acc.TokenBalance.Add(acc.TokenBalance, totalToken)
	default:
		total := new(big.Int).Add(payment.PaidPoint, payment.FeePoint)
		acc.PointBalance.Add(acc.PointBalance, total)
	}
	if err := e.st.PutAccount(payment.Account, acc); err != nil {
		return err
	}
	if err := e.shops.DebitUsed(payment.ShopID, payment.PaidPoint); err != nil {
		return err
	}
	if err := e.debitToken(e.cfg.FeeAccount, payment.SettleFeeToken); err != nil {
		return err
	}
	if err := e.debitFoundation(payment.SettleToken); err != nil {
		return err
	}

	payment.Status = PaymentCancelled
	if err := e.putPayment(payment); err != nil {
		return err
	}
	e.emitPayment(payment)
	return nil
}

// Payment loads a stored payment record.
func (e *Engine) Payment(paymentID [32]byte) (*Payment, error) {
	stored := storedPayment{}
	ok, err := e.st.KVGet(paymentKey(paymentID), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrPaymentNotFound, paymentID)
	}
	payment := &Payment{
		ID:             stored.ID,
		PurchaseID:     stored.PurchaseID,
		ShopID:         stored.ShopID,
		Account:        stored.Account,
		Currency:       stored.Currency,
		Amount:         stored.Amount,
		LoyaltyType:    LoyaltyType(stored.LoyaltyType),
		PaidPoint:      stored.PaidPoint,
		PaidToken:      stored.PaidToken,
		PaidValue:      stored.PaidValue,
		FeePoint:       stored.FeePoint,
		FeeToken:       stored.FeeToken,
		FeeValue:       stored.FeeValue,
		SettleToken:    stored.SettleToken,
		SettleFeeToken: stored.SettleFeeToken,
		Status:         PaymentStatus(stored.Status),
	}
	return payment.Normalize(), nil
}

func (e *Engine) putPayment(payment *Payment) error {
	payment.Normalize()
	return e.st.KVPut(paymentKey(payment.ID), &storedPayment{
		ID:             payment.ID,
		PurchaseID:     payment.PurchaseID,
		ShopID:         payment.ShopID,
		Account:        payment.Account,
		Currency:       payment.Currency,
		Amount:         payment.Amount,
		LoyaltyType:    uint8(payment.LoyaltyType),
		PaidPoint:      payment.PaidPoint,
		PaidToken:      payment.PaidToken,
		PaidValue:      payment.PaidValue,
		FeePoint:       payment.FeePoint,
		FeeToken:       payment.FeeToken,
		FeeValue:       payment.FeeValue,
		SettleToken:    payment.SettleToken,
		SettleFeeToken: payment.SettleFeeToken,
		Status:         uint8(payment.Status),
	})
}

func (e *Engine) emitPayment(payment *Payment) {
	payment.Normalize()
	e.emitter.Emit(events.LoyaltyPayment{
		PaymentID:  payment.ID,
		PurchaseID: payment.PurchaseID,
		ShopID:     payment.ShopID,
		Account:    payment.Account,
		LoyaltyTyp: uint8(payment.LoyaltyType),
		PaidPoint:  new(big.Int).Set(payment.PaidPoint),
		PaidToken:  new(big.Int).Set(payment.PaidToken),
		PaidValue:  new(big.Int).Set(payment.PaidValue),
		FeePoint:   new(big.Int).Set(payment.FeePoint),
		FeeToken:   new(big.Int).Set(payment.FeeToken),
		FeeValue:   new(big.Int).Set(payment.FeeValue),
		Status:     uint8(payment.Status),
	})
}
