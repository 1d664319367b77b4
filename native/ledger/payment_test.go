package ledger_test

import (
	"errors"
	"math/big"
	"testing"

	"pointchain/core/sigverify"
	"pointchain/crypto"
	"pointchain/native/ledger"
	"pointchain/native/quorum"
)

// openPayment signs and opens a payment for the given amount in the base
// currency.
func openPayment(t *testing.T, fx *fixture, key *crypto.PrivateKey, account [20]byte, shopID [32]byte, amount *big.Int) [32]byte {
	t.Helper()
	paymentID := sigverify.PaymentID(account, sigverify.NewSalt())
	purchaseID := sigverify.NewSalt()
	nonce, err := fx.manager.Nonce(account)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	hash := sigverify.PaymentMessage(paymentID, purchaseID, amount, baseCurrency, shopID, account, nonce)
	signature, err := sigverify.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = fx.engine.OpenNewPayment(ledger.OpenPaymentParams{
		PaymentID:  paymentID,
		PurchaseID: purchaseID,
		Amount:     amount,
		Currency:   baseCurrency,
		ShopID:     shopID,
		Account:    account,
		Signature:  signature,
	})
	if err != nil {
		t.Fatalf("open payment: %v", err)
	}
	return paymentID
}

func openCancel(t *testing.T, fx *fixture, ownerKey *crypto.PrivateKey, owner [20]byte, paymentID [32]byte) {
	t.Helper()
	nonce, err := fx.manager.Nonce(owner)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	signature, err := sigverify.Sign(sigverify.CancelMessage(paymentID, owner, nonce), ownerKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := fx.engine.OpenCancelPayment(paymentID, signature); err != nil {
		t.Fatalf("open cancel: %v", err)
	}
}

func TestOpenNewPaymentReservesWithoutDebiting(t *testing.T) {
	fx := newFixture(t)
	_, _, shopID := fx.newShop(t, 5)
	key, payer := fx.newAccount(t)
	fx.setPointBalance(t, payer, tokens(20000))

	paymentID := openPayment(t, fx, key, payer, shopID, tokens(10000))

	payment, err := fx.engine.Payment(paymentID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if payment.Status != ledger.PaymentOpened {
		t.Fatalf("status = %s", payment.Status)
	}
	requireEqual(t, tokens(10000), payment.PaidPoint, "paid point")
	requireEqual(t, tokens(500), payment.FeePoint, "fee point")
	// Balances stay untouched until the close phase.
	requireEqual(t, tokens(20000), fx.pointBalance(t, payer), "payer points")
}

func TestOpenNewPaymentRequiresSufficientBalance(t *testing.T) {
	fx := newFixture(t)
	_, _, shopID := fx.newShop(t, 5)
	key, payer := fx.newAccount(t)
	// 10000 plus the 5 percent fee needs 10500; fund one point short.
	fx.setPointBalance(t, payer, new(big.Int).Sub(tokens(10500), big.NewInt(1)))

	paymentID := sigverify.PaymentID(payer, sigverify.NewSalt())
	purchaseID := sigverify.NewSalt()
	nonce, _ := fx.manager.Nonce(payer)
	amount := tokens(10000)
	hash := sigverify.PaymentMessage(paymentID, purchaseID, amount, baseCurrency, shopID, payer, nonce)
	signature, err := sigverify.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = fx.engine.OpenNewPayment(ledger.OpenPaymentParams{
		PaymentID:  paymentID,
		PurchaseID: purchaseID,
		Amount:     amount,
		Currency:   baseCurrency,
		ShopID:     shopID,
		Account:    payer,
		Signature:  signature,
	})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestOpenNewPaymentRejectsDuplicateID(t *testing.T) {
	fx := newFixture(t)
	_, _, shopID := fx.newShop(t, 5)
	key, payer := fx.newAccount(t)
	fx.setPointBalance(t, payer, tokens(50000))

	paymentID := openPayment(t, fx, key, payer, shopID, tokens(100))

	nonce, _ := fx.manager.Nonce(payer)
	amount := tokens(100)
	hash := sigverify.PaymentMessage(paymentID, sigverify.NewSalt(), amount, baseCurrency, shopID, payer, nonce)
	signature, err := sigverify.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = fx.engine.OpenNewPayment(ledger.OpenPaymentParams{
		PaymentID: paymentID,
		Amount:    amount,
		Currency:  baseCurrency,
		ShopID:    shopID,
		Account:   payer,
		Signature: signature,
	})
	if !errors.Is(err, ledger.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestCloseNewPaymentConfirmedSettles(t *testing.T) {
	fx := newFixture(t)
	_, _, shopID := fx.newShop(t, 5)
	key, payer := fx.newAccount(t)
	fx.setPointBalance(t, payer, tokens(20000))
	reserveBefore := fx.tokenBalance(t, fx.foundation)

	paymentID := openPayment(t, fx, key, payer, shopID, tokens(10000))
	if err := fx.engine.CloseNewPayment(fx.valAddrs[0], paymentID, true); err != nil {
		t.Fatalf("close payment: %v", err)
	}

	// The payer loses paid plus fee points.
	requireEqual(t, tokens(9500), fx.pointBalance(t, payer), "payer points")
	// The fee converts to tokens for the fee account and the net amount
	// converts to tokens for the foundation reserve.
	requireEqual(t, tokens(500), fx.tokenBalance(t, fx.feeAccount), "fee tokens")
	reserveAfter := fx.tokenBalance(t, fx.foundation)
	requireEqual(t, tokens(10000), new(big.Int).Sub(reserveAfter, reserveBefore), "reserve delta")

	record, err := fx.shops.Get(shopID)
	if err != nil {
		t.Fatalf("get shop: %v", err)
	}
	requireEqual(t, tokens(10000), record.UsedPoint, "shop used")

	payment, err := fx.engine.Payment(paymentID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if payment.Status != ledger.PaymentClosed {
		t.Fatalf("status = %s", payment.Status)
	}
	requireEqual(t, tokens(10000), payment.SettleToken, "settle token")
	requireEqual(t, tokens(500), payment.SettleFeeToken, "settle fee token")
}

func TestCloseNewPaymentRejectedMovesNothing(t *testing.T) {
	fx := newFixture(t)
	_, _, shopID := fx.newShop(t, 5)
	key, payer := fx.newAccount(t)
	fx.setPointBalance(t, payer, tokens(20000))

	paymentID := openPayment(t, fx, key, payer, shopID, tokens(10000))
	if err := fx.engine.CloseNewPayment(fx.valAddrs[0], paymentID, false); err != nil {
		t.Fatalf("close payment: %v", err)
	}

	requireEqual(t, tokens(20000), fx.pointBalance(t, payer), "payer points")
	payment, err := fx.engine.Payment(paymentID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if payment.Status != ledger.PaymentRejected {
		t.Fatalf("status = %s", payment.Status)
	}
	// Rejected is terminal.
	err = fx.engine.CloseNewPayment(fx.valAddrs[0], paymentID, true)
	if !errors.Is(err, ledger.ErrInvalidPaymentState) {
		t.Fatalf("expected ErrInvalidPaymentState, got %v", err)
	}
}

func TestCloseNewPaymentRequiresValidator(t *testing.T) {
	fx := newFixture(t)
	_, _, shopID := fx.newShop(t, 5)
	key, payer := fx.newAccount(t)
	fx.setPointBalance(t, payer, tokens(20000))
	paymentID := openPayment(t, fx, key, payer, shopID, tokens(100))

	_, outsider := fx.newAccount(t)
	err := fx.engine.CloseNewPayment(outsider, paymentID, true)
	if !errors.Is(err, quorum.ErrNotValidator) {
		t.Fatalf("expected ErrNotValidator, got %v", err)
	}
}

func TestOpenCancelPaymentRequiresClosedState(t *testing.T) {
	fx := newFixture(t)
	ownerKey, owner, shopID := fx.newShop(t, 5)
	key, payer := fx.newAccount(t)
	fx.setPointBalance(t, payer, tokens(20000))
	paymentID := openPayment(t, fx, key, payer, shopID, tokens(100))

	nonce, _ := fx.manager.Nonce(owner)
	signature, err := sigverify.Sign(sigverify.CancelMessage(paymentID, owner, nonce), ownerKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = fx.engine.OpenCancelPayment(paymentID, signature)
	if !errors.Is(err, ledger.ErrInvalidPaymentState) {
		t.Fatalf("expected ErrInvalidPaymentState, got %v", err)
	}
}

func TestCancelConfirmedRestoresExactBalances(t *testing.T) {
	fx := newFixture(t)
	ownerKey, owner, shopID := fx.newShop(t, 5)
	key, payer := fx.newAccount(t)
	fx.setPointBalance(t, payer, tokens(20000))
	reserveBefore := fx.tokenBalance(t, fx.foundation)

	paymentID := openPayment(t, fx, key, payer, shopID, tokens(10000))
	if err := fx.engine.CloseNewPayment(fx.valAddrs[0], paymentID, true); err != nil {
		t.Fatalf("close payment: %v", err)
	}
	openCancel(t, fx, ownerKey, owner, paymentID)
	if err := fx.engine.CloseCancelPayment(fx.valAddrs[1], paymentID, true); err != nil {
		t.Fatalf("close cancel: %v", err)
	}

	// Every movement from the close phase reverses exactly.
	requireEqual(t, tokens(20000), fx.pointBalance(t, payer), "payer points")
	requireEqual(t, big.NewInt(0), fx.tokenBalance(t, fx.feeAccount), "fee tokens")
	requireEqual(t, reserveBefore, fx.tokenBalance(t, fx.foundation), "foundation reserve")

	record, err := fx.shops.Get(shopID)
	if err != nil {
		t.Fatalf("get shop: %v", err)
	}
	if record.UsedPoint.Sign() != 0 {
		t.Fatalf("shop used = %s", record.UsedPoint)
	}

	payment, err := fx.engine.Payment(paymentID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if payment.Status != ledger.PaymentCancelled {
		t.Fatalf("status = %s", payment.Status)
	}
}

func TestCancelDeclinedReturnsToClosed(t *testing.T) {
	fx := newFixture(t)
	ownerKey, owner, shopID := fx.newShop(t, 5)
	key, payer := fx.newAccount(t)
	fx.setPointBalance(t, payer, tokens(20000))

	paymentID := openPayment(t, fx, key, payer, shopID, tokens(10000))
	if err := fx.engine.CloseNewPayment(fx.valAddrs[0], paymentID, true); err != nil {
		t.Fatalf("close payment: %v", err)
	}
	openCancel(t, fx, ownerKey, owner, paymentID)
	if err := fx.engine.CloseCancelPayment(fx.valAddrs[1], paymentID, false); err != nil {
		t.Fatalf("close cancel: %v", err)
	}

	payment, err := fx.engine.Payment(paymentID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if payment.Status != ledger.PaymentClosed {
		t.Fatalf("status = %s", payment.Status)
	}
	requireEqual(t, tokens(9500), fx.pointBalance(t, payer), "payer points")

	// The payment may enter cancellation again after a declined attempt.
	openCancel(t, fx, ownerKey, owner, paymentID)
	if err := fx.engine.CloseCancelPayment(fx.valAddrs[2], paymentID, true); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	requireEqual(t, tokens(20000), fx.pointBalance(t, payer), "payer points after cancel")
}

func TestCancelAgainstDrainedReserveLeavesStateUntouched(t *testing.T) {
	fx := newFixture(t)
	ownerKey, owner, shopID := fx.newShop(t, 5)
	key, payer := fx.newAccount(t)
	fx.setPointBalance(t, payer, tokens(20000))

	paymentID := openPayment(t, fx, key, payer, shopID, tokens(10000))
	if err := fx.engine.CloseNewPayment(fx.valAddrs[0], paymentID, true); err != nil {
		t.Fatalf("close payment: %v", err)
	}
	openCancel(t, fx, ownerKey, owner, paymentID)

	// The reserve cannot fund the reversal, so the cancel must fail
	// without refunding the payer or unwinding the shop and fee legs.
	fx.setTokenBalance(t, fx.foundation, big.NewInt(0))
	err := fx.engine.CloseCancelPayment(fx.valAddrs[1], paymentID, true)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	requireEqual(t, tokens(9500), fx.pointBalance(t, payer), "payer points")
	requireEqual(t, tokens(500), fx.tokenBalance(t, fx.feeAccount), "fee tokens")
	record, err := fx.shops.Get(shopID)
	if err != nil {
		t.Fatalf("get shop: %v", err)
	}
	requireEqual(t, tokens(10000), record.UsedPoint, "shop used")
	payment, err := fx.engine.Payment(paymentID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if payment.Status != ledger.PaymentCancelRequested {
		t.Fatalf("status = %s, want cancel requested", payment.Status)
	}

	// Once the reserve recovers the same request completes and every
	// close-phase movement reverses exactly.
	fx.setTokenBalance(t, fx.foundation, tokens(10000))
	if err := fx.engine.CloseCancelPayment(fx.valAddrs[2], paymentID, true); err != nil {
		t.Fatalf("retry cancel: %v", err)
	}
	requireEqual(t, tokens(20000), fx.pointBalance(t, payer), "payer points after retry")
	requireEqual(t, big.NewInt(0), fx.tokenBalance(t, fx.feeAccount), "fee tokens after retry")
	requireEqual(t, big.NewInt(0), fx.tokenBalance(t, fx.foundation), "foundation reserve after retry")
	record, err = fx.shops.Get(shopID)
	if err != nil {
		t.Fatalf("get shop: %v", err)
	}
	if record.UsedPoint.Sign() != 0 {
		t.Fatalf("shop used = %s", record.UsedPoint)
	}
}

func TestTokenModePaymentDebitsTokens(t *testing.T) {
	fx := newFixture(t)
	_, _, shopID := fx.newShop(t, 5)
	key, payer := fx.newAccount(t)
	fx.switchToTokenMode(t, key, payer)
	fx.setTokenBalance(t, payer, tokens(20000))
	reserveBefore := fx.tokenBalance(t, fx.foundation)

	paymentID := openPayment(t, fx, key, payer, shopID, tokens(10000))
	payment, err := fx.engine.Payment(paymentID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if payment.LoyaltyType != ledger.LoyaltyToken {
		t.Fatalf("loyalty type = %s", payment.LoyaltyType)
	}
	requireEqual(t, tokens(10000), payment.PaidToken, "paid token")
	requireEqual(t, tokens(500), payment.FeeToken, "fee token")

	if err := fx.engine.CloseNewPayment(fx.valAddrs[0], paymentID, true); err != nil {
		t.Fatalf("close payment: %v", err)
	}
	requireEqual(t, tokens(9500), fx.tokenBalance(t, payer), "payer tokens")
	requireEqual(t, tokens(500), fx.tokenBalance(t, fx.feeAccount), "fee tokens")
	reserveAfter := fx.tokenBalance(t, fx.foundation)
	requireEqual(t, tokens(10000), new(big.Int).Sub(reserveAfter, reserveBefore), "reserve delta")

	record, err := fx.shops.Get(shopID)
	if err != nil {
		t.Fatalf("get shop: %v", err)
	}
	// Used totals stay point denominated regardless of settlement mode.
	requireEqual(t, tokens(10000), record.UsedPoint, "shop used")
}
