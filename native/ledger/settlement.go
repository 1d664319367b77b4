package ledger

import (
	"fmt"
	"math/big"

	"pointchain/core/events"
	"pointchain/core/sigverify"
	"pointchain/native/quorum"
)

var withdrawalPrefix = []byte("ledger/withdrawal/")

func withdrawalKey(shopID [32]byte) []byte {
	return append(append([]byte(nil), withdrawalPrefix...), shopID[:]...)
}

// Deposit credits tokens into an account. The depositor must hold a linked
// identity and sign (amount, account, nonce).
func (e *Engine) Deposit(account [20]byte, amount *big.Int, signature []byte) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: deposit amount must be positive")
	}
	if _, ok, err := e.links.IdentityOf(account); err != nil {
		return err
	} else if !ok {
		return ErrUnregisteredAddress
	}
	nonce, err := e.st.Nonce(account)
	if err != nil {
		return err
	}
	hash := sigverify.DepositMessage(account, amount, nonce)
	if err := sigverify.Verify(hash, signature, account); err != nil {
		return err
	}
	acc, err := e.st.GetAccount(account)
	if err != nil {
		return err
	}
	acc.TokenBalance.Add(acc.TokenBalance, amount)
	acc.Nonce++
	if err := e.st.PutAccount(account, acc); err != nil {
		return err
	}
	e.emitter.Emit(events.Deposited{
		Account: account,
		Amount:  new(big.Int).Set(amount),
		Balance: new(big.Int).Set(acc.TokenBalance),
	})
	return nil
}

// Withdraw debits tokens out of an account under the same identity and
// signature rules as Deposit.
func (e *Engine) Withdraw(account [20]byte, amount *big.Int, signature []byte) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: withdraw amount must be positive")
	}
	if _, ok, err := e.links.IdentityOf(account); err != nil {
		return err
	} else if !ok {
		return ErrUnregisteredAddress
	}
	nonce, err := e.st.Nonce(account)
	if err != nil {
		return err
	}
	hash := sigverify.WithdrawMessage(account, amount, nonce)
	if err := sigverify.Verify(hash, signature, account); err != nil {
		return err
	}
	acc, err := e.st.GetAccount(account)
	if err != nil {
		return err
	}
	if acc.TokenBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %x", ErrInsufficientBalance, account)
	}
	acc.TokenBalance.Sub(acc.TokenBalance, amount)
	acc.Nonce++
	if err := e.st.PutAccount(account, acc); err != nil {
		return err
	}
	e.emitter.Emit(events.Withdrawn{
		Account: account,
		Amount:  new(big.Int).Set(amount),
		Balance: new(big.Int).Set(acc.TokenBalance),
	})
	return nil
}

// OpenWithdrawal starts a shop settlement withdrawal over the shop's cleared
// surplus. Closed shops keep withdrawal rights over points cleared before
// closure. The shop owner signs (shopId, amount, account, nonce).
func (e *Engine) OpenWithdrawal(shopID [32]byte, amount *big.Int, signature []byte) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: withdrawal amount must be positive")
	}
	record, err := e.shops.Get(shopID)
	if err != nil {
		return err
	}
	pending := Withdrawal{}
	ok, err := e.st.KVGet(withdrawalKey(shopID), &pending)
	if err != nil {
		return err
	}
	if ok && pending.Open {
		return fmt.Errorf("%w: %x", ErrWithdrawalPending, shopID)
	}
	if record.Withdrawable().Cmp(amount) < 0 {
		return fmt.Errorf("%w: withdrawable %s", ErrInsufficientBalance, record.Withdrawable())
	}
	nonce, err := e.st.Nonce(record.Account)
	if err != nil {
		return err
	}
	hash := sigverify.WithdrawalMessage(shopID, amount, record.Account, nonce)
	if err := sigverify.Verify(hash, signature, record.Account); err != nil {
		return err
	}
	withdrawal := Withdrawal{
		ShopID:      shopID,
		Account:     record.Account,
		PointAmount: new(big.Int).Set(amount),
		Open:        true,
	}
	if err := e.st.KVPut(withdrawalKey(shopID), &withdrawal); err != nil {
		return err
	}
	if err := e.st.BumpNonce(record.Account); err != nil {
		return err
	}
	e.emitter.Emit(events.WithdrawalOpened{
		ShopID:  shopID,
		Account: record.Account,
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// CloseWithdrawal settles an open withdrawal: the cleared points convert to
// tokens released from the foundation reserve into the shop owner's account.
func (e *Engine) CloseWithdrawal(validator [20]byte, shopID [32]byte) error {
	if !e.validators.IsActive(validator) {
		return quorum.ErrNotValidator
	}
	withdrawal := Withdrawal{}
	ok, err := e.st.KVGet(withdrawalKey(shopID), &withdrawal)
	if err != nil {
		return err
	}
	if !ok || !withdrawal.Open {
		return fmt.Errorf("%w: %x", ErrNoOpenWithdrawal, shopID)
	}
	tokenAmount, err := e.pointToToken(withdrawal.PointAmount)
	if err != nil {
		return err
	}
	if err := e.debitFoundation(tokenAmount); err != nil {
		return err
	}
	if err := e.creditToken(withdrawal.Account, tokenAmount); err != nil {
		return err
	}
	if err := e.shops.Settle(shopID, withdrawal.PointAmount, tokenAmount); err != nil {
		return err
	}
	withdrawal.Open = false
	if err := e.st.KVPut(withdrawalKey(shopID), &withdrawal); err != nil {
		return err
	}
	e.emitter.Emit(events.WithdrawalClosed{
		ShopID:      shopID,
		Account:     withdrawal.Account,
		PointAmount: withdrawal.PointAmount,
		TokenAmount: tokenAmount,
	})
	return nil
}
