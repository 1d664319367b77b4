package ledger

import (
	"math/big"

	"pointchain/core/events"
	"pointchain/core/sigverify"
	"pointchain/core/state"
)

// ChangeToLoyaltyToken switches an account from point to token settlement.
// The switch is one-way and moves no balances; it only changes how future
// purchases and payments are routed.
func (e *Engine) ChangeToLoyaltyToken(account [20]byte, signature []byte) error {
	acc, err := e.st.GetAccount(account)
	if err != nil {
		return err
	}
	if acc.LoyaltyMode == state.LoyaltyModeToken {
		return ErrAlreadyTokenMode
	}
	nonce, err := e.st.Nonce(account)
	if err != nil {
		return err
	}
	hash := sigverify.LoyaltyTypeMessage(account, nonce)
	if err := sigverify.Verify(hash, signature, account); err != nil {
		return err
	}
	acc.LoyaltyMode = state.LoyaltyModeToken
	acc.Nonce++
	if err := e.st.PutAccount(account, acc); err != nil {
		return err
	}
	e.emitter.Emit(events.ChangedToLoyaltyToken{Account: account})
	return nil
}

// ChangeToPayablePoint drains the escrowed point bucket of a now-linked
// phone hash into the owner's account. Point-mode accounts receive points;
// token-mode accounts receive the converted token amount from the foundation
// reserve. The phone-to-address link must already be accepted.
func (e *Engine) ChangeToPayablePoint(phoneHash [32]byte, account [20]byte, signature []byte) error {
	linked, ok, err := e.links.AddressOf(phoneHash)
	if err != nil {
		return err
	}
	if !ok || linked != account {
		return ErrUnregisteredAddress
	}
	escrowed, err := e.st.UnpayablePoint(phoneHash)
	if err != nil {
		return err
	}
	if escrowed.Sign() == 0 {
		return ErrNoEscrowedPoint
	}
	nonce, err := e.st.Nonce(account)
	if err != nil {
		return err
	}
	hash := sigverify.PayablePointMessage(phoneHash, account, nonce)
	if err := sigverify.Verify(hash, signature, account); err != nil {
		return err
	}

	acc, err := e.st.GetAccount(account)
	if err != nil {
		return err
	}
	var tokenAmount *big.Int
	if acc.LoyaltyMode == state.LoyaltyModeToken {
		tokenAmount, err = e.pointToToken(escrowed)
		if err != nil {
			return err
		}
		if err := e.debitFoundation(tokenAmount); err != nil {
			return err
		}
		acc.TokenBalance.Add(acc.TokenBalance, tokenAmount)
	} else {
		tokenAmount = big.NewInt(0)
		acc.PointBalance.Add(acc.PointBalance, escrowed)
	}
	acc.Nonce++
	if err := e.st.PutAccount(account, acc); err != nil {
		return err
	}
	if err := e.st.SetUnpayablePoint(phoneHash, big.NewInt(0)); err != nil {
		return err
	}
	e.emitter.Emit(events.ChangedToPayablePoint{
		PhoneHash:   phoneHash,
		Account:     account,
		PointAmount: escrowed,
		TokenAmount: tokenAmount,
	})
	return nil
}
