package bridge

import (
	"errors"
	"fmt"
	"math/big"

	"pointchain/core/events"
	"pointchain/core/sigverify"
	"pointchain/core/state"
	"pointchain/native/quorum"
)

var (
	ErrDuplicateID           = errors.New("bridge: deposit id already used")
	ErrAlreadyProcessed      = errors.New("bridge: withdrawal already released")
	ErrMismatchedWithdrawal  = errors.New("bridge: vote does not match recorded withdrawal")
	ErrInsufficientLiquidity = errors.New("bridge: insufficient liquidity")
	ErrInsufficientBalance   = errors.New("bridge: insufficient balance")
)

type bridgeState interface {
	GetAccount(addr [20]byte) (*state.Account, error)
	PutAccount(addr [20]byte, acc *state.Account) error
	Nonce(addr [20]byte) (uint64, error)
	BumpNonce(addr [20]byte) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	depositPrefix  = []byte("bridge/deposit/")
	withdrawPrefix = []byte("bridge/withdraw/")
)

func depositKey(id [32]byte) []byte {
	return append(append([]byte(nil), depositPrefix...), id[:]...)
}

func withdrawKey(id [32]byte) []byte {
	return append(append([]byte(nil), withdrawPrefix...), id[:]...)
}

type depositRecord struct {
	Account [20]byte
	Amount  *big.Int
}

type withdrawRecord struct {
	Account  [20]byte
	Amount   *big.Int
	Votes    quorum.Tally
	Released bool
}

// Engine implements the lock-and-release transfer primitive between two
// ledger instances. Deposits lock tokens into the bridge's liquidity account
// under a single depositor signature; withdrawals release liquidity once a
// threshold of bridge validators has voted, exactly once per id.
type Engine struct {
	st         bridgeState
	validators *quorum.Set
	emitter    events.Emitter
	account    [20]byte
	threshold  int
}

// NewEngine wires a bridge over the provided liquidity account. When
// threshold is zero the validator set's majority quorum is used.
func NewEngine(st bridgeState, validators *quorum.Set, account [20]byte, threshold int) *Engine {
	return &Engine{
		st:         st,
		validators: validators,
		emitter:    events.NoopEmitter{},
		account:    account,
		threshold:  threshold,
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Threshold returns the number of votes required to release a withdrawal.
func (e *Engine) Threshold() int {
	if e.threshold > 0 {
		return e.threshold
	}
	return e.validators.Quorum()
}

// Liquidity returns the bridge's locked token balance.
func (e *Engine) Liquidity() (*big.Int, error) {
	acc, err := e.st.GetAccount(e.account)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.TokenBalance), nil
}

// Deposit locks tokens into the bridge pool. The depositor signs the same
// canonical transfer message used for ordinary transfers, with the bridge as
// recipient.
func (e *Engine) Deposit(depositID [32]byte, account [20]byte, amount *big.Int, signature []byte) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bridge: deposit amount must be positive")
	}
	used, err := e.st.KVGet(depositKey(depositID), nil)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: %x", ErrDuplicateID, depositID)
	}
	nonce, err := e.st.Nonce(account)
	if err != nil {
		return err
	}
	hash := sigverify.TransferMessage(account, e.account, amount, nonce)
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
	pool, err := e.st.GetAccount(e.account)
	if err != nil {
		return err
	}
	pool.TokenBalance.Add(pool.TokenBalance, amount)
	if err := e.st.PutAccount(e.account, pool); err != nil {
		return err
	}
	if err := e.st.KVPut(depositKey(depositID), &depositRecord{
		Account: account,
		Amount:  new(big.Int).Set(amount),
	}); err != nil {
		return err
	}
	e.emitter.Emit(events.BridgeDeposited{
		DepositID: depositID,
		Account:   account,
		Amount:    new(big.Int).Set(amount),
		Liquidity: new(big.Int).Set(pool.TokenBalance),
	})
	return nil
}

// Withdraw records one validator vote for releasing amount to account under
// withdrawID. Reaching the threshold releases the funds exactly once; any
// further vote for the same id fails ErrAlreadyProcessed and never moves
// funds again.
func (e *Engine) Withdraw(withdrawID [32]byte, account [20]byte, amount *big.Int, validator [20]byte) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bridge: withdraw amount must be positive")
	}
	if !e.validators.IsActive(validator) {
		return quorum.ErrNotValidator
	}
	record := withdrawRecord{}
	ok, err := e.st.KVGet(withdrawKey(withdrawID), &record)
	if err != nil {
		return err
	}
	if !ok {
		record = withdrawRecord{Account: account, Amount: new(big.Int).Set(amount)}
	} else {
		if record.Released {
			return fmt.Errorf("%w: %x", ErrAlreadyProcessed, withdrawID)
		}
		if record.Account != account || record.Amount.Cmp(amount) != 0 {
			return ErrMismatchedWithdrawal
		}
	}
	if err := record.Votes.Add(validator); err != nil {
		return err
	}
	if record.Votes.Count() >= e.Threshold() {
		pool, err := e.st.GetAccount(e.account)
		if err != nil {
			return err
		}
		if pool.TokenBalance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: need %s", ErrInsufficientLiquidity, amount)
		}
		pool.TokenBalance.Sub(pool.TokenBalance, amount)
		if err := e.st.PutAccount(e.account, pool); err != nil {
			return err
		}
		acc, err := e.st.GetAccount(account)
		if err != nil {
			return err
		}
		acc.TokenBalance.Add(acc.TokenBalance, amount)
		if err := e.st.PutAccount(account, acc); err != nil {
			return err
		}
		record.Released = true
		if err := e.st.KVPut(withdrawKey(withdrawID), &record); err != nil {
			return err
		}
		e.emitter.Emit(events.BridgeWithdrawn{
			WithdrawID: withdrawID,
			Account:    account,
			Amount:     new(big.Int).Set(amount),
			Liquidity:  new(big.Int).Set(pool.TokenBalance),
			Votes:      record.Votes.Count(),
		})
		return nil
	}
	return e.st.KVPut(withdrawKey(withdrawID), &record)
}
