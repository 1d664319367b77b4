package ledger

import (
	"fmt"
	"math/big"

	"pointchain/core/events"
	"pointchain/core/state"
	"pointchain/native/link"
	"pointchain/native/quorum"
	"pointchain/native/rates"
	"pointchain/native/shop"
)

// TokenScale is the fixed-point scale shared by point and token amounts.
var TokenScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type engineState interface {
	GetAccount(addr [20]byte) (*state.Account, error)
	PutAccount(addr [20]byte, acc *state.Account) error
	Nonce(addr [20]byte) (uint64, error)
	BumpNonce(addr [20]byte) error
	UnpayablePoint(hash [32]byte) (*big.Int, error)
	SetUnpayablePoint(hash [32]byte, amount *big.Int) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Config carries the platform accounts and fee policy the engine applies to
// every payment and settlement.
type Config struct {
	// Foundation is the reserve account backing point redemptions.
	Foundation [20]byte
	// FeeAccount receives payment fees, converted to tokens.
	FeeAccount [20]byte
	// FeeRate is the whole-number percentage charged on payments.
	FeeRate uint8
	// TokenSymbol is the rate-registry symbol quoting the token price.
	TokenSymbol string
}

// Engine is the central balance ledger: it tracks point, token and unpayable
// point balances and implements purchases, the two-phase payment protocol,
// loyalty-type exchange, deposits/withdrawals and shop settlement.
type Engine struct {
	st         engineState
	shops      *shop.Registry
	links      *link.Registry
	rates      *rates.Registry
	validators *quorum.Set
	emitter    events.Emitter
	cfg        Config
}

// NewEngine wires the ledger engine with its collaborators.
func NewEngine(st engineState, shops *shop.Registry, links *link.Registry, rateRegistry *rates.Registry, validators *quorum.Set, cfg Config) *Engine {
	return &Engine{
		st:         st,
		shops:      shops,
		links:      links,
		rates:      rateRegistry,
		validators: validators,
		emitter:    events.NoopEmitter{},
		cfg:        cfg,
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

// PointBalance returns the payable point balance of an account.
func (e *Engine) PointBalance(account [20]byte) (*big.Int, error) {
	acc, err := e.st.GetAccount(account)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.PointBalance), nil
}

// TokenBalance returns the token balance of an account.
func (e *Engine) TokenBalance(account [20]byte) (*big.Int, error) {
	acc, err := e.st.GetAccount(account)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.TokenBalance), nil
}

// UnpayablePointBalance returns the escrowed point balance of an identity
// hash.
func (e *Engine) UnpayablePointBalance(phoneHash [32]byte) (*big.Int, error) {
	return e.st.UnpayablePoint(phoneHash)
}

// LoyaltyTypeOf returns the settlement mode of an account.
func (e *Engine) LoyaltyTypeOf(account [20]byte) (LoyaltyType, error) {
	acc, err := e.st.GetAccount(account)
	if err != nil {
		return LoyaltyPoint, err
	}
	return LoyaltyType(acc.LoyaltyMode), nil
}

// currencyToPoint converts an amount denominated in currency to points.
// Multiplication precedes division; truncation is always floor division.
func (e *Engine) currencyToPoint(amount *big.Int, currency string) (*big.Int, error) {
	rate, err := e.rates.Rate(currency)
	if err != nil {
		return nil, err
	}
	if rate.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	point := new(big.Int).Mul(amount, rate)
	return point.Quo(point, rates.Multiple()), nil
}

// pointToToken converts a point amount to tokens at the current token price.
func (e *Engine) pointToToken(point *big.Int) (*big.Int, error) {
	price, err := e.rates.Rate(e.cfg.TokenSymbol)
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTokenPriceUnavailable, e.cfg.TokenSymbol)
	}
	token := new(big.Int).Mul(point, rates.Multiple())
	return token.Quo(token, price), nil
}

// debitFoundation moves tokens out of the foundation reserve.
func (e *Engine) debitFoundation(amount *big.Int) error {
	reserve, err := e.st.GetAccount(e.cfg.Foundation)
	if err != nil {
		return err
	}
	if reserve.TokenBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: foundation reserve", ErrInsufficientBalance)
	}
	reserve.TokenBalance.Sub(reserve.TokenBalance, amount)
	return e.st.PutAccount(e.cfg.Foundation, reserve)
}

// creditFoundation moves tokens into the foundation reserve.
func (e *Engine) creditFoundation(amount *big.Int) error {
	reserve, err := e.st.GetAccount(e.cfg.Foundation)
	if err != nil {
		return err
	}
	reserve.TokenBalance.Add(reserve.TokenBalance, amount)
	return e.st.PutAccount(e.cfg.Foundation, reserve)
}

// creditToken adds tokens to an arbitrary account.
func (e *Engine) creditToken(addr [20]byte, amount *big.Int) error {
	acc, err := e.st.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.TokenBalance.Add(acc.TokenBalance, amount)
	return e.st.PutAccount(addr, acc)
}

// debitToken removes tokens from an arbitrary account, guarding underflow.
func (e *Engine) debitToken(addr [20]byte, amount *big.Int) error {
	acc, err := e.st.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc.TokenBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %x", ErrInsufficientBalance, addr)
	}
	acc.TokenBalance.Sub(acc.TokenBalance, amount)
	return e.st.PutAccount(addr, acc)
}
