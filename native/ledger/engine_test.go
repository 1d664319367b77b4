package ledger_test

import (
	"math/big"
	"testing"

	"pointchain/core/events"
	"pointchain/core/sigverify"
	"pointchain/core/state"
	"pointchain/crypto"
	"pointchain/native/ledger"
	"pointchain/native/link"
	"pointchain/native/quorum"
	"pointchain/native/rates"
	"pointchain/native/shop"
	"pointchain/storage"
)

const (
	baseCurrency = "krw"
	tokenSymbol  = "acc"
	feeRate      = 5
)

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(e events.Event) {
	c.events = append(c.events, e)
}

func (c *capturingEmitter) byType(eventType string) []events.Event {
	var out []events.Event
	for _, e := range c.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	manager    *state.Manager
	engine     *ledger.Engine
	shops      *shop.Registry
	links      *link.Registry
	rates      *rates.Registry
	validators []*crypto.PrivateKey
	valAddrs   [][20]byte
	certifier  [20]byte
	foundation [20]byte
	feeAccount [20]byte
	emitter    *capturingEmitter
}

// newFixture wires a full settlement stack over an in-memory store: three
// active validators, a certifier, a funded foundation reserve and a token
// price of one point per token so that balance sums stay directly comparable.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	manager := state.NewManager(db)

	validators := make([]*crypto.PrivateKey, 3)
	valAddrs := make([][20]byte, 3)
	for i := range validators {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		validators[i] = key
		valAddrs[i] = key.PubKey().Address().Raw()
	}
	set := quorum.NewSet(valAddrs)

	certifierKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	certifier := certifierKey.PubKey().Address().Raw()
	if err := manager.SetRole(shop.RoleCertifier, certifier); err != nil {
		t.Fatalf("set role: %v", err)
	}

	rateRegistry := rates.NewRegistry(manager, set, baseCurrency)
	linkRegistry := link.NewRegistry(manager, set)
	shopRegistry := shop.NewRegistry(manager)

	foundationKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	feeKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	foundation := foundationKey.PubKey().Address().Raw()
	feeAccount := feeKey.PubKey().Address().Raw()

	emitter := &capturingEmitter{}
	engine := ledger.NewEngine(manager, shopRegistry, linkRegistry, rateRegistry, set, ledger.Config{
		Foundation:  foundation,
		FeeAccount:  feeAccount,
		FeeRate:     feeRate,
		TokenSymbol: tokenSymbol,
	})
	engine.SetEmitter(emitter)

	fx := &fixture{
		manager:    manager,
		engine:     engine,
		shops:      shopRegistry,
		links:      linkRegistry,
		rates:      rateRegistry,
		validators: validators,
		valAddrs:   valAddrs,
		certifier:  certifier,
		foundation: foundation,
		feeAccount: feeAccount,
		emitter:    emitter,
	}
	fx.seedRates(t, 1, []sigverify.RateEntry{
		{Symbol: tokenSymbol, Rate: rates.Multiple()},
	})
	fx.setTokenBalance(t, foundation, tokens(1_000_000))
	return fx
}

func (fx *fixture) seedRates(t *testing.T, height uint64, entries []sigverify.RateEntry) {
	t.Helper()
	hash := sigverify.RateSetMessage(height, entries)
	signatures := make([][]byte, len(fx.validators))
	for i, key := range fx.validators {
		signature, err := sigverify.Sign(hash, key)
		if err != nil {
			t.Fatalf("sign rates: %v", err)
		}
		signatures[i] = signature
	}
	if err := fx.rates.Set(height, entries, signatures); err != nil {
		t.Fatalf("set rates: %v", err)
	}
}

func (fx *fixture) newShop(t *testing.T, providePercent uint8) (*crypto.PrivateKey, [20]byte, [32]byte) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	owner := key.PubKey().Address().Raw()
	shopID := sigverify.ShopID(owner, sigverify.NewSalt())

	nonce, err := fx.manager.Nonce(owner)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	signature, err := sigverify.Sign(sigverify.ShopMessage(shopID, owner, nonce), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := fx.shops.Add(shopID, "Morning Bakery", baseCurrency, providePercent, owner, signature); err != nil {
		t.Fatalf("add shop: %v", err)
	}

	nonce, err = fx.manager.Nonce(owner)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	signature, err = sigverify.Sign(sigverify.ShopStatusMessage(shopID, uint8(shop.StatusActive), owner, nonce), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := fx.shops.ChangeStatus(shopID, shop.StatusActive, signature, fx.certifier); err != nil {
		t.Fatalf("activate shop: %v", err)
	}
	return key, owner, shopID
}

func (fx *fixture) newAccount(t *testing.T) (*crypto.PrivateKey, [20]byte) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, key.PubKey().Address().Raw()
}

// linkAccount walks an identity through the full request, vote and count flow
// so that the account holds an accepted link.
func (fx *fixture) linkAccount(t *testing.T, key *crypto.PrivateKey, account [20]byte, identityHash [32]byte) {
	t.Helper()
	nonce, err := fx.manager.Nonce(account)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	requestID := sigverify.RequestID(identityHash, account, nonce, sigverify.NewSalt())
	signature, err := sigverify.Sign(sigverify.LinkMessage(identityHash, account, nonce), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := fx.links.AddRequest(requestID, identityHash, account, signature); err != nil {
		t.Fatalf("add request: %v", err)
	}
	for _, validator := range fx.valAddrs[:2] {
		if err := fx.links.VoteRequest(requestID, validator); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	if err := fx.links.CountVote(requestID); err != nil {
		t.Fatalf("count vote: %v", err)
	}
}

func (fx *fixture) setPointBalance(t *testing.T, account [20]byte, amount *big.Int) {
	t.Helper()
	acc, err := fx.manager.GetAccount(account)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc.PointBalance = new(big.Int).Set(amount)
	if err := fx.manager.PutAccount(account, acc); err != nil {
		t.Fatalf("put account: %v", err)
	}
}

func (fx *fixture) setTokenBalance(t *testing.T, account [20]byte, amount *big.Int) {
	t.Helper()
	acc, err := fx.manager.GetAccount(account)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc.TokenBalance = new(big.Int).Set(amount)
	if err := fx.manager.PutAccount(account, acc); err != nil {
		t.Fatalf("put account: %v", err)
	}
}

func (fx *fixture) pointBalance(t *testing.T, account [20]byte) *big.Int {
	t.Helper()
	balance, err := fx.engine.PointBalance(account)
	if err != nil {
		t.Fatalf("point balance: %v", err)
	}
	return balance
}

func (fx *fixture) tokenBalance(t *testing.T, account [20]byte) *big.Int {
	t.Helper()
	balance, err := fx.engine.TokenBalance(account)
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	return balance
}

func (fx *fixture) switchToTokenMode(t *testing.T, key *crypto.PrivateKey, account [20]byte) {
	t.Helper()
	nonce, err := fx.manager.Nonce(account)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	signature, err := sigverify.Sign(sigverify.LoyaltyTypeMessage(account, nonce), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := fx.engine.ChangeToLoyaltyToken(account, signature); err != nil {
		t.Fatalf("change to token mode: %v", err)
	}
}

// tokens scales a whole number by the shared fixed-point factor.
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), ledger.TokenScale)
}

func requireEqual(t *testing.T, want, got *big.Int, label string) {
	t.Helper()
	if want.Cmp(got) != 0 {
		t.Fatalf("%s = %s, want %s", label, got, want)
	}
}
