package rates_test

import (
	"errors"
	"math/big"
	"testing"

	"pointchain/core/events"
	"pointchain/core/sigverify"
	"pointchain/core/state"
	"pointchain/crypto"
	"pointchain/native/quorum"
	"pointchain/native/rates"
	"pointchain/storage"
)

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(e events.Event) {
	c.events = append(c.events, e)
}

type fixture struct {
	registry   *rates.Registry
	validators *quorum.Set
	keys       []*crypto.PrivateKey
	emitter    *capturingEmitter
}

func newFixture(t *testing.T, validatorCount int) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	manager := state.NewManager(db)

	keys := make([]*crypto.PrivateKey, validatorCount)
	addrs := make([][20]byte, validatorCount)
	for i := range keys {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		keys[i] = key
		addrs[i] = key.PubKey().Address().Raw()
	}
	validators := quorum.NewSet(addrs)
	registry := rates.NewRegistry(manager, validators, "krw")
	emitter := &capturingEmitter{}
	registry.SetEmitter(emitter)
	return &fixture{registry: registry, validators: validators, keys: keys, emitter: emitter}
}

func signEntries(t *testing.T, keys []*crypto.PrivateKey, height uint64, entries []sigverify.RateEntry) [][]byte {
	t.Helper()
	hash := sigverify.RateSetMessage(height, entries)
	signatures := make([][]byte, 0, len(keys))
	for _, key := range keys {
		signature, err := sigverify.Sign(hash, key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		signatures = append(signatures, signature)
	}
	return signatures
}

func TestSetAcceptsQuorumSignedUpdate(t *testing.T) {
	fx := newFixture(t, 3)
	entries := []sigverify.RateEntry{
		{Symbol: "USD", Rate: big.NewInt(1_300_000_000)},
		{Symbol: "jpy", Rate: big.NewInt(9_000_000)},
	}
	signatures := signEntries(t, fx.keys[:2], 10, entries)

	if err := fx.registry.Set(10, entries, signatures); err != nil {
		t.Fatalf("set: %v", err)
	}
	rate, err := fx.registry.Rate("usd")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate.Cmp(big.NewInt(1_300_000_000)) != 0 {
		t.Fatalf("usd rate = %s", rate)
	}
	height, err := fx.registry.Height()
	if err != nil {
		t.Fatalf("height: %v", err)
	}
	if height != 10 {
		t.Fatalf("height = %d", height)
	}
	if len(fx.emitter.events) != 1 {
		t.Fatalf("expected one event, got %d", len(fx.emitter.events))
	}
	if _, ok := fx.emitter.events[0].(events.RateSet); !ok {
		t.Fatalf("unexpected event %T", fx.emitter.events[0])
	}
}

func TestSetRejectsStaleHeight(t *testing.T) {
	fx := newFixture(t, 3)
	entries := []sigverify.RateEntry{{Symbol: "usd", Rate: big.NewInt(1_300_000_000)}}

	if err := fx.registry.Set(10, entries, signEntries(t, fx.keys[:2], 10, entries)); err != nil {
		t.Fatalf("set: %v", err)
	}
	err := fx.registry.Set(10, entries, signEntries(t, fx.keys[:2], 10, entries))
	if !errors.Is(err, rates.ErrStaleRate) {
		t.Fatalf("expected ErrStaleRate, got %v", err)
	}
	err = fx.registry.Set(9, entries, signEntries(t, fx.keys[:2], 9, entries))
	if !errors.Is(err, rates.ErrStaleRate) {
		t.Fatalf("expected ErrStaleRate for lower height, got %v", err)
	}
}

func TestSetRejectsBelowQuorum(t *testing.T) {
	fx := newFixture(t, 3)
	entries := []sigverify.RateEntry{{Symbol: "usd", Rate: big.NewInt(1_300_000_000)}}
	err := fx.registry.Set(10, entries, signEntries(t, fx.keys[:1], 10, entries))
	if !errors.Is(err, rates.ErrQuorumNotReached) {
		t.Fatalf("expected ErrQuorumNotReached, got %v", err)
	}
}

func TestSetRejectsNonValidatorSigner(t *testing.T) {
	fx := newFixture(t, 3)
	outsider, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	entries := []sigverify.RateEntry{{Symbol: "usd", Rate: big.NewInt(1_300_000_000)}}
	signatures := signEntries(t, []*crypto.PrivateKey{fx.keys[0], outsider}, 10, entries)
	if err := fx.registry.Set(10, entries, signatures); !errors.Is(err, rates.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSetRejectsDuplicateSigner(t *testing.T) {
	fx := newFixture(t, 3)
	entries := []sigverify.RateEntry{{Symbol: "usd", Rate: big.NewInt(1_300_000_000)}}
	signatures := signEntries(t, []*crypto.PrivateKey{fx.keys[0], fx.keys[0]}, 10, entries)
	if err := fx.registry.Set(10, entries, signatures); !errors.Is(err, quorum.ErrDuplicateVote) {
		t.Fatalf("expected ErrDuplicateVote, got %v", err)
	}
}

func TestRateDefaults(t *testing.T) {
	fx := newFixture(t, 3)

	base, err := fx.registry.Rate("KRW")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if base.Cmp(rates.Multiple()) != 0 {
		t.Fatalf("base symbol rate = %s, want identity", base)
	}

	unknown, err := fx.registry.Rate("xyz")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if unknown.Sign() != 0 {
		t.Fatalf("unknown symbol rate = %s, want 0", unknown)
	}
}

func TestSetRejectsNonPositiveRate(t *testing.T) {
	fx := newFixture(t, 3)
	entries := []sigverify.RateEntry{{Symbol: "usd", Rate: big.NewInt(0)}}
	if err := fx.registry.Set(10, entries, signEntries(t, fx.keys[:2], 10, entries)); err == nil {
		t.Fatalf("expected zero rate to be rejected")
	}
}
