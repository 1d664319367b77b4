package rates

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"pointchain/core/events"
	"pointchain/core/sigverify"
	"pointchain/native/quorum"
)

var (
	ErrStaleRate        = errors.New("rates: height not greater than last accepted height")
	ErrQuorumNotReached = errors.New("rates: validator quorum not reached")
	ErrUnauthorized     = errors.New("rates: signer is not an active validator")
	ErrEmptyUpdate      = errors.New("rates: update carries no entries")
)

// MultipleScale is the fixed-point scale applied to every stored rate: a rate
// of 1.0 between a currency and the base token is stored as 1e9.
const MultipleScale = int64(1_000_000_000)

// Multiple returns the rate scale as a fresh big.Int.
func Multiple() *big.Int {
	return big.NewInt(MultipleScale)
}

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	rateKeyPrefix = []byte("rates/symbol/")
	heightKey     = []byte("rates/height")
)

func rateKey(symbol string) []byte {
	return append(append([]byte(nil), rateKeyPrefix...), strings.ToLower(symbol)...)
}

// Registry holds validator-quorum-set exchange rates between the base token
// and arbitrary currency symbols, versioned by height.
type Registry struct {
	st         registryState
	validators *quorum.Set
	emitter    events.Emitter
	baseSymbol string
}

// NewRegistry creates a rate registry. baseSymbol is the registry's own base
// token currency; its rate is always the identity rate.
func NewRegistry(st registryState, validators *quorum.Set, baseSymbol string) *Registry {
	return &Registry{
		st:         st,
		validators: validators,
		emitter:    events.NoopEmitter{},
		baseSymbol: strings.ToLower(strings.TrimSpace(baseSymbol)),
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Height returns the height of the last accepted update.
func (r *Registry) Height() (uint64, error) {
	var height uint64
	if _, err := r.st.KVGet(heightKey, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// Set applies a rate update. The update must carry a height strictly greater
// than the last accepted one and signatures over the canonical update hash
// from at least a quorum of distinct active validators.
func (r *Registry) Set(height uint64, entries []sigverify.RateEntry, signatures [][]byte) error {
	if len(entries) == 0 {
		return ErrEmptyUpdate
	}
	last, err := r.Height()
	if err != nil {
		return err
	}
	if height <= last {
		return fmt.Errorf("%w: got %d, last %d", ErrStaleRate, height, last)
	}
	for _, entry := range entries {
		if entry.Rate == nil || entry.Rate.Sign() <= 0 {
			return fmt.Errorf("rates: rate for %q must be positive", entry.Symbol)
		}
	}

	hash := sigverify.RateSetMessage(height, entries)
	var signers quorum.Tally
	for _, signature := range signatures {
		signer, err := sigverify.Recover(hash, signature)
		if err != nil {
			return err
		}
		if !r.validators.IsActive(signer) {
			return fmt.Errorf("%w: %x", ErrUnauthorized, signer)
		}
		if err := signers.Add(signer); err != nil {
			return err
		}
	}
	if signers.Count() < r.validators.Quorum() {
		return fmt.Errorf("%w: %d of %d", ErrQuorumNotReached, signers.Count(), r.validators.Quorum())
	}

	symbols := make([]string, 0, len(entries))
	values := make([]*big.Int, 0, len(entries))
	for _, entry := range entries {
		symbol := strings.ToLower(strings.TrimSpace(entry.Symbol))
		if err := r.st.KVPut(rateKey(symbol), entry.Rate); err != nil {
			return err
		}
		symbols = append(symbols, symbol)
		values = append(values, new(big.Int).Set(entry.Rate))
	}
	if err := r.st.KVPut(heightKey, height); err != nil {
		return err
	}
	r.emitter.Emit(events.RateSet{Height: height, Symbols: symbols, Rates: values})
	return nil
}

// Rate resolves a currency symbol to its stored rate. The base token symbol
// always resolves to the identity rate; unknown symbols resolve to zero and
// callers must treat zero as an unsupported currency.
func (r *Registry) Rate(symbol string) (*big.Int, error) {
	normalized := strings.ToLower(strings.TrimSpace(symbol))
	if normalized == r.baseSymbol {
		return Multiple(), nil
	}
	value := new(big.Int)
	ok, err := r.st.KVGet(rateKey(normalized), value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}
