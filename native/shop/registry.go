package shop

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"pointchain/core/events"
	"pointchain/core/sigverify"
)

var (
	ErrShopExists    = errors.New("shop: shop already registered")
	ErrShopNotFound  = errors.New("shop: shop not found")
	ErrUnauthorized  = errors.New("shop: caller lacks certifier role")
	ErrShopClosed    = errors.New("shop: closed shops cannot be modified")
	ErrInvalidStatus = errors.New("shop: invalid status transition")
	ErrInvalidShop   = errors.New("shop: invalid shop parameters")
)

// RoleCertifier gates the platform co-authorization required for shop
// mutation.
const RoleCertifier = "ROLE_CERTIFIER"

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	Nonce(addr [20]byte) (uint64, error)
	BumpNonce(addr [20]byte) error
	HasRole(role string, addr [20]byte) bool
}

var (
	shopPrefix  = []byte("shop/record/")
	ownerPrefix = []byte("shop/owner/")
)

func shopKey(id [32]byte) []byte {
	return append(append([]byte(nil), shopPrefix...), id[:]...)
}

func ownerKey(account [20]byte) []byte {
	return append(append([]byte(nil), ownerPrefix...), account[:]...)
}

type storedShop struct {
	ID             [32]byte
	Name           string
	Currency       string
	Account        [20]byte
	Status         uint8
	ProvidePercent uint8
	ProvidedPoint  *big.Int
	UsedPoint      *big.Int
	ClearedPoint   *big.Int
	SettledAmount  *big.Int
}

// Registry manages persistence and mutation of shop records. Mutations are
// two-party authorized: the owner signs intent and a certifier submits.
type Registry struct {
	st      registryState
	emitter events.Emitter
}

// NewRegistry creates a shop registry backed by the provided state.
func NewRegistry(st registryState) *Registry {
	return &Registry{st: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Add registers a shop in inactive status with zero totals. The owner signs
// (shopId, account, nonce).
func (r *Registry) Add(shopID [32]byte, name, currency string, providePercent uint8, account [20]byte, signature []byte) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(currency) == "" {
		return ErrInvalidShop
	}
	if providePercent > 100 {
		return fmt.Errorf("%w: provide percent %d", ErrInvalidShop, providePercent)
	}
	exists, err := r.st.KVGet(shopKey(shopID), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %x", ErrShopExists, shopID)
	}
	nonce, err := r.st.Nonce(account)
	if err != nil {
		return err
	}
	hash := sigverify.ShopMessage(shopID, account, nonce)
	if err := sigverify.Verify(hash, signature, account); err != nil {
		return err
	}
	record := &Shop{
		ID:             shopID,
		Name:           strings.TrimSpace(name),
		Currency:       strings.ToLower(strings.TrimSpace(currency)),
		Account:        account,
		Status:         StatusInactive,
		ProvidePercent: providePercent,
	}
	if err := r.put(record); err != nil {
		return err
	}
	if err := r.st.KVAppend(ownerKey(account), shopID[:]); err != nil {
		return err
	}
	if err := r.st.BumpNonce(account); err != nil {
		return err
	}
	r.emitter.Emit(events.ShopAdded{
		ShopID:   shopID,
		Name:     record.Name,
		Currency: record.Currency,
		Account:  account,
	})
	return nil
}

// Update changes a shop's name, currency and provide percent. Requires the
// owner's signature and submission by a certifier.
func (r *Registry) Update(shopID [32]byte, name, currency string, providePercent uint8, signature []byte, certifier [20]byte) error {
	if !r.st.HasRole(RoleCertifier, certifier) {
		return ErrUnauthorized
	}
	if providePercent > 100 {
		return fmt.Errorf("%w: provide percent %d", ErrInvalidShop, providePercent)
	}
	record, err := r.Get(shopID)
	if err != nil {
		return err
	}
	if record.Status == StatusClosed {
		return ErrShopClosed
	}
	nonce, err := r.st.Nonce(record.Account)
	if err != nil {
		return err
	}
	hash := sigverify.ShopMessage(shopID, record.Account, nonce)
	if err := sigverify.Verify(hash, signature, record.Account); err != nil {
		return err
	}
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		record.Name = trimmed
	}
	if trimmed := strings.ToLower(strings.TrimSpace(currency)); trimmed != "" {
		record.Currency = trimmed
	}
	record.ProvidePercent = providePercent
	if err := r.put(record); err != nil {
		return err
	}
	if err := r.st.BumpNonce(record.Account); err != nil {
		return err
	}
	r.emitter.Emit(events.ShopUpdated{
		ShopID:         shopID,
		Name:           record.Name,
		Currency:       record.Currency,
		ProvidePercent: record.ProvidePercent,
	})
	return nil
}

// ChangeStatus moves a shop between inactive and active, or closes it.
// Closed is terminal. Requires the owner's signature and a certifier.
func (r *Registry) ChangeStatus(shopID [32]byte, status Status, signature []byte, certifier [20]byte) error {
	if !r.st.HasRole(RoleCertifier, certifier) {
		return ErrUnauthorized
	}
	if status != StatusInactive && status != StatusActive && status != StatusClosed {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, status)
	}
	record, err := r.Get(shopID)
	if err != nil {
		return err
	}
	if record.Status == StatusClosed {
		return ErrShopClosed
	}
	nonce, err := r.st.Nonce(record.Account)
	if err != nil {
		return err
	}
	hash := sigverify.ShopStatusMessage(shopID, uint8(status), record.Account, nonce)
	if err := sigverify.Verify(hash, signature, record.Account); err != nil {
		return err
	}
	record.Status = status
	if err := r.put(record); err != nil {
		return err
	}
	if err := r.st.BumpNonce(record.Account); err != nil {
		return err
	}
	r.emitter.Emit(events.ShopStatusChanged{ShopID: shopID, Status: uint8(status)})
	return nil
}

// Get loads a shop record.
func (r *Registry) Get(shopID [32]byte) (*Shop, error) {
	stored := storedShop{}
	ok, err := r.st.KVGet(shopKey(shopID), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrShopNotFound, shopID)
	}
	record := &Shop{
		ID:             stored.ID,
		Name:           stored.Name,
		Currency:       stored.Currency,
		Account:        stored.Account,
		Status:         Status(stored.Status),
		ProvidePercent: stored.ProvidePercent,
		ProvidedPoint:  stored.ProvidedPoint,
		UsedPoint:      stored.UsedPoint,
		ClearedPoint:   stored.ClearedPoint,
		SettledAmount:  stored.SettledAmount,
	}
	return record.Normalize(), nil
}

// ShopsOf returns all shop ids registered by an owner.
func (r *Registry) ShopsOf(account [20]byte) ([][32]byte, error) {
	var raw [][]byte
	if err := r.st.KVGetList(ownerKey(account), &raw); err != nil {
		return nil, err
	}
	ids := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			continue
		}
		var id [32]byte
		copy(id[:], entry)
		ids = append(ids, id)
	}
	return ids, nil
}

// CreditProvided grows the provided-point total after a purchase reward.
// Called by the ledger engine, never signed directly.
func (r *Registry) CreditProvided(shopID [32]byte, points *big.Int) error {
	record, err := r.Get(shopID)
	if err != nil {
		return err
	}
	record.ProvidedPoint.Add(record.ProvidedPoint, points)
	return r.put(record)
}

// CreditUsed grows the used-point total when a payment closes confirmed.
func (r *Registry) CreditUsed(shopID [32]byte, points *big.Int) error {
	record, err := r.Get(shopID)
	if err != nil {
		return err
	}
	record.UsedPoint.Add(record.UsedPoint, points)
	return r.put(record)
}

// DebitUsed reverses a used-point credit when a closed payment is cancelled.
func (r *Registry) DebitUsed(shopID [32]byte, points *big.Int) error {
	record, err := r.Get(shopID)
	if err != nil {
		return err
	}
	record.UsedPoint.Sub(record.UsedPoint, points)
	if record.UsedPoint.Sign() < 0 {
		return fmt.Errorf("shop: used point underflow for %x", shopID)
	}
	return r.put(record)
}

// Settle marks points as cleared and records the token amount paid out.
func (r *Registry) Settle(shopID [32]byte, points, tokenAmount *big.Int) error {
	record, err := r.Get(shopID)
	if err != nil {
		return err
	}
	record.ClearedPoint.Add(record.ClearedPoint, points)
	record.SettledAmount.Add(record.SettledAmount, tokenAmount)
	return r.put(record)
}

func (r *Registry) put(record *Shop) error {
	record.Normalize()
	return r.st.KVPut(shopKey(record.ID), &storedShop{
		ID:             record.ID,
		Name:           record.Name,
		Currency:       record.Currency,
		Account:        record.Account,
		Status:         uint8(record.Status),
		ProvidePercent: record.ProvidePercent,
		ProvidedPoint:  record.ProvidedPoint,
		UsedPoint:      record.UsedPoint,
		ClearedPoint:   record.ClearedPoint,
		SettledAmount:  record.SettledAmount,
	})
}
