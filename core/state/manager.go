package state

import (
	"bytes"
	"fmt"
	"math/big"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"pointchain/storage"
)

// Manager reads and writes ledger state on top of a raw key-value database.
// Values are RLP encoded and keys are hashed with keccak256 so that record
// layout never leaks into the storage backend.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	accountPrefix   = []byte("account:")
	unpayablePrefix = []byte("unpayable:")
	rolePrefix      = []byte("role:")
)

func accountKey(addr [20]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func unpayableKey(hash [32]byte) []byte {
	buf := make([]byte, len(unpayablePrefix)+len(hash))
	copy(buf, unpayablePrefix)
	copy(buf[len(unpayablePrefix):], hash[:])
	return ethcrypto.Keccak256(buf)
}

func roleKey(role string, addr [20]byte) []byte {
	buf := make([]byte, len(rolePrefix)+len(role)+1+len(addr))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	buf[len(rolePrefix)+len(role)] = ':'
	copy(buf[len(rolePrefix)+len(role)+1:], addr[:])
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// GetAccount loads the account record for addr, returning a zero-valued
// account when none has been stored yet.
func (m *Manager) GetAccount(addr [20]byte) (*Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	acc := &Account{}
	if len(raw) > 0 {
		stored := storedAccount{}
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return nil, err
		}
		acc.Nonce = stored.Nonce
		acc.PointBalance = stored.PointBalance
		acc.TokenBalance = stored.TokenBalance
		acc.LoyaltyMode = stored.LoyaltyMode
	}
	return acc.Normalize(), nil
}

// PutAccount persists the account record for addr.
func (m *Manager) PutAccount(addr [20]byte, acc *Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	acc.Normalize()
	encoded, err := rlp.EncodeToBytes(storedAccount{
		Nonce:        acc.Nonce,
		PointBalance: acc.PointBalance,
		TokenBalance: acc.TokenBalance,
		LoyaltyMode:  acc.LoyaltyMode,
	})
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// Nonce returns the current signing nonce for addr.
func (m *Manager) Nonce(addr [20]byte) (uint64, error) {
	acc, err := m.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

// BumpNonce increments addr's nonce by exactly one. Every successful signed
// operation must call this once.
func (m *Manager) BumpNonce(addr [20]byte) error {
	acc, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Nonce++
	return m.PutAccount(addr, acc)
}

// UnpayablePoint returns the escrowed point balance held for an unlinked
// identity hash.
func (m *Manager) UnpayablePoint(hash [32]byte) (*big.Int, error) {
	raw, err := m.db.Get(unpayableKey(hash))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return big.NewInt(0), nil
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(raw, value); err != nil {
		return nil, err
	}
	return value, nil
}

// SetUnpayablePoint replaces the escrowed point balance for an identity hash.
func (m *Manager) SetUnpayablePoint(hash [32]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: unpayable point balance must be non-negative")
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.db.Put(unpayableKey(hash), encoded)
}

// SetRole grants role to addr. Roles gate certifier-only operations.
func (m *Manager) SetRole(role string, addr [20]byte) error {
	return m.db.Put(roleKey(role, addr), []byte{1})
}

// HasRole reports whether addr holds the given role.
func (m *Manager) HasRole(role string, addr [20]byte) bool {
	raw, err := m.db.Get(roleKey(role, addr))
	if err != nil {
		return false
	}
	return len(raw) > 0
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// out. The boolean reports whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("state: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key, if any.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	return m.db.Delete(kvKey(key))
}

// KVAppend appends value to the byte-slice list stored under key. Duplicates
// are ignored so indexes stay deterministic under replays.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.db.Get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.db.Put(hashed, encoded)
}

// KVGetList decodes the slice stored under key into out, initialising out to
// an empty slice when nothing has been stored yet.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("state: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("state: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
