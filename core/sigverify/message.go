package sigverify

import (
	"math/big"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Canonical message encoding: every field is packed into a 32-byte word so
// that off-chain signers and the ledger agree byte for byte.
//
//   - 20-byte addresses are left-padded to 32 bytes
//   - 32-byte hashes are used as-is
//   - unsigned integers and big.Int amounts are big-endian, left-padded
//   - strings contribute keccak256(bytes) as their word
//
// The field order of each builder below is part of the wire format and must
// never change.

type encoder struct {
	buf []byte
}

func (e *encoder) address(addr [20]byte) *encoder {
	var word [32]byte
	copy(word[12:], addr[:])
	e.buf = append(e.buf, word[:]...)
	return e
}

func (e *encoder) hash(h [32]byte) *encoder {
	e.buf = append(e.buf, h[:]...)
	return e
}

func (e *encoder) uint64Word(v uint64) *encoder {
	var word [32]byte
	for i := 0; i < 8; i++ {
		word[31-i] = byte(v >> (8 * i))
	}
	e.buf = append(e.buf, word[:]...)
	return e
}

func (e *encoder) amount(v *big.Int) *encoder {
	var word [32]byte
	if v != nil {
		v.FillBytes(word[:])
	}
	e.buf = append(e.buf, word[:]...)
	return e
}

func (e *encoder) str(s string) *encoder {
	e.buf = append(e.buf, ethcrypto.Keccak256([]byte(s))...)
	return e
}

func (e *encoder) sum() [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(e.buf))
	return out
}

// DepositMessage authorizes a token deposit into the ledger.
func DepositMessage(account [20]byte, amount *big.Int, nonce uint64) [32]byte {
	return (&encoder{}).amount(amount).address(account).uint64Word(nonce).sum()
}

// WithdrawMessage authorizes a token withdrawal from the ledger.
func WithdrawMessage(account [20]byte, amount *big.Int, nonce uint64) [32]byte {
	return (&encoder{}).str("withdraw").amount(amount).address(account).uint64Word(nonce).sum()
}

// PaymentMessage authorizes opening a loyalty payment.
func PaymentMessage(paymentID, purchaseID [32]byte, amount *big.Int, currency string, shopID [32]byte, account [20]byte, nonce uint64) [32]byte {
	return (&encoder{}).
		hash(paymentID).
		hash(purchaseID).
		amount(amount).
		str(strings.ToLower(currency)).
		hash(shopID).
		address(account).
		uint64Word(nonce).
		sum()
}

// CancelMessage authorizes a merchant-initiated payment cancellation.
func CancelMessage(paymentID [32]byte, account [20]byte, nonce uint64) [32]byte {
	return (&encoder{}).hash(paymentID).address(account).uint64Word(nonce).sum()
}

// LoyaltyTypeMessage authorizes the one-way switch to token mode.
func LoyaltyTypeMessage(account [20]byte, nonce uint64) [32]byte {
	return (&encoder{}).str("loyaltyType").address(account).uint64Word(nonce).sum()
}

// PayablePointMessage authorizes moving escrowed phone points to an account.
func PayablePointMessage(phoneHash [32]byte, account [20]byte, nonce uint64) [32]byte {
	return (&encoder{}).hash(phoneHash).address(account).uint64Word(nonce).sum()
}

// ShopMessage authorizes shop registration and updates.
func ShopMessage(shopID [32]byte, account [20]byte, nonce uint64) [32]byte {
	return (&encoder{}).hash(shopID).address(account).uint64Word(nonce).sum()
}

// ShopStatusMessage authorizes a shop status change.
func ShopStatusMessage(shopID [32]byte, status uint8, account [20]byte, nonce uint64) [32]byte {
	return (&encoder{}).hash(shopID).uint64Word(uint64(status)).address(account).uint64Word(nonce).sum()
}

// LinkMessage authorizes an identity-to-address link request.
func LinkMessage(identityHash [32]byte, account [20]byte, nonce uint64) [32]byte {
	return (&encoder{}).hash(identityHash).address(account).uint64Word(nonce).sum()
}

// RemoveMessage authorizes unlinking an address from its identity hash.
func RemoveMessage(account [20]byte, nonce uint64) [32]byte {
	return (&encoder{}).str("remove").address(account).uint64Word(nonce).sum()
}

// TransferMessage authorizes a balance transfer, including bridge deposits
// (where `to` is the bridge address).
func TransferMessage(from, to [20]byte, amount *big.Int, nonce uint64) [32]byte {
	return (&encoder{}).address(from).address(to).amount(amount).uint64Word(nonce).sum()
}

// WithdrawalMessage authorizes a shop settlement withdrawal.
func WithdrawalMessage(shopID [32]byte, amount *big.Int, account [20]byte, nonce uint64) [32]byte {
	return (&encoder{}).hash(shopID).amount(amount).address(account).uint64Word(nonce).sum()
}

// RateEntry is one (symbol, rate) pair covered by a rate-set signature.
type RateEntry struct {
	Symbol string
	Rate   *big.Int
}

// RateSetMessage hashes a rate update. Entries are sorted by lowercased
// symbol so that signers and verifiers canonicalise identically.
func RateSetMessage(height uint64, rates []RateEntry) [32]byte {
	sorted := make([]RateEntry, len(rates))
	copy(sorted, rates)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Symbol) < strings.ToLower(sorted[j].Symbol)
	})
	enc := (&encoder{}).uint64Word(height)
	for _, entry := range sorted {
		enc.str(strings.ToLower(entry.Symbol)).amount(entry.Rate)
	}
	return enc.sum()
}
